// Command goclaw is the command-line entry point for the skills runtime:
// discover, list, activate, execute, validate, and analyze skill
// directories laid out per the SKILL.md convention.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/basket/go-claw/internal/audit"
	"github.com/basket/go-claw/internal/executor"
	"github.com/basket/go-claw/internal/hooks"
	"github.com/basket/go-claw/internal/policy"
	"github.com/basket/go-claw/internal/runtime"
	"github.com/basket/go-claw/internal/sandbox/native"
	"github.com/basket/go-claw/internal/skillerrors"
	"github.com/basket/go-claw/internal/skills"
	"github.com/basket/go-claw/internal/skills/registry"
	"github.com/basket/go-claw/internal/skills/validator"
	"github.com/basket/go-claw/internal/telemetry"
)

func main() {
	// Must run before anything else: on Linux this re-execs as the sandboxed
	// child when invoked with the internal sentinel argument, and never
	// returns in that case.
	native.ReexecEntrypoint()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	homeDir := os.Getenv("HOME")
	logger, closer, err := telemetry.NewLogger(homeDir, "info", true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "goclaw: failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	cmd := os.Args[1]
	args := os.Args[2:]

	var runErr error
	switch cmd {
	case "discover":
		runErr = runDiscover(args, logger)
	case "list":
		runErr = runList(args, logger)
	case "activate":
		runErr = runActivate(args, logger)
	case "execute":
		runErr = runExecute(args, logger)
	case "validate":
		runErr = runValidate(args)
	case "analyze":
		runErr = runAnalyze(args)
	default:
		printUsage()
		os.Exit(1)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "goclaw: %v\n", runErr)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: goclaw <command> [flags]

commands:
  discover [--project-root <path>] [--watch] [--revalidate-cron <spec>]
  list [--dir <path>]
  activate <id> [--dir <path>]
  execute <id> [--input <json>|--input-file <path>] [--timeout-ms <n>]
          [--policy <file>] [--audit-db <file>] [--dir <path>]
  validate <path> [--warnings] [--json]
  analyze <path> [--json]`)
}

func newRuntime(projectRoot string, logger *slog.Logger) *runtime.Runtime {
	return runtime.New(runtime.Options{
		HomeDir:     os.Getenv("HOME"),
		ProjectRoot: projectRoot,
		Logger:      logger,
	})
}

func runDiscover(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("discover", flag.ContinueOnError)
	projectRoot := fs.String("project-root", "", "project root to scan for .claude/skills")
	watch := fs.Bool("watch", false, "keep running, rescanning when skill sources change")
	revalidateCron := fs.String("revalidate-cron", "", "with --watch, also re-validate loaded skills on this cron schedule")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt := newRuntime(*projectRoot, logger)
	if err := rt.Discover(); err != nil {
		return err
	}
	if err := printDescriptors(rt.List()); err != nil {
		return err
	}
	if !*watch {
		return nil
	}
	if *revalidateCron != "" {
		rv, err := hooks.NewRevalidator(rt.Registry(), *revalidateCron, logger)
		if err != nil {
			return err
		}
		rv.Start()
		defer rv.Stop()
	}
	return watchAndRescan(rt, *projectRoot, logger)
}

// watchAndRescan re-runs discovery and reprints the descriptor list every
// time the watcher reports a skill-source change. Runs until interrupted.
func watchAndRescan(rt *runtime.Runtime, projectRoot string, logger *slog.Logger) error {
	if projectRoot == "" {
		if wd, err := os.Getwd(); err == nil {
			projectRoot = wd
		}
	}
	dirs := []string{
		filepath.Join(os.Getenv("HOME"), ".claude", "skills"),
		filepath.Join(projectRoot, ".claude", "skills"),
	}
	w := skills.NewWatcher(dirs, logger)
	if err := w.Start(context.Background()); err != nil {
		return err
	}
	for range w.Events() {
		if err := rt.Discover(); err != nil {
			logger.Warn("rescan failed", "error", err)
			continue
		}
		if err := printDescriptors(rt.List()); err != nil {
			return err
		}
	}
	return nil
}

func runList(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	dir := fs.String("dir", "", "directory to scan directly")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt := newRuntime("", logger)
	if *dir != "" {
		rt.LoadFromDirectory(*dir)
	} else if err := rt.Discover(); err != nil {
		return err
	}
	return printDescriptors(rt.List())
}

func printDescriptors(descs []registry.Descriptor) error {
	type descriptorJSON struct {
		ID            string `json:"id"`
		Description   string `json:"description"`
		Location      string `json:"location"`
		UserInvocable bool   `json:"user_invocable"`
	}
	out := make([]descriptorJSON, 0, len(descs))
	for _, d := range descs {
		out = append(out, descriptorJSON{
			ID:            d.ID,
			Description:   d.Description,
			Location:      d.Location.String(),
			UserInvocable: d.UserInvocable,
		})
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runActivate(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("activate", flag.ContinueOnError)
	dir := fs.String("dir", "", "directory to scan directly")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("activate requires a skill id")
	}
	id := fs.Arg(0)

	rt := newRuntime("", logger)
	if *dir != "" {
		rt.LoadFromDirectory(*dir)
	} else if err := rt.Discover(); err != nil {
		return err
	}

	skill, err := rt.Activate(id)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"id":           skill.ID,
		"manifest":     skill.Manifest,
		"instructions": skill.Instructions,
		"location":     skill.Location.String(),
	})
}

func runExecute(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("execute", flag.ContinueOnError)
	dir := fs.String("dir", "", "directory to scan directly")
	input := fs.String("input", "", "JSON input payload")
	inputFile := fs.String("input-file", "", "path to a file containing the JSON input payload")
	timeoutMs := fs.Int("timeout-ms", executor.DefaultTimeoutMs, "execution timeout in milliseconds")
	policyFile := fs.String("policy", "", "host policy YAML file")
	auditDB := fs.String("audit-db", "", "also append audit records to this SQLite file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("execute requires a skill id")
	}
	id := fs.Arg(0)

	inputBytes, err := resolveInput(*input, *inputFile)
	if err != nil {
		return err
	}

	policyCfg, err := policy.Load(*policyFile)
	if err != nil {
		return err
	}

	homeDir := os.Getenv("HOME")
	var sink audit.Sink
	jsonl, err := audit.NewJSONLSink(homeDir)
	if err != nil {
		logger.Warn("audit jsonl sink unavailable", "error", err)
	} else {
		defer jsonl.Close()
		sink = jsonl
	}
	if *auditDB != "" {
		sqlite, serr := audit.NewSQLiteSink(*auditDB)
		if serr != nil {
			return serr
		}
		defer sqlite.Close()
		if sink != nil {
			sink = teeSink{sink, sqlite}
		} else {
			sink = sqlite
		}
	}

	decisions, err := audit.OpenDecisionLog(homeDir)
	if err != nil {
		logger.Warn("decision log unavailable", "error", err)
	} else {
		defer decisions.Close()
	}

	rt := runtime.New(runtime.Options{
		HomeDir:   homeDir,
		Policy:    policy.NewFromConfig(policyCfg),
		Logger:    logger,
		AuditSink: sink,
		Decisions: decisions,
	})
	if *dir != "" {
		rt.LoadFromDirectory(*dir)
	} else if err := rt.Discover(); err != nil {
		return err
	}

	result, err := rt.Execute(context.Background(), id, runtime.ExecuteOptions{
		Input:     inputBytes,
		TimeoutMs: *timeoutMs,
	})
	if err != nil {
		return err
	}

	if len(result.Stdout) > 0 {
		fmt.Fprintln(os.Stderr, "[stdout]")
		fmt.Fprintln(os.Stderr, result.Stdout)
	}
	if len(result.Stderr) > 0 {
		fmt.Fprintln(os.Stderr, "[stderr]")
		fmt.Fprintln(os.Stderr, result.Stderr)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result.Audit)
}

// teeSink fans one audit record out to both configured sinks.
type teeSink struct {
	a, b audit.Sink
}

func (t teeSink) Write(ctx context.Context, rec audit.Record) error {
	var firstErr error
	if t.a != nil {
		firstErr = t.a.Write(ctx, rec)
	}
	if t.b != nil {
		if err := t.b.Write(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func resolveInput(inline, path string) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, skillerrors.Wrap(skillerrors.Io, err)
		}
		return data, nil
	}
	if inline != "" {
		return []byte(inline), nil
	}
	return []byte("{}"), nil
}

func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	showWarnings := fs.Bool("warnings", false, "print non-fatal warnings")
	asJSON := fs.Bool("json", false, "emit JSON output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("validate requires a skill directory path")
	}
	path := filepath.Clean(fs.Arg(0))

	result, err := validator.ValidateSkillPath(path)
	if err != nil {
		if *asJSON {
			_ = json.NewEncoder(os.Stdout).Encode(map[string]any{"valid": false, "error": err.Error()})
		}
		return err
	}

	if *asJSON {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"valid":    true,
			"warnings": result.Warnings,
		})
	}

	fmt.Println("valid")
	if *showWarnings {
		for _, w := range result.Warnings {
			fmt.Println("warning:", w)
		}
	}
	return nil
}

func runAnalyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "emit JSON output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("analyze requires a skill directory path")
	}
	path := filepath.Clean(fs.Arg(0))

	analysis, err := validator.AnalyzeTokens(path)
	if err != nil {
		return err
	}

	if *asJSON {
		return json.NewEncoder(os.Stdout).Encode(analysis)
	}

	fmt.Printf("tier1 (metadata): ~%d tokens\n", analysis.Tier1Tokens)
	fmt.Printf("tier2 (body):     ~%d tokens\n", analysis.Tier2Tokens)
	fmt.Printf("total:            ~%d tokens\n", analysis.Tier1Tokens+analysis.Tier2Tokens)
	return nil
}

// Package runtime is the outermost façade over the skills core: it owns the
// registry exclusively, layers the host policy over skill-declared
// allowlists, computes sandbox grants, dispatches executions, and fans the
// resulting audit records out to the configured sink. It is the only place
// that may read ambient process state (HOME, working directory, environ);
// every inner package takes that state as injected configuration.
package runtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/basket/go-claw/internal/audit"
	"github.com/basket/go-claw/internal/executor"
	"github.com/basket/go-claw/internal/hooks"
	"github.com/basket/go-claw/internal/policy"
	"github.com/basket/go-claw/internal/session"
	"github.com/basket/go-claw/internal/shared"
	"github.com/basket/go-claw/internal/skillerrors"
	"github.com/basket/go-claw/internal/skills/registry"
)

// Options configures a Runtime. Zero values fall back to ambient defaults:
// HomeDir from $HOME, ProjectRoot from the working directory, Policy from
// policy.Default().
type Options struct {
	HomeDir     string
	ProjectRoot string
	Policy      *policy.HostPolicy
	Logger      *slog.Logger
	AuditSink   audit.Sink
	Decisions   *audit.DecisionLog
	// EnvPassthrough names host environment variables copied into every
	// execution's capability grant as its env allowlist.
	EnvPassthrough []string
	// Workspace, when set, is exposed to native executions as
	// SKILL_WORKSPACE and added to their write grant.
	Workspace string
}

// Runtime is the single-owner façade. Its registry is shared-read behind the
// registry's own RWMutex; executions are per-call with no shared mutable
// state, so one Runtime may serve sequential callers indefinitely.
type Runtime struct {
	reg        *registry.Registry
	policy     *policy.HostPolicy
	exec       *executor.Executor
	dispatcher *hooks.Dispatcher
	sink       audit.Sink
	decisions  *audit.DecisionLog
	logger     *slog.Logger
	opts       Options
}

// New builds a Runtime, resolving ambient defaults for anything Options
// leaves unset.
func New(opts Options) *Runtime {
	if opts.HomeDir == "" {
		opts.HomeDir = os.Getenv("HOME")
	}
	if opts.ProjectRoot == "" {
		if wd, err := os.Getwd(); err == nil {
			opts.ProjectRoot = wd
		}
	}
	if opts.Policy == nil {
		opts.Policy = policy.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runtime{
		reg:        registry.New(opts.ProjectRoot, opts.HomeDir, opts.Logger.With("component", "registry")),
		policy:     opts.Policy,
		exec:       executor.New(opts.Logger.With("component", "executor")),
		dispatcher: hooks.New(),
		sink:       opts.AuditSink,
		decisions:  opts.Decisions,
		logger:     opts.Logger,
		opts:       opts,
	}
}

// Registry exposes the underlying registry for watcher wiring and tests.
func (r *Runtime) Registry() *registry.Registry { return r.reg }

// Discover scans the three standard roots (personal, project, nested).
func (r *Runtime) Discover() error { return r.reg.Discover() }

// LoadFromDirectory scans one explicit directory, tagged Custom.
func (r *Runtime) LoadFromDirectory(dir string) { r.reg.ScanExplicit(dir) }

// List returns progressive-disclosure descriptors: metadata only, no body.
func (r *Runtime) List() []registry.Descriptor { return r.reg.List() }

// Activate materializes the full skill record including the Markdown body.
func (r *Runtime) Activate(id string) (*registry.Skill, error) { return r.reg.Activate(id) }

// IsToolAllowed answers the direct skill-allowlist query. This is distinct
// from host-policy resolution: it consults only the skill's own declared
// list, and an empty list allows nothing.
func (r *Runtime) IsToolAllowed(id, tool string) (bool, error) {
	return r.reg.IsToolAllowed(id, tool)
}

// RequireToolAllowed is the erroring form of the permission query.
func (r *Runtime) RequireToolAllowed(id, tool string) error {
	ok, err := r.IsToolAllowed(id, tool)
	if err != nil {
		return err
	}
	if !ok {
		return skillerrors.New(skillerrors.ToolNotAllowed, "tool %q is not in skill %q's allowed-tools", tool, id)
	}
	return nil
}

// ExecuteOptions are the per-call knobs of one execution request.
type ExecuteOptions struct {
	Input        []byte // JSON-serialized input value; empty means {}
	TimeoutMs    int
	MemoryCapMB  int
	ArtifactPath string // override; empty resolves conventionally
}

// ExecutionResult pairs the shaped output with the audit record and, for
// context: fork skills, the summarized fork context.
type ExecutionResult struct {
	Output      json.RawMessage
	Stdout      string
	Stderr      string
	Audit       *audit.Record
	ForkSummary *session.Summary
}

// Execute runs a skill end to end: implicit activation, per-tool host-policy
// resolution, capability mapping, backend dispatch, audit assembly, sink
// write, and Stop-hook dispatch. A host-policy denial of a declared tool is
// a pre-execution error; failures inside the sandbox come back as a
// populated record instead.
func (r *Runtime) Execute(ctx context.Context, id string, opts ExecuteOptions) (*ExecutionResult, error) {
	ctx = shared.WithTraceID(ctx, shared.NewTraceID())
	logger := r.logger.With("trace_id", shared.TraceID(ctx), "skill", id)

	if r.reg.IsEmpty() {
		if err := r.reg.Discover(); err != nil {
			return nil, err
		}
	}

	skill, err := r.reg.Activate(id)
	if err != nil {
		return nil, err
	}

	grant, err := r.resolveGrant(skill)
	if err != nil {
		return nil, err
	}
	grant.EnvAllowlist = append(grant.EnvAllowlist, r.opts.EnvPassthrough...)

	hostEnv := filterEnviron(grant.EnvAllowlist)
	if len(hostEnv) > 0 {
		safe := make(map[string]string, len(hostEnv))
		for k, v := range hostEnv {
			safe[k] = shared.RedactEnvValue(k, v)
		}
		logger.Debug("env passthrough", "env", safe)
	}

	input := opts.Input
	if len(input) == 0 {
		input = []byte("{}")
	}

	rec, err := r.exec.Execute(ctx, executor.Request{
		SkillID:      skill.ID,
		SkillName:    skill.Manifest.Name,
		SkillRoot:    skill.Root,
		Input:        input,
		TimeoutMs:    opts.TimeoutMs,
		MemoryCapMB:  opts.MemoryCapMB,
		ArtifactPath: opts.ArtifactPath,
		Grant:        grant,
		HostEnv:      hostEnv,
		WorkspaceDir: r.opts.Workspace,
		TempDir:      executor.ResolveTempDir(),
	})
	if err != nil {
		return nil, err
	}
	logger.Info("execution finished", "exit_status", rec.ExitStatus.Kind, "duration_ms", rec.DurationMs)

	if r.sink != nil {
		if werr := r.sink.Write(ctx, *rec); werr != nil {
			logger.Warn("audit sink write failed", "error", werr)
		}
	}

	result := &ExecutionResult{
		Output: json.RawMessage(rec.Stdout),
		Stdout: rec.Stdout,
		Stderr: rec.Stderr,
		Audit:  rec,
	}

	if skill.Manifest.IsForked() {
		fork := session.NewContext(skill.ID)
		if strings.TrimSpace(rec.Stdout) != "" {
			fork.Record("stdout", rec.Stdout, time.UnixMilli(rec.StartTimeMs))
		}
		if strings.TrimSpace(rec.Stderr) != "" {
			fork.Record("stderr", rec.Stderr, time.UnixMilli(rec.StartTimeMs))
		}
		summary := session.Summarize(fork)
		result.ForkSummary = &summary
	}

	if skill.Manifest.Hooks != nil {
		r.dispatcher.Dispatch(ctx, hooks.Event{Kind: hooks.Stop, Reason: rec.ExitStatus.Kind}, skill.Manifest.Hooks, skill.Root, grant)
	}

	return result, nil
}

// resolveGrant runs every declared tool through the host policy, records
// each verdict, and maps the approved set to a capability grant. Any
// declared tool the host denies aborts the execution before the sandbox
// starts.
func (r *Runtime) resolveGrant(skill *registry.Skill) (policy.Grant, error) {
	declared := skill.Manifest.GetAllowedTools()
	approved := make([]string, 0, len(declared))
	for _, tool := range declared {
		decision := r.policy.Resolve(skill.ID, tool, declared)
		if r.decisions != nil {
			r.decisions.RecordDecision(skill.ID, tool, decision.String(), "")
		}
		switch decision {
		case policy.Approved:
			approved = append(approved, tool)
		case policy.Prompt:
			// No callback answered; an unresolved prompt never grants.
		default:
			return policy.Grant{}, skillerrors.New(skillerrors.PermissionDenied,
				"host policy denied tool %q for skill %q", tool, skill.ID)
		}
	}
	grant := policy.MapToolsToCapabilities(approved)
	if r.opts.Workspace != "" {
		grant.WritePaths = append(grant.WritePaths, r.opts.Workspace)
	}
	return grant, nil
}

// filterEnviron copies host environment values for exactly the allowlisted
// keys. Reading os.Environ here is deliberate: the façade is the single
// ambient-state boundary.
func filterEnviron(allowlist []string) map[string]string {
	if len(allowlist) == 0 {
		return nil
	}
	want := make(map[string]bool, len(allowlist))
	for _, k := range allowlist {
		want[k] = true
	}
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && want[k] {
			out[k] = v
		}
	}
	return out
}

// Hooks exposes the dispatcher so embedding callers can fire PreToolUse and
// PostToolUse events around their own tool invocations.
func (r *Runtime) Hooks() *hooks.Dispatcher { return r.dispatcher }

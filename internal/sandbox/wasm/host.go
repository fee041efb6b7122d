// Package wasm runs a skill's compiled module under a wazero-hosted WASI
// Preview 1 environment with preopened directories, a cooperative deadline,
// captured streams, and a deterministic environment.
package wasm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/basket/go-claw/internal/policy"
	"github.com/basket/go-claw/internal/skillerrors"
)

// DefaultMemoryLimitPages caps a module's linear memory at 160 pages (10MB)
// when the execution request does not specify a cap. Each WASM page is 64KB.
const DefaultMemoryLimitPages = 160

const wasmPageBytes = 64 * 1024

// ExitStatus mirrors the audit record's closed exit-status variant for a
// single backend invocation.
type ExitStatus int

const (
	Success ExitStatus = iota
	Timeout
	Failed
)

// RunRequest carries everything the backend needs for one execution: the
// resolved artifact, the capability grant already computed by the policy
// layer, and the deterministic environment values.
type RunRequest struct {
	SkillID      string
	SkillName    string
	SkillRoot    string
	ArtifactPath string
	Input        []byte // JSON-serialized execution input
	TimeoutMs    int
	MemoryCapMB  int
	RandomSeed   *uint64
	Grant        policy.Grant
	HostEnv      map[string]string // values present in the host environment, pre-filtered by Grant.EnvAllowlist
}

// RunResult is the backend's contribution to the audit record.
type RunResult struct {
	Stdout     []byte
	Stderr     []byte
	ExitStatus ExitStatus
	FailureMsg string
}

// Backend runs compiled WASM modules. A Backend may be reused across
// executions; each Run call creates and tears down its own wazero runtime
// so that one skill's resource limits never leak into another's.
type Backend struct {
	logger *slog.Logger
}

// New creates a WASM backend. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{logger: logger}
}

// Run loads req.ArtifactPath, instantiates it under WASI Preview 1 with the
// requested capability grant, and runs its entry point to completion or
// until the timeout fires.
func (b *Backend) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	wasmBytes, err := readArtifact(req.ArtifactPath)
	if err != nil {
		return nil, skillerrors.Wrap(skillerrors.Io, err)
	}

	memPages := uint32(DefaultMemoryLimitPages)
	if req.MemoryCapMB > 0 {
		memPages = uint32((req.MemoryCapMB * 1024 * 1024) / wasmPageBytes)
		if memPages == 0 {
			memPages = 1
		}
	}

	runtimeCfg := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(memPages).
		WithCloseOnContextDone(true)

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	defer runtime.Close(ctx)

	// Without the WASI Preview 1 functions in the linker, any module built
	// against wasi targets fails to instantiate with an "unknown import"
	// error.
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		return nil, skillerrors.Wrap(skillerrors.WasmError, fmt.Errorf("instantiate wasi: %w", err))
	}

	compiled, err := runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, skillerrors.Wrap(skillerrors.WasmError, fmt.Errorf("compile module: %w", err))
	}

	// Read paths get read-only rights, write paths get read+write, the
	// skill root is mounted read-only at /skill. A path in both sets ends
	// up writable, since the write mount is registered last.
	fsConfig := wazero.NewFSConfig()
	for _, p := range req.Grant.ReadPaths {
		abs, rerr := filepath.Abs(p)
		if rerr != nil {
			continue
		}
		fsConfig = fsConfig.WithReadOnlyDirMount(abs, guestMountFor(abs))
	}
	for _, p := range req.Grant.WritePaths {
		abs, rerr := filepath.Abs(p)
		if rerr != nil {
			continue
		}
		fsConfig = fsConfig.WithDirMount(abs, guestMountFor(abs))
	}
	if req.SkillRoot != "" {
		if abs, rerr := filepath.Abs(req.SkillRoot); rerr == nil {
			fsConfig = fsConfig.WithReadOnlyDirMount(abs, "/skill")
		}
	}

	var stdout, stderr bytes.Buffer
	modCfg := wazero.NewModuleConfig().
		WithName(moduleName(req.ArtifactPath)).
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithFSConfig(fsConfig)

	for _, kv := range deterministicEnv(req) {
		modCfg = modCfg.WithEnv(kv[0], kv[1])
	}

	start := entryPoint(compiled)
	modCfg = modCfg.WithStartFunctions(start)

	deadline := time.Duration(req.TimeoutMs) * time.Millisecond
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	_, runErr := runtime.InstantiateModule(runCtx, compiled, modCfg)

	result := &RunResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), ExitStatus: Success}
	if runErr == nil {
		return result, nil
	}

	if isEpochOrDeadlineTrap(runErr) {
		result.ExitStatus = Timeout
		return result, nil
	}

	var exitErr *sys.ExitError
	if errors.As(runErr, &exitErr) && exitErr.ExitCode() == 0 {
		return result, nil
	}

	result.ExitStatus = Failed
	result.FailureMsg = runErr.Error()
	return result, nil
}

// isEpochOrDeadlineTrap distinguishes a deadline-crossing trap from any
// other trap by inspecting the error, since wazero surfaces both through
// the same instantiate call.
func isEpochOrDeadlineTrap(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		// wazero raises sys.ExitError when WithCloseOnContextDone closes the
		// store out from under a running module; a non-zero code paired with
		// a context that has already expired is the deadline signature.
		return exitErr.ExitCode() == sys.ExitCodeContextCanceled
	}
	return false
}

// entryPoint resolves the WASM entry point: prefer _start, fall back to
// main.
func entryPoint(compiled wazero.CompiledModule) string {
	exports := compiled.ExportedFunctions()
	if _, ok := exports["_start"]; ok {
		return "_start"
	}
	if _, ok := exports["main"]; ok {
		return "main"
	}
	return "_start"
}

// deterministicEnv builds the guest environment: SKILL_ID, SKILL_NAME,
// SKILL_INPUT, TIMEOUT_MS, optionally RANDOM_SEED, plus host environment
// values already filtered to the allowlist by the caller.
func deterministicEnv(req RunRequest) [][2]string {
	env := [][2]string{
		{"SKILL_ID", req.SkillID},
		{"SKILL_NAME", req.SkillName},
		{"SKILL_INPUT", string(req.Input)},
		{"TIMEOUT_MS", fmt.Sprintf("%d", req.TimeoutMs)},
	}
	if req.RandomSeed != nil {
		env = append(env, [2]string{"RANDOM_SEED", fmt.Sprintf("%d", *req.RandomSeed)})
	}
	keys := make([]string, 0, len(req.HostEnv))
	for k := range req.HostEnv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, [2]string{k, req.HostEnv[k]})
	}
	return env
}

func guestMountFor(hostAbsPath string) string {
	return filepath.ToSlash(hostAbsPath)
}

func moduleName(artifactPath string) string {
	base := filepath.Base(artifactPath)
	return base
}

func readArtifact(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Package executor resolves a skill's artifact, dispatches to the matching
// sandbox backend, and assembles the resulting audit record.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/basket/go-claw/internal/audit"
	"github.com/basket/go-claw/internal/policy"
	"github.com/basket/go-claw/internal/sandbox/native"
	"github.com/basket/go-claw/internal/sandbox/wasm"
	"github.com/basket/go-claw/internal/skillerrors"
	"github.com/basket/go-claw/internal/skills/validator"
)

// DefaultTimeoutMs is used when an execution request does not specify one.
const DefaultTimeoutMs = 30_000

// ArtifactKind distinguishes which backend an execution dispatches to.
type ArtifactKind int

const (
	KindWasm ArtifactKind = iota
	KindNative
)

// Request describes one skill execution.
type Request struct {
	SkillID      string
	SkillName    string
	SkillRoot    string
	Input        []byte // raw JSON input payload
	TimeoutMs    int
	MemoryCapMB  int    // wasm linear-memory cap; zero means the backend default
	ArtifactPath string // override; when empty the façade resolves one conventionally
	Grant        policy.Grant
	HostEnv      map[string]string
	WorkspaceDir string
	TempDir      string
}

// Executor dispatches resolved artifacts to the matching backend and
// assembles the resulting audit record. It holds no mutable state across
// calls beyond the backend instances themselves, matching the concurrency
// model's "no shared mutable state per execution" requirement.
type Executor struct {
	wasmBackend   *wasm.Backend
	nativeBackend *native.Backend
	logger        *slog.Logger
}

// New builds an Executor. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		wasmBackend:   wasm.New(logger),
		nativeBackend: native.New(),
		logger:        logger,
	}
}

// ResolveArtifact applies the conventional candidate lists, preferring
// req.ArtifactPath when the caller supplied one.
func ResolveArtifact(skillRoot, override string) (path string, kind ArtifactKind, err error) {
	if override != "" {
		if isWasmPath(override) {
			return override, KindWasm, nil
		}
		return override, KindNative, nil
	}
	if p, ok := validator.FindWasmArtifact(skillRoot); ok {
		return p, KindWasm, nil
	}
	if p, ok := validator.FindNativeArtifact(skillRoot); ok {
		return p, KindNative, nil
	}
	return "", 0, skillerrors.New(skillerrors.InvalidManifest, "skill %q has no executable artifact", filepath.Base(skillRoot))
}

func isWasmPath(p string) bool {
	return filepath.Ext(p) == ".wasm"
}

// Execute resolves req's artifact, runs it under the matching backend, and
// returns a completed audit.Record. It never returns a nil record alongside
// a nil error.
func (e *Executor) Execute(ctx context.Context, req Request) (*audit.Record, error) {
	timeoutMs := req.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = DefaultTimeoutMs
	}

	artifactPath, kind, err := ResolveArtifact(req.SkillRoot, req.ArtifactPath)
	if err != nil {
		return nil, err
	}

	if err := e.validateInput(req); err != nil {
		return nil, err
	}

	// Manifests carry no version field; stamp a per-run identifier so two
	// executions of the same skill stay distinguishable in a shared sink.
	version := uuid.NewString()

	startedAt := time.Now()
	var stdout, stderr []byte
	var exitStatus audit.ExitStatus

	switch kind {
	case KindWasm:
		result, rerr := e.wasmBackend.Run(ctx, wasm.RunRequest{
			SkillID:      req.SkillID,
			SkillName:    req.SkillName,
			SkillRoot:    req.SkillRoot,
			ArtifactPath: artifactPath,
			Input:        req.Input,
			TimeoutMs:    timeoutMs,
			MemoryCapMB:  req.MemoryCapMB,
			Grant:        req.Grant,
			HostEnv:      req.HostEnv,
			RandomSeed:   req.Grant.RandomSeed,
		})
		if rerr != nil {
			return nil, rerr
		}
		stdout, stderr = result.Stdout, result.Stderr
		exitStatus = mapWasmStatus(result)
	case KindNative:
		result, rerr := e.nativeBackend.Run(ctx, native.RunRequest{
			SkillID:      req.SkillID,
			SkillName:    req.SkillName,
			SkillRoot:    req.SkillRoot,
			ArtifactPath: artifactPath,
			Input:        req.Input,
			TimeoutMs:    timeoutMs,
			Grant:        req.Grant,
			HostEnv:      req.HostEnv,
			WorkspaceDir: req.WorkspaceDir,
			TempDir:      req.TempDir,
		})
		if rerr != nil {
			return nil, rerr
		}
		shaped := native.ShapeOutput(result)
		stdout, stderr = shaped, result.Stderr
		exitStatus = mapNativeStatus(result)
	default:
		return nil, skillerrors.New(skillerrors.InvalidManifest, "unknown artifact kind")
	}

	duration := time.Since(startedAt)

	rec := &audit.Record{
		SkillID:         req.SkillID,
		Version:         version,
		InputHash:       canonicalInputHash(req.Input),
		OutputHash:      audit.HashBytes(stdout),
		StartTimeMs:     startedAt.UnixMilli(),
		DurationMs:      duration.Milliseconds(),
		PermissionsUsed: grantToPermissionList(req.Grant),
		ExitStatus:      exitStatus,
		Stdout:          string(stdout),
		Stderr:          string(stderr),
	}
	return rec, nil
}

// canonicalInputHash hashes the decoded input value, so two JSON-equal
// inputs hash identically regardless of key order or whitespace. Input that
// is not JSON at all falls back to hashing its literal text.
func canonicalInputHash(raw []byte) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return audit.HashValue(string(raw))
	}
	return audit.HashValue(v)
}

// validateInput applies the skill's optional input.schema.json. A skill
// without a schema file accepts any input.
func (e *Executor) validateInput(req Request) error {
	schema, err := validator.LoadInputSchema(req.SkillRoot)
	if err != nil {
		return err
	}
	if schema == nil || len(req.Input) == 0 {
		return nil
	}
	decoded, err := jsonschema.UnmarshalJSON(strings.NewReader(string(req.Input)))
	if err != nil {
		return skillerrors.Wrap(skillerrors.Json, err)
	}
	return schema.Validate(decoded)
}

func mapWasmStatus(result *wasm.RunResult) audit.ExitStatus {
	switch result.ExitStatus {
	case wasm.Success:
		return audit.Success()
	case wasm.Timeout:
		return audit.TimeoutStatus()
	default:
		return audit.FailedStatus(result.FailureMsg)
	}
}

func mapNativeStatus(result *native.RunResult) audit.ExitStatus {
	switch result.ExitStatus {
	case native.Success:
		return audit.Success()
	case native.Timeout:
		return audit.TimeoutStatus()
	default:
		return audit.FailedStatus(result.FailureMsg)
	}
}

// grantToPermissionList renders a Grant as the flat permission strings the
// audit record stores, in a stable, deterministic order.
func grantToPermissionList(g policy.Grant) []string {
	var out []string
	for _, p := range g.ReadPaths {
		out = append(out, fmt.Sprintf("read:%s", p))
	}
	for _, p := range g.WritePaths {
		out = append(out, fmt.Sprintf("write:%s", p))
	}
	for _, h := range g.NetworkHosts {
		out = append(out, fmt.Sprintf("network:%s", h))
	}
	if g.ProcessSpawn {
		out = append(out, "process-spawn")
	}
	return out
}

// ResolveTempDir returns TMPDIR, falling back to os.TempDir().
func ResolveTempDir() string {
	if v := os.Getenv("TMPDIR"); v != "" {
		return v
	}
	return os.TempDir()
}

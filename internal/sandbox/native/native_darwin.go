//go:build darwin

package native

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/basket/go-claw/internal/skillerrors"
)

// darwinSandbox synthesizes a Seatbelt (sandbox-exec) profile:
// deny-by-default, denies ordered before the broad read grant for sensitive
// paths, narrow writes.
type darwinSandbox struct{}

func newPlatformSandbox() platformSandbox {
	return darwinSandbox{}
}

// ReexecEntrypoint is a no-op on darwin: Seatbelt profiles are applied via
// sandbox-exec's own wrapper process, not a self re-exec.
func ReexecEntrypoint() {}

// sensitiveSubpaths are denied read/write before the broad grants that
// follow, since the Seatbelt evaluator is first-match-wins. Relative to the
// invoking user's home directory.
var sensitiveSubpaths = []string{
	".ssh",
	".aws",
	".config/gcloud",
	".gnupg",
	".netrc",
	".bash_history",
	".zsh_history",
}

func sensitivePaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(sensitiveSubpaths))
	for _, p := range sensitiveSubpaths {
		out = append(out, filepath.Join(home, p))
	}
	return out
}

func (darwinSandbox) Wrap(req RunRequest, argv []string) ([]string, func(), error) {
	profile := buildSeatbeltProfile(req)

	tmpDir := req.TempDir
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	f, err := os.CreateTemp(tmpDir, "goclaw-sandbox-*.sb")
	if err != nil {
		return nil, nil, skillerrors.Wrap(skillerrors.SandboxError, err)
	}
	path := f.Name()
	if _, err := f.WriteString(profile); err != nil {
		f.Close()
		os.Remove(path)
		return nil, nil, skillerrors.Wrap(skillerrors.SandboxError, err)
	}
	f.Close()

	cleanup := func() { _ = os.Remove(path) }
	wrapped := append([]string{"/usr/bin/sandbox-exec", "-f", path}, argv...)
	return wrapped, cleanup, nil
}

func buildSeatbeltProfile(req RunRequest) string {
	var b strings.Builder
	b.WriteString("(version 1)\n(deny default)\n")

	// Interpreter bootstrap primitives.
	b.WriteString("(allow process-exec)\n")
	b.WriteString("(allow sysctl-read)\n")
	b.WriteString("(allow mach-lookup)\n")
	b.WriteString("(allow signal (target self))\n")

	for _, p := range sensitivePaths() {
		fmt.Fprintf(&b, "(deny file-read* file-write* (subpath %q))\n", p)
	}
	b.WriteString("(allow file-read*)\n")

	b.WriteString("(allow file-write* (literal \"/dev/null\"))\n")
	if req.TempDir != "" {
		fmt.Fprintf(&b, "(allow file-write* (subpath %q))\n", req.TempDir)
	}
	if req.SkillRoot != "" {
		fmt.Fprintf(&b, "(allow file-write* (subpath %q))\n", req.SkillRoot)
	}
	for _, p := range req.Grant.WritePaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "(allow file-write* (subpath %q))\n", abs)
	}

	if req.Grant.ProcessSpawn {
		b.WriteString("(allow process-fork)\n(allow process*)\n")
	}
	if len(req.Grant.NetworkHosts) > 0 {
		b.WriteString("(allow network*)\n")
	}

	return b.String()
}

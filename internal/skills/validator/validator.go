// Package validator applies identifier, length, reserved-word, and
// structural rules to manifests and skill directories, on both the
// activation and execution paths.
package validator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/basket/go-claw/internal/skillerrors"
	"github.com/basket/go-claw/internal/skills/frontmatter"
	"github.com/basket/go-claw/internal/skills/manifest"
)

// Result carries validation warnings alongside a successful validation.
type Result struct {
	Warnings []string
}

// ValidateName applies the identifier rules from the data model: lowercase
// letters, digits, internal hyphens; 1-64 chars; no leading/trailing or
// doubled hyphen; not a reserved word.
func ValidateName(name string) error {
	if name == "" || len(name) > manifest.MaxNameLength {
		return skillerrors.New(skillerrors.InvalidManifest,
			"skill name must be 1-%d characters, got %d", manifest.MaxNameLength, len(name))
	}
	for _, c := range name {
		if !(c >= 'a' && c <= 'z') && !(c >= '0' && c <= '9') && c != '-' {
			return skillerrors.New(skillerrors.InvalidManifest,
				"skill name %q must contain only lowercase letters, digits, and hyphens", name)
		}
	}
	if strings.HasPrefix(name, "-") || strings.HasSuffix(name, "-") {
		return skillerrors.New(skillerrors.InvalidManifest, "skill name %q must not start or end with a hyphen", name)
	}
	if strings.Contains(name, "--") {
		return skillerrors.New(skillerrors.InvalidManifest, "skill name %q must not contain consecutive hyphens", name)
	}
	if manifest.ReservedNames[name] {
		return skillerrors.New(skillerrors.InvalidManifest, "skill name %q is a reserved word", name)
	}
	return nil
}

// ValidateDescription applies the description rules: 1-1024 chars, no
// angle-bracket characters.
func ValidateDescription(desc string) error {
	if desc == "" {
		return skillerrors.New(skillerrors.InvalidManifest, "skill description is required")
	}
	if len(desc) > manifest.MaxDescriptionLength {
		return skillerrors.New(skillerrors.InvalidManifest,
			"skill description exceeds %d characters", manifest.MaxDescriptionLength)
	}
	if strings.ContainsAny(desc, "<>") {
		return skillerrors.New(skillerrors.InvalidManifest, "skill description must not contain '<' or '>'")
	}
	return nil
}

// ValidateManifest checks the full set of manifest-level rules.
func ValidateManifest(m *manifest.Manifest) error {
	if err := ValidateName(m.Name); err != nil {
		return err
	}
	if err := ValidateDescription(m.Description); err != nil {
		return err
	}
	if m.Context != "" && m.Context != "fork" {
		return skillerrors.New(skillerrors.InvalidManifest, "context must be 'fork' if present, got %q", m.Context)
	}
	return nil
}

// ValidateDirectoryName checks that the directory basename matches the
// manifest's declared name.
func ValidateDirectoryName(id string, m *manifest.Manifest) error {
	if m.Name != id {
		return skillerrors.New(skillerrors.InvalidManifest,
			"skill directory %q does not match manifest name %q", id, m.Name)
	}
	return nil
}

// ValidateSkillPath performs full directory-level validation: reads
// SKILL.md, validates the manifest, the directory-name match, and collects
// non-fatal warnings for empty/oversized bodies and descriptions.
func ValidateSkillPath(path string) (*Result, error) {
	skillMdPath := filepath.Join(path, "SKILL.md")
	content, err := os.ReadFile(skillMdPath)
	if err != nil {
		return nil, skillerrors.Wrap(skillerrors.Io, err)
	}

	parsed, err := frontmatter.Parse(string(content))
	if err != nil {
		return nil, err
	}

	if err := ValidateManifest(&parsed.Manifest); err != nil {
		return nil, err
	}

	id := filepath.Base(filepath.Clean(path))
	if err := ValidateDirectoryName(id, &parsed.Manifest); err != nil {
		return nil, err
	}

	var warnings []string
	if strings.TrimSpace(parsed.Instructions) == "" {
		warnings = append(warnings, "skill body is empty")
	} else if len(parsed.Instructions) > manifest.WarnBodyLength {
		warnings = append(warnings, fmt.Sprintf("skill body exceeds %d characters", manifest.WarnBodyLength))
	}
	if len(parsed.Manifest.Description) > manifest.WarnDescriptionLen {
		warnings = append(warnings, fmt.Sprintf("description exceeds %d characters (soft limit)", manifest.WarnDescriptionLen))
	}

	return &Result{Warnings: warnings}, nil
}

// TokenAnalysis approximates the tier-1 (metadata) and tier-2 (body) token
// counts at one token per four characters.
type TokenAnalysis struct {
	Tier1Tokens int
	Tier2Tokens int
}

const charsPerToken = 4
const yamlOverheadChars = 50

// AnalyzeTokens estimates token costs for a skill directory's SKILL.md.
func AnalyzeTokens(path string) (*TokenAnalysis, error) {
	skillMdPath := filepath.Join(path, "SKILL.md")
	content, err := os.ReadFile(skillMdPath)
	if err != nil {
		return nil, skillerrors.Wrap(skillerrors.Io, err)
	}
	parsed, err := frontmatter.Parse(string(content))
	if err != nil {
		return nil, err
	}
	tier1Chars := len(parsed.Manifest.Name) + len(parsed.Manifest.Description) + yamlOverheadChars
	return &TokenAnalysis{
		Tier1Tokens: tier1Chars / charsPerToken,
		Tier2Tokens: len(parsed.Instructions) / charsPerToken,
	}, nil
}

// FindWasmArtifact resolves the wasm module path via the conventional
// candidate list: skill.wasm, wasm/skill.wasm, module.wasm, main.wasm, then
// any .wasm file directly under the skill root.
func FindWasmArtifact(root string) (string, bool) {
	candidates := []string{"skill.wasm", filepath.Join("wasm", "skill.wasm"), "module.wasm", "main.wasm"}
	for _, c := range candidates {
		p := filepath.Join(root, c)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, true
		}
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".wasm") {
			return filepath.Join(root, e.Name()), true
		}
	}
	return "", false
}

// FindNativeArtifact resolves the native script path: script.sh or
// script.py.
func FindNativeArtifact(root string) (string, bool) {
	for _, c := range []string{"script.sh", "script.py"} {
		p := filepath.Join(root, c)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, true
		}
	}
	return "", false
}

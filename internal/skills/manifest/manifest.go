// Package manifest holds the typed representation of SKILL.md frontmatter
// fields plus the constraint constants the validator applies to them.
package manifest

import "strings"

const (
	MaxNameLength        = 64
	MaxDescriptionLength = 1024
	WarnBodyLength       = 10000
	WarnDescriptionLen   = 500
)

// ReservedNames may never be used as a skill identifier.
var ReservedNames = map[string]bool{
	"anthropic": true,
	"claude":    true,
	"skill":     true,
	"system":    true,
}

// AllowedTools normalizes the YAML `allowed-tools` field, which may arrive
// as either a sequence of strings or a single comma-separated string.
type AllowedTools struct {
	raw []string
}

// UnmarshalYAML accepts either a list or a scalar comma-separated string.
func (a *AllowedTools) UnmarshalYAML(unmarshal func(any) error) error {
	var list []string
	if err := unmarshal(&list); err == nil {
		a.raw = normalizeTools(list)
		return nil
	}
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	a.raw = normalizeTools(strings.Split(s, ","))
	return nil
}

// MarshalYAML emits the normalized form as a sequence.
func (a AllowedTools) MarshalYAML() (any, error) {
	return a.raw, nil
}

// ToSlice returns the normalized, never-nil tool list.
func (a AllowedTools) ToSlice() []string {
	if a.raw == nil {
		return []string{}
	}
	return a.raw
}

func normalizeTools(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// HookEntry is a single sandboxed-command hook bound to a matcher.
type HookEntry struct {
	Matcher   string `yaml:"matcher,omitempty"`
	Command   string `yaml:"command"`
	Cwd       string `yaml:"cwd,omitempty"`
	TimeoutMs int    `yaml:"timeout_ms,omitempty"`
}

// HooksConfig maps lifecycle events to the hook entries that fire on them.
type HooksConfig struct {
	PreToolUse  []HookEntry `yaml:"PreToolUse,omitempty"`
	PostToolUse []HookEntry `yaml:"PostToolUse,omitempty"`
	Stop        []HookEntry `yaml:"Stop,omitempty"`
}

// Manifest is the parsed SKILL.md YAML frontmatter.
type Manifest struct {
	Name          string        `yaml:"name"`
	Description   string        `yaml:"description"`
	AllowedTools  *AllowedTools `yaml:"allowed-tools,omitempty"`
	Model         string        `yaml:"model,omitempty"`
	Context       string        `yaml:"context,omitempty"`
	Agent         string        `yaml:"agent,omitempty"`
	Hooks         *HooksConfig  `yaml:"hooks,omitempty"`
	UserInvocable *bool         `yaml:"user-invocable,omitempty"`
}

// IsForked reports whether this skill declares context: fork.
func (m *Manifest) IsForked() bool {
	return m.Context == "fork"
}

// IsUserInvocable defaults to true when the field is absent.
func (m *Manifest) IsUserInvocable() bool {
	if m.UserInvocable == nil {
		return true
	}
	return *m.UserInvocable
}

// GetAllowedTools returns the normalized, never-nil allowlist. An absent or
// empty allowed-tools field means nothing is pre-approved; callers must not
// treat the empty slice as "allow all".
func (m *Manifest) GetAllowedTools() []string {
	if m.AllowedTools == nil {
		return []string{}
	}
	return m.AllowedTools.ToSlice()
}

// Package policy implements the host-policy layer (Layer 2) that sits
// between a skill's declared allowlist (Layer 1) and sandbox capability
// grants (Layer 3), plus the capability mapper that translates tool names
// into concrete filesystem/network/process capabilities.
package policy

import (
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/basket/go-claw/internal/skillerrors"
)

// Fallback controls how a tool is resolved when no override or skill
// pre-approval matches.
type Fallback string

const (
	FallbackAllow  Fallback = "allow"
	FallbackDeny   Fallback = "deny"
	FallbackPrompt Fallback = "prompt"
)

// Decision is the outcome of resolving a single tool request.
type Decision int

const (
	Approved Decision = iota
	Denied
	Prompt
)

func (d Decision) String() string {
	switch d {
	case Approved:
		return "approved"
	case Denied:
		return "denied"
	case Prompt:
		return "prompt"
	default:
		return "unknown"
	}
}

// PromptResponse is the caller's answer to a Prompt decision.
type PromptResponse int

const (
	AllowOnce PromptResponse = iota
	AllowAlways
	DenyResponse
)

// PromptCallback is invoked when the fallback is Prompt and no override or
// skill pre-approval has already settled the decision.
type PromptCallback func(skillID, tool string) PromptResponse

// Config is the YAML-serializable shape of a host policy file.
type Config struct {
	TrustSkillAllowedTools *bool    `yaml:"trust_skill_allowed_tools,omitempty"`
	Fallback               Fallback `yaml:"fallback,omitempty"`
	Deny                   []string `yaml:"deny,omitempty"`
	Allow                  []string `yaml:"allow,omitempty"`
}

// HostPolicy resolves tool decisions per the four-step algorithm:
//  1. tool in deny_overrides -> Denied
//  2. tool in allow_overrides -> Approved
//  3. trust_skill_allowed_tools && tool in skill allowlist -> Approved
//  4. fallback
type HostPolicy struct {
	TrustSkillAllowedTools bool
	FallbackMode           Fallback
	denyOverrides          map[string]bool
	allowOverrides         map[string]bool

	mu       sync.Mutex
	memo     map[string]bool // "skillID\x00tool" -> AllowAlways memoized
	callback PromptCallback
}

// DefaultConfig mirrors the data model's stated default: trust=true,
// fallback=deny, no overrides.
func DefaultConfig() Config {
	trust := true
	return Config{TrustSkillAllowedTools: &trust, Fallback: FallbackDeny}
}

// Load reads a YAML host-policy file. A missing path yields DefaultConfig.
func Load(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return Config{}, skillerrors.Wrap(skillerrors.Io, err)
	}
	if len(data) == 0 {
		return DefaultConfig(), nil
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, skillerrors.Wrap(skillerrors.Yaml, err)
	}
	if c.Fallback == "" {
		c.Fallback = FallbackDeny
	}
	if c.TrustSkillAllowedTools == nil {
		trust := true
		c.TrustSkillAllowedTools = &trust
	}
	return c, nil
}

// NewFromConfig builds a HostPolicy from a parsed Config.
func NewFromConfig(c Config) *HostPolicy {
	trust := true
	if c.TrustSkillAllowedTools != nil {
		trust = *c.TrustSkillAllowedTools
	}
	fb := c.Fallback
	if fb == "" {
		fb = FallbackDeny
	}
	return &HostPolicy{
		TrustSkillAllowedTools: trust,
		FallbackMode:           fb,
		denyOverrides:          toSet(c.Deny),
		allowOverrides:         toSet(c.Allow),
		memo:                   make(map[string]bool),
	}
}

// Default returns a HostPolicy with trust=true, fallback=deny, no overrides.
func Default() *HostPolicy {
	return NewFromConfig(DefaultConfig())
}

// WithPromptCallback attaches the callback used to resolve Prompt decisions.
func (hp *HostPolicy) WithPromptCallback(cb PromptCallback) *HostPolicy {
	hp.callback = cb
	return hp
}

// Resolve implements the four-step resolution algorithm. skillAllowedTools
// is the skill's own declared allowlist (never nil; empty means nothing
// pre-approved). skillID is used only for AllowAlways memoization.
func (hp *HostPolicy) Resolve(skillID, tool string, skillAllowedTools []string) Decision {
	if hp.denyOverrides[tool] {
		return Denied
	}
	if hp.allowOverrides[tool] {
		return Approved
	}
	if hp.TrustSkillAllowedTools {
		for _, t := range skillAllowedTools {
			if t == tool {
				return Approved
			}
		}
	}

	switch hp.FallbackMode {
	case FallbackAllow:
		return Approved
	case FallbackPrompt:
		return hp.resolvePrompt(skillID, tool)
	default:
		return Denied
	}
}

func (hp *HostPolicy) resolvePrompt(skillID, tool string) Decision {
	key := skillID + "\x00" + tool
	hp.mu.Lock()
	if hp.memo[key] {
		hp.mu.Unlock()
		return Approved
	}
	hp.mu.Unlock()

	if hp.callback == nil {
		return Prompt
	}
	switch hp.callback(skillID, tool) {
	case AllowOnce:
		return Approved
	case AllowAlways:
		hp.mu.Lock()
		hp.memo[key] = true
		hp.mu.Unlock()
		return Approved
	default:
		return Denied
	}
}

func toSet(in []string) map[string]bool {
	out := make(map[string]bool, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v != "" {
			out[v] = true
		}
	}
	return out
}

// Package shared holds small cross-cutting helpers: secret redaction for
// everything the runtime persists, and trace-id context plumbing.
package shared

import (
	"regexp"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

// secretPatterns match credential shapes that surface in the runtime's
// persisted text: SKILL_INPUT payloads echoed by a skill, captured
// stdout/stderr, policy-decision reasons, and hook output. Assignment-style
// pairs keep their key so the entry stays attributable.
var secretPatterns = []*regexp.Regexp{
	// key=value / key: value pairs with credential-like names, the shape a
	// skill script leaks when it dumps its environment or config.
	regexp.MustCompile(`(?i)([a-z0-9_-]*(?:api[_-]?key|secret|token|password|credential)[a-z0-9_-]*\s*[:=]\s*"?)([A-Za-z0-9_\-./+=]{8,})"?`),
	// Authorization headers in captured HTTP traffic.
	regexp.MustCompile(`(?i)(Bearer\s+)([A-Za-z0-9_\-./+=]{16,})`),
	// Vendor-prefixed key material (sk-/ghp-/glpat-/xox-style tokens).
	regexp.MustCompile(`\b(?:sk|ghp|gho|glpat|xox[a-z])[-_][A-Za-z0-9_\-]{12,}\b`),
	// AWS access key ids.
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
}

// sensitiveEnvFragments flag environment keys whose values are secrets by
// construction. Applied when the env allowlist handed to a sandboxed
// execution is logged; the child still receives the real value.
var sensitiveEnvFragments = []string{
	"api_key", "apikey", "secret", "token", "password", "credential",
}

// Redact replaces secret-bearing patterns in the input string with
// [REDACTED] before anything lands in a log, decision trail, or audit sink.
func Redact(input string) string {
	if input == "" {
		return input
	}
	result := input
	for _, pat := range secretPatterns {
		result = pat.ReplaceAllStringFunc(result, func(match string) string {
			// Patterns with a prefix group keep the prefix and lose the value.
			sub := pat.FindStringSubmatch(match)
			if len(sub) >= 3 {
				return sub[1] + redactedPlaceholder
			}
			return redactedPlaceholder
		})
	}
	return result
}

// RedactEnvValue returns the value, or the placeholder when the key itself
// marks it as secret.
func RedactEnvValue(key, value string) string {
	lower := strings.ToLower(key)
	for _, fragment := range sensitiveEnvFragments {
		if strings.Contains(lower, fragment) {
			return redactedPlaceholder
		}
	}
	return value
}

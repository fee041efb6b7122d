// Package frontmatter splits a SKILL.md document into its YAML head and
// Markdown body and decodes the head into a manifest.Manifest.
package frontmatter

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/basket/go-claw/internal/skillerrors"
	"github.com/basket/go-claw/internal/skills/manifest"
)

// Parsed holds the decoded manifest plus the Markdown instructions body.
type Parsed struct {
	Manifest     manifest.Manifest
	Instructions string
}

// Parse decodes a full SKILL.md document: YAML frontmatter plus body.
func Parse(content string) (*Parsed, error) {
	yamlContent, body, err := split(content)
	if err != nil {
		return nil, err
	}

	var m manifest.Manifest
	if err := yaml.Unmarshal([]byte(yamlContent), &m); err != nil {
		return nil, skillerrors.New(skillerrors.InvalidManifest, "invalid YAML frontmatter: %v", err)
	}
	if m.Name == "" {
		return nil, skillerrors.New(skillerrors.InvalidManifest, "manifest missing required field 'name'")
	}
	if m.Description == "" {
		return nil, skillerrors.New(skillerrors.InvalidManifest, "manifest missing required field 'description'")
	}

	return &Parsed{Manifest: m, Instructions: body}, nil
}

// ParseFrontmatterOnly decodes only the YAML head, discarding the body, for
// use during discovery where retaining the full body would waste memory.
func ParseFrontmatterOnly(content string) (*manifest.Manifest, error) {
	yamlContent, _, err := split(content)
	if err != nil {
		return nil, err
	}
	var m manifest.Manifest
	if err := yaml.Unmarshal([]byte(yamlContent), &m); err != nil {
		return nil, skillerrors.New(skillerrors.InvalidManifest, "invalid YAML frontmatter: %v", err)
	}
	if m.Name == "" {
		return nil, skillerrors.New(skillerrors.InvalidManifest, "manifest missing required field 'name'")
	}
	if m.Description == "" {
		return nil, skillerrors.New(skillerrors.InvalidManifest, "manifest missing required field 'description'")
	}
	return &m, nil
}

// split separates the trimmed document into (yamlHead, body). The document
// must begin with a line of exactly three dashes and a second such line,
// beginning a line, must close the frontmatter region.
func split(content string) (yamlHead string, body string, err error) {
	content = strings.TrimSpace(content)

	if !strings.HasPrefix(content, "---") {
		return "", "", skillerrors.New(skillerrors.InvalidManifest, "SKILL.md must start with YAML frontmatter (---)")
	}

	afterFirst := content[3:]
	closingIdx := strings.Index(afterFirst, "\n---")
	if closingIdx == -1 {
		return "", "", skillerrors.New(skillerrors.InvalidManifest, "SKILL.md frontmatter not properly closed (missing ---)")
	}

	yamlHead = strings.TrimSpace(afterFirst[:closingIdx])
	restStart := closingIdx + len("\n---")
	if restStart < len(afterFirst) {
		body = strings.TrimSpace(afterFirst[restStart:])
	}
	return yamlHead, body, nil
}

// Package registry indexes discovered skills by identifier across layered
// filesystem roots and owns the progressive-disclosure state: discovery
// loads only frontmatter, activation loads the body.
package registry

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/basket/go-claw/internal/skillerrors"
	"github.com/basket/go-claw/internal/skills/frontmatter"
	"github.com/basket/go-claw/internal/skills/manifest"
	"github.com/basket/go-claw/internal/skills/validator"
)

// Location is the discovery origin of a loaded skill.
type Location int

const (
	Personal Location = iota
	Project
	Nested
	Custom
)

func (l Location) String() string {
	switch l {
	case Personal:
		return "personal"
	case Project:
		return "project"
	case Nested:
		return "nested"
	case Custom:
		return "custom"
	default:
		return "unknown"
	}
}

// Skill is a loaded skill record. The Instructions field is populated only
// after Activate; a freshly discovered record leaves it empty.
type Skill struct {
	ID           string
	Root         string
	Manifest     manifest.Manifest
	Instructions string
	Location     Location
	activated    bool
}

// Descriptor is the progressive-disclosure "list" view: metadata only.
type Descriptor struct {
	ID            string
	Description   string
	Location      Location
	UserInvocable bool
}

var noiseDirs = map[string]bool{
	"node_modules": true,
	"target":       true,
	"vendor":       true,
	".git":         true,
}

// Registry owns the identifier -> skill map. Per the concurrency model,
// reads (list/get) take an RLock; discovery takes a full Lock; execution is
// per-call and reads the snapshot it needs without holding the lock across
// a backend invocation.
type Registry struct {
	mu          sync.RWMutex
	skills      map[string]*Skill
	projectRoot string
	homeDir     string
	logger      *slog.Logger
}

// New creates an empty registry. projectRoot and homeDir are injected
// configuration (per DESIGN NOTES "Global discovery roots") rather than read
// from ambient state inside this package.
func New(projectRoot, homeDir string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		skills:      make(map[string]*Skill),
		projectRoot: projectRoot,
		homeDir:     homeDir,
		logger:      logger,
	}
}

// Discover scans the three standard roots in order: Personal, Project,
// Nested. Later roots overwrite earlier ones on identifier collision.
func (r *Registry) Discover() error {
	if r.homeDir != "" {
		personal := filepath.Join(r.homeDir, ".claude", "skills")
		if dirExists(personal) {
			r.scanDirectory(personal, Personal)
		}
	}

	projectRoot := r.projectRoot
	if projectRoot == "" {
		if wd, err := os.Getwd(); err == nil {
			projectRoot = wd
		} else {
			projectRoot = "."
		}
	}

	projectSkills := filepath.Join(projectRoot, ".claude", "skills")
	if dirExists(projectSkills) {
		r.scanDirectory(projectSkills, Project)
	}

	r.discoverNested(projectRoot, projectSkills)
	return nil
}

// discoverNested walks root skipping dot-directories (except .claude) and
// conventional noise directories, scanning any .claude/skills it finds other
// than the project root's own (already scanned).
func (r *Registry) discoverNested(root, projectSkills string) {
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		name := info.Name()
		if path != root && strings.HasPrefix(name, ".") && name != ".claude" {
			return filepath.SkipDir
		}
		if noiseDirs[name] {
			return filepath.SkipDir
		}
		if strings.HasSuffix(filepath.ToSlash(path), ".claude/skills") {
			if path != projectSkills {
				r.scanDirectory(path, Nested)
			}
		}
		return nil
	})
}

// ScanExplicit loads skills from an arbitrary directory, tagged Custom. Used
// by `list --dir`/`activate --dir` and by tests.
func (r *Registry) ScanExplicit(dir string) {
	r.scanDirectory(dir, Custom)
}

// scanDirectory loads every immediate subdirectory containing a readable
// SKILL.md. Per-skill failures are logged as warnings; scanning continues.
func (r *Registry) scanDirectory(dir string, loc Location) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()
		root := filepath.Join(dir, id)
		skillMD := filepath.Join(root, "SKILL.md")
		if _, err := os.Stat(skillMD); err != nil {
			continue
		}

		skill, err := loadSkill(id, root, skillMD, loc)
		if err != nil {
			r.logger.Warn("failed to load skill", "skill", id, "dir", dir, "error", err)
			continue
		}
		// Last-root-wins: a later scan for the same id overwrites the entry.
		r.skills[id] = skill
	}
}

func loadSkill(id, root, skillMDPath string, loc Location) (*Skill, error) {
	content, err := os.ReadFile(skillMDPath)
	if err != nil {
		return nil, skillerrors.Wrap(skillerrors.Io, err)
	}

	m, err := frontmatter.ParseFrontmatterOnly(string(content))
	if err != nil {
		return nil, err
	}

	if err := validator.ValidateDirectoryName(id, m); err != nil {
		return nil, err
	}
	if err := validator.ValidateManifest(m); err != nil {
		return nil, err
	}

	return &Skill{
		ID:       id,
		Root:     root,
		Manifest: *m,
		Location: loc,
	}, nil
}

// IsEmpty reports whether no skills have been loaded yet.
func (r *Registry) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.skills) == 0
}

// List returns progressive-disclosure descriptors for every loaded skill.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.skills))
	for _, s := range r.skills {
		out = append(out, Descriptor{
			ID:            s.ID,
			Description:   s.Manifest.Description,
			Location:      s.Location,
			UserInvocable: s.Manifest.IsUserInvocable(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the skill record for id without materializing its body.
func (r *Registry) Get(id string) (*Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[id]
	return s, ok
}

// Activate materializes the full record including the Markdown body. It is
// pure: repeated calls for the same id return structurally equal records.
func (r *Registry) Activate(id string) (*Skill, error) {
	r.mu.RLock()
	s, ok := r.skills[id]
	r.mu.RUnlock()
	if !ok {
		return nil, skillerrors.New(skillerrors.SkillNotFound, "%s", id)
	}
	if s.activated {
		return s, nil
	}

	skillMD := filepath.Join(s.Root, "SKILL.md")
	content, err := os.ReadFile(skillMD)
	if err != nil {
		return nil, skillerrors.Wrap(skillerrors.Io, err)
	}
	parsed, err := frontmatter.Parse(string(content))
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateManifest(&parsed.Manifest); err != nil {
		return nil, err
	}

	r.mu.Lock()
	s.Instructions = parsed.Instructions
	s.Manifest = parsed.Manifest
	s.activated = true
	r.mu.Unlock()

	return s, nil
}

// IsToolAllowed answers a direct skill-allowlist query, distinct from host
// policy resolution; an empty allowlist denies every tool.
func (r *Registry) IsToolAllowed(id, tool string) (bool, error) {
	s, ok := r.Get(id)
	if !ok {
		return false, skillerrors.New(skillerrors.SkillNotFound, "%s", id)
	}
	for _, t := range s.Manifest.GetAllowedTools() {
		if t == tool {
			return true, nil
		}
	}
	return false, nil
}

func dirExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// Package skills provides the filesystem watcher that keeps a long-lived
// registry in step with skill directories changing on disk.
package skills

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces bursts of filesystem events (editors write
// SKILL.md several times per save) into a single rescan signal.
const debounceWindow = 150 * time.Millisecond

// Watcher emits an update event whenever a skill source beneath one of its
// roots changes: SKILL.md, an executable artifact, or the input schema. It
// watches each root directory plus its immediate skill subdirectories.
type Watcher struct {
	roots  []string
	logger *slog.Logger
	events chan string
}

// NewWatcher builds a watcher over the given discovery roots. Blank entries
// are dropped so callers can pass unresolved defaults directly.
func NewWatcher(roots []string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	kept := make([]string, 0, len(roots))
	for _, d := range roots {
		if strings.TrimSpace(d) != "" {
			kept = append(kept, d)
		}
	}
	return &Watcher{
		roots:  kept,
		logger: logger,
		events: make(chan string, 16),
	}
}

// Events is the debounced update channel. It closes when the watcher stops.
func (w *Watcher) Events() <-chan string {
	return w.events
}

// relevantSource reports whether a changed path can affect a loaded skill
// record: the manifest, a wasm module, a native script, or the optional
// input schema.
func relevantSource(path string) bool {
	base := filepath.Base(path)
	switch base {
	case "SKILL.md", "script.sh", "script.py", "input.schema.json":
		return true
	}
	if filepath.Ext(base) == ".wasm" {
		return true
	}
	return false
}

// Start registers the watch points and launches the event loop. The loop
// runs until ctx is canceled, then closes the events channel.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}

	addRoot := func(root string) {
		abs, err := filepath.Abs(root)
		if err != nil {
			w.logger.Warn("skills watcher: abs failed", "dir", root, "error", err)
			return
		}
		if err := fsw.Add(abs); err != nil {
			if os.IsNotExist(err) {
				return
			}
			w.logger.Warn("skills watcher: add failed", "dir", abs, "error", err)
			return
		}

		entries, err := os.ReadDir(abs)
		if err != nil {
			return
		}
		for _, ent := range entries {
			if !ent.IsDir() {
				continue
			}
			skillDir := filepath.Join(abs, ent.Name())
			_ = fsw.Add(skillDir)
			// Artifacts may live one level down in the wasm/ convention.
			wasmDir := filepath.Join(skillDir, "wasm")
			if fi, err := os.Stat(wasmDir); err == nil && fi.IsDir() {
				_ = fsw.Add(wasmDir)
			}
		}
	}

	for _, root := range w.roots {
		addRoot(root)
	}

	go func() {
		defer func() {
			_ = fsw.Close()
			close(w.events)
		}()

		var pending bool
		var timer *time.Timer
		var timerC <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}

				interesting := relevantSource(ev.Name)
				if ev.Op&fsnotify.Create != 0 {
					if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
						// A new skill directory: watch it, and rescan even if
						// the SKILL.md write races our registration.
						_ = fsw.Add(ev.Name)
						interesting = true
					}
				}
				if !interesting {
					continue
				}

				pending = true
				if timer == nil {
					timer = time.NewTimer(debounceWindow)
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(debounceWindow)
				}
				timerC = timer.C

			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.logger.Warn("skills watcher error", "error", err)
			case <-timerC:
				if pending {
					pending = false
					select {
					case w.events <- "skills":
					default:
					}
				}
				timerC = nil
			}
		}
	}()

	return nil
}

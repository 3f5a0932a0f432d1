// Package state owns the on-disk layout of a project's .wm directory and the
// primitives every component uses to touch it: atomic writes, no-follow reads,
// and the single-writer lock.
package state

import (
	"os"
	"path/filepath"

	"github.com/hpungsan/wm/internal/errors"
)

// DirName is the per-project state directory.
const DirName = ".wm"

// ProjectDirEnv is set by the host assistant to the project root.
const ProjectDirEnv = "CLAUDE_PROJECT_DIR"

// Layout resolves every persisted path for one project.
type Layout struct {
	Root string // project root
	Dir  string // Root/.wm
}

// NewLayout returns the layout for a project root.
func NewLayout(root string) Layout {
	return Layout{Root: root, Dir: filepath.Join(root, DirName)}
}

// FindProjectRoot picks the project root: envDir when set, else the nearest
// ancestor of cwd containing .wm, else cwd itself.
func FindProjectRoot(cwd, envDir string) string {
	if envDir != "" {
		return envDir
	}
	dir := cwd
	for {
		if info, err := os.Stat(filepath.Join(dir, DirName)); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return cwd
		}
		dir = parent
	}
}

func (l Layout) PausePath() string       { return filepath.Join(l.Dir, "pause_state.json") }
func (l Layout) DistillDir() string      { return filepath.Join(l.Dir, "distill") }
func (l Layout) CachePath() string       { return filepath.Join(l.DistillDir(), "cache.json") }
func (l Layout) LedgerPath() string      { return filepath.Join(l.DistillDir(), "raw_extractions.md") }
func (l Layout) LockPath() string        { return filepath.Join(l.DistillDir(), "distill.lock") }
func (l Layout) ErrorsLogPath() string   { return filepath.Join(l.DistillDir(), "errors.log") }
func (l Layout) GuardrailsPath() string  { return filepath.Join(l.Dir, "guardrails.md") }
func (l Layout) MetisPath() string       { return filepath.Join(l.Dir, "metis.md") }
func (l Layout) WorkingDivePath() string { return filepath.Join(l.Dir, "dive_context.md") }
func (l Layout) DivesDir() string        { return filepath.Join(l.Dir, "dives") }
func (l Layout) DivePointerPath() string { return filepath.Join(l.Dir, "dive.json") }
func (l Layout) SessionsDir() string     { return filepath.Join(l.Dir, "sessions") }
func (l Layout) LogPath() string         { return filepath.Join(l.Dir, "wm.log") }

// DivePath returns the manifest path for a named dive. name must already be sanitized.
func (l Layout) DivePath(name string) string {
	return filepath.Join(l.DivesDir(), name+".md")
}

// WorkingSetPath returns the debug artifact path for a session.
func (l Layout) WorkingSetPath(sessionID string) string {
	return filepath.Join(l.SessionsDir(), SanitizeForFilename(sessionID), "working_set.md")
}

// Initialized reports whether the .wm directory exists.
func (l Layout) Initialized() bool {
	info, err := os.Stat(l.Dir)
	return err == nil && info.IsDir()
}

// RequireInitialized returns NOT_INITIALIZED when .wm is missing.
func (l Layout) RequireInitialized() error {
	if !l.Initialized() {
		return errors.NewNotInitialized(l.Root)
	}
	return nil
}

// Init creates the directory tree with restricted permissions. Idempotent.
func (l Layout) Init() error {
	for _, dir := range []string{l.Dir, l.DistillDir(), l.DivesDir(), l.SessionsDir()} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return errors.NewIO("create "+dir, err)
		}
		// Explicit chmod (best-effort, may not work on all platforms)
		_ = os.Chmod(dir, 0700)
	}
	return nil
}

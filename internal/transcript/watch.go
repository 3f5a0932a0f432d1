package transcript

import (
	"io/fs"
	"path/filepath"
)

// Watchable is implemented by stores that can name the directories whose
// changes mean a project's transcripts changed.
type Watchable interface {
	WatchDirs(projectPath string) []string
}

// WatchDirs implements Watchable. Only directories that exist are returned.
func (c *ClaudeStore) WatchDirs(projectPath string) []string {
	var dirs []string
	for _, dir := range c.projectDirs(projectPath) {
		if dirExists(dir) {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// WatchDirs implements Watchable. Rollouts are sharded by day, so every
// existing day directory is returned along with the root.
func (c *CodexStore) WatchDirs(projectPath string) []string {
	if !dirExists(c.SessionsDir) {
		return nil
	}
	dirs := []string{c.SessionsDir}
	_ = filepath.WalkDir(c.SessionsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && path != c.SessionsDir {
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs
}

// WatchDirs implements Watchable across every registered source that supports it.
func (m *MultiStore) WatchDirs(projectPath string) []string {
	var dirs []string
	for _, source := range m.order {
		if w, ok := m.stores[source].(Watchable); ok {
			dirs = append(dirs, w.WatchDirs(projectPath)...)
		}
	}
	return dirs
}

package transcript

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hpungsan/wm/internal/errors"
)

// Project is one project log directory of a source.
type Project struct {
	ID       string `json:"id"`
	Dir      string `json:"dir"`
	Source   string `json:"source"`
	Sessions int    `json:"sessions"`
}

// ProjectFinder is implemented by stores that can select projects by name
// instead of by the current project path.
type ProjectFinder interface {
	// FindProjects lists projects whose id contains filter, ignoring case.
	FindProjects(filter string) ([]Project, error)

	// DiscoverProjects lists the sessions of projects, newest first.
	DiscoverProjects(ctx context.Context, projects []Project) ([]Session, error)
}

// FindProjects implements ProjectFinder. Projects without sessions are left
// out; the result is sorted by id.
func (c *ClaudeStore) FindProjects(filter string) ([]Project, error) {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		return nil, errors.NewInvalidRequest("project filter cannot be empty")
	}

	entries, err := os.ReadDir(c.ProjectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewIO("list projects", err)
	}

	var projects []Project
	for _, e := range entries {
		if !e.IsDir() || !strings.Contains(strings.ToLower(e.Name()), filter) {
			continue
		}
		dir := filepath.Join(c.ProjectsDir, e.Name())
		matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
		if err != nil {
			return nil, errors.NewIO("list sessions", err)
		}
		if len(matches) == 0 {
			continue
		}
		projects = append(projects, Project{ID: e.Name(), Dir: dir, Source: SourceClaude, Sessions: len(matches)})
	}
	return projects, nil
}

// DiscoverProjects implements ProjectFinder. A session's ProjectPath is the
// project id, since the original path cannot be recovered from it.
func (c *ClaudeStore) DiscoverProjects(ctx context.Context, projects []Project) ([]Session, error) {
	var all []Session
	seen := make(map[string]bool)
	for _, p := range projects {
		sessions, err := c.discoverIn(ctx, []string{p.Dir}, p.ID, seen)
		if err != nil {
			return nil, err
		}
		all = append(all, sessions...)
	}
	sortNewestFirst(all)
	return all, nil
}

// FindProjects implements ProjectFinder. Codex has no project directories,
// so each distinct session cwd containing filter is a project and Dir is that cwd.
func (c *CodexStore) FindProjects(filter string) ([]Project, error) {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		return nil, errors.NewInvalidRequest("project filter cannot be empty")
	}
	sessions, err := c.walk(context.Background(), func(cwd string) bool {
		return strings.Contains(strings.ToLower(cwd), filter)
	})
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, s := range sessions {
		counts[filepath.Clean(s.ProjectPath)]++
	}
	projects := make([]Project, 0, len(counts))
	for cwd, n := range counts {
		projects = append(projects, Project{ID: cwd, Dir: cwd, Source: SourceCodex, Sessions: n})
	}
	slices.SortFunc(projects, func(a, b Project) int { return strings.Compare(a.ID, b.ID) })
	return projects, nil
}

// DiscoverProjects implements ProjectFinder.
func (c *CodexStore) DiscoverProjects(ctx context.Context, projects []Project) ([]Session, error) {
	want := make(map[string]bool, len(projects))
	for _, p := range projects {
		want[filepath.Clean(p.Dir)] = true
	}
	return c.walk(ctx, func(cwd string) bool { return want[filepath.Clean(cwd)] })
}

// FindProjects implements ProjectFinder over every source that supports it.
func (m *MultiStore) FindProjects(filter string) ([]Project, error) {
	var all []Project
	for _, source := range m.order {
		finder, ok := m.stores[source].(ProjectFinder)
		if !ok {
			continue
		}
		projects, err := finder.FindProjects(filter)
		if err != nil {
			return nil, fmt.Errorf("find %s projects: %w", source, err)
		}
		for i := range projects {
			projects[i].Source = source
		}
		all = append(all, projects...)
	}
	return all, nil
}

// DiscoverProjects implements ProjectFinder, routing projects by Source.
func (m *MultiStore) DiscoverProjects(ctx context.Context, projects []Project) ([]Session, error) {
	var all []Session
	for _, source := range m.order {
		finder, ok := m.stores[source].(ProjectFinder)
		if !ok {
			continue
		}
		var mine []Project
		for _, p := range projects {
			if p.Source == source {
				mine = append(mine, p)
			}
		}
		if len(mine) == 0 {
			continue
		}
		sessions, err := finder.DiscoverProjects(ctx, mine)
		if err != nil {
			return nil, fmt.Errorf("discover %s sessions: %w", source, err)
		}
		for i := range sessions {
			sessions[i].Source = source
		}
		all = append(all, sessions...)
	}
	sortNewestFirst(all)
	return all, nil
}

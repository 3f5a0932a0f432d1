package dive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hpungsan/wm/internal/errors"
	"github.com/hpungsan/wm/internal/state"
)

// pointer is the persisted current-dive pointer. An empty name means the
// working manifest is current.
type pointer struct {
	Current string `json:"current"`
}

// Info is one row of List.
type Info struct {
	Name      string    `json:"name"`
	Current   bool      `json:"current"`
	Intent    string    `json:"intent,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Listing is the result of List.
type Listing struct {
	// Current is the current dive name, "" for the working manifest.
	Current string `json:"current"`

	// Working reports whether a working manifest exists.
	Working bool   `json:"working"`
	Dives   []Info `json:"dives"`
}

// Manager owns .wm/dive_context.md, .wm/dives/ and .wm/dive.json.
type Manager struct {
	layout state.Layout
	now    func() time.Time
}

// New returns a manager for a project layout.
func New(layout state.Layout) *Manager {
	return &Manager{layout: layout, now: time.Now}
}

// Current returns the current dive name ("" for the working manifest).
func (m *Manager) Current() (string, error) {
	data, err := state.ReadFile(m.layout.DivePointerPath())
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	var p pointer
	if err := json.Unmarshal(data, &p); err != nil {
		return "", errors.NewParseError(m.layout.DivePointerPath(), err)
	}
	return p.Current, nil
}

func (m *Manager) setCurrent(name string) error {
	data, err := json.MarshalIndent(pointer{Current: name}, "", "  ")
	if err != nil {
		return errors.NewInternal(err)
	}
	return state.WriteFileAtomic(m.layout.DivePointerPath(), append(data, '\n'))
}

func (m *Manager) exists(name string) bool {
	_, err := os.Stat(m.layout.DivePath(name))
	return err == nil
}

func (m *Manager) write(path string, man *Manifest) error {
	data, err := man.Marshal()
	if err != nil {
		return err
	}
	return state.WriteFileAtomic(path, data)
}

func (m *Manager) read(path, kind, name string) (*Manifest, error) {
	data, err := state.ReadFile(path)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.NewNotFound(kind, name)
		}
		return nil, err
	}
	return Parse(data)
}

// Prep writes the working manifest from man and makes it current.
func (m *Manager) Prep(man Manifest) (*Manifest, error) {
	now := m.now().UTC()
	man.Name = ""
	man.CreatedAt, man.UpdatedAt = now, now
	if strings.TrimSpace(man.Body) == "" {
		man.Render()
	}
	if man.Empty() {
		return nil, errors.NewInvalidRequest("dive prep needs at least one of intent, focus, constraints, knowledge, workflow, sources")
	}
	if err := m.write(m.layout.WorkingDivePath(), &man); err != nil {
		return nil, err
	}
	if err := m.setCurrent(""); err != nil {
		return nil, err
	}
	return &man, nil
}

// Create writes a named manifest and makes it current. It fails with
// ALREADY_EXISTS when the name is taken, unless overwrite is set.
func (m *Manager) Create(name string, man Manifest, overwrite bool) (*Manifest, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if !overwrite && m.exists(name) {
		return nil, errors.NewAlreadyExists("dive", name)
	}

	now := m.now().UTC()
	man.Name = name
	man.CreatedAt, man.UpdatedAt = now, now
	if strings.TrimSpace(man.Body) == "" {
		man.Render()
	}
	if err := m.write(m.layout.DivePath(name), &man); err != nil {
		return nil, err
	}
	if err := m.setCurrent(name); err != nil {
		return nil, err
	}
	return &man, nil
}

// Switch makes a named manifest current. An unknown name fails with
// NOT_FOUND and leaves the pointer untouched.
func (m *Manager) Switch(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if !m.exists(name) {
		return errors.NewNotFound("dive", name)
	}
	return m.setCurrent(name)
}

// Save snapshots the working manifest under name and makes it current.
func (m *Manager) Save(name string, overwrite bool) (*Manifest, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	working, err := m.read(m.layout.WorkingDivePath(), "working dive", "dive_context.md")
	if err != nil {
		return nil, err
	}
	if !overwrite && m.exists(name) {
		return nil, errors.NewAlreadyExists("dive", name)
	}

	snapshot := *working
	snapshot.Name = name
	snapshot.UpdatedAt = m.now().UTC()
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = snapshot.UpdatedAt
	}
	// Keep the body byte-for-byte; only the title line names the dive.
	snapshot.Body = strings.Replace(snapshot.Body, "# Dive: working", "# Dive: "+name, 1)

	if err := m.write(m.layout.DivePath(name), &snapshot); err != nil {
		return nil, err
	}
	if err := m.setCurrent(name); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// Delete removes a named manifest. The current one cannot be deleted.
func (m *Manager) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	current, err := m.Current()
	if err != nil {
		return err
	}
	if current == name {
		return errors.NewCannotDeleteCurrent(name)
	}
	if err := os.Remove(m.layout.DivePath(name)); err != nil {
		if os.IsNotExist(err) {
			return errors.NewNotFound("dive", name)
		}
		return errors.NewIO("delete dive "+name, err)
	}
	return nil
}

// Clear points back at the working manifest. Named manifests are kept.
func (m *Manager) Clear() error {
	return m.setCurrent("")
}

// List returns every named manifest sorted by name.
func (m *Manager) List() (*Listing, error) {
	current, err := m.Current()
	if err != nil {
		return nil, err
	}
	listing := &Listing{Current: current, Dives: []Info{}}
	if _, err := os.Stat(m.layout.WorkingDivePath()); err == nil {
		listing.Working = true
	}

	matches, err := filepath.Glob(filepath.Join(m.layout.DivesDir(), "*.md"))
	if err != nil {
		return nil, errors.NewIO("list dives", err)
	}
	for _, path := range matches {
		name := strings.TrimSuffix(filepath.Base(path), ".md")
		info := Info{Name: name, Current: name == current}
		if man, err := m.read(path, "dive", name); err == nil {
			info.Intent = man.Intent
			info.UpdatedAt = man.UpdatedAt
		}
		listing.Dives = append(listing.Dives, info)
	}
	sort.Slice(listing.Dives, func(i, j int) bool { return listing.Dives[i].Name < listing.Dives[j].Name })
	return listing, nil
}

// Show returns a manifest by name; "" means the current one.
func (m *Manager) Show(name string) (*Manifest, error) {
	if name == "" {
		current, err := m.Current()
		if err != nil {
			return nil, err
		}
		name = current
	}
	if name == "" {
		return m.read(m.layout.WorkingDivePath(), "working dive", "dive_context.md")
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return m.read(m.layout.DivePath(name), "dive", name)
}

// CurrentBody returns the body of the current manifest, "" when the working
// manifest is current but absent.
func (m *Manager) CurrentBody() (string, error) {
	man, err := m.Show("")
	if err != nil {
		current, cerr := m.Current()
		if cerr == nil && current == "" && errors.Is(err, errors.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return man.Body, nil
}

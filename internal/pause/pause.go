// Package pause persists the two independent gates that stop distillation
// (extract) and context injection (compile).
package pause

import (
	"encoding/json"
	"strings"

	"github.com/hpungsan/wm/internal/errors"
	"github.com/hpungsan/wm/internal/state"
)

// Scope selects which gate an operation touches.
type Scope string

const (
	ScopeExtract Scope = "extract"
	ScopeCompile Scope = "compile"
	ScopeBoth    Scope = "both"
)

// ParseScope accepts extract, compile, both (or "" for both), case-insensitive.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeBoth:
		return ScopeBoth, nil
	case ScopeExtract:
		return ScopeExtract, nil
	case ScopeCompile:
		return ScopeCompile, nil
	}
	return "", errors.NewInvalidRequest("scope must be one of: extract, compile, both")
}

// State is the persisted pause state. Both default to false.
type State struct {
	ExtractPaused bool `json:"extract_paused"`
	CompilePaused bool `json:"compile_paused"`
}

// Controller reads and writes pause_state.json.
type Controller struct {
	path string
}

// New returns a controller for the pause file at path.
func New(path string) *Controller {
	return &Controller{path: path}
}

// Status returns the current state. A missing file means nothing is paused.
func (c *Controller) Status() (State, error) {
	data, err := state.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return State{}, nil
		}
		return State{}, err
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, errors.NewParseError(c.path, err)
	}
	return s, nil
}

// ExtractPaused reports whether distillation is paused.
func (c *Controller) ExtractPaused() (bool, error) {
	s, err := c.Status()
	return s.ExtractPaused, err
}

// CompilePaused reports whether compilation is paused.
func (c *Controller) CompilePaused() (bool, error) {
	s, err := c.Status()
	return s.CompilePaused, err
}

// Pause pauses scope. Pausing an already-paused scope is a no-op.
func (c *Controller) Pause(scope Scope) (State, error) {
	return c.set(scope, true)
}

// Resume resumes scope. Resuming an active scope is a no-op.
func (c *Controller) Resume(scope Scope) (State, error) {
	return c.set(scope, false)
}

func (c *Controller) set(scope Scope, paused bool) (State, error) {
	s, err := c.Status()
	if err != nil {
		return State{}, err
	}
	next := s
	switch scope {
	case ScopeExtract:
		next.ExtractPaused = paused
	case ScopeCompile:
		next.CompilePaused = paused
	case ScopeBoth:
		next.ExtractPaused = paused
		next.CompilePaused = paused
	default:
		return State{}, errors.NewInvalidRequest("unknown scope: " + string(scope))
	}
	if next == s && c.exists() {
		return s, nil
	}

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return State{}, errors.NewInternal(err)
	}
	if err := state.WriteFileAtomic(c.path, append(data, '\n')); err != nil {
		return State{}, err
	}
	return next, nil
}

func (c *Controller) exists() bool {
	_, err := state.ReadFile(c.path)
	return err == nil
}

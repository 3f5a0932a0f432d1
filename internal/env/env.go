// Package env reads the process-level toggles once at startup.
package env

import (
	"os"
	"strings"
)

const (
	Disabled         = "WM_DISABLED"
	SuperegoDisabled = "SUPEREGO_DISABLED"
	ProjectDir       = "CLAUDE_PROJECT_DIR"
)

// Toggles are the environment switches wm honors.
type Toggles struct {
	// Disabled makes every command a silent no-op.
	Disabled bool
	// Guarded is set inside generation subprocesses.
	Guarded bool
	// ProjectDir overrides project root discovery.
	ProjectDir string
}

// Read returns the toggles from the current process environment.
func Read() Toggles {
	return FromLookup(os.LookupEnv)
}

// FromLookup builds Toggles from any lookup function.
func FromLookup(lookup func(string) (string, bool)) Toggles {
	get := func(k string) string {
		v, _ := lookup(k)
		return v
	}
	return Toggles{
		Disabled:   truthy(get(Disabled)),
		Guarded:    truthy(get(SuperegoDisabled)),
		ProjectDir: strings.TrimSpace(get(ProjectDir)),
	}
}

// Off reports whether commands should do nothing.
func (t Toggles) Off() bool {
	return t.Disabled || t.Guarded
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

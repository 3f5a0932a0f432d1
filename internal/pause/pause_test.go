package pause

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/wm/internal/errors"
)

func newController(t *testing.T) (*Controller, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".wm", "pause_state.json")
	return New(path), path
}

func TestStatus_DefaultsActive(t *testing.T) {
	c, _ := newController(t)
	s, err := c.Status()
	require.NoError(t, err)
	require.Equal(t, State{}, s)
}

func TestPause_ScopesAreIndependent(t *testing.T) {
	c, _ := newController(t)

	s, err := c.Pause(ScopeExtract)
	require.NoError(t, err)
	require.Equal(t, State{ExtractPaused: true}, s)

	compilePaused, err := c.CompilePaused()
	require.NoError(t, err)
	require.False(t, compilePaused)

	s, err = c.Pause(ScopeCompile)
	require.NoError(t, err)
	require.Equal(t, State{ExtractPaused: true, CompilePaused: true}, s)

	s, err = c.Resume(ScopeExtract)
	require.NoError(t, err)
	require.Equal(t, State{CompilePaused: true}, s)
}

func TestPause_Idempotent(t *testing.T) {
	c, path := newController(t)

	_, err := c.Pause(ScopeBoth)
	require.NoError(t, err)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	s, err := c.Pause(ScopeBoth)
	require.NoError(t, err)
	require.Equal(t, State{ExtractPaused: true, CompilePaused: true}, s)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, before, after)

	// Resume twice is also fine
	_, err = c.Resume(ScopeBoth)
	require.NoError(t, err)
	s, err = c.Resume(ScopeBoth)
	require.NoError(t, err)
	require.Equal(t, State{}, s)
}

func TestPause_SurvivesReload(t *testing.T) {
	c, path := newController(t)
	_, err := c.Pause(ScopeCompile)
	require.NoError(t, err)

	paused, err := New(path).CompilePaused()
	require.NoError(t, err)
	require.True(t, paused)
}

func TestStatus_Corrupt(t *testing.T) {
	c, path := newController(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0600))

	_, err := c.Status()
	require.True(t, errors.Is(err, errors.ErrParse))
}

func TestParseScope(t *testing.T) {
	tests := []struct {
		in      string
		want    Scope
		wantErr bool
	}{
		{"", ScopeBoth, false},
		{"both", ScopeBoth, false},
		{"Extract", ScopeExtract, false},
		{" compile ", ScopeCompile, false},
		{"everything", "", true},
	}
	for _, tt := range tests {
		got, err := ParseScope(tt.in)
		if tt.wantErr {
			require.True(t, errors.Is(err, errors.ErrInvalidRequest))
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tt.want, got)
	}
}

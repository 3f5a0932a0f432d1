package dive

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/wm/internal/errors"
	"github.com/hpungsan/wm/internal/state"
)

func newManager(t *testing.T) (*Manager, state.Layout) {
	t.Helper()
	layout := state.NewLayout(t.TempDir())
	require.NoError(t, layout.Init())
	m := New(layout)
	m.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return m, layout
}

func TestRender(t *testing.T) {
	m := Manifest{
		Name:        "auth",
		Intent:      "Fix token refresh",
		Constraints: []string{"no new deps", " "},
		Workflow:    []string{"reproduce", "fix", "test"},
	}
	want := "# Dive: auth\n\n" +
		"## Intent\n\nFix token refresh\n\n" +
		"## Constraints\n\n- no new deps\n\n" +
		"## Workflow\n\n1. reproduce\n2. fix\n3. test\n"
	require.Equal(t, want, m.Render())
	require.Equal(t, want, m.Body)

	empty := Manifest{Name: "x"}
	require.Equal(t, "", empty.Render())
	require.True(t, empty.Empty())
}

func TestMarshalParse(t *testing.T) {
	m := Manifest{
		Name:      "auth",
		Intent:    "Fix token refresh",
		Sources:   []string{"src/auth.go"},
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	m.Render()

	data, err := m.Marshal()
	require.NoError(t, err)
	require.True(t, len(data) > 4 && string(data[:4]) == "---\n")

	got, err := Parse(data)
	require.NoError(t, err)
	m.Body = strings.TrimSpace(m.Body)
	require.Empty(t, cmp.Diff(&m, got))
}

func TestParse_NoFrontmatter(t *testing.T) {
	got, err := Parse([]byte("\n# Hand written\n\n- item\n"))
	require.NoError(t, err)
	require.Equal(t, "# Hand written\n\n- item", got.Body)
	require.Empty(t, got.Name)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("---\nname: x\nno close"))
	require.True(t, errors.Is(err, errors.ErrParse))

	_, err = Parse([]byte("---\nname: [unclosed\n---\nbody"))
	require.True(t, errors.Is(err, errors.ErrParse))
}

func TestValidateName(t *testing.T) {
	for _, ok := range []string{"auth", "auth-v2", "a.b_c", "X1"} {
		require.NoError(t, ValidateName(ok), ok)
	}
	for _, bad := range []string{"", ".hidden", "a/b", "..", "a..b", "with space", strings.Repeat("a", 65)} {
		require.True(t, errors.Is(ValidateName(bad), errors.ErrInvalidRequest), "%q", bad)
	}
}

func TestPrep_BecomesCurrent(t *testing.T) {
	m, layout := newManager(t)
	man, err := m.Prep(Manifest{Intent: "explore caching"})
	require.NoError(t, err)
	require.Contains(t, man.Body, "# Dive: working")

	current, err := m.Current()
	require.NoError(t, err)
	require.Equal(t, "", current)

	body, err := m.CurrentBody()
	require.NoError(t, err)
	require.Contains(t, body, "explore caching")
	require.FileExists(t, layout.WorkingDivePath())
}

func TestPrep_RequiresContent(t *testing.T) {
	m, _ := newManager(t)
	_, err := m.Prep(Manifest{})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestCreate_AlreadyExists(t *testing.T) {
	m, _ := newManager(t)

	_, err := m.Create("auth", Manifest{Intent: "one"}, false)
	require.NoError(t, err)

	_, err = m.Create("auth", Manifest{Intent: "two"}, false)
	require.True(t, errors.Is(err, errors.ErrAlreadyExists), "got %v", err)

	man, err := m.Create("auth", Manifest{Intent: "two"}, true)
	require.NoError(t, err)
	require.Equal(t, "two", man.Intent)

	shown, err := m.Show("auth")
	require.NoError(t, err)
	require.Equal(t, "two", shown.Intent)
}

func TestSwitch_UnknownLeavesPointer(t *testing.T) {
	m, layout := newManager(t)
	_, err := m.Create("auth", Manifest{Intent: "one"}, false)
	require.NoError(t, err)
	before, err := os.ReadFile(layout.DivePointerPath())
	require.NoError(t, err)

	err = m.Switch("nonexistent-name")
	require.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)

	after, err := os.ReadFile(layout.DivePointerPath())
	require.NoError(t, err)
	require.Equal(t, before, after)
	current, err := m.Current()
	require.NoError(t, err)
	require.Equal(t, "auth", current)
}

func TestSwitch(t *testing.T) {
	m, _ := newManager(t)
	_, err := m.Create("a", Manifest{Intent: "first"}, false)
	require.NoError(t, err)
	_, err = m.Create("b", Manifest{Intent: "second"}, false)
	require.NoError(t, err)

	require.NoError(t, m.Switch("a"))
	body, err := m.CurrentBody()
	require.NoError(t, err)
	require.Contains(t, body, "first")
}

func TestSave_SnapshotsWorking(t *testing.T) {
	m, _ := newManager(t)

	_, err := m.Save("snap", false)
	require.True(t, errors.Is(err, errors.ErrNotFound), "save without working manifest: %v", err)

	_, err = m.Prep(Manifest{Intent: "explore caching", Focus: "lru"})
	require.NoError(t, err)

	saved, err := m.Save("snap", false)
	require.NoError(t, err)
	require.Equal(t, "snap", saved.Name)
	require.Contains(t, saved.Body, "# Dive: snap")
	require.Contains(t, saved.Body, "explore caching")

	current, err := m.Current()
	require.NoError(t, err)
	require.Equal(t, "snap", current)

	_, err = m.Save("snap", false)
	require.True(t, errors.Is(err, errors.ErrAlreadyExists))
	_, err = m.Save("snap", true)
	require.NoError(t, err)
}

func TestDelete(t *testing.T) {
	m, layout := newManager(t)
	_, err := m.Create("a", Manifest{Intent: "first"}, false)
	require.NoError(t, err)
	_, err = m.Create("b", Manifest{Intent: "second"}, false)
	require.NoError(t, err)

	err = m.Delete("b")
	require.True(t, errors.Is(err, errors.ErrCannotDeleteCurrent), "got %v", err)

	require.NoError(t, m.Delete("a"))
	require.NoFileExists(t, layout.DivePath("a"))
	require.FileExists(t, layout.DivePath("b"))

	err = m.Delete("a")
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestClearAndList(t *testing.T) {
	m, _ := newManager(t)
	_, err := m.Create("b", Manifest{Intent: "second"}, false)
	require.NoError(t, err)
	_, err = m.Create("a", Manifest{Intent: "first"}, false)
	require.NoError(t, err)

	listing, err := m.List()
	require.NoError(t, err)
	require.Equal(t, "a", listing.Current)
	require.False(t, listing.Working)
	require.Len(t, listing.Dives, 2)
	require.Equal(t, "a", listing.Dives[0].Name)
	require.True(t, listing.Dives[0].Current)
	require.Equal(t, "second", listing.Dives[1].Intent)

	require.NoError(t, m.Clear())
	listing, err = m.List()
	require.NoError(t, err)
	require.Equal(t, "", listing.Current)
	require.Len(t, listing.Dives, 2, "clear must keep named dives")

	// Working manifest absent: nothing to inject
	body, err := m.CurrentBody()
	require.NoError(t, err)
	require.Equal(t, "", body)
}

func TestCurrentBody_DanglingPointer(t *testing.T) {
	m, layout := newManager(t)
	_, err := m.Create("gone", Manifest{Intent: "x"}, false)
	require.NoError(t, err)
	require.NoError(t, os.Remove(layout.DivePath("gone")))

	_, err = m.CurrentBody()
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestCurrent_CorruptPointer(t *testing.T) {
	m, layout := newManager(t)
	require.NoError(t, os.WriteFile(layout.DivePointerPath(), []byte("nope"), 0600))
	_, err := m.Current()
	require.True(t, errors.Is(err, errors.ErrParse))
}

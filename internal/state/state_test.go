package state

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/wm/internal/errors"
)

func TestWriteFileAtomic_CreatesAndReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.json")

	require.NoError(t, WriteFileAtomic(path, []byte("one")))
	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "one", string(got))

	require.NoError(t, WriteFileAtomic(path, []byte("two")))
	got, err = ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "two", string(got))

	// No temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestWriteFileAtomic_RefusesSymlinkDestination(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := t.TempDir()
	target := filepath.Join(dir, "real.md")
	require.NoError(t, os.WriteFile(target, []byte("keep"), 0600))
	link := filepath.Join(dir, "guardrails.md")
	require.NoError(t, os.Symlink(target, link))

	err := WriteFileAtomic(link, []byte("overwrite"))
	require.Error(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "keep", string(data))
}

func TestAppendFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.md")

	require.NoError(t, AppendFileAtomic(path, []byte("a\n")))
	require.NoError(t, AppendFileAtomic(path, []byte("b\n")))

	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "a\nb\n", string(got))
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.md"))
	require.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)
}

func TestReadText_MissingIsEmpty(t *testing.T) {
	text, err := ReadText(filepath.Join(t.TempDir(), "nope.md"))
	require.NoError(t, err)
	require.Empty(t, text)
}

func TestTryLock_Exclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "distill", "distill.lock")

	lock, err := TryLock(path)
	require.NoError(t, err)

	_, err = TryLock(path)
	require.True(t, errors.Is(err, errors.ErrLocked), "got %v", err)

	require.NoError(t, lock.Release())

	again, err := TryLock(path)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestLayout_Paths(t *testing.T) {
	l := NewLayout("/proj")
	require.Equal(t, filepath.Join("/proj", ".wm"), l.Dir)
	require.Equal(t, filepath.Join("/proj", ".wm", "distill", "cache.json"), l.CachePath())
	require.Equal(t, filepath.Join("/proj", ".wm", "dives", "auth.md"), l.DivePath("auth"))
	require.Equal(t, filepath.Join("/proj", ".wm", "sessions", "a-b", "working_set.md"), l.WorkingSetPath("a/../b"))
}

func TestLayout_Init(t *testing.T) {
	l := NewLayout(t.TempDir())
	require.False(t, l.Initialized())
	require.True(t, errors.Is(l.RequireInitialized(), errors.ErrNotInitialized))

	require.NoError(t, l.Init())
	require.NoError(t, l.Init())
	require.True(t, l.Initialized())

	info, err := os.Stat(l.DivesDir())
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "src", "pkg")
	require.NoError(t, os.MkdirAll(nested, 0700))

	// No .wm anywhere: cwd is the root
	require.Equal(t, nested, FindProjectRoot(nested, ""))

	require.NoError(t, os.MkdirAll(filepath.Join(root, DirName), 0700))
	require.Equal(t, root, FindProjectRoot(nested, ""))

	// Env override wins
	require.Equal(t, "/elsewhere", FindProjectRoot(nested, "/elsewhere"))
}

func TestSanitizeForFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"auth-refactor", "auth-refactor"},
		{"../../etc/passwd", "etc-passwd"},
		{"a\\b", "a-b"},
		{"", "unnamed"},
		{"--", "unnamed"},
		{"tab\there", "tabhere"},
	}
	for _, tt := range tests {
		if got := SanitizeForFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeForFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

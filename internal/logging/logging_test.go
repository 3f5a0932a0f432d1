package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWithWriters_Levels(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriters(false, &buf)
	log.Debug("hidden")
	log.Info("shown")
	require.NoError(t, log.Sync())

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
	require.Contains(t, buf.String(), "INFO")

	buf.Reset()
	log = NewWithWriters(true, &buf)
	log.Debug("now visible")
	require.Contains(t, buf.String(), "now visible")
}

func TestNewWithWriters_NoWriters(t *testing.T) {
	log := NewWithWriters(true)
	log.Info("dropped")
}

func TestOpen_AppendsToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wm.log")

	log, closeFn, err := Open(path, false)
	require.NoError(t, err)
	log.Info("first")
	require.NoError(t, closeFn())

	log, closeFn, err = Open(path, false)
	require.NoError(t, err)
	log.Info("second")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "first")
	require.Contains(t, string(data), "second")
}

func TestOpen_MissingDirCreatesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".wm", "wm.log")

	log, closeFn, err := Open(path, false)
	require.NoError(t, err)
	log.Info("nowhere")
	require.NoError(t, closeFn())

	_, err = os.Stat(filepath.Dir(path))
	require.True(t, os.IsNotExist(err))
}

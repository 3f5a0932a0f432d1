package state

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/wm/internal/errors"
)

// WriteFileAtomic replaces path with data. Readers observe either the old or
// the new content, never a partial write.
func WriteFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.NewIO("create directory", err)
	}

	// Write to temp file first, then atomic rename to preserve existing file on failure
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.NewIO("create temp file", err)
	}

	// Clean up temp file on failure (original file is preserved)
	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return errors.NewIO("write "+filepath.Base(path), err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewIO("sync "+filepath.Base(path), err)
	}

	// Close before atomic replace (required on Windows; fine elsewhere).
	if err := file.Close(); err != nil {
		return errors.NewIO("close "+filepath.Base(path), err)
	}
	file = nil

	// os.Rename would replace the link itself, but a symlinked state file means someone is meddling
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest(fmt.Sprintf("refusing to replace symlink %s", path))
	}

	if err := os.Rename(tempPath, path); err != nil {
		return errors.NewIO("replace "+filepath.Base(path), err)
	}

	success = true
	return nil
}

// AppendFileAtomic appends data to path (creating it if missing) by rewriting
// the whole file through WriteFileAtomic.
func AppendFileAtomic(path string, data []byte) error {
	existing, err := ReadFile(path)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return err
	}
	return WriteFileAtomic(path, append(existing, data...))
}

// ReadFile reads path without following a final-component symlink.
// Returns a NOT_FOUND error when the file does not exist.
func ReadFile(path string) ([]byte, error) {
	file, err := openFileNoFollowRead(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.NewIO("read "+filepath.Base(path), err)
	}
	return data, nil
}

// ReadText reads path and trims surrounding whitespace. A missing file is
// reported as ("", nil).
func ReadText(path string) (string, error) {
	data, err := ReadFile(path)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// SanitizeForFilename sanitizes a string for safe use in a filename.
// Removes/replaces characters that could be used for path traversal or injection.
func SanitizeForFilename(s string) string {
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, "\\", "-")
	s = strings.ReplaceAll(s, "..", "-")

	var result strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}
	s = result.String()

	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")

	if s == "" {
		s = "unnamed"
	}
	return s
}

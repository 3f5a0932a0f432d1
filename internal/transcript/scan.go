package transcript

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"
	"time"

	"github.com/hpungsan/wm/internal/errors"
)

// maxLineBytes bounds a single transcript line. Tool results can be large.
const maxLineBytes = 16 * 1024 * 1024

type rawLine struct {
	No   int
	Data []byte
}

// readLine returns the next line, newline included. A line longer than
// maxLineBytes is consumed to its end but returned empty with tooLong set.
func readLine(r *bufio.Reader, buf []byte) (line []byte, tooLong bool, err error) {
	buf = buf[:0]
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(chunk) > maxLineBytes {
				tooLong, buf = true, buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		return buf, tooLong, err
	}
}

// scanLines yields non-blank lines of path. An oversized line is yielded as a
// PARSE_ERROR and reading continues with the next one. Opening happens on each
// iteration, so the sequence can be ranged over more than once.
func scanLines(path string) iter.Seq2[rawLine, error] {
	return func(yield func(rawLine, error) bool) {
		file, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				yield(rawLine{}, errors.NewNotFound("transcript", path))
				return
			}
			yield(rawLine{}, errors.NewIO("open transcript", err))
			return
		}
		defer file.Close()

		reader := bufio.NewReaderSize(file, 64*1024)
		var buf []byte
		no := 0
		for {
			data, tooLong, err := readLine(reader, buf)
			buf = data
			if err != nil && err != io.EOF {
				yield(rawLine{}, errors.NewIO(fmt.Sprintf("read transcript %s after line %d", path, no), err))
				return
			}
			if len(data) == 0 && !tooLong && err == io.EOF {
				return
			}
			no++

			if tooLong {
				tooLongErr := fmt.Errorf("line exceeds %d bytes", maxLineBytes)
				if !yield(rawLine{No: no}, lineError(path, no, tooLongErr)) {
					return
				}
			} else if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 {
				// buf is reused for the next line
				if !yield(rawLine{No: no, Data: append([]byte(nil), trimmed...)}, nil) {
					return
				}
			}
			if err == io.EOF {
				return
			}
		}
	}
}

// lineError wraps a JSON decode failure with its location.
func lineError(path string, no int, err error) error {
	return errors.NewParseError(fmt.Sprintf("%s line %d", path, no), err)
}

// decodeText accepts a JSON string or an array of {type,text} blocks.
func decodeText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var buf bytes.Buffer
		for _, b := range blocks {
			if b.Text == "" {
				continue
			}
			if buf.Len() > 0 {
				buf.WriteString("\n")
			}
			buf.WriteString(b.Text)
		}
		return buf.String()
	}
	return string(raw)
}

func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts
	}
	return time.Time{}
}

// Fingerprint hashes the transcript content. Any append changes it.
func Fingerprint(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewNotFound("transcript", path)
		}
		return "", errors.NewIO("open transcript", err)
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", errors.NewIO("hash transcript", err)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

// statSession fills ModTime and SizeBytes from the file system.
func statSession(s *Session) error {
	info, err := os.Stat(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NewNotFound("transcript", s.Path)
		}
		return errors.NewIO("stat transcript", err)
	}
	s.ModTime = info.ModTime()
	s.SizeBytes = info.Size()
	return nil
}

// Package compress rewrites a curated knowledge file into a shorter, more
// abstract form with one generation call, keeping a timestamped backup of
// the original.
package compress

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/wm/internal/env"
	"github.com/hpungsan/wm/internal/errors"
	"github.com/hpungsan/wm/internal/generate"
	"github.com/hpungsan/wm/internal/knowledge"
	"github.com/hpungsan/wm/internal/protocol"
	"github.com/hpungsan/wm/internal/state"
)

// BackupTimeFormat stamps backup file names.
const BackupTimeFormat = "20060102T150405"

const backupExt = ".backup"

// Target names a compressible file.
type Target string

const (
	TargetGuardrails Target = "guardrails"
	TargetMetis      Target = "metis"
)

// ParseTarget accepts "guardrails" or "metis" (a trailing ".md" is allowed).
func ParseTarget(s string) (Target, error) {
	switch Target(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), ".md")) {
	case TargetGuardrails:
		return TargetGuardrails, nil
	case TargetMetis:
		return TargetMetis, nil
	}
	return "", errors.NewInvalidRequest("target must be one of: guardrails, metis")
}

func (t Target) kind() knowledge.Kind {
	if t == TargetGuardrails {
		return knowledge.Guardrail
	}
	return knowledge.Metis
}

// Result describes a compress or restore.
type Result struct {
	Target       Target `json:"target"`
	Path         string `json:"path"`
	Backup       string `json:"backup"`
	BeforeChars  int    `json:"before_chars"`
	AfterChars   int    `json:"after_chars"`
	BeforeItems  int    `json:"before_items"`
	AfterItems   int    `json:"after_items"`
	BeforeTokens int    `json:"before_tokens"`
	AfterTokens  int    `json:"after_tokens"`
	// Reduction is the percentage of characters removed.
	Reduction int `json:"reduction_percent"`
}

// Engine compresses curated files of one project.
type Engine struct {
	Layout    state.Layout
	Generator generate.Generator
	Guard     *generate.Guard
	Toggles   env.Toggles
	Logger    *zap.Logger
	Now       func() time.Time
}

func (e *Engine) log() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) path(t Target) string {
	if t == TargetGuardrails {
		return e.Layout.GuardrailsPath()
	}
	return e.Layout.MetisPath()
}

// lock serializes compress with distillation, which also rewrites the
// curated files.
func (e *Engine) lock() (*state.Lock, error) {
	if err := e.Layout.RequireInitialized(); err != nil {
		return nil, err
	}
	return state.TryLock(e.Layout.LockPath())
}

// Compress rewrites target. It returns a NO_CHANGE error, and writes nothing,
// when the file is empty, the generator declines, or the output is empty or
// identical to the input.
func (e *Engine) Compress(ctx context.Context, t Target) (*Result, error) {
	if e.Toggles.Off() {
		return nil, errors.NewNoChange("wm is disabled in this environment")
	}
	if e.Guard.Active() {
		return nil, errors.NewNoChange("a generation call is already in progress")
	}
	if e.Generator == nil {
		return nil, errors.NewInvalidRequest("compress requires a generator")
	}
	lock, err := e.lock()
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	path := e.path(t)
	data, err := state.ReadFile(path)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.NewNoChange(filepath.Base(path) + " does not exist")
		}
		return nil, err
	}
	before := string(data)
	if strings.TrimSpace(before) == "" {
		return nil, errors.NewNoChange(filepath.Base(path) + " is empty")
	}

	e.log().Info("compress started",
		zap.String("target", string(t)),
		zap.Int("chars", knowledge.CountChars(before)))

	gen := e.Generator
	if e.Guard != nil {
		gen = e.Guard.Wrap(gen)
	}
	out, err := gen.Generate(ctx, compressPrompt(t.kind(), before))
	if err != nil {
		return nil, err
	}

	d, perr := protocol.Parse(out, protocol.MarkerWasCompressed)
	if perr != nil {
		e.log().Warn("ambiguous compress marker", zap.Error(perr))
	}
	if !d.Found {
		e.log().Warn("compress response without marker", zap.String("target", string(t)))
		return nil, errors.NewNoChange("generator response carried no WAS_COMPRESSED marker")
	}
	if !d.Positive {
		return nil, errors.NewNoChange(filepath.Base(path) + " is already concise")
	}
	after := strings.TrimSpace(d.Payload)
	if after == "" {
		return nil, errors.NewNoChange("generator returned empty content")
	}
	if after == strings.TrimSpace(before) {
		return nil, errors.NewNoChange("generator returned identical content")
	}

	backup, err := e.writeBackup(path, data)
	if err != nil {
		return nil, err
	}
	if err := state.WriteFileAtomic(path, []byte(after+"\n")); err != nil {
		return nil, err
	}

	res := measure(t, path, before, after)
	res.Backup = backup
	e.log().Info("compress finished",
		zap.String("target", string(t)),
		zap.String("backup", filepath.Base(backup)),
		zap.Int("reduction_percent", res.Reduction))
	return res, nil
}

// Restore replaces target with its newest backup, byte for byte.
func (e *Engine) Restore(t Target) (*Result, error) {
	lock, err := e.lock()
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	path := e.path(t)
	backups, err := Backups(path)
	if err != nil {
		return nil, err
	}
	if len(backups) == 0 {
		return nil, errors.NewNotFound("backup", filepath.Base(path))
	}
	latest := backups[len(backups)-1]

	data, err := state.ReadFile(latest)
	if err != nil {
		return nil, err
	}
	current, err := state.ReadText(path)
	if err != nil {
		return nil, err
	}
	if err := state.WriteFileAtomic(path, data); err != nil {
		return nil, err
	}

	res := measure(t, path, current, string(data))
	res.Backup = latest
	e.log().Info("restored from backup", zap.String("target", string(t)), zap.String("backup", filepath.Base(latest)))
	return res, nil
}

// writeBackup stores data next to path under a fresh timestamped name.
func (e *Engine) writeBackup(path string, data []byte) (string, error) {
	stamp := e.now().UTC().Format(BackupTimeFormat)
	for n := 0; ; n++ {
		name := backupName(path, stamp, n)
		_, err := os.Lstat(name)
		if err == nil {
			continue
		}
		if !os.IsNotExist(err) {
			return "", errors.NewIO("stat backup", err)
		}
		return name, state.WriteFileAtomic(name, data)
	}
}

func backupName(path, stamp string, n int) string {
	if n == 0 {
		return path + "." + stamp + backupExt
	}
	return path + "." + stamp + "_" + strconv.Itoa(n) + backupExt
}

// Backups lists the backups of path, oldest first.
func Backups(path string) ([]string, error) {
	prefix := filepath.Base(path) + "."
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, errors.NewIO("list backups", err)
	}

	type backup struct {
		path  string
		stamp string
		n     int
	}
	var found []backup
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, backupExt) {
			continue
		}
		rest := strings.TrimSuffix(strings.TrimPrefix(name, prefix), backupExt)
		stamp, seq, _ := strings.Cut(rest, "_")
		if _, err := time.Parse(BackupTimeFormat, stamp); err != nil {
			continue
		}
		n := 0
		if seq != "" {
			if n, err = strconv.Atoi(seq); err != nil {
				continue
			}
		}
		found = append(found, backup{path: filepath.Join(filepath.Dir(path), name), stamp: stamp, n: n})
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].stamp != found[j].stamp {
			return found[i].stamp < found[j].stamp
		}
		return found[i].n < found[j].n
	})
	out := make([]string, 0, len(found))
	for _, b := range found {
		out = append(out, b.path)
	}
	return out, nil
}

func measure(t Target, path, before, after string) *Result {
	res := &Result{
		Target:       t,
		Path:         path,
		BeforeChars:  knowledge.CountChars(before),
		AfterChars:   knowledge.CountChars(after),
		BeforeItems:  knowledge.CountItems(before),
		AfterItems:   knowledge.CountItems(after),
		BeforeTokens: knowledge.EstimateTokens(before),
		AfterTokens:  knowledge.EstimateTokens(after),
	}
	if res.BeforeChars > 0 {
		res.Reduction = 100 - res.AfterChars*100/res.BeforeChars
	}
	return res
}

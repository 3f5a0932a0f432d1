// Package compile assembles the working set injected before every user turn.
// It only reads files: no generation call, no filtering, no lock.
package compile

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/wm/internal/dive"
	"github.com/hpungsan/wm/internal/env"
	"github.com/hpungsan/wm/internal/knowledge"
	"github.com/hpungsan/wm/internal/pause"
	"github.com/hpungsan/wm/internal/state"
)

// Separator joins the sources of a working set.
const Separator = "\n\n---\n\n"

// Source names.
const (
	SourceGuardrails = "guardrails"
	SourceMetis      = "metis"
	SourceDive       = "dive"
)

// Input is what the caller knows about the turn. Neither field filters content.
type Input struct {
	SessionID string `json:"session_id,omitempty"`
	Intent    string `json:"intent,omitempty"`
}

// Source is one contributing file.
type Source struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Chars int    `json:"chars"`
}

// WorkingSet is the compiled context. A zero Content is a valid result.
type WorkingSet struct {
	Content  string   `json:"content"`
	Sources  []Source `json:"sources"`
	Chars    int      `json:"chars"`
	Tokens   int      `json:"tokens_estimate"`
	Paused   bool     `json:"paused,omitempty"`
	Dive     string   `json:"dive,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Empty reports whether there is nothing to inject.
func (ws *WorkingSet) Empty() bool {
	return strings.TrimSpace(ws.Content) == ""
}

// Engine compiles working sets for one project.
type Engine struct {
	Layout  state.Layout
	Toggles env.Toggles
	Logger  *zap.Logger
	Now     func() time.Time
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

// Compile never fails. Every problem (disabled, paused, uninitialized,
// unreadable file) degrades to less or no content and is listed in Warnings.
func (e *Engine) Compile(in Input) *WorkingSet {
	ws := &WorkingSet{Sources: []Source{}}
	if e.Toggles.Off() {
		return ws
	}

	paused, err := pause.New(e.Layout.PausePath()).CompilePaused()
	if err != nil {
		ws.warn(e.log(), "pause state", err)
		return ws
	}
	if paused {
		ws.Paused = true
		return ws
	}
	if !e.Layout.Initialized() {
		return ws
	}

	var parts []string
	add := func(name, path, content string) {
		content = strings.TrimSpace(content)
		if content == "" {
			return
		}
		parts = append(parts, content)
		ws.Sources = append(ws.Sources, Source{Name: name, Path: path, Chars: knowledge.CountChars(content)})
	}

	for _, f := range []struct{ name, path string }{
		{SourceGuardrails, e.Layout.GuardrailsPath()},
		{SourceMetis, e.Layout.MetisPath()},
	} {
		content, err := state.ReadText(f.path)
		if err != nil {
			ws.warn(e.log(), f.name, err)
			continue
		}
		add(f.name, f.path, content)
	}

	dives := dive.New(e.Layout)
	body, err := dives.CurrentBody()
	if err != nil {
		ws.warn(e.log(), SourceDive, err)
	} else {
		current, _ := dives.Current()
		path := e.Layout.WorkingDivePath()
		if current != "" {
			path = e.Layout.DivePath(current)
			ws.Dive = current
		}
		add(SourceDive, path, body)
	}

	ws.Content = strings.Join(parts, Separator)
	ws.Chars = knowledge.CountChars(ws.Content)
	ws.Tokens = knowledge.EstimateTokens(ws.Content)

	if !ws.Empty() && in.SessionID != "" {
		e.writeDebug(in, ws)
	}

	e.log().Debug("compiled",
		zap.String("session", in.SessionID),
		zap.Int("sources", len(ws.Sources)),
		zap.Int("chars", ws.Chars))
	return ws
}

func (ws *WorkingSet) warn(log *zap.Logger, what string, err error) {
	log.Warn("compile degraded", zap.String("source", what), zap.Error(err))
	ws.Warnings = append(ws.Warnings, fmt.Sprintf("%s: %v", what, err))
}

// writeDebug stores the working set for inspection. Best effort.
func (e *Engine) writeDebug(in Input, ws *WorkingSet) {
	var b strings.Builder
	fmt.Fprintf(&b, "<!-- session: %s -->\n", in.SessionID)
	fmt.Fprintf(&b, "<!-- compiled: %s -->\n", e.now().UTC().Format(time.RFC3339))
	if intent := strings.TrimSpace(in.Intent); intent != "" {
		fmt.Fprintf(&b, "<!-- intent: %s -->\n", strings.ReplaceAll(strings.Join(strings.Fields(intent), " "), "--", "- -"))
	}
	b.WriteString("\n")
	b.WriteString(ws.Content)
	b.WriteString("\n")

	if err := state.WriteFileAtomic(e.Layout.WorkingSetPath(in.SessionID), []byte(b.String())); err != nil {
		e.log().Warn("write working set", zap.Error(err))
	}
}

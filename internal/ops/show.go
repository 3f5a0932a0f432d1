package ops

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hpungsan/wm/internal/cache"
	"github.com/hpungsan/wm/internal/db"
	"github.com/hpungsan/wm/internal/dive"
	"github.com/hpungsan/wm/internal/errors"
	"github.com/hpungsan/wm/internal/state"
)

// Show targets.
const (
	ShowGuardrails = "guardrails"
	ShowMetis      = "metis"
	ShowRaw        = "raw"
	ShowWorking    = "working"
	ShowSessions   = "sessions"
	ShowRuns       = "runs"
	ShowDive       = "dive"
)

// ShowTargets lists every valid target, in help order.
var ShowTargets = []string{ShowGuardrails, ShowMetis, ShowRaw, ShowWorking, ShowSessions, ShowRuns, ShowDive}

// ShowInput contains parameters for the Show operation.
type ShowInput struct {
	What      string
	SessionID string // working: which session; runs: that session's outcomes
	Name      string // dive: which manifest, "" for the current one
	Limit     int    // runs: default 20, max 100
}

// SessionInfo is one discovered transcript with its cache state.
type SessionInfo struct {
	ID            string    `json:"id"`
	Source        string    `json:"source"`
	ModTime       time.Time `json:"mod_time"`
	Size          string    `json:"size"`
	Processed     bool      `json:"processed"`
	HasKnowledge  bool      `json:"has_knowledge,omitempty"`
	LastProcessed time.Time `json:"last_processed,omitzero"`
	Error         string    `json:"error,omitempty"`
}

// OutcomeInfo is one recorded per-session outcome.
type OutcomeInfo struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ShowOutput contains the result of the Show operation. Exactly one of
// Content, Sessions, Runs or Outcomes is meaningful for a given target.
type ShowOutput struct {
	What     string        `json:"what"`
	Path     string        `json:"path,omitempty"`
	Content  string        `json:"content"`
	Hint     string        `json:"hint,omitempty"`
	Sessions []SessionInfo `json:"sessions,omitempty"`
	Runs     []RunSummary  `json:"runs,omitempty"`
	Outcomes []OutcomeInfo `json:"outcomes,omitempty"`
}

// Show returns one piece of state. Missing files are empty content with a hint.
func Show(ctx context.Context, env Env, input ShowInput) (*ShowOutput, error) {
	what := strings.ToLower(strings.TrimSpace(input.What))
	if err := env.Layout.RequireInitialized(); err != nil {
		return nil, err
	}

	out := &ShowOutput{What: what}
	switch what {
	case ShowGuardrails:
		return out, readInto(out, env.Layout.GuardrailsPath(), "No guardrails yet. Run 'wm distill' after some sessions.")
	case ShowMetis:
		return out, readInto(out, env.Layout.MetisPath(), "No metis yet. Run 'wm distill' after some sessions.")
	case ShowRaw:
		return out, readInto(out, env.Layout.LedgerPath(), "Nothing extracted yet.")
	case ShowWorking:
		path, err := workingSetPath(env.Layout, input.SessionID)
		if err != nil {
			return nil, err
		}
		if path == "" {
			out.Hint = "No working set compiled yet."
			return out, nil
		}
		return out, readInto(out, path, "No working set for session "+input.SessionID+".")
	case ShowDive:
		man, err := dive.New(env.Layout).Show(input.Name)
		if err != nil {
			if input.Name == "" && errors.Is(err, errors.ErrNotFound) {
				out.Hint = "No dive context. Run 'wm dive prep' to create one."
				return out, nil
			}
			return nil, err
		}
		out.Content = man.Body
		return out, nil
	case ShowSessions:
		sessions, err := listSessions(ctx, env)
		if err != nil {
			return nil, err
		}
		out.Sessions = sessions
		if len(sessions) == 0 {
			out.Hint = "No sessions found for this project."
		}
		return out, nil
	case ShowRuns:
		if env.DB == nil {
			return nil, errors.NewInvalidRequest("run history is not available")
		}
		if input.SessionID != "" {
			outcomes, err := db.SessionHistory(env.DB, input.SessionID)
			if err != nil {
				return nil, err
			}
			out.Outcomes = make([]OutcomeInfo, 0, len(outcomes))
			for _, o := range outcomes {
				out.Outcomes = append(out.Outcomes, OutcomeInfo{RunID: o.RunID, Status: o.Status, Error: o.Error})
			}
			return out, nil
		}
		runs, err := db.ListRuns(env.DB, clampLimit(input.Limit))
		if err != nil {
			return nil, err
		}
		out.Runs = make([]RunSummary, 0, len(runs))
		for _, r := range runs {
			out.Runs = append(out.Runs, SummarizeRun(r))
		}
		if len(runs) == 0 {
			out.Hint = "No distillation runs recorded."
		}
		return out, nil
	}
	return nil, errors.NewInvalidRequest("unknown target " + what + "; use one of: " + strings.Join(ShowTargets, ", "))
}

func readInto(out *ShowOutput, path, hint string) error {
	out.Path = path
	content, err := state.ReadText(path)
	if err != nil {
		return err
	}
	out.Content = content
	if content == "" {
		out.Hint = hint
	}
	return nil
}

// workingSetPath resolves the debug artifact for a session, or the most
// recently written one when sessionID is empty. "" means none exists.
func workingSetPath(l state.Layout, sessionID string) (string, error) {
	if sessionID != "" {
		return l.WorkingSetPath(sessionID), nil
	}
	matches, err := filepath.Glob(filepath.Join(l.SessionsDir(), "*", "working_set.md"))
	if err != nil {
		return "", errors.NewIO("list working sets", err)
	}
	var newest string
	var newestTime time.Time
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest, newestTime = m, info.ModTime()
		}
	}
	return newest, nil
}

func listSessions(ctx context.Context, env Env) ([]SessionInfo, error) {
	if env.Store == nil {
		return nil, errors.NewInvalidRequest("no transcript source configured")
	}
	sessions, err := env.Store.Discover(ctx, env.ProjectPath)
	if err != nil {
		return nil, err
	}
	c, err := cache.Load(env.Layout.CachePath())
	if err != nil {
		return nil, err
	}

	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		info := SessionInfo{
			ID:      s.ID,
			Source:  s.Source,
			ModTime: s.ModTime,
			Size:    humanize.IBytes(uint64(max(s.SizeBytes, 0))),
		}
		if e, ok := c.Get(s.ID); ok {
			info.Processed = true
			info.HasKnowledge = e.HasKnowledge
			info.LastProcessed = e.LastProcessed
			info.Error = e.Error
		}
		out = append(out, info)
	}
	return out, nil
}

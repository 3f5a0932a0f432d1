// Package ops implements the read-mostly operations shared by the CLI and the
// MCP server: init, status, show and history maintenance.
package ops

import (
	"database/sql"
	"time"

	"github.com/hpungsan/wm/internal/db"
	"github.com/hpungsan/wm/internal/state"
	"github.com/hpungsan/wm/internal/transcript"
)

// History limits
const (
	DefaultRunsLimit = 20
	MaxRunsLimit     = 100
	DefaultKeepRuns  = 50
)

// Env is what an operation may touch. DB and Store are optional; operations
// that need them report INVALID_REQUEST when they are nil.
type Env struct {
	Layout      state.Layout
	DB          *sql.DB
	Store       transcript.Store
	ProjectPath string
}

// RunSummary is a distillation run as shown to users.
type RunSummary struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	DryRun        bool      `json:"dry_run,omitempty"`
	Force         bool      `json:"force,omitempty"`
	Discovered    int       `json:"discovered"`
	Processed     int       `json:"processed"`
	Cached        int       `json:"cached"`
	Empty         int       `json:"empty"`
	Failed        int       `json:"failed"`
	Categorized   bool      `json:"categorized"`
	Guardrails    int       `json:"guardrails"`
	Metis         int       `json:"metis"`
	SkippedReason string    `json:"skipped_reason,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// SummarizeRun converts a stored run.
func SummarizeRun(r db.Run) RunSummary {
	return RunSummary{
		ID:            r.ID,
		StartedAt:     time.Unix(r.StartedAt, 0).UTC(),
		FinishedAt:    time.Unix(r.FinishedAt, 0).UTC(),
		DryRun:        r.DryRun,
		Force:         r.Force,
		Discovered:    r.Discovered,
		Processed:     r.Processed,
		Cached:        r.Cached,
		Empty:         r.Empty,
		Failed:        r.Failed,
		Categorized:   r.Categorized,
		Guardrails:    r.GuardrailsCount,
		Metis:         r.MetisCount,
		SkippedReason: r.SkippedReason,
		Error:         r.Error,
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultRunsLimit
	}
	return min(limit, MaxRunsLimit)
}

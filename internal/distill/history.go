package distill

import (
	"database/sql"

	"github.com/hpungsan/wm/internal/db"
)

// History receives every completed (non dry-run) report.
type History interface {
	RecordRun(r *Report) error
}

// DBHistory records runs in the SQLite run history.
type DBHistory struct {
	DB *sql.DB
}

// RecordRun implements History.
func (h DBHistory) RecordRun(r *Report) error {
	return db.InsertRun(h.DB, ToRun(r))
}

// ToRun converts a report to its history row.
func ToRun(r *Report) *db.Run {
	run := &db.Run{
		ID:              r.RunID,
		StartedAt:       r.StartedAt.Unix(),
		FinishedAt:      r.FinishedAt.Unix(),
		DryRun:          r.DryRun,
		Force:           r.Force,
		Discovered:      r.Totals.Discovered,
		Processed:       r.Totals.Processed,
		Cached:          r.Totals.Cached,
		Empty:           r.Totals.Empty,
		Failed:          r.Totals.Failed,
		Categorized:     r.Categorize.Ran,
		GuardrailsCount: r.Categorize.Guardrails,
		MetisCount:      r.Categorize.Metis,
		SkippedReason:   r.Skipped,
		Error:           r.Categorize.Error,
	}
	for _, s := range r.Sessions {
		run.Outcomes = append(run.Outcomes, db.SessionOutcome{
			SessionID:   s.SessionID,
			Source:      s.Source,
			Status:      s.Status,
			Fingerprint: s.Fingerprint,
			Error:       s.Error,
		})
	}
	return run
}

package db

import (
	"database/sql"
	"strings"

	"github.com/hpungsan/wm/internal/errors"
)

// Run is one recorded distillation run.
type Run struct {
	ID              string
	StartedAt       int64
	FinishedAt      int64
	DryRun          bool
	Force           bool
	Discovered      int
	Processed       int
	Cached          int
	Empty           int
	Failed          int
	Categorized     bool
	GuardrailsCount int
	MetisCount      int
	SkippedReason   string
	Error           string

	Outcomes []SessionOutcome
}

// SessionOutcome is the per-session result of a run.
type SessionOutcome struct {
	RunID       string
	SessionID   string
	Source      string
	Status      string
	Fingerprint string
	Error       string
}

// ErrUniqueConstraint is returned when an insert violates a UNIQUE constraint.
var ErrUniqueConstraint = &errors.WMError{
	Code:    "UNIQUE_CONSTRAINT",
	Status:  409,
	Message: "unique constraint violation",
}

// InsertRun stores a run and its outcomes in one transaction.
func InsertRun(db *sql.DB, r *Run) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.Exec(`
		INSERT INTO runs (
			id, started_at, finished_at, dry_run, force,
			discovered, processed, cached, empty, failed,
			categorized, guardrails_count, metis_count, skipped_reason, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.StartedAt, r.FinishedAt, boolToInt(r.DryRun), boolToInt(r.Force),
		r.Discovered, r.Processed, r.Cached, r.Empty, r.Failed,
		boolToInt(r.Categorized), r.GuardrailsCount, r.MetisCount,
		toNullString(r.SkippedReason), toNullString(r.Error),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}

	for _, o := range r.Outcomes {
		_, err := tx.Exec(`
			INSERT INTO session_outcomes (run_id, session_id, source, status, fingerprint, error)
			VALUES (?, ?, ?, ?, ?, ?)
		`, r.ID, o.SessionID, toNullString(o.Source), o.Status, toNullString(o.Fingerprint), toNullString(o.Error))
		if err != nil {
			if isUniqueConstraintError(err) {
				return ErrUniqueConstraint
			}
			return errors.NewInternal(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite reports both UNIQUE and PRIMARY KEY violations this way
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

const runColumns = `id, started_at, finished_at, dry_run, force,
	discovered, processed, cached, empty, failed,
	categorized, guardrails_count, metis_count, skipped_reason, error`

// GetRun retrieves a run and its outcomes by ID.
func GetRun(db *sql.DB, id string) (*Run, error) {
	row := db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("run", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	r.Outcomes, err = ListOutcomes(db, id)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRuns returns the most recent runs, newest first, without outcomes.
// limit <= 0 means 20.
func ListRuns(db *sql.DB, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return runs, nil
}

// ListOutcomes returns a run's per-session outcomes ordered by session ID.
func ListOutcomes(db *sql.DB, runID string) ([]SessionOutcome, error) {
	rows, err := db.Query(`
		SELECT run_id, session_id, source, status, fingerprint, error
		FROM session_outcomes WHERE run_id = ? ORDER BY session_id
	`, runID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return scanOutcomes(rows)
}

// SessionHistory returns every outcome recorded for a session, newest run first.
func SessionHistory(db *sql.DB, sessionID string) ([]SessionOutcome, error) {
	rows, err := db.Query(`
		SELECT o.run_id, o.session_id, o.source, o.status, o.fingerprint, o.error
		FROM session_outcomes o JOIN runs r ON r.id = o.run_id
		WHERE o.session_id = ?
		ORDER BY r.started_at DESC, r.id DESC
	`, sessionID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return scanOutcomes(rows)
}

// PruneRuns deletes all but the newest keep runs. Outcomes cascade.
func PruneRuns(db *sql.DB, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	result, err := db.Exec(`
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC, id DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

func scanOutcomes(rows *sql.Rows) ([]SessionOutcome, error) {
	defer rows.Close()

	out := []SessionOutcome{}
	for rows.Next() {
		var (
			o                           SessionOutcome
			source, fingerprint, errMsg sql.NullString
		)
		if err := rows.Scan(&o.RunID, &o.SessionID, &source, &o.Status, &fingerprint, &errMsg); err != nil {
			return nil, errors.NewInternal(err)
		}
		o.Source = source.String
		o.Fingerprint = fingerprint.String
		o.Error = errMsg.String
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRun scans a single row into a Run struct.
func scanRun(row rowScanner) (*Run, error) {
	var (
		r                          Run
		dryRun, force, categorized int
		skipped, errMsg            sql.NullString
	)
	err := row.Scan(
		&r.ID, &r.StartedAt, &r.FinishedAt, &dryRun, &force,
		&r.Discovered, &r.Processed, &r.Cached, &r.Empty, &r.Failed,
		&categorized, &r.GuardrailsCount, &r.MetisCount, &skipped, &errMsg,
	)
	if err != nil {
		return nil, err
	}
	r.DryRun = dryRun != 0
	r.Force = force != 0
	r.Categorized = categorized != 0
	r.SkippedReason = skipped.String
	r.Error = errMsg.String
	return &r, nil
}

// toNullString maps "" to NULL.
func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

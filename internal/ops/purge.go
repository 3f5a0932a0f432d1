package ops

import (
	"fmt"

	"github.com/hpungsan/wm/internal/db"
	"github.com/hpungsan/wm/internal/errors"
)

// PruneInput contains parameters for the Prune operation.
type PruneInput struct {
	Keep int // newest runs to keep, default 50
}

// PruneOutput contains the result of the Prune operation.
type PruneOutput struct {
	Pruned  int    `json:"pruned"`
	Kept    int    `json:"kept"`
	Message string `json:"message"`
}

// Prune deletes old distillation runs and their outcomes.
func Prune(env Env, input PruneInput) (*PruneOutput, error) {
	if env.DB == nil {
		return nil, errors.NewInvalidRequest("run history is not available")
	}
	keep := input.Keep
	if keep <= 0 {
		keep = DefaultKeepRuns
	}
	n, err := db.PruneRuns(env.DB, keep)
	if err != nil {
		return nil, err
	}
	return &PruneOutput{
		Pruned:  int(n),
		Kept:    keep,
		Message: formatPruneMessage(int(n), keep),
	}, nil
}

// formatPruneMessage creates a human-readable message for the prune result.
func formatPruneMessage(count, keep int) string {
	if count == 0 {
		return fmt.Sprintf("No runs to prune (keeping newest %d)", keep)
	}
	runWord := "run"
	if count > 1 {
		runWord = "runs"
	}
	return fmt.Sprintf("Deleted %d %s, kept newest %d", count, runWord, keep)
}

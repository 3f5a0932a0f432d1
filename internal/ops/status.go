package ops

import (
	"os"

	"github.com/hpungsan/wm/internal/cache"
	"github.com/hpungsan/wm/internal/db"
	"github.com/hpungsan/wm/internal/dive"
	"github.com/hpungsan/wm/internal/knowledge"
	"github.com/hpungsan/wm/internal/pause"
	"github.com/hpungsan/wm/internal/state"
)

// StatusOutput summarizes a project's working memory.
type StatusOutput struct {
	Root        string      `json:"root"`
	Initialized bool        `json:"initialized"`
	Pause       pause.State `json:"pause"`

	// Dive is the current dive name, "" for the working manifest.
	Dive         string `json:"dive"`
	WorkingDive  bool   `json:"working_dive"`
	CachedCount  int    `json:"cached_sessions"`
	LedgerBlocks int    `json:"ledger_blocks"`
	Guardrails   int    `json:"guardrails"`
	Metis        int    `json:"metis"`
	ErrorsLogged bool   `json:"errors_logged"`

	LastRun *RunSummary `json:"last_run,omitempty"`
}

// Status reads every state file once. An uninitialized project is reported,
// not an error.
func Status(env Env) (*StatusOutput, error) {
	l := env.Layout
	out := &StatusOutput{Root: l.Root, Initialized: l.Initialized()}
	if !out.Initialized {
		return out, nil
	}

	ps, err := pause.New(l.PausePath()).Status()
	if err != nil {
		return nil, err
	}
	out.Pause = ps

	listing, err := dive.New(l).List()
	if err != nil {
		return nil, err
	}
	out.Dive = listing.Current
	out.WorkingDive = listing.Working

	c, err := cache.Load(l.CachePath())
	if err != nil {
		return nil, err
	}
	out.CachedCount = c.Len()

	ledger, err := state.ReadText(l.LedgerPath())
	if err != nil {
		return nil, err
	}
	out.LedgerBlocks = len(knowledge.ParseLedger(ledger))

	if out.Guardrails, err = countItems(l.GuardrailsPath()); err != nil {
		return nil, err
	}
	if out.Metis, err = countItems(l.MetisPath()); err != nil {
		return nil, err
	}

	if info, err := os.Stat(l.ErrorsLogPath()); err == nil && info.Size() > 0 {
		out.ErrorsLogged = true
	}

	if env.DB != nil {
		runs, err := db.ListRuns(env.DB, 1)
		if err != nil {
			return nil, err
		}
		if len(runs) > 0 {
			last := SummarizeRun(runs[0])
			out.LastRun = &last
		}
	}
	return out, nil
}

func countItems(path string) (int, error) {
	content, err := state.ReadText(path)
	if err != nil {
		return 0, err
	}
	return knowledge.CountItems(content), nil
}

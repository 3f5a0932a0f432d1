// Package distill runs the two-pass distillation: Pass 1 extracts tacit
// knowledge from each changed session into an append-only ledger, Pass 2
// recategorizes the whole ledger into guardrails.md and metis.md.
package distill

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/wm/internal/cache"
	"github.com/hpungsan/wm/internal/env"
	"github.com/hpungsan/wm/internal/errors"
	"github.com/hpungsan/wm/internal/generate"
	"github.com/hpungsan/wm/internal/knowledge"
	"github.com/hpungsan/wm/internal/pause"
	"github.com/hpungsan/wm/internal/protocol"
	"github.com/hpungsan/wm/internal/state"
	"github.com/hpungsan/wm/internal/transcript"
)

// DefaultCarryover is used when Pipeline.Carryover is zero.
const DefaultCarryover = 5 * time.Minute

// State is a step of the run state machine, recorded in Report.Trace.
type State string

const (
	StateIdle         State = "idle"
	StateDiscovering  State = "discovering"
	StateFiltering    State = "filtering"
	StateExtracting   State = "extracting"
	StateCacheUpdate  State = "cache_update"
	StateAccumulating State = "accumulating"
	StateCategorizing State = "categorizing"
	StateWriting      State = "writing"
)

// Per-session statuses.
const (
	StatusProcessed    = "processed"
	StatusCached       = "cached"
	StatusEmpty        = "empty"
	StatusFailed       = "failed"
	StatusWouldProcess = "would_process"
)

// Reasons a run exits before discovery.
const (
	SkipDisabled      = "disabled"
	SkipExtractPaused = "extract paused"
	SkipReentrant     = "generation in progress"
)

// Options select what a single run does.
type Options struct {
	// DryRun discovers and filters but never generates or writes.
	DryRun bool `json:"dry_run"`

	// Force reprocesses every session from the start of its transcript and
	// always recategorizes.
	Force bool `json:"force"`

	// SessionID restricts the run to one session.
	SessionID string `json:"session_id,omitempty"`

	// ProjectFilter reads sessions from every project whose log directory
	// name contains it, instead of the current project.
	ProjectFilter string `json:"project_filter,omitempty"`
}

// SessionResult is the outcome for one session.
type SessionResult struct {
	SessionID    string `json:"session_id"`
	Source       string `json:"source,omitempty"`
	Status       string `json:"status"`
	Fingerprint  string `json:"fingerprint,omitempty"`
	Entries      int    `json:"entries"`
	HasKnowledge bool   `json:"has_knowledge"`
	Warnings     int    `json:"warnings,omitempty"`
	Error        string `json:"error,omitempty"`
	Message      string `json:"message,omitempty"`
}

// Totals counts sessions by status.
type Totals struct {
	Discovered      int `json:"discovered"`
	Processed       int `json:"processed"`
	Cached          int `json:"cached"`
	Empty           int `json:"empty"`
	Failed          int `json:"failed"`
	WouldProcess    int `json:"would_process"`
	KnowledgeBlocks int `json:"knowledge_blocks"`
}

// CategorizeResult describes Pass 2.
type CategorizeResult struct {
	Ran        bool   `json:"ran"`
	Reason     string `json:"reason,omitempty"`
	Guardrails int    `json:"guardrails"`
	Metis      int    `json:"metis"`
	Error      string `json:"error,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Report summarizes one run.
type Report struct {
	RunID           string           `json:"run_id"`
	StartedAt       time.Time        `json:"started_at"`
	FinishedAt      time.Time        `json:"finished_at"`
	DryRun          bool             `json:"dry_run"`
	Force           bool             `json:"force"`
	Skipped         string           `json:"skipped,omitempty"`
	Projects        []string         `json:"projects,omitempty"`
	Sessions        []SessionResult  `json:"sessions"`
	Totals          Totals           `json:"totals"`
	Categorize      CategorizeResult `json:"categorize"`
	GenerationCalls int              `json:"generation_calls"`
	Trace           []State          `json:"trace"`
}

func (r *Report) enter(s State) {
	r.Trace = append(r.Trace, s)
}

func (r *Report) add(res SessionResult) {
	r.Sessions = append(r.Sessions, res)
	switch res.Status {
	case StatusProcessed:
		r.Totals.Processed++
		if res.HasKnowledge {
			r.Totals.KnowledgeBlocks++
		}
	case StatusCached:
		r.Totals.Cached++
	case StatusEmpty:
		r.Totals.Empty++
	case StatusFailed:
		r.Totals.Failed++
	case StatusWouldProcess:
		r.Totals.WouldProcess++
	}
}

// Pipeline holds everything a run needs. Zero-valued optional fields fall
// back to defaults: no guard, no history, a no-op logger, time.Now.
type Pipeline struct {
	Layout    state.Layout
	Store     transcript.Store
	Generator generate.Generator

	Guard     *generate.Guard
	History   History
	Toggles   env.Toggles
	Carryover time.Duration
	Logger    *zap.Logger
	Now       func() time.Time
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) log() *zap.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return zap.NewNop()
}

func (p *Pipeline) generator() generate.Generator {
	if p.Guard != nil {
		return p.Guard.Wrap(p.Generator)
	}
	return p.Generator
}

// Run executes one distillation. Per-session failures are recorded in the
// report and never abort the batch. The returned error is non-nil only when
// the run as a whole could not proceed (lock held, corrupt cache, state write
// failure, cancellation); the report is returned alongside it when one exists.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Report, error) {
	started := p.now()
	report := &Report{
		RunID:     ulid.Make().String(),
		StartedAt: started,
		DryRun:    opts.DryRun,
		Force:     opts.Force,
		Sessions:  []SessionResult{},
	}
	report.enter(StateIdle)

	if p.Toggles.Off() {
		return p.finish(report, SkipDisabled), nil
	}

	paused, err := pause.New(p.Layout.PausePath()).ExtractPaused()
	if err != nil {
		return nil, err
	}
	if paused {
		return p.finish(report, SkipExtractPaused), nil
	}
	if p.Guard.Active() {
		return p.finish(report, SkipReentrant), nil
	}

	if err := p.Layout.RequireInitialized(); err != nil {
		return nil, err
	}
	if p.Store == nil || (p.Generator == nil && !opts.DryRun) {
		return nil, errors.NewInvalidRequest("pipeline requires a transcript store and a generator")
	}

	if !opts.DryRun {
		lock, err := state.TryLock(p.Layout.LockPath())
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				p.log().Warn("release distill lock", zap.Error(err))
			}
		}()
	}

	c, err := cache.Load(p.Layout.CachePath())
	if err != nil {
		return nil, err
	}

	report.enter(StateDiscovering)
	sessions, err := p.discover(ctx, opts, report)
	if err != nil {
		return nil, err
	}
	if opts.SessionID != "" {
		sessions = onlySession(sessions, opts.SessionID)
		if len(sessions) == 0 {
			return nil, errors.NewNotFound("session", opts.SessionID)
		}
	}
	report.Totals.Discovered = len(sessions)
	p.log().Info("distill started",
		zap.String("run_id", report.RunID),
		zap.Int("sessions", len(sessions)),
		zap.Bool("dry_run", opts.DryRun),
		zap.Bool("force", opts.Force))

	gen := p.generator()
	appended := 0
	for _, s := range sessions {
		if err := ctx.Err(); err != nil {
			p.finish(report, "")
			return report, err
		}
		res, wrote, err := p.processSession(ctx, gen, c, s, opts, report)
		if err != nil {
			p.finish(report, "")
			return report, err
		}
		if wrote {
			appended++
		}
		report.add(res)
	}

	if !opts.DryRun {
		if err := p.categorize(ctx, gen, appended, opts, report); err != nil {
			p.finish(report, "")
			return report, err
		}
	}

	p.finish(report, "")
	p.record(report)
	return report, nil
}

func (p *Pipeline) finish(r *Report, skipped string) *Report {
	r.Skipped = skipped
	r.FinishedAt = p.now()
	if last := r.Trace[len(r.Trace)-1]; last != StateIdle {
		r.enter(StateIdle)
	}
	if skipped != "" {
		p.log().Info("distill skipped", zap.String("reason", skipped))
	}
	return r
}

// processSession runs Filtering, Extracting and CacheUpdate for one session.
// wrote reports whether a knowledge block was appended to the ledger. A
// non-nil error aborts the whole run; per-session failures live in res.
func (p *Pipeline) processSession(ctx context.Context, gen generate.Generator, c *cache.Cache, s transcript.Session, opts Options, report *Report) (res SessionResult, wrote bool, err error) {
	log := p.log().With(zap.String("session", s.ID))
	res = SessionResult{SessionID: s.ID, Source: s.Source}

	fingerprint, ferr := transcript.Fingerprint(s.Path)
	if ferr != nil {
		log.Warn("fingerprint failed", zap.Error(ferr))
		p.fail(&res, ferr, opts)
		return res, false, nil
	}
	res.Fingerprint = fingerprint

	if !c.ShouldProcess(s.ID, fingerprint, opts.Force) {
		res.Status = StatusCached
		return res, false, nil
	}

	report.enter(StateFiltering)
	read, rerr := transcript.ReadAll(p.Store.Entries(s))
	if rerr != nil {
		log.Warn("read transcript failed", zap.Error(rerr))
		p.fail(&res, rerr, opts)
		return res, false, nil
	}
	res.Warnings = len(read.Warnings)
	for _, w := range read.Warnings {
		log.Debug("skipped transcript line", zap.String("warning", w))
	}

	lastProcessed := c.LastProcessed(s.ID)
	if opts.Force {
		lastProcessed = time.Time{}
	}
	now := p.now()
	window := transcript.WindowFor(lastProcessed, p.carryover(), now)
	entries := transcript.Filter(read.Entries, window, s.ID)
	res.Entries = len(entries)

	entry := cache.Entry{
		Fingerprint:   fingerprint,
		SizeBytes:     s.SizeBytes,
		LastProcessed: newestTimestamp(read.Entries),
		ProcessedAt:   now,
	}

	if opts.DryRun {
		res.Status = StatusWouldProcess
		if len(entries) == 0 {
			res.Status = StatusEmpty
		}
		return res, false, nil
	}

	if len(entries) == 0 {
		res.Status = StatusEmpty
		report.enter(StateCacheUpdate)
		return res, false, c.RecordProcessed(s.ID, entry)
	}

	report.enter(StateExtracting)
	report.GenerationCalls++
	out, gerr := gen.Generate(ctx, extractPrompt(s.ID, transcript.Format(entries)))
	if gerr != nil {
		if ctx.Err() != nil {
			return res, false, ctx.Err()
		}
		log.Warn("extraction failed", zap.Error(gerr))
		p.fail(&res, gerr, opts)
		entry.Error = res.Error
		report.enter(StateCacheUpdate)
		return res, false, c.RecordProcessed(s.ID, entry)
	}

	decision, perr := protocol.Parse(out, protocol.MarkerHasKnowledge)
	if perr != nil {
		// Ambiguous counts as nothing found
		log.Warn("ambiguous extraction marker", zap.Error(perr))
	}

	res.Status = StatusProcessed
	if decision.Positive && strings.TrimSpace(decision.Payload) != "" {
		block := knowledge.FormatLedgerBlock(knowledge.LedgerBlock{
			SessionID:   s.ID,
			ExtractedAt: now,
			Body:        decision.Payload,
		})
		if err := state.AppendFileAtomic(p.Layout.LedgerPath(), []byte(block)); err != nil {
			return res, false, err
		}
		res.HasKnowledge = true
		wrote = true
	}
	entry.HasKnowledge = res.HasKnowledge

	report.enter(StateCacheUpdate)
	if err := c.RecordProcessed(s.ID, entry); err != nil {
		return res, wrote, err
	}
	log.Info("session distilled", zap.Bool("has_knowledge", res.HasKnowledge), zap.Int("entries", res.Entries))
	return res, wrote, nil
}

// fail marks res failed and appends a line to errors.log (not in dry runs).
func (p *Pipeline) fail(res *SessionResult, err error, opts Options) {
	res.Status = StatusFailed
	res.Error = string(errors.CodeOf(err))
	res.Message = err.Error()
	if opts.DryRun {
		return
	}
	line := fmt.Sprintf("%s\t%s\t%s\t%s\n",
		p.now().UTC().Format(time.RFC3339), res.SessionID, res.Error, oneLine(res.Message))
	if werr := state.AppendFileAtomic(p.Layout.ErrorsLogPath(), []byte(line)); werr != nil {
		p.log().Warn("write errors.log", zap.Error(werr))
	}
}

// categorize runs Accumulating, Categorizing and Writing. Generation or
// parse failures are reported and leave the curated files untouched.
func (p *Pipeline) categorize(ctx context.Context, gen generate.Generator, appended int, opts Options, report *Report) error {
	report.enter(StateAccumulating)
	ledger, err := state.ReadText(p.Layout.LedgerPath())
	if err != nil {
		return err
	}
	blocks := knowledge.ParseLedger(ledger)

	cr := &report.Categorize
	switch {
	case len(blocks) == 0:
		cr.Reason = "ledger empty"
		return nil
	case appended > 0:
		cr.Reason = "new knowledge"
	case opts.Force:
		cr.Reason = "forced"
	case p.curatedMissing():
		cr.Reason = "curated file missing"
	default:
		cr.Reason = "no new knowledge"
		return nil
	}

	report.enter(StateCategorizing)
	report.GenerationCalls++
	out, err := gen.Generate(ctx, categorizePrompt(ledger))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		cr.Error, cr.Message = string(errors.CodeOf(err)), err.Error()
		p.log().Warn("categorization failed", zap.Error(err))
		return nil
	}

	cat, err := protocol.ParseCategorization(out)
	if err != nil {
		cr.Error, cr.Message = string(errors.CodeOf(err)), err.Error()
		p.log().Warn("categorization output unreadable", zap.Error(err))
		return nil
	}

	report.enter(StateWriting)
	if err := state.WriteFileAtomic(p.Layout.GuardrailsPath(), []byte(knowledge.RenderFile(knowledge.Guardrail, cat.Guardrails))); err != nil {
		return err
	}
	if err := state.WriteFileAtomic(p.Layout.MetisPath(), []byte(knowledge.RenderFile(knowledge.Metis, cat.Metis))); err != nil {
		return err
	}

	cr.Ran = true
	cr.Guardrails = len(cat.Guardrails)
	cr.Metis = len(cat.Metis)
	p.log().Info("categorized",
		zap.Int("ledger_blocks", len(blocks)),
		zap.Int("guardrails", cr.Guardrails),
		zap.Int("metis", cr.Metis))
	return nil
}

func (p *Pipeline) curatedMissing() bool {
	for _, path := range []string{p.Layout.GuardrailsPath(), p.Layout.MetisPath()} {
		if _, err := state.ReadFile(path); errors.Is(err, errors.ErrNotFound) {
			return true
		}
	}
	return false
}

func (p *Pipeline) carryover() time.Duration {
	if p.Carryover > 0 {
		return p.Carryover
	}
	return DefaultCarryover
}

func (p *Pipeline) record(r *Report) {
	if p.History == nil || r.DryRun {
		return
	}
	if err := p.History.RecordRun(r); err != nil {
		p.log().Warn("record run history", zap.String("run_id", r.RunID), zap.Error(err))
	}
}

// discover lists the sessions of the current project, or of the projects
// matching opts.ProjectFilter.
func (p *Pipeline) discover(ctx context.Context, opts Options, report *Report) ([]transcript.Session, error) {
	if opts.ProjectFilter == "" {
		return p.Store.Discover(ctx, p.Layout.Root)
	}
	finder, ok := p.Store.(transcript.ProjectFinder)
	if !ok {
		return nil, errors.NewInvalidRequest("transcript store cannot filter by project")
	}
	projects, err := finder.FindProjects(opts.ProjectFilter)
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, errors.NewNotFound("project matching", opts.ProjectFilter)
	}
	for _, proj := range projects {
		report.Projects = append(report.Projects, proj.ID)
	}
	return finder.DiscoverProjects(ctx, projects)
}

func onlySession(sessions []transcript.Session, id string) []transcript.Session {
	for _, s := range sessions {
		if s.ID == id {
			return []transcript.Session{s}
		}
	}
	return nil
}

func newestTimestamp(entries []transcript.Entry) time.Time {
	var newest time.Time
	for _, e := range entries {
		if e.Timestamp.After(newest) {
			newest = e.Timestamp
		}
	}
	return newest
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

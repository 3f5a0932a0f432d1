package main

import (
	"database/sql"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/wm/internal/compile"
	"github.com/hpungsan/wm/internal/compress"
	"github.com/hpungsan/wm/internal/config"
	"github.com/hpungsan/wm/internal/db"
	"github.com/hpungsan/wm/internal/distill"
	"github.com/hpungsan/wm/internal/env"
	"github.com/hpungsan/wm/internal/generate"
	"github.com/hpungsan/wm/internal/logging"
	"github.com/hpungsan/wm/internal/mcp"
	"github.com/hpungsan/wm/internal/ops"
	"github.com/hpungsan/wm/internal/state"
	"github.com/hpungsan/wm/internal/transcript"
)

// runtime carries what commands share. Fields set before load are kept,
// which is how tests inject a project, a transcript store and a generator.
type runtime struct {
	toggles   env.Toggles
	cwd       string
	globalDir string

	layout    state.Layout
	cfg       *config.Config
	logger    *zap.Logger
	closeLog  func() error
	db        *sql.DB
	store     transcript.Store
	generator generate.Generator
	guard     *generate.Guard
	now       func() time.Time

	loaded  bool
	loadErr error
}

func newRuntime(toggles env.Toggles) *runtime {
	cwd, _ := os.Getwd()
	globalDir, _ := config.DefaultGlobalDir()
	return &runtime{toggles: toggles, cwd: cwd, globalDir: globalDir}
}

// load resolves the project and opens the log. Errors are kept for ready so
// the hook can still answer.
func (rt *runtime) load(verbose bool) {
	if rt.loaded {
		return
	}
	rt.loaded = true
	rt.loadErr = rt.resolve(verbose)
}

func (rt *runtime) resolve(verbose bool) error {
	if rt.layout.Root == "" {
		rt.layout = state.NewLayout(state.FindProjectRoot(rt.cwd, rt.toggles.ProjectDir))
	}
	if rt.guard == nil {
		rt.guard = &generate.Guard{}
	}
	if rt.logger == nil {
		rt.logger = zap.NewNop()
	}

	if rt.cfg == nil {
		cfg, err := config.LoadWithRepo(rt.globalDir, rt.layout.Root)
		if err != nil {
			return err
		}
		rt.cfg = cfg
	}
	verbose = verbose || rt.cfg.Verbose

	if rt.closeLog == nil {
		logger, closeFn, err := logging.Open(rt.layout.LogPath(), verbose)
		if err != nil {
			return err
		}
		rt.logger, rt.closeLog = logger, closeFn
	}

	if rt.store == nil {
		store, err := newStore(rt.cfg)
		if err != nil {
			return err
		}
		rt.store = store
	}
	if rt.generator == nil {
		cli := generate.NewClaudeCLI(rt.cfg.Generate.Command, rt.cfg.Generate.Model, rt.cfg.GenerateTimeout())
		cli.Dir = rt.layout.Root
		rt.generator = cli
	}
	return nil
}

func newStore(cfg *config.Config) (transcript.Store, error) {
	projects, err := config.ExpandHome(cfg.Sources.ClaudeProjectsDir)
	if err != nil {
		return nil, err
	}
	store := transcript.NewMultiStore().Add(transcript.SourceClaude, transcript.NewClaudeStore(projects))
	if cfg.Sources.Codex {
		sessions, err := config.ExpandHome(cfg.Sources.CodexSessionsDir)
		if err != nil {
			return nil, err
		}
		store.Add(transcript.SourceCodex, transcript.NewCodexStore(sessions))
	}
	return store, nil
}

func (rt *runtime) ready() error {
	return rt.loadErr
}

// history opens .wm/wm.db. It returns nil without error for an
// uninitialized project so no command creates .wm implicitly.
func (rt *runtime) history() (*sql.DB, error) {
	if rt.db != nil || !rt.layout.Initialized() {
		return rt.db, nil
	}
	database, err := db.Init(rt.layout.Dir)
	if err != nil {
		return nil, err
	}
	db.ConfigurePool(database, rt.cfg)
	rt.db = database
	return database, nil
}

func (rt *runtime) close() {
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			rt.logger.Warn("close history db", zap.Error(err))
		}
		rt.db = nil
	}
	if rt.logger != nil {
		_ = rt.logger.Sync()
	}
	if rt.closeLog != nil {
		_ = rt.closeLog()
	}
}

func (rt *runtime) pipeline() *distill.Pipeline {
	p := &distill.Pipeline{
		Layout:    rt.layout,
		Store:     rt.store,
		Generator: rt.generator,
		Guard:     rt.guard,
		Toggles:   rt.toggles,
		Carryover: rt.cfg.Carryover(),
		Logger:    rt.logger,
		Now:       rt.now,
	}
	database, err := rt.history()
	if err != nil {
		rt.logger.Warn("run history unavailable", zap.Error(err))
	} else if database != nil {
		p.History = distill.DBHistory{DB: database}
	}
	return p
}

func (rt *runtime) compiler() *compile.Engine {
	return &compile.Engine{Layout: rt.layout, Toggles: rt.toggles, Logger: rt.logger, Now: rt.now}
}

func (rt *runtime) compressor() *compress.Engine {
	return &compress.Engine{
		Layout:    rt.layout,
		Generator: rt.generator,
		Guard:     rt.guard,
		Toggles:   rt.toggles,
		Logger:    rt.logger,
		Now:       rt.now,
	}
}

func (rt *runtime) opsEnv() (ops.Env, error) {
	database, err := rt.history()
	if err != nil {
		return ops.Env{}, err
	}
	return ops.Env{
		Layout:      rt.layout,
		DB:          database,
		Store:       rt.store,
		ProjectPath: rt.layout.Root,
	}, nil
}

func (rt *runtime) mcpDeps() (mcp.Deps, error) {
	p := rt.pipeline()
	database, err := rt.history()
	if err != nil {
		return mcp.Deps{}, err
	}
	return mcp.Deps{
		Layout:      rt.layout,
		Config:      rt.cfg,
		DB:          database,
		Store:       rt.store,
		ProjectPath: rt.layout.Root,
		Pipeline:    p,
		Compiler:    rt.compiler(),
		Logger:      rt.logger,
	}, nil
}

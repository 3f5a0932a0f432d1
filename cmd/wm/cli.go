package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/wm/internal/compile"
	"github.com/hpungsan/wm/internal/compress"
	"github.com/hpungsan/wm/internal/distill"
	"github.com/hpungsan/wm/internal/errors"
	"github.com/hpungsan/wm/internal/hook"
	"github.com/hpungsan/wm/internal/mcp"
	"github.com/hpungsan/wm/internal/ops"
	"github.com/hpungsan/wm/internal/pause"
	"github.com/hpungsan/wm/internal/state"
	"github.com/hpungsan/wm/internal/transcript"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(rt *runtime) *cli.App {
	app := &cli.App{
		Name:    "wm",
		Usage:   "Working memory for coding sessions",
		Version: Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Usage: "Mirror the log to stderr"},
		},
		Before: func(c *cli.Context) error {
			if rt.toggles.Off() {
				return disabled(c)
			}
			rt.load(c.Bool("verbose"))
			return nil
		},
		After: func(c *cli.Context) error {
			rt.close()
			return nil
		},
		Commands: []*cli.Command{
			initCmd(rt),
			distillCmd(rt),
			compileCmd(rt),
			compressCmd(rt),
			pauseCmd(rt, true),
			pauseCmd(rt, false),
			statusCmd(rt),
			showCmd(rt),
			diveCmd(rt),
			pruneCmd(rt),
			hookCmd(rt),
			mcpCmd(rt),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// errDisabled stops a command before it reads or writes anything.
var errDisabled = stderrors.New("wm is disabled")

// disabled answers a disabled invocation. Hooks still get an empty reply.
func disabled(c *cli.Context) error {
	if c.Args().First() == "hook" {
		fmt.Fprintln(c.App.Writer, "{}")
	}
	return errDisabled
}

// initCmd creates the init command.
func initCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Create .wm/ in the project root",
		Action: func(c *cli.Context) error {
			if err := rt.ready(); err != nil {
				return outputError(err)
			}
			output, err := ops.Init(rt.layout)
			if err != nil {
				return outputError(err)
			}
			// Creates wm.db with its schema
			if _, err := rt.history(); err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// distillCmd creates the distill command.
func distillCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "distill",
		Usage: "Extract tacit knowledge from transcripts into guardrails.md and metis.md",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Usage: "Report what would be processed; generate and write nothing"},
			&cli.BoolFlag{Name: "force", Usage: "Re-process every session from the start and re-categorize"},
			&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "Only process this session ID"},
			&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "Keep running and re-distill when transcripts change"},
			&cli.StringFlag{Name: "project", Aliases: []string{"p"}, Usage: "Read sessions from projects whose log directory name contains this text"},
		},
		Action: func(c *cli.Context) error {
			if err := rt.ready(); err != nil {
				return outputError(err)
			}
			p := rt.pipeline()
			opts := distill.Options{
				DryRun:        c.Bool("dry-run"),
				Force:         c.Bool("force"),
				SessionID:     strings.TrimSpace(c.String("session")),
				ProjectFilter: strings.TrimSpace(c.String("project")),
			}

			if !c.Bool("watch") {
				report, err := p.Run(c.Context, opts)
				if err != nil {
					return outputError(err)
				}
				return outputJSON(c.App.Writer, report)
			}

			if opts.ProjectFilter != "" {
				return outputError(errors.NewInvalidRequest("--project cannot be combined with --watch"))
			}
			if err := rt.layout.RequireInitialized(); err != nil {
				return outputError(err)
			}
			watchable, ok := rt.store.(transcript.Watchable)
			if !ok {
				return outputError(errors.NewInvalidRequest("transcript source cannot be watched"))
			}
			dirs := watchable.WatchDirs(rt.layout.Root)
			if len(dirs) == 0 {
				return outputError(errors.NewNotFound("transcript directory", rt.layout.Root))
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			err := distill.Watch(ctx, p, dirs, distill.DefaultDebounce, opts, func(r *distill.Report, err error) {
				if err != nil {
					fmt.Fprintf(c.App.ErrWriter, "distill: %v\n", err)
					return
				}
				_ = outputJSON(c.App.Writer, r)
			})
			if err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// compileCmd creates the compile command.
func compileCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "compile",
		Usage: "Assemble the working set (guardrails, metis, dive context)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "session-id", Usage: "Record the working set under this session"},
			&cli.StringFlag{Name: "intent", Usage: "What you are about to do (recorded, not filtered on)"},
			&cli.BoolFlag{Name: "plain", Usage: "Print only the compiled content"},
		},
		Action: func(c *cli.Context) error {
			if err := rt.ready(); err != nil {
				return outputError(err)
			}
			ws := rt.compiler().Compile(compile.Input{
				SessionID: c.String("session-id"),
				Intent:    c.String("intent"),
			})
			if c.Bool("plain") {
				return outputText(c.App.Writer, ws.Content)
			}
			return outputJSON(c.App.Writer, ws)
		},
	}
}

// compressCmd creates the compress command.
func compressCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "compress",
		Usage:     "Synthesize guardrails.md or metis.md into fewer, broader items (keeps a backup)",
		ArgsUsage: "<guardrails|metis>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "restore", Usage: "Restore the newest backup instead"},
		},
		Action: func(c *cli.Context) error {
			if err := rt.ready(); err != nil {
				return outputError(err)
			}
			if c.NArg() != 1 {
				return outputError(errors.NewInvalidRequest("compress takes exactly one target: guardrails or metis"))
			}
			target, err := compress.ParseTarget(c.Args().First())
			if err != nil {
				return outputError(err)
			}

			engine := rt.compressor()
			var result *compress.Result
			if c.Bool("restore") {
				result, err = engine.Restore(target)
			} else {
				result, err = engine.Compress(c.Context, target)
			}
			var wmErr *errors.WMError
			if stderrors.As(err, &wmErr) && wmErr.Code == errors.ErrNoChange {
				return outputJSON(c.App.Writer, map[string]any{
					"target":  target,
					"changed": false,
					"message": wmErr.Message,
				})
			}
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, result)
		},
	}
}

// pauseCmd creates the pause or resume command.
func pauseCmd(rt *runtime, paused bool) *cli.Command {
	name, usage := "pause", "Pause extraction, compilation, or both"
	if !paused {
		name, usage = "resume", "Resume extraction, compilation, or both"
	}
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "[extract|compile|both]",
		Action: func(c *cli.Context) error {
			if err := rt.ready(); err != nil {
				return outputError(err)
			}
			if err := rt.layout.RequireInitialized(); err != nil {
				return outputError(err)
			}
			scope, err := pause.ParseScope(c.Args().First())
			if err != nil {
				return outputError(err)
			}

			ctl := pause.New(rt.layout.PausePath())
			var st pause.State
			if paused {
				st, err = ctl.Pause(scope)
			} else {
				st, err = ctl.Resume(scope)
			}
			if err != nil {
				return outputError(err)
			}
			rt.logger.Info(name, zap.String("scope", string(scope)))
			return outputJSON(c.App.Writer, st)
		},
	}
}

// statusCmd creates the status command.
func statusCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show pause state, current dive, counts and the last run",
		Action: func(c *cli.Context) error {
			if err := rt.ready(); err != nil {
				return outputError(err)
			}
			env, err := rt.opsEnv()
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Status(env)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// showCmd creates the show command.
func showCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show one piece of state",
		ArgsUsage: "<" + strings.Join(ops.ShowTargets, "|") + ">",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "session-id", Usage: "working: which session; runs: that session's outcomes"},
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "dive: which manifest"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultRunsLimit, Usage: "runs: how many"},
			&cli.BoolFlag{Name: "render", Aliases: []string{"r"}, Usage: "Print the content as rendered markdown"},
		},
		Action: func(c *cli.Context) error {
			if err := rt.ready(); err != nil {
				return outputError(err)
			}
			if c.NArg() != 1 {
				return outputError(errors.NewInvalidRequest("show takes one target: " + strings.Join(ops.ShowTargets, ", ")))
			}
			env, err := rt.opsEnv()
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Show(c.Context, env, ops.ShowInput{
				What:      c.Args().First(),
				SessionID: c.String("session-id"),
				Name:      c.String("name"),
				Limit:     c.Int("limit"),
			})
			if err != nil {
				return outputError(err)
			}

			if c.Bool("render") && isDocument(output.What) {
				content := output.Content
				if content == "" {
					content = "_" + output.Hint + "_"
				}
				return outputMarkdown(c.App.Writer, content)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// isDocument reports whether a show target is a markdown file.
func isDocument(what string) bool {
	switch what {
	case ops.ShowSessions, ops.ShowRuns:
		return false
	}
	return true
}

// pruneCmd creates the prune command.
func pruneCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Delete old distillation runs from the history database",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "keep", Aliases: []string{"k"}, Value: ops.DefaultKeepRuns, Usage: "Newest runs to keep"},
		},
		Action: func(c *cli.Context) error {
			if err := rt.ready(); err != nil {
				return outputError(err)
			}
			if err := rt.layout.RequireInitialized(); err != nil {
				return outputError(err)
			}
			env, err := rt.opsEnv()
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Prune(env, ops.PruneInput{Keep: c.Int("keep")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// hookCmd creates the hook command group. Hooks always exit 0 and print a
// JSON object, "{}" when there is nothing to say.
func hookCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "hook",
		Usage: "Host hook entry points (JSON on stdin, JSON on stdout)",
		Subcommands: []*cli.Command{
			{
				Name:  "compile",
				Usage: "UserPromptSubmit: inject the working set",
				Action: func(c *cli.Context) error {
					out := runCompileHook(rt, c.App.Reader)
					if err := hook.Write(c.App.Writer, out); err != nil {
						rt.logger.Warn("write hook output", zap.Error(err))
					}
					return nil
				},
			},
		},
	}
}

func runCompileHook(rt *runtime, stdin io.Reader) hook.Output {
	if err := rt.ready(); err != nil {
		rt.logger.Warn("hook compile: load", zap.Error(err))
		return hook.Output{}
	}
	in, err := hook.ReadInput(stdin)
	if err != nil {
		rt.logger.Warn("hook compile: input", zap.Error(err))
		return hook.Output{}
	}

	engine := rt.compiler()
	if in.Cwd != "" && rt.toggles.ProjectDir == "" && !rt.layout.Initialized() {
		engine.Layout = state.NewLayout(state.FindProjectRoot(in.Cwd, ""))
	}
	ws := engine.Compile(compile.Input{SessionID: in.SessionID, Intent: in.Prompt})
	return hook.Respond(ws.Content)
}

// mcpCmd creates the mcp command.
func mcpCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the wm tools over MCP on stdio",
		Action: func(c *cli.Context) error {
			if err := rt.ready(); err != nil {
				return outputError(err)
			}
			return serveMCP(rt)
		},
	}
}

func serveMCP(rt *runtime) error {
	if unknown := mcp.ValidateDisabledTools(rt.cfg.MCP.DisabledTools); len(unknown) > 0 {
		rt.logger.Warn("unknown tools in mcp.disabled_tools", zap.Strings("tools", unknown))
	}
	deps, err := rt.mcpDeps()
	if err != nil {
		return err
	}
	return mcp.Run(deps, Version)
}

// Helper functions

// outputJSON marshals result to w as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputText writes s followed by a newline, or nothing for empty s.
func outputText(w io.Writer, s string) error {
	if s == "" {
		return nil
	}
	_, err := fmt.Fprintln(w, s)
	return err
}

// outputError formats error for CLI.
func outputError(err error) error {
	var wmErr *errors.WMError
	if stderrors.As(err, &wmErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", wmErr.Code, wmErr.Message), 1)
	}
	if stderrors.Is(err, context.Canceled) {
		return cli.Exit("cancelled", 1)
	}
	return cli.Exit(err.Error(), 1)
}

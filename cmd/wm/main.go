package main

import (
	stderrors "errors"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/hpungsan/wm/internal/env"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// isHook reports whether this is a host hook invocation.
func isHook() bool {
	return len(os.Args) >= 2 && os.Args[1] == "hook"
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
  __      ___ __ ___
  \ \ /\ / / '_ ` + "`" + ` _ \
   \ V  V /| | | | | |
    \_/\_/ |_| |_| |_|

  Working memory for coding sessions

  Usage: wm <command> [options]
         wm --help

  MCP server mode requires piped input.`)
}

func main() {
	toggles := env.Read()

	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	rt := newRuntime(toggles)

	// MCP server mode (no args, piped stdin)
	if len(os.Args) < 2 {
		if toggles.Off() {
			return
		}
		rt.load(false)
		defer rt.close()
		if err := rt.ready(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if err := serveMCP(rt); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	app := newCLIApp(rt)
	if err := app.Run(os.Args); err != nil {
		if isHook() || stderrors.Is(err, errDisabled) {
			// Hooks never fail the host
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

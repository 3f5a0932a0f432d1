package mcp

import (
	"database/sql"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hpungsan/wm/internal/compile"
	"github.com/hpungsan/wm/internal/config"
	"github.com/hpungsan/wm/internal/distill"
	"github.com/hpungsan/wm/internal/state"
	"github.com/hpungsan/wm/internal/transcript"
)

// Deps is everything the tools operate on. DB and Pipeline are optional;
// tools that need them report INVALID_REQUEST when they are nil.
type Deps struct {
	Layout      state.Layout
	Config      *config.Config
	DB          *sql.DB
	Store       transcript.Store
	ProjectPath string
	Pipeline    *distill.Pipeline
	Compiler    *compile.Engine
	Logger      *zap.Logger
}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"wm_compile": {
		def:     compileToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCompile },
	},
	"wm_status": {
		def:     statusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStatus },
	},
	"wm_pause": {
		def:     pauseToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePause },
	},
	"wm_resume": {
		def:     resumeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleResume },
	},
	"wm_distill": {
		def:     distillToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDistill },
	},
	"wm_dive_list": {
		def:     diveListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDiveList },
	},
	"wm_dive_show": {
		def:     diveShowToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDiveShow },
	},
	"wm_dive_switch": {
		def:     diveSwitchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDiveSwitch },
	},
	"wm_show": {
		def:     showToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleShow },
	},
}

// AllToolNames returns every tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates an MCP server with the wm tools registered.
// Tools listed in mcp.disabled_tools are excluded from registration.
func NewServer(d Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"wm",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(d)

	disabled := make(map[string]bool)
	if d.Config != nil {
		for _, name := range d.Config.MCP.DisabledTools {
			disabled[name] = true
		}
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run serves the tools over stdio until stdin closes.
func Run(d Deps, version string) error {
	return server.ServeStdio(NewServer(d, version))
}

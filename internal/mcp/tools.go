package mcp

import "github.com/mark3labs/mcp-go/mcp"

var compileToolDef = mcp.NewTool("wm_compile",
	mcp.WithDescription("Compile the working set for this project: guardrails, metis and the current dive context, joined in that order. Returns empty content when nothing is curated or compile is paused."),
	mcp.WithString("session_id", mcp.Description("Session to record the working set under (debug artifact).")),
	mcp.WithString("intent", mcp.Description("What the user is about to do. Recorded, never used to filter.")),
	mcp.WithReadOnlyHintAnnotation(false),
)

var statusToolDef = mcp.NewTool("wm_status",
	mcp.WithDescription("Report pause state, current dive, cache size, curated item counts and the last distillation run."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var pauseToolDef = mcp.NewTool("wm_pause",
	mcp.WithDescription("Pause extraction, compilation, or both. Pausing a paused scope is a no-op."),
	mcp.WithString("scope",
		mcp.Description("extract, compile or both (default both)."),
		mcp.Enum("extract", "compile", "both"),
	),
)

var resumeToolDef = mcp.NewTool("wm_resume",
	mcp.WithDescription("Resume extraction, compilation, or both. Resuming an active scope is a no-op."),
	mcp.WithString("scope",
		mcp.Description("extract, compile or both (default both)."),
		mcp.Enum("extract", "compile", "both"),
	),
)

var distillToolDef = mcp.NewTool("wm_distill",
	mcp.WithDescription("Distill tacit knowledge from this project's transcripts into guardrails.md and metis.md. Makes one generation call per changed session plus one to categorize."),
	mcp.WithBoolean("dry_run", mcp.Description("Report what would be processed without generating or writing anything.")),
	mcp.WithBoolean("force", mcp.Description("Re-process every session from the beginning and re-categorize.")),
	mcp.WithString("session_id", mcp.Description("Only process this session.")),
	mcp.WithString("project", mcp.Description("Read sessions from every project whose log directory name contains this text instead of the current project.")),
	mcp.WithDestructiveHintAnnotation(false),
)

var diveListToolDef = mcp.NewTool("wm_dive_list",
	mcp.WithDescription("List named dive contexts and which one is current."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var diveShowToolDef = mcp.NewTool("wm_dive_show",
	mcp.WithDescription("Show a dive context manifest."),
	mcp.WithString("name", mcp.Description("Dive name; omit for the current dive.")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var diveSwitchToolDef = mcp.NewTool("wm_dive_switch",
	mcp.WithDescription("Make a named dive context current. Unknown names fail with NOT_FOUND and change nothing."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Dive name.")),
)

var showToolDef = mcp.NewTool("wm_show",
	mcp.WithDescription("Show one piece of working memory state."),
	mcp.WithString("what",
		mcp.Required(),
		mcp.Description("guardrails, metis, raw, working, sessions, runs or dive."),
		mcp.Enum("guardrails", "metis", "raw", "working", "sessions", "runs", "dive"),
	),
	mcp.WithString("session_id", mcp.Description("working: which session's working set; runs: that session's outcomes.")),
	mcp.WithString("name", mcp.Description("dive: which manifest.")),
	mcp.WithNumber("limit", mcp.Description("runs: how many (default 20, max 100).")),
	mcp.WithReadOnlyHintAnnotation(true),
)

package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/hpungsan/wm/internal/compile"
	"github.com/hpungsan/wm/internal/distill"
	"github.com/hpungsan/wm/internal/dive"
	"github.com/hpungsan/wm/internal/errors"
	"github.com/hpungsan/wm/internal/ops"
	"github.com/hpungsan/wm/internal/pause"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	deps Deps
	log  *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(d Deps) *Handlers {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{deps: d, log: log}
}

// Request types for each tool

// CompileRequest represents the arguments for wm_compile.
type CompileRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Intent    string `json:"intent,omitempty"`
}

// ScopeRequest represents the arguments for wm_pause and wm_resume.
type ScopeRequest struct {
	Scope string `json:"scope,omitempty"`
}

// DistillRequest represents the arguments for wm_distill.
type DistillRequest struct {
	DryRun    bool   `json:"dry_run,omitempty"`
	Force     bool   `json:"force,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Project   string `json:"project,omitempty"`
}

// DiveRequest represents the arguments for wm_dive_show and wm_dive_switch.
type DiveRequest struct {
	Name string `json:"name,omitempty"`
}

// ShowRequest represents the arguments for wm_show.
type ShowRequest struct {
	What      string `json:"what"`
	SessionID string `json:"session_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// decode unmarshals MCP request arguments into a typed struct.
// Malformed arguments are INVALID_REQUEST.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var result T
	b, err := json.Marshal(req.GetArguments())
	if err != nil {
		return result, errors.NewInvalidRequest(fmt.Sprintf("marshal args: %v", err))
	}
	if err := json.Unmarshal(b, &result); err != nil {
		return result, errors.NewInvalidRequest(fmt.Sprintf("unmarshal args: %v", err))
	}
	return result, nil
}

// Handler implementations

// HandleCompile handles the wm_compile tool call.
func (h *Handlers) HandleCompile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CompileRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	engine := h.deps.Compiler
	if engine == nil {
		engine = &compile.Engine{Layout: h.deps.Layout, Logger: h.log}
	}
	return successResult(engine.Compile(compile.Input{
		SessionID: strings.TrimSpace(input.SessionID),
		Intent:    input.Intent,
	}))
}

// HandleStatus handles the wm_status tool call.
func (h *Handlers) HandleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Status(h.opsEnv())
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandlePause handles the wm_pause tool call.
func (h *Handlers) HandlePause(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.setPause(req, true)
}

// HandleResume handles the wm_resume tool call.
func (h *Handlers) HandleResume(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.setPause(req, false)
}

func (h *Handlers) setPause(req mcp.CallToolRequest, paused bool) (*mcp.CallToolResult, error) {
	input, err := decode[ScopeRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	scope, err := pause.ParseScope(input.Scope)
	if err != nil {
		return errorResult(err), nil
	}
	if err := h.deps.Layout.RequireInitialized(); err != nil {
		return errorResult(err), nil
	}

	ctl := pause.New(h.deps.Layout.PausePath())
	var st pause.State
	if paused {
		st, err = ctl.Pause(scope)
	} else {
		st, err = ctl.Resume(scope)
	}
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(st)
}

// HandleDistill handles the wm_distill tool call.
func (h *Handlers) HandleDistill(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DistillRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if h.deps.Pipeline == nil {
		return errorResult(errors.NewInvalidRequest("distillation is not available in this server")), nil
	}

	report, err := h.deps.Pipeline.Run(ctx, distill.Options{
		DryRun:        input.DryRun,
		Force:         input.Force,
		SessionID:     strings.TrimSpace(input.SessionID),
		ProjectFilter: strings.TrimSpace(input.Project),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(report)
}

// HandleDiveList handles the wm_dive_list tool call.
func (h *Handlers) HandleDiveList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.deps.Layout.RequireInitialized(); err != nil {
		return errorResult(err), nil
	}
	listing, err := dive.New(h.deps.Layout).List()
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(listing)
}

// HandleDiveShow handles the wm_dive_show tool call.
func (h *Handlers) HandleDiveShow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DiveRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if err := h.deps.Layout.RequireInitialized(); err != nil {
		return errorResult(err), nil
	}
	man, err := dive.New(h.deps.Layout).Show(strings.TrimSpace(input.Name))
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(man)
}

// HandleDiveSwitch handles the wm_dive_switch tool call.
func (h *Handlers) HandleDiveSwitch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DiveRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if err := h.deps.Layout.RequireInitialized(); err != nil {
		return errorResult(err), nil
	}
	name := strings.TrimSpace(input.Name)
	if err := dive.New(h.deps.Layout).Switch(name); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]string{"current": name})
}

// HandleShow handles the wm_show tool call.
func (h *Handlers) HandleShow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ShowRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.Show(ctx, h.opsEnv(), ops.ShowInput{
		What:      input.What,
		SessionID: strings.TrimSpace(input.SessionID),
		Name:      strings.TrimSpace(input.Name),
		Limit:     input.Limit,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

func (h *Handlers) opsEnv() ops.Env {
	return ops.Env{
		Layout:      h.deps.Layout,
		DB:          h.deps.DB,
		Store:       h.deps.Store,
		ProjectPath: h.deps.ProjectPath,
	}
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Details of INTERNAL and IO_ERROR failures are not exposed; they carry
// paths and driver messages.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var wmErr *errors.WMError
	if stderrors.As(err, &wmErr) {
		message := wmErr.Message
		if outer := err.Error(); outer != wmErr.Error() {
			message = strings.TrimSuffix(outer, ": "+wmErr.Error()) + ": " + wmErr.Message
		}
		errorObj := map[string]any{
			"code":    wmErr.Code,
			"message": message,
			"status":  wmErr.Status,
		}
		if wmErr.Code != errors.ErrInternal && wmErr.Code != errors.ErrIO && wmErr.Details != nil {
			errorObj["details"] = wmErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}

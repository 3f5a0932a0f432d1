package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/wm/internal/compile"
	"github.com/hpungsan/wm/internal/config"
	"github.com/hpungsan/wm/internal/db"
	"github.com/hpungsan/wm/internal/distill"
	"github.com/hpungsan/wm/internal/dive"
	"github.com/hpungsan/wm/internal/errors"
	"github.com/hpungsan/wm/internal/generate"
	"github.com/hpungsan/wm/internal/ops"
	"github.com/hpungsan/wm/internal/state"
	"github.com/hpungsan/wm/internal/transcript"
)

// stubReply answers extraction and categorization prompts deterministically.
func stubReply(_ context.Context, p generate.Prompt) (string, error) {
	if strings.Contains(p.User, "<raw_extractions>") {
		return "GUARDRAILS:\n- Never push to main\n\nMETIS:\n- Small PRs merge faster\n", nil
	}
	return "HAS_KNOWLEDGE: YES\n\n- Never push to main\n- Small PRs merge faster\n", nil
}

// testSetup creates an initialized project, a history database and a
// transcript directory for testing.
func testSetup(t *testing.T) (Deps, string) {
	t.Helper()

	layout := state.NewLayout(t.TempDir())
	if _, err := ops.Init(layout); err != nil {
		t.Fatalf("failed to init project: %v", err)
	}
	database, err := db.Init(layout.Dir)
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	projects := t.TempDir()
	store := transcript.NewClaudeStore(projects)
	sessionDir := filepath.Join(projects, transcript.ProjectID(layout.Root))

	d := Deps{
		Layout:      layout,
		Config:      config.DefaultConfig(),
		DB:          database,
		Store:       store,
		ProjectPath: layout.Root,
		Pipeline: &distill.Pipeline{
			Layout:    layout,
			Store:     store,
			Generator: generate.Func(stubReply),
			Guard:     &generate.Guard{},
			History:   distill.DBHistory{DB: database},
		},
		Compiler: &compile.Engine{Layout: layout},
	}
	return d, sessionDir
}

func writeTranscript(t *testing.T, dir, id string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	ts := time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)
	line := `{"type":"user","sessionId":"` + id + `","timestamp":"` + ts + `","message":{"role":"user","content":"please never push to main"}}`
	if err := os.WriteFile(filepath.Join(dir, id+".jsonl"), []byte(line+"\n"), 0600); err != nil {
		t.Fatalf("write transcript: %v", err)
	}
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func TestHandleCompile(t *testing.T) {
	d, _ := testSetup(t)
	h := NewHandlers(d)
	ctx := context.Background()

	t.Run("empty project", func(t *testing.T) {
		result, err := h.HandleCompile(ctx, makeRequest(nil))
		if err != nil {
			t.Fatalf("HandleCompile failed: %v", err)
		}
		output := parseOutput(t, result)
		if output["content"] != "" {
			t.Errorf("content = %q, want empty", output["content"])
		}
	})

	t.Run("curated files", func(t *testing.T) {
		if err := os.WriteFile(d.Layout.GuardrailsPath(), []byte("# Guardrails\n\n- x\n"), 0600); err != nil {
			t.Fatal(err)
		}
		result, err := h.HandleCompile(ctx, makeRequest(map[string]any{"session_id": "s1", "intent": "fix"}))
		if err != nil {
			t.Fatalf("HandleCompile failed: %v", err)
		}
		output := parseOutput(t, result)
		if output["content"] != "# Guardrails\n\n- x" {
			t.Errorf("content = %q", output["content"])
		}
		if _, err := os.Stat(d.Layout.WorkingSetPath("s1")); err != nil {
			t.Errorf("working set not written: %v", err)
		}
	})

	t.Run("bad arguments", func(t *testing.T) {
		result, err := h.HandleCompile(ctx, makeRequest(map[string]any{"session_id": 42}))
		if err != nil {
			t.Fatalf("HandleCompile failed: %v", err)
		}
		if !result.IsError {
			t.Fatal("expected error result")
		}
		assertErrorCode(t, result, string(errors.ErrInvalidRequest))
	})
}

func TestHandlePauseResume(t *testing.T) {
	d, _ := testSetup(t)
	h := NewHandlers(d)
	ctx := context.Background()

	result, err := h.HandlePause(ctx, makeRequest(map[string]any{"scope": "compile"}))
	if err != nil {
		t.Fatalf("HandlePause failed: %v", err)
	}
	output := parseOutput(t, result)
	if output["compile_paused"] != true || output["extract_paused"] != false {
		t.Errorf("state = %v, want only compile paused", output)
	}

	if err := os.WriteFile(d.Layout.MetisPath(), []byte("# Metis\n\n- y\n"), 0600); err != nil {
		t.Fatal(err)
	}
	result, _ = h.HandleCompile(ctx, makeRequest(nil))
	if output := parseOutput(t, result); output["content"] != "" || output["paused"] != true {
		t.Errorf("compile while paused = %v", output)
	}

	result, err = h.HandleResume(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("HandleResume failed: %v", err)
	}
	output = parseOutput(t, result)
	if output["compile_paused"] != false {
		t.Errorf("state = %v, want resumed", output)
	}

	result, _ = h.HandlePause(ctx, makeRequest(map[string]any{"scope": "everything"}))
	assertErrorCode(t, result, string(errors.ErrInvalidRequest))
}

func TestHandleDistill(t *testing.T) {
	d, sessionDir := testSetup(t)
	writeTranscript(t, sessionDir, "s1")
	h := NewHandlers(d)
	ctx := context.Background()

	result, err := h.HandleDistill(ctx, makeRequest(map[string]any{"dry_run": true}))
	if err != nil {
		t.Fatalf("HandleDistill failed: %v", err)
	}
	output := parseOutput(t, result)
	if output["generation_calls"] != float64(0) {
		t.Errorf("dry run generation_calls = %v, want 0", output["generation_calls"])
	}

	result, err = h.HandleDistill(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("HandleDistill failed: %v", err)
	}
	output = parseOutput(t, result)
	totals := output["totals"].(map[string]any)
	if totals["processed"] != float64(1) {
		t.Errorf("processed = %v, want 1", totals["processed"])
	}
	guardrails, err := os.ReadFile(d.Layout.GuardrailsPath())
	if err != nil {
		t.Fatalf("guardrails not written: %v", err)
	}
	if !strings.Contains(string(guardrails), "Never push to main") {
		t.Errorf("guardrails = %q", guardrails)
	}

	result, _ = h.HandleShow(ctx, makeRequest(map[string]any{"what": "runs"}))
	output = parseOutput(t, result)
	if runs := output["runs"].([]any); len(runs) != 1 {
		t.Errorf("recorded runs = %d, want 1", len(runs))
	}

	result, _ = h.HandleDistill(ctx, makeRequest(map[string]any{"session_id": "nope"}))
	assertErrorCode(t, result, string(errors.ErrNotFound))
}

func TestHandleDistill_NoPipeline(t *testing.T) {
	d, _ := testSetup(t)
	d.Pipeline = nil
	result, _ := NewHandlers(d).HandleDistill(context.Background(), makeRequest(nil))
	assertErrorCode(t, result, string(errors.ErrInvalidRequest))
}

func TestHandleDive(t *testing.T) {
	d, _ := testSetup(t)
	h := NewHandlers(d)
	ctx := context.Background()

	m := dive.New(d.Layout)
	if _, err := m.Create("auth", dive.Manifest{Intent: "fix refresh"}, false); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Create("perf", dive.Manifest{Intent: "profile"}, false); err != nil {
		t.Fatal(err)
	}

	result, err := h.HandleDiveList(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("HandleDiveList failed: %v", err)
	}
	output := parseOutput(t, result)
	if output["current"] != "perf" {
		t.Errorf("current = %v, want perf", output["current"])
	}
	if dives := output["dives"].([]any); len(dives) != 2 {
		t.Errorf("len(dives) = %d, want 2", len(dives))
	}

	result, _ = h.HandleDiveSwitch(ctx, makeRequest(map[string]any{"name": "nonexistent-name"}))
	assertErrorCode(t, result, string(errors.ErrNotFound))

	result, err = h.HandleDiveSwitch(ctx, makeRequest(map[string]any{"name": "auth"}))
	if err != nil {
		t.Fatalf("HandleDiveSwitch failed: %v", err)
	}
	if output := parseOutput(t, result); output["current"] != "auth" {
		t.Errorf("current = %v, want auth", output["current"])
	}

	result, err = h.HandleDiveShow(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("HandleDiveShow failed: %v", err)
	}
	output = parseOutput(t, result)
	if output["intent"] != "fix refresh" {
		t.Errorf("intent = %v", output["intent"])
	}

	result, _ = h.HandleDiveShow(ctx, makeRequest(map[string]any{"name": "../etc"}))
	assertErrorCode(t, result, string(errors.ErrInvalidRequest))
}

func TestHandleStatusAndShow(t *testing.T) {
	d, sessionDir := testSetup(t)
	writeTranscript(t, sessionDir, "s1")
	h := NewHandlers(d)
	ctx := context.Background()

	result, err := h.HandleStatus(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("HandleStatus failed: %v", err)
	}
	output := parseOutput(t, result)
	if output["initialized"] != true {
		t.Errorf("initialized = %v", output["initialized"])
	}

	result, err = h.HandleShow(ctx, makeRequest(map[string]any{"what": "sessions"}))
	if err != nil {
		t.Fatalf("HandleShow failed: %v", err)
	}
	output = parseOutput(t, result)
	sessions := output["sessions"].([]any)
	if len(sessions) != 1 || sessions[0].(map[string]any)["id"] != "s1" {
		t.Errorf("sessions = %v", sessions)
	}

	result, _ = h.HandleShow(ctx, makeRequest(map[string]any{"what": "state"}))
	assertErrorCode(t, result, string(errors.ErrInvalidRequest))
}

func TestHandlers_NotInitialized(t *testing.T) {
	d := Deps{Layout: state.NewLayout(t.TempDir())}
	h := NewHandlers(d)
	ctx := context.Background()

	result, _ := h.HandlePause(ctx, makeRequest(nil))
	assertErrorCode(t, result, string(errors.ErrNotInitialized))

	result, _ = h.HandleDiveList(ctx, makeRequest(nil))
	assertErrorCode(t, result, string(errors.ErrNotInitialized))

	// Compile degrades instead of failing
	result, _ = h.HandleCompile(ctx, makeRequest(nil))
	if output := parseOutput(t, result); output["content"] != "" {
		t.Errorf("content = %v, want empty", output["content"])
	}
}

func TestServerRegistration(t *testing.T) {
	d, _ := testSetup(t)

	s := NewServer(d, "test")
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := []string{
		"wm_compile",
		"wm_status",
		"wm_pause",
		"wm_resume",
		"wm_distill",
		"wm_dive_list",
		"wm_dive_show",
		"wm_dive_switch",
		"wm_show",
	}

	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}

	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	d, _ := testSetup(t)

	d.Config.MCP.DisabledTools = []string{"wm_distill", "wm_pause", "wm_pause"}
	tools := NewServer(d, "test").ListTools()

	if len(tools) != 7 {
		t.Errorf("registered tool count = %d, want 7", len(tools))
	}
	for _, name := range []string{"wm_distill", "wm_pause"} {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
}

func TestServerRegistration_AllToolsDisabled(t *testing.T) {
	d, _ := testSetup(t)

	d.Config.MCP.DisabledTools = AllToolNames()
	if tools := NewServer(d, "test").ListTools(); len(tools) != 0 {
		t.Errorf("registered tool count = %d, want 0 (all disabled)", len(tools))
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{
			name:    "all valid",
			input:   []string{"wm_distill", "wm_show"},
			wantLen: 0,
		},
		{
			name:    "one unknown",
			input:   []string{"wm_distill", "wm_unknown"},
			wantLen: 1,
		},
		{
			name:    "empty list",
			input:   []string{},
			wantLen: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unknown := ValidateDisabledTools(tt.input)
			if len(unknown) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(unknown), tt.wantLen)
			}
		})
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	if len(names) != 9 {
		t.Errorf("AllToolNames() returned %d names, want 9", len(names))
	}
	if names[0] != "wm_compile" {
		t.Errorf("names not sorted: %v", names)
	}
	if unknown := ValidateDisabledTools(names); len(unknown) != 0 {
		t.Errorf("AllToolNames() returned invalid names: %v", unknown)
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewIO("open /tmp/secret/wm.db", fmt.Errorf("permission denied")))
	errObj := errorObject(t, r)

	if errObj["code"] != string(errors.ErrIO) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrIO)
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected IO_ERROR to omit details")
	}

	errObj = errorObject(t, errorResult(fmt.Errorf("plain failure")))
	if errObj["code"] != string(errors.ErrInternal) || errObj["message"] != "an internal error occurred" {
		t.Errorf("foreign error = %v", errObj)
	}
}

func TestErrorResult_WrappedErrorPreservesContext(t *testing.T) {
	wrapped := fmt.Errorf("dive auth: %w", errors.NewNotFound("dive", "auth"))

	errObj := errorObject(t, errorResult(wrapped))
	if errObj["code"] != string(errors.ErrNotFound) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrNotFound)
	}
	if msg := errObj["message"].(string); !strings.HasPrefix(msg, "dive auth: ") {
		t.Errorf("message should keep wrapper context, got: %s", msg)
	}
	if _, ok := errObj["details"]; !ok {
		t.Error("expected NOT_FOUND to include details")
	}
}

// Helper functions

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func errorObject(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if !result.IsError {
		t.Fatal("expected IsError=true")
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	return payload["error"].(map[string]any)
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if !result.IsError {
		t.Errorf("expected error %s, got success: %s", expectedCode, extractErrorMessage(result))
		return
	}
	errObj := errorObject(t, result)
	if code, _ := errObj["code"].(string); code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}

	return text.Text
}

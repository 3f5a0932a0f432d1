package generate

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hpungsan/wm/internal/env"
	"github.com/hpungsan/wm/internal/errors"
)

// GuardEnv is added to every generation subprocess. The host runs wm hooks
// for the child session too; these make those hooks no-ops.
var GuardEnv = []string{env.Disabled + "=1", env.SuperegoDisabled + "=1"}

// ClaudeCLI runs the host CLI in print mode.
type ClaudeCLI struct {
	Command string
	Model   string
	Timeout time.Duration

	// Dir is the working directory of the subprocess; empty means inherit.
	Dir string
}

// NewClaudeCLI returns a client. An empty command defaults to "claude".
func NewClaudeCLI(command, model string, timeout time.Duration) *ClaudeCLI {
	if command == "" {
		command = "claude"
	}
	return &ClaudeCLI{Command: command, Model: model, Timeout: timeout}
}

// claudeCLIResponse is the JSON printed by `claude -p --output-format json`.
// result is a string in current releases and a content-block object in older ones.
type claudeCLIResponse struct {
	IsError bool            `json:"is_error"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate implements Generator. The user prompt goes through stdin so large
// transcripts never hit argument length limits.
func (c *ClaudeCLI) Generate(ctx context.Context, p Prompt) (string, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	args := []string{"-p", "--output-format", "json", "--no-session-persistence"}
	if c.Model != "" {
		args = append(args, "--model", c.Model)
	}
	if strings.TrimSpace(p.System) != "" {
		args = append(args, "--system-prompt", p.System)
	}

	cmd := exec.CommandContext(ctx, c.Command, args...)
	cmd.Env = append(os.Environ(), GuardEnv...)
	cmd.Dir = c.Dir
	cmd.Stdin = strings.NewReader(p.User)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", errors.NewTimeout(fmt.Sprintf("%s after %v", c.Command, c.Timeout))
		}
		if ctx.Err() != nil {
			return "", errors.NewGenerationUnavailable(ctx.Err())
		}
		return "", errors.NewGenerationUnavailable(fmt.Errorf("%s: %w (stderr: %s)", c.Command, err, truncate(stderr.String(), 500)))
	}

	return parseResponse(stdout.Bytes())
}

func parseResponse(data []byte) (string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return "", errors.NewGenerationUnavailable(fmt.Errorf("empty response"))
	}

	var resp claudeCLIResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", errors.NewParseError("generator response", fmt.Errorf("%w (raw: %s)", err, truncate(string(data), 200)))
	}
	if resp.Error != nil {
		return "", errors.NewGenerationUnavailable(fmt.Errorf("%s: %s", resp.Error.Type, resp.Error.Message))
	}

	text := resultText(resp.Result)
	if resp.IsError {
		return "", errors.NewGenerationUnavailable(fmt.Errorf("generator reported error: %s", truncate(text, 200)))
	}
	return strings.TrimSpace(text), nil
}

func resultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var sb strings.Builder
		for _, b := range blocks.Content {
			if b.Type == "text" {
				sb.WriteString(b.Text)
			}
		}
		return sb.String()
	}
	return ""
}

// truncate shortens s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

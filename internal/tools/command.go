package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rahul/taskforge/internal/workspace"
)

// CommandRunner executes a shell command and returns its combined output.
// The backend is injected at construction so tests and simulated
// environments can swap the real shell out.
type CommandRunner func(ctx context.Context, command string) (string, error)

// ShellRunner runs commands through bash on the host.
func ShellRunner(workDir string) CommandRunner {
	return func(ctx context.Context, command string) (string, error) {
		cmd := exec.CommandContext(ctx, "bash", "-c", command)
		if workDir != "" {
			cmd.Dir = workDir
		}
		output, err := cmd.CombinedOutput()
		result := strings.TrimSpace(string(output))
		if result == "" {
			result = "(no output)"
		}
		if err != nil {
			return "", fmt.Errorf("command failed: %v\noutput: %s", err, result)
		}
		return result, nil
	}
}

type RunCommandTool struct {
	Runner CommandRunner
}

func NewRunCommandTool(runner CommandRunner) *RunCommandTool {
	return &RunCommandTool{Runner: runner}
}

func (t *RunCommandTool) Name() string {
	return workspace.ToolRunCommand
}

func (t *RunCommandTool) Description() string {
	return "Execute a shell command for the project (build, scaffold, inspect). Output is captured into the workspace."
}

func (t *RunCommandTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The shell command to execute",
			},
		},
		"required": []string{"command"},
	}
}

func (t *RunCommandTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	if args.Command == "" {
		return "", fmt.Errorf("empty command")
	}
	output, err := t.Runner(ctx, args.Command)
	if err != nil {
		return "", err
	}
	return payload(map[string]any{"output": output}), nil
}

package plugins

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

const (
	codeExecTimeout = 30 * time.Second
	// maxToolOutput caps captured stdout/stderr per stream.
	maxToolOutput     = 100 * 1024
	truncatedSentinel = "\n... [output truncated]"
)

// codeExecutor runs Python snippets with the workspace as the working
// directory. Output is capped at maxToolOutput per stream.
type codeExecutor struct {
	spec      ToolSpec
	workspace string
}

func newCodeExecutor(workspace string) Entry {
	ce := &codeExecutor{
		workspace: workspace,
		spec: ToolSpec{
			Name:        "code_executor",
			Description: "Execute a Python snippet in the workspace. Returns stdout, stderr and the exit code. Execution is killed after 30 seconds.",
			Parameters: map[string]ParamSpec{
				"code": {
					Type:        "string",
					Description: "Python source code to execute.",
					Required:    true,
				},
			},
		},
	}
	return Entry{Spec: ce.spec, Tool: ce}
}

func (ce *codeExecutor) Info(_ context.Context) (*schema.ToolInfo, error) {
	return toolSpecToToolInfo(&ce.spec), nil
}

func (ce *codeExecutor) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return errorResult(CodeInvalidArguments, "parse arguments: %v", err), nil
	}
	if args.Code == "" {
		return errorResult(CodeInvalidArguments, "code is required"), nil
	}

	ctx, cancel := context.WithTimeout(ctx, codeExecTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "python3", "-c", args.Code)
	cmd.Dir = ce.workspace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return errorResult(CodeTimeout, "execution timed out after %s", codeExecTimeout), nil
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return errorResult(CodeExecutionFailed, "run python3: %v", err), nil
		}
	}

	return jsonResult(map[string]any{
		"stdout":    truncate(stdout.String()),
		"stderr":    truncate(stderr.String()),
		"exit_code": exitCode,
	}), nil
}

func truncate(s string) string {
	if len(s) > maxToolOutput {
		return s[:maxToolOutput] + truncatedSentinel
	}
	return s
}

var _ tool.InvokableTool = (*codeExecutor)(nil)

package plugins

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

const scriptTimeout = 30 * time.Second

// scriptTool runs a forged Python plugin. The script receives its arguments
// as JSON on stdin and prints a JSON object to stdout.
type scriptTool struct {
	spec       ToolSpec
	entrypoint string
}

func newScriptTool(spec ToolSpec, entrypoint string) *scriptTool {
	return &scriptTool{spec: spec, entrypoint: entrypoint}
}

func (st *scriptTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return toolSpecToToolInfo(&st.spec), nil
}

func (st *scriptTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, scriptTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "python3", st.entrypoint)
	cmd.Stdin = strings.NewReader(argumentsInJSON)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return errorResult(CodeTimeout, "tool %s timed out after %s", st.spec.Name, scriptTimeout), nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return errorResult(CodeExecutionFailed, "tool %s exited with code %d: %s",
				st.spec.Name, exitErr.ExitCode(), truncate(stderr.String())), nil
		}
		return errorResult(CodeExecutionFailed, "run tool %s: %v", st.spec.Name, err), nil
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return jsonResult(map[string]any{"status": "success"}), nil
	}
	return truncate(out), nil
}

var _ tool.InvokableTool = (*scriptTool)(nil)

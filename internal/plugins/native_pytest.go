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

const pytestTimeout = 60 * time.Second

// pytestRunner runs pytest against workspace files.
type pytestRunner struct {
	spec      ToolSpec
	workspace string
}

func newPytestRunner(workspace string) Entry {
	pr := &pytestRunner{
		workspace: workspace,
		spec: ToolSpec{
			Name:        "pytest_runner",
			Description: "Run pytest on a file or directory in the workspace. Returns the test output and whether all tests passed. Killed after 60 seconds.",
			Parameters: map[string]ParamSpec{
				"path": {
					Type:        "string",
					Description: "Relative path to the test file or directory. Defaults to the whole workspace.",
				},
			},
		},
	}
	return Entry{Spec: pr.spec, Tool: pr}
}

func (pr *pytestRunner) Info(_ context.Context) (*schema.ToolInfo, error) {
	return toolSpecToToolInfo(&pr.spec), nil
}

func (pr *pytestRunner) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return errorResult(CodeInvalidArguments, "parse arguments: %v", err), nil
	}

	target := "."
	if args.Path != "" {
		if _, err := SafePath(pr.workspace, args.Path); err != nil {
			return pathError(err), nil
		}
		target = args.Path
	}

	ctx, cancel := context.WithTimeout(ctx, pytestTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "python3", "-m", "pytest", target, "-v")
	cmd.Dir = pr.workspace

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return errorResult(CodeTimeout, "pytest timed out after %s", pytestTimeout), nil
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return errorResult(CodeExecutionFailed, "run pytest: %v", err), nil
		}
	}

	return jsonResult(map[string]any{
		"output":    truncate(out.String()),
		"exit_code": exitCode,
		"passed":    exitCode == 0,
	}), nil
}

var _ tool.InvokableTool = (*pytestRunner)(nil)

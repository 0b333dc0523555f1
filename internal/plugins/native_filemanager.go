package plugins

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// fileManager gives agents file access inside the workspace jail plus the
// copy_to_delivery escape hatch into the delivery directory.
type fileManager struct {
	spec      ToolSpec
	workspace string
	delivery  string
}

func newFileManager(workspace, delivery string) Entry {
	fm := &fileManager{
		workspace: workspace,
		delivery:  delivery,
		spec: ToolSpec{
			Name:        "file_manager",
			Description: "Manage files in your workspace: write_file, read_file, list_files, copy_to_delivery. All paths are relative to the workspace.",
			Parameters: map[string]ParamSpec{
				"operation": {
					Type:        "string",
					Description: "The operation to perform.",
					Required:    true,
					Enum:        []string{"write_file", "read_file", "list_files", "copy_to_delivery"},
				},
				"path": {
					Type:        "string",
					Description: "Relative path inside the workspace.",
				},
				"content": {
					Type:        "string",
					Description: "File content, for write_file.",
				},
			},
		},
	}
	return Entry{Spec: fm.spec, Tool: fm}
}

func (fm *fileManager) Info(_ context.Context) (*schema.ToolInfo, error) {
	return toolSpecToToolInfo(&fm.spec), nil
}

type fileManagerArgs struct {
	Operation string `json:"operation"`
	Path      string `json:"path"`
	Content   string `json:"content"`
}

func (fm *fileManager) InvokableRun(_ context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args fileManagerArgs
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return errorResult(CodeInvalidArguments, "parse arguments: %v", err), nil
	}

	switch args.Operation {
	case "write_file":
		return fm.writeFile(args.Path, args.Content), nil
	case "read_file":
		return fm.readFile(args.Path), nil
	case "list_files":
		return fm.listFiles(args.Path), nil
	case "copy_to_delivery":
		return fm.copyToDelivery(args.Path), nil
	default:
		return errorResult(CodeInvalidArguments, "unknown operation %q", args.Operation), nil
	}
}

func (fm *fileManager) writeFile(rel, content string) string {
	path, err := SafePath(fm.workspace, rel)
	if err != nil {
		return pathError(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errorResult(CodeExecutionFailed, "create parent dirs: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return errorResult(CodeExecutionFailed, "write %s: %v", rel, err)
	}
	return jsonResult(map[string]any{
		"status":        "success",
		"path":          rel,
		"bytes_written": len(content),
	})
}

func (fm *fileManager) readFile(rel string) string {
	path, err := SafePath(fm.workspace, rel)
	if err != nil {
		return pathError(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errorResult(CodeFileNotFound, "file not found: %s", rel)
		}
		return errorResult(CodeExecutionFailed, "read %s: %v", rel, err)
	}
	return jsonResult(map[string]any{
		"status":  "success",
		"path":    rel,
		"content": string(data),
	})
}

func (fm *fileManager) listFiles(rel string) string {
	if rel == "" {
		rel = "."
	}
	path, err := SafePath(fm.workspace, rel)
	if err != nil {
		return pathError(err)
	}
	dirents, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errorResult(CodeFileNotFound, "directory not found: %s", rel)
		}
		return errorResult(CodeExecutionFailed, "list %s: %v", rel, err)
	}

	names := make([]string, 0, len(dirents))
	for _, d := range dirents {
		name := d.Name()
		if d.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return jsonResult(map[string]any{
		"status": "success",
		"path":   rel,
		"files":  names,
	})
}

func (fm *fileManager) copyToDelivery(rel string) string {
	src, err := SafePath(fm.workspace, rel)
	if err != nil {
		return pathError(err)
	}
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return errorResult(CodeFileNotFound, "file not found: %s", rel)
		}
		return errorResult(CodeExecutionFailed, "open %s: %v", rel, err)
	}
	defer in.Close()

	if err := os.MkdirAll(fm.delivery, 0o755); err != nil {
		return errorResult(CodeExecutionFailed, "create delivery dir: %v", err)
	}
	dst := filepath.Join(fm.delivery, filepath.Base(src))
	out, err := os.Create(dst)
	if err != nil {
		return errorResult(CodeExecutionFailed, "create %s: %v", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errorResult(CodeExecutionFailed, "copy %s: %v", rel, err)
	}
	return jsonResult(map[string]any{
		"status":    "success",
		"delivered": filepath.Base(src),
	})
}

func pathError(err error) string {
	if errors.Is(err, ErrPathEscape) {
		return errorResult(CodePermissionDenied, "%v", err)
	}
	return errorResult(CodeInvalidArguments, "%v", err)
}

var _ tool.InvokableTool = (*fileManager)(nil)

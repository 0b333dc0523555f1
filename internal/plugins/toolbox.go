package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/tool"

	"github.com/aos-sim/aos/internal/config"
)

// Result codes returned to agents in tool result maps.
const (
	CodeToolNotFound     = "TOOL_NOT_FOUND"
	CodeExecutionFailed  = "EXECUTION_FAILED"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeFileNotFound     = "FILE_NOT_FOUND"
	CodeInvalidArguments = "INVALID_ARGUMENTS"
	CodeTimeout          = "TIMEOUT"
)

// protectedTools cannot be removed by the disabled-tools filter: without
// file_manager an agent has no way to deliver results.
var protectedTools = map[string]bool{
	"file_manager": true,
}

// Entry pairs a tool implementation with its spec.
type Entry struct {
	Spec   ToolSpec
	Tool   tool.InvokableTool
	Forged bool
}

// Toolbox is the per-agent tool registry, jailed to the agent's own
// workspace directory. Built-ins are registered at construction; forged
// script plugins are picked up by Refresh.
type Toolbox struct {
	agentID   string
	workspace string
	cfg       *config.SystemConfig
	sender    MessageSender
	disabled  map[string]bool

	mu      sync.RWMutex
	entries map[string]Entry
}

// NewToolbox builds a toolbox for one agent, rooted at the agent's
// workspace `<workspacePath>/<agentID>`. sender may be nil when the
// messaging capability is off. The disabled list filters built-ins except
// protected ones; forged tools are never filtered.
func NewToolbox(ctx context.Context, agentID string, cfg *config.SystemConfig, sender MessageSender, disabled []string) (*Toolbox, error) {
	tb := &Toolbox{
		agentID:   agentID,
		workspace: filepath.Join(cfg.WorkspacePath, agentID),
		cfg:       cfg,
		sender:    sender,
		disabled:  make(map[string]bool, len(disabled)),
		entries:   make(map[string]Entry),
	}
	for _, name := range disabled {
		if protectedTools[name] {
			slog.Warn("ignoring disabled entry for protected tool", "tool", name)
			continue
		}
		tb.disabled[name] = true
	}

	if err := tb.registerBuiltins(ctx); err != nil {
		return nil, err
	}
	if err := tb.Refresh(ctx); err != nil {
		return nil, err
	}
	return tb, nil
}

func (tb *Toolbox) registerBuiltins(ctx context.Context) error {
	builtins := []Entry{
		newFileManager(tb.workspace, tb.cfg.DeliveryPath),
		newCodeExecutor(tb.workspace),
		newAPIClient(),
		newPytestRunner(tb.workspace),
	}

	search, err := newWebSearch(ctx)
	if err != nil {
		return fmt.Errorf("init web_search: %w", err)
	}
	builtins = append(builtins, search)

	if tb.sender != nil && tb.cfg.Capabilities.AllowMessaging {
		builtins = append(builtins, newMessaging(tb.agentID, tb.sender))
	}

	for _, entry := range builtins {
		if tb.disabled[entry.Spec.Name] {
			continue
		}
		tb.entries[entry.Spec.Name] = entry
	}
	return nil
}

// Refresh rescans the plugins directory for forged script plugins. Existing
// built-in entries are kept; script entries are rebuilt from disk so a
// freshly deployed tool becomes visible to every agent.
func (tb *Toolbox) Refresh(ctx context.Context) error {
	dirents, err := os.ReadDir(tb.cfg.PluginsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("scan plugins dir: %w", err)
	}

	found := make(map[string]Entry)
	for _, d := range dirents {
		if !d.IsDir() || !strings.HasPrefix(d.Name(), "generated_") {
			continue
		}
		manifestPath := filepath.Join(tb.cfg.PluginsDir, d.Name(), "manifest.jsonc")
		m, err := LoadManifest(manifestPath)
		if err != nil {
			slog.Warn("skipping plugin with bad manifest", "dir", d.Name(), "error", err)
			continue
		}
		entrypoint := filepath.Join(tb.cfg.PluginsDir, d.Name(), m.Entrypoint)
		for _, spec := range m.Tools {
			found[spec.Name] = Entry{
				Spec:   spec,
				Tool:   newScriptTool(spec, entrypoint),
				Forged: true,
			}
		}
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()
	for name, entry := range tb.entries {
		if entry.Forged {
			delete(tb.entries, name)
		}
	}
	for name, entry := range found {
		tb.entries[name] = entry
	}
	return nil
}

// Workspace returns the toolbox's jail root.
func (tb *Toolbox) Workspace() string { return tb.workspace }

// Has reports whether a tool is available.
func (tb *Toolbox) Has(name string) bool {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	_, ok := tb.entries[name]
	return ok
}

// Specs returns the available tool specs sorted by name, for prompt
// rendering and the forging protocol's tool inventory.
func (tb *Toolbox) Specs() []ToolSpec {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	out := make([]ToolSpec, 0, len(tb.entries))
	for _, entry := range tb.entries {
		out = append(out, entry.Spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute runs a tool by name. Failures come back as data in the result map
// rather than Go errors: a missing tool yields TOOL_NOT_FOUND, a tool error
// yields EXECUTION_FAILED (or the tool's own error code).
func (tb *Toolbox) Execute(ctx context.Context, name string, params map[string]any) map[string]any {
	tb.mu.RLock()
	entry, ok := tb.entries[name]
	tb.mu.RUnlock()

	if !ok {
		return map[string]any{
			"error": fmt.Sprintf("tool %q not found", name),
			"code":  CodeToolNotFound,
		}
	}

	args, err := json.Marshal(params)
	if err != nil {
		return map[string]any{
			"error": fmt.Sprintf("marshal arguments: %v", err),
			"code":  CodeInvalidArguments,
		}
	}

	out, err := entry.Tool.InvokableRun(ctx, string(args))
	if err != nil {
		return map[string]any{
			"error": err.Error(),
			"code":  CodeExecutionFailed,
		}
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		// Non-object output (the search tool returns its own shape).
		return map[string]any{"result": out}
	}
	return result
}

// jsonResult marshals a tool result map; tools always return valid JSON.
func jsonResult(m map[string]any) string {
	data, _ := json.Marshal(m)
	return string(data)
}

func errorResult(code, format string, args ...any) string {
	return jsonResult(map[string]any{
		"error": fmt.Sprintf(format, args...),
		"code":  code,
	})
}

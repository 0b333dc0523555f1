package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aos-sim/aos/internal/agent"
	"github.com/aos-sim/aos/internal/events"
	"github.com/aos-sim/aos/internal/plugins"
)

// HandleToolRequest starts the forging protocol: gate on the capability,
// dedupe per requester, then admit a forger funded by the system. Refusals
// come back to the requester as system mail.
func (o *Orchestrator) HandleToolRequest(requesterID, description string) {
	if !o.cfg.Capabilities.AllowToolCreation {
		o.systemMessage(requesterID, map[string]any{
			"status": "tool_request_denied",
			"reason": "tool creation is disabled in this simulation",
		})
		return
	}

	o.mu.Lock()
	if _, dup := o.pendingToolRequests[requesterID]; dup {
		o.mu.Unlock()
		o.systemMessage(requesterID, map[string]any{
			"status": "tool_request_duplicate",
			"reason": "a tool request from this agent is already being forged",
		})
		return
	}
	o.pendingToolRequests[requesterID] = description
	o.mu.Unlock()

	// The forger sees every tool regardless of the simulation's disabled
	// list; its task enumerates that full inventory.
	forgerID, err := o.spawn(context.Background(), agent.Config{
		Role:      ToolForgingRole,
		ParentID:  requesterID,
		Budget:    forgerBudgetRatio * o.cfg.InitialBudget,
		StepIndex: -1,
	}, nil, func(specs []plugins.ToolSpec) string {
		return agent.ForgingTask(description, requesterID, specs)
	})
	if err != nil {
		o.mu.Lock()
		delete(o.pendingToolRequests, requesterID)
		o.mu.Unlock()
		o.systemMessage(requesterID, map[string]any{
			"status": "tool_request_denied",
			"reason": fmt.Sprintf("could not start a forger: %v", err),
		})
		return
	}
	o.log.Info("forger admitted", "forger", forgerID, "requester", requesterID, "description", description)
}

// processSystemEvents intercepts forger success reports before the
// recipients read their mail. Ordinary messages stay queued in order.
func (o *Orchestrator) processSystemEvents(ctx context.Context) {
	type deployment struct {
		forgerID    string
		requesterID string
		codePath    string
	}

	o.mu.Lock()
	var deployments []deployment
	for owner, box := range o.mailboxes {
		kept := box[:0]
		for _, msg := range box {
			if o.roleLocked(msg.From) == ToolForgingRole && msg.Content["status"] == "tool_creation_success" {
				codePath, _ := msg.Content["tool_code_path"].(string)
				deployments = append(deployments, deployment{
					forgerID:    msg.From,
					requesterID: owner,
					codePath:    codePath,
				})
				continue
			}
			kept = append(kept, msg)
		}
		o.mailboxes[owner] = kept
	}
	o.mu.Unlock()

	for _, d := range deployments {
		o.deployNewTool(ctx, d.forgerID, d.requesterID, d.codePath)
	}
}

// roleLocked returns an agent's role; callers must hold mu.
func (o *Orchestrator) roleLocked(agentID string) string {
	if m, ok := o.agents[agentID]; ok {
		return m.cfg.Role
	}
	return ""
}

// deployNewTool promotes a validated forger script into the plugin
// registry, refreshes every toolbox, and closes out the request.
func (o *Orchestrator) deployNewTool(ctx context.Context, forgerID, requesterID, codePath string) {
	o.mu.Lock()
	description := o.pendingToolRequests[requesterID]
	forger := o.agents[forgerID]
	o.mu.Unlock()

	toolName, err := o.installPlugin(forgerID, codePath, description)
	if err != nil {
		o.log.Error("tool deployment failed", "forger", forgerID, "requester", requesterID, "error", err)
		o.mu.Lock()
		delete(o.pendingToolRequests, requesterID)
		o.mu.Unlock()
		o.systemMessage(requesterID, map[string]any{
			"status": "tool_request_failed",
			"reason": err.Error(),
		})
		return
	}

	o.mu.Lock()
	boxes := make([]*plugins.Toolbox, 0, len(o.agents))
	for _, m := range o.agents {
		boxes = append(boxes, m.toolbox)
	}
	delete(o.pendingToolRequests, requesterID)
	o.mu.Unlock()

	for _, tb := range boxes {
		if err := tb.Refresh(ctx); err != nil {
			o.log.Warn("toolbox refresh failed after deployment", "error", err)
		}
	}

	o.systemMessage(requesterID, map[string]any{
		"status":    "tool_request_fulfilled",
		"tool_name": toolName,
	})
	if forger != nil {
		forger.agent.Complete("Forged tool deployed: " + toolName)
	}

	o.bus.Publish(events.ToolDeployed(toolName, forgerID))
	o.log.Info("tool deployed", "tool", toolName, "forger", forgerID, "requester", requesterID)
}

// installPlugin copies the forged script out of the forger's workspace into
// its own plugin directory and writes the manifest. The tool name embeds
// the forger id so deployments never collide.
func (o *Orchestrator) installPlugin(forgerID, codePath, description string) (string, error) {
	workspace := filepath.Join(o.cfg.WorkspacePath, forgerID)
	src, err := plugins.SafePath(workspace, codePath)
	if err != nil {
		return "", fmt.Errorf("forged code path %q: %w", codePath, err)
	}
	code, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("read forged code: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(codePath), ".py")
	toolName := fmt.Sprintf("generated_%s_%s", base, forgerID)
	dir := filepath.Join(o.cfg.PluginsDir, toolName)
	entrypoint := toolName + ".py"

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create plugin dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, entrypoint), code, 0o644); err != nil {
		return "", fmt.Errorf("install forged code: %w", err)
	}

	manifest := &plugins.PluginManifest{
		Name:        toolName,
		Description: description,
		Provider:    "script",
		Entrypoint:  entrypoint,
		Tools: []plugins.ToolSpec{{
			Name:        toolName,
			Description: description,
			Parameters:  map[string]plugins.ParamSpec{},
		}},
	}
	if err := plugins.SaveManifest(filepath.Join(dir, "manifest.jsonc"), manifest); err != nil {
		return "", err
	}
	return toolName, nil
}

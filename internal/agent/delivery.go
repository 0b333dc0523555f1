package agent

import (
	"context"
	"io/fs"
	"os"

	"github.com/bmatcuk/doublestar/v4"
)

// deliverablePattern matches the artefact types worth shipping to the
// delivery folder automatically.
const deliverablePattern = "**/*.{html,css,js,py,txt,json,xml}"

// autoDeliver copies every deliverable file in the workspace to the
// delivery folder through the file_manager tool, so the copies land in the
// transaction-free path agents themselves use. Runs on every worker
// completion; failures are logged, never fatal.
func (a *Agent) autoDeliver(ctx context.Context) {
	workspace := a.toolbox.Workspace()
	fsys := os.DirFS(workspace)

	matches := []string{}
	err := doublestar.GlobWalk(fsys, deliverablePattern, func(path string, d fs.DirEntry) error {
		if !d.IsDir() {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		a.log.Warn("delivery scan failed", "error", err)
		return
	}

	for _, rel := range matches {
		result := a.toolbox.Execute(ctx, "file_manager", map[string]any{
			"operation": "copy_to_delivery",
			"path":      rel,
		})
		if msg, failed := result["error"].(string); failed {
			a.log.Warn("auto-delivery failed", "path", rel, "error", msg)
		} else {
			a.log.Info("artifact delivered", "path", rel)
		}
	}
}

// workspaceArtifacts lists the agent's workspace files (relative paths) for
// the final report to the parent.
func (a *Agent) workspaceArtifacts() []string {
	fsys := os.DirFS(a.toolbox.Workspace())

	artifacts := []string{}
	_ = doublestar.GlobWalk(fsys, "**/*", func(path string, d fs.DirEntry) error {
		if !d.IsDir() {
			artifacts = append(artifacts, path)
		}
		return nil
	})
	return artifacts
}

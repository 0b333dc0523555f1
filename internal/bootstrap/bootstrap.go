// Package bootstrap assembles a simulation run: configuration, ledger,
// model client, orchestrator, optional visualizer, and the output
// artifacts.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aos-sim/aos/internal/config"
	"github.com/aos-sim/aos/internal/events"
	"github.com/aos-sim/aos/internal/gateway"
	"github.com/aos-sim/aos/internal/ledger"
	"github.com/aos-sim/aos/internal/models"
	"github.com/aos-sim/aos/internal/orchestrator"
	"github.com/aos-sim/aos/internal/storage"
)

// Outcome is what a finished run hands back to the CLI.
type Outcome struct {
	Reason  string
	Results *orchestrator.Results
	Founder orchestrator.AgentResult
}

// Run executes one full simulation and writes the run artifacts (event
// log, ledger, results) under the configured output directory.
func Run(ctx context.Context, cfg *config.SystemConfig, visualize bool) (*Outcome, error) {
	if err := prepareOutputDirs(cfg); err != nil {
		return nil, err
	}

	llm, err := models.NewClient(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("build model client: %w", err)
	}

	bus := events.NewBus(1024)
	defer bus.Close()

	book := ledger.New()
	orch := orchestrator.New(cfg, book, llm, bus)

	logger := storage.NewEventLogger(cfg.OutputBaseDir, bus)
	defer logger.Close()

	var vizServer *gateway.Server
	if visualize {
		vizServer = gateway.NewServer(bus, orch.AgentsSnapshot, gateway.DefaultAddr)
		go func() {
			if err := vizServer.Start(); err != nil {
				slog.Warn("visualizer server stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = vizServer.Shutdown(shutdownCtx)
		}()
	}

	founderID, err := orch.SpawnFounder(ctx)
	if err != nil {
		return nil, fmt.Errorf("spawn founder: %w", err)
	}
	slog.Info("simulation starting",
		"objective", cfg.Objective,
		"founder", founderID,
		"budget", cfg.InitialBudget,
		"max_agents", cfg.MaxAgents,
	)

	reason := orch.Run(ctx)
	results := orch.CollectResults()

	if err := storage.WriteResults(cfg.OutputBaseDir, results); err != nil {
		slog.Error("write results", "error", err)
	}
	if err := book.SaveToFile(filepath.Join(cfg.OutputBaseDir, "ledger.json")); err != nil {
		slog.Error("save ledger", "error", err)
	}

	return &Outcome{
		Reason:  reason,
		Results: results,
		Founder: results.AgentStates[founderID],
	}, nil
}

// prepareOutputDirs resets the workspace and delivery directories so a run
// starts from a clean slate, and makes sure the plugins directory exists.
func prepareOutputDirs(cfg *config.SystemConfig) error {
	for _, dir := range []string{cfg.WorkspacePath, cfg.DeliveryPath} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("clean %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := os.MkdirAll(cfg.PluginsDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", cfg.PluginsDir, err)
	}
	return nil
}

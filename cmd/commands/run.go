package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/aos-sim/aos/internal/agent"
	"github.com/aos-sim/aos/internal/bootstrap"
	"github.com/aos-sim/aos/internal/config"
)

// NewRunCommand returns the run subcommand.
func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run a simulation for the given objective",
		ArgsUsage: "<objective>",
		Flags: []cli.Flag{
			&cli.FloatFlag{
				Name:  "budget",
				Usage: "Initial budget in USD for the founder",
			},
			&cli.IntFlag{
				Name:  "max-agents",
				Usage: "Population cap including forgers",
			},
			&cli.StringFlag{
				Name:  "output-dir",
				Usage: "Base directory for workspaces, deliveries and run artifacts",
			},
			&cli.StringFlag{
				Name:  "provider",
				Usage: "LLM provider: openai, deepseek, kimi, groq",
			},
			&cli.StringFlag{
				Name:  "model",
				Usage: "Model name passed to the provider",
			},
			&cli.BoolFlag{
				Name:  "visualize",
				Usage: "Serve the live hierarchy feed for the visualizer",
			},
			&cli.BoolFlag{
				Name:  "messaging",
				Usage: "Allow inter-agent messaging",
				Value: true,
			},
			&cli.BoolFlag{
				Name:  "adv-planning",
				Usage: "Founder plans with architect validation",
				Value: true,
			},
			&cli.BoolFlag{
				Name:  "tool-creation",
				Usage: "Allow agents to request forged tools",
			},
		},
		Action: runSimulation,
	}
}

func runSimulation(ctx context.Context, cmd *cli.Command) error {
	setupLogging(cmd.String("log-level"))

	objective := cmd.Args().First()
	if objective == "" {
		return fmt.Errorf("usage: aos run <objective>")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Objective = objective

	if v := cmd.Float("budget"); v > 0 {
		cfg.InitialBudget = v
	}
	if v := cmd.Int("max-agents"); v > 0 {
		cfg.MaxAgents = int(v)
	}
	if v := cmd.String("output-dir"); v != "" {
		cfg.OutputBaseDir = v
	}
	if v := cmd.String("provider"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := cmd.String("model"); v != "" {
		cfg.LLM.Model = v
	}
	cfg.Capabilities.AllowMessaging = cmd.Bool("messaging")
	cfg.Capabilities.AllowAdvancedPlanning = cmd.Bool("adv-planning")
	cfg.Capabilities.AllowToolCreation = cmd.Bool("tool-creation")

	if err := cfg.Finalize(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	outcome, err := bootstrap.Run(ctx, cfg, cmd.Bool("visualize"))
	if err != nil {
		return err
	}

	fmt.Printf("Simulation finished: %s\n", outcome.Reason)
	fmt.Printf("  agents: %d, total cost: $%.4f\n", outcome.Results.TotalAgents, outcome.Results.TotalCost)
	fmt.Printf("  founder: %s\n", outcome.Founder.State)
	fmt.Printf("  deliverables: %s\n", cfg.DeliveryPath)

	// An orderly run that ends with a failed founder is still exit 0; the
	// outcome is in the results, not the exit code.
	if outcome.Founder.State != string(agent.StateCompleted) {
		fmt.Fprintln(os.Stderr, "warning: the founder did not complete the objective")
	}
	return nil
}

// loadConfig reads the JSONC config when given, otherwise the defaults.
func loadConfig(cmd *cli.Command) (*config.SystemConfig, error) {
	if path := cmd.String("config"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}
	return config.Default(), nil
}

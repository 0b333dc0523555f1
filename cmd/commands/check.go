package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"

	"github.com/urfave/cli/v3"

	"github.com/aos-sim/aos/internal/models"
)

// NewCheckCommand returns the check subcommand.
func NewCheckCommand() *cli.Command {
	return &cli.Command{
		Name:   "check",
		Usage:  "Check the environment: provider API keys and the python runtime",
		Action: runCheck,
	}
}

func runCheck(_ context.Context, cmd *cli.Command) error {
	setupLogging(cmd.String("log-level"))

	envKeys := models.ProviderEnvKeys()
	providers := make([]string, 0, len(envKeys))
	for p := range envKeys {
		providers = append(providers, p)
	}
	sort.Strings(providers)

	anyKey := false
	for _, p := range providers {
		key := envKeys[p]
		if os.Getenv(key) != "" {
			fmt.Printf("  ok   %-10s %s is set\n", p, key)
			anyKey = true
		} else {
			fmt.Printf("  --   %-10s %s not set\n", p, key)
		}
	}

	if path, err := exec.LookPath("python3"); err == nil {
		fmt.Printf("  ok   python3    %s\n", path)
	} else {
		fmt.Println("  --   python3    not found; code_executor, pytest_runner and forged tools will fail")
	}

	if !anyKey {
		return fmt.Errorf("no provider API key found; set at least one of the listed variables")
	}
	return nil
}

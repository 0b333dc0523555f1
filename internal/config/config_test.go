package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.InitialBudget != 100.0 {
		t.Errorf("InitialBudget = %v, want 100", cfg.InitialBudget)
	}
	if cfg.MaxAgents != 10 {
		t.Errorf("MaxAgents = %d, want 10", cfg.MaxAgents)
	}
	if cfg.SpawnCost != 0.01 {
		t.Errorf("SpawnCost = %v, want 0.01", cfg.SpawnCost)
	}
	if cfg.ToolUseCost != 0.005 {
		t.Errorf("ToolUseCost = %v, want 0.005", cfg.ToolUseCost)
	}
	if cfg.SimulationTimeout.Duration() != 600*time.Second {
		t.Errorf("SimulationTimeout = %v, want 600s", cfg.SimulationTimeout.Duration())
	}
	if cfg.ShutdownTimeout.Duration() != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 10s", cfg.ShutdownTimeout.Duration())
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("LLM.Provider = %q, want openai", cfg.LLM.Provider)
	}
	if cfg.LLM.MaxTokens != 4000 {
		t.Errorf("LLM.MaxTokens = %d, want 4000", cfg.LLM.MaxTokens)
	}
}

func TestModelFromEnv(t *testing.T) {
	t.Setenv("AOS_MODEL_NAME", "deepseek-chat")

	cfg := Default()
	if cfg.LLM.Model != "deepseek-chat" {
		t.Errorf("LLM.Model = %q, want deepseek-chat", cfg.LLM.Model)
	}
}

func TestFinalizeDerivesPaths(t *testing.T) {
	cfg := Default()
	cfg.OutputBaseDir = "out"

	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if cfg.WorkspacePath != filepath.Join("out", "workspace") {
		t.Errorf("WorkspacePath = %q", cfg.WorkspacePath)
	}
	if cfg.DeliveryPath != filepath.Join("out", "delivery") {
		t.Errorf("DeliveryPath = %q", cfg.DeliveryPath)
	}
}

func TestFinalizeRejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SystemConfig)
	}{
		{"negative budget", func(c *SystemConfig) { c.InitialBudget = -1 }},
		{"zero max agents", func(c *SystemConfig) { c.MaxAgents = 0 }},
		{"negative input price", func(c *SystemConfig) { c.PricePer1MInputTokens = -1 }},
		{"negative spawn cost", func(c *SystemConfig) { c.SpawnCost = -0.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Finalize(); err == nil {
				t.Error("Finalize accepted invalid config")
			}
		})
	}
}

func TestLoadJSONC(t *testing.T) {
	t.Setenv("TEST_OBJECTIVE", "write a haiku")

	path := filepath.Join(t.TempDir(), "config.jsonc")
	content := `{
  // simulation settings
  "objective": "${{ .Env.TEST_OBJECTIVE }}",
  "initial_budget": 25.5,
  "max_agents": 3,
  "simulation_timeout": "120s",
  "llm": {
    "provider": "groq",
    "model": "llama-3.3-70b-versatile",
  },
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Objective != "write a haiku" {
		t.Errorf("Objective = %q, want env-expanded value", cfg.Objective)
	}
	if cfg.InitialBudget != 25.5 {
		t.Errorf("InitialBudget = %v, want 25.5", cfg.InitialBudget)
	}
	if cfg.MaxAgents != 3 {
		t.Errorf("MaxAgents = %d, want 3", cfg.MaxAgents)
	}
	if cfg.SimulationTimeout.Duration() != 120*time.Second {
		t.Errorf("SimulationTimeout = %v, want 120s", cfg.SimulationTimeout.Duration())
	}
	if cfg.LLM.Provider != "groq" {
		t.Errorf("LLM.Provider = %q, want groq", cfg.LLM.Provider)
	}
	// Defaults still apply to unset fields.
	if cfg.SpawnCost != 0.01 {
		t.Errorf("SpawnCost = %v, want default 0.01", cfg.SpawnCost)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.jsonc")); err == nil {
		t.Error("Load of missing file did not fail")
	}
}

func TestLoadDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\nAOS_TEST_KEY=value1\nAOS_TEST_QUOTED=\"with spaces\"\nexport AOS_TEST_EXPORTED=from-export\n\nbroken line\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("AOS_TEST_EXISTING", "keep")
	os.Unsetenv("AOS_TEST_KEY")
	os.Unsetenv("AOS_TEST_QUOTED")
	os.Unsetenv("AOS_TEST_EXPORTED")
	defer os.Unsetenv("AOS_TEST_KEY")
	defer os.Unsetenv("AOS_TEST_QUOTED")
	defer os.Unsetenv("AOS_TEST_EXPORTED")

	if err := LoadDotenv(path); err != nil {
		t.Fatalf("LoadDotenv: %v", err)
	}
	if got := os.Getenv("AOS_TEST_KEY"); got != "value1" {
		t.Errorf("AOS_TEST_KEY = %q, want value1", got)
	}
	if got := os.Getenv("AOS_TEST_QUOTED"); got != "with spaces" {
		t.Errorf("AOS_TEST_QUOTED = %q, want unquoted", got)
	}
	if got := os.Getenv("AOS_TEST_EXPORTED"); got != "from-export" {
		t.Errorf("AOS_TEST_EXPORTED = %q, want the export-prefixed value", got)
	}
	if got := os.Getenv("AOS_TEST_EXISTING"); got != "keep" {
		t.Errorf("existing var overridden: %q", got)
	}
}

func TestLoadDotenvMissingFile(t *testing.T) {
	if err := LoadDotenv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}
}

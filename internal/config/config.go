// Package config holds the immutable system configuration for a simulation run.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LLMConfig configures the language-model adapter.
type LLMConfig struct {
	Provider    string   `json:"provider"` // "openai", "deepseek", "kimi", "groq"
	Model       string   `json:"model"`
	Temperature float32  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
	Timeout     Duration `json:"timeout"`
}

// Capabilities defines the advanced behaviours available to agents.
type Capabilities struct {
	AllowMessaging        bool `json:"allow_messaging"`
	AllowAdvancedPlanning bool `json:"allow_advanced_planning"`
	AllowToolCreation     bool `json:"allow_tool_creation"`
}

// SystemConfig is the root configuration for a simulation. It is validated
// once by Finalize and treated as read-only afterwards.
type SystemConfig struct {
	OutputBaseDir string `json:"output_base_dir"`
	PluginsDir    string `json:"plugins_dir"`

	// Derived by Finalize from OutputBaseDir.
	WorkspacePath string `json:"-"`
	DeliveryPath  string `json:"-"`

	Objective     string  `json:"objective"`
	InitialBudget float64 `json:"initial_budget"`
	MaxAgents     int     `json:"max_agents"`
	LogLevel      string  `json:"log_level"`

	// Token pricing in USD per million tokens.
	PricePer1MInputTokens  float64 `json:"price_per_1m_input_tokens"`
	PricePer1MOutputTokens float64 `json:"price_per_1m_output_tokens"`

	// Fixed costs in USD.
	SpawnCost   float64 `json:"spawn_cost"`
	ToolUseCost float64 `json:"tool_use_cost"`

	SimulationTimeout Duration `json:"simulation_timeout"`
	ShutdownTimeout   Duration `json:"shutdown_timeout"`

	DisabledTools []string     `json:"disabled_tools"`
	LLM           LLMConfig    `json:"llm"`
	Capabilities  Capabilities `json:"capabilities"`
}

// Default returns a SystemConfig with the standard simulation defaults.
// Tool creation stays off unless asked for; it is the most expensive
// capability an agent can exercise.
func Default() *SystemConfig {
	cfg := &SystemConfig{
		Capabilities: Capabilities{
			AllowMessaging:        true,
			AllowAdvancedPlanning: true,
		},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *SystemConfig) {
	if cfg.OutputBaseDir == "" {
		cfg.OutputBaseDir = "output"
	}
	if cfg.PluginsDir == "" {
		cfg.PluginsDir = "plugins"
	}
	if cfg.InitialBudget == 0 {
		cfg.InitialBudget = 100.0
	}
	if cfg.MaxAgents == 0 {
		cfg.MaxAgents = 10
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.PricePer1MInputTokens == 0 {
		cfg.PricePer1MInputTokens = 5.0
	}
	if cfg.PricePer1MOutputTokens == 0 {
		cfg.PricePer1MOutputTokens = 15.0
	}
	if cfg.SpawnCost == 0 {
		cfg.SpawnCost = 0.01
	}
	if cfg.ToolUseCost == 0 {
		cfg.ToolUseCost = 0.005
	}
	if cfg.SimulationTimeout == 0 {
		cfg.SimulationTimeout = Duration(600 * time.Second)
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Model == "" {
		if v := os.Getenv("AOS_MODEL_NAME"); v != "" {
			cfg.LLM.Model = v
		} else {
			cfg.LLM.Model = "gpt-4o-mini"
		}
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 1
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 4000
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = Duration(90 * time.Second)
	}
}

// Finalize derives the workspace and delivery paths and validates the
// configuration. It must be called exactly once before the config is used.
func (c *SystemConfig) Finalize() error {
	c.WorkspacePath = filepath.Join(c.OutputBaseDir, "workspace")
	c.DeliveryPath = filepath.Join(c.OutputBaseDir, "delivery")

	if c.InitialBudget <= 0 {
		return fmt.Errorf("initial_budget must be positive, got %v", c.InitialBudget)
	}
	if c.MaxAgents <= 0 {
		return fmt.Errorf("max_agents must be positive, got %d", c.MaxAgents)
	}
	if c.PricePer1MInputTokens < 0 || c.PricePer1MOutputTokens < 0 {
		return fmt.Errorf("token prices cannot be negative")
	}
	if c.SpawnCost < 0 || c.ToolUseCost < 0 {
		return fmt.Errorf("costs cannot be negative")
	}
	return nil
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

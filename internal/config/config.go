// Package config loads the agent's YAML configuration file and applies
// environment overrides. The file describes one deployment: where state
// lives, how to reach the operator endpoint, and the mission and persona
// defaults for new symbols.
package config

// #region imports
import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/grounded-agent/internal/symbol"
)

// #endregion

// #region types

// CommanderSection configures the operator uplink. An empty URL disables
// it entirely.
type CommanderSection struct {
	URL        string `yaml:"url"`
	AuthToken  string `yaml:"auth_token"`
	TimeoutMs  int    `yaml:"timeout_ms"`
	MaxElapsed string `yaml:"max_elapsed"` // duration, e.g. "30s"
}

// MissionSection holds the defaults for newly created symbols.
type MissionSection struct {
	Name      string   `yaml:"name"`
	Objective string   `yaml:"objective"`
	Tags      []string `yaml:"tags"`
	ExpiresIn string   `yaml:"expires_in"` // duration from creation; empty = never
}

// PersonaSection overrides the built-in persona.
type PersonaSection struct {
	Name           string   `yaml:"name"`
	Role           string   `yaml:"role"`
	KnowledgeLevel string   `yaml:"knowledge_level"`
	Traits         []string `yaml:"traits"`
}

// AnalystSection tunes the analyst track.
type AnalystSection struct {
	DriftThreshold float64 `yaml:"drift_threshold"`
	MaxHistory     int     `yaml:"max_history"`
}

// VetoGateSection tunes the final decision stage.
type VetoGateSection struct {
	AutoApproveThreshold float64  `yaml:"auto_approve_threshold"`
	AutoBlockThreshold   float64  `yaml:"auto_block_threshold"`
	ApprovalTriggers     []string `yaml:"approval_triggers"`
}

// LoopSection tunes the maintenance loop.
type LoopSection struct {
	IntervalMs         int  `yaml:"interval_ms"`
	UpdateFrequency    int  `yaml:"update_frequency"`
	ComponentTimeoutMs int  `yaml:"component_timeout_ms"`
	AutoValidate       bool `yaml:"auto_validate"`
}

// StealthSection tunes the humanizing send delay.
type StealthSection struct {
	Enabled    bool `yaml:"enabled"`
	MinDelayMs int  `yaml:"min_delay_ms"`
	MaxDelayMs int  `yaml:"max_delay_ms"`
}

// Config is the whole file.
type Config struct {
	DataDir    string           `yaml:"data_dir"`
	AuditDB    string           `yaml:"audit_db"`
	MaxBackups int              `yaml:"max_backups"` // 0 = store default, negative disables
	Debug      bool             `yaml:"debug"`
	Commander  CommanderSection `yaml:"commander"`
	Mission    MissionSection   `yaml:"mission"`
	Persona    PersonaSection   `yaml:"persona"`
	Analyst    AnalystSection   `yaml:"analyst"`
	VetoGate   VetoGateSection  `yaml:"veto_gate"`
	Loop       LoopSection      `yaml:"loop"`
	Stealth    StealthSection   `yaml:"stealth"`
}

// #endregion types

// #region load

// Default returns the zero-configuration deployment: local data dir, no
// uplink, hourly loop.
func Default() Config {
	return Config{
		DataDir: "data",
		Loop:    LoopSection{AutoValidate: true},
	}
}

// Load reads the file at path. An empty path falls back to $AGENT_CONFIG,
// then to pure defaults. Environment overrides always apply last.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("AGENT_CONFIG")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.AuditDB == "" {
		cfg.AuditDB = filepath.Join(cfg.DataDir, "audit.db")
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("AGENT_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("AGENT_COMMANDER_URL"); v != "" {
		c.Commander.URL = v
	}
	if v := os.Getenv("AGENT_COMMANDER_TOKEN"); v != "" {
		c.Commander.AuthToken = v
	}
	if v := os.Getenv("AGENT_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Debug = b
		}
	}
}

// #endregion load

// #region translate

// SymbolParams translates the file's mission and persona sections into
// creation parameters. Blank sections fall through to the symbol package's
// own defaults.
func (c Config) SymbolParams() (symbol.NewParams, error) {
	if c.Mission.Name == "" {
		return symbol.NewParams{}, fmt.Errorf("mission name required in config")
	}
	p := symbol.NewParams{
		MissionName: c.Mission.Name,
		Objective:   c.Mission.Objective,
		Tags:        c.Mission.Tags,
		Config:      c.symbolConfig(),
	}
	if c.Mission.ExpiresIn != "" {
		d, err := time.ParseDuration(c.Mission.ExpiresIn)
		if err != nil {
			return symbol.NewParams{}, fmt.Errorf("parse expires_in: %w", err)
		}
		p.ExpiresAt = time.Now().UTC().Add(d)
	}
	return p, nil
}

func (c Config) symbolConfig() symbol.Config {
	return symbol.Config{
		Performer: symbol.PerformerConfig{
			Persona: symbol.Persona{
				Name:           c.Persona.Name,
				Role:           c.Persona.Role,
				KnowledgeLevel: c.Persona.KnowledgeLevel,
				Traits:         c.Persona.Traits,
			},
		},
		Analyst: symbol.AnalystConfig{
			DriftThreshold: c.Analyst.DriftThreshold,
			MaxHistory:     c.Analyst.MaxHistory,
		},
		VetoGate: symbol.VetoGateConfig{
			AutoApproveThreshold: c.VetoGate.AutoApproveThreshold,
			AutoBlockThreshold:   c.VetoGate.AutoBlockThreshold,
			ApprovalTriggers:     c.VetoGate.ApprovalTriggers,
		},
		Stealth: symbol.StealthConfig{
			Enabled:    c.Stealth.Enabled,
			MinDelayMs: c.Stealth.MinDelayMs,
			MaxDelayMs: c.Stealth.MaxDelayMs,
		},
		Ralph: symbol.RalphConfig{
			IntervalMs:         c.Loop.IntervalMs,
			UpdateFrequency:    c.Loop.UpdateFrequency,
			ComponentTimeoutMs: c.Loop.ComponentTimeoutMs,
			AutoValidate:       c.Loop.AutoValidate,
		},
	}
}

// CommanderTimeout returns the per-attempt timeout.
func (c Config) CommanderTimeout() time.Duration {
	if c.Commander.TimeoutMs <= 0 {
		return 0
	}
	return time.Duration(c.Commander.TimeoutMs) * time.Millisecond
}

// CommanderMaxElapsed returns the total retry window.
func (c Config) CommanderMaxElapsed() (time.Duration, error) {
	if c.Commander.MaxElapsed == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Commander.MaxElapsed)
}

// #endregion translate

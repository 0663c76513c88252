package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
)

// ConfigError reports an invalid configuration value. Validation happens at
// startup so a bad threshold never surfaces mid-cycle.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Config holds all essence configuration.
type Config struct {
	Storage     StorageConfig     `toml:"storage"`
	Scoring     ScoringConfig     `toml:"scoring"`
	Maintenance MaintenanceConfig `toml:"maintenance"`
	Index       IndexConfig       `toml:"index"`
	Server      ServerConfig      `toml:"server"`
}

type StorageConfig struct {
	Root string `toml:"root" env:"ESSENCE_STORAGE_ROOT"` // resolved via DefaultRoot() when empty
}

// ScoringConfig carries the importance formula constants.
type ScoringConfig struct {
	InitialImportance float64 `toml:"initial_importance" env:"ESSENCE_INITIAL_IMPORTANCE"`
	GracePeriodDays   int     `toml:"grace_period_days" env:"ESSENCE_GRACE_PERIOD_DAYS"`
	DensityBase       float64 `toml:"density_base"`
	WeightAccess      float64 `toml:"weight_access"`
	WeightRetrieval   float64 `toml:"weight_retrieval"`
	MaxDensityBonus   float64 `toml:"max_density_bonus"`

	// Stability factors by provenance, all in (0, 1].
	StabilityUser  float64 `toml:"stability_user"`
	StabilityRole  float64 `toml:"stability_role"`
	StabilityWorld float64 `toml:"stability_world"`
}

// MaintenanceConfig controls the GC cycle.
type MaintenanceConfig struct {
	SilverThreshold float64 `toml:"silver_threshold" env:"ESSENCE_SILVER_THRESHOLD"`
	DustThreshold   float64 `toml:"dust_threshold" env:"ESSENCE_DUST_THRESHOLD"`
	SoftCapGolden   int     `toml:"soft_cap_golden" env:"ESSENCE_SOFT_CAP_GOLDEN"`
	MinKeepNodes    int     `toml:"min_keep_nodes" env:"ESSENCE_MIN_KEEP_NODES"`
	RetentionDays   int     `toml:"retention_days" env:"ESSENCE_RETENTION_DAYS"`

	// Schedule is a standard cron expression for automatic GC in serve
	// mode. Empty disables scheduled runs.
	Schedule string `toml:"schedule" env:"ESSENCE_GC_SCHEDULE"`
	// Execute controls whether scheduled runs mutate. Manual runs are
	// dry by default and opt in via --execute.
	Execute bool `toml:"execute" env:"ESSENCE_GC_EXECUTE"`

	// NotifyTimeoutSec bounds each index-removal notification.
	NotifyTimeoutSec int `toml:"notify_timeout_sec" env:"ESSENCE_NOTIFY_TIMEOUT_SEC"`
}

type IndexConfig struct {
	Path                string  `toml:"path" env:"ESSENCE_INDEX_PATH"` // sqlite file, empty = <root>/index.db
	OllamaURL           string  `toml:"ollama_url" env:"ESSENCE_OLLAMA_URL"`
	EmbeddingModel      string  `toml:"embedding_model" env:"ESSENCE_EMBEDDING_MODEL"`
	Dimensions          int     `toml:"dimensions"`
	SimilarityThreshold float64 `toml:"similarity_threshold"` // potential duplicate
	MergeThreshold      float64 `toml:"merge_threshold"`      // auto-merge on encode
}

type ServerConfig struct {
	Bind string `toml:"bind" env:"ESSENCE_BIND"`
	Port int    `toml:"port" env:"ESSENCE_PORT"`
}

// Default returns a Config with the v3.1 engine defaults.
func Default() Config {
	return Config{
		Storage: StorageConfig{},
		Scoring: ScoringConfig{
			InitialImportance: 10.0,
			GracePeriodDays:   3,
			DensityBase:       0.0,
			WeightAccess:      0.2,
			WeightRetrieval:   0.1,
			MaxDensityBonus:   5.0,
			StabilityUser:     1.0,
			StabilityRole:     0.995,
			StabilityWorld:    0.95,
		},
		Maintenance: MaintenanceConfig{
			SilverThreshold:  5.0,
			DustThreshold:    1.0,
			SoftCapGolden:    50,
			MinKeepNodes:     20,
			RetentionDays:    30,
			Schedule:         "",
			Execute:          false,
			NotifyTimeoutSec: 30,
		},
		Index: IndexConfig{
			OllamaURL:           "http://localhost:11434",
			EmbeddingModel:      "nomic-embed-text",
			Dimensions:          768,
			SimilarityThreshold: 0.75,
			MergeThreshold:      0.85,
		},
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37911,
		},
	}
}

// Load reads the TOML config at path (missing file is fine, defaults apply),
// applies environment overrides, and validates.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("decode config %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// DefaultPath returns the default config location: ~/.essence/config.toml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".essence", "config.toml")
}

// Validate checks invariants that must hold before any cycle runs.
func (c *Config) Validate() error {
	if c.Scoring.InitialImportance <= 0 {
		return &ConfigError{Field: "scoring.initial_importance", Reason: "must be positive"}
	}
	if c.Scoring.GracePeriodDays < 0 {
		return &ConfigError{Field: "scoring.grace_period_days", Reason: "must not be negative"}
	}
	if c.Scoring.MaxDensityBonus < 0 {
		return &ConfigError{Field: "scoring.max_density_bonus", Reason: "must not be negative"}
	}
	for field, s := range map[string]float64{
		"scoring.stability_user":  c.Scoring.StabilityUser,
		"scoring.stability_role":  c.Scoring.StabilityRole,
		"scoring.stability_world": c.Scoring.StabilityWorld,
	} {
		if s <= 0 || s > 1 {
			return &ConfigError{Field: field, Reason: "must be in (0, 1]"}
		}
	}
	if c.Maintenance.DustThreshold >= c.Maintenance.SilverThreshold {
		return &ConfigError{Field: "maintenance.dust_threshold", Reason: "must be below silver_threshold"}
	}
	if c.Maintenance.SoftCapGolden <= 0 {
		return &ConfigError{Field: "maintenance.soft_cap_golden", Reason: "must be positive"}
	}
	if c.Maintenance.MinKeepNodes < 0 {
		return &ConfigError{Field: "maintenance.min_keep_nodes", Reason: "must not be negative"}
	}
	if c.Maintenance.RetentionDays <= 0 {
		return &ConfigError{Field: "maintenance.retention_days", Reason: "must be positive"}
	}
	if c.Maintenance.NotifyTimeoutSec <= 0 {
		return &ConfigError{Field: "maintenance.notify_timeout_sec", Reason: "must be positive"}
	}
	if c.Maintenance.Schedule != "" {
		if _, err := cron.ParseStandard(c.Maintenance.Schedule); err != nil {
			return &ConfigError{Field: "maintenance.schedule", Reason: fmt.Sprintf("invalid cron expression: %v", err)}
		}
	}
	return nil
}

// NotifyTimeout returns the notifier timeout as a duration.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Maintenance.NotifyTimeoutSec) * time.Second
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

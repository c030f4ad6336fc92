/*
Copyright 2026 The Incident Core Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads and validates cmd/autopilotd's single YAML
// configuration file, with environment-variable overrides for the values
// operators most often need to change per-deployment without editing the
// file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ServerConfig configures cmd/autopilotd's HTTP surface (the one
// owned HTTP surface — /metrics and /healthz only).
type ServerConfig struct {
	MetricsPort string `yaml:"metrics_port" validate:"required"`
	HealthPort  string `yaml:"health_port"`
}

// StoreConfig selects and configures the C1 KeyValueStore backend.
type StoreConfig struct {
	Type      string `yaml:"type" validate:"required,oneof=redis inmem"`
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
}

// AIConfig selects and configures the AIAnalyzer seam backend. Provider
// and the credential fields are not hot-reloadable.
type AIConfig struct {
	Provider        string        `yaml:"provider" validate:"required,oneof=anthropic bedrock"`
	AnthropicAPIKey string        `yaml:"anthropic_api_key"`
	AnthropicModel  string        `yaml:"anthropic_model"`
	BedrockRegion   string        `yaml:"bedrock_region"`
	BedrockModelID  string        `yaml:"bedrock_model_id"`
	Timeout         time.Duration `yaml:"timeout"`
}

// AutonomyConfig configures C6's mode, confidence gate, and safety rails.
type AutonomyConfig struct {
	Mode                  string `yaml:"mode" validate:"required,oneof=manual supervised autonomous nightMode"`
	ConfidenceThreshold   float64 `yaml:"confidence_threshold" validate:"gte=0,lte=100"`
	NightStartHour        int     `yaml:"night_start_hour" validate:"gte=0,lte=23"`
	NightEndHour          int     `yaml:"night_end_hour" validate:"gte=0,lte=23"`
	MaxConcurrentActions  int     `yaml:"max_concurrent_actions" validate:"gt=0"`
	CooldownSeconds       int     `yaml:"cooldown_seconds" validate:"gt=0"`
	// PolicyPath points at a rego file overriding the compiled-in safety
	// policy; empty means use the embedded one.
	PolicyPath string `yaml:"policy_path"`
	DryRun     bool   `yaml:"dry_run"`
}

// RiskConfig configures C9's deployment risk gates.
type RiskConfig struct {
	AutoRollbackEnabled bool `yaml:"auto_rollback_enabled"`
	ImageDiffEnabled    bool `yaml:"image_diff_enabled"`
}

// LearningConfig configures C4's action-type promotion/demotion tracking.
type LearningConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig configures the zap logger built in cmd/autopilotd.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"required,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"required,oneof=json console"`
}

// TracingConfig configures internal/tracing's process-wide OpenTelemetry
// providers. SampleRatio <= 0 disables tracing entirely.
type TracingConfig struct {
	ServiceName string  `yaml:"service_name" validate:"required"`
	SampleRatio float64 `yaml:"sample_ratio" validate:"gte=0,lte=1"`
}

// Config is the root of the YAML configuration file.
type Config struct {
	Server   ServerConfig   `yaml:"server" validate:"required"`
	Store    StoreConfig    `yaml:"store" validate:"required"`
	AI       AIConfig       `yaml:"ai" validate:"required"`
	Autonomy AutonomyConfig `yaml:"autonomy" validate:"required"`
	Risk     RiskConfig     `yaml:"risk"`
	Learning LearningConfig `yaml:"learning"`
	Logging  LoggingConfig  `yaml:"logging" validate:"required"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

var validate = validator.New()

// Load reads path, applies environment-variable overrides, fills defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return cfg, nil
}

// defaultConfig seeds every value that has a sane operational default, so a
// minimal YAML file (server + ai only, say) still produces a valid Config.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{MetricsPort: "9090", HealthPort: "8081"},
		Store:  StoreConfig{Type: "inmem"},
		AI:     AIConfig{Provider: "anthropic", Timeout: 120 * time.Second},
		Autonomy: AutonomyConfig{
			Mode:                 "supervised",
			ConfidenceThreshold:  75,
			NightStartHour:       22,
			NightEndHour:         6,
			MaxConcurrentActions: 3,
			CooldownSeconds:      300,
		},
		Risk:     RiskConfig{AutoRollbackEnabled: true, ImageDiffEnabled: false},
		Learning: LearningConfig{Enabled: true},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		Tracing:  TracingConfig{ServiceName: "autopilotd", SampleRatio: 0},
	}
}

// loadFromEnv overrides the handful of values operators most often set per
// environment rather than per-file (credentials, ports, log level).
func loadFromEnv(cfg *Config) error {
	if v := os.Getenv("METRICS_PORT"); v != "" {
		cfg.Server.MetricsPort = v
	}
	if v := os.Getenv("HEALTH_PORT"); v != "" {
		cfg.Server.HealthPort = v
	}
	if v := os.Getenv("STORE_REDIS_ADDR"); v != "" {
		cfg.Store.RedisAddr = v
		cfg.Store.Type = "redis"
	}
	if v := os.Getenv("AI_PROVIDER"); v != "" {
		cfg.AI.Provider = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.AI.AnthropicAPIKey = v
	}
	if v := os.Getenv("BEDROCK_REGION"); v != "" {
		cfg.AI.BedrockRegion = v
	}
	if v := os.Getenv("AUTONOMY_MODE"); v != "" {
		cfg.Autonomy.Mode = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DRY_RUN"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid DRY_RUN value %q: %w", v, err)
		}
		cfg.Autonomy.DryRun = b
	}
	if v := os.Getenv("TRACING_SAMPLE_RATIO"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid TRACING_SAMPLE_RATIO value %q: %w", v, err)
		}
		cfg.Tracing.SampleRatio = f
	}
	return nil
}

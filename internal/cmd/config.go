package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration, loaded from YAML with environment
// overrides for the deployment-specific values. Durations are plain integers
// in the unit their name carries.
type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Game struct {
		RequiredPlayers  int     `yaml:"required_players"`
		ZoneRadiusM      float64 `yaml:"zone_radius_m"`
		BeforeTimeoutSec int     `yaml:"before_timeout_sec"`
		TimelineSec      int     `yaml:"timeline_sec"`
		BufferTimeoutSec int     `yaml:"buffer_timeout_sec"`
	} `yaml:"game"`

	Contest struct {
		ProgressStep  int     `yaml:"progress_step"`
		PassiveDecay  int     `yaml:"passive_decay"`
		AnchorCellDeg float64 `yaml:"anchor_cell_deg"`
		TickMs        int     `yaml:"tick_ms"`
	} `yaml:"contest"`

	Feed struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"feed"`

	Archive struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"archive"`
}

// DatabaseConfig holds the archive's Postgres settings, read from DB_* env.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN returns the Postgres connection URL.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

func databaseConfigFromEnv() DatabaseConfig {
	return DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvAsInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", "postgres"),
		Database: getEnv("DB_NAME", "geocontest"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func defaultConfig() Config {
	var config Config
	config.Server.Port = 8080
	config.Game.RequiredPlayers = 2
	config.Game.ZoneRadiusM = 1000
	config.Game.BeforeTimeoutSec = 60
	config.Game.TimelineSec = 3600
	config.Game.BufferTimeoutSec = 600
	config.Contest.ProgressStep = 5
	config.Contest.PassiveDecay = 0
	config.Contest.AnchorCellDeg = 0.0005
	config.Contest.TickMs = 1000
	config.Feed.SubjectPrefix = "contest.events"
	return config
}

func loadConfig(path string) (Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No file: defaults plus env overrides.
			applyEnvOverrides(&config)
			return config, validateConfig(config)
		}
		return config, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(&config)
	return config, validateConfig(config)
}

func applyEnvOverrides(config *Config) {
	config.Server.Port = getEnvAsInt("PORT", config.Server.Port)
	config.Feed.URL = getEnv("NATS_URL", config.Feed.URL)
}

func validateConfig(config Config) error {
	if config.Game.RequiredPlayers < 2 || config.Game.RequiredPlayers%2 != 0 {
		return fmt.Errorf("required_players must be even and at least 2, got %d", config.Game.RequiredPlayers)
	}
	if config.Contest.ProgressStep <= 0 {
		return fmt.Errorf("progress_step must be positive, got %d", config.Contest.ProgressStep)
	}
	if config.Contest.AnchorCellDeg <= 0 {
		return fmt.Errorf("anchor_cell_deg must be positive, got %g", config.Contest.AnchorCellDeg)
	}
	if config.Contest.TickMs <= 0 {
		return fmt.Errorf("tick_ms must be positive, got %d", config.Contest.TickMs)
	}
	return nil
}

package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort           = 8080
	defaultDBPath         = "./data/platecalc.db"
	defaultRedisAddr      = "localhost:6379"
	defaultMaxTargetKg    = 1000.0
	defaultHistoryLimit   = 20
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
)

// upperMaxTargetKg caps max_target_kg; one side at this weight is a 2.5
// million entry table.
const upperMaxTargetKg = 5000.0

// Config aggregates runtime configuration resolved from multiple sources.
type Config struct {
	Port     int
	DBPath   string
	LogLevel string

	Redis RedisConfig

	// MaxTargetKg bounds the optimizer's table size; requests above it are rejected.
	MaxTargetKg  float64
	HistoryLimit int

	// A zero rate or burst disables rate limiting.
	RateLimitRPS   float64
	RateLimitBurst int

	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	IdleTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

// RedisConfig holds the result cache connection settings.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// yamlConfig represents the YAML configuration file structure.
type yamlConfig struct {
	Port         int           `yaml:"port"`
	DBPath       string        `yaml:"db_path"`
	LogLevel     string        `yaml:"log_level"`
	MaxTargetKg  float64       `yaml:"max_target_kg"`
	HistoryLimit int           `yaml:"history_limit"`
	Redis        yamlRedis     `yaml:"redis"`
	RateLimit    yamlRateLimit `yaml:"rate_limit"`
	Timeouts     yamlTimeouts  `yaml:"timeouts"`
}

type yamlRedis struct {
	Enabled  *bool  `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       *int   `yaml:"db"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

type yamlTimeouts struct {
	Read     string `yaml:"read"`
	Write    string `yaml:"write"`
	Idle     string `yaml:"idle"`
	Shutdown string `yaml:"shutdown_grace_period"`
}

// CLIOverrides holds command-line flag overrides. Nil fields were not set.
type CLIOverrides struct {
	ConfigFile string
	Port       *int
	DBPath     *string
	Verbose    *bool
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > environment variables > YAML config > defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := Default()

	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := applyYAMLConfig(&cfg, yamlCfg); err != nil {
			return Config{}, fmt.Errorf("apply YAML config: %w", err)
		}
	}

	if err := applyEnvConfig(&cfg); err != nil {
		return Config{}, err
	}

	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Default returns a Config with default values.
func Default() Config {
	return Config{
		Port:     defaultPort,
		DBPath:   defaultDBPath,
		LogLevel: "info",
		Redis: RedisConfig{
			Enabled: false,
			Addr:    defaultRedisAddr,
		},
		MaxTargetKg:         defaultMaxTargetKg,
		HistoryLimit:        defaultHistoryLimit,
		RateLimitRPS:        defaultRateLimitRPS,
		RateLimitBurst:      defaultRateLimitBurst,
		ReadTimeout:         15 * time.Second,
		WriteTimeout:        15 * time.Second,
		IdleTimeout:         60 * time.Second,
		ShutdownGracePeriod: 10 * time.Second,
	}
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) error {
	if yamlCfg.Port != 0 {
		cfg.Port = yamlCfg.Port
	}
	if yamlCfg.DBPath != "" {
		cfg.DBPath = yamlCfg.DBPath
	}
	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.MaxTargetKg != 0 {
		cfg.MaxTargetKg = yamlCfg.MaxTargetKg
	}
	if yamlCfg.HistoryLimit != 0 {
		cfg.HistoryLimit = yamlCfg.HistoryLimit
	}

	if yamlCfg.Redis.Enabled != nil {
		cfg.Redis.Enabled = *yamlCfg.Redis.Enabled
	}
	if yamlCfg.Redis.Addr != "" {
		cfg.Redis.Addr = yamlCfg.Redis.Addr
	}
	if yamlCfg.Redis.Password != "" {
		cfg.Redis.Password = yamlCfg.Redis.Password
	}
	if yamlCfg.Redis.DB != nil {
		cfg.Redis.DB = *yamlCfg.Redis.DB
	}

	if yamlCfg.RateLimit.RPS != nil {
		cfg.RateLimitRPS = *yamlCfg.RateLimit.RPS
	}
	if yamlCfg.RateLimit.Burst != nil {
		cfg.RateLimitBurst = *yamlCfg.RateLimit.Burst
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"timeouts.read", yamlCfg.Timeouts.Read, &cfg.ReadTimeout},
		{"timeouts.write", yamlCfg.Timeouts.Write, &cfg.WriteTimeout},
		{"timeouts.idle", yamlCfg.Timeouts.Idle, &cfg.IdleTimeout},
		{"timeouts.shutdown_grace_period", yamlCfg.Timeouts.Shutdown, &cfg.ShutdownGracePeriod},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	return nil
}

// applyEnvConfig applies environment variable configuration. Malformed values
// are reported instead of silently ignored.
func applyEnvConfig(cfg *Config) error {
	if raw := env("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("PORT: invalid integer %q", raw)
		}
		cfg.Port = port
	}

	if raw := env("DB_PATH"); raw != "" {
		cfg.DBPath = raw
	}

	if raw := env("LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}

	if raw := env("REDIS_ENABLED"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("REDIS_ENABLED: invalid boolean %q", raw)
		}
		cfg.Redis.Enabled = enabled
	}

	if raw := env("REDIS_ADDR"); raw != "" {
		cfg.Redis.Addr = raw
	}

	if raw := os.Getenv("REDIS_PASSWORD"); raw != "" {
		cfg.Redis.Password = raw
	}

	if raw := env("REDIS_DB"); raw != "" {
		db, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("REDIS_DB: invalid integer %q", raw)
		}
		cfg.Redis.DB = db
	}

	if raw := env("MAX_TARGET_KG"); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("MAX_TARGET_KG: invalid number %q", raw)
		}
		cfg.MaxTargetKg = value
	}

	if raw := env("HISTORY_LIMIT"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("HISTORY_LIMIT: invalid integer %q", raw)
		}
		cfg.HistoryLimit = value
	}

	if raw := env("RATE_LIMIT_RPS"); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_RPS: invalid number %q", raw)
		}
		cfg.RateLimitRPS = value
	}

	if raw := env("RATE_LIMIT_BURST"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_BURST: invalid integer %q", raw)
		}
		cfg.RateLimitBurst = value
	}

	return nil
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	if overrides.Port != nil {
		cfg.Port = *overrides.Port
	}
	if overrides.DBPath != nil && *overrides.DBPath != "" {
		cfg.DBPath = *overrides.DBPath
	}
	if overrides.Verbose != nil && *overrides.Verbose {
		cfg.LogLevel = "debug"
	}
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port)
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if !(cfg.MaxTargetKg > 0) || math.IsInf(cfg.MaxTargetKg, 1) {
		return fmt.Errorf("max target weight must be a positive number, got %v", cfg.MaxTargetKg)
	}
	if cfg.MaxTargetKg > upperMaxTargetKg {
		return fmt.Errorf("max target weight must not exceed %vkg, got %v", upperMaxTargetKg, cfg.MaxTargetKg)
	}
	if cfg.HistoryLimit <= 0 {
		return fmt.Errorf("history limit must be > 0, got %d", cfg.HistoryLimit)
	}
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return fmt.Errorf("redis address cannot be empty when redis is enabled")
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

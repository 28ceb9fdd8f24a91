// Package config loads the agent's configuration from an optional YAML file
// with environment variable overrides on top.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names for the storage layer.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendJSON     = "json"
)

// Config holds all configuration values.
type Config struct {
	// Storage
	Backend     string `yaml:"backend"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	JSONPath    string `yaml:"json_path"`

	// Search
	TavilyAPIKey string `yaml:"tavily_api_key"`
	SearchDepth  string `yaml:"search_depth"`
	MaxSources   int    `yaml:"max_sources"`

	// Extraction
	ExtractWorkers    int           `yaml:"extract_workers"`
	ExtractTimeout    time.Duration `yaml:"-"`
	ExtractTimeoutStr string        `yaml:"extract_timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Jitter            float64       `yaml:"jitter"`
	RespectRobots     bool          `yaml:"respect_robots"`
	Fingerprint       string        `yaml:"fingerprint"`
	ProxyFile         string        `yaml:"proxy_file"`

	// Synthesis
	OpenAIAPIKey string `yaml:"openai_api_key"`
	OpenAIModel  string `yaml:"openai_model"`
	GoogleAPIKey string `yaml:"google_api_key"`
	GoogleModel  string `yaml:"google_model"`

	// Observability
	MetricsPort int        `yaml:"metrics_port"`
	LogFile     string     `yaml:"log_file"`
	LogLevel    slog.Level `yaml:"-"`
	LogLevelStr string     `yaml:"log_level"`
}

// Load builds the configuration: defaults, then the YAML file at path if one
// is given, then environment variables on top.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if cfg.LogLevelStr != "" {
		cfg.LogLevel = parseLogLevel(cfg.LogLevelStr)
	}
	if cfg.ExtractTimeoutStr != "" {
		d, err := time.ParseDuration(cfg.ExtractTimeoutStr)
		if err != nil {
			return cfg, fmt.Errorf("parse extract_timeout: %w", err)
		}
		cfg.ExtractTimeout = d
	}

	switch cfg.Backend {
	case BackendSQLite, BackendPostgres, BackendJSON:
	default:
		return cfg, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	return cfg, nil
}

func defaults() Config {
	return Config{
		Backend:           BackendSQLite,
		SQLitePath:        "research.db",
		JSONPath:          "research.json",
		SearchDepth:       "advanced",
		MaxSources:        3,
		ExtractWorkers:    3,
		ExtractTimeout:    30 * time.Second,
		RequestsPerSecond: 1,
		Jitter:            0.3,
		RespectRobots:     true,
		Fingerprint:       "chrome",
		OpenAIModel:       "gpt-4o-mini",
		GoogleModel:       "gemini-1.5-flash",
		MetricsPort:       0,
		LogLevel:          slog.LevelInfo,
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.Backend, "RESEARCH_BACKEND")
	setString(&cfg.SQLitePath, "RESEARCH_SQLITE_PATH")
	setString(&cfg.PostgresDSN, "RESEARCH_POSTGRES_DSN")
	setString(&cfg.JSONPath, "RESEARCH_JSON_PATH")

	setString(&cfg.TavilyAPIKey, "TAVILY_API_KEY")
	setString(&cfg.SearchDepth, "RESEARCH_SEARCH_DEPTH")
	setInt(&cfg.MaxSources, "RESEARCH_MAX_SOURCES")

	setInt(&cfg.ExtractWorkers, "RESEARCH_EXTRACT_WORKERS")
	setString(&cfg.ExtractTimeoutStr, "RESEARCH_EXTRACT_TIMEOUT")
	setFloat(&cfg.RequestsPerSecond, "RESEARCH_REQUESTS_PER_SECOND")
	setFloat(&cfg.Jitter, "RESEARCH_JITTER")
	setBool(&cfg.RespectRobots, "RESEARCH_RESPECT_ROBOTS")
	setString(&cfg.Fingerprint, "RESEARCH_FINGERPRINT")
	setString(&cfg.ProxyFile, "RESEARCH_PROXY_FILE")

	setString(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.OpenAIModel, "RESEARCH_OPENAI_MODEL")
	setString(&cfg.GoogleAPIKey, "GOOGLE_API_KEY")
	setString(&cfg.GoogleModel, "RESEARCH_GOOGLE_MODEL")

	setInt(&cfg.MetricsPort, "RESEARCH_METRICS_PORT")
	setString(&cfg.LogFile, "RESEARCH_LOG_FILE")
	setString(&cfg.LogLevelStr, "RESEARCH_LOG_LEVEL")
}

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setInt(dst *int, key string) {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

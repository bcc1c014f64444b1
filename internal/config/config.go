// Package config provides configuration loading and validation for the
// future-self backend. Values come from defaults, an optional config.yaml,
// and APP_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config defines the application configuration for all components of the
// backend: logging, HTTP server, database, AI provider, task queue,
// location lookups, and scheduled jobs.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	AI        AIConfig        `mapstructure:"ai"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Location  LocationConfig  `mapstructure:"location"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LogConfig controls log level and output format.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"             validate:"required"`
	APIKey          string        `mapstructure:"api_key"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     validate:"min=1s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    validate:"min=1s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=1s"`
	HistoryLimit    int           `mapstructure:"history_limit"    validate:"min=1,max=200"`
}

// DatabaseConfig holds SQLite connection settings.
type DatabaseConfig struct {
	Path            string        `mapstructure:"path" validate:"required"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// AIConfig selects and tunes the language model provider. Provider "ollama"
// speaks the native Ollama HTTP API; "openai" speaks any OpenAI-compatible
// endpoint (including Ollama's /v1).
type AIConfig struct {
	Provider    string        `mapstructure:"provider"    validate:"oneof=ollama openai"`
	BaseURL     string        `mapstructure:"base_url"    validate:"required,url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"       validate:"required"`
	Temperature float32       `mapstructure:"temperature" validate:"min=0,max=2"`
	Timeout     time.Duration `mapstructure:"timeout"     validate:"min=1s,max=10m"`
	MaxRetries  int           `mapstructure:"max_retries" validate:"min=0,max=10"`
	RetryDelay  time.Duration `mapstructure:"retry_delay" validate:"min=100ms,max=1m"`
}

// QueueConfig holds Redis task queue settings.
type QueueConfig struct {
	RedisURL      string        `mapstructure:"redis_url"       validate:"required"`
	Name          string        `mapstructure:"name"            validate:"required"`
	Concurrency   int           `mapstructure:"concurrency"     validate:"min=1,max=64"`
	TaskTimeLimit time.Duration `mapstructure:"task_time_limit" validate:"min=1s"`
	ResultTTL     time.Duration `mapstructure:"result_ttl"      validate:"min=1m"`
}

// LocationConfig holds API keys and endpoints for weather and event lookups.
type LocationConfig struct {
	WeatherAPIKey  string `mapstructure:"weather_api_key"`
	WeatherBaseURL string `mapstructure:"weather_base_url" validate:"url"`
	GeoBaseURL     string `mapstructure:"geo_base_url"     validate:"url"`
	EventsAPIKey   string `mapstructure:"events_api_key"`
	EventsBaseURL  string `mapstructure:"events_base_url"  validate:"url"`
	EventRadius    string `mapstructure:"event_radius"`
	EventSize      int    `mapstructure:"event_size"       validate:"min=1,max=100"`
}

// SchedulerConfig maps job names to their cron schedules.
type SchedulerConfig struct {
	Jobs map[string]JobConfig `mapstructure:"jobs"`
}

// JobConfig enables a single scheduled job with a cron expression.
type JobConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// Load reads configuration in order of precedence: defaults, the config
// file at path, APP_* environment variables. The config file is optional.
// The result is validated before being returned.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
		// Missing config file is fine, defaults and env vars apply.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.history_limit", 20)

	v.SetDefault("database.path", "storage.db")
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("ai.provider", "ollama")
	v.SetDefault("ai.base_url", "http://127.0.0.1:11434")
	v.SetDefault("ai.model", "mistral")
	v.SetDefault("ai.temperature", 0.8)
	v.SetDefault("ai.timeout", 2*time.Minute)
	v.SetDefault("ai.max_retries", 3)
	v.SetDefault("ai.retry_delay", 2*time.Second)

	v.SetDefault("queue.redis_url", "redis://localhost:6379/0")
	v.SetDefault("queue.name", "futureself:tasks")
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.task_time_limit", 10*time.Minute)
	v.SetDefault("queue.result_ttl", 24*time.Hour)

	v.SetDefault("location.weather_base_url", "https://api.openweathermap.org/data/2.5")
	v.SetDefault("location.geo_base_url", "https://api.openweathermap.org/geo/1.0")
	v.SetDefault("location.events_base_url", "https://app.ticketmaster.com/discovery/v2")
	v.SetDefault("location.event_radius", "25")
	v.SetDefault("location.event_size", 20)
}

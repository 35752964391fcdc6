package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	TournamentID   string               `yaml:"tournament_id" env:"AUCTION_TOURNAMENT_ID"`
	API            APIConfig            `yaml:"api"`
	Socket         SocketConfig         `yaml:"socket"`
	Discord        DiscordConfig        `yaml:"discord"`
	Database       DatabaseConfig       `yaml:"database"`
	Redis          RedisConfig          `yaml:"redis"`
	Server         ServerConfig         `yaml:"server"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election"`
}

// APIConfig holds settings for the auction server's REST API.
type APIConfig struct {
	BaseURL string        `yaml:"base_url" env:"AUCTION_API_URL"`
	Token   string        `yaml:"token" env:"AUCTION_API_TOKEN"`
	Timeout time.Duration `yaml:"timeout"`
	// RateLimit caps outgoing requests per second. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// SocketConfig holds Socket.IO connection and reconnect settings.
type SocketConfig struct {
	URL          string        `yaml:"url" env:"AUCTION_SOCKET_URL"`
	MaxAttempts  uint          `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// DiscordConfig holds Discord bot settings.
type DiscordConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Token           string `yaml:"token" env:"DISCORD_TOKEN"`
	GuildID         string `yaml:"guild_id"`
	NoticeChannelID string `yaml:"notice_channel_id"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password" env:"DATABASE_PASSWORD"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	Driver   string `yaml:"driver"` // "sqlx" or "memory"
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds the viewer snapshot cache settings. An empty Addr
// disables publishing.
type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure       bool   `yaml:"insecure"`
	// LogLevel is a slog level name: debug, info, warn or error.
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
}

// LeaderElectionConfig holds Kubernetes leader election settings.
type LeaderElectionConfig struct {
	Enabled        bool          `yaml:"enabled"`
	LeaseName      string        `yaml:"lease_name"`
	LeaseNamespace string        `yaml:"lease_namespace" env:"POD_NAMESPACE"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewDeadline  time.Duration `yaml:"renew_deadline"`
	RetryPeriod    time.Duration `yaml:"retry_period"`
}

// Default returns the configuration used before the YAML file and the
// environment are applied.
func Default() *Config {
	return &Config{
		API: APIConfig{
			Timeout: 10 * time.Second,
			Burst:   1,
		},
		Socket: SocketConfig{
			MaxAttempts:  10,
			InitialDelay: time.Second,
			MaxDelay:     5 * time.Second,
		},
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
			Driver:  "sqlx",
		},
		Redis: RedisConfig{
			TTL: 12 * time.Hour,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "auctionbridge",
			ServiceVersion: "0.1.0",
			LogLevel:       "info",
		},
		LeaderElection: LeaderElectionConfig{
			Enabled:        false,
			LeaseName:      "auctionbridge-leader",
			LeaseNamespace: "default",
			LeaseDuration:  15 * time.Second,
			RenewDeadline:  10 * time.Second,
			RetryPeriod:    2 * time.Second,
		},
	}
}

// Load reads a YAML configuration file from the given path and applies
// environment overrides on top of it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	// The socket server usually lives next to the REST API.
	if cfg.Socket.URL == "" {
		cfg.Socket.URL = cfg.API.BaseURL
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	var errs []error
	switch c.Database.Driver {
	case "sqlx", "memory":
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q: must be \"sqlx\" or \"memory\"", c.Database.Driver))
	}
	if c.TournamentID == "" {
		errs = append(errs, errors.New("tournament_id is required"))
	}
	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	if c.Socket.MaxAttempts == 0 {
		errs = append(errs, errors.New("socket.max_attempts must be positive"))
	}
	if c.Socket.InitialDelay <= 0 || c.Socket.MaxDelay < c.Socket.InitialDelay {
		errs = append(errs, fmt.Errorf("socket delays invalid: initial=%s max=%s", c.Socket.InitialDelay, c.Socket.MaxDelay))
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Telemetry.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("telemetry.log_level: %w", err))
	}
	if c.Discord.Enabled && c.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required when discord is enabled"))
	}
	return errors.Join(errs...)
}

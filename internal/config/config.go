package config

import (
	"errors"
	"fmt"
	"time"

	pkgconfig "github.com/narwhalmedia/segload/pkg/config"
)

// ServiceName prefixes environment variables (SEGLOAD_...) and default config file names
const ServiceName = "segload"

// Config holds all configuration for the application
type Config struct {
	Service   ServiceConfig   `koanf:"service"`
	Log       LogConfig       `koanf:"log"`
	Database  DatabaseConfig  `koanf:"database"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Transfer  TransferConfig  `koanf:"transfer"`
	HTTP      HTTPConfig      `koanf:"http"`
	Events    EventsConfig    `koanf:"events"`
}

// ServiceConfig holds process identity
type ServiceConfig struct {
	Name        string `koanf:"name"`
	Environment string `koanf:"environment"` // development, production
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string `koanf:"level"`  // debug, info, warn, error
	Format     string `koanf:"format"` // json, console
	File       string `koanf:"file"`   // rotated log file, empty for stderr only
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

// DatabaseConfig holds the record store configuration
type DatabaseConfig struct {
	Driver          string        `koanf:"driver"` // sqlite, postgres
	Path            string        `koanf:"path"`   // sqlite file
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	User            string        `koanf:"user"`
	Password        string        `koanf:"password"`
	Name            string        `koanf:"name"`
	SSLMode         string        `koanf:"ssl_mode"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

// SchedulerConfig holds admission control settings
type SchedulerConfig struct {
	MaxRunning int `koanf:"max_running"`
}

// TransferConfig holds segmented transfer settings
type TransferConfig struct {
	ChunkSize   int64         `koanf:"chunk_size"`
	Parallelism int           `koanf:"parallelism"`
	RetryRounds int           `koanf:"retry_rounds"`
	RetryDelay  time.Duration `koanf:"retry_delay"`
	BufferSize  int           `koanf:"buffer_size"`
	RateLimit   int64         `koanf:"rate_limit"` // bytes per second across all transfers, 0 for unlimited
	TempSuffix  string        `koanf:"temp_suffix"`
}

// HTTPConfig holds transport timeouts
type HTTPConfig struct {
	DialTimeout           time.Duration `koanf:"dial_timeout"`
	TLSHandshakeTimeout   time.Duration `koanf:"tls_handshake_timeout"`
	ResponseHeaderTimeout time.Duration `koanf:"response_header_timeout"`
	IdleConnTimeout       time.Duration `koanf:"idle_conn_timeout"`
	MaxIdleConnsPerHost   int           `koanf:"max_idle_conns_per_host"`
	UserAgent             string        `koanf:"user_agent"`
}

// EventsConfig selects where lifecycle events are published
type EventsConfig struct {
	Driver string      `koanf:"driver"` // none, store, nats, kafka
	NATS   NATSConfig  `koanf:"nats"`
	Kafka  KafkaConfig `koanf:"kafka"`
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL           string        `koanf:"url"`
	ClientID      string        `koanf:"client_id"`
	MaxReconnect  int           `koanf:"max_reconnect"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
	Stream        string        `koanf:"stream"`
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        ServiceName,
			Environment: "production",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 14,
			Compress:   true,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Path:            "segload.db",
			Host:            "localhost",
			Port:            5432,
			User:            "segload",
			Name:            "segload",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		Scheduler: SchedulerConfig{
			MaxRunning: 3,
		},
		Transfer: TransferConfig{
			ChunkSize:   5 * 1024 * 1024,
			Parallelism: 2,
			RetryRounds: 3,
			RetryDelay:  2 * time.Second,
			BufferSize:  32 * 1024,
			TempSuffix:  "-dld",
		},
		HTTP: HTTPConfig{
			DialTimeout:           30 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConnsPerHost:   8,
			UserAgent:             "segload/1.0",
		},
		Events: EventsConfig{
			Driver: "none",
			NATS: NATSConfig{
				URL:           "nats://localhost:4222",
				ClientID:      ServiceName,
				MaxReconnect:  10,
				ReconnectWait: 2 * time.Second,
				Stream:        "DOWNLOAD_EVENTS",
			},
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topic:   "download-events",
			},
		},
	}
}

// Load reads defaults, then the config file (path, or the default search
// locations when empty), then SEGLOAD_ environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	m := pkgconfig.NewManager(ServiceName, path)
	if err := m.LoadConfig(cfg, path != ""); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.Host == "" {
			return errors.New("database.host is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	if c.Scheduler.MaxRunning <= 0 {
		return fmt.Errorf("scheduler.max_running must be positive, got %d", c.Scheduler.MaxRunning)
	}
	if c.Transfer.ChunkSize <= 0 {
		return fmt.Errorf("transfer.chunk_size must be positive, got %d", c.Transfer.ChunkSize)
	}
	if c.Transfer.Parallelism <= 0 {
		return fmt.Errorf("transfer.parallelism must be positive, got %d", c.Transfer.Parallelism)
	}
	if c.Transfer.RetryRounds <= 0 {
		return fmt.Errorf("transfer.retry_rounds must be positive, got %d", c.Transfer.RetryRounds)
	}
	if c.Transfer.RetryDelay < 0 {
		return errors.New("transfer.retry_delay must not be negative")
	}
	if c.Transfer.BufferSize <= 0 {
		return fmt.Errorf("transfer.buffer_size must be positive, got %d", c.Transfer.BufferSize)
	}
	if c.Transfer.RateLimit < 0 {
		return errors.New("transfer.rate_limit must not be negative")
	}
	if c.Transfer.TempSuffix == "" {
		return errors.New("transfer.temp_suffix is required")
	}
	switch c.Events.Driver {
	case "none", "", "store":
	case "nats":
		if c.Events.NATS.URL == "" {
			return errors.New("events.nats.url is required")
		}
	case "kafka":
		if len(c.Events.Kafka.Brokers) == 0 || c.Events.Kafka.Topic == "" {
			return errors.New("events.kafka.brokers and events.kafka.topic are required")
		}
	default:
		return fmt.Errorf("unsupported events driver: %q", c.Events.Driver)
	}
	return nil
}

// IsDevelopment reports whether the service runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Service.Environment == "development"
}

// PostgresDSN builds the postgres connection string
func (c *DatabaseConfig) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

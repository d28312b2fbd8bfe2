// Package config loads layered configuration: struct defaults, then an
// optional YAML or JSON file, then environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvNestingSeparator separates nested keys in environment variable names,
// e.g. SEGLOAD_TRANSFER__CHUNK_SIZE maps to transfer.chunk_size.
const EnvNestingSeparator = "__"

// Config is the interface that all configs loaded by a Manager must implement.
type Config interface {
	Validate() error
}

// Manager handles configuration loading and parsing.
type Manager struct {
	k           *koanf.Koanf
	serviceName string
	configPaths []string
}

// NewManager creates a new configuration manager. When explicitPath is set it
// is the only file considered and it must exist.
func NewManager(serviceName, explicitPath string) *Manager {
	paths := getDefaultConfigPaths(serviceName)
	if explicitPath != "" {
		paths = []string{explicitPath}
	}
	return &Manager{
		k:           koanf.New("."),
		serviceName: serviceName,
		configPaths: paths,
	}
}

// LoadConfig loads configuration from all sources into cfg, which must be a
// pointer to a struct already holding its defaults.
func (m *Manager) LoadConfig(cfg Config, requireFile bool) error {
	// 1. Load defaults from the struct itself
	if err := m.loadDefaults(cfg); err != nil {
		return fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Load from config files (in order of precedence)
	for _, path := range m.configPaths {
		if err := m.loadFromFile(path); err != nil {
			if !os.IsNotExist(err) || requireFile {
				return fmt.Errorf("failed to load config from %s: %w", path, err)
			}
		}
	}

	// 3. Load from environment variables
	if err := m.loadFromEnv(); err != nil {
		return fmt.Errorf("failed to load from environment: %w", err)
	}

	// 4. Unmarshal into the config struct
	if err := m.k.Unmarshal("", cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 5. Validate the configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}

// Get returns a value for the given key.
func (m *Manager) Get(key string) interface{} {
	return m.k.Get(key)
}

// GetString returns a string value for the given key.
func (m *Manager) GetString(key string) string {
	return m.k.String(key)
}

// loadDefaults loads default values from struct.
func (m *Manager) loadDefaults(cfg Config) error {
	return m.k.Load(structs.Provider(cfg, "koanf"), nil)
}

// loadFromFile loads configuration from a file.
func (m *Manager) loadFromFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	var parser koanf.Parser
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	return m.k.Load(file.Provider(path), parser)
}

// loadFromEnv loads configuration from environment variables.
func (m *Manager) loadFromEnv() error {
	prefix := EnvPrefix(m.serviceName)

	return m.k.Load(env.Provider(prefix, ".", func(s string) string {
		return EnvKey(prefix, s)
	}), nil)
}

// EnvPrefix returns the environment variable prefix for a service
func EnvPrefix(serviceName string) string {
	return strings.ToUpper(strings.ReplaceAll(serviceName, "-", "_")) + "_"
}

// EnvKey converts SEGLOAD_TRANSFER__CHUNK_SIZE to transfer.chunk_size.
func EnvKey(prefix, name string) string {
	key := strings.TrimPrefix(name, prefix)
	return strings.ToLower(strings.ReplaceAll(key, EnvNestingSeparator, "."))
}

// getDefaultConfigPaths returns the default config paths to check.
func getDefaultConfigPaths(serviceName string) []string {
	paths := []string{
		"config.yaml",
		"config.json",
		fmt.Sprintf("%s.yaml", serviceName),
		fmt.Sprintf("%s.json", serviceName),
		fmt.Sprintf("configs/%s.yaml", serviceName),
		fmt.Sprintf("configs/%s.json", serviceName),
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", serviceName, "config.yaml"))
	}

	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		paths = append([]string{configPath}, paths...)
	}

	return paths
}

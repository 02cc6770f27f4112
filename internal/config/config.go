// Package config loads tunecast configuration from a YAML file with
// environment variable overrides and struct-tag defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Stream   StreamConfig   `yaml:"stream"`
	Cast     CastConfig     `yaml:"cast"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host" env:"TUNECAST_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" env:"TUNECAST_PORT" default:"8090"`
	ExternalURL  string        `yaml:"external_url" env:"TUNECAST_EXTERNAL_URL"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"TUNECAST_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"TUNECAST_WRITE_TIMEOUT" default:"0s"`
	EnableCORS   bool          `yaml:"enable_cors" env:"TUNECAST_ENABLE_CORS" default:"true"`
}

// DatabaseConfig holds persistence configuration
type DatabaseConfig struct {
	Type         string `yaml:"type" env:"DATABASE_TYPE" default:"sqlite"`
	Host         string `yaml:"host" env:"POSTGRES_HOST" default:"localhost"`
	Port         int    `yaml:"port" env:"POSTGRES_PORT" default:"5432"`
	Username     string `yaml:"username" env:"POSTGRES_USER" default:"tunecast"`
	Password     string `yaml:"password" env:"POSTGRES_PASSWORD"`
	Database     string `yaml:"database" env:"POSTGRES_DB" default:"tunecast"`
	DatabasePath string `yaml:"database_path" env:"TUNECAST_DATABASE_PATH" default:"./data/tunecast.db"`
	LogQueries   bool   `yaml:"log_queries" env:"TUNECAST_DB_LOG_QUERIES" default:"false"`
}

// StreamConfig holds stream resolution and proxying configuration
type StreamConfig struct {
	CacheTTL              time.Duration `yaml:"cache_ttl" env:"TUNECAST_STREAM_CACHE_TTL" default:"10m"`
	MaxConcurrentExtracts int64         `yaml:"max_concurrent_extracts" env:"TUNECAST_MAX_CONCURRENT_EXTRACTS" default:"3"`
	ExtractTimeout        time.Duration `yaml:"extract_timeout" env:"TUNECAST_EXTRACT_TIMEOUT" default:"45s"`
	UpstreamTimeout       time.Duration `yaml:"upstream_timeout" env:"TUNECAST_UPSTREAM_TIMEOUT" default:"30s"`
	PlaylistLimit         int           `yaml:"playlist_limit" env:"TUNECAST_PLAYLIST_LIMIT" default:"100"`
	CookiesFile           string        `yaml:"cookies_file" env:"TUNECAST_COOKIES_FILE"`
}

// CastConfig holds cast device discovery and connection configuration
type CastConfig struct {
	CacheTTL           time.Duration `yaml:"cache_ttl" env:"TUNECAST_CAST_CACHE_TTL" default:"5m"`
	ScanInterval       time.Duration `yaml:"scan_interval" env:"TUNECAST_CAST_SCAN_INTERVAL" default:"60s"`
	ScanTimeout        time.Duration `yaml:"scan_timeout" env:"TUNECAST_CAST_SCAN_TIMEOUT" default:"10s"`
	StatusPollInterval time.Duration `yaml:"status_poll_interval" env:"TUNECAST_CAST_POLL_INTERVAL" default:"2s"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level" env:"TUNECAST_LOG_LEVEL" default:"info"`
	EnableColors bool   `yaml:"enable_colors" env:"TUNECAST_LOG_COLORS" default:"true"`
}

// Manager manages application configuration with hot-reload support
type Manager struct {
	config     *Config
	configPath string
	watchers   []Watcher
	mu         sync.RWMutex
}

// Watcher is called when configuration changes
type Watcher func(oldConfig, newConfig *Config)

// NewManager creates a new configuration manager holding defaults.
func NewManager() *Manager {
	return &Manager{
		config:   Default(),
		watchers: make([]Watcher, 0),
	}
}

// Default returns the default application configuration
func Default() *Config {
	cfg := &Config{}
	applyDefaults(reflect.ValueOf(cfg).Elem())
	return cfg
}

// Load loads configuration from file and environment variables
func (m *Manager) Load(configPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldConfig := *m.config
	m.configPath = configPath

	newConfig := Default()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := loadFromFile(configPath, newConfig); err != nil {
				return fmt.Errorf("failed to load config from file: %w", err)
			}
		}
	}

	if err := loadStructFromEnv(reflect.ValueOf(newConfig).Elem()); err != nil {
		return fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := validate(newConfig); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	m.config = newConfig

	for _, watcher := range m.watchers {
		go watcher(&oldConfig, newConfig)
	}

	return nil
}

// Get returns a copy of the current configuration (thread-safe).
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	configCopy := *m.config
	return &configCopy
}

// AddWatcher adds a configuration change watcher
func (m *Manager) AddWatcher(watcher Watcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, watcher)
}

// Path returns the config file path used by the last Load call.
func (m *Manager) Path() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.configPath
}

func loadFromFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
}

func validate(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Database.Type {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database type: %s", config.Database.Type)
	}

	if config.Stream.CacheTTL <= 0 {
		return fmt.Errorf("stream cache_ttl must be positive")
	}
	if config.Cast.CacheTTL <= 0 {
		return fmt.Errorf("cast cache_ttl must be positive")
	}
	if config.Stream.MaxConcurrentExtracts <= 0 {
		return fmt.Errorf("max_concurrent_extracts must be positive")
	}

	return nil
}

// applyDefaults fills zero-valued fields from `default` struct tags, recursing
// into nested structs.
func applyDefaults(v reflect.Value) {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			applyDefaults(field)
			continue
		}

		defaultValue := fieldType.Tag.Get("default")
		if defaultValue == "" || !field.IsZero() {
			continue
		}

		if err := setFieldValue(field, defaultValue); err != nil {
			// Defaults are compile-time constants; a bad one is a programming error.
			panic(fmt.Sprintf("invalid default for %s: %v", fieldType.Name, err))
		}
	}
}

// loadStructFromEnv overrides fields from `env` struct tags, recursing into
// nested structs.
func loadStructFromEnv(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := loadStructFromEnv(field); err != nil {
				return err
			}
			continue
		}

		envKey := fieldType.Tag.Get("env")
		if envKey == "" {
			continue
		}

		envValue, ok := os.LookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("invalid value for %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			duration, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(duration))
		} else {
			intValue, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(intValue)
		}
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Float32, reflect.Float64:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	default:
		return fmt.Errorf("unsupported field kind: %s", field.Kind())
	}

	return nil
}

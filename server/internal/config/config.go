package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort        = 3000
	DefaultShutdownTimeout = 10 * time.Second
	DefaultLogLevel        = "info"

	DefaultStoreBackend = BackendMemory
	DefaultSQLiteDSN    = ":memory:"

	DefaultWarmupCount   = 100000
	DefaultTickInterval  = time.Second
	DefaultMaxOpsPerTick = 32
	DefaultMaxOffset     = 30 * 24 * time.Hour
	DefaultMaxSentences  = 3

	DefaultHubPath      = "/data"
	DefaultSendBuffer   = 256
	DefaultWriteTimeout = 10 * time.Second
	DefaultPongWait     = 60 * time.Second
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Generator GeneratorConfig `yaml:"generator"`
	Hub       HubConfig       `yaml:"hub"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	// HTTPPort is the port for the query API, the subscription endpoint and
	// /metrics (default 3000).
	HTTPPort int `yaml:"http_port"`

	// ShutdownTimeout bounds graceful HTTP shutdown (default 10s).
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// LogLevel is one of: debug | info | warn | error. Hot-reloadable.
	LogLevel string `yaml:"log_level"`
}

// Level returns LogLevel as a slog.Level. Validation guarantees it parses.
func (s ServerConfig) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	// Backend is one of: memory | sqlite.
	Backend string `yaml:"backend"`

	// SQLiteDSN is the database/sql data source name used when Backend is
	// "sqlite". The default is a private in-memory database.
	SQLiteDSN string `yaml:"sqlite_dsn"`
}

// GeneratorConfig controls the randomized workload.
type GeneratorConfig struct {
	// WarmupCount is the number of records inserted before the listener opens.
	WarmupCount int `yaml:"warmup_count"`

	// TickInterval is the time between mutation batches.
	TickInterval time.Duration `yaml:"tick_interval"`

	// MaxOpsPerTick bounds a batch: each tick performs [0, MaxOpsPerTick) operations.
	MaxOpsPerTick int `yaml:"max_ops_per_tick"`

	// MaxOffset bounds how far an inserted timestamp may be moved from now,
	// forwards or backwards.
	MaxOffset time.Duration `yaml:"max_offset"`

	// MaxSentences bounds the body length: [0, MaxSentences] sentences.
	MaxSentences int `yaml:"max_sentences"`

	// Seed makes the workload reproducible when non-zero.
	Seed int64 `yaml:"seed"`

	Weights WeightsConfig `yaml:"weights"`
}

// WeightsConfig is the relative likelihood of each generated operation.
type WeightsConfig struct {
	Insert int `yaml:"insert"`
	Mutate int `yaml:"mutate"`
	Delete int `yaml:"delete"`
}

// HubConfig controls the subscription endpoint.
type HubConfig struct {
	// Path is the only URL path on which WebSocket upgrades are accepted.
	Path string `yaml:"path"`

	// SendBuffer is the per-subscriber outgoing event buffer. A subscriber
	// whose buffer fills up is disconnected.
	SendBuffer int `yaml:"send_buffer"`

	WriteTimeout time.Duration `yaml:"write_timeout"`
	PongWait     time.Duration `yaml:"pong_wait"`
}

// Load reads and parses the config file at path.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config pre-populated with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        DefaultHTTPPort,
			ShutdownTimeout: DefaultShutdownTimeout,
			LogLevel:        DefaultLogLevel,
		},
		Store: StoreConfig{
			Backend:   DefaultStoreBackend,
			SQLiteDSN: DefaultSQLiteDSN,
		},
		Generator: GeneratorConfig{
			WarmupCount:   DefaultWarmupCount,
			TickInterval:  DefaultTickInterval,
			MaxOpsPerTick: DefaultMaxOpsPerTick,
			MaxOffset:     DefaultMaxOffset,
			MaxSentences:  DefaultMaxSentences,
			Weights:       WeightsConfig{Insert: 3, Mutate: 1, Delete: 1},
		},
		Hub: HubConfig{
			Path:         DefaultHubPath,
			SendBuffer:   DefaultSendBuffer,
			WriteTimeout: DefaultWriteTimeout,
			PongWait:     DefaultPongWait,
		},
	}
}

// Validate checks structural constraints on cfg.
func Validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	if cfg.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server.shutdown_timeout must not be negative")
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cfg.Server.LogLevel)); err != nil {
		return fmt.Errorf("server.log_level %q unknown: want debug|info|warn|error", cfg.Server.LogLevel)
	}

	switch cfg.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if cfg.Store.SQLiteDSN == "" {
			return fmt.Errorf("store.sqlite_dsn is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("store.backend %q unknown: want memory|sqlite", cfg.Store.Backend)
	}

	if err := validateGenerator(cfg.Generator); err != nil {
		return err
	}

	if !strings.HasPrefix(cfg.Hub.Path, "/") {
		return fmt.Errorf("hub.path %q must start with /", cfg.Hub.Path)
	}
	if cfg.Hub.SendBuffer <= 0 {
		return fmt.Errorf("hub.send_buffer must be positive")
	}
	if cfg.Hub.WriteTimeout <= 0 {
		return fmt.Errorf("hub.write_timeout must be positive")
	}
	if cfg.Hub.PongWait <= 0 {
		return fmt.Errorf("hub.pong_wait must be positive")
	}
	return nil
}

func validateGenerator(g GeneratorConfig) error {
	if g.WarmupCount < 0 {
		return fmt.Errorf("generator.warmup_count must not be negative")
	}
	if g.TickInterval <= 0 {
		return fmt.Errorf("generator.tick_interval must be positive")
	}
	if g.MaxOpsPerTick <= 0 {
		return fmt.Errorf("generator.max_ops_per_tick must be positive")
	}
	if g.MaxOffset < time.Second {
		return fmt.Errorf("generator.max_offset must be at least 1s")
	}
	if g.MaxSentences < 0 {
		return fmt.Errorf("generator.max_sentences must not be negative")
	}

	w := g.Weights
	if w.Insert < 0 || w.Mutate < 0 || w.Delete < 0 {
		return fmt.Errorf("generator.weights must not be negative")
	}
	// Insert has to dominate so the record count trends upward.
	if w.Insert <= w.Delete || w.Insert < w.Mutate {
		return fmt.Errorf("generator.weights.insert (%d) must exceed delete (%d) and be at least mutate (%d)",
			w.Insert, w.Delete, w.Mutate)
	}
	return nil
}

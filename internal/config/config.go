// Package config loads engine configuration from a YAML file layered with
// environment variables. A missing file yields defaults so the binary runs
// out of the box.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration for the flowmachine server.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Engine  EngineConfig  `yaml:"engine"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Duration accepts Go duration strings ("30s", "1h") in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the plain time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type EngineConfig struct {
	MaxDepth      int      `yaml:"max_depth"`
	DefaultTTL    Duration `yaml:"default_ttl"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

// StorageConfig selects the session store backend. Backend is one of
// "memory", "redis" or "sqlite".
type StorageConfig struct {
	Backend    string `yaml:"backend"`
	RedisAddr  string `yaml:"redis_addr"`
	SQLitePath string `yaml:"sqlite_path"`

	// EncryptionKey, when set, encrypts session variables at rest. It is a
	// base64-encoded 32-byte AES-256 key and is only accepted from the
	// environment, never from the config file.
	EncryptionKey string `yaml:"-"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file or env overrides exist.
func Default() Config {
	return Config{
		HTTP:   HTTPConfig{Addr: ":8080"},
		Engine: EngineConfig{MaxDepth: 100, DefaultTTL: Duration(24 * time.Hour), SweepInterval: Duration(5 * time.Minute)},
		Storage: StorageConfig{
			Backend:    "memory",
			RedisAddr:  "localhost:6379",
			SQLitePath: "flowmachine.db",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path (if it exists), then applies environment
// overrides. A .env file in the working directory is loaded first, matching
// local development workflows; its absence is not an error.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Missing file means defaults; an explicit bad path still surfaces
			// through the env overrides below producing a default config.
		default:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, cfg.validate()
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("FLOWMACHINE_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("FLOWMACHINE_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("FLOWMACHINE_REDIS_ADDR"); v != "" {
		cfg.Storage.RedisAddr = v
	}
	if v := os.Getenv("FLOWMACHINE_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("FLOWMACHINE_ENCRYPTION_KEY"); v != "" {
		cfg.Storage.EncryptionKey = v
	}
	if v := os.Getenv("FLOWMACHINE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("FLOWMACHINE_MAX_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Engine.MaxDepth = n
		}
	}
	if v := os.Getenv("FLOWMACHINE_DEFAULT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Engine.DefaultTTL = Duration(d)
		}
	}
	if v := os.Getenv("FLOWMACHINE_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Engine.SweepInterval = Duration(d)
		}
	}
}

func (c Config) validate() error {
	switch c.Storage.Backend {
	case "memory", "redis", "sqlite":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(c.Storage.EncryptionKey)
		if err != nil {
			return fmt.Errorf("encryption key is not valid base64: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("encryption key must decode to 32 bytes, got %d", len(key))
		}
	}
	if c.Engine.MaxDepth <= 0 {
		return fmt.Errorf("engine max_depth must be positive, got %d", c.Engine.MaxDepth)
	}
	return nil
}

// Package config loads server settings from YAML, .env files and QUEUEFORGE_*
// environment variables, in that order of precedence (environment wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "QUEUEFORGE_"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Queue    QueueConfig    `yaml:"queue"`
	Game     GameConfig     `yaml:"game"`
	NATS     NATSConfig     `yaml:"nats"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr      string  `yaml:"addr"`
	RateLimit float64 `yaml:"rate_limit"` // requests per second per IP
	RateBurst int     `yaml:"rate_burst"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite (pure Go) or sqlite3 (cgo)
	Path   string `yaml:"path"`
}

type QueueConfig struct {
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

type GameConfig struct {
	Speed float64 `yaml:"speed"`
}

// NATSConfig enables event publishing when URL is set.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type LogConfig struct {
	Dir     string `yaml:"dir"`
	Verbose bool   `yaml:"verbose"`
}

// Default returns the settings used when nothing else is configured.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":8080", RateLimit: 10, RateBurst: 20},
		Database: DatabaseConfig{Driver: "sqlite", Path: "./data/queueforge.db"},
		Queue:    QueueConfig{LockTimeout: 2 * time.Second},
		Game:     GameConfig{Speed: 1},
		NATS:     NATSConfig{SubjectPrefix: "queueforge"},
		Log:      LogConfig{Dir: "./logs"},
	}
}

// Load reads path (optional; "" skips the file), then .env, then the
// environment, and validates the result.
func Load(path string) (*Config, error) {
	// missing .env files are normal
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from QUEUEFORGE_<SECTION>_<KEY> variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	var errs []error
	parse := func(key string, set func(string) error) {
		if v, ok := lookup(EnvPrefix + key); ok {
			if err := set(strings.TrimSpace(v)); err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			}
		}
	}

	str("SERVER_ADDR", &c.Server.Addr)
	parse("SERVER_RATE_LIMIT", func(v string) (err error) { c.Server.RateLimit, err = strconv.ParseFloat(v, 64); return })
	parse("SERVER_RATE_BURST", func(v string) (err error) { c.Server.RateBurst, err = strconv.Atoi(v); return })
	str("DATABASE_DRIVER", &c.Database.Driver)
	str("DATABASE_PATH", &c.Database.Path)
	parse("QUEUE_LOCK_TIMEOUT", func(v string) (err error) { c.Queue.LockTimeout, err = time.ParseDuration(v); return })
	parse("GAME_SPEED", func(v string) (err error) { c.Game.Speed, err = strconv.ParseFloat(v, 64); return })
	str("NATS_URL", &c.NATS.URL)
	str("NATS_SUBJECT_PREFIX", &c.NATS.SubjectPrefix)
	str("LOG_DIR", &c.Log.Dir)
	parse("LOG_VERBOSE", func(v string) (err error) { c.Log.Verbose, err = strconv.ParseBool(v); return })

	return errors.Join(errs...)
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.RateLimit <= 0 || c.Server.RateBurst <= 0 {
		errs = append(errs, errors.New("server.rate_limit and server.rate_burst must be positive"))
	}
	switch c.Database.Driver {
	case "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not sqlite or sqlite3", c.Database.Driver))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Queue.LockTimeout <= 0 {
		errs = append(errs, errors.New("queue.lock_timeout must be positive"))
	}
	if c.Game.Speed <= 0 {
		errs = append(errs, errors.New("game.speed must be positive"))
	}
	if c.NATS.URL != "" && c.NATS.SubjectPrefix == "" {
		errs = append(errs, errors.New("nats.subject_prefix is required when nats.url is set"))
	}
	return errors.Join(errs...)
}

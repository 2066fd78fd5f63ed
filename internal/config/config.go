// Package config loads the grid server configuration from YAML with ${VAR}
// expansion, after reading a .env file if one exists.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Database struct {
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Schema   string `yaml:"schema"`
	Default  bool   `yaml:"default"`
	// MaxConns and the lifetimes tune the seed source pool.
	MaxConns    int           `yaml:"max_conns"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
}

// ConnString renders the lib/pq keyword form.
func (d Database) ConnString() string {
	s := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Database)
	if d.Schema != "" {
		s += fmt.Sprintf(" search_path=%s,public", d.Schema)
	}
	return s
}

type Config struct {
	Application struct {
		Name     string `yaml:"name"`
		Version  string `yaml:"version"`
		Author   string `yaml:"author"`
		Language string `yaml:"language"`
	} `yaml:"application"`

	Server struct {
		Port             string        `yaml:"port"`
		SimulatedLatency time.Duration `yaml:"simulated_latency"`
	} `yaml:"server"`

	Storage struct {
		Type string `yaml:"type"` // memory, sqlite, postgres
		DSN  string `yaml:"dsn"`
	} `yaml:"storage"`

	Database []Database `yaml:"database"`

	Sessions struct {
		Max         int           `yaml:"max"`
		IdleTimeout time.Duration `yaml:"idle_timeout"`
		AbsTimeout  time.Duration `yaml:"abs_timeout"`
	} `yaml:"sessions"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Definitions struct {
		Path string `yaml:"path"` // extra definition files; embedded pages are always loaded
	} `yaml:"definitions"`
}

// Load reads .env (ignored when missing) and the YAML file at path.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse expands environment variables in data and decodes it.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Application.Language == "" {
		c.Application.Language = "en"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "memory"
	}
	if c.Sessions.IdleTimeout == 0 {
		c.Sessions.IdleTimeout = 30 * time.Minute
	}
	if c.Sessions.AbsTimeout == 0 {
		c.Sessions.AbsTimeout = 8 * time.Hour
	}
	if c.Sessions.Max == 0 {
		c.Sessions.Max = 1000
	}
}

// DefaultDatabase returns the database marked default, if any.
func (c *Config) DefaultDatabase() (Database, bool) {
	for _, d := range c.Database {
		if d.Default {
			return d, true
		}
	}
	return Database{}, false
}

// LogLevel maps logging.level onto slog; unknown values mean info.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

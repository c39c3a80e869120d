package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/npezzotti/go-plaza/internal/logging"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Server struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type Database struct {
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
	Migrate bool   `yaml:"migrate"`
}

type Auth struct {
	// SigningKey is base64 encoded.
	SigningKey string `yaml:"signing_key"`
	// Moderators may soft-delete any message.
	Moderators []int64 `yaml:"moderators"`
}

type Nats struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type Retention struct {
	MaxAge   time.Duration `yaml:"max_age"`
	Interval time.Duration `yaml:"interval"`
}

type Config struct {
	Server    Server         `yaml:"server"`
	Database  Database       `yaml:"database"`
	Auth      Auth           `yaml:"auth"`
	Nats      Nats           `yaml:"nats"`
	Retention Retention      `yaml:"retention"`
	Logging   logging.Config `yaml:"logging"`

	// SigningKey is the decoded Auth.SigningKey, set by Validate.
	SigningKey []byte `yaml:"-"`
}

func Default() *Config {
	return &Config{
		Server: Server{
			Addr: "localhost:8000",
		},
		Database: Database{
			Driver:  DriverPostgres,
			Migrate: true,
		},
		Nats: Nats{
			SubjectPrefix: "plaza",
		},
		Retention: Retention{
			MaxAge:   30 * 24 * time.Hour,
			Interval: time.Hour,
		},
		Logging: logging.Config{
			Service: "go-plaza",
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, errors.New("empty key")
	}
	return key, nil
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr cannot be empty")
	}

	switch c.Database.Driver {
	case "":
		c.Database.Driver = DriverPostgres
		fallthrough
	case DriverPostgres:
		if c.Database.DSN == "" {
			return errors.New("database.dsn cannot be empty")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}

	if c.Auth.SigningKey == "" {
		return errors.New("auth.signing_key cannot be empty")
	}

	signingKey, err := decodeSigningSecret(c.Auth.SigningKey)
	if err != nil {
		return fmt.Errorf("decode signing secret: %w", err)
	}
	c.SigningKey = signingKey

	if c.Retention.MaxAge < 0 || c.Retention.Interval < 0 {
		return errors.New("retention durations cannot be negative")
	}

	if c.Nats.SubjectPrefix == "" {
		c.Nats.SubjectPrefix = "plaza"
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "go-plaza"
	}

	return nil
}

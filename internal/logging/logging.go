// Package logging builds the process logger: a slog front end over either the
// standard library handlers or zap.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	slogzap "github.com/samber/slog-zap/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Env string

const (
	EnvDev   Env = "dev"
	EnvStage Env = "stage"
	EnvProd  Env = "prod"
)

const (
	BackendStd = "std"
	BackendZap = "zap"
)

type Config struct {
	Env        Env    `yaml:"env"`
	Backend    string `yaml:"backend"`
	Debug      bool   `yaml:"debug"`
	Service    string `yaml:"service"`
	Version    string `yaml:"version"`
	InstanceID string `yaml:"instance_id"`
	// Output defaults to stdout.
	Output io.Writer `yaml:"-"`
}

// ParseEnv maps common spellings onto an Env, defaulting to dev.
func ParseEnv(raw string) Env {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "prod", "production":
		return EnvProd
	case "stage", "staging", "preprod":
		return EnvStage
	default:
		return EnvDev
	}
}

// New returns a logger carrying the service, env, version and instance_id
// attributes on every record. Dev defaults to the text handler, everything
// else to zap.
func New(cfg Config) *slog.Logger {
	if cfg.Env == "" {
		cfg.Env = ParseEnv(os.Getenv("PLAZA_ENV"))
	}
	if cfg.Service == "" {
		cfg.Service = "go-plaza"
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = newInstanceID()
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Backend == "" {
		if cfg.Env == EnvDev {
			cfg.Backend = BackendStd
		} else {
			cfg.Backend = BackendZap
		}
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	var h slog.Handler
	switch cfg.Backend {
	case BackendZap:
		h = newZapHandler(cfg.Output, level)
	default:
		h = newStdHandler(cfg.Env, cfg.Output, level)
	}

	return slog.New(h.WithAttrs([]slog.Attr{
		slog.String("service", cfg.Service),
		slog.String("env", string(cfg.Env)),
		slog.String("version", cfg.Version),
		slog.String("instance_id", cfg.InstanceID),
	}))
}

func newInstanceID() string {
	hn, _ := os.Hostname()
	return hn + "-" + uuid.NewString()[:8]
}

func newStdHandler(env Env, w io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if env == EnvDev {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func newZapHandler(w io.Writer, level slog.Level) slog.Handler {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(w), toZapLevel(level))
	// sample bursts of identical messages
	core = zapcore.NewSamplerWithOptions(core, time.Second, 100, 10)

	z := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return slogzap.Option{Level: level, Logger: z}.NewZapHandler()
}

func toZapLevel(level slog.Level) zapcore.Level {
	switch {
	case level <= slog.LevelDebug:
		return zapcore.DebugLevel
	case level == slog.LevelInfo:
		return zapcore.InfoLevel
	case level == slog.LevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

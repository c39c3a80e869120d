package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/go-plaza/internal/api"
	"github.com/npezzotti/go-plaza/internal/broadcast"
	"github.com/npezzotti/go-plaza/internal/chat"
	"github.com/npezzotti/go-plaza/internal/config"
	"github.com/npezzotti/go-plaza/internal/database"
	"github.com/npezzotti/go-plaza/internal/logging"
	"github.com/npezzotti/go-plaza/internal/presence"
	"github.com/npezzotti/go-plaza/internal/rooms"
	"github.com/npezzotti/go-plaza/internal/server"
	"github.com/npezzotti/go-plaza/internal/stats"
)

const shutdownTimeout = 10 * time.Second

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	configPath     string
	addr           string
	dsn            string
	driver         string
	signingKey     string
	natsURL        string
	allowedOrigins stringSliceFlag
)

// loadConfig reads the yaml file and lets explicitly set flags override it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Server.Addr = addr
		case "dsn":
			cfg.Database.DSN = dsn
		case "driver":
			cfg.Database.Driver = driver
		case "signing-key":
			cfg.Auth.SigningKey = signingKey
		case "nats-url":
			cfg.Nats.URL = natsURL
		case "allowed-origins":
			cfg.Server.AllowedOrigins = allowedOrigins
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openRepository(logger *slog.Logger, cfg config.Database) (database.GoPlazaRepository, error) {
	if cfg.Driver == config.DriverMemory {
		logger.Warn("using in-memory repository, data will not survive a restart")
		return database.NewMemoryGoPlazaRepository(), nil
	}

	repo, err := database.NewPgGoPlazaRepository(cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.Migrate {
		if err := database.Migrate(repo.DB()); err != nil {
			repo.Close()
			return nil, err
		}
		logger.Info("database migrations applied")
	}

	return repo, nil
}

func newPublisher(logger *slog.Logger, cfg config.Nats) (broadcast.Publisher, error) {
	if cfg.URL == "" {
		logger.Info("nats url not configured, broadcasts stay local")
		return broadcast.NopPublisher{}, nil
	}

	return broadcast.NewNatsPublisher(logger, cfg.URL, cfg.SubjectPrefix)
}

func main() {
	flag.StringVar(&configPath, "config", os.Getenv("PLAZA_CONFIG"), "path to yaml config file")
	flag.StringVar(&addr, "addr", "", "server address")
	flag.StringVar(&dsn, "dsn", "", "database connection string")
	flag.StringVar(&driver, "driver", "", "database driver: postgres or memory")
	flag.StringVar(&signingKey, "signing-key", "", "base64 encoded signing key")
	flag.StringVar(&natsURL, "nats-url", "", "nats server url for mirroring broadcasts")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)

	if err := run(logger, cfg); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func run(logger *slog.Logger, cfg *config.Config) error {
	repo, err := openRepository(logger, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error("db close", "error", err)
		}
	}()

	publisher, err := newPublisher(logger, cfg.Nats)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("publisher close", "error", err)
		}
	}()

	statsUpdater := stats.NewStatsUpdater()
	statsUpdater.Run()
	defer statsUpdater.Stop()

	registry := presence.NewRegistry()
	directory := rooms.NewDirectory(logger, repo)
	chatService := chat.NewService(logger, repo, repo)

	chatServer := server.NewChatServer(logger, registry, directory, chatService, publisher, statsUpdater)
	go chatServer.Run()

	retentionCtx, stopRetention := context.WithCancel(context.Background())
	defer stopRetention()
	go chatServer.RunRetention(retentionCtx, cfg.Retention.MaxAge, cfg.Retention.Interval)

	app := api.NewGoPlazaApp(logger, chatServer, registry, repo, directory, chatService, statsUpdater, cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	stopRetention()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown", "error", err)
	}

	if err := chatServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("chat server shutdown", "error", err)
	}

	return serveErr
}

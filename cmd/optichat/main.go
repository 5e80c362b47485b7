package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/optichat/optichat/internal/api"
	"github.com/optichat/optichat/internal/config"
)

func main() {
	initializeLogger()

	cfg := loadEnvironmentConfig()
	parseCommandLineFlags(&cfg)

	if err := ensureStateDir(cfg); err != nil {
		slog.Error("Failed to create state directory", "error", err, "dir", cfg.StateDir)
		os.Exit(1)
	}

	slog.Info("Bootstrapping OptiChat",
		"addr", cfg.APIAddr,
		"db_driver", cfg.DBDriver,
		"channel", cfg.Channel,
		"legacy_flow", cfg.LegacyFlowPath != "",
	)
	if err := api.Run(cfg); err != nil {
		slog.Error("OptiChat failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("OptiChat exited successfully")
}

// initializeLogger sets up structured logging. LOG_LEVEL=debug enables
// verbose output.
func initializeLogger() {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from the environment and an
// optional .env file.
func loadEnvironmentConfig() config.Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}
	return config.FromEnv()
}

// parseCommandLineFlags lets flags override environment configuration.
func parseCommandLineFlags(cfg *config.Config) {
	addr := flag.String("addr", cfg.APIAddr, "HTTP listen address")
	dbDriver := flag.String("db-driver", cfg.DBDriver, "database driver (sqlite or postgres)")
	dbDSN := flag.String("db-dsn", cfg.DatabaseDSN, "database DSN")
	stateDir := flag.String("state-dir", cfg.StateDir, "state directory for SQLite data")
	seedPath := flag.String("seed", cfg.BotsSeedPath, "path to the YAML bots seed file")
	legacyFlow := flag.String("legacy-flow", cfg.LegacyFlowPath, "path to a legacy flow.json fallback")
	channel := flag.String("channel", cfg.Channel, "messaging channel (cloud or twilio)")
	flag.Parse()

	cfg.APIAddr = *addr
	cfg.DBDriver = *dbDriver
	cfg.DatabaseDSN = *dbDSN
	cfg.StateDir = *stateDir
	cfg.BotsSeedPath = *seedPath
	cfg.LegacyFlowPath = *legacyFlow
	cfg.Channel = *channel
}

func ensureStateDir(cfg config.Config) error {
	if cfg.DBDriver == "postgres" || cfg.DatabaseDSN != "" {
		return nil
	}
	return os.MkdirAll(cfg.StateDir, 0o755)
}

// Command migrate applies or reverts the postgres user store schema.
//
//	migrate up
//	migrate down [steps]
//	migrate version
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/upb/acquisitions-api/config"
	"github.com/upb/acquisitions-api/internal/observability"
	"github.com/upb/acquisitions-api/repositories/postgres"
	"go.uber.org/zap"
)

func main() {
	logger, err := observability.NewLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(os.Args[1:], logger); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}
}

func run(args []string, logger *zap.Logger) error {
	cmd, steps, err := parseArgs(args)
	if err != nil {
		return err
	}

	cfg, err := config.New(context.Background())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database.Adapter != "postgres" {
		return fmt.Errorf("migrations apply to the postgres adapter only, got %q", cfg.Database.Adapter)
	}

	db, err := postgres.NewDB(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	switch cmd {
	case "up":
		return postgres.Migrate(db.DB, logger)
	case "down":
		if err := postgres.Rollback(db.DB, steps); err != nil {
			return err
		}
		logger.Info("migrations rolled back", zap.Int("steps", steps))
	case "version":
		version, dirty, err := postgres.Version(db.DB)
		if err != nil {
			return err
		}
		logger.Info("schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}
	return nil
}

// parseArgs validates the subcommand. down defaults to one step; "all"
// reverts every migration.
func parseArgs(args []string) (string, int, error) {
	if len(args) == 0 {
		return "", 0, fmt.Errorf("usage: migrate up|down [steps|all]|version")
	}

	switch args[0] {
	case "up", "version":
		if len(args) > 1 {
			return "", 0, fmt.Errorf("%s takes no arguments", args[0])
		}
		return args[0], 0, nil
	case "down":
		if len(args) == 1 {
			return "down", 1, nil
		}
		if args[1] == "all" {
			return "down", 0, nil
		}
		steps, err := strconv.Atoi(args[1])
		if err != nil || steps <= 0 {
			return "", 0, fmt.Errorf("invalid step count %q", args[1])
		}
		return "down", steps, nil
	default:
		return "", 0, fmt.Errorf("unknown command %q", args[0])
	}
}

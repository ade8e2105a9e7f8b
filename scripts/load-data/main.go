// load-data fills the demo store from one CSV file per table.
//
// Usage: go run ./scripts/load-data --dir ./data
//
// The directory must contain vehicle_cards.csv, damage_detections.csv,
// repairs.csv and quotes.csv, each with a header row naming the columns it
// carries. Existing rows are truncated first unless --append is given.
//
// Database connection: PG* environment variables, optionally from a .env
// file in the working directory.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/clearquote-engine/pkg/config"
	"github.com/ekaya-inc/clearquote-engine/pkg/database"
	"github.com/ekaya-inc/clearquote-engine/pkg/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		dir      string
		appendTo bool
		envFile  string
	)

	cmd := &cobra.Command{
		Use:   "load-data",
		Short: "Load the demo store from CSV files",
		Long: `Load vehicle_cards, damage_detections, repairs and quotes from CSV files.

Tables are truncated in foreign-key-safe order and then copied parent first.
Everything runs in one transaction, so a bad file leaves the store unchanged.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to read %s: %w", envFile, err)
			}

			var dbCfg config.DatabaseConfig
			if err := cleanenv.ReadEnv(&dbCfg); err != nil {
				return fmt.Errorf("failed to read database environment: %w", err)
			}

			logger, err := logging.NewLogger("local", "info")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, &dbCfg, dir, !appendTo, logger)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "data", "directory holding <table>.csv files")
	cmd.Flags().BoolVar(&appendTo, "append", false, "keep existing rows instead of truncating")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "optional dotenv file with PG* variables")
	return cmd
}

func run(ctx context.Context, dbCfg *config.DatabaseConfig, dir string, truncate bool, logger *zap.Logger) error {
	batches, err := readDir(dir)
	if err != nil {
		return err
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:             dbCfg.URL(),
		MaxConnections:  2,
		ApplicationName: "clearquote-load-data",
	})
	if err != nil {
		logger.Error("Failed to connect to database",
			zap.String("url", logging.SanitizeConnectionString(dbCfg.URL())),
			zap.String("error", logging.SanitizeError(err)))
		return err
	}
	defer db.Close()

	counts, err := load(ctx, db.Pool, batches, truncate)
	if err != nil {
		return err
	}
	for _, spec := range loadOrder {
		logger.Info("Loaded table", zap.String("table", spec.name), zap.Int64("rows", counts[spec.name]))
	}
	return nil
}

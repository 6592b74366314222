// Package main provides the refresolve CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ref-resolver/config"
	"ref-resolver/services"
)

// Version wird beim Build per ldflags gesetzt.
var Version = "dev"

var (
	humanOutput bool
	verbose     bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "refresolve",
	Short: "Resolve bibliographic references into cached paper records",
	Long: `refresolve resolves free-text citations, DOIs and publisher URLs into
paper records with ordered reference lists, using the same cache and
publisher directory as the HTTP service.

All commands print JSON by default.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log resolution steps to stderr")
	rootCmd.Version = Version
}

// newLogger liefert den Development-Logger (stderr); ohne --verbose nur Warnungen.
func newLogger() (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return cfg.Build()
}

// openEngine lädt die Konfiguration, verbindet die Datenbank und verdrahtet die Engine.
func openEngine(ctx context.Context) (*services.Engine, *zap.Logger, error) {
	log, err := newLogger()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errConfig, err)
	}
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: connect database: %v", errConfig, err)
	}
	engine, err := services.NewEngine(cfg, db, log, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errConfig, err)
	}
	if err := engine.Cache.Migrate(ctx); err != nil {
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return engine, log, nil
}

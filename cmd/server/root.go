package main

import (
	"fmt"

	"ledger-backend/internal/config"
	"ledger-backend/internal/database"
	"ledger-backend/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// runtime holds what every subcommand needs once flags are parsed.
type runtime struct {
	cfg *config.Config
	log *zap.Logger
}

func newRootCommand() *cobra.Command {
	var envFile string
	rt := &runtime{}

	rootCmd := &cobra.Command{
		Use:   "server",
		Short: "Double-entry ledger API",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			for _, w := range cfg.Warnings() {
				log.Warn(w)
			}
			rt.cfg, rt.log = cfg, log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if rt.log != nil {
				_ = rt.log.Sync()
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "env file to load (default is ./.env when present)")

	rootCmd.AddCommand(
		newServeCommand(rt),
		newMigrateCommand(rt),
		newSeedCommand(rt),
		newReconcileCommand(rt),
	)
	return rootCmd
}

// openDB connects and migrates so every command sees the current schema.
func (rt *runtime) openDB() (*gorm.DB, func(), error) {
	db, err := database.Open(rt.cfg, rt.log)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if err := database.Migrate(db); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("migrating schema: %w", err)
	}
	return db, closeDB, nil
}

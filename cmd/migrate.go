package cmd

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"honestai/internal/config"
	"honestai/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long:  `Create the users, uploads and analyses tables if they do not exist yet.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(rootCmdPersistentFlags.ConfigFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		applyLogLevel(cfg.Log.Level)

		db, err := storage.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close() //nolint: errcheck

		if err := storage.Migrate(cmd.Context(), db, cfg.Database.Driver); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		log.Info("database migrations completed", "driver", cfg.Database.Driver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"CareFollow/internal/repository"
	"CareFollow/pkg/logger"
	"CareFollow/storage"
	"CareFollow/storage/database"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create tables and backfill legacy reminder status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, sync, err := loadConfig()
			if err != nil {
				return err
			}
			defer sync()

			if err := storage.Init(cfg, storage.Options{Database: true}); err != nil {
				return err
			}
			defer storage.Close()

			return database.Migrate()
		},
	}
}

func genCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate typed gorm/gen query code",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, sync, err := loadConfig()
			if err != nil {
				return err
			}
			defer sync()

			if err := storage.Init(cfg, storage.Options{Database: true}); err != nil {
				return err
			}
			defer storage.Close()

			out, _ := cmd.Flags().GetString("out")
			if err := repository.Generate(database.DB(), out); err != nil {
				return err
			}
			logger.Logger.Info("Query code generated", zap.String("out", out))
			return nil
		},
	}
	cmd.Flags().String("out", "./internal/repository/query", "Output directory for generated query code")
	return cmd
}

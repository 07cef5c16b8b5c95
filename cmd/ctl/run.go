package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"CareFollow/config"
	"CareFollow/internal/bootstrap"
	"CareFollow/internal/repository"
	"CareFollow/internal/schedule"
	"CareFollow/pkg/logger"
	"CareFollow/pkg/push"
	"CareFollow/pkg/snowflake"
	"CareFollow/storage"
	"CareFollow/storage/database"
)

type job func(ctx context.Context, cfg *config.Config, store repository.Store, gateway *push.Gateway) (any, error)

// runCmd 手动补跑一次派发或升级，不加分布式锁；行级条件更新保证与常驻 scheduler 并发时不会重复流转
func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scheduler job once",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "dispatch",
		Short: "Send every due reminder now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, func(ctx context.Context, cfg *config.Config, store repository.Store, gateway *push.Gateway) (any, error) {
				return schedule.NewDispatcher(store, gateway, cfg.StoreTimeout, logger.Named("dispatcher")).Run(ctx)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "escalate",
		Short: "Escalate sent reminders older than STALENESS_THRESHOLD",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, func(ctx context.Context, cfg *config.Config, store repository.Store, gateway *push.Gateway) (any, error) {
				return schedule.NewEscalator(store, gateway, schedule.EscalatorOptions{
					Threshold:      cfg.StalenessThreshold,
					StaffRecipient: cfg.StaffRecipient(),
				}, logger.Named("escalator")).Run(ctx)
			})
		},
	})

	return cmd
}

func runJob(cmd *cobra.Command, fn job) error {
	cfg, sync, err := loadConfig()
	if err != nil {
		return err
	}
	defer sync()

	if err := storage.Init(cfg, storage.Options{Database: true}); err != nil {
		return err
	}
	defer storage.Close()

	if err := snowflake.Init(cfg.SnowflakeMachineID, cfg.SnowflakeDataCenter); err != nil {
		return err
	}

	store := bootstrap.Store(cfg, database.DB(), logger.Named("store"))
	gateway, err := bootstrap.Gateway(cfg, database.DB(), logger.Named("push"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.JobTimeout)
	defer cancel()

	result, err := fn(ctx, cfg, store, gateway)
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(result); encErr != nil {
		return encErr
	}
	return err
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"CareFollow/config"
	"CareFollow/pkg/logger"
)

// 运维命令：签发服务令牌、迁移、生成查询代码、手动执行一次定时任务
func main() {
	rootCmd := &cobra.Command{
		Use:          "carefollowctl",
		Short:        "CareFollow operations tool",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(tokenCmd(), migrateCmd(), genCmd(), runCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig 读取配置并初始化日志，返回的清理函数刷新日志
func loadConfig() (*config.Config, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := logger.Init(cfg); err != nil {
		return nil, nil, err
	}
	return cfg, logger.Sync, nil
}

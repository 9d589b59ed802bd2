// Command retrysend re-dispatches failed address bindings once and prints a
// summary. With -clear-failed it only resets their retry bookkeeping.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ipv6-provision-backend/config"
	"ipv6-provision-backend/internal/db"
	"ipv6-provision-backend/internal/logger"
	"ipv6-provision-backend/internal/provider"
	"ipv6-provision-backend/internal/provision"
	"ipv6-provision-backend/internal/store"
)

func main() {
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "./config/config.yaml"
	}
	configPath := flag.String("config", defaultPath, "path to the YAML configuration")
	clearFailed := flag.Bool("clear-failed", false, "reset retry state of failed bindings instead of retrying")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load configuration")
	}
	if err := logger.Init(cfg.Log); err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize database")
	}
	appStore := store.NewGormStore(gormDB)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := provision.NewService(appStore, provider.NewClient(cfg.Provider, appStore), cfg.Retry.Concurrency)

	if *clearFailed {
		n, err := svc.ClearFailed(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to clear failed bindings")
		}
		fmt.Printf("已清除 %d 条失败记录的重试状态\n", n)
		return
	}

	summary, err := svc.RetryFailed(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Retry pass failed")
	}
	if summary.Total == 0 {
		fmt.Println("没有需要重试的记录")
		return
	}
	fmt.Printf("重试完成: 共 %d 条, 成功 %d 条, 失败 %d 条, 跳过 %d 条\n",
		summary.Total, summary.Succeeded, summary.Failed, summary.Skipped)
}

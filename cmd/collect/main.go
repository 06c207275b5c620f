package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/LJTian/newswatch/internal/app"
	"github.com/LJTian/newswatch/internal/config"
	"github.com/LJTian/newswatch/internal/logger"
)

// 只执行一轮抓取投递后退出，适合手动触发或交给外部 cron
func main() {
	cleanup := flag.Bool("cleanup", false, "run archive and marker cleanup after the cycle")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		boot := logger.New(logger.Options{Service: "newswatch-collect"})
		boot.Fatal().Err(err).Msg("load config failed")
	}
	root := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "newswatch-collect"})

	a, err := app.Build(cfg, root)
	if err != nil {
		root.Fatal().Err(err).Msg("init app failed")
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := a.Scheduler.RunOnce(ctx)
	root.Info().
		Int("new", stats.ItemsNew).
		Int("digests", stats.DigestsSent).
		Int("digest_failures", stats.DigestsFailed).
		Int("targets_failed", stats.TargetsFailed).
		Dur("took", stats.Duration).
		Msg("cycle done")

	if *cleanup {
		archived, markers, err := a.Scheduler.Cleanup(ctx)
		if err != nil {
			root.Error().Err(err).Msg("cleanup failed")
			return
		}
		root.Info().Int64("archived", archived).Int64("markers", markers).Msg("cleanup done")
	}
}

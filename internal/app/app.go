// Package app 把配置装配成可运行的组件，供 cmd/api 与 cmd/collect 共用。
package app

import (
	"time"

	"github.com/LJTian/newswatch/internal/collector"
	"github.com/LJTian/newswatch/internal/config"
	"github.com/LJTian/newswatch/internal/cycle"
	"github.com/LJTian/newswatch/internal/logger"
	"github.com/LJTian/newswatch/internal/notifier"
	"github.com/LJTian/newswatch/internal/scheduler"
	"github.com/LJTian/newswatch/internal/storage"
	"github.com/rs/zerolog"
)

// 首轮抓取的启动延迟
const startupDelay = 15 * time.Second

type App struct {
	Config       *config.Config
	Store        *storage.Store
	Orchestrator *cycle.Orchestrator
	Scheduler    *scheduler.Scheduler

	closers []func()
}

// Build 连接存储并装配抓取器、投递器、周期编排与调度器
func Build(cfg *config.Config, root zerolog.Logger) (*App, error) {
	store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr, logger.Component(root, "storage"))
	if err != nil {
		return nil, err
	}
	// 缓存不能比投递标记活得更久
	if cfg.MarkerRetention > 0 && cfg.MarkerRetention < store.CacheTTL {
		store.CacheTTL = cfg.MarkerRetention
	}

	a := &App{Config: cfg, Store: store}

	fetcher := a.newFetcher(cfg)
	orch := cycle.New(cycle.Deps{
		Fetcher:       fetcher,
		Ledger:        store,
		Notifier:      NewNotifier(cfg, root),
		Targets:       config.Index(cfg.Targets),
		Subscriptions: cfg.Subscriptions,
		WindowDays:    cfg.WindowDays,
		Concurrency:   cfg.Concurrency,
		Log:           logger.Component(root, "cycle"),
	})
	a.Orchestrator = orch

	sched, err := scheduler.New(scheduler.Options{
		CycleSpec:        cfg.CycleSpec,
		CleanupSpec:      cfg.CleanupSpec,
		ArchiveRetention: cfg.ArchiveRetention,
		MarkerRetention:  cfg.MarkerRetention,
		RunOnStart:       cfg.RunOnStart,
		StartupDelay:     startupDelay,
	}, orch, store, logger.Component(root, "scheduler"))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Scheduler = sched
	return a, nil
}

func (a *App) newFetcher(cfg *config.Config) collector.Fetcher {
	if cfg.Fetcher == "browser" {
		b := &collector.BrowserFetcher{Timeout: cfg.FetchTimeout, ExecPath: cfg.ChromePath}
		a.closers = append(a.closers, b.Close)
		return b
	}
	return &collector.HTTPFetcher{UserAgent: cfg.UserAgent, Timeout: cfg.FetchTimeout}
}

// NewNotifier 配置了 SMTP 账号时发邮件，否则只写日志
func NewNotifier(cfg *config.Config, root zerolog.Logger) notifier.Notifier {
	if cfg.Mail.Username == "" || cfg.Mail.Host == "" {
		root.Warn().Msg("mail not configured, digests are only logged")
		return &notifier.LogNotifier{Log: logger.Component(root, "notifier")}
	}
	return notifier.NewMailer(cfg.Mail)
}

// Close 释放浏览器等外部资源
func (a *App) Close() {
	for _, c := range a.closers {
		c()
	}
	if a.Store != nil {
		if sqlDB, err := a.Store.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
		if a.Store.Redis != nil {
			_ = a.Store.Redis.Close()
		}
	}
}

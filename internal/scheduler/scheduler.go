package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/LJTian/newswatch/internal/cycle"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// CycleRunner 执行一次完整的抓取周期
type CycleRunner interface {
	Run(ctx context.Context) cycle.Stats
}

// Purger 清理过期的归档与投递标记
type Purger interface {
	PurgeOlderThan(ctx context.Context, horizon time.Duration) (int64, error)
	PurgeMarkersOlderThan(ctx context.Context, horizon time.Duration) (int64, error)
}

type Options struct {
	CycleSpec   string
	CleanupSpec string

	ArchiveRetention time.Duration
	// MarkerRetention 为 0 时投递标记永久保留
	MarkerRetention time.Duration

	RunOnStart   bool
	StartupDelay time.Duration
}

type Scheduler struct {
	cron    *cron.Cron
	opts    Options
	runner  CycleRunner
	purger  Purger
	log     zerolog.Logger
	cycle   *trigger
	cleanup *trigger

	mu      sync.Mutex
	stop    chan struct{}
	wg      sync.WaitGroup
	startup *time.Timer
}

func New(opts Options, runner CycleRunner, purger Purger, log zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		opts:   opts,
		runner: runner,
		purger: purger,
		log:    log,
	}
	s.cycle = newTrigger("cycle", s.runCycle, log)
	s.cleanup = newTrigger("cleanup", s.runCleanup, log)

	if _, err := s.cron.AddFunc(opts.CycleSpec, func() { s.cycle.Enqueue() }); err != nil {
		return nil, fmt.Errorf("scheduler: cycle spec %q: %w", opts.CycleSpec, err)
	}
	if _, err := s.cron.AddFunc(opts.CleanupSpec, func() { s.cleanup.Enqueue() }); err != nil {
		return nil, fmt.Errorf("scheduler: cleanup spec %q: %w", opts.CleanupSpec, err)
	}
	return s, nil
}

// Start 启动消费协程与定时器。任务使用不随 ctx 取消的上下文，Stop 时正在运行的周期会完整跑完。
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	stop := make(chan struct{})
	s.stop = stop
	jobCtx := context.WithoutCancel(ctx)

	for _, t := range []*trigger{s.cycle, s.cleanup} {
		s.wg.Add(1)
		go func(t *trigger) {
			defer s.wg.Done()
			t.loop(jobCtx, stop)
		}(t)
	}
	s.cron.Start()

	if s.opts.RunOnStart {
		// 延迟执行首轮抓取，避免与启动阶段争抢资源
		s.startup = time.AfterFunc(s.opts.StartupDelay, func() { s.cycle.Enqueue() })
	}
	s.log.Info().Str("cycle", s.opts.CycleSpec).Str("cleanup", s.opts.CleanupSpec).Msg("scheduler started")
}

// Stop 停止定时器并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stop == nil {
		s.mu.Unlock()
		return
	}
	if s.startup != nil {
		s.startup.Stop()
	}
	<-s.cron.Stop().Done()
	close(s.stop)
	s.stop = nil
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info().Msg("scheduler stopped")
}

// TriggerCycle 手动请求一次抓取周期；返回 false 表示已有待执行的周期
func (s *Scheduler) TriggerCycle() bool {
	return s.cycle.Enqueue()
}

// TriggerCleanup 手动请求一次清理
func (s *Scheduler) TriggerCleanup() bool {
	return s.cleanup.Enqueue()
}

// RunOnce 对外暴露的单次执行入口，方便手动触发采集
func (s *Scheduler) RunOnce(ctx context.Context) cycle.Stats {
	return s.runner.Run(ctx)
}

func (s *Scheduler) Cron() *cron.Cron {
	return s.cron
}

func (s *Scheduler) runCycle(ctx context.Context) {
	s.runner.Run(ctx)
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	if _, _, err := s.Cleanup(ctx); err != nil {
		s.log.Error().Err(err).Msg("cleanup failed")
	}
}

// Cleanup 删除过期归档；配置了标记保留期时一并清理投递标记
func (s *Scheduler) Cleanup(ctx context.Context) (archived, markers int64, err error) {
	s.log.Info().Dur("archive_retention", s.opts.ArchiveRetention).Msg("start cleanup")
	archived, err = s.purger.PurgeOlderThan(ctx, s.opts.ArchiveRetention)
	if err != nil {
		return 0, 0, err
	}
	if s.opts.MarkerRetention > 0 {
		markers, err = s.purger.PurgeMarkersOlderThan(ctx, s.opts.MarkerRetention)
		if err != nil {
			return archived, 0, err
		}
	}
	s.log.Info().Int64("archived_removed", archived).Int64("markers_removed", markers).Msg("cleanup done")
	return archived, markers, nil
}

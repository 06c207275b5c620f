// Package cycle 实现一次完整的抓取周期：按订阅抓取、时效过滤、去重记录、组装摘要并投递。
package cycle

import (
	"context"
	"errors"
	"time"

	"github.com/LJTian/newswatch/internal/collector"
	"github.com/LJTian/newswatch/internal/config"
	"github.com/LJTian/newswatch/internal/logger"
	"github.com/LJTian/newswatch/internal/notifier"
	"github.com/LJTian/newswatch/internal/pool"
	"github.com/LJTian/newswatch/internal/processor"
	"github.com/LJTian/newswatch/internal/storage"
	"github.com/rs/zerolog"
)

// Ledger 投递记录：(标题, 收件人) 是否已发送的唯一来源
type Ledger interface {
	Exists(ctx context.Context, headline, recipient string) (bool, error)
	Record(ctx context.Context, target string, item collector.RawItem, recipient string) (uint, error)
}

// Deps 周期运行所需的全部依赖，配置为只读
type Deps struct {
	Fetcher  collector.Fetcher
	Ledger   Ledger
	Notifier notifier.Notifier

	Targets       config.TargetIndex
	Subscriptions []config.Subscription
	WindowDays    int
	Concurrency   int

	Now func() time.Time
	Log zerolog.Logger
}

type Orchestrator struct {
	fetcher  collector.Fetcher
	ledger   Ledger
	notifier notifier.Notifier

	targets       config.TargetIndex
	subscriptions []config.Subscription
	windowDays    int
	concurrency   int

	now func() time.Time
	log zerolog.Logger
}

func New(deps Deps) *Orchestrator {
	now := deps.Now
	if now == nil {
		now = config.Now
	}
	return &Orchestrator{
		fetcher:       deps.Fetcher,
		ledger:        deps.Ledger,
		notifier:      deps.Notifier,
		targets:       deps.Targets,
		subscriptions: deps.Subscriptions,
		windowDays:    deps.WindowDays,
		concurrency:   deps.Concurrency,
		now:           now,
		log:           deps.Log,
	}
}

// Stats 一次周期的统计
type Stats struct {
	Subscriptions  int
	TargetsFetched int
	TargetsFailed  int
	TargetsUnknown int
	ItemsSeen      int
	ItemsStale     int
	ItemsKnown     int
	ItemsNew       int
	ItemErrors     int
	DigestsSent    int
	DigestsFailed  int
	Duration       time.Duration
}

func (s *Stats) add(r targetResult) {
	s.ItemsSeen += r.seen
	s.ItemsStale += r.stale
	s.ItemsKnown += r.known
	s.ItemsNew += len(r.items)
	s.ItemErrors += r.errors
}

type targetResult struct {
	items  []collector.FilteredItem
	seen   int
	stale  int
	known  int
	errors int
}

// Run 依次处理每个订阅；抓取、记录、投递的失败只影响对应的目标/条目/摘要，不会中断周期
func (o *Orchestrator) Run(ctx context.Context) Stats {
	start := time.Now()
	now := o.now()
	var stats Stats

	o.log.Info().Int("subscriptions", len(o.subscriptions)).Msg("start scrape cycle")
	for _, sub := range o.subscriptions {
		if ctx.Err() != nil {
			o.log.Warn().Err(ctx.Err()).Msg("scrape cycle interrupted")
			break
		}
		stats.Subscriptions++
		o.runSubscription(ctx, sub, now, &stats)
	}
	stats.Duration = time.Since(start)

	o.log.Info().
		Int("targets_fetched", stats.TargetsFetched).
		Int("targets_failed", stats.TargetsFailed).
		Int("items_seen", stats.ItemsSeen).
		Int("items_new", stats.ItemsNew).
		Int("digests_sent", stats.DigestsSent).
		Dur("took", stats.Duration).
		Msg("scrape cycle done")
	return stats
}

func (o *Orchestrator) runSubscription(ctx context.Context, sub config.Subscription, now time.Time, stats *Stats) {
	log := o.log.With().Str("recipient", logger.MaskRecipient(sub.Email)).Logger()

	targets := make([]config.Target, 0, len(sub.Targets))
	for _, name := range sub.Targets {
		t, ok := o.targets.Lookup(name)
		if !ok {
			stats.TargetsUnknown++
			log.Warn().Str("target", name).Msg("target not found in configuration, skipped")
			continue
		}
		targets = append(targets, t)
	}

	results := pool.Run(ctx, o.concurrency, targets, func(ctx context.Context, t config.Target) (targetResult, error) {
		return o.processTarget(ctx, sub.Email, t, now, log)
	})

	var digest []collector.FilteredItem
	for _, r := range results {
		t := targets[r.Index]
		if r.Err != nil {
			stats.TargetsFailed++
			log.Error().Err(r.Err).Str("target", t.Name).Msg("fetch failed, no items this cycle")
		} else {
			stats.TargetsFetched++
		}
		stats.add(r.Value)
		digest = append(digest, r.Value.items...)
	}

	if len(digest) == 0 {
		log.Debug().Msg("no new items to send")
		return
	}
	// 投递失败不回滚已写入的记录：这些条目按“已发送”处理
	if err := o.notifier.Notify(ctx, sub.Email, digest); err != nil {
		stats.DigestsFailed++
		log.Error().Err(err).Int("items", len(digest)).Msg("send digest failed")
		return
	}
	stats.DigestsSent++
	log.Info().Int("items", len(digest)).Msg("digest sent")
}

// processTarget 顺序消费一个目标的条目。抓取器按时间倒序时，遇到第一条过期条目即停止读取。
func (o *Orchestrator) processTarget(ctx context.Context, recipient string, t config.Target, now time.Time, log zerolog.Logger) (targetResult, error) {
	var res targetResult
	log = log.With().Str("target", t.Name).Logger()
	log.Debug().Msg("scraping")

	seq, err := o.fetcher.Fetch(ctx, t)
	if err != nil {
		return res, err
	}
	ordered := o.fetcher.Ordered()

	for raw := range seq {
		raw.Headline = processor.NormalizeHeadline(raw.Headline)
		if raw.Headline == "" {
			continue
		}
		res.seen++

		if !processor.IsWithinWindow(raw.DateLabel, o.windowDays, now) {
			res.stale++
			if ordered {
				log.Debug().Str("date", raw.DateLabel).Msg("item outside recency window, stop reading feed")
				break
			}
			continue
		}

		exists, err := o.ledger.Exists(ctx, raw.Headline, recipient)
		if err != nil {
			res.errors++
			log.Error().Err(err).Str("headline", raw.Headline).Msg("ledger lookup failed, item dropped")
			continue
		}
		if exists {
			res.known++
			continue
		}

		if _, err := o.ledger.Record(ctx, t.Name, raw, recipient); err != nil {
			if errors.Is(err, storage.ErrAlreadyDelivered) {
				res.known++
				continue
			}
			res.errors++
			log.Error().Err(err).Str("headline", raw.Headline).Msg("ledger record failed, item dropped")
			continue
		}
		res.items = append(res.items, collector.FilteredItem{RawItem: raw, Target: t.Name})
	}
	return res, nil
}

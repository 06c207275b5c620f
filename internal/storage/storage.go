package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LJTian/newswatch/internal/collector"
	"github.com/LJTian/newswatch/internal/processor"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrAlreadyDelivered 并发写入时唯一索引冲突：该 (标题, 收件人) 已存在投递标记
var ErrAlreadyDelivered = errors.New("storage: already delivered")

// ArchivedItem 抓取到并已投递的新闻归档，按保留期定期清理
type ArchivedItem struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	Target    string            `gorm:"size:64;index" json:"target"`
	Headline  string            `gorm:"size:512" json:"headline"`
	DateLabel string            `gorm:"size:32" json:"dateLabel"`
	Link      string            `gorm:"size:1024" json:"link"`
	ExtraData datatypes.JSONMap `gorm:"type:jsonb" json:"extraData"`
	CreatedAt time.Time         `gorm:"index" json:"createdAt"`
}

// DeliveryMarker 投递标记：(标题, 收件人) 是否已发送的唯一依据。
// 归档行被清理后标记仍保留（外键置空），因此清理不会导致重复投递。
type DeliveryMarker struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	Headline       string        `gorm:"size:512;not null;uniqueIndex:idx_marker_headline_recipient" json:"headline"`
	Recipient      string        `gorm:"size:320;not null;uniqueIndex:idx_marker_headline_recipient;index" json:"recipient"`
	ArchivedItemID *uint         `gorm:"index" json:"archivedItemId,omitempty"`
	ArchivedItem   *ArchivedItem `gorm:"constraint:OnDelete:SET NULL" json:"archivedItem,omitempty"`
	CreatedAt      time.Time     `gorm:"index" json:"createdAt"`
}

const (
	cacheKeyPrefix  = "newswatch:delivered:"
	defaultCacheTTL = 24 * time.Hour
)

type Store struct {
	DB    *gorm.DB
	Redis *redis.Client

	// CacheTTL Redis 中“已投递”正向缓存的过期时间
	CacheTTL time.Duration
	Now      func() time.Time
}

// NewStore 连接 Postgres 与（可选的）Redis；redisAddr 为空时不启用缓存
func NewStore(dsn, redisAddr string, log zerolog.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open postgres: %w", err)
	}

	var rdb *redis.Client
	if redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: redisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", redisAddr).Msg("redis ping failed, lookups fall back to postgres")
		}
	}

	return New(db, rdb)
}

// New 基于已有连接构建 Store 并迁移表结构
func New(db *gorm.DB, rdb *redis.Client) (*Store, error) {
	if err := db.AutoMigrate(&ArchivedItem{}, &DeliveryMarker{}); err != nil {
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return &Store{DB: db, Redis: rdb, CacheTTL: defaultCacheTTL, Now: time.Now}, nil
}

func cacheKey(headline, recipient string) string {
	return cacheKeyPrefix + recipient + ":" + processor.HeadlineKey(headline)
}

// Exists 查询 (标题, 收件人) 是否已有投递标记；Redis 只缓存“已存在”，出错时回落到数据库
func (s *Store) Exists(ctx context.Context, headline, recipient string) (bool, error) {
	key := cacheKey(headline, recipient)
	if s.Redis != nil {
		if n, err := s.Redis.Exists(ctx, key).Result(); err == nil && n > 0 {
			return true, nil
		}
	}

	var count int64
	err := s.DB.WithContext(ctx).
		Model(&DeliveryMarker{}).
		Where("headline = ? AND recipient = ?", headline, recipient).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("storage: lookup marker: %w", err)
	}
	if count > 0 {
		s.cacheDelivered(ctx, key)
		return true, nil
	}
	return false, nil
}

// Record 在同一事务中写入归档行与投递标记，返回归档行 ID。
// 标记唯一索引冲突时返回 ErrAlreadyDelivered，整个事务回滚。
func (s *Store) Record(ctx context.Context, target string, item collector.RawItem, recipient string) (uint, error) {
	archived := &ArchivedItem{
		Target:    target,
		Headline:  item.Headline,
		DateLabel: item.DateLabel,
		Link:      item.Link,
		// 每次投递写一行归档，记录是哪次投递产生的
		ExtraData: datatypes.JSONMap{"recipient": recipient},
		CreatedAt: s.now(),
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(archived).Error; err != nil {
			return fmt.Errorf("storage: archive item: %w", err)
		}
		marker := &DeliveryMarker{
			Headline:       item.Headline,
			Recipient:      recipient,
			ArchivedItemID: &archived.ID,
			CreatedAt:      archived.CreatedAt,
		}
		if err := tx.Create(marker).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyDelivered
			}
			return fmt.Errorf("storage: write marker: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.cacheDelivered(ctx, cacheKey(item.Headline, recipient))
	return archived.ID, nil
}

func (s *Store) cacheDelivered(ctx context.Context, key string) {
	if s.Redis == nil {
		return
	}
	ttl := s.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	// 缓存写入失败不影响结果，下次查询回落到数据库
	_ = s.Redis.Set(ctx, key, 1, ttl).Err()
}

// PurgeOlderThan 删除插入时间早于 horizon 的归档行，返回删除的行数；投递标记不受影响
func (s *Store) PurgeOlderThan(ctx context.Context, horizon time.Duration) (int64, error) {
	cutoff := s.now().Add(-horizon)
	res := s.DB.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&ArchivedItem{})
	if res.Error != nil {
		return 0, fmt.Errorf("storage: purge archive: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// PurgeMarkersOlderThan 删除早于 horizon 的投递标记。
// 删除后同一标题可能再次投递给同一收件人；Redis 中的缓存依赖 TTL 自然过期。
func (s *Store) PurgeMarkersOlderThan(ctx context.Context, horizon time.Duration) (int64, error) {
	cutoff := s.now().Add(-horizon)
	res := s.DB.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&DeliveryMarker{})
	if res.Error != nil {
		return 0, fmt.Errorf("storage: purge markers: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ListDeliveries 返回某个收件人最近的投递记录（含仍未清理的归档内容）
func (s *Store) ListDeliveries(ctx context.Context, recipient string, limit int) ([]DeliveryMarker, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var list []DeliveryMarker
	err := s.DB.WithContext(ctx).
		Preload("ArchivedItem").
		Where("recipient = ?", recipient).
		Order("created_at DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("storage: list deliveries: %w", err)
	}
	return list, nil
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

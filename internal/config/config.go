package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const configPathEnv = "NEWSWATCH_CONFIG"

// ErrNoSubscriptions 订阅配置缺失或为空，属于启动期致命错误
var ErrNoSubscriptions = errors.New("config: no subscriptions configured")

type Config struct {
	AppPort string

	PostgresDSN string
	RedisAddr   string

	CycleSpec   string
	CleanupSpec string
	RunOnStart  bool

	WindowDays       int
	Concurrency      int
	ArchiveRetention time.Duration
	MarkerRetention  time.Duration

	Fetcher      string
	FetchTimeout time.Duration
	UserAgent    string
	// ChromePath 为空时由 chromedp 自行查找浏览器
	ChromePath string

	Mail MailConfig

	BasicAuthUser string
	BasicAuthPass string

	LogLevel  string
	LogFormat string

	Targets       []Target
	Subscriptions []Subscription
}

// MailConfig SMTP 发信参数
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

var defaults = map[string]any{
	"app_port":          "9000",
	"postgres_dsn":      "host=localhost user=newswatch password=newswatch dbname=newswatch port=5432 sslmode=disable TimeZone=UTC",
	"redis_addr":        "localhost:6380",
	"cycle_spec":        "@every 5m",
	"cleanup_spec":      "@every 168h",
	"run_on_start":      true,
	"window_days":       1,
	"concurrency":       5,
	"archive_retention": "48h",
	"marker_retention":  "0s",
	"fetcher":           "http",
	"fetch_timeout":     "15s",
	"user_agent":        "Mozilla/5.0 (compatible; NewsWatchBot/1.0)",
	"mail_host":         "smtp.gmail.com",
	"mail_port":         587,
	"log_level":         "info",
	"log_format":        "console",
}

// Load 读取默认值、可选 YAML 文件（NEWSWATCH_CONFIG）与环境变量；订阅配置缺失或格式错误时返回错误
func Load() (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if path := v.GetString(configPathEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := &Config{
		AppPort:          v.GetString("app_port"),
		PostgresDSN:      v.GetString("postgres_dsn"),
		RedisAddr:        v.GetString("redis_addr"),
		CycleSpec:        v.GetString("cycle_spec"),
		CleanupSpec:      v.GetString("cleanup_spec"),
		RunOnStart:       v.GetBool("run_on_start"),
		WindowDays:       v.GetInt("window_days"),
		Concurrency:      v.GetInt("concurrency"),
		ArchiveRetention: v.GetDuration("archive_retention"),
		MarkerRetention:  v.GetDuration("marker_retention"),
		Fetcher:          strings.ToLower(v.GetString("fetcher")),
		FetchTimeout:     v.GetDuration("fetch_timeout"),
		UserAgent:        v.GetString("user_agent"),
		ChromePath:       v.GetString("chrome_path"),
		Mail: MailConfig{
			Host:     v.GetString("mail_host"),
			Port:     v.GetInt("mail_port"),
			Username: v.GetString("mail_user"),
			Password: v.GetString("mail_pass"),
			From:     v.GetString("mail_from"),
		},
		BasicAuthUser: v.GetString("app_basic_user"),
		BasicAuthPass: v.GetString("app_basic_pass"),
		LogLevel:      v.GetString("log_level"),
		LogFormat:     v.GetString("log_format"),
		Targets:       defaultTargets(),
	}
	if cfg.Mail.From == "" {
		cfg.Mail.From = cfg.Mail.Username
	}

	if v.IsSet("targets") {
		var targets []Target
		if err := v.UnmarshalKey("targets", &targets); err != nil {
			return nil, fmt.Errorf("config: parse targets: %w", err)
		}
		if len(targets) > 0 {
			cfg.Targets = targets
		}
	}

	subs, err := loadSubscriptions(v)
	if err != nil {
		return nil, err
	}
	cfg.Subscriptions = subs

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadSubscriptions 优先解析 SUBSCRIPTIONS 环境变量中的 JSON，其次读取配置文件中的 subscriptions 列表
func loadSubscriptions(v *viper.Viper) ([]Subscription, error) {
	var subs []Subscription
	if raw := strings.TrimSpace(v.GetString("subscriptions")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &subs); err != nil {
			return nil, fmt.Errorf("config: parse SUBSCRIPTIONS: %w", err)
		}
	} else if v.IsSet("subscriptions") {
		if err := v.UnmarshalKey("subscriptions", &subs); err != nil {
			return nil, fmt.Errorf("config: parse subscriptions: %w", err)
		}
	}
	if len(subs) == 0 {
		return nil, ErrNoSubscriptions
	}

	for i := range subs {
		subs[i].Email = strings.TrimSpace(subs[i].Email)
		if subs[i].Email == "" {
			return nil, fmt.Errorf("config: subscription %d: email is required", i)
		}
		if len(subs[i].Targets) == 0 {
			return nil, fmt.Errorf("config: subscription %d: no companies", i)
		}
	}
	return subs, nil
}

func (c *Config) validate() error {
	if c.WindowDays < 0 {
		return fmt.Errorf("config: window_days must be >= 0, got %d", c.WindowDays)
	}
	if c.ArchiveRetention <= 0 {
		return fmt.Errorf("config: archive_retention must be positive, got %s", c.ArchiveRetention)
	}
	if c.MarkerRetention < 0 {
		return fmt.Errorf("config: marker_retention must be >= 0, got %s", c.MarkerRetention)
	}
	switch c.Fetcher {
	case "http", "browser":
	default:
		return fmt.Errorf("config: unknown fetcher %q", c.Fetcher)
	}
	return nil
}

// Now returns current time, 方便后续做可测试封装
func Now() time.Time {
	return time.Now()
}

package collector

import (
	"context"
	"iter"

	"github.com/LJTian/newswatch/internal/config"
)

// RawItem 新闻页中的一行：标题、日期标签（通常为 DD/MM 或当天的时间）、可选链接
type RawItem struct {
	Headline  string
	DateLabel string
	Link      string
}

// Fetcher 抽象每一种抓取方式。
// Fetch 只在请求阶段失败；返回的序列是惰性的，调用方停止迭代后不会再解析后续行。
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, target config.Target) (iter.Seq[RawItem], error)
	// Ordered 为 true 表示序列按时间倒序（最新在前），调用方可在遇到过期条目后提前结束
	Ordered() bool
}

// FilteredItem 通过时效过滤的条目，附带其来源 Target 名称
type FilteredItem struct {
	RawItem
	Target string
}

package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"time"

	"github.com/LJTian/newswatch/internal/config"
	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

const (
	defaultFetchTimeout = 15 * time.Second
	maxPageBytes        = 4 << 20 // 4MB，防止超大 HTML
)

// ErrPageTooLarge 页面达到大小上限，colly 已截断正文，表格可能不完整
var ErrPageTooLarge = errors.New("collector: page exceeds size limit")

// HTTPFetcher 用 colly 下载新闻页，再用 goquery 解析新闻表格
type HTTPFetcher struct {
	UserAgent string
	Timeout   time.Duration
	// MaxBodySize 为 0 时使用 4MB
	MaxBodySize int
}

func (h *HTTPFetcher) Name() string {
	return "http"
}

func (h *HTTPFetcher) Ordered() bool {
	return true
}

func (h *HTTPFetcher) Fetch(ctx context.Context, target config.Target) (iter.Seq[RawItem], error) {
	base, err := url.Parse(target.URL)
	if err != nil {
		return nil, fmt.Errorf("collector: parse url %q: %w", target.URL, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := []colly.CollectorOption{}
	if h.UserAgent != "" {
		opts = append(opts, colly.UserAgent(h.UserAgent))
	}
	c := colly.NewCollector(opts...)
	limit := h.MaxBodySize
	if limit <= 0 {
		limit = maxPageBytes
	}
	c.MaxBodySize = limit
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	c.SetRequestTimeout(timeout)

	// colly v2.1.0 的请求不接收 ctx：这里只能在发出前放弃，
	// 已发出的请求在 ctx 取消后仍要等到响应或 Timeout。
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	var body []byte
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})

	if err := c.Visit(target.URL); err != nil {
		return nil, fmt.Errorf("collector: visit %s: %w", target.Name, err)
	}
	if body == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("collector: %s: empty response", target.Name)
	}
	// colly 超限时静默截断，长度恰好等于上限即视为被截断
	if len(body) >= limit {
		return nil, fmt.Errorf("collector: %s: %w (%d bytes)", target.Name, ErrPageTooLarge, limit)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("collector: parse %s: %w", target.Name, err)
	}
	return newsRows(doc, base), nil
}

package collector

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/LJTian/newswatch/internal/config"
	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
)

// BrowserFetcher 通过 headless Chrome 渲染新闻页，适合需要执行脚本才出现表格的页面。
// 整个进程复用一个浏览器实例，每次抓取打开一个新标签页。
type BrowserFetcher struct {
	Timeout  time.Duration
	ExecPath string

	once          sync.Once
	startErr      error
	browserCtx    context.Context
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc
}

func (b *BrowserFetcher) Name() string {
	return "browser"
}

func (b *BrowserFetcher) Ordered() bool {
	return true
}

// start 首次调用时拉起浏览器进程；之后的标签页从 browserCtx 派生，共用同一个进程。
// 启动失败会被记住，后续抓取直接返回该错误。
func (b *BrowserFetcher) start() error {
	b.once.Do(func() {
		opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
		if b.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(b.ExecPath))
		}
		allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
		browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
		b.browserCtx, b.cancelAlloc, b.cancelBrowser = browserCtx, cancelAlloc, cancelBrowser

		// 空动作的 Run 只负责启动浏览器，此后 browserCtx 上挂着 Browser
		if err := chromedp.Run(browserCtx); err != nil {
			b.startErr = fmt.Errorf("collector: start browser: %w", err)
			cancelBrowser()
			cancelAlloc()
		}
	})
	return b.startErr
}

// Close 关闭浏览器进程
func (b *BrowserFetcher) Close() {
	if b.cancelBrowser != nil {
		b.cancelBrowser()
	}
	if b.cancelAlloc != nil {
		b.cancelAlloc()
	}
}

func (b *BrowserFetcher) Fetch(ctx context.Context, target config.Target) (iter.Seq[RawItem], error) {
	base, err := url.Parse(target.URL)
	if err != nil {
		return nil, fmt.Errorf("collector: parse url %q: %w", target.URL, err)
	}
	if err := b.start(); err != nil {
		return nil, err
	}

	timeout := b.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	defer cancelTab()
	runCtx, cancel := context.WithTimeout(tabCtx, timeout)
	defer cancel()
	// 调用方取消时同步取消渲染
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err = chromedp.Run(runCtx,
		chromedp.Navigate(target.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("collector: render %s: %w", target.Name, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("collector: parse %s: %w", target.Name, err)
	}
	return newsRows(doc, base), nil
}

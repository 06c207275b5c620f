package collector

import (
	"iter"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// 新闻列表表格的行选择器
const newsRowSelector = "#newsScreener tr"

// newsRows 逐行惰性解析新闻表格
func newsRows(doc *goquery.Document, base *url.URL) iter.Seq[RawItem] {
	rows := doc.Find(newsRowSelector)
	return func(yield func(RawItem) bool) {
		for i := 0; i < rows.Length(); i++ {
			item, ok := parseRow(rows.Eq(i), base)
			if !ok {
				continue
			}
			if !yield(item) {
				return
			}
		}
	}
}

// parseRow 第一列为标题（优先取链接文本），第二列为日期；列数不足或标题为空的行跳过
func parseRow(row *goquery.Selection, base *url.URL) (RawItem, bool) {
	cols := row.Find("td")
	if cols.Length() < 2 {
		return RawItem{}, false
	}

	first := cols.Eq(0)
	var headline, link string
	if a := first.Find("a").First(); a.Length() > 0 {
		headline = strings.TrimSpace(a.Text())
		if href, ok := a.Attr("href"); ok {
			link = resolveLink(base, strings.TrimSpace(href))
		}
	} else {
		headline = strings.TrimSpace(first.Text())
	}
	if headline == "" {
		return RawItem{}, false
	}

	return RawItem{
		Headline:  headline,
		DateLabel: strings.TrimSpace(cols.Eq(1).Text()),
		Link:      link,
	}, true
}

func resolveLink(base *url.URL, href string) string {
	if href == "" || strings.HasPrefix(href, "http") || base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

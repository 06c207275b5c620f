// Package notifier 把每个收件人的摘要投递出去。投递失败只返回错误，不做重试。
package notifier

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/LJTian/newswatch/internal/collector"
	"github.com/LJTian/newswatch/internal/logger"
	"github.com/rs/zerolog"
)

type Notifier interface {
	Notify(ctx context.Context, recipient string, items []collector.FilteredItem) error
}

const digestSubject = "Nuevas noticias extraídas"

var digestTmpl = template.Must(template.New("digest").Parse(`{{range .}}<p>
<strong>Empresa:</strong> {{.Target}}<br>
<strong>Noticia:</strong> {{if .Link}}<a href="{{.Link}}">{{.Headline}}</a>{{else}}{{.Headline}}{{end}}<br>
<strong>Fecha:</strong> {{.DateLabel}}
</p>
{{end}}`))

// RenderDigest 生成邮件 HTML 正文
func RenderDigest(items []collector.FilteredItem) (string, error) {
	var buf bytes.Buffer
	if err := digestTmpl.Execute(&buf, items); err != nil {
		return "", fmt.Errorf("notifier: render digest: %w", err)
	}
	return buf.String(), nil
}

// LogNotifier 未配置邮件时使用：只把摘要写进日志
type LogNotifier struct {
	Log zerolog.Logger
}

func (n *LogNotifier) Notify(ctx context.Context, recipient string, items []collector.FilteredItem) error {
	for _, it := range items {
		n.Log.Info().
			Str("recipient", logger.MaskRecipient(recipient)).
			Str("target", it.Target).
			Str("date", it.DateLabel).
			Str("link", it.Link).
			Msg(it.Headline)
	}
	return nil
}

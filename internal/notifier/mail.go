package notifier

import (
	"context"
	"fmt"

	"github.com/LJTian/newswatch/internal/collector"
	"github.com/LJTian/newswatch/internal/config"
	"github.com/wneessen/go-mail"
)

// Mailer 通过 SMTP 发送 HTML 摘要邮件
type Mailer struct {
	cfg config.MailConfig
}

func NewMailer(cfg config.MailConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

func (m *Mailer) Notify(ctx context.Context, recipient string, items []collector.FilteredItem) error {
	body, err := RenderDigest(items)
	if err != nil {
		return err
	}

	msg, err := m.buildMessage(recipient, body)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
	)
	if err != nil {
		return fmt.Errorf("notifier: smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("notifier: send: %w", err)
	}
	return nil
}

func (m *Mailer) buildMessage(recipient, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("notifier: from %q: %w", m.cfg.From, err)
	}
	if err := msg.To(recipient); err != nil {
		return nil, fmt.Errorf("notifier: to: %w", err)
	}
	msg.Subject(digestSubject)
	msg.SetBodyString(mail.TypeTextHTML, body)
	return msg, nil
}

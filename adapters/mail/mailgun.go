package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/mailgun/mailgun-go/v4"

	"github.com/lborres/bantay/core"
)

type Mailgun struct {
	mg   *mailgun.MailgunImpl
	from string
}

func NewMailgun(config Config) (*Mailgun, error) {
	if config.MailgunKey == "" || config.MailgunDomain == "" || config.From == "" {
		return nil, errors.New("invalid Mailgun configuration")
	}
	mg := mailgun.NewMailgun(config.MailgunDomain, config.MailgunKey)
	if config.MailgunAPIBase != "" {
		mg.SetAPIBase(config.MailgunAPIBase)
	}
	return &Mailgun{mg: mg, from: sender(config)}, nil
}

func (m *Mailgun) Send(ctx context.Context, msg core.Message) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	message := m.mg.NewMessage(m.from, msg.Subject, msg.Text, msg.To)
	if msg.HTML != "" {
		message.SetHtml(msg.HTML)
	}
	if _, _, err := m.mg.Send(ctx, message); err != nil {
		return fmt.Errorf("mailgun send: %w", err)
	}
	return nil
}

func sender(config Config) string {
	if config.FromName == "" {
		return config.From
	}
	return fmt.Sprintf("%s <%s>", config.FromName, config.From)
}

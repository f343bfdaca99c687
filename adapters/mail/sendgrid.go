package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/lborres/bantay/core"
)

type SendGrid struct {
	key      string
	host     string
	from     string
	fromName string
}

func NewSendGrid(config Config) (*SendGrid, error) {
	if config.SendGridKey == "" || config.From == "" {
		return nil, errors.New("invalid SendGrid configuration")
	}
	return &SendGrid{key: config.SendGridKey, host: config.SendGridHost, from: config.From, fromName: config.FromName}, nil
}

func (s *SendGrid) Send(ctx context.Context, msg core.Message) error {
	from := sgmail.NewEmail(s.fromName, s.from)
	to := sgmail.NewEmail("", msg.To)
	message := sgmail.NewSingleEmail(from, msg.Subject, to, msg.Text, msg.HTML)

	// the client holds the request body, so one per send
	client := sendgrid.NewSendClient(s.key)
	if s.host != "" {
		client.BaseURL = strings.TrimSuffix(s.host, "/") + "/v3/mail/send"
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	response, err := client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return fmt.Errorf("sendgrid send: status code %d", response.StatusCode)
	}
	return nil
}

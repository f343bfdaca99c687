// Package mail delivers rendered messages through Mailgun, SendGrid or the log.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/lborres/bantay/core"
)

const sendTimeout = 30 * time.Second

// Config selects and configures a provider.
type Config struct {
	Provider string `env:"PROVIDER" envDefault:"log"` // mailgun, sendgrid or log
	From     string `env:"FROM" envDefault:"no-reply@localhost"`
	FromName string `env:"FROM_NAME"`

	MailgunDomain  string `env:"MAILGUN_DOMAIN"`
	MailgunKey     string `env:"MAILGUN_KEY"`
	MailgunAPIBase string `env:"MAILGUN_API_BASE"`

	SendGridKey  string `env:"SENDGRID_KEY"`
	SendGridHost string `env:"SENDGRID_HOST"`
}

// New returns the mailer named by config.Provider. Remote providers are
// wrapped in a circuit breaker.
func New(config Config, logger *slog.Logger) (core.Mailer, error) {
	switch config.Provider {
	case "", "log":
		return NewLog(logger), nil
	case "mailgun":
		m, err := NewMailgun(config)
		if err != nil {
			return nil, err
		}
		return WithBreaker("mailgun", m), nil
	case "sendgrid":
		m, err := NewSendGrid(config)
		if err != nil {
			return nil, err
		}
		return WithBreaker("sendgrid", m), nil
	}
	return nil, fmt.Errorf("unknown mail provider %q", config.Provider)
}

// Log writes messages to a logger instead of sending them.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Send(ctx context.Context, msg core.Message) error {
	l.logger.InfoContext(ctx, "email", "to", msg.To, "subject", msg.Subject, "text", msg.Text)
	return nil
}

type breaker struct {
	next core.Mailer
	cb   *gobreaker.CircuitBreaker
}

// WithBreaker stops calling next for a while after repeated failures.
func WithBreaker(name string, next core.Mailer) core.Mailer {
	return &breaker{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (b *breaker) Send(ctx context.Context, msg core.Message) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.next.Send(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return core.ErrUpstreamUnavailable.WithMessage("mail provider unavailable").Wrap(err)
	}
	return err
}

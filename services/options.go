package services

import (
	"log/slog"
	"time"

	"github.com/lborres/bantay/core"
)

// deps are the ambient collaborators every service carries.
type deps struct {
	logger  *slog.Logger
	metrics core.Metrics
	now     func() time.Time
}

type Option func(*deps)

func WithLogger(logger *slog.Logger) Option {
	return func(d *deps) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithMetrics(metrics core.Metrics) Option {
	return func(d *deps) {
		if metrics != nil {
			d.metrics = metrics
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(d *deps) {
		if now != nil {
			d.now = now
		}
	}
}

func newDeps(opts []Option) deps {
	d := deps{
		logger:  slog.Default(),
		metrics: core.NopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

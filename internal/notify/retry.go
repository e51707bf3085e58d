package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultRetries       = 3
	DefaultRetryInterval = time.Second
)

// Retrying retries a Notifier with exponential backoff.
type Retrying struct {
	next     Notifier
	retries  int
	interval time.Duration
	log      *slog.Logger
}

// NewRetrying wraps next. retries is the number of extra attempts after the
// first; zero disables retrying.
func NewRetrying(next Notifier, retries int, interval time.Duration, log *slog.Logger) *Retrying {
	if retries < 0 {
		retries = 0
	}
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Retrying{next: next, retries: retries, interval: interval, log: log.With("component", "notify")}
}

func (r *Retrying) SendText(ctx context.Context, text string, format Format) error {
	return r.do(ctx, OpSendText, func() error { return r.next.SendText(ctx, text, format) })
}

func (r *Retrying) SendFile(ctx context.Context, path string) error {
	return r.do(ctx, OpSendFile, func() error { return r.next.SendFile(ctx, path) })
}

func (r *Retrying) policy(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.interval
	eb.MaxInterval = 30 * r.interval
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(r.retries)), ctx)
}

func (r *Retrying) do(ctx context.Context, op string, send func() error) error {
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := send()
		var f *Failure
		if errors.As(err, &f) && f.Permanent {
			return backoff.Permanent(err)
		}
		return err
	}, r.policy(ctx), func(err error, wait time.Duration) {
		r.log.Warn("notification attempt failed, retrying", "op", op, "attempt", attempt, "wait", wait, "error", err)
	})
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return err
	}
	return &Failure{Op: op, Err: err}
}

package email

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

const defaultRetryAttempts = 3

// RetryingSender retries transient delivery failures with exponential backoff.
type RetryingSender struct {
	inner       Sender
	maxAttempts uint64
	newBackOff  func() backoff.BackOff
}

func NewRetryingSender(inner Sender, maxAttempts int) *RetryingSender {
	if maxAttempts <= 0 {
		maxAttempts = defaultRetryAttempts
	}
	return &RetryingSender{
		inner:       inner,
		maxAttempts: uint64(maxAttempts),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
}

func (s *RetryingSender) Send(ctx context.Context, recipient, subject, body string) error {
	attempt := 0
	op := func() error {
		attempt++
		err := s.inner.Send(ctx, recipient, subject, body)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrInvalidRecipient) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		log.Ctx(ctx).Warn().Err(err).Int("attempt", attempt).Msg("Email send failed, retrying")
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), s.maxAttempts-1), ctx)
	return backoff.Retry(op, b)
}

package email

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const sendTimeout = 15 * time.Second

type Sender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// Recorder receives the outcome of each delivery.
type Recorder interface {
	RecordEmail(err error)
}

// SendAsync delivers msg in the background. The send ignores ctx's
// cancellation but keeps its values, including the logger. The returned
// channel yields the delivery error, or nil when there was nothing to send.
func SendAsync(ctx context.Context, sender Sender, recipient string, msg Message, rec Recorder) <-chan error {
	done := make(chan error, 1)
	recipient = strings.TrimSpace(recipient)
	if sender == nil || recipient == "" || msg.Subject == "" || msg.Body == "" {
		close(done)
		return done
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)

	go func() {
		defer close(done)
		defer cancel()

		err := sender.Send(sendCtx, recipient, msg.Subject, msg.Body)
		if rec != nil {
			rec.RecordEmail(err)
		}
		if err != nil {
			log.Ctx(sendCtx).Error().Err(err).Str("subject", msg.Subject).Msg("Failed to send email")
		}
		done <- err
	}()
	return done
}

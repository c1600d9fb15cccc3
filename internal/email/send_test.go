package email

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/cenkalti/backoff/v4"
)

type fakeEmailSender struct {
	mu       sync.Mutex
	calls    int32
	failures int32
	err      error
	sent     []string
	ctxErr   error
}

func (f *fakeEmailSender) Send(ctx context.Context, recipient, subject, body string) error {
	n := atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxErr = ctx.Err()
	if n <= f.failures {
		return f.err
	}
	f.sent = append(f.sent, recipient+"|"+subject)
	return nil
}

type countingRecorder struct {
	ok, failed int32
}

func (c *countingRecorder) RecordEmail(err error) {
	if err != nil {
		atomic.AddInt32(&c.failed, 1)
		return
	}
	atomic.AddInt32(&c.ok, 1)
}

func waitForResult(t *testing.T, ch <-chan error) error {
	t.Helper()

	select {
	case err := <-ch:
		return err
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for send")
		return nil
	}
}

func TestSendAsyncSurvivesCanceledParent(t *testing.T) {
	sender := &fakeEmailSender{}
	rec := &countingRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := SendAsync(ctx, sender, " player@test.com ", Message{Subject: "Hi", Body: "Body"}, rec)
	if err := waitForResult(t, done); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sender.ctxErr != nil {
		t.Fatalf("expected detached context, got %v", sender.ctxErr)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "player@test.com|Hi" {
		t.Fatalf("unexpected sends %v", sender.sent)
	}
	if atomic.LoadInt32(&rec.ok) != 1 {
		t.Fatalf("expected one recorded success, got %d", rec.ok)
	}
}

func TestSendAsyncSkipsIncompleteMessages(t *testing.T) {
	sender := &fakeEmailSender{}

	cases := []struct {
		name      string
		sender    Sender
		recipient string
		msg       Message
	}{
		{name: "nil sender", recipient: "a@test.com", msg: Message{Subject: "s", Body: "b"}},
		{name: "blank recipient", sender: sender, recipient: "  ", msg: Message{Subject: "s", Body: "b"}},
		{name: "empty body", sender: sender, recipient: "a@test.com", msg: Message{Subject: "s"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := waitForResult(t, SendAsync(context.Background(), tc.sender, tc.recipient, tc.msg, nil)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
	if atomic.LoadInt32(&sender.calls) != 0 {
		t.Fatalf("expected no sends, got %d", sender.calls)
	}
}

func newTestRetryingSender(inner Sender, attempts int) *RetryingSender {
	s := NewRetryingSender(inner, attempts)
	s.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return s
}

func TestRetryingSenderRetriesTransientErrors(t *testing.T) {
	inner := &fakeEmailSender{failures: 2, err: errors.New("throttled")}
	s := newTestRetryingSender(inner, 3)

	if err := s.Send(context.Background(), "a@test.com", "s", "b"); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if got := atomic.LoadInt32(&inner.calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestRetryingSenderGivesUp(t *testing.T) {
	inner := &fakeEmailSender{failures: 10, err: errors.New("down")}
	s := newTestRetryingSender(inner, 2)

	if err := s.Send(context.Background(), "a@test.com", "s", "b"); err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(&inner.calls); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestRetryingSenderStopsOnPermanentError(t *testing.T) {
	inner := &fakeEmailSender{failures: 10, err: ErrInvalidRecipient}
	s := newTestRetryingSender(inner, 5)

	err := s.Send(context.Background(), "", "s", "b")
	if !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}
	if got := atomic.LoadInt32(&inner.calls); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestBuildNotificationEmail(t *testing.T) {
	msg := BuildNotificationEmail(NotificationDetails{
		AppName: "Grudge",
		BaseURL: "https://grudge.test/",
		Title:   "Score submitted",
		Body:    "Hawks reported 2-1.",
		Link:    "/season-matches/4",
	})

	if msg.Subject != "[Grudge] Score submitted" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	if !strings.Contains(msg.Body, "https://grudge.test/season-matches/4") {
		t.Fatalf("expected absolute link in body, got %q", msg.Body)
	}
}

func TestBuildReminderEmail(t *testing.T) {
	startsAt := time.Date(2024, 5, 4, 18, 30, 0, 0, time.UTC)
	msg := BuildReminderEmail(ReminderDetails{
		Kind:     "Match",
		TeamName: "Hawks",
		Title:    "Hawks vs Owls",
		StartsAt: startsAt,
	})

	if msg.Subject != "[Grudge] Upcoming match: Hawks vs Owls" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	for _, want := range []string{"Team: Hawks", "Where: TBD", "Saturday, May 4, 2024 at 6:30 PM UTC"} {
		if !strings.Contains(msg.Body, want) {
			t.Fatalf("expected %q in body %q", want, msg.Body)
		}
	}
}

type fakeSESAPI struct {
	in  *sesv2.SendEmailInput
	err error
}

func (f *fakeSESAPI) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	return &sesv2.SendEmailOutput{}, f.err
}

func TestSESClientBuildsPlainTextMessage(t *testing.T) {
	api := &fakeSESAPI{}
	c := &SESClient{api: api, from: "Grudge <noreply@grudge.test>"}

	if err := c.Send(context.Background(), " captain@grudge.test ", "Match tonight", "Kickoff 19:00"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := api.in.Destination.ToAddresses; len(got) != 1 || got[0] != "captain@grudge.test" {
		t.Fatalf("unexpected destination %v", got)
	}
	if *api.in.FromEmailAddress != "Grudge <noreply@grudge.test>" {
		t.Fatalf("unexpected from %q", *api.in.FromEmailAddress)
	}
	simple := api.in.Content.Simple
	if *simple.Subject.Data != "Match tonight" || *simple.Body.Text.Data != "Kickoff 19:00" {
		t.Fatalf("unexpected content %q / %q", *simple.Subject.Data, *simple.Body.Text.Data)
	}
}

func TestSESClientErrors(t *testing.T) {
	c := &SESClient{api: &fakeSESAPI{err: errors.New("throttled")}, from: "noreply@grudge.test"}

	if err := c.Send(context.Background(), "  ", "s", "b"); !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}
	if err := c.Send(context.Background(), "a@grudge.test", "s", "b"); err == nil || !strings.Contains(err.Error(), "throttled") {
		t.Fatalf("expected wrapped ses error, got %v", err)
	}
}

func TestNewSESClientRequiresRegionAndSender(t *testing.T) {
	if _, err := NewSESClient(context.Background(), SESConfig{From: "a@grudge.test"}); err == nil {
		t.Fatal("expected missing region error")
	}
	if _, err := NewSESClient(context.Background(), SESConfig{Region: "us-east-1"}); err == nil {
		t.Fatal("expected missing sender error")
	}
}

// Package notify creates in-app notifications and mirrors them by email.
package notify

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/codr1/grudge/internal/db/dbq"
	"github.com/codr1/grudge/internal/email"
	"github.com/codr1/grudge/internal/metrics"
)

const (
	KindTeamAdded          = "team_added"
	KindAssignmentOffered  = "assignment_offered"
	KindAssignmentDeclined = "assignment_declined"
	KindPracticeCancelled  = "practice_cancelled"
	KindMatchRescheduled   = "match_rescheduled"
	KindScoreSubmitted     = "score_submitted"
	KindScoreConfirmed     = "score_confirmed"
	KindScoreDisputed      = "score_disputed"
	KindScoreResolved      = "score_resolved"
	KindTournamentCreated  = "tournament_created"
	KindReminder           = "reminder"
)

type Notice struct {
	Kind  string
	Title string
	Body  string
	Link  string
}

type Options struct {
	AppName string
	BaseURL string
	Metrics *metrics.Recorder
}

// Service writes notification rows and sends the matching email when a
// sender is configured.
type Service struct {
	queries *dbq.Queries
	sender  email.Sender
	opts    Options
}

func New(queries *dbq.Queries, sender email.Sender, opts Options) *Service {
	return &Service{queries: queries, sender: sender, opts: opts}
}

// Pending holds notifications created inside a transaction until it commits.
type Pending struct {
	items []dbq.Notification
}

func (p *Pending) Len() int {
	if p == nil {
		return 0
	}
	return len(p.items)
}

// Add inserts one notification per distinct recipient using q, skipping
// exclude (usually the acting user).
func (s *Service) Add(ctx context.Context, q *dbq.Queries, p *Pending, userIDs []int64, exclude int64, n Notice) error {
	for _, userID := range Recipients(userIDs, exclude) {
		created, err := q.CreateNotification(ctx, dbq.CreateNotificationParams{
			UserID: userID,
			Kind:   n.Kind,
			Title:  n.Title,
			Body:   n.Body,
			Link:   n.Link,
		})
		if err != nil {
			return fmt.Errorf("create %s notification for user %d: %w", n.Kind, userID, err)
		}
		if p != nil {
			p.items = append(p.items, created)
		}
		if s != nil {
			s.opts.Metrics.RecordNotification(n.Kind)
		}
	}
	return nil
}

// Flush emails every pending notification. It must run after the creating
// transaction has committed.
func (s *Service) Flush(ctx context.Context, p *Pending) {
	if s == nil || p == nil || s.sender == nil {
		return
	}
	logger := log.Ctx(ctx)
	for _, n := range p.items {
		user, err := s.queries.GetUserByID(ctx, n.UserID)
		if err != nil {
			logger.Error().Err(err).Int64("user_id", n.UserID).Msg("Failed to load user for notification email")
			continue
		}
		msg := email.BuildNotificationEmail(email.NotificationDetails{
			AppName: s.opts.AppName,
			BaseURL: s.opts.BaseURL,
			Title:   n.Title,
			Body:    n.Body,
			Link:    n.Link,
		})
		email.SendAsync(ctx, s.sender, user.Email, msg, s.opts.Metrics)
	}
	p.items = nil
}

// Notify creates and emails notifications outside of a transaction.
func (s *Service) Notify(ctx context.Context, userIDs []int64, exclude int64, n Notice) error {
	if s == nil {
		return nil
	}
	var p Pending
	if err := s.Add(ctx, s.queries, &p, userIDs, exclude, n); err != nil {
		return err
	}
	s.Flush(ctx, &p)
	return nil
}

// Recipients returns the sorted distinct ids without exclude.
func Recipients(userIDs []int64, exclude int64) []int64 {
	out := make([]int64, 0, len(userIDs))
	for _, id := range userIDs {
		if id != exclude && id > 0 {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

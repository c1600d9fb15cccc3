package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	appdb "github.com/codr1/grudge/internal/db"
	"github.com/codr1/grudge/internal/db/dbq"
	"github.com/codr1/grudge/internal/email"
	"github.com/codr1/grudge/internal/notify"
)

// reminderEvent is anything with a kickoff that team members are reminded of.
type reminderEvent struct {
	kind     string
	refID    int64
	label    string
	teamName string
	title    string
	startsAt time.Time
	location string
	link     string
	teamIDs  []int64
}

// SendReminders notifies members of every fixture, practice and season match
// starting within the reminder window. Each event reaches each user once.
func (j *Jobs) SendReminders(ctx context.Context) error {
	now := j.now().UTC()
	windowEnd := now.Add(time.Duration(j.cfg.ReminderHoursBefore) * time.Hour)
	logger := log.Ctx(ctx).With().
		Str("component", "reminders_job").
		Time("window_start", now).
		Time("window_end", windowEnd).
		Logger()

	events, err := j.upcomingEvents(ctx, now, windowEnd)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load upcoming events for reminder job")
		return err
	}

	sent := 0
	var errs []error
	for _, event := range events {
		eventLogger := logger.With().Str("kind", event.kind).Int64("ref_id", event.refID).Logger()
		n, err := j.remind(ctx, event, &eventLogger)
		if err != nil {
			eventLogger.Error().Err(err).Msg("Failed to send reminders")
			errs = append(errs, err)
			continue
		}
		sent += n
	}

	logger.Info().Int("events", len(events)).Int("reminders", sent).Msg("Reminder job finished")
	return errors.Join(errs...)
}

func (j *Jobs) upcomingEvents(ctx context.Context, from, to time.Time) ([]reminderEvent, error) {
	q := j.db.Queries
	var events []reminderEvent

	matches, err := q.ListMatchesStartingBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	for _, m := range matches {
		events = append(events, reminderEvent{
			kind:     dbq.ReminderMatch,
			refID:    m.ID,
			label:    "Match",
			teamName: m.TeamName,
			title:    fmt.Sprintf("%s vs %s", m.TeamName, m.OpponentName),
			startsAt: m.StartsAt,
			location: m.Location,
			link:     fmt.Sprintf("/teams/%d/matches/%d", m.TeamID, m.ID),
			teamIDs:  []int64{m.TeamID},
		})
	}

	practices, err := q.ListPracticesStartingBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list practices: %w", err)
	}
	for _, p := range practices {
		events = append(events, reminderEvent{
			kind:     dbq.ReminderPractice,
			refID:    p.ID,
			label:    "Practice",
			teamName: p.TeamName,
			title:    p.Title,
			startsAt: p.StartsAt,
			location: p.Location,
			link:     fmt.Sprintf("/teams/%d/practices/%d", p.TeamID, p.ID),
			teamIDs:  []int64{p.TeamID},
		})
	}

	seasonMatches, err := q.ListSeasonMatchesStartingBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list season matches: %w", err)
	}
	for _, m := range seasonMatches {
		if m.ScheduledAt == nil {
			continue
		}
		events = append(events, reminderEvent{
			kind:     dbq.ReminderSeasonMatch,
			refID:    m.ID,
			label:    "League match",
			teamName: fmt.Sprintf("%s / %s", m.HomeTeamName, m.AwayTeamName),
			title:    fmt.Sprintf("%s vs %s", m.HomeTeamName, m.AwayTeamName),
			startsAt: *m.ScheduledAt,
			location: m.Location,
			link:     fmt.Sprintf("/leagues/%d/seasons/%d/matches/%d", m.LeagueID, m.SeasonID, m.ID),
			teamIDs:  []int64{m.HomeTeamID, m.AwayTeamID},
		})
	}
	return events, nil
}

// remind records and notifies every member not yet reminded of event, then
// emails them once the rows are committed.
func (j *Jobs) remind(ctx context.Context, event reminderEvent, logger *zerolog.Logger) (int, error) {
	var fresh []int64
	err := j.db.RunInTx(ctx, func(txdb *appdb.DB) error {
		qtx := txdb.Queries

		var members []int64
		for _, teamID := range event.teamIDs {
			ids, err := qtx.ListTeamMemberIDs(ctx, teamID)
			if err != nil {
				return fmt.Errorf("list team %d members: %w", teamID, err)
			}
			members = append(members, ids...)
		}

		for _, userID := range notify.Recipients(members, 0) {
			created, err := qtx.RecordReminder(ctx, event.kind, event.refID, userID)
			if err != nil {
				return fmt.Errorf("record reminder for user %d: %w", userID, err)
			}
			if created {
				fresh = append(fresh, userID)
			}
		}

		return j.notifier.Add(ctx, qtx, nil, fresh, 0, notify.Notice{
			Kind:  notify.KindReminder,
			Title: fmt.Sprintf("Upcoming %s: %s", event.label, event.title),
			Body:  fmt.Sprintf("Starts %s at %s.", email.FormatDateTime(event.startsAt), describeLocation(event.location)),
			Link:  event.link,
		})
	})
	if err != nil {
		return 0, err
	}

	msg := email.BuildReminderEmail(email.ReminderDetails{
		AppName:  j.appName,
		BaseURL:  j.baseURL,
		Kind:     event.label,
		TeamName: event.teamName,
		Title:    event.title,
		StartsAt: event.startsAt,
		Location: event.location,
		Link:     event.link,
	})
	for _, userID := range fresh {
		user, err := j.db.Queries.GetUserByID(ctx, userID)
		if err != nil {
			logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to load user for reminder email")
			continue
		}
		email.SendAsync(ctx, j.sender, user.Email, msg, j.metrics)
	}

	if len(fresh) > 0 {
		logger.Debug().Int("recipients", len(fresh)).Msg("Reminders sent")
	}
	return len(fresh), nil
}

func describeLocation(location string) string {
	if location == "" {
		return "a location to be confirmed"
	}
	return location
}

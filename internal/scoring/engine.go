package scoring

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	db "github.com/codr1/grudge/internal/db"
	"github.com/codr1/grudge/internal/db/dbq"
	"github.com/codr1/grudge/internal/leagues"
	"github.com/codr1/grudge/internal/notify"
)

var (
	ErrNotTeamAdmin       = errors.New("caller is not an admin of a team in this match")
	ErrNotLeagueAdmin     = errors.New("caller is not a league admin")
	ErrOwnSubmission      = errors.New("submitters cannot respond to their own score")
	ErrPendingSubmission  = errors.New("a score submission is already pending")
	ErrAlreadyConfirmed   = errors.New("match score is already confirmed")
	ErrSubmissionNotFound = errors.New("score submission not found for this match")
	ErrNotPending         = errors.New("score submission is no longer pending")
)

// Engine runs the season match score workflow: submit, confirm, dispute,
// league admin resolution and automatic confirmation.
type Engine struct {
	db       *db.DB
	notifier *notify.Service
	now      func() time.Time
}

func NewEngine(database *db.DB, notifier *notify.Service) (*Engine, error) {
	if database == nil {
		return nil, errors.New("score engine requires a database")
	}
	return &Engine{db: database, notifier: notifier, now: time.Now}, nil
}

type Scores struct {
	Home int64
	Away int64
}

// Submit records a score reported by an admin of the home or away team and
// moves the match to pending.
func (e *Engine) Submit(ctx context.Context, matchID, userID int64, scores Scores) (dbq.ScoreSubmission, error) {
	logger := e.logger(ctx, matchID)

	var (
		created dbq.ScoreSubmission
		pending notify.Pending
	)
	err := e.db.RunInTx(ctx, func(txdb *db.DB) error {
		q := txdb.Queries

		match, err := q.GetSeasonMatch(ctx, matchID)
		if err != nil {
			return err
		}
		if match.Status == dbq.SeasonMatchConfirmed {
			return ErrAlreadyConfirmed
		}
		hasPending, err := q.HasPendingSubmission(ctx, matchID)
		if err != nil {
			return fmt.Errorf("check pending submission: %w", err)
		}
		if hasPending {
			return ErrPendingSubmission
		}

		teamID, err := submittingTeam(ctx, q, match, userID)
		if err != nil {
			return err
		}
		next, err := leagues.NextMatchStatus(match.Status, leagues.EventSubmit)
		if err != nil {
			return err
		}

		created, err = q.CreateScoreSubmission(ctx, dbq.CreateScoreSubmissionParams{
			SeasonMatchID:     matchID,
			SubmittedByTeamID: teamID,
			SubmittedByUserID: userID,
			HomeScore:         scores.Home,
			AwayScore:         scores.Away,
		})
		if err != nil {
			return fmt.Errorf("create score submission: %w", err)
		}
		if err := q.SetSeasonMatchStatus(ctx, matchID, next); err != nil {
			return fmt.Errorf("set season match %d status: %w", matchID, err)
		}

		opponentID, err := leagues.RespondingTeam(match.HomeTeamID, match.AwayTeamID, teamID)
		if err != nil {
			return err
		}
		adminIDs, err := q.ListTeamAdminIDs(ctx, opponentID)
		if err != nil {
			return fmt.Errorf("list team %d admins: %w", opponentID, err)
		}
		return e.notifier.Add(ctx, q, &pending, adminIDs, userID, notify.Notice{
			Kind:  notify.KindScoreSubmitted,
			Title: fmt.Sprintf("Score reported: %s", scoreline(match, scores)),
			Body:  "Confirm or dispute the reported score.",
			Link:  matchLink(match),
		})
	})
	if err != nil {
		logger.Debug().Err(err).Int64("user_id", userID).Msg("Score submission rejected")
		return dbq.ScoreSubmission{}, err
	}
	e.notifier.Flush(ctx, &pending)

	logger.Info().
		Int64("submission_id", created.ID).
		Int64("team_id", created.SubmittedByTeamID).
		Int64("home_score", scores.Home).
		Int64("away_score", scores.Away).
		Msg("Score submitted")
	return created, nil
}

// Confirm accepts a pending submission on behalf of the opposing team.
func (e *Engine) Confirm(ctx context.Context, matchID, submissionID, userID int64) (dbq.SeasonMatch, error) {
	logger := e.logger(ctx, matchID)

	var (
		updated dbq.SeasonMatch
		pending notify.Pending
	)
	err := e.db.RunInTx(ctx, func(txdb *db.DB) error {
		q := txdb.Queries

		match, sub, err := e.loadForResponse(ctx, q, matchID, submissionID, userID)
		if err != nil {
			return err
		}
		if _, err := leagues.NextMatchStatus(match.Status, leagues.EventConfirm); err != nil {
			return err
		}

		responder := userID
		updated, err = e.confirmSubmission(ctx, q, match, sub, &responder)
		if err != nil {
			return err
		}

		adminIDs, err := q.ListTeamAdminIDs(ctx, sub.SubmittedByTeamID)
		if err != nil {
			return fmt.Errorf("list team %d admins: %w", sub.SubmittedByTeamID, err)
		}
		return e.notifier.Add(ctx, q, &pending, adminIDs, userID, notify.Notice{
			Kind:  notify.KindScoreConfirmed,
			Title: fmt.Sprintf("Score confirmed: %s", scoreline(match, Scores{Home: sub.HomeScore, Away: sub.AwayScore})),
			Body:  "The opposing team confirmed your reported score.",
			Link:  matchLink(match),
		})
	})
	if err != nil {
		logger.Debug().Err(err).Int64("submission_id", submissionID).Msg("Score confirmation rejected")
		return dbq.SeasonMatch{}, err
	}
	e.notifier.Flush(ctx, &pending)

	logger.Info().Int64("submission_id", submissionID).Int64("user_id", userID).Msg("Score confirmed")
	return updated, nil
}

// Dispute rejects a pending submission. The league admins are told so they
// can resolve it.
func (e *Engine) Dispute(ctx context.Context, matchID, submissionID, userID int64, reason string) (dbq.ScoreSubmission, error) {
	logger := e.logger(ctx, matchID)

	var (
		disputed dbq.ScoreSubmission
		pending  notify.Pending
	)
	err := e.db.RunInTx(ctx, func(txdb *db.DB) error {
		q := txdb.Queries

		match, sub, err := e.loadForResponse(ctx, q, matchID, submissionID, userID)
		if err != nil {
			return err
		}
		next, err := leagues.NextMatchStatus(match.Status, leagues.EventDispute)
		if err != nil {
			return err
		}

		responder := userID
		if err := q.RespondScoreSubmission(ctx, dbq.RespondScoreSubmissionParams{
			ID:                sub.ID,
			Status:            dbq.SubmissionDisputed,
			RespondedByUserID: &responder,
			DisputeReason:     reason,
			At:                e.now(),
		}); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotPending
			}
			return fmt.Errorf("dispute submission %d: %w", sub.ID, err)
		}
		if err := q.SetSeasonMatchStatus(ctx, matchID, next); err != nil {
			return fmt.Errorf("set season match %d status: %w", matchID, err)
		}
		disputed, err = q.GetScoreSubmission(ctx, sub.ID)
		if err != nil {
			return fmt.Errorf("reload submission %d: %w", sub.ID, err)
		}

		recipients, err := q.ListTeamAdminIDs(ctx, sub.SubmittedByTeamID)
		if err != nil {
			return fmt.Errorf("list team %d admins: %w", sub.SubmittedByTeamID, err)
		}
		leagueAdmins, err := q.ListLeagueAdmins(ctx, match.LeagueID)
		if err != nil {
			return fmt.Errorf("list league %d admins: %w", match.LeagueID, err)
		}
		for _, a := range leagueAdmins {
			recipients = append(recipients, a.UserID)
		}

		body := "The reported score was disputed."
		if reason != "" {
			body = fmt.Sprintf("The reported score was disputed: %s", reason)
		}
		return e.notifier.Add(ctx, q, &pending, recipients, userID, notify.Notice{
			Kind:  notify.KindScoreDisputed,
			Title: fmt.Sprintf("Score disputed: %s vs %s", match.HomeTeamName, match.AwayTeamName),
			Body:  body,
			Link:  matchLink(match),
		})
	})
	if err != nil {
		logger.Debug().Err(err).Int64("submission_id", submissionID).Msg("Score dispute rejected")
		return dbq.ScoreSubmission{}, err
	}
	e.notifier.Flush(ctx, &pending)

	logger.Info().Int64("submission_id", submissionID).Int64("user_id", userID).Msg("Score disputed")
	return disputed, nil
}

// Resolve lets a league admin set the final score of any unconfirmed match.
// Pending submissions are superseded.
func (e *Engine) Resolve(ctx context.Context, matchID, userID int64, scores Scores) (dbq.SeasonMatch, error) {
	logger := e.logger(ctx, matchID)

	var (
		updated dbq.SeasonMatch
		pending notify.Pending
	)
	err := e.db.RunInTx(ctx, func(txdb *db.DB) error {
		q := txdb.Queries

		match, err := q.GetSeasonMatch(ctx, matchID)
		if err != nil {
			return err
		}
		admin, err := q.IsLeagueAdmin(ctx, match.LeagueID, userID)
		if err != nil {
			return fmt.Errorf("check league admin: %w", err)
		}
		if !admin {
			return ErrNotLeagueAdmin
		}
		if match.Status == dbq.SeasonMatchConfirmed {
			return ErrAlreadyConfirmed
		}
		if _, err := leagues.NextMatchStatus(match.Status, leagues.EventResolve); err != nil {
			return err
		}

		now := e.now()
		superseded, err := q.SupersedePendingSubmissions(ctx, matchID, now)
		if err != nil {
			return fmt.Errorf("supersede submissions: %w", err)
		}
		if err := q.ConfirmSeasonMatch(ctx, matchID, scores.Home, scores.Away, now); err != nil {
			return fmt.Errorf("confirm season match %d: %w", matchID, err)
		}
		updated, err = q.GetSeasonMatch(ctx, matchID)
		if err != nil {
			return fmt.Errorf("reload season match %d: %w", matchID, err)
		}
		logger.Debug().Int64("superseded", superseded).Msg("Superseded pending submissions")

		recipients, err := matchAdminIDs(ctx, q, match)
		if err != nil {
			return err
		}
		return e.notifier.Add(ctx, q, &pending, recipients, userID, notify.Notice{
			Kind:  notify.KindScoreResolved,
			Title: fmt.Sprintf("Final score set: %s", scoreline(match, scores)),
			Body:  "A league admin set the final score.",
			Link:  matchLink(match),
		})
	})
	if err != nil {
		logger.Debug().Err(err).Int64("user_id", userID).Msg("Score resolution rejected")
		return dbq.SeasonMatch{}, err
	}
	e.notifier.Flush(ctx, &pending)

	logger.Info().
		Int64("user_id", userID).
		Int64("home_score", scores.Home).
		Int64("away_score", scores.Away).
		Msg("Score resolved by league admin")
	return updated, nil
}

// AutoConfirmBefore confirms every submission still pending that was created
// before cutoff. Each submission commits on its own so one failure does not
// hold back the rest.
func (e *Engine) AutoConfirmBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if e == nil || e.db == nil || e.db.Queries == nil {
		return 0, errors.New("score engine not initialized")
	}

	logger := log.Ctx(ctx).With().
		Str("component", "score_engine").
		Time("cutoff", cutoff).
		Logger()

	subs, err := e.db.Queries.ListPendingSubmissionsBefore(ctx, cutoff)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list pending submissions")
		return 0, fmt.Errorf("list pending submissions: %w", err)
	}

	confirmed := 0
	var errs []error
	for _, sub := range subs {
		subLogger := logger.With().
			Int64("submission_id", sub.ID).
			Int64("season_match_id", sub.SeasonMatchID).
			Logger()

		var pending notify.Pending
		err := e.db.RunInTx(ctx, func(txdb *db.DB) error {
			q := txdb.Queries
			match, err := q.GetSeasonMatch(ctx, sub.SeasonMatchID)
			if err != nil {
				return fmt.Errorf("load season match %d: %w", sub.SeasonMatchID, err)
			}
			if _, err := e.confirmSubmission(ctx, q, match, sub, nil); err != nil {
				return err
			}
			recipients, err := matchAdminIDs(ctx, q, match)
			if err != nil {
				return err
			}
			return e.notifier.Add(ctx, q, &pending, recipients, 0, notify.Notice{
				Kind:  notify.KindScoreConfirmed,
				Title: fmt.Sprintf("Score confirmed: %s", scoreline(match, Scores{Home: sub.HomeScore, Away: sub.AwayScore})),
				Body:  "Nobody responded in time, so the reported score was confirmed automatically.",
				Link:  matchLink(match),
			})
		})
		if errors.Is(err, ErrNotPending) {
			subLogger.Debug().Str("decision", "skip").Msg("Submission answered before auto-confirm")
			continue
		}
		if err != nil {
			subLogger.Error().Err(err).Msg("Failed to auto-confirm submission")
			errs = append(errs, err)
			continue
		}
		e.notifier.Flush(ctx, &pending)
		confirmed++
		subLogger.Info().Str("decision", "confirmed").Msg("Auto-confirmed score submission")
	}

	logger.Info().Int("pending", len(subs)).Int("confirmed", confirmed).Msg("Score auto-confirm finished")
	return confirmed, errors.Join(errs...)
}

// confirmSubmission marks sub confirmed and copies its scores onto the match.
// A nil responder means the system confirmed it.
func (e *Engine) confirmSubmission(ctx context.Context, q *dbq.Queries, match dbq.SeasonMatch, sub dbq.ScoreSubmission, responder *int64) (dbq.SeasonMatch, error) {
	now := e.now()
	if err := q.RespondScoreSubmission(ctx, dbq.RespondScoreSubmissionParams{
		ID:                sub.ID,
		Status:            dbq.SubmissionConfirmed,
		RespondedByUserID: responder,
		At:                now,
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dbq.SeasonMatch{}, ErrNotPending
		}
		return dbq.SeasonMatch{}, fmt.Errorf("confirm submission %d: %w", sub.ID, err)
	}
	if err := q.ConfirmSeasonMatch(ctx, match.ID, sub.HomeScore, sub.AwayScore, now); err != nil {
		return dbq.SeasonMatch{}, fmt.Errorf("confirm season match %d: %w", match.ID, err)
	}
	return q.GetSeasonMatch(ctx, match.ID)
}

// loadForResponse checks that userID may confirm or dispute submissionID.
func (e *Engine) loadForResponse(ctx context.Context, q *dbq.Queries, matchID, submissionID, userID int64) (dbq.SeasonMatch, dbq.ScoreSubmission, error) {
	match, err := q.GetSeasonMatch(ctx, matchID)
	if err != nil {
		return dbq.SeasonMatch{}, dbq.ScoreSubmission{}, err
	}
	sub, err := q.GetScoreSubmission(ctx, submissionID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && sub.SeasonMatchID != matchID) {
		return dbq.SeasonMatch{}, dbq.ScoreSubmission{}, ErrSubmissionNotFound
	}
	if err != nil {
		return dbq.SeasonMatch{}, dbq.ScoreSubmission{}, fmt.Errorf("load submission %d: %w", submissionID, err)
	}
	if sub.Status != dbq.SubmissionPending {
		return dbq.SeasonMatch{}, dbq.ScoreSubmission{}, ErrNotPending
	}
	if sub.SubmittedByUserID != nil && *sub.SubmittedByUserID == userID {
		return dbq.SeasonMatch{}, dbq.ScoreSubmission{}, ErrOwnSubmission
	}

	respondingTeamID, err := leagues.RespondingTeam(match.HomeTeamID, match.AwayTeamID, sub.SubmittedByTeamID)
	if err != nil {
		return dbq.SeasonMatch{}, dbq.ScoreSubmission{}, err
	}
	if ok, err := isTeamAdmin(ctx, q, respondingTeamID, userID); err != nil {
		return dbq.SeasonMatch{}, dbq.ScoreSubmission{}, err
	} else if !ok {
		return dbq.SeasonMatch{}, dbq.ScoreSubmission{}, ErrNotTeamAdmin
	}
	return match, sub, nil
}

func (e *Engine) logger(ctx context.Context, matchID int64) zerolog.Logger {
	return log.Ctx(ctx).With().
		Str("component", "score_engine").
		Int64("season_match_id", matchID).
		Logger()
}

// submittingTeam returns the team userID reports for, preferring home when
// they administer both.
func submittingTeam(ctx context.Context, q *dbq.Queries, match dbq.SeasonMatch, userID int64) (int64, error) {
	for _, teamID := range []int64{match.HomeTeamID, match.AwayTeamID} {
		ok, err := isTeamAdmin(ctx, q, teamID, userID)
		if err != nil {
			return 0, err
		}
		if ok {
			return teamID, nil
		}
	}
	return 0, ErrNotTeamAdmin
}

func isTeamAdmin(ctx context.Context, q *dbq.Queries, teamID, userID int64) (bool, error) {
	member, err := q.GetTeamMember(ctx, teamID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load team %d member: %w", teamID, err)
	}
	return member.Role == dbq.RoleAdmin, nil
}

func matchAdminIDs(ctx context.Context, q *dbq.Queries, match dbq.SeasonMatch) ([]int64, error) {
	home, err := q.ListTeamAdminIDs(ctx, match.HomeTeamID)
	if err != nil {
		return nil, fmt.Errorf("list team %d admins: %w", match.HomeTeamID, err)
	}
	away, err := q.ListTeamAdminIDs(ctx, match.AwayTeamID)
	if err != nil {
		return nil, fmt.Errorf("list team %d admins: %w", match.AwayTeamID, err)
	}
	return append(home, away...), nil
}

func scoreline(match dbq.SeasonMatch, scores Scores) string {
	return fmt.Sprintf("%s %d - %d %s", match.HomeTeamName, scores.Home, scores.Away, match.AwayTeamName)
}

func matchLink(match dbq.SeasonMatch) string {
	return fmt.Sprintf("/leagues/%d/seasons/%d/matches/%d", match.LeagueID, match.SeasonID, match.ID)
}

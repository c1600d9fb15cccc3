package dbq

import (
	"context"
	"time"
)

const seasonColumns = `id, league_id, name, starts_on, ends_on, status, double_round_robin, created_at`

const seasonMatchSelect = `
	SELECT sm.id, sm.season_id, s.league_id, sm.round,
	       sm.home_team_id, ht.name AS home_team_name, sm.away_team_id, awt.name AS away_team_name,
	       sm.scheduled_at, sm.location, sm.status, sm.home_score, sm.away_score, sm.confirmed_at, sm.created_at
	FROM season_matches sm
	JOIN seasons s ON s.id = sm.season_id
	JOIN teams ht ON ht.id = sm.home_team_id
	JOIN teams awt ON awt.id = sm.away_team_id`

const (
	SeasonDraft     = "draft"
	SeasonActive    = "active"
	SeasonCompleted = "completed"

	SeasonMatchScheduled = "scheduled"
	SeasonMatchPending   = "pending"
	SeasonMatchConfirmed = "confirmed"
	SeasonMatchDisputed  = "disputed"
)

type CreateSeasonParams struct {
	LeagueID         int64
	Name             string
	StartsOn         string
	EndsOn           string
	DoubleRoundRobin bool
}

func (q *Queries) CreateSeason(ctx context.Context, arg CreateSeasonParams) (Season, error) {
	var s Season
	err := q.get(ctx, &s, `
		INSERT INTO seasons (league_id, name, starts_on, ends_on, status, double_round_robin, created_at)
		VALUES (?, ?, ?, ?, 'draft', ?, ?)
		RETURNING `+seasonColumns,
		arg.LeagueID, arg.Name, arg.StartsOn, arg.EndsOn, arg.DoubleRoundRobin, now(),
	)
	return s, err
}

func (q *Queries) GetSeason(ctx context.Context, id int64) (Season, error) {
	var s Season
	err := q.get(ctx, &s, `SELECT `+seasonColumns+` FROM seasons WHERE id = ?`, id)
	return s, err
}

func (q *Queries) ListSeasons(ctx context.Context, leagueID int64) ([]Season, error) {
	var out []Season
	err := q.selectAll(ctx, &out, `SELECT `+seasonColumns+` FROM seasons WHERE league_id = ? ORDER BY starts_on DESC, id DESC`, leagueID)
	return out, err
}

type UpdateSeasonParams struct {
	ID               int64
	Name             string
	StartsOn         string
	EndsOn           string
	Status           string
	DoubleRoundRobin bool
}

func (q *Queries) UpdateSeason(ctx context.Context, arg UpdateSeasonParams) (Season, error) {
	var s Season
	err := q.get(ctx, &s, `
		UPDATE seasons SET name = ?, starts_on = ?, ends_on = ?, status = ?, double_round_robin = ?
		WHERE id = ?
		RETURNING `+seasonColumns,
		arg.Name, arg.StartsOn, arg.EndsOn, arg.Status, arg.DoubleRoundRobin, arg.ID,
	)
	return s, err
}

func (q *Queries) DeleteSeason(ctx context.Context, id int64) error {
	return q.execOne(ctx, `DELETE FROM seasons WHERE id = ?`, id)
}

type CreateSeasonMatchParams struct {
	SeasonID    int64
	Round       int64
	HomeTeamID  int64
	AwayTeamID  int64
	ScheduledAt *time.Time
	Location    string
}

func (q *Queries) CreateSeasonMatch(ctx context.Context, arg CreateSeasonMatchParams) (int64, error) {
	var scheduledAt *time.Time
	if arg.ScheduledAt != nil {
		ts := arg.ScheduledAt.UTC()
		scheduledAt = &ts
	}
	var id int64
	err := q.get(ctx, &id, `
		INSERT INTO season_matches (season_id, round, home_team_id, away_team_id, scheduled_at, location, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 'scheduled', ?)
		RETURNING id`,
		arg.SeasonID, arg.Round, arg.HomeTeamID, arg.AwayTeamID, scheduledAt, arg.Location, now(),
	)
	return id, err
}

func (q *Queries) GetSeasonMatch(ctx context.Context, id int64) (SeasonMatch, error) {
	var m SeasonMatch
	err := q.get(ctx, &m, seasonMatchSelect+` WHERE sm.id = ?`, id)
	return m, err
}

func (q *Queries) ListSeasonMatches(ctx context.Context, seasonID int64) ([]SeasonMatch, error) {
	var out []SeasonMatch
	err := q.selectAll(ctx, &out, seasonMatchSelect+`
		WHERE sm.season_id = ?
		ORDER BY sm.round, sm.scheduled_at, sm.id`,
		seasonID,
	)
	return out, err
}

func (q *Queries) CountSeasonMatches(ctx context.Context, seasonID int64) (int64, error) {
	var n int64
	err := q.get(ctx, &n, `SELECT COUNT(*) FROM season_matches WHERE season_id = ?`, seasonID)
	return n, err
}

func (q *Queries) CountConfirmedSeasonMatches(ctx context.Context, seasonID int64) (int64, error) {
	var n int64
	err := q.get(ctx, &n, `SELECT COUNT(*) FROM season_matches WHERE season_id = ? AND status = 'confirmed'`, seasonID)
	return n, err
}

func (q *Queries) DeleteSeasonMatches(ctx context.Context, seasonID int64) (int64, error) {
	return q.exec(ctx, `DELETE FROM season_matches WHERE season_id = ?`, seasonID)
}

func (q *Queries) UpdateSeasonMatchSchedule(ctx context.Context, id int64, scheduledAt time.Time, location string) (SeasonMatch, error) {
	if err := q.execOne(ctx, `UPDATE season_matches SET scheduled_at = ?, location = ? WHERE id = ?`, scheduledAt.UTC(), location, id); err != nil {
		return SeasonMatch{}, err
	}
	return q.GetSeasonMatch(ctx, id)
}

func (q *Queries) SetSeasonMatchStatus(ctx context.Context, id int64, status string) error {
	return q.execOne(ctx, `UPDATE season_matches SET status = ? WHERE id = ?`, status, id)
}

func (q *Queries) ConfirmSeasonMatch(ctx context.Context, id, homeScore, awayScore int64, at time.Time) error {
	return q.execOne(ctx, `
		UPDATE season_matches SET home_score = ?, away_score = ?, status = 'confirmed', confirmed_at = ?
		WHERE id = ?`,
		homeScore, awayScore, at.UTC(), id,
	)
}

func (q *Queries) ListSeasonMatchesStartingBetween(ctx context.Context, from, to time.Time) ([]SeasonMatch, error) {
	var out []SeasonMatch
	err := q.selectAll(ctx, &out, seasonMatchSelect+`
		WHERE sm.status = 'scheduled' AND sm.scheduled_at >= ? AND sm.scheduled_at < ?
		ORDER BY sm.scheduled_at, sm.id`,
		from.UTC(), to.UTC(),
	)
	return out, err
}

package dbq

import "context"

const leagueColumns = `id, name, sport, description, created_by, points_win, points_draw, points_loss, created_at`

type CreateLeagueParams struct {
	Name        string
	Sport       string
	Description string
	CreatedBy   int64
	PointsWin   int64
	PointsDraw  int64
	PointsLoss  int64
}

func (q *Queries) CreateLeague(ctx context.Context, arg CreateLeagueParams) (League, error) {
	var l League
	err := q.get(ctx, &l, `
		INSERT INTO leagues (name, sport, description, created_by, points_win, points_draw, points_loss, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+leagueColumns,
		arg.Name, arg.Sport, arg.Description, arg.CreatedBy, arg.PointsWin, arg.PointsDraw, arg.PointsLoss, now(),
	)
	return l, err
}

func (q *Queries) GetLeague(ctx context.Context, id int64) (League, error) {
	var l League
	err := q.get(ctx, &l, `SELECT `+leagueColumns+` FROM leagues WHERE id = ?`, id)
	return l, err
}

type UpdateLeagueParams struct {
	ID          int64
	Name        string
	Sport       string
	Description string
	PointsWin   int64
	PointsDraw  int64
	PointsLoss  int64
}

func (q *Queries) UpdateLeague(ctx context.Context, arg UpdateLeagueParams) (League, error) {
	var l League
	err := q.get(ctx, &l, `
		UPDATE leagues
		SET name = ?, sport = ?, description = ?, points_win = ?, points_draw = ?, points_loss = ?
		WHERE id = ?
		RETURNING `+leagueColumns,
		arg.Name, arg.Sport, arg.Description, arg.PointsWin, arg.PointsDraw, arg.PointsLoss, arg.ID,
	)
	return l, err
}

func (q *Queries) DeleteLeague(ctx context.Context, id int64) error {
	if _, err := q.exec(ctx, `DELETE FROM chat_messages WHERE channel_kind = ? AND channel_id = ?`, ChannelLeague, id); err != nil {
		return err
	}
	return q.execOne(ctx, `DELETE FROM leagues WHERE id = ?`, id)
}

// ListLeaguesForUser returns leagues the user administers or plays in through a team.
func (q *Queries) ListLeaguesForUser(ctx context.Context, userID int64) ([]League, error) {
	var out []League
	err := q.selectAll(ctx, &out, `
		SELECT `+leagueColumns+` FROM leagues
		WHERE id IN (
			SELECT league_id FROM league_admins WHERE user_id = ?
			UNION
			SELECT lt.league_id FROM league_teams lt
			JOIN team_members tm ON tm.team_id = lt.team_id
			WHERE tm.user_id = ?
		)
		ORDER BY name, id`,
		userID, userID,
	)
	return out, err
}

func (q *Queries) AddLeagueAdmin(ctx context.Context, leagueID, userID int64) error {
	_, err := q.exec(ctx, `
		INSERT INTO league_admins (league_id, user_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (league_id, user_id) DO NOTHING`,
		leagueID, userID, now(),
	)
	return err
}

func (q *Queries) RemoveLeagueAdmin(ctx context.Context, leagueID, userID int64) error {
	return q.execOne(ctx, `DELETE FROM league_admins WHERE league_id = ? AND user_id = ?`, leagueID, userID)
}

func (q *Queries) IsLeagueAdmin(ctx context.Context, leagueID, userID int64) (bool, error) {
	return q.exists(ctx, `SELECT 1 FROM league_admins WHERE league_id = ? AND user_id = ?`, leagueID, userID)
}

func (q *Queries) ListLeagueAdmins(ctx context.Context, leagueID int64) ([]LeagueAdmin, error) {
	var out []LeagueAdmin
	err := q.selectAll(ctx, &out, `
		SELECT la.league_id, la.user_id, u.display_name, u.email
		FROM league_admins la
		JOIN users u ON u.id = la.user_id
		WHERE la.league_id = ?
		ORDER BY u.display_name, u.id`,
		leagueID,
	)
	return out, err
}

// IsLeagueMember reports whether the user plays for any team in the league.
func (q *Queries) IsLeagueMember(ctx context.Context, leagueID, userID int64) (bool, error) {
	return q.exists(ctx, `
		SELECT 1 FROM league_teams lt
		JOIN team_members tm ON tm.team_id = lt.team_id
		WHERE lt.league_id = ? AND tm.user_id = ?
		LIMIT 1`,
		leagueID, userID,
	)
}

func (q *Queries) AddLeagueTeam(ctx context.Context, leagueID, teamID int64) error {
	_, err := q.exec(ctx, `
		INSERT INTO league_teams (league_id, team_id, joined_at) VALUES (?, ?, ?)
		ON CONFLICT (league_id, team_id) DO NOTHING`,
		leagueID, teamID, now(),
	)
	return err
}

func (q *Queries) RemoveLeagueTeam(ctx context.Context, leagueID, teamID int64) error {
	return q.execOne(ctx, `DELETE FROM league_teams WHERE league_id = ? AND team_id = ?`, leagueID, teamID)
}

func (q *Queries) IsLeagueTeam(ctx context.Context, leagueID, teamID int64) (bool, error) {
	return q.exists(ctx, `SELECT 1 FROM league_teams WHERE league_id = ? AND team_id = ?`, leagueID, teamID)
}

func (q *Queries) ListLeagueTeams(ctx context.Context, leagueID int64) ([]LeagueTeam, error) {
	var out []LeagueTeam
	err := q.selectAll(ctx, &out, `
		SELECT lt.league_id, lt.team_id, t.name AS team_name, lt.joined_at
		FROM league_teams lt
		JOIN teams t ON t.id = lt.team_id
		WHERE lt.league_id = ?
		ORDER BY t.name, t.id`,
		leagueID,
	)
	return out, err
}

// CountLeagueSeasonMatchesForTeam counts the team's fixtures across the league's seasons.
func (q *Queries) CountLeagueSeasonMatchesForTeam(ctx context.Context, leagueID, teamID int64) (int64, error) {
	var n int64
	err := q.get(ctx, &n, `
		SELECT COUNT(*) FROM season_matches sm
		JOIN seasons s ON s.id = sm.season_id
		WHERE s.league_id = ? AND (sm.home_team_id = ? OR sm.away_team_id = ?)`,
		leagueID, teamID, teamID,
	)
	return n, err
}

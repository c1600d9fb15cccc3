package dbq

import "context"

const tournamentColumns = `id, league_id, name, format, status, grand_final_reset, champion_team_id, created_by, created_at`

const tournamentMatchColumns = `id, tournament_id, bracket_key, bracket, round, position, home_team_id, away_team_id,
	home_bye, away_bye, home_score, away_score, winner_team_id, status, winner_to, winner_slot, loser_to, loser_slot`

const (
	TournamentInProgress = "in_progress"
	TournamentCompleted  = "completed"
)

type CreateTournamentParams struct {
	LeagueID        *int64
	Name            string
	Format          string
	GrandFinalReset bool
	CreatedBy       int64
}

func (q *Queries) CreateTournament(ctx context.Context, arg CreateTournamentParams) (Tournament, error) {
	var t Tournament
	err := q.get(ctx, &t, `
		INSERT INTO tournaments (league_id, name, format, status, grand_final_reset, created_by, created_at)
		VALUES (?, ?, ?, 'in_progress', ?, ?, ?)
		RETURNING `+tournamentColumns,
		arg.LeagueID, arg.Name, arg.Format, arg.GrandFinalReset, arg.CreatedBy, now(),
	)
	return t, err
}

func (q *Queries) GetTournament(ctx context.Context, id int64) (Tournament, error) {
	var t Tournament
	err := q.get(ctx, &t, `SELECT `+tournamentColumns+` FROM tournaments WHERE id = ?`, id)
	return t, err
}

func (q *Queries) ListLeagueTournaments(ctx context.Context, leagueID int64) ([]Tournament, error) {
	var out []Tournament
	err := q.selectAll(ctx, &out, `SELECT `+tournamentColumns+` FROM tournaments WHERE league_id = ? ORDER BY created_at DESC, id DESC`, leagueID)
	return out, err
}

// ListTournamentsForUser returns tournaments the user organizes, plays in, or
// administers through a league.
func (q *Queries) ListTournamentsForUser(ctx context.Context, userID int64) ([]Tournament, error) {
	var out []Tournament
	err := q.selectAll(ctx, &out, `
		SELECT `+tournamentColumns+` FROM tournaments
		WHERE created_by = ?
		   OR id IN (
			SELECT te.tournament_id FROM tournament_entries te
			JOIN team_members tm ON tm.team_id = te.team_id
			WHERE tm.user_id = ?
		   )
		   OR league_id IN (SELECT league_id FROM league_admins WHERE user_id = ?)
		ORDER BY created_at DESC, id DESC`,
		userID, userID, userID,
	)
	return out, err
}

func (q *Queries) DeleteTournament(ctx context.Context, id int64) error {
	return q.execOne(ctx, `DELETE FROM tournaments WHERE id = ?`, id)
}

func (q *Queries) SetTournamentOutcome(ctx context.Context, id int64, status string, championTeamID *int64) error {
	return q.execOne(ctx, `UPDATE tournaments SET status = ?, champion_team_id = ? WHERE id = ?`, status, championTeamID, id)
}

func (q *Queries) CreateTournamentEntry(ctx context.Context, tournamentID, teamID, seed int64) error {
	_, err := q.exec(ctx, `INSERT INTO tournament_entries (tournament_id, team_id, seed) VALUES (?, ?, ?)`, tournamentID, teamID, seed)
	return err
}

// CountActiveTournamentEntries counts unfinished tournaments the team is entered in.
func (q *Queries) CountActiveTournamentEntries(ctx context.Context, teamID int64) (int64, error) {
	var n int64
	err := q.get(ctx, &n, `
		SELECT COUNT(*) FROM tournament_entries te
		JOIN tournaments t ON t.id = te.tournament_id
		WHERE te.team_id = ? AND t.status = 'in_progress'`, teamID)
	return n, err
}

func (q *Queries) ListTournamentEntries(ctx context.Context, tournamentID int64) ([]TournamentEntry, error) {
	var out []TournamentEntry
	err := q.selectAll(ctx, &out, `
		SELECT te.tournament_id, te.team_id, t.name AS team_name, te.seed
		FROM tournament_entries te
		JOIN teams t ON t.id = te.team_id
		WHERE te.tournament_id = ?
		ORDER BY te.seed`,
		tournamentID,
	)
	return out, err
}

func (q *Queries) CreateTournamentMatch(ctx context.Context, m TournamentMatch) (int64, error) {
	var id int64
	err := q.get(ctx, &id, `
		INSERT INTO tournament_matches (tournament_id, bracket_key, bracket, round, position, home_team_id, away_team_id,
			home_bye, away_bye, home_score, away_score, winner_team_id, status, winner_to, winner_slot, loser_to, loser_slot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		m.TournamentID, m.BracketKey, m.Bracket, m.Round, m.Position, m.HomeTeamID, m.AwayTeamID,
		m.HomeBye, m.AwayBye, m.HomeScore, m.AwayScore, m.WinnerTeamID, m.Status, m.WinnerTo, m.WinnerSlot, m.LoserTo, m.LoserSlot,
	)
	return id, err
}

func (q *Queries) ListTournamentMatches(ctx context.Context, tournamentID int64) ([]TournamentMatch, error) {
	var out []TournamentMatch
	err := q.selectAll(ctx, &out, `
		SELECT `+tournamentMatchColumns+` FROM tournament_matches
		WHERE tournament_id = ?
		ORDER BY CASE bracket WHEN 'winners' THEN 0 WHEN 'round_robin' THEN 0 WHEN 'losers' THEN 1 ELSE 2 END, round, position`,
		tournamentID,
	)
	return out, err
}

// UpdateTournamentMatch writes the mutable state of a match identified by
// tournament and bracket key.
func (q *Queries) UpdateTournamentMatch(ctx context.Context, m TournamentMatch) error {
	return q.execOne(ctx, `
		UPDATE tournament_matches
		SET home_team_id = ?, away_team_id = ?, home_bye = ?, away_bye = ?, home_score = ?, away_score = ?,
		    winner_team_id = ?, status = ?
		WHERE tournament_id = ? AND bracket_key = ?`,
		m.HomeTeamID, m.AwayTeamID, m.HomeBye, m.AwayBye, m.HomeScore, m.AwayScore,
		m.WinnerTeamID, m.Status, m.TournamentID, m.BracketKey,
	)
}

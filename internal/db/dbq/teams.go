package dbq

import "context"

const teamColumns = `id, name, sport, city, invite_code, created_by, created_at`

const memberSelect = `
	SELECT tm.team_id, tm.user_id, tm.role, tm.jersey_number, tm.position, tm.joined_at,
	       u.display_name, u.email, u.phone
	FROM team_members tm
	JOIN users u ON u.id = tm.user_id`

type CreateTeamParams struct {
	Name       string
	Sport      string
	City       string
	InviteCode string
	CreatedBy  int64
}

func (q *Queries) CreateTeam(ctx context.Context, arg CreateTeamParams) (Team, error) {
	var t Team
	err := q.get(ctx, &t, `
		INSERT INTO teams (name, sport, city, invite_code, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING `+teamColumns,
		arg.Name, arg.Sport, arg.City, arg.InviteCode, arg.CreatedBy, now(),
	)
	return t, err
}

func (q *Queries) GetTeam(ctx context.Context, id int64) (Team, error) {
	var t Team
	err := q.get(ctx, &t, `SELECT `+teamColumns+` FROM teams WHERE id = ?`, id)
	return t, err
}

func (q *Queries) GetTeamByInviteCode(ctx context.Context, code string) (Team, error) {
	var t Team
	err := q.get(ctx, &t, `SELECT `+teamColumns+` FROM teams WHERE invite_code = ?`, code)
	return t, err
}

type UpdateTeamParams struct {
	ID    int64
	Name  string
	Sport string
	City  string
}

func (q *Queries) UpdateTeam(ctx context.Context, arg UpdateTeamParams) (Team, error) {
	var t Team
	err := q.get(ctx, &t, `
		UPDATE teams SET name = ?, sport = ?, city = ?
		WHERE id = ?
		RETURNING `+teamColumns,
		arg.Name, arg.Sport, arg.City, arg.ID,
	)
	return t, err
}

func (q *Queries) UpdateTeamInviteCode(ctx context.Context, id int64, code string) (Team, error) {
	var t Team
	err := q.get(ctx, &t, `
		UPDATE teams SET invite_code = ? WHERE id = ?
		RETURNING `+teamColumns,
		code, id,
	)
	return t, err
}

// DeleteTeam removes the team and its chat channel. Roster, fixtures and
// practices cascade.
func (q *Queries) DeleteTeam(ctx context.Context, id int64) error {
	if _, err := q.exec(ctx, `DELETE FROM chat_messages WHERE channel_kind = ? AND channel_id = ?`, ChannelTeam, id); err != nil {
		return err
	}
	return q.execOne(ctx, `DELETE FROM teams WHERE id = ?`, id)
}

func (q *Queries) ListTeamsForUser(ctx context.Context, userID int64) ([]UserTeam, error) {
	var teams []UserTeam
	err := q.selectAll(ctx, &teams, `
		SELECT t.id, t.name, t.sport, t.city, t.invite_code, t.created_by, t.created_at, tm.role
		FROM teams t
		JOIN team_members tm ON tm.team_id = t.id
		WHERE tm.user_id = ?
		ORDER BY t.name, t.id`,
		userID,
	)
	return teams, err
}

// ListTeamIDsForUser returns ids of every team the user belongs to.
func (q *Queries) ListTeamIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := q.selectAll(ctx, &ids, `SELECT team_id FROM team_members WHERE user_id = ? ORDER BY team_id`, userID)
	return ids, err
}

type AddTeamMemberParams struct {
	TeamID int64
	UserID int64
	Role   string
}

func (q *Queries) AddTeamMember(ctx context.Context, arg AddTeamMemberParams) error {
	_, err := q.exec(ctx, `
		INSERT INTO team_members (team_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?)`,
		arg.TeamID, arg.UserID, arg.Role, now(),
	)
	return err
}

func (q *Queries) GetTeamMember(ctx context.Context, teamID, userID int64) (TeamMember, error) {
	var m TeamMember
	err := q.get(ctx, &m, memberSelect+` WHERE tm.team_id = ? AND tm.user_id = ?`, teamID, userID)
	return m, err
}

func (q *Queries) ListTeamMembers(ctx context.Context, teamID int64) ([]TeamMember, error) {
	var members []TeamMember
	err := q.selectAll(ctx, &members, memberSelect+`
		WHERE tm.team_id = ?
		ORDER BY CASE tm.role WHEN 'admin' THEN 0 ELSE 1 END, u.display_name, u.id`,
		teamID,
	)
	return members, err
}

type UpdateTeamMemberParams struct {
	TeamID       int64
	UserID       int64
	Role         string
	JerseyNumber *int64
	Position     string
}

func (q *Queries) UpdateTeamMember(ctx context.Context, arg UpdateTeamMemberParams) error {
	return q.execOne(ctx, `
		UPDATE team_members SET role = ?, jersey_number = ?, position = ?
		WHERE team_id = ? AND user_id = ?`,
		arg.Role, arg.JerseyNumber, arg.Position, arg.TeamID, arg.UserID,
	)
}

func (q *Queries) RemoveTeamMember(ctx context.Context, teamID, userID int64) error {
	return q.execOne(ctx, `DELETE FROM team_members WHERE team_id = ? AND user_id = ?`, teamID, userID)
}

func (q *Queries) CountTeamAdmins(ctx context.Context, teamID int64) (int64, error) {
	var n int64
	err := q.get(ctx, &n, `SELECT COUNT(*) FROM team_members WHERE team_id = ? AND role = 'admin'`, teamID)
	return n, err
}

func (q *Queries) ListTeamAdminIDs(ctx context.Context, teamID int64) ([]int64, error) {
	var ids []int64
	err := q.selectAll(ctx, &ids, `SELECT user_id FROM team_members WHERE team_id = ? AND role = 'admin' ORDER BY user_id`, teamID)
	return ids, err
}

func (q *Queries) ListTeamMemberIDs(ctx context.Context, teamID int64) ([]int64, error) {
	var ids []int64
	err := q.selectAll(ctx, &ids, `SELECT user_id FROM team_members WHERE team_id = ? ORDER BY user_id`, teamID)
	return ids, err
}

// ListTeamsByIDs returns the named teams ordered by id.
func (q *Queries) ListTeamsByIDs(ctx context.Context, ids []int64) ([]Team, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var teams []Team
	err := q.selectIn(ctx, &teams, `SELECT `+teamColumns+` FROM teams WHERE id IN (?) ORDER BY id`, ids)
	return teams, err
}

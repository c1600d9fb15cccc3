package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/codr1/grudge/internal/db"
	"github.com/codr1/grudge/internal/db/dbq"
)

// NewTestDB creates a temporary SQLite database with migrations applied.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath)
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	return database
}

// CreateUser inserts a user with a throwaway password hash.
func CreateUser(t *testing.T, q *dbq.Queries, email, name string) dbq.User {
	t.Helper()

	user, err := q.CreateUser(context.Background(), dbq.CreateUserParams{
		Email:        email,
		PasswordHash: "x",
		DisplayName:  name,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return user
}

// CreateTeam inserts a team and makes owner its admin.
func CreateTeam(t *testing.T, q *dbq.Queries, name string, owner int64) dbq.Team {
	t.Helper()

	ctx := context.Background()
	team, err := q.CreateTeam(ctx, dbq.CreateTeamParams{
		Name:       name,
		Sport:      "soccer",
		InviteCode: "CODE" + name,
		CreatedBy:  owner,
	})
	if err != nil {
		t.Fatalf("create team %s: %v", name, err)
	}
	if err := q.AddTeamMember(ctx, dbq.AddTeamMemberParams{
		TeamID: team.ID,
		UserID: owner,
		Role:   dbq.RoleAdmin,
	}); err != nil {
		t.Fatalf("add team admin: %v", err)
	}
	return team
}

// CreateLeague inserts a league with 3/1/0 points and makes owner its admin.
func CreateLeague(t *testing.T, q *dbq.Queries, name string, owner int64) dbq.League {
	t.Helper()

	ctx := context.Background()
	league, err := q.CreateLeague(ctx, dbq.CreateLeagueParams{
		Name:      name,
		Sport:     "soccer",
		CreatedBy: owner,
		PointsWin: 3, PointsDraw: 1, PointsLoss: 0,
	})
	if err != nil {
		t.Fatalf("create league %s: %v", name, err)
	}
	if err := q.AddLeagueAdmin(ctx, league.ID, owner); err != nil {
		t.Fatalf("add league admin: %v", err)
	}
	return league
}

// CreateSeason inserts a draft season and enrolls teamIDs in its league.
func CreateSeason(t *testing.T, q *dbq.Queries, leagueID int64, startsOn, endsOn string, teamIDs ...int64) dbq.Season {
	t.Helper()

	ctx := context.Background()
	for _, teamID := range teamIDs {
		if err := q.AddLeagueTeam(ctx, leagueID, teamID); err != nil {
			t.Fatalf("add league team %d: %v", teamID, err)
		}
	}
	season, err := q.CreateSeason(ctx, dbq.CreateSeasonParams{
		LeagueID: leagueID,
		Name:     "Season " + startsOn,
		StartsOn: startsOn,
		EndsOn:   endsOn,
	})
	if err != nil {
		t.Fatalf("create season: %v", err)
	}
	return season
}

package teams

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/codr1/grudge/internal/db/dbq"
	"github.com/codr1/grudge/internal/testutil"
)

const memberPattern = "/api/teams/{id}/members/{user_id}"

func TestAddMemberByEmailNotifiesUser(t *testing.T) {
	database := setupTeamsTest(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, database.Queries, "owner@test.com", "Owner")
	player := testutil.CreateUser(t, database.Queries, "player@test.com", "Player")
	team := testutil.CreateTeam(t, database.Queries, "Hawks", owner.ID)

	path := fmt.Sprintf("/api/teams/%d/members", team.ID)
	rec := testutil.Serve(t, "POST /api/teams/{id}/members", HandleMemberAdd,
		testutil.NewRequest(http.MethodPost, path, `{"email":"PLAYER@test.com"}`, owner.ID))
	testutil.ExpectStatus(t, rec, http.StatusCreated)

	rec = testutil.Serve(t, "POST /api/teams/{id}/members", HandleMemberAdd,
		testutil.NewRequest(http.MethodPost, path, `{"email":"player@test.com"}`, owner.ID))
	testutil.ExpectStatus(t, rec, http.StatusConflict)

	rec = testutil.Serve(t, "POST /api/teams/{id}/members", HandleMemberAdd,
		testutil.NewRequest(http.MethodPost, path, `{"email":"ghost@test.com"}`, owner.ID))
	testutil.ExpectStatus(t, rec, http.StatusNotFound)

	notes, err := database.Queries.ListNotifications(ctx, dbq.ListNotificationsParams{UserID: player.ID, Limit: 10})
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(notes) != 1 || notes[0].Kind != "team_added" {
		t.Fatalf("expected one team_added notification, got %+v", notes)
	}
}

func TestLastAdminCannotBeDemotedOrRemoved(t *testing.T) {
	database := setupTeamsTest(t)
	owner := testutil.CreateUser(t, database.Queries, "owner@test.com", "Owner")
	team := testutil.CreateTeam(t, database.Queries, "Hawks", owner.ID)

	path := fmt.Sprintf("/api/teams/%d/members/%d", team.ID, owner.ID)
	rec := testutil.Serve(t, "PATCH "+memberPattern, HandleMemberUpdate,
		testutil.NewRequest(http.MethodPatch, path, `{"role":"player"}`, owner.ID))
	testutil.ExpectStatus(t, rec, http.StatusConflict)

	rec = testutil.Serve(t, "DELETE "+memberPattern, HandleMemberRemove,
		testutil.NewRequest(http.MethodDelete, path, "", owner.ID))
	testutil.ExpectStatus(t, rec, http.StatusConflict)
}

func TestDemoteAdminWhenAnotherRemains(t *testing.T) {
	database := setupTeamsTest(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, database.Queries, "owner@test.com", "Owner")
	coach := testutil.CreateUser(t, database.Queries, "coach@test.com", "Coach")
	team := testutil.CreateTeam(t, database.Queries, "Hawks", owner.ID)
	if err := database.Queries.AddTeamMember(ctx, dbq.AddTeamMemberParams{TeamID: team.ID, UserID: coach.ID, Role: dbq.RoleAdmin}); err != nil {
		t.Fatalf("add coach: %v", err)
	}

	path := fmt.Sprintf("/api/teams/%d/members/%d", team.ID, owner.ID)
	rec := testutil.Serve(t, "PATCH "+memberPattern, HandleMemberUpdate,
		testutil.NewRequest(http.MethodPatch, path, `{"role":"player","jerseyNumber":9,"position":"striker"}`, coach.ID))
	testutil.ExpectStatus(t, rec, http.StatusOK)

	member, err := database.Queries.GetTeamMember(ctx, team.ID, owner.ID)
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if member.Role != dbq.RolePlayer || member.JerseyNumber == nil || *member.JerseyNumber != 9 || member.Position != "striker" {
		t.Fatalf("unexpected member %+v", member)
	}
}

func TestMemberRemovePermissions(t *testing.T) {
	database := setupTeamsTest(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, database.Queries, "owner@test.com", "Owner")
	a := testutil.CreateUser(t, database.Queries, "a@test.com", "A")
	b := testutil.CreateUser(t, database.Queries, "b@test.com", "B")
	team := testutil.CreateTeam(t, database.Queries, "Hawks", owner.ID)
	for _, u := range []dbq.User{a, b} {
		if err := database.Queries.AddTeamMember(ctx, dbq.AddTeamMemberParams{TeamID: team.ID, UserID: u.ID, Role: dbq.RolePlayer}); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}

	tests := []struct {
		name   string
		caller int64
		target int64
		want   int
	}{
		{name: "player removes teammate", caller: a.ID, target: b.ID, want: http.StatusForbidden},
		{name: "player leaves", caller: a.ID, target: a.ID, want: http.StatusNoContent},
		{name: "admin removes player", caller: owner.ID, target: b.ID, want: http.StatusNoContent},
		{name: "admin removes missing", caller: owner.ID, target: b.ID, want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := fmt.Sprintf("/api/teams/%d/members/%d", team.ID, tt.target)
			rec := testutil.Serve(t, "DELETE "+memberPattern, HandleMemberRemove,
				testutil.NewRequest(http.MethodDelete, path, "", tt.caller))
			testutil.ExpectStatus(t, rec, tt.want)
		})
	}
}

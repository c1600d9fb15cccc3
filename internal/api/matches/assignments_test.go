package matches

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/codr1/grudge/internal/db/dbq"
	"github.com/codr1/grudge/internal/testutil"
)

type assignmentResponse struct {
	Assignment dbq.Assignment `json:"assignment"`
}

func addPlayer(t *testing.T, q *dbq.Queries, teamID, userID int64) {
	t.Helper()
	if err := q.AddTeamMember(context.Background(), dbq.AddTeamMemberParams{
		TeamID: teamID, UserID: userID, Role: dbq.RolePlayer,
	}); err != nil {
		t.Fatalf("add player: %v", err)
	}
}

func notificationsFor(t *testing.T, q *dbq.Queries, userID int64) []dbq.Notification {
	t.Helper()
	list, err := q.ListNotifications(context.Background(), dbq.ListNotificationsParams{UserID: userID, Limit: 25})
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	return list
}

func TestAssignmentCreateNotifiesPlayer(t *testing.T) {
	testDB := setupMatchesTest(t)
	admin := testutil.CreateUser(t, testDB.Queries, "admin@test.com", "Admin")
	player := testutil.CreateUser(t, testDB.Queries, "player@test.com", "Player")
	stranger := testutil.CreateUser(t, testDB.Queries, "stranger@test.com", "Stranger")
	team := testutil.CreateTeam(t, testDB.Queries, "Hawks", admin.ID)
	addPlayer(t, testDB.Queries, team.ID, player.ID)
	m := createMatch(t, admin.ID, team.ID, time.Now().Add(48*time.Hour))

	path := fmt.Sprintf("/api/matches/%d/assignments", m.ID)
	rec := testutil.Serve(t, "POST /api/matches/{id}/assignments", HandleAssignmentCreate,
		testutil.NewRequest(http.MethodPost, path, fmt.Sprintf(`{"userId":%d,"position":"keeper"}`, player.ID), admin.ID))
	testutil.ExpectStatus(t, rec, http.StatusCreated)

	got := decode[assignmentResponse](t, rec.Body.Bytes()).Assignment
	if got.Status != dbq.AssignmentPending || got.Position != "keeper" || got.DisplayName != "Player" {
		t.Fatalf("unexpected assignment %+v", got)
	}

	notes := notificationsFor(t, testDB.Queries, player.ID)
	if len(notes) != 1 || notes[0].Kind != "assignment_offered" {
		t.Fatalf("expected one assignment notification, got %+v", notes)
	}
	if len(notificationsFor(t, testDB.Queries, admin.ID)) != 0 {
		t.Fatal("admin should not notify themselves")
	}

	tests := []struct {
		name   string
		userID int64
		actor  int64
		want   int
	}{
		{"duplicate", player.ID, admin.ID, http.StatusConflict},
		{"not on team", stranger.ID, admin.ID, http.StatusBadRequest},
		{"player cannot assign", admin.ID, player.ID, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testutil.Serve(t, "POST /api/matches/{id}/assignments", HandleAssignmentCreate,
				testutil.NewRequest(http.MethodPost, path, fmt.Sprintf(`{"userId":%d}`, tt.userID), tt.actor))
			testutil.ExpectStatus(t, rec, tt.want)
		})
	}

	rec = testutil.Serve(t, "GET /api/matches/{id}/assignments", HandleAssignmentsList,
		testutil.NewRequest(http.MethodGet, path, "", player.ID))
	testutil.ExpectStatus(t, rec, http.StatusOK)
	list := decode[struct {
		Assignments []dbq.Assignment `json:"assignments"`
	}](t, rec.Body.Bytes()).Assignments
	if len(list) != 1 {
		t.Fatalf("expected 1 assignment, got %d", len(list))
	}
}

func TestAssignmentRespond(t *testing.T) {
	testDB := setupMatchesTest(t)
	admin := testutil.CreateUser(t, testDB.Queries, "admin@test.com", "Admin")
	player := testutil.CreateUser(t, testDB.Queries, "player@test.com", "Player")
	team := testutil.CreateTeam(t, testDB.Queries, "Hawks", admin.ID)
	addPlayer(t, testDB.Queries, team.ID, player.ID)

	kickoff := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	m := createMatch(t, admin.ID, team.ID, kickoff)
	a, err := testDB.Queries.CreateAssignment(context.Background(), dbq.CreateAssignmentParams{MatchID: m.ID, UserID: player.ID})
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	path := fmt.Sprintf("/api/assignments/%d/respond", a.ID)

	rec := testutil.Serve(t, "POST /api/assignments/{id}/respond", HandleAssignmentRespond,
		testutil.NewRequest(http.MethodPost, path, `{"status":"declined"}`, admin.ID))
	testutil.ExpectStatus(t, rec, http.StatusForbidden)

	rec = testutil.Serve(t, "POST /api/assignments/{id}/respond", HandleAssignmentRespond,
		testutil.NewRequest(http.MethodPost, path, `{"status":"maybe"}`, player.ID))
	testutil.ExpectStatus(t, rec, http.StatusBadRequest)

	rec = testutil.Serve(t, "POST /api/assignments/{id}/respond", HandleAssignmentRespond,
		testutil.NewRequest(http.MethodPost, path, `{"status":"declined"}`, player.ID))
	testutil.ExpectStatus(t, rec, http.StatusOK)
	got := decode[assignmentResponse](t, rec.Body.Bytes()).Assignment
	if got.Status != dbq.AssignmentDeclined || got.RespondedAt == nil {
		t.Fatalf("unexpected response %+v", got)
	}

	notes := notificationsFor(t, testDB.Queries, admin.ID)
	if len(notes) != 1 || notes[0].Kind != "assignment_declined" {
		t.Fatalf("expected decline notification for admin, got %+v", notes)
	}

	// Changing the answer back is allowed until kickoff.
	rec = testutil.Serve(t, "POST /api/assignments/{id}/respond", HandleAssignmentRespond,
		testutil.NewRequest(http.MethodPost, path, `{"status":"confirmed"}`, player.ID))
	testutil.ExpectStatus(t, rec, http.StatusOK)

	timeNow = func() time.Time { return kickoff.Add(time.Minute) }
	rec = testutil.Serve(t, "POST /api/assignments/{id}/respond", HandleAssignmentRespond,
		testutil.NewRequest(http.MethodPost, path, `{"status":"declined"}`, player.ID))
	testutil.ExpectStatus(t, rec, http.StatusConflict)
}

func TestMyAssignmentsAndDelete(t *testing.T) {
	testDB := setupMatchesTest(t)
	admin := testutil.CreateUser(t, testDB.Queries, "admin@test.com", "Admin")
	player := testutil.CreateUser(t, testDB.Queries, "player@test.com", "Player")
	team := testutil.CreateTeam(t, testDB.Queries, "Hawks", admin.ID)
	addPlayer(t, testDB.Queries, team.ID, player.ID)

	ctx := context.Background()
	first := createMatch(t, admin.ID, team.ID, time.Now().Add(24*time.Hour))
	second := createMatch(t, admin.ID, team.ID, time.Now().Add(72*time.Hour))
	a1, err := testDB.Queries.CreateAssignment(ctx, dbq.CreateAssignmentParams{MatchID: first.ID, UserID: player.ID})
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	a2, err := testDB.Queries.CreateAssignment(ctx, dbq.CreateAssignmentParams{MatchID: second.ID, UserID: player.ID})
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	if _, err := testDB.Queries.RespondAssignment(ctx, a2.ID, dbq.AssignmentConfirmed, time.Now()); err != nil {
		t.Fatalf("respond: %v", err)
	}

	type listResponse struct {
		Assignments []dbq.Assignment `json:"assignments"`
	}
	tests := []struct {
		query string
		want  []int64
		code  int
	}{
		{"", []int64{a1.ID, a2.ID}, http.StatusOK},
		{"?status=pending", []int64{a1.ID}, http.StatusOK},
		{"?status=confirmed", []int64{a2.ID}, http.StatusOK},
		{"?status=bogus", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run("status"+tt.query, func(t *testing.T) {
			rec := testutil.Serve(t, "GET /api/assignments", HandleMyAssignments,
				testutil.NewRequest(http.MethodGet, "/api/assignments"+tt.query, "", player.ID))
			testutil.ExpectStatus(t, rec, tt.code)
			if tt.code != http.StatusOK {
				return
			}
			got := decode[listResponse](t, rec.Body.Bytes()).Assignments
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d assignments, got %d", len(tt.want), len(got))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Fatalf("position %d: expected %d, got %d", i, id, got[i].ID)
				}
			}
		})
	}

	path := fmt.Sprintf("/api/assignments/%d", a1.ID)
	rec := testutil.Serve(t, "DELETE /api/assignments/{id}", HandleAssignmentDelete,
		testutil.NewRequest(http.MethodDelete, path, "", player.ID))
	testutil.ExpectStatus(t, rec, http.StatusForbidden)

	rec = testutil.Serve(t, "DELETE /api/assignments/{id}", HandleAssignmentDelete,
		testutil.NewRequest(http.MethodDelete, path, "", admin.ID))
	testutil.ExpectStatus(t, rec, http.StatusNoContent)
}

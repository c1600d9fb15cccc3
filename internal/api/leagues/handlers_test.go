package leagues

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/codr1/grudge/internal/db"
	"github.com/codr1/grudge/internal/db/dbq"
	"github.com/codr1/grudge/internal/notify"
	"github.com/codr1/grudge/internal/scoring"
	"github.com/codr1/grudge/internal/testutil"
)

func setupLeaguesTest(t *testing.T) *db.DB {
	t.Helper()

	testDB := testutil.NewTestDB(t)

	prevDB, prevQueries, prevNotifier, prevEngine := database, queries, notifier, engine
	t.Cleanup(func() {
		database = prevDB
		queries = prevQueries
		notifier = prevNotifier
		engine = prevEngine
	})

	n := notify.New(testDB.Queries, nil, notify.Options{})
	e, err := scoring.NewEngine(testDB, n)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	InitHandlers(testDB, n, e)
	return testDB
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return out
}

type leagueResponse struct {
	League  dbq.League        `json:"league"`
	IsAdmin bool              `json:"isAdmin"`
	Teams   []dbq.LeagueTeam  `json:"teams"`
	Admins  []dbq.LeagueAdmin `json:"admins"`
}

func TestLeagueCreateDefaultsAndValidation(t *testing.T) {
	testDB := setupLeaguesTest(t)
	owner := testutil.CreateUser(t, testDB.Queries, "owner@test.com", "Owner")

	rec := testutil.Serve(t, "POST /api/leagues", HandleLeagueCreate,
		testutil.NewRequest(http.MethodPost, "/api/leagues", `{"name":"Sunday League","sport":"soccer"}`, owner.ID))
	testutil.ExpectStatus(t, rec, http.StatusCreated)

	created := decode[leagueResponse](t, rec.Body.Bytes()).League
	if created.PointsWin != 3 || created.PointsDraw != 1 || created.PointsLoss != 0 {
		t.Fatalf("expected 3/1/0 points, got %+v", created)
	}
	if created.CreatedBy != owner.ID {
		t.Fatalf("expected created_by %d, got %d", owner.ID, created.CreatedBy)
	}
	admin, err := testDB.Queries.IsLeagueAdmin(context.Background(), created.ID, owner.ID)
	if err != nil || !admin {
		t.Fatalf("expected creator to be league admin, got %v %v", admin, err)
	}

	tests := []struct {
		name string
		body string
		user int64
		want int
	}{
		{"anonymous", `{"name":"X"}`, 0, http.StatusUnauthorized},
		{"missing name", `{"sport":"soccer"}`, owner.ID, http.StatusBadRequest},
		{"negative points", `{"name":"X","pointsWin":-1}`, owner.ID, http.StatusBadRequest},
		{"draw above win", `{"name":"X","pointsWin":1,"pointsDraw":2}`, owner.ID, http.StatusBadRequest},
		{"unknown field", `{"name":"X","facility":1}`, owner.ID, http.StatusBadRequest},
		{"custom points", `{"name":"X","pointsWin":2,"pointsDraw":1,"pointsLoss":0}`, owner.ID, http.StatusCreated},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := testutil.Serve(t, "POST /api/leagues", HandleLeagueCreate,
				testutil.NewRequest(http.MethodPost, "/api/leagues", tc.body, tc.user))
			testutil.ExpectStatus(t, rec, tc.want)
		})
	}
}

func TestLeagueListAndGetVisibility(t *testing.T) {
	testDB := setupLeaguesTest(t)
	q := testDB.Queries
	owner := testutil.CreateUser(t, q, "owner@test.com", "Owner")
	captain := testutil.CreateUser(t, q, "captain@test.com", "Captain")
	outsider := testutil.CreateUser(t, q, "outsider@test.com", "Outsider")

	league := testutil.CreateLeague(t, q, "Metro", owner.ID)
	team := testutil.CreateTeam(t, q, "Rovers", captain.ID)
	if err := q.AddLeagueTeam(context.Background(), league.ID, team.ID); err != nil {
		t.Fatalf("add league team: %v", err)
	}

	for _, userID := range []int64{owner.ID, captain.ID} {
		rec := testutil.Serve(t, "GET /api/leagues", HandleLeaguesList,
			testutil.NewRequest(http.MethodGet, "/api/leagues", "", userID))
		testutil.ExpectStatus(t, rec, http.StatusOK)
		resp := decode[struct {
			Leagues []dbq.League `json:"leagues"`
		}](t, rec.Body.Bytes())
		if len(resp.Leagues) != 1 || resp.Leagues[0].ID != league.ID {
			t.Fatalf("user %d: expected league %d, got %+v", userID, league.ID, resp.Leagues)
		}
	}

	path := fmt.Sprintf("/api/leagues/%d", league.ID)
	rec := testutil.Serve(t, "GET /api/leagues/{id}", HandleLeagueGet,
		testutil.NewRequest(http.MethodGet, path, "", captain.ID))
	testutil.ExpectStatus(t, rec, http.StatusOK)
	got := decode[leagueResponse](t, rec.Body.Bytes())
	if got.IsAdmin || len(got.Teams) != 1 || len(got.Admins) != 1 {
		t.Fatalf("unexpected league view for captain: %+v", got)
	}

	rec = testutil.Serve(t, "GET /api/leagues/{id}", HandleLeagueGet,
		testutil.NewRequest(http.MethodGet, path, "", outsider.ID))
	testutil.ExpectStatus(t, rec, http.StatusForbidden)

	rec = testutil.Serve(t, "GET /api/leagues/{id}", HandleLeagueGet,
		testutil.NewRequest(http.MethodGet, "/api/leagues/999", "", owner.ID))
	testutil.ExpectStatus(t, rec, http.StatusNotFound)
}

func TestLeagueUpdateAndDelete(t *testing.T) {
	testDB := setupLeaguesTest(t)
	q := testDB.Queries
	owner := testutil.CreateUser(t, q, "owner@test.com", "Owner")
	captain := testutil.CreateUser(t, q, "captain@test.com", "Captain")
	league := testutil.CreateLeague(t, q, "Metro", owner.ID)
	team := testutil.CreateTeam(t, q, "Rovers", captain.ID)
	if err := q.AddLeagueTeam(context.Background(), league.ID, team.ID); err != nil {
		t.Fatalf("add league team: %v", err)
	}

	path := fmt.Sprintf("/api/leagues/%d", league.ID)
	rec := testutil.Serve(t, "PUT /api/leagues/{id}", HandleLeagueUpdate,
		testutil.NewRequest(http.MethodPut, path, `{"name":"Metro Premier","pointsWin":2}`, captain.ID))
	testutil.ExpectStatus(t, rec, http.StatusForbidden)

	rec = testutil.Serve(t, "PUT /api/leagues/{id}", HandleLeagueUpdate,
		testutil.NewRequest(http.MethodPut, path, `{"name":"Metro Premier","pointsWin":2}`, owner.ID))
	testutil.ExpectStatus(t, rec, http.StatusOK)
	updated := decode[leagueResponse](t, rec.Body.Bytes()).League
	if updated.Name != "Metro Premier" || updated.PointsWin != 2 || updated.PointsDraw != 1 {
		t.Fatalf("unexpected update: %+v", updated)
	}

	rec = testutil.Serve(t, "PUT /api/leagues/{id}", HandleLeagueUpdate,
		testutil.NewRequest(http.MethodPut, path, `{"name":"Metro","pointsDraw":5}`, owner.ID))
	testutil.ExpectStatus(t, rec, http.StatusBadRequest)

	rec = testutil.Serve(t, "DELETE /api/leagues/{id}", HandleLeagueDelete,
		testutil.NewRequest(http.MethodDelete, path, "", captain.ID))
	testutil.ExpectStatus(t, rec, http.StatusForbidden)

	rec = testutil.Serve(t, "DELETE /api/leagues/{id}", HandleLeagueDelete,
		testutil.NewRequest(http.MethodDelete, path, "", owner.ID))
	testutil.ExpectStatus(t, rec, http.StatusNoContent)

	if _, err := q.GetLeague(context.Background(), league.ID); err == nil {
		t.Fatal("expected league to be deleted")
	}
}

func TestLeagueTeams(t *testing.T) {
	testDB := setupLeaguesTest(t)
	q := testDB.Queries
	owner := testutil.CreateUser(t, q, "owner@test.com", "Owner")
	captainA := testutil.CreateUser(t, q, "a@test.com", "Captain A")
	captainB := testutil.CreateUser(t, q, "b@test.com", "Captain B")
	league := testutil.CreateLeague(t, q, "Metro", owner.ID)
	teamA := testutil.CreateTeam(t, q, "Alpha", captainA.ID)
	teamB := testutil.CreateTeam(t, q, "Bravo", captainB.ID)

	teamsPath := fmt.Sprintf("/api/leagues/%d/teams", league.ID)
	add := func(userID, teamID int64) int {
		rec := testutil.Serve(t, "POST /api/leagues/{id}/teams", HandleLeagueTeamAdd,
			testutil.NewRequest(http.MethodPost, teamsPath, fmt.Sprintf(`{"teamId":%d}`, teamID), userID))
		return rec.Code
	}

	if code := add(captainA.ID, teamA.ID); code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", code)
	}
	if code := add(owner.ID, 999); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown team, got %d", code)
	}
	for _, teamID := range []int64{teamA.ID, teamB.ID, teamA.ID} {
		if code := add(owner.ID, teamID); code != http.StatusCreated {
			t.Fatalf("expected 201 adding team %d, got %d", teamID, code)
		}
	}

	rec := testutil.Serve(t, "GET /api/leagues/{id}/teams", HandleLeagueTeamsList,
		testutil.NewRequest(http.MethodGet, teamsPath, "", captainB.ID))
	testutil.ExpectStatus(t, rec, http.StatusOK)
	teams := decode[struct {
		Teams []dbq.LeagueTeam `json:"teams"`
	}](t, rec.Body.Bytes()).Teams
	if len(teams) != 2 || teams[0].TeamName != "Alpha" {
		t.Fatalf("expected Alpha and Bravo, got %+v", teams)
	}

	season := testutil.CreateSeason(t, q, league.ID, "2030-03-01", "2030-06-30")
	start := time.Date(2030, 3, 2, 10, 0, 0, 0, time.UTC)
	if _, err := q.CreateSeasonMatch(context.Background(), dbq.CreateSeasonMatchParams{
		SeasonID: season.ID, Round: 1, HomeTeamID: teamA.ID, AwayTeamID: teamB.ID, ScheduledAt: &start,
	}); err != nil {
		t.Fatalf("create season match: %v", err)
	}

	remove := func(teamID int64) *httptest.ResponseRecorder {
		return testutil.Serve(t, "DELETE /api/leagues/{id}/teams/{team_id}", HandleLeagueTeamRemove,
			testutil.NewRequest(http.MethodDelete, fmt.Sprintf("%s/%d", teamsPath, teamID), "", owner.ID))
	}
	testutil.ExpectStatus(t, remove(teamA.ID), http.StatusConflict)

	teamC := testutil.CreateTeam(t, q, "Charlie", captainB.ID)
	testutil.ExpectStatus(t, remove(teamC.ID), http.StatusNotFound)

	if add(owner.ID, teamC.ID) != http.StatusCreated {
		t.Fatal("expected Charlie to join")
	}
	testutil.ExpectStatus(t, remove(teamC.ID), http.StatusNoContent)
}

func TestLeagueAdmins(t *testing.T) {
	testDB := setupLeaguesTest(t)
	q := testDB.Queries
	owner := testutil.CreateUser(t, q, "owner@test.com", "Owner")
	helper := testutil.CreateUser(t, q, "helper@test.com", "Helper")
	league := testutil.CreateLeague(t, q, "Metro", owner.ID)

	adminsPath := fmt.Sprintf("/api/leagues/%d/admins", league.ID)
	rec := testutil.Serve(t, "POST /api/leagues/{id}/admins", HandleLeagueAdminAdd,
		testutil.NewRequest(http.MethodPost, adminsPath, fmt.Sprintf(`{"userId":%d}`, helper.ID), helper.ID))
	testutil.ExpectStatus(t, rec, http.StatusForbidden)

	rec = testutil.Serve(t, "POST /api/leagues/{id}/admins", HandleLeagueAdminAdd,
		testutil.NewRequest(http.MethodPost, adminsPath, `{"userId":999}`, owner.ID))
	testutil.ExpectStatus(t, rec, http.StatusNotFound)

	rec = testutil.Serve(t, "POST /api/leagues/{id}/admins", HandleLeagueAdminAdd,
		testutil.NewRequest(http.MethodPost, adminsPath, fmt.Sprintf(`{"userId":%d}`, helper.ID), owner.ID))
	testutil.ExpectStatus(t, rec, http.StatusCreated)
	admins := decode[struct {
		Admins []dbq.LeagueAdmin `json:"admins"`
	}](t, rec.Body.Bytes()).Admins
	if len(admins) != 2 {
		t.Fatalf("expected 2 admins, got %+v", admins)
	}

	rec = testutil.Serve(t, "GET /api/leagues/{id}/admins", HandleLeagueAdminsList,
		testutil.NewRequest(http.MethodGet, adminsPath, "", helper.ID))
	testutil.ExpectStatus(t, rec, http.StatusOK)

	// The promoted admin can manage the league but cannot remove its creator.
	rec = testutil.Serve(t, "DELETE /api/leagues/{id}/admins/{user_id}", HandleLeagueAdminRemove,
		testutil.NewRequest(http.MethodDelete, fmt.Sprintf("%s/%d", adminsPath, owner.ID), "", helper.ID))
	testutil.ExpectStatus(t, rec, http.StatusConflict)

	rec = testutil.Serve(t, "DELETE /api/leagues/{id}/admins/{user_id}", HandleLeagueAdminRemove,
		testutil.NewRequest(http.MethodDelete, fmt.Sprintf("%s/%d", adminsPath, helper.ID), "", owner.ID))
	testutil.ExpectStatus(t, rec, http.StatusNoContent)

	rec = testutil.Serve(t, "DELETE /api/leagues/{id}/admins/{user_id}", HandleLeagueAdminRemove,
		testutil.NewRequest(http.MethodDelete, fmt.Sprintf("%s/%d", adminsPath, helper.ID), "", owner.ID))
	testutil.ExpectStatus(t, rec, http.StatusNotFound)
}

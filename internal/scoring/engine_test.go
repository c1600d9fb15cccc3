package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	db "github.com/codr1/grudge/internal/db"
	"github.com/codr1/grudge/internal/db/dbq"
	"github.com/codr1/grudge/internal/notify"
	"github.com/codr1/grudge/internal/testutil"
)

type fixture struct {
	db          *db.DB
	engine      *Engine
	leagueAdmin dbq.User
	homeAdmin   dbq.User
	awayAdmin   dbq.User
	matchID     int64
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	testDB := testutil.NewTestDB(t)
	q := testDB.Queries
	ctx := context.Background()

	f := fixture{
		db:          testDB,
		leagueAdmin: testutil.CreateUser(t, q, "league@test.com", "League"),
		homeAdmin:   testutil.CreateUser(t, q, "home@test.com", "Home"),
		awayAdmin:   testutil.CreateUser(t, q, "away@test.com", "Away"),
	}
	home := testutil.CreateTeam(t, q, "Hawks", f.homeAdmin.ID)
	away := testutil.CreateTeam(t, q, "Owls", f.awayAdmin.ID)
	league := testutil.CreateLeague(t, q, "Sunday", f.leagueAdmin.ID)
	season := testutil.CreateSeason(t, q, league.ID, "2030-01-01", "2030-06-30", home.ID, away.ID)

	id, err := q.CreateSeasonMatch(ctx, dbq.CreateSeasonMatchParams{
		SeasonID: season.ID, Round: 1, HomeTeamID: home.ID, AwayTeamID: away.ID,
	})
	if err != nil {
		t.Fatalf("create season match: %v", err)
	}
	f.matchID = id

	f.engine, err = NewEngine(testDB, notify.New(q, nil, notify.Options{}))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return f
}

func (f fixture) match(t *testing.T) dbq.SeasonMatch {
	t.Helper()
	m, err := f.db.Queries.GetSeasonMatch(context.Background(), f.matchID)
	if err != nil {
		t.Fatalf("get season match: %v", err)
	}
	return m
}

func (f fixture) unread(t *testing.T, userID int64) int64 {
	t.Helper()
	n, err := f.db.Queries.CountUnreadNotifications(context.Background(), userID)
	if err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	return n
}

func TestSubmitAndConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.engine.Submit(ctx, f.matchID, f.homeAdmin.ID, Scores{Home: 2, Away: 1})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if f.match(t).Status != dbq.SeasonMatchPending {
		t.Fatalf("expected pending match, got %s", f.match(t).Status)
	}
	if f.unread(t, f.awayAdmin.ID) != 1 {
		t.Fatal("expected away admin to be notified of submission")
	}

	if _, err := f.engine.Submit(ctx, f.matchID, f.awayAdmin.ID, Scores{Home: 0, Away: 0}); !errors.Is(err, ErrPendingSubmission) {
		t.Fatalf("expected pending conflict, got %v", err)
	}
	if _, err := f.engine.Confirm(ctx, f.matchID, sub.ID, f.homeAdmin.ID); !errors.Is(err, ErrOwnSubmission) {
		t.Fatalf("expected own submission error, got %v", err)
	}
	if _, err := f.engine.Confirm(ctx, f.matchID, sub.ID, f.leagueAdmin.ID); !errors.Is(err, ErrNotTeamAdmin) {
		t.Fatalf("expected not team admin, got %v", err)
	}

	confirmed, err := f.engine.Confirm(ctx, f.matchID, sub.ID, f.awayAdmin.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != dbq.SeasonMatchConfirmed || *confirmed.HomeScore != 2 || *confirmed.AwayScore != 1 {
		t.Fatalf("unexpected confirmed match %+v", confirmed)
	}
	if f.unread(t, f.homeAdmin.ID) != 1 {
		t.Fatal("expected home admin to be told of confirmation")
	}

	if _, err := f.engine.Submit(ctx, f.matchID, f.homeAdmin.ID, Scores{Home: 5, Away: 0}); !errors.Is(err, ErrAlreadyConfirmed) {
		t.Fatalf("expected confirmed conflict, got %v", err)
	}
}

func TestSubmitRequiresTeamAdmin(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.Submit(context.Background(), f.matchID, f.leagueAdmin.ID, Scores{}); !errors.Is(err, ErrNotTeamAdmin) {
		t.Fatalf("expected not team admin, got %v", err)
	}
}

func TestDisputeThenResubmitThenResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.engine.Submit(ctx, f.matchID, f.homeAdmin.ID, Scores{Home: 3, Away: 0})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	disputed, err := f.engine.Dispute(ctx, f.matchID, sub.ID, f.awayAdmin.ID, "it was 1-1")
	if err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if disputed.Status != dbq.SubmissionDisputed || disputed.DisputeReason != "it was 1-1" {
		t.Fatalf("unexpected disputed submission %+v", disputed)
	}
	if f.match(t).Status != dbq.SeasonMatchDisputed {
		t.Fatalf("expected disputed match, got %s", f.match(t).Status)
	}
	if f.unread(t, f.leagueAdmin.ID) != 1 {
		t.Fatal("expected league admin to hear about the dispute")
	}

	if _, err := f.engine.Confirm(ctx, f.matchID, sub.ID, f.awayAdmin.ID); !errors.Is(err, ErrNotPending) {
		t.Fatalf("expected not pending, got %v", err)
	}

	resub, err := f.engine.Submit(ctx, f.matchID, f.awayAdmin.ID, Scores{Home: 1, Away: 1})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if f.match(t).Status != dbq.SeasonMatchPending {
		t.Fatalf("expected pending after resubmission, got %s", f.match(t).Status)
	}

	if _, err := f.engine.Resolve(ctx, f.matchID, f.homeAdmin.ID, Scores{Home: 1, Away: 1}); !errors.Is(err, ErrNotLeagueAdmin) {
		t.Fatalf("expected not league admin, got %v", err)
	}
	resolved, err := f.engine.Resolve(ctx, f.matchID, f.leagueAdmin.ID, Scores{Home: 2, Away: 2})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != dbq.SeasonMatchConfirmed || *resolved.HomeScore != 2 {
		t.Fatalf("unexpected resolved match %+v", resolved)
	}

	got, err := f.db.Queries.GetScoreSubmission(ctx, resub.ID)
	if err != nil || got.Status != dbq.SubmissionSuperseded {
		t.Fatalf("expected resubmission superseded, got %+v (%v)", got, err)
	}

	if _, err := f.engine.Resolve(ctx, f.matchID, f.leagueAdmin.ID, Scores{}); !errors.Is(err, ErrAlreadyConfirmed) {
		t.Fatalf("expected confirmed conflict, got %v", err)
	}
}

func TestResolveScheduledMatch(t *testing.T) {
	f := newFixture(t)
	resolved, err := f.engine.Resolve(context.Background(), f.matchID, f.leagueAdmin.ID, Scores{Home: 0, Away: 4})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != dbq.SeasonMatchConfirmed {
		t.Fatalf("expected confirmed, got %s", resolved.Status)
	}
}

func TestConfirmRejectsForeignSubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.engine.Submit(ctx, f.matchID, f.homeAdmin.ID, Scores{Home: 1, Away: 0})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.engine.Confirm(ctx, f.matchID+100, sub.ID, f.awayAdmin.ID); err == nil {
		t.Fatal("expected error for unknown match")
	}
	if _, err := f.engine.Confirm(ctx, f.matchID, sub.ID+100, f.awayAdmin.ID); !errors.Is(err, ErrSubmissionNotFound) {
		t.Fatalf("expected submission not found, got %v", err)
	}
}

func TestAutoConfirmBefore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine.Submit(ctx, f.matchID, f.homeAdmin.ID, Scores{Home: 4, Away: 2}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	n, err := f.engine.AutoConfirmBefore(ctx, time.Now().Add(-time.Hour))
	if err != nil || n != 0 {
		t.Fatalf("expected nothing old enough, got %d (%v)", n, err)
	}

	n, err = f.engine.AutoConfirmBefore(ctx, time.Now().Add(time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("expected one auto-confirmation, got %d (%v)", n, err)
	}
	m := f.match(t)
	if m.Status != dbq.SeasonMatchConfirmed || *m.HomeScore != 4 || *m.AwayScore != 2 {
		t.Fatalf("unexpected match after auto-confirm %+v", m)
	}

	subs, err := f.db.Queries.ListScoreSubmissions(ctx, f.matchID)
	if err != nil || len(subs) != 1 || subs[0].RespondedByUserID != nil {
		t.Fatalf("expected system confirmation, got %+v (%v)", subs, err)
	}
}

package chat

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/codr1/grudge/internal/api/authz"
	"github.com/codr1/grudge/internal/config"
	"github.com/codr1/grudge/internal/db/dbq"
	"github.com/codr1/grudge/internal/testutil"
)

func setupChatTest(t *testing.T) *dbq.Queries {
	t.Helper()

	testDB := testutil.NewTestDB(t)
	prevQueries, prevBroadcaster, prevLimiter, prevRecorder := queries, broadcaster, limiter, recorder
	t.Cleanup(func() {
		queries = prevQueries
		broadcaster = prevBroadcaster
		limiter = prevLimiter
		recorder = prevRecorder
	})

	InitHandlers(testDB.Queries, nil, config.ChatConfig{PostsPerSecond: 1, PostBurst: 100})
	broadcaster = NewBroadcaster()
	return testDB.Queries
}

type messagesResponse struct {
	Messages []dbq.ChatMessage `json:"messages"`
}

func post(t *testing.T, teamID, userID int64, body string) *httptest.ResponseRecorder {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{"body": body})
	return testutil.Serve(t, "POST /api/teams/{id}/messages", HandleTeamMessagePost,
		testutil.NewRequest(http.MethodPost, fmt.Sprintf("/api/teams/%d/messages", teamID), string(payload), userID))
}

func TestPostMessageValidation(t *testing.T) {
	q := setupChatTest(t)
	member := testutil.CreateUser(t, q, "member@test.com", "Member")
	outsider := testutil.CreateUser(t, q, "out@test.com", "Outsider")
	team := testutil.CreateTeam(t, q, "Hawks", member.ID)

	tests := []struct {
		name string
		user int64
		body string
		want int
	}{
		{"blank", member.ID, "   ", http.StatusBadRequest},
		{"too long", member.ID, strings.Repeat("x", maxMessageLength+1), http.StatusBadRequest},
		{"max length", member.ID, strings.Repeat("é", maxMessageLength), http.StatusCreated},
		{"outsider", outsider.ID, "hi", http.StatusForbidden},
		{"anonymous", 0, "hi", http.StatusUnauthorized},
		{"ok", member.ID, "  see you at 6  ", http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.ExpectStatus(t, post(t, team.ID, tt.user, tt.body), tt.want)
		})
	}

	latest, err := q.ListLatestChatMessages(context.Background(), dbq.ListChatMessagesParams{
		ChannelKind: dbq.ChannelTeam, ChannelID: team.ID, Limit: 1,
	})
	if err != nil || len(latest) != 1 || latest[0].Body != "see you at 6" {
		t.Fatalf("expected trimmed body, got %+v (%v)", latest, err)
	}
}

func TestListMessagesAfterAndLatest(t *testing.T) {
	q := setupChatTest(t)
	member := testutil.CreateUser(t, q, "member@test.com", "Member")
	team := testutil.CreateTeam(t, q, "Hawks", member.ID)

	var ids []int64
	for i := 0; i < 5; i++ {
		m, err := q.CreateChatMessage(context.Background(), dbq.CreateChatMessageParams{
			ChannelKind: dbq.ChannelTeam, ChannelID: team.ID, UserID: member.ID, Body: fmt.Sprintf("m%d", i),
		})
		if err != nil {
			t.Fatalf("create message: %v", err)
		}
		ids = append(ids, m.ID)
	}

	tests := []struct {
		query string
		want  []int64
	}{
		{"?limit=2", ids[3:]},
		{fmt.Sprintf("?after=%d", ids[1]), ids[2:]},
		{fmt.Sprintf("?after=%d&limit=1", ids[1]), ids[2:3]},
		{fmt.Sprintf("?after=%d", ids[4]), nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := testutil.Serve(t, "GET /api/teams/{id}/messages", HandleTeamMessages,
				testutil.NewRequest(http.MethodGet, fmt.Sprintf("/api/teams/%d/messages%s", team.ID, tt.query), "", member.ID))
			testutil.ExpectStatus(t, rec, http.StatusOK)
			var resp messagesResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(resp.Messages) != len(tt.want) {
				t.Fatalf("expected %d messages, got %d", len(tt.want), len(resp.Messages))
			}
			for i, id := range tt.want {
				if resp.Messages[i].ID != id {
					t.Fatalf("position %d: expected %d, got %d", i, id, resp.Messages[i].ID)
				}
			}
		})
	}

	rec := testutil.Serve(t, "GET /api/teams/{id}/messages", HandleTeamMessages,
		testutil.NewRequest(http.MethodGet, fmt.Sprintf("/api/teams/%d/messages?after=abc", team.ID), "", member.ID))
	testutil.ExpectStatus(t, rec, http.StatusBadRequest)
}

func TestPostMessageRateLimited(t *testing.T) {
	q := setupChatTest(t)
	member := testutil.CreateUser(t, q, "member@test.com", "Member")
	team := testutil.CreateTeam(t, q, "Hawks", member.ID)

	InitHandlers(q, nil, config.ChatConfig{PostsPerSecond: 0.5, PostBurst: 2})
	frozen := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	prevNow := timeNow
	timeNow = func() time.Time { return frozen }
	t.Cleanup(func() { timeNow = prevNow })

	testutil.ExpectStatus(t, post(t, team.ID, member.ID, "one"), http.StatusCreated)
	testutil.ExpectStatus(t, post(t, team.ID, member.ID, "two"), http.StatusCreated)

	rec := post(t, team.ID, member.ID, "three")
	testutil.ExpectStatus(t, rec, http.StatusTooManyRequests)
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}

	frozen = frozen.Add(2 * time.Second)
	testutil.ExpectStatus(t, post(t, team.ID, member.ID, "three"), http.StatusCreated)
}

func TestLeagueChatAccess(t *testing.T) {
	q := setupChatTest(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, q, "admin@test.com", "Admin")
	player := testutil.CreateUser(t, q, "player@test.com", "Player")
	outsider := testutil.CreateUser(t, q, "out@test.com", "Outsider")
	team := testutil.CreateTeam(t, q, "Hawks", player.ID)

	league, err := q.CreateLeague(ctx, dbq.CreateLeagueParams{Name: "Sunday", CreatedBy: admin.ID, PointsWin: 3, PointsDraw: 1})
	if err != nil {
		t.Fatalf("create league: %v", err)
	}
	if err := q.AddLeagueAdmin(ctx, league.ID, admin.ID); err != nil {
		t.Fatalf("add league admin: %v", err)
	}
	if err := q.AddLeagueTeam(ctx, league.ID, team.ID); err != nil {
		t.Fatalf("add league team: %v", err)
	}

	path := fmt.Sprintf("/api/leagues/%d/messages", league.ID)
	for _, tc := range []struct {
		name string
		user int64
		want int
	}{
		{"league admin", admin.ID, http.StatusCreated},
		{"team member", player.ID, http.StatusCreated},
		{"outsider", outsider.ID, http.StatusForbidden},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := testutil.Serve(t, "POST /api/leagues/{id}/messages", HandleLeagueMessagePost,
				testutil.NewRequest(http.MethodPost, path, `{"body":"hello league"}`, tc.user))
			testutil.ExpectStatus(t, rec, tc.want)
		})
	}
}

func TestMessageStreamDeliversPostedMessages(t *testing.T) {
	q := setupChatTest(t)
	member := testutil.CreateUser(t, q, "member@test.com", "Member")
	team := testutil.CreateTeam(t, q, "Hawks", member.ID)

	earlier, err := q.CreateChatMessage(context.Background(), dbq.CreateChatMessageParams{
		ChannelKind: dbq.ChannelTeam, ChannelID: team.ID, UserID: member.ID, Body: "missed",
	})
	if err != nil {
		t.Fatalf("create message: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/teams/{id}/messages/stream", HandleTeamMessageStream)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := authz.ContextWithUser(r.Context(), &authz.AuthUser{ID: member.ID, SessionType: authz.SessionTypeLocal})
		mux.ServeHTTP(w, r.WithContext(ctx))
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/teams/%d/messages/stream", srv.URL, team.ID), nil)
	req.Header.Set(lastEventIDHeader, fmt.Sprint(earlier.ID-1))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	nextData := func(event string) dbq.ChatMessage {
		t.Helper()
		var current string
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			line = strings.TrimRight(line, "\n")
			if v, ok := strings.CutPrefix(line, "event: "); ok {
				current = v
				continue
			}
			if v, ok := strings.CutPrefix(line, "data: "); ok && current == event {
				var msg dbq.ChatMessage
				if err := json.Unmarshal([]byte(v), &msg); err != nil {
					t.Fatalf("decode event: %v", err)
				}
				return msg
			}
		}
	}

	if got := nextData("message"); got.ID != earlier.ID {
		t.Fatalf("expected backfilled message %d, got %d", earlier.ID, got.ID)
	}

	deadline := time.Now().Add(2 * time.Second)
	for broadcaster.Subscribers(dbq.ChannelTeam, team.ID) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	testutil.ExpectStatus(t, post(t, team.ID, member.ID, "live"), http.StatusCreated)

	if got := nextData("message"); got.Body != "live" {
		t.Fatalf("expected live message, got %+v", got)
	}
}

func TestBroadcasterIsolatesChannels(t *testing.T) {
	b := NewBroadcaster()
	teamCh, unsubTeam := b.Subscribe(dbq.ChannelTeam, 1)
	leagueCh, unsubLeague := b.Subscribe(dbq.ChannelLeague, 1)
	defer unsubLeague()

	b.Publish(dbq.ChatMessage{ID: 9, ChannelKind: dbq.ChannelTeam, ChannelID: 1})

	select {
	case msg := <-teamCh:
		if msg.ID != 9 {
			t.Fatalf("unexpected message %+v", msg)
		}
	default:
		t.Fatal("team subscriber got nothing")
	}
	select {
	case msg := <-leagueCh:
		t.Fatalf("league subscriber should not see team message, got %+v", msg)
	default:
	}

	unsubTeam()
	if _, open := <-teamCh; open {
		t.Fatal("expected closed channel after unsubscribe")
	}
	if n := b.Subscribers(dbq.ChannelTeam, 1); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
	unsubTeam()
}

func TestBroadcasterCloseEndsStreams(t *testing.T) {
	b := NewBroadcaster()
	ch, unsub := b.Subscribe(dbq.ChannelTeam, 1)

	b.Close()
	if _, open := <-ch; open {
		t.Fatal("expected closed channel after Close")
	}
	unsub()

	late, _ := b.Subscribe(dbq.ChannelLeague, 2)
	if _, open := <-late; open {
		t.Fatal("expected subscriptions after Close to be closed")
	}
	b.Publish(dbq.ChatMessage{ID: 1, ChannelKind: dbq.ChannelTeam, ChannelID: 1})
}

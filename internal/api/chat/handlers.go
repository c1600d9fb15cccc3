// internal/api/chat/handlers.go
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/codr1/grudge/internal/api/apiutil"
	"github.com/codr1/grudge/internal/api/authz"
	"github.com/codr1/grudge/internal/config"
	"github.com/codr1/grudge/internal/db/dbq"
	"github.com/codr1/grudge/internal/metrics"
)

const (
	chatQueryTimeout   = 5 * time.Second
	chatListLimit      = 50
	chatMaxLimit       = 200
	maxMessageLength   = 2000
	streamHeartbeat    = 25 * time.Second
	channelIDPathKey   = "id"
	lastEventIDHeader  = "Last-Event-ID"
	streamBackfillSize = chatMaxLimit
)

var (
	queries     *dbq.Queries
	broadcaster = NewBroadcaster()
	limiter     = newPostLimiter(defaultPostsPerSecond, defaultPostBurst)
	recorder    *metrics.Recorder

	timeNow = time.Now
)

type messageRequest struct {
	Body string `json:"body" validate:"required"`
}

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(q *dbq.Queries, rec *metrics.Recorder, cfg config.ChatConfig) {
	queries = q
	recorder = rec
	limiter = newPostLimiter(cfg.PostsPerSecond, cfg.PostBurst)
}

// Broadcast exposes the hub so other packages can publish system messages.
func Broadcast() *Broadcaster {
	return broadcaster
}

// GET /api/teams/{id}/messages
func HandleTeamMessages(w http.ResponseWriter, r *http.Request) {
	listMessages(w, r, dbq.ChannelTeam)
}

// POST /api/teams/{id}/messages
func HandleTeamMessagePost(w http.ResponseWriter, r *http.Request) {
	postMessage(w, r, dbq.ChannelTeam)
}

// GET /api/teams/{id}/messages/stream
func HandleTeamMessageStream(w http.ResponseWriter, r *http.Request) {
	streamMessages(w, r, dbq.ChannelTeam)
}

// GET /api/leagues/{id}/messages
func HandleLeagueMessages(w http.ResponseWriter, r *http.Request) {
	listMessages(w, r, dbq.ChannelLeague)
}

// POST /api/leagues/{id}/messages
func HandleLeagueMessagePost(w http.ResponseWriter, r *http.Request) {
	postMessage(w, r, dbq.ChannelLeague)
}

// GET /api/leagues/{id}/messages/stream
func HandleLeagueMessageStream(w http.ResponseWriter, r *http.Request) {
	streamMessages(w, r, dbq.ChannelLeague)
}

func listMessages(w http.ResponseWriter, r *http.Request, kind string) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	channelID, err := apiutil.PathID(r, channelIDPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := apiutil.QueryLimit(r, chatListLimit, chatMaxLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	afterID, hasAfter, err := parseAfter(r.URL.Query().Get("after"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), chatQueryTimeout)
	defer cancel()

	if !requireChannelAccess(w, r, ctx, kind, channelID) {
		return
	}

	params := dbq.ListChatMessagesParams{ChannelKind: kind, ChannelID: channelID, AfterID: afterID, Limit: limit}
	var list []dbq.ChatMessage
	if hasAfter {
		list, err = queries.ListChatMessagesAfter(ctx, params)
	} else {
		list, err = queries.ListLatestChatMessages(ctx, params)
	}
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to load messages")
		return
	}
	if list == nil {
		list = []dbq.ChatMessage{}
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{"messages": list})
}

func postMessage(w http.ResponseWriter, r *http.Request, kind string) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	channelID, err := apiutil.PathID(r, channelIDPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req messageRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}
	body := strings.TrimSpace(req.Body)
	if body == "" || utf8.RuneCountInString(body) > maxMessageLength {
		apiutil.WriteError(w, r, apiutil.FieldError{
			Field:  "body",
			Reason: fmt.Sprintf("must be between 1 and %d characters", maxMessageLength),
		}, "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), chatQueryTimeout)
	defer cancel()

	if !requireChannelAccess(w, r, ctx, kind, channelID) {
		return
	}

	if allowed, retryAfter := limiter.Allow(user.ID, timeNow()); !allowed {
		logger.Warn().Int64("user_id", user.ID).Str("channel", kind).Msg("Chat rate limit exceeded")
		apiutil.TooManyRequests(w, retryAfter, "You're sending messages too quickly")
		return
	}

	created, err := queries.CreateChatMessage(ctx, dbq.CreateChatMessageParams{
		ChannelKind: kind,
		ChannelID:   channelID,
		UserID:      user.ID,
		Body:        body,
	})
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to post message")
		return
	}

	broadcaster.Publish(created)
	recorder.RecordChatMessage(kind)

	apiutil.Respond(w, r, http.StatusCreated, map[string]any{"message": created})
}

func streamMessages(w http.ResponseWriter, r *http.Request, kind string) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	channelID, err := apiutil.PathID(r, channelIDPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	checkCtx, cancel := context.WithTimeout(r.Context(), chatQueryTimeout)
	ok := requireChannelAccess(w, r, checkCtx, kind, channelID)
	cancel()
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Subscribe before the backfill so nothing posted in between is lost.
	ch, unsubscribe := broadcaster.Subscribe(kind, channelID)
	defer unsubscribe()
	defer recorder.StreamOpened()()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))

	var lastSent int64
	if afterID, has, err := parseAfter(r.Header.Get(lastEventIDHeader)); err == nil && has {
		backfillCtx, cancel := context.WithTimeout(r.Context(), chatQueryTimeout)
		missed, err := queries.ListChatMessagesAfter(backfillCtx, dbq.ListChatMessagesParams{
			ChannelKind: kind,
			ChannelID:   channelID,
			AfterID:     afterID,
			Limit:       streamBackfillSize,
		})
		cancel()
		if err != nil {
			logger.Error().Err(err).Str("channel", kind).Int64("channel_id", channelID).Msg("Failed to backfill chat stream")
		}
		for _, msg := range missed {
			if err := writeMessageEvent(w, msg); err != nil {
				return
			}
			lastSent = msg.ID
		}
	}
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case msg, open := <-ch:
			if !open {
				return
			}
			if msg.ID <= lastSent {
				continue
			}
			if err := writeMessageEvent(w, msg); err != nil {
				return
			}
			lastSent = msg.ID
			flusher.Flush()
		}
	}
}

func writeMessageEvent(w http.ResponseWriter, msg dbq.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: message\ndata: %s\n\n", msg.ID, data)
	return err
}

func requireChannelAccess(w http.ResponseWriter, r *http.Request, ctx context.Context, kind string, channelID int64) bool {
	switch kind {
	case dbq.ChannelTeam:
		_, err := authz.RequireTeamMember(ctx, queries, channelID)
		return apiutil.RequireAccess(w, r, err, "team", channelID)
	case dbq.ChannelLeague:
		return apiutil.RequireAccess(w, r, authz.RequireLeagueMember(ctx, queries, channelID), "league", channelID)
	}
	http.Error(w, "Unknown channel", http.StatusNotFound)
	return false
}

func parseAfter(raw string) (int64, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, false, fmt.Errorf("after must be a message id")
	}
	return id, true, nil
}

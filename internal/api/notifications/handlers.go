// Package notifications serves a user's in-app notification feed.
package notifications

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/grudge/internal/api/apiutil"
	"github.com/codr1/grudge/internal/api/authz"
	"github.com/codr1/grudge/internal/db/dbq"
)

var (
	queries *dbq.Queries
	timeNow = time.Now
)

const (
	queryTimeout = 5 * time.Second
	defaultLimit = 25
	maxLimit     = 100
)

func InitHandlers(q *dbq.Queries) {
	queries = q
}

// caller returns the signed-in user and a query context. It has already
// answered the request when ok is false.
func caller(w http.ResponseWriter, r *http.Request) (user *authz.AuthUser, ctx context.Context, cancel context.CancelFunc, ok bool) {
	if queries == nil {
		log.Ctx(r.Context()).Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return nil, nil, nil, false
	}
	if user, ok = apiutil.RequireUser(w, r); !ok {
		return nil, nil, nil, false
	}
	ctx, cancel = context.WithTimeout(r.Context(), queryTimeout)
	return user, ctx, cancel, true
}

// ownedNotFound hides other users' notifications behind a plain 404.
func ownedNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apiutil.NotFound("Notification not found")
	}
	return err
}

// GET /api/notifications/count
func HandleNotificationCount(w http.ResponseWriter, r *http.Request) {
	user, ctx, cancel, ok := caller(w, r)
	if !ok {
		return
	}
	defer cancel()

	unread, err := queries.CountUnreadNotifications(ctx, user.ID)
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to load notifications")
		return
	}
	apiutil.Respond(w, r, http.StatusOK, map[string]any{"unread": unread})
}

// GET /api/notifications?unread=true&limit=
func HandleNotificationsList(w http.ResponseWriter, r *http.Request) {
	user, ctx, cancel, ok := caller(w, r)
	if !ok {
		return
	}
	defer cancel()

	params := dbq.ListNotificationsParams{UserID: user.ID}
	var err error
	if params.Limit, err = apiutil.QueryLimit(r, defaultLimit, maxLimit); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(err.Error()), "")
		return
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("unread")); raw != "" {
		if params.UnreadOnly, err = strconv.ParseBool(raw); err != nil {
			apiutil.WriteError(w, r, apiutil.BadRequest("unread must be true or false"), "")
			return
		}
	}

	feed, err := queries.ListNotifications(ctx, params)
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to load notifications")
		return
	}
	if feed == nil {
		feed = []dbq.Notification{}
	}
	apiutil.Respond(w, r, http.StatusOK, map[string]any{"notifications": feed})
}

// POST /api/notifications/{id}/read
func HandleNotificationRead(w http.ResponseWriter, r *http.Request) {
	user, ctx, cancel, ok := caller(w, r)
	if !ok {
		return
	}
	defer cancel()

	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest("Invalid notification ID"), "")
		return
	}
	if err := queries.MarkNotificationRead(ctx, id, user.ID, timeNow()); err != nil {
		apiutil.WriteError(w, r, ownedNotFound(err), "Failed to update notification")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/notifications/read-all
func HandleNotificationsReadAll(w http.ResponseWriter, r *http.Request) {
	user, ctx, cancel, ok := caller(w, r)
	if !ok {
		return
	}
	defer cancel()

	updated, err := queries.MarkAllNotificationsRead(ctx, user.ID, timeNow())
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to update notifications")
		return
	}
	apiutil.Respond(w, r, http.StatusOK, map[string]any{"updated": updated})
}

// DELETE /api/notifications/{id}
func HandleNotificationDelete(w http.ResponseWriter, r *http.Request) {
	user, ctx, cancel, ok := caller(w, r)
	if !ok {
		return
	}
	defer cancel()

	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest("Invalid notification ID"), "")
		return
	}
	if err := queries.DeleteNotification(ctx, id, user.ID); err != nil {
		apiutil.WriteError(w, r, ownedNotFound(err), "Failed to delete notification")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

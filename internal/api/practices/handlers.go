// internal/api/practices/handlers.go
package practices

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/grudge/internal/api/apiutil"
	"github.com/codr1/grudge/internal/api/authz"
	appdb "github.com/codr1/grudge/internal/db"
	"github.com/codr1/grudge/internal/db/dbq"
	"github.com/codr1/grudge/internal/notify"
)

const (
	practiceQueryTimeout = 5 * time.Second
	practiceIDPathKey    = "id"
	teamIDQueryKey       = "team_id"
)

var (
	queries  *dbq.Queries
	database *appdb.DB
	notifier *notify.Service

	timeNow = time.Now
)

type practiceRequest struct {
	TeamID   int64  `json:"teamId"`
	Title    string `json:"title" validate:"required,max=80"`
	Location string `json:"location" validate:"max=120"`
	StartsAt string `json:"startsAt" validate:"required"`
	EndsAt   string `json:"endsAt" validate:"required"`
	Notes    string `json:"notes" validate:"max=1000"`
}

type practiceWindow struct {
	StartsAt time.Time
	EndsAt   time.Time
}

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(db *appdb.DB, n *notify.Service) {
	if db != nil {
		database = db
		queries = db.Queries
	}
	notifier = n
}

// GET /api/practices?team_id=&scope=upcoming|past|all
func HandlePracticesList(w http.ResponseWriter, r *http.Request) {
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

	scope := strings.TrimSpace(r.URL.Query().Get("scope"))
	switch scope {
	case "":
		scope = dbq.ScopeUpcoming
	case dbq.ScopeUpcoming, dbq.ScopePast, dbq.ScopeAll:
	default:
		http.Error(w, "scope must be upcoming, past or all", http.StatusBadRequest)
		return
	}

	teamID, err := apiutil.OptionalQueryID(r, teamIDQueryKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), practiceQueryTimeout)
	defer cancel()

	var teamIDs []int64
	if teamID != 0 {
		if _, err := authz.RequireTeamMember(ctx, queries, teamID); !apiutil.RequireAccess(w, r, err, "team", teamID) {
			return
		}
		teamIDs = []int64{teamID}
	} else {
		teamIDs, err = queries.ListTeamIDsForUser(ctx, user.ID)
		if err != nil {
			apiutil.WriteError(w, r, err, "Failed to load teams")
			return
		}
	}

	list, err := queries.ListPractices(ctx, dbq.ListPracticesParams{TeamIDs: teamIDs, Scope: scope, Now: timeNow()})
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to list practices")
		return
	}
	if list == nil {
		list = []dbq.Practice{}
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{"practices": list})
}

// POST /api/practices
func HandlePracticeCreate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req practiceRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}
	if req.TeamID <= 0 {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "teamId", Reason: "is required"}, "")
		return
	}
	window, err := parseWindow(req)
	if err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), practiceQueryTimeout)
	defer cancel()

	if !apiutil.RequireAccess(w, r, authz.RequireTeamAdmin(ctx, queries, req.TeamID), "team", req.TeamID) {
		return
	}

	created, err := queries.CreatePractice(ctx, dbq.CreatePracticeParams{
		TeamID:   req.TeamID,
		Title:    strings.TrimSpace(req.Title),
		Location: strings.TrimSpace(req.Location),
		StartsAt: window.StartsAt,
		EndsAt:   window.EndsAt,
		Notes:    strings.TrimSpace(req.Notes),
	})
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to create practice")
		return
	}

	logger.Info().Int64("practice_id", created.ID).Int64("team_id", created.TeamID).Msg("Practice created")
	apiutil.Respond(w, r, http.StatusCreated, map[string]any{"practice": created})
}

// GET /api/practices/{id}
func HandlePracticeGet(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	practiceID, err := apiutil.PathID(r, practiceIDPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), practiceQueryTimeout)
	defer cancel()

	practice, err := queries.GetPractice(ctx, practiceID)
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to load practice")
		return
	}
	if _, err := authz.RequireTeamMember(ctx, queries, practice.TeamID); !apiutil.RequireAccess(w, r, err, "practice", practiceID) {
		return
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{"practice": practice})
}

// PUT /api/practices/{id}
func HandlePracticeUpdate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	practiceID, err := apiutil.PathID(r, practiceIDPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req practiceRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}
	window, err := parseWindow(req)
	if err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), practiceQueryTimeout)
	defer cancel()

	current, ok := loadPracticeAsAdmin(w, r, ctx, practiceID)
	if !ok {
		return
	}
	if req.TeamID != 0 && req.TeamID != current.TeamID {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "teamId", Reason: "cannot be changed"}, "")
		return
	}

	updated, err := queries.UpdatePractice(ctx, dbq.UpdatePracticeParams{
		ID:       practiceID,
		Title:    strings.TrimSpace(req.Title),
		Location: strings.TrimSpace(req.Location),
		StartsAt: window.StartsAt,
		EndsAt:   window.EndsAt,
		Notes:    strings.TrimSpace(req.Notes),
	})
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to update practice")
		return
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{"practice": updated})
}

// DELETE /api/practices/{id}
func HandlePracticeDelete(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	practiceID, err := apiutil.PathID(r, practiceIDPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), practiceQueryTimeout)
	defer cancel()

	if _, ok := loadPracticeAsAdmin(w, r, ctx, practiceID); !ok {
		return
	}
	if err := queries.DeletePractice(ctx, practiceID); err != nil {
		apiutil.WriteError(w, r, err, "Failed to delete practice")
		return
	}

	logger.Info().Int64("practice_id", practiceID).Msg("Practice deleted")
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/practices/{id}/cancel
func HandlePracticeCancel(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil || database == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	practiceID, err := apiutil.PathID(r, practiceIDPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), practiceQueryTimeout)
	defer cancel()

	if _, ok := loadPracticeAsAdmin(w, r, ctx, practiceID); !ok {
		return
	}
	actor := authz.UserFromContext(ctx)

	var (
		cancelled dbq.Practice
		pending   notify.Pending
	)
	err = database.RunInTx(ctx, func(txdb *appdb.DB) error {
		qtx := txdb.Queries

		current, err := qtx.GetPractice(ctx, practiceID)
		if err != nil {
			return err
		}
		if current.Status == dbq.PracticeCancelled {
			return apiutil.Conflict("Practice is already cancelled")
		}

		cancelled, err = qtx.SetPracticeStatus(ctx, practiceID, dbq.PracticeCancelled)
		if err != nil {
			return apiutil.Internal("Failed to cancel practice", err)
		}

		memberIDs, err := qtx.ListTeamMemberIDs(ctx, current.TeamID)
		if err != nil {
			return apiutil.Internal("Failed to load team members", err)
		}
		return notifier.Add(ctx, qtx, &pending, memberIDs, actor.ID, notify.Notice{
			Kind:  notify.KindPracticeCancelled,
			Title: fmt.Sprintf("Practice cancelled: %s", current.Title),
			Body: fmt.Sprintf("%s practice on %s is cancelled.",
				current.TeamName, current.StartsAt.Format("Mon Jan 2 15:04 MST")),
			Link: fmt.Sprintf("/practices/%d", practiceID),
		})
	})
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to cancel practice")
		return
	}
	notified := pending.Len()
	notifier.Flush(ctx, &pending)

	logger.Info().Int64("practice_id", practiceID).Int("notified", notified).Msg("Practice cancelled")
	apiutil.Respond(w, r, http.StatusOK, map[string]any{"practice": cancelled})
}

func loadPracticeAsAdmin(w http.ResponseWriter, r *http.Request, ctx context.Context, practiceID int64) (dbq.Practice, bool) {
	practice, err := queries.GetPractice(ctx, practiceID)
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to load practice")
		return dbq.Practice{}, false
	}
	if !apiutil.RequireAccess(w, r, authz.RequireTeamAdmin(ctx, queries, practice.TeamID), "practice", practiceID) {
		return dbq.Practice{}, false
	}
	return practice, true
}

func parseWindow(req practiceRequest) (practiceWindow, error) {
	startsAt, err := apiutil.ParseTimestamp(req.StartsAt, "startsAt")
	if err != nil {
		return practiceWindow{}, apiutil.FieldError{Field: "startsAt", Reason: "must be an RFC 3339 timestamp"}
	}
	endsAt, err := apiutil.ParseTimestamp(req.EndsAt, "endsAt")
	if err != nil {
		return practiceWindow{}, apiutil.FieldError{Field: "endsAt", Reason: "must be an RFC 3339 timestamp"}
	}
	if !endsAt.After(startsAt) {
		return practiceWindow{}, apiutil.FieldError{Field: "endsAt", Reason: "must be after startsAt"}
	}
	return practiceWindow{StartsAt: startsAt, EndsAt: endsAt}, nil
}

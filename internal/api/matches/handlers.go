// internal/api/matches/handlers.go
package matches

import (
	"context"
	"database/sql"
	"errors"
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
	matchQueryTimeout = 5 * time.Second
	matchIDPathKey    = "id"
	teamIDQueryKey    = "team_id"
)

var (
	queries  *dbq.Queries
	database *appdb.DB
	notifier *notify.Service

	timeNow = time.Now
)

type matchRequest struct {
	TeamID         int64   `json:"teamId"`
	OpponentName   string  `json:"opponentName" validate:"max=80"`
	OpponentTeamID *int64  `json:"opponentTeamId" validate:"omitempty,gt=0"`
	Location       string  `json:"location" validate:"max=120"`
	StartsAt       string  `json:"startsAt" validate:"required"`
	IsHome         bool    `json:"isHome"`
	Notes          string  `json:"notes" validate:"max=1000"`
	Status         *string `json:"status" validate:"omitempty,oneof=scheduled cancelled"`
}

type resultRequest struct {
	TeamScore     *int64 `json:"teamScore" validate:"required,gte=0"`
	OpponentScore *int64 `json:"opponentScore" validate:"required,gte=0"`
}

type matchInput struct {
	OpponentName   string
	OpponentTeamID *int64
	Location       string
	StartsAt       time.Time
	IsHome         bool
	Notes          string
}

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(db *appdb.DB, n *notify.Service) {
	if db != nil {
		database = db
		queries = db.Queries
	}
	notifier = n
}

// GET /api/matches?team_id=&scope=upcoming|past|all
func HandleMatchesList(w http.ResponseWriter, r *http.Request) {
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

	scope, err := parseScope(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	teamID, err := apiutil.OptionalQueryID(r, teamIDQueryKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), matchQueryTimeout)
	defer cancel()

	teamIDs, ok := scopedTeamIDs(w, r, ctx, user.ID, teamID)
	if !ok {
		return
	}

	list, err := queries.ListMatches(ctx, dbq.ListMatchesParams{TeamIDs: teamIDs, Scope: scope, Now: timeNow()})
	if err != nil {
		logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to list matches")
		http.Error(w, "Failed to list matches", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []dbq.Match{}
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{"matches": list})
}

// POST /api/matches
func HandleMatchCreate(w http.ResponseWriter, r *http.Request) {
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

	var req matchRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}
	if req.TeamID <= 0 {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "teamId", Reason: "is required"}, "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), matchQueryTimeout)
	defer cancel()

	if !apiutil.RequireAccess(w, r, authz.RequireTeamAdmin(ctx, queries, req.TeamID), "team", req.TeamID) {
		return
	}

	input, err := buildMatchInput(ctx, req, req.TeamID)
	if err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}

	created, err := queries.CreateMatch(ctx, dbq.CreateMatchParams{
		TeamID:         req.TeamID,
		OpponentName:   input.OpponentName,
		OpponentTeamID: input.OpponentTeamID,
		Location:       input.Location,
		StartsAt:       input.StartsAt,
		IsHome:         input.IsHome,
		Notes:          input.Notes,
		CreatedBy:      user.ID,
	})
	if err != nil {
		logger.Error().Err(err).Int64("team_id", req.TeamID).Msg("Failed to create match")
		http.Error(w, "Failed to create match", http.StatusInternalServerError)
		return
	}

	logger.Info().Int64("match_id", created.ID).Int64("team_id", created.TeamID).Msg("Match created")
	apiutil.Respond(w, r, http.StatusCreated, map[string]any{"match": created})
}

// GET /api/matches/{id}
func HandleMatchGet(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	matchID, err := apiutil.PathID(r, matchIDPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), matchQueryTimeout)
	defer cancel()

	match, err := queries.GetMatch(ctx, matchID)
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to load match")
		return
	}

	member, err := authz.RequireTeamMember(ctx, queries, match.TeamID)
	if !apiutil.RequireAccess(w, r, err, "match", matchID) {
		return
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{
		"match":   match,
		"isAdmin": member.Role == dbq.RoleAdmin,
	})
}

// PUT /api/matches/{id}
func HandleMatchUpdate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	matchID, err := apiutil.PathID(r, matchIDPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req matchRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), matchQueryTimeout)
	defer cancel()

	current, ok := loadMatchAsAdmin(w, r, ctx, matchID)
	if !ok {
		return
	}
	if req.TeamID != 0 && req.TeamID != current.TeamID {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "teamId", Reason: "cannot be changed"}, "")
		return
	}

	input, err := buildMatchInput(ctx, req, current.TeamID)
	if err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}

	status := current.Status
	if req.Status != nil {
		if current.Status == dbq.MatchCompleted {
			http.Error(w, "Completed matches cannot change status", http.StatusConflict)
			return
		}
		status = *req.Status
	}

	updated, err := queries.UpdateMatch(ctx, dbq.UpdateMatchParams{
		ID:             matchID,
		OpponentName:   input.OpponentName,
		OpponentTeamID: input.OpponentTeamID,
		Location:       input.Location,
		StartsAt:       input.StartsAt,
		IsHome:         input.IsHome,
		Notes:          input.Notes,
		Status:         status,
	})
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to update match")
		return
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{"match": updated})
}

// DELETE /api/matches/{id}
func HandleMatchDelete(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	matchID, err := apiutil.PathID(r, matchIDPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), matchQueryTimeout)
	defer cancel()

	if _, ok := loadMatchAsAdmin(w, r, ctx, matchID); !ok {
		return
	}

	if err := queries.DeleteMatch(ctx, matchID); err != nil {
		apiutil.WriteError(w, r, err, "Failed to delete match")
		return
	}

	logger.Info().Int64("match_id", matchID).Msg("Match deleted")
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/matches/{id}/result
func HandleMatchResult(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	matchID, err := apiutil.PathID(r, matchIDPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req resultRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), matchQueryTimeout)
	defer cancel()

	current, ok := loadMatchAsAdmin(w, r, ctx, matchID)
	if !ok {
		return
	}
	if current.Status == dbq.MatchCancelled {
		http.Error(w, "Cannot record a result for a cancelled match", http.StatusConflict)
		return
	}

	updated, err := queries.SetMatchResult(ctx, matchID, *req.TeamScore, *req.OpponentScore)
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to record result")
		return
	}

	logger.Info().
		Int64("match_id", matchID).
		Int64("team_score", *req.TeamScore).
		Int64("opponent_score", *req.OpponentScore).
		Msg("Match result recorded")
	apiutil.Respond(w, r, http.StatusOK, map[string]any{"match": updated})
}

// loadMatchAsAdmin writes the error response itself when it returns false.
func loadMatchAsAdmin(w http.ResponseWriter, r *http.Request, ctx context.Context, matchID int64) (dbq.Match, bool) {
	match, err := queries.GetMatch(ctx, matchID)
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to load match")
		return dbq.Match{}, false
	}
	if !apiutil.RequireAccess(w, r, authz.RequireTeamAdmin(ctx, queries, match.TeamID), "match", matchID) {
		return dbq.Match{}, false
	}
	return match, true
}

// scopedTeamIDs returns the single requested team after a membership check,
// or every team of the caller.
func scopedTeamIDs(w http.ResponseWriter, r *http.Request, ctx context.Context, userID, teamID int64) ([]int64, bool) {
	if teamID != 0 {
		_, err := authz.RequireTeamMember(ctx, queries, teamID)
		if !apiutil.RequireAccess(w, r, err, "team", teamID) {
			return nil, false
		}
		return []int64{teamID}, true
	}

	ids, err := queries.ListTeamIDsForUser(ctx, userID)
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to load teams")
		return nil, false
	}
	return ids, true
}

func parseScope(r *http.Request) (string, error) {
	scope := strings.TrimSpace(r.URL.Query().Get("scope"))
	switch scope {
	case "":
		return dbq.ScopeUpcoming, nil
	case dbq.ScopeUpcoming, dbq.ScopePast, dbq.ScopeAll:
		return scope, nil
	}
	return "", errors.New("scope must be upcoming, past or all")
}

func buildMatchInput(ctx context.Context, req matchRequest, teamID int64) (matchInput, error) {
	startsAt, err := apiutil.ParseTimestamp(req.StartsAt, "startsAt")
	if err != nil {
		return matchInput{}, apiutil.FieldError{Field: "startsAt", Reason: "must be an RFC 3339 timestamp"}
	}

	input := matchInput{
		OpponentName:   strings.TrimSpace(req.OpponentName),
		OpponentTeamID: req.OpponentTeamID,
		Location:       strings.TrimSpace(req.Location),
		StartsAt:       startsAt,
		IsHome:         req.IsHome,
		Notes:          strings.TrimSpace(req.Notes),
	}

	if input.OpponentTeamID != nil {
		if *input.OpponentTeamID == teamID {
			return matchInput{}, apiutil.FieldError{Field: "opponentTeamId", Reason: "must differ from the team"}
		}
		opponent, err := queries.GetTeam(ctx, *input.OpponentTeamID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return matchInput{}, apiutil.FieldError{Field: "opponentTeamId", Reason: "does not exist"}
			}
			return matchInput{}, err
		}
		if input.OpponentName == "" {
			input.OpponentName = opponent.Name
		}
	}
	if input.OpponentName == "" {
		return matchInput{}, apiutil.FieldError{Field: "opponentName", Reason: "is required"}
	}
	return input, nil
}

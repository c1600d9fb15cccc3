package leagues

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/codr1/grudge/internal/api/apiutil"
	"github.com/codr1/grudge/internal/api/authz"
	"github.com/codr1/grudge/internal/db/dbq"
	leaguerules "github.com/codr1/grudge/internal/leagues"
	"github.com/codr1/grudge/internal/scoring"
)

const (
	seasonMatchPathKey = "id"
	submissionPathKey  = "submission_id"
)

type scoreRequest struct {
	HomeScore *int64 `json:"homeScore" validate:"required,gte=0,lte=999"`
	AwayScore *int64 `json:"awayScore" validate:"required,gte=0,lte=999"`
}

type disputeRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// GET /api/season-matches/{id}
func HandleSeasonMatchGet(w http.ResponseWriter, r *http.Request) {
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

	ctx, cancel := context.WithTimeout(r.Context(), leagueQueryTimeout)
	defer cancel()

	match, ok := loadSeasonMatch(w, r, ctx)
	if !ok {
		return
	}

	homeAdmin, err := authz.IsTeamAdmin(ctx, queries, match.HomeTeamID, user.ID)
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to load match")
		return
	}
	awayAdmin, err := authz.IsTeamAdmin(ctx, queries, match.AwayTeamID, user.ID)
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to load match")
		return
	}
	leagueAdmin, err := queries.IsLeagueAdmin(ctx, match.LeagueID, user.ID)
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to load match")
		return
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{
		"match":         match,
		"isHomeAdmin":   homeAdmin,
		"isAwayAdmin":   awayAdmin,
		"isLeagueAdmin": leagueAdmin,
	})
}

// GET /api/season-matches/{id}/scores
func HandleScoreSubmissionsList(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), leagueQueryTimeout)
	defer cancel()

	match, ok := loadSeasonMatch(w, r, ctx)
	if !ok {
		return
	}

	submissions, err := queries.ListScoreSubmissions(ctx, match.ID)
	if err != nil {
		logger.Error().Err(err).Int64("season_match_id", match.ID).Msg("Failed to list score submissions")
		http.Error(w, "Failed to list score submissions", http.StatusInternalServerError)
		return
	}
	if submissions == nil {
		submissions = []dbq.ScoreSubmission{}
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{"match": match, "submissions": submissions})
}

// POST /api/season-matches/{id}/scores
func HandleScoreSubmit(w http.ResponseWriter, r *http.Request) {
	user, matchID, ok := scoreCaller(w, r)
	if !ok {
		return
	}

	var req scoreRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), leagueQueryTimeout)
	defer cancel()

	created, err := engine.Submit(ctx, matchID, user.ID, scoring.Scores{Home: *req.HomeScore, Away: *req.AwayScore})
	if err != nil {
		writeScoreError(w, r, err, "Failed to submit score")
		return
	}

	apiutil.Respond(w, r, http.StatusCreated, map[string]any{"submission": created})
}

// POST /api/season-matches/{id}/scores/{submission_id}/confirm
func HandleScoreConfirm(w http.ResponseWriter, r *http.Request) {
	user, matchID, ok := scoreCaller(w, r)
	if !ok {
		return
	}

	submissionID, err := apiutil.PathID(r, submissionPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), leagueQueryTimeout)
	defer cancel()

	match, err := engine.Confirm(ctx, matchID, submissionID, user.ID)
	if err != nil {
		writeScoreError(w, r, err, "Failed to confirm score")
		return
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{"match": match})
}

// POST /api/season-matches/{id}/scores/{submission_id}/dispute
func HandleScoreDispute(w http.ResponseWriter, r *http.Request) {
	user, matchID, ok := scoreCaller(w, r)
	if !ok {
		return
	}

	submissionID, err := apiutil.PathID(r, submissionPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req disputeRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "reason", Reason: "is required"}, "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), leagueQueryTimeout)
	defer cancel()

	disputed, err := engine.Dispute(ctx, matchID, submissionID, user.ID, reason)
	if err != nil {
		writeScoreError(w, r, err, "Failed to dispute score")
		return
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{"submission": disputed})
}

// POST /api/season-matches/{id}/scores/resolve
func HandleScoreResolve(w http.ResponseWriter, r *http.Request) {
	user, matchID, ok := scoreCaller(w, r)
	if !ok {
		return
	}

	var req scoreRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), leagueQueryTimeout)
	defer cancel()

	match, err := engine.Resolve(ctx, matchID, user.ID, scoring.Scores{Home: *req.HomeScore, Away: *req.AwayScore})
	if err != nil {
		writeScoreError(w, r, err, "Failed to resolve score")
		return
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{"match": match})
}

// scoreCaller runs the checks shared by the score workflow endpoints.
func scoreCaller(w http.ResponseWriter, r *http.Request) (*authz.AuthUser, int64, bool) {
	if engine == nil {
		log.Ctx(r.Context()).Error().Msg("Score engine not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return nil, 0, false
	}

	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return nil, 0, false
	}

	matchID, err := apiutil.PathID(r, seasonMatchPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, 0, false
	}
	return user, matchID, true
}

// loadSeasonMatch loads {id} for a caller who can see its league.
func loadSeasonMatch(w http.ResponseWriter, r *http.Request, ctx context.Context) (dbq.SeasonMatch, bool) {
	matchID, err := apiutil.PathID(r, seasonMatchPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return dbq.SeasonMatch{}, false
	}

	match, err := queries.GetSeasonMatch(ctx, matchID)
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to load match")
		return dbq.SeasonMatch{}, false
	}

	if !apiutil.RequireAccess(w, r, authz.RequireLeagueMember(ctx, queries, match.LeagueID), "season_match", matchID) {
		return dbq.SeasonMatch{}, false
	}
	return match, true
}

func writeScoreError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, scoring.ErrNotTeamAdmin),
		errors.Is(err, scoring.ErrNotLeagueAdmin),
		errors.Is(err, scoring.ErrOwnSubmission):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, scoring.ErrPendingSubmission),
		errors.Is(err, scoring.ErrAlreadyConfirmed),
		errors.Is(err, scoring.ErrNotPending),
		errors.Is(err, leaguerules.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, scoring.ErrSubmissionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		apiutil.WriteError(w, r, err, fallback)
	}
}

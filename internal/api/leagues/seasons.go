package leagues

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/codr1/grudge/internal/api/apiutil"
	appdb "github.com/codr1/grudge/internal/db"
	"github.com/codr1/grudge/internal/db/dbq"
	leaguerules "github.com/codr1/grudge/internal/leagues"
	"github.com/codr1/grudge/internal/notify"
)

const (
	seasonIDPathKey = "season_id"
	matchIDPathKey  = "match_id"
)

type seasonRequest struct {
	Name             string  `json:"name" validate:"required,max=80"`
	StartsOn         string  `json:"startsOn" validate:"required"`
	EndsOn           string  `json:"endsOn" validate:"required"`
	DoubleRoundRobin bool    `json:"doubleRoundRobin"`
	Status           *string `json:"status" validate:"omitempty,oneof=draft active completed"`
}

type rescheduleRequest struct {
	ScheduledAt string  `json:"scheduledAt" validate:"required"`
	Location    *string `json:"location" validate:"omitempty,max=120"`
}

// GET /api/leagues/{id}/seasons
func HandleSeasonsList(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), leagueQueryTimeout)
	defer cancel()

	league, ok := loadLeague(w, r, ctx, false)
	if !ok {
		return
	}

	seasons, err := queries.ListSeasons(ctx, league.ID)
	if err != nil {
		logger.Error().Err(err).Int64("league_id", league.ID).Msg("Failed to list seasons")
		http.Error(w, "Failed to list seasons", http.StatusInternalServerError)
		return
	}
	if seasons == nil {
		seasons = []dbq.Season{}
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{"seasons": seasons})
}

// POST /api/leagues/{id}/seasons
func HandleSeasonCreate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req seasonRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}
	startsOn, endsOn, err := parseSeasonDates(req)
	if err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), leagueQueryTimeout)
	defer cancel()

	league, ok := loadLeague(w, r, ctx, true)
	if !ok {
		return
	}

	created, err := queries.CreateSeason(ctx, dbq.CreateSeasonParams{
		LeagueID:         league.ID,
		Name:             strings.TrimSpace(req.Name),
		StartsOn:         startsOn,
		EndsOn:           endsOn,
		DoubleRoundRobin: req.DoubleRoundRobin,
	})
	if err != nil {
		logger.Error().Err(err).Int64("league_id", league.ID).Msg("Failed to create season")
		http.Error(w, "Failed to create season", http.StatusInternalServerError)
		return
	}

	logger.Info().Int64("league_id", league.ID).Int64("season_id", created.ID).Msg("Season created")
	apiutil.Respond(w, r, http.StatusCreated, map[string]any{"season": created})
}

// GET /api/leagues/{id}/seasons/{season_id}
func HandleSeasonGet(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), leagueQueryTimeout)
	defer cancel()

	_, season, ok := loadSeason(w, r, ctx, false)
	if !ok {
		return
	}

	total, err := queries.CountSeasonMatches(ctx, season.ID)
	if err != nil {
		logger.Error().Err(err).Int64("season_id", season.ID).Msg("Failed to count season matches")
		http.Error(w, "Failed to load season", http.StatusInternalServerError)
		return
	}
	confirmed, err := queries.CountConfirmedSeasonMatches(ctx, season.ID)
	if err != nil {
		logger.Error().Err(err).Int64("season_id", season.ID).Msg("Failed to count confirmed matches")
		http.Error(w, "Failed to load season", http.StatusInternalServerError)
		return
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{
		"season":           season,
		"matchCount":       total,
		"confirmedMatches": confirmed,
	})
}

// PUT /api/leagues/{id}/seasons/{season_id}
func HandleSeasonUpdate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req seasonRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}
	startsOn, endsOn, err := parseSeasonDates(req)
	if err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), leagueQueryTimeout)
	defer cancel()

	_, season, ok := loadSeason(w, r, ctx, true)
	if !ok {
		return
	}

	status := season.Status
	if req.Status != nil {
		status = *req.Status
	}

	updated, err := queries.UpdateSeason(ctx, dbq.UpdateSeasonParams{
		ID:               season.ID,
		Name:             strings.TrimSpace(req.Name),
		StartsOn:         startsOn,
		EndsOn:           endsOn,
		Status:           status,
		DoubleRoundRobin: req.DoubleRoundRobin,
	})
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to update season")
		return
	}

	logger.Info().Int64("season_id", season.ID).Str("status", updated.Status).Msg("Season updated")
	apiutil.Respond(w, r, http.StatusOK, map[string]any{"season": updated})
}

// DELETE /api/leagues/{id}/seasons/{season_id}
func HandleSeasonDelete(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), leagueQueryTimeout)
	defer cancel()

	_, season, ok := loadSeason(w, r, ctx, true)
	if !ok {
		return
	}

	if err := queries.DeleteSeason(ctx, season.ID); err != nil {
		apiutil.WriteError(w, r, err, "Failed to delete season")
		return
	}

	logger.Info().Int64("season_id", season.ID).Msg("Season deleted")
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/leagues/{id}/seasons/{season_id}/matches
func HandleSeasonMatchesList(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), leagueQueryTimeout)
	defer cancel()

	_, season, ok := loadSeason(w, r, ctx, false)
	if !ok {
		return
	}

	matches, err := queries.ListSeasonMatches(ctx, season.ID)
	if err != nil {
		logger.Error().Err(err).Int64("season_id", season.ID).Msg("Failed to list season matches")
		http.Error(w, "Failed to list matches", http.StatusInternalServerError)
		return
	}
	if matches == nil {
		matches = []dbq.SeasonMatch{}
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{"matches": matches})
}

// PUT /api/leagues/{id}/seasons/{season_id}/matches/{match_id}/schedule
func HandleSeasonMatchReschedule(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if database == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	matchID, err := apiutil.PathID(r, matchIDPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req rescheduleRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}
	scheduledAt, err := apiutil.ParseTimestamp(req.ScheduledAt, "scheduledAt")
	if err != nil {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "scheduledAt", Reason: "must be an RFC 3339 timestamp"}, "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), leagueQueryTimeout)
	defer cancel()

	_, season, ok := loadSeason(w, r, ctx, true)
	if !ok {
		return
	}

	var (
		updated dbq.SeasonMatch
		pending notify.Pending
	)
	err = database.RunInTx(ctx, func(txdb *appdb.DB) error {
		qtx := txdb.Queries

		match, err := qtx.GetSeasonMatch(ctx, matchID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apiutil.NotFound("Match not found")
			}
			return apiutil.Internal("Failed to load match", err)
		}
		if match.SeasonID != season.ID {
			return apiutil.NotFound("Match not found")
		}
		if match.Status == dbq.SeasonMatchConfirmed {
			return apiutil.Conflict("Confirmed matches cannot be rescheduled")
		}

		location := match.Location
		if req.Location != nil {
			location = strings.TrimSpace(*req.Location)
		}
		updated, err = qtx.UpdateSeasonMatchSchedule(ctx, match.ID, scheduledAt, location)
		if err != nil {
			return apiutil.Internal("Failed to reschedule match", err)
		}

		recipients, err := seasonMatchMemberIDs(ctx, qtx, updated)
		if err != nil {
			return apiutil.Internal("Failed to load team members", err)
		}
		notice := notify.Notice{
			Kind:  notify.KindMatchRescheduled,
			Title: "Match rescheduled",
			Body: fmt.Sprintf("%s vs %s now starts %s at %s.",
				updated.HomeTeamName, updated.AwayTeamName, scheduledAt.Format("Mon Jan 2 15:04 MST"), describeLocation(location)),
			Link: fmt.Sprintf("/leagues/%d/seasons/%d/matches/%d", season.LeagueID, season.ID, updated.ID),
		}
		if err := notifier.Add(ctx, qtx, &pending, recipients, user.ID, notice); err != nil {
			return apiutil.Internal("Failed to notify teams", err)
		}
		return nil
	})
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to reschedule match")
		return
	}

	notified := pending.Len()
	notifier.Flush(ctx, &pending)

	logger.Info().
		Int64("season_match_id", updated.ID).
		Time("scheduled_at", scheduledAt).
		Int("notified", notified).
		Msg("Season match rescheduled")
	apiutil.Respond(w, r, http.StatusOK, map[string]any{"match": updated})
}

// GET /api/leagues/{id}/seasons/{season_id}/standings
func HandleSeasonStandings(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), leagueQueryTimeout)
	defer cancel()

	league, season, ok := loadSeason(w, r, ctx, false)
	if !ok {
		return
	}

	table, err := leaguerules.SeasonTable(ctx, queries, season)
	if err != nil {
		logger.Error().Err(err).Int64("season_id", season.ID).Msg("Failed to calculate standings")
		http.Error(w, "Failed to calculate standings", http.StatusInternalServerError)
		return
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{
		"season":    season,
		"rules":     map[string]int64{"win": league.PointsWin, "draw": league.PointsDraw, "loss": league.PointsLoss},
		"standings": table,
	})
}

// loadSeason resolves {id} and {season_id}. A season from another league is
// reported as not found.
func loadSeason(w http.ResponseWriter, r *http.Request, ctx context.Context, admin bool) (dbq.League, dbq.Season, bool) {
	seasonID, err := apiutil.PathID(r, seasonIDPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return dbq.League{}, dbq.Season{}, false
	}

	league, ok := loadLeague(w, r, ctx, admin)
	if !ok {
		return dbq.League{}, dbq.Season{}, false
	}

	season, err := queries.GetSeason(ctx, seasonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Season not found", http.StatusNotFound)
			return dbq.League{}, dbq.Season{}, false
		}
		apiutil.WriteError(w, r, err, "Failed to load season")
		return dbq.League{}, dbq.Season{}, false
	}
	if season.LeagueID != league.ID {
		http.Error(w, "Season not found", http.StatusNotFound)
		return dbq.League{}, dbq.Season{}, false
	}
	return league, season, true
}

func parseSeasonDates(req seasonRequest) (string, string, error) {
	startsOn, err := apiutil.ParseDate(req.StartsOn, "startsOn")
	if err != nil {
		return "", "", apiutil.FieldError{Field: "startsOn", Reason: "must be a date (YYYY-MM-DD)"}
	}
	endsOn, err := apiutil.ParseDate(req.EndsOn, "endsOn")
	if err != nil {
		return "", "", apiutil.FieldError{Field: "endsOn", Reason: "must be a date (YYYY-MM-DD)"}
	}
	if endsOn.Before(startsOn) {
		return "", "", apiutil.FieldError{Field: "endsOn", Reason: "must be on or after startsOn"}
	}
	return startsOn.Format(apiutil.DateLayout), endsOn.Format(apiutil.DateLayout), nil
}

func seasonMatchMemberIDs(ctx context.Context, q *dbq.Queries, match dbq.SeasonMatch) ([]int64, error) {
	home, err := q.ListTeamMemberIDs(ctx, match.HomeTeamID)
	if err != nil {
		return nil, err
	}
	away, err := q.ListTeamMemberIDs(ctx, match.AwayTeamID)
	if err != nil {
		return nil, err
	}
	return append(home, away...), nil
}

func describeLocation(location string) string {
	if location == "" {
		return "a location to be confirmed"
	}
	return location
}

package leagues

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/grudge/internal/api/apiutil"
	appdb "github.com/codr1/grudge/internal/db"
	"github.com/codr1/grudge/internal/db/dbq"
	leaguerules "github.com/codr1/grudge/internal/leagues"
)

const (
	defaultMatchDuration = time.Hour
	defaultFields        = 1
)

// POST /api/leagues/{id}/seasons/{season_id}/generate-schedule
func HandleGenerateSchedule(w http.ResponseWriter, r *http.Request) {
	handleScheduleGeneration(w, r, false)
}

// POST /api/leagues/{id}/seasons/{season_id}/regenerate-schedule
func HandleRegenerateSchedule(w http.ResponseWriter, r *http.Request) {
	handleScheduleGeneration(w, r, true)
}

type scheduleRequest struct {
	Weekdays             []string `json:"weekdays" validate:"required,min=1,max=7"`
	KickoffTimes         []string `json:"kickoffTimes" validate:"required,min=1,max=24"`
	Fields               int      `json:"fields" validate:"omitempty,gte=1,lte=64"`
	MatchDurationMinutes int      `json:"matchDurationMinutes" validate:"omitempty,gte=1,lte=1440"`
	DoubleRoundRobin     *bool    `json:"doubleRoundRobin"`
	Location             string   `json:"location" validate:"max=120"`
}

func handleScheduleGeneration(w http.ResponseWriter, r *http.Request, regenerate bool) {
	logger := log.Ctx(r.Context())

	if database == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req scheduleRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}
	weekdays, err := leaguerules.ParseWeekdays(req.Weekdays)
	if err != nil {
		http.Error(w, scheduleErrorMessage(err), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), leagueQueryTimeout)
	defer cancel()

	_, season, ok := loadSeason(w, r, ctx, true)
	if !ok {
		return
	}

	startDate, err := time.Parse(apiutil.DateLayout, season.StartsOn)
	if err != nil {
		logger.Error().Err(err).Int64("season_id", season.ID).Msg("Season has an invalid start date")
		http.Error(w, "Season has an invalid start date", http.StatusInternalServerError)
		return
	}
	endDate, err := time.Parse(apiutil.DateLayout, season.EndsOn)
	if err != nil {
		logger.Error().Err(err).Int64("season_id", season.ID).Msg("Season has an invalid end date")
		http.Error(w, "Season has an invalid end date", http.StatusInternalServerError)
		return
	}

	opts := leaguerules.ScheduleOptions{
		StartDate:        startDate,
		EndDate:          endDate,
		Weekdays:         weekdays,
		KickoffTimes:     req.KickoffTimes,
		Fields:           defaultFields,
		MatchDuration:    defaultMatchDuration,
		DoubleRoundRobin: season.DoubleRoundRobin,
		Location:         req.Location,
	}
	if req.Fields > 0 {
		opts.Fields = req.Fields
	}
	if req.MatchDurationMinutes > 0 {
		opts.MatchDuration = time.Duration(req.MatchDurationMinutes) * time.Minute
	}
	if req.DoubleRoundRobin != nil {
		opts.DoubleRoundRobin = *req.DoubleRoundRobin
	}

	var (
		created []dbq.SeasonMatch
		removed int64
	)
	err = database.RunInTx(ctx, func(txdb *appdb.DB) error {
		qtx := txdb.Queries

		existing, err := qtx.CountSeasonMatches(ctx, season.ID)
		if err != nil {
			return apiutil.Internal("Failed to check existing schedule", err)
		}
		if existing > 0 && !regenerate {
			return apiutil.Conflict("Schedule already exists for this season")
		}
		if existing > 0 {
			confirmed, err := qtx.CountConfirmedSeasonMatches(ctx, season.ID)
			if err != nil {
				return apiutil.Internal("Failed to check confirmed matches", err)
			}
			if confirmed > 0 {
				return apiutil.Conflict("Schedule cannot be regenerated after a score is confirmed")
			}
		}

		teams, err := qtx.ListLeagueTeams(ctx, season.LeagueID)
		if err != nil {
			return apiutil.Internal("Failed to load league teams", err)
		}
		teamIDs := make([]int64, 0, len(teams))
		for _, team := range teams {
			teamIDs = append(teamIDs, team.TeamID)
		}

		schedule, err := leaguerules.GenerateRoundRobinSchedule(teamIDs, opts)
		if err != nil {
			if errors.Is(err, leaguerules.ErrInvalidSchedule) {
				return apiutil.BadRequest(scheduleErrorMessage(err))
			}
			return apiutil.Internal("Failed to generate schedule", err)
		}

		if existing > 0 {
			removed, err = qtx.DeleteSeasonMatches(ctx, season.ID)
			if err != nil {
				return apiutil.Internal("Failed to delete season matches", err)
			}
		}

		for _, match := range schedule {
			startTime := match.StartTime
			if _, err := qtx.CreateSeasonMatch(ctx, dbq.CreateSeasonMatchParams{
				SeasonID:    season.ID,
				Round:       int64(match.Round),
				HomeTeamID:  match.HomeTeamID,
				AwayTeamID:  match.AwayTeamID,
				ScheduledAt: &startTime,
				Location:    match.Location,
			}); err != nil {
				return apiutil.Internal("Failed to create season match", err)
			}
		}

		created, err = qtx.ListSeasonMatches(ctx, season.ID)
		if err != nil {
			return apiutil.Internal("Failed to load season matches", err)
		}
		return nil
	})
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to generate schedule")
		return
	}

	logger.Info().
		Int64("season_id", season.ID).
		Bool("regenerate", regenerate).
		Int("matches", len(created)).
		Int64("removed", removed).
		Msg("Season schedule generated")
	apiutil.Respond(w, r, http.StatusCreated, map[string]any{"matches": created})
}

// scheduleErrorMessage strips the sentinel prefix so clients see only the
// reason, e.g. "insufficient match dates: need 5 rounds but only 3 dates available".
func scheduleErrorMessage(err error) string {
	msg := err.Error()
	if trimmed, ok := strings.CutPrefix(msg, leaguerules.ErrInvalidSchedule.Error()+": "); ok {
		return trimmed
	}
	return msg
}

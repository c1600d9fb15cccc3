// internal/api/leagues/handlers.go
package leagues

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
	leaguerules "github.com/codr1/grudge/internal/leagues"
	"github.com/codr1/grudge/internal/notify"
	"github.com/codr1/grudge/internal/scoring"
)

const (
	leagueQueryTimeout = 5 * time.Second
	leagueIDPathKey    = "id"
	teamIDPathKey      = "team_id"
	userIDPathKey      = "user_id"
)

var (
	queries  *dbq.Queries
	database *appdb.DB
	notifier *notify.Service
	engine   *scoring.Engine
)

type leagueRequest struct {
	Name        string `json:"name" validate:"required,max=80"`
	Sport       string `json:"sport" validate:"max=40"`
	Description string `json:"description" validate:"max=1000"`
	PointsWin   *int64 `json:"pointsWin" validate:"omitempty,gte=0,lte=100"`
	PointsDraw  *int64 `json:"pointsDraw" validate:"omitempty,gte=0,lte=100"`
	PointsLoss  *int64 `json:"pointsLoss" validate:"omitempty,gte=0,lte=100"`
}

type leagueTeamRequest struct {
	TeamID int64 `json:"teamId" validate:"required,gt=0"`
}

type leagueAdminRequest struct {
	UserID int64 `json:"userId" validate:"required,gt=0"`
}

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(db *appdb.DB, n *notify.Service, e *scoring.Engine) {
	if db != nil {
		database = db
		queries = db.Queries
	}
	notifier = n
	engine = e
}

// GET /api/leagues
func HandleLeaguesList(w http.ResponseWriter, r *http.Request) {
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

	list, err := queries.ListLeaguesForUser(ctx, user.ID)
	if err != nil {
		logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to list leagues")
		http.Error(w, "Failed to list leagues", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []dbq.League{}
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{"leagues": list})
}

// POST /api/leagues
func HandleLeagueCreate(w http.ResponseWriter, r *http.Request) {
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

	var req leagueRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}
	rules, err := pointRules(req, leaguerules.DefaultPointRules)
	if err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), leagueQueryTimeout)
	defer cancel()

	var created dbq.League
	err = database.RunInTx(ctx, func(txdb *appdb.DB) error {
		var err error
		created, err = txdb.Queries.CreateLeague(ctx, dbq.CreateLeagueParams{
			Name:        strings.TrimSpace(req.Name),
			Sport:       strings.TrimSpace(req.Sport),
			Description: strings.TrimSpace(req.Description),
			CreatedBy:   user.ID,
			PointsWin:   int64(rules.Win),
			PointsDraw:  int64(rules.Draw),
			PointsLoss:  int64(rules.Loss),
		})
		if err != nil {
			return apiutil.Internal("Failed to create league", err)
		}
		if err := txdb.Queries.AddLeagueAdmin(ctx, created.ID, user.ID); err != nil {
			return apiutil.Internal("Failed to add league admin", err)
		}
		return nil
	})
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to create league")
		return
	}

	logger.Info().Int64("league_id", created.ID).Int64("user_id", user.ID).Msg("League created")
	apiutil.Respond(w, r, http.StatusCreated, map[string]any{"league": created})
}

// GET /api/leagues/{id}
func HandleLeagueGet(w http.ResponseWriter, r *http.Request) {
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

	league, ok := loadLeague(w, r, ctx, false)
	if !ok {
		return
	}

	isAdmin, err := queries.IsLeagueAdmin(ctx, league.ID, user.ID)
	if err != nil {
		logger.Error().Err(err).Int64("league_id", league.ID).Msg("Failed to check league admin")
		http.Error(w, "Failed to load league", http.StatusInternalServerError)
		return
	}
	teams, err := queries.ListLeagueTeams(ctx, league.ID)
	if err != nil {
		logger.Error().Err(err).Int64("league_id", league.ID).Msg("Failed to load league teams")
		http.Error(w, "Failed to load league", http.StatusInternalServerError)
		return
	}
	admins, err := queries.ListLeagueAdmins(ctx, league.ID)
	if err != nil {
		logger.Error().Err(err).Int64("league_id", league.ID).Msg("Failed to load league admins")
		http.Error(w, "Failed to load league", http.StatusInternalServerError)
		return
	}
	if teams == nil {
		teams = []dbq.LeagueTeam{}
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{
		"league":  league,
		"isAdmin": isAdmin,
		"teams":   teams,
		"admins":  admins,
	})
}

// PUT /api/leagues/{id}
func HandleLeagueUpdate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req leagueRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), leagueQueryTimeout)
	defer cancel()

	league, ok := loadLeague(w, r, ctx, true)
	if !ok {
		return
	}

	rules, err := pointRules(req, leaguerules.RulesFor(league))
	if err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}

	updated, err := queries.UpdateLeague(ctx, dbq.UpdateLeagueParams{
		ID:          league.ID,
		Name:        strings.TrimSpace(req.Name),
		Sport:       strings.TrimSpace(req.Sport),
		Description: strings.TrimSpace(req.Description),
		PointsWin:   int64(rules.Win),
		PointsDraw:  int64(rules.Draw),
		PointsLoss:  int64(rules.Loss),
	})
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to update league")
		return
	}

	logger.Info().Int64("league_id", league.ID).Msg("League updated")
	apiutil.Respond(w, r, http.StatusOK, map[string]any{"league": updated})
}

// DELETE /api/leagues/{id}
func HandleLeagueDelete(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), leagueQueryTimeout)
	defer cancel()

	league, ok := loadLeague(w, r, ctx, true)
	if !ok {
		return
	}

	if err := queries.DeleteLeague(ctx, league.ID); err != nil {
		apiutil.WriteError(w, r, err, "Failed to delete league")
		return
	}

	logger.Info().Int64("league_id", league.ID).Msg("League deleted")
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/leagues/{id}/teams
func HandleLeagueTeamsList(w http.ResponseWriter, r *http.Request) {
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

	teams, err := queries.ListLeagueTeams(ctx, league.ID)
	if err != nil {
		logger.Error().Err(err).Int64("league_id", league.ID).Msg("Failed to load league teams")
		http.Error(w, "Failed to load league teams", http.StatusInternalServerError)
		return
	}
	if teams == nil {
		teams = []dbq.LeagueTeam{}
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{"teams": teams})
}

// POST /api/leagues/{id}/teams
func HandleLeagueTeamAdd(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req leagueTeamRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), leagueQueryTimeout)
	defer cancel()

	league, ok := loadLeague(w, r, ctx, true)
	if !ok {
		return
	}

	if _, err := queries.GetTeam(ctx, req.TeamID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Team not found", http.StatusNotFound)
			return
		}
		apiutil.WriteError(w, r, err, "Failed to load team")
		return
	}

	if err := queries.AddLeagueTeam(ctx, league.ID, req.TeamID); err != nil {
		logger.Error().Err(err).Int64("league_id", league.ID).Int64("team_id", req.TeamID).Msg("Failed to add league team")
		http.Error(w, "Failed to add team", http.StatusInternalServerError)
		return
	}

	teams, err := queries.ListLeagueTeams(ctx, league.ID)
	if err != nil {
		logger.Error().Err(err).Int64("league_id", league.ID).Msg("Failed to load league teams")
		http.Error(w, "Failed to load league teams", http.StatusInternalServerError)
		return
	}

	logger.Info().Int64("league_id", league.ID).Int64("team_id", req.TeamID).Msg("Team added to league")
	apiutil.Respond(w, r, http.StatusCreated, map[string]any{"teams": teams})
}

// DELETE /api/leagues/{id}/teams/{team_id}
func HandleLeagueTeamRemove(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if database == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	teamID, err := apiutil.PathID(r, teamIDPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), leagueQueryTimeout)
	defer cancel()

	league, ok := loadLeague(w, r, ctx, true)
	if !ok {
		return
	}

	err = database.RunInTx(ctx, func(txdb *appdb.DB) error {
		qtx := txdb.Queries
		played, err := qtx.CountLeagueSeasonMatchesForTeam(ctx, league.ID, teamID)
		if err != nil {
			return apiutil.Internal("Failed to check season matches", err)
		}
		if played > 0 {
			return apiutil.Conflict("Team has season matches in this league")
		}
		if err := qtx.RemoveLeagueTeam(ctx, league.ID, teamID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apiutil.NotFound("Team is not in this league")
			}
			return apiutil.Internal("Failed to remove team", err)
		}
		return nil
	})
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to remove team")
		return
	}

	logger.Info().Int64("league_id", league.ID).Int64("team_id", teamID).Msg("Team removed from league")
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/leagues/{id}/admins
func HandleLeagueAdminsList(w http.ResponseWriter, r *http.Request) {
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

	admins, err := queries.ListLeagueAdmins(ctx, league.ID)
	if err != nil {
		logger.Error().Err(err).Int64("league_id", league.ID).Msg("Failed to load league admins")
		http.Error(w, "Failed to load league admins", http.StatusInternalServerError)
		return
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{"admins": admins})
}

// POST /api/leagues/{id}/admins
func HandleLeagueAdminAdd(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req leagueAdminRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), leagueQueryTimeout)
	defer cancel()

	league, ok := loadLeague(w, r, ctx, true)
	if !ok {
		return
	}

	if _, err := queries.GetUserByID(ctx, req.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		apiutil.WriteError(w, r, err, "Failed to load user")
		return
	}

	if err := queries.AddLeagueAdmin(ctx, league.ID, req.UserID); err != nil {
		logger.Error().Err(err).Int64("league_id", league.ID).Int64("user_id", req.UserID).Msg("Failed to add league admin")
		http.Error(w, "Failed to add admin", http.StatusInternalServerError)
		return
	}

	admins, err := queries.ListLeagueAdmins(ctx, league.ID)
	if err != nil {
		logger.Error().Err(err).Int64("league_id", league.ID).Msg("Failed to load league admins")
		http.Error(w, "Failed to load league admins", http.StatusInternalServerError)
		return
	}

	logger.Info().Int64("league_id", league.ID).Int64("user_id", req.UserID).Msg("League admin added")
	apiutil.Respond(w, r, http.StatusCreated, map[string]any{"admins": admins})
}

// DELETE /api/leagues/{id}/admins/{user_id}
func HandleLeagueAdminRemove(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	userID, err := apiutil.PathID(r, userIDPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), leagueQueryTimeout)
	defer cancel()

	league, ok := loadLeague(w, r, ctx, true)
	if !ok {
		return
	}
	if userID == league.CreatedBy {
		http.Error(w, "The league creator cannot be removed", http.StatusConflict)
		return
	}

	if err := queries.RemoveLeagueAdmin(ctx, league.ID, userID); err != nil {
		apiutil.WriteError(w, r, err, "Failed to remove admin")
		return
	}

	logger.Info().Int64("league_id", league.ID).Int64("user_id", userID).Msg("League admin removed")
	w.WriteHeader(http.StatusNoContent)
}

// loadLeague reads the {id} wildcard and checks that the caller may see the
// league, or administer it when admin is set.
func loadLeague(w http.ResponseWriter, r *http.Request, ctx context.Context, admin bool) (dbq.League, bool) {
	leagueID, err := apiutil.PathID(r, leagueIDPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return dbq.League{}, false
	}

	league, err := queries.GetLeague(ctx, leagueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "League not found", http.StatusNotFound)
			return dbq.League{}, false
		}
		apiutil.WriteError(w, r, err, "Failed to load league")
		return dbq.League{}, false
	}

	if admin {
		err = authz.RequireLeagueAdmin(ctx, queries, leagueID)
	} else {
		err = authz.RequireLeagueMember(ctx, queries, leagueID)
	}
	if !apiutil.RequireAccess(w, r, err, "league", leagueID) {
		return dbq.League{}, false
	}
	return league, true
}

// pointRules overlays the request's point values on base and validates them.
func pointRules(req leagueRequest, base leaguerules.PointRules) (leaguerules.PointRules, error) {
	rules := base
	if req.PointsWin != nil {
		rules.Win = int(*req.PointsWin)
	}
	if req.PointsDraw != nil {
		rules.Draw = int(*req.PointsDraw)
	}
	if req.PointsLoss != nil {
		rules.Loss = int(*req.PointsLoss)
	}
	if err := leaguerules.ValidateRules(rules); err != nil {
		return rules, apiutil.BadRequest(err.Error())
	}
	return rules, nil
}

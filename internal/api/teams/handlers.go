// internal/api/teams/handlers.go
package teams

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/codr1/grudge/internal/api/apiutil"
	"github.com/codr1/grudge/internal/api/authz"
	"github.com/codr1/grudge/internal/config"
	appdb "github.com/codr1/grudge/internal/db"
	"github.com/codr1/grudge/internal/db/dbq"
	"github.com/codr1/grudge/internal/notify"
	"github.com/codr1/grudge/internal/ratelimit"
)

const (
	teamQueryTimeout = 5 * time.Second
	teamIDPathKey    = "id"
	userIDPathKey    = "user_id"
	inviteCodeLength = 8
)

var (
	queries   *dbq.Queries
	database  *appdb.DB
	notifier  *notify.Service
	limiter   *ratelimit.Limiter
	appConfig *config.Config
)

type teamRequest struct {
	Name  string `json:"name" validate:"required,max=80"`
	Sport string `json:"sport" validate:"max=40"`
	City  string `json:"city" validate:"max=80"`
}

type joinRequest struct {
	InviteCode string `json:"inviteCode" validate:"required,max=32"`
}

type addMemberRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"omitempty,oneof=admin player"`
}

type updateMemberRequest struct {
	Role         *string `json:"role" validate:"omitempty,oneof=admin player"`
	JerseyNumber *int64  `json:"jerseyNumber" validate:"omitempty,gte=0,max=999"`
	Position     *string `json:"position" validate:"omitempty,max=40"`
}

// teamView hides the invite code from players.
type teamView struct {
	dbq.Team
	Role    string `json:"role"`
	IsAdmin bool   `json:"isAdmin"`
}

func newTeamView(team dbq.Team, role string) teamView {
	v := teamView{Team: team, Role: role, IsAdmin: role == dbq.RoleAdmin}
	if !v.IsAdmin {
		v.InviteCode = ""
	}
	return v
}

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(db *appdb.DB, n *notify.Service, l *ratelimit.Limiter, cfg *config.Config) {
	if db != nil {
		database = db
		queries = db.Queries
	}
	notifier = n
	limiter = l
	appConfig = cfg
}

// GET /api/teams
func HandleTeamsList(w http.ResponseWriter, r *http.Request) {
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

	ctx, cancel := context.WithTimeout(r.Context(), teamQueryTimeout)
	defer cancel()

	rows, err := queries.ListTeamsForUser(ctx, user.ID)
	if err != nil {
		logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to list teams")
		http.Error(w, "Failed to list teams", http.StatusInternalServerError)
		return
	}

	teams := make([]teamView, 0, len(rows))
	for _, row := range rows {
		teams = append(teams, newTeamView(row.Team, row.Role))
	}
	apiutil.Respond(w, r, http.StatusOK, map[string]any{"teams": teams})
}

// POST /api/teams
func HandleTeamCreate(w http.ResponseWriter, r *http.Request) {
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

	var req teamRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), teamQueryTimeout)
	defer cancel()

	var created dbq.Team
	err := database.RunInTx(ctx, func(txdb *appdb.DB) error {
		var err error
		created, err = txdb.Queries.CreateTeam(ctx, dbq.CreateTeamParams{
			Name:       strings.TrimSpace(req.Name),
			Sport:      strings.TrimSpace(req.Sport),
			City:       strings.TrimSpace(req.City),
			InviteCode: NewInviteCode(),
			CreatedBy:  user.ID,
		})
		if err != nil {
			return apiutil.Internal("Failed to create team", err)
		}
		if err := txdb.Queries.AddTeamMember(ctx, dbq.AddTeamMemberParams{
			TeamID: created.ID,
			UserID: user.ID,
			Role:   dbq.RoleAdmin,
		}); err != nil {
			return apiutil.Internal("Failed to create team", err)
		}
		return nil
	})
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to create team")
		return
	}

	logger.Info().Int64("team_id", created.ID).Int64("user_id", user.ID).Msg("Team created")
	apiutil.Respond(w, r, http.StatusCreated, map[string]any{"team": newTeamView(created, dbq.RoleAdmin)})
}

// GET /api/teams/{id}
func HandleTeamGet(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	teamID, err := apiutil.PathID(r, teamIDPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), teamQueryTimeout)
	defer cancel()

	member, err := authz.RequireTeamMember(ctx, queries, teamID)
	if !apiutil.RequireAccess(w, r, err, "team", teamID) {
		return
	}

	team, err := queries.GetTeam(ctx, teamID)
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to load team")
		return
	}
	members, err := queries.ListTeamMembers(ctx, teamID)
	if err != nil {
		logger.Error().Err(err).Int64("team_id", teamID).Msg("Failed to list team members")
		http.Error(w, "Failed to load team", http.StatusInternalServerError)
		return
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{
		"team":    newTeamView(team, member.Role),
		"members": members,
	})
}

// PUT /api/teams/{id}
func HandleTeamUpdate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	teamID, err := apiutil.PathID(r, teamIDPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req teamRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), teamQueryTimeout)
	defer cancel()

	if !apiutil.RequireAccess(w, r, authz.RequireTeamAdmin(ctx, queries, teamID), "team", teamID) {
		return
	}

	updated, err := queries.UpdateTeam(ctx, dbq.UpdateTeamParams{
		ID:    teamID,
		Name:  strings.TrimSpace(req.Name),
		Sport: strings.TrimSpace(req.Sport),
		City:  strings.TrimSpace(req.City),
	})
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to update team")
		return
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{"team": newTeamView(updated, dbq.RoleAdmin)})
}

// DELETE /api/teams/{id}
func HandleTeamDelete(w http.ResponseWriter, r *http.Request) {
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

	ctx, cancel := context.WithTimeout(r.Context(), teamQueryTimeout)
	defer cancel()

	if !apiutil.RequireAccess(w, r, authz.RequireTeamAdmin(ctx, queries, teamID), "team", teamID) {
		return
	}

	err = database.RunInTx(ctx, func(txdb *appdb.DB) error {
		active, err := txdb.Queries.CountActiveTournamentEntries(ctx, teamID)
		if err != nil {
			return err
		}
		// Deleting would clear bracket slots and stall the tournament.
		if active > 0 {
			return apiutil.Conflict("Team is playing in an unfinished tournament")
		}
		return txdb.Queries.DeleteTeam(ctx, teamID)
	})
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to delete team")
		return
	}

	logger.Info().Int64("team_id", teamID).Msg("Team deleted")
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/teams/join
func HandleTeamJoin(w http.ResponseWriter, r *http.Request) {
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

	var req joinRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}

	identifier := fmt.Sprintf("user:%d", user.ID)
	ip := ratelimit.GetClientIP(r, appConfig != nil && appConfig.App.TrustProxy)
	if limiter != nil {
		if result := limiter.CheckJoin(identifier, ip); !result.Allowed {
			ratelimit.LogRateLimitExceeded("join", identifier, ip, result.Reason)
			apiutil.TooManyRequests(w, result.RetryAfter, "Too many invalid invite codes. Try again later.")
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), teamQueryTimeout)
	defer cancel()

	team, err := queries.GetTeamByInviteCode(ctx, normalizeInviteCode(req.InviteCode))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if limiter != nil {
				limiter.RecordJoinFailure(identifier, ip)
			}
			http.Error(w, "Invalid invite code", http.StatusNotFound)
			return
		}
		logger.Error().Err(err).Msg("Failed to look up invite code")
		http.Error(w, "Failed to join team", http.StatusInternalServerError)
		return
	}

	existing, err := queries.GetTeamMember(ctx, team.ID, user.ID)
	switch {
	case err == nil:
		apiutil.Respond(w, r, http.StatusOK, map[string]any{"team": newTeamView(team, existing.Role), "joined": false})
		return
	case !errors.Is(err, sql.ErrNoRows):
		logger.Error().Err(err).Int64("team_id", team.ID).Msg("Failed to check team membership")
		http.Error(w, "Failed to join team", http.StatusInternalServerError)
		return
	}

	if err := queries.AddTeamMember(ctx, dbq.AddTeamMemberParams{
		TeamID: team.ID,
		UserID: user.ID,
		Role:   dbq.RolePlayer,
	}); err != nil {
		logger.Error().Err(err).Int64("team_id", team.ID).Msg("Failed to add team member")
		http.Error(w, "Failed to join team", http.StatusInternalServerError)
		return
	}

	logger.Info().Int64("team_id", team.ID).Int64("user_id", user.ID).Msg("Joined team by invite code")
	apiutil.Respond(w, r, http.StatusOK, map[string]any{"team": newTeamView(team, dbq.RolePlayer), "joined": true})
}

// POST /api/teams/{id}/invite-code
func HandleInviteCodeRotate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	teamID, err := apiutil.PathID(r, teamIDPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), teamQueryTimeout)
	defer cancel()

	if !apiutil.RequireAccess(w, r, authz.RequireTeamAdmin(ctx, queries, teamID), "team", teamID) {
		return
	}

	updated, err := queries.UpdateTeamInviteCode(ctx, teamID, NewInviteCode())
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to rotate invite code")
		return
	}

	logger.Info().Int64("team_id", teamID).Msg("Invite code rotated")
	apiutil.Respond(w, r, http.StatusOK, map[string]any{"team": newTeamView(updated, dbq.RoleAdmin)})
}

// NewInviteCode returns an upper-case code derived from a random UUID.
func NewInviteCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:inviteCodeLength])
}

func normalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

package teams

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/codr1/grudge/internal/api/apiutil"
	"github.com/codr1/grudge/internal/api/authz"
	appdb "github.com/codr1/grudge/internal/db"
	"github.com/codr1/grudge/internal/db/dbq"
	"github.com/codr1/grudge/internal/notify"
)

var errLastAdmin = apiutil.Conflict("A team must keep at least one admin")

// GET /api/teams/{id}/members
func HandleMembersList(w http.ResponseWriter, r *http.Request) {
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

	_, err = authz.RequireTeamMember(ctx, queries, teamID)
	if !apiutil.RequireAccess(w, r, err, "team", teamID) {
		return
	}

	members, err := queries.ListTeamMembers(ctx, teamID)
	if err != nil {
		logger.Error().Err(err).Int64("team_id", teamID).Msg("Failed to list team members")
		http.Error(w, "Failed to list members", http.StatusInternalServerError)
		return
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{"members": members})
}

// POST /api/teams/{id}/members
func HandleMemberAdd(w http.ResponseWriter, r *http.Request) {
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

	var req addMemberRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}
	role := req.Role
	if role == "" {
		role = dbq.RolePlayer
	}

	ctx, cancel := context.WithTimeout(r.Context(), teamQueryTimeout)
	defer cancel()

	if !apiutil.RequireAccess(w, r, authz.RequireTeamAdmin(ctx, queries, teamID), "team", teamID) {
		return
	}
	actor := authz.UserFromContext(ctx)

	var (
		added   dbq.TeamMember
		pending notify.Pending
	)
	err = database.RunInTx(ctx, func(txdb *appdb.DB) error {
		qtx := txdb.Queries

		team, err := qtx.GetTeam(ctx, teamID)
		if err != nil {
			return err
		}
		target, err := qtx.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apiutil.NotFound("No account exists for that email")
			}
			return apiutil.Internal("Failed to look up user", err)
		}

		if _, err := qtx.GetTeamMember(ctx, teamID, target.ID); err == nil {
			return apiutil.Conflict("User is already on this team")
		} else if !errors.Is(err, sql.ErrNoRows) {
			return apiutil.Internal("Failed to check membership", err)
		}

		if err := qtx.AddTeamMember(ctx, dbq.AddTeamMemberParams{TeamID: teamID, UserID: target.ID, Role: role}); err != nil {
			return apiutil.Internal("Failed to add member", err)
		}
		added, err = qtx.GetTeamMember(ctx, teamID, target.ID)
		if err != nil {
			return apiutil.Internal("Failed to load member", err)
		}

		return notifier.Add(ctx, qtx, &pending, []int64{target.ID}, actor.ID, notify.Notice{
			Kind:  notify.KindTeamAdded,
			Title: fmt.Sprintf("You were added to %s", team.Name),
			Body:  fmt.Sprintf("You joined %s as %s.", team.Name, role),
			Link:  fmt.Sprintf("/teams/%d", teamID),
		})
	})
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to add member")
		return
	}
	notifier.Flush(ctx, &pending)

	logger.Info().Int64("team_id", teamID).Int64("member_id", added.UserID).Str("role", role).Msg("Team member added")
	apiutil.Respond(w, r, http.StatusCreated, map[string]any{"member": added})
}

// PATCH /api/teams/{id}/members/{user_id}
func HandleMemberUpdate(w http.ResponseWriter, r *http.Request) {
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
	memberID, err := apiutil.PathID(r, userIDPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req updateMemberRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), teamQueryTimeout)
	defer cancel()

	if !apiutil.RequireAccess(w, r, authz.RequireTeamAdmin(ctx, queries, teamID), "team", teamID) {
		return
	}

	var updated dbq.TeamMember
	err = database.RunInTx(ctx, func(txdb *appdb.DB) error {
		qtx := txdb.Queries

		current, err := qtx.GetTeamMember(ctx, teamID, memberID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apiutil.NotFound("Member not found")
			}
			return apiutil.Internal("Failed to load member", err)
		}

		params := dbq.UpdateTeamMemberParams{
			TeamID:       teamID,
			UserID:       memberID,
			Role:         current.Role,
			JerseyNumber: current.JerseyNumber,
			Position:     current.Position,
		}
		if req.Role != nil {
			params.Role = *req.Role
		}
		if req.JerseyNumber != nil {
			params.JerseyNumber = req.JerseyNumber
		}
		if req.Position != nil {
			params.Position = strings.TrimSpace(*req.Position)
		}

		if current.Role == dbq.RoleAdmin && params.Role != dbq.RoleAdmin {
			if err := ensureAnotherAdmin(ctx, qtx, teamID); err != nil {
				return err
			}
		}

		if err := qtx.UpdateTeamMember(ctx, params); err != nil {
			return apiutil.Internal("Failed to update member", err)
		}
		updated, err = qtx.GetTeamMember(ctx, teamID, memberID)
		if err != nil {
			return apiutil.Internal("Failed to load member", err)
		}
		return nil
	})
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to update member")
		return
	}

	logger.Info().Int64("team_id", teamID).Int64("member_id", memberID).Str("role", updated.Role).Msg("Team member updated")
	apiutil.Respond(w, r, http.StatusOK, map[string]any{"member": updated})
}

// DELETE /api/teams/{id}/members/{user_id}
//
// Admins may remove anyone; any member may remove themselves.
func HandleMemberRemove(w http.ResponseWriter, r *http.Request) {
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
	memberID, err := apiutil.PathID(r, userIDPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), teamQueryTimeout)
	defer cancel()

	caller, err := authz.RequireTeamMember(ctx, queries, teamID)
	if !apiutil.RequireAccess(w, r, err, "team", teamID) {
		return
	}
	if caller.UserID != memberID && caller.Role != dbq.RoleAdmin {
		apiutil.RequireAccess(w, r, authz.ErrForbidden, "team", teamID)
		return
	}

	err = database.RunInTx(ctx, func(txdb *appdb.DB) error {
		qtx := txdb.Queries

		target, err := qtx.GetTeamMember(ctx, teamID, memberID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apiutil.NotFound("Member not found")
			}
			return apiutil.Internal("Failed to load member", err)
		}
		if target.Role == dbq.RoleAdmin {
			if err := ensureAnotherAdmin(ctx, qtx, teamID); err != nil {
				return err
			}
		}
		if err := qtx.RemoveTeamMember(ctx, teamID, memberID); err != nil {
			return apiutil.Internal("Failed to remove member", err)
		}
		return nil
	})
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to remove member")
		return
	}

	logger.Info().Int64("team_id", teamID).Int64("member_id", memberID).Int64("removed_by", caller.UserID).Msg("Team member removed")
	w.WriteHeader(http.StatusNoContent)
}

func ensureAnotherAdmin(ctx context.Context, q *dbq.Queries, teamID int64) error {
	admins, err := q.CountTeamAdmins(ctx, teamID)
	if err != nil {
		return apiutil.Internal("Failed to count admins", err)
	}
	if admins <= 1 {
		return errLastAdmin
	}
	return nil
}

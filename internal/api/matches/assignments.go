package matches

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

const assignmentIDPathKey = "id"

type assignmentRequest struct {
	UserID   int64  `json:"userId" validate:"required,gt=0"`
	Position string `json:"position" validate:"max=40"`
}

type respondRequest struct {
	Status string `json:"status" validate:"required,oneof=confirmed declined"`
}

// GET /api/matches/{id}/assignments
func HandleAssignmentsList(w http.ResponseWriter, r *http.Request) {
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
	if _, err := authz.RequireTeamMember(ctx, queries, match.TeamID); !apiutil.RequireAccess(w, r, err, "match", matchID) {
		return
	}

	list, err := queries.ListAssignmentsForMatch(ctx, matchID)
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to list assignments")
		return
	}
	if list == nil {
		list = []dbq.Assignment{}
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{"assignments": list})
}

// POST /api/matches/{id}/assignments
func HandleAssignmentCreate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil || database == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	matchID, err := apiutil.PathID(r, matchIDPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req assignmentRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), matchQueryTimeout)
	defer cancel()

	match, ok := loadMatchAsAdmin(w, r, ctx, matchID)
	if !ok {
		return
	}
	actor := authz.UserFromContext(ctx)

	var (
		created dbq.Assignment
		pending notify.Pending
	)
	err = database.RunInTx(ctx, func(txdb *appdb.DB) error {
		qtx := txdb.Queries

		if match.Status != dbq.MatchScheduled {
			return apiutil.Conflict("Players can only be assigned to scheduled matches")
		}
		if _, err := qtx.GetTeamMember(ctx, match.TeamID, req.UserID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apiutil.BadRequest("User is not on this team")
			}
			return apiutil.Internal("Failed to check membership", err)
		}
		exists, err := qtx.AssignmentExists(ctx, matchID, req.UserID)
		if err != nil {
			return apiutil.Internal("Failed to check assignment", err)
		}
		if exists {
			return apiutil.Conflict("Player is already assigned to this match")
		}

		created, err = qtx.CreateAssignment(ctx, dbq.CreateAssignmentParams{
			MatchID:  matchID,
			UserID:   req.UserID,
			Position: strings.TrimSpace(req.Position),
		})
		if err != nil {
			return apiutil.Internal("Failed to create assignment", err)
		}

		body := fmt.Sprintf("%s vs %s on %s.", match.TeamName, match.OpponentName, match.StartsAt.Format("Mon Jan 2 15:04 MST"))
		if created.Position != "" {
			body = fmt.Sprintf("%s vs %s on %s, playing %s.", match.TeamName, match.OpponentName,
				match.StartsAt.Format("Mon Jan 2 15:04 MST"), created.Position)
		}
		return notifier.Add(ctx, qtx, &pending, []int64{req.UserID}, actor.ID, notify.Notice{
			Kind:  notify.KindAssignmentOffered,
			Title: fmt.Sprintf("You're in the lineup against %s", match.OpponentName),
			Body:  body,
			Link:  fmt.Sprintf("/matches/%d", matchID),
		})
	})
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to create assignment")
		return
	}
	notifier.Flush(ctx, &pending)

	logger.Info().Int64("match_id", matchID).Int64("assignment_id", created.ID).Int64("player_id", req.UserID).Msg("Player assigned")
	apiutil.Respond(w, r, http.StatusCreated, map[string]any{"assignment": created})
}

// DELETE /api/assignments/{id}
func HandleAssignmentDelete(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	assignmentID, err := apiutil.PathID(r, assignmentIDPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), matchQueryTimeout)
	defer cancel()

	assignment, err := queries.GetAssignment(ctx, assignmentID)
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to load assignment")
		return
	}
	if !apiutil.RequireAccess(w, r, authz.RequireTeamAdmin(ctx, queries, assignment.TeamID), "assignment", assignmentID) {
		return
	}

	if err := queries.DeleteAssignment(ctx, assignmentID); err != nil {
		apiutil.WriteError(w, r, err, "Failed to delete assignment")
		return
	}

	logger.Info().Int64("assignment_id", assignmentID).Int64("match_id", assignment.MatchID).Msg("Assignment removed")
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/assignments/{id}/respond
func HandleAssignmentRespond(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil || database == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	assignmentID, err := apiutil.PathID(r, assignmentIDPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req respondRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), matchQueryTimeout)
	defer cancel()

	var (
		updated dbq.Assignment
		pending notify.Pending
	)
	err = database.RunInTx(ctx, func(txdb *appdb.DB) error {
		qtx := txdb.Queries

		current, err := qtx.GetAssignment(ctx, assignmentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apiutil.NotFound("Assignment not found")
			}
			return apiutil.Internal("Failed to load assignment", err)
		}
		if current.UserID != user.ID {
			return authz.ErrForbidden
		}
		now := timeNow()
		if !now.Before(current.MatchStartsAt) {
			return apiutil.Conflict("The match has already started")
		}

		updated, err = qtx.RespondAssignment(ctx, assignmentID, req.Status, now)
		if err != nil {
			return apiutil.Internal("Failed to record response", err)
		}
		if req.Status != dbq.AssignmentDeclined || current.Status == dbq.AssignmentDeclined {
			return nil
		}

		adminIDs, err := qtx.ListTeamAdminIDs(ctx, current.TeamID)
		if err != nil {
			return apiutil.Internal("Failed to load team admins", err)
		}
		return notifier.Add(ctx, qtx, &pending, adminIDs, user.ID, notify.Notice{
			Kind:  notify.KindAssignmentDeclined,
			Title: fmt.Sprintf("%s can't make it against %s", current.DisplayName, current.OpponentName),
			Body:  fmt.Sprintf("%s declined the match on %s.", current.DisplayName, current.MatchStartsAt.Format("Mon Jan 2 15:04 MST")),
			Link:  fmt.Sprintf("/matches/%d", current.MatchID),
		})
	})
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to record response")
		return
	}
	notifier.Flush(ctx, &pending)

	logger.Info().Int64("assignment_id", assignmentID).Str("status", req.Status).Msg("Assignment response recorded")
	apiutil.Respond(w, r, http.StatusOK, map[string]any{"assignment": updated})
}

// GET /api/assignments?status=pending|confirmed|declined
func HandleMyAssignments(w http.ResponseWriter, r *http.Request) {
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

	status := strings.TrimSpace(r.URL.Query().Get("status"))
	switch status {
	case "", dbq.AssignmentPending, dbq.AssignmentConfirmed, dbq.AssignmentDeclined:
	default:
		http.Error(w, "status must be pending, confirmed or declined", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), matchQueryTimeout)
	defer cancel()

	list, err := queries.ListAssignmentsForUser(ctx, user.ID, status)
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to list assignments")
		return
	}
	if list == nil {
		list = []dbq.Assignment{}
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{"assignments": list})
}

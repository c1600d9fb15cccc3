package tournaments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/grudge/internal/api/apiutil"
	"github.com/codr1/grudge/internal/api/authz"
	"github.com/codr1/grudge/internal/brackets"
	appdb "github.com/codr1/grudge/internal/db"
	"github.com/codr1/grudge/internal/db/dbq"
	"github.com/codr1/grudge/internal/leagues"
	"github.com/codr1/grudge/internal/notify"
)

var (
	queries  *dbq.Queries
	database *appdb.DB
	notifier *notify.Service
)

const (
	tournamentQueryTimeout = 5 * time.Second
	tournamentIDPathKey    = "id"
	leagueIDPathKey        = "id"
	matchIDPathKey         = "match_id"
)

func InitHandlers(db *appdb.DB, n *notify.Service) {
	if db == nil {
		queries = nil
		database = nil
		notifier = n
		return
	}
	database = db
	queries = db.Queries
	notifier = n
}

type createRequest struct {
	LeagueID        *int64  `json:"leagueId" validate:"omitempty,gt=0"`
	Name            string  `json:"name" validate:"required,max=80"`
	Format          string  `json:"format" validate:"required,oneof=single_elimination double_elimination round_robin"`
	TeamIDs         []int64 `json:"teamIds" validate:"required,min=2,max=64,unique,dive,gt=0"`
	GrandFinalReset bool    `json:"grandFinalReset"`
}

// detail is the full view of one tournament.
type detail struct {
	Tournament dbq.Tournament         `json:"tournament"`
	Entries    []dbq.TournamentEntry  `json:"entries"`
	Matches    []dbq.TournamentMatch  `json:"matches"`
	Standings  []leagues.TeamStanding `json:"standings,omitempty"`
	CanManage  bool                   `json:"canManage"`
}

// POST /api/tournaments
func HandleTournamentCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}
	createTournament(w, r, req)
}

// POST /api/leagues/{id}/create-tournament
func HandleLeagueTournamentCreate(w http.ResponseWriter, r *http.Request) {
	leagueID, err := apiutil.PathID(r, leagueIDPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req createRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}
	if req.LeagueID != nil && *req.LeagueID != leagueID {
		http.Error(w, "leagueId does not match the path", http.StatusBadRequest)
		return
	}
	req.LeagueID = &leagueID
	createTournament(w, r, req)
}

func createTournament(w http.ResponseWriter, r *http.Request, req createRequest) {
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

	grandFinalReset := req.GrandFinalReset && req.Format == brackets.FormatDoubleElimination
	bracket, err := brackets.Generate(req.Format, req.TeamIDs, grandFinalReset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), tournamentQueryTimeout)
	defer cancel()

	var (
		created dbq.Tournament
		pending notify.Pending
	)
	err = database.RunInTx(ctx, func(txdb *appdb.DB) error {
		qtx := txdb.Queries

		teams, err := qtx.ListTeamsByIDs(ctx, req.TeamIDs)
		if err != nil {
			return apiutil.Internal("Failed to load teams", err)
		}
		if len(teams) != len(req.TeamIDs) {
			return apiutil.NotFound("Team not found")
		}

		if req.LeagueID != nil {
			if err := authorizeLeagueEntries(ctx, qtx, *req.LeagueID, req.TeamIDs); err != nil {
				return err
			}
		} else if err := authorizeGrudge(ctx, qtx, user.ID, req.TeamIDs); err != nil {
			return err
		}

		created, err = qtx.CreateTournament(ctx, dbq.CreateTournamentParams{
			LeagueID:        req.LeagueID,
			Name:            strings.TrimSpace(req.Name),
			Format:          req.Format,
			GrandFinalReset: grandFinalReset,
			CreatedBy:       user.ID,
		})
		if err != nil {
			return apiutil.Internal("Failed to create tournament", err)
		}
		for i, teamID := range req.TeamIDs {
			if err := qtx.CreateTournamentEntry(ctx, created.ID, teamID, int64(i+1)); err != nil {
				return apiutil.Internal("Failed to create tournament entry", err)
			}
		}
		for _, m := range bracket.Matches {
			if _, err := qtx.CreateTournamentMatch(ctx, toRow(created.ID, m)); err != nil {
				return apiutil.Internal("Failed to create tournament match", err)
			}
		}

		var recipients []int64
		for _, teamID := range req.TeamIDs {
			ids, err := qtx.ListTeamMemberIDs(ctx, teamID)
			if err != nil {
				return apiutil.Internal("Failed to load team members", err)
			}
			recipients = append(recipients, ids...)
		}
		notice := notify.Notice{
			Kind:  notify.KindTournamentCreated,
			Title: "New tournament",
			Body:  fmt.Sprintf("Your team is entered in %s.", created.Name),
			Link:  fmt.Sprintf("/tournaments/%d", created.ID),
		}
		if err := notifier.Add(ctx, qtx, &pending, recipients, user.ID, notice); err != nil {
			return apiutil.Internal("Failed to notify teams", err)
		}
		return nil
	})
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to create tournament")
		return
	}

	notified := pending.Len()
	notifier.Flush(ctx, &pending)

	view, err := loadDetail(ctx, queries, created)
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to load tournament")
		return
	}
	view.CanManage = true

	logger.Info().
		Int64("tournament_id", created.ID).
		Str("format", created.Format).
		Int("teams", len(req.TeamIDs)).
		Int("notified", notified).
		Msg("Tournament created")
	apiutil.Respond(w, r, http.StatusCreated, view)
}

// GET /api/tournaments
func HandleTournamentsList(w http.ResponseWriter, r *http.Request) {
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

	ctx, cancel := context.WithTimeout(r.Context(), tournamentQueryTimeout)
	defer cancel()

	list, err := queries.ListTournamentsForUser(ctx, user.ID)
	if err != nil {
		logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to list tournaments")
		http.Error(w, "Failed to list tournaments", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []dbq.Tournament{}
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{"tournaments": list})
}

// GET /api/leagues/{id}/tournaments
func HandleLeagueTournamentsList(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	leagueID, err := apiutil.PathID(r, leagueIDPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), tournamentQueryTimeout)
	defer cancel()

	if _, err := queries.GetLeague(ctx, leagueID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "League not found", http.StatusNotFound)
			return
		}
		apiutil.WriteError(w, r, err, "Failed to load league")
		return
	}
	if !apiutil.RequireAccess(w, r, authz.RequireLeagueMember(ctx, queries, leagueID), "league", leagueID) {
		return
	}

	list, err := queries.ListLeagueTournaments(ctx, leagueID)
	if err != nil {
		logger.Error().Err(err).Int64("league_id", leagueID).Msg("Failed to list league tournaments")
		http.Error(w, "Failed to list tournaments", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []dbq.Tournament{}
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{"tournaments": list})
}

// GET /api/tournaments/{id}
func HandleTournamentGet(w http.ResponseWriter, r *http.Request) {
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

	ctx, cancel := context.WithTimeout(r.Context(), tournamentQueryTimeout)
	defer cancel()

	t, ok := loadTournament(w, r, ctx)
	if !ok {
		return
	}

	view, err := loadDetail(ctx, queries, t)
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to load tournament")
		return
	}

	visible, err := canView(ctx, queries, t, view.Entries, user.ID)
	if !apiutil.RequireAccess(w, r, accessError(visible, err), "tournament", t.ID) {
		return
	}
	view.CanManage, err = canManage(ctx, queries, t, user.ID)
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to load tournament")
		return
	}

	apiutil.Respond(w, r, http.StatusOK, view)
}

// DELETE /api/tournaments/{id}
func HandleTournamentDelete(w http.ResponseWriter, r *http.Request) {
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

	ctx, cancel := context.WithTimeout(r.Context(), tournamentQueryTimeout)
	defer cancel()

	t, ok := loadTournament(w, r, ctx)
	if !ok {
		return
	}
	if !apiutil.RequireAccess(w, r, accessError(t.CreatedBy == user.ID, nil), "tournament", t.ID) {
		return
	}

	if err := queries.DeleteTournament(ctx, t.ID); err != nil {
		apiutil.WriteError(w, r, err, "Failed to delete tournament")
		return
	}

	logger.Info().Int64("tournament_id", t.ID).Int64("user_id", user.ID).Msg("Tournament deleted")
	w.WriteHeader(http.StatusNoContent)
}

func loadTournament(w http.ResponseWriter, r *http.Request, ctx context.Context) (dbq.Tournament, bool) {
	id, err := apiutil.PathID(r, tournamentIDPathKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return dbq.Tournament{}, false
	}

	t, err := queries.GetTournament(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Tournament not found", http.StatusNotFound)
			return dbq.Tournament{}, false
		}
		apiutil.WriteError(w, r, err, "Failed to load tournament")
		return dbq.Tournament{}, false
	}
	return t, true
}

// loadDetail gathers entries and matches, and standings for round robins.
func loadDetail(ctx context.Context, q *dbq.Queries, t dbq.Tournament) (detail, error) {
	entries, err := q.ListTournamentEntries(ctx, t.ID)
	if err != nil {
		return detail{}, fmt.Errorf("list entries: %w", err)
	}
	rows, err := q.ListTournamentMatches(ctx, t.ID)
	if err != nil {
		return detail{}, fmt.Errorf("list matches: %w", err)
	}
	if entries == nil {
		entries = []dbq.TournamentEntry{}
	}
	if rows == nil {
		rows = []dbq.TournamentMatch{}
	}

	view := detail{Tournament: t, Entries: entries, Matches: rows}
	if t.Format == brackets.FormatRoundRobin {
		view.Standings, err = roundRobinStandings(ctx, q, t, entries, loadBracket(t, rows))
		if err != nil {
			return detail{}, err
		}
	}
	return view, nil
}

func roundRobinStandings(ctx context.Context, q *dbq.Queries, t dbq.Tournament, entries []dbq.TournamentEntry, b *brackets.Bracket) ([]leagues.TeamStanding, error) {
	rules := leagues.DefaultPointRules
	if t.LeagueID != nil {
		league, err := q.GetLeague(ctx, *t.LeagueID)
		if err != nil {
			return nil, fmt.Errorf("load league: %w", err)
		}
		rules = leagues.RulesFor(league)
	}

	teams := make([]leagues.Team, 0, len(entries))
	for _, e := range entries {
		teams = append(teams, leagues.Team{ID: e.TeamID, Name: e.TeamName})
	}
	standings, err := leagues.CalculateStandings(teams, b.Results(), rules)
	if err != nil {
		return nil, fmt.Errorf("calculate standings: %w", err)
	}
	return standings, nil
}

// authorizeLeagueEntries requires a league admin and that every team plays in
// the league.
func authorizeLeagueEntries(ctx context.Context, q *dbq.Queries, leagueID int64, teamIDs []int64) error {
	if _, err := q.GetLeague(ctx, leagueID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apiutil.NotFound("League not found")
		}
		return apiutil.Internal("Failed to load league", err)
	}
	if err := authz.RequireLeagueAdmin(ctx, q, leagueID); err != nil {
		return err
	}
	for _, teamID := range teamIDs {
		inLeague, err := q.IsLeagueTeam(ctx, leagueID, teamID)
		if err != nil {
			return apiutil.Internal("Failed to check league teams", err)
		}
		if !inLeague {
			return apiutil.BadRequest(fmt.Sprintf("Team %d is not in the league", teamID))
		}
	}
	return nil
}

// authorizeGrudge requires the organizer to administer at least one entered team.
func authorizeGrudge(ctx context.Context, q *dbq.Queries, userID int64, teamIDs []int64) error {
	for _, teamID := range teamIDs {
		admin, err := authz.IsTeamAdmin(ctx, q, teamID, userID)
		if err != nil {
			return apiutil.Internal("Failed to check team roles", err)
		}
		if admin {
			return nil
		}
	}
	return authz.ErrForbidden
}

// canManage reports whether userID may record results: the organizer, or an
// admin of the tournament's league.
func canManage(ctx context.Context, q *dbq.Queries, t dbq.Tournament, userID int64) (bool, error) {
	if t.CreatedBy == userID {
		return true, nil
	}
	if t.LeagueID == nil {
		return false, nil
	}
	return q.IsLeagueAdmin(ctx, *t.LeagueID, userID)
}

func canView(ctx context.Context, q *dbq.Queries, t dbq.Tournament, entries []dbq.TournamentEntry, userID int64) (bool, error) {
	if t.CreatedBy == userID {
		return true, nil
	}
	if t.LeagueID != nil {
		admin, err := q.IsLeagueAdmin(ctx, *t.LeagueID, userID)
		if err != nil || admin {
			return admin, err
		}
		member, err := q.IsLeagueMember(ctx, *t.LeagueID, userID)
		if err != nil || member {
			return member, err
		}
	}
	for _, e := range entries {
		if _, err := q.GetTeamMember(ctx, e.TeamID, userID); err == nil {
			return true, nil
		} else if !errors.Is(err, sql.ErrNoRows) {
			return false, err
		}
	}
	return false, nil
}

func accessError(allowed bool, err error) error {
	if err != nil {
		return err
	}
	if !allowed {
		return authz.ErrForbidden
	}
	return nil
}

// Package share serves read-only HTML pages that can be linked without an
// account.
package share

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/rs/zerolog/log"

	"github.com/codr1/grudge/internal/api/apiutil"
	"github.com/codr1/grudge/internal/brackets"
	"github.com/codr1/grudge/internal/db/dbq"
	"github.com/codr1/grudge/internal/leagues"
	"github.com/codr1/grudge/internal/templates/layouts"
)

var queries *dbq.Queries

const shareQueryTimeout = 5 * time.Second

func InitHandlers(q *dbq.Queries) {
	queries = q
}

// GET /share/seasons/{season_id}
func HandleSeasonPage(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	seasonID, err := apiutil.PathID(r, "season_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), shareQueryTimeout)
	defer cancel()

	season, err := queries.GetSeason(ctx, seasonID)
	if err != nil {
		writeLookupError(w, r, err, "Season not found")
		return
	}
	league, err := queries.GetLeague(ctx, season.LeagueID)
	if err != nil {
		writeLookupError(w, r, err, "Season not found")
		return
	}
	standings, err := leagues.SeasonTable(ctx, queries, season)
	if err != nil {
		logger.Error().Err(err).Int64("season_id", season.ID).Msg("Failed to calculate standings")
		http.Error(w, "Failed to load standings", http.StatusInternalServerError)
		return
	}
	fixtures, err := queries.ListSeasonMatches(ctx, season.ID)
	if err != nil {
		logger.Error().Err(err).Int64("season_id", season.ID).Msg("Failed to list season matches")
		http.Error(w, "Failed to load fixtures", http.StatusInternalServerError)
		return
	}

	body := seasonBody(standings, fixtures)
	page := layouts.Page(league.Name+" | "+season.Name, season.StartsOn+" to "+season.EndsOn, layouts.DefaultPalette, body)
	renderHTMLComponent(ctx, w, page, "Failed to render season page")
}

// GET /share/tournaments/{id}
func HandleTournamentPage(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	tournamentID, err := apiutil.PathID(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), shareQueryTimeout)
	defer cancel()

	t, err := queries.GetTournament(ctx, tournamentID)
	if err != nil {
		writeLookupError(w, r, err, "Tournament not found")
		return
	}
	entries, err := queries.ListTournamentEntries(ctx, t.ID)
	if err != nil {
		logger.Error().Err(err).Int64("tournament_id", t.ID).Msg("Failed to list tournament entries")
		http.Error(w, "Failed to load tournament", http.StatusInternalServerError)
		return
	}
	matches, err := queries.ListTournamentMatches(ctx, t.ID)
	if err != nil {
		logger.Error().Err(err).Int64("tournament_id", t.ID).Msg("Failed to list tournament matches")
		http.Error(w, "Failed to load tournament", http.StatusInternalServerError)
		return
	}

	names := make(map[int64]string, len(entries))
	for _, e := range entries {
		names[e.TeamID] = e.TeamName
	}

	var standings []leagues.TeamStanding
	if t.Format == brackets.FormatRoundRobin {
		standings, err = tournamentStandings(ctx, t, entries, matches)
		if err != nil {
			logger.Error().Err(err).Int64("tournament_id", t.ID).Msg("Failed to calculate standings")
			http.Error(w, "Failed to load standings", http.StatusInternalServerError)
			return
		}
	}

	subtitle := formatLabel(t.Format)
	if t.ChampionTeamID != nil {
		subtitle += " | Champion: " + names[*t.ChampionTeamID]
	}
	page := layouts.Page(t.Name, subtitle, layouts.DefaultPalette, tournamentBody(matches, standings, names))
	renderHTMLComponent(ctx, w, page, "Failed to render tournament page")
}

func tournamentStandings(ctx context.Context, t dbq.Tournament, entries []dbq.TournamentEntry, matches []dbq.TournamentMatch) ([]leagues.TeamStanding, error) {
	rules := leagues.DefaultPointRules
	if t.LeagueID != nil {
		league, err := queries.GetLeague(ctx, *t.LeagueID)
		if err != nil {
			return nil, err
		}
		rules = leagues.RulesFor(league)
	}

	teams := make([]leagues.Team, 0, len(entries))
	for _, e := range entries {
		teams = append(teams, leagues.Team{ID: e.TeamID, Name: e.TeamName})
	}
	var results []leagues.Result
	for _, m := range matches {
		if m.Status != brackets.StatusCompleted || m.HomeTeamID == nil || m.AwayTeamID == nil || m.HomeScore == nil || m.AwayScore == nil {
			continue
		}
		results = append(results, leagues.Result{
			MatchID:    m.ID,
			HomeTeamID: *m.HomeTeamID,
			AwayTeamID: *m.AwayTeamID,
			HomeScore:  int(*m.HomeScore),
			AwayScore:  int(*m.AwayScore),
		})
	}
	return leagues.CalculateStandings(teams, results, rules)
}

func writeLookupError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, notFound, http.StatusNotFound)
		return
	}
	apiutil.WriteError(w, r, err, "Failed to load page")
}

func renderHTMLComponent(ctx context.Context, w http.ResponseWriter, component templ.Component, logMsg string) {
	logger := log.Ctx(ctx)
	var buf bytes.Buffer
	if err := component.Render(ctx, &buf); err != nil {
		logger.Error().Err(err).Msg(logMsg)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=60")
	if _, err := w.Write(buf.Bytes()); err != nil {
		logger.Error().Err(err).Msg("Failed to write response")
	}
}

func formatLabel(format string) string {
	switch format {
	case brackets.FormatSingleElimination:
		return "Single elimination"
	case brackets.FormatDoubleElimination:
		return "Double elimination"
	case brackets.FormatRoundRobin:
		return "Round robin"
	default:
		return format
	}
}

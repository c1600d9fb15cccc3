package tournaments

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/codr1/grudge/internal/api/apiutil"
	"github.com/codr1/grudge/internal/brackets"
	appdb "github.com/codr1/grudge/internal/db"
	"github.com/codr1/grudge/internal/db/dbq"
)

type resultRequest struct {
	HomeScore *int64 `json:"homeScore" validate:"required,gte=0,lte=999"`
	AwayScore *int64 `json:"awayScore" validate:"required,gte=0,lte=999"`
}

// POST /api/tournaments/{id}/matches/{match_id}/result
func HandleMatchResult(w http.ResponseWriter, r *http.Request) {
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

	var req resultRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), tournamentQueryTimeout)
	defer cancel()

	t, ok := loadTournament(w, r, ctx)
	if !ok {
		return
	}
	allowed, err := canManage(ctx, queries, t, user.ID)
	if !apiutil.RequireAccess(w, r, accessError(allowed, err), "tournament", t.ID) {
		return
	}

	var (
		updated dbq.Tournament
		key     string
	)
	err = database.RunInTx(ctx, func(txdb *appdb.DB) error {
		qtx := txdb.Queries

		rows, err := qtx.ListTournamentMatches(ctx, t.ID)
		if err != nil {
			return apiutil.Internal("Failed to load tournament matches", err)
		}
		for _, row := range rows {
			if row.ID == matchID {
				key = row.BracketKey
			}
		}
		if key == "" {
			return apiutil.NotFound("Match not found")
		}

		bracket := loadBracket(t, rows)
		if err := bracket.RecordResult(key, int(*req.HomeScore), int(*req.AwayScore)); err != nil {
			return resultError(err)
		}
		for _, m := range bracket.Matches {
			if err := qtx.UpdateTournamentMatch(ctx, toRow(t.ID, m)); err != nil {
				return apiutil.Internal("Failed to save tournament match", err)
			}
		}

		updated, err = saveOutcome(ctx, qtx, t, bracket)
		return err
	})
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to record result")
		return
	}

	view, err := loadDetail(ctx, queries, updated)
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to load tournament")
		return
	}
	view.CanManage = true

	logEvent := logger.Info().
		Int64("tournament_id", t.ID).
		Str("match", key).
		Int64("home_score", *req.HomeScore).
		Int64("away_score", *req.AwayScore)
	if updated.ChampionTeamID != nil {
		logEvent = logEvent.Int64("champion_team_id", *updated.ChampionTeamID)
	}
	logEvent.Msg("Tournament result recorded")
	apiutil.Respond(w, r, http.StatusOK, view)
}

// saveOutcome stores the tournament status and champion implied by the
// bracket. A corrected result can move a completed tournament back to in
// progress.
func saveOutcome(ctx context.Context, q *dbq.Queries, t dbq.Tournament, b *brackets.Bracket) (dbq.Tournament, error) {
	status := dbq.TournamentInProgress
	var champion *int64
	if b.Complete() {
		status = dbq.TournamentCompleted
		winner := b.Champion()
		if t.Format == brackets.FormatRoundRobin {
			entries, err := q.ListTournamentEntries(ctx, t.ID)
			if err != nil {
				return dbq.Tournament{}, apiutil.Internal("Failed to load tournament entries", err)
			}
			standings, err := roundRobinStandings(ctx, q, t, entries, b)
			if err != nil {
				return dbq.Tournament{}, apiutil.Internal("Failed to calculate standings", err)
			}
			if len(standings) > 0 {
				winner = standings[0].TeamID
			}
		}
		champion = optionalID(winner)
	}

	if err := q.SetTournamentOutcome(ctx, t.ID, status, champion); err != nil {
		return dbq.Tournament{}, apiutil.Internal("Failed to update tournament", err)
	}
	t.Status = status
	t.ChampionTeamID = champion
	return t, nil
}

func resultError(err error) error {
	switch {
	case errors.Is(err, brackets.ErrTiedResult), errors.Is(err, brackets.ErrNegativeScore):
		return apiutil.BadRequest(err.Error())
	case errors.Is(err, brackets.ErrResultLocked), errors.Is(err, brackets.ErrMatchNotReady):
		return apiutil.Conflict(err.Error())
	case errors.Is(err, brackets.ErrUnknownMatch):
		return apiutil.NotFound("Match not found")
	default:
		return apiutil.Internal("Failed to record result", err)
	}
}

func loadBracket(t dbq.Tournament, rows []dbq.TournamentMatch) *brackets.Bracket {
	matches := make([]*brackets.Match, 0, len(rows))
	for _, row := range rows {
		matches = append(matches, fromRow(row))
	}
	return brackets.Load(t.Format, t.GrandFinalReset, matches)
}

func fromRow(row dbq.TournamentMatch) *brackets.Match {
	return &brackets.Match{
		Key:          row.BracketKey,
		Bracket:      row.Bracket,
		Round:        int(row.Round),
		Position:     int(row.Position),
		Home:         brackets.Slot{TeamID: valueOf(row.HomeTeamID), Bye: row.HomeBye},
		Away:         brackets.Slot{TeamID: valueOf(row.AwayTeamID), Bye: row.AwayBye},
		HomeScore:    score(row.HomeScore),
		AwayScore:    score(row.AwayScore),
		WinnerTeamID: valueOf(row.WinnerTeamID),
		Status:       row.Status,
		WinnerTo:     row.WinnerTo,
		WinnerSlot:   int(row.WinnerSlot),
		LoserTo:      row.LoserTo,
		LoserSlot:    int(row.LoserSlot),
	}
}

func toRow(tournamentID int64, m *brackets.Match) dbq.TournamentMatch {
	row := dbq.TournamentMatch{
		TournamentID: tournamentID,
		BracketKey:   m.Key,
		Bracket:      m.Bracket,
		Round:        int64(m.Round),
		Position:     int64(m.Position),
		HomeTeamID:   optionalID(m.Home.TeamID),
		AwayTeamID:   optionalID(m.Away.TeamID),
		HomeBye:      m.Home.Bye,
		AwayBye:      m.Away.Bye,
		WinnerTeamID: optionalID(m.WinnerTeamID),
		Status:       m.Status,
		WinnerTo:     m.WinnerTo,
		WinnerSlot:   int64(m.WinnerSlot),
		LoserTo:      m.LoserTo,
		LoserSlot:    int64(m.LoserSlot),
	}
	if m.HomeScore != nil {
		v := int64(*m.HomeScore)
		row.HomeScore = &v
	}
	if m.AwayScore != nil {
		v := int64(*m.AwayScore)
		row.AwayScore = &v
	}
	return row
}

func valueOf(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

func optionalID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func score(v *int64) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

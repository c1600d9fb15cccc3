package leagues

import (
	"context"
	"fmt"

	"github.com/codr1/grudge/internal/db/dbq"
)

// TableStore is the read access SeasonTable needs.
type TableStore interface {
	GetLeague(ctx context.Context, id int64) (dbq.League, error)
	ListLeagueTeams(ctx context.Context, leagueID int64) ([]dbq.LeagueTeam, error)
	ListSeasonMatches(ctx context.Context, seasonID int64) ([]dbq.SeasonMatch, error)
}

// RulesFor returns the point values configured on a league.
func RulesFor(league dbq.League) PointRules {
	return PointRules{
		Win:  int(league.PointsWin),
		Draw: int(league.PointsDraw),
		Loss: int(league.PointsLoss),
	}
}

// SeasonTable computes the standings of a season from its confirmed matches.
// Every team in the league is listed, as is any team that played in the
// season and has since left.
func SeasonTable(ctx context.Context, store TableStore, season dbq.Season) ([]TeamStanding, error) {
	league, err := store.GetLeague(ctx, season.LeagueID)
	if err != nil {
		return nil, fmt.Errorf("load league: %w", err)
	}
	leagueTeams, err := store.ListLeagueTeams(ctx, season.LeagueID)
	if err != nil {
		return nil, fmt.Errorf("load league teams: %w", err)
	}
	matches, err := store.ListSeasonMatches(ctx, season.ID)
	if err != nil {
		return nil, fmt.Errorf("load season matches: %w", err)
	}

	teams := make([]Team, 0, len(leagueTeams))
	listed := make(map[int64]struct{}, len(leagueTeams))
	addTeam := func(id int64, name string) {
		if _, ok := listed[id]; ok {
			return
		}
		listed[id] = struct{}{}
		teams = append(teams, Team{ID: id, Name: name})
	}
	for _, team := range leagueTeams {
		addTeam(team.TeamID, team.TeamName)
	}

	results := make([]Result, 0, len(matches))
	for _, match := range matches {
		addTeam(match.HomeTeamID, match.HomeTeamName)
		addTeam(match.AwayTeamID, match.AwayTeamName)
		if match.Status != dbq.SeasonMatchConfirmed || match.HomeScore == nil || match.AwayScore == nil {
			continue
		}
		results = append(results, Result{
			MatchID:    match.ID,
			HomeTeamID: match.HomeTeamID,
			AwayTeamID: match.AwayTeamID,
			HomeScore:  int(*match.HomeScore),
			AwayScore:  int(*match.AwayScore),
		})
	}

	return CalculateStandings(teams, results, RulesFor(league))
}

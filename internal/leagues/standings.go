package leagues

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// PointRules are the table points awarded per result.
type PointRules struct {
	Win  int
	Draw int
	Loss int
}

// DefaultPointRules is 3/1/0.
var DefaultPointRules = PointRules{Win: 3, Draw: 1, Loss: 0}

type Team struct {
	ID   int64
	Name string
}

// Result is a confirmed score between two teams.
type Result struct {
	MatchID    int64
	HomeTeamID int64
	AwayTeamID int64
	HomeScore  int
	AwayScore  int
}

type TeamStanding struct {
	Position       int     `json:"position"`
	TeamID         int64   `json:"teamId"`
	TeamName       string  `json:"teamName"`
	Played         int     `json:"played"`
	Wins           int     `json:"wins"`
	Draws          int     `json:"draws"`
	Losses         int     `json:"losses"`
	GoalsFor       int     `json:"goalsFor"`
	GoalsAgainst   int     `json:"goalsAgainst"`
	GoalDifference int     `json:"goalDifference"`
	Points         int     `json:"points"`
	WinPercentage  float64 `json:"winPercentage"`
}

type teamStats struct {
	TeamStanding
	headToHeadPoints map[int64]int
}

// CalculateStandings builds the table for teams from results. Every team in
// teams appears even without results. Ordering is points, head-to-head points
// inside the tied group, goal difference, goals for, then name.
func CalculateStandings(teams []Team, results []Result, rules PointRules) ([]TeamStanding, error) {
	stats := make(map[int64]*teamStats, len(teams))
	for _, team := range teams {
		stats[team.ID] = &teamStats{
			TeamStanding:     TeamStanding{TeamID: team.ID, TeamName: team.Name},
			headToHeadPoints: make(map[int64]int),
		}
	}

	for _, result := range results {
		if result.HomeTeamID == result.AwayTeamID {
			return nil, fmt.Errorf("match %d has the same team on both sides", result.MatchID)
		}
		if result.HomeScore < 0 || result.AwayScore < 0 {
			return nil, fmt.Errorf("match %d has a negative score", result.MatchID)
		}
		home, ok := stats[result.HomeTeamID]
		if !ok {
			return nil, fmt.Errorf("match %d references unknown team %d", result.MatchID, result.HomeTeamID)
		}
		away, ok := stats[result.AwayTeamID]
		if !ok {
			return nil, fmt.Errorf("match %d references unknown team %d", result.MatchID, result.AwayTeamID)
		}

		home.record(result.HomeScore, result.AwayScore, result.AwayTeamID, rules)
		away.record(result.AwayScore, result.HomeScore, result.HomeTeamID, rules)
	}

	ordered := make([]*teamStats, 0, len(stats))
	for _, team := range stats {
		team.WinPercentage = winPercentage(team.Wins, team.Draws, team.Played)
		ordered = append(ordered, team)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Points != ordered[j].Points {
			return ordered[i].Points > ordered[j].Points
		}
		if ordered[i].TeamName != ordered[j].TeamName {
			return ordered[i].TeamName < ordered[j].TeamName
		}
		return ordered[i].TeamID < ordered[j].TeamID
	})

	sortStandingsByTiebreakers(ordered)

	standings := make([]TeamStanding, 0, len(ordered))
	for idx, team := range ordered {
		team.Position = idx + 1
		standings = append(standings, team.TeamStanding)
	}
	return standings, nil
}

// ValidateRules rejects negative point values and a draw worth more than a win.
func ValidateRules(rules PointRules) error {
	if rules.Win < 0 || rules.Draw < 0 || rules.Loss < 0 {
		return errors.New("points must be 0 or greater")
	}
	if rules.Draw > rules.Win || rules.Loss > rules.Draw {
		return errors.New("points must satisfy win >= draw >= loss")
	}
	return nil
}

func (t *teamStats) record(scored, conceded int, opponentID int64, rules PointRules) {
	t.Played++
	t.GoalsFor += scored
	t.GoalsAgainst += conceded
	t.GoalDifference = t.GoalsFor - t.GoalsAgainst

	var points int
	switch {
	case scored > conceded:
		t.Wins++
		points = rules.Win
	case scored < conceded:
		t.Losses++
		points = rules.Loss
	default:
		t.Draws++
		points = rules.Draw
	}
	t.Points += points
	t.headToHeadPoints[opponentID] += points
}

func winPercentage(wins, draws, played int) float64 {
	if played == 0 {
		return 0
	}
	pct := (float64(wins) + float64(draws)/2) / float64(played)
	return math.Round(pct*1000) / 1000
}

func sortStandingsByTiebreakers(ordered []*teamStats) {
	if len(ordered) < 2 {
		return
	}

	start := 0
	for start < len(ordered) {
		end := start + 1
		for end < len(ordered) && ordered[end].Points == ordered[start].Points {
			end++
		}

		if end-start > 1 {
			group := ordered[start:end]
			groupSet := make(map[int64]struct{}, len(group))
			for _, team := range group {
				groupSet[team.TeamID] = struct{}{}
			}

			sort.SliceStable(group, func(i, j int) bool {
				h2hI := headToHeadPoints(group[i], groupSet)
				h2hJ := headToHeadPoints(group[j], groupSet)
				if h2hI != h2hJ {
					return h2hI > h2hJ
				}
				if group[i].GoalDifference != group[j].GoalDifference {
					return group[i].GoalDifference > group[j].GoalDifference
				}
				if group[i].GoalsFor != group[j].GoalsFor {
					return group[i].GoalsFor > group[j].GoalsFor
				}
				if group[i].TeamName != group[j].TeamName {
					return group[i].TeamName < group[j].TeamName
				}
				return group[i].TeamID < group[j].TeamID
			})
		}

		start = end
	}
}

func headToHeadPoints(team *teamStats, group map[int64]struct{}) int {
	total := 0
	for opponentID, points := range team.headToHeadPoints {
		if _, ok := group[opponentID]; ok {
			total += points
		}
	}
	return total
}

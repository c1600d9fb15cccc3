package share

import (
	"context"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/codr1/grudge/internal/brackets"
	"github.com/codr1/grudge/internal/db/dbq"
	"github.com/codr1/grudge/internal/leagues"
)

const fixtureTimeLayout = "Mon Jan 2 15:04 MST"

func seasonBody(standings []leagues.TeamStanding, fixtures []dbq.SeasonMatch) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<h2>Standings</h2>`); err != nil {
			return err
		}
		if _, err := io.WriteString(w, buildStandingsHTML(standings)); err != nil {
			return err
		}
		if _, err := io.WriteString(w, `<h2>Fixtures</h2>`); err != nil {
			return err
		}
		_, err := io.WriteString(w, buildFixturesHTML(fixtures))
		return err
	})
}

func tournamentBody(matches []dbq.TournamentMatch, standings []leagues.TeamStanding, names map[int64]string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if len(standings) > 0 {
			if _, err := io.WriteString(w, `<h2>Standings</h2>`); err != nil {
				return err
			}
			if _, err := io.WriteString(w, buildStandingsHTML(standings)); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, `<h2>Matches</h2>`); err != nil {
			return err
		}
		_, err := io.WriteString(w, buildBracketHTML(matches, names))
		return err
	})
}

func buildStandingsHTML(standings []leagues.TeamStanding) string {
	if len(standings) == 0 {
		return `<p>No teams yet.</p>`
	}

	var builder strings.Builder
	builder.WriteString(`<table><thead><tr><th>#</th><th>Team</th><th>P</th><th>W</th><th>D</th><th>L</th><th>GF</th><th>GA</th><th>GD</th><th>Pts</th></tr></thead><tbody>`)
	for _, row := range standings {
		fmt.Fprintf(&builder,
			`<tr><td>%d</td><td>%s</td><td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%+d</td><td>%d</td></tr>`,
			row.Position,
			html.EscapeString(row.TeamName),
			row.Played,
			row.Wins,
			row.Draws,
			row.Losses,
			row.GoalsFor,
			row.GoalsAgainst,
			row.GoalDifference,
			row.Points,
		)
	}
	builder.WriteString(`</tbody></table>`)
	return builder.String()
}

func buildFixturesHTML(fixtures []dbq.SeasonMatch) string {
	if len(fixtures) == 0 {
		return `<p>The schedule has not been published.</p>`
	}

	var builder strings.Builder
	builder.WriteString(`<table><thead><tr><th>Round</th><th>Kickoff</th><th>Home</th><th>Score</th><th>Away</th><th>Location</th></tr></thead><tbody>`)
	for _, m := range fixtures {
		kickoff := "TBD"
		if m.ScheduledAt != nil {
			kickoff = m.ScheduledAt.UTC().Format(fixtureTimeLayout)
		}
		score := "vs"
		if m.Status == dbq.SeasonMatchConfirmed && m.HomeScore != nil && m.AwayScore != nil {
			score = fmt.Sprintf("%d - %d", *m.HomeScore, *m.AwayScore)
		}
		fmt.Fprintf(&builder,
			`<tr data-match-id="%d"><td>%d</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
			m.ID,
			m.Round,
			kickoff,
			html.EscapeString(m.HomeTeamName),
			score,
			html.EscapeString(m.AwayTeamName),
			html.EscapeString(m.Location),
		)
	}
	builder.WriteString(`</tbody></table>`)
	return builder.String()
}

func buildBracketHTML(matches []dbq.TournamentMatch, names map[int64]string) string {
	if len(matches) == 0 {
		return `<p>No matches.</p>`
	}

	var builder strings.Builder
	builder.WriteString(`<table><thead><tr><th>Match</th><th>Home</th><th>Score</th><th>Away</th><th>Status</th></tr></thead><tbody>`)
	for _, m := range matches {
		if m.Status == brackets.StatusSkipped {
			continue
		}
		score := "vs"
		if m.HomeScore != nil && m.AwayScore != nil {
			score = fmt.Sprintf("%d - %d", *m.HomeScore, *m.AwayScore)
		}
		fmt.Fprintf(&builder,
			`<tr data-match="%s"><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
			html.EscapeString(m.BracketKey),
			html.EscapeString(matchLabel(m)),
			slotHTML(m.HomeTeamID, m.HomeBye, m.WinnerTeamID, names),
			score,
			slotHTML(m.AwayTeamID, m.AwayBye, m.WinnerTeamID, names),
			html.EscapeString(m.Status),
		)
	}
	builder.WriteString(`</tbody></table>`)
	return builder.String()
}

func matchLabel(m dbq.TournamentMatch) string {
	switch m.Bracket {
	case brackets.BracketWinners:
		return fmt.Sprintf("Winners R%d #%d", m.Round, m.Position)
	case brackets.BracketLosers:
		return fmt.Sprintf("Losers R%d #%d", m.Round, m.Position)
	case brackets.BracketFinal:
		if m.BracketKey == brackets.KeyGrandFinalReset {
			return "Grand final (reset)"
		}
		return "Grand final"
	default:
		return fmt.Sprintf("Round %d", m.Round)
	}
}

func slotHTML(teamID *int64, bye bool, winner *int64, names map[int64]string) string {
	switch {
	case bye:
		return "bye"
	case teamID == nil:
		return "TBD"
	}
	name := html.EscapeString(names[*teamID])
	if winner != nil && *winner == *teamID {
		return `<span class="winner">` + name + `</span>`
	}
	return name
}

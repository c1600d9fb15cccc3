// Package brackets builds and advances tournament brackets. It is storage
// agnostic: callers load matches, apply results and persist every match back.
package brackets

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/codr1/grudge/internal/leagues"
)

const (
	FormatSingleElimination = "single_elimination"
	FormatDoubleElimination = "double_elimination"
	FormatRoundRobin        = "round_robin"
)

const (
	BracketWinners    = "winners"
	BracketLosers     = "losers"
	BracketFinal      = "final"
	BracketRoundRobin = "round_robin"
)

const (
	StatusPending   = "pending"
	StatusReady     = "ready"
	StatusCompleted = "completed"
	StatusBye       = "bye"
	StatusSkipped   = "skipped"
)

const (
	SlotHome = 1
	SlotAway = 2
)

const (
	KeyGrandFinal      = "GF1"
	KeyGrandFinalReset = "GF2"
)

var (
	ErrTooFewTeams   = errors.New("at least two teams are required")
	ErrDuplicateTeam = errors.New("team entered twice")
	ErrUnknownFormat = errors.New("unknown tournament format")
	ErrUnknownMatch  = errors.New("match not found")
	ErrMatchNotReady = errors.New("match is not ready to be played")
	ErrTiedResult    = errors.New("elimination matches need a winner")
	ErrNegativeScore = errors.New("scores must be 0 or greater")
	ErrResultLocked  = errors.New("result is locked because a later match has been decided")
)

// Slot is one side of a match. An empty slot waits for an earlier match.
type Slot struct {
	TeamID int64
	Bye    bool
}

func (s Slot) filled() bool {
	return s.TeamID != 0 || s.Bye
}

type Match struct {
	Key          string
	Bracket      string
	Round        int
	Position     int
	Home         Slot
	Away         Slot
	HomeScore    *int
	AwayScore    *int
	WinnerTeamID int64
	Status       string
	WinnerTo     string
	WinnerSlot   int
	LoserTo      string
	LoserSlot    int
}

func (m *Match) decided() bool {
	return m.Status == StatusCompleted || m.Status == StatusBye || m.Status == StatusSkipped
}

type Bracket struct {
	Format          string
	GrandFinalReset bool
	Matches         []*Match

	byKey    map[string]*Match
	finalKey string
}

// Generate builds the full bracket for teams given in seed order.
func Generate(format string, teamIDs []int64, grandFinalReset bool) (*Bracket, error) {
	if len(teamIDs) < 2 {
		return nil, ErrTooFewTeams
	}
	seen := make(map[int64]struct{}, len(teamIDs))
	for _, id := range teamIDs {
		if id <= 0 {
			return nil, fmt.Errorf("invalid team id %d", id)
		}
		if _, ok := seen[id]; ok {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateTeam, id)
		}
		seen[id] = struct{}{}
	}

	var matches []*Match
	switch format {
	case FormatSingleElimination:
		matches = buildWinnersBracket(teamIDs, false)
	case FormatDoubleElimination:
		matches = buildWinnersBracket(teamIDs, true)
		matches = append(matches, buildLosersBracket(matches, bracketSize(len(teamIDs)), grandFinalReset)...)
	case FormatRoundRobin:
		matches = buildRoundRobin(teamIDs)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	b := Load(format, grandFinalReset && format == FormatDoubleElimination, matches)
	b.resolve()
	return b, nil
}

// Load rebuilds a bracket from persisted matches.
func Load(format string, grandFinalReset bool, matches []*Match) *Bracket {
	b := &Bracket{
		Format:          format,
		GrandFinalReset: grandFinalReset,
		Matches:         matches,
		byKey:           make(map[string]*Match, len(matches)),
	}
	for _, m := range matches {
		b.byKey[m.Key] = m
		if format == FormatSingleElimination && m.Bracket == BracketWinners && m.WinnerTo == "" {
			b.finalKey = m.Key
		}
	}
	if format == FormatDoubleElimination {
		b.finalKey = KeyGrandFinal
	}
	return b
}

func (b *Bracket) Match(key string) (*Match, bool) {
	m, ok := b.byKey[key]
	return m, ok
}

// RecordResult applies a score, advances the winner and loser, and resolves
// any byes that become decidable. A completed elimination match can be
// corrected until a match it feeds has been decided.
func (b *Bracket) RecordResult(key string, homeScore, awayScore int) error {
	m, ok := b.byKey[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMatch, key)
	}
	if homeScore < 0 || awayScore < 0 {
		return ErrNegativeScore
	}
	elimination := b.Format != FormatRoundRobin
	if elimination && homeScore == awayScore {
		return ErrTiedResult
	}

	switch m.Status {
	case StatusReady:
	case StatusCompleted:
		if elimination {
			if err := b.reopen(m); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: %s is %s", ErrMatchNotReady, key, m.Status)
	}

	m.HomeScore = &homeScore
	m.AwayScore = &awayScore
	m.Status = StatusCompleted
	m.WinnerTeamID = 0

	switch {
	case homeScore > awayScore:
		m.WinnerTeamID = m.Home.TeamID
	case awayScore > homeScore:
		m.WinnerTeamID = m.Away.TeamID
	}
	if !elimination {
		return nil
	}

	winner, loser := m.Home, m.Away
	if m.WinnerTeamID == m.Away.TeamID {
		winner, loser = m.Away, m.Home
	}

	if m.Key == KeyGrandFinal {
		b.advanceGrandFinal(m, winner)
		return nil
	}

	b.place(m.WinnerTo, m.WinnerSlot, winner)
	b.place(m.LoserTo, m.LoserSlot, loser)
	b.resolve()
	return nil
}

// Champion returns the winning team once the bracket is decided. Round robin
// champions come from standings, so it returns 0 for them.
func (b *Bracket) Champion() int64 {
	switch b.Format {
	case FormatSingleElimination:
		final, ok := b.byKey[b.finalKey]
		if ok && (final.Status == StatusCompleted || final.Status == StatusBye) {
			return final.WinnerTeamID
		}
	case FormatDoubleElimination:
		gf1, ok := b.byKey[KeyGrandFinal]
		if !ok {
			return 0
		}
		gf2, hasReset := b.byKey[KeyGrandFinalReset]
		if hasReset && gf2.Status == StatusCompleted {
			return gf2.WinnerTeamID
		}
		if gf1.Status == StatusCompleted || gf1.Status == StatusBye {
			if !hasReset || gf2.Status == StatusSkipped {
				return gf1.WinnerTeamID
			}
		}
	}
	return 0
}

// Complete reports whether no playable match remains.
func (b *Bracket) Complete() bool {
	if b.Format != FormatRoundRobin {
		return b.Champion() != 0
	}
	for _, m := range b.Matches {
		if m.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// Results returns completed round-robin scores for standings.
func (b *Bracket) Results() []leagues.Result {
	var results []leagues.Result
	for idx, m := range b.Matches {
		if m.Status != StatusCompleted || m.HomeScore == nil || m.AwayScore == nil {
			continue
		}
		if m.Home.TeamID == 0 || m.Away.TeamID == 0 {
			continue
		}
		results = append(results, leagues.Result{
			MatchID:    int64(idx + 1),
			HomeTeamID: m.Home.TeamID,
			AwayTeamID: m.Away.TeamID,
			HomeScore:  *m.HomeScore,
			AwayScore:  *m.AwayScore,
		})
	}
	return results
}

func (b *Bracket) advanceGrandFinal(gf1 *Match, winner Slot) {
	gf2, ok := b.byKey[KeyGrandFinalReset]
	if !ok {
		return
	}
	if winner.TeamID == gf1.Home.TeamID {
		gf2.Status = StatusSkipped
		return
	}
	gf2.Home = gf1.Home
	gf2.Away = gf1.Away
	gf2.Status = StatusReady
}

// reopen clears what m pushed downstream so it can be recorded again. Byes
// that were settled by m's placements are unwound too; only a played match
// down the chain locks the result.
func (b *Bracket) reopen(m *Match) error {
	if m.Key == KeyGrandFinal {
		if gf2, ok := b.byKey[KeyGrandFinalReset]; ok {
			if gf2.Status == StatusCompleted {
				return ErrResultLocked
			}
			gf2.Home, gf2.Away = Slot{}, Slot{}
			gf2.Status = StatusPending
		}
		return nil
	}

	if b.playedDownstream(m) {
		return ErrResultLocked
	}
	b.unplace(m)
	return nil
}

type target struct {
	key  string
	slot int
}

func (m *Match) targets() []target {
	var out []target
	if m.WinnerTo != "" {
		out = append(out, target{m.WinnerTo, m.WinnerSlot})
	}
	if m.LoserTo != "" {
		out = append(out, target{m.LoserTo, m.LoserSlot})
	}
	return out
}

// playedDownstream reports whether a completed match is reachable from m
// through matches that were only settled by byes.
func (b *Bracket) playedDownstream(m *Match) bool {
	for _, t := range m.targets() {
		next := b.byKey[t.key]
		if next == nil {
			continue
		}
		switch next.Status {
		case StatusCompleted, StatusSkipped:
			return true
		case StatusBye:
			if b.playedDownstream(next) {
				return true
			}
		}
	}
	return false
}

// unplace empties the slots m filled and returns any bye it settled to pending.
func (b *Bracket) unplace(m *Match) {
	for _, t := range m.targets() {
		next := b.byKey[t.key]
		if next == nil {
			continue
		}
		if next.Status == StatusBye {
			b.unplace(next)
			next.WinnerTeamID = 0
		}
		if t.slot == SlotHome {
			next.Home = Slot{}
		} else {
			next.Away = Slot{}
		}
		next.Status = StatusPending
	}
}

func (b *Bracket) place(key string, slot int, value Slot) {
	if key == "" {
		return
	}
	target, ok := b.byKey[key]
	if !ok {
		return
	}
	if slot == SlotHome {
		target.Home = value
	} else {
		target.Away = value
	}
}

// resolve marks matches ready once both sides are known and auto-advances
// byes until nothing changes.
func (b *Bracket) resolve() {
	for changed := true; changed; {
		changed = false
		for _, m := range b.Matches {
			if m.Status != StatusPending || !m.Home.filled() || !m.Away.filled() {
				continue
			}
			changed = true

			switch {
			case m.Home.Bye && m.Away.Bye:
				m.Status = StatusBye
				b.place(m.WinnerTo, m.WinnerSlot, Slot{Bye: true})
				b.place(m.LoserTo, m.LoserSlot, Slot{Bye: true})
			case m.Home.Bye:
				m.Status = StatusBye
				m.WinnerTeamID = m.Away.TeamID
				b.place(m.WinnerTo, m.WinnerSlot, m.Away)
				b.place(m.LoserTo, m.LoserSlot, Slot{Bye: true})
			case m.Away.Bye:
				m.Status = StatusBye
				m.WinnerTeamID = m.Home.TeamID
				b.place(m.WinnerTo, m.WinnerSlot, m.Home)
				b.place(m.LoserTo, m.LoserSlot, Slot{Bye: true})
			default:
				m.Status = StatusReady
			}
		}
	}
}

// SeedOrder returns bracket positions for seeds 1..size so that seed 1 meets
// seed size, and the top two seeds can only meet in the final.
func SeedOrder(size int) []int {
	order := []int{1}
	for len(order) < size {
		n := len(order) * 2
		next := make([]int, 0, n)
		for _, seed := range order {
			next = append(next, seed, n+1-seed)
		}
		order = next
	}
	return order
}

func bracketSize(teams int) int {
	if teams <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(teams-1))
}

func roundsFor(size int) int {
	return bits.Len(uint(size)) - 1
}

func matchKey(prefix string, round, position int) string {
	return fmt.Sprintf("%s%d-%d", prefix, round, position)
}

// nextSlot maps a 1-based position to the match it feeds in a halving round.
func nextSlot(position int) (int, int) {
	if position%2 == 1 {
		return (position + 1) / 2, SlotHome
	}
	return position / 2, SlotAway
}

func buildWinnersBracket(teamIDs []int64, double bool) []*Match {
	size := bracketSize(len(teamIDs))
	rounds := roundsFor(size)
	order := SeedOrder(size)

	seedSlot := func(seed int) Slot {
		if seed <= len(teamIDs) {
			return Slot{TeamID: teamIDs[seed-1]}
		}
		return Slot{Bye: true}
	}

	var matches []*Match
	for round := 1; round <= rounds; round++ {
		count := size >> round
		for pos := 1; pos <= count; pos++ {
			m := &Match{
				Key:      matchKey("W", round, pos),
				Bracket:  BracketWinners,
				Round:    round,
				Position: pos,
				Status:   StatusPending,
			}
			if round == 1 {
				m.Home = seedSlot(order[2*(pos-1)])
				m.Away = seedSlot(order[2*pos-1])
			}
			if round < rounds {
				nextPos, slot := nextSlot(pos)
				m.WinnerTo, m.WinnerSlot = matchKey("W", round+1, nextPos), slot
			} else if double {
				m.WinnerTo, m.WinnerSlot = KeyGrandFinal, SlotHome
			}
			matches = append(matches, m)
		}
	}
	return matches
}

// buildLosersBracket wires winners-bracket losers into 2(k-1) losers rounds.
// Odd rounds pair survivors of the previous losers round (round 1 pairs
// winners round 1 losers). Even round 2j meets those survivors with the
// losers of winners round j+1, in reversed order on alternate rounds.
func buildLosersBracket(winners []*Match, size int, grandFinalReset bool) []*Match {
	rounds := roundsFor(size)
	wb := make(map[string]*Match, len(winners))
	for _, m := range winners {
		wb[m.Key] = m
	}

	var matches []*Match
	lbRounds := 2 * (rounds - 1)
	for lr := 1; lr <= lbRounds; lr++ {
		j := (lr + 1) / 2
		count := size >> (j + 1)
		for pos := 1; pos <= count; pos++ {
			m := &Match{
				Key:      matchKey("L", lr, pos),
				Bracket:  BracketLosers,
				Round:    lr,
				Position: pos,
				Status:   StatusPending,
			}
			switch {
			case lr == lbRounds:
				m.WinnerTo, m.WinnerSlot = KeyGrandFinal, SlotAway
			case lr%2 == 1:
				m.WinnerTo, m.WinnerSlot = matchKey("L", lr+1, pos), SlotHome
			default:
				nextPos, slot := nextSlot(pos)
				m.WinnerTo, m.WinnerSlot = matchKey("L", lr+1, nextPos), slot
			}
			matches = append(matches, m)
		}

		if lr%2 == 0 {
			// Losers of winners round j+1 enter on the away side.
			for pos := 1; pos <= count; pos++ {
				target := pos
				if j%2 == 1 {
					target = count + 1 - pos
				}
				src := wb[matchKey("W", j+1, pos)]
				src.LoserTo, src.LoserSlot = matchKey("L", lr, target), SlotAway
			}
		}
	}

	if rounds == 1 {
		wb[matchKey("W", 1, 1)].LoserTo, wb[matchKey("W", 1, 1)].LoserSlot = KeyGrandFinal, SlotAway
	} else {
		for pos := 1; pos <= size/2; pos++ {
			nextPos, slot := nextSlot(pos)
			src := wb[matchKey("W", 1, pos)]
			src.LoserTo, src.LoserSlot = matchKey("L", 1, nextPos), slot
		}
	}

	matches = append(matches, &Match{
		Key:      KeyGrandFinal,
		Bracket:  BracketFinal,
		Round:    1,
		Position: 1,
		Status:   StatusPending,
	})
	if grandFinalReset {
		matches = append(matches, &Match{
			Key:      KeyGrandFinalReset,
			Bracket:  BracketFinal,
			Round:    2,
			Position: 1,
			Status:   StatusPending,
		})
	}
	return matches
}

func buildRoundRobin(teamIDs []int64) []*Match {
	pairs := leagues.BuildRoundRobinPairs(teamIDs, false)
	matches := make([]*Match, 0, len(pairs))
	positions := make(map[int]int)
	for _, pair := range pairs {
		positions[pair.Round]++
		matches = append(matches, &Match{
			Key:      matchKey("RR", pair.Round, positions[pair.Round]),
			Bracket:  BracketRoundRobin,
			Round:    pair.Round,
			Position: positions[pair.Round],
			Home:     Slot{TeamID: pair.HomeTeamID},
			Away:     Slot{TeamID: pair.AwayTeamID},
			Status:   StatusPending,
		})
	}
	return matches
}

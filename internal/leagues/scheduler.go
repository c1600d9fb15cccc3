package leagues

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrInvalidSchedule wraps every reason a schedule cannot be generated.
var ErrInvalidSchedule = errors.New("invalid schedule")

type ScheduleOptions struct {
	// StartDate and EndDate are inclusive. Their location is used for kickoffs.
	StartDate        time.Time
	EndDate          time.Time
	Weekdays         []time.Weekday
	KickoffTimes     []string
	Fields           int
	MatchDuration    time.Duration
	DoubleRoundRobin bool
	Location         string
}

type ScheduledMatch struct {
	Round      int
	HomeTeamID int64
	AwayTeamID int64
	StartTime  time.Time
	Field      int
	Location   string
}

// GenerateRoundRobinSchedule pairs every team with every other team using the
// circle method and places round N on the Nth match date.
func GenerateRoundRobinSchedule(teamIDs []int64, opts ScheduleOptions) ([]ScheduledMatch, error) {
	if len(teamIDs) < 2 {
		return nil, fmt.Errorf("%w: at least two teams are required", ErrInvalidSchedule)
	}
	seen := make(map[int64]struct{}, len(teamIDs))
	for _, id := range teamIDs {
		if _, ok := seen[id]; ok {
			return nil, fmt.Errorf("%w: team %d is listed twice", ErrInvalidSchedule, id)
		}
		seen[id] = struct{}{}
	}
	if opts.Fields <= 0 {
		return nil, fmt.Errorf("%w: at least one field is required", ErrInvalidSchedule)
	}
	if opts.MatchDuration <= 0 {
		return nil, fmt.Errorf("%w: match duration must be positive", ErrInvalidSchedule)
	}
	if len(opts.Weekdays) == 0 {
		return nil, fmt.Errorf("%w: at least one weekday is required", ErrInvalidSchedule)
	}

	kickoffs, err := parseKickoffTimes(opts.KickoffTimes, opts.MatchDuration)
	if err != nil {
		return nil, err
	}

	startDate := truncateDate(opts.StartDate)
	endDate := truncateDate(opts.EndDate)
	if endDate.Before(startDate) {
		return nil, fmt.Errorf("%w: start date must be on or before end date", ErrInvalidSchedule)
	}

	pairs := BuildRoundRobinPairs(teamIDs, opts.DoubleRoundRobin)
	rounds := 0
	perRound := make(map[int]int)
	for _, pair := range pairs {
		perRound[pair.Round]++
		if pair.Round > rounds {
			rounds = pair.Round
		}
	}

	dates := buildMatchDates(startDate, endDate, opts.Weekdays)
	if len(dates) < rounds {
		return nil, fmt.Errorf("%w: insufficient match dates: need %d rounds but only %d dates available", ErrInvalidSchedule, rounds, len(dates))
	}

	slotsPerDate := len(kickoffs) * opts.Fields
	for round := 1; round <= rounds; round++ {
		if perRound[round] > slotsPerDate {
			return nil, fmt.Errorf("%w: insufficient slots: round %d needs %d matches but a match date offers %d", ErrInvalidSchedule, round, perRound[round], slotsPerDate)
		}
	}

	schedule := make([]ScheduledMatch, 0, len(pairs))
	used := make(map[int]int)
	for _, pair := range pairs {
		date := dates[pair.Round-1]
		idx := used[pair.Round]
		used[pair.Round]++

		kickoff := kickoffs[idx/opts.Fields]
		field := idx%opts.Fields + 1
		schedule = append(schedule, ScheduledMatch{
			Round:      pair.Round,
			HomeTeamID: pair.HomeTeamID,
			AwayTeamID: pair.AwayTeamID,
			StartTime:  time.Date(date.Year(), date.Month(), date.Day(), kickoff.Hour(), kickoff.Minute(), 0, 0, date.Location()),
			Field:      field,
			Location:   fieldLocation(opts.Location, field, opts.Fields),
		})
	}
	return schedule, nil
}

type RoundPair struct {
	Round      int
	HomeTeamID int64
	AwayTeamID int64
}

// BuildRoundRobinPairs uses the circle method. An odd team count adds a bye,
// so one team rests each round. The double variant repeats every round with
// home and away swapped.
func BuildRoundRobinPairs(teamIDs []int64, double bool) []RoundPair {
	working := make([]*int64, 0, len(teamIDs)+1)
	for i := range teamIDs {
		working = append(working, &teamIDs[i])
	}
	if len(working)%2 == 1 {
		working = append(working, nil)
	}
	if len(working) < 2 {
		return nil
	}

	rounds := len(working) - 1
	pairs := make([]RoundPair, 0, rounds*len(working)/2)

	for round := 0; round < rounds; round++ {
		for i := 0; i < len(working)/2; i++ {
			left := working[i]
			right := working[len(working)-1-i]
			if left == nil || right == nil {
				continue
			}
			home, away := *left, *right
			if i == 0 && round%2 == 1 {
				home, away = away, home
			}
			pairs = append(pairs, RoundPair{Round: round + 1, HomeTeamID: home, AwayTeamID: away})
		}
		rotateTeams(working)
	}

	if double {
		firstLeg := len(pairs)
		for i := 0; i < firstLeg; i++ {
			pair := pairs[i]
			pairs = append(pairs, RoundPair{
				Round:      pair.Round + rounds,
				HomeTeamID: pair.AwayTeamID,
				AwayTeamID: pair.HomeTeamID,
			})
		}
	}

	return pairs
}

func rotateTeams(teams []*int64) {
	if len(teams) <= 2 {
		return
	}
	last := teams[len(teams)-1]
	copy(teams[2:], teams[1:len(teams)-1])
	teams[1] = last
}

func buildMatchDates(startDate, endDate time.Time, weekdays []time.Weekday) []time.Time {
	allowed := make(map[time.Weekday]struct{}, len(weekdays))
	for _, day := range weekdays {
		allowed[day] = struct{}{}
	}

	var dates []time.Time
	for date := startDate; !date.After(endDate); date = date.AddDate(0, 0, 1) {
		if _, ok := allowed[date.Weekday()]; ok {
			dates = append(dates, date)
		}
	}
	return dates
}

func parseKickoffTimes(raw []string, matchDuration time.Duration) ([]time.Time, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: at least one kickoff time is required", ErrInvalidSchedule)
	}

	kickoffs := make([]time.Time, 0, len(raw))
	for _, value := range raw {
		parsed, err := ParseTimeOfDay(value)
		if err != nil {
			return nil, fmt.Errorf("%w: kickoff time %q: %v", ErrInvalidSchedule, value, err)
		}
		kickoffs = append(kickoffs, parsed)
	}

	sort.Slice(kickoffs, func(i, j int) bool { return kickoffs[i].Before(kickoffs[j]) })
	for i := 1; i < len(kickoffs); i++ {
		if kickoffs[i].Sub(kickoffs[i-1]) < matchDuration {
			return nil, fmt.Errorf("%w: kickoff times %s and %s are closer than the match duration",
				ErrInvalidSchedule, kickoffs[i-1].Format("15:04"), kickoffs[i].Format("15:04"))
		}
	}
	return kickoffs, nil
}

// ParseTimeOfDay accepts HH:MM and H:MM AM/PM.
func ParseTimeOfDay(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("time is required")
	}
	parsed, err := time.Parse("15:04", raw)
	if err != nil {
		formats := []string{"3:04 PM", "03:04 PM", "3:04PM", "03:04PM"}
		for _, format := range formats {
			if parsed, err = time.Parse(format, strings.ToUpper(raw)); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, errors.New("time must be in HH:MM or H:MM AM/PM format")
	}
	return parsed, nil
}

func fieldLocation(location string, field, fields int) string {
	location = strings.TrimSpace(location)
	if fields <= 1 {
		return location
	}
	if location == "" {
		return fmt.Sprintf("Field %d", field)
	}
	return fmt.Sprintf("%s - Field %d", location, field)
}

func truncateDate(value time.Time) time.Time {
	loc := value.Location()
	return time.Date(value.Year(), value.Month(), value.Day(), 0, 0, 0, 0, loc)
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseWeekdays accepts English day names or three letter abbreviations in any
// case. Duplicates collapse.
func ParseWeekdays(raw []string) ([]time.Weekday, error) {
	seen := make(map[time.Weekday]struct{}, len(raw))
	days := make([]time.Weekday, 0, len(raw))
	for _, value := range raw {
		day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(value))]
		if !ok {
			return nil, fmt.Errorf("%w: unknown weekday %q", ErrInvalidSchedule, value)
		}
		if _, dup := seen[day]; dup {
			continue
		}
		seen[day] = struct{}{}
		days = append(days, day)
	}
	return days, nil
}

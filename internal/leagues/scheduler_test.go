package leagues

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestBuildRoundRobinPairsCoversEveryPairOnce(t *testing.T) {
	for _, n := range []int{2, 3, 4, 5, 6, 7, 8} {
		ids := make([]int64, n)
		for i := range ids {
			ids[i] = int64(i + 1)
		}

		pairs := BuildRoundRobinPairs(ids, false)
		if want := n * (n - 1) / 2; len(pairs) != want {
			t.Fatalf("n=%d: expected %d pairs, got %d", n, want, len(pairs))
		}

		seen := make(map[[2]int64]bool)
		perRound := make(map[int]map[int64]bool)
		for _, pair := range pairs {
			a, b := pair.HomeTeamID, pair.AwayTeamID
			if a > b {
				a, b = b, a
			}
			key := [2]int64{a, b}
			if seen[key] {
				t.Fatalf("n=%d: pair %v scheduled twice", n, key)
			}
			seen[key] = true

			if perRound[pair.Round] == nil {
				perRound[pair.Round] = make(map[int64]bool)
			}
			for _, id := range []int64{pair.HomeTeamID, pair.AwayTeamID} {
				if perRound[pair.Round][id] {
					t.Fatalf("n=%d: team %d plays twice in round %d", n, id, pair.Round)
				}
				perRound[pair.Round][id] = true
			}
		}

		wantRounds := n - 1
		if n%2 == 1 {
			wantRounds = n
		}
		if len(perRound) != wantRounds {
			t.Fatalf("n=%d: expected %d rounds, got %d", n, wantRounds, len(perRound))
		}
	}
}

func TestBuildRoundRobinPairsDoubleSwapsHomeAndAway(t *testing.T) {
	pairs := BuildRoundRobinPairs([]int64{1, 2, 3, 4}, true)
	if len(pairs) != 12 {
		t.Fatalf("expected 12 pairs, got %d", len(pairs))
	}

	home := make(map[[2]int64]int)
	for _, pair := range pairs {
		home[[2]int64{pair.HomeTeamID, pair.AwayTeamID}]++
	}
	for key, count := range home {
		if count != 1 {
			t.Fatalf("fixture %v at home %d times", key, count)
		}
		if home[[2]int64{key[1], key[0]}] != 1 {
			t.Fatalf("fixture %v has no reverse fixture", key)
		}
	}
	if pairs[len(pairs)-1].Round != 6 {
		t.Fatalf("expected 6 rounds, got last round %d", pairs[len(pairs)-1].Round)
	}
}

func TestGenerateRoundRobinSchedulePlacesRoundsOnMatchDates(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	// Saturday 2024-06-01 through Sunday 2024-06-16.
	opts := ScheduleOptions{
		StartDate:     time.Date(2024, 6, 1, 0, 0, 0, 0, loc),
		EndDate:       time.Date(2024, 6, 16, 0, 0, 0, 0, loc),
		Weekdays:      []time.Weekday{time.Saturday},
		KickoffTimes:  []string{"10:00", "9:00 AM"},
		Fields:        1,
		MatchDuration: 60 * time.Minute,
		Location:      "Riverside Park",
	}

	schedule, err := GenerateRoundRobinSchedule([]int64{1, 2, 3, 4}, opts)
	if err != nil {
		t.Fatalf("generate schedule: %v", err)
	}
	if len(schedule) != 6 {
		t.Fatalf("expected 6 matches, got %d", len(schedule))
	}

	wantDates := map[int]int{1: 1, 2: 8, 3: 15}
	for _, match := range schedule {
		if match.StartTime.Weekday() != time.Saturday {
			t.Fatalf("match on %s", match.StartTime.Weekday())
		}
		if match.StartTime.Day() != wantDates[match.Round] {
			t.Fatalf("round %d on day %d, want %d", match.Round, match.StartTime.Day(), wantDates[match.Round])
		}
		if match.StartTime.Location() != loc {
			t.Fatalf("expected league location, got %s", match.StartTime.Location())
		}
		if h := match.StartTime.Hour(); h != 9 && h != 10 {
			t.Fatalf("unexpected kickoff %s", match.StartTime)
		}
		if match.Location != "Riverside Park" {
			t.Fatalf("unexpected location %q", match.Location)
		}
	}
	// Kickoffs are sorted, so the first match of a date starts at 09:00.
	if schedule[0].StartTime.Hour() != 9 {
		t.Fatalf("expected first kickoff at 09:00, got %s", schedule[0].StartTime)
	}
}

func TestGenerateRoundRobinScheduleSplitsAcrossFields(t *testing.T) {
	opts := ScheduleOptions{
		StartDate:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		Weekdays:      []time.Weekday{time.Saturday, time.Sunday},
		KickoffTimes:  []string{"18:00"},
		Fields:        2,
		MatchDuration: 90 * time.Minute,
		Location:      "Complex",
	}

	schedule, err := GenerateRoundRobinSchedule([]int64{1, 2, 3, 4}, opts)
	if err != nil {
		t.Fatalf("generate schedule: %v", err)
	}
	fields := make(map[string]bool)
	for _, match := range schedule {
		fields[match.Location] = true
	}
	if !fields["Complex - Field 1"] || !fields["Complex - Field 2"] {
		t.Fatalf("expected both fields used, got %v", fields)
	}
}

func TestGenerateRoundRobinScheduleShortfalls(t *testing.T) {
	base := ScheduleOptions{
		StartDate:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC),
		Weekdays:      []time.Weekday{time.Saturday},
		KickoffTimes:  []string{"10:00"},
		Fields:        1,
		MatchDuration: time.Hour,
	}

	tests := []struct {
		name    string
		teams   []int64
		mutate  func(*ScheduleOptions)
		message string
	}{
		{name: "too few dates", teams: []int64{1, 2, 3}, message: "insufficient match dates"},
		{name: "too few slots", teams: []int64{1, 2, 3, 4}, mutate: func(o *ScheduleOptions) {
			o.EndDate = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
		}, message: "insufficient slots"},
		{name: "overlapping kickoffs", teams: []int64{1, 2}, mutate: func(o *ScheduleOptions) {
			o.KickoffTimes = []string{"10:00", "10:30"}
		}, message: "closer than the match duration"},
		{name: "single team", teams: []int64{1}, message: "at least two teams"},
		{name: "duplicate team", teams: []int64{1, 1}, message: "listed twice"},
		{name: "no weekdays", teams: []int64{1, 2}, mutate: func(o *ScheduleOptions) {
			o.Weekdays = nil
		}, message: "weekday"},
		{name: "bad kickoff", teams: []int64{1, 2}, mutate: func(o *ScheduleOptions) {
			o.KickoffTimes = []string{"25:99"}
		}, message: "kickoff time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := base
			if tt.mutate != nil {
				tt.mutate(&opts)
			}
			_, err := GenerateRoundRobinSchedule(tt.teams, opts)
			if !errors.Is(err, ErrInvalidSchedule) {
				t.Fatalf("expected ErrInvalidSchedule, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Fatalf("expected %q in %q", tt.message, err.Error())
			}
		})
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tests := map[string]string{
		"18:30":   "18:30",
		"6:30 pm": "18:30",
		"07:05AM": "07:05",
	}
	for raw, want := range tests {
		got, err := ParseTimeOfDay(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got.Format("15:04") != want {
			t.Fatalf("parse %q = %s, want %s", raw, got.Format("15:04"), want)
		}
	}
	if _, err := ParseTimeOfDay(""); err == nil {
		t.Fatal("expected error for empty time")
	}
}

func TestParseWeekdays(t *testing.T) {
	days, err := ParseWeekdays([]string{"Saturday", "sun", " SAT ", "Wed"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []time.Weekday{time.Saturday, time.Sunday, time.Wednesday}
	if len(days) != len(want) {
		t.Fatalf("expected %v, got %v", want, days)
	}
	for i := range want {
		if days[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, days)
		}
	}

	if _, err := ParseWeekdays([]string{"funday"}); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule, got %v", err)
	}
}

package dbq

import "time"

const (
	RoleAdmin  = "admin"
	RolePlayer = "player"

	MatchScheduled = "scheduled"
	MatchCompleted = "completed"
	MatchCancelled = "cancelled"

	AssignmentPending   = "pending"
	AssignmentConfirmed = "confirmed"
	AssignmentDeclined  = "declined"

	PracticeScheduled = "scheduled"
	PracticeCancelled = "cancelled"

	ChannelTeam   = "team"
	ChannelLeague = "league"
)

type User struct {
	ID           int64     `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	DisplayName  string    `db:"display_name" json:"displayName"`
	Phone        *string   `db:"phone" json:"phone"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

type Team struct {
	ID         int64     `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Sport      string    `db:"sport" json:"sport"`
	City       string    `db:"city" json:"city"`
	InviteCode string    `db:"invite_code" json:"inviteCode,omitempty"`
	CreatedBy  int64     `db:"created_by" json:"createdBy"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// UserTeam is a team seen from one member.
type UserTeam struct {
	Team
	Role string `db:"role" json:"role"`
}

type TeamMember struct {
	TeamID       int64     `db:"team_id" json:"teamId"`
	UserID       int64     `db:"user_id" json:"userId"`
	Role         string    `db:"role" json:"role"`
	JerseyNumber *int64    `db:"jersey_number" json:"jerseyNumber"`
	Position     string    `db:"position" json:"position"`
	JoinedAt     time.Time `db:"joined_at" json:"joinedAt"`
	DisplayName  string    `db:"display_name" json:"displayName"`
	Email        string    `db:"email" json:"email"`
	Phone        *string   `db:"phone" json:"phone"`
}

type Match struct {
	ID             int64     `db:"id" json:"id"`
	TeamID         int64     `db:"team_id" json:"teamId"`
	TeamName       string    `db:"team_name" json:"teamName"`
	OpponentName   string    `db:"opponent_name" json:"opponentName"`
	OpponentTeamID *int64    `db:"opponent_team_id" json:"opponentTeamId"`
	Location       string    `db:"location" json:"location"`
	StartsAt       time.Time `db:"starts_at" json:"startsAt"`
	IsHome         bool      `db:"is_home" json:"isHome"`
	Status         string    `db:"status" json:"status"`
	TeamScore      *int64    `db:"team_score" json:"teamScore"`
	OpponentScore  *int64    `db:"opponent_score" json:"opponentScore"`
	Notes          string    `db:"notes" json:"notes"`
	CreatedBy      int64     `db:"created_by" json:"createdBy"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

type Assignment struct {
	ID            int64      `db:"id" json:"id"`
	MatchID       int64      `db:"match_id" json:"matchId"`
	UserID        int64      `db:"user_id" json:"userId"`
	DisplayName   string     `db:"display_name" json:"displayName"`
	Position      string     `db:"position" json:"position"`
	Status        string     `db:"status" json:"status"`
	RespondedAt   *time.Time `db:"responded_at" json:"respondedAt"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	TeamID        int64      `db:"team_id" json:"teamId"`
	OpponentName  string     `db:"opponent_name" json:"opponentName"`
	MatchStartsAt time.Time  `db:"match_starts_at" json:"matchStartsAt"`
}

type Practice struct {
	ID        int64     `db:"id" json:"id"`
	TeamID    int64     `db:"team_id" json:"teamId"`
	TeamName  string    `db:"team_name" json:"teamName"`
	Title     string    `db:"title" json:"title"`
	Location  string    `db:"location" json:"location"`
	StartsAt  time.Time `db:"starts_at" json:"startsAt"`
	EndsAt    time.Time `db:"ends_at" json:"endsAt"`
	Notes     string    `db:"notes" json:"notes"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type Notification struct {
	ID        int64      `db:"id" json:"id"`
	UserID    int64      `db:"user_id" json:"userId"`
	Kind      string     `db:"kind" json:"kind"`
	Title     string     `db:"title" json:"title"`
	Body      string     `db:"body" json:"body"`
	Link      string     `db:"link" json:"link"`
	ReadAt    *time.Time `db:"read_at" json:"readAt"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
}

type ChatMessage struct {
	ID          int64     `db:"id" json:"id"`
	ChannelKind string    `db:"channel_kind" json:"channelKind"`
	ChannelID   int64     `db:"channel_id" json:"channelId"`
	UserID      int64     `db:"user_id" json:"userId"`
	DisplayName string    `db:"display_name" json:"displayName"`
	Body        string    `db:"body" json:"body"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

type League struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Sport       string    `db:"sport" json:"sport"`
	Description string    `db:"description" json:"description"`
	CreatedBy   int64     `db:"created_by" json:"createdBy"`
	PointsWin   int64     `db:"points_win" json:"pointsWin"`
	PointsDraw  int64     `db:"points_draw" json:"pointsDraw"`
	PointsLoss  int64     `db:"points_loss" json:"pointsLoss"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

type LeagueTeam struct {
	LeagueID int64     `db:"league_id" json:"leagueId"`
	TeamID   int64     `db:"team_id" json:"teamId"`
	TeamName string    `db:"team_name" json:"teamName"`
	JoinedAt time.Time `db:"joined_at" json:"joinedAt"`
}

type LeagueAdmin struct {
	LeagueID    int64  `db:"league_id" json:"leagueId"`
	UserID      int64  `db:"user_id" json:"userId"`
	DisplayName string `db:"display_name" json:"displayName"`
	Email       string `db:"email" json:"email"`
}

type Season struct {
	ID               int64     `db:"id" json:"id"`
	LeagueID         int64     `db:"league_id" json:"leagueId"`
	Name             string    `db:"name" json:"name"`
	StartsOn         string    `db:"starts_on" json:"startsOn"`
	EndsOn           string    `db:"ends_on" json:"endsOn"`
	Status           string    `db:"status" json:"status"`
	DoubleRoundRobin bool      `db:"double_round_robin" json:"doubleRoundRobin"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
}

type SeasonMatch struct {
	ID           int64      `db:"id" json:"id"`
	SeasonID     int64      `db:"season_id" json:"seasonId"`
	LeagueID     int64      `db:"league_id" json:"leagueId"`
	Round        int64      `db:"round" json:"round"`
	HomeTeamID   int64      `db:"home_team_id" json:"homeTeamId"`
	HomeTeamName string     `db:"home_team_name" json:"homeTeamName"`
	AwayTeamID   int64      `db:"away_team_id" json:"awayTeamId"`
	AwayTeamName string     `db:"away_team_name" json:"awayTeamName"`
	ScheduledAt  *time.Time `db:"scheduled_at" json:"scheduledAt"`
	Location     string     `db:"location" json:"location"`
	Status       string     `db:"status" json:"status"`
	HomeScore    *int64     `db:"home_score" json:"homeScore"`
	AwayScore    *int64     `db:"away_score" json:"awayScore"`
	ConfirmedAt  *time.Time `db:"confirmed_at" json:"confirmedAt"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
}

type ScoreSubmission struct {
	ID                int64      `db:"id" json:"id"`
	SeasonMatchID     int64      `db:"season_match_id" json:"seasonMatchId"`
	SubmittedByTeamID int64      `db:"submitted_by_team_id" json:"submittedByTeamId"`
	SubmittedByUserID *int64     `db:"submitted_by_user_id" json:"submittedByUserId"`
	HomeScore         int64      `db:"home_score" json:"homeScore"`
	AwayScore         int64      `db:"away_score" json:"awayScore"`
	Status            string     `db:"status" json:"status"`
	RespondedByUserID *int64     `db:"responded_by_user_id" json:"respondedByUserId"`
	DisputeReason     string     `db:"dispute_reason" json:"disputeReason"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
	RespondedAt       *time.Time `db:"responded_at" json:"respondedAt"`
}

type Tournament struct {
	ID              int64     `db:"id" json:"id"`
	LeagueID        *int64    `db:"league_id" json:"leagueId"`
	Name            string    `db:"name" json:"name"`
	Format          string    `db:"format" json:"format"`
	Status          string    `db:"status" json:"status"`
	GrandFinalReset bool      `db:"grand_final_reset" json:"grandFinalReset"`
	ChampionTeamID  *int64    `db:"champion_team_id" json:"championTeamId"`
	CreatedBy       int64     `db:"created_by" json:"createdBy"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
}

type TournamentEntry struct {
	TournamentID int64  `db:"tournament_id" json:"tournamentId"`
	TeamID       int64  `db:"team_id" json:"teamId"`
	TeamName     string `db:"team_name" json:"teamName"`
	Seed         int64  `db:"seed" json:"seed"`
}

type TournamentMatch struct {
	ID           int64  `db:"id" json:"id"`
	TournamentID int64  `db:"tournament_id" json:"tournamentId"`
	BracketKey   string `db:"bracket_key" json:"key"`
	Bracket      string `db:"bracket" json:"bracket"`
	Round        int64  `db:"round" json:"round"`
	Position     int64  `db:"position" json:"position"`
	HomeTeamID   *int64 `db:"home_team_id" json:"homeTeamId"`
	AwayTeamID   *int64 `db:"away_team_id" json:"awayTeamId"`
	HomeBye      bool   `db:"home_bye" json:"homeBye"`
	AwayBye      bool   `db:"away_bye" json:"awayBye"`
	HomeScore    *int64 `db:"home_score" json:"homeScore"`
	AwayScore    *int64 `db:"away_score" json:"awayScore"`
	WinnerTeamID *int64 `db:"winner_team_id" json:"winnerTeamId"`
	Status       string `db:"status" json:"status"`
	WinnerTo     string `db:"winner_to" json:"winnerTo,omitempty"`
	WinnerSlot   int64  `db:"winner_slot" json:"winnerSlot,omitempty"`
	LoserTo      string `db:"loser_to" json:"loserTo,omitempty"`
	LoserSlot    int64  `db:"loser_slot" json:"loserSlot,omitempty"`
}

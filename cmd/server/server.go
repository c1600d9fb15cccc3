// cmd/server/server.go
package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/codr1/grudge/internal/api"
	"github.com/codr1/grudge/internal/api/auth"
	"github.com/codr1/grudge/internal/api/chat"
	"github.com/codr1/grudge/internal/api/leagues"
	"github.com/codr1/grudge/internal/api/matches"
	"github.com/codr1/grudge/internal/api/notifications"
	"github.com/codr1/grudge/internal/api/practices"
	"github.com/codr1/grudge/internal/api/share"
	"github.com/codr1/grudge/internal/api/teams"
	"github.com/codr1/grudge/internal/api/tournaments"
	"github.com/codr1/grudge/internal/config"
)

func newServer(cfg *config.Config, a *app) *http.Server {
	router := http.NewServeMux()

	// Setup middleware chain
	handler := api.ChainMiddleware(
		router,
		api.WithMetrics(a.metrics),
		api.WithAuth,
		auth.WithClerkSession,
		api.WithRecovery,
		api.WithLogging,
		api.WithRequestID,
		api.WithCORS(cfg.App.CORSOrigins),
	)

	// Register routes
	registerRoutes(router, a)

	// No WriteTimeout: chat streams stay open.
	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.App.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	server.RegisterOnShutdown(chat.Broadcast().Close)
	return server
}

func registerRoutes(mux *http.ServeMux, a *app) {
	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics.Handler())
	}

	// Auth
	mux.HandleFunc("POST /api/auth/register", auth.HandleRegister)
	mux.HandleFunc("POST /api/auth/login", auth.HandleLogin)
	mux.HandleFunc("POST /api/auth/logout", auth.HandleLogout)
	mux.HandleFunc("GET /api/auth/me", auth.HandleMe)
	mux.HandleFunc("PUT /api/auth/me", auth.HandleUpdateMe)

	// Teams and rosters
	mux.HandleFunc("GET /api/teams", teams.HandleTeamsList)
	mux.HandleFunc("POST /api/teams", teams.HandleTeamCreate)
	mux.HandleFunc("POST /api/teams/join", teams.HandleTeamJoin)
	mux.HandleFunc("GET /api/teams/{id}", teams.HandleTeamGet)
	mux.HandleFunc("PUT /api/teams/{id}", teams.HandleTeamUpdate)
	mux.HandleFunc("DELETE /api/teams/{id}", teams.HandleTeamDelete)
	mux.HandleFunc("POST /api/teams/{id}/invite-code", teams.HandleInviteCodeRotate)
	mux.HandleFunc("GET /api/teams/{id}/members", teams.HandleMembersList)
	mux.HandleFunc("POST /api/teams/{id}/members", teams.HandleMemberAdd)
	mux.HandleFunc("PATCH /api/teams/{id}/members/{user_id}", teams.HandleMemberUpdate)
	mux.HandleFunc("DELETE /api/teams/{id}/members/{user_id}", teams.HandleMemberRemove)

	// Team chat
	mux.HandleFunc("GET /api/teams/{id}/messages", chat.HandleTeamMessages)
	mux.HandleFunc("POST /api/teams/{id}/messages", chat.HandleTeamMessagePost)
	mux.HandleFunc("GET /api/teams/{id}/messages/stream", chat.HandleTeamMessageStream)

	// Matches and assignments
	mux.HandleFunc("GET /api/matches", matches.HandleMatchesList)
	mux.HandleFunc("POST /api/matches", matches.HandleMatchCreate)
	mux.HandleFunc("GET /api/matches/{id}", matches.HandleMatchGet)
	mux.HandleFunc("PUT /api/matches/{id}", matches.HandleMatchUpdate)
	mux.HandleFunc("DELETE /api/matches/{id}", matches.HandleMatchDelete)
	mux.HandleFunc("POST /api/matches/{id}/result", matches.HandleMatchResult)
	mux.HandleFunc("GET /api/matches/{id}/assignments", matches.HandleAssignmentsList)
	mux.HandleFunc("POST /api/matches/{id}/assignments", matches.HandleAssignmentCreate)
	mux.HandleFunc("GET /api/assignments", matches.HandleMyAssignments)
	mux.HandleFunc("DELETE /api/assignments/{id}", matches.HandleAssignmentDelete)
	mux.HandleFunc("POST /api/assignments/{id}/respond", matches.HandleAssignmentRespond)

	// Practices
	mux.HandleFunc("GET /api/practices", practices.HandlePracticesList)
	mux.HandleFunc("POST /api/practices", practices.HandlePracticeCreate)
	mux.HandleFunc("GET /api/practices/{id}", practices.HandlePracticeGet)
	mux.HandleFunc("PUT /api/practices/{id}", practices.HandlePracticeUpdate)
	mux.HandleFunc("DELETE /api/practices/{id}", practices.HandlePracticeDelete)
	mux.HandleFunc("POST /api/practices/{id}/cancel", practices.HandlePracticeCancel)

	// Notifications
	mux.HandleFunc("GET /api/notifications", notifications.HandleNotificationsList)
	mux.HandleFunc("GET /api/notifications/count", notifications.HandleNotificationCount)
	mux.HandleFunc("POST /api/notifications/read-all", notifications.HandleNotificationsReadAll)
	mux.HandleFunc("POST /api/notifications/{id}/read", notifications.HandleNotificationRead)
	mux.HandleFunc("DELETE /api/notifications/{id}", notifications.HandleNotificationDelete)

	// Leagues
	mux.HandleFunc("GET /api/leagues", leagues.HandleLeaguesList)
	mux.HandleFunc("POST /api/leagues", leagues.HandleLeagueCreate)
	mux.HandleFunc("GET /api/leagues/{id}", leagues.HandleLeagueGet)
	mux.HandleFunc("PUT /api/leagues/{id}", leagues.HandleLeagueUpdate)
	mux.HandleFunc("DELETE /api/leagues/{id}", leagues.HandleLeagueDelete)
	mux.HandleFunc("GET /api/leagues/{id}/teams", leagues.HandleLeagueTeamsList)
	mux.HandleFunc("POST /api/leagues/{id}/teams", leagues.HandleLeagueTeamAdd)
	mux.HandleFunc("DELETE /api/leagues/{id}/teams/{team_id}", leagues.HandleLeagueTeamRemove)
	mux.HandleFunc("GET /api/leagues/{id}/admins", leagues.HandleLeagueAdminsList)
	mux.HandleFunc("POST /api/leagues/{id}/admins", leagues.HandleLeagueAdminAdd)
	mux.HandleFunc("DELETE /api/leagues/{id}/admins/{user_id}", leagues.HandleLeagueAdminRemove)

	// League chat
	mux.HandleFunc("GET /api/leagues/{id}/messages", chat.HandleLeagueMessages)
	mux.HandleFunc("POST /api/leagues/{id}/messages", chat.HandleLeagueMessagePost)
	mux.HandleFunc("GET /api/leagues/{id}/messages/stream", chat.HandleLeagueMessageStream)

	// Seasons and schedules
	mux.HandleFunc("GET /api/leagues/{id}/seasons", leagues.HandleSeasonsList)
	mux.HandleFunc("POST /api/leagues/{id}/seasons", leagues.HandleSeasonCreate)
	mux.HandleFunc("GET /api/leagues/{id}/seasons/{season_id}", leagues.HandleSeasonGet)
	mux.HandleFunc("PUT /api/leagues/{id}/seasons/{season_id}", leagues.HandleSeasonUpdate)
	mux.HandleFunc("DELETE /api/leagues/{id}/seasons/{season_id}", leagues.HandleSeasonDelete)
	mux.HandleFunc("POST /api/leagues/{id}/seasons/{season_id}/generate-schedule", leagues.HandleGenerateSchedule)
	mux.HandleFunc("POST /api/leagues/{id}/seasons/{season_id}/regenerate-schedule", leagues.HandleRegenerateSchedule)
	mux.HandleFunc("GET /api/leagues/{id}/seasons/{season_id}/matches", leagues.HandleSeasonMatchesList)
	mux.HandleFunc("PUT /api/leagues/{id}/seasons/{season_id}/matches/{match_id}/schedule", leagues.HandleSeasonMatchReschedule)
	mux.HandleFunc("GET /api/leagues/{id}/seasons/{season_id}/standings", leagues.HandleSeasonStandings)

	// Score submissions
	mux.HandleFunc("GET /api/season-matches/{id}", leagues.HandleSeasonMatchGet)
	mux.HandleFunc("GET /api/season-matches/{id}/scores", leagues.HandleScoreSubmissionsList)
	mux.HandleFunc("POST /api/season-matches/{id}/scores", leagues.HandleScoreSubmit)
	mux.HandleFunc("POST /api/season-matches/{id}/scores/resolve", leagues.HandleScoreResolve)
	mux.HandleFunc("POST /api/season-matches/{id}/scores/{submission_id}/confirm", leagues.HandleScoreConfirm)
	mux.HandleFunc("POST /api/season-matches/{id}/scores/{submission_id}/dispute", leagues.HandleScoreDispute)

	// Tournaments
	mux.HandleFunc("GET /api/tournaments", tournaments.HandleTournamentsList)
	mux.HandleFunc("POST /api/tournaments", tournaments.HandleTournamentCreate)
	mux.HandleFunc("GET /api/tournaments/{id}", tournaments.HandleTournamentGet)
	mux.HandleFunc("DELETE /api/tournaments/{id}", tournaments.HandleTournamentDelete)
	mux.HandleFunc("POST /api/tournaments/{id}/matches/{match_id}/result", tournaments.HandleMatchResult)
	mux.HandleFunc("GET /api/leagues/{id}/tournaments", tournaments.HandleLeagueTournamentsList)
	mux.HandleFunc("POST /api/leagues/{id}/create-tournament", tournaments.HandleLeagueTournamentCreate)

	// Public share pages
	mux.HandleFunc("GET /share/seasons/{season_id}", share.HandleSeasonPage)
	mux.HandleFunc("GET /share/tournaments/{id}", share.HandleTournamentPage)
}

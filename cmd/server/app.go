// cmd/server/app.go
package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

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
	appdb "github.com/codr1/grudge/internal/db"
	"github.com/codr1/grudge/internal/email"
	"github.com/codr1/grudge/internal/metrics"
	"github.com/codr1/grudge/internal/notify"
	"github.com/codr1/grudge/internal/ratelimit"
	"github.com/codr1/grudge/internal/scheduler"
	"github.com/codr1/grudge/internal/scoring"
)

// app holds the long-lived dependencies shared by handlers and jobs.
type app struct {
	db      *appdb.DB
	metrics *metrics.Recorder
	limiter *ratelimit.Limiter
	jobs    *scheduler.Jobs
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	database, err := appdb.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var rec *metrics.Recorder
	if cfg.Features.EnableMetrics {
		rec = metrics.NewRecorder()
	}

	sender, err := newEmailSender(ctx, cfg)
	if err != nil {
		database.Close()
		return nil, err
	}

	notifier := notify.New(database.Queries, sender, notify.Options{
		AppName: cfg.App.Name,
		BaseURL: cfg.App.BaseURL,
		Metrics: rec,
	})
	engine, err := scoring.NewEngine(database, notifier)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("create score engine: %w", err)
	}
	limiter := ratelimit.New(ratelimit.DefaultConfig())

	if cfg.Clerk.Enabled {
		auth.InitClerk(cfg.Clerk.SecretKey)
	}

	auth.InitHandlers(database, cfg, limiter)
	teams.InitHandlers(database, notifier, limiter, cfg)
	matches.InitHandlers(database, notifier)
	practices.InitHandlers(database, notifier)
	notifications.InitHandlers(database.Queries)
	chat.InitHandlers(database.Queries, rec, cfg.Chat)
	leagues.InitHandlers(database, notifier, engine)
	tournaments.InitHandlers(database, notifier)
	share.InitHandlers(database.Queries)

	jobs, err := scheduler.NewJobs(database, cfg.Jobs, scheduler.JobsOptions{
		Notifier: notifier,
		Engine:   engine,
		Sender:   sender,
		Metrics:  rec,
		AppName:  cfg.App.Name,
		BaseURL:  cfg.App.BaseURL,
	})
	if err != nil {
		limiter.Close()
		database.Close()
		return nil, err
	}

	return &app{db: database, metrics: rec, limiter: limiter, jobs: jobs}, nil
}

// newEmailSender returns nil when email is disabled so callers skip delivery.
func newEmailSender(ctx context.Context, cfg *config.Config) (email.Sender, error) {
	if !cfg.Email.Enabled {
		log.Info().Msg("Email delivery disabled")
		return nil, nil
	}
	client, err := email.NewSESClient(ctx, email.SESConfig{
		Region:          cfg.Email.Region,
		From:            cfg.Email.Sender,
		AccessKeyID:     cfg.Email.AccessKeyID,
		SecretAccessKey: cfg.Email.SecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create ses client: %w", err)
	}
	log.Info().Str("region", cfg.Email.Region).Msg("Email delivery enabled")
	return email.NewRetryingSender(client, 0), nil
}

func (a *app) Close() {
	a.limiter.Close()
	if err := a.db.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close database")
	}
}

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/grudge/internal/config"
	appdb "github.com/codr1/grudge/internal/db"
	"github.com/codr1/grudge/internal/email"
	"github.com/codr1/grudge/internal/metrics"
	"github.com/codr1/grudge/internal/notify"
	"github.com/codr1/grudge/internal/scoring"
)

const (
	JobReminders     = "reminders"
	JobAutoConfirm   = "score_auto_confirm"
	JobChatRetention = "chat_retention"
)

// Jobs holds the dependencies of the background jobs.
type Jobs struct {
	db       *appdb.DB
	notifier *notify.Service
	engine   *scoring.Engine
	sender   email.Sender
	metrics  *metrics.Recorder
	cfg      config.JobsConfig
	appName  string
	baseURL  string
	now      func() time.Time
}

type JobsOptions struct {
	Notifier *notify.Service
	Engine   *scoring.Engine
	Sender   email.Sender
	Metrics  *metrics.Recorder
	AppName  string
	BaseURL  string
}

func NewJobs(database *appdb.DB, cfg config.JobsConfig, opts JobsOptions) (*Jobs, error) {
	if database == nil {
		return nil, fmt.Errorf("jobs require database")
	}
	return &Jobs{
		db:       database,
		notifier: opts.Notifier,
		engine:   opts.Engine,
		sender:   opts.Sender,
		metrics:  opts.Metrics,
		cfg:      cfg,
		appName:  opts.AppName,
		baseURL:  opts.BaseURL,
		now:      time.Now,
	}, nil
}

// Register adds every job to s on its configured schedule.
func (j *Jobs) Register(s *Service) error {
	jobs := []struct {
		name string
		cron string
		task Task
	}{
		{JobReminders, j.cfg.RemindersCron, j.SendReminders},
		{JobAutoConfirm, j.cfg.AutoConfirmCron, j.AutoConfirmScores},
		{JobChatRetention, j.cfg.ChatRetentionCron, j.PurgeChat},
	}
	for _, job := range jobs {
		if _, err := s.AddJob(job.name, job.cron, job.task); err != nil {
			return fmt.Errorf("add %s job: %w", job.name, err)
		}
	}
	return nil
}

// AutoConfirmScores confirms submissions left pending longer than
// auto_confirm_after_hours. Zero disables the job.
func (j *Jobs) AutoConfirmScores(ctx context.Context) error {
	logger := log.Ctx(ctx)
	if j.cfg.AutoConfirmAfterHours == 0 {
		logger.Debug().Msg("Auto-confirm skipped: disabled")
		return nil
	}
	if j.engine == nil {
		return fmt.Errorf("auto-confirm requires score engine")
	}

	cutoff := j.now().UTC().Add(-time.Duration(j.cfg.AutoConfirmAfterHours) * time.Hour)
	confirmed, err := j.engine.AutoConfirmBefore(ctx, cutoff)
	logger.Info().Int("confirmed", confirmed).Time("cutoff", cutoff).Msg("Auto-confirm job finished")
	return err
}

// PurgeChat deletes chat messages older than chat_retention_days. Zero keeps
// messages forever.
func (j *Jobs) PurgeChat(ctx context.Context) error {
	logger := log.Ctx(ctx)
	if j.cfg.ChatRetentionDays == 0 {
		logger.Debug().Msg("Chat retention skipped: disabled")
		return nil
	}

	cutoff := j.now().UTC().AddDate(0, 0, -j.cfg.ChatRetentionDays)
	deleted, err := j.db.Queries.DeleteChatMessagesBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete chat messages: %w", err)
	}
	logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("Chat retention job finished")
	return nil
}

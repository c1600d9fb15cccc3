// Package scheduler runs the app's periodic jobs on a gocron scheduler.
package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/codr1/grudge/internal/metrics"
)

const defaultJobTimeout = 2 * time.Minute

var (
	ErrNotInitialized = errors.New("scheduler not initialized")
	ErrEmptyJobName   = errors.New("job name is required")
	ErrEmptyCronExpr  = errors.New("cron expression is required")
)

// Task is one run of a scheduled job.
type Task func(ctx context.Context) error

type Service struct {
	scheduler gocron.Scheduler
	metrics   *metrics.Recorder
	timeout   time.Duration

	stopOnce sync.Once
	stopErr  error
}

func logPanic(jobID uuid.UUID, jobName string, recovered any) {
	log.Error().
		Str("job", jobName).
		Stringer("job_id", jobID).
		Interface("panic", recovered).
		Msg("Job panicked")
}

// New returns a stopped scheduler on UTC. rec may be nil.
func New(rec *metrics.Recorder) (*Service, error) {
	sched, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithGlobalJobOptions(gocron.WithEventListeners(gocron.AfterJobRunsWithPanic(logPanic))),
	)
	if err != nil {
		return nil, err
	}
	return &Service{scheduler: sched, metrics: rec, timeout: defaultJobTimeout}, nil
}

func (s *Service) Start() {
	if s == nil {
		log.Error().Err(ErrNotInitialized).Msg("Cannot start scheduler")
		return
	}
	s.scheduler.Start()
	log.Info().Int("jobs", len(s.scheduler.Jobs())).Msg("Scheduler started")
}

// Stop waits for running jobs. Repeated calls return the first result.
func (s *Service) Stop() error {
	if s == nil {
		return ErrNotInitialized
	}
	s.stopOnce.Do(func() {
		s.stopErr = s.scheduler.Shutdown()
		log.Info().Err(s.stopErr).Msg("Scheduler stopped")
	})
	return s.stopErr
}

// AddJob schedules task on a five-field cron expression. A run that is still
// going when the next one is due pushes that one back.
func (s *Service) AddJob(name, cronExpr string, task Task) (gocron.Job, error) {
	switch {
	case s == nil:
		return nil, ErrNotInitialized
	case strings.TrimSpace(name) == "":
		return nil, ErrEmptyJobName
	case strings.TrimSpace(cronExpr) == "":
		return nil, ErrEmptyCronExpr
	}

	job, err := s.scheduler.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(func() { _ = s.run(name, task) }),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}
	log.Info().Str("job", name).Str("cron", cronExpr).Msg("Job registered")
	return job, nil
}

func (s *Service) run(name string, task Task) error {
	logger := log.With().Str("job", name).Logger()
	ctx, cancel := context.WithTimeout(logger.WithContext(context.Background()), s.timeout)
	defer cancel()

	start := time.Now()
	err := task(ctx)
	elapsed := time.Since(start)
	s.metrics.RecordJobRun(name, elapsed, err)

	event := logger.Debug()
	if err != nil {
		event = logger.Error().Err(err)
	}
	event.Dur("duration", elapsed).Msg("Job finished")
	return err
}

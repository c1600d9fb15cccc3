// Command server runs the Grudge API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/codr1/grudge/internal/config"
	"github.com/codr1/grudge/internal/scheduler"
)

const defaultConfigPath = "config.yaml"

func configPath() string {
	if path, ok := os.LookupEnv("GRUDGE_CONFIG"); ok && path != "" {
		return path
	}
	return defaultConfigPath
}

func setupLogger(environment string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func main() {
	if err := run(); err != nil {
		log.Error().Err(err).Msg("Server exited")
		os.Exit(1)
	}
}

// run returns once the server has drained after SIGINT or SIGTERM.
func run() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogger(cfg.App.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer app.Close()

	sched, err := scheduler.New(app.metrics)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	if err := app.jobs.Register(sched); err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}

	server := newServer(cfg, app)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Int("port", cfg.App.Port).Str("env", cfg.App.Environment).Msg("Listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		sched.Start()
		<-gctx.Done()

		grace := time.Duration(cfg.App.ShutdownTimeoutSeconds) * time.Second
		log.Info().Dur("grace", grace).Msg("Draining")
		if err := sched.Stop(); err != nil {
			log.Error().Err(err).Msg("Scheduler did not stop cleanly")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

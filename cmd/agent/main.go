package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vmarcondes-nilo/equity-research-agent/internal/clients/yahoo"
	appconfig "github.com/vmarcondes-nilo/equity-research-agent/internal/config"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/database"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/fetch"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/modules/portfolio"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/modules/research"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/modules/universe"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/scheduler"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/server"
	"github.com/vmarcondes-nilo/equity-research-agent/pkg/logger"
)

func main() {
	cfg, err := appconfig.Load()
	if err != nil {
		bootLog := logger.New(logger.Config{Level: "info"})
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting equity research agent")

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Wiring: one Yahoo client backs both market data and benchmark reads
	client := yahoo.NewClient(log)
	portfolios := portfolio.NewRepository(db.Conn(), log)
	universeRepo := universe.NewRepository(db.Conn(), log)

	fetchCfg := fetch.Config{
		MinDelay:        cfg.FetchMinDelay,
		BatchSize:       cfg.FetchBatchSize,
		InterBatchDelay: cfg.FetchInterBatchDelay,
		MaxRetries:      cfg.FetchMaxRetries,
		BaseBackoff:     cfg.FetchBaseBackoff,
	}
	svc := research.NewService(client, client, portfolios, universeRepo, fetchCfg, log)

	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.ReviewSchedule, scheduler.NewReviewJob(svc, portfolios, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register review job")
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Port:       cfg.Port,
		Log:        log,
		Portfolios: portfolios,
		Universe:   universeRepo,
		Research:   svc,
		App:        cfg,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Stopped")
}

package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crewledger/crewledger/internal/api"
	"github.com/crewledger/crewledger/internal/config"
	"github.com/crewledger/crewledger/internal/convo"
	"github.com/crewledger/crewledger/internal/extract"
	"github.com/crewledger/crewledger/internal/media"
	"github.com/crewledger/crewledger/internal/platform/logger"
	"github.com/crewledger/crewledger/internal/services"
	"github.com/crewledger/crewledger/internal/store"
	"github.com/crewledger/crewledger/internal/store/postgres"
	"github.com/crewledger/crewledger/internal/store/sqlite"
)

func main() {
	// Optional build-target flag override (local | cloud)
	buildTarget := flag.String("build-target", "", "Override BUILD_TARGET (local, cloud)")
	flag.Parse()

	log := logger.New("crewledger")

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *buildTarget != "" {
		cfg.BuildTarget = *buildTarget
		cfg.DBDriver = "auto"
		if err := cfg.ResolveDefaults(); err != nil {
			log.Fatal().Err(err).Msg("Invalid build-target override")
		}
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Str("confirm_mode", string(cfg.ConfirmMode)).
		Int("http_port", cfg.HTTPPort).
		Msg("CrewLedger intake service starting…")

	// -------- Storage layer -----------------
	st, db, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Storage adapter unavailable")
	}
	defer func() { _ = db.Close() }()

	// -------- Intake pipeline ---------------
	vision := extract.NewClient(cfg.VisionBaseURL, cfg.VisionAPIKey, cfg.VisionModel, cfg.ExtractTimeout)
	svc := services.NewIntakeService(services.IntakeParams{
		Store:                  st,
		Fetcher:                media.NewGatewayFetcher(cfg.GatewayAccountSID, cfg.GatewayAuthToken, cfg.MediaTimeout),
		Recognizer:             vision,
		Classifier:             vision,
		Patterns:               convo.NewPatterns(),
		Log:                    log,
		AutoAccept:             cfg.ConfirmMode == config.ConfirmAuto,
		OpenRegistration:       cfg.OpenRegistration,
		ProjectMatchThreshold:  cfg.ProjectMatchThreshold,
		CategoryMatchThreshold: cfg.CategoryMatchThreshold,
	})

	// -------- Router & Server --------------
	pinger, _ := st.(api.Pinger)
	router := api.NewRouter(svc, pinger, log)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server…")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}

// openStore builds the store for the configured driver. The sqlite schema is
// applied on startup; postgres schemas are managed by crewctl init.
func openStore(cfg *config.Config) (store.Store, *sql.DB, error) {
	switch cfg.DBDriver {
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := sqlite.EnsureSchema(db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return sqlite.New(db), db, nil
	case "postgres":
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return postgres.New(db), db, nil
	}
	return nil, nil, fmt.Errorf("unsupported DB_DRIVER: %s", cfg.DBDriver)
}

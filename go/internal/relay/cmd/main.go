package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/matchday/go/internal/config"
	"github.com/mcdev12/matchday/go/internal/relay"
	"github.com/mcdev12/matchday/go/internal/store/pgstore"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	migrate := flag.Bool("migrate", true, "apply the schema before relaying")
	flag.Parse()

	// load .env
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// configure zerolog console output and level
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	dsn := cfg.Database.DSN()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *migrate {
		pg, err := pgstore.Connect(ctx, dsn)
		if err != nil {
			log.Fatal().Err(err).Msg("connect for migration")
		}
		if err := pg.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("migrate schema")
		}
		pg.Close()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("ping database")
	}

	// JetStream publisher
	jsCfg := relay.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATS.URL
	jsCfg.StreamName = cfg.NATS.Stream
	jsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
	publisher, err := relay.NewJetStreamPublisher(jsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create JetStream publisher")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("close publisher")
		}
	}()

	ltCfg := relay.DefaultListenerConfig()
	ltCfg.DatabaseURL = dsn
	ltCfg.FallbackInterval = cfg.Relay.FallbackInterval
	ltCfg.MaxRetries = cfg.Relay.MaxRetries
	ltCfg.BatchSize = cfg.Relay.BatchSize

	listener, err := relay.NewListener(relay.NewSQLRepository(db), publisher, ltCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create change listener")
	}

	if cfg.Relay.HealthAddr != "" {
		checker := relay.NewHealthChecker(listener.Relay, db, publisher, 2*ltCfg.FallbackInterval)
		mux := http.NewServeMux()
		mux.Handle("GET /health", checker)
		mux.Handle("GET /metrics", checker.MetricsHandler())
		healthSrv := &http.Server{Addr: cfg.Relay.HealthAddr, Handler: mux}
		go func() {
			log.Info().Str("addr", cfg.Relay.HealthAddr).Msg("serving relay health")
			if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("health server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := healthSrv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("health server shutdown")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msg("starting change relay")
		errCh <- listener.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
		if err := <-errCh; err != nil {
			log.Error().Err(err).Msg("listener stop")
		}
		log.Info().Msg("graceful shutdown complete")
	case err := <-errCh:
		log.Error().Err(err).Msg("listener exited unexpectedly")
	}
}

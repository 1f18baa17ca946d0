package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/matchday/go/internal/config"
	"github.com/mcdev12/matchday/go/internal/gateway"
	"github.com/mcdev12/matchday/go/internal/relay"
	"github.com/mcdev12/matchday/go/internal/store/pgstore"
	"github.com/mcdev12/matchday/go/internal/week"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	records, err := pgstore.Connect(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer records.Close()

	jsCfg := relay.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATS.URL
	jsCfg.StreamName = cfg.NATS.Stream
	jsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
	nc, js, err := relay.Connect(jsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer nc.Close()
	// the gateway may come up before the relay has created the stream
	if err := relay.EnsureStream(ctx, js, jsCfg); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure stream")
	}

	loc, err := cfg.Client.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid timezone")
	}
	provider := gateway.NewSnapshotStateProvider(records, week.NewResolver(loc), clockwork.NewRealClock())

	gwCfg := gateway.DefaultConfig()
	gwCfg.AllowedOrigins = cfg.Gateway.AllowedOrigins
	gwCfg.JetStreamConfig.StreamName = cfg.NATS.Stream
	gwCfg.JetStreamConfig.ConsumerName = cfg.NATS.Durable
	gwCfg.JetStreamConfig.SubjectFilter = cfg.NATS.SubjectPrefix + ".>"

	service, err := gateway.NewService(ctx, gwCfg, js, provider)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gateway service")
	}

	server := &http.Server{
		Addr:        cfg.Gateway.Addr,
		Handler:     service.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		if err := service.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
			stop()
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Str("nats_url", cfg.NATS.URL).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	log.Info().Msg("match day gateway shutdown complete")
}

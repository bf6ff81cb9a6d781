// Command server runs the ask backend: the assignment lifecycle API, the
// public recording-page surface, and the reminder dispatch engine.
//
// Startup sequence:
//  1. Load .env (optional) and configuration from the environment.
//  2. Configure zerolog (level, optional pretty console for dev).
//  3. Set up OpenTelemetry tracing (no-op unless OTEL_ENABLED).
//  4. Open SQLite and run migrations.
//  5. Build the dispatcher and register the SMS/email/push transports
//     (transports are skipped when their AWS settings are absent; the
//     share channel always works).
//  6. Mount routes and serve with graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/askecho/ask-backend/internal/config"
	"github.com/askecho/ask-backend/internal/dispatch"
	httpapi "github.com/askecho/ask-backend/internal/http"
	"github.com/askecho/ask-backend/internal/observability"
	"github.com/askecho/ask-backend/internal/repo"
	"github.com/askecho/ask-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// .env is a dev convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx := context.Background()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}

	d := buildDispatcher(ctx, cfg.Dispatch)

	r := gin.New()
	httpapi.RegisterRoutes(r, db, d, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown failed")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// buildDispatcher wires the channel transports from configuration. Channels
// whose prerequisites are missing are simply not registered; dispatching on
// them returns a structured "no transport" failure instead of a broken
// client.
func buildDispatcher(ctx context.Context, dc config.DispatchConfig) *dispatch.Dispatcher {
	d := dispatch.New(dc.Timeout)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(dc.AWSRegion))
	if err != nil {
		log.Warn().Err(err).Msg("aws config unavailable; network channels disabled")
		return d
	}

	if dc.SESFromEmail != "" {
		email, err := dispatch.NewEmailTransport(awsCfg, dc.SESFromEmail)
		if err != nil {
			log.Warn().Err(err).Msg("email transport disabled")
		} else {
			d.Register(dispatch.ChannelEmail, email, dc.OutboundRPS, dc.OutboundBurst)
		}
	} else {
		log.Warn().Msg("SES_FROM_EMAIL not set; email channel disabled")
	}

	d.Register(dispatch.ChannelSMS, dispatch.NewSMSTransport(awsCfg, dc.SMSSenderID), dc.OutboundRPS, dc.OutboundBurst)
	d.Register(dispatch.ChannelPush, dispatch.NewPushTransport(awsCfg), dc.OutboundRPS, dc.OutboundBurst)

	return d
}

// Command server runs the social backend: REST API, websocket event channel,
// metrics and optional Swagger UI on one HTTP listener.
//
//	@title                       Social Backend API
//	@version                     1.0
//	@description                 Accounts, social graph, conversations and media. Realtime commands use the /ws websocket.
//	@BasePath                    /api
//	@securityDefinitions.apikey  BearerAuth
//	@in                          header
//	@name                        Authorization
//	@description                 Type "Bearer" followed by a space and the access token.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-social-backend/internal/blob"
	"github.com/tbourn/go-social-backend/internal/config"
	"github.com/tbourn/go-social-backend/internal/events"
	httpapi "github.com/tbourn/go-social-backend/internal/http"
	"github.com/tbourn/go-social-backend/internal/mail"
	"github.com/tbourn/go-social-backend/internal/observability"
	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/repo"
	"github.com/tbourn/go-social-backend/internal/security"
	"github.com/tbourn/go-social-backend/internal/services"
	"github.com/tbourn/go-social-backend/internal/sysutil"
	"github.com/tbourn/go-social-backend/internal/ws"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	shutdownTimeout = 15 * time.Second
	janitorInterval = time.Hour
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	logger := sysutil.NewLogger(os.Stdout, cfg.LogPretty, cfg.OTEL.ServiceName, ver)
	log.Logger = logger
	zerolog.DefaultContextLogger = &logger
	sysutil.SetLogLevel(cfg.LogLevel)
	gin.SetMode(cfg.GinMode)

	if err := run(cfg, ver, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg config.Config, ver string, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			logger.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.Open(cfg)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}

	store, err := blob.NewLocalStore(cfg.Upload.Dir, cfg.Upload.BaseURL)
	if err != nil {
		return err
	}
	tokens := security.NewTokenIssuer(cfg.Auth.AccessSecret, cfg.Auth.AccessTTL)
	san := security.NewSanitizer()

	hub := realtime.NewHub()
	dispatcher := events.NewDispatcher(events.Services{
		FriendRequests: services.NewFriendRequestService(db, san),
		Friends:        &services.FriendService{DB: db},
		Conversations:  services.NewConversationService(db, san),
		Messages:       services.NewMessageService(db, san, cfg.IdempotencyTTL),
	}, hub, cfg.WS.CommandTimeout)
	wsServer := ws.NewServer(tokens, hub, dispatcher, db, cfg.WS, cfg.CORS.AllowedOrigins)
	wsServer.Logger = &logger

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:        db,
		Tokens:    tokens,
		Sanitizer: san,
		Mailer:    mail.LogMailer{Logger: &logger},
		Store:     store,
		WS:        wsServer,
	}, cfg)

	janitor := &services.Janitor{DB: db, Interval: janitorInterval, Logger: &logger}
	go janitor.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("db", cfg.DBDriver).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Hijacked websocket connections are not tracked by http.Server.
	wsServer.Shutdown(sctx)
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	logger.Info().Msg("server stopped cleanly")
	return nil
}

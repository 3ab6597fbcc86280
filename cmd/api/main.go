// Copyright (c) 2026 Northlink Communications. All rights reserved.

// Command api is the entry point for the Atlas authentication API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Overlay persisted settings (env > system.setting > default).
//  7. Wire the auth engine and HTTP handlers.
//  8. Start HTTP server with graceful shutdown and the session janitor.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/northlink/atlas/internal/api"
	"github.com/northlink/atlas/internal/auth"
	"github.com/northlink/atlas/internal/mailer"
	"github.com/northlink/atlas/internal/platform/config"
	"github.com/northlink/atlas/internal/platform/constants"
	"github.com/northlink/atlas/internal/platform/migration"
	pgstore "github.com/northlink/atlas/internal/platform/postgres"
	redisstore "github.com/northlink/atlas/internal/platform/redis"
	"github.com/northlink/atlas/internal/platform/sec"
	"github.com/northlink/atlas/internal/platform/settings"
	"github.com/northlink/atlas/internal/rbac"
)

// sessionPurgeInterval is how often the janitor sweeps dead sessions.
// Terminal and overdue rows are kept for a day of audit headroom.
const (
	sessionPurgeInterval  = 1 * time.Hour
	sessionPurgeRetention = 24 * time.Hour
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("[Atlas] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", constants.AppName))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Settings Overlay ───────────────────────────────────────────────
	// Security-sensitive knobs resolve env > persisted setting > default,
	// once, at startup. Changing a persisted row requires a restart.
	resolver := settings.NewResolver(settings.NewPostgresRepository(pool))

	jwtSecret := resolver.String(startupCtx, settings.KeyJWTSecret, cfg.JWTSecret, "")
	jwtAlgorithm := resolver.String(startupCtx, settings.KeyJWTAlgorithm, cfg.JWTAlgorithm, "HS256")

	tokenService, err := sec.NewTokenService(jwtSecret, jwtAlgorithm, constants.AuthIssuer)
	must(log, err, "initialize token service")

	secretCipher, err := sec.NewSecretCipher(cfg.TOTPEncryptionKey)
	must(log, err, "initialize totp secret cipher")

	engineOptions := auth.Options{
		AccessTokenTTL: time.Duration(resolver.Int(startupCtx, settings.KeyAccessTTLMinutes,
			cfg.JWTAccessTTLMinutes, int(auth.DefaultAccessTokenTTL/time.Minute))) * time.Minute,
		RefreshTokenTTL: time.Duration(resolver.Int(startupCtx, settings.KeyRefreshTTLDays,
			cfg.JWTRefreshTTLDays, int(auth.DefaultRefreshTokenTTL/(24*time.Hour)))) * 24 * time.Hour,
		ResetTokenTTL: time.Duration(resolver.Int(startupCtx, settings.KeyResetTTLMinutes,
			cfg.PasswordResetTTLMinutes, int(auth.DefaultResetTokenTTL/time.Minute))) * time.Minute,
	}

	cookiePolicy := auth.CookiePolicy{
		Name: resolver.String(startupCtx, settings.KeyRefreshCookieName,
			cfg.RefreshCookieName, constants.DefaultRefreshCookieName),
		Domain: resolver.String(startupCtx, settings.KeyRefreshCookieDomain,
			cfg.RefreshCookieDomain, ""),
		Path: resolver.String(startupCtx, settings.KeyRefreshCookiePath,
			cfg.RefreshCookiePath, constants.DefaultRefreshCookiePath),
		Secure: resolver.Bool(startupCtx, settings.KeyRefreshCookieSecure,
			cfg.RefreshCookieSecure, cfg.IsProduction()),
		SameSite: parseSameSite(resolver.String(startupCtx, settings.KeyRefreshCookieSameSite,
			cfg.RefreshCookieSameSite, "lax")),
		MaxAge: resolver.Int(startupCtx, settings.KeyRefreshCookieMaxAge,
			cfg.RefreshCookieMaxAge, 0),
	}

	totpIssuer := resolver.String(startupCtx, settings.KeyTOTPIssuer, cfg.TOTPIssuer, auth.DefaultTOTPIssuer)

	// ── 7. Domain Wiring ──────────────────────────────────────────────────
	credentialRepository := auth.NewCredentialRepository(pool)
	methodRepository := auth.NewMFAMethodRepository(pool)
	sessionRepository := auth.NewSessionRepository(pool)
	usedResetTokens := auth.NewUsedResetTokenStore(rdb)
	claimsLoader := rbac.NewPostgresLoader(pool)

	var resetMailer auth.Mailer
	smtpConfig := mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}
	if smtpConfig.Configured() {
		resetMailer = mailer.NewSMTPMailer(smtpConfig)
	} else {
		resetMailer = mailer.NewLogMailer(log)
	}

	mfaService := auth.NewMFAService(methodRepository, secretCipher, totpIssuer)
	engine := auth.NewEngine(
		credentialRepository,
		methodRepository,
		sessionRepository,
		usedResetTokens,
		claimsLoader,
		resetMailer,
		tokenService,
		mfaService,
		engineOptions,
	)
	authHandler := auth.NewHandler(engine, mfaService, cookiePolicy)

	// ── 8. Health Handlers ────────────────────────────────────────────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	// ── 9. HTTP Server ────────────────────────────────────────────────────
	serverCtx, serverCancel := context.WithCancel(context.Background())
	defer serverCancel()

	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Auth:      authHandler,
	}

	server := api.NewServer(serverCtx, cfg, log, tokenService, handlers)

	// Session janitor: periodically drop rows nothing can act on anymore.
	go runSessionJanitor(serverCtx, engine, log)

	// ── 10. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	serverCancel()
	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server stopped cleanly")
}

// runSessionJanitor sweeps expired and long-terminal sessions until the
// context is cancelled.
func runSessionJanitor(ctx context.Context, engine *auth.Engine, log *slog.Logger) {
	ticker := time.NewTicker(sessionPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-sessionPurgeRetention)
			purged, err := engine.PurgeExpiredSessions(ctx, cutoff)
			if err != nil {
				log.Error("session janitor sweep failed", slog.Any("error", err))
				continue
			}
			if purged > 0 {
				log.Info("session janitor sweep", slog.Int64("purged", purged))
			}
		}
	}
}

// parseSameSite maps a configured SameSite name onto the http constant.
func parseSameSite(value string) http.SameSite {
	switch value {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}

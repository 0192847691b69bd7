package main

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata" // Member timezones in a scratch container

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container
	"golang.org/x/time/rate"

	"github.com/ericfisherdev/clubsync/internal/adapter/driven/blobstore"
	sqliteadapter "github.com/ericfisherdev/clubsync/internal/adapter/driven/sqlite"
	stravaadapter "github.com/ericfisherdev/clubsync/internal/adapter/driven/strava"
	httphandler "github.com/ericfisherdev/clubsync/internal/adapter/driving/http"
	"github.com/ericfisherdev/clubsync/internal/application"
	"github.com/ericfisherdev/clubsync/internal/config"
	"github.com/ericfisherdev/clubsync/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"sweep_interval", cfg.SweepInterval,
		"activity_types", cfg.ActivityTypes,
		"default_timezone", cfg.DefaultTimezone,
	)

	key, err := hex.DecodeString(cfg.SecretKey)
	if err != nil {
		return err
	}

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	version, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		return err
	}
	slog.Info("migrations complete", "version", version)

	// 5. Wire storage adapters.
	memberStore := sqliteadapter.NewMemberRepo(db)
	activityStore := sqliteadapter.NewActivityRepo(db)
	credentialStore, err := sqliteadapter.NewCredentialRepo(db, key)
	if err != nil {
		return err
	}

	var archive driven.ObjectStore
	if cfg.ArchiveBucketURL != "" {
		store, err := blobstore.Open(ctx, cfg.ArchiveBucketURL, cfg.ArchivePublicBaseURL)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				slog.Error("error closing archive bucket", "error", closeErr)
			}
		}()
		archive = store
		slog.Info("raw activity archive enabled", "bucket", cfg.ArchiveBucketURL)
	}

	// 6. Create Strava clients. The limiter paces every API request.
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.StravaRequestsPerMinute)), 5)
	oauthClient := stravaadapter.NewOAuthClient(
		cfg.StravaClientID,
		cfg.StravaClientSecret,
		cfg.StravaAuthURL,
		cfg.StravaTokenURL,
		&http.Client{Timeout: 15 * time.Second},
	)
	activityClient := stravaadapter.NewBreakerClient(
		stravaadapter.NewClient(cfg.StravaAPIURL, limiter, 30*time.Second),
		stravaadapter.DefaultBreakerConfig(),
	)

	// 7. Create application services.
	tokens := application.NewTokenManager(credentialStore, memberStore, oauthClient, cfg.TokenRefreshMargin, time.Now)
	syncSvc := application.NewSyncService(
		memberStore,
		tokens,
		activityClient,
		application.NewActivityFetcher(activityClient, cfg.StravaPerPage),
		application.NewReconciler(activityStore, archive),
		application.SyncConfig{
			ActivityTypes:   cfg.ActivityTypes,
			FetchDetails:    cfg.FetchActivityDetails,
			DefaultLocation: cfg.Location(),
		},
	)

	// 8. Create and start the sweep scheduler.
	sweepSvc := application.NewSweepService(memberStore, syncSvc, application.SweepConfig{
		Interval:       cfg.SweepInterval,
		Timeout:        cfg.SweepTimeout,
		Concurrency:    cfg.SweepConcurrency,
		MaxAttempts:    cfg.SweepMaxAttempts,
		RetryBaseDelay: cfg.SweepRetryBaseDelay,
		MaxBackoff:     cfg.SweepMaxBackoff,
	})
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweepSvc.Start(ctx)
	}()

	// 9. Create HTTP handler and register routes.
	if !cfg.HasSessionSecret() {
		slog.Warn("CLUBSYNC_SESSION_JWT_SECRET not set, member endpoints will answer 401")
	}
	users := httphandler.NewJWTUserResolver(cfg.SessionJWTSecret, cfg.SessionCookie, cfg.SessionBlobCookie)
	apiHandler := httphandler.NewHandler(
		syncSvc,
		tokens,
		oauthClient,
		sweepSvc,
		memberStore,
		activityStore,
		users,
		db,
		httphandler.Options{
			RedirectURL:    cfg.StravaRedirectURL,
			CronSecret:     cfg.CronSecret,
			AllowDebugSync: cfg.AllowDebugSync,
			SecureCookies:  strings.HasPrefix(cfg.StravaRedirectURL, "https://"),
		},
		slog.Default(),
	)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.SweepTimeout + 30*time.Second, // the cron endpoint waits for a full sweep
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	// 10. Log startup complete.
	slog.Info("clubsync started",
		"listen_addr", cfg.ListenAddr,
		"sweep_interval", cfg.SweepInterval,
		"sweep_concurrency", cfg.SweepConcurrency,
	)

	// 11. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 12. Graceful shutdown with 10s timeout for in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	// The deferred database close must not run under an in-flight sweep.
	select {
	case <-sweepDone:
	case <-shutdownCtx.Done():
		slog.Error("sweep did not stop before shutdown deadline")
	}

	// 13. Log shutdown complete.
	slog.Info("shutdown complete")
	return nil
}

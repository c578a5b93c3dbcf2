// Command server starts the AI mock interviewer HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/ai/openai"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/ai/stub"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/ai/tokencount"
	httpserver "github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/identity"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/voice/wsvoice"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/app"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/call"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/config"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.SetupTracing(ctx, cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	if cfg.SessionSecret == "" {
		if cfg.IsProd() {
			slog.Error("SESSION_SECRET is required in prod")
			os.Exit(1)
		}
		slog.Warn("SESSION_SECRET not set; using an insecure development secret")
		cfg.SessionSecret = "dev-insecure-session-secret"
	}

	if cfg.RunMigrations {
		if err := postgres.Migrate(ctx, cfg.DBURL); err != nil {
			slog.Error("migrations failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", slog.Any("error", err))
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpts)
	defer func() {
		if err := rdb.Close(); err != nil {
			slog.Error("failed to close redis client", slog.Any("error", err))
		}
	}()

	// Repositories
	users := postgres.NewUserRepo(pool)
	interviews := postgres.NewInterviewRepo(pool)
	feedback := postgres.NewFeedbackRepo(pool)

	if cfg.DataRetentionDays > 0 {
		cleanupSvc := postgres.NewCleanupService(pool, cfg.DataRetentionDays)
		go cleanupSvc.RunPeriodic(ctx, cfg.CleanupInterval)
		slog.Info("cleanup service started", slog.Int("retention_days", cfg.DataRetentionDays), slog.Duration("interval", cfg.CleanupInterval))
	}

	var aicl domain.AIClient
	if cfg.AIEnabled() {
		aicl = openai.New(cfg)
		slog.Info("AI client initialized", slog.String("model", cfg.AIChatModel))
	} else {
		aicl = stub.New()
		slog.Warn("AI_API_KEY not set; using the deterministic stub AI client")
	}

	codec := identity.NewSessionCodec(cfg.SessionSecret, cfg.SessionTTL)
	idp := identity.NewProvider(codec, identity.NewRedisRevocationStore(rdb))

	// Usecases
	authSvc := usecase.NewAuthService(users, idp)
	interviewSvc := usecase.NewInterviewService(interviews, aicl)
	feedbackSvc := usecase.NewFeedbackService(feedback, aicl, tokencount.NewCounter(cfg.AIChatModel), cfg.AIMaxPromptTokens)

	newTransport := func() call.Transport {
		return wsvoice.New(cfg.VoiceURL, cfg.VoiceAPIKey, wsvoice.WithLogger(logger))
	}
	callSvc := usecase.NewCallService(interviews, feedbackSvc, newTransport,
		usecase.CallTargets{Workflow: cfg.VoiceWorkflowID, Interviewer: cfg.VoiceInterviewerID},
		call.Options{
			InactivityTimeout:   cfg.CallInactivityTimeout,
			WatchdogInterval:    cfg.CallWatchdogInterval,
			FeedbackTimeout:     cfg.CallFeedbackTimeout,
			ConnectTimeout:      cfg.CallConnectTimeout,
			SessionEndedMarkers: cfg.CallSessionEndedMarkers,
			Logger:              logger,
		})
	callSvc.Retention = cfg.CallRetention
	callSvc.MaxPerUser = cfg.MaxCallsPerUser
	go callSvc.RunReaper(ctx, cfg.CallReaperInterval)

	dbCheck, redisCheck := app.BuildReadinessChecks(pool, rdb)

	srv := httpserver.NewServer(cfg, authSvc, interviewSvc, feedbackSvc, callSvc, dbCheck, redisCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", slog.Any("error", err))
	}
	callSvc.CloseAll()
	slog.Info("server stopped", slog.Int("calls_open", callSvc.Len()))
}

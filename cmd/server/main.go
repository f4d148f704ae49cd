package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"basegraph.app/forge/common/id"
	"basegraph.app/forge/common/logger"
	"basegraph.app/forge/common/otel"
	"basegraph.app/forge/core/config"
	"basegraph.app/forge/core/db"
	"basegraph.app/forge/internal/classifier"
	"basegraph.app/forge/internal/dispatch"
	"basegraph.app/forge/internal/events"
	"basegraph.app/forge/internal/http/handler"
	"basegraph.app/forge/internal/http/middleware"
	httprouter "basegraph.app/forge/internal/http/router"
	"basegraph.app/forge/internal/model"
	"basegraph.app/forge/internal/registry"
	"basegraph.app/forge/internal/reporter"
	"basegraph.app/forge/internal/service"
	"basegraph.app/forge/internal/session"
	"basegraph.app/forge/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "forge starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Events.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Events.Stream)

	emitter := events.NewRedisEmitter(redisClient, cfg.Events.Stream)
	stores := store.NewStores(database.Pool())

	reg := registry.New()
	registerDefaultAgents(reg, cfg.Dispatch.AgentCapacity)
	slog.InfoContext(ctx, "agent registry bootstrapped", "agents", len(reg.List()))

	commandRunner := session.ExecCommandRunner{}
	workspaces := session.NewWorkspaces(cfg.Execution.DataDir, commandRunner, cfg.Execution.GitRetries)

	var review session.ReviewOpener = session.StubReviewOpener{}
	if cfg.GitLab.Enabled() {
		gitlabReview, err := session.NewGitLabReviewOpener(cfg.GitLab.Token, cfg.GitLab.BaseURL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to create gitlab client", "error", err)
			os.Exit(1)
		}
		review = gitlabReview
		slog.InfoContext(ctx, "gitlab review integration enabled", "base_url", cfg.GitLab.BaseURL)
	}

	sessionRunner := session.NewRunner(session.Config{
		ToolPath:           cfg.Execution.ToolPath,
		ToolTimeout:        cfg.Execution.ToolTimeout,
		AutoReviewRequests: cfg.Features.AutoReviewRequests,
	}, commandRunner, workspaces, review)

	taskReporter := reporter.New(stores.Tasks(), emitter)

	dispatcher := dispatch.New(
		dispatch.Config{Concurrency: cfg.Dispatch.Concurrency},
		reg,
		sessionRunner,
		taskReporter,
		stores.Tasks(),
		emitter,
	)

	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		if err := dispatcher.Run(ctx); err != nil && err != context.Canceled {
			slog.ErrorContext(ctx, "dispatcher stopped with error", "error", err)
		}
	}()

	ingest := service.NewIngestService(stores.Projects(), classifier.New(classifier.DefaultRules()), dispatcher)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, ingest, dispatcher, reg, stores, redisClient)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	// Stop accepting new dispatches and wait for in-flight sessions.
	dispatcher.Stop()
	<-dispatcherDone

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, ingest service.IngestService, dispatcher *dispatch.Dispatcher, reg *registry.Registry, stores *store.Stores, redisClient *redis.Client) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span, Recovery catches panics, Logger logs
	// with trace context.
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, httprouter.Handlers{
		Webhook: handler.NewWebhookHandler(ingest, cfg.GitLab.WebhookSecret),
		Queue:   handler.NewQueueHandler(dispatcher, reg, stores.Projects(), stores.Tasks()),
		Events:  handler.NewEventsHandler(redisClient, cfg.Events.Stream),
	})

	return router
}

// registerDefaultAgents seeds one agent per specialization plus a general
// floater. Capacity comes from configuration; the fleet itself is static.
func registerDefaultAgents(reg *registry.Registry, capacity int) {
	fleet := []struct {
		id   string
		spec model.Specialization
		caps []string
	}{
		{"backend-1", model.SpecializationBackend, []string{"go", "sql", "api"}},
		{"frontend-1", model.SpecializationFrontend, []string{"typescript", "css"}},
		{"testing-1", model.SpecializationTesting, []string{"unit-tests", "integration-tests"}},
		{"docs-1", model.SpecializationDocumentation, []string{"markdown"}},
		{"general-1", model.SpecializationGeneral, nil},
	}

	for _, agent := range fleet {
		reg.Register(model.Agent{
			ID:             agent.id,
			Name:           agent.id,
			Specialization: agent.spec,
			Capabilities:   agent.caps,
			MaxConcurrent:  capacity,
		})
	}
}

const banner = `
   __
  / _| ___  _ __ __ _  ___
 | |_ / _ \| '__/ _` + "`" + ` |/ _ \
 |  _| (_) | | | (_| |  __/
 |_|  \___/|_|  \__, |\___|
                |___/
`

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/viruslens/internal/application"
	appai "github.com/bryanwahyu/viruslens/internal/application/ai"
	appscans "github.com/bryanwahyu/viruslens/internal/application/scans"
	"github.com/bryanwahyu/viruslens/internal/config"
	domai "github.com/bryanwahyu/viruslens/internal/domain/ai"
	aiopenai "github.com/bryanwahyu/viruslens/internal/infra/ai/openai"
	"github.com/bryanwahyu/viruslens/internal/infra/db"
	"github.com/bryanwahyu/viruslens/internal/infra/db/repository"
	"github.com/bryanwahyu/viruslens/internal/infra/httpserver"
	"github.com/bryanwahyu/viruslens/internal/infra/providers"
	"github.com/bryanwahyu/viruslens/internal/infra/report"
	minioStore "github.com/bryanwahyu/viruslens/internal/infra/storage"
	"github.com/bryanwahyu/viruslens/internal/logging"
	"github.com/bryanwahyu/viruslens/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	logger := logging.Init("viruslens", cfg.Log.Level, cfg.Log.Format)
	if err := cfg.Validate(); err != nil {
		fatal(logger, "invalid config", err)
	}

	ctx := context.Background()

	// connect database + migrate
	dialect, err := db.ParseDialect(cfg.Database.Driver)
	if err != nil {
		fatal(logger, "database driver", err)
	}
	conn, err := db.Open(ctx, dialect, cfg.DatabaseDSN())
	if err != nil {
		fatal(logger, "database connect error", err)
	}
	defer conn.Close()
	version, err := db.Migrate(ctx, conn, dialect)
	if err != nil {
		fatal(logger, "database migrate error", err)
	}
	logger.Info("database ready", "driver", string(dialect), "schema_version", version)

	// init repo
	history := repository.NewHistoryRepository(conn, dialect)
	analyses := repository.NewAnalystRepository(conn, dialect)

	// init providers
	provs := providers.Build(providers.Settings{
		MockMode:      cfg.Providers.MockMode,
		VirusTotalKey: cfg.Providers.VirusTotalKey,
		URLScanKey:    cfg.Providers.URLScanKey,
		OTXKey:        cfg.Providers.OTXKey,
		Retries:       cfg.Providers.Retries,
		Backoff:       cfg.Providers.Backoff,
	}, &http.Client{Timeout: cfg.Providers.Timeout})
	agg := appscans.NewAggregator(provs, cfg.Providers.Timeout, logger)
	if cfg.Providers.MockMode {
		logger.Warn("mock mode enabled, provider results are fixtures")
	}

	// init service
	svc := &appscans.Service{
		Repo:         history,
		Aggregator:   agg,
		Clock:        application.SystemClock{},
		Logger:       logger,
		MaxBulkItems: cfg.Providers.MaxBulkItems,
	}

	// init minio (opsional)
	if cfg.Minio.Endpoint != "" {
		store, err := minioStore.New(ctx, minioStore.Config{
			Endpoint:  cfg.Minio.Endpoint,
			Region:    cfg.Minio.Region,
			Bucket:    cfg.Minio.BucketName,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			UseSSL:    cfg.Minio.UseSSL,
			Presign:   cfg.Minio.Presign,
		})
		if err != nil {
			fatal(logger, "minio init error", err)
		}
		svc.Archive = store
	}

	// init AI analyst (opsional)
	var aiClient domai.Client
	if cfg.OpenAI.APIKey != "" {
		oc := goopenai.DefaultConfig(cfg.OpenAI.APIKey)
		if cfg.OpenAI.BaseURL != "" {
			oc.BaseURL = cfg.OpenAI.BaseURL
		}
		aiClient = aiopenai.NewClientWithConfig(oc, cfg.OpenAI.Model)
	}
	aiSvc := appai.NewService(aiClient, analyses, report.Text, application.SystemClock{})

	// init router
	mux := chi.NewRouter()
	mux.Mount("/", httpserver.NewRouter(httpserver.Options{
		Scans:   svc,
		AI:      aiSvc,
		Metrics: middleware.NewMetrics(),
		Logger:  logger,
		Health: map[string]middleware.HealthChecker{
			"database": middleware.CheckFunc(history.Ping),
		},
		Info: map[string]any{
			"mock_mode":      cfg.Providers.MockMode,
			"providers":      agg.Providers(),
			"database":       string(dialect),
			"schema_version": version,
			"archive":        svc.Archive != nil,
			"ai_analyst":     aiSvc.Enabled(),
		},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		APIKey:         cfg.Server.APIKey,
		RateBurst:      cfg.Server.RateLimit.Burst,
		RatePerSecond:  cfg.Server.RateLimit.Rate,
		MaxUploadBytes: cfg.Server.MaxUploadMB << 20,
	}))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "server error", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

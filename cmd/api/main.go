// Package main is the entrypoint for the PlatformX API server.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/platformx/platformx/internal/auth"
	"github.com/platformx/platformx/internal/billing"
	"github.com/platformx/platformx/internal/bus"
	"github.com/platformx/platformx/internal/cache"
	"github.com/platformx/platformx/internal/config"
	"github.com/platformx/platformx/internal/handler"
	"github.com/platformx/platformx/internal/metrics"
	"github.com/platformx/platformx/internal/middleware"
	"github.com/platformx/platformx/internal/provider"
	"github.com/platformx/platformx/internal/repository"
	"github.com/platformx/platformx/internal/schema"
	"github.com/platformx/platformx/internal/server"
	"github.com/platformx/platformx/internal/service"
	"github.com/platformx/platformx/internal/usage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database",
			slog.String("error", config.SanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", config.RedactURL(cfg.DatabaseURL)),
		)
		return errors.New("database unavailable")
	}
	logger.Info("connected to database")

	if cfg.AutoMigrate {
		if err := repo.Migrate(ctx, logger); err != nil {
			repo.Close()
			return err
		}
	}

	cacheClient, err := cache.New(ctx, cfg.RedisURL, cache.Options{PoolSize: cfg.RedisPoolSize})
	if err != nil {
		repo.Close()
		logger.Error("failed to connect to Redis",
			slog.String("error", config.SanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", config.RedactURL(cfg.RedisURL)),
		)
		return errors.New("redis unavailable")
	}
	logger.Info("connected to Redis")

	var recorder metrics.Recorder = metrics.NewNoop()
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		prom := metrics.NewPrometheus()
		recorder = prom
		metricsHandler = prom.Handler()
	}

	providers, err := newProviders(ctx, cfg)
	if err != nil {
		repo.Close()
		_ = cacheClient.Close()
		return err
	}

	datasetValidator, err := schema.NewDatasetValidator()
	if err != nil {
		repo.Close()
		_ = cacheClient.Close()
		return err
	}

	commandBus := bus.New(logger)
	service.RegisterHandlers(commandBus, repo, repo, nil)

	billingService := billing.NewService(repo, logger)
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)
	otp := auth.NewOTPIssuer(cfg.OTPSecret, cfg.OTPTTL)
	usageRepo := repository.NewUsageRepository(repo)
	publisher := usage.NewPublisher(cacheClient.Client(), logger, recorder)

	baseModels := service.NewBaseModelService(repo, logger)
	if err := seedBaseModels(ctx, baseModels, cfg.BaseModelsFile, logger); err != nil {
		repo.Close()
		_ = cacheClient.Close()
		return err
	}

	chatService := service.NewChatService(service.ChatDeps{
		Models:    service.NewCachedModelLookup(repo, cacheClient, recorder, logger),
		Datasets:  repo,
		Threads:   repo,
		Billing:   billingService,
		Providers: providers,
		Bus:       commandBus,
		Usage:     publisher,
		Metrics:   recorder,
		Logger:    logger,
		Timeout:   cfg.ProviderTimeout,
	})
	derivedModels := service.NewDerivedModelService(repo, usageRepo, billingService, datasetValidator, commandBus, recorder, logger)
	marketplace := service.NewMarketplaceService(repo)
	users := service.NewUserService(repo, billingService, otp, tokens, service.NewLogMailer(logger), logger)
	apiKeys := service.NewAPIKeyService(repo, billingService, cacheClient, cfg.KeyEnv(), recorder, logger)

	router := server.NewRouter(server.RouterConfig{
		Logger: logger,
		Handlers: server.Handlers{
			Root:          handler.New(),
			Health:        handler.NewHealthHandler(repo, cacheClient),
			Users:         handler.NewUserHandler(users, logger),
			Chat:          handler.NewChatHandler(chatService, logger),
			Marketplace:   handler.NewMarketplaceHandler(marketplace, logger),
			BaseModels:    handler.NewBaseModelHandler(baseModels, logger),
			DerivedModels: handler.NewDerivedModelHandler(derivedModels, logger),
			APIKeys:       handler.NewAPIKeyHandler(apiKeys, logger),
		},
		Tokens:    tokens,
		Keys:      repo,
		AuthCache: cacheClient,
		RateLimit: middleware.RateLimitConfig{
			Limiter:        cacheClient,
			SubjectEnabled: cfg.RateLimitAPIEnabled,
			IPEnabled:      cfg.RateLimitIPEnabled,
			IPRPS:          cfg.RateLimitIPRPS,
			IPBurst:        cfg.RateLimitIPBurst,
		},
		CORS: corsConfig(cfg),
		Security: middleware.SecurityConfig{
			IsDevelopment:      cfg.IsDevelopment(),
			MaxRequestBodySize: cfg.MaxRequestBodySize,
		},
		Metrics: metricsHandler,
	})

	srv := server.New(router, server.Config{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// Registered first, closed last.
	srv.OnShutdown("postgres", func(context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("redis", func(context.Context) error {
		return cacheClient.Close()
	})

	if cfg.UsageWorkerEnabled {
		worker := usage.NewWorker(cacheClient.Client(), usageRepo, logger, recorder, usage.WorkerConfig{
			BatchSize: cfg.UsageBatchSize,
		})
		go func() {
			if err := worker.Run(context.WithoutCancel(ctx)); err != nil {
				logger.Error("usage worker stopped", "error", err)
			}
		}()
		srv.OnShutdown("usage-worker", worker.Shutdown)
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"metrics", cfg.MetricsEnabled,
		"usage_worker", cfg.UsageWorkerEnabled,
	)

	return srv.Run(ctx)
}

func newProviders(ctx context.Context, cfg *config.Config) (provider.Set, error) {
	gemini, err := provider.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiBaseURL)
	if err != nil {
		return provider.Set{}, err
	}
	return provider.Set{
		Gemini: gemini,
		OpenAI: provider.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL),
		Groq:   provider.NewGroq(cfg.GroqAPIKey, cfg.GroqBaseURL),
	}, nil
}

// seedBaseModels loads the catalog file when it exists. A missing file is
// not an error so deployments can seed with platformctl instead.
func seedBaseModels(ctx context.Context, svc *service.BaseModelService, path string, logger *slog.Logger) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Info("base model catalog file not found, skipping seed", "path", path)
			return nil
		}
		return err
	}
	defer f.Close()

	_, err = svc.Seed(ctx, f)
	return err
}

func corsConfig(cfg *config.Config) middleware.CORSConfig {
	c := middleware.DefaultCORSConfig()
	c.AllowedOrigins = cfg.GetCORSAllowedOrigins()
	return c
}

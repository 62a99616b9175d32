package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"quizforge-backend/internal/config"
	"quizforge-backend/internal/database"
	"quizforge-backend/internal/handlers"
	"quizforge-backend/internal/logger"
	"quizforge-backend/internal/middleware"
	"quizforge-backend/internal/models"
	"quizforge-backend/internal/progress"
	"quizforge-backend/internal/repository"
	"quizforge-backend/internal/router"
	"quizforge-backend/internal/services"
	"quizforge-backend/internal/websocket"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()

	log := logger.New(cfg.Env, cfg.LogLevel)
	defer log.Sync()
	log.Info("starting quizforge backend", zap.String("env", cfg.Env))

	ctx := context.Background()

	// ──── Step 2: Optional PostgreSQL ────
	var store handlers.QuizStore
	if cfg.DatabaseURL != "" {
		pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("PostgreSQL connection failed", zap.Error(err))
		}
		defer pool.Close()

		if err := database.RunMigrations(ctx, pool, "migrations", log); err != nil {
			log.Fatal("database migration failed", zap.Error(err))
		}
		store = repository.NewQuizRepo(pool)
		log.Info("PostgreSQL connected, quizzes will be saved")
	} else {
		log.Info("DATABASE_URL not set, quizzes will not be saved")
	}

	// ──── Step 3: Optional Redis ────
	var redisClients *database.RedisClients
	var usage handlers.UsageRecorder
	if cfg.RedisURL != "" {
		clients, err := database.NewRedisClients(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal("Redis connection failed", zap.Error(err))
		}
		defer clients.Close()
		redisClients = clients
		usage = repository.NewUsageRepo(clients.Commands)
		log.Info("Redis connected, progress fan-out and usage counters enabled")
	}

	// ──── Step 4: Generation pipeline ────
	modelByTier := make(map[models.Tier]string, len(cfg.GeminiTierModels))
	keyByTier := make(map[models.Tier]string, len(cfg.GeminiTierModels))
	for tier, model := range cfg.GeminiTierModels {
		modelByTier[models.Tier(tier)] = model
		keyByTier[models.Tier(tier)] = cfg.TierKey(tier)
	}
	tierRouter := services.NewTierRouter(modelByTier, keyByTier)

	var provider services.ContentProvider
	switch cfg.GeminiClient {
	case "rest":
		provider = services.NewGeminiClient(cfg.GeminiBaseURL, nil)
	default:
		sdk := services.NewGeminiSDKClient(option.WithEndpoint(cfg.GeminiBaseURL))
		defer sdk.Close()
		provider = sdk
	}
	log.Info("Gemini client initialized", zap.String("client", cfg.GeminiClient))

	prompts := services.NewPromptAssembler(services.NewYouTubeService(log), services.NewFileExtractService(), cfg.GeminiCandidateCount)
	retrier := services.NewRetrier(cfg.RetryMaxAttempts, cfg.RetryBaseDelay, log)
	transport := services.NewTransportSelector(
		provider,
		retrier,
		services.NewStreamIngester(services.DefaultEstimatedStreamBytes),
		services.NewRecoverer(nil),
		cfg.GeminiRequestTimeout,
		log,
	)
	generator := services.NewQuizGenerator(tierRouter, prompts, transport, services.NewQuizAssembler(), cfg.GeminiRequestTimeout, log)

	// ──── Step 5: WebSocket hub and handlers ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)

	var wsHub *websocket.Hub
	var mirror handlers.MirrorFunc
	if redisClients != nil {
		wsHub = websocket.NewHub(redisClients.PubSub, jwtAuth, log)
		mirror = func(userID uuid.UUID) progress.Sink {
			return progress.NewRedisSink(redisClients.Commands, userID)
		}
	} else {
		wsHub = websocket.NewHub(nil, jwtAuth, log)
		mirror = wsHub.Sink
	}

	quizHandler := handlers.NewQuizHandler(generator, store, usage, mirror, log)

	// ──── Step 6: Start HTTP Server ────
	r := router.New(jwtAuth, quizHandler, wsHub, cfg.FrontendURL)

	// No WriteTimeout: a generation stream stays open for the whole pipeline.
	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error("server shutdown failed", zap.Error(err))
		}
	}()

	log.Info("quizforge backend ready",
		zap.String("api", fmt.Sprintf("http://localhost:%s/api/v1", cfg.Port)),
		zap.String("ws", fmt.Sprintf("ws://localhost:%s/api/v1/ws", cfg.Port)),
	)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal("server error", zap.Error(err))
	}
}

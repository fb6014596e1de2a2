package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leeai-backend/internal/config"
	"leeai-backend/internal/database"
	"leeai-backend/internal/handlers"
	"leeai-backend/internal/middleware"
	"leeai-backend/internal/repository"
	"leeai-backend/internal/router"
	"leeai-backend/internal/services"
	"leeai-backend/internal/websocket"
	"leeai-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting LeeAI Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Load Model Backend ────
	var backend services.Backend
	switch cfg.ModelBackend {
	case config.BackendGemini:
		gemini := services.NewGeminiBackend(cfg.GeminiAPIKey, cfg.GeminiModel)
		defer gemini.Close()
		backend = gemini
	default:
		backend = services.NewLlamaCppBackend(services.LlamaCppConfig{
			BaseURL:  cfg.LlamaServerURL,
			Model:    cfg.ModelName,
			BOSToken: cfg.BOSToken,
			EOSToken: cfg.EOSToken,
			Timeout:  cfg.GenerationTimeout + 10*time.Second,
		})
	}

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 60*time.Second)
	generator, err := services.NewGenerator(loadCtx, backend, services.GeneratorConfig{
		MaxNewTokens: cfg.MaxNewTokens,
		Concurrency:  cfg.GenerationConcurrency,
		Timeout:      cfg.GenerationTimeout,
		QueueTimeout: cfg.GenerationQueueTimeout,
	})
	cancelLoad()
	if err != nil {
		log.Fatalf("✗ Model backend failed to load: %v", err)
	}
	log.Printf("✓ Model backend %s ready (%s, %d generation slots)", backend.Name(), cfg.ModelName, cfg.GenerationConcurrency)

	// ──── Step 3: Rate Limiter (Redis when configured) ────
	chatLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("✗ Redis connection failed: %v", err)
		}
		defer redisClient.Close()
		chatLimiter = middleware.NewRedisRateLimiter(redisClient, cfg.RateLimitPerMinute, time.Minute)
		log.Println("✓ Redis connected (shared rate limiter)")
	}

	// ──── Step 4: Exchange Log (PostgreSQL when configured) ────
	chatService := services.NewChatService(generator)
	chatHandler := handlers.NewChatHandler(chatService, nil)

	var exchangePool *worker.Pool
	if cfg.DatabaseURL != "" {
		pool, err := database.NewPostgresPool(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("✗ PostgreSQL connection failed: %v", err)
		}
		defer pool.Close()

		if err := database.RunMigrations(pool); err != nil {
			log.Fatalf("✗ Database migration failed: %v", err)
		}
		log.Println("✓ PostgreSQL connected, migrations applied")

		exchangePool = worker.NewPool(repository.NewExchangeRepo(pool), cfg.ExchangeWorkers, 256)
		exchangePool.Start()
		chatHandler = handlers.NewChatHandler(chatService, exchangePool)
	}

	// ──── Step 5: Start HTTP Server ────
	wsHub := websocket.NewHub(chatHandler, chatLimiter, cfg.AllowedOrigins)
	r := router.New(chatHandler, chatLimiter, wsHub, backend.Name(), cfg.AllowedOrigins)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Generation can take as long as its timeout plus a wait for a slot.
		WriteTimeout: cfg.GenerationTimeout + cfg.GenerationQueueTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		wsHub.CloseAll()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("✓ LeeAI Backend ready on http://%s", cfg.Addr())
	log.Printf("  Chat: POST http://%s/chat", cfg.Addr())
	log.Printf("  WS:   ws://%s/chat/ws", cfg.Addr())

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
	<-done

	if exchangePool != nil {
		exchangePool.Stop()
	}
	log.Println("✓ Shutdown complete")
}

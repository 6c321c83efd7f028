package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"

	"smart-parking-backend/config"
	"smart-parking-backend/internal/api"
	"smart-parking-backend/internal/cache"
	"smart-parking-backend/internal/db"
	"smart-parking-backend/internal/ingest"
	"smart-parking-backend/internal/notification"
	"smart-parking-backend/internal/store"
	"smart-parking-backend/internal/ws"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "parking-backend ", log.LstdFlags)

	// Optional .env for local development
	if err := godotenv.Load(); err == nil {
		logger.Println(".env file loaded")
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	appStore := store.NewGormStore(gormDB)
	logger.Println("data store initialized")

	// Initialize the Redis mirror
	spotCache := cache.NewRedisCache(&cfg.Redis)

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Warm the cache before the query path is exposed; a failure is logged
	// and the mirror is left to the flush cycle to fill in.
	warmCtx, warmCancel := context.WithTimeout(ctx, 2*time.Minute)
	if err := spotCache.Ping(warmCtx); err != nil {
		logger.Printf("redis unreachable, skipping cache warm-up: %v", err)
	} else if err := ingest.NewSynchronizer(appStore, spotCache).Warm(warmCtx); err != nil {
		logger.Printf("cache warm-up failed: %v", err)
	}
	warmCancel()

	// Broadcast hub for live viewers
	hub := ws.NewHub()

	// Availability notification workers
	workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, &webpushOptions)
	workerPool.Start(ctx)

	// Ingestion pipeline and MQTT consumer
	pipeline := ingest.NewPipeline(cfg, appStore, spotCache, hub, workerPool)
	var pipelineDone sync.WaitGroup
	pipelineDone.Add(1)
	go func() {
		defer pipelineDone.Done()
		pipeline.Run(ctx)
	}()

	var consumer *ingest.Consumer
	if cfg.MQTT.Enabled {
		consumer = ingest.NewConsumer(&cfg.MQTT, pipeline)
		if err := consumer.Start(); err != nil {
			logger.Fatalf("failed to start MQTT consumer: %v", err)
		}
	} else {
		logger.Println("MQTT ingestion is disabled")
	}

	// Initialize router
	router := api.NewRouter(&cfg.Server, appStore, spotCache, hub, &webpushOptions)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// Stop intake first, then let the pipeline finish its final flush.
	if consumer != nil {
		consumer.Stop()
	}
	cancel()
	pipelineDone.Wait()

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	redis "github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"novel-client/internal/clients"
	"novel-client/internal/config"
	"novel-client/internal/database"
	"novel-client/internal/handler"
	"novel-client/internal/interfaces"
	"novel-client/internal/loader"
	"novel-client/internal/logger"
	"novel-client/internal/saves"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Warning: could not load .env file: %v\n", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: cfg.LogEncoding,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)
	zap.L().Info("Logger initialized", zap.String("logLevel", cfg.LogLevel))

	// --- Collaborators ---
	storyClient := clients.NewHTTPStoryAPIClient(cfg.StoryAPIBaseURL, cfg.StoryAPITimeout, log)

	contentLoader := loader.NewLoader(storyClient, log, loader.Config{
		PollInterval:           cfg.PollInterval,
		MaxPollAttempts:        cfg.MaxPollAttempts,
		EndingInitialWait:      cfg.EndingInitialWait,
		RequireChapterApproval: cfg.RequireChapterApproval,
	})

	saveStore, redisClient, err := buildSaveStore(cfg, log)
	if err != nil {
		zap.L().Fatal("Failed to initialize save store", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	saveAdapter := saves.NewAdapter(saveStore, contentLoader, log)
	sessions := handler.NewSessionManager(storyClient, contentLoader, saveAdapter, log)
	sessionHandler := handler.NewSessionHandler(sessions, handler.SessionOptions{
		AdvanceDebounce:     cfg.AdvanceDebounce,
		AutoAdvanceInterval: cfg.AutoAdvanceInterval,
	}, log)

	// --- HTTP Server Setup (Gin) ---
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.RedirectTrailingSlash = true
	router.Use(handler.GinZapLogger(log))
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	if len(origins) == 1 && origins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": sessions.Count()})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	sessionHandler.RegisterRoutes(router)

	p := ginprometheus.NewPrometheus("gin")
	p.Use(router)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	zap.L().Info("Starting HTTP server", zap.String("port", cfg.Port))
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("HTTP Server listen error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zap.L().Error("Server forced to shutdown", zap.Error(err))
	}
	zap.L().Info("Server exited")
}

// buildSaveStore picks the configured save backend. The Redis client is
// returned so main can close it on exit; it is nil for the API backend.
func buildSaveStore(cfg *config.Config, log *zap.Logger) (interfaces.SaveStore, *redis.Client, error) {
	switch cfg.SaveBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		zap.L().Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))
		return database.NewRedisSaveStore(client, log), client, nil
	default:
		return clients.NewHTTPSaveStore(cfg.SaveAPIBaseURL, 10*time.Second, log), nil, nil
	}
}

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

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"jobMatch/internal/api"
	"jobMatch/internal/auth"
	"jobMatch/internal/config"
	"jobMatch/internal/database"
	"jobMatch/internal/matching"
)

func main() {
	// 本地开发可以用 .env，生产环境直接读取环境变量。
	_ = godotenv.Load()
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}
	logger.Info("database ready", slog.String("host", cfg.Database.Host), slog.String("db", cfg.Database.Name))

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
	defer asynqClient.Close()

	authService, err := auth.NewAuthService(
		[]byte(cfg.Auth.PrivateKeyPEM),
		[]byte(cfg.Auth.PublicKeyPEM),
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)
	if err != nil {
		log.Fatalf("init auth service: %v", err)
	}

	cvFiles, err := matching.NewCVFileStore(cfg)
	if err != nil {
		log.Fatalf("init cv store: %v", err)
	}
	matchingService := matching.NewServiceFromConfig(cfg, db, cvFiles, redisClient, logger)

	var scanner api.VirusScanner
	if cfg.Clamd.Addr != "" {
		scanner = api.NewClamdScanner(cfg.Clamd.Addr)
	}

	router := api.NewRouter(cfg, logger)
	api.RegisterRoutes(router, api.RouteDeps{
		DB:             db,
		Redis:          redisClient,
		Auth:           authService,
		Matching:       matchingService,
		CVFiles:        cvFiles,
		Scanner:        scanner,
		Queue:          asynqClient,
		Logger:         logger,
		AllowedOrigins: cfg.API.AllowedOrigins,
		LoginRatePerHr: cfg.Auth.LoginRatePerHr,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("api listening",
			slog.String("addr", srv.Addr),
			slog.String("ollama_model", cfg.Ollama.Model),
			slog.String("cv_source", cfg.Matching.CVSource),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start api server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	// 进行中的匹配请求可能包含多次评分调用，给足收尾时间。
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("api shutdown failed", slog.Any("error", err))
	}
	logger.Info("api stopped")
}

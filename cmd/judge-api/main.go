package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/common/db"
	commonmw "codejudge/internal/common/http/middleware"
	"codejudge/internal/common/mq"
	"codejudge/internal/common/storage"
	gatewayMiddleware "codejudge/internal/gateway/middleware"
	gatewayRepo "codejudge/internal/gateway/repository"
	gatewayService "codejudge/internal/gateway/service"
	"codejudge/internal/judge/execution"
	problemRepo "codejudge/internal/problem/repository"
	submitController "codejudge/internal/submit/controller"
	submitRepo "codejudge/internal/submit/repository"
	"codejudge/internal/submit/service"
	userController "codejudge/internal/user/controller"
	userRepo "codejudge/internal/user/repository"
	"codejudge/pkg/utils/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/judge_api.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(context.Background(), "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	judge0, err := execution.NewJudge0Client(appCfg.Judge0, nil)
	if err != nil {
		logger.Error(context.Background(), "init judge0 client failed", zap.Error(err))
		return
	}

	var publisher submitRepo.ResultPublisher
	if len(appCfg.Kafka.Brokers) > 0 {
		producer, err := mq.NewKafkaProducer(appCfg.Kafka)
		if err != nil {
			logger.Error(context.Background(), "init kafka failed", zap.Error(err))
			return
		}
		defer func() {
			_ = producer.Close()
		}()
		publisher = submitRepo.NewMQResultPublisher(producer, appCfg.Submit.ResultTopic)
	} else {
		logger.Warn(context.Background(), "kafka brokers not configured, result events disabled")
	}

	var archive submitRepo.SourceArchive
	if appCfg.MinIO.Endpoint != "" {
		archive, err = buildSourceArchive(appCfg.MinIO, appCfg.Submit.Timeouts.Storage)
		if err != nil {
			logger.Error(context.Background(), "init source archive failed", zap.Error(err))
			return
		}
	} else {
		logger.Warn(context.Background(), "minio endpoint not configured, source archive disabled")
	}

	revocation := gatewayRepo.NewTokenRevocationRepository(
		gatewayRepo.NewLRUCache(appCfg.Auth.LocalCacheSize),
		redisCache,
		appCfg.Auth.RevocationTimeout,
		appCfg.Auth.LocalCacheTTL,
	)
	authService := gatewayService.NewAuthService(gatewayService.AuthConfig{
		JWTSecret:      appCfg.Auth.JWTSecret,
		JWTIssuer:      appCfg.Auth.JWTIssuer,
		AccessTokenTTL: appCfg.Auth.AccessTokenTTL,
	}, revocation)

	solvedRepo := userRepo.NewSolvedRepository(mysqlDB)
	submitService, err := service.NewSubmitService(service.Config{
		SubmissionRepo:  submitRepo.NewSubmissionRepositoryWithTTL(mysqlDB, redisCache, appCfg.Submit.SubmissionCacheTTL, appCfg.Submit.SubmissionEmptyTTL),
		TestCaseRepo:    problemRepo.NewTestCaseRepositoryWithTTL(mysqlDB, redisCache, appCfg.Submit.TestCaseCacheTTL, appCfg.Submit.TestCaseEmptyTTL),
		SolvedRepo:      solvedRepo,
		Executor:        judge0,
		Cooldown:        gatewayService.NewCooldownService(redisCache, appCfg.Submit.Cooldown, appCfg.Submit.Timeouts.Cache),
		Publisher:       publisher,
		Archive:         archive,
		MaxCodeBytes:    appCfg.Submit.MaxCodeBytes,
		PollInterval:    appCfg.Submit.PollInterval,
		MaxPollAttempts: appCfg.Submit.MaxPollAttempts,
		ListLimit:       appCfg.Submit.ListLimit,
		Timeouts: service.TimeoutConfig{
			DB:      appCfg.Submit.Timeouts.DB,
			Judge:   appCfg.Submit.Timeouts.Judge,
			MQ:      appCfg.Submit.Timeouts.MQ,
			Storage: appCfg.Submit.Timeouts.Storage,
		},
	})
	if err != nil {
		logger.Error(context.Background(), "init submit service failed", zap.Error(err))
		return
	}

	httpServer := buildHTTPServer(appCfg.Server, authService, submitService)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "judge api started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	// In-flight submissions keep polling; give them up to the shutdown timeout.
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
}

func buildSourceArchive(cfg storage.MinIOConfig, timeout time.Duration) (*submitRepo.ObjectSourceArchive, error) {
	objStorage, err := storage.NewMinIOStorage(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := objStorage.EnsureBucket(ctx, cfg.Bucket); err != nil {
		return nil, err
	}
	return submitRepo.NewObjectSourceArchive(objStorage, cfg.Bucket)
}

func buildHTTPServer(cfg ServerConfig, authService *gatewayService.AuthService, submitService *service.SubmitService) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      buildRouter(cfg, authService, submitService),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func buildRouter(cfg ServerConfig, authService *gatewayService.AuthService, submitService *service.SubmitService) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.RequestLogger())
	if len(cfg.AllowOrigins) > 0 {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = cfg.AllowOrigins
		corsCfg.AllowCredentials = true
		corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization", "X-Trace-Id", "X-Request-Id")
		router.Use(cors.New(corsCfg))
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1", gatewayMiddleware.AuthMiddleware(authService))
	submitController.NewSubmitController(submitService).RegisterRoutes(api)
	api.GET("/users/me/solved", userController.NewSolvedController(submitService).ListMine)
	userController.NewAuthController(authService, cfg.SecureCookie).RegisterRoutes(api)

	return router
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bazaar/internal/config"
	"bazaar/internal/consumer"
	"bazaar/internal/database"
	"bazaar/internal/handler"
	"bazaar/internal/middleware"
	"bazaar/internal/model"
	"bazaar/internal/monitor"
	"bazaar/internal/redis"
	"bazaar/internal/repository"
	"bazaar/internal/service/auth"
	"bazaar/internal/service/delivery"
	"bazaar/internal/service/notify"
	"bazaar/internal/service/order"
	"bazaar/internal/service/token"
	"bazaar/internal/utils"
	"bazaar/pkg/breaker"
	"bazaar/pkg/limiter"
	"bazaar/pkg/log"
	"bazaar/pkg/queue"
	"bazaar/pkg/snowflake"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redisv9 "github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.MustLoadConfig("")
	config.GlobalConfig = cfg

	log.Init(log.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxAge:     cfg.Log.MaxAge,
		MaxBackups: cfg.Log.MaxBackups,
		Compress:   cfg.Log.Compress,
	})

	if err := database.Init(cfg); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to initialize database")
	}
	defer database.Close()

	if err := database.AutoMigrate(database.GetDB()); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to migrate database schema")
	}

	if err := redis.Init(cfg); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to initialize redis")
	}
	defer redis.Close()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	db := database.GetDB()
	redisClient := redis.GetClient()

	var metrics *monitor.MetricsCollector
	if cfg.Metrics.Enabled {
		metrics = monitor.NewMetricsCollector()
	}

	var tracer *monitor.Tracer
	if cfg.Tracing.Enabled {
		var err error
		tracer, err = monitor.NewTracer(&monitor.TracerConfig{
			ServiceName:    cfg.Tracing.ServiceName,
			JaegerEndpoint: cfg.Tracing.Endpoint,
			SamplingRate:   cfg.Tracing.SampleRate,
			Enabled:        true,
		})
		if err != nil {
			log.WithFields(map[string]interface{}{
				"error": err.Error(),
			}).Fatal("Failed to initialize tracer")
		}
	}

	idGenerator, err := snowflake.NewIDGenerator(1)
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to create ID generator")
	}

	messageQueue, err := buildMessageQueue(cfg)
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to create message queue")
	}
	defer messageQueue.Close()

	// Repositories
	userRepo := repository.NewUserRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	logRepo := repository.NewNotificationLogRepository(db)
	courierRepo := repository.NewCourierRepository(db)

	// Push token registry with write-through caches
	registry, err := token.NewRegistry(tokenRepo, redisClient, cfg.Notify.TokenCacheTTL, cfg.Notify.TokenCacheSize)
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to create token registry")
	}

	// Dispatch pipeline
	gate := notify.NewGate(notify.GateConfig{
		RemoteURL:    cfg.Notify.ConfigURL,
		FallbackFile: cfg.Notify.FallbackFile,
		CacheTTL:     cfg.Notify.CacheTTL,
	})
	provider := buildProvider(cfg, messageQueue)
	engine := notify.NewEngine(gate, registry, provider, logRepo, courierRepo, userRepo, idGenerator, metrics, notify.EngineConfig{
		AdminKeys:    cfg.Notify.AdminKeys,
		SetupRetries: cfg.Notify.SetupRetries,
		SetupBackoff: cfg.Notify.SetupBackoff,
	})

	// Delivery estimation
	rates := delivery.NewRemoteRateSource(cfg.Delivery.RatesURL, redisClient, cfg.Delivery.CacheTTL)
	estimator := delivery.NewEstimator(rates, metrics)
	depot := delivery.Point{Lat: cfg.Delivery.DepotLat, Lng: cfg.Delivery.DepotLng}

	// Services
	orderService := order.NewOrderService(orderRepo, estimator, idGenerator, messageQueue, cfg.Notify.DispatchTopic, depot, metrics)
	jwtManager := utils.NewJWTManager(
		cfg.Security.JWT.Secret,
		cfg.Security.JWT.Issuer,
		cfg.Security.JWT.Expire,
		cfg.Security.JWT.RefreshTTL,
	)
	authService := auth.NewAuthService(userRepo, jwtManager, registry, cfg.Security.JWT.Expire, metrics)

	router := setupRouter(cfg, authService, orderService, engine, logRepo, redisClient, metrics)

	// Order event consumer feeding the dispatch engine
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	notifyConsumer := consumer.NewNotifyConsumer(engine, orderRepo, messageQueue, cfg.Notify.DispatchTopic)
	notifyConsumer.Start(consumerCtx)

	if metrics != nil {
		go metrics.StartSystemMetricsCollection(consumerCtx)
	}

	server := &http.Server{
		Addr:           cfg.Server.GetAddr(),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	go func() {
		log.WithFields(map[string]interface{}{
			"addr": server.Addr,
			"mode": cfg.Server.Mode,
		}).Info("Starting HTTP server")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithFields(map[string]interface{}{
				"error": err.Error(),
			}).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Error("Server forced to shutdown")
	}

	notifyConsumer.Stop()

	if tracer != nil {
		if err := tracer.Shutdown(ctx); err != nil {
			log.WithFields(map[string]interface{}{
				"error": err.Error(),
			}).Warn("Tracer shutdown failed")
		}
	}

	log.Info("Server exited")
}

func buildMessageQueue(cfg *config.Config) (queue.MessageQueue, error) {
	switch cfg.Queue.Driver {
	case "amqp":
		return queue.NewAMQPMessageQueue(queue.AMQPConfig{
			Host:     cfg.Queue.Host,
			Port:     cfg.Queue.Port,
			User:     cfg.Queue.User,
			Password: cfg.Queue.Password,
			VHost:    cfg.Queue.VHost,
		})
	default:
		return queue.NewMemoryMessageQueue(), nil
	}
}

func buildProvider(cfg *config.Config, mq queue.MessageQueue) notify.Provider {
	var provider notify.Provider
	switch cfg.Notify.Provider.Driver {
	case "http":
		provider = notify.NewHTTPProvider(cfg.Notify.Provider.URL, cfg.Notify.Provider.Key)
	case "bridge":
		provider = notify.NewBridgeProvider(mq, cfg.Notify.Provider.Topic)
	default:
		provider = notify.NoopProvider{}
	}

	if cfg.CircuitBreak.Enabled {
		cb := breaker.NewCircuitBreaker("notify-provider", breaker.Config{
			MaxRequests: cfg.CircuitBreak.MaxRequests,
			Interval:    cfg.CircuitBreak.Interval,
			Timeout:     cfg.CircuitBreak.Timeout,
			ReadyToTrip: func(counts breaker.Counts) bool {
				if counts.Requests < 10 {
					return false
				}
				return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.CircuitBreak.FailureRatio
			},
		})
		provider = notify.NewBreakerProvider(provider, cb)
	}
	return provider
}

func setupRouter(
	cfg *config.Config,
	authService auth.AuthService,
	orderService order.OrderService,
	engine *notify.Engine,
	logRepo repository.NotificationLogRepository,
	redisClient *redisv9.Client,
	metrics *monitor.MetricsCollector,
) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger(metrics))
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS(&cfg.Security))

	router.GET("/health", healthCheck)
	router.GET("/ping", ping)
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	authHandler := handler.NewAuthHandler(authService)
	orderHandler := handler.NewOrderHandler(orderService)
	tokenHandler := handler.NewTokenHandler(engine)
	notificationHandler := handler.NewNotificationHandler(engine, logRepo)

	tokenValidator := func(tokenString string) (*utils.JWTClaims, error) {
		return authService.ValidateToken(context.Background(), tokenString)
	}

	api := router.Group("/api")
	v1 := api.Group("/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.RefreshToken)
		}

		// Provider receipt callback, authenticated by the provider contract
		// rather than a user session
		v1.POST("/notifications/inbound", notificationHandler.Inbound)

		protected := v1.Group("")
		protected.Use(middleware.Auth(tokenValidator))
		if cfg.RateLimit.Enabled {
			perUser := limiter.NewSlidingWindowLimiter(redisClient, cfg.RateLimit.PerUser.Limit, cfg.RateLimit.PerUser.Window)
			protected.Use(middleware.RateLimit(perUser))
		}
		{
			protected.POST("/auth/logout", authHandler.Logout)

			protected.POST("/orders", orderHandler.Checkout)
			protected.GET("/orders", orderHandler.ListOrders)
			protected.GET("/orders/:order_no", orderHandler.GetOrder)
			protected.PATCH("/orders/:order_no/items", orderHandler.UpdateItemStatus)
			protected.POST("/orders/:order_no/step", orderHandler.TransitionStep)

			protected.POST("/push/token", tokenHandler.RegisterToken)

			protected.GET("/notifications", notificationHandler.List)
			protected.POST("/notifications/:id/read", notificationHandler.MarkRead)

			protected.POST("/delivery/estimate", orderHandler.Estimate)
		}

		admin := v1.Group("")
		admin.Use(middleware.RequireRole(tokenValidator, model.RoleAdmin))
		{
			admin.POST("/orders/transition", orderHandler.BulkTransition)
		}
	}

	return router
}

func healthCheck(c *gin.Context) {
	dbHealth := checkDatabase()
	redisHealth := checkRedis()

	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"version":   "1.0.0",
		"services": map[string]interface{}{
			"database": dbHealth,
			"redis":    redisHealth,
		},
	}

	if !dbHealth["healthy"].(bool) || !redisHealth["healthy"].(bool) {
		health["status"] = "error"
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}

	c.JSON(http.StatusOK, health)
}

func ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "pong",
		"timestamp": time.Now().Unix(),
	})
}

func checkDatabase() map[string]interface{} {
	db := database.GetDB()
	if db == nil {
		return map[string]interface{}{
			"healthy": false,
			"error":   "database connection is nil",
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return map[string]interface{}{
			"healthy": false,
			"error":   err.Error(),
		}
	}

	if err := sqlDB.Ping(); err != nil {
		return map[string]interface{}{
			"healthy": false,
			"error":   err.Error(),
		}
	}

	return map[string]interface{}{
		"healthy": true,
		"status":  "connected",
	}
}

func checkRedis() map[string]interface{} {
	client := redis.GetClient()
	if client == nil {
		return map[string]interface{}{
			"healthy": false,
			"error":   "redis client is nil",
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return map[string]interface{}{
			"healthy": false,
			"error":   err.Error(),
		}
	}

	return map[string]interface{}{
		"healthy": true,
		"status":  "connected",
	}
}

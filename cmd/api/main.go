package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"fanhub/internal/config"
	"fanhub/internal/database"
	"fanhub/internal/dedupe"
	"fanhub/internal/eventbus"
	"fanhub/internal/handler"
	"fanhub/internal/listener"
	"fanhub/internal/middleware"
	"fanhub/internal/monitor"
	"fanhub/internal/notification"
	"fanhub/internal/realtime"
	"fanhub/internal/redis"
	"fanhub/internal/repository"
	"fanhub/internal/scheduler"
	"fanhub/internal/service/settlement"
	"fanhub/internal/service/stock"
	"fanhub/internal/service/transition"
	"fanhub/internal/utils"
	"fanhub/pkg/breaker"
	"fanhub/pkg/limiter"
	"fanhub/pkg/log"
	"fanhub/pkg/queue"
	"fanhub/pkg/snowflake"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("FANHUB_CONFIG"))
	if err != nil {
		log.WithError(err).Fatal("Failed to load config")
	}

	if err := log.Init(logConfig(cfg)); err != nil {
		log.WithError(err).Fatal("Failed to initialize logger")
	}
	config.WatchConfig(func(next *config.Config) {
		if err := log.Init(logConfig(next)); err != nil {
			log.WithError(err).Warn("Failed to apply reloaded log config")
		}
	})

	if err := database.Init(cfg); err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer database.Close()

	db := database.GetDB()
	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(db); err != nil {
			log.WithError(err).Fatal("Failed to migrate database")
		}
	} else {
		missing, err := database.CheckTables(db)
		if err != nil {
			log.WithError(err).Fatal("Failed to inspect database schema")
		}
		if len(missing) > 0 {
			log.WithField("tables", missing).Fatal("Database schema incomplete, enable auto_migrate or run migrations")
		}
	}

	if err := redis.Init(cfg); err != nil {
		log.WithError(err).Fatal("Failed to initialize redis")
	}
	defer redis.Close()
	redisClient := redis.GetClient()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	metrics := monitor.NewMetricsCollector(cfg.Metrics.Namespace)
	tracer, err := monitor.NewTracer(&monitor.TracerConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: "1.0.0",
		Environment:    config.Env(),
		JaegerEndpoint: cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize tracer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go metrics.StartSystemMetricsCollection(ctx)

	q := newQueue(cfg, redisClient, metrics)
	bus := eventbus.NewBus(q, eventbus.Config{
		StreamPrefix: cfg.EventBus.StreamPrefix,
		PublishWait:  cfg.EventBus.PublishWait,
	}, metrics, tracer)

	repos := newRepositories(db)

	dedupeStore, err := dedupe.NewStore(ctx, redisClient, dedupe.Config{
		KeyPrefix: cfg.Dedupe.KeyPrefix,
		TTL:       cfg.Dedupe.TTL,
		LocalTTL:  cfg.Dedupe.LocalTTL,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to create dedupe store")
	}
	defer dedupeStore.Close()

	if err := listener.Register(bus, listener.Dependencies{
		Products:      repos.products,
		Purchases:     repos.purchases,
		Subscriptions: repos.subscriptions,
		Catalog:       repos.catalog,
		Performers:    repos.performers,
		Payouts:       repos.payouts,
		Dedupe:        dedupeStore,
		Mailer:        newMailer(cfg),
		Rooms:         realtime.NewRooms(redisClient, "rt:"),
	}); err != nil {
		log.WithError(err).Fatal("Failed to register listeners")
	}

	ids, err := snowflake.NewIDGenerator(cfg.Settlement.WorkerID)
	if err != nil {
		log.WithError(err).Fatal("Failed to create ID generator")
	}
	engine := settlement.NewEngine(settlement.Dependencies{
		Ledger:     repos.ledger,
		Users:      repos.users,
		Performers: repos.performers,
		Products:   repos.products,
		Catalog:    repos.catalog,
		Coupons:    repos.coupons,
		Publisher:  bus,
		IDs:        ids,
	}, settlement.Config{
		DefaultCommissionBps: cfg.Settlement.DefaultCommissionBps,
		MinTipAmount:         cfg.Settlement.MinTipAmount,
		MaxQuantity:          cfg.Settlement.MaxQuantity,
		LedgerTimeout:        cfg.Settlement.LedgerTimeout,
		MonthlyPeriod:        cfg.Settlement.MonthlyPeriod,
		YearlyPeriod:         cfg.Settlement.YearlyPeriod,
	}, metrics, tracer)

	jobStore := scheduler.NewRedisStore(redisClient, cfg.Scheduler.KeyPrefix)
	if err := jobStore.Preload(ctx); err != nil {
		log.WithError(err).Fatal("Failed to load scheduler scripts")
	}
	jobs := scheduler.New(
		jobStore,
		scheduler.Config{PollInterval: cfg.Scheduler.PollInterval},
		metrics, tracer,
	)
	runner := transition.NewRunner(jobs, bus, redisClient, transition.Config{
		Interval:      cfg.Scheduler.TransitionInterval,
		RetryInterval: cfg.Scheduler.RetryInterval,
		InitialDelay:  cfg.Scheduler.InitialDelay,
		BatchSize:     cfg.Scheduler.BatchSize,
		LockTTL:       cfg.Scheduler.LockTTL,
	}, metrics,
		repository.NewScheduledFeedRepository(db),
		repository.NewScheduledStreamRepository(db),
	)
	if err := runner.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start transition runner")
	}
	stockService := stock.NewStockService(repos.products, repos.stockLogs, jobs, metrics)
	if err := stockService.StartPeriodicSync(ctx, cfg.Scheduler.StockSyncInterval); err != nil {
		log.WithError(err).Fatal("Failed to start stock reconciliation")
	}
	go jobs.Run(ctx)

	if err := bus.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start event bus")
	}

	router := setupRouter(cfg, routerDeps{
		engine:  engine,
		stock:   stockService,
		redis:   redisClient,
		queue:   q,
		metrics: metrics,
		tracer:  tracer,
	})

	server := &http.Server{
		Addr:           cfg.Server.GetAddr(),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	go func() {
		log.WithFields(log.Fields{
			"addr": server.Addr,
			"mode": cfg.Server.Mode,
		}).Info("Starting HTTP server")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	cancel()
	if err := bus.Close(); err != nil {
		log.WithError(err).Warn("Failed to close event bus")
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Failed to flush traces")
	}

	log.Info("Server exited")
}

func logConfig(cfg *config.Config) log.Config {
	return log.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxAge:     cfg.Log.MaxAge,
		MaxBackups: cfg.Log.MaxBackups,
		Compress:   cfg.Log.Compress,
	}
}

// newQueue picks the backing queue of the event bus
func newQueue(cfg *config.Config, client *goredis.Client, metrics *monitor.MetricsCollector) queue.Queue {
	retry := queue.RetryPolicy{
		MaxAttempts: cfg.EventBus.MaxAttempts,
		Backoff:     cfg.EventBus.RetryBackoff,
	}
	deadLetter := func(d *queue.Delivery, err error) {
		metrics.RecordDeadLetter(d.Stream, d.Group)
		log.WithError(err).WithFields(log.Fields{
			"stream":  d.Stream,
			"group":   d.Group,
			"id":      d.ID,
			"attempt": d.Attempt,
		}).Error("Event dead-lettered")
	}

	if cfg.EventBus.Driver == "memory" {
		log.Warn("Using in-memory event queue, events do not survive a restart")
		return queue.NewMemoryQueue(&queue.MemoryQueueConfig{
			BufferSize:   cfg.EventBus.BufferSize,
			Timeout:      cfg.EventBus.PublishWait,
			Retry:        retry,
			OnDeadLetter: deadLetter,
		})
	}

	hostname, _ := os.Hostname()
	return queue.NewRedisStreamQueue(client, &queue.RedisStreamConfig{
		Consumer:     fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		MaxLen:       cfg.EventBus.MaxLen,
		BlockTimeout: cfg.EventBus.BlockTimeout,
		BatchSize:    cfg.EventBus.BatchSize,
		ClaimMinIdle: cfg.EventBus.ClaimMinIdle,
		Retry:        retry,
		OnDeadLetter: deadLetter,
	})
}

// newMailer logs emails behind a circuit breaker; real delivery is out of scope
func newMailer(cfg *config.Config) notification.Mailer {
	if !cfg.Mail.Enabled {
		return notification.NopMailer{}
	}
	cb := breaker.NewCircuitBreaker("mailer", breaker.Config{
		MaxFailures:      uint32(cfg.CircuitBreak.MaxFailures),
		SuccessThreshold: uint32(cfg.CircuitBreak.SuccessThreshold),
		MaxRequests:      uint32(cfg.CircuitBreak.MaxRequests),
		Timeout:          cfg.CircuitBreak.Timeout,
		OnStateChange: func(name string, from, to breaker.State) {
			log.WithFields(log.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
	return notification.NewBreakerMailer(&notification.LogMailer{From: cfg.Mail.From}, cb, cfg.Mail.Timeout)
}

type repositories struct {
	ledger        repository.LedgerRepository
	users         repository.UserRepository
	performers    repository.PerformerRepository
	products      repository.ProductRepository
	stockLogs     repository.StockLogRepository
	catalog       repository.CatalogRepository
	coupons       repository.CouponRepository
	purchases     repository.PurchasedItemRepository
	subscriptions repository.SubscriptionRepository
	payouts       repository.PayoutRepository
}

func newRepositories(db *gorm.DB) repositories {
	return repositories{
		ledger:        repository.NewLedgerRepository(db),
		users:         repository.NewUserRepository(db),
		performers:    repository.NewPerformerRepository(db),
		products:      repository.NewProductRepository(db),
		stockLogs:     repository.NewStockLogRepository(db),
		catalog:       repository.NewCatalogRepository(db),
		coupons:       repository.NewCouponRepository(db),
		purchases:     repository.NewPurchasedItemRepository(db),
		subscriptions: repository.NewSubscriptionRepository(db),
		payouts:       repository.NewPayoutRepository(db),
	}
}

type routerDeps struct {
	engine  settlement.Engine
	stock   stock.StockService
	redis   *goredis.Client
	queue   queue.Queue
	metrics *monitor.MetricsCollector
	tracer  *monitor.Tracer
}

func setupRouter(cfg *config.Config, deps routerDeps) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.Logger(deps.metrics, deps.tracer))
	if cfg.Security.CORS.Enabled {
		router.Use(middleware.CORS(cfg.Security.CORS.AllowOrigins, cfg.Security.CORS.AllowCredentials,
			time.Duration(cfg.Security.CORS.MaxAge)*time.Second))
	}

	health := handler.NewHealthHandler(map[string]handler.HealthCheck{
		"mysql": database.Health,
		"redis": redis.Health,
		"queue": deps.queue.Health,
	})
	router.GET("/health", health.Health)
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(deps.metrics.GetRegistry(), promhttp.HandlerOpts{})))
	}

	jwtManager := utils.NewJWTManager(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer, cfg.Security.JWT.Expire)
	validator := middleware.JWTValidator(jwtManager)

	settlementHandler := handler.NewSettlementHandler(deps.engine)
	stockHandler := handler.NewStockHandler(deps.stock)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Timeout(cfg.Settlement.LedgerTimeout + 5*time.Second))
	{
		buyers := v1.Group("")
		buyers.Use(middleware.RequireRole(validator, utils.RoleUser))
		if cfg.RateLimit.Enabled {
			buyers.Use(middleware.RateLimit(middleware.RateLimitConfig{
				Limiter: limiter.Chain{
					limiter.NewTokenBucketLimiter(rate.Limit(cfg.RateLimit.Global.RPS), cfg.RateLimit.Global.Burst),
					limiter.NewSlidingWindowLimiter(deps.redis, "ratelimit:", cfg.RateLimit.PerBuyer.Limit, cfg.RateLimit.PerBuyer.Window),
				},
				KeyFunc:  middleware.BuyerKey,
				FailOpen: true,
			}))
		}
		buyers.POST("/purchases", settlementHandler.Purchase)
		buyers.POST("/tips", settlementHandler.Tip)

		admin := v1.Group("/admin")
		admin.Use(middleware.RequireRole(validator, utils.RoleAdmin))
		{
			admin.POST("/transactions/:id/refund", settlementHandler.Refund)
			admin.POST("/transactions/:id/republish", settlementHandler.Republish)
			admin.GET("/products/:id/stock-consistency", stockHandler.CheckConsistency)
			admin.POST("/stock/reconcile", stockHandler.CheckAll)
		}
	}

	return router
}

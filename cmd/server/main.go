package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"order-manager/internal/auth"
	"order-manager/internal/config"
	orderhttp "order-manager/internal/controllers/http"
	"order-manager/internal/domain"
	"order-manager/internal/infra"
	"order-manager/internal/infra/cache"
	mmysql "order-manager/internal/infra/mysql"
	"order-manager/internal/infra/rabbitmq"
	"order-manager/internal/infra/tracing"
	"order-manager/internal/metrics"
	"order-manager/internal/repository"
	"order-manager/internal/repository/memory"
	mysqlrepo "order-manager/internal/repository/mysql"
	"order-manager/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const serviceName = "order-manager"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	shutdownTracing, err := tracing.Init(serviceName, cfg.JaegerEndpoint)
	if err != nil {
		logger.Fatal("failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	repo, err := newRepository(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize order store", zap.Error(err))
	}

	prices, warmup := newPriceProvider(cfg, logger)
	if warmup != nil && len(cfg.PriceWarmupIDs) > 0 {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := warmup.WarmupPrices(ctx, cfg.PriceWarmupIDs); err != nil {
				logger.Warn("price warmup failed", zap.Error(err))
				return
			}
			logger.Info("price cache warmed up", zap.Int("products", len(cfg.PriceWarmupIDs)))
		}()
	}

	var publisher rabbitmq.PublisherInterface = rabbitmq.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		p, err := rabbitmq.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange, logger)
		if err != nil {
			logger.Fatal("failed to initialize publisher", zap.Error(err))
		}
		defer p.Close()
		publisher = p
	} else {
		logger.Info("RABBITMQ_URL not set, order events are not published")
	}

	var opts []services.Option
	if cfg.StrictTransitions {
		opts = append(opts, services.WithTransitionPolicy(domain.GuardedTransitions{}))
	}
	svc := services.NewOrderService(repo, prices, publisher, logger, opts...)

	handler := orderhttp.NewHandler(svc, auth.NewJWTAuthenticator(cfg.JWTSecret), logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(orderhttp.RequestLogger(logger))
	router.Use(metrics.Middleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", metrics.Handler())
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server run", zap.Error(err))
		}
	}()
	logger.Info("order manager started", zap.String("port", cfg.Port), zap.String("store", cfg.Store))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newRepository(cfg *config.Config, logger *zap.Logger) (repository.OrderRepository, error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory order store, data is lost on restart")
		return memory.NewOrderRepository(), nil
	}
	db, err := mmysql.NewMySQL(cfg.MySQL, logger)
	if err != nil {
		return nil, err
	}
	return mysqlrepo.NewOrderRepository(db, logger), nil
}

// newPriceProvider returns the provider used for repricing and, when prices
// come from the catalog, the cache that can be warmed up.
func newPriceProvider(cfg *config.Config, logger *zap.Logger) (infra.PriceProvider, *cache.CachedPriceProvider) {
	if cfg.CatalogURL == "" {
		logger.Info("CATALOG_URL not set, using fixed unit price", zap.Int64("price", cfg.DefaultUnitPrice))
		return infra.FixedPriceProvider(cfg.DefaultUnitPrice), nil
	}

	client := infra.NewProductClient(cfg.CatalogURL, cfg.CatalogTimeout, logger)

	var store cache.Store
	if addr := cfg.Redis.Addr(); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:         addr,
			PoolSize:     50,
			MinIdleConns: 5,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, prices are cached per request only", zap.String("addr", addr), zap.Error(err))
		}
		store = rdb
	}

	cached := cache.NewCachedPriceProvider(client, store, cfg.PriceCacheTTL, logger)
	return cached, cached
}

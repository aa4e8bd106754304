package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/tair/course-payments/docs"
	"github.com/tair/course-payments/internal/payment"
	"github.com/tair/course-payments/internal/payment/config"
	"github.com/tair/course-payments/internal/payment/domain"
	"github.com/tair/course-payments/internal/payment/handler"
	"github.com/tair/course-payments/internal/payment/metrics"
	"github.com/tair/course-payments/internal/payment/repository"
	"github.com/tair/course-payments/kafka"
	"github.com/tair/course-payments/pkg/database"
	"github.com/tair/course-payments/pkg/logger"
	"github.com/tair/course-payments/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Initialize logger
	logger.Init(cfg.ServiceName, cfg.IsDevelopment())
	logger.SetLevel(cfg.LogLevel)

	logger.Logger.Info().
		Str("service", cfg.ServiceName).
		Str("environment", cfg.Environment).
		Str("log_level", cfg.LogLevel).
		Msg("Starting payment service")

	// Initialize tracer
	tp, err := tracing.InitTracer(cfg.Tracing)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to initialize tracer")
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracing.Shutdown(ctx, tp); err != nil {
				logger.Logger.Error().Err(err).Msg("Failed to shutdown tracer")
			}
		}()
	}

	// Connect to database
	db, err := database.NewGormConnection(cfg.Database)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to get database instance")
	}
	defer sqlDB.Close()

	// Run migrations
	if err := repository.AutoMigrate(db); err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to run migrations")
	}
	logger.Logger.Info().Msg("Database initialized successfully")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Logger.Warn().Err(err).
			Str("addr", cfg.Redis.Addr).
			Msg("Redis unavailable, idempotency falls back to the database")
	}
	cancelPing()

	var publisher domain.EventPublisher = domain.NopPublisher{}
	kafkaPublisher, err := kafka.NewPublisher(cfg.Kafka.Brokers)
	if err != nil {
		logger.Logger.Warn().Err(err).
			Strs("brokers", cfg.Kafka.Brokers).
			Msg("Kafka publisher unavailable, events will not be published")
	} else {
		publisher = kafkaPublisher
		defer kafkaPublisher.Close()
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	// Initialize handler with Wire DI
	paymentHandler, err := payment.InitializeHandler(db, cfg, redisClient, publisher, m)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to initialize handler")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Kafka.ConsumeGatewayEvents {
		consumer, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, paymentHandler.HandleGatewayEvent)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to create gateway event consumer")
		}
		defer consumer.Close()

		if err := consumer.Start(ctx); err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to start gateway event consumer")
		}
	}

	server := newHTTPServer(paymentHandler, sqlDB, cfg.HTTPPort)
	go func() {
		logger.Logger.Info().
			Str("port", cfg.HTTPPort).
			Str("metrics_endpoint", "/metrics").
			Str("swagger", "/swagger/index.html").
			Msg("HTTP server started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info().Msg("Shutting down server...")
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
}

func newHTTPServer(paymentHandler *handler.PaymentHandler, db *sql.DB, port string) *http.Server {
	router := mux.NewRouter()

	// Register all middlewares using middleware registration system
	handler.RegisterMiddlewares(router, paymentHandler.GetMiddlewareConfig())

	paymentHandler.RegisterRoutes(router)
	paymentHandler.RegisterHealthCheck(router, db)

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	docs.SwaggerInfo.Host = "localhost:" + port
	handler.RegisterSwaggerDocs(router, httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return &http.Server{
		Addr:              ":" + port,
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

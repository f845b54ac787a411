package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fuel-order-service/config"
	"fuel-order-service/internal/api"
	"fuel-order-service/internal/auth"
	"fuel-order-service/internal/broker"
	"fuel-order-service/internal/events"
	"fuel-order-service/internal/inventory"
	"fuel-order-service/internal/notify"
	"fuel-order-service/internal/push"
	"fuel-order-service/internal/redisclient"
	"fuel-order-service/internal/service"
	"fuel-order-service/internal/store"
	"fuel-order-service/internal/util"
	"fuel-order-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// liveFeed is a push channel that clients can also subscribe to
type liveFeed interface {
	push.Channel
	push.Subscriber
}

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting fuel order service")

	if cfg.Observ.TracingEnabled {
		tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Warn("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	jwtService := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	var repo store.Repository
	switch cfg.Database.Driver {
	case config.StoreMemory:
		mem := store.NewMemoryStore()
		seedDemo(mem, jwtService, logger)
		repo = mem
		logger.Warn("Using the in-memory store; data is lost on restart")
	default:
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		if cfg.Database.AutoMigrate {
			if err := db.Migrate(context.Background()); err != nil {
				logger.Fatal("Failed to migrate database", zap.Error(err))
			}
		}
		repo = db
		logger.Info("Database connected")
	}
	readiness := []api.Pinger{repo}

	var feed liveFeed = push.NewHub()
	var opts []service.Option
	if cfg.Redis.Enabled {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		logger.Info("Redis connected")

		feed = push.NewRedisChannel(redisClient)
		opts = append(opts, service.WithIdempotencyLock(redisClient, cfg.Business.IdempotencyLockTTL))
		readiness = append(readiness, redisClient)
	}

	senders := []notify.Sender{notify.NewLogSMSSender()}
	if cfg.Notify.SMTPHost != "" {
		senders = append(senders, notify.NewSMTPSender(cfg.Notify.SMTPHost, cfg.Notify.SMTPPort, cfg.Notify.SMTPFrom))
	}
	notifier := notify.NewService(repo, repo, feed, senders...)
	dispatcher := notify.NewDispatcher(notifier, feed)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var sink events.Sink = dispatcher
	var notificationWorker *worker.NotificationWorker
	if cfg.Kafka.Transport == config.TransportKafka {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		defer producer.Close()
		sink = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
		notificationWorker = worker.NewNotificationWorker(consumer, dispatcher, repo)
		go func() {
			if err := notificationWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Notification worker error", zap.Error(err))
			}
		}()
	}

	bus := events.NewBus(cfg.Business.EventQueueSize, cfg.Business.EventWorkers, sink)
	bus.Start()

	orderService := service.NewOrderService(repo, inventory.NewLedger(), bus, opts...)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orderService, notifier, feed, jwtService, readiness...)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}
	if err := bus.Close(shutdownCtx); err != nil {
		logger.Warn("Event bus did not drain", zap.Error(err))
	}

	workerCancel()
	if notificationWorker != nil {
		if err := notificationWorker.Stop(); err != nil {
			logger.Warn("Error stopping notification worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"golang.org/x/time/rate"

	"ms-booking/internal/api"
	"ms-booking/internal/booking"
	bookingdb "ms-booking/internal/booking/db"
	"ms-booking/internal/config"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/payment"
	"ms-booking/internal/payment/daraja"
	paymentdb "ms-booking/internal/payment/db"
	"ms-booking/internal/sweep"
	"ms-booking/internal/tickets"
	ticketdb "ms-booking/internal/tickets/db"
	"ms-booking/internal/tickets/qr"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.NewLogger()
	defer log.Close()

	ctx := context.Background()

	// --- PostgreSQL ---
	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN))
	sqldb := sql.OpenDB(connector)
	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	defer sqldb.Close()

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to Postgres: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	if err := migrations.Migrate(ctx, bunDB); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migration failed: %v", err))
	}
	log.Info("DATABASE", "Connected to Postgres and ran migrations")

	// --- Redis ---
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Failed to connect to Redis: %v", err))
	}
	log.Info("REDIS", "Connected to Redis")

	// --- Kafka ---
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		topics := []string{cfg.Kafka.Topics.BookingEvents, cfg.Kafka.Topics.PaymentEvents}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Failed to ensure topics exist: %v", err))
		}
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.BookingEvents, cfg.Kafka.Topics.PaymentEvents)
		defer producer.Close()
		log.Info("KAFKA", fmt.Sprintf("Producer ready for brokers %v", cfg.Kafka.Brokers))
	} else {
		log.Warn("KAFKA", "Kafka disabled, events will not be published")
	}

	// --- Services ---
	bookingStore := &bookingdb.DB{Bun: bunDB}
	paymentStore := &paymentdb.DB{Bun: bunDB}
	ticketStore := &ticketdb.DB{Bun: bunDB}

	gateway := daraja.NewClient(cfg.Gateway, log)
	qrGen := qr.NewQRGenerator(os.Getenv("QR_SECRET_KEY"))
	ticketService := tickets.NewService(ticketStore, qrGen, log)

	var bookingPublisher booking.KafkaPublisher
	var paymentPublisher payment.KafkaPublisher
	if producer != nil {
		bookingPublisher = producer
		paymentPublisher = producer
	}

	bookingService := booking.NewService(bookingStore, bookingPublisher, log)
	paymentService := payment.NewService(paymentStore, bookingStore, gateway, paymentPublisher, ticketService, log)

	// Restore correlation entries lost to a crash between payment creation
	// and registration.
	if err := paymentService.RecoverCorrelations(ctx); err != nil {
		log.Fatal("RECONCILE", fmt.Sprintf("Correlation recovery failed: %v", err))
	}

	// --- Expiry sweep ---
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()

	leaderLock := sweep.NewLock(redisClient, uuid.NewString(), cfg.Sweep.Interval)
	sweeper := sweep.NewSweeper(bookingService, leaderLock, cfg.Sweep, log)
	go sweeper.Run(sweepCtx)

	// --- HTTP server ---
	handler := api.NewHandler(bookingService, paymentService, ticketService, log)
	callbackLimiter := api.RateLimit(rate.Limit(10), 20, log)

	router := handler.Routes(callbackLimiter)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      api.RequestLogger(log)(router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", fmt.Sprintf("Booking service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("SERVER", "Shutdown signal received, cleaning up")

	stopSweep()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal("SERVER", fmt.Sprintf("Server forced to shutdown: %v", err))
	}

	log.Info("SERVER", "Server exited gracefully")
}

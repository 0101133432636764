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

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-checkin/internal/audit"
	audit_api "ms-checkin/internal/audit/api"
	"ms-checkin/internal/auth"
	"ms-checkin/internal/checkin/checkin_api"
	checkin_db "ms-checkin/internal/checkin/db"
	checkinredis "ms-checkin/internal/checkin/redis"
	checkin_service "ms-checkin/internal/checkin/service"
	"ms-checkin/internal/config"
	"ms-checkin/internal/database/migrations"
	"ms-checkin/internal/kafka"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/ratelimit"
	ticket_db "ms-checkin/internal/tickets/db"
	"ms-checkin/internal/tickets/qr"
	"ms-checkin/internal/tickets/service"
	"ms-checkin/internal/tickets/ticket_api"
)

func connectPostgres(cfg *config.Config, log *logger.Logger) *bun.DB {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Connecting to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err == nil {
			err = sqldb.Ping()
			if err == nil {
				break
			}
		}
		log.Error("DATABASE", fmt.Sprintf("PostgreSQL connection failed: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func connectRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("Redis connection successful to %s", cfg.Redis.Addr))
	return client
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Check-in Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	ctx := context.Background()
	bunDB := connectPostgres(cfg, log)
	defer bunDB.Close()

	redisClient := connectRedis(ctx, cfg, log)
	defer redisClient.Close()

	if cfg.Migrations.AutoMigrate {
		runner := migrations.NewRunner(bunDB, cfg.Migrations.Dir)
		if err := runner.Initialize(); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Migration init failed: %v", err))
		}
		if err := runner.Up(); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Migration failed: %v", err))
		}
		log.Info("DATABASE", "Migrations applied")
	}

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()

		topics := []string{cfg.Kafka.Topics.CheckinRecorded, cfg.Kafka.Topics.TicketCancelled}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured")
		}
	} else {
		log.Warn("KAFKA", "Kafka disabled, check-in events will not be published")
	}

	auditStore := &audit.DB{Bun: bunDB}
	auditRecorder := audit.NewRecorder(auditStore, log)
	defer auditRecorder.Close()

	scanCache := checkinredis.NewCache(redisClient)
	qrGen := qr.NewGenerator(cfg.QR.SecretKey)

	var checkinPublisher checkin_service.Publisher
	var cancelPublisher service.Publisher
	if producer != nil {
		checkinPublisher = producer
		cancelPublisher = producer
	}

	checkinService := checkin_service.NewService(
		&checkin_db.DB{Bun: bunDB},
		auditRecorder,
		checkinPublisher,
		scanCache,
		cfg.Kafka.Topics.CheckinRecorded,
		log,
	)
	ticketService := service.NewService(
		&ticket_db.DB{Bun: bunDB},
		qrGen,
		auditRecorder,
		cancelPublisher,
		cfg.Kafka.Topics.TicketCancelled,
		log,
	)

	checkinHandler := &checkin_api.Handler{CheckinService: checkinService, Logger: log}
	ticketHandler := &ticket_api.Handler{TicketService: ticketService, Logger: log}
	auditHandler := audit_api.NewHandler(auditStore, log)

	var limiter ratelimit.Limiter = ratelimit.NopLimiter{}
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.RateLimit.Limit, cfg.RateLimit.Window)
	}

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := bunDB.PingContext(req.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := redisClient.Ping(req.Context()).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth.JWTSecret))

		r.Route("/api", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(ratelimit.Middleware(limiter, log))
				r.Post("/checkin", checkinHandler.Checkin)
			})

			r.Route("/tickets", func(r chi.Router) {
				r.Post("/", ticketHandler.IssueTicket)
				r.Get("/", ticketHandler.ListTickets)
				r.Get("/{code}", ticketHandler.ViewTicket)
				r.Post("/{code}/payment", ticketHandler.UpdatePayment)
				r.Delete("/{code}", ticketHandler.CancelTicket)
				r.Post("/{code}/reset", ticketHandler.ResetCheckin)
			})

			r.Get("/events/{eventID}/checkins", checkinHandler.EventCheckins)
			r.Get("/audit", auditHandler.Query)
		})
	})
	log.Info("ROUTER", "Routes registered under /api")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Check-in Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	} else {
		log.Info("HTTP", "Check-in Service shutdown complete")
	}
}

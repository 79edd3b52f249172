package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/config"
	"github.com/md-rashed-zaman/salonbook/libs/db"
	"github.com/md-rashed-zaman/salonbook/libs/grpcx"
	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"github.com/md-rashed-zaman/salonbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/salonbook/libs/otel"
	"github.com/md-rashed-zaman/salonbook/libs/runtime"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/app"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/consumer"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/migrations"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9093")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	engineCfg, err := app.ConfigFromEnv()
	if err != nil {
		panic(err)
	}

	brokers := config.String("KAFKA_BROKERS", "")
	var backend app.Backend
	var checks []runtime.ReadyCheck
	if brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	if dbURL := config.String("DATABASE_URL", ""); dbURL != "" {
		pool, err := db.Open(ctx, dbURL, db.Options{})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()
		if config.Bool("MIGRATE_ON_START", true) {
			applied, err := db.Migrate(ctx, pool, migrations.FS)
			if err != nil {
				logger.Error("migration failed", "err", err)
				panic(err)
			}
			if len(applied) > 0 {
				logger.Info("migrations applied", "versions", applied)
			}
		}
		backend = app.Postgres(pool)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})

		outboxPublisher := outbox.NewPublisher(pool, outbox.NewRepository(), logger, outbox.PublisherConfig{
			Brokers:   brokers,
			PollEvery: 2 * time.Second,
			BatchSize: 50,
		})
		go outboxPublisher.Run(ctx)
	} else {
		logger.Warn("DATABASE_URL not set; using the in-memory store")
		backend = app.Memory(config.Bool("SEED_DEMO_PROVIDER", true))
	}

	engine := app.NewEngine(backend, engineCfg, logger)
	go engine.Detector.Run(ctx)
	go engine.Settlement.Run(ctx)

	if topic := config.String("KAFKA_PAYOUT_TOPIC", ""); topic != "" && brokers != "" {
		payoutConsumer := consumer.New(logger, backend.Inbox, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "booking-service"),
			Topic:   topic,
		}, consumer.PayoutSentHandler(backend.Settlements))
		go payoutConsumer.Run(ctx)
	}

	health := grpcx.NewHealthServer(service, logger, func(ctx context.Context) bool {
		return len(runtime.CheckAll(ctx, checks...)) == 0
	})
	go func() {
		if err := health.Serve(ctx, net.JoinHostPort("", grpcPort), 10*time.Second); err != nil {
			logger.Error("grpc health server failed", "err", err)
		}
	}()

	limiter, err := newLimiter(logger)
	if err != nil {
		panic(err)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.Register(mux,
		handlers.NewBookingHandler(engine.Service, logger),
		handlers.NewAvailabilityHandler(engine.Resolver, logger),
		handlers.NewSettlementHandler(engine.Settlement, logger),
	)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.BookingCORSPolicy(config.List("CORS_ALLOWED_ORIGINS"))),
		httpx.ForWrites(httpx.RateLimit(limiter, logger, true), "/api/v1/bookings"),
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.ServeHTTP(ctx, srv, logger, 10*time.Second)
}

// newLimiter shares the budget across replicas through Redis when REDIS_ADDR
// is set and falls back to a per-process window otherwise.
func newLimiter(logger *slog.Logger) (httpx.Limiter, error) {
	perMinute, err := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	if err != nil {
		return nil, err
	}
	addr := config.String("REDIS_ADDR", "")
	if addr == "" {
		return httpx.NewMemoryRateLimiter(perMinute, time.Minute), nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
	})
	logger.Info("rate limiting through redis", "addr", addr, "per_minute", perMinute)
	return httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, "booking"), nil
}

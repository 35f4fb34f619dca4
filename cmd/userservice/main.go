package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/pelino250/safeboda/internal/account"
	ratelimitmw "github.com/pelino250/safeboda/internal/http/middleware"
	"github.com/pelino250/safeboda/internal/location"
	"github.com/pelino250/safeboda/internal/outbox"
	"github.com/pelino250/safeboda/internal/passenger"
	"github.com/pelino250/safeboda/internal/rider/cache"
	"github.com/pelino250/safeboda/internal/rider/domain"
	riderhandler "github.com/pelino250/safeboda/internal/rider/handler"
	"github.com/pelino250/safeboda/internal/rider/repository"
	riderservice "github.com/pelino250/safeboda/internal/rider/service"
	"github.com/pelino250/safeboda/pkg/events"
	"github.com/pelino250/safeboda/pkg/observability"
)

type appConfig struct {
	HTTPAddr       string
	GRPCAddr       string
	PostgresDSN    string
	RedisAddr      string
	NATSURL        string
	EventSubject   string
	CacheTTL       time.Duration
	CacheOpTimeout time.Duration
	JWTSecret      string
	TokenTTL       time.Duration
	RateReadRPS    float64
	RateReadBurst  float64
	RateWriteRPS   float64
	RateWriteBurst float64
	OutboxPoll     time.Duration
	OutboxBatch    int
	OutboxRetry    int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.SetupLogger("user-service")
	defer logger.Sync() //nolint:errcheck

	shutdown, err := observability.SetupTracer(ctx, "user-service")
	if err != nil {
		logger.Warn("tracer setup failed", zap.Error(err))
	} else {
		defer shutdown(context.Background())
	}

	cfg := loadConfig()

	var db *sql.DB
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("postgres connect", zap.Error(err))
		}
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			logger.Fatal("postgres ping", zap.Error(err))
		}
		defer db.Close()
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		if conn, err := nats.Connect(cfg.NATSURL, nats.Name("userservice")); err == nil {
			natsConn = conn
			defer conn.Drain() //nolint:errcheck
		} else {
			logger.Warn("nats connection failed", zap.Error(err))
		}
	}

	var store cache.Store
	if redisClient != nil {
		store = cache.NewRedisStore(redisClient, cfg.CacheOpTimeout)
	} else {
		logger.Warn("redis not configured, using in-process availability cache")
		store = cache.NewMemoryStore()
	}
	snapshots := cache.New(store, cfg.CacheTTL, logger.Named("cache"))

	var repo domain.Repository
	if db != nil {
		repo = repository.NewPostgresRepository(db, cfg.EventSubject)
	} else {
		logger.Warn("postgres not configured, using in-memory rider repository")
		repo = repository.NewMemoryRepository()
	}

	// With Postgres present, events flow through the transactional outbox;
	// otherwise the directory publishes straight to NATS.
	var publisher domain.EventPublisher
	if db == nil && natsConn != nil {
		publisher = events.NewPublisher(natsConn, cfg.EventSubject)
	}

	directory := riderservice.NewDirectory(repo, snapshots, publisher, domain.SystemClock{}, logger.Named("directory"))

	accounts := account.NewService(account.NewLogNotifier(logger.Named("notify")),
		domain.SystemClock{}, logger.Named("accounts"), cfg.JWTSecret, cfg.TokenTTL)
	passengers := passenger.NewMemoryRepository()

	limiter := ratelimitmw.NewLimiter(redisClient,
		ratelimitmw.Limit{Rate: cfg.RateReadRPS, Burst: cfg.RateReadBurst},
		ratelimitmw.Limit{Rate: cfg.RateWriteRPS, Burst: cfg.RateWriteBurst})

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID, chimiddleware.RealIP, chimiddleware.Logger, chimiddleware.Recoverer)
	if limiter != nil {
		r.Use(limiter.Middleware)
	}
	r.Mount("/", riderhandler.NewHTTP(directory).Router(cfg.JWTSecret))
	r.Mount("/v1/auth", account.NewHTTP(accounts).Router())
	r.Mount("/v1/passengers", passenger.NewHTTP(passengers).Router(cfg.JWTSecret))
	r.Mount("/observability", observability.MetricsRouter(readyChecks(db, redisClient)...))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	location.RegisterIngestServer(grpcServer, location.NewServer(directory, logger.Named("ingest")))

	if db != nil && natsConn != nil {
		dispatcher := outbox.NewDispatcher(db, natsConn, logger.Named("outbox"), outbox.DispatcherConfig{
			PollInterval: cfg.OutboxPoll,
			BatchSize:    cfg.OutboxBatch,
			RetryMax:     cfg.OutboxRetry,
		})
		go func() {
			if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("outbox dispatcher stopped", zap.Error(err))
			}
		}()
	} else {
		logger.Warn("outbox dispatcher disabled", zap.Bool("db", db != nil), zap.Bool("nats", natsConn != nil))
	}

	go func() {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Fatal("grpc listen", zap.Error(err))
		}
		logger.Info("location ingest listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc server", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("user service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	grpcServer.GracefulStop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func readyChecks(db *sql.DB, redisClient *redis.Client) []observability.ReadyCheck {
	var checks []observability.ReadyCheck
	if db != nil {
		checks = append(checks, db.PingContext)
	}
	if redisClient != nil {
		checks = append(checks, func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	return checks
}

func loadConfig() appConfig {
	return appConfig{
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		GRPCAddr:       getenv("GRPC_ADDR", ":9090"),
		PostgresDSN:    firstNonEmpty(os.Getenv("POSTGRES_DSN"), os.Getenv("DATABASE_URL")),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		NATSURL:        os.Getenv("NATS_URL"),
		EventSubject:   getenv("EVENT_SUBJECT", "rider.events"),
		CacheTTL:       time.Duration(parseIntEnv("CACHE_TTL_SEC", 300)) * time.Second,
		CacheOpTimeout: time.Duration(parseIntEnv("CACHE_OP_TIMEOUT_MS", 75)) * time.Millisecond,
		JWTSecret:      getenv("JWT_SECRET", "dev-secret"),
		TokenTTL:       time.Duration(parseIntEnv("TOKEN_TTL_HOURS", 24)) * time.Hour,
		RateReadRPS:    parseFloatEnv("RATE_READ_RPS", 50),
		RateReadBurst:  parseFloatEnv("RATE_READ_BURST", 100),
		RateWriteRPS:   parseFloatEnv("RATE_WRITE_RPS", 10),
		RateWriteBurst: parseFloatEnv("RATE_WRITE_BURST", 20),
		OutboxPoll:     time.Duration(parseIntEnv("OUTBOX_POLL_MS", 200)) * time.Millisecond,
		OutboxBatch:    parseIntEnv("OUTBOX_BATCH", 100),
		OutboxRetry:    parseIntEnv("OUTBOX_RETRY_MAX", 3),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func parseFloatEnv(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/example/trips/internal/auth"
	"github.com/example/trips/internal/config"
	httpapi "github.com/example/trips/internal/http"
	"github.com/example/trips/internal/lifecycle"
	"github.com/example/trips/internal/logging"
	"github.com/example/trips/internal/notify"
	"github.com/example/trips/internal/push"
	"github.com/example/trips/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		logging.NewLogger("trips-api", "info").Error("config load failed", "error", err)
		os.Exit(1)
	}
	log := logging.NewLogger("trips-api", cfg.LogLevel)
	if cfg.JWTSecret == "" {
		log.Error("JWT_SECRET must be set")
		os.Exit(1)
	}

	var store lifecycle.Store
	if cfg.PGDSN != "" {
		if cfg.RunMigrations {
			migrate(cfg.PGDSN, log)
		}
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			log.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer ps.Close()
		store = ps
	} else {
		log.Warn("PG_DSN not set, using in-memory ride store")
		store = storage.NewMemoryStore()
	}

	var rc *redis.Client
	if cfg.RedisAddr != "" {
		rc = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rc.Close()
	}

	var roles lifecycle.RoleProvider = auth.ClaimRoles{}
	if rc != nil {
		roles = auth.NewRedisRoles(rc, cfg.DriverSetKey)
	}

	var queue notify.Queue
	if rc != nil {
		queue = notify.NewRedisQueue(rc, cfg.NotifyQueueKey)
	} else {
		queue = notify.NewMemoryQueue(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(cfg.KafkaBrokers) > 0 {
		pub := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer pub.Close()
		w := &notify.Worker{Queue: queue, Publisher: pub, Log: log}
		go w.Run(ctx)
	} else {
		log.Warn("KAFKA_BROKERS not set, ride-request handoff stays queued")
	}

	engine := lifecycle.NewEngine(store, roles)
	verifier := auth.NewHS256Verifier(cfg.JWTSecret)
	srv := httpapi.NewServer(engine, verifier, queue, push.NewRegistry(log), log, cfg.RateLimitRPM, cfg.RateLimitBurst)

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = httpSrv.Shutdown(shutCtx)
	}()

	log.Info("trips api listening", "addr", cfg.HTTPAddr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// migrate applies migrations/001_create_rides.sql when requested. Kept
// deliberately simple: one idempotent schema file, no version table.
func migrate(dsn string, log *slog.Logger) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Error("migration db open error", "error", err)
		return
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_rides.sql"))
	if err != nil {
		log.Error("migration read error", "error", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		log.Error("migration exec error", "error", err)
		return
	}
	log.Info("migration applied", "file", "001_create_rides.sql")
}

package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/example/trips/internal/config"
	"github.com/example/trips/internal/logging"
	"github.com/example/trips/internal/notify"
)

// The notifier drains the pending ride-request queue into Kafka. It is
// the standalone form of the worker the API can also run in-process;
// running both only re-delivers, which downstream consumers absorb by
// deduping on ride id.
func main() {
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		logging.NewLogger("trips-notifier", "info").Error("config load failed", "error", err)
		os.Exit(1)
	}
	log := logging.NewLogger("trips-notifier", cfg.LogLevel)

	if cfg.RedisAddr == "" || len(cfg.KafkaBrokers) == 0 {
		log.Error("notifier requires REDIS_ADDR and KAFKA_BROKERS")
		os.Exit(1)
	}

	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rc.Close()

	pub := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer pub.Close()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := rc.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		log.Info("metrics/health listening", "addr", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Error("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("notifier draining queue", "queue", cfg.NotifyQueueKey, "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)

	w := &notify.Worker{
		Queue:     notify.NewRedisQueue(rc, cfg.NotifyQueueKey),
		Publisher: pub,
		Log:       log,
	}
	w.Run(ctx)
	log.Info("shutting down notifier")
}

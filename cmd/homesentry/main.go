package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"homesentry/internal/alert"
	"homesentry/internal/command"
	"homesentry/internal/config"
	"homesentry/internal/email"
	"homesentry/internal/httpapi"
	"homesentry/internal/ingest"
	mqttpkg "homesentry/internal/mqtt"
	"homesentry/internal/observability"
	"homesentry/internal/realtime"
	"homesentry/internal/security"
	"homesentry/internal/store"
)

func main() {
	cfg := config.Load()
	setLogLevel(cfg.LogLevel)

	db, err := store.OpenPostgres(
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		"",
	)
	if err != nil {
		slog.Error("db connect failed", "error", err)
		os.Exit(1)
	}
	repo, err := store.New(db)
	if err != nil {
		slog.Error("db init failed", "error", err)
		os.Exit(1)
	}

	var cache *store.StateCache
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		// The cache is an accelerator, not a dependency.
		slog.Warn("redis unavailable, state cache disabled", "error", err)
	} else {
		cache = store.NewStateCache(rdb)
	}

	mq, err := mqttpkg.New(cfg.MQTTBrokerURL)
	if err != nil {
		slog.Error("mqtt connect failed", "broker", cfg.MQTTBrokerURL, "error", err)
		os.Exit(1)
	}

	hub := realtime.NewHub()
	mailer := email.NewSender(cfg.SMTP)
	notifier := alert.NewNotifier(repo, mailer, hub)
	monitor := security.NewMonitor(repo, notifier)
	pub := command.NewPublisher(mq)

	ingestor := ingest.New(repo, cache, monitor, notifier, hub, pub)
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()
	if err := ingestor.Start(rootCtx, mq); err != nil {
		slog.Error("mqtt subscribe failed", "error", err)
		os.Exit(1)
	}

	sched := cron.New()
	_, err = sched.AddFunc("@every 5m", func() {
		if purged := monitor.Sweep(time.Now().UTC()); purged > 0 {
			slog.Info("stale password attempts purged", "count", purged)
		}
	})
	if err != nil {
		slog.Error("sweep schedule failed", "error", err)
		os.Exit(1)
	}
	sched.Start()

	otelShutdown, promHandler, tracer := observability.SetupObservability("homesentry")
	defer otelShutdown()

	api := httpapi.New(repo, pub, cache, hub)
	r := api.Routes(observability.MetricsAndTracingMiddleware(tracer, "homesentry"))
	r.Handle("/metrics", promHandler)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		slog.Info("homesentry started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	rootCancel()
	sched.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	mq.Disconnect(250)
	slog.Info("homesentry stopped")
}

func setLogLevel(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l})))
}

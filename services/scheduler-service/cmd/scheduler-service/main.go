package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/md-rashed-zaman/clinicsched/libs/config"
	"github.com/md-rashed-zaman/clinicsched/libs/db"
	"github.com/md-rashed-zaman/clinicsched/libs/events"
	"github.com/md-rashed-zaman/clinicsched/libs/grpcx"
	"github.com/md-rashed-zaman/clinicsched/libs/httpx"
	"github.com/md-rashed-zaman/clinicsched/libs/inbox"
	"github.com/md-rashed-zaman/clinicsched/libs/kafkax"
	"github.com/md-rashed-zaman/clinicsched/libs/metrics"
	otelx "github.com/md-rashed-zaman/clinicsched/libs/otel"
	"github.com/md-rashed-zaman/clinicsched/libs/outbox"
	"github.com/md-rashed-zaman/clinicsched/libs/runtime"
	"github.com/md-rashed-zaman/clinicsched/services/scheduler-service/internal/jobs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "scheduler-service")
	port, err := config.Port("PORT", "8087")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9097")
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

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL, db.Options{})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	brokers := config.String("KAFKA_BROKERS", "")
	inboxRepo := inbox.NewRepository(pool)
	jobRepo := jobs.NewRepository()
	outboxRepo := outbox.NewRepository(pool)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	var writer outbox.MessageWriter = jobs.LogWriter{Logger: logger}
	if list := kafkax.SplitBrokers(brokers); len(list) > 0 {
		kw := &kafka.Writer{
			Addr:                   kafka.TCP(list...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		}
		defer func() { _ = kw.Close() }()
		writer = kw
	} else {
		logger.Warn("KAFKA_BROKERS not set; due reminders are only logged")
	}

	reg := prometheus.DefaultRegisterer
	jobWorker := jobs.NewWorker(pool, jobRepo, outboxRepo, writer, logger, jobs.NewMetrics(reg), jobs.WorkerConfig{
		Interval:   config.Duration("SCHEDULER_INTERVAL", 2*time.Second),
		BatchSize:  config.Int("SCHEDULER_BATCH_SIZE", 50),
		Backoff:    config.Duration("SCHEDULER_BACKOFF", time.Minute),
		MaxBackoff: config.Duration("SCHEDULER_MAX_BACKOFF", 30*time.Minute),
	})
	go jobWorker.Run(ctx)

	if len(kafkax.SplitBrokers(brokers)) > 0 {
		eventConsumer := kafkax.NewConsumer(logger, inboxRepo, kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "scheduler-service"),
			Topics:  []string{events.TopicReminderRequested},
		}, map[string]kafkax.Handler{
			events.TopicReminderRequested: jobs.NewRequestHandler(pool, jobRepo, logger, config.Int("SCHEDULER_MAX_ATTEMPTS", 5)),
		})
		go eventConsumer.Run(ctx)
	}

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	}
	healthSrv := grpcx.NewHealthServer(service)
	go healthSrv.Watch(ctx, 5*time.Second, runtime.CheckAll(checks...))
	go func() {
		if err := healthSrv.Serve(ctx, ":"+grpcPort, logger); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	httpMetrics := metrics.NewHTTPMetrics(reg, "clinicsched")
	mux := http.NewServeMux()
	probes := runtime.Probes(checks...)
	mux.Handle("/healthz", probes)
	mux.Handle("/readyz", probes)
	mux.Handle("/metrics", metrics.Handler(prometheus.DefaultGatherer))
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger, func(r *http.Request, status int, elapsed time.Duration) {
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			httpMetrics.Observe(r.Method, route, status, elapsed)
		}),
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(handler, "scheduler"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.ServeHTTP(ctx, srv, logger)
}

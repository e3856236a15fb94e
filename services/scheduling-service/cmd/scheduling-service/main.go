package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicsched/libs/config"
	"github.com/md-rashed-zaman/clinicsched/libs/db"
	"github.com/md-rashed-zaman/clinicsched/libs/grpcx"
	"github.com/md-rashed-zaman/clinicsched/libs/httpx"
	"github.com/md-rashed-zaman/clinicsched/libs/kafkax"
	"github.com/md-rashed-zaman/clinicsched/libs/metrics"
	otelx "github.com/md-rashed-zaman/clinicsched/libs/otel"
	"github.com/md-rashed-zaman/clinicsched/libs/outbox"
	"github.com/md-rashed-zaman/clinicsched/libs/runtime"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/allocator"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/flow"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/handlers"
	schedmetrics "github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/patients"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/report"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9090")
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

	var pool *db.Pool
	if dbURL := config.String("DATABASE_URL", ""); dbURL != "" {
		pool, err = db.Open(ctx, dbURL, db.Options{MaxConns: int32(config.Int("DB_MAX_CONNS", 10))})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
	}

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr, Password: config.String("REDIS_PASSWORD", "")})
		defer func() { _ = rdb.Close() }()
	}

	slotStore, err := openSlotStore(ctx, config.String("STORE_BACKEND", "csv"), pool, logger)
	if err != nil {
		logger.Error("slot store init failed", "err", err)
		os.Exit(1)
	}

	var locker store.Locker = store.NewLocalLocker()
	var sessions flow.SessionStore = flow.NewMemoryStore()
	if rdb != nil {
		locker = store.NewRedisLocker(rdb, logger, store.RedisLockerConfig{
			Prefix: config.String("LOCK_PREFIX", "clinicsched:slotlock"),
			TTL:    config.Duration("LOCK_TTL", 5*time.Second),
		})
		sessions = flow.NewRedisStore(rdb, "clinicsched:session", config.Duration("SESSION_TTL", 24*time.Hour))
	}

	reg := prometheus.DefaultRegisterer
	schedMetrics := schedmetrics.NewSchedulingMetrics(reg)
	httpMetrics := metrics.NewHTTPMetrics(reg, "clinicsched")

	alloc := allocator.New(slotStore, locker, logger, schedMetrics, allocator.Options{
		AllowOverwrite: config.Bool("ALLOW_OVERWRITE", false),
		LockTimeout:    config.Duration("LOCK_TIMEOUT", 3*time.Second),
	})

	var apptRepo booking.Repository = booking.NewMemoryRepository()
	if pool != nil {
		apptRepo = booking.NewPostgresRepository(pool)
	}

	brokers := config.String("KAFKA_BROKERS", "")
	emitter := openEmitter(ctx, config.String("EVENT_EMITTER", "log"), brokers, pool, logger)

	clinicTZ, err := time.LoadLocation(config.String("CLINIC_TZ", "Local"))
	if err != nil {
		logger.Warn("unknown CLINIC_TZ, using local time", "err", err)
		clinicTZ = time.Local
	}
	svc := booking.NewService(alloc,
		patients.NewCSVRepository(config.String("PATIENTS_CSV", "data/patients.csv")),
		apptRepo, emitter, schedMetrics, logger,
		booking.Config{
			Policy: booking.DurationPolicy{
				ReturningMinutes: config.Int("RETURNING_PATIENT_MINUTES", 30),
				NewMinutes:       config.Int("NEW_PATIENT_MINUTES", 60),
			},
			ReminderOffsets: parseReminderOffsets(config.String("REMINDER_OFFSETS_HOURS", "72,48,24"), logger),
			Location:        clinicTZ,
		})

	var uploader report.Uploader
	var minioUploader *report.MinioUploader
	if endpoint := config.String("MINIO_ENDPOINT", ""); endpoint != "" {
		client, err := report.NewMinioClient(report.MinioConfig{
			Endpoint:  endpoint,
			AccessKey: config.String("MINIO_ACCESS_KEY", ""),
			SecretKey: config.String("MINIO_SECRET_KEY", ""),
			Region:    config.String("MINIO_REGION", ""),
			UseSSL:    config.Bool("MINIO_USE_SSL", false),
		})
		if err != nil {
			logger.Error("minio client init failed; reports will not be archived", "err", err)
		} else {
			minioUploader = report.NewMinioUploader(client, config.String("MINIO_BUCKET", "clinic-reports"))
			uploader = minioUploader
		}
	}

	checks := []runtime.ReadyCheck{
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	}
	if pool != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	}
	if rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	if minioUploader != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "minio", Check: minioUploader.ReadyCheck})
	}

	var reserveLimiter *httpx.RedisRateLimiter
	if rdb != nil {
		if n := config.Int("RESERVE_RATE_LIMIT", 30); n > 0 {
			reserveLimiter = httpx.NewRedisRateLimiter(rdb, n, time.Minute, "clinicsched:rl:reserve", nil)
		}
	}

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		logger.Warn("JWT_SECRET not set; admin report is disabled")
	}

	h := handlers.New(svc, sessions, uploader, logger)
	router := handlers.NewRouter(h, logger, handlers.RouterConfig{
		JWTSecret:      jwtSecret,
		AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", nil),
		IPRateLimit:    config.Int("RATE_LIMIT_PER_MINUTE", 120),
		ReserveLimiter: reserveLimiter,
		BodyLimit:      int64(config.Int("HTTP_BODY_LIMIT_BYTES", 1<<20)),
		HTTPMetrics:    httpMetrics,
		MetricsHandler: metrics.Handler(prometheus.DefaultGatherer),
		Probes:         runtime.Probes(checks...),
	})

	healthSrv := grpcx.NewHealthServer(service)
	go healthSrv.Watch(ctx, 5*time.Second, runtime.CheckAll(checks...))
	go func() {
		if err := healthSrv.Serve(ctx, ":"+grpcPort, logger); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(router, "scheduling"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.ServeHTTP(ctx, srv, logger)
}

func openSlotStore(ctx context.Context, backend string, pool *db.Pool, logger *slog.Logger) (store.Store, error) {
	path := config.String("SCHEDULE_CSV", "data/doctor_schedule.csv")
	switch strings.ToLower(backend) {
	case "postgres":
		if pool == nil {
			logger.Error("STORE_BACKEND=postgres requires DATABASE_URL")
			os.Exit(1)
		}
		return store.NewPostgresStore(pool), nil
	case "memory":
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				logger.Warn("no schedule file, memory store starts empty", "path", path)
				return store.NewMemoryStore(), nil
			}
			return nil, err
		}
		defer f.Close()
		rows, err := store.ReadSchedule(f)
		if err != nil {
			return nil, err
		}
		logger.Info("memory store seeded", "path", path, "rows", len(rows))
		return store.NewMemoryStore(rows...), nil
	default:
		logger.Info("using csv slot store", "path", path)
		return store.NewCSVStore(path), nil
	}
}

// openEmitter picks how domain events leave the service. The outbox needs Postgres; without
// it the service degrades to logging the events.
func openEmitter(ctx context.Context, kind, brokers string, pool *db.Pool, logger *slog.Logger) booking.Emitter {
	switch strings.ToLower(kind) {
	case "outbox":
		if pool == nil {
			logger.Warn("EVENT_EMITTER=outbox requires DATABASE_URL; logging events instead")
			return booking.NewLogEmitter(logger)
		}
		repo := outbox.NewRepository(pool)
		publisher := outbox.NewPublisher(pool, repo, logger, outbox.PublisherConfig{
			Brokers:   brokers,
			PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
		})
		go publisher.Run(ctx)
		return booking.NewOutboxEmitter(repo)
	case "kafka":
		list := kafkax.SplitBrokers(brokers)
		if len(list) == 0 {
			logger.Warn("EVENT_EMITTER=kafka requires KAFKA_BROKERS; logging events instead")
			return booking.NewLogEmitter(logger)
		}
		writer := &kafka.Writer{
			Addr:                   kafka.TCP(list...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		}
		go func() {
			<-ctx.Done()
			_ = writer.Close()
		}()
		return booking.NewKafkaEmitter(writer)
	default:
		return booking.NewLogEmitter(logger)
	}
}

func parseReminderOffsets(raw string, logger *slog.Logger) []time.Duration {
	var offsets []time.Duration
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		hours, err := strconv.Atoi(part)
		if err != nil || hours <= 0 {
			logger.Warn("invalid reminder offset", "value", part)
			continue
		}
		offsets = append(offsets, time.Duration(hours)*time.Hour)
	}
	return offsets
}

package main

import (
	"context"
	"net/http"
	"os"
	"strings"
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
	"github.com/md-rashed-zaman/clinicsched/services/notification-service/internal/email"
	"github.com/md-rashed-zaman/clinicsched/services/notification-service/internal/messagelog"
	"github.com/md-rashed-zaman/clinicsched/services/notification-service/internal/notifier"
	"github.com/md-rashed-zaman/clinicsched/services/notification-service/internal/sms"
	"github.com/md-rashed-zaman/clinicsched/services/notification-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9095")
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
	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	var emailSender email.Sender
	switch provider := strings.ToLower(config.String("EMAIL_PROVIDER", "smtp")); provider {
	case "sendgrid":
		sg, err := email.NewSendGridSender(email.SendGridConfig{
			APIKey:    config.String("SENDGRID_API_KEY", ""),
			FromEmail: config.String("EMAIL_FROM", "no-reply@clinicsched.local"),
			FromName:  config.String("EMAIL_FROM_NAME", ""),
		})
		if err != nil {
			logger.Warn("sendgrid not configured; emails are only logged", "err", err)
		} else {
			emailSender = sg
		}
	case "smtp":
		if host := config.String("SMTP_HOST", ""); host != "" {
			emailSender = email.NewSMTPSender(email.SMTPConfig{
				Host:     host,
				Port:     config.String("SMTP_PORT", "1025"),
				From:     config.String("EMAIL_FROM", "no-reply@clinicsched.local"),
				Username: config.String("SMTP_USER", ""),
				Password: config.String("SMTP_PASS", ""),
			})
		} else {
			logger.Warn("SMTP_HOST not set; emails are only logged")
		}
	default:
		logger.Info("email provider disabled; emails are only logged", "provider", provider)
	}

	var smsSender sms.Sender = sms.NewLogSender()
	if strings.ToLower(config.String("SMS_PROVIDER", "log")) == "webhook" {
		smsSender = sms.NewWebhookSender(config.String("SMS_WEBHOOK_URL", ""), config.String("SMS_WEBHOOK_TOKEN", ""))
	}

	reg := prometheus.DefaultRegisterer
	svc := notifier.New(pool, storage.NewRepository(), outboxRepo, emailSender, smsSender,
		messagelog.New(config.String("MESSAGE_LOG_DIR", "outbox")),
		notifier.DirForms{Dir: config.String("FORMS_DIR", "data/forms")},
		notifier.NewMetrics(reg), logger,
		notifier.Config{FailSuffix: config.String("NOTIFICATION_FAIL_SUFFIX", "")})

	if len(kafkax.SplitBrokers(brokers)) > 0 {
		eventConsumer := kafkax.NewConsumer(logger, inbox.NewRepository(pool), kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
			Topics: []string{
				events.TopicReminderDue,
				events.TopicAppointmentConfirmed,
				events.TopicFormsRequested,
			},
		}, svc.Handlers())
		go eventConsumer.Run(ctx)
	} else {
		logger.Warn("KAFKA_BROKERS not set; no events will be consumed")
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
		Handler:           otelhttp.NewHandler(handler, "notification"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.ServeHTTP(ctx, srv, logger)
}

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/md-rashed-zaman/clinicsched/libs/auth"
	"github.com/md-rashed-zaman/clinicsched/libs/httpx"
	"github.com/md-rashed-zaman/clinicsched/libs/metrics"
)

type RouterConfig struct {
	JWTSecret      string
	AllowedOrigins []string
	// IPRateLimit is requests per minute per client IP; 0 disables it.
	IPRateLimit int
	// ReserveLimiter, when set, additionally limits appointment creation cluster-wide.
	ReserveLimiter *httpx.RedisRateLimiter
	BodyLimit      int64
	HTTPMetrics    *metrics.HTTPMetrics
	MetricsHandler http.Handler
	Probes         http.Handler
}

func NewRouter(h *Handler, logger *slog.Logger, cfg RouterConfig) http.Handler {
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = 1 << 20
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(httpx.WithRequestID)
	r.Use(httpx.WithAccessLog(logger, routeObserver(cfg.HTTPMetrics)))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-Report-Location"},
		MaxAge:         300,
	}))

	if cfg.Probes != nil {
		r.Handle("/healthz", cfg.Probes)
		r.Handle("/readyz", cfg.Probes)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httpx.WithBodyLimit(cfg.BodyLimit))
		if cfg.IPRateLimit > 0 {
			r.Use(httprate.LimitByIP(cfg.IPRateLimit, time.Minute))
		}

		r.Get("/directory", h.Directory)
		r.Post("/patients/lookup", h.LookupPatient)
		r.Get("/slots", h.Slots)

		r.Route("/appointments", func(r chi.Router) {
			if cfg.ReserveLimiter != nil {
				r.With(cfg.ReserveLimiter.Middleware(logger, true)).Post("/", h.CreateAppointment)
			} else {
				r.Post("/", h.CreateAppointment)
			}
			r.Get("/", h.ListAppointments)
			r.Get("/{id}", h.GetAppointment)
			r.Post("/{id}/confirm", h.Confirm)
			r.Post("/{id}/forms", h.RequestForms)
			r.Post("/{id}/reminders", h.ScheduleReminders)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.CreateSession)
			r.Get("/{id}", h.GetSession)
			r.Post("/{id}/advance", h.AdvanceSession)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(cfg.JWTSecret, httpx.WriteError, auth.RoleAdmin))
			r.Get("/admin/report", h.AdminReport)
		})
	})
	return r
}

// routeObserver labels request metrics with the matched chi pattern to keep cardinality low.
func routeObserver(m *metrics.HTTPMetrics) httpx.RequestObserver {
	return func(r *http.Request, status int, elapsed time.Duration) {
		if m == nil {
			return
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.Observe(r.Method, route, status, elapsed)
	}
}

package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	_ "job-escrow-service/docs"
)

type RouteOptions struct {
	Logger         *zap.Logger
	RateLimitRPS   float64
	RateLimitBurst int
}

func Routes(h *Handler, opts RouteOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// after RequestID
	r.Use(RequestLogger(logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(RateLimit(opts.RateLimitRPS, opts.RateLimitBurst))

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", h.PostJob)
			r.Get("/", h.ListJobs)
			r.Get("/stats", h.JobStats)
			r.Get("/{id}", h.GetJob)
			r.Get("/{id}/escrow", h.GetEscrow)
			r.Post("/{id}/accept", h.AcceptJob)
			r.Post("/{id}/release", h.ReleaseJob)
		})

		r.Route("/accounts/{actor}", func(r chi.Router) {
			r.Get("/balance", h.GetBalance)
			r.Post("/deposits", h.Deposit)
		})

		r.Get("/audit", h.Audit)
		r.Get("/events", h.Events)
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return r
}

package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"festcred/internal/http/handlers"
	"festcred/internal/middleware"
)

// Options carries the router-level knobs the handlers do not own.
type Options struct {
	AllowedOrigins  []string
	OperatorToken   string
	RateLimitPerMin int
	MetricsRegistry *prometheus.Registry
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)
	if opts.RateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
	}

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/registrations", func(r chi.Router) {
		r.Post("/", app.SubmitRegistration)
		r.Get("/{registration_id}/status", app.RegistrationStatus)
		r.With(middleware.OperatorAuth(opts.OperatorToken)).
			Post("/{registration_id}/reprocess", app.ReprocessRegistration)
	})

	r.Get("/v1/files/{bucket}/*", app.ServeFile)

	if opts.MetricsRegistry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.MetricsRegistry, promhttp.HandlerOpts{}))
	}

	return r
}

package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"notebook/internal/http/handlers"
	"notebook/internal/infra"
	"notebook/internal/middleware"
)

// Options configures the middleware chain around the API routes.
type Options struct {
	Logger          *infra.Logger
	AllowedOrigins  []string
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
	RateLimitPerMin int
	JWTSecret       string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)

	r.Group(func(r chi.Router) {
		if opts.JWTSecret != "" {
			r.Use(middleware.AuthJWT(opts.JWTSecret))
		}

		r.Route("/v1/jobs", func(r chi.Router) {
			r.Post("/", app.SubmitJob)
			r.Post("/export", app.ExportJobs)
			r.Get("/{id}", app.JobStatus)
			r.Post("/{id}/wait", app.WaitJob)
		})

		// Generation endpoints call paid provider APIs.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
			r.Post("/v1/generate", app.Generate)
			r.Post("/v1/generate/batch", app.GenerateBatch)
			r.Post("/v1/notebooks/{feature}", app.NotebookFeature)
			r.Post("/v1/podcasts/modify", app.ModifyPodcast)
		})
	})

	return r
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	mw "github.com/kiranshivaraju/matchscope/internal/api/middleware"
	"github.com/kiranshivaraju/matchscope/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler

	SubmitJobHandler http.HandlerFunc
	GetJobHandler    http.HandlerFunc

	EnqueueBatchHandler http.HandlerFunc
	BatchStatusHandler  http.HandlerFunc
	CancelBatchHandler  http.HandlerFunc

	VerificationCandidatesHandler http.HandlerFunc
	RunVerificationHandler        http.HandlerFunc
	PostAnalysisCandidatesHandler http.HandlerFunc
	RunPostAnalysisHandler        http.HandlerFunc

	ReclaimHandler      http.HandlerFunc
	ReclaimStaleHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/jobs", orNotImplemented(deps.SubmitJobHandler))
		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetJobHandler))

		r.Route("/api/v1/batch", func(r chi.Router) {
			r.Post("/", orNotImplemented(deps.EnqueueBatchHandler))
			r.Get("/", orNotImplemented(deps.BatchStatusHandler))
			r.Delete("/", orNotImplemented(deps.CancelBatchHandler))
		})

		r.Get("/api/v1/verification/candidates", orNotImplemented(deps.VerificationCandidatesHandler))
		r.Post("/api/v1/verification/run", orNotImplemented(deps.RunVerificationHandler))
		r.Get("/api/v1/post-analysis/candidates", orNotImplemented(deps.PostAnalysisCandidatesHandler))
		r.Post("/api/v1/post-analysis/run", orNotImplemented(deps.RunPostAnalysisHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/jobs/reclaim", orNotImplemented(deps.ReclaimHandler))
			r.Post("/api/v1/admin/jobs/reclaim-stale", orNotImplemented(deps.ReclaimStaleHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}

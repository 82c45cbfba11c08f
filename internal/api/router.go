package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/provtrack/tierwatch/internal/api/middleware"
	"github.com/provtrack/tierwatch/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	RefreshHandler  http.HandlerFunc
	GetRunHandler   http.HandlerFunc
	ListRunsHandler http.HandlerFunc

	SummaryHandler  http.HandlerFunc
	ProductsHandler http.HandlerFunc
	AccountsHandler http.HandlerFunc
	RecentHandler   http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/analysis/refresh", orNotImplemented(deps.RefreshHandler))
		r.Get("/api/v1/analysis/runs", orNotImplemented(deps.ListRunsHandler))
		r.Get("/api/v1/analysis/runs/{runID}", orNotImplemented(deps.GetRunHandler))

		r.Get("/api/v1/analysis/summary", orNotImplemented(deps.SummaryHandler))
		r.Get("/api/v1/analysis/products", orNotImplemented(deps.ProductsHandler))
		r.Get("/api/v1/analysis/accounts", orNotImplemented(deps.AccountsHandler))
		r.Get("/api/v1/analysis/recent", orNotImplemented(deps.RecentHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
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

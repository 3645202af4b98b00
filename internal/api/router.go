// Package api exposes the request workflow over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"cinegate/internal/access"
	"cinegate/internal/auth"
	"cinegate/internal/metrics"
	pkgauth "cinegate/pkg/auth"
)

// Reconciler is the on-demand side of access.Reconciler.
type Reconciler interface {
	RunOnce(ctx context.Context) (int, error)
}

type Options struct {
	CORSOrigins []string
	RateLimit   int
	RateWindow  time.Duration
	OpsToken    string
}

type Handler struct {
	requests   *access.Service
	accounts   *access.Accounts
	tokens     *auth.Service
	reconciler Reconciler
	log        zerolog.Logger
	opts       Options
}

func NewHandler(requests *access.Service, accounts *access.Accounts, tokens *auth.Service, reconciler Reconciler, log zerolog.Logger, opts Options) *Handler {
	return &Handler{
		requests:   requests,
		accounts:   accounts,
		tokens:     tokens,
		reconciler: reconciler,
		log:        log.With().Str("component", "api").Logger(),
		opts:       opts,
	}
}

// Router builds the chi router with every route mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(h.log), middleware.Recoverer)

	origins := h.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Token"},
		MaxAge:         300,
	}))
	r.Use(h.tokens.Authenticate)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/refresh", h.handleRefresh)
	r.Post("/auth/change-password", h.handleChangePassword)
	r.Get("/me", h.handleMe)

	r.Route("/requests", func(r chi.Router) {
		r.Get("/mine", h.handleListMine)
		r.Group(func(r chi.Router) {
			r.Use(h.submitLimit())
			r.Post("/catalog", h.handleSubmitCatalog)
			r.Post("/access", h.handleSubmitAccess)
		})
	})

	r.Get("/movies/{id}/access", h.handleCheckAccess)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/requests", h.handleListRequests)
		r.Patch("/requests/{id}", h.handleDecide)
		r.Put("/requests/{id}", h.handleDecide)
		r.Post("/users", h.handleCreateUser)
	})

	r.Route("/ops", func(r chi.Router) {
		r.Use(pkgauth.TokenMiddleware(h.opts.OpsToken))
		r.Handle("/metrics", metrics.Handler())
		r.Post("/reconcile", h.handleReconcile)
	})

	return r
}

func (h *Handler) submitLimit() func(http.Handler) http.Handler {
	if h.opts.RateLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	window := h.opts.RateWindow
	if window <= 0 {
		window = time.Minute
	}
	return httprate.Limit(h.opts.RateLimit, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			errorJSON(w, http.StatusTooManyRequests, "too many requests, slow down")
		}),
	)
}

package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/Simplici0/taller/internal/authz"
	"github.com/Simplici0/taller/internal/observability"
)

type routerOptions struct {
	requestTimeout time.Duration
	production     bool
	// requests per minute per IP on the public link routes
	publicRateLimit int
}

func (s *server) routes(opts routerOptions) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        opts.production,
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:      !opts.production,
	})
	timeout := opts.requestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	publicLimit := opts.publicRateLimit
	if publicLimit <= 0 {
		publicLimit = 30
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(observability.AccessLog(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := secureMiddleware.Process(w, r); err != nil {
				s.logger.Warn("secure headers blocked request", slog.Any("error", err))
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Use(s.metrics.Middleware)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", s.metrics.Handler())
	r.With(httprate.LimitByIP(10, time.Minute)).Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)

	r.Route("/public/links/{token}", func(r chi.Router) {
		r.Use(httprate.LimitByIP(publicLimit, time.Minute))
		r.Use(s.requireLink)
		r.Get("/", s.handlePublicProject)
		r.Post("/fittings", s.handlePublicCreateFitting)
		r.Post("/fittings/{fittingID}/confirm", s.handlePublicConfirmFitting)
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Use(s.requireAuth)
		s.jobsHandler.MountRoutes(r)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAuth)

		r.With(s.requireCapability(authz.ViewQuotes)).Post("/pricing/preview", s.handlePricingPreview)

		r.Get("/company", s.handleGetCompany)
		r.With(s.requireCapability(authz.ManageCompany)).Put("/company", s.handlePutCompany)

		r.Get("/projects", s.handleListProjects)
		r.With(s.requireCapability(authz.ManageProjects)).Post("/projects", s.handleCreateProject)

		r.Route("/projects/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetProject)
			r.With(s.requireCapability(authz.ManageProjects)).Put("/line-items", s.handleUpdateLineItems)
			r.With(s.requireCapability(authz.ManageProjects)).Delete("/", s.handleDeleteProject)

			r.Group(func(r chi.Router) {
				r.Use(s.requireCapability(authz.ViewQuotes))
				r.Get("/pricing", s.handleProjectPricing)
				r.Get("/quote.txt", s.handleQuoteText)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.requireCapability(authz.RecordFittings))
				r.Get("/fittings", s.handleListFittings)
				r.Post("/fittings", s.handleCreateFitting)
				r.Post("/fittings/{fittingID}/confirm", s.handleConfirmFitting)
				r.Post("/links", s.handleIssueLink)
			})

			r.With(s.requireCapability(authz.RecalculateConsumption)).Post("/consumption/recalculate", s.handleRecalculate)
			r.With(s.requireCapability(authz.ExportReports)).Get("/fittings.xlsx", s.handleFittingsWorkbook)
		})
	})

	return r
}

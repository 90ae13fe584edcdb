// Package router monta o roteador chi. Toda requisição passa pela blocklist,
// depois pelo rate limit do seu grupo de rotas, e só então chega a um handler
// que faz as próprias verificações de segurança.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/JeanGrijp/request-guard/internal/adapters/http/handlers"
	"github.com/JeanGrijp/request-guard/internal/adapters/http/middleware"
	"github.com/JeanGrijp/request-guard/internal/core/domain"
	"github.com/JeanGrijp/request-guard/internal/core/ports"
)

// Limiter is everything the router needs from the rate limiter service.
type Limiter interface {
	ports.RateLimiter
	ports.Blocklist
	ports.ThreatRecorder
}

type Deps struct {
	Limiter        Limiter
	Guard          handlers.Guard
	Sessions       middleware.SessionVerifier
	CookieName     string
	ThreatPatterns middleware.ThreatPatterns

	APIRule   domain.RateLimitRule
	AdminRule domain.RateLimitRule

	Metrics     http.Handler
	MetricsPath string
}

func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewBlocklistMiddleware(d.Limiter))
	r.Use(middleware.NewThreatMiddleware(d.Limiter, d.ThreatPatterns))
	r.Use(middleware.NewSessionMiddleware(d.Sessions, d.CookieName))

	r.Get("/healthz", handlers.Health)
	if d.Metrics != nil {
		path := d.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, d.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewRateLimiterMiddleware(d.Limiter, d.APIRule, middleware.UserOrIPKey))
		r.Method(http.MethodGet, "/me", handlers.NewMeHandler(d.Guard))
	})

	admin := handlers.NewAdminSecurityHandler(d.Guard, d.Limiter)
	r.Route("/admin/security", func(r chi.Router) {
		r.Use(middleware.NewRateLimiterMiddleware(d.Limiter, d.AdminRule, middleware.UserOrIPKey))
		r.Get("/", admin.Stats)
		r.Post("/", admin.Update)
	})

	return r
}

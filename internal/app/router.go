// Package app wires the HTTP router and readiness checks.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/config"
)

// ParseOrigins splits a comma-separated origin list, trimming spaces.
// An empty input yields ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	out := make([]string, 0)
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(30 * time.Second))
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	origins := ParseOrigins(cfg.CORSAllowOrigins)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", "X-Request-Id", "X-Webhook-Secret"},
		ExposedHeaders: []string{"X-Request-Id", "Location"},
		// cookies only travel to explicitly listed origins
		AllowCredentials: !(len(origins) == 1 && origins[0] == "*"),
		MaxAge:           300,
	}))

	limit := cfg.RateLimitPerMin
	if limit <= 0 {
		limit = 30
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(pub chi.Router) {
			pub.Use(httprate.LimitByIP(limit, time.Minute))
			pub.Post("/auth/sign-up", srv.SignUpHandler())
			pub.Post("/auth/sign-in", srv.SignInHandler())
			pub.Post("/auth/sign-out", srv.SignOutHandler())
			pub.Post("/vapi/generate", srv.GenerateHandler())
		})

		v1.Group(func(authed chi.Router) {
			authed.Use(srv.RequireUser)
			authed.Get("/me", srv.MeHandler())
			authed.Get("/interviews", srv.ListInterviewsHandler())
			authed.Get("/interviews/latest", srv.LatestInterviewsHandler())
			authed.Get("/interviews/{id}", srv.GetInterviewHandler())
			authed.Get("/interviews/{id}/feedback", srv.FeedbackHandler())
			authed.Get("/calls/{id}", srv.GetCallHandler())

			authed.Group(func(mut chi.Router) {
				mut.Use(httprate.LimitByIP(limit, time.Minute))
				mut.Post("/calls", srv.StartCallHandler())
				mut.Post("/calls/{id}/disconnect", srv.DisconnectCallHandler())
			})
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", srv.ReadyzHandler())
	r.Handle("/metrics", promhttp.Handler())

	return httpserver.SecurityHeaders(r)
}

package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"intently.app/cloud/internal/billing"
	"intently.app/cloud/internal/config"
	"intently.app/cloud/internal/license"
	"intently.app/cloud/internal/ratelimit"
	"intently.app/cloud/internal/storage"
	"intently.app/cloud/internal/webhook"
)

type Server struct {
	router    chi.Router
	storage   storage.Storage
	manager   *license.Manager
	resolver  *license.Resolver
	processor *webhook.Processor
	version   string
}

func New(cfg *config.Config, store storage.Storage, gateway billing.Gateway, version string) *Server {
	manager := license.NewManager(store)

	s := &Server{
		storage:   store,
		manager:   manager,
		resolver:  license.NewResolver(store, manager, gateway, cfg.StripeScanLimit),
		processor: webhook.NewProcessor(gateway, manager, store),
		version:   version,
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))
	r.Use(ratelimit.Middleware(ratelimit.New(120, time.Minute)))

	r.Get("/health", s.Health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/licenses/resolve", s.ResolveLicense)
		r.Post("/licenses/validate", s.ValidateLicense)
		r.Post("/licenses/reconcile", s.ReconcileLicense)
		r.Post("/webhooks/stripe", s.StripeWebhook)
	})
	s.router = r

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

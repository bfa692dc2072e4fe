package handlers

import (
	"net/http"
	"time"

	"intently.app/cloud/internal/webhook"
)

type HealthResponse struct {
	Status    string        `json:"status"`
	Version   string        `json:"version"`
	Timestamp time.Time     `json:"timestamp"`
	Webhooks  webhook.Stats `json:"webhooks"`
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   s.version,
		Timestamp: time.Now().UTC(),
		Webhooks:  s.processor.Stats(),
	})
}

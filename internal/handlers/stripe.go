package handlers

import (
	"errors"
	"io"
	"net/http"

	"intently.app/cloud/internal/billing"
	"intently.app/cloud/internal/logger"
)

// StripeWebhook feeds verified provider events into the processor. Handler
// failures answer 5xx so Stripe's own retry mechanism re-delivers.
func (s *Server) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	const maxBodyBytes = int64(65536)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("failed to read webhook payload", map[string]interface{}{
			"error": err.Error(),
		})
		writeErrorResponse(w, http.StatusServiceUnavailable, "Failed to read payload")
		return
	}

	err = s.processor.Process(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if errors.Is(err, billing.ErrInvalidSignature) {
		logger.Error("webhook signature verification failed", map[string]interface{}{
			"error": err.Error(),
		})
		writeErrorResponse(w, http.StatusBadRequest, "Invalid signature")
		return
	}
	if err != nil {
		logger.Error("webhook processing failed", map[string]interface{}{
			"error": err.Error(),
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Processing failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"received": "true"})
}

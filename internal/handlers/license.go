package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"intently.app/cloud/internal/license"
	"intently.app/cloud/internal/logger"
	"intently.app/cloud/internal/models"
)

type ResolveRequest struct {
	UserID     string `json:"user_id"`
	LicenseKey string `json:"license_key,omitempty"`
}

type ResolveResponse struct {
	Found   bool            `json:"found"`
	License *models.License `json:"license,omitempty"`
}

type ValidateRequest struct {
	LicenseKey string `json:"license_key"`
}

type ValidateResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

type ReconcileRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

type ReconcileResponse struct {
	Eligible bool            `json:"eligible"`
	Message  string          `json:"message,omitempty"`
	License  *models.License `json:"license,omitempty"`
}

// ResolveLicense answers "does this user have a license right now",
// consulting Stripe when the local record is missing or stale. Absence is a
// 200 with found=false, never an error.
func (s *Server) ResolveLicense(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid body")
		return
	}
	if req.UserID == "" && req.LicenseKey == "" {
		writeErrorResponse(w, http.StatusBadRequest, "user_id or license_key required")
		return
	}

	lic, err := s.resolver.Resolve(r.Context(), req.UserID, req.LicenseKey)
	if err != nil {
		logger.Error("license resolution failed", map[string]interface{}{
			"error":   err.Error(),
			"user_id": req.UserID,
		})
		writeErrorResponse(w, http.StatusBadGateway, "Billing provider unavailable")
		return
	}

	writeJSON(w, http.StatusOK, ResolveResponse{Found: lic != nil, License: lic})
}

// ValidateLicense checks a presented key: the record must exist, be active
// and not expired.
func (s *Server) ValidateLicense(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.LicenseKey == "" {
		writeErrorResponse(w, http.StatusBadRequest, "license_key required")
		return
	}

	lic, err := s.resolver.ResolveByKey(r.Context(), req.LicenseKey)
	if err != nil {
		logger.Error("license lookup failed", map[string]interface{}{
			"error": err.Error(),
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Lookup failed")
		return
	}

	switch {
	case lic == nil:
		writeJSON(w, http.StatusOK, ValidateResponse{Valid: false, Message: "License not found"})
	case !s.manager.IsEntitled(lic):
		writeJSON(w, http.StatusOK, ValidateResponse{Valid: false, Message: "License not active"})
	default:
		writeJSON(w, http.StatusOK, ValidateResponse{Valid: true, Message: "License valid"})
	}
}

// ReconcileLicense materializes a license from a checkout session the client
// already holds. Not-eligible is a normal negative result.
func (s *Server) ReconcileLicense(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid body")
		return
	}
	if req.SessionID == "" || req.UserID == "" {
		writeErrorResponse(w, http.StatusBadRequest, "session_id and user_id required")
		return
	}

	lic, err := s.resolver.AutoReconcile(r.Context(), req.SessionID, req.UserID)
	if errors.Is(err, license.ErrNotEligible) {
		writeJSON(w, http.StatusOK, ReconcileResponse{Eligible: false, Message: err.Error()})
		return
	}
	if err != nil {
		logger.Error("reconcile failed", map[string]interface{}{
			"error":      err.Error(),
			"session_id": req.SessionID,
			"user_id":    req.UserID,
		})
		writeErrorResponse(w, http.StatusBadGateway, "Billing provider unavailable")
		return
	}

	writeJSON(w, http.StatusOK, ReconcileResponse{Eligible: true, License: lic})
}

package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/attestation-service/internal/errors"
)

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor maps the error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case appErrors.IsValidation(err):
		return http.StatusBadRequest
	case appErrors.IsPermission(err):
		return http.StatusForbidden
	case appErrors.IsNotFound(err):
		return http.StatusNotFound
	case appErrors.IsDependency(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// WriteError renders err as {"error": ...}. Unclassified errors are logged and hidden.
func WriteError(w http.ResponseWriter, log *zap.Logger, err error) {
	status := StatusFor(err)
	body := map[string]any{"error": err.Error()}

	var verr *appErrors.ValidationError
	if errors.As(err, &verr) {
		body["field"] = verr.Field
	}
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
		body["error"] = "internal server error"
	}
	WriteJSON(w, status, body)
}

// ParseID reads a positive int64 URL parameter.
func ParseID(r *http.Request, param string) (int64, error) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.NewValidation(param, fmt.Sprintf("invalid id %q", raw))
	}
	return id, nil
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return appErrors.NewValidation("body", "invalid body: "+err.Error())
	}
	return nil
}

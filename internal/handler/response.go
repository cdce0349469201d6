package handler

// Every error response has the same shape:
//
//	{"error": "not_found", "message": "analysis not found with id abc123"}
//
// Upgrade demands also carry "upgradeRequired": true so the client can send
// the user to /pricing instead of only showing the message.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/leaseshield/internal/analysis"
	"github.com/sakif/leaseshield/internal/apperror"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

type ErrorResponse struct {
	Error           string `json:"error"`
	Message         string `json:"message"`
	Field           string `json:"field,omitempty"`
	UpgradeRequired bool   `json:"upgradeRequired,omitempty"`
}

// writeJSON sets headers, then the status, then encodes the body. Headers
// changed after the first Write are ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to its status code. errors.Is walks the
// whole chain, so wrapped AppErrors and analysis.APIErrors map the same way
// as bare ones.
func writeError(w http.ResponseWriter, err error) {
	var apiErr *analysis.APIError
	var appErr *apperror.AppError

	status, kind := classify(err)

	resp := ErrorResponse{Error: kind, Message: "An internal error occurred"}
	switch {
	case errors.As(err, &apiErr):
		resp.Message = apiErr.Message
		resp.UpgradeRequired = apiErr.UpgradeRequired
		if status == http.StatusInternalServerError {
			// Any other upstream failure is a bad gateway from our side.
			status, resp.Error = http.StatusBadGateway, "upstream_error"
		}
	case errors.As(err, &appErr):
		resp.Message = appErr.Message
		resp.Field = appErr.Field
	}
	if errors.Is(err, apperror.ErrUpgradeRequired) {
		resp.UpgradeRequired = true
	}

	// Never expose internal error text: it can carry SQL or file paths.
	writeJSON(w, status, resp)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrUpgradeRequired):
		return http.StatusPaymentRequired, "upgrade_required"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	}
	return http.StatusInternalServerError, "internal_error"
}

// decodeJSON reads a bounded JSON body into dst. Malformed input is a
// validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "Invalid JSON body")
	}
	return nil
}

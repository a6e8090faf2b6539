// Package handler provides HTTP request handlers.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/platformx/platformx/internal/auth"
	"github.com/platformx/platformx/internal/handler/dto"
	"github.com/platformx/platformx/internal/service"
)

// Version is reported by the root endpoint.
const Version = "1.0.0"

// Handler serves the routes that belong to no resource.
type Handler struct{}

// New creates a new Handler instance.
func New() *Handler {
	return &Handler{}
}

// Root identifies the API.
// GET /
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "PlatformX API",
		"version": Version,
	})
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// decodeRequest reads a JSON body into req and runs its validate tags.
// Fields req does not declare are rejected.
func decodeRequest(w http.ResponseWriter, r *http.Request, req any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return false
	}
	if err := dto.Validate(req); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

func writeValidationError(w http.ResponseWriter, err error) {
	var verr *dto.ValidationError
	if !errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
		Error:   "Request validation failed",
		Code:    "VALIDATION_ERROR",
		Details: verr.Fields,
	})
}

// requireUser returns the authenticated user id, writing a 401 when the
// request reached the handler without one.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return "", false
	}
	return userID, true
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", service.ErrInvalidInput, name)
	}
	return n, nil
}

// handleServiceError maps service errors to HTTP responses. Anything not
// recognized is reported as a bad request.
func handleServiceError(logger *slog.Logger, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrModelNotFound):
		writeError(w, http.StatusNotFound, "MODEL_NOT_FOUND", "Model not found")
	case errors.Is(err, service.ErrDatasetNotFound), errors.Is(err, service.ErrMarketplaceDatasetNotFound):
		writeError(w, http.StatusNotFound, "DATASET_NOT_FOUND", "Dataset not found")
	case errors.Is(err, service.ErrThreadNotFound):
		writeError(w, http.StatusNotFound, "THREAD_NOT_FOUND", "Thread not found")
	case errors.Is(err, service.ErrBaseModelNotFound):
		writeError(w, http.StatusNotFound, "BASE_MODEL_NOT_FOUND", "Base model not found")
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
	case errors.Is(err, service.ErrFavouriteNotFound):
		writeError(w, http.StatusNotFound, "FAVOURITE_NOT_FOUND", "Favourite not found")
	case errors.Is(err, service.ErrKeyNotFound):
		writeError(w, http.StatusNotFound, "KEY_NOT_FOUND", "API key not found or already revoked")
	case errors.Is(err, service.ErrSubscriptionRequired):
		writeError(w, http.StatusForbidden, "SUBSCRIPTION_REQUIRED", "An active subscription is required")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden")
	case errors.Is(err, service.ErrInvalidOTP):
		writeError(w, http.StatusUnauthorized, "INVALID_OTP", "Invalid or expired OTP")
	case errors.Is(err, service.ErrInvalidCategory):
		writeError(w, http.StatusBadRequest, "INVALID_CATEGORY", "Invalid category")
	case errors.Is(err, service.ErrInvalidSortOption):
		writeError(w, http.StatusBadRequest, "INVALID_SORT_OPTION", "Invalid sort option")
	case errors.Is(err, service.ErrInvalidScope):
		writeError(w, http.StatusBadRequest, "INVALID_SCOPE", err.Error())
	case errors.Is(err, service.ErrInvalidDataset):
		writeError(w, http.StatusBadRequest, "INVALID_DATASET", err.Error())
	case errors.Is(err, service.ErrInvalidSampling), errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("upstream timeout", "error", err)
		writeError(w, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", "The model provider did not answer in time")
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "The request could not be completed")
	}
}

// Package api provides HTTP handlers for the AIBBOT API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/DonggunSe0/aibbot/internal/identity"
	"github.com/DonggunSe0/aibbot/internal/profile"
	"github.com/DonggunSe0/aibbot/internal/session"
)

const maxRequestBytes = 64 << 10

// Handler provides common handler utilities.
type Handler struct {
	registry *session.Registry
	profiles *profile.Store
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(registry *session.Registry, profiles *profile.Store) *Handler {
	return &Handler{
		registry: registry,
		profiles: profiles,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// controller returns the session controller of the requesting tab.
func (h *Handler) controller(r *http.Request) *session.Controller {
	ctx := r.Context()
	return h.registry.Get(identity.DeviceIDFromContext(ctx), identity.SessionIDFromContext(ctx))
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// statusFor maps a dispatcher or profile error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrChatPending),
		errors.Is(err, session.ErrLoginPending),
		errors.Is(err, session.ErrSignupPending):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	case errors.Is(err, session.ErrEmptyMessage),
		errors.Is(err, session.ErrUnknownMenu),
		errors.Is(err, session.ErrUnknownModal),
		errors.Is(err, session.ErrMissingPolicyID),
		errors.Is(err, session.ErrMissingCredentials),
		errors.Is(err, session.ErrPasswordTooShort),
		errors.Is(err, profile.ErrInvalidRegion),
		errors.Is(err, profile.ErrInvalidHasChild),
		errors.Is(err, profile.ErrInvalidAsset),
		errors.Is(err, profile.ErrInvalidGender),
		errors.Is(err, profile.ErrInvalidBirthdate),
		errors.Is(err, profile.ErrInvalidOption):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeErr reports err with its mapped status. Server errors hide details.
func writeErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		Error(w, status, "internal error")
		return
	}
	Error(w, status, err.Error())
}

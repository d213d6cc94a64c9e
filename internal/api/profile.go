package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DonggunSe0/aibbot/internal/domain"
	"github.com/DonggunSe0/aibbot/internal/identity"
	"github.com/DonggunSe0/aibbot/internal/profile"
	"github.com/DonggunSe0/aibbot/internal/session"
)

// ProfileHandler handles the device profile and the option lists the
// profile editor offers.
type ProfileHandler struct {
	*Handler
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(base *Handler) *ProfileHandler {
	return &ProfileHandler{Handler: base}
}

// RegisterRoutes registers profile routes.
func (h *ProfileHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/profile", h.GetProfile)
		r.Put("/profile", h.PutProfile)
		r.Get("/profile/summary", h.GetSummary)
		r.Get("/profile/validation", h.GetValidation)
		r.Get("/options", h.GetOptions)
	})
}

// GetProfile returns the stored profile with editor defaults applied.
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.controller(r).Profile(r.Context()))
}

// PutProfile replaces the stored profile. The editor of the requesting tab
// closes; every tab of the device sees the new summary.
func (h *ProfileHandler) PutProfile(w http.ResponseWriter, r *http.Request) {
	var p domain.UserProfile
	if err := decode(w, r, &p); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	saved, err := h.controller(r).SaveProfile(r.Context(), p)
	if err != nil {
		writeErr(w, err)
		return
	}
	JSON(w, http.StatusOK, saved)
}

// GetSummary returns the one-line profile description.
func (h *ProfileHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	p := h.profiles.Load(r.Context(), identity.DeviceIDFromContext(r.Context()))
	JSON(w, http.StatusOK, map[string]string{"summary": profile.Summarize(p)})
}

// GetValidation reports whether the profile allows a personalized search.
func (h *ProfileHandler) GetValidation(w http.ResponseWriter, r *http.Request) {
	p := h.profiles.Load(r.Context(), identity.DeviceIDFromContext(r.Context()))
	JSON(w, http.StatusOK, profile.Validate(p))
}

// GetOptions returns the fixed choices for menus and profile fields.
func (h *ProfileHandler) GetOptions(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"menus":               session.Menus,
		"faqs":                session.FAQs,
		"districts":           domain.Districts,
		"asset_ranges":        domain.AssetRanges,
		"income_ranges":       domain.IncomeRanges,
		"family_types":        domain.FamilyTypes,
		"yes_no":              domain.YesNo,
		"job_statuses":        domain.JobStatuses,
		"housing_types":       domain.HousingTypes,
		"min_password_length": session.MinPasswordLength,
	})
}

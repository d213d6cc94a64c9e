package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DonggunSe0/aibbot/internal/identity"
	"github.com/DonggunSe0/aibbot/internal/session"
)

// SessionHandler exposes the conversation session actions. Every action
// responds with the session snapshot taken right after dispatch; results
// of backend calls arrive later over the session stream or a new GET.
type SessionHandler struct {
	*Handler
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(base *Handler) *SessionHandler {
	return &SessionHandler{Handler: base}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/session", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/menu", h.SelectMenu)
		r.Post("/messages", h.SubmitMessage)
		r.Post("/faq", h.SelectFAQ)
		r.Post("/policies/{id}", h.OpenPolicy)
		r.Delete("/policy", h.ClosePolicy)
		r.Post("/sync", h.Sync)
		r.Post("/login", h.Login)
		r.Post("/signup", h.Signup)
		r.Post("/logout", h.Logout)
		r.Post("/account", h.Account)
		r.Post("/modals/{name}", h.SetModal)
	})
}

// Get returns the current snapshot.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.controller(r).Snapshot())
}

// respond writes the snapshot after a successful dispatch or the mapped error.
func (h *SessionHandler) respond(w http.ResponseWriter, r *http.Request, c *session.Controller, err error) {
	if err != nil {
		slog.Debug("Session action rejected",
			"device_id", identity.DeviceIDFromContext(r.Context()),
			"session_id", identity.SessionIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err)
		writeErr(w, err)
		return
	}
	JSON(w, http.StatusOK, c.Snapshot())
}

// SelectMenu dispatches a menu action.
func (h *SessionHandler) SelectMenu(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Menu string `json:"menu"`
	}
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c := h.controller(r)
	h.respond(w, r, c, c.SelectMenu(req.Menu))
}

// SubmitMessage sends a typed message.
func (h *SessionHandler) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c := h.controller(r)
	h.respond(w, r, c, c.SubmitMessage(req.Text))
}

// SelectFAQ sends a suggested question.
func (h *SessionHandler) SelectFAQ(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c := h.controller(r)
	h.respond(w, r, c, c.SelectFAQ(req.Question))
}

// OpenPolicy opens the policy detail view.
func (h *SessionHandler) OpenPolicy(w http.ResponseWriter, r *http.Request) {
	c := h.controller(r)
	h.respond(w, r, c, c.OpenPolicy(chi.URLParam(r, "id")))
}

// ClosePolicy closes the policy detail view.
func (h *SessionHandler) ClosePolicy(w http.ResponseWriter, r *http.Request) {
	c := h.controller(r)
	h.respond(w, r, c, c.ClosePolicyDetail())
}

// Sync triggers a policy sync. A sync already running is reported with
// started=false and nothing else happens.
func (h *SessionHandler) Sync(w http.ResponseWriter, r *http.Request) {
	c := h.controller(r)
	started, err := c.SyncPolicies()
	if err != nil {
		writeErr(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"started": started,
		"session": c.Snapshot(),
	})
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

// Login authenticates against the backend.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c := h.controller(r)
	h.respond(w, r, c, c.Login(req.Username, req.Password))
}

// Signup registers an account.
func (h *SessionHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c := h.controller(r)
	h.respond(w, r, c, c.Signup(req.Username, req.Password, req.Email))
}

// Logout forgets the current user.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	c := h.controller(r)
	h.respond(w, r, c, c.Logout())
}

// Account handles the account button.
func (h *SessionHandler) Account(w http.ResponseWriter, r *http.Request) {
	c := h.controller(r)
	h.respond(w, r, c, c.AccountButton())
}

// SetModal opens or closes a modal.
func (h *SessionHandler) SetModal(w http.ResponseWriter, r *http.Request) {
	m, err := session.ParseModal(chi.URLParam(r, "name"))
	if err != nil {
		writeErr(w, err)
		return
	}
	var req struct {
		Open bool `json:"open"`
	}
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c := h.controller(r)
	if req.Open {
		err = c.OpenModal(m)
	} else {
		err = c.CloseModal(m)
	}
	h.respond(w, r, c, err)
}

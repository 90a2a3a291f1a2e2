package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/assocportal/portal/internal/platform/httpx"
	"github.com/assocportal/portal/internal/shared"
	"github.com/assocportal/portal/internal/view"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
	loginLimit     int
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      view.NewValidator(),
		loginLimit:     10,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.With(httprate.LimitByIP(h.loginLimit, time.Minute)).Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Post("/refresh", h.handleRefresh)
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	if shared.SessionFromContext(r.Context()).Authenticated() {
		http.Redirect(w, r, "/home", http.StatusSeeOther)
		return
	}
	h.render(w, r, loginPageData{Errors: map[string]string{}}, http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	if err := h.validator.Struct(form); err != nil {
		h.render(w, r, loginPageData{Form: loginForm{Email: form.Email}, Errors: view.FieldErrors(err)}, http.StatusBadRequest)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	err := h.service.Login(r.Context(), sess, form.Email, form.Password)
	if err == nil {
		sess.AddFlash(shared.FlashMessage{Kind: shared.FlashSuccess, Message: "Welcome back."})
		http.Redirect(w, r, "/home", http.StatusSeeOther)
		return
	}

	data := loginPageData{Form: loginForm{Email: form.Email}, Errors: map[string]string{}}
	var lerr *LoginError
	if !errors.As(err, &lerr) {
		h.logger.Error("session missing during login", slog.Any("error", err))
		data.Notice = FailureUnknown.Message()
		h.render(w, r, data, http.StatusInternalServerError)
		return
	}
	h.logger.Info("login rejected", slog.Int("failure", int(lerr.Failure)), slog.Any("error", lerr.Err))
	data.Notice = lerr.Failure.Message()
	h.render(w, r, data, lerr.Failure.Status())
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		h.service.Logout(r.Context(), sess)
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	wantsJSON := strings.Contains(r.Header.Get("Accept"), "application/json")
	if err := h.service.Refresh(sess); err != nil {
		if wantsJSON {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	if wantsJSON {
		httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "refreshing"})
		return
	}
	sess.AddFlash(shared.FlashMessage{Kind: shared.FlashInfo, Message: "Permissions are being refreshed."})
	http.Redirect(w, r, "/home", http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, data loginPageData, status int) {
	td, err := view.Page(r, h.csrfManager, "Sign in", data)
	if err != nil && !errors.Is(err, shared.ErrSessionMissing) {
		h.logger.Error("prepare login page", slog.Any("error", err))
	}
	if err := h.templates.RenderStatus(w, status, "pages/login.html", td); err != nil {
		h.logger.Error("render login", slog.Any("error", err))
	}
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}

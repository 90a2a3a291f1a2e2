package members

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/assocportal/portal/internal/backend"
	"github.com/assocportal/portal/internal/guard"
	"github.com/assocportal/portal/internal/platform/httpx"
	"github.com/assocportal/portal/internal/rbac"
	"github.com/assocportal/portal/internal/secureapi"
	"github.com/assocportal/portal/internal/shared"
	"github.com/assocportal/portal/internal/view"
)

const (
	membersPath = "/api/member/"
	pendingPath = "/users/users/?validation_status=pending"
)

// Handler serves the member directory and the validation queue.
type Handler struct {
	logger    *slog.Logger
	api       secureapi.Factory
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     guard.Route
	validate  *validator.Validate
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, api secureapi.Factory, templates *view.Engine, csrf *shared.CSRFManager, g guard.Route) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, api: api, templates: templates, csrf: csrf, guard: g, validate: view.NewValidator()}
}

// MountRoutes registers member routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.Require(rbac.ActionView, rbac.ResourceMembers)).Get("/", h.list)
	r.With(h.guard.Require(rbac.ActionView, rbac.ResourcePendingUsers)).Get("/pending", h.pending)
	// Mutations are checked by the secure client, which refuses them before
	// any backend traffic.
	r.Post("/{id}/validate", h.decide)
	r.Post("/{id}/delete", h.remove)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	data := listPageData{}
	resp, err := h.api(r).View(r.Context(), rbac.ResourceMembers, membersPath)
	if err == nil {
		err = resp.DecodeList(&data.Members)
	}
	status := http.StatusOK
	if err != nil {
		h.logger.Error("list members", slog.Any("error", err))
		data.Error = view.NoticeFor(err).Message
		status = httpx.StatusFor(err)
	}
	h.render(w, r, "pages/members/list.html", "Members", data, status)
}

func (h *Handler) pending(w http.ResponseWriter, r *http.Request) {
	data := pendingPageData{}
	resp, err := h.api(r).View(r.Context(), rbac.ResourcePendingUsers, pendingPath)
	if err == nil {
		err = resp.DecodeList(&data.Users)
	}
	status := http.StatusOK
	if err != nil {
		h.logger.Error("list pending users", slog.Any("error", err))
		data.Error = view.NoticeFor(err).Message
		status = httpx.StatusFor(err)
	}
	h.render(w, r, "pages/members/pending.html", "Pending accounts", data, status)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := validateForm{Action: r.PostFormValue("action")}
	if err := h.validate.Struct(form); err != nil {
		h.redirectWithFlash(w, r, "/members/pending", shared.FlashMessage{Kind: shared.FlashError, Message: "Unknown validation decision."})
		return
	}
	path := fmt.Sprintf("/users/users/%d/validate_user/", id)
	resp, err := h.api(r).Do(r.Context(), rbac.ActionValidateUser, rbac.ResourceMembers, http.MethodPost, path, map[string]string{"action": form.Action})
	if err != nil {
		h.logger.Warn("validate user", slog.Int64("user_id", id), slog.Any("error", err))
		h.redirectWithFlash(w, r, "/members/pending", view.NoticeFor(err))
		return
	}
	h.redirectWithFlash(w, r, "/members/pending", shared.FlashMessage{Kind: shared.FlashSuccess, Message: decisionMessage(resp, form.Action)})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if _, err := h.api(r).Delete(r.Context(), rbac.ResourceMembers, fmt.Sprintf("%s%d/", membersPath, id)); err != nil {
		h.logger.Warn("delete member", slog.Int64("member_id", id), slog.Any("error", err))
		h.redirectWithFlash(w, r, "/members", view.NoticeFor(err))
		return
	}
	h.redirectWithFlash(w, r, "/members", shared.FlashMessage{Kind: shared.FlashSuccess, Message: "Member removed."})
}

func decisionMessage(resp *backend.Response, action string) string {
	var body struct {
		Message string `json:"message"`
	}
	if resp.Decode(&body) == nil && body.Message != "" {
		return body.Message
	}
	if action == DecisionReject {
		return "Account rejected."
	}
	return "Account approved."
}

func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name, title string, data any, status int) {
	td, err := view.Page(r, h.csrf, title, data)
	if err != nil && !errors.Is(err, shared.ErrSessionMissing) {
		h.logger.Error("prepare page", slog.Any("error", err))
	}
	if err := h.templates.RenderStatus(w, status, name, td); err != nil {
		h.logger.Error("render template", slog.String("template", name), slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location string, msg shared.FlashMessage) {
	shared.Notify(r.Context(), msg.Kind, msg.Message)
	http.Redirect(w, r, location, http.StatusSeeOther)
}

package finance

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/assocportal/portal/internal/guard"
	"github.com/assocportal/portal/internal/platform/httpx"
	"github.com/assocportal/portal/internal/rbac"
	"github.com/assocportal/portal/internal/secureapi"
	"github.com/assocportal/portal/internal/shared"
	"github.com/assocportal/portal/internal/view"
)

const donorsPath = "/finances/donors/"

// Handler serves the finance pages.
type Handler struct {
	logger    *slog.Logger
	api       secureapi.Factory
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     guard.Route
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, api secureapi.Factory, templates *view.Engine, csrf *shared.CSRFManager, g guard.Route) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, api: api, templates: templates, csrf: csrf, guard: g}
}

// MountRoutes registers finance routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.Require(rbac.ActionView, rbac.ResourceFinance)).Get("/donors", h.donors)
	r.Post("/donors/{id}/delete", h.removeDonor)
}

func (h *Handler) donors(w http.ResponseWriter, r *http.Request) {
	data := donorsPageData{}
	resp, err := h.api(r).View(r.Context(), rbac.ResourceFinance, donorsPath)
	if err == nil {
		err = resp.DecodeList(&data.Donors)
	}
	status := http.StatusOK
	if err != nil {
		h.logger.Error("list donors", slog.Any("error", err))
		data.Error = view.NoticeFor(err).Message
		status = httpx.StatusFor(err)
	}
	td, perr := view.Page(r, h.csrf, "Donors", data)
	if perr != nil && !errors.Is(perr, shared.ErrSessionMissing) {
		h.logger.Error("prepare page", slog.Any("error", perr))
	}
	if err := h.templates.RenderStatus(w, status, "pages/finance/donors.html", td); err != nil {
		h.logger.Error("render donors", slog.Any("error", err))
	}
}

func (h *Handler) removeDonor(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return
	}
	msg := shared.FlashMessage{Kind: shared.FlashSuccess, Message: "Donor deleted."}
	if _, err := h.api(r).Delete(r.Context(), rbac.ResourceFinance, donorsPath+strconv.FormatInt(id, 10)+"/"); err != nil {
		h.logger.Warn("delete donor", slog.Int64("donor_id", id), slog.Any("error", err))
		msg = view.NoticeFor(err)
	}
	shared.Notify(r.Context(), msg.Kind, msg.Message)
	http.Redirect(w, r, "/finance/donors", http.StatusSeeOther)
}

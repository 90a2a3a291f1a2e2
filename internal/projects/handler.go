package projects

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/assocportal/portal/internal/guard"
	"github.com/assocportal/portal/internal/platform/httpx"
	"github.com/assocportal/portal/internal/rbac"
	"github.com/assocportal/portal/internal/secureapi"
	"github.com/assocportal/portal/internal/shared"
	"github.com/assocportal/portal/internal/view"
)

const projectsPath = "/api/project/"

// Handler serves the project pages.
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

// MountRoutes registers project routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.Require(rbac.ActionView, rbac.ResourceProjects)).Get("/", h.list)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(rbac.ActionEdit, rbac.ResourceProjects, guard.WithFallback("/projects")))
		r.Get("/{id}/edit", h.edit)
		r.Post("/{id}", h.update)
	})
	r.Post("/{id}/delete", h.remove)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	data := listPageData{}
	resp, err := h.api(r).View(r.Context(), rbac.ResourceProjects, projectsPath)
	if err == nil {
		err = resp.DecodeList(&data.Projects)
	}
	status := http.StatusOK
	if err != nil {
		h.logger.Error("list projects", slog.Any("error", err))
		data.Error = view.NoticeFor(err).Message
		status = httpx.StatusFor(err)
	}
	h.render(w, r, "pages/projects/list.html", "Projects", data, status)
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	project, err := h.fetch(r, id)
	if err != nil {
		h.logger.Error("load project", slog.Int64("project_id", id), slog.Any("error", err))
		h.redirectWithFlash(w, r, "/projects", view.NoticeFor(err))
		return
	}
	data := editPageData{ID: id, Form: formFromProject(project), Errors: map[string]string{}, Priorities: Priorities}
	h.render(w, r, "pages/projects/edit.html", "Edit project", data, http.StatusOK)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := EditForm{
		Name:        r.PostFormValue("name"),
		Description: r.PostFormValue("description"),
		Status:      r.PostFormValue("status"),
		Priority:    r.PostFormValue("priority"),
		Budget:      r.PostFormValue("budget"),
		StartDate:   r.PostFormValue("start_date"),
		EndDate:     r.PostFormValue("end_date"),
	}
	errs := map[string]string{}
	if err := h.validate.Struct(form); err != nil {
		errs = view.FieldErrors(err)
	} else if form.EndDate < form.StartDate {
		errs["end_date"] = "The end date cannot precede the start date."
	}
	if len(errs) > 0 {
		data := editPageData{ID: id, Form: form, Errors: errs, Priorities: Priorities}
		h.render(w, r, "pages/projects/edit.html", "Edit project", data, http.StatusBadRequest)
		return
	}

	// The backend expects a full object; fields the form does not edit are
	// carried over from the current record.
	current, err := h.fetch(r, id)
	if err != nil {
		h.logger.Error("load project", slog.Int64("project_id", id), slog.Any("error", err))
		h.redirectWithFlash(w, r, "/projects", view.NoticeFor(err))
		return
	}
	payload := updatePayload{
		Name:        form.Name,
		Description: form.Description,
		Status:      form.Status,
		Priority:    form.Priority,
		Budget:      json.Number(form.Budget),
		StartDate:   form.StartDate,
		EndDate:     form.EndDate,
		Responsible: current.Responsible,
	}
	if _, err := h.api(r).Edit(r.Context(), rbac.ResourceProjects, projectPath(id), payload); err != nil {
		h.logger.Warn("update project", slog.Int64("project_id", id), slog.Any("error", err))
		notice := view.NoticeFor(err)
		data := editPageData{ID: id, Form: form, Errors: map[string]string{}, Error: notice.Message, Priorities: Priorities}
		h.render(w, r, "pages/projects/edit.html", "Edit project", data, httpx.StatusFor(err))
		return
	}
	h.redirectWithFlash(w, r, "/projects", shared.FlashMessage{Kind: shared.FlashSuccess, Message: fmt.Sprintf("Project %q updated.", form.Name)})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if _, err := h.api(r).Delete(r.Context(), rbac.ResourceProjects, projectPath(id)); err != nil {
		h.logger.Warn("delete project", slog.Int64("project_id", id), slog.Any("error", err))
		h.redirectWithFlash(w, r, "/projects", view.NoticeFor(err))
		return
	}
	h.redirectWithFlash(w, r, "/projects", shared.FlashMessage{Kind: shared.FlashSuccess, Message: "Project deleted."})
}

func (h *Handler) fetch(r *http.Request, id int64) (Project, error) {
	var project Project
	resp, err := h.api(r).View(r.Context(), rbac.ResourceProjects, projectPath(id))
	if err != nil {
		return project, err
	}
	if err := resp.Decode(&project); err != nil {
		return project, fmt.Errorf("decode project: %w", err)
	}
	return project, nil
}

func projectPath(id int64) string {
	return projectsPath + strconv.FormatInt(id, 10) + "/"
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

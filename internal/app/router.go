package app

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/assocportal/portal/internal/auth"
	"github.com/assocportal/portal/internal/finance"
	"github.com/assocportal/portal/internal/guard"
	"github.com/assocportal/portal/internal/members"
	"github.com/assocportal/portal/internal/observability"
	"github.com/assocportal/portal/internal/projects"
	"github.com/assocportal/portal/internal/rbac"
	"github.com/assocportal/portal/internal/secureapi"
	"github.com/assocportal/portal/internal/shared"
	"github.com/assocportal/portal/internal/view"
	"github.com/assocportal/portal/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Templates          *view.Engine
	SessionManager     *shared.SessionManager
	CSRFManager        *shared.CSRFManager
	Registry           *rbac.Registry
	AuthHandler        *auth.Handler
	MembersHandler     *members.Handler
	ProjectsHandler    *projects.Handler
	FinanceHandler     *finance.Handler
	ProxyHandler       *secureapi.ProxyHandler
	PermissionsHandler *rbac.PermissionsHandler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with portal defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Registry:       params.Registry,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		if !shared.SessionFromContext(r.Context()).Authenticated() {
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}
		http.Redirect(w, r, "/home", http.StatusSeeOther)
	})

	r.Get("/home", func(w http.ResponseWriter, r *http.Request) {
		if !shared.SessionFromContext(r.Context()).Authenticated() {
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}
		if rbac.FromContext(r.Context()).Loading() {
			w.Header().Set("Cache-Control", "no-store")
			w.Header().Set("Refresh", "1")
		}
		data, err := view.Page(r, params.CSRFManager, "Home", nil)
		if err != nil && !errors.Is(err, shared.ErrSessionMissing) {
			params.Logger.Error("prepare home", slog.Any("error", err))
		}
		if err := params.Templates.Render(w, "pages/home.html", data); err != nil {
			params.Logger.Error("render home", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.MembersHandler != nil {
		r.Route("/members", params.MembersHandler.MountRoutes)
	}
	if params.ProjectsHandler != nil {
		r.Route("/projects", params.ProjectsHandler.MountRoutes)
	}
	if params.FinanceHandler != nil {
		r.Route("/finance", params.FinanceHandler.MountRoutes)
	}
	if params.PermissionsHandler != nil {
		r.Route("/api/permissions", params.PermissionsHandler.MountRoutes)
	}
	if params.ProxyHandler != nil {
		r.Route("/api/proxy", params.ProxyHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// NewGuard builds the route guard shared by the page handlers.
func NewGuard(cfg *Config, templates *view.Engine, logger *slog.Logger, metrics *observability.Metrics) guard.Route {
	g := guard.Route{
		Waiting:  loadingPage(templates, logger),
		Logger:   logger,
		Recorder: metrics,
	}
	if cfg != nil {
		g.Fallback = cfg.GuardFallback
	}
	return g
}

// loadingPage renders the placeholder served while permissions resolve.
func loadingPage(templates *view.Engine, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := templates.Render(w, "pages/loading.html", view.TemplateData{Title: "Loading"}); err != nil && logger != nil {
			logger.Error("render loading", slog.Any("error", err))
		}
	})
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}

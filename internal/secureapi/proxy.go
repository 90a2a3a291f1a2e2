package secureapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/assocportal/portal/internal/backend"
	"github.com/assocportal/portal/internal/platform/httpx"
	"github.com/assocportal/portal/internal/rbac"
)

const maxProxyBody = 1 << 20

// DefaultRoutes maps resources to the backend prefix they live under.
var DefaultRoutes = map[rbac.Resource]string{
	rbac.ResourceProjects:      "/api/project/",
	rbac.ResourceMembers:       "/api/member/",
	rbac.ResourceFinance:       "/finances/",
	rbac.ResourceMeetings:      "/meetings/",
	rbac.ResourceChatbot:       "/chatbot/",
	rbac.ResourceNotifications: "/notifications/",
}

// ProxyHandler relays JSON calls from page scripts to the backend through
// the permission checked client.
type ProxyHandler struct {
	api    Factory
	routes map[rbac.Resource]string
}

// NewProxyHandler builds a ProxyHandler. A nil routes map uses DefaultRoutes.
func NewProxyHandler(api Factory, routes map[rbac.Resource]string) *ProxyHandler {
	if routes == nil {
		routes = DefaultRoutes
	}
	return &ProxyHandler{api: api, routes: routes}
}

// MountRoutes registers the proxy under /{resource}/*.
func (h *ProxyHandler) MountRoutes(r chi.Router) {
	r.HandleFunc("/{resource}/*", h.serve)
	r.HandleFunc("/{resource}", h.serve)
}

func (h *ProxyHandler) serve(w http.ResponseWriter, r *http.Request) {
	resource := rbac.Resource(chi.URLParam(r, "resource"))
	target, ok := h.target(resource, chi.URLParam(r, "*"))
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	var body any
	if r.Method != http.MethodGet && r.Method != http.MethodDelete {
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxProxyBody+1))
		if err != nil {
			httpx.RespondError(w, httpx.ErrValidation)
			return
		}
		if len(raw) > maxProxyBody {
			httpx.Problem(w, http.StatusRequestEntityTooLarge, "Payload Too Large", "request body exceeds 1 MiB")
			return
		}
		if len(raw) > 0 {
			if !json.Valid(raw) {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "request body must be JSON")
				return
			}
			body = json.RawMessage(raw)
		}
	}

	client := h.api(r)
	ctx := r.Context()
	var (
		resp *backend.Response
		err  error
	)
	switch r.Method {
	case http.MethodGet:
		resp, err = client.View(ctx, resource, target)
	case http.MethodPost:
		resp, err = client.Create(ctx, resource, target, body)
	case http.MethodPut:
		resp, err = client.Edit(ctx, resource, target, body)
	case http.MethodPatch:
		resp, err = client.Do(ctx, rbac.ActionEdit, resource, http.MethodPatch, target, body)
	case http.MethodDelete:
		resp, err = client.Delete(ctx, resource, target)
	default:
		w.Header().Set("Allow", "GET, POST, PUT, PATCH, DELETE")
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "")
		return
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.Raw(w, resp.StatusCode, contentType, resp.Body)
}

// target joins the resource prefix with the requested sub path. Paths that
// climb out of the prefix are rejected, percent-encoded or not.
func (h *ProxyHandler) target(resource rbac.Resource, rest string) (string, bool) {
	prefix, ok := h.routes[resource]
	if !ok {
		return "", false
	}
	if rest == "" {
		return prefix, true
	}
	for _, seg := range strings.Split(rest, "/") {
		decoded, err := url.PathUnescape(seg)
		if err != nil || decoded == ".." || decoded == "." || strings.ContainsAny(decoded, "/\\") {
			return "", false
		}
	}
	joined := path.Join(prefix, rest)
	if !strings.HasPrefix(joined+"/", prefix) {
		return "", false
	}
	// The backend routes every collection and item with a trailing slash.
	return joined + "/", true
}

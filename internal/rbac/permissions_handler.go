package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/assocportal/portal/internal/platform/httpx"
)

// PermissionsHandler exposes the session permissions to browser scripts.
type PermissionsHandler struct{}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler() *PermissionsHandler {
	return &PermissionsHandler{}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.show)
}

type permissionsView struct {
	Loading          bool                `json:"loading"`
	Outcome          Outcome             `json:"outcome"`
	UserID           int64               `json:"user_id,omitempty"`
	Role             string              `json:"role,omitempty"`
	IsSuperuser      bool                `json:"is_superuser"`
	CanValidateUsers bool                `json:"can_validate_users"`
	Permissions      map[string][]string `json:"permissions"`
}

func (h *PermissionsHandler) show(w http.ResponseWriter, r *http.Request) {
	snap := FromContext(r.Context()).Snapshot()
	p := snap.Principal()
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusOK, permissionsView{
		Loading:          snap.Loading(),
		Outcome:          snap.Outcome(),
		UserID:           p.ID,
		Role:             p.Role.String(),
		IsSuperuser:      snap.IsSuperuser(),
		CanValidateUsers: snap.CanValidateUsers(),
		Permissions:      snap.Matrix().Names(),
	})
}

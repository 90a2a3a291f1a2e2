package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/assocportal/portal/internal/backend"
	"github.com/assocportal/portal/internal/observability"
	"github.com/assocportal/portal/internal/rbac"
	"github.com/assocportal/portal/internal/secureapi"
	"github.com/assocportal/portal/internal/shared"
)

// APIParams groups what the per request secure client is built from.
type APIParams struct {
	Backend  *backend.Client
	Registry *rbac.Registry
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

// NewAPIFactory returns a factory binding the backend client to the token
// and permissions of each request.
func NewAPIFactory(p APIParams) secureapi.Factory {
	notify := sessionNotifier(p.Registry, p.Logger)
	return func(r *http.Request) *secureapi.Client {
		ctx := r.Context()
		return secureapi.New(
			rbac.FromContext(ctx),
			p.Backend.WithToken(shared.TokenFromContext(ctx)),
			secureapi.WithLogger(p.Logger),
			secureapi.WithRecorder(p.Metrics),
			secureapi.WithNotifier(notify),
		)
	}
}

// sessionNotifier signs the session out when the backend no longer accepts
// its token. 403 replies leave the session intact.
func sessionNotifier(registry *rbac.Registry, logger *slog.Logger) secureapi.Notifier {
	return func(ctx context.Context, err *secureapi.SessionError) {
		if err.StatusCode != http.StatusUnauthorized {
			return
		}
		sess := shared.SessionFromContext(ctx)
		if !sess.Authenticated() {
			return
		}
		if logger != nil {
			logger.Info("backend rejected session token, signing out")
		}
		if registry != nil {
			registry.End(sess.ID)
		}
		sess.ClearToken()
	}
}

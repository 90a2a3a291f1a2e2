package rbac

import (
	"log/slog"
	"net/http"

	"github.com/assocportal/portal/internal/shared"
)

// Middleware attaches the session resolver to each request.
type Middleware struct {
	Registry *Registry
	Logger   *slog.Logger
}

// Attach looks up the resolver of the request session and stores it in
// the request context. Requests without a session get a denying resolver.
// A session whose token the backend rejected is signed out here.
func (m Middleware) Attach(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || m.Registry == nil {
			if m.Logger != nil {
				m.Logger.Warn("rbac attach without session or registry", slog.String("path", r.URL.Path))
			}
			next.ServeHTTP(w, r)
			return
		}
		resolver := m.Registry.For(sess.ID, sess.Token())
		if resolver.Snapshot().Outcome() == OutcomeRejected {
			if m.Logger != nil {
				m.Logger.Info("backend rejected session token, signing out")
			}
			m.Registry.End(sess.ID)
			sess.ClearToken()
			sess.AddFlash(shared.FlashMessage{Kind: shared.FlashError, Message: "Your session has expired. Please sign in again."})
			resolver = m.Registry.For(sess.ID, "")
		}
		next.ServeHTTP(w, r.WithContext(ContextWithResolver(r.Context(), resolver)))
	})
}

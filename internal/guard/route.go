// Package guard gates navigation and rendering on session permissions.
package guard

import (
	"log/slog"
	"net/http"

	"github.com/assocportal/portal/internal/rbac"
)

// DefaultFallback is where denied navigation is sent.
const DefaultFallback = "/home"

// Authorizer is the read-only permission view guards rely on.
type Authorizer interface {
	Loading() bool
	Can(action rbac.Action, resource rbac.Resource) bool
	IsSuperuser() bool
	CanValidateUsers() bool
}

// Verdict is the state of a guard for one evaluation.
type Verdict int

const (
	VerdictLoading Verdict = iota
	VerdictDenied
	VerdictAllowed
)

func (v Verdict) String() string {
	switch v {
	case VerdictLoading:
		return "loading"
	case VerdictDenied:
		return "denied"
	default:
		return "allowed"
	}
}

// Evaluate decides the guard state for an action/resource requirement.
func Evaluate(a Authorizer, action rbac.Action, resource rbac.Resource) Verdict {
	return evaluate(a, func(a Authorizer) bool { return a.Can(action, resource) })
}

func evaluate(a Authorizer, check func(Authorizer) bool) Verdict {
	if a == nil {
		return VerdictDenied
	}
	if a.Loading() {
		return VerdictLoading
	}
	if check(a) {
		return VerdictAllowed
	}
	return VerdictDenied
}

// Recorder receives guard telemetry.
type Recorder interface {
	ObserveGuard(verdict string)
}

// Route builds route guard middleware.
type Route struct {
	// Source returns the permissions of the request. Defaults to the
	// resolver stored in the request context.
	Source func(r *http.Request) Authorizer
	// Waiting renders while permissions load. Defaults to a bare page.
	Waiting http.Handler
	// Fallback overrides DefaultFallback for every guard of this Route.
	Fallback string
	Logger   *slog.Logger
	Recorder Recorder
}

type options struct {
	fallback string
}

// Option customises a single guard.
type Option func(*options)

// WithFallback redirects denied requests to target.
func WithFallback(target string) Option {
	return func(o *options) { o.fallback = target }
}

// Require admits requests allowed to perform action on resource.
func (g Route) Require(action rbac.Action, resource rbac.Resource, opts ...Option) func(http.Handler) http.Handler {
	return g.guard(string(action)+":"+string(resource), func(a Authorizer) bool { return a.Can(action, resource) }, opts)
}

// RequireSuperuser admits superusers only.
func (g Route) RequireSuperuser(opts ...Option) func(http.Handler) http.Handler {
	return g.guard("superuser", func(a Authorizer) bool { return a.IsSuperuser() }, opts)
}

// RequireValidator admits sessions that may validate users.
func (g Route) RequireValidator(opts ...Option) func(http.Handler) http.Handler {
	return g.guard("validator", func(a Authorizer) bool { return a.CanValidateUsers() }, opts)
}

func (g Route) guard(requirement string, check func(Authorizer) bool, opts []Option) func(http.Handler) http.Handler {
	o := options{fallback: g.Fallback}
	if o.fallback == "" {
		o.fallback = DefaultFallback
	}
	for _, opt := range opts {
		opt(&o)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			verdict := evaluate(g.source(r), check)
			if g.Recorder != nil {
				g.Recorder.ObserveGuard(verdict.String())
			}
			switch verdict {
			case VerdictLoading:
				g.waiting(w, r)
			case VerdictDenied:
				if g.Logger != nil {
					g.Logger.Info("route guard denied",
						slog.String("path", r.URL.Path),
						slog.String("requirement", requirement))
				}
				if r.URL.Path == o.fallback {
					http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
					return
				}
				http.Redirect(w, r, o.fallback, http.StatusSeeOther)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func (g Route) source(r *http.Request) Authorizer {
	if g.Source != nil {
		return g.Source(r)
	}
	return rbac.FromContext(r.Context())
}

const waitingPage = `<!doctype html><html><head><meta charset="utf-8"><title>Loading</title></head>` +
	`<body><div class="loading-container"><div class="loading-spinner" aria-label="Loading"></div></div></body></html>`

func (g Route) waiting(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Refresh", "1")
	if g.Waiting != nil {
		g.Waiting.ServeHTTP(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(waitingPage))
}

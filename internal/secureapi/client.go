// Package secureapi gates backend calls behind the session permissions.
//
// A call whose implied action is not permitted is refused before any
// network traffic. The backend still enforces every permission; the check
// here keeps the portal consistent with what the backend will accept.
package secureapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/assocportal/portal/internal/backend"
	"github.com/assocportal/portal/internal/platform/httpx"
	"github.com/assocportal/portal/internal/rbac"
)

var (
	// ErrPermissionsLoading is returned while the session is still resolving.
	ErrPermissionsLoading = fmt.Errorf("secureapi: permissions still loading: %w", httpx.ErrUnavailable)
	// ErrPermissionDenied is matched by every client side refusal.
	ErrPermissionDenied = errors.New("secureapi: permission denied")
	// ErrSession is matched by backend 401/403 replies.
	ErrSession = errors.New("secureapi: session expired or permission denied")
)

// DeniedError is a client side refusal.
type DeniedError struct {
	Action   rbac.Action
	Resource rbac.Resource
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("secureapi: permission denied: cannot %s %s", e.Action, e.Resource)
}

// Is matches ErrPermissionDenied and httpx.ErrForbidden.
func (e *DeniedError) Is(target error) bool {
	return target == ErrPermissionDenied || target == httpx.ErrForbidden
}

// SessionError is a backend 401/403 reply, kept apart from other transport
// failures so callers can send the user back through authentication.
type SessionError struct {
	StatusCode int
	Err        error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("secureapi: session or permission rejected by backend (status %d): %v", e.StatusCode, e.Err)
}

// Is matches ErrSession.
func (e *SessionError) Is(target error) bool { return target == ErrSession }

func (e *SessionError) Unwrap() error { return e.Err }

// Authorizer answers permission queries for the session.
type Authorizer interface {
	Loading() bool
	Can(action rbac.Action, resource rbac.Resource) bool
}

// Transport performs the actual backend call.
type Transport interface {
	Do(ctx context.Context, method, path string, body any) (*backend.Response, error)
}

// Recorder receives guarded request telemetry.
type Recorder interface {
	ObserveGuardedRequest(action, outcome string)
}

// Notifier is told about backend 401/403 replies before they propagate.
type Notifier func(ctx context.Context, err *SessionError)

// Client wraps the four CRUD verbs with permission checks.
type Client struct {
	perms     Authorizer
	transport Transport
	logger    *slog.Logger
	recorder  Recorder
	notify    Notifier
}

// Option customises a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option { return func(c *Client) { c.logger = logger } }

// WithRecorder sets the telemetry sink.
func WithRecorder(rec Recorder) Option { return func(c *Client) { c.recorder = rec } }

// WithNotifier sets the 401/403 hook.
func WithNotifier(fn Notifier) Option { return func(c *Client) { c.notify = fn } }

// New constructs a Client.
func New(perms Authorizer, transport Transport, opts ...Option) *Client {
	c := &Client{perms: perms, transport: transport}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// View issues a GET gated by the view action.
func (c *Client) View(ctx context.Context, resource rbac.Resource, path string) (*backend.Response, error) {
	return c.Do(ctx, rbac.ActionView, resource, http.MethodGet, path, nil)
}

// Create issues a POST gated by the create action.
func (c *Client) Create(ctx context.Context, resource rbac.Resource, path string, body any) (*backend.Response, error) {
	return c.Do(ctx, rbac.ActionCreate, resource, http.MethodPost, path, body)
}

// Edit issues a PUT gated by the edit action.
func (c *Client) Edit(ctx context.Context, resource rbac.Resource, path string, body any) (*backend.Response, error) {
	return c.Do(ctx, rbac.ActionEdit, resource, http.MethodPut, path, body)
}

// Delete issues a DELETE gated by the delete action.
func (c *Client) Delete(ctx context.Context, resource rbac.Resource, path string) (*backend.Response, error) {
	return c.Do(ctx, rbac.ActionDelete, resource, http.MethodDelete, path, nil)
}

// Do issues an arbitrary request gated by action on resource.
func (c *Client) Do(ctx context.Context, action rbac.Action, resource rbac.Resource, method, path string, body any) (*backend.Response, error) {
	if c.perms == nil || c.perms.Loading() {
		c.observe(action, "loading")
		return nil, ErrPermissionsLoading
	}
	if !c.perms.Can(action, resource) {
		c.observe(action, "denied")
		if c.logger != nil {
			c.logger.Warn("permission denied",
				slog.String("action", string(action)),
				slog.String("resource", string(resource)),
				slog.String("path", path))
		}
		return nil, &DeniedError{Action: action, Resource: resource}
	}
	if c.transport == nil {
		c.observe(action, "error")
		return nil, fmt.Errorf("secureapi: no transport configured")
	}
	resp, err := c.transport.Do(ctx, method, path, body)
	if err == nil {
		c.observe(action, "ok")
		return resp, nil
	}
	if c.logger != nil {
		c.logger.Error("api error", slog.String("method", method), slog.String("path", path), slog.Any("error", err))
	}
	if backend.IsAuthStatus(err) {
		c.observe(action, "session")
		serr := &SessionError{StatusCode: backend.StatusCode(err), Err: err}
		if c.notify != nil {
			c.notify(ctx, serr)
		}
		return nil, serr
	}
	c.observe(action, "error")
	return nil, err
}

func (c *Client) observe(action rbac.Action, outcome string) {
	if c.recorder == nil {
		return
	}
	label := string(action)
	if !action.Known() {
		label = "unknown"
	}
	c.recorder.ObserveGuardedRequest(label, outcome)
}

// Factory builds the Client bound to the session of one request.
type Factory func(r *http.Request) *Client

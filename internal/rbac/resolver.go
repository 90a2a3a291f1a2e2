package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
)

// TokenSource exposes the backend auth token of the current session.
type TokenSource interface {
	Token() string
}

// StaticToken is a TokenSource returning a fixed token.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token() string { return string(t) }

// ProfileFetcher retrieves the profile of the principal owning token.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, token string) (Profile, error)
}

// Recorder receives permission telemetry. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObservePermissionCheck(action, resource string, allowed bool, reason string)
	ObserveResolution(outcome string)
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithRecorder sets the telemetry sink.
func WithRecorder(rec Recorder) Option {
	return func(r *Resolver) { r.recorder = rec }
}

type cycle struct {
	once sync.Once
	done chan struct{}
}

func newCycle() *cycle {
	return &cycle{done: make(chan struct{})}
}

// Resolver owns the permission state of one session. Consumers read it
// through the query methods; only the resolver publishes new snapshots.
type Resolver struct {
	tokens   TokenSource
	fetcher  ProfileFetcher
	logger   *slog.Logger
	recorder Recorder

	current atomic.Pointer[Snapshot]

	mu    sync.Mutex
	cycle *cycle
}

// NewResolver constructs a Resolver in the loading state.
func NewResolver(tokens TokenSource, fetcher ProfileFetcher, opts ...Option) *Resolver {
	r := &Resolver{tokens: tokens, fetcher: fetcher, cycle: newCycle()}
	for _, opt := range opts {
		opt(r)
	}
	r.current.Store(loadingSnapshot())
	return r
}

// Snapshot returns the currently published state.
func (r *Resolver) Snapshot() *Snapshot {
	if r == nil {
		return deniedSnapshot(OutcomeUnauthenticated)
	}
	return r.current.Load()
}

// Resolve runs the current resolution cycle if it has not run yet and
// returns the published snapshot. Concurrent callers share a single fetch.
func (r *Resolver) Resolve(ctx context.Context) *Snapshot {
	c := r.currentCycle()
	c.once.Do(func() { r.run(ctx, c) })
	return r.Snapshot()
}

// Start resolves in the background and returns the completion signal.
func (r *Resolver) Start(ctx context.Context) <-chan struct{} {
	c := r.currentCycle()
	go c.once.Do(func() { r.run(ctx, c) })
	return c.done
}

// Done is closed once the current cycle has published its snapshot.
func (r *Resolver) Done() <-chan struct{} {
	return r.currentCycle().done
}

// Reset discards the published state and opens a fresh cycle. Results of
// an earlier cycle still in flight are dropped.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycle = newCycle()
	r.current.Store(loadingSnapshot())
}

// Clear tears the state down on logout: everything is denied and loading
// is over.
func (r *Resolver) Clear() {
	c := newCycle()
	c.once.Do(func() {})
	close(c.done)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycle = c
	r.current.Store(deniedSnapshot(OutcomeUnauthenticated))
}

// Loading reports whether the current cycle is outstanding.
func (r *Resolver) Loading() bool { return r.Snapshot().Loading() }

// IsSuperuser reports the superuser bypass.
func (r *Resolver) IsSuperuser() bool { return r.Snapshot().IsSuperuser() }

// CanValidateUsers reports the validator shortcut.
func (r *Resolver) CanValidateUsers() bool { return r.Snapshot().CanValidateUsers() }

// Can reports whether the session may perform action on resource.
func (r *Resolver) Can(action Action, resource Resource) bool {
	return r.Decide(action, resource).Allowed
}

// Decide is Can with the reason attached. Unknown resources are logged.
func (r *Resolver) Decide(action Action, resource Resource) Decision {
	d := r.Snapshot().Decide(action, resource)
	if d.Reason == ReasonUnknownResource && r != nil && r.logger != nil {
		r.logger.Warn("permission check on unknown resource",
			slog.String("resource", string(resource)),
			slog.String("action", string(action)))
	}
	if r != nil && r.recorder != nil {
		label := string(d.Resource)
		if d.Reason == ReasonUnknownResource {
			label = "unknown"
		}
		actionLabel := string(action)
		if !action.Known() {
			actionLabel = "unknown"
		}
		r.recorder.ObservePermissionCheck(actionLabel, label, d.Allowed, string(d.Reason))
	}
	return d
}

func (r *Resolver) currentCycle() *cycle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cycle
}

func (r *Resolver) run(ctx context.Context, c *cycle) {
	snap := deniedSnapshot(OutcomeFailed)
	defer func() {
		if rec := recover(); rec != nil {
			r.logError("resolve permissions panic", fmt.Errorf("%v", rec))
			snap = deniedSnapshot(OutcomeFailed)
		}
		r.publish(c, snap)
	}()
	snap = r.resolve(ctx)
}

func (r *Resolver) publish(c *cycle, snap *Snapshot) {
	r.mu.Lock()
	if r.cycle == c {
		r.current.Store(snap)
	}
	r.mu.Unlock()
	close(c.done)
	if r.recorder != nil {
		r.recorder.ObserveResolution(string(snap.Outcome()))
	}
}

func (r *Resolver) resolve(ctx context.Context) *Snapshot {
	token := ""
	if r.tokens != nil {
		token = strings.TrimSpace(r.tokens.Token())
	}
	if token == "" {
		return deniedSnapshot(OutcomeUnauthenticated)
	}
	if r.fetcher == nil {
		r.logError("resolve permissions", fmt.Errorf("rbac: no profile fetcher configured"))
		return deniedSnapshot(OutcomeFailed)
	}
	profile, err := r.fetcher.FetchProfile(ctx, token)
	if err != nil {
		r.logError("fetch profile", err)
		if tokenRejected(err) {
			return deniedSnapshot(OutcomeRejected)
		}
		return deniedSnapshot(OutcomeFailed)
	}
	name := strings.ToLower(strings.TrimSpace(profile.RoleName))
	p := Principal{
		ID:        profile.ID,
		Role:      ParseRole(name),
		RoleName:  name,
		Superuser: profile.IsSuperuser,
	}
	if p.Role == RoleUnknown && !p.Superuser && r.logger != nil {
		r.logger.Warn("unknown role, granting minimal permissions", slog.String("role", name))
	}
	if r.logger != nil {
		r.logger.Debug("permissions resolved",
			slog.Int64("user_id", p.ID),
			slog.String("role", p.Role.String()),
			slog.Bool("superuser", p.Superuser))
	}
	return NewSnapshot(p)
}

// tokenRejected reports a 401 from the profile endpoint.
func tokenRejected(err error) bool {
	var coder interface{ HTTPStatus() int }
	return errors.As(err, &coder) && coder.HTTPStatus() == http.StatusUnauthorized
}

func (r *Resolver) logError(msg string, err error) {
	if r.logger != nil {
		r.logger.Error(msg, slog.Any("error", err))
	}
}

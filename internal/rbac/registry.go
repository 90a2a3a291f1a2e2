package rbac

import (
	"context"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Fetcher        ProfileFetcher
	Logger         *slog.Logger
	Recorder       Recorder
	Size           int
	TTL            time.Duration
	ResolveTimeout time.Duration
}

type registryEntry struct {
	token    string
	resolver *Resolver
}

// Registry keeps one Resolver per browser session.
type Registry struct {
	fetcher  ProfileFetcher
	logger   *slog.Logger
	recorder Recorder
	timeout  time.Duration

	mu      sync.Mutex
	entries *lru.LRU[string, *registryEntry]
}

// NewRegistry constructs a Registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	size := cfg.Size
	if size <= 0 {
		size = 4096
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	timeout := cfg.ResolveTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var fetcher ProfileFetcher
	if cfg.Fetcher != nil {
		fetcher = &sharedFetcher{next: cfg.Fetcher}
	}
	return &Registry{
		fetcher:  fetcher,
		logger:   cfg.Logger,
		recorder: cfg.Recorder,
		timeout:  timeout,
		entries:  lru.NewLRU[string, *registryEntry](size, nil, ttl),
	}
}

// For returns the resolver of the session, starting a resolution cycle
// when none exists yet or when the session token changed.
func (g *Registry) For(sessionID, token string) *Resolver {
	if sessionID == "" {
		return g.anonymous()
	}
	g.mu.Lock()
	if e, ok := g.entries.Get(sessionID); ok && e.token == token {
		g.mu.Unlock()
		return e.resolver
	}
	e := g.install(sessionID, token)
	g.mu.Unlock()
	g.start(e)
	return e.resolver
}

// Begin replaces any state of the session with a fresh cycle for token.
func (g *Registry) Begin(sessionID, token string) *Resolver {
	g.mu.Lock()
	e := g.install(sessionID, token)
	g.mu.Unlock()
	g.start(e)
	return e.resolver
}

// Refresh restarts resolution for the session, keeping its token.
func (g *Registry) Refresh(sessionID string) *Resolver {
	g.mu.Lock()
	e, ok := g.entries.Get(sessionID)
	g.mu.Unlock()
	if !ok {
		return nil
	}
	e.resolver.Reset()
	g.start(e)
	return e.resolver
}

// End clears and forgets the session state.
func (g *Registry) End(sessionID string) {
	g.mu.Lock()
	e, ok := g.entries.Get(sessionID)
	if ok {
		g.entries.Remove(sessionID)
	}
	g.mu.Unlock()
	if ok {
		e.resolver.Clear()
	}
}

// Len reports the number of tracked sessions.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.entries.Len()
}

// install must be called with g.mu held.
func (g *Registry) install(sessionID, token string) *registryEntry {
	if prev, ok := g.entries.Get(sessionID); ok {
		prev.resolver.Clear()
	}
	e := &registryEntry{token: token, resolver: g.newResolver(token)}
	g.entries.Add(sessionID, e)
	return e
}

func (g *Registry) newResolver(token string) *Resolver {
	return NewResolver(StaticToken(token), g.fetcher, WithLogger(g.logger), WithRecorder(g.recorder))
}

func (g *Registry) start(e *registryEntry) {
	if e.token == "" {
		e.resolver.Resolve(context.Background())
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	done := e.resolver.Start(ctx)
	go func() {
		<-done
		cancel()
	}()
}

func (g *Registry) anonymous() *Resolver {
	r := g.newResolver("")
	r.Resolve(context.Background())
	return r
}

// sharedFetcher collapses concurrent fetches for the same token.
type sharedFetcher struct {
	next  ProfileFetcher
	group singleflight.Group
}

func (f *sharedFetcher) FetchProfile(ctx context.Context, token string) (Profile, error) {
	resultChan := f.group.DoChan(token, func() (interface{}, error) {
		return f.next.FetchProfile(ctx, token)
	})
	select {
	case <-ctx.Done():
		return Profile{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return Profile{}, res.Err
		}
		return res.Val.(Profile), nil
	}
}

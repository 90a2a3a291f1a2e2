package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/assocportal/portal/internal/auth"
	"github.com/assocportal/portal/internal/backend"
	"github.com/assocportal/portal/internal/rbac"
	"github.com/assocportal/portal/internal/shared"
	"github.com/assocportal/portal/internal/view"
	_ "github.com/assocportal/portal/testing"
)

type stubBackend struct {
	token     string
	err       error
	loggedOut string
}

func (s *stubBackend) Login(ctx context.Context, email, password string) (backend.LoginResult, error) {
	if s.err != nil {
		return backend.LoginResult{}, s.err
	}
	return backend.LoginResult{Token: s.token}, nil
}

func (s *stubBackend) Logout(ctx context.Context, token string) error {
	s.loggedOut = token
	return nil
}

type stubProfiles struct{}

func (stubProfiles) FetchProfile(ctx context.Context, token string) (rbac.Profile, error) {
	return rbac.Profile{ID: 7, RoleName: "member"}, nil
}

type fixture struct {
	handler  *auth.Handler
	sessions *shared.SessionManager
	registry *rbac.Registry
	backend  *stubBackend
	redis    *miniredis.Miniredis
}

func newFixture(t *testing.T, be *stubBackend) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	registry := rbac.NewRegistry(rbac.RegistryConfig{Fetcher: stubProfiles{}})
	service := auth.NewService(be, registry, nil)
	return fixture{
		handler:  auth.NewHandler(nil, service, templates, sessionManager, csrfManager),
		sessions: sessionManager,
		registry: registry,
		backend:  be,
		redis:    mr,
	}
}

func newRouter(f fixture) http.Handler {
	r := chi.NewRouter()
	r.Route("/auth", f.handler.MountRoutes)
	return r
}

func (f fixture) postLogin(t *testing.T, email, password string) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	form := url.Values{}
	form.Set("email", email)
	form.Set("password", password)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	sess, err := f.sessions.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	ctx := shared.ContextWithSession(req.Context(), sess)
	res := httptest.NewRecorder()
	f.handler.HandleLoginForTest(res, req.WithContext(ctx))
	return res, sess
}

func TestLoginPage(t *testing.T) {
	f := newFixture(t, &stubBackend{})

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	sess, err := f.sessions.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)

	res := httptest.NewRecorder()
	f.handler.ShowLoginForTest(res, req)
	if err := f.sessions.Commit(ctx, res, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "<form") {
		t.Fatalf("expected login form in body")
	}
	if sess.Get(shared.CSRFSessionKey) == "" {
		t.Fatalf("csrf token not set")
	}
}

func TestLoginPageRedirectsSignedInSession(t *testing.T) {
	f := newFixture(t, &stubBackend{})

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	sess, err := f.sessions.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	sess.SetToken("abc")
	res := httptest.NewRecorder()
	f.handler.ShowLoginForTest(res, req.WithContext(shared.ContextWithSession(req.Context(), sess)))

	if res.Code != http.StatusSeeOther || res.Header().Get("Location") != "/home" {
		t.Fatalf("expected redirect to /home, got %d %q", res.Code, res.Header().Get("Location"))
	}
}

func TestLoginValidationErrors(t *testing.T) {
	f := newFixture(t, &stubBackend{token: "abc"})

	res, sess := f.postLogin(t, "not-an-email", "")
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if sess.Authenticated() {
		t.Fatalf("session must stay signed out")
	}
	if !strings.Contains(res.Body.String(), "Enter a valid email address.") {
		t.Fatalf("expected email error in body")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t, &stubBackend{err: &backend.StatusError{StatusCode: http.StatusUnauthorized, Body: []byte(`{"detail":"bad credentials"}`)}})

	res, sess := f.postLogin(t, "user@test.local", "wrongpass")
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "Invalid email or password.") {
		t.Fatalf("expected error message in response")
	}
	if sess.Authenticated() {
		t.Fatalf("session must stay signed out")
	}
	if f.registry.Len() != 0 {
		t.Fatalf("no permission state expected, got %d", f.registry.Len())
	}
}

func TestLoginPendingValidation(t *testing.T) {
	f := newFixture(t, &stubBackend{err: &backend.StatusError{
		StatusCode: http.StatusForbidden,
		Body:       []byte(`{"error":"Your account is pending validation by an administrator"}`),
	}})

	res, sess := f.postLogin(t, "new@test.local", "secret")
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "awaiting validation") {
		t.Fatalf("expected pending validation notice")
	}
	if sess.Authenticated() {
		t.Fatalf("session must stay signed out")
	}
}

func TestLoginUnreachableBackend(t *testing.T) {
	f := newFixture(t, &stubBackend{err: errors.New("dial tcp: connection refused")})

	res, _ := f.postLogin(t, "user@test.local", "secret")
	if res.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", res.Code)
	}
}

func TestLoginSuccessStartsPermissionCycle(t *testing.T) {
	f := newFixture(t, &stubBackend{token: "abc"})

	res, sess := f.postLogin(t, "user@test.local", "secret")
	if res.Code != http.StatusSeeOther || res.Header().Get("Location") != "/home" {
		t.Fatalf("expected redirect to /home, got %d %q", res.Code, res.Header().Get("Location"))
	}
	if sess.Token() != "abc" {
		t.Fatalf("expected token stored in session, got %q", sess.Token())
	}
	if f.registry.Len() != 1 {
		t.Fatalf("expected one tracked session, got %d", f.registry.Len())
	}

	resolver := f.registry.For(sess.ID, "abc")
	select {
	case <-resolver.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("resolution did not finish")
	}
	if !resolver.Can(rbac.ActionView, rbac.ResourceProjects) {
		t.Fatalf("member should view projects")
	}
}

func TestLoginRenewsSessionID(t *testing.T) {
	f := newFixture(t, &stubBackend{token: "abc"})
	ctx := context.Background()

	anon, err := f.sessions.Load(ctx, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	first := httptest.NewRecorder()
	if err := f.sessions.Commit(ctx, first, anon); err != nil {
		t.Fatalf("commit session: %v", err)
	}
	oldID := anon.ID

	form := url.Values{"email": {"user@test.local"}, "password": {"secret"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(first.Result().Cookies()[0])
	sess, err := f.sessions.Load(ctx, req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if sess.ID != oldID {
		t.Fatalf("expected cookie session %q, got %q", oldID, sess.ID)
	}
	res := httptest.NewRecorder()
	f.handler.HandleLoginForTest(res, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
	if err := f.sessions.Commit(ctx, res, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}

	if sess.ID == oldID {
		t.Fatalf("session id must change on login")
	}
	if f.redis.Exists("portal:session:" + oldID) {
		t.Fatalf("pre-login session record must be removed")
	}
	if !f.redis.Exists("portal:session:" + sess.ID) {
		t.Fatalf("signed in session must be stored")
	}
	if f.registry.Len() != 1 {
		t.Fatalf("expected one tracked session, got %d", f.registry.Len())
	}
}

func TestLogoutClearsPermissions(t *testing.T) {
	f := newFixture(t, &stubBackend{token: "abc"})
	_, sess := f.postLogin(t, "user@test.local", "secret")
	resolver := f.registry.For(sess.ID, "abc")

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	ctx := shared.ContextWithSession(req.Context(), sess)
	res := httptest.NewRecorder()
	router := newRouter(f)
	router.ServeHTTP(res, req.WithContext(ctx))

	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", res.Code)
	}
	if f.backend.loggedOut != "abc" {
		t.Fatalf("expected backend logout with token, got %q", f.backend.loggedOut)
	}
	if sess.Authenticated() {
		t.Fatalf("session token must be cleared")
	}
	if f.registry.Len() != 0 {
		t.Fatalf("expected no tracked sessions, got %d", f.registry.Len())
	}
	if resolver.Loading() || resolver.Can(rbac.ActionView, rbac.ResourceProjects) {
		t.Fatalf("cleared resolver must deny")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want auth.Failure
	}{
		{"network", errors.New("timeout"), auth.FailureUnreachable},
		{"bad request", &backend.StatusError{StatusCode: http.StatusBadRequest}, auth.FailureCredentials},
		{"forbidden", &backend.StatusError{StatusCode: http.StatusForbidden, Body: []byte(`{"error":"account disabled"}`)}, auth.FailureDenied},
		{"pending", &backend.StatusError{StatusCode: http.StatusForbidden, Body: []byte(`"Please wait for approval"`)}, auth.FailurePendingValidation},
		{"throttled", &backend.StatusError{StatusCode: http.StatusTooManyRequests}, auth.FailureThrottled},
		{"server", &backend.StatusError{StatusCode: http.StatusInternalServerError}, auth.FailureUnreachable},
		{"teapot", &backend.StatusError{StatusCode: http.StatusTeapot}, auth.FailureUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := auth.Classify(tc.err); got != tc.want {
				t.Fatalf("Classify() = %d, want %d", got, tc.want)
			}
		})
	}
}

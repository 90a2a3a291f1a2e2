package secureapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assocportal/portal/internal/backend"
	"github.com/assocportal/portal/internal/rbac"
)

func newProxy(t *testing.T, p rbac.Profile, transport *fakeTransport) http.Handler {
	t.Helper()
	perms := resolved(t, p)
	factory := func(*http.Request) *Client { return New(perms, transport) }
	r := chi.NewRouter()
	NewProxyHandler(factory, nil).MountRoutes(r)
	return r
}

func TestProxyRelaysAllowedCalls(t *testing.T) {
	transport := &fakeTransport{resp: &backend.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(`[{"id":1}]`),
	}}
	h := newProxy(t, rbac.Profile{ID: 1, RoleName: "member"}, transport)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/projects/?status=active", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[{"id":1}]`, rr.Body.String())
	require.Len(t, transport.calls, 1)
	assert.Equal(t, "/api/project/?status=active", transport.calls[0].path)
}

func TestProxyRefusesDeniedCalls(t *testing.T) {
	transport := &fakeTransport{}
	h := newProxy(t, rbac.Profile{ID: 1, RoleName: "member"}, transport)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/projects/3", strings.NewReader(`{"name":"x"}`))
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	assert.Empty(t, transport.calls)
}

func TestProxyForwardsJSONBody(t *testing.T) {
	transport := &fakeTransport{resp: &backend.Response{StatusCode: http.StatusCreated, Body: []byte(`{"id":9}`)}}
	h := newProxy(t, rbac.Profile{ID: 1, RoleName: "treasurer"}, transport)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/finance/donors", strings.NewReader(`{"name":"ACME"}`)))

	require.Equal(t, http.StatusCreated, rr.Code)
	require.Len(t, transport.calls, 1)
	assert.Equal(t, "/finances/donors/", transport.calls[0].path)
	raw, ok := transport.calls[0].body.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"name":"ACME"}`, string(raw))
}

func TestProxyRejectsUnknownAndEscapingPaths(t *testing.T) {
	transport := &fakeTransport{}
	h := newProxy(t, rbac.Profile{ID: 1, IsSuperuser: true}, transport)

	for _, target := range []string{
		"/payroll/",
		"/projects/../users/",
		"/members/%2e%2e/%2e%2e/finances/donors",
		"/members/%2E%2E%2Ffinances/donors",
		"/projects/%2e/3",
	} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusNotFound, rr.Code, target)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/projects/", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, transport.calls)
}

func TestProxyRefusesOversizeBody(t *testing.T) {
	transport := &fakeTransport{}
	h := newProxy(t, rbac.Profile{ID: 1, IsSuperuser: true}, transport)

	body := `{"notes":"` + strings.Repeat("x", maxProxyBody) + `"}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/finance/donors", strings.NewReader(body)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	assert.Empty(t, transport.calls)
}

package guard

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assocportal/portal/internal/rbac"
)

type fakePerms struct {
	loading   bool
	superuser bool
	validator bool
	allowed   map[rbac.Resource][]rbac.Action
}

func (f fakePerms) Loading() bool          { return f.loading }
func (f fakePerms) IsSuperuser() bool      { return !f.loading && f.superuser }
func (f fakePerms) CanValidateUsers() bool { return !f.loading && f.validator }
func (f fakePerms) Can(action rbac.Action, resource rbac.Resource) bool {
	if f.loading {
		return false
	}
	for _, a := range f.allowed[resource] {
		if a == action {
			return true
		}
	}
	return false
}

type verdicts []string

func (v *verdicts) ObserveGuard(verdict string) { *v = append(*v, verdict) }

func serve(t *testing.T, g Route, mw func(http.Handler) http.Handler, path string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	reached := false
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr, reached
}

func source(p Authorizer) func(*http.Request) Authorizer {
	return func(*http.Request) Authorizer { return p }
}

func TestEvaluate(t *testing.T) {
	assert.Equal(t, VerdictDenied, Evaluate(nil, rbac.ActionView, rbac.ResourceProjects))
	assert.Equal(t, VerdictLoading, Evaluate(fakePerms{loading: true}, rbac.ActionView, rbac.ResourceProjects))
	member := fakePerms{allowed: map[rbac.Resource][]rbac.Action{rbac.ResourceProjects: {rbac.ActionView}}}
	assert.Equal(t, VerdictAllowed, Evaluate(member, rbac.ActionView, rbac.ResourceProjects))
	assert.Equal(t, VerdictDenied, Evaluate(member, rbac.ActionEdit, rbac.ResourceProjects))
	assert.Equal(t, "loading", VerdictLoading.String())
}

func TestRequireWhileLoadingRendersWaitingPage(t *testing.T) {
	rec := verdicts{}
	g := Route{Source: source(fakePerms{loading: true}), Recorder: &rec}

	rr, reached := serve(t, g, g.Require(rbac.ActionView, rbac.ResourceMembers), "/members")
	assert.False(t, reached)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Refresh"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	assert.Contains(t, rr.Body.String(), "loading-spinner")
	assert.Equal(t, verdicts{"loading"}, rec)
}

func TestRequireDeniedRedirectsOnce(t *testing.T) {
	member := fakePerms{allowed: map[rbac.Resource][]rbac.Action{rbac.ResourceProjects: {rbac.ActionView}}}
	g := Route{Source: source(member)}

	rr, reached := serve(t, g, g.Require(rbac.ActionEdit, rbac.ResourceProjects), "/projects/3/edit")
	assert.False(t, reached)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, DefaultFallback, rr.Header().Get("Location"))
}

func TestRequireDeniedOnFallbackPathDoesNotLoop(t *testing.T) {
	g := Route{Source: source(fakePerms{}), Fallback: "/projects"}

	rr, reached := serve(t, g, g.Require(rbac.ActionView, rbac.ResourceProjects), "/projects")
	assert.False(t, reached)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRequireWithFallbackOption(t *testing.T) {
	g := Route{Source: source(fakePerms{})}

	rr, _ := serve(t, g, g.Require(rbac.ActionDelete, rbac.ResourceFinance, WithFallback("/finance/donors")), "/finance/donors/1/delete")
	assert.Equal(t, "/finance/donors", rr.Header().Get("Location"))
}

func TestRequireAllowedRendersChildren(t *testing.T) {
	g := Route{Source: source(fakePerms{allowed: map[rbac.Resource][]rbac.Action{rbac.ResourceMembers: {rbac.ActionView}}})}

	rr, reached := serve(t, g, g.Require(rbac.ActionView, rbac.ResourceMembers), "/members")
	assert.True(t, reached)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequireSuperuserAndValidator(t *testing.T) {
	g := Route{Source: source(fakePerms{validator: true})}

	_, reached := serve(t, g, g.RequireValidator(), "/members/pending")
	assert.True(t, reached)
	rr, reached := serve(t, g, g.RequireSuperuser(), "/admin")
	assert.False(t, reached)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
}

func TestRequireUsesContextResolverByDefault(t *testing.T) {
	g := Route{}
	resolver := rbac.NewResolver(rbac.StaticToken(""), nil)
	resolver.Clear()

	reached := false
	h := g.Require(rbac.ActionView, rbac.ResourceProjects)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { reached = true }))
	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	req = req.WithContext(rbac.ContextWithResolver(req.Context(), resolver))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.False(t, reached)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
}

func TestCustomWaitingHandler(t *testing.T) {
	g := Route{
		Source: source(fakePerms{loading: true}),
		Waiting: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("please wait"))
		}),
	}
	rr, _ := serve(t, g, g.Require(rbac.ActionView, rbac.ResourceProjects), "/projects")
	assert.Equal(t, "please wait", rr.Body.String())
	assert.Equal(t, "1", rr.Header().Get("Refresh"))
}

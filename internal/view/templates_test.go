package view

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assocportal/portal/internal/backend"
	"github.com/assocportal/portal/internal/guard"
	"github.com/assocportal/portal/internal/rbac"
	"github.com/assocportal/portal/internal/secureapi"
	"github.com/assocportal/portal/internal/shared"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestNavigationFollowsPermissions(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	member := rbac.NewResolver(rbac.StaticToken("t"), nil)
	member.Clear()

	rr := httptest.NewRecorder()
	require.NoError(t, engine.Render(rr, "pages/home.html", TemplateData{Title: "Home", Perms: guard.NewView(member)}))
	body := rr.Body.String()
	assert.NotContains(t, body, `href="/members"`)
	assert.NotContains(t, body, `href="/finance/donors"`)
}

type memberProfile struct{}

func (memberProfile) FetchProfile(context.Context, string) (rbac.Profile, error) {
	return rbac.Profile{ID: 2, RoleName: "member"}, nil
}

func TestNavigationForResolvedMember(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	member := rbac.NewResolver(rbac.StaticToken("t"), memberProfile{})
	member.Resolve(context.Background())

	rr := httptest.NewRecorder()
	require.NoError(t, engine.Render(rr, "pages/home.html", TemplateData{Title: "Home", SignedIn: true, Perms: guard.NewView(member)}))
	body := rr.Body.String()
	assert.Contains(t, body, `href="/projects"`)
	assert.Contains(t, body, `href="/finance/donors"`)
	assert.NotContains(t, body, `href="/members/pending"`)
	assert.Contains(t, body, "Reports are restricted to the board")
}

func TestHomeWhileLoading(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	loading := rbac.NewResolver(rbac.StaticToken("t"), nil)
	require.NoError(t, engine.Render(rr, "pages/home.html", TemplateData{Perms: guard.NewView(loading)}))
	assert.Contains(t, rr.Body.String(), "still loading")
	assert.NotContains(t, rr.Body.String(), `href="/projects"`)
}

func TestRenderStatus(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	require.NoError(t, engine.RenderStatus(rr, http.StatusBadGateway, "pages/loading.html", TemplateData{Title: "Loading"}))
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
}

func TestNoticeFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind string
		want string
	}{
		{"loading", secureapi.ErrPermissionsLoading, shared.FlashInfo, "still loading"},
		{"denied", &secureapi.DeniedError{Action: rbac.ActionDelete, Resource: rbac.ResourceFinance}, shared.FlashWarning, "do not have permission"},
		{"forbidden mentioning validation", &secureapi.SessionError{StatusCode: http.StatusForbidden, Err: &backend.StatusError{StatusCode: http.StatusForbidden, Body: []byte(`{"error":"Only an administrator may change validation settings"}`)}}, shared.FlashError, "refused"},
		{"expired", &secureapi.SessionError{StatusCode: http.StatusUnauthorized}, shared.FlashError, "session has expired"},
		{"refused", &secureapi.SessionError{StatusCode: http.StatusForbidden}, shared.FlashError, "refused"},
		{"backend message", &backend.StatusError{StatusCode: http.StatusBadRequest, Body: []byte(`{"error":"Name already used"}`)}, shared.FlashError, "Name already used"},
		{"generic", errors.New("dial tcp"), shared.FlashError, "could not be completed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			notice := NoticeFor(tc.err)
			assert.Equal(t, tc.kind, notice.Kind)
			assert.Contains(t, notice.Message, tc.want)
		})
	}
}

func TestFieldErrorsUseFormNames(t *testing.T) {
	type form struct {
		Email string `form:"email" validate:"required,email"`
		Count string `form:"count" validate:"numeric"`
	}
	err := NewValidator().Struct(form{Email: "nope", Count: "x"})
	errs := FieldErrors(err)
	assert.Equal(t, "Enter a valid email address.", errs["email"])
	assert.Equal(t, "Enter a number.", errs["count"])
	assert.Equal(t, map[string]string{"general": "boom"}, FieldErrors(errors.New("boom")))
	assert.Empty(t, FieldErrors(nil))
}

package view

import (
	"errors"
	"net/http"

	"github.com/assocportal/portal/internal/backend"
	"github.com/assocportal/portal/internal/guard"
	"github.com/assocportal/portal/internal/rbac"
	"github.com/assocportal/portal/internal/secureapi"
	"github.com/assocportal/portal/internal/shared"
)

// Page assembles the TemplateData of the current request: CSRF token,
// pending flash, session state and permissions.
func Page(r *http.Request, csrf *shared.CSRFManager, title string, data any) (TemplateData, error) {
	ctx := r.Context()
	sess := shared.SessionFromContext(ctx)
	td := TemplateData{
		Title:       title,
		CurrentPath: r.URL.Path,
		SignedIn:    sess.Authenticated(),
		Perms:       guard.NewView(rbac.FromContext(ctx)),
		Data:        data,
	}
	if csrf != nil {
		token, err := csrf.EnsureToken(sess)
		if err != nil {
			return td, err
		}
		td.CSRFToken = token
	}
	if sess != nil {
		td.Flash = sess.PopFlash()
	}
	return td, nil
}

// NoticeFor turns a failed backend call into a user facing notice.
func NoticeFor(err error) shared.FlashMessage {
	var serr *secureapi.SessionError
	switch {
	case errors.Is(err, secureapi.ErrPermissionsLoading):
		return shared.FlashMessage{Kind: shared.FlashInfo, Message: "Your permissions are still loading. Please try again in a moment."}
	case errors.Is(err, secureapi.ErrPermissionDenied):
		return shared.FlashMessage{Kind: shared.FlashWarning, Message: "You do not have permission to perform this action."}
	case errors.As(err, &serr) && serr.StatusCode == http.StatusUnauthorized:
		return shared.FlashMessage{Kind: shared.FlashError, Message: "Your session has expired. Please sign in again."}
	case errors.As(err, &serr):
		return shared.FlashMessage{Kind: shared.FlashError, Message: "The server refused this action for your account."}
	}
	var status *backend.StatusError
	if errors.As(err, &status) {
		if msg := status.Message(); msg != "" && len(msg) < 200 {
			return shared.FlashMessage{Kind: shared.FlashError, Message: msg}
		}
	}
	return shared.FlashMessage{Kind: shared.FlashError, Message: "The request could not be completed. Please try again."}
}

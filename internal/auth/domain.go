package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/assocportal/portal/internal/backend"
	"github.com/assocportal/portal/internal/rbac"
)

// Authenticator exchanges credentials for a backend token.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (backend.LoginResult, error)
	Logout(ctx context.Context, token string) error
}

// Sessions manages the permission state bound to a browser session.
type Sessions interface {
	Begin(sessionID, token string) *rbac.Resolver
	Refresh(sessionID string) *rbac.Resolver
	End(sessionID string)
}

// Failure classifies a rejected sign in.
type Failure int

const (
	FailureUnknown Failure = iota
	FailureCredentials
	FailurePendingValidation
	FailureDenied
	FailureThrottled
	FailureUnreachable
)

// Message is the notice shown on the login page.
func (f Failure) Message() string {
	switch f {
	case FailureCredentials:
		return "Invalid email or password."
	case FailurePendingValidation:
		return "Your account is awaiting validation by an administrator. You will be able to sign in once it is approved."
	case FailureDenied:
		return "This account is not allowed to sign in."
	case FailureThrottled:
		return "Too many sign in attempts. Please wait a moment and try again."
	case FailureUnreachable:
		return "The server could not be reached. Please try again later."
	default:
		return "Sign in failed. Please try again."
	}
}

// Status is the HTTP status the login page is served with.
func (f Failure) Status() int {
	switch f {
	case FailureCredentials:
		return http.StatusUnauthorized
	case FailurePendingValidation, FailureDenied:
		return http.StatusForbidden
	case FailureThrottled:
		return http.StatusTooManyRequests
	case FailureUnreachable:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

// Classify maps a backend login error to a Failure.
func Classify(err error) Failure {
	if backend.PendingValidation(err) {
		return FailurePendingValidation
	}
	var se *backend.StatusError
	if !errors.As(err, &se) {
		return FailureUnreachable
	}
	switch se.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized:
		return FailureCredentials
	case http.StatusForbidden:
		return FailureDenied
	case http.StatusTooManyRequests:
		return FailureThrottled
	}
	if se.StatusCode >= 500 {
		return FailureUnreachable
	}
	return FailureUnknown
}

// LoginError wraps a rejected sign in with its classification.
type LoginError struct {
	Failure Failure
	Err     error
}

func (e *LoginError) Error() string { return "auth: login rejected: " + e.Err.Error() }

func (e *LoginError) Unwrap() error { return e.Err }

type loginForm struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required"`
}

type loginPageData struct {
	Form   loginForm
	Errors map[string]string
	Notice string
}

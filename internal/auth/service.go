package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/assocportal/portal/internal/shared"
)

// ErrEmptyToken is returned when the backend accepts credentials without
// issuing a token.
var ErrEmptyToken = errors.New("auth: backend returned an empty token")

// Service binds backend authentication to browser sessions.
type Service struct {
	backend  Authenticator
	sessions Sessions
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(backend Authenticator, sessions Sessions, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: backend, sessions: sessions, logger: logger}
}

// Login exchanges credentials for a token, stores it in sess under a new
// session id and starts a fresh permission cycle for it.
func (s *Service) Login(ctx context.Context, sess *shared.Session, email, password string) error {
	if sess == nil {
		return shared.ErrSessionMissing
	}
	result, err := s.backend.Login(ctx, email, password)
	if err != nil {
		return &LoginError{Failure: Classify(err), Err: err}
	}
	if result.Token == "" {
		return &LoginError{Failure: FailureUnknown, Err: ErrEmptyToken}
	}
	s.sessions.End(sess.ID)
	sess.Renew()
	sess.SetToken(result.Token)
	s.sessions.Begin(sess.ID, result.Token)
	return nil
}

// Logout revokes the backend token and drops the session permissions. The
// backend call is best effort; local state is always cleared.
func (s *Service) Logout(ctx context.Context, sess *shared.Session) {
	if sess == nil {
		return
	}
	if token := sess.Token(); token != "" {
		if err := s.backend.Logout(ctx, token); err != nil {
			s.logger.Warn("backend logout", slog.Any("error", err))
		}
	}
	s.sessions.End(sess.ID)
	sess.ClearToken()
}

// Refresh restarts permission resolution for the signed in session.
func (s *Service) Refresh(sess *shared.Session) error {
	if sess == nil || !sess.Authenticated() {
		return fmt.Errorf("auth: refresh: %w", shared.ErrSessionMissing)
	}
	if s.sessions.Refresh(sess.ID) == nil {
		s.sessions.Begin(sess.ID, sess.Token())
	}
	return nil
}

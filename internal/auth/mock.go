package auth

import (
	"context"
	"log/slog"

	"riskboard/domain/core"
	"riskboard/domain/session"
	"riskboard/internal/errors"
	"riskboard/internal/metrics"
	"riskboard/ports"
)

// The demo account accepted by the mock provider
const (
	DemoEmail    = "demo@example.com"
	DemoPassword = "demo123"
)

// MockProvider emulates an identity provider with local state only. Sign-in accepts
// the demo account; sign-up accepts any well-formed email and non-empty password.
type MockProvider struct {
	*observable
}

var _ ports.AuthProvider = (*MockProvider)(nil)

// NewMockProvider creates the provider, seeding the session from store when one was persisted
func NewMockProvider(ctx context.Context, store ports.CredentialStore, recorder metrics.Recorder, logger *slog.Logger) *MockProvider {
	logger = logger.With("component", "auth", "provider", "mock")
	return &MockProvider{observable: newObservable(ctx, store, recorder, logger)}
}

// SignIn accepts only the demo credential pair; the demo identity is the same on every call
func (p *MockProvider) SignIn(ctx context.Context, email, password string) (session.Session, error) {
	if normalizeEmail(email) != DemoEmail || password != DemoPassword {
		p.metrics.RecordAuthEvent(EventRejected)
		p.logger.Info("sign-in rejected")
		return session.Session{}, errors.InvalidCredential("Invalid email or password")
	}

	next := session.Session{Identity: core.StableID(DemoEmail)}
	p.commit(ctx, next)
	p.metrics.RecordAuthEvent(EventSignIn)
	p.logger.Info("signed in", "identity", next.Identity)
	return next, nil
}

// SignUp fabricates a fresh time-ordered identity for the given account
func (p *MockProvider) SignUp(ctx context.Context, email, password string) (session.Session, error) {
	if err := validateSignUp(email, password); err != nil {
		p.metrics.RecordAuthEvent(EventRejected)
		return session.Session{}, err
	}

	next := session.Session{Identity: core.NewID()}
	p.commit(ctx, next)
	p.metrics.RecordAuthEvent(EventSignUp)
	p.logger.Info("signed up", "identity", next.Identity)
	return next, nil
}

// SignOut clears the session; subscribers are notified even if already signed out
func (p *MockProvider) SignOut(ctx context.Context) error {
	p.commit(ctx, session.Session{})
	p.metrics.RecordAuthEvent(EventSignOut)
	p.logger.Info("signed out")
	return nil
}

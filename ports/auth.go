package ports

import (
	"context"

	"riskboard/domain/session"
)

// AuthProvider is the identity observer contract shared by the mock and remote providers
type AuthProvider interface {
	// Subscribe registers cb and calls it once with the current session before returning.
	// The returned function removes the registration and is safe to call more than once.
	Subscribe(cb session.Callback) (unsubscribe func())

	// SignIn authenticates an existing account
	SignIn(ctx context.Context, email, password string) (session.Session, error)

	// SignUp creates an account and signs it in
	SignUp(ctx context.Context, email, password string) (session.Session, error)

	// SignOut clears the current session
	SignOut(ctx context.Context) error

	// Current returns the session without subscribing
	Current() session.Session
}

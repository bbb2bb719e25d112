package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"riskboard/domain/core"
	"riskboard/domain/session"
	"riskboard/internal/errors"
	"riskboard/internal/metrics"
	"riskboard/ports"
)

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userDTO struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type errorDTO struct {
	Error string `json:"error"`
}

// RemoteProvider delegates credential checks to an identity service and keeps the
// same subscription and persistence behaviour as the mock provider.
type RemoteProvider struct {
	*observable
	baseURL string
	client  *http.Client
}

var _ ports.AuthProvider = (*RemoteProvider)(nil)

// NewRemoteProvider creates a provider for the identity service at baseURL
func NewRemoteProvider(ctx context.Context, baseURL string, client *http.Client, store ports.CredentialStore, recorder metrics.Recorder, logger *slog.Logger) *RemoteProvider {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	logger = logger.With("component", "auth", "provider", "remote")
	return &RemoteProvider{
		observable: newObservable(ctx, store, recorder, logger),
		baseURL:    baseURL,
		client:     client,
	}
}

// SignIn posts the credentials to /auth/signin
func (p *RemoteProvider) SignIn(ctx context.Context, email, password string) (session.Session, error) {
	id, err := p.post(ctx, "/auth/signin", authRequest{Email: normalizeEmail(email), Password: password})
	if err != nil {
		p.metrics.RecordAuthEvent(EventRejected)
		return session.Session{}, err
	}

	next := session.Session{Identity: id}
	p.commit(ctx, next)
	p.metrics.RecordAuthEvent(EventSignIn)
	p.logger.Info("signed in", "identity", next.Identity)
	return next, nil
}

// SignUp validates locally, then posts the credentials to /auth/signup
func (p *RemoteProvider) SignUp(ctx context.Context, email, password string) (session.Session, error) {
	if err := validateSignUp(email, password); err != nil {
		p.metrics.RecordAuthEvent(EventRejected)
		return session.Session{}, err
	}

	id, err := p.post(ctx, "/auth/signup", authRequest{Email: normalizeEmail(email), Password: password})
	if err != nil {
		p.metrics.RecordAuthEvent(EventRejected)
		return session.Session{}, err
	}

	next := session.Session{Identity: id}
	p.commit(ctx, next)
	p.metrics.RecordAuthEvent(EventSignUp)
	p.logger.Info("signed up", "identity", next.Identity)
	return next, nil
}

// SignOut tells the identity service, then clears the local session regardless of its answer
func (p *RemoteProvider) SignOut(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/auth/signout", nil)
	if err == nil {
		var resp *http.Response
		resp, err = p.client.Do(req)
		if err == nil {
			resp.Body.Close()
		}
	}
	if err != nil {
		p.logger.Warn("identity service sign-out failed", "error", err)
	}

	p.commit(ctx, session.Session{})
	p.metrics.RecordAuthEvent(EventSignOut)
	p.logger.Info("signed out")
	return nil
}

func (p *RemoteProvider) post(ctx context.Context, path string, body authRequest) (core.ID, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", errors.ExternalServiceError("identity", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.ExternalServiceError("identity", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return "", errors.InvalidCredential("Invalid email or password")
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusConflict:
		var dto errorDTO
		if json.Unmarshal(data, &dto) == nil && dto.Error != "" {
			return "", errors.InvalidInput(dto.Error)
		}
		return "", errors.InvalidInput("Invalid sign-up details")
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return "", errors.ExternalServiceError("identity", fmt.Errorf("status %d: %s", resp.StatusCode, string(data)))
	}

	var user userDTO
	if err := json.Unmarshal(data, &user); err != nil {
		return "", errors.ExternalServiceError("identity", fmt.Errorf("failed to parse response: %w", err))
	}
	id, err := core.ParseID(user.ID)
	if err != nil {
		return "", errors.ExternalServiceError("identity", fmt.Errorf("response carried no user id: %w", err))
	}
	return id, nil
}

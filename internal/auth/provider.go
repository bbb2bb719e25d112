package auth

import (
	"context"
	"fmt"
	"log/slog"

	"riskboard/internal/config"
	"riskboard/internal/metrics"
	"riskboard/ports"
)

// New builds the provider variant selected by configuration. Callers only ever see
// ports.AuthProvider.
func New(ctx context.Context, cfg config.AuthConfig, store ports.CredentialStore, recorder metrics.Recorder, logger *slog.Logger) (ports.AuthProvider, error) {
	switch cfg.Provider {
	case "mock", "":
		return NewMockProvider(ctx, store, recorder, logger), nil
	case "remote":
		if cfg.URL == "" {
			return nil, fmt.Errorf("remote auth provider requires AUTH_URL")
		}
		return NewRemoteProvider(ctx, cfg.URL, nil, store, recorder, logger), nil
	default:
		return nil, fmt.Errorf("unknown auth provider: %s", cfg.Provider)
	}
}

package ports

import (
	"context"

	"riskboard/domain/core"
)

// CredentialStore persists the identifier of the current session under a single key
type CredentialStore interface {
	// Load returns the persisted identifier, or an empty ID when nothing is stored
	Load(ctx context.Context) (core.ID, error)

	// Save replaces the persisted identifier
	Save(ctx context.Context, id core.ID) error

	// Clear removes the persisted identifier; clearing an empty store is not an error
	Clear(ctx context.Context) error
}

package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID is an opaque identifier naming a signed-in principal
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	// Falls back to v4 if v7 fails
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// StableID derives the same identifier for the same name on every call
func StableID(name string) ID {
	normalized := strings.ToLower(strings.TrimSpace(name))
	return ID(uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+normalized)).String())
}

// ParseID parses a persisted identifier
func ParseID(s string) (ID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("identifier cannot be empty")
	}
	return ID(strings.TrimSpace(s)), nil
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

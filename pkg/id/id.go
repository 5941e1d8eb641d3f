package id

import (
	"github.com/google/uuid"
	"github.com/rs/xid"
)

// GetUUID generates a new UUID.
// Used for provider idempotency keys.
func GetUUID() string {
	return uuid.NewString()
}

// GetXID generates a short, sortable unique id.
// Used for per-request correlation ids.
func GetXID() string {
	return xid.New().String()
}

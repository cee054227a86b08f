// Package idgen wraps google/uuid to mint unique identifiers. Its one
// caller is the orchestrator, which appends one to a request's loading key
// when deduplication is disabled, so that the session can never coalesce
// with another task. Task identifiers are not UUIDs (they come from a
// monotonic counter), and neither are loading keys while deduplication is
// on (they are a request fingerprint).
package idgen

import "github.com/google/uuid"

// New mints a new correlation identifier.
func New() string { return uuid.NewString() }

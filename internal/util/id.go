// Package util provides utility functions shared across the timer engine.
package util

import (
	"log/slog"

	"github.com/google/uuid"
)

// GenerateTimerID returns a timer identifier that is lexicographically
// sortable and monotonic with creation order. UUIDv7 embeds a millisecond
// timestamp in the high bits, so concurrently created IDs sort by creation
// time and never collide for the process lifetime.
func GenerateTimerID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the entropy source does; fall back to a
		// random UUID rather than aborting timer creation.
		slog.Warn("GenerateTimerID: UUIDv7 generation failed, falling back to random", "error", err)
		return uuid.NewString()
	}
	return id.String()
}

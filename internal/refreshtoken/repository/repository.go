// Package repository stores each identity's set of currently valid refresh tokens.
// A refresh token is honored only while its hash is in the set; rotation removes the
// presented hash and adds the new one as a single atomic step.
package repository

import (
	"context"
	"time"
)

// Repository persists refresh-token hashes per identity. Implementations must make Rotate
// atomic: when several callers rotate the same old hash concurrently, exactly one gets true.
type Repository interface {
	// Add inserts hash into userID's set.
	Add(ctx context.Context, userID, hash string, expiresAt time.Time) error
	// Rotate removes oldHash and adds newHash if, and only if, oldHash was present and
	// unexpired. Returns false (and changes nothing) otherwise.
	Rotate(ctx context.Context, userID, oldHash, newHash string, expiresAt time.Time) (bool, error)
	// Remove deletes exactly one hash. Returns whether it was present.
	Remove(ctx context.Context, userID, hash string) (bool, error)
	// Clear deletes the whole set and returns how many hashes it held.
	Clear(ctx context.Context, userID string) (int64, error)
	// Contains reports whether hash is present and unexpired.
	Contains(ctx context.Context, userID, hash string) (bool, error)
}

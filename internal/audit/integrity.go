package audit

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"accessguard/internal/audit/domain"
)

// IntegrityHash is the SHA-256 over the immutable fields of e. It is advisory evidence of
// tampering, not a signature: the stored hash lives next to the record it covers.
func IntegrityHash(e *domain.Event) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		e.ActorID,
		string(e.Action),
		e.EntityType,
		e.EntityID,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.Description,
	}, "|")))
	return hex.EncodeToString(sum[:])
}

// VerifyIntegrity recomputes the hash of e and compares it with the stored value.
func VerifyIntegrity(e *domain.Event) bool {
	if e == nil || e.IntegrityHash == "" {
		return false
	}
	want := IntegrityHash(e)
	return subtle.ConstantTimeCompare([]byte(want), []byte(e.IntegrityHash)) == 1
}

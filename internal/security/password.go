package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Argon2Params are the argon2id cost factors written into every new hash.
type Argon2Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Upper bounds on the cost parameters accepted from a stored hash. A hash outside them is
// treated as malformed and never evaluated.
const (
	MaxArgon2MemoryKiB   = 1 << 20 // 1 GiB
	MaxArgon2Iterations  = 32
	MaxArgon2Parallelism = 16
	maxArgon2KeyLength   = 256
)

// DefaultArgon2Params matches the config defaults (64 MiB, 2 passes, 1 lane).
var DefaultArgon2Params = Argon2Params{
	MemoryKiB:   64 * 1024,
	Iterations:  2,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// PasswordPolicy holds the complexity minimum, expiry and history rules.
type PasswordPolicy struct {
	MinLength    int
	MaxAge       time.Duration
	HistoryDepth int
}

// DefaultPasswordPolicy: 8 characters, 90 days, last 5 hashes.
var DefaultPasswordPolicy = PasswordPolicy{
	MinLength:    8,
	MaxAge:       90 * 24 * time.Hour,
	HistoryDepth: 5,
}

// PasswordEngine hashes, verifies and scores passwords. Callers must not log or
// persist plaintext passwords. Hashing is CPU and memory heavy; never call it while
// holding a lock that guards shared state.
type PasswordEngine struct {
	params Argon2Params
	policy PasswordPolicy
	now    func() time.Time
}

// NewPasswordEngine returns an engine with the given cost factors and policy.
// Zero fields fall back to the defaults.
func NewPasswordEngine(params Argon2Params, policy PasswordPolicy) *PasswordEngine {
	if params.MemoryKiB == 0 {
		params.MemoryKiB = DefaultArgon2Params.MemoryKiB
	}
	if params.Iterations == 0 {
		params.Iterations = DefaultArgon2Params.Iterations
	}
	if params.Parallelism == 0 {
		params.Parallelism = DefaultArgon2Params.Parallelism
	}
	if params.SaltLength == 0 {
		params.SaltLength = DefaultArgon2Params.SaltLength
	}
	if params.KeyLength == 0 {
		params.KeyLength = DefaultArgon2Params.KeyLength
	}
	if policy.MinLength <= 0 {
		policy.MinLength = DefaultPasswordPolicy.MinLength
	}
	if policy.MaxAge <= 0 {
		policy.MaxAge = DefaultPasswordPolicy.MaxAge
	}
	if policy.HistoryDepth <= 0 {
		policy.HistoryDepth = DefaultPasswordPolicy.HistoryDepth
	}
	return &PasswordEngine{params: params, policy: policy, now: time.Now}
}

// Policy returns the engine's password policy.
func (e *PasswordEngine) Policy() PasswordPolicy { return e.policy }

// Hash derives an argon2id key and encodes it in PHC form:
// $argon2id$v=19$m=<KiB>,t=<iterations>,p=<parallelism>$<salt>$<key>.
func (e *PasswordEngine) Hash(plaintext string) (string, error) {
	salt := make([]byte, e.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password salt: %w", err)
	}
	key := argon2.IDKey([]byte(plaintext), salt, e.params.Iterations, e.params.MemoryKiB, e.params.Parallelism, e.params.KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, e.params.MemoryKiB, e.params.Iterations, e.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plaintext matches hash. The cost factors are read from the
// stored hash, so hashes written under older parameters keep verifying. Legacy bcrypt
// hashes are accepted. A malformed hash never matches.
func (e *PasswordEngine) Verify(hash, plaintext string) bool {
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		p, salt, key, err := decodeArgon2(hash)
		if err != nil {
			return false
		}
		other := argon2.IDKey([]byte(plaintext), salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLength)
		return subtle.ConstantTimeCompare(key, other) == 1
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
	default:
		return false
	}
}

// NeedsRehash reports whether hash was produced with different parameters than the
// engine's current ones (or by a legacy algorithm).
func (e *PasswordEngine) NeedsRehash(hash string) bool {
	p, _, key, err := decodeArgon2(hash)
	if err != nil {
		return true
	}
	return p.MemoryKiB != e.params.MemoryKiB || p.Iterations != e.params.Iterations ||
		p.Parallelism != e.params.Parallelism || uint32(len(key)) != e.params.KeyLength
}

// IsExpired reports whether a password changed at changedAt has expired. An explicit
// expiry wins; otherwise the policy's max age applies.
func (e *PasswordEngine) IsExpired(changedAt time.Time, explicitExpiry *time.Time) bool {
	now := e.now()
	if explicitExpiry != nil {
		return !now.Before(*explicitExpiry)
	}
	if changedAt.IsZero() {
		return false
	}
	return !now.Before(changedAt.Add(e.policy.MaxAge))
}

// InHistory reports whether plaintext matches any of the most recent HistoryDepth hashes.
// history is ordered newest first.
func (e *PasswordEngine) InHistory(plaintext string, history []string) bool {
	n := len(history)
	if n > e.policy.HistoryDepth {
		n = e.policy.HistoryDepth
	}
	for _, h := range history[:n] {
		if e.Verify(h, plaintext) {
			return true
		}
	}
	return false
}

// PushHistory returns history with hash prepended, truncated to depth entries.
// The input slice is not modified.
func PushHistory(history []string, hash string, depth int) []string {
	if depth <= 0 {
		return nil
	}
	out := make([]string, 0, depth)
	out = append(out, hash)
	for _, h := range history {
		if len(out) == depth {
			break
		}
		out = append(out, h)
	}
	return out
}

func decodeArgon2(encoded string) (p Argon2Params, salt, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, nil, fmt.Errorf("argon2: malformed hash")
	}
	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, err
	}
	if version != argon2.Version {
		return p, nil, nil, fmt.Errorf("argon2: incompatible version %d", version)
	}
	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemoryKiB, &p.Iterations, &p.Parallelism); err != nil {
		return p, nil, nil, err
	}
	if p.MemoryKiB == 0 || p.Iterations == 0 || p.Parallelism == 0 {
		return p, nil, nil, fmt.Errorf("argon2: zero cost parameter")
	}
	if p.MemoryKiB > MaxArgon2MemoryKiB || p.Iterations > MaxArgon2Iterations || p.Parallelism > MaxArgon2Parallelism {
		return p, nil, nil, fmt.Errorf("argon2: cost parameter out of range")
	}
	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return p, nil, nil, err
	}
	if key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return p, nil, nil, err
	}
	if len(key) == 0 || len(key) > maxArgon2KeyLength {
		return p, nil, nil, fmt.Errorf("argon2: bad key length %d", len(key))
	}
	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))
	return p, salt, key, nil
}

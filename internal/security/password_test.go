package security

import (
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestPasswordEngine_HashAndVerify(t *testing.T) {
	e := NewTestPasswordEngine()
	hash, err := e.Hash("secret123")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=64,t=1,p=1$") {
		t.Errorf("hash = %q, want argon2id PHC prefix", hash)
	}
	if !e.Verify(hash, "secret123") {
		t.Error("Verify should accept the correct password")
	}
	if e.Verify(hash, "wrong") {
		t.Error("Verify should reject a wrong password")
	}
	other, _ := e.Hash("secret123")
	if other == hash {
		t.Error("two hashes of the same password should differ by salt")
	}
}

func TestPasswordEngine_VerifyOldParameters(t *testing.T) {
	old := NewPasswordEngine(Argon2Params{MemoryKiB: 32, Iterations: 1, Parallelism: 1}, DefaultPasswordPolicy)
	hash, err := old.Hash("secret123")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	current := NewTestPasswordEngine()
	if !current.Verify(hash, "secret123") {
		t.Error("hash written under older parameters should still verify")
	}
	if !current.NeedsRehash(hash) {
		t.Error("NeedsRehash should report a parameter change")
	}
	fresh, _ := current.Hash("secret123")
	if current.NeedsRehash(fresh) {
		t.Error("NeedsRehash should be false for a current hash")
	}
}

func TestPasswordEngine_VerifyLegacyBcrypt(t *testing.T) {
	b, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	e := NewTestPasswordEngine()
	if !e.Verify(string(b), "secret123") {
		t.Error("Verify should accept a legacy bcrypt hash")
	}
	if e.Verify(string(b), "wrong") {
		t.Error("Verify should reject a wrong password against bcrypt")
	}
	if !e.NeedsRehash(string(b)) {
		t.Error("bcrypt hashes should need rehash")
	}
}

func TestPasswordEngine_VerifyMalformed(t *testing.T) {
	e := NewTestPasswordEngine()
	for _, h := range []string{
		"",
		"plain",
		"$argon2id$",
		"$argon2id$v=19$m=64,t=1,p=1$salt",
		"$argon2id$v=18$m=64,t=1,p=1$c2FsdHNhbHQ$a2V5",
		"$argon2id$v=19$m=0,t=0,p=0$c2FsdHNhbHQ$a2V5",
		"$argon2id$v=19$m=64,t=1,p=1$!!!$a2V5",
		"$argon2id$v=19$m=64,t=1,p=1$c2FsdHNhbHQ$",
		"$argon2id$v=19$m=4000000000,t=1,p=1$c2FsdHNhbHQ$a2V5",
		"$argon2id$v=19$m=64,t=4000000000,p=1$c2FsdHNhbHQ$a2V5",
		"$argon2id$v=19$m=64,t=1,p=255$c2FsdHNhbHQ$a2V5",
		"$2b$invalid",
	} {
		if e.Verify(h, "secret123") {
			t.Errorf("Verify(%q) = true, want false", h)
		}
	}
}

func TestPasswordEngine_IsExpired(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	e := NewTestPasswordEngine()
	e.now = func() time.Time { return now }

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	tests := []struct {
		name      string
		changedAt time.Time
		explicit  *time.Time
		want      bool
	}{
		{"recent change", now.Add(-10 * 24 * time.Hour), nil, false},
		{"older than max age", now.Add(-91 * 24 * time.Hour), nil, true},
		{"exactly max age", now.Add(-90 * 24 * time.Hour), nil, true},
		{"explicit expiry passed wins", now, &past, true},
		{"explicit expiry ahead wins", now.Add(-200 * 24 * time.Hour), &future, false},
		{"never changed", time.Time{}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.IsExpired(tt.changedAt, tt.explicit); got != tt.want {
				t.Errorf("IsExpired = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPasswordEngine_History(t *testing.T) {
	e := NewPasswordEngine(Argon2Params{MemoryKiB: 64, Iterations: 1, Parallelism: 1}, PasswordPolicy{HistoryDepth: 2})
	var history []string
	for _, pw := range []string{"first-Pass1", "second-Pass1", "third-Pass1"} {
		h, err := e.Hash(pw)
		if err != nil {
			t.Fatalf("Hash: %v", err)
		}
		history = PushHistory(history, h, 2)
	}
	if len(history) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(history))
	}
	if !e.InHistory("third-Pass1", history) || !e.InHistory("second-Pass1", history) {
		t.Error("recent passwords should be in history")
	}
	if e.InHistory("first-Pass1", history) {
		t.Error("password beyond history depth should not match")
	}
}

func TestPushHistory_DoesNotMutateInput(t *testing.T) {
	in := []string{"b", "c"}
	out := PushHistory(in, "a", 2)
	if strings.Join(out, ",") != "a,b" {
		t.Errorf("PushHistory = %v, want [a b]", out)
	}
	if strings.Join(in, ",") != "b,c" {
		t.Errorf("input mutated: %v", in)
	}
	if PushHistory(in, "a", 0) != nil {
		t.Error("depth 0 should keep no history")
	}
}

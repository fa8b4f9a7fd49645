package security

import (
	"fmt"
	"strings"
	"unicode"
)

// Strength is the tier a complexity score falls into.
type Strength string

const (
	StrengthVeryWeak Strength = "very-weak"
	StrengthWeak     Strength = "weak"
	StrengthFair     Strength = "fair"
	StrengthGood     Strength = "good"
	StrengthStrong   Strength = "strong"
)

// MinValidScore is the lowest score a password may have and still be accepted.
const MinValidScore = 60

// maxCommonScore keeps a password containing a denylisted word out of the strong tier.
const maxCommonScore = 79

// UserInfo carries the personal details a password must not be built from.
type UserInfo struct {
	Email     string
	FirstName string
	LastName  string
}

// ComplexityResult is the outcome of ScoreComplexity.
type ComplexityResult struct {
	Score    int
	Strength Strength
	Feedback []string
	IsValid  bool
}

var commonPasswords = []string{
	"password", "passw0rd", "123456", "12345678", "123456789", "qwerty", "qwertyuiop",
	"abc123", "111111", "000000", "654321", "letmein", "welcome", "monkey", "dragon",
	"football", "baseball", "iloveyou", "admin", "login", "master", "sunshine",
	"princess", "trustno1", "shadow", "superman", "starwars", "whatever", "freedom",
	"changeme", "secret", "access",
}

// ScoreComplexity scores plaintext on a 0-100 scale. info may be nil.
func (e *PasswordEngine) ScoreComplexity(plaintext string, info *UserInfo) ComplexityResult {
	var (
		score      int
		feedback   []string
		violations int
	)
	length := len([]rune(plaintext))

	var upper, lower, digit, special int
	for _, r := range plaintext {
		switch {
		case unicode.IsUpper(r):
			upper++
		case unicode.IsLower(r):
			lower++
		case unicode.IsDigit(r):
			digit++
		case !unicode.IsSpace(r):
			special++
		}
	}

	if length >= e.policy.MinLength {
		score += 20
	} else {
		violations++
		feedback = append(feedback, fmt.Sprintf("Password must be at least %d characters", e.policy.MinLength))
	}
	classes := []struct {
		count int
		msg   string
	}{
		{upper, "Add an uppercase letter"},
		{lower, "Add a lowercase letter"},
		{digit, "Add a digit"},
		{special, "Add a special character"},
	}
	repeated := 0
	for _, c := range classes {
		if c.count > 0 {
			score += 15
		} else {
			violations++
			feedback = append(feedback, c.msg)
		}
		if c.count >= 2 {
			repeated++
		}
	}
	if length >= 12 {
		score += 10
	}
	if length >= 16 {
		score += 10
	}
	if repeated >= 3 {
		score += 5
	}

	lowered := strings.ToLower(plaintext)
	common := false
	for _, w := range commonPasswords {
		if strings.Contains(lowered, w) {
			common = true
			break
		}
	}
	if common {
		score -= 20
		feedback = append(feedback, "Password contains a common password")
	}

	if info != nil {
		if containsFragment(lowered, emailFragments(info.Email)) {
			score -= 15
			feedback = append(feedback, "Password must not contain your email address")
		}
		if containsFragment(lowered, []string{info.FirstName}) {
			score -= 10
			feedback = append(feedback, "Password must not contain your first name")
		}
		if containsFragment(lowered, []string{info.LastName}) {
			score -= 10
			feedback = append(feedback, "Password must not contain your last name")
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	if common && score > maxCommonScore {
		score = maxCommonScore
	}
	if score < MinValidScore && violations == 0 {
		feedback = append(feedback, "Use a longer password with more varied characters")
	}

	return ComplexityResult{
		Score:    score,
		Strength: StrengthFor(score),
		Feedback: feedback,
		IsValid:  violations == 0 && score >= MinValidScore,
	}
}

// StrengthFor maps a score to its tier.
func StrengthFor(score int) Strength {
	switch {
	case score < 20:
		return StrengthVeryWeak
	case score < 40:
		return StrengthWeak
	case score < 60:
		return StrengthFair
	case score < 80:
		return StrengthGood
	default:
		return StrengthStrong
	}
}

func emailFragments(email string) []string {
	local, _, _ := strings.Cut(email, "@")
	frags := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	return append(frags, local)
}

// containsFragment reports whether s contains any fragment of at least 3 characters.
func containsFragment(s string, frags []string) bool {
	for _, f := range frags {
		f = strings.ToLower(strings.TrimSpace(f))
		if len([]rune(f)) < 3 {
			continue
		}
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}

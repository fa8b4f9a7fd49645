// Package domain defines threats, their severity and alert thresholds, and the per-source
// accumulation the monitor keeps.
package domain

import "time"

// ThreatType classifies a reported threat.
type ThreatType string

const (
	TypeBruteForce          ThreatType = "brute_force"
	TypeSQLInjection        ThreatType = "sql_injection"
	TypeXSS                 ThreatType = "xss_attempt"
	TypePathTraversal       ThreatType = "path_traversal"
	TypeSuspiciousActivity  ThreatType = "suspicious_activity"
	TypeRateLimitExceeded   ThreatType = "rate_limit_exceeded"
	TypeUnauthorizedAccess  ThreatType = "unauthorized_access"
	TypeBreachAttempt       ThreatType = "breach_attempt"
	TypeMaliciousUpload     ThreatType = "malicious_upload"
	TypePrivilegeEscalation ThreatType = "privilege_escalation"
)

// Severity ranks a threat.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is one of the four severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

var severityByType = map[ThreatType]Severity{
	TypeSQLInjection:        SeverityCritical,
	TypeBreachAttempt:       SeverityCritical,
	TypePrivilegeEscalation: SeverityCritical,
	TypeXSS:                 SeverityHigh,
	TypePathTraversal:       SeverityHigh,
	TypeMaliciousUpload:     SeverityHigh,
	TypeUnauthorizedAccess:  SeverityHigh,
	TypeBruteForce:          SeverityMedium,
	TypeSuspiciousActivity:  SeverityMedium,
}

// DefaultThreshold applies to types without their own alert threshold.
const DefaultThreshold = 10

var thresholdByType = map[ThreatType]int{
	TypeBruteForce:          5,
	TypeSQLInjection:        1,
	TypeXSS:                 1,
	TypeBreachAttempt:       1,
	TypePrivilegeEscalation: 1,
	TypeRateLimitExceeded:   20,
	TypeSuspiciousActivity:  10,
}

// SeverityFor returns the fixed severity of t; unlisted types are low.
func SeverityFor(t ThreatType) Severity {
	if s, ok := severityByType[t]; ok {
		return s
	}
	return SeverityLow
}

// IsCriticalType reports whether t belongs to the critical class.
func IsCriticalType(t ThreatType) bool {
	return SeverityFor(t) == SeverityCritical
}

// Threshold is the per-source count of t at which an escalation fires.
func Threshold(t ThreatType) int {
	if n, ok := thresholdByType[t]; ok {
		return n
	}
	return DefaultThreshold
}

// Threat is one reported security event.
type Threat struct {
	ID          string         `json:"id"`
	Type        ThreatType     `json:"type"`
	Severity    Severity       `json:"severity"`
	Source      string         `json:"source"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Resolved    bool           `json:"resolved"`
	ResolvedAt  *time.Time     `json:"resolvedAt,omitempty"`
	ResolvedBy  string         `json:"resolvedBy,omitempty"`
}

// Clone returns a copy that shares no mutable state with t. Metadata is copied one level deep.
func (t *Threat) Clone() *Threat {
	if t == nil {
		return nil
	}
	c := *t
	if t.Metadata != nil {
		c.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	if t.ResolvedAt != nil {
		at := *t.ResolvedAt
		c.ResolvedAt = &at
	}
	return &c
}

// SourceRecord accumulates every threat reported against one source (usually an IP).
type SourceRecord struct {
	Source    string             `json:"source"`
	Count     int                `json:"count"`
	FirstSeen time.Time          `json:"firstSeen"`
	LastSeen  time.Time          `json:"lastSeen"`
	Types     map[ThreatType]int `json:"types"`
	// Critical is set once the source triggers a critical-class type. An explicit critical
	// severity on another type does not set it.
	Critical bool `json:"critical"`
}

// Observe folds one threat into the record and returns the running count for its type.
func (r *SourceRecord) Observe(t *Threat) int {
	if r.Types == nil {
		r.Types = make(map[ThreatType]int)
	}
	if r.Count == 0 || t.Timestamp.Before(r.FirstSeen) {
		r.FirstSeen = t.Timestamp
	}
	if t.Timestamp.After(r.LastSeen) {
		r.LastSeen = t.Timestamp
	}
	r.Count++
	r.Types[t.Type]++
	if IsCriticalType(t.Type) {
		r.Critical = true
	}
	return r.Types[t.Type]
}

// Clone returns a deep copy of r.
func (r *SourceRecord) Clone() *SourceRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Types = make(map[ThreatType]int, len(r.Types))
	for k, v := range r.Types {
		c.Types[k] = v
	}
	return &c
}

package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Action is what an audit event records.
type Action string

const (
	ActionCreate          Action = "create"
	ActionRead            Action = "read"
	ActionUpdate          Action = "update"
	ActionDelete          Action = "delete"
	ActionRegister        Action = "register"
	ActionLoginSuccess    Action = "login_success"
	ActionLoginFailed     Action = "login_failed"
	ActionLogout          Action = "logout"
	ActionPasswordChanged Action = "password_changed"
	ActionAccountLocked   Action = "account_locked"
	ActionStatusChanged   Action = "status_changed"
	ActionArchive         Action = "archive"
	ActionRestore         Action = "restore"
	ActionExport          Action = "export"
	ActionSessionEnded    Action = "session_ended"
	ActionThreatReported  Action = "threat_reported"
	ActionThreatResolved  Action = "threat_resolved"
	ActionRolesReloaded   Action = "roles_reloaded"
	ActionAuditPurged     Action = "audit_purged"
)

// Entity types recorded by the core itself. CRUD callers supply their own.
const (
	EntityIdentity = "identity"
	EntitySession  = "session"
	EntityThreat   = "security_threat"
	EntityRoles    = "role_table"
	EntityAudit    = "audit_event"
)

// Event is one append-only audit record. ActorID is empty for unauthenticated or system actions.
type Event struct {
	ID            string         `json:"id"`
	Action        Action         `json:"action"`
	EntityType    string         `json:"entity_type"`
	EntityID      string         `json:"entity_id"`
	ActorID       string         `json:"actor_id,omitempty"`
	ActorEmail    string         `json:"actor_email,omitempty"`
	IPAddress     string         `json:"ip_address,omitempty"`
	UserAgent     string         `json:"user_agent,omitempty"`
	Description   string         `json:"description,omitempty"`
	Before        map[string]any `json:"before,omitempty"`
	After         map[string]any `json:"after,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	IntegrityHash string         `json:"integrity_hash"`
}

// CanonicalEntityID trims id and, when it is a UUID, returns its lower-case hyphenated form so
// equal ids always compare equal.
func CanonicalEntityID(id string) string {
	id = strings.TrimSpace(id)
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return id
}

// Counts aggregates events over a window.
type Counts struct {
	Total        int            `json:"total"`
	ByAction     map[string]int `json:"by_action"`
	ByEntityType map[string]int `json:"by_entity_type"`
	ByActor      map[string]int `json:"by_actor"`
	// ByDay is keyed by UTC date, YYYY-MM-DD.
	ByDay map[string]int `json:"by_day"`
}

// NewCounts returns Counts with every map allocated.
func NewCounts() Counts {
	return Counts{
		ByAction:     make(map[string]int),
		ByEntityType: make(map[string]int),
		ByActor:      make(map[string]int),
		ByDay:        make(map[string]int),
	}
}

// Add folds e into c.
func (c *Counts) Add(e *Event) {
	c.Total++
	c.ByAction[string(e.Action)]++
	c.ByEntityType[e.EntityType]++
	actor := e.ActorID
	if actor == "" {
		actor = SystemActor
	}
	c.ByActor[actor]++
	c.ByDay[e.Timestamp.UTC().Format(DayLayout)]++
}

// SystemActor labels events with no authenticated actor in aggregates.
const SystemActor = "_system"

// DayLayout is the date format of daily histogram keys.
const DayLayout = "2006-01-02"

package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"accessguard/internal/audit"
	auditdomain "accessguard/internal/audit/domain"
	identitydomain "accessguard/internal/identity/domain"
	identityrepo "accessguard/internal/identity/repository"
	"accessguard/internal/identity/service"
	"accessguard/internal/monitor"
	threatdomain "accessguard/internal/monitor/domain"
	"accessguard/internal/platform/apperr"
	"accessguard/internal/platform/rbac"
)

// defaultListLimit caps list RPCs that do not ask for a limit.
const defaultListLimit = 100

// handlers implements every RPC over the core components.
type handlers struct {
	auth       *service.AuthService
	monitor    *monitor.Monitor
	trail      *audit.Trail
	roles      *rbac.Registry
	rolesFile  string
	identities identityrepo.Repository
	now        func() time.Time
}

func (h *handlers) sessionService() rpcService {
	return rpcService{name: sessionServiceName, methods: map[string]unaryFunc{
		"ListSessions":  h.listSessions,
		"RevokeSession": h.revokeSession,
	}}
}

// listSessions lists the caller's sessions. Holders of sessions:manage may name another
// identity.
func (h *handlers) listSessions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	target := argsOf(req).str("identity_id")
	if target == "" {
		target = p.IdentityID
	}
	if target != p.IdentityID && !h.auth.CheckPermission(p.Role, []string{rbac.PermSessionsManage}, true) {
		return nil, &apperr.PermissionError{Required: []string{rbac.PermSessionsManage}}
	}
	list, err := h.auth.ListSessions(ctx, target)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(list))
	for _, s := range list {
		out = append(out, sessionView(s, p.SessionID))
	}
	return respond(map[string]any{"sessions": out})
}

func (h *handlers) revokeSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	id := argsOf(req).str("session_id")
	if id == "" {
		return nil, apperr.Validation("session_id is required")
	}
	if err := h.auth.RevokeSession(ctx, p, id); err != nil {
		return nil, err
	}
	return respond(map[string]any{"ok": true})
}

func (h *handlers) securityService() rpcService {
	return rpcService{name: securityServiceName, methods: map[string]unaryFunc{
		"ReportThreat":      h.reportThreat,
		"ResolveThreat":     h.resolveThreat,
		"GetThreatMetrics":  h.threatMetrics,
		"ListActiveThreats": h.activeThreats,
		"ShouldBlock":       h.shouldBlock,
	}}
}

func (h *handlers) reportThreat(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	a := argsOf(req)
	t, err := h.monitor.Report(ctx, monitor.ThreatReport{
		Type:        threatdomain.ThreatType(a.str("type")),
		Source:      a.str("source"),
		Description: a.str("description"),
		Metadata:    a.object("metadata"),
		Severity:    threatdomain.Severity(a.str("severity")),
	})
	if err != nil {
		return nil, err
	}
	return respond(map[string]any{"threat": t})
}

func (h *handlers) resolveThreat(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	id := argsOf(req).str("threat_id")
	if id == "" {
		return nil, apperr.Validation("threat_id is required")
	}
	ok, err := h.monitor.Resolve(ctx, id, p.IdentityID)
	if err != nil {
		return nil, err
	}
	if !ok {
		if h.monitor.Get(id) == nil {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("%w: threat already resolved", apperr.ErrConflict)
	}
	return respond(map[string]any{"threat": h.monitor.Get(id)})
}

func (h *handlers) threatMetrics(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	m, err := h.monitor.Metrics(monitor.Timeframe(argsOf(req).str("timeframe")))
	if err != nil {
		return nil, err
	}
	return respond(map[string]any{"metrics": m})
}

func (h *handlers) activeThreats(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	limit, err := argsOf(req).integer("limit")
	if err != nil {
		return nil, err
	}
	list := h.monitor.Active()
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return respond(map[string]any{"threats": list})
}

func (h *handlers) shouldBlock(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	source := argsOf(req).str("source")
	if source == "" {
		return nil, apperr.Validation("source is required")
	}
	out := map[string]any{"source": source, "block": h.monitor.ShouldBlock(ctx, source)}
	if rec := h.monitor.Source(source); rec != nil {
		out["count"] = rec.Count
		out["critical"] = rec.Critical
		out["last_seen"] = rec.LastSeen.UTC().Format(time.RFC3339)
	}
	return respond(out)
}

func (h *handlers) auditService() rpcService {
	return rpcService{name: auditServiceName, methods: map[string]unaryFunc{
		"ListAuditEvents":     h.listAuditEvents,
		"GetComplianceReport": h.complianceReport,
		"RecordEvent":         h.recordEvent,
		"PurgeAuditEvents":    h.purgeAuditEvents,
	}}
}

// listAuditEvents queries by entity, by actor or by time range, in that order of preference.
func (h *handlers) listAuditEvents(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	a := argsOf(req)
	limit, err := a.integer("limit")
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	var events []*auditdomain.Event
	switch {
	case a.str("entity_type") != "" && a.str("entity_id") != "":
		events, err = h.trail.ByEntity(ctx, a.str("entity_type"), a.str("entity_id"), limit)
	case a.str("actor_id") != "":
		events, err = h.trail.ByActor(ctx, a.str("actor_id"), limit)
	default:
		now := h.now().UTC()
		var from, to time.Time
		if from, err = a.time("from", now.Add(-24*time.Hour)); err != nil {
			return nil, err
		}
		if to, err = a.time("to", now); err != nil {
			return nil, err
		}
		events, err = h.trail.ByTimeRange(ctx, from, to, limit)
	}
	if err != nil {
		return nil, err
	}
	return respond(map[string]any{"events": events})
}

func (h *handlers) complianceReport(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	a := argsOf(req)
	now := h.now().UTC()
	from, err := a.time("from", now.AddDate(0, 0, -30))
	if err != nil {
		return nil, err
	}
	to, err := a.time("to", now)
	if err != nil {
		return nil, err
	}
	report, err := h.trail.ComplianceReport(ctx, from, to)
	if errors.Is(err, audit.ErrEmptyRange) {
		return nil, apperr.Validation("from must be before to")
	}
	if err != nil {
		return nil, err
	}
	return respond(map[string]any{"report": report})
}

// recordEvent accepts an audit event from a collaborating module. The actor is always the
// caller; the write is fire-and-forget.
func (h *handlers) recordEvent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	a := argsOf(req)
	if a.str("action") == "" || a.str("entity_type") == "" {
		return nil, apperr.Validation("action and entity_type are required")
	}
	h.auth.Audit(ctx, auditdomain.Event{
		Action:      auditdomain.Action(a.str("action")),
		EntityType:  a.str("entity_type"),
		EntityID:    a.str("entity_id"),
		ActorID:     p.IdentityID,
		ActorEmail:  p.Email,
		IPAddress:   a.str("ip_address"),
		UserAgent:   a.str("user_agent"),
		Description: a.str("description"),
		Before:      a.object("before"),
		After:       a.object("after"),
		Metadata:    a.object("metadata"),
	})
	return respond(map[string]any{"accepted": true})
}

func (h *handlers) purgeAuditEvents(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	days, err := argsOf(req).integer("days")
	if err != nil {
		return nil, err
	}
	n, err := h.trail.PurgeOlderThan(ctx, days, p.IdentityID)
	if errors.Is(err, audit.ErrInvalidRetention) {
		return nil, apperr.Validation("days must be positive")
	}
	if err != nil {
		return nil, err
	}
	return respond(map[string]any{"removed": n})
}

func (h *handlers) adminService() rpcService {
	return rpcService{name: adminServiceName, methods: map[string]unaryFunc{
		"UpdateIdentityStatus": h.updateIdentityStatus,
		"UpdateIdentityRole":   h.updateIdentityRole,
		"ReloadRoles":          h.reloadRoles,
		"CheckPermission":      h.checkPermission,
		"GetIdentityStats":     h.identityStats,
	}}
}

func actorOf(p *service.Principal) service.Actor {
	return service.Actor{ID: p.IdentityID, Email: p.Email, Role: p.Role}
}

func (h *handlers) updateIdentityStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	a := argsOf(req)
	if a.str("identity_id") == p.IdentityID {
		return nil, apperr.Validation("cannot change your own status")
	}
	prof, err := h.auth.UpdateStatus(ctx, a.str("identity_id"), identitydomain.Status(a.str("status")), actorOf(p))
	if err != nil {
		return nil, err
	}
	return respond(map[string]any{"identity": profileView(prof)})
}

func (h *handlers) updateIdentityRole(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	a := argsOf(req)
	prof, err := h.auth.UpdateRole(ctx, a.str("identity_id"), rbac.Role(a.str("role")), actorOf(p))
	if err != nil {
		return nil, err
	}
	return respond(map[string]any{"identity": profileView(prof)})
}

// reloadRoles rereads the role table. A table that fails validation leaves the current one in
// force.
func (h *handlers) reloadRoles(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := ReloadRoles(ctx, h.roles, h.rolesFile, h.trail, p.IdentityID); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	roles := h.roles.Roles()
	names := make([]any, 0, len(roles))
	for _, r := range roles {
		names = append(names, string(r))
	}
	return respond(map[string]any{"roles": names})
}

// ReloadRoles loads the role table from file (the built-in table when file is empty) into reg
// and audits the reload. It backs both the RPC and the SIGHUP handler.
func ReloadRoles(ctx context.Context, reg *rbac.Registry, file string, rec audit.Recorder, actorID string) error {
	defs, err := rbac.Load(file)
	if err != nil {
		return err
	}
	if err := reg.Reload(defs); err != nil {
		return err
	}
	log.Printf("rbac: reloaded %d roles from %q", len(defs), file)
	if rec != nil {
		rec.Record(ctx, auditdomain.Event{
			Action:      auditdomain.ActionRolesReloaded,
			EntityType:  auditdomain.EntityRoles,
			EntityID:    "roles",
			ActorID:     actorID,
			Description: fmt.Sprintf("reloaded %d roles", len(defs)),
			Metadata:    map[string]any{"file": file},
		})
	}
	return nil
}

func (h *handlers) checkPermission(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	a := argsOf(req)
	role := rbac.Role(a.str("role"))
	perms := a.strings("permissions")
	if role == "" || len(perms) == 0 {
		return nil, apperr.Validation("role and permissions are required")
	}
	effective := h.roles.EffectivePermissions(role)
	list := make([]any, 0, len(effective))
	for _, p := range effective {
		list = append(list, p)
	}
	return respond(map[string]any{
		"allowed":     h.auth.CheckPermission(role, perms, a.boolean("require_all")),
		"permissions": list,
	})
}

func (h *handlers) identityStats(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	counts, err := h.identities.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(counts))
	total := 0
	for s, n := range counts {
		out[string(s)] = n
		total += n
	}
	return respond(map[string]any{"by_status": out, "total": total})
}

package audit

import "strings"

// ActionResource holds action and resource derived from a gRPC full method name.
type ActionResource struct {
	Action   string
	Resource string
}

// Method overrides for RPCs whose names do not follow the verb-prefix convention.
const (
	adminUpdateStatus  = "/accessguard.admin.v1.AdminService/UpdateIdentityStatus"
	adminReloadRoles   = "/accessguard.admin.v1.AdminService/ReloadRoles"
	sessionRevoke      = "/accessguard.session.v1.SessionService/RevokeSession"
	securityResolve    = "/accessguard.security.v1.SecurityService/ResolveThreat"
	auditPurge         = "/accessguard.audit.v1.AuditService/PurgeAuditEvents"
	authChangePassword = "/accessguard.auth.v1.AuthService/ChangePassword"
)

// ParseFullMethod returns action and resource for a gRPC full method (e.g. /accessguard.auth.v1.AuthService/Login).
// Action is a verb: get, list, create, update, delete, or a lowercase method name for others.
// Resource is derived from the service name (e.g. SessionService -> session).
func ParseFullMethod(fullMethod string) ActionResource {
	switch fullMethod {
	case adminUpdateStatus:
		return ActionResource{Action: "status_changed", Resource: "identity"}
	case adminReloadRoles:
		return ActionResource{Action: "roles_reloaded", Resource: "role_table"}
	case sessionRevoke:
		return ActionResource{Action: "session_ended", Resource: "session"}
	case securityResolve:
		return ActionResource{Action: "threat_resolved", Resource: "security_threat"}
	case auditPurge:
		return ActionResource{Action: "audit_purged", Resource: "audit_event"}
	case authChangePassword:
		return ActionResource{Action: "password_changed", Resource: "identity"}
	}
	// fullMethod format: /accessguard.package.v1.ServiceName/MethodName
	slash := strings.LastIndex(fullMethod, "/")
	if slash < 0 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	method := fullMethod[slash+1:]
	beforeSlash := fullMethod[:slash]
	dot := strings.LastIndex(beforeSlash, ".")
	if dot < 0 {
		return ActionResource{Action: strings.ToLower(method), Resource: "unknown"}
	}
	serviceName := beforeSlash[dot+1:]
	resource := serviceToResource(serviceName)
	action := methodToAction(method)
	return ActionResource{Action: action, Resource: resource}
}

func serviceToResource(serviceName string) string {
	// SessionService -> session, SecurityService -> security
	s := strings.TrimSuffix(serviceName, "Service")
	if s == "" {
		return "unknown"
	}
	return strings.ToLower(s[0:1]) + s[1:]
}

func methodToAction(method string) string {
	switch {
	case strings.HasPrefix(method, "Get") && method != "Get":
		return "get"
	case strings.HasPrefix(method, "List"):
		return "list"
	case strings.HasPrefix(method, "Create"):
		return "create"
	case strings.HasPrefix(method, "Update"):
		return "update"
	case strings.HasPrefix(method, "Delete"):
		return "delete"
	case strings.HasPrefix(method, "Add"):
		return "add"
	case strings.HasPrefix(method, "Remove"):
		return "remove"
	case strings.HasPrefix(method, "Register"):
		return "register"
	case strings.HasPrefix(method, "Revoke"):
		return "revoke"
	case strings.HasPrefix(method, "Report"):
		return "report"
	case strings.HasPrefix(method, "Issue"):
		return "issue"
	default:
		return strings.ToLower(method)
	}
}

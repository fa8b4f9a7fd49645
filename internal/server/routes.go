package server

import "accessguard/internal/platform/rbac"

// Service names of the API.
const (
	authServiceName     = "accessguard.auth.v1.AuthService"
	sessionServiceName  = "accessguard.session.v1.SessionService"
	securityServiceName = "accessguard.security.v1.SecurityService"
	auditServiceName    = "accessguard.audit.v1.AuditService"
	adminServiceName    = "accessguard.admin.v1.AdminService"
	healthCheckMethod   = "/grpc.health.v1.Health/Check"
	healthWatchMethod   = "/grpc.health.v1.Health/Watch"
)

func m(service, method string) string { return "/" + service + "/" + method }

// Routes is the authorization table of the API. Methods not listed only require an
// authenticated caller.
func Routes() map[string]rbac.RoutePolicy {
	return map[string]rbac.RoutePolicy{
		healthCheckMethod: {Public: true},
		healthWatchMethod: {Public: true},

		m(authServiceName, "Register"):       {Public: true},
		m(authServiceName, "Login"):          {Public: true},
		m(authServiceName, "Refresh"):        {Public: true},
		m(authServiceName, "Logout"):         {Mutating: true},
		m(authServiceName, "LogoutAll"):      {Mutating: true},
		m(authServiceName, "ChangePassword"): {Permissions: []string{rbac.PermProfileUpdate}, Mutating: true},

		m(sessionServiceName, "ListSessions"):  {Permissions: []string{rbac.PermSessionsRead, rbac.PermSessionsManage}},
		m(sessionServiceName, "RevokeSession"): {Permissions: []string{rbac.PermSessionsRead, rbac.PermSessionsManage}, Mutating: true},

		m(securityServiceName, "ReportThreat"):      {Permissions: []string{rbac.PermSecurityReport}},
		m(securityServiceName, "ResolveThreat"):     {Permissions: []string{rbac.PermSecurityResolve}, Mutating: true},
		m(securityServiceName, "GetThreatMetrics"):  {Permissions: []string{rbac.PermSecurityRead}},
		m(securityServiceName, "ListActiveThreats"): {Permissions: []string{rbac.PermSecurityRead}},
		m(securityServiceName, "ShouldBlock"):       {Permissions: []string{rbac.PermSecurityRead}},

		m(auditServiceName, "ListAuditEvents"):     {Permissions: []string{rbac.PermAuditRead}},
		m(auditServiceName, "GetComplianceReport"): {Permissions: []string{rbac.PermAuditRead, rbac.PermReportsRead}, RequireAll: true},
		m(auditServiceName, "RecordEvent"):         {},
		m(auditServiceName, "PurgeAuditEvents"):    {Permissions: []string{rbac.PermAuditPurge}, Mutating: true},

		m(adminServiceName, "UpdateIdentityStatus"): {Permissions: []string{rbac.PermUsersStatus}, Mutating: true},
		m(adminServiceName, "UpdateIdentityRole"):   {Permissions: []string{rbac.PermUsersManage}, Mutating: true},
		m(adminServiceName, "ReloadRoles"):          {Permissions: []string{rbac.PermRolesReload}, Mutating: true},
		m(adminServiceName, "CheckPermission"):      {Permissions: []string{rbac.PermUsersRead}},
		m(adminServiceName, "GetIdentityStats"):     {Permissions: []string{rbac.PermUsersRead}},
	}
}

// untracked are methods neither audited nor measured.
func untracked() map[string]bool {
	return map[string]bool{healthCheckMethod: true, healthWatchMethod: true}
}

// Package rbac resolves role permissions through an inheritance table and authorizes
// gRPC methods against a declarative route policy.
package rbac

// Role is a single role value assigned to an identity.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleEmployee   Role = "employee"
	RoleViewer     Role = "viewer"
)

// Ranking orders the built-in roles from highest to lowest.
var Ranking = []Role{RoleSuperAdmin, RoleAdmin, RoleManager, RoleEmployee, RoleViewer}

// Valid reports whether r is one of the ranked roles.
func (r Role) Valid() bool {
	return rank(r) >= 0
}

// IsHigher reports whether a ranks strictly above b. Unranked roles rank below every
// ranked role.
func IsHigher(a, b Role) bool {
	return rank(a) > rank(b)
}

// AtLeast reports whether r ranks at or above min.
func AtLeast(r, min Role) bool {
	return rank(r) >= rank(min) && rank(r) >= 0
}

func rank(r Role) int {
	for i, v := range Ranking {
		if v == r {
			return len(Ranking) - i
		}
	}
	return -1
}

// RoleDefinition is one row of the role table.
type RoleDefinition struct {
	Role        Role
	Permissions []string
	Inherits    []Role
}

// Permission names used by the built-in table and route policy.
const (
	PermEmployeesRead    = "employees:read"
	PermEmployeesCreate  = "employees:create"
	PermEmployeesUpdate  = "employees:update"
	PermEmployeesDelete  = "employees:delete"
	PermEmployeesArchive = "employees:archive"
	PermProjectsRead     = "projects:read"
	PermProjectsCreate   = "projects:create"
	PermProjectsUpdate   = "projects:update"
	PermProjectsDelete   = "projects:delete"
	PermFilesRead        = "files:read"
	PermFilesWrite       = "files:write"
	PermFilesDelete      = "files:delete"
	PermProfileUpdate    = "profile:update"
	PermSessionsRead     = "sessions:read"
	PermSessionsManage   = "sessions:manage"
	PermReportsRead      = "reports:read"
	PermUsersRead        = "users:read"
	PermUsersManage      = "users:manage"
	PermUsersStatus      = "users:status"
	PermAuditRead        = "audit:read"
	PermAuditPurge       = "audit:purge"
	PermSecurityRead     = "security:read"
	PermSecurityResolve  = "security:resolve"
	PermSecurityReport   = "security:report"
	PermDataExport       = "data:export"
	PermRolesReload      = "roles:reload"
)

// DefaultRoles is the built-in role table used when no roles file is configured.
func DefaultRoles() []RoleDefinition {
	return []RoleDefinition{
		{
			Role:        RoleViewer,
			Permissions: []string{PermEmployeesRead, PermProjectsRead, PermFilesRead},
		},
		{
			Role:        RoleEmployee,
			Permissions: []string{PermFilesWrite, PermProfileUpdate, PermSessionsRead},
			Inherits:    []Role{RoleViewer},
		},
		{
			Role:        RoleManager,
			Permissions: []string{PermEmployeesUpdate, PermProjectsCreate, PermProjectsUpdate, PermFilesDelete, PermReportsRead},
			Inherits:    []Role{RoleEmployee},
		},
		{
			Role: RoleAdmin,
			Permissions: []string{
				PermEmployeesCreate, PermEmployeesDelete, PermEmployeesArchive, PermProjectsDelete,
				PermUsersRead, PermUsersManage, PermAuditRead, PermSecurityRead, PermSecurityReport,
				PermSessionsManage, PermDataExport,
			},
			Inherits: []Role{RoleManager},
		},
		{
			Role:        RoleSuperAdmin,
			Permissions: []string{PermUsersStatus, PermAuditPurge, PermSecurityResolve, PermRolesReload},
			Inherits:    []Role{RoleAdmin},
		},
	}
}

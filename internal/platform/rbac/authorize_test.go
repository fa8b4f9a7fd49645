package rbac

import (
	"errors"
	"testing"

	"accessguard/internal/platform/apperr"
)

func TestAuthorizer_Authorize(t *testing.T) {
	reg := mustRegistry(t, DefaultRoles())
	a := NewAuthorizer(reg, map[string]RoutePolicy{
		"/svc/Login":        {Public: true},
		"/svc/ListAudit":    {Permissions: []string{PermAuditRead}},
		"/svc/PurgeAudit":   {Permissions: []string{PermAuditRead, PermAuditPurge}, RequireAll: true},
		"/svc/ReadOrExport": {Permissions: []string{PermReportsRead, PermDataExport}},
	})
	tests := []struct {
		name    string
		role    Role
		method  string
		allowed bool
	}{
		{"public", RoleViewer, "/svc/Login", true},
		{"unlisted", RoleViewer, "/svc/Unlisted", true},
		{"admin reads audit", RoleAdmin, "/svc/ListAudit", true},
		{"viewer cannot read audit", RoleViewer, "/svc/ListAudit", false},
		{"admin cannot purge", RoleAdmin, "/svc/PurgeAudit", false},
		{"super admin purges", RoleSuperAdmin, "/svc/PurgeAudit", true},
		{"manager any-of", RoleManager, "/svc/ReadOrExport", true},
		{"employee any-of", RoleEmployee, "/svc/ReadOrExport", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.Authorize(tt.role, tt.method)
			if (err == nil) != tt.allowed {
				t.Fatalf("Authorize = %v, allowed %v", err, tt.allowed)
			}
			if err != nil && !errors.Is(err, apperr.ErrForbidden) {
				t.Errorf("err = %v, want ErrForbidden", err)
			}
		})
	}
}

func TestAuthorizer_PermissionErrorNamesRequirement(t *testing.T) {
	a := NewAuthorizer(mustRegistry(t, DefaultRoles()), map[string]RoutePolicy{
		"/svc/PurgeAudit": {Permissions: []string{PermAuditRead, PermAuditPurge}, RequireAll: true},
	})
	err := a.Authorize(RoleViewer, "/svc/PurgeAudit")
	var pe *apperr.PermissionError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %T, want *apperr.PermissionError", err)
	}
	if !pe.RequireAll || len(pe.Required) != 2 || pe.Required[1] != PermAuditPurge {
		t.Errorf("PermissionError = %+v", pe)
	}
}

func TestRequireAtLeast(t *testing.T) {
	if err := RequireAtLeast(RoleAdmin, RoleAdmin); err != nil {
		t.Errorf("admin >= admin: %v", err)
	}
	if err := RequireAtLeast(RoleManager, RoleAdmin); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("manager >= admin err = %v, want ErrForbidden", err)
	}
}

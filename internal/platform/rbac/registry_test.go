package rbac

import (
	"errors"
	"slices"
	"sync"
	"testing"
)

func mustRegistry(t *testing.T, defs []RoleDefinition) *Registry {
	t.Helper()
	reg, err := NewRegistry(defs)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func TestEffectivePermissions_SupersetOfAncestors(t *testing.T) {
	defs := DefaultRoles()
	reg := mustRegistry(t, defs)
	byRole := map[Role]RoleDefinition{}
	for _, d := range defs {
		byRole[d.Role] = d
	}
	for _, d := range defs {
		eff := reg.EffectivePermissions(d.Role)
		// walk ancestors independently of the registry
		stack := []Role{d.Role}
		seen := map[Role]bool{}
		for len(stack) > 0 {
			cur := stack[0]
			stack = stack[1:]
			if seen[cur] {
				continue
			}
			seen[cur] = true
			for _, p := range byRole[cur].Permissions {
				if !slices.Contains(eff, p) {
					t.Errorf("%s: missing %s inherited from %s", d.Role, p, cur)
				}
			}
			stack = append(stack, byRole[cur].Inherits...)
		}
		if again := reg.EffectivePermissions(d.Role); !slices.Equal(eff, again) {
			t.Errorf("%s: repeated resolution differs: %v vs %v", d.Role, eff, again)
		}
	}
}

func TestRegistry_HasChecks(t *testing.T) {
	reg := mustRegistry(t, DefaultRoles())
	tests := []struct {
		name string
		got  bool
		want bool
	}{
		{"viewer reads employees", reg.Has(RoleViewer, PermEmployeesRead), true},
		{"viewer cannot delete", reg.Has(RoleViewer, PermEmployeesDelete), false},
		{"super admin inherits viewer", reg.Has(RoleSuperAdmin, PermFilesRead), true},
		{"manager any", reg.HasAny(RoleManager, []string{PermAuditRead, PermProjectsCreate}), true},
		{"manager all", reg.HasAll(RoleManager, []string{PermAuditRead, PermProjectsCreate}), false},
		{"empty any", reg.HasAny(RoleAdmin, nil), false},
		{"empty all", reg.HasAll(RoleViewer, nil), true},
		{"check all", reg.Check(RoleAdmin, []string{PermAuditRead, PermUsersManage}, true), true},
		{"check any", reg.Check(RoleEmployee, []string{PermAuditRead, PermFilesWrite}, false), true},
		{"unknown role", reg.Has(Role("ghost"), PermEmployeesRead), false},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if n := len(reg.EffectivePermissions(Role("ghost"))); n != 0 {
		t.Errorf("unknown role has %d permissions, want 0", n)
	}
}

func TestNewRegistry_Invalid(t *testing.T) {
	tests := []struct {
		name string
		defs []RoleDefinition
		want error
	}{
		{"unknown parent", []RoleDefinition{{Role: "a", Inherits: []Role{"missing"}}}, ErrUnknownParent},
		{"self cycle", []RoleDefinition{{Role: "a", Inherits: []Role{"a"}}}, ErrCycle},
		{"long cycle", []RoleDefinition{
			{Role: "a", Inherits: []Role{"b"}},
			{Role: "b", Inherits: []Role{"c"}},
			{Role: "c", Inherits: []Role{"a"}},
			{Role: "d"},
		}, ErrCycle},
		{"duplicate", []RoleDefinition{{Role: "a"}, {Role: "a"}}, ErrDuplicateRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.defs)
			if !errors.Is(err, tt.want) {
				t.Errorf("NewRegistry err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewRegistry_DiamondIsNotACycle(t *testing.T) {
	reg := mustRegistry(t, []RoleDefinition{
		{Role: "base", Permissions: []string{"p:base"}},
		{Role: "left", Permissions: []string{"p:left"}, Inherits: []Role{"base"}},
		{Role: "right", Permissions: []string{"p:right"}, Inherits: []Role{"base"}},
		{Role: "top", Inherits: []Role{"left", "right"}},
	})
	want := []string{"p:base", "p:left", "p:right"}
	if got := reg.EffectivePermissions("top"); !slices.Equal(got, want) {
		t.Errorf("EffectivePermissions(top) = %v, want %v", got, want)
	}
}

func TestRegistry_Reload(t *testing.T) {
	reg := mustRegistry(t, DefaultRoles())
	if !reg.Has(RoleViewer, PermEmployeesRead) {
		t.Fatal("viewer should read employees before reload")
	}
	err := reg.Reload([]RoleDefinition{{Role: RoleViewer, Permissions: []string{"only:this"}}})
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if reg.Has(RoleViewer, PermEmployeesRead) {
		t.Error("memoized permissions should be dropped on reload")
	}
	if !reg.Has(RoleViewer, "only:this") {
		t.Error("reloaded permission missing")
	}
	if err := reg.Reload([]RoleDefinition{{Role: "x", Inherits: []Role{"x"}}}); !errors.Is(err, ErrCycle) {
		t.Fatalf("Reload with cycle err = %v, want ErrCycle", err)
	}
	if !reg.Has(RoleViewer, "only:this") {
		t.Error("failed reload must keep the current table")
	}
}

func TestRegistry_ConcurrentResolve(t *testing.T) {
	reg := mustRegistry(t, DefaultRoles())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%5 == 0 {
				_ = reg.Reload(DefaultRoles())
			}
			if !reg.Has(RoleSuperAdmin, PermEmployeesRead) {
				t.Error("super admin lost inherited permission")
			}
		}(i)
	}
	wg.Wait()
}

func TestRanking(t *testing.T) {
	if !IsHigher(RoleSuperAdmin, RoleAdmin) || !IsHigher(RoleManager, RoleViewer) {
		t.Error("ranking order broken")
	}
	if IsHigher(RoleViewer, RoleEmployee) || IsHigher(RoleAdmin, RoleAdmin) {
		t.Error("IsHigher should be strict")
	}
	if IsHigher(Role("ghost"), RoleViewer) || !IsHigher(RoleViewer, Role("ghost")) {
		t.Error("unranked roles should rank below every ranked role")
	}
	if !AtLeast(RoleAdmin, RoleAdmin) || AtLeast(RoleManager, RoleAdmin) || AtLeast(Role("ghost"), Role("ghost")) {
		t.Error("AtLeast mismatch")
	}
	if !RoleEmployee.Valid() || Role("ghost").Valid() {
		t.Error("Valid mismatch")
	}
}

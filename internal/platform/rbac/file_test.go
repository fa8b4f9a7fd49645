package rbac

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRoles(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roles.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeRoles(t, `
[[role]]
name = "viewer"
permissions = ["employees:read"]

[[role]]
name = "employee"
permissions = ["files:write"]
inherits = ["viewer"]
`)
	defs, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("len(defs) = %d, want 2", len(defs))
	}
	reg, err := NewRegistry(defs)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if !reg.Has(RoleEmployee, PermEmployeesRead) {
		t.Error("employee should inherit employees:read from file")
	}
}

func TestLoadFile_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ``},
		{"unknown key", "[[role]]\nname = \"a\"\ncolour = \"red\"\n"},
		{"missing name", "[[role]]\npermissions = [\"x\"]\n"},
		{"bad syntax", "[[role]\nname = \"a\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFile(writeRoles(t, tt.body)); err == nil {
				t.Error("LoadFile should return error")
			}
		})
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("LoadFile on missing file should return error")
	}
}

func TestLoad_DefaultWhenEmpty(t *testing.T) {
	defs, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(defs) != len(DefaultRoles()) {
		t.Errorf("Load(\"\") returned %d roles, want built-in table", len(defs))
	}
}

package rbac

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// roleFile is the on-disk shape of a role table:
//
//	[[role]]
//	name = "manager"
//	permissions = ["projects:create"]
//	inherits = ["employee"]
type roleFile struct {
	Roles []struct {
		Name        string   `toml:"name"`
		Permissions []string `toml:"permissions"`
		Inherits    []string `toml:"inherits"`
	} `toml:"role"`
}

// LoadFile reads a TOML role table. The result still has to pass NewRegistry or Reload
// validation.
func LoadFile(path string) ([]RoleDefinition, error) {
	var f roleFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("rbac: decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("rbac: %s: unknown keys %v", path, undecoded)
	}
	if len(f.Roles) == 0 {
		return nil, fmt.Errorf("rbac: %s defines no roles", path)
	}
	defs := make([]RoleDefinition, 0, len(f.Roles))
	for _, r := range f.Roles {
		if r.Name == "" {
			return nil, fmt.Errorf("rbac: %s: role without name", path)
		}
		def := RoleDefinition{Role: Role(r.Name), Permissions: r.Permissions}
		for _, p := range r.Inherits {
			def.Inherits = append(def.Inherits, Role(p))
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Load returns the role table from path, or DefaultRoles when path is empty.
func Load(path string) ([]RoleDefinition, error) {
	if path == "" {
		return DefaultRoles(), nil
	}
	return LoadFile(path)
}

package rbac

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
)

var (
	// ErrUnknownParent is returned when a role inherits from a role that is not defined.
	ErrUnknownParent = errors.New("rbac: unknown parent role")
	// ErrCycle is returned when the inheritance graph is not acyclic.
	ErrCycle = errors.New("rbac: role inheritance cycle")
	// ErrDuplicateRole is returned when a role is defined twice.
	ErrDuplicateRole = errors.New("rbac: duplicate role")
)

type permSet map[string]struct{}

// Registry resolves effective permissions for roles. Resolutions are memoized until Reload.
// Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	defs  map[Role]RoleDefinition
	cache map[Role]permSet
	gen   uint64
}

// NewRegistry validates defs and returns a Registry over them. An undefined parent or an
// inheritance cycle is a configuration error.
func NewRegistry(defs []RoleDefinition) (*Registry, error) {
	table, err := buildTable(defs)
	if err != nil {
		return nil, err
	}
	return &Registry{defs: table, cache: make(map[Role]permSet)}, nil
}

// Reload validates defs and atomically replaces the table, dropping every memoized
// resolution. On error the current table stays in place.
func (r *Registry) Reload(defs []RoleDefinition) error {
	table, err := buildTable(defs)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.defs = table
	r.cache = make(map[Role]permSet)
	r.gen++
	r.mu.Unlock()
	return nil
}

// Roles returns the defined roles, sorted.
func (r *Registry) Roles() []Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Role, 0, len(r.defs))
	for role := range r.defs {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// EffectivePermissions returns the sorted union of role's explicit permissions and those of
// every role it transitively inherits from. An unknown role resolves to no permissions.
func (r *Registry) EffectivePermissions(role Role) []string {
	set := r.resolve(role)
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Has reports whether role holds permission.
func (r *Registry) Has(role Role, permission string) bool {
	_, ok := r.resolve(role)[permission]
	return ok
}

// HasAny reports whether role holds at least one of permissions. An empty list is false.
func (r *Registry) HasAny(role Role, permissions []string) bool {
	set := r.resolve(role)
	for _, p := range permissions {
		if _, ok := set[p]; ok {
			return true
		}
	}
	return false
}

// HasAll reports whether role holds every one of permissions. An empty list is true.
func (r *Registry) HasAll(role Role, permissions []string) bool {
	set := r.resolve(role)
	for _, p := range permissions {
		if _, ok := set[p]; !ok {
			return false
		}
	}
	return true
}

// Check is HasAll when requireAll is set and HasAny otherwise.
func (r *Registry) Check(role Role, permissions []string, requireAll bool) bool {
	if requireAll {
		return r.HasAll(role, permissions)
	}
	return r.HasAny(role, permissions)
}

func (r *Registry) resolve(role Role) permSet {
	r.mu.RLock()
	set, ok := r.cache[role]
	defs, gen := r.defs, r.gen
	r.mu.RUnlock()
	if ok {
		return set
	}

	if _, known := defs[role]; !known {
		log.Printf("rbac: unknown role %q resolves to no permissions", role)
		return permSet{}
	}
	set = closure(defs, role)

	r.mu.Lock()
	// A concurrent Reload swapped the table; do not cache a resolution of the old one.
	if r.gen == gen {
		r.cache[role] = set
	}
	r.mu.Unlock()
	return set
}

// closure walks the inheritance graph iteratively with a visited set.
func closure(defs map[Role]RoleDefinition, role Role) permSet {
	set := permSet{}
	visited := map[Role]bool{role: true}
	stack := []Role{role}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		def := defs[cur]
		for _, p := range def.Permissions {
			set[p] = struct{}{}
		}
		for _, parent := range def.Inherits {
			if !visited[parent] {
				visited[parent] = true
				stack = append(stack, parent)
			}
		}
	}
	return set
}

func buildTable(defs []RoleDefinition) (map[Role]RoleDefinition, error) {
	table := make(map[Role]RoleDefinition, len(defs))
	for _, d := range defs {
		if _, dup := table[d.Role]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRole, d.Role)
		}
		table[d.Role] = RoleDefinition{
			Role:        d.Role,
			Permissions: append([]string(nil), d.Permissions...),
			Inherits:    append([]Role(nil), d.Inherits...),
		}
	}
	for _, d := range table {
		for _, parent := range d.Inherits {
			if _, ok := table[parent]; !ok {
				return nil, fmt.Errorf("%w: %s inherits %s", ErrUnknownParent, d.Role, parent)
			}
		}
	}
	if role, ok := findCycle(table); ok {
		return nil, fmt.Errorf("%w: through %s", ErrCycle, role)
	}
	return table, nil
}

// findCycle runs Kahn's algorithm over child->parent edges; any role left with a nonzero
// in-degree sits on or behind a cycle.
func findCycle(table map[Role]RoleDefinition) (Role, bool) {
	indeg := make(map[Role]int, len(table))
	for role := range table {
		indeg[role] = 0
	}
	for _, d := range table {
		for _, parent := range d.Inherits {
			indeg[parent]++
		}
	}
	var queue []Role
	for role, n := range indeg {
		if n == 0 {
			queue = append(queue, role)
		}
	}
	seen := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		seen++
		for _, parent := range table[cur].Inherits {
			indeg[parent]--
			if indeg[parent] == 0 {
				queue = append(queue, parent)
			}
		}
	}
	if seen == len(table) {
		return "", false
	}
	for role, n := range indeg {
		if n > 0 {
			return role, true
		}
	}
	return "", true
}

package models

import "slices"

// PrimaryRole is the console tier a user is admitted with.
type PrimaryRole string

const (
	RoleAdmin  PrimaryRole = "ADMIN"
	RoleViewer PrimaryRole = "VIEWER"
)

// rank orders tiers; higher wins.
func (r PrimaryRole) rank() int {
	switch r {
	case RoleAdmin:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// RoleSet maps IdP group names to console tiers.
type RoleSet struct {
	grants map[string]PrimaryRole
}

// NewRoleSet builds a role set from group → tier pairs.
func NewRoleSet(grants map[string]PrimaryRole) RoleSet {
	m := make(map[string]PrimaryRole, len(grants))
	for k, v := range grants {
		m[k] = v
	}
	return RoleSet{grants: m}
}

// AuthorizedRoles is the set of IdP groups entitled to use the console.
var AuthorizedRoles = NewRoleSet(map[string]PrimaryRole{
	"dlx.conductor.admin": RoleAdmin,
	"dlx.conductor.user":  RoleViewer,
})

// Resolve intersects roles with the set. It returns the matched groups
// (sorted, deduplicated) and the highest tier among them. ok is false when
// the intersection is empty.
func (rs RoleSet) Resolve(roles []string) (matched []string, primary PrimaryRole, ok bool) {
	for _, role := range roles {
		tier, granted := rs.grants[role]
		if !granted || slices.Contains(matched, role) {
			continue
		}
		matched = append(matched, role)
		if tier.rank() > primary.rank() {
			primary = tier
		}
	}
	if len(matched) == 0 {
		return nil, "", false
	}
	slices.Sort(matched)
	return matched, primary, true
}

// Groups lists the configured group names in sorted order.
func (rs RoleSet) Groups() []string {
	out := make([]string, 0, len(rs.grants))
	for k := range rs.grants {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

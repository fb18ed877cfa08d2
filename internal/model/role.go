package model

// Role is a coarse-grained permission tag attached to a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// knownRoles lists every role a stored record or token may carry.
var knownRoles = NewRoleSet(RoleUser, RoleAdmin)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return knownRoles.Contains(r)
}

// RoleSet is an allow-list of roles.
type RoleSet map[Role]struct{}

// NewRoleSet builds a set from roles.
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Contains reports membership of r.
func (s RoleSet) Contains(r Role) bool {
	_, ok := s[r]
	return ok
}

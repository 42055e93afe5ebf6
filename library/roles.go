package library

import "strings"

// Role is one of the closed set of account roles.
type Role string

const (
	RoleNone      Role = ""
	RoleMember    Role = "member"
	RoleLibrarian Role = "librarian"
	RoleAdmin     Role = "admin"
)

const wireRolePrefix = "ROLE_"

// ParseRole accepts both the short form ("librarian") and the server's wire
// form ("ROLE_LIBRARIAN"), case-insensitively. Anything else is RoleNone.
func ParseRole(s string) Role {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, strings.ToLower(wireRolePrefix))
	switch Role(s) {
	case RoleMember, RoleLibrarian, RoleAdmin:
		return Role(s)
	}
	return RoleNone
}

// Wire returns the server spelling of the role, or "" for RoleNone.
func (r Role) Wire() string {
	if r == RoleNone {
		return ""
	}
	return wireRolePrefix + strings.ToUpper(string(r))
}

func (r Role) rank() int {
	switch r {
	case RoleMember:
		return 1
	case RoleLibrarian:
		return 2
	case RoleAdmin:
		return 3
	}
	return 0
}

// Satisfies reports whether r grants at least the capabilities of want.
// The hierarchy is admin ⊇ librarian ⊇ member.
func (r Role) Satisfies(want Role) bool {
	return want != RoleNone && r.rank() >= want.rank()
}

// Capabilities are the coarse flags the CLI gates commands on.
type Capabilities struct {
	Member    bool
	Librarian bool
	Admin     bool
}

// CapabilitiesFor derives the flag set for a role.
func CapabilitiesFor(r Role) Capabilities {
	return Capabilities{
		Member:    r.Satisfies(RoleMember),
		Librarian: r.Satisfies(RoleLibrarian),
		Admin:     r.Satisfies(RoleAdmin),
	}
}

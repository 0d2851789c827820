package auth

// Role is the caller's role claim. Roles are ordered: admin implies staff,
// staff implies resident.
type Role string

const (
	RoleResident Role = "resident"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

var roleRanks = map[Role]int{
	RoleResident: 1,
	RoleStaff:    2,
	RoleAdmin:    3,
}

// ParseRole accepts only the known roles.
func ParseRole(value string) (Role, bool) {
	role := Role(value)
	_, ok := roleRanks[role]
	return role, ok
}

// RoleAtLeast reports whether role satisfies required.
func RoleAtLeast(role, required Role) bool {
	return roleRanks[role] >= roleRanks[required]
}

// IsStaff reports whether role may act on accounts it does not own.
func IsStaff(role Role) bool {
	return RoleAtLeast(role, RoleStaff)
}

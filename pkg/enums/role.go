package enums

// Role represents the system-level role carried by a principal.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

var roles = valueSet[Role]{RoleUser, RoleAdmin}

func (r Role) String() string { return string(r) }

// IsValid reports whether the value is a known Role.
func (r Role) IsValid() bool { return roles.has(r) }

// CanViewAllLoans reports whether the role may list every borrower's active loans.
func (r Role) CanViewAllLoans() bool { return r == RoleAdmin }

// CanManageCatalog reports whether the role may create, resize or delete books.
func (r Role) CanManageCatalog() bool { return r == RoleAdmin }

// ParseRole converts raw input into a Role. Matching is exact.
func ParseRole(value string) (Role, error) {
	return roles.parse("role", value)
}

package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleOwner    = "owner"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// IsAdmin reports whether the role bypasses RBAC checks and usage quotas.
func IsAdmin(role string) bool { return role == RoleAdmin }

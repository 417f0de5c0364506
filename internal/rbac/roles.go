package rbac

// Role names. Keep these stable; they are part of the auth contract.
const (
	RoleAdmin      = "admin"
	RoleSupervisor = "supervisor"
	RoleAgent      = "agent"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

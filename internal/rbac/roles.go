package rbac

// Staff roles for the reservation-management API.
const (
	// RoleHost can view and work the book for the current service.
	RoleHost = "host"
	// RoleManager can also change and cancel bookings.
	RoleManager = "manager"
	// RoleAdmin bypasses all role checks and sees call/audit history.
	RoleAdmin = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func IsKnownRole(role string) bool {
	switch role {
	case RoleHost, RoleManager, RoleAdmin:
		return true
	default:
		return false
	}
}

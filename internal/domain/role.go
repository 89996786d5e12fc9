package domain

// Role levels gate admin visibility. Anything between RoleLevelUser and
// RoleLevelAdmin is a regular member with extra display labels.
const (
	RoleLevelDemo      = 0
	RoleLevelUser      = 1
	RoleLevelAdmin     = 998
	RoleLevelOwner     = 999
	RoleLevelSuperUser = 1000
)

// RoleLabel returns the display label for a role level.
func RoleLabel(level int) string {
	switch {
	case level >= RoleLevelSuperUser:
		return "super-user"
	case level >= RoleLevelOwner:
		return "owner"
	case level >= RoleLevelAdmin:
		return "admin"
	case level >= RoleLevelUser:
		return "user"
	default:
		return "demo"
	}
}

// HasRoleLevel is the threshold check used by every guard.
func HasRoleLevel(level, required int) bool {
	return level >= required
}

package session

import "github.com/aisentinel/session-service/internal/domain"

// GuardState is the route guard's view of an AuthState.
type GuardState int

const (
	GuardLoading GuardState = iota
	GuardUnauthenticated
	GuardAuthenticated
)

func (s GuardState) String() string {
	switch s {
	case GuardUnauthenticated:
		return "unauthenticated"
	case GuardAuthenticated:
		return "authenticated"
	default:
		return "loading"
	}
}

// Tier classifies an authenticated user by role level.
type Tier int

const (
	TierDemo Tier = iota
	TierUser
	TierAdministrator
	TierOwner
	TierSuperUser
)

func (t Tier) String() string {
	switch t {
	case TierUser:
		return "user"
	case TierAdministrator:
		return "administrator"
	case TierOwner:
		return "owner"
	case TierSuperUser:
		return "super-user"
	default:
		return "demo"
	}
}

func TierFor(level int) Tier {
	switch {
	case level >= domain.RoleLevelSuperUser:
		return TierSuperUser
	case level >= domain.RoleLevelOwner:
		return TierOwner
	case level >= domain.RoleLevelAdmin:
		return TierAdministrator
	case level >= domain.RoleLevelUser:
		return TierUser
	default:
		return TierDemo
	}
}

// Evaluate maps an AuthState to the guard state. There is no optimistic
// transition: only a confirmed identity is authenticated.
func Evaluate(state AuthState) GuardState {
	switch {
	case state.IsLoading:
		return GuardLoading
	case state.IsAuthenticated && state.User != nil:
		return GuardAuthenticated
	default:
		return GuardUnauthenticated
	}
}

// Allow reports whether state may enter a route requiring the role level.
func Allow(state AuthState, required int) bool {
	if Evaluate(state) != GuardAuthenticated {
		return false
	}
	return domain.HasRoleLevel(state.User.RoleLevel, required)
}

func IsDemo(state AuthState) bool {
	return Evaluate(state) == GuardAuthenticated && state.User.RoleLevel == domain.RoleLevelDemo
}

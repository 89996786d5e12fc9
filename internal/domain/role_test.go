package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasRoleLevelThresholds(t *testing.T) {
	levels := []int{997, 998, 999, 1000}

	admin := []bool{false, true, true, true}
	owner := []bool{false, false, true, true}
	super := []bool{false, false, false, true}

	for i, level := range levels {
		assert.Equal(t, admin[i], HasRoleLevel(level, RoleLevelAdmin), "admin at %d", level)
		assert.Equal(t, owner[i], HasRoleLevel(level, RoleLevelOwner), "owner at %d", level)
		assert.Equal(t, super[i], HasRoleLevel(level, RoleLevelSuperUser), "super-user at %d", level)
	}
}

func TestRoleLabel(t *testing.T) {
	assert.Equal(t, "demo", RoleLabel(0))
	assert.Equal(t, "user", RoleLabel(1))
	assert.Equal(t, "user", RoleLabel(997))
	assert.Equal(t, "admin", RoleLabel(998))
	assert.Equal(t, "owner", RoleLabel(999))
	assert.Equal(t, "super-user", RoleLabel(1000))
}

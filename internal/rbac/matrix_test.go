package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildMatrixValidatorRolesGetCRUDEverywhere(t *testing.T) {
	for _, role := range []Role{RolePresident, RoleTreasurer, RoleSecretary} {
		t.Run(role.String(), func(t *testing.T) {
			m, canValidate := BuildMatrix(role, false)
			assert.True(t, canValidate)
			assert.Len(t, m, len(CanonicalResources()))
			for _, r := range CanonicalResources() {
				assert.Equal(t, []Action{ActionView, ActionCreate, ActionEdit, ActionDelete}, m[r].Actions(), r)
				assert.False(t, m[r].Has(ActionValidateUser))
			}
		})
	}
}

func TestBuildMatrixMemberViewsAllButReports(t *testing.T) {
	m, canValidate := BuildMatrix(RoleMember, false)
	assert.False(t, canValidate)
	for _, r := range CanonicalResources() {
		if r == ResourceReports {
			assert.Empty(t, m[r].Actions())
			continue
		}
		assert.Equal(t, []Action{ActionView}, m[r].Actions(), r)
	}
}

func TestBuildMatrixNoRoleIsEmpty(t *testing.T) {
	for _, role := range []Role{RoleNone, RoleUnknown} {
		m, canValidate := BuildMatrix(role, false)
		assert.False(t, canValidate)
		assert.Len(t, m, len(CanonicalResources()))
		for _, r := range CanonicalResources() {
			assert.Empty(t, m[r].Actions())
		}
	}
}

func TestBuildMatrixSuperuserOverridesRole(t *testing.T) {
	m, canValidate := BuildMatrix(RoleNone, true)
	assert.True(t, canValidate)
	for _, r := range CanonicalResources() {
		assert.True(t, m[r].Has(ActionDelete))
	}
}

func TestParseRoleIgnoresCase(t *testing.T) {
	assert.Equal(t, RolePresident, ParseRole("President"))
	assert.Equal(t, RoleTreasurer, ParseRole("  TREASURER "))
	assert.Equal(t, RoleMember, ParseRole("member"))
	assert.Equal(t, RoleNone, ParseRole(""))
	assert.Equal(t, RoleUnknown, ParseRole("admin"))
	assert.False(t, RoleMember.IsValidator())
	assert.True(t, RoleSecretary.IsValidator())
}

func TestResourceAliases(t *testing.T) {
	c, ok := ResourcePendingUsers.Canonical()
	assert.True(t, ok)
	assert.Equal(t, ResourceMembers, c)

	_, ok = Resource("payroll").Canonical()
	assert.False(t, ok)
}

func TestActionSetIgnoresUnknownActions(t *testing.T) {
	s := NewActionSet(ActionView, Action("approve"))
	assert.Equal(t, []Action{ActionView}, s.Actions())
	assert.False(t, s.Has(Action("approve")))
	assert.False(t, Action("approve").Known())
}

func TestMatrixNamesAreDetached(t *testing.T) {
	snap := NewSnapshot(Principal{Role: RoleMember})
	m := snap.Matrix()
	m[ResourceReports] = crud
	assert.False(t, snap.Can(ActionView, ResourceReports))
	assert.Equal(t, []string{"view"}, snap.Matrix().Names()["projects"])
}

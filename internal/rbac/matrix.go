package rbac

// Matrix maps every canonical resource to the actions allowed on it.
// A resource without grants carries an explicit empty set.
type Matrix map[Resource]ActionSet

// emptyMatrix returns a matrix with every canonical resource denied.
func emptyMatrix() Matrix {
	m := make(Matrix, len(canonicalResources))
	for _, r := range canonicalResources {
		m[r] = 0
	}
	return m
}

// BuildMatrix derives the permission matrix and the validator flag for a
// principal. It is a pure function of its inputs.
func BuildMatrix(role Role, superuser bool) (Matrix, bool) {
	m := emptyMatrix()
	if superuser {
		for r := range m {
			m[r] = crud
		}
		return m, true
	}
	switch role {
	case RolePresident, RoleTreasurer, RoleSecretary:
		for r := range m {
			m[r] = crud
		}
		return m, true
	case RoleMember:
		for r := range m {
			if r == ResourceReports {
				continue
			}
			m[r] |= NewActionSet(ActionView)
		}
		return m, false
	case RoleNone, RoleUnknown:
		return m, false
	default:
		return m, false
	}
}

// clone copies the matrix so callers never share the owned map.
func (m Matrix) clone() Matrix {
	out := make(Matrix, len(m))
	for r, set := range m {
		out[r] = set
	}
	return out
}

// Names renders the matrix with string keys and sorted action lists.
func (m Matrix) Names() map[string][]string {
	out := make(map[string][]string, len(m))
	for r, set := range m {
		actions := set.Actions()
		names := make([]string, 0, len(actions))
		for _, a := range actions {
			names = append(names, string(a))
		}
		out[string(r)] = names
	}
	return out
}

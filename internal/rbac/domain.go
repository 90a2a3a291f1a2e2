package rbac

import (
	"strings"

	"golang.org/x/text/cases"
)

// Resource identifies a protected collection of backend data.
type Resource string

// Canonical resources.
const (
	ResourceProjects      Resource = "projects"
	ResourceMembers       Resource = "members"
	ResourceFinance       Resource = "finance"
	ResourceTasks         Resource = "tasks"
	ResourceMeetings      Resource = "meetings"
	ResourceReports       Resource = "reports"
	ResourceChatbot       Resource = "chatbot"
	ResourceNotifications Resource = "notifications"
)

// ResourcePendingUsers is an alias of ResourceMembers used by the validation queue.
const ResourcePendingUsers Resource = "pendingUsers"

var canonicalResources = []Resource{
	ResourceProjects,
	ResourceMembers,
	ResourceFinance,
	ResourceTasks,
	ResourceMeetings,
	ResourceReports,
	ResourceChatbot,
	ResourceNotifications,
}

var resourceAliases = map[Resource]Resource{
	ResourceProjects:      ResourceProjects,
	ResourceMembers:       ResourceMembers,
	ResourceFinance:       ResourceFinance,
	ResourceTasks:         ResourceTasks,
	ResourceMeetings:      ResourceMeetings,
	ResourceReports:       ResourceReports,
	ResourceChatbot:       ResourceChatbot,
	ResourceNotifications: ResourceNotifications,
	ResourcePendingUsers:  ResourceMembers,
}

// CanonicalResources lists every canonical resource in a stable order.
func CanonicalResources() []Resource {
	out := make([]Resource, len(canonicalResources))
	copy(out, canonicalResources)
	return out
}

// Canonical resolves aliases. The boolean is false for unregistered names.
func (r Resource) Canonical() (Resource, bool) {
	c, ok := resourceAliases[r]
	return c, ok
}

// Action is an operation applied to a resource.
type Action string

// Known actions.
const (
	ActionView         Action = "view"
	ActionCreate       Action = "create"
	ActionEdit         Action = "edit"
	ActionDelete       Action = "delete"
	ActionValidateUser Action = "validate_user"
)

var actionBits = map[Action]ActionSet{
	ActionView:         1 << 0,
	ActionCreate:       1 << 1,
	ActionEdit:         1 << 2,
	ActionDelete:       1 << 3,
	ActionValidateUser: 1 << 4,
}

var actionOrder = []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionValidateUser}

// Known reports whether the action belongs to the closed action set.
func (a Action) Known() bool {
	_, ok := actionBits[a]
	return ok
}

// ActionSet is a set of actions. The zero value is the empty set.
type ActionSet uint8

// NewActionSet builds a set from the given actions, ignoring unknown ones.
func NewActionSet(actions ...Action) ActionSet {
	var s ActionSet
	for _, a := range actions {
		s |= actionBits[a]
	}
	return s
}

// Has reports membership. Unknown actions are never members.
func (s ActionSet) Has(a Action) bool {
	bit, ok := actionBits[a]
	if !ok {
		return false
	}
	return s&bit != 0
}

// Actions returns the members in declaration order.
func (s ActionSet) Actions() []Action {
	out := make([]Action, 0, len(actionOrder))
	for _, a := range actionOrder {
		if s.Has(a) {
			out = append(out, a)
		}
	}
	return out
}

// crud is the blanket grant for superusers and the validator role class.
var crud = NewActionSet(ActionView, ActionCreate, ActionEdit, ActionDelete)

// Role is the closed set of association roles known to the portal.
type Role int

const (
	// RoleNone means the profile carried no role.
	RoleNone Role = iota
	// RoleUnknown is any role name outside the known set.
	RoleUnknown
	RolePresident
	RoleTreasurer
	RoleSecretary
	RoleMember
)

var roleNames = map[string]Role{
	"president": RolePresident,
	"treasurer": RoleTreasurer,
	"secretary": RoleSecretary,
	"member":    RoleMember,
}

// ParseRole maps a backend role name onto Role, ignoring case.
// A Caser is not safe for concurrent use, so one is built per call.
func ParseRole(name string) Role {
	name = strings.TrimSpace(name)
	if name == "" {
		return RoleNone
	}
	if role, ok := roleNames[cases.Fold().String(name)]; ok {
		return role
	}
	return RoleUnknown
}

// IsValidator reports whether the role belongs to the validator role class.
func (r Role) IsValidator() bool {
	switch r {
	case RolePresident, RoleTreasurer, RoleSecretary:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	switch r {
	case RolePresident:
		return "president"
	case RoleTreasurer:
		return "treasurer"
	case RoleSecretary:
		return "secretary"
	case RoleMember:
		return "member"
	case RoleUnknown:
		return "unknown"
	default:
		return ""
	}
}

// Profile is the subset of the backend user profile the portal consumes.
type Profile struct {
	ID          int64
	RoleName    string
	IsSuperuser bool
}

// Principal describes the authenticated actor once resolved.
type Principal struct {
	ID        int64
	Role      Role
	RoleName  string
	Superuser bool
}

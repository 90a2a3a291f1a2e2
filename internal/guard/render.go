package guard

import (
	"html/template"

	"github.com/assocportal/portal/internal/rbac"
)

// View exposes permission checks to templates. It holds no state of its
// own; every call reads the live permissions.
type View struct {
	perms Authorizer
}

// NewView wraps the session permissions for templates.
func NewView(a Authorizer) View {
	return View{perms: a}
}

// Can reports whether action is allowed on resource.
func (v View) Can(action, resource string) bool {
	return v.perms != nil && !v.perms.Loading() && v.perms.Can(rbac.Action(action), rbac.Resource(resource))
}

// IsSuperuser reports the superuser flag.
func (v View) IsSuperuser() bool {
	return v.perms != nil && v.perms.IsSuperuser()
}

// CanValidateUsers reports the validator flag.
func (v View) CanValidateUsers() bool {
	return v.perms != nil && v.perms.CanValidateUsers()
}

// Loading reports whether permissions are still resolving.
func (v View) Loading() bool {
	return v.perms == nil || v.perms.Loading()
}

// When renders children if action on resource is allowed, else fallback.
func When(a Authorizer, action rbac.Action, resource rbac.Resource, children, fallback template.HTML) template.HTML {
	if Evaluate(a, action, resource) == VerdictAllowed {
		return children
	}
	return fallback
}

// SuperuserOnly renders children for superusers only.
func SuperuserOnly(a Authorizer, children, fallback template.HTML) template.HTML {
	if a != nil && a.IsSuperuser() {
		return children
	}
	return fallback
}

// ValidatorOnly renders children for sessions that may validate users.
func ValidatorOnly(a Authorizer, children, fallback template.HTML) template.HTML {
	if a != nil && a.CanValidateUsers() {
		return children
	}
	return fallback
}

// FuncMap exposes the helpers to html/template. Each takes the View of the
// current request as first argument.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"permitted": func(v View, action, resource string, children template.HTML, fallback ...template.HTML) template.HTML {
			return When(v.perms, rbac.Action(action), rbac.Resource(resource), children, first(fallback))
		},
		"superuserOnly": func(v View, children template.HTML, fallback ...template.HTML) template.HTML {
			return SuperuserOnly(v.perms, children, first(fallback))
		},
		"validatorOnly": func(v View, children template.HTML, fallback ...template.HTML) template.HTML {
			return ValidatorOnly(v.perms, children, first(fallback))
		},
	}
}

func first(values []template.HTML) template.HTML {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

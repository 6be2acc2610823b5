// Package access decides whether a requested view may render for the
// current session. The decision is pure and must be re-evaluated on every
// navigation: the role can change underneath an open view when a profile
// refresh completes.
package access

import (
	"github.com/atinyakov/taskdeck/internal/models"
)

// Requirement is the access level a view demands.
type Requirement string

const (
	// Any views render for everyone.
	Any Requirement = "any"
	// Authenticated views require a credential.
	Authenticated Requirement = "authenticated"
	// Admin views require a credential and the admin role.
	Admin Requirement = "admin"
)

// View names a navigation target.
type View string

const (
	// ViewLogin is the login screen.
	ViewLogin View = "login"
	// ViewDashboard is the authenticated landing screen.
	ViewDashboard View = "dashboard"
)

// Session is the read-only slice of the session store the gate consults.
type Session interface {
	Token() string
	CurrentUser() *models.UserProfile
}

// Decision is the outcome of an access check. When Allow is false, Redirect
// names the view to render instead.
type Decision struct {
	Allow    bool
	Redirect View
}

// CanAccess applies the decision table:
//
//	any            → allow
//	authenticated  → allow iff credential present, else login
//	admin          → allow iff credential present and role is admin;
//	                 redirect to dashboard when merely authenticated,
//	                 login when anonymous
func CanAccess(req Requirement, s Session) Decision {
	switch req {
	case Authenticated:
		if s.Token() == "" {
			return Decision{Redirect: ViewLogin}
		}
		return Decision{Allow: true}
	case Admin:
		if s.Token() == "" {
			return Decision{Redirect: ViewLogin}
		}
		if u := s.CurrentUser(); u != nil && u.Role == models.RoleAdmin {
			return Decision{Allow: true}
		}
		return Decision{Redirect: ViewDashboard}
	default:
		return Decision{Allow: true}
	}
}

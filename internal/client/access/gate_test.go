package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/atinyakov/taskdeck/internal/models"
)

type fakeSession struct {
	token string
	user  *models.UserProfile
}

func (f fakeSession) Token() string                    { return f.token }
func (f fakeSession) CurrentUser() *models.UserProfile { return f.user }

func TestCanAccessAny(t *testing.T) {
	assert.True(t, CanAccess(Any, fakeSession{}).Allow)
	assert.True(t, CanAccess(Any, fakeSession{token: "t"}).Allow)
}

func TestCanAccessAuthenticated(t *testing.T) {
	d := CanAccess(Authenticated, fakeSession{})
	assert.False(t, d.Allow)
	assert.Equal(t, ViewLogin, d.Redirect)

	assert.True(t, CanAccess(Authenticated, fakeSession{token: "t"}).Allow)
}

func TestCanAccessAdmin(t *testing.T) {
	admin := &models.UserProfile{Role: models.RoleAdmin}
	user := &models.UserProfile{Role: models.RoleUser}

	tests := []struct {
		name     string
		session  fakeSession
		allow    bool
		redirect View
	}{
		{name: "no credential no role", session: fakeSession{}, redirect: ViewLogin},
		{name: "no credential admin profile", session: fakeSession{user: admin}, redirect: ViewLogin},
		{name: "credential non-admin", session: fakeSession{token: "t", user: user}, redirect: ViewDashboard},
		{name: "credential admin", session: fakeSession{token: "t", user: admin}, allow: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := CanAccess(Admin, tt.session)
			assert.Equal(t, tt.allow, d.Allow)
			if !tt.allow {
				assert.Equal(t, tt.redirect, d.Redirect)
			}
		})
	}
}

func TestCanAccessAdminProfileNotYetFetched(t *testing.T) {
	// Credential present but the profile refresh has not completed yet:
	// not provably admin, so fall back to the dashboard.
	d := CanAccess(Admin, fakeSession{token: "t"})
	assert.False(t, d.Allow)
	assert.Equal(t, ViewDashboard, d.Redirect)
}

// Package session owns the bearer credential and the authenticated user's
// profile. It is the sole mutator of the credential; every other component
// only reads it through the api.TokenSource interface.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/atinyakov/taskdeck/internal/client/api"
	"github.com/atinyakov/taskdeck/internal/models"
)

// State is the session lifecycle state.
type State int

const (
	// Anonymous means no credential is set.
	Anonymous State = iota
	// Authenticating means a login call is in flight.
	Authenticating
	// Authenticated means a credential is set and the profile was fetched.
	Authenticated
	// Invalid means the last login attempt was rejected.
	Invalid
)

// persisted is the on-disk session shape. Fixed keys, mirroring what the
// backend reports at /users/me plus the credential itself.
type persisted struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Store holds the current credential and profile, persisting both across
// restarts so a new process resumes Authenticated as long as the backend
// still accepts the token.
type Store struct {
	api  *api.Client
	log  *zap.Logger
	path string

	mu      sync.Mutex
	state   State
	token   string
	profile *models.UserProfile
}

// New creates a session store persisting to the file at path. It registers
// itself as the client's token source and unauthorized handler, so any 401
// on an authenticated call invalidates the session immediately.
func New(client *api.Client, log *zap.Logger, path string) *Store {
	s := &Store{
		api:   client,
		log:   log,
		path:  path,
		state: Anonymous,
	}
	client.SetTokenSource(s)
	client.SetUnauthorizedHandler(s.Invalidate)
	return s
}

// Load restores a previously persisted session. A missing file leaves the
// store Anonymous. When a token is restored the profile is refreshed right
// away; a rejected token clears everything.
func (s *Store) Load(ctx context.Context) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Token == "" {
		return nil
	}

	s.mu.Lock()
	s.token = p.Token
	s.state = Authenticated
	s.profile = &models.UserProfile{Username: p.Username, Email: p.Email, Role: p.Role}
	s.mu.Unlock()

	// Credential changed: the profile must be re-fetched so it never goes
	// stale relative to the token.
	return s.refreshProfile(ctx)
}

// Login exchanges credentials for a bearer token, fetches the profile and
// persists both. On a rejected login the credential stays unset and the
// *api.AuthError is returned for display.
func (s *Store) Login(ctx context.Context, username, password string) error {
	s.mu.Lock()
	s.state = Authenticating
	s.mu.Unlock()

	tok, err := s.api.Login(ctx, username, password)
	if err != nil {
		s.mu.Lock()
		s.state = Invalid
		s.token = ""
		s.profile = nil
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.token = tok.AccessToken
	s.state = Authenticated
	s.mu.Unlock()

	return s.refreshProfile(ctx)
}

// Logout clears the credential, the profile and the persisted file
// unconditionally. It never fails.
func (s *Store) Logout() {
	s.clear()
}

// Invalidate drops the session after the backend rejected the credential.
// Stale tokens are discarded, not retried.
func (s *Store) Invalidate() {
	s.mu.Lock()
	hadToken := s.token != ""
	s.mu.Unlock()
	if hadToken {
		s.log.Warn("session rejected by backend, logging out")
	}
	s.clear()
}

func (s *Store) clear() {
	s.mu.Lock()
	s.token = ""
	s.profile = nil
	s.state = Anonymous
	s.mu.Unlock()
	_ = os.Remove(s.path)
}

// refreshProfile fetches /users/me for the current credential and persists
// the result. An unauthorized response clears the session instead.
func (s *Store) refreshProfile(ctx context.Context) error {
	profile, err := s.api.Me(ctx)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			// Invalidate already ran via the client's unauthorized handler,
			// but guard against a client wired without one.
			s.clear()
			return err
		}
		return err
	}

	s.mu.Lock()
	s.profile = &profile
	s.mu.Unlock()

	return s.save()
}

func (s *Store) save() error {
	s.mu.Lock()
	p := persisted{Token: s.token}
	if s.profile != nil {
		p.Username = s.profile.Username
		p.Email = s.profile.Email
		p.Role = s.profile.Role
	}
	s.mu.Unlock()

	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0600)
}

// Token returns the current bearer credential, or "" when anonymous.
// Implements api.TokenSource.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// CurrentUser returns a copy of the authenticated profile, or nil.
func (s *Store) CurrentUser() *models.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		return nil
	}
	p := *s.profile
	return &p
}

// State returns the current lifecycle state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

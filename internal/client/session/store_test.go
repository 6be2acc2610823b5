package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atinyakov/taskdeck/internal/client/api"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, v any) *http.Response {
	b, _ := json.Marshal(v)
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(b)),
	}
}

// newStore wires a session store against a fake transport, persisting to a
// temp file.
func newStore(t *testing.T, fn roundTripperFunc) (*Store, string) {
	t.Helper()
	client := api.New("http://example.com", zap.NewNop())
	client.SetHTTPClient(&http.Client{Transport: fn, Timeout: time.Second})
	path := filepath.Join(t.TempDir(), "session.json")
	return New(client, zap.NewNop(), path), path
}

func okBackend(t *testing.T) roundTripperFunc {
	t.Helper()
	return func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/users/token":
			return jsonResponse(http.StatusOK, map[string]string{
				"access_token": "tok-1", "token_type": "bearer",
			}), nil
		case "/users/me":
			if req.Header.Get("Authorization") != "Bearer tok-1" {
				return jsonResponse(http.StatusUnauthorized, nil), nil
			}
			return jsonResponse(http.StatusOK, map[string]any{
				"id": 1, "username": "bob", "email": "bob@example.com", "role": "admin",
			}), nil
		default:
			t.Errorf("unexpected request: %s %s", req.Method, req.URL.Path)
			return jsonResponse(http.StatusNotFound, nil), nil
		}
	}
}

func TestLoginSuccessPersistsSession(t *testing.T) {
	store, path := newStore(t, okBackend(t))

	require.NoError(t, store.Login(context.Background(), "bob", "secret"))
	assert.Equal(t, Authenticated, store.State())
	assert.Equal(t, "tok-1", store.Token())

	u := store.CurrentUser()
	require.NotNil(t, u)
	assert.Equal(t, "bob", u.Username)
	assert.Equal(t, "admin", u.Role)

	// The session file holds the fixed keys for the next process.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var p map[string]string
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, "tok-1", p["token"])
	assert.Equal(t, "bob", p["username"])
	assert.Equal(t, "admin", p["role"])
}

func TestLoginFailureStaysAnonymousCredential(t *testing.T) {
	store, path := newStore(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnauthorized, nil), nil
	})

	err := store.Login(context.Background(), "bob", "wrong")
	var authErr *api.AuthError
	require.ErrorAs(t, err, &authErr)

	assert.Equal(t, Invalid, store.State())
	assert.Empty(t, store.Token())
	assert.Nil(t, store.CurrentUser())
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestLogoutClearsEverything(t *testing.T) {
	store, path := newStore(t, okBackend(t))
	require.NoError(t, store.Login(context.Background(), "bob", "secret"))

	store.Logout()

	assert.Equal(t, Anonymous, store.State())
	assert.Empty(t, store.Token())
	assert.Nil(t, store.CurrentUser())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestUnauthorizedOnAnyCallForcesLogout(t *testing.T) {
	authorized := true
	store, _ := newStore(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/users/token" {
			return jsonResponse(http.StatusOK, map[string]string{"access_token": "tok-1"}), nil
		}
		if !authorized {
			return jsonResponse(http.StatusUnauthorized, nil), nil
		}
		return jsonResponse(http.StatusOK, map[string]any{
			"id": 1, "username": "bob", "role": "user",
		}), nil
	})

	require.NoError(t, store.Login(context.Background(), "bob", "secret"))
	require.Equal(t, Authenticated, store.State())

	// Backend starts rejecting the token: the next profile refresh drops the
	// session instead of retrying.
	authorized = false
	err := store.Load(context.Background())
	assert.True(t, errors.Is(err, api.ErrUnauthorized) || err == nil)
	assert.Equal(t, Anonymous, store.State())
	assert.Empty(t, store.Token())
	assert.Nil(t, store.CurrentUser())
}

func TestLoadRestoresPersistedSession(t *testing.T) {
	first, path := newStore(t, okBackend(t))
	require.NoError(t, first.Login(context.Background(), "bob", "secret"))

	// A second store on the same file resumes Authenticated without a new
	// login, as long as the backend still accepts the token.
	client := api.New("http://example.com", zap.NewNop())
	client.SetHTTPClient(&http.Client{Transport: okBackend(t), Timeout: time.Second})
	second := New(client, zap.NewNop(), path)

	require.NoError(t, second.Load(context.Background()))
	assert.Equal(t, Authenticated, second.State())
	assert.Equal(t, "tok-1", second.Token())
	require.NotNil(t, second.CurrentUser())
	assert.Equal(t, "bob", second.CurrentUser().Username)
}

func TestLoadMissingFileStaysAnonymous(t *testing.T) {
	store, _ := newStore(t, okBackend(t))
	require.NoError(t, store.Load(context.Background()))
	assert.Equal(t, Anonymous, store.State())
	assert.Empty(t, store.Token())
}

func TestLoginLogoutLeavesNoStaleRole(t *testing.T) {
	store, _ := newStore(t, okBackend(t))

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Login(context.Background(), "bob", "secret"))
		store.Logout()
	}

	assert.Empty(t, store.Token())
	assert.Nil(t, store.CurrentUser())
	assert.Equal(t, Anonymous, store.State())
}

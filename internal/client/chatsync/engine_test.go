package chatsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atinyakov/taskdeck/internal/client/api"
	"github.com/atinyakov/taskdeck/internal/models"
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

type staticToken string

func (s staticToken) Token() string { return string(s) }

// fakeChat is a minimal stateful stand-in for the chat endpoints.
type fakeChat struct {
	mu        sync.Mutex
	conv      *models.Conversation
	unread    int
	markReads int
	sends     int
	failSends bool
}

func (f *fakeChat) roundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case req.Method == http.MethodGet && req.URL.Path == "/chats/admin":
		if f.conv == nil {
			return jsonResponse(http.StatusNotFound, map[string]string{"detail": "no active admin chat found"}), nil
		}
		return jsonResponse(http.StatusOK, f.conv), nil
	case req.Method == http.MethodGet && req.URL.Path == "/chats/admin/status":
		return jsonResponse(http.StatusOK, models.AdminStatus{IsOnline: true, LastSeen: time.Now()}), nil
	case req.Method == http.MethodGet && req.URL.Path == "/chats/admin/unread":
		return jsonResponse(http.StatusOK, map[string]int{"unread_count": f.unread}), nil
	case req.Method == http.MethodPost && req.URL.Path == "/chats/admin/message":
		if f.failSends {
			return jsonResponse(http.StatusInternalServerError, nil), nil
		}
		f.sends++
		var body struct {
			Content string `json:"content"`
		}
		_ = json.NewDecoder(req.Body).Decode(&body)
		if f.conv == nil {
			f.conv = &models.Conversation{ID: 1, UserID: 7, Title: "Support Chat - bob", IsAdminChat: true}
		}
		msg := models.Message{
			ID:        len(f.conv.Messages) + 1,
			ChatID:    f.conv.ID,
			SenderID:  7,
			Content:   body.Content,
			CreatedAt: time.Now(),
		}
		f.conv.Messages = append(f.conv.Messages, msg)
		return jsonResponse(http.StatusOK, msg), nil
	case req.Method == http.MethodPut && req.URL.Path == "/chats/admin/read/1":
		f.markReads++
		changed := false
		for i := range f.conv.Messages {
			if f.conv.Messages[i].IsAdmin && !f.conv.Messages[i].IsRead {
				f.conv.Messages[i].IsRead = true
				changed = true
			}
		}
		if changed {
			f.unread = 0
		}
		return jsonResponse(http.StatusOK, map[string]string{"message": "ok"}), nil
	}
	return jsonResponse(http.StatusNotFound, nil), nil
}

func newEngine(fake *fakeChat) *Engine {
	client := api.New("http://example.com", zap.NewNop())
	client.SetHTTPClient(&http.Client{Transport: roundTripperFunc(fake.roundTrip), Timeout: time.Second})
	client.SetTokenSource(staticToken("tok"))
	return NewEngine(client, zap.NewNop())
}

func TestNoConversationIsEmptyStateNotError(t *testing.T) {
	e := newEngine(&fakeChat{})

	require.NoError(t, e.RefreshConversation(context.Background()))

	snap := e.Snapshot()
	assert.Nil(t, snap.Conversation)
	assert.Nil(t, snap.Err)
}

func TestRefreshMarksLoadedMessagesRead(t *testing.T) {
	fake := &fakeChat{
		conv: &models.Conversation{
			ID: 1, UserID: 7, Title: "Support Chat - bob", IsAdminChat: true,
			Messages: []models.Message{
				{ID: 1, ChatID: 1, Content: "hi", IsAdmin: true, CreatedAt: time.Now()},
			},
		},
		unread: 1,
	}
	e := newEngine(fake)

	require.NoError(t, e.RefreshConversation(context.Background()))

	assert.Equal(t, 1, fake.markReads)
	assert.Equal(t, 0, e.Snapshot().Unread)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	fake := &fakeChat{
		conv: &models.Conversation{
			ID: 1, UserID: 7,
			Messages: []models.Message{{ID: 1, ChatID: 1, Content: "hi", IsAdmin: true, IsRead: true}},
		},
	}
	e := newEngine(fake)

	// Re-marking an already-read conversation is a no-op, not an error.
	require.NoError(t, e.RefreshConversation(context.Background()))
	require.NoError(t, e.RefreshConversation(context.Background()))

	assert.Equal(t, 2, fake.markReads)
	assert.Equal(t, 0, e.Snapshot().Unread)
}

func TestSendAppendsViaServerRoundTrip(t *testing.T) {
	fake := &fakeChat{}
	e := newEngine(fake)

	// Empty state first: no conversation exists yet.
	require.NoError(t, e.RefreshConversation(context.Background()))
	require.Nil(t, e.Snapshot().Conversation)

	require.NoError(t, e.Send(context.Background(), "Hello"))

	snap := e.Snapshot()
	require.NotNil(t, snap.Conversation)
	require.Len(t, snap.Conversation.Messages, 1)
	assert.Equal(t, "Hello", snap.Conversation.Messages[0].Content)
	assert.False(t, snap.Conversation.Messages[0].IsAdmin)
}

func TestSendEmptyNeverReachesBackend(t *testing.T) {
	fake := &fakeChat{}
	e := newEngine(fake)

	err := e.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, api.ErrEmptyMessage)
	assert.Equal(t, 0, fake.sends)
}

func TestSendFailureSurfacesWithoutLocalInsert(t *testing.T) {
	fake := &fakeChat{failSends: true}
	e := newEngine(fake)

	err := e.Send(context.Background(), "Hello")
	var se *api.StatusError
	assert.True(t, errors.As(err, &se))
	assert.Nil(t, e.Snapshot().Conversation)
}

func TestPollingLoopsRunIndependentlyAndStop(t *testing.T) {
	fake := &fakeChat{}
	e := newEngine(fake)
	e.ConversationInterval = 10 * time.Millisecond
	e.StatusInterval = 10 * time.Millisecond
	e.UnreadInterval = 10 * time.Millisecond

	e.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	e.Stop()

	// The status loop ran even though the conversation fetch 404s each tick.
	snap := e.Snapshot()
	assert.True(t, snap.Status.IsOnline)
	assert.Nil(t, snap.Conversation)
}

func TestDismissError(t *testing.T) {
	e := newEngine(&fakeChat{})
	e.recordErr(errors.New("transient"))

	require.Error(t, e.Snapshot().Err)
	e.DismissError()
	assert.Nil(t, e.Snapshot().Err)
}

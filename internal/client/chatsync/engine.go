// Package chatsync keeps the end-user's support conversation, the
// counterpart's presence and the unread counter eventually consistent with
// the backend by polling. Each data cell has its own timer so one slow
// request never blocks the others; every poll is a full-state refresh, so a
// stale response applying late self-corrects on the next tick.
package chatsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/taskdeck/internal/client/api"
	"github.com/atinyakov/taskdeck/internal/models"
)

// Default polling periods. Intentionally uncorrelated.
const (
	DefaultConversationInterval = 15 * time.Second
	DefaultStatusInterval       = 30 * time.Second
	DefaultUnreadInterval       = 20 * time.Second
)

// Snapshot is a consistent copy of the engine's local view for rendering.
type Snapshot struct {
	// Conversation is nil while no conversation exists yet (empty state).
	Conversation *models.Conversation
	Status       models.AdminStatus
	Unread       int
	// Err is the last transient failure, dismissible by the user.
	Err error
}

// Engine drives the end-user side of the support chat.
type Engine struct {
	api *api.Client
	log *zap.Logger

	// Polling periods; override before Start. Tests shrink these.
	ConversationInterval time.Duration
	StatusInterval       time.Duration
	UnreadInterval       time.Duration

	mu      sync.Mutex
	conv    *models.Conversation
	status  models.AdminStatus
	unread  int
	lastErr error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates an engine with the default polling periods.
func NewEngine(client *api.Client, log *zap.Logger) *Engine {
	return &Engine{
		api:                  client,
		log:                  log,
		ConversationInterval: DefaultConversationInterval,
		StatusInterval:       DefaultStatusInterval,
		UnreadInterval:       DefaultUnreadInterval,
	}
}

// Start launches the three polling loops. Each loop refreshes once
// immediately and then on its own timer until Stop or ctx cancellation.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	e.poll(ctx, e.ConversationInterval, e.RefreshConversation)
	e.poll(ctx, e.StatusInterval, e.RefreshStatus)
	e.poll(ctx, e.UnreadInterval, e.RefreshUnread)
}

// Stop cancels all timers and waits for the loops to exit. In-flight
// requests resolve into a dead engine and their results are discarded by
// the callers that no longer render.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// poll runs fn immediately and then every interval. A failure records the
// error for display but never cancels the schedule.
func (e *Engine) poll(ctx context.Context, interval time.Duration, fn func(context.Context) error) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		if err := fn(ctx); err != nil {
			e.recordErr(err)
		}

		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := fn(ctx); err != nil {
					e.recordErr(err)
				}
			}
		}
	}()
}

func (e *Engine) recordErr(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	e.log.Warn("chat poll failed", zap.Error(err))
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
}

// RefreshConversation fetches the conversation. "Not found" means no
// conversation has started yet and renders as the empty state, not a
// failure. A non-empty message list triggers an idempotent mark-read and an
// unread refresh, matching what a visible chat view acknowledges.
func (e *Engine) RefreshConversation(ctx context.Context) error {
	conv, err := e.api.UserChat(ctx)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			e.mu.Lock()
			e.conv = nil
			e.mu.Unlock()
			return nil
		}
		return err
	}

	models.SortMessages(conv.Messages)

	e.mu.Lock()
	e.conv = &conv
	e.mu.Unlock()

	if len(conv.Messages) > 0 {
		// Re-marking already-read messages is a server-side no-op.
		if err := e.api.MarkRead(ctx, conv.ID); err != nil {
			e.log.Debug("mark read failed", zap.Error(err))
		} else if err := e.RefreshUnread(ctx); err != nil {
			e.log.Debug("unread refresh failed", zap.Error(err))
		}
	}
	return nil
}

// RefreshStatus fetches the counterpart's presence. Independent of
// conversation existence.
func (e *Engine) RefreshStatus(ctx context.Context) error {
	status, err := e.api.AdminStatus(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.status = status
	e.mu.Unlock()
	return nil
}

// RefreshUnread fetches the unread scalar.
func (e *Engine) RefreshUnread(ctx context.Context) error {
	n, err := e.api.UnreadCount(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.unread = n
	e.mu.Unlock()
	return nil
}

// Send posts a message and refreshes the conversation so the server-assigned
// id and timestamp appear. There is no optimistic local insert; the server
// is the source of truth for ordering. Empty content is rejected before any
// request is made.
func (e *Engine) Send(ctx context.Context, content string) error {
	if _, err := e.api.SendMessage(ctx, content); err != nil {
		return err
	}
	return e.RefreshConversation(ctx)
}

// DismissError clears the displayed transient error.
func (e *Engine) DismissError() {
	e.mu.Lock()
	e.lastErr = nil
	e.mu.Unlock()
}

// Snapshot returns a copy of the current local view.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{Status: e.status, Unread: e.unread, Err: e.lastErr}
	if e.conv != nil {
		c := *e.conv
		c.Messages = append([]models.Message(nil), e.conv.Messages...)
		snap.Conversation = &c
	}
	return snap
}

// Package switchboard is the admin-side counterpart of chatsync: it keeps
// the full set of support conversations fresh on one timer, tracks the
// selected conversation, and pushes the admin's own presence with an
// optimistic toggle that rolls back on failure.
package switchboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/taskdeck/internal/client/api"
	"github.com/atinyakov/taskdeck/internal/models"
)

// DefaultRefreshInterval is the conversation-list polling period.
const DefaultRefreshInterval = 10 * time.Second

// Snapshot is a consistent copy of the switchboard state for rendering.
type Snapshot struct {
	// Chats is in server-prioritized order; never re-sorted client-side.
	Chats []models.Conversation
	// SelectedID is 0 while nothing is selected.
	SelectedID int
	// Online is the displayed presence toggle: the pending optimistic value
	// while a push is in flight, the confirmed server value otherwise.
	Online bool
	// Err is the last transient failure, dismissible by the user.
	Err error
}

// Switchboard drives the admin view over all support conversations.
type Switchboard struct {
	api *api.Client
	log *zap.Logger

	// RefreshInterval is the list polling period; override before Start.
	RefreshInterval time.Duration

	mu       sync.Mutex
	chats    []models.Conversation
	selected int
	online   bool  // confirmed by the server
	pending  *bool // optimistic value awaiting confirmation
	lastErr  error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a switchboard with the default polling period.
func New(client *api.Client, log *zap.Logger) *Switchboard {
	return &Switchboard{
		api:             client,
		log:             log,
		RefreshInterval: DefaultRefreshInterval,
	}
}

// Start launches the list polling loop: one immediate refresh, then one per
// RefreshInterval until Stop or ctx cancellation.
func (s *Switchboard) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if err := s.RefreshAll(ctx); err != nil {
			s.recordErr(err)
		}

		t := time.NewTicker(s.RefreshInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := s.RefreshAll(ctx); err != nil {
					s.recordErr(err)
				}
			}
		}
	}()
}

// Stop cancels the timer and waits for the loop to exit.
func (s *Switchboard) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Switchboard) recordErr(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	s.log.Warn("switchboard poll failed", zap.Error(err))
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// RefreshAll fetches every conversation. When nothing is selected yet and
// the set is non-empty, the first conversation in server order is
// auto-selected, which marks it read the same way an explicit selection
// does.
func (s *Switchboard) RefreshAll(ctx context.Context) error {
	chats, err := s.api.AllChats(ctx)
	if err != nil {
		return err
	}
	for i := range chats {
		models.SortMessages(chats[i].Messages)
	}

	s.mu.Lock()
	s.chats = chats
	autoSelect := s.selected == 0 && len(chats) > 0
	if autoSelect {
		s.selected = chats[0].ID
	}
	id := s.selected
	s.mu.Unlock()

	if autoSelect {
		return s.ackSelected(ctx, id)
	}
	return nil
}

// Select makes the given conversation active. Messages come from the
// already-fetched list; no per-conversation fetch exists. Selection marks
// the conversation read and refreshes the list once outside the timer so
// the unread badges update immediately.
func (s *Switchboard) Select(ctx context.Context, id int) error {
	s.mu.Lock()
	s.selected = id
	s.mu.Unlock()
	return s.ackSelected(ctx, id)
}

// ackSelected marks the selected conversation read and re-fetches the list.
// The selected id is non-zero here, so the refresh cannot auto-select again.
func (s *Switchboard) ackSelected(ctx context.Context, id int) error {
	if err := s.api.MarkRead(ctx, id); err != nil {
		return err
	}

	chats, err := s.api.AllChats(ctx)
	if err != nil {
		return err
	}
	for i := range chats {
		models.SortMessages(chats[i].Messages)
	}
	s.mu.Lock()
	s.chats = chats
	s.mu.Unlock()
	return nil
}

// Reply posts an admin reply into the given conversation, then refreshes
// the list and the read state so the sidebar badges stay current. Empty
// content is rejected before any request is made.
func (s *Switchboard) Reply(ctx context.Context, id int, content string) error {
	if _, err := s.api.Reply(ctx, id, content); err != nil {
		return err
	}
	return s.ackSelected(ctx, id)
}

// SetPresence pushes the admin's own online flag. The toggle flips
// optimistically while the push is in flight; on failure it reverts to the
// last server-confirmed value rather than silently diverging.
func (s *Switchboard) SetPresence(ctx context.Context, online bool) error {
	s.mu.Lock()
	s.pending = &online
	s.mu.Unlock()

	status, err := s.api.SetAdminStatus(ctx, online)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	if err != nil {
		return err
	}
	s.online = status.IsOnline
	return nil
}

// DismissError clears the displayed transient error.
func (s *Switchboard) DismissError() {
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()
}

// Selected returns the conversation currently active, or nil.
func (s *Switchboard) Selected() *models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.chats {
		if s.chats[i].ID == s.selected {
			c := s.chats[i]
			c.Messages = append([]models.Message(nil), c.Messages...)
			return &c
		}
	}
	return nil
}

// Snapshot returns a copy of the current switchboard state.
func (s *Switchboard) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Chats:      append([]models.Conversation(nil), s.chats...),
		SelectedID: s.selected,
		Online:     s.online,
		Err:        s.lastErr,
	}
	if s.pending != nil {
		snap.Online = *s.pending
	}
	return snap
}

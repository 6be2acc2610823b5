// Package devserver is an in-memory implementation of the TaskDeck backend
// HTTP surface. It exists so the client can be run and integration-tested
// without external services; durable persistence belongs to the real
// backend.
package devserver

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/atinyakov/taskdeck/internal/models"
)

var (
	// ErrExists is returned when registering a username that is already taken.
	ErrExists = errors.New("user already exists")
	// ErrNotFound is returned for unknown task or chat ids.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the caller may not touch the resource.
	ErrForbidden = errors.New("forbidden")
)

// User is a stored account: the public profile plus the password hash.
type User struct {
	models.UserProfile
	PasswordHash []byte
}

// Store holds all backend state in memory behind one mutex. Ids are
// monotonic so clients can rely on id order as a tiebreak.
type Store struct {
	mu sync.Mutex

	users  map[string]*User
	tasks  []*models.Task
	chats  []*models.Conversation
	status models.AdminStatus

	nextUserID int
	nextTaskID int
	nextChatID int
	nextMsgID  int
}

// NewStore returns an empty store with the admin presence offline.
func NewStore() *Store {
	return &Store{
		users:  make(map[string]*User),
		status: models.AdminStatus{IsOnline: false, LastSeen: time.Now().UTC()},
	}
}

// CreateUser registers a new account. Returns ErrExists on a taken username.
func (s *Store) CreateUser(username, email, role string, passwordHash []byte) (models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; ok {
		return models.UserProfile{}, ErrExists
	}

	s.nextUserID++
	u := &User{
		UserProfile: models.UserProfile{
			ID:       s.nextUserID,
			Username: username,
			Email:    email,
			Role:     role,
		},
		PasswordHash: passwordHash,
	}
	s.users[username] = u
	return u.UserProfile, nil
}

// FindUser looks an account up by username.
func (s *Store) FindUser(username string) (*User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil, false
	}
	copied := *u
	return &copied, true
}

// Users lists every profile ordered by id.
func (s *Store) Users() []models.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.UserProfile, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.UserProfile)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CreateTask stores a new task owned by ownerID and returns it with its
// assigned id.
func (s *Store) CreateTask(ownerID int, t models.Task) models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextTaskID++
	t.ID = s.nextTaskID
	t.OwnerID = ownerID
	stored := t
	s.tasks = append(s.tasks, &stored)
	return t
}

// TasksFor lists tasks visible to the given user: their own, or everything
// for admins.
func (s *Store) TasksFor(userID int, isAdmin bool) []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Task
	for _, t := range s.tasks {
		if isAdmin || t.OwnerID == userID || (t.AssignedToID != nil && *t.AssignedToID == userID) {
			out = append(out, *t)
		}
	}
	return out
}

// DeleteTask removes a task. Non-admins may only delete their own tasks.
func (s *Store) DeleteTask(id, userID int, isAdmin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, t := range s.tasks {
		if t.ID != id {
			continue
		}
		if !isAdmin && t.OwnerID != userID {
			return fmt.Errorf("task %d: %w", id, ErrForbidden)
		}
		s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
		return nil
	}
	return fmt.Errorf("task %d: %w", id, ErrNotFound)
}

// CompleteTask marks a task completed with the same ownership rules as
// DeleteTask.
func (s *Store) CompleteTask(id, userID int, isAdmin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tasks {
		if t.ID != id {
			continue
		}
		if !isAdmin && t.OwnerID != userID && (t.AssignedToID == nil || *t.AssignedToID != userID) {
			return fmt.Errorf("task %d: %w", id, ErrForbidden)
		}
		t.Completed = true
		return nil
	}
	return fmt.Errorf("task %d: %w", id, ErrNotFound)
}

// ChatFor returns the user's support conversation, or false when none has
// been started.
func (s *Store) ChatFor(userID int) (models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.chats {
		if c.UserID == userID {
			return copyChat(c), true
		}
	}
	return models.Conversation{}, false
}

// AppendMessage appends a message to the user's conversation, creating the
// conversation on first contact. isAdmin marks admin authorship.
func (s *Store) AppendMessage(userID int, username, content string, senderID int, isAdmin bool) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var chat *models.Conversation
	for _, c := range s.chats {
		if c.UserID == userID {
			chat = c
			break
		}
	}
	if chat == nil {
		s.nextChatID++
		chat = &models.Conversation{
			ID:          s.nextChatID,
			UserID:      userID,
			Title:       fmt.Sprintf("Support Chat - %s", username),
			IsAdminChat: true,
		}
		s.chats = append(s.chats, chat)
	}

	s.nextMsgID++
	msg := models.Message{
		ID:        s.nextMsgID,
		ChatID:    chat.ID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
		IsAdmin:   isAdmin,
		IsRead:    false,
	}
	chat.Messages = append(chat.Messages, msg)
	return msg
}

// AppendReply appends an admin message to the conversation with the given
// id. Returns false when the conversation does not exist.
func (s *Store) AppendReply(chatID, senderID int, content string) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.chats {
		if c.ID == chatID {
			s.nextMsgID++
			msg := models.Message{
				ID:        s.nextMsgID,
				ChatID:    c.ID,
				SenderID:  senderID,
				Content:   content,
				CreatedAt: time.Now().UTC(),
				IsAdmin:   true,
			}
			c.Messages = append(c.Messages, msg)
			return msg, true
		}
	}
	return models.Message{}, false
}

// AllChats lists every conversation in creation order.
func (s *Store) AllChats() []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Conversation, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, copyChat(c))
	}
	return out
}

// MarkRead marks the other party's messages in the conversation as read and
// returns how many changed. Marking an already-read conversation changes
// nothing. The second return reports whether the chat exists, the third
// whether the viewer may touch it.
func (s *Store) MarkRead(chatID, viewerID int, viewerIsAdmin bool) (int, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.chats {
		if c.ID != chatID {
			continue
		}
		if !viewerIsAdmin && c.UserID != viewerID {
			return 0, true, false
		}
		n := 0
		for i := range c.Messages {
			if c.Messages[i].IsAdmin != viewerIsAdmin && !c.Messages[i].IsRead {
				c.Messages[i].IsRead = true
				n++
			}
		}
		return n, true, true
	}
	return 0, false, false
}

// UnreadFor counts unread messages authored by the other party: across all
// conversations for admins, within the user's own conversation otherwise.
func (s *Store) UnreadFor(userID int, isAdmin bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.chats {
		if !isAdmin && c.UserID != userID {
			continue
		}
		n += models.UnreadCount(c.Messages, isAdmin)
	}
	return n
}

// Status returns the admin presence.
func (s *Store) Status() models.AdminStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus updates the admin presence and refreshes last-seen.
func (s *Store) SetStatus(online bool) models.AdminStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = models.AdminStatus{IsOnline: online, LastSeen: time.Now().UTC()}
	return s.status
}

func copyChat(c *models.Conversation) models.Conversation {
	out := *c
	out.Messages = append([]models.Message(nil), c.Messages...)
	return out
}

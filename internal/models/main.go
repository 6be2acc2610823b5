// Package models defines the core data structures shared between the
// TaskDeck client and the backend wire format.
package models

import (
	"sort"
	"time"
)

// Role identifies the set of valid user roles.
type Role = string

const (
	// RoleUser is a regular end user.
	RoleUser Role = "user"
	// RoleAdmin is a support administrator.
	RoleAdmin Role = "admin"
)

// Token is the response of a successful login.
type Token struct {
	// AccessToken is the opaque bearer credential.
	AccessToken string `json:"access_token"`
	// TokenType is always "bearer".
	TokenType string `json:"token_type"`
}

// UserProfile describes the authenticated user as reported by the backend.
type UserProfile struct {
	// ID is the unique identifier for the user.
	ID int `json:"id"`
	// Username is the login name chosen by the user.
	Username string `json:"username"`
	// Email is the user's registered email address.
	Email string `json:"email"`
	// Role is either "user" or "admin".
	Role Role `json:"role"`
}

// Task is a single task item. The client never mutates tasks locally;
// it displays what the server returned.
type Task struct {
	ID           int        `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Completed    bool       `json:"completed"`
	Priority     int        `json:"priority,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	OwnerID      int        `json:"owner_id"`
	AssignedToID *int       `json:"assigned_to_id,omitempty"`
}

// Message is one chat message. Append-only from the client's perspective;
// ids and timestamps are assigned by the server.
type Message struct {
	ID        int       `json:"id"`
	ChatID    int       `json:"chat_id"`
	SenderID  int       `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	// IsAdmin reports whether the message was authored by an admin.
	IsAdmin bool `json:"is_admin"`
	// IsRead reports whether the counterpart has acknowledged the message.
	IsRead bool `json:"is_read"`
}

// Conversation is the message thread between one end user and support.
type Conversation struct {
	ID          int       `json:"id"`
	UserID      int       `json:"user_id"`
	Title       string    `json:"title"`
	IsAdminChat bool      `json:"is_admin_chat"`
	Messages    []Message `json:"messages"`
}

// AdminStatus is the support counterpart's presence.
type AdminStatus struct {
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen"`
}

// SortMessages orders messages by creation time ascending, breaking ties by
// id ascending. Server responses already arrive in this order, so sorting is
// a no-op on well-formed input.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

// UnreadCount returns how many messages the viewer has not acknowledged yet.
// Only messages authored by the other party count: an admin counts unread
// user messages, a user counts unread admin messages.
func UnreadCount(msgs []Message, viewerIsAdmin bool) int {
	n := 0
	for _, m := range msgs {
		if m.IsAdmin != viewerIsAdmin && !m.IsRead {
			n++
		}
	}
	return n
}

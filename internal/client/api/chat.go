package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/atinyakov/taskdeck/internal/models"
)

// UserChat fetches the end-user's support conversation. Returns ErrNotFound
// when no conversation has been started yet.
func (c *Client) UserChat(ctx context.Context) (models.Conversation, error) {
	var conv models.Conversation
	err := c.do(ctx, http.MethodGet, "/chats/admin", nil, &conv, true)
	return conv, err
}

// AdminStatus fetches the support counterpart's presence.
func (c *Client) AdminStatus(ctx context.Context) (models.AdminStatus, error) {
	var status models.AdminStatus
	err := c.do(ctx, http.MethodGet, "/chats/admin/status", nil, &status, true)
	return status, err
}

// UnreadCount fetches the viewer's unread-message counter.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var resp struct {
		UnreadCount int `json:"unread_count"`
	}
	err := c.do(ctx, http.MethodGet, "/chats/admin/unread", nil, &resp, true)
	return resp.UnreadCount, err
}

// SendMessage posts a message to the end-user's support conversation.
// Content must be non-empty after trimming; empty content is rejected
// locally without issuing a request.
func (c *Client) SendMessage(ctx context.Context, content string) (models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Message{}, ErrEmptyMessage
	}
	var msg models.Message
	body := map[string]string{"content": content}
	err := c.do(ctx, http.MethodPost, "/chats/admin/message", body, &msg, true)
	return msg, err
}

// MarkRead marks the counterpart's messages in the given conversation as
// read. Idempotent on the server side.
func (c *Client) MarkRead(ctx context.Context, chatID int) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/chats/admin/read/%d", chatID), nil, nil, true)
}

// AllChats lists every support conversation, in server-prioritized order.
// Admin only.
func (c *Client) AllChats(ctx context.Context) ([]models.Conversation, error) {
	var chats []models.Conversation
	err := c.do(ctx, http.MethodGet, "/chats/admin/all", nil, &chats, true)
	return chats, err
}

// SetAdminStatus pushes the admin's own presence flag and returns the
// confirmed server value.
func (c *Client) SetAdminStatus(ctx context.Context, online bool) (models.AdminStatus, error) {
	var status models.AdminStatus
	body := map[string]bool{"is_online": online}
	err := c.do(ctx, http.MethodPut, "/chats/admin/status", body, &status, true)
	return status, err
}

// Reply posts an admin reply into the given conversation. Same content
// contract as SendMessage.
func (c *Client) Reply(ctx context.Context, chatID int, content string) (models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Message{}, ErrEmptyMessage
	}
	var msg models.Message
	body := map[string]string{"content": content}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/chats/admin/reply/%d", chatID), body, &msg, true)
	return msg, err
}

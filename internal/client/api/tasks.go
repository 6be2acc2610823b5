package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/atinyakov/taskdeck/internal/models"
)

// TaskFilter narrows and orders the task listing. Zero values mean
// "no filter"; the backend applies its own defaults for sorting.
type TaskFilter struct {
	Completed *bool
	Priority  int
	SortBy    string
	SortOrder string
}

func (f TaskFilter) query() string {
	q := url.Values{}
	if f.Completed != nil {
		q.Set("completed", strconv.FormatBool(*f.Completed))
	}
	if f.Priority > 0 {
		q.Set("priority", strconv.Itoa(f.Priority))
	}
	if f.SortBy != "" {
		q.Set("sort_by", f.SortBy)
	}
	if f.SortOrder != "" {
		q.Set("sort_order", f.SortOrder)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// Tasks lists the authenticated user's tasks.
func (c *Client) Tasks(ctx context.Context, filter TaskFilter) ([]models.Task, error) {
	var tasks []models.Task
	err := c.do(ctx, http.MethodGet, "/tasks"+filter.query(), nil, &tasks, true)
	return tasks, err
}

// CreateTask creates a new task owned by the authenticated user.
func (c *Client) CreateTask(ctx context.Context, task models.Task) (models.Task, error) {
	var created models.Task
	err := c.do(ctx, http.MethodPost, "/tasks", task, &created, true)
	return created, err
}

// DeleteTask removes a task by id.
func (c *Client) DeleteTask(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/tasks/%d", id), nil, nil, true)
}

// CompleteTask marks a task as completed.
func (c *Client) CompleteTask(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/tasks/%d/complete", id), nil, nil, true)
}

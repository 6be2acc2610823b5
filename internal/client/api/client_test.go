package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

// roundTripperFunc lets tests mock the http.Client transport.
type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(fn roundTripperFunc) *Client {
	c := New("http://example.com", zap.NewNop())
	c.SetHTTPClient(&http.Client{Transport: fn, Timeout: time.Second})
	return c
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

func TestDoAttachesBearerCredential(t *testing.T) {
	var gotAuth, gotReqID string
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		gotAuth = req.Header.Get("Authorization")
		gotReqID = req.Header.Get("X-Request-Id")
		return jsonResponse(http.StatusOK, map[string]any{"id": 1, "username": "bob"}), nil
	})
	c.SetTokenSource(staticToken("tok-123"))

	if _, err := c.Me(context.Background()); err != nil {
		t.Fatalf("Me failed: %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q; want Bearer tok-123", gotAuth)
	}
	if gotReqID == "" {
		t.Errorf("expected X-Request-Id header")
	}
}

func TestUnauthorizedFiresForcedLogout(t *testing.T) {
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnauthorized, map[string]string{"detail": "expired"}), nil
	})
	c.SetTokenSource(staticToken("stale"))

	fired := false
	c.SetUnauthorizedHandler(func() { fired = true })

	_, err := c.Me(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if !fired {
		t.Errorf("unauthorized handler was not fired")
	}
}

func TestLoginRejectionDoesNotInvalidateSession(t *testing.T) {
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnauthorized, nil), nil
	})

	fired := false
	c.SetUnauthorizedHandler(func() { fired = true })

	_, err := c.Login(context.Background(), "bob", "wrong")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %v", err)
	}
	if fired {
		t.Errorf("login rejection must not fire the forced-logout handler")
	}
}

func TestNotFoundClassification(t *testing.T) {
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusNotFound, map[string]string{"detail": "no chat"}), nil
	})
	c.SetTokenSource(staticToken("tok"))

	_, err := c.UserChat(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServerErrorClassification(t *testing.T) {
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusInternalServerError,
			Body:       io.NopCloser(strings.NewReader("boom")),
		}, nil
	})
	c.SetTokenSource(staticToken("tok"))

	_, err := c.UserChat(context.Background())
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.Status != http.StatusInternalServerError || se.Body != "boom" {
		t.Errorf("unexpected status error: %+v", se)
	}
}

func TestNetworkErrorIsWrapped(t *testing.T) {
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("network down")
	})
	c.SetTokenSource(staticToken("tok"))

	_, err := c.UserChat(context.Background())
	if err == nil || !strings.Contains(err.Error(), "request failed") {
		t.Errorf("expected wrapped transport error, got %v", err)
	}
}

func TestEmptyMessageRejectedLocally(t *testing.T) {
	calls := 0
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(http.StatusOK, nil), nil
	})
	c.SetTokenSource(staticToken("tok"))

	for _, content := range []string{"", "   ", "\t\n"} {
		if _, err := c.SendMessage(context.Background(), content); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("SendMessage(%q) = %v; want ErrEmptyMessage", content, err)
		}
		if _, err := c.Reply(context.Background(), 1, content); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("Reply(%q) = %v; want ErrEmptyMessage", content, err)
		}
	}
	if calls != 0 {
		t.Errorf("empty content reached the backend: %d calls", calls)
	}
}

func TestSendMessageTrimsContent(t *testing.T) {
	var sent map[string]string
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		_ = json.NewDecoder(req.Body).Decode(&sent)
		return jsonResponse(http.StatusOK, map[string]any{"id": 1, "content": sent["content"]}), nil
	})
	c.SetTokenSource(staticToken("tok"))

	msg, err := c.SendMessage(context.Background(), "  Hello  ")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if sent["content"] != "Hello" || msg.Content != "Hello" {
		t.Errorf("content not trimmed: sent=%q got=%q", sent["content"], msg.Content)
	}
}

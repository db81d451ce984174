// Package dify is a client for the Dify chat application API.
package dify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alexbalandi/chatwoot-dify/tools"
)

// ErrConversationNotFound is matched by errors for a 404 on a known
// conversation id: the Dify session expired or never existed.
var ErrConversationNotFound = errors.New("dify: conversation not found")

type APIError struct {
	Op             string
	StatusCode     int
	Body           string
	ConversationID string
}

func (e *APIError) Error() string {
	if e.ConversationID != "" {
		return fmt.Sprintf("dify %s (conversation %s): status=%d body=%s", e.Op, e.ConversationID, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("dify %s: status=%d body=%s", e.Op, e.StatusCode, e.Body)
}

func (e *APIError) Is(target error) bool {
	return target == ErrConversationNotFound && e.NotFound()
}

// NotFound is true only when a conversation id was supplied.
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound && e.ConversationID != ""
}

type ChatRequest struct {
	Query          string         `json:"query"`
	Inputs         map[string]any `json:"inputs"`
	User           string         `json:"user"`
	ResponseMode   string         `json:"response_mode"`
	ConversationID string         `json:"conversation_id,omitempty"`
}

type ChatResponse struct {
	Event          string         `json:"event"`
	TaskID         string         `json:"task_id"`
	ID             string         `json:"id"`
	MessageID      string         `json:"message_id"`
	ConversationID string         `json:"conversation_id"`
	Mode           string         `json:"mode"`
	Answer         string         `json:"answer"`
	Metadata       map[string]any `json:"metadata"`
	CreatedAt      int64          `json:"created_at"`
}

type Options struct {
	BaseURL      string
	APIKey       string
	User         string
	ResponseMode string
	Timeout      time.Duration
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

type Client struct {
	baseURL      string
	apiKey       string
	user         string
	responseMode string
	http         *http.Client
	logger       *slog.Logger
}

func New(opts Options) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		apiKey:       opts.APIKey,
		user:         opts.User,
		responseMode: opts.ResponseMode,
		http:         opts.HTTPClient,
		logger:       opts.Logger,
	}
	if c.user == "" {
		c.user = "user"
	}
	if c.responseMode == "" {
		c.responseMode = "blocking"
	}
	if c.http == nil {
		c.http = tools.NewHTTPClient(opts.Timeout)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c.logger = c.logger.With("component", "dify")
	return c
}

// User is the synthetic end-user id sent with every request.
func (c *Client) User() string { return c.user }

func (c *Client) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

// SendChatMessage fills in the user and response mode when the request leaves them empty.
func (c *Client) SendChatMessage(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.User == "" {
		req.User = c.user
	}
	if req.ResponseMode == "" {
		req.ResponseMode = c.responseMode
	}
	if req.Inputs == nil {
		req.Inputs = map[string]any{}
	}

	status, raw, err := tools.DoJSON(ctx, c.http, http.MethodPost, c.baseURL+"/chat-messages", c.headers(), req)
	if err != nil {
		c.logger.Error("chat-messages request failed", "conversation_id", req.ConversationID, "error", err)
		return nil, fmt.Errorf("dify chat-messages: %w", err)
	}
	if status >= 300 {
		apiErr := &APIError{Op: "chat-messages", StatusCode: status, Body: tools.Truncate(string(raw), 512), ConversationID: req.ConversationID}
		c.logger.Warn("chat-messages failed", "status", status, "conversation_id", req.ConversationID)
		return nil, apiErr
	}

	var out ChatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("dify chat-messages: decode response: %w", err)
	}
	out.Answer = strings.TrimSpace(out.Answer)
	return &out, nil
}

// DeleteConversation removes a conversation. A missing conversation yields
// an error matching ErrConversationNotFound.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return errors.New("dify delete conversation: empty id")
	}
	endpoint := c.baseURL + "/conversations/" + url.PathEscape(conversationID)
	status, raw, err := tools.DoJSON(ctx, c.http, http.MethodDelete, endpoint, c.headers(), map[string]string{"user": c.user})
	if err != nil {
		return fmt.Errorf("dify delete conversation %s: %w", conversationID, err)
	}
	if status >= 300 {
		return &APIError{Op: "delete conversation", StatusCode: status, Body: tools.Truncate(string(raw), 512), ConversationID: conversationID}
	}
	return nil
}

// Ping checks that the Dify API answers; any status below 500 counts as up.
func (c *Client) Ping(ctx context.Context) error {
	status, _, err := tools.DoJSON(ctx, c.http, http.MethodGet, c.baseURL+"/health-check", c.headers(), nil)
	if err != nil {
		return fmt.Errorf("dify health-check: %w", err)
	}
	if status >= 500 {
		return &APIError{Op: "health-check", StatusCode: status}
	}
	return nil
}

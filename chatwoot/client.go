// Package chatwoot is a typed client for the Chatwoot account API.
package chatwoot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alexbalandi/chatwoot-dify/tools"
)

var ErrNotFound = errors.New("chatwoot: not found")

// APIError is returned for any non-2xx Chatwoot response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chatwoot %s %s: status=%d body=%s", e.Method, e.Path, e.StatusCode, e.Body)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

type Options struct {
	// BaseURL is the Chatwoot instance URL, e.g. https://app.chatwoot.com.
	BaseURL   string
	AccountID int
	APIKey    string
	// AdminAPIKey is used for team and conversation reads; defaults to APIKey.
	AdminAPIKey string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

type base struct {
	accountURL string
	apiKey     string
	adminKey   string
	http       *http.Client
	logger     *slog.Logger
}

func (b *base) do(ctx context.Context, method, path string, admin bool, body, out any) error {
	key := b.apiKey
	if admin {
		key = b.adminKey
	}
	status, raw, err := tools.DoJSON(ctx, b.http, method, b.accountURL+path, map[string]string{"api_access_token": key}, body)
	if err != nil {
		b.logger.Error("chatwoot request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("chatwoot %s %s: %w", method, path, err)
	}
	if status >= 300 {
		apiErr := &APIError{Method: method, Path: path, StatusCode: status, Body: tools.Truncate(string(raw), 512)}
		b.logger.Warn("chatwoot api error", "method", method, "path", path, "status", status)
		return apiErr
	}
	if out == nil || len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("chatwoot %s %s: decode response: %w", method, path, err)
	}
	return nil
}

// Client is the single entry point to Chatwoot. Each concern lives in its
// own service; Client only composes them.
type Client struct {
	*MessageService
	*ConversationService
	*AdminService
}

func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = tools.NewHTTPClient(opts.Timeout)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	adminKey := opts.AdminAPIKey
	if adminKey == "" {
		adminKey = opts.APIKey
	}
	b := &base{
		accountURL: strings.TrimRight(opts.BaseURL, "/") + "/api/v1/accounts/" + strconv.Itoa(opts.AccountID),
		apiKey:     opts.APIKey,
		adminKey:   adminKey,
		http:       httpClient,
		logger:     logger.With("component", "chatwoot"),
	}
	return &Client{
		MessageService:      &MessageService{b: b},
		ConversationService: &ConversationService{b: b},
		AdminService:        &AdminService{b: b},
	}
}

func conversationPath(id int, suffix string) string {
	return "/conversations/" + strconv.Itoa(id) + suffix
}

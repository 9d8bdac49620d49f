// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/photochat/internal/model"
)

// Configuration constants for the backend API.
const (
	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 15 * time.Second

	// DefaultPageSize is the history page size the backend expects.
	DefaultPageSize = 20

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion attacks.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit
)

// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
// Shared HTTP client with connection pooling for all backend requests.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
	Timeout: DefaultTimeout,
}

// TokenProvider supplies the current bearer token, or "" when signed out.
type TokenProvider func(ctx context.Context) string

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the chat backend REST API.
type Client struct {
	baseURL    string
	token      TokenProvider
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, token TokenProvider, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: sharedHTTPClient,
		logger:     logger.With().Str("component", "api").Logger(),
	}
}

// WithHTTPClient overrides the HTTP client. Used in tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// =============================================================================
// USER LOOKUP
// =============================================================================

// UserByEmail resolves a directory record by email address. Depending on the
// backend version the endpoint returns either a JSON array of candidates or
// a single object; both shapes are accepted, and the record whose email
// matches (case-insensitively) wins. Returns ErrTargetNotResolvable when no
// matching record carries a usable identity.
func (c *Client) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.TrimSpace(email)
	endpoint := c.baseURL + "/v1/users?email=" + url.QueryEscape(email)

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	user, err := selectUser(body, email)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Identity().IsZero() {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotResolvable, email)
	}
	return user, nil
}

// selectUser decodes the array-or-single user lookup response and picks the
// record matching the requested email.
func selectUser(body []byte, email string) (*model.User, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var users []model.User
		if err := json.Unmarshal(trimmed, &users); err != nil {
			return nil, fmt.Errorf("failed to parse user list: %w", err)
		}
		for i := range users {
			if strings.EqualFold(strings.TrimSpace(users[i].Email), email) {
				return &users[i], nil
			}
		}
		// No exact email match; a single candidate is still usable.
		if len(users) == 1 {
			return &users[0], nil
		}
		return nil, nil
	}

	var user model.User
	if err := json.Unmarshal(trimmed, &user); err != nil {
		return nil, fmt.Errorf("failed to parse user record: %w", err)
	}
	return &user, nil
}

// =============================================================================
// CONVERSATION SETUP
// =============================================================================

// CreateOrGetChat creates the conversation between self and target, or
// returns the existing one. The backend de-duplicates by participant pair,
// so calling this repeatedly is safe.
func (c *Client) CreateOrGetChat(ctx context.Context, self, target model.Identity) (*model.Conversation, error) {
	reqBody := struct {
		Participants []model.Identity `json:"participants"`
	}{Participants: []model.Identity{self, target}}

	body, err := c.post(ctx, c.baseURL+"/v1/chats", reqBody)
	if err != nil {
		return nil, err
	}

	var conv model.Conversation
	if err := json.Unmarshal(body, &conv); err != nil {
		return nil, fmt.Errorf("failed to parse conversation: %w", err)
	}
	if conv.ID == "" {
		return nil, &RemoteError{Status: http.StatusOK, Message: "conversation response carried no id"}
	}
	return &conv, nil
}

// =============================================================================
// MESSAGE HISTORY
// =============================================================================

// Messages retrieves one page of message history, newest first. Pages are
// 1-based. A page shorter than limit means there is no older history.
func (c *Client) Messages(ctx context.Context, chatID string, page, limit int) ([]model.Message, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	endpoint := c.baseURL + "/v1/chats/" + url.PathEscape(chatID) + "/messages" +
		"?page=" + strconv.Itoa(page) + "&limit=" + strconv.Itoa(limit)

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var msgs []model.Message
	if err := json.Unmarshal(body, &msgs); err != nil {
		return nil, fmt.Errorf("failed to parse message page: %w", err)
	}
	return msgs, nil
}

// =============================================================================
// HTTP PLUMBING
// =============================================================================

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, endpoint string, reqBody any) ([]byte, error) {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)

	// SECURITY: Clear Authorization header immediately after the request so
	// the token never reaches a log line.
	req.Header.Del("Authorization")

	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("backend request")

	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.handleErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "photochat/1.0")
	if token := c.token(req.Context()); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// readResponse reads the response body with size limits.
//
// SECURITY: Response size limit prevents memory exhaustion attacks.
func readResponse(resp *http.Response) ([]byte, error) {
	limitedReader := io.LimitReader(resp.Body, MaxResponseSize)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// apiErrorResponse represents an error response from the backend.
type apiErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// handleErrorResponse maps non-2xx responses to the error taxonomy.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	message := ""
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil {
		if apiErr.Message != "" {
			message = apiErr.Message
		} else {
			message = apiErr.Error
		}
	}
	if message == "" {
		message = strings.TrimSpace(string(body))
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		if message != "" {
			return fmt.Errorf("%w: %s", ErrUnauthenticated, message)
		}
		return ErrUnauthenticated
	default:
		return &RemoteError{Status: statusCode, Message: message}
	}
}

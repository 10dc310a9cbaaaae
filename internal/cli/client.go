package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/gogo/consult/internal/domain"
	"github.com/xiaot623/gogo/consult/internal/service"
	"github.com/xiaot623/gogo/consult/internal/transport"
	"github.com/xiaot623/gogo/consult/internal/transport/ws"
)

// Client is an HTTP client for the consultation API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new consultation client.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError is a failed API call.
type APIError struct {
	Status int
	Body   transport.ErrorBody
}

func (e *APIError) Error() string {
	if e.Body.Error.Kind == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("%s (%d): %s [requestId=%s]", e.Body.Error.Kind, e.Status, e.Body.Error.Message, e.Body.RequestID)
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, &apiErr.Body)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Consult calls POST /v1/consultations.
func (c *Client) Consult(ctx context.Context, body domain.ConsultBody) (*domain.ConsultationResponse, error) {
	var out domain.ConsultationResponse
	if err := c.do(ctx, http.MethodPost, "/v1/consultations", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func contextPath(userID string) string {
	if userID == "" {
		return "/v1/context"
	}
	return "/v1/users/" + url.PathEscape(userID) + "/context"
}

// GetContext calls GET /v1/context or GET /v1/users/:user_id/context.
func (c *Client) GetContext(ctx context.Context, userID string) (*service.ContextView, error) {
	var out service.ContextView
	if err := c.do(ctx, http.MethodGet, contextPath(userID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearContext calls DELETE /v1/context or DELETE /v1/users/:user_id/context.
func (c *Client) ClearContext(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, contextPath(userID), nil, nil)
}

// DialChat opens the WebSocket consultation endpoint.
func (c *Client) DialChat(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.baseURL + "/v1/consultations/ws")
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return conn, nil
}

// chatFrame is any server frame; unused fields stay zero.
type chatFrame struct {
	ws.BaseMessage
	Response *domain.ConsultationResponse `json:"response,omitempty"`
	Status   int                          `json:"status,omitempty"`
	Error    transport.ErrorDetail        `json:"error"`
}

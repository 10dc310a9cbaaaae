// Package identity is a client for an external identity service.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xiaot623/gogo/consult/internal/domain"
	coreidentity "github.com/xiaot623/gogo/consult/internal/identity"
)

// HTTPProvider resolves tokens with GET {baseURL}/v1/identity.
type HTTPProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPProvider creates a provider for the identity service at baseURL.
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Ensure HTTPProvider implements the identity Provider interface.
var _ coreidentity.Provider = (*HTTPProvider)(nil)

type identityResponse struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// Lookup implements identity.Provider.
func (p *HTTPProvider) Lookup(ctx context.Context, token string) (domain.CallerIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/identity", nil)
	if err != nil {
		return domain.CallerIdentity{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return domain.CallerIdentity{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusNotFound:
		return domain.CallerIdentity{}, coreidentity.ErrNotFound
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.CallerIdentity{}, fmt.Errorf("identity service error [%d]: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out identityResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.CallerIdentity{}, fmt.Errorf("failed to decode identity: %w", err)
	}
	return domain.CallerIdentity{ID: out.ID, Role: domain.Role(strings.ToUpper(out.Role))}, nil
}

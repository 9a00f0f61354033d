package clients

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/devusmanrafiq/lab-landing/internal/domain"
)

const (
	defaultTimeout  = 30 * time.Second
	maxErrorBodyLen = 512
)

// PurchasesFetcher loads the purchase payload from the upstream API.
type PurchasesFetcher interface {
	FetchPurchases(ctx context.Context) (*domain.PurchasePayload, error)
}

// PurchasesClient performs single GET requests against the purchases endpoint.
// Retrying is the caller's concern.
type PurchasesClient struct {
	apiURL     string
	httpClient *http.Client
}

// ClientOption configures a PurchasesClient.
type ClientOption func(*PurchasesClient)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *PurchasesClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewPurchasesClient creates a client for apiURL. A non-positive timeout uses 30s.
func NewPurchasesClient(apiURL string, timeout time.Duration, opts ...ClientOption) *PurchasesClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &PurchasesClient{
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchPurchases returns the decoded payload. Every failure is a *domain.FetchError.
func (c *PurchasesClient) FetchPurchases(ctx context.Context) (*domain.PurchasePayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL, nil)
	if err != nil {
		return nil, &domain.FetchError{Err: errors.Wrap(err, "failed to create HTTP request")}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.FetchError{Err: errors.Wrap(err, "HTTP request failed")}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.FetchError{StatusCode: resp.StatusCode, Err: errors.Wrap(err, "failed to read response body")}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &domain.FetchError{
			StatusCode: resp.StatusCode,
			Body:       truncate(strings.TrimSpace(string(body)), maxErrorBodyLen),
		}
	}

	var payload domain.PurchasePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &domain.FetchError{Err: errors.Wrap(err, "failed to unmarshal response")}
	}

	return &payload, nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

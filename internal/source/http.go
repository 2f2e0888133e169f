package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mannylee/cloudops-command-center/internal/retry"
)

const (
	// defaultRequestTimeout bounds one API round trip.
	defaultRequestTimeout = 30 * time.Second
	// maxPages bounds pagination loops against a misbehaving endpoint.
	maxPages = 100
	// directoryCacheTTL is how long the org directory is served from cache.
	directoryCacheTTL = 1 * time.Hour
	// defaultRequestsPerSecond matches the provider's documented rate limit.
	defaultRequestsPerSecond = 5
	defaultBurst             = 10
)

// HTTPClient reads the provider health and organizations APIs over HTTP.
// Requests are rate limited and retried on transient failures.
type HTTPClient struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	limiter    *rate.Limiter
	retryCfg   retry.Config

	mu              sync.RWMutex
	directory       []Account
	directoryExpiry time.Time
}

// NewHTTPClient creates a client for the health API at baseURL.
func NewHTTPClient(baseURL, authToken string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultBurst),
		retryCfg:   retry.DefaultConfig(),
	}
}

type listEventsRequest struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	NextToken string    `json:"next_token,omitempty"`
}

type listEventsResponse struct {
	Events    []EventSummary `json:"events"`
	NextToken string         `json:"next_token,omitempty"`
}

// ListEvents lists all events updated inside the window, following
// pagination until the provider stops returning a continuation token.
func (c *HTTPClient) ListEvents(ctx context.Context, start, end time.Time) ([]EventSummary, error) {
	var all []EventSummary
	token := ""
	for page := 0; page < maxPages; page++ {
		var resp listEventsResponse
		req := listEventsRequest{StartTime: start, EndTime: end, NextToken: token}
		if err := c.post(ctx, "/health/events", req, &resp); err != nil {
			return nil, fmt.Errorf("failed to list events (page %d): %w", page, err)
		}
		all = append(all, resp.Events...)
		if resp.NextToken == "" {
			return all, nil
		}
		token = resp.NextToken
	}
	return nil, fmt.Errorf("event listing exceeded %d pages", maxPages)
}

type eventDetailRequest struct {
	EventID string `json:"event_id"`
}

type eventDetailResponse struct {
	Event *EventDetail `json:"event"`
}

// GetEventDetail returns the full detail of one event. A provider 404 maps
// to a nil detail, not an error: expired events vanish from the API.
func (c *HTTPClient) GetEventDetail(ctx context.Context, eventID string) (*EventDetail, error) {
	var resp eventDetailResponse
	err := c.post(ctx, "/health/event-detail", eventDetailRequest{EventID: eventID}, &resp)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get detail for event %s: %w", eventID, err)
	}
	return resp.Event, nil
}

type affectedAccountsRequest struct {
	EventID   string `json:"event_id"`
	NextToken string `json:"next_token,omitempty"`
}

type affectedAccountsResponse struct {
	AccountIDs []string `json:"account_ids"`
	NextToken  string   `json:"next_token,omitempty"`
}

// ListAffectedAccounts returns the account IDs affected by an event.
func (c *HTTPClient) ListAffectedAccounts(ctx context.Context, eventID string) ([]string, error) {
	var all []string
	token := ""
	for page := 0; page < maxPages; page++ {
		var resp affectedAccountsResponse
		req := affectedAccountsRequest{EventID: eventID, NextToken: token}
		if err := c.post(ctx, "/health/affected-accounts", req, &resp); err != nil {
			return nil, fmt.Errorf("failed to list affected accounts for event %s: %w", eventID, err)
		}
		all = append(all, resp.AccountIDs...)
		if resp.NextToken == "" {
			return all, nil
		}
		token = resp.NextToken
	}
	return nil, fmt.Errorf("affected account listing exceeded %d pages", maxPages)
}

type affectedEntitiesRequest struct {
	EventID   string `json:"event_id"`
	AccountID string `json:"account_id"`
	NextToken string `json:"next_token,omitempty"`
}

type affectedEntitiesResponse struct {
	EntityValues []string `json:"entity_values"`
	NextToken    string   `json:"next_token,omitempty"`
}

// ListAffectedEntities returns the affected resource identifiers for one
// account of an event.
func (c *HTTPClient) ListAffectedEntities(ctx context.Context, eventID, accountID string) ([]string, error) {
	var all []string
	token := ""
	for page := 0; page < maxPages; page++ {
		var resp affectedEntitiesResponse
		req := affectedEntitiesRequest{EventID: eventID, AccountID: accountID, NextToken: token}
		if err := c.post(ctx, "/health/affected-entities", req, &resp); err != nil {
			return nil, fmt.Errorf("failed to list affected entities for event %s account %s: %w", eventID, accountID, err)
		}
		all = append(all, resp.EntityValues...)
		if resp.NextToken == "" {
			return all, nil
		}
		token = resp.NextToken
	}
	return nil, fmt.Errorf("affected entity listing exceeded %d pages", maxPages)
}

type orgAccountsRequest struct {
	NextToken string `json:"next_token,omitempty"`
}

type orgAccountsResponse struct {
	Accounts  []Account `json:"accounts"`
	NextToken string    `json:"next_token,omitempty"`
}

// ListOrgAccounts returns the organization directory, served from a local
// cache between refreshes. Directory churn is rare and every dispatch run
// would otherwise re-page the whole org.
func (c *HTTPClient) ListOrgAccounts(ctx context.Context) ([]Account, error) {
	c.mu.RLock()
	if c.directory != nil && time.Now().Before(c.directoryExpiry) {
		cached := c.directory
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	var all []Account
	token := ""
	for page := 0; page < maxPages; page++ {
		var resp orgAccountsResponse
		if err := c.post(ctx, "/organizations/accounts", orgAccountsRequest{NextToken: token}, &resp); err != nil {
			return nil, fmt.Errorf("failed to list org accounts: %w", err)
		}
		all = append(all, resp.Accounts...)
		if resp.NextToken == "" {
			c.mu.Lock()
			c.directory = all
			c.directoryExpiry = time.Now().Add(directoryCacheTTL)
			c.mu.Unlock()
			slog.Debug("Organization directory refreshed", "accounts", len(all))
			return all, nil
		}
		token = resp.NextToken
	}
	return nil, fmt.Errorf("org account listing exceeded %d pages", maxPages)
}

// post sends one JSON request, honoring the rate limiter and the retry
// policy for transient failures.
func (c *HTTPClient) post(ctx context.Context, path string, reqBody, respBody interface{}) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	return retry.WithRetry(ctx, c.retryCfg, "source_api"+path, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.authToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.authToken)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request to %s failed: %w", path, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		if err != nil {
			return fmt.Errorf("failed to read response from %s: %w", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			return &statusError{path: path, code: resp.StatusCode, body: truncate(string(body), 200)}
		}

		if err := json.Unmarshal(body, respBody); err != nil {
			return fmt.Errorf("failed to unmarshal response from %s: %w", path, err)
		}
		return nil
	})
}

// statusError reports a non-200 response. The message keeps the status code
// textual so the retry policy's transient-error classification sees it.
type statusError struct {
	path string
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("request to %s returned status %d: %s", e.path, e.code, e.body)
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == http.StatusNotFound
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

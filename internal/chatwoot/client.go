// Package chatwoot is a client for the Chatwoot application API.
package chatwoot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bissquit/oncall-bridge/internal/pkg/metrics"
	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultRateLimit = 10
	defaultRateBurst = 5
	serviceName      = "chatwoot"
	maxErrorBody     = 2048
)

// ErrAccountUnresolved is returned when no account id is configured or discovered.
var ErrAccountUnresolved = errors.New("chatwoot account id has not been resolved")

// Config holds Chatwoot client configuration.
type Config struct {
	BaseURL  string
	APIToken string
	// AccountID may be empty; ResolveAccountID discovers it from the profile.
	AccountID string
	Timeout   time.Duration
	RateLimit float64 // requests per second
	RateBurst int
}

// Client talks to one Chatwoot installation with a user access token.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	limiter    *rate.Limiter
	validator  *validator.Validate

	mu        sync.RWMutex
	accountID string
}

// NewClient creates a new Chatwoot client.
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("chatwoot client: base URL is required")
	}
	if config.APIToken == "" {
		return nil, errors.New("chatwoot client: API token is required")
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.RateLimit == 0 {
		config.RateLimit = defaultRateLimit
	}
	if config.RateBurst == 0 {
		config.RateBurst = defaultRateBurst
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		apiToken:   config.APIToken,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
		validator:  validator.New(),
		accountID:  config.AccountID,
	}, nil
}

// BaseURL returns the installation URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// AccountID returns the account the client acts on, if known.
func (c *Client) AccountID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accountID
}

type profileResponse struct {
	AvailableAccounts []profileAccount `json:"available_accounts"`
	Accounts          []profileAccount `json:"accounts"`
}

type profileAccount struct {
	ID   int64  `json:"id" validate:"required"`
	Name string `json:"name"`
}

// ResolveAccountID returns the configured account id or discovers it as the
// first account available to the API token.
func (c *Client) ResolveAccountID(ctx context.Context) (string, error) {
	if id := c.AccountID(); id != "" {
		return id, nil
	}

	var profile profileResponse
	if err := c.do(ctx, "profile", http.MethodGet, "/api/v1/profile", nil, &profile); err != nil {
		return "", fmt.Errorf("resolve account id: %w", err)
	}

	accounts := profile.AvailableAccounts
	if len(accounts) == 0 {
		accounts = profile.Accounts
	}
	if len(accounts) == 0 {
		return "", errors.New("no accounts found for the configured API token: " +
			"ensure it belongs to a user with at least one account")
	}
	if err := c.validator.Struct(accounts[0]); err != nil {
		return "", fmt.Errorf("invalid profile account: %w", err)
	}

	id := strconv.FormatInt(accounts[0].ID, 10)
	name := accounts[0].Name
	if name == "" {
		name = "unnamed"
	}

	c.mu.Lock()
	c.accountID = id
	c.mu.Unlock()

	slog.Info("resolved chatwoot account", "account_id", id, "account_name", name)
	return id, nil
}

// accountPath prefixes path with the account scope.
func (c *Client) accountPath(path string) (string, error) {
	id := c.AccountID()
	if id == "" {
		return "", ErrAccountUnresolved
	}
	return "/api/v1/accounts/" + id + path, nil
}

// do sends a JSON request and decodes a JSON response into out when non-nil.
func (c *Client) do(ctx context.Context, operation, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api_access_token", c.apiToken)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveUpstream(serviceName, operation, 0, started)
		return fmt.Errorf("chatwoot %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.ObserveUpstream(serviceName, operation, resp.StatusCode, started)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

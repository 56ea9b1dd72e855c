// Package oneuptime is a client for the OneUptime incident API.
package oneuptime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bissquit/oncall-bridge/internal/pkg/metrics"
	"github.com/go-playground/validator/v10"
)

const (
	defaultTimeout = 15 * time.Second
	serviceName    = "oneuptime"
	maxErrorBody   = 2048
	listLimit      = 50
)

// Config holds OneUptime client configuration.
type Config struct {
	Timeout time.Duration
}

// Client calls the OneUptime API of the project named by its credentials.
type Client struct {
	credentials CredentialSource
	httpClient  *http.Client
	validator   *validator.Validate
}

// NewClient creates a new OneUptime client.
func NewClient(config Config, credentials CredentialSource) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	return &Client{
		credentials: credentials,
		httpClient:  &http.Client{Timeout: config.Timeout},
		validator:   validator.New(),
	}
}

// ProjectID returns the project incidents are created in.
func (c *Client) ProjectID(ctx context.Context) (string, error) {
	creds, err := c.credentials.Credentials(ctx)
	if err != nil {
		return "", err
	}
	return creds.ProjectID, nil
}

// BaseURL returns the dashboard base URL of the installation.
func (c *Client) BaseURL(ctx context.Context) (string, error) {
	creds, err := c.credentials.Credentials(ctx)
	if err != nil {
		return "", err
	}
	return creds.BaseURL, nil
}

// Ping checks that credentials can be resolved.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.credentials.Credentials(ctx)
	return err
}

// do sends a JSON request to <baseURL>/api<path> and decodes the response.
func (c *Client) do(ctx context.Context, operation, method, path string, in, out any) error {
	creds, err := c.credentials.Credentials(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, creds.BaseURL+"/api"+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("ApiKey", creds.APIKey)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveUpstream(serviceName, operation, 0, started)
		return fmt.Errorf("oneuptime %s %s: %w", method, path, err)
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

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

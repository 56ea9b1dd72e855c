package oneuptime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Credential errors.
var (
	ErrNotConnected         = errors.New("OneUptime integration is not connected in Chatwoot: go to Settings > Integrations > OneUptime and connect it first")
	ErrIncompleteCredential = errors.New("OneUptime hook settings are incomplete: ensure base_url, project_id, and api_key are configured")
)

const defaultRefreshInterval = 5 * time.Minute

var schemePattern = regexp.MustCompile(`(?i)^https?://`)

// Credentials address one OneUptime project.
type Credentials struct {
	BaseURL   string `json:"base_url" validate:"required"`
	ProjectID string `json:"project_id" validate:"required"`
	APIKey    string `json:"api_key" validate:"required"`
}

// Normalize trims trailing slashes from the base URL and defaults its
// scheme to http.
func (c Credentials) Normalize() Credentials {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL != "" && !schemePattern.MatchString(c.BaseURL) {
		c.BaseURL = "http://" + c.BaseURL
	}
	return c
}

// CredentialSource provides the credentials used for each request.
type CredentialSource interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// StaticCredentials is a CredentialSource with fixed credentials.
type StaticCredentials Credentials

// Credentials implements CredentialSource.
func (s StaticCredentials) Credentials(_ context.Context) (Credentials, error) {
	return Credentials(s), nil
}

// HookFetcher returns the raw settings of every connected OneUptime hook.
type HookFetcher interface {
	OneUptimeHooks(ctx context.Context) ([]json.RawMessage, error)
}

// HookCredentials reads credentials from the chat platform's integration
// settings and caches them. A failed refresh keeps serving the last good
// credentials.
type HookCredentials struct {
	fetcher   HookFetcher
	refresh   time.Duration
	validator *validator.Validate
	now       func() time.Time

	mu        sync.Mutex
	cached    *Credentials
	fetchedAt time.Time

	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHookCredentials creates a hook-backed credential source.
func NewHookCredentials(fetcher HookFetcher, refresh time.Duration) *HookCredentials {
	if refresh <= 0 {
		refresh = defaultRefreshInterval
	}
	return &HookCredentials{
		fetcher:   fetcher,
		refresh:   refresh,
		validator: validator.New(),
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Credentials implements CredentialSource.
func (h *HookCredentials) Credentials(ctx context.Context) (Credentials, error) {
	return h.load(ctx, false)
}

// Refresh reloads the credentials regardless of cache age.
func (h *HookCredentials) Refresh(ctx context.Context) error {
	_, err := h.load(ctx, true)
	return err
}

func (h *HookCredentials) load(ctx context.Context, force bool) (Credentials, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !force && h.cached != nil && h.now().Sub(h.fetchedAt) < h.refresh {
		return *h.cached, nil
	}

	creds, err := h.fetch(ctx)
	if err != nil {
		if h.cached != nil {
			slog.Warn("failed to refresh OneUptime settings, using cached config", "error", err)
			return *h.cached, nil
		}
		return Credentials{}, err
	}

	if h.cached == nil || *h.cached != creds {
		slog.Info("loaded OneUptime config from Chatwoot",
			"project_id", creds.ProjectID,
			"base_url", creds.BaseURL,
		)
	}
	h.cached = &creds
	h.fetchedAt = h.now()
	return creds, nil
}

func (h *HookCredentials) fetch(ctx context.Context) (Credentials, error) {
	hooks, err := h.fetcher.OneUptimeHooks(ctx)
	if err != nil {
		return Credentials{}, fmt.Errorf("fetch OneUptime hook settings: %w", err)
	}
	if len(hooks) == 0 {
		return Credentials{}, ErrNotConnected
	}

	var creds Credentials
	if len(hooks[0]) == 0 || string(hooks[0]) == "null" {
		return Credentials{}, ErrIncompleteCredential
	}
	if err := json.Unmarshal(hooks[0], &creds); err != nil {
		return Credentials{}, fmt.Errorf("decode OneUptime hook settings: %w", err)
	}

	creds = creds.Normalize()
	if err := h.validator.Struct(creds); err != nil {
		return Credentials{}, ErrIncompleteCredential
	}
	return creds, nil
}

// Start refreshes the cached credentials in the background.
func (h *HookCredentials) Start(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ticker := time.NewTicker(h.refresh)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stopCh:
				return
			case <-ticker.C:
				if err := h.Refresh(ctx); err != nil {
					slog.Error("OneUptime settings auto-refresh failed", "error", err)
				}
			}
		}
	}()
}

// Stop cancels an in-flight refresh and waits for the loop to exit.
func (h *HookCredentials) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		if h.cancel != nil {
			h.cancel()
		}
	})
	h.wg.Wait()
}

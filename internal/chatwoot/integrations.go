package chatwoot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// IntegrationHook is a connected integration app of the account.
type IntegrationHook struct {
	ID       int64           `json:"id"`
	Settings json.RawMessage `json:"settings"`
}

type integrationAppResponse struct {
	ID    string            `json:"id"`
	Hooks []IntegrationHook `json:"hooks"`
}

// IntegrationHooks returns the hooks connected for an integration app.
// The result is empty when the app exists but is not connected.
func (c *Client) IntegrationHooks(ctx context.Context, appID string) ([]IntegrationHook, error) {
	path, err := c.accountPath("/integrations/apps/" + appID)
	if err != nil {
		return nil, err
	}

	var resp integrationAppResponse
	if err := c.do(ctx, "get_integration_app", http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch %s integration: %w", appID, err)
	}
	return resp.Hooks, nil
}

// OneUptimeHooks returns the raw settings of each connected OneUptime hook.
func (c *Client) OneUptimeHooks(ctx context.Context) ([]json.RawMessage, error) {
	hooks, err := c.IntegrationHooks(ctx, "oneuptime")
	if err != nil {
		return nil, err
	}

	settings := make([]json.RawMessage, 0, len(hooks))
	for _, h := range hooks {
		settings = append(settings, h.Settings)
	}
	return settings, nil
}

// Package config loads service configuration from defaults, an optional
// YAML file and the environment.
//
// Environment variables address keys as SECTION_KEY, for example
// SERVER_PORT or POLLER_INTERVAL. Durations take Go duration syntax
// ("45s", "5m"); a bare integer is read as nanoseconds. The legacy
// variables PORT, POLL_INTERVAL_MS and HOOK_REFRESH_MS are still honored
// and lose to their SECTION_KEY counterparts.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigFileEnv names the environment variable holding the config file path.
const ConfigFileEnv = "CONFIG_FILE"

// sections lists top-level keys environment variables may address.
var sections = map[string]struct{}{
	"server":    {},
	"log":       {},
	"chatwoot":  {},
	"oneuptime": {},
	"poller":    {},
	"webhook":   {},
}

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Chatwoot  ChatwootConfig  `koanf:"chatwoot"`
	OneUptime OneUptimeConfig `koanf:"oneuptime"`
	Poller    PollerConfig    `koanf:"poller"`
	Webhook   WebhookConfig   `koanf:"webhook"`
}

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port" validate:"required"`
	MetricsPort       string        `koanf:"metrics_port" validate:"required"`
	ReadTimeout       time.Duration `koanf:"read_timeout" validate:"gt=0"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" validate:"gt=0"`
	WriteTimeout      time.Duration `koanf:"write_timeout" validate:"gt=0"`
	IdleTimeout       time.Duration `koanf:"idle_timeout" validate:"gt=0"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// ChatwootConfig configures the conversation service client.
type ChatwootConfig struct {
	BaseURL        string        `koanf:"base_url" validate:"required,url"`
	APIToken       string        `koanf:"api_token" validate:"required"`
	AccountID      string        `koanf:"account_id"`
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`
	RateLimit      float64       `koanf:"rate_limit" validate:"gt=0"`
	RateBurst      int           `koanf:"rate_burst" validate:"min=1"`
}

// OneUptimeConfig configures the incident service client. When any of
// BaseURL, ProjectID and APIKey is empty, credentials are read from the
// conversation service's integration settings instead.
type OneUptimeConfig struct {
	BaseURL        string        `koanf:"base_url"`
	ProjectID      string        `koanf:"project_id"`
	APIKey         string        `koanf:"api_key"`
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`
	HookRefresh    time.Duration `koanf:"hook_refresh" validate:"gt=0"`
}

// Static reports whether credentials are fully configured.
func (c OneUptimeConfig) Static() bool {
	return c.BaseURL != "" && c.ProjectID != "" && c.APIKey != ""
}

// PollerConfig configures the reconciliation loop.
type PollerConfig struct {
	Interval    time.Duration `koanf:"interval" validate:"gt=0"`
	ItemTimeout time.Duration `koanf:"item_timeout" validate:"gt=0"`
}

// WebhookConfig configures the inbound webhook.
type WebhookConfig struct {
	Token                string        `koanf:"token"`
	OrchestrationTimeout time.Duration `koanf:"orchestration_timeout" validate:"gt=0"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "4000",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Chatwoot: ChatwootConfig{
			RequestTimeout: 10 * time.Second,
			RateLimit:      10,
			RateBurst:      5,
		},
		OneUptime: OneUptimeConfig{
			RequestTimeout: 15 * time.Second,
			HookRefresh:    5 * time.Minute,
		},
		Poller: PollerConfig{
			Interval:    30 * time.Second,
			ItemTimeout: 20 * time.Second,
		},
		Webhook: WebhookConfig{
			OrchestrationTimeout: 2 * time.Minute,
		},
	}
}

// Load reads configuration. An empty path falls back to $CONFIG_FILE; when
// neither is set only defaults and the environment apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", legacyEnv), nil); err != nil {
		return nil, fmt.Errorf("load legacy environment: %w", err)
	}
	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Chatwoot.BaseURL = strings.TrimRight(cfg.Chatwoot.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for missing or malformed values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// envKey maps SECTION_SOME_KEY to section.some_key and drops variables
// outside known sections.
func envKey(name string) string {
	key := strings.ToLower(name)
	section, rest, ok := strings.Cut(key, "_")
	if !ok || rest == "" {
		return ""
	}
	if _, known := sections[section]; !known {
		return ""
	}
	return section + "." + rest
}

// legacyKeys maps pre-sectioned variable names to config keys. Millisecond
// variables are converted to durations.
var legacyKeys = map[string]struct {
	key          string
	milliseconds bool
}{
	"PORT":             {key: "server.port"},
	"POLL_INTERVAL_MS": {key: "poller.interval", milliseconds: true},
	"HOOK_REFRESH_MS":  {key: "oneuptime.hook_refresh", milliseconds: true},
}

// legacyEnv translates legacy variables. Empty, non-numeric and
// non-positive values are skipped so the default stays in place.
func legacyEnv(name, value string) (string, any) {
	legacy, ok := legacyKeys[name]
	if !ok || value == "" {
		return "", nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return "", nil
	}
	if legacy.milliseconds {
		return legacy.key, (time.Duration(n) * time.Millisecond).String()
	}
	return legacy.key, strconv.Itoa(n)
}

package provider

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds client settings read from CEREGREP_* environment variables.
type Config struct {
	// Backend selects the adapter profile: "chat" for the gollm-backed
	// hosted backends, "openai_compat" for OpenAI-compatible servers.
	Backend string `env:"CEREGREP_BACKEND" envDefault:"chat"`

	// Provider names the gollm backend for the chat profile, e.g.
	// "anthropic" or "openai".
	Provider string `env:"CEREGREP_PROVIDER" envDefault:"anthropic"`

	Model   string `env:"CEREGREP_MODEL"`
	APIKey  string `env:"CEREGREP_API_KEY"`
	BaseURL string `env:"CEREGREP_BASE_URL"`

	MaxAttempts int `env:"CEREGREP_MAX_ATTEMPTS" envDefault:"3"`

	// MinRequestInterval spaces out requests to the backend. Zero disables
	// pacing.
	MinRequestInterval time.Duration `env:"CEREGREP_MIN_REQUEST_INTERVAL"`

	MaxToolResultChars int `env:"CEREGREP_MAX_TOOL_RESULT_CHARS" envDefault:"30000"`
	MaxHistoryMessages int `env:"CEREGREP_MAX_HISTORY_MESSAGES" envDefault:"120"`
}

// ConfigFromEnv parses a Config from the environment.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, &ConfigError{AdapterError: AdapterError{
			Message: "parsing environment config",
			Cause:   err,
		}}
	}
	return cfg, nil
}

// NewClientFromConfig builds a Client for the configured backend profile.
// Options passed here are applied after the config-derived ones, so callers
// can override any of them, including injecting a shared Pacer.
func NewClientFromConfig(cfg Config, opts ...ClientOption) (*Client, error) {
	var adapter Adapter
	switch cfg.Backend {
	case "", "chat":
		var chatOpts []ChatAPIOption
		if cfg.APIKey != "" {
			chatOpts = append(chatOpts, WithAPIKey(cfg.APIKey))
		}
		if cfg.Model != "" {
			chatOpts = append(chatOpts, WithModel(cfg.Model))
		}
		a, err := NewChatAPI(cfg.Provider, chatOpts...)
		if err != nil {
			return nil, err
		}
		adapter = a
	case "openai_compat":
		if cfg.BaseURL == "" {
			return nil, &ConfigError{AdapterError: AdapterError{
				Message: "CEREGREP_BASE_URL is required for the openai_compat backend",
			}}
		}
		adapter = NewOpenAICompat(OpenAIConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
		})
	default:
		return nil, &ConfigError{AdapterError: AdapterError{
			Message: fmt.Sprintf("unknown backend %q (want chat or openai_compat)", cfg.Backend),
		}}
	}

	policy := DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	limits := DefaultSanitizeLimits()
	if cfg.MaxToolResultChars > 0 {
		limits.MaxToolResultChars = cfg.MaxToolResultChars
	}
	if cfg.MaxHistoryMessages > 0 {
		limits.MaxHistoryMessages = cfg.MaxHistoryMessages
	}

	clientOpts := []ClientOption{
		WithRetryPolicy(policy),
		WithSanitizeLimits(limits),
	}
	if cfg.MinRequestInterval > 0 {
		clientOpts = append(clientOpts, WithPacer(NewPacer(cfg.MinRequestInterval)))
	}
	clientOpts = append(clientOpts, opts...)

	return NewClient(adapter, clientOpts...), nil
}

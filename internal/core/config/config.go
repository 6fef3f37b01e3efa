// Package config provides configuration management for envboot.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// TokenEnv is the only place the account API token may come from.
const TokenEnv = "EB_ACCOUNT_TOKEN"

// Config is the complete envboot configuration.
type Config struct {
	Rules   string // rule file path
	Hooks   string // optional Lua hooks path
	Engine  EngineConfig
	Host    HostConfig
	Store   StoreConfig
	Account AccountConfig
	Server  ServerConfig
	Env     EnvConfig
}

// EngineConfig tunes dispatch and the lifecycle gate.
type EngineConfig struct {
	LoadRetries       int
	RetryDelay        time.Duration
	PollInterval      time.Duration
	PollTimeout       time.Duration // 0 polls until cancelled
	CELCostLimit      uint64
	BaseURL           string
	FirstRunKey       string
	UnlockCodes       []int
	PinDeniedProfiles []string
	PinRehide         time.Duration // 0 keeps the parental section visible
	PrintSession      bool
	ExitOnFailure     bool
}

// HostConfig selects the host adapter.
type HostConfig struct {
	Kind       string // "memory" or "browser"
	URL        string // host app page (browser)
	ControlURL string // existing DevTools endpoint; empty launches Chrome
	Headless   bool
	Selectors  map[string]string
}

// StoreConfig selects the persistence store for the memory host.
type StoreConfig struct {
	URL string
}

// AccountConfig configures the tier probe. An empty BaseURL disables it.
type AccountConfig struct {
	BaseURL string
	Timeout time.Duration
	Token   string // from TokenEnv only
}

// ServerConfig configures the gRPC health endpoint of `envboot serve`.
type ServerConfig struct {
	Host string
	Port int
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// EnvConfig holds the static Environment inputs.
type EnvConfig struct {
	Tier         string
	Locale       string
	Platform     string
	FeatureFlags []string
	Attributes   map[string]string
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		Rules: "configs/rules.yaml",
		Engine: EngineConfig{
			LoadRetries:       1,
			RetryDelay:        250 * time.Millisecond,
			PollInterval:      200 * time.Millisecond,
			CELCostLimit:      10000,
			FirstRunKey:       "lampac_initiale",
			UnlockCodes:       []int{38, 38, 39, 39, 40, 40, 38},
			PinDeniedProfiles: []string{"_id3", "_id4"},
			PinRehide:         10 * time.Minute,
		},
		Host: HostConfig{
			Kind:     "memory",
			Headless: true,
		},
		Store: StoreConfig{URL: "memory://"},
		Account: AccountConfig{
			Timeout: 5 * time.Second,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 50061,
		},
	}
}

// AccountToken reads the account API token from the environment.
func AccountToken() string {
	return strings.TrimSpace(os.Getenv(TokenEnv))
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	if c.Rules == "" {
		return fmt.Errorf("rules path must be set")
	}
	if c.Engine.LoadRetries < 0 {
		return fmt.Errorf("engine.load_retries must not be negative, got %d", c.Engine.LoadRetries)
	}
	if c.Engine.RetryDelay < 0 {
		return fmt.Errorf("engine.retry_delay must not be negative, got %v", c.Engine.RetryDelay)
	}
	if c.Engine.PollInterval <= 0 {
		return fmt.Errorf("engine.poll_interval must be positive, got %v", c.Engine.PollInterval)
	}
	if c.Engine.PollTimeout < 0 {
		return fmt.Errorf("engine.poll_timeout must not be negative, got %v", c.Engine.PollTimeout)
	}
	if c.Engine.FirstRunKey == "" {
		return fmt.Errorf("engine.first_run_key must be set")
	}
	if len(c.Engine.UnlockCodes) == 0 {
		return fmt.Errorf("engine.unlock_codes must not be empty")
	}
	if c.Engine.PinRehide < 0 {
		return fmt.Errorf("engine.pin_rehide must not be negative, got %v", c.Engine.PinRehide)
	}
	if c.Engine.BaseURL != "" {
		if err := absoluteURL(c.Engine.BaseURL); err != nil {
			return fmt.Errorf("engine.base_url: %w", err)
		}
	}

	switch c.Host.Kind {
	case "memory":
	case "browser":
		if c.Host.URL == "" {
			return fmt.Errorf("host.url is required for the browser host")
		}
		if err := absoluteURL(c.Host.URL); err != nil {
			return fmt.Errorf("host.url: %w", err)
		}
	default:
		return fmt.Errorf("host.kind must be memory or browser, got %q", c.Host.Kind)
	}

	if c.Account.BaseURL != "" {
		if err := absoluteURL(c.Account.BaseURL); err != nil {
			return fmt.Errorf("account.base_url: %w", err)
		}
		if c.Account.Timeout <= 0 {
			return fmt.Errorf("account.timeout must be positive, got %v", c.Account.Timeout)
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port)
	}
	return nil
}

func absoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q must be an absolute URL", raw)
	}
	return nil
}

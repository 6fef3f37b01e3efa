package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "envboot.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load("", nil)
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}
		if cfg.Rules != "configs/rules.yaml" {
			t.Errorf("expected rules configs/rules.yaml, got %s", cfg.Rules)
		}
		if cfg.Engine.LoadRetries != 1 {
			t.Errorf("expected load_retries 1, got %d", cfg.Engine.LoadRetries)
		}
		if cfg.Engine.RetryDelay != 250*time.Millisecond {
			t.Errorf("expected retry_delay 250ms, got %v", cfg.Engine.RetryDelay)
		}
		if cfg.Engine.PollInterval != 200*time.Millisecond {
			t.Errorf("expected poll_interval 200ms, got %v", cfg.Engine.PollInterval)
		}
		if cfg.Engine.PollTimeout != 0 {
			t.Errorf("expected unbounded poll, got %v", cfg.Engine.PollTimeout)
		}
		if len(cfg.Engine.UnlockCodes) != 7 {
			t.Errorf("expected 7 unlock codes, got %v", cfg.Engine.UnlockCodes)
		}
		if len(cfg.Engine.PinDeniedProfiles) != 2 {
			t.Errorf("expected 2 denied pin profiles, got %v", cfg.Engine.PinDeniedProfiles)
		}
		if cfg.Engine.PinRehide != 10*time.Minute {
			t.Errorf("expected pin_rehide 10m, got %v", cfg.Engine.PinRehide)
		}
		if cfg.Host.Kind != "memory" {
			t.Errorf("expected memory host, got %s", cfg.Host.Kind)
		}
		if cfg.Store.URL != "memory://" {
			t.Errorf("expected memory store, got %s", cfg.Store.URL)
		}
		if cfg.Server.Addr() != "127.0.0.1:50061" {
			t.Errorf("expected 127.0.0.1:50061, got %s", cfg.Server.Addr())
		}
	})

	t.Run("config file", func(t *testing.T) {
		path := writeConfig(t, `
rules: /etc/envboot/rules.yaml
engine:
  load_retries: 3
  poll_timeout: 10s
  base_url: http://lampa.local
host:
  kind: browser
  url: http://lampa.local/
  selectors:
    menu.feed: 'li[data-action="feed"]'
env:
  tier: vip
  feature_flags: [beta, tv]
  attributes:
    region: eu
`)
		cfg, err := Load(path, nil)
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}
		if cfg.Rules != "/etc/envboot/rules.yaml" {
			t.Errorf("expected rules path from file, got %s", cfg.Rules)
		}
		if cfg.Engine.LoadRetries != 3 {
			t.Errorf("expected load_retries 3, got %d", cfg.Engine.LoadRetries)
		}
		if cfg.Engine.PollTimeout != 10*time.Second {
			t.Errorf("expected poll_timeout 10s, got %v", cfg.Engine.PollTimeout)
		}
		if cfg.Host.Kind != "browser" || cfg.Host.URL != "http://lampa.local/" {
			t.Errorf("unexpected host config %+v", cfg.Host)
		}
		if cfg.Host.Selectors["menu.feed"] != `li[data-action="feed"]` {
			t.Errorf("selector not loaded: %v", cfg.Host.Selectors)
		}
		if cfg.Env.Tier != "vip" || len(cfg.Env.FeatureFlags) != 2 {
			t.Errorf("unexpected env config %+v", cfg.Env)
		}
		if cfg.Env.Attributes["region"] != "eu" {
			t.Errorf("expected region attribute, got %v", cfg.Env.Attributes)
		}
	})

	t.Run("environment override", func(t *testing.T) {
		t.Setenv("EB_SERVER_PORT", "9999")
		t.Setenv("EB_ENGINE_LOAD_RETRIES", "0")

		cfg, err := Load("", nil)
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}
		if cfg.Server.Port != 9999 {
			t.Errorf("expected port 9999, got %d", cfg.Server.Port)
		}
		if cfg.Engine.LoadRetries != 0 {
			t.Errorf("expected load_retries 0, got %d", cfg.Engine.LoadRetries)
		}
	})

	t.Run("flag override", func(t *testing.T) {
		t.Setenv("EB_RULES", "env.yaml")
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags.String("rules", "", "")
		flags.String("log-level", "info", "")
		if err := flags.Parse([]string{"--rules", "flag.yaml"}); err != nil {
			t.Fatal(err)
		}

		cfg, err := Load("", flags)
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}
		if cfg.Rules != "flag.yaml" {
			t.Errorf("expected flag to win, got %s", cfg.Rules)
		}
	})

	t.Run("unset flag does not override", func(t *testing.T) {
		t.Setenv("EB_RULES", "env.yaml")
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags.String("rules", "flag-default.yaml", "")

		cfg, err := Load("", flags)
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}
		if cfg.Rules != "env.yaml" {
			t.Errorf("expected env value, got %s", cfg.Rules)
		}
	})

	t.Run("token from environment", func(t *testing.T) {
		t.Setenv(TokenEnv, " secret ")

		cfg, err := Load("", nil)
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}
		if cfg.Account.Token != "secret" {
			t.Errorf("expected trimmed token, got %q", cfg.Account.Token)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
		if err == nil {
			t.Error("expected error for missing config file")
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty rules", func(c *Config) { c.Rules = "" }},
		{"negative retries", func(c *Config) { c.Engine.LoadRetries = -1 }},
		{"negative retry delay", func(c *Config) { c.Engine.RetryDelay = -time.Second }},
		{"zero poll interval", func(c *Config) { c.Engine.PollInterval = 0 }},
		{"negative poll timeout", func(c *Config) { c.Engine.PollTimeout = -time.Second }},
		{"empty first run key", func(c *Config) { c.Engine.FirstRunKey = "" }},
		{"no unlock codes", func(c *Config) { c.Engine.UnlockCodes = nil }},
		{"negative pin rehide", func(c *Config) { c.Engine.PinRehide = -time.Minute }},
		{"relative base url", func(c *Config) { c.Engine.BaseURL = "/lampa" }},
		{"unknown host", func(c *Config) { c.Host.Kind = "tizen" }},
		{"browser without url", func(c *Config) { c.Host.Kind = "browser" }},
		{"relative account url", func(c *Config) { c.Account.BaseURL = "cub.red" }},
		{"zero account timeout", func(c *Config) {
			c.Account.BaseURL = "http://cub.red"
			c.Account.Timeout = 0
		}},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() error = nil, want error")
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v, want nil", err)
	}
}

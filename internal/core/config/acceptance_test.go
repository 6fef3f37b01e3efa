package config

import (
	"errors"
	"testing"
)

// TestAcceptanceCriteria verifies the configuration contract of the CLI.
func TestAcceptanceCriteria(t *testing.T) {
	t.Run("AC1: account token accessible from EB_ACCOUNT_TOKEN", func(t *testing.T) {
		t.Setenv(TokenEnv, "tok-123")

		cfg, err := Load("", nil)
		if err != nil {
			t.Fatalf("AC1 FAIL: Load error: %v", err)
		}
		if cfg.Account.Token != "tok-123" {
			t.Fatalf("AC1 FAIL: token not loaded, got %q", cfg.Account.Token)
		}
	})

	t.Run("AC2: config file with account token rejected with clear error", func(t *testing.T) {
		path := writeConfig(t, `account:
  base_url: "http://cub.red"
  token: "should_be_rejected"
`)
		_, err := Load(path, nil)
		if err == nil {
			t.Fatal("AC2 FAIL: Expected error for secret in config file")
		}
		if !errors.Is(err, ErrSecretInFile) {
			t.Fatalf("AC2 FAIL: Wrong error: %v", err)
		}
		if err.Error() != "account token not allowed in config files (use EB_ACCOUNT_TOKEN environment variable)" {
			t.Fatalf("AC2 FAIL: Wrong error message: %v", err)
		}
	})

	t.Run("AC3: environment variables override config file", func(t *testing.T) {
		t.Setenv("EB_SERVER_PORT", "8080")
		path := writeConfig(t, `server:
  port: 9090
`)
		cfg, err := Load(path, nil)
		if err != nil {
			t.Fatalf("AC3 FAIL: Load error: %v", err)
		}
		if cfg.Server.Port != 8080 {
			t.Fatalf("AC3 FAIL: Environment should override config file. Expected 8080, got %d", cfg.Server.Port)
		}
	})

	t.Run("AC4: invalid host kind is fatal", func(t *testing.T) {
		t.Setenv("EB_HOST_KIND", "gui")
		if _, err := Load("", nil); err == nil {
			t.Fatal("AC4 FAIL: Expected error for unknown host kind")
		}
	})
}

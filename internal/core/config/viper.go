package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrSecretInFile is returned when a config file carries the account token.
var ErrSecretInFile = errors.New("account token not allowed in config files (use EB_ACCOUNT_TOKEN environment variable)")

// Load reads configuration with CLI flags > environment > config file >
// defaults precedence. flags may be nil; bound flags use the config key as
// their name ("engine.load_retries").
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	// Bind environment variables with EB_ prefix
	v.SetEnvPrefix("EB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := validateNoSecretsInConfig(v); err != nil {
			return nil, err
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Rules: v.GetString("rules"),
		Hooks: v.GetString("hooks"),
		Engine: EngineConfig{
			LoadRetries:       v.GetInt("engine.load_retries"),
			RetryDelay:        v.GetDuration("engine.retry_delay"),
			PollInterval:      v.GetDuration("engine.poll_interval"),
			PollTimeout:       v.GetDuration("engine.poll_timeout"),
			CELCostLimit:      v.GetUint64("engine.cel_cost_limit"),
			BaseURL:           v.GetString("engine.base_url"),
			FirstRunKey:       v.GetString("engine.first_run_key"),
			UnlockCodes:       v.GetIntSlice("engine.unlock_codes"),
			PinDeniedProfiles: v.GetStringSlice("engine.pin_denied_profiles"),
			PinRehide:         v.GetDuration("engine.pin_rehide"),
			PrintSession:      v.GetBool("engine.print_session"),
			ExitOnFailure:     v.GetBool("engine.exit_on_failure"),
		},
		Host: HostConfig{
			Kind:       strings.ToLower(v.GetString("host.kind")),
			URL:        v.GetString("host.url"),
			ControlURL: v.GetString("host.control_url"),
			Headless:   v.GetBool("host.headless"),
			Selectors:  v.GetStringMapString("host.selectors"),
		},
		Store: StoreConfig{URL: v.GetString("store.url")},
		Account: AccountConfig{
			BaseURL: v.GetString("account.base_url"),
			Timeout: v.GetDuration("account.timeout"),
			Token:   AccountToken(),
		},
		Server: ServerConfig{
			Host: v.GetString("server.host"),
			Port: v.GetInt("server.port"),
		},
		Env: EnvConfig{
			Tier:         v.GetString("env.tier"),
			Locale:       v.GetString("env.locale"),
			Platform:     v.GetString("env.platform"),
			FeatureFlags: v.GetStringSlice("env.feature_flags"),
			Attributes:   v.GetStringMapString("env.attributes"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("rules", d.Rules)
	v.SetDefault("hooks", d.Hooks)
	v.SetDefault("engine.load_retries", d.Engine.LoadRetries)
	v.SetDefault("engine.retry_delay", d.Engine.RetryDelay)
	v.SetDefault("engine.poll_interval", d.Engine.PollInterval)
	v.SetDefault("engine.poll_timeout", d.Engine.PollTimeout)
	v.SetDefault("engine.cel_cost_limit", d.Engine.CELCostLimit)
	v.SetDefault("engine.base_url", d.Engine.BaseURL)
	v.SetDefault("engine.first_run_key", d.Engine.FirstRunKey)
	v.SetDefault("engine.unlock_codes", d.Engine.UnlockCodes)
	v.SetDefault("engine.pin_denied_profiles", d.Engine.PinDeniedProfiles)
	v.SetDefault("engine.pin_rehide", d.Engine.PinRehide)
	v.SetDefault("engine.print_session", d.Engine.PrintSession)
	v.SetDefault("engine.exit_on_failure", d.Engine.ExitOnFailure)
	v.SetDefault("host.kind", d.Host.Kind)
	v.SetDefault("host.url", d.Host.URL)
	v.SetDefault("host.control_url", d.Host.ControlURL)
	v.SetDefault("host.headless", d.Host.Headless)
	v.SetDefault("store.url", d.Store.URL)
	v.SetDefault("account.base_url", d.Account.BaseURL)
	v.SetDefault("account.timeout", d.Account.Timeout)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("env.tier", d.Env.Tier)
	v.SetDefault("env.locale", d.Env.Locale)
	v.SetDefault("env.platform", d.Env.Platform)
	v.SetDefault("env.feature_flags", d.Env.FeatureFlags)
}

// bindFlags binds every flag whose name is a leaf config key ("rules",
// "engine.load_retries"). Flags only override when explicitly set.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	keys := v.AllKeys()
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil || !slices.Contains(keys, f.Name) {
			return
		}
		err = v.BindPFlag(f.Name, f)
	})
	if err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets (12-factor principle).
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("account.token") || v.InConfig("token") {
		return ErrSecretInFile
	}
	return nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/solatis/envboot/internal/account"
	"github.com/solatis/envboot/internal/core/config"
	"github.com/solatis/envboot/internal/dispatch"
	"github.com/solatis/envboot/internal/engine"
	"github.com/solatis/envboot/internal/hooks"
	"github.com/solatis/envboot/internal/host"
	"github.com/solatis/envboot/internal/host/browser"
	"github.com/solatis/envboot/internal/host/memhost"
	"github.com/solatis/envboot/internal/lifecycle"
	"github.com/solatis/envboot/internal/pin"
	"github.com/solatis/envboot/internal/rules"
	"github.com/solatis/envboot/internal/store"
	"github.com/solatis/envboot/internal/unlock"
)

// runtime is the wired engine for one session.
type runtime struct {
	engine  *engine.Engine
	gate    *lifecycle.Gate
	host    host.Host
	closers []func() error
}

func (r *runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

// bootstrap builds registry, host, dispatcher, hooks, engine and gate.
// Registration and config errors are returned before any host is touched.
func bootstrap(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	cc, err := rules.NewCELCompiler(cfg.Engine.CELCostLimit)
	if err != nil {
		return nil, err
	}
	reg, err := rules.LoadFile(cfg.Rules, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	logger.Info("rules loaded", "path", cfg.Rules, "count", reg.Len())

	rt := &runtime{}
	caps, err := openHost(ctx, cfg, logger, rt)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.host = caps

	baseURL := cfg.Engine.BaseURL
	if baseURL == "" {
		baseURL = cfg.Host.URL
	}
	d := dispatch.New(caps,
		dispatch.WithRetries(cfg.Engine.LoadRetries),
		dispatch.WithRetryDelay(cfg.Engine.RetryDelay),
		dispatch.WithBaseURL(strings.TrimRight(baseURL, "/")),
		dispatch.WithLogger(logger),
	)

	engineOpts := []engine.Option{engine.WithLogger(logger)}
	if cfg.Hooks != "" {
		h, err := hooks.Load(cfg.Hooks, caps, logger)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to load hooks: %w", err)
		}
		engineOpts = append(engineOpts, engine.WithHooks(h))
	}
	rt.engine = engine.New(reg, d, engineOpts...)

	var prober engine.TierProber
	if cfg.Account.BaseURL != "" {
		c := account.NewClient(cfg.Account.BaseURL, cfg.Account.Token, logger)
		c.SetTimeout(cfg.Account.Timeout)
		prober = c
	}
	envs := engine.NewEnvironmentSource(engine.EnvConfig{
		SessionID:    rt.engine.Session().ID(),
		Locale:       cfg.Env.Locale,
		Platform:     cfg.Env.Platform,
		Tier:         cfg.Env.Tier,
		FeatureFlags: cfg.Env.FeatureFlags,
		Attributes:   cfg.Env.Attributes,
	}, caps.Store, prober)

	rt.gate = lifecycle.NewGate(rt.engine, envs, caps.Probe, caps.Store,
		lifecycle.WithPollInterval(cfg.Engine.PollInterval),
		lifecycle.WithPollTimeout(cfg.Engine.PollTimeout),
		lifecycle.WithFirstRunKey(cfg.Engine.FirstRunKey),
		lifecycle.WithUnlockSequence(unlock.NewSequence(cfg.Engine.UnlockCodes)),
		lifecycle.WithPinLock(pin.New(
			pin.WithDeniedProfiles(cfg.Engine.PinDeniedProfiles...),
			pin.WithRehideDelay(cfg.Engine.PinRehide),
		)),
		lifecycle.WithLogger(logger),
	)
	rt.closers = append(rt.closers, func() error {
		rt.gate.Close()
		return nil
	})
	return rt, nil
}

// openHost returns the configured host. The memory host is always available
// and ready, and persists through the configured store.
func openHost(ctx context.Context, cfg *config.Config, logger *slog.Logger, rt *runtime) (host.Host, error) {
	switch cfg.Host.Kind {
	case "browser":
		b, err := browser.Open(ctx, browser.Options{
			URL:        cfg.Host.URL,
			ControlURL: cfg.Host.ControlURL,
			Headless:   cfg.Host.Headless,
			Selectors:  cfg.Host.Selectors,
			Logger:     logger,
		})
		if err != nil {
			return host.Host{}, err
		}
		rt.closers = append(rt.closers, b.Close)
		return b.Capabilities(), nil

	default:
		st, err := store.Open(ctx, cfg.Store.URL)
		if err != nil {
			return host.Host{}, fmt.Errorf("failed to open store: %w", err)
		}
		rt.closers = append(rt.closers, st.Close)

		mh := memhost.New()
		mh.SetAvailable(true)
		mh.SetReady(true)
		caps := mh.Capabilities()
		caps.Store = st
		return caps, nil
	}
}

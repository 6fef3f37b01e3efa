package engine

import (
	"context"
	"fmt"

	"github.com/solatis/envboot/internal/host"
	"github.com/solatis/envboot/internal/types"
)

// TierProber resolves the account tier; implementations degrade to regular.
type TierProber interface {
	Tier(ctx context.Context, email, uid string) string
}

// EnvConfig holds the static parts of the Environment.
type EnvConfig struct {
	SessionID    types.SessionID
	Locale       string
	Platform     string
	Tier         string // used when no prober is configured
	FeatureFlags []string
	Attributes   map[string]string
}

// EnvironmentSource captures Environment snapshots from config and the store.
type EnvironmentSource struct {
	cfg    EnvConfig
	store  host.Store
	prober TierProber
}

// NewEnvironmentSource returns a source; prober may be nil.
func NewEnvironmentSource(cfg EnvConfig, store host.Store, prober TierProber) *EnvironmentSource {
	if cfg.SessionID == "" {
		cfg.SessionID = types.NewSessionID()
	}
	return &EnvironmentSource{cfg: cfg, store: store, prober: prober}
}

// Capture ensures an installation id exists, then snapshots the environment.
func (s *EnvironmentSource) Capture(ctx context.Context) (types.Environment, error) {
	installID, err := s.EnsureInstallID(ctx)
	if err != nil {
		return types.Environment{}, err
	}

	email, err := s.store.Get(ctx, types.KeyAccountEmail, "")
	if err != nil {
		return types.Environment{}, fmt.Errorf("read account email: %w", err)
	}

	locale := s.cfg.Locale
	if locale == "" {
		if locale, err = s.store.Get(ctx, "language", ""); err != nil {
			return types.Environment{}, fmt.Errorf("read language: %w", err)
		}
	}

	tier := s.cfg.Tier
	if s.prober != nil {
		tier = s.prober.Tier(ctx, email, installID)
	}

	return types.NewEnvironment(types.EnvironmentInput{
		AccountTier:  tier,
		Locale:       locale,
		FeatureFlags: s.cfg.FeatureFlags,
		SessionID:    s.cfg.SessionID,
		InstallID:    installID,
		Platform:     s.cfg.Platform,
		AccountEmail: email,
		Attributes:   s.cfg.Attributes,
	}), nil
}

// EnsureInstallID returns the stored installation id, generating and
// persisting one on first use.
func (s *EnvironmentSource) EnsureInstallID(ctx context.Context) (string, error) {
	id, err := s.store.Get(ctx, types.KeyInstallID, "")
	if err != nil {
		return "", fmt.Errorf("read install id: %w", err)
	}
	if id != "" {
		return id, nil
	}
	if id, err = types.NewInstallID(); err != nil {
		return "", err
	}
	if err := s.store.Set(ctx, types.KeyInstallID, id); err != nil {
		return "", fmt.Errorf("write install id: %w", err)
	}
	return id, nil
}

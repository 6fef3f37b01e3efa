package types

import (
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// Environment is an immutable snapshot captured once per pass.
// Construct with NewEnvironment; the accessors return copies.
type Environment struct {
	accountTier  string
	locale       string
	featureFlags []string
	sessionID    SessionID
	installID    string
	platform     string
	accountEmail string
	attributes   map[string]string
}

// EnvironmentInput carries raw values for NewEnvironment.
type EnvironmentInput struct {
	AccountTier  string
	Locale       string
	FeatureFlags []string
	SessionID    SessionID
	InstallID    string
	Platform     string
	AccountEmail string
	Attributes   map[string]string
}

// NewEnvironment snapshots in. Flags are de-duplicated and sorted, the locale is
// canonicalized as a BCP-47 tag (unparseable locales are kept lowercased), and
// an empty tier becomes TierRegular.
func NewEnvironment(in EnvironmentInput) Environment {
	tier := strings.ToLower(strings.TrimSpace(in.AccountTier))
	if tier == "" {
		tier = TierRegular
	}

	seen := make(map[string]bool, len(in.FeatureFlags))
	flags := make([]string, 0, len(in.FeatureFlags))
	for _, f := range in.FeatureFlags {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		flags = append(flags, f)
	}
	sort.Strings(flags)

	attrs := make(map[string]string, len(in.Attributes))
	for k, v := range in.Attributes {
		attrs[k] = v
	}

	return Environment{
		accountTier:  tier,
		locale:       CanonicalLocale(in.Locale),
		featureFlags: flags,
		sessionID:    in.SessionID,
		installID:    in.InstallID,
		platform:     strings.ToLower(strings.TrimSpace(in.Platform)),
		accountEmail: strings.ToLower(strings.TrimSpace(in.AccountEmail)),
		attributes:   attrs,
	}
}

// CanonicalLocale normalizes a locale string ("ru_RU" -> "ru-RU").
func CanonicalLocale(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "_", "-"))
	if s == "" {
		return ""
	}
	tag, err := language.Parse(s)
	if err != nil {
		return strings.ToLower(s)
	}
	return tag.String()
}

func (e Environment) AccountTier() string  { return e.accountTier }
func (e Environment) Locale() string       { return e.locale }
func (e Environment) SessionID() SessionID { return e.sessionID }
func (e Environment) InstallID() string    { return e.installID }
func (e Environment) Platform() string     { return e.platform }
func (e Environment) AccountEmail() string { return e.accountEmail }

// FeatureFlags returns a sorted copy of the flag set.
func (e Environment) FeatureFlags() []string {
	return append([]string(nil), e.featureFlags...)
}

// HasFlag reports whether flag is in the snapshot's flag set.
func (e Environment) HasFlag(flag string) bool {
	i := sort.SearchStrings(e.featureFlags, flag)
	return i < len(e.featureFlags) && e.featureFlags[i] == flag
}

// Attribute returns a free-form attribute value.
func (e Environment) Attribute(key string) (string, bool) {
	v, ok := e.attributes[key]
	return v, ok
}

// Map renders the snapshot for predicate evaluation. Keys are camelCase to
// match rule expressions (env.accountTier, env.featureFlags).
func (e Environment) Map() map[string]any {
	attrs := make(map[string]any, len(e.attributes))
	for k, v := range e.attributes {
		attrs[k] = v
	}
	flags := make([]any, len(e.featureFlags))
	for i, f := range e.featureFlags {
		flags[i] = f
	}
	return map[string]any{
		"accountTier":  e.accountTier,
		"locale":       e.locale,
		"featureFlags": flags,
		"sessionId":    string(e.sessionID),
		"installId":    e.installID,
		"platform":     e.platform,
		"accountEmail": e.accountEmail,
		"attributes":   attrs,
	}
}

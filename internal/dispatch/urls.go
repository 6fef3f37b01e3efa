package dispatch

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/solatis/envboot/internal/types"
)

// expandURL substitutes {base}, {uid}, {email} and {session} and, when
// bust is non-empty, sets the v= cache-busting parameter.
func expandURL(raw, base string, env types.Environment, bust string) (string, error) {
	r := strings.NewReplacer(
		"{base}", strings.TrimRight(base, "/"),
		"{uid}", url.QueryEscape(env.InstallID()),
		"{email}", url.QueryEscape(env.AccountEmail()),
		"{session}", url.QueryEscape(string(env.SessionID())),
	)
	expanded := r.Replace(raw)
	if bust == "" {
		return expanded, nil
	}

	u, err := url.Parse(expanded)
	if err != nil {
		return "", fmt.Errorf("url %q: %w", expanded, err)
	}
	q := u.Query()
	q.Set("v", bust)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Package account probes the account service for the user's tier.
//
// The probe is advisory: any failure (network, status, decode) degrades to
// the regular tier so bootstrap proceeds, matching how the host plugins
// continue when the account request errors.
package account

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/solatis/envboot/internal/types"
)

// DefaultTimeout bounds one probe request.
const DefaultTimeout = 5 * time.Second

type reqInfo struct {
	User *struct {
		Params struct {
			Promo bool `json:"account_is_promo"`
			Test  bool `json:"account_is_test"`
			VIP   bool `json:"account_is_vip"`
		} `json:"params"`
	} `json:"user"`
}

// Client queries {base}/reqinfo. The first successful answer is cached for
// the client lifetime; failures are not cached.
type Client struct {
	base   string
	token  string
	http   *http.Client
	logger *slog.Logger

	mu     sync.Mutex
	cached string
}

// NewClient returns a probe for base. token, when set, is sent as a bearer token.
func NewClient(base, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:   strings.TrimRight(base, "/"),
		token:  token,
		http:   &http.Client{Timeout: DefaultTimeout},
		logger: logger,
	}
}

// SetTimeout overrides DefaultTimeout; non-positive values are ignored.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.http.Timeout = d
	}
}

// Tier returns vip, test, promo, or regular (in that precedence).
func (c *Client) Tier(ctx context.Context, email, uid string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached != "" {
		return c.cached
	}

	tier, err := c.fetch(ctx, email, uid)
	if err != nil {
		c.logger.WarnContext(ctx, "account probe failed, assuming regular tier", "error", err)
		return types.TierRegular
	}
	c.cached = tier
	return tier
}

func (c *Client) fetch(ctx context.Context, email, uid string) (string, error) {
	if c.base == "" {
		return "", fmt.Errorf("no account base URL configured")
	}
	q := url.Values{}
	if email != "" {
		q.Set("account_email", email)
	}
	if uid != "" {
		q.Set("uid", uid)
	}
	endpoint := c.base + "/reqinfo"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reqinfo: unexpected status %d", resp.StatusCode)
	}

	var info reqInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("reqinfo: decode: %w", err)
	}
	return tierOf(info), nil
}

func tierOf(info reqInfo) string {
	if info.User == nil {
		return types.TierRegular
	}
	p := info.User.Params
	switch {
	case p.VIP:
		return types.TierVIP
	case p.Test:
		return types.TierTest
	case p.Promo:
		return types.TierPromo
	default:
		return types.TierRegular
	}
}

// Package browser drives a real host app page over the Chrome DevTools
// protocol. Every capability is a small JS function evaluated against the
// host's own globals (Lampa.Storage, Lampa.Utils, the DOM); nothing of the
// host is reimplemented here.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/solatis/envboot/internal/host"
	"github.com/solatis/envboot/internal/types"
)

// Options configures Open.
type Options struct {
	URL        string            // host app page
	ControlURL string            // DevTools endpoint; empty launches a local Chrome
	Headless   bool              // only used when launching
	Selectors  map[string]string // explicit target -> CSS selector
	Logger     *slog.Logger
}

// Host is a host.Host backed by a browser page.
type Host struct {
	browser   *rod.Browser
	page      *rod.Page
	launched  *launcher.Launcher
	selectors map[string]string
	logger    *slog.Logger
}

// Open connects to (or launches) Chrome and navigates to opts.URL.
func Open(ctx context.Context, opts Options) (*Host, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("browser host: url is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Host{selectors: opts.Selectors, logger: logger}

	controlURL := opts.ControlURL
	if controlURL == "" {
		h.launched = launcher.New().Headless(opts.Headless)
		u, err := h.launched.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
	}

	h.browser = rod.New().ControlURL(controlURL).Context(ctx)
	if err := h.browser.Connect(); err != nil {
		h.cleanupLauncher()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	page, err := h.browser.Page(proto.TargetCreateTarget{URL: opts.URL})
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("open %s: %w", opts.URL, err)
	}
	if err := page.WaitLoad(); err != nil {
		h.Close()
		return nil, fmt.Errorf("wait for %s: %w", opts.URL, err)
	}
	h.page = page
	logger.Info("browser host connected", "url", opts.URL, "launched", h.launched != nil)
	return h, nil
}

// Close closes the browser and any launched process.
func (h *Host) Close() error {
	var err error
	if h.browser != nil {
		err = h.browser.Close()
	}
	h.cleanupLauncher()
	return err
}

func (h *Host) cleanupLauncher() {
	if h.launched != nil {
		h.launched.Kill()
		h.launched.Cleanup()
	}
}

// Capabilities exposes h as a host.Host.
func (h *Host) Capabilities() host.Host {
	return host.Host{Probe: h, Store: h, Loader: h, Visibility: h, Plugins: h}
}

func (h *Host) eval(ctx context.Context, js string, args ...any) (*proto.RuntimeRemoteObject, error) {
	res, err := h.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrHostUnavailable, err)
	}
	return res, nil
}

const (
	jsHostReady = `() => typeof window.Lampa !== 'undefined' && !!window.Lampa.Storage`
	jsAppReady  = `() => window.appready === true`
	jsGet       = `(k, d) => {
		const v = Lampa.Storage.get(k, d);
		if (v === undefined || v === null) return d;
		return typeof v === 'object' ? JSON.stringify(v) : String(v);
	}`
	jsSet  = `(k, v) => { Lampa.Storage.set(k, v); return true }`
	jsLoad = `(urls) => new Promise((resolve, reject) => {
		Lampa.Utils.putScriptAsync(urls, () => resolve(true), (u) => reject(new Error('failed to load ' + u)), () => {}, false);
	})`
	jsVisibility = `(sel, show) => {
		const els = document.querySelectorAll(sel);
		els.forEach((el) => { el.style.display = show ? '' : 'none' });
		return els.length;
	}`
	jsPlugins   = `() => JSON.stringify(Lampa.Plugins.get() || [])`
	jsAddPlugin = `(p) => { Lampa.Plugins.add(p); Lampa.Plugins.save(); return true }`
)

func (h *Host) HostReady(ctx context.Context) (bool, error) {
	res, err := h.eval(ctx, jsHostReady)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (h *Host) AppReady(ctx context.Context) (bool, error) {
	res, err := h.eval(ctx, jsAppReady)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (h *Host) Get(ctx context.Context, key, def string) (string, error) {
	res, err := h.eval(ctx, jsGet, key, def)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (h *Host) Set(ctx context.Context, key, value string) error {
	_, err := h.eval(ctx, jsSet, key, value)
	return err
}

func (h *Host) Load(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	_, err := h.page.Context(ctx).Eval(jsLoad, urls)
	if err != nil {
		return fmt.Errorf("load %s: %w", strings.Join(urls, ", "), err)
	}
	return nil
}

func (h *Host) Show(ctx context.Context, target types.VisibilityTarget) error {
	return h.setVisible(ctx, target, true)
}

func (h *Host) Hide(ctx context.Context, target types.VisibilityTarget) error {
	return h.setVisible(ctx, target, false)
}

func (h *Host) setVisible(ctx context.Context, target types.VisibilityTarget, show bool) error {
	sel, err := Selector(target, h.selectors)
	if err != nil {
		return err
	}
	res, err := h.eval(ctx, jsVisibility, sel, show)
	if err != nil {
		return err
	}
	if res.Value.Int() == 0 {
		// Settings components render lazily; not finding one yet is normal.
		h.logger.DebugContext(ctx, "no elements matched", "target", target, "selector", sel)
	}
	return nil
}

func (h *Host) List(ctx context.Context) ([]types.Plugin, error) {
	res, err := h.eval(ctx, jsPlugins)
	if err != nil {
		return nil, err
	}
	var plugins []types.Plugin
	if err := json.Unmarshal([]byte(res.Value.Str()), &plugins); err != nil {
		return nil, fmt.Errorf("decode plugin list: %w", err)
	}
	return plugins, nil
}

func (h *Host) Add(ctx context.Context, p types.Plugin) error {
	_, err := h.eval(ctx, jsAddPlugin, p)
	return err
}

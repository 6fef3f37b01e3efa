// Package memhost is an in-process Host for tests and dry runs.
//
// It records every capability call so tests can assert on effects, and can
// be told to fail loads or report the host unavailable.
package memhost

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/solatis/envboot/internal/host"
	"github.com/solatis/envboot/internal/store"
	"github.com/solatis/envboot/internal/types"
)

// ErrLoadFailed is returned by Load for URLs configured with FailLoad.
var ErrLoadFailed = errors.New("load failed")

// Host is a fake host app.
type Host struct {
	// Prefs backs the Store capability.
	Prefs *store.Memory

	hostReady atomic.Bool
	appReady  atomic.Bool
	probes    atomic.Int64

	mu       sync.Mutex
	loads    [][]string
	failures map[string]int
	visible  map[types.VisibilityTarget]bool
	plugins  []types.Plugin
}

// New returns an unavailable host with an empty store.
func New() *Host {
	return &Host{
		Prefs:    store.NewMemory(),
		failures: make(map[string]int),
		visible:  make(map[types.VisibilityTarget]bool),
	}
}

// Capabilities exposes h as a host.Host.
func (h *Host) Capabilities() host.Host {
	return host.Host{Probe: h, Store: h, Loader: h, Visibility: h, Plugins: h}
}

func (h *Host) Get(ctx context.Context, key, def string) (string, error) {
	return h.Prefs.Get(ctx, key, def)
}

func (h *Host) Set(ctx context.Context, key, value string) error {
	return h.Prefs.Set(ctx, key, value)
}

// SetAvailable controls HostReady.
func (h *Host) SetAvailable(v bool) { h.hostReady.Store(v) }

// SetReady controls AppReady.
func (h *Host) SetReady(v bool) { h.appReady.Store(v) }

// Probes returns how many readiness probes were made.
func (h *Host) Probes() int64 { return h.probes.Load() }

func (h *Host) HostReady(context.Context) (bool, error) {
	h.probes.Add(1)
	return h.hostReady.Load(), nil
}

func (h *Host) AppReady(context.Context) (bool, error) {
	h.probes.Add(1)
	return h.appReady.Load(), nil
}

// FailLoad makes the next n loads containing url fail; n < 0 fails forever.
func (h *Host) FailLoad(url string, n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures[url] = n
}

func (h *Host) Load(ctx context.Context, urls []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loads = append(h.loads, slices.Clone(urls))
	for _, u := range urls {
		n, ok := h.failures[u]
		if !ok || n == 0 {
			continue
		}
		if n > 0 {
			h.failures[u] = n - 1
		}
		return ErrLoadFailed
	}
	return nil
}

// Loads returns every Load batch in call order.
func (h *Host) Loads() [][]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([][]string, len(h.loads))
	for i, l := range h.loads {
		out[i] = slices.Clone(l)
	}
	return out
}

// LoadCount returns how many batches contained url.
func (h *Host) LoadCount(url string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, l := range h.loads {
		if slices.Contains(l, url) {
			n++
		}
	}
	return n
}

func (h *Host) Show(_ context.Context, target types.VisibilityTarget) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.visible[target] = true
	return nil
}

func (h *Host) Hide(_ context.Context, target types.VisibilityTarget) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.visible[target] = false
	return nil
}

// Visible reports the last toggle for target; ok is false if never toggled.
func (h *Host) Visible(target types.VisibilityTarget) (visible, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	visible, ok = h.visible[target]
	return visible, ok
}

func (h *Host) List(context.Context) ([]types.Plugin, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.plugins), nil
}

func (h *Host) Add(_ context.Context, p types.Plugin) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.plugins = append(h.plugins, p)
	return nil
}

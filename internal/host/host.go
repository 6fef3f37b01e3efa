// Package host defines the capabilities envboot drives on a host app.
//
// The engine never talks to a host directly: every effect goes through one
// of the small interfaces below. Adapters (memhost for tests and dry runs,
// browser for a real host page) implement them; persistence may also come
// from internal/store instead of the host's own storage.
package host

import (
	"context"

	"github.com/solatis/envboot/internal/types"
)

// Probe reports host readiness.
type Probe interface {
	// HostReady reports whether the host global/plugin API is reachable.
	HostReady(ctx context.Context) (bool, error)
	// AppReady reports whether the host app finished its own startup.
	AppReady(ctx context.Context) (bool, error)
}

// Store is the key/value persistence capability.
type Store interface {
	// Get returns the value for key, or def when absent.
	Get(ctx context.Context, key, def string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Loader injects remote resources (scripts) into the host.
type Loader interface {
	// Load loads urls as one batch; implementations may fetch concurrently.
	Load(ctx context.Context, urls []string) error
}

// Visibility shows or hides host element groups.
type Visibility interface {
	Show(ctx context.Context, target types.VisibilityTarget) error
	Hide(ctx context.Context, target types.VisibilityTarget) error
}

// Plugins manages the host's installed plugin list.
type Plugins interface {
	List(ctx context.Context) ([]types.Plugin, error)
	Add(ctx context.Context, p types.Plugin) error
}

// Host bundles capabilities. A nil field means the host lacks it; actions
// needing it fail with types.ErrCapabilityMissing.
type Host struct {
	Probe      Probe
	Store      Store
	Loader     Loader
	Visibility Visibility
	Plugins    Plugins
}

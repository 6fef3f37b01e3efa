// Package lifecycle sequences dispatch passes against host readiness.
//
// The gate walks Uninitialized -> Loaded -> Ready -> FirstRunDone, running
// one pass per transition:
//
//	host global available  -> Loaded        -> "load" pass
//	app ready              -> Ready         -> "ready" pass
//	first-run flag unset   -> FirstRunDone  -> "first_run" pass
//
// The first-run flag is persisted before the first_run pass starts, so an
// interrupted pass is never repeated. When the flag is already set the gate
// moves to FirstRunDone without a pass.
//
// After Ready, host events trigger extra passes: "settings" on the first
// settings-panel open of the session and "unlock" when the key sequence
// completes. A granted parental-control PIN runs "parental", and
// "parental_expired" once the lock's re-hide delay elapses.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/solatis/envboot/internal/dispatch"
	"github.com/solatis/envboot/internal/host"
	"github.com/solatis/envboot/internal/pin"
	"github.com/solatis/envboot/internal/types"
	"github.com/solatis/envboot/internal/unlock"
)

// ErrAlreadyTriggered is returned when a once-per-session event fires again.
var ErrAlreadyTriggered = errors.New("event already triggered this session")

// Runner executes one dispatch pass.
type Runner interface {
	RunPass(ctx context.Context, phase types.Phase, env types.Environment) dispatch.Summary
}

// EnvSource captures a fresh Environment snapshot.
type EnvSource interface {
	Capture(ctx context.Context) (types.Environment, error)
}

// TransitionFunc observes state changes.
type TransitionFunc func(from, to State)

// Gate drives the lifecycle. Run is called once; Trigger and Key may be
// called concurrently after Run reached Ready.
type Gate struct {
	runner   Runner
	envs     EnvSource
	probe    host.Probe
	store    host.Store
	interval time.Duration
	timeout  time.Duration
	flagKey  string
	sequence *unlock.Sequence
	pin      *pin.Lock
	logger   *slog.Logger

	mu            sync.Mutex
	state         State
	callbacks     []TransitionFunc
	settingsFired bool
	rehide        *time.Timer
}

// Option configures a Gate.
type Option func(*Gate)

// WithPollInterval sets the readiness poll period.
func WithPollInterval(d time.Duration) Option {
	return func(g *Gate) { g.interval = d }
}

// WithPollTimeout bounds each readiness wait; 0 waits until cancelled.
func WithPollTimeout(d time.Duration) Option {
	return func(g *Gate) { g.timeout = d }
}

// WithFirstRunKey overrides the store key of the first-run flag.
func WithFirstRunKey(key string) Option {
	return func(g *Gate) { g.flagKey = key }
}

// WithUnlockSequence sets the key sequence fed by Key.
func WithUnlockSequence(s *unlock.Sequence) Option {
	return func(g *Gate) { g.sequence = s }
}

// WithPinLock sets the parental-control PIN policy used by Pin.
func WithPinLock(l *pin.Lock) Option {
	return func(g *Gate) { g.pin = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// NewGate creates a gate in the Uninitialized state.
func NewGate(runner Runner, envs EnvSource, probe host.Probe, store host.Store, opts ...Option) *Gate {
	g := &Gate{
		runner:   runner,
		envs:     envs,
		probe:    probe,
		store:    store,
		interval: DefaultPollInterval,
		flagKey:  types.KeyFirstRun,
		sequence: unlock.NewSequence(nil),
		pin:      pin.New(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// OnTransition registers fn, called after every state change.
func (g *Gate) OnTransition(fn TransitionFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.callbacks = append(g.callbacks, fn)
}

func (g *Gate) advance(to State) error {
	g.mu.Lock()
	from := g.state
	if err := Transition(from, to); err != nil {
		g.mu.Unlock()
		return err
	}
	g.state = to
	callbacks := append([]TransitionFunc(nil), g.callbacks...)
	g.mu.Unlock()

	g.logger.Info("lifecycle transition", "from", from.String(), "to", to.String())
	for _, fn := range callbacks {
		fn(from, to)
	}
	return nil
}

// Run waits for the host and runs the load, ready and first-run passes.
// It returns the summaries of the passes it ran.
func (g *Gate) Run(ctx context.Context) ([]dispatch.Summary, error) {
	if g.State() != Uninitialized {
		return nil, fmt.Errorf("%w: gate already started", types.ErrInvalidTransition)
	}
	var summaries []dispatch.Summary

	g.logger.Debug("waiting for host")
	if err := Await(ctx, g.interval, g.timeout, g.probe.HostReady); err != nil {
		return summaries, fmt.Errorf("await host: %w", err)
	}
	if err := g.advance(Loaded); err != nil {
		return summaries, err
	}
	sum, err := g.pass(ctx, types.PhaseLoad)
	if err != nil {
		return summaries, err
	}
	summaries = append(summaries, sum)

	g.logger.Debug("waiting for app ready")
	if err := Await(ctx, g.interval, g.timeout, g.probe.AppReady); err != nil {
		return summaries, fmt.Errorf("await app ready: %w", err)
	}
	if err := g.advance(Ready); err != nil {
		return summaries, err
	}
	sum, err = g.pass(ctx, types.PhaseReady)
	if err != nil {
		return summaries, err
	}
	summaries = append(summaries, sum)

	first, err := g.claimFirstRun(ctx)
	if err != nil {
		return summaries, err
	}
	if first {
		sum, err = g.pass(ctx, types.PhaseFirstRun)
		if err != nil {
			return summaries, err
		}
		summaries = append(summaries, sum)
	}
	if err := g.advance(FirstRunDone); err != nil {
		return summaries, err
	}
	return summaries, nil
}

// claimFirstRun reports whether this is the first run and, if so, persists
// the flag before returning.
func (g *Gate) claimFirstRun(ctx context.Context) (bool, error) {
	v, err := g.store.Get(ctx, g.flagKey, "")
	if err != nil {
		return false, fmt.Errorf("read first-run flag: %w", err)
	}
	if v != "" {
		g.logger.Debug("first-run flag already set", "key", g.flagKey)
		return false, nil
	}
	if err := g.store.Set(ctx, g.flagKey, "true"); err != nil {
		return false, fmt.Errorf("write first-run flag: %w", err)
	}
	return true, nil
}

func (g *Gate) pass(ctx context.Context, phase types.Phase) (dispatch.Summary, error) {
	if err := ctx.Err(); err != nil {
		return dispatch.Summary{Phase: phase}, err
	}
	env, err := g.envs.Capture(ctx)
	if err != nil {
		return dispatch.Summary{Phase: phase}, fmt.Errorf("capture environment for %s: %w", phase, err)
	}
	return g.runner.RunPass(ctx, phase, env), nil
}

// Trigger runs an event pass (settings or unlock). The gate must be at
// least Ready. The settings pass fires once per session.
func (g *Gate) Trigger(ctx context.Context, phase types.Phase) (dispatch.Summary, error) {
	g.mu.Lock()
	state := g.state
	if !state.AtLeast(Ready) {
		g.mu.Unlock()
		return dispatch.Summary{Phase: phase}, fmt.Errorf("%w: %s event before ready (state %s)", types.ErrInvalidTransition, phase, state)
	}
	switch phase {
	case types.PhaseSettings:
		if g.settingsFired {
			g.mu.Unlock()
			return dispatch.Summary{Phase: phase}, ErrAlreadyTriggered
		}
		g.settingsFired = true
	case types.PhaseUnlock:
	default:
		g.mu.Unlock()
		return dispatch.Summary{Phase: phase}, fmt.Errorf("%w: %s is not an event phase", types.ErrInvalidTransition, phase)
	}
	g.mu.Unlock()

	summary, err := g.pass(ctx, phase)
	if err != nil && phase == types.PhaseSettings {
		// No pass ran, so a later open may fire it.
		g.mu.Lock()
		g.settingsFired = false
		g.mu.Unlock()
	}
	return summary, err
}

// Key feeds a key code to the unlock sequence and runs the unlock pass when
// it completes. fired reports whether the pass ran.
func (g *Gate) Key(ctx context.Context, code int) (summary dispatch.Summary, fired bool, err error) {
	if !g.sequence.Feed(code) {
		return dispatch.Summary{}, false, nil
	}
	summary, err = g.Trigger(ctx, types.PhaseUnlock)
	return summary, err == nil, err
}

// Pin checks entered against the parental-control PIN and runs the parental
// pass when granted. A refused PIN returns its Result with a nil error and
// runs no pass. Each grant restarts the re-hide timer.
func (g *Gate) Pin(ctx context.Context, entered string) (dispatch.Summary, pin.Result, error) {
	if state := g.State(); !state.AtLeast(Ready) {
		return dispatch.Summary{Phase: types.PhaseParental}, pin.Unchecked,
			fmt.Errorf("%w: pin entered before ready (state %s)", types.ErrInvalidTransition, state)
	}
	res, err := g.pin.Check(ctx, g.store, entered)
	if err != nil {
		return dispatch.Summary{Phase: types.PhaseParental}, res, err
	}
	if res != pin.Granted {
		g.logger.Info("parental pin refused", "result", res.String())
		return dispatch.Summary{Phase: types.PhaseParental}, res, nil
	}

	summary, err := g.pass(ctx, types.PhaseParental)
	if err != nil {
		return summary, res, err
	}
	if d := g.pin.RehideDelay(); d > 0 {
		g.scheduleRehide(context.WithoutCancel(ctx), d)
	}
	return summary, res, nil
}

func (g *Gate) scheduleRehide(ctx context.Context, d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rehide != nil {
		g.rehide.Stop()
	}
	g.rehide = time.AfterFunc(d, func() {
		if _, err := g.pass(ctx, types.PhaseParentalExpired); err != nil {
			g.logger.Warn("parental re-hide pass failed", "error", err)
		}
	})
}

// Close stops a pending re-hide timer.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rehide != nil {
		g.rehide.Stop()
		g.rehide = nil
	}
}

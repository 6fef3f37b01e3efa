// Package dispatch executes matched rule actions against host capabilities.
//
// The dispatcher is the only writer of the session view: it marks rules
// applied, records preferences and flags, and appends to the session log.
// Because the engine dispatches each matched rule before evaluating the
// next one, a later predicate in the same pass sees earlier effects.
//
// Failure isolation: an action error is returned as a Failed ActionResult
// wrapping *types.ActionError. Dispatch itself never returns an error, so
// one broken rule cannot stop a pass.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/solatis/envboot/internal/host"
	"github.com/solatis/envboot/internal/rules"
	"github.com/solatis/envboot/internal/types"
)

const (
	// DefaultRetries is the number of retries after a failed resource load.
	DefaultRetries = 1
	// DefaultRetryDelay separates load attempts.
	DefaultRetryDelay = 250 * time.Millisecond
)

// Dispatcher executes actions. Safe for concurrent use; callers serialize
// passes so that a rule's action never races with itself.
type Dispatcher struct {
	host        host.Host
	retries     int
	retryDelay  time.Duration
	baseURL     string
	cacheBuster func() string
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRetries sets the retry bound for resource loads (n >= 0).
func WithRetries(n int) Option {
	return func(d *Dispatcher) {
		if n >= 0 {
			d.retries = n
		}
	}
}

// WithRetryDelay sets the pause between load attempts.
func WithRetryDelay(delay time.Duration) Option {
	return func(d *Dispatcher) { d.retryDelay = delay }
}

// WithBaseURL sets the value substituted for {base} in resource URLs.
func WithBaseURL(base string) Option {
	return func(d *Dispatcher) { d.baseURL = base }
}

// WithCacheBuster overrides the v= parameter source for cache_bust loads.
func WithCacheBuster(fn func() string) Option {
	return func(d *Dispatcher) { d.cacheBuster = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// WithClock overrides the result timestamp source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a Dispatcher over h.
func New(h host.Host, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		host:       h,
		retries:    DefaultRetries,
		retryDelay: DefaultRetryDelay,
		cacheBuster: func() string {
			return strconv.FormatUint(rand.Uint64(), 36)
		},
		logger: slog.Default(),
		tracer: otel.Tracer("github.com/solatis/envboot/internal/dispatch"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Host returns the capabilities the dispatcher drives.
func (d *Dispatcher) Host() host.Host { return d.host }

// outcome is what an action execution reports back to Dispatch.
type outcome struct {
	skipReason string
	attempts   int
	err        error
}

// Dispatch executes rule's action for phase and records the result in s.
func (d *Dispatcher) Dispatch(ctx context.Context, s *Session, phase types.Phase, rule *rules.Rule, env types.Environment) ActionResult {
	ctx, span := d.tracer.Start(ctx, "dispatch."+rule.Action.Kind.String(), trace.WithAttributes(
		attribute.String("rule.id", string(rule.ID)),
		attribute.String("phase", string(phase)),
	))
	defer span.End()

	res := ActionResult{RuleID: rule.ID, Phase: phase}

	if rule.AppliesOnce {
		if reason, done := d.alreadyApplied(ctx, s, rule); done {
			res.Outcome = types.OutcomeSkipped
			res.Reason = reason
			return d.finish(ctx, s, span, res)
		}
	}

	out := d.execute(ctx, s, rule, env)
	res.Attempts = out.attempts

	switch {
	case out.err != nil:
		res.Outcome = types.OutcomeFailed
		res.Err = &types.ActionError{RuleID: rule.ID, Action: rule.Action.Kind.String(), Err: out.err}
	case out.skipReason != "":
		res.Outcome = types.OutcomeSkipped
		res.Reason = out.skipReason
	default:
		res.Outcome = types.OutcomeApplied
		s.markApplied(rule.ID)
		if rule.AppliesOnce && rule.Scope == types.ScopeInstallation {
			d.persistApplied(ctx, rule.ID)
		}
	}
	return d.finish(ctx, s, span, res)
}

func (d *Dispatcher) finish(ctx context.Context, s *Session, span trace.Span, res ActionResult) ActionResult {
	res.At = d.now()
	s.Record(res)

	span.SetAttributes(attribute.String("outcome", res.Outcome.String()))
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}

	attrs := []any{"rule", res.RuleID, "phase", res.Phase, "outcome", res.Outcome.String()}
	if res.Reason != "" {
		attrs = append(attrs, "reason", res.Reason)
	}
	if res.Attempts > 1 {
		attrs = append(attrs, "attempts", res.Attempts)
	}
	if res.Err != nil {
		d.logger.WarnContext(ctx, "action failed", append(attrs, "error", res.Err)...)
	} else {
		d.logger.DebugContext(ctx, "action dispatched", attrs...)
	}
	return res
}

// alreadyApplied checks the session set, then the persisted mark for
// installation-scoped rules. A persisted mark is copied into the session.
func (d *Dispatcher) alreadyApplied(ctx context.Context, s *Session, rule *rules.Rule) (string, bool) {
	if s.Applied(rule.ID) {
		return "already applied this session", true
	}
	if rule.Scope != types.ScopeInstallation || d.host.Store == nil {
		return "", false
	}
	v, err := d.host.Store.Get(ctx, types.KeyAppliedPrefix+string(rule.ID), "")
	if err != nil {
		d.logger.WarnContext(ctx, "read applied mark", "rule", rule.ID, "error", err)
		return "", false
	}
	if v == "" {
		return "", false
	}
	s.markApplied(rule.ID)
	return "already applied on this installation", true
}

func (d *Dispatcher) persistApplied(ctx context.Context, id types.RuleID) {
	if d.host.Store == nil {
		return
	}
	mark := d.now().UTC().Format(time.RFC3339)
	if err := d.host.Store.Set(ctx, types.KeyAppliedPrefix+string(id), mark); err != nil {
		d.logger.WarnContext(ctx, "persist applied mark", "rule", id, "error", err)
	}
}

func (d *Dispatcher) execute(ctx context.Context, s *Session, rule *rules.Rule, env types.Environment) outcome {
	a := rule.Action
	switch a.Kind {
	case rules.ActionSetPreference:
		if d.host.Store == nil {
			return outcome{err: types.ErrCapabilityMissing}
		}
		if err := d.host.Store.Set(ctx, a.Key, a.Value); err != nil {
			return outcome{attempts: 1, err: err}
		}
		s.setPreference(a.Key, a.Value)
		return outcome{attempts: 1}

	case rules.ActionLoadResource:
		return d.loadResource(ctx, a, env)

	case rules.ActionToggleVisibility:
		if d.host.Visibility == nil {
			return outcome{err: types.ErrCapabilityMissing}
		}
		var err error
		if a.Visible {
			err = d.host.Visibility.Show(ctx, a.Target)
		} else {
			err = d.host.Visibility.Hide(ctx, a.Target)
		}
		return outcome{attempts: 1, err: err}

	case rules.ActionEnableFlag:
		s.enableFlag(a.Flag)
		return outcome{attempts: 1}

	case rules.ActionInstallPlugin:
		return d.installPlugin(ctx, a, env)

	default:
		return outcome{err: fmt.Errorf("unsupported action %s", a.Kind)}
	}
}

func (d *Dispatcher) loadResource(ctx context.Context, a rules.Action, env types.Environment) outcome {
	if d.host.Loader == nil {
		return outcome{err: types.ErrCapabilityMissing}
	}
	var bust string
	if a.CacheBust {
		bust = d.cacheBuster()
	}
	urls := make([]string, 0, len(a.URLs))
	for _, raw := range a.URLs {
		u, err := expandURL(raw, d.baseURL, env, bust)
		if err != nil {
			return outcome{err: err}
		}
		urls = append(urls, u)
	}

	if a.Ordering == types.OrderingSequential {
		total := 0
		for _, u := range urls {
			n, err := d.loadWithRetry(ctx, []string{u})
			total += n
			if err != nil {
				// Later scripts may depend on this one.
				return outcome{attempts: total, err: fmt.Errorf("load %s: %w", u, err)}
			}
		}
		return outcome{attempts: total}
	}

	n, err := d.loadWithRetry(ctx, urls)
	return outcome{attempts: n, err: err}
}

// loadWithRetry calls Loader.Load up to retries+1 times.
func (d *Dispatcher) loadWithRetry(ctx context.Context, urls []string) (int, error) {
	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		return struct{}{}, d.host.Loader.Load(ctx, urls)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(d.retryDelay)),
		backoff.WithMaxTries(uint(d.retries+1)),
	)
	return attempts, err
}

func (d *Dispatcher) installPlugin(ctx context.Context, a rules.Action, env types.Environment) outcome {
	if d.host.Plugins == nil || d.host.Loader == nil {
		return outcome{err: types.ErrCapabilityMissing}
	}
	p := a.Plugin
	u, err := expandURL(p.URL, d.baseURL, env, "")
	if err != nil {
		return outcome{err: err}
	}
	p.URL = u

	installed, err := d.host.Plugins.List(ctx)
	if err != nil {
		return outcome{err: fmt.Errorf("list plugins: %w", err)}
	}
	if slices.ContainsFunc(installed, func(q types.Plugin) bool { return q.URL == p.URL }) {
		return outcome{skipReason: "plugin already installed"}
	}

	// Only loaded plugins are listed; a failed load is retried on the next dispatch.
	n, err := d.loadWithRetry(ctx, []string{p.URL})
	if err != nil {
		return outcome{attempts: n, err: fmt.Errorf("load plugin: %w", err)}
	}
	if err := d.host.Plugins.Add(ctx, p); err != nil {
		return outcome{attempts: n, err: fmt.Errorf("add plugin: %w", err)}
	}
	return outcome{attempts: n}
}

// IsCapabilityMissing reports whether a result failed for lack of a host capability.
func IsCapabilityMissing(r ActionResult) bool {
	return errors.Is(r.Err, types.ErrCapabilityMissing)
}

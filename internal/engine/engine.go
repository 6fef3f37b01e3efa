// Package engine runs dispatch passes: for each rule of the phase, in
// registry order, evaluate its predicate and dispatch its action before
// moving to the next rule.
//
// Passes are serialized. A pass never aborts on a rule failure; every rule
// yields exactly one ActionResult in the pass summary.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/solatis/envboot/internal/dispatch"
	"github.com/solatis/envboot/internal/rules"
	"github.com/solatis/envboot/internal/telemetry"
	"github.com/solatis/envboot/internal/types"
)

// Hooks runs user scripts after the rules of a phase.
type Hooks interface {
	Run(ctx context.Context, phase types.Phase, env types.Environment) (bool, error)
}

// Engine owns the session and serializes passes.
type Engine struct {
	registry   *rules.Registry
	dispatcher *dispatch.Dispatcher
	session    *dispatch.Session
	hooks      Hooks
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time

	mu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithHooks runs h after the rules of every pass.
func WithHooks(h Hooks) Option {
	return func(e *Engine) { e.hooks = h }
}

// WithSession uses s instead of a fresh session.
func WithSession(s *dispatch.Session) Option {
	return func(e *Engine) { e.session = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithClock overrides the timestamp source for engine-recorded results.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New seals reg and returns an engine dispatching through d.
func New(reg *rules.Registry, d *dispatch.Dispatcher, opts ...Option) *Engine {
	reg.Seal()
	e := &Engine{
		registry:   reg,
		dispatcher: d,
		logger:     slog.Default(),
		tracer:     telemetry.Tracer("engine"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.session == nil {
		e.session = dispatch.NewSession(types.NewSessionID())
	}
	return e
}

// Session returns the engine's session view and log.
func (e *Engine) Session() *dispatch.Session { return e.session }

// Registry returns the sealed registry.
func (e *Engine) Registry() *rules.Registry { return e.registry }

// RunPass evaluates and dispatches every rule participating in phase.
func (e *Engine) RunPass(ctx context.Context, phase types.Phase, env types.Environment) dispatch.Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, span := e.tracer.Start(ctx, "pass."+string(phase), trace.WithAttributes(
		attribute.String("phase", string(phase)),
		attribute.String("session.id", string(e.session.ID())),
	))
	defer span.End()

	sum := dispatch.Summary{Phase: phase}
	for _, rule := range e.registry.ForPhase(phase) {
		sum.Add(e.runRule(ctx, phase, rule, env))
	}

	if e.hooks != nil {
		if res, ran := e.runHooks(ctx, phase, env); ran {
			sum.Add(res)
		}
	}

	span.SetAttributes(
		attribute.Int("applied", sum.Applied),
		attribute.Int("skipped", sum.Skipped),
		attribute.Int("failed", sum.Failed),
	)
	e.logger.InfoContext(ctx, "pass complete",
		"phase", phase,
		"applied", sum.Applied,
		"skipped", sum.Skipped,
		"failed", sum.Failed,
	)
	return sum
}

func (e *Engine) runRule(ctx context.Context, phase types.Phase, rule *rules.Rule, env types.Environment) dispatch.ActionResult {
	matched, err := rules.Evaluate(rule, env, e.session)
	if err != nil {
		e.logger.WarnContext(ctx, "predicate failed", "rule", rule.ID, "phase", phase, "error", err)
		return e.record(dispatch.ActionResult{
			RuleID:  rule.ID,
			Phase:   phase,
			Outcome: types.OutcomeSkipped,
			Reason:  "predicate error",
			Err:     err,
		})
	}
	if !matched {
		return e.record(dispatch.ActionResult{
			RuleID:  rule.ID,
			Phase:   phase,
			Outcome: types.OutcomeSkipped,
			Reason:  "predicate not matched",
		})
	}
	return e.dispatcher.Dispatch(ctx, e.session, phase, rule, env)
}

func (e *Engine) runHooks(ctx context.Context, phase types.Phase, env types.Environment) (dispatch.ActionResult, bool) {
	res := dispatch.ActionResult{
		RuleID: types.RuleID("hook:on_" + string(phase)),
		Phase:  phase,
	}
	ran, err := e.hooks.Run(ctx, phase, env)
	switch {
	case err != nil:
		e.logger.WarnContext(ctx, "hook failed", "phase", phase, "error", err)
		res.Outcome = types.OutcomeFailed
		res.Err = err
	case !ran:
		return res, false
	default:
		res.Outcome = types.OutcomeApplied
	}
	return e.record(res), true
}

func (e *Engine) record(res dispatch.ActionResult) dispatch.ActionResult {
	res.At = e.now()
	e.session.Record(res)
	return res
}

// Package hooks runs user Lua scripts at lifecycle phases.
//
// A hook file defines any of on_load, on_ready, on_first_run, on_settings,
// on_unlock. Each Run uses a fresh Lua state, so hooks cannot carry state
// between passes except through the store. Bindings:
//
//	get(key [, default]) -> string
//	set(key, value)
//	load(url, ...)
//	show(target) / hide(target)
//	log(message)
//	env                   table snapshot of the Environment
//
// Binding failures raise Lua errors; Run returns them wrapped.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Shopify/go-lua"

	"github.com/solatis/envboot/internal/host"
	"github.com/solatis/envboot/internal/types"
)

// Runner executes one hook script.
type Runner struct {
	name   string
	source string
	host   host.Host
	logger *slog.Logger
}

// New validates source by loading it into a scratch state.
func New(name, source string, h host.Host, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := lua.NewState()
	if err := lua.LoadBuffer(l, source, name, ""); err != nil {
		return nil, fmt.Errorf("hooks %s: %w", name, err)
	}
	return &Runner{name: name, source: source, host: h, logger: logger}, nil
}

// Load reads a hook file.
func Load(path string, h host.Host, logger *slog.Logger) (*Runner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hooks file: %w", err)
	}
	return New(filepath.Base(path), string(data), h, logger)
}

// FuncName returns the hook function called for phase.
func FuncName(phase types.Phase) string {
	return "on_" + string(phase)
}

// Run executes the script and then its hook for phase, if defined.
// It reports whether a hook function was found.
func (r *Runner) Run(ctx context.Context, phase types.Phase, env types.Environment) (bool, error) {
	l := lua.NewState()
	lua.OpenLibraries(l)
	r.register(ctx, l, env)

	if err := lua.LoadBuffer(l, r.source, r.name, ""); err != nil {
		return false, fmt.Errorf("hooks %s: %w", r.name, err)
	}
	if err := l.ProtectedCall(0, 0, 0); err != nil {
		return false, fmt.Errorf("hooks %s: %w", r.name, err)
	}

	fn := FuncName(phase)
	l.Global(fn)
	if !l.IsFunction(-1) {
		l.Pop(1)
		return false, nil
	}
	if err := l.ProtectedCall(0, 0, 0); err != nil {
		return true, fmt.Errorf("hooks %s: %s: %w", r.name, fn, err)
	}
	return true, nil
}

func (r *Runner) register(ctx context.Context, l *lua.State, env types.Environment) {
	l.Register("get", func(l *lua.State) int {
		key := lua.CheckString(l, 1)
		def := lua.OptString(l, 2, "")
		if r.host.Store == nil {
			lua.Errorf(l, "get: %s", types.ErrCapabilityMissing)
		}
		v, err := r.host.Store.Get(ctx, key, def)
		if err != nil {
			lua.Errorf(l, "get %s: %s", key, err)
		}
		l.PushString(v)
		return 1
	})

	l.Register("set", func(l *lua.State) int {
		key := lua.CheckString(l, 1)
		value := lua.CheckString(l, 2)
		if r.host.Store == nil {
			lua.Errorf(l, "set: %s", types.ErrCapabilityMissing)
		}
		if err := r.host.Store.Set(ctx, key, value); err != nil {
			lua.Errorf(l, "set %s: %s", key, err)
		}
		return 0
	})

	l.Register("load", func(l *lua.State) int {
		n := l.Top()
		urls := make([]string, 0, n)
		for i := 1; i <= n; i++ {
			urls = append(urls, lua.CheckString(l, i))
		}
		if len(urls) == 0 {
			return 0
		}
		if r.host.Loader == nil {
			lua.Errorf(l, "load: %s", types.ErrCapabilityMissing)
		}
		if err := r.host.Loader.Load(ctx, urls); err != nil {
			lua.Errorf(l, "load: %s", err)
		}
		return 0
	})

	toggle := func(name string, visible bool) lua.Function {
		return func(l *lua.State) int {
			target := types.VisibilityTarget(lua.CheckString(l, 1))
			if r.host.Visibility == nil {
				lua.Errorf(l, "%s: %s", name, types.ErrCapabilityMissing)
			}
			var err error
			if visible {
				err = r.host.Visibility.Show(ctx, target)
			} else {
				err = r.host.Visibility.Hide(ctx, target)
			}
			if err != nil {
				lua.Errorf(l, "%s %s: %s", name, target, err)
			}
			return 0
		}
	}
	l.Register("show", toggle("show", true))
	l.Register("hide", toggle("hide", false))

	l.Register("log", func(l *lua.State) int {
		msg := lua.CheckString(l, 1)
		r.logger.InfoContext(ctx, msg, "hook", r.name)
		return 0
	})

	pushEnv(l, env)
	l.SetGlobal("env")
}

func pushEnv(l *lua.State, env types.Environment) {
	l.NewTable()
	for k, v := range map[string]string{
		"accountTier":  env.AccountTier(),
		"locale":       env.Locale(),
		"sessionId":    string(env.SessionID()),
		"installId":    env.InstallID(),
		"platform":     env.Platform(),
		"accountEmail": env.AccountEmail(),
	} {
		l.PushString(v)
		l.SetField(-2, k)
	}

	l.NewTable()
	for i, f := range env.FeatureFlags() {
		l.PushString(f)
		l.RawSetInt(-2, i+1)
	}
	l.SetField(-2, "featureFlags")

	l.NewTable()
	for k, v := range env.Map()["attributes"].(map[string]any) {
		l.PushString(fmt.Sprint(v))
		l.SetField(-2, k)
	}
	l.SetField(-2, "attributes")
}

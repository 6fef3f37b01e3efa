package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/envboot/internal/host"
	"github.com/solatis/envboot/internal/host/memhost"
	"github.com/solatis/envboot/internal/rules"
	"github.com/solatis/envboot/internal/types"
)

func testEnv() types.Environment {
	return types.NewEnvironment(types.EnvironmentInput{
		AccountTier:  types.TierVIP,
		SessionID:    "sess-1",
		InstallID:    "abcd1234",
		AccountEmail: "user@example.com",
	})
}

func newDispatcher(h *memhost.Host, opts ...Option) *Dispatcher {
	opts = append([]Option{WithRetryDelay(0), WithBaseURL("http://lampa.local/")}, opts...)
	return New(h.Capabilities(), opts...)
}

func rule(id string, a rules.Action) *rules.Rule {
	return &rules.Rule{ID: types.RuleID(id), Predicate: rules.Always, Action: a, Scope: types.ScopeSession}
}

func TestDispatch_SetPreference(t *testing.T) {
	h := memhost.New()
	d := newDispatcher(h)
	s := NewSession("sess-1")

	res := d.Dispatch(context.Background(), s, types.PhaseLoad, rule("vip-quality", rules.SetPreference("quality", "4k")), testEnv())

	assert.Equal(t, types.OutcomeApplied, res.Outcome)
	assert.NoError(t, res.Err)
	v, err := h.Get(context.Background(), "quality", "")
	require.NoError(t, err)
	assert.Equal(t, "4k", v)

	pref, ok := s.Preference("quality")
	assert.True(t, ok)
	assert.Equal(t, "4k", pref)
	assert.True(t, s.Applied("vip-quality"))
	assert.Len(t, s.Log(), 1)
}

func TestDispatch_AppliesOnceSession(t *testing.T) {
	h := memhost.New()
	d := newDispatcher(h)
	s := NewSession("sess-1")
	r := rule("scripts", rules.LoadResource(types.OrderingParallel, "{base}/a.js"))
	r.AppliesOnce = true

	var applied int
	for i := 0; i < 5; i++ {
		res := d.Dispatch(context.Background(), s, types.PhaseReady, r, testEnv())
		if res.Outcome == types.OutcomeApplied {
			applied++
		}
	}

	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, h.LoadCount("http://lampa.local/a.js"))
	assert.Len(t, s.Log(), 5)
	assert.Equal(t, "already applied this session", s.Log()[4].Reason)
}

func TestDispatch_AppliesOnceInstallation(t *testing.T) {
	h := memhost.New()
	d := newDispatcher(h)
	r := rule("rating", rules.SetPreference("rating", "on"))
	r.AppliesOnce = true
	r.Scope = types.ScopeInstallation

	first := d.Dispatch(context.Background(), NewSession("s1"), types.PhaseFirstRun, r, testEnv())
	require.Equal(t, types.OutcomeApplied, first.Outcome)

	mark, err := h.Get(context.Background(), "applied:rating", "")
	require.NoError(t, err)
	assert.NotEmpty(t, mark)

	// A new session on the same installation must not re-apply.
	s2 := NewSession("s2")
	second := d.Dispatch(context.Background(), s2, types.PhaseFirstRun, r, testEnv())
	assert.Equal(t, types.OutcomeSkipped, second.Outcome)
	assert.Equal(t, "already applied on this installation", second.Reason)
	assert.True(t, s2.Applied("rating"))
}

func TestDispatch_LoadRetry(t *testing.T) {
	h := memhost.New()
	d := newDispatcher(h)
	h.FailLoad("http://lampa.local/flaky.js", 1)

	res := d.Dispatch(context.Background(), NewSession("s"), types.PhaseLoad,
		rule("flaky", rules.LoadResource(types.OrderingParallel, "{base}/flaky.js")), testEnv())

	assert.Equal(t, types.OutcomeApplied, res.Outcome)
	assert.Equal(t, 2, res.Attempts)
}

func TestDispatch_LoadFailsBeyondRetryBound(t *testing.T) {
	h := memhost.New()
	d := newDispatcher(h, WithRetries(1))
	h.FailLoad("http://lampa.local/broken.js", 2)

	res := d.Dispatch(context.Background(), NewSession("s"), types.PhaseLoad,
		rule("broken", rules.LoadResource(types.OrderingParallel, "{base}/broken.js")), testEnv())

	assert.Equal(t, types.OutcomeFailed, res.Outcome)
	assert.Equal(t, 2, res.Attempts)
	assert.True(t, types.IsActionError(res.Err))
	assert.True(t, errors.Is(res.Err, memhost.ErrLoadFailed))
}

func TestDispatch_SequentialStopsAtFirstFailure(t *testing.T) {
	h := memhost.New()
	d := newDispatcher(h, WithRetries(0))
	h.FailLoad("/b.js", -1)

	res := d.Dispatch(context.Background(), NewSession("s"), types.PhaseLoad,
		rule("seq", rules.LoadResource(types.OrderingSequential, "/a.js", "/b.js", "/c.js")), testEnv())

	assert.Equal(t, types.OutcomeFailed, res.Outcome)
	assert.Equal(t, [][]string{{"/a.js"}, {"/b.js"}}, h.Loads())
}

func TestDispatch_ParallelPassesOneBatch(t *testing.T) {
	h := memhost.New()
	d := newDispatcher(h)

	res := d.Dispatch(context.Background(), NewSession("s"), types.PhaseLoad,
		rule("batch", rules.LoadResource(types.OrderingParallel, "/a.js", "{base}/p?uid={uid}&email={email}")), testEnv())

	require.Equal(t, types.OutcomeApplied, res.Outcome)
	assert.Equal(t, [][]string{{"/a.js", "http://lampa.local/p?uid=abcd1234&email=user%40example.com"}}, h.Loads())
}

func TestDispatch_CacheBust(t *testing.T) {
	h := memhost.New()
	d := newDispatcher(h, WithCacheBuster(func() string { return "42" }))
	a := rules.LoadResource(types.OrderingParallel, "{base}/online.js")
	a.CacheBust = true

	d.Dispatch(context.Background(), NewSession("s"), types.PhaseLoad, rule("bust", a), testEnv())

	assert.Equal(t, [][]string{{"http://lampa.local/online.js?v=42"}}, h.Loads())
}

func TestDispatch_ToggleVisibility(t *testing.T) {
	h := memhost.New()
	d := newDispatcher(h)

	res := d.Dispatch(context.Background(), NewSession("s"), types.PhaseSettings,
		rule("hide", rules.ToggleVisibility("settings.account", false)), testEnv())

	require.Equal(t, types.OutcomeApplied, res.Outcome)
	visible, ok := h.Visible("settings.account")
	assert.True(t, ok)
	assert.False(t, visible)
}

func TestDispatch_EnableFlagVisibleToSession(t *testing.T) {
	s := NewSession("s")
	d := newDispatcher(memhost.New())

	d.Dispatch(context.Background(), s, types.PhaseUnlock, rule("unlock", rules.EnableFlag("unlocked")), testEnv())

	assert.Equal(t, []string{"unlocked"}, s.Flags())
}

func TestDispatch_InstallPluginDedup(t *testing.T) {
	h := memhost.New()
	d := newDispatcher(h)
	p := types.Plugin{URL: "{base}/rating.js", Name: "Rating", Status: 1}

	first := d.Dispatch(context.Background(), NewSession("s1"), types.PhaseFirstRun, rule("rating", rules.InstallPlugin(p)), testEnv())
	second := d.Dispatch(context.Background(), NewSession("s2"), types.PhaseFirstRun, rule("rating", rules.InstallPlugin(p)), testEnv())

	assert.Equal(t, types.OutcomeApplied, first.Outcome)
	assert.Equal(t, types.OutcomeSkipped, second.Outcome)
	assert.Equal(t, "plugin already installed", second.Reason)

	plugins, err := h.List(context.Background())
	require.NoError(t, err)
	require.Len(t, plugins, 1)
	assert.Equal(t, "http://lampa.local/rating.js", plugins[0].URL)
	assert.Equal(t, 1, h.LoadCount("http://lampa.local/rating.js"))
}

func TestDispatch_InstallPluginRetriesFailedLoad(t *testing.T) {
	h := memhost.New()
	d := newDispatcher(h)
	url := "http://lampa.local/rating.js"
	h.FailLoad(url, 2)
	p := types.Plugin{URL: "{base}/rating.js", Name: "Rating", Status: 1}
	s := NewSession("sess-1")

	first := d.Dispatch(context.Background(), s, types.PhaseFirstRun, rule("rating", rules.InstallPlugin(p)), testEnv())
	require.Equal(t, types.OutcomeFailed, first.Outcome)

	plugins, err := h.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, plugins, "failed load must not list the plugin")

	second := d.Dispatch(context.Background(), s, types.PhaseFirstRun, rule("rating", rules.InstallPlugin(p)), testEnv())
	assert.Equal(t, types.OutcomeApplied, second.Outcome)

	plugins, err = h.List(context.Background())
	require.NoError(t, err)
	require.Len(t, plugins, 1)
	assert.Equal(t, url, plugins[0].URL)
	assert.Equal(t, 3, h.LoadCount(url))
}

func TestDispatch_CapabilityMissing(t *testing.T) {
	d := New(host.Host{})

	res := d.Dispatch(context.Background(), NewSession("s"), types.PhaseLoad, rule("pref", rules.SetPreference("k", "v")), testEnv())

	assert.Equal(t, types.OutcomeFailed, res.Outcome)
	assert.True(t, IsCapabilityMissing(res))
}

func TestSummary_Add(t *testing.T) {
	var sum Summary
	sum.Add(ActionResult{Outcome: types.OutcomeApplied})
	sum.Add(ActionResult{Outcome: types.OutcomeSkipped})
	sum.Add(ActionResult{Outcome: types.OutcomeFailed})
	sum.Add(ActionResult{Outcome: types.OutcomeApplied})

	assert.Equal(t, 2, sum.Applied)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 1, sum.Failed)
	assert.Len(t, sum.Results, 4)
}

func TestActionResult_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(ActionResult{
		RuleID:  "broken",
		Phase:   types.PhaseLoad,
		Outcome: types.OutcomeFailed,
		Err:     errors.New("boom"),
	})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "failed", got["outcome"])
	assert.Equal(t, "boom", got["error"])
	assert.Equal(t, "broken", got["rule_id"])
}

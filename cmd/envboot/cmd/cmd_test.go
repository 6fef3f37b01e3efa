package cmd

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/envboot/internal/pin"
	"github.com/solatis/envboot/internal/store"
)

const (
	rulesPath = "../../../configs/rules.yaml"
	hooksPath = "../../../configs/hooks.lua"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn", "json")
	require.NoError(t, err)
	logger.Info("dropped")
	logger.Warn("kept", "k", "v")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"msg":"kept"`)

	_, err = newLogger(&buf, "loud", "json")
	assert.Error(t, err)
	_, err = newLogger(&buf, "info", "xml")
	assert.Error(t, err)
}

func TestValidate_ShippedConfig(t *testing.T) {
	out, err := execute(t, "validate", "--rules", rulesPath, "--hooks", hooksPath, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "rules")
	assert.Contains(t, out, "first_run")
}

func TestValidate_BadRules(t *testing.T) {
	_, err := execute(t, "validate", "--rules", filepath.Join(t.TempDir(), "missing.yaml"), "--hooks", "", "--log-level", "error")
	assert.Error(t, err)
}

func TestRun_FirstRunOnce(t *testing.T) {
	t.Setenv("EB_STORE_URL", "sqlite://"+filepath.Join(t.TempDir(), "state.db"))
	t.Setenv("EB_ENV_TIER", "vip")
	t.Setenv("EB_ENGINE_RETRY_DELAY", "0s")

	out, err := execute(t, "run", "--rules", rulesPath, "--hooks", hooksPath, "--log-level", "error", "--trigger", "settings")
	require.NoError(t, err)
	assert.Contains(t, out, "vip-quality")
	assert.Contains(t, out, "plugin-profiles")
	assert.Contains(t, out, "hook:on_first_run")
	assert.Contains(t, out, "settings-order")

	out, err = execute(t, "run", "--rules", rulesPath, "--hooks", hooksPath, "--log-level", "error")
	require.NoError(t, err)
	assert.NotContains(t, out, "plugin-profiles", "first-run pass is skipped on the second run")

	out, err = execute(t, "state", "show", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "lampac_initiale=true")
	assert.Contains(t, out, "applied:plugin-profiles=")

	out, err = execute(t, "state", "reset", "--log-level", "error")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "removed "))

	out, err = execute(t, "state", "show", "--log-level", "error")
	require.NoError(t, err)
	assert.NotContains(t, out, "lampac_initiale")
	assert.Contains(t, out, "lampac_unic_id=")
}

func TestMigrate_Sqlite(t *testing.T) {
	dbURL := "sqlite://" + filepath.Join(t.TempDir(), "m.db")

	out, err := execute(t, "migrate", "--db-url", dbURL, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "001_initial_schema.sql")
	assert.Contains(t, out, "applied")
}

func TestMigrate_MemoryStoreRejected(t *testing.T) {
	_, err := execute(t, "migrate", "--db-url", "memory://", "--log-level", "error")
	assert.Error(t, err)
}

func TestRun_ParentalPin(t *testing.T) {
	dbURL := "sqlite://" + filepath.Join(t.TempDir(), "state.db")
	t.Setenv("EB_STORE_URL", dbURL)
	t.Setenv("EB_ENGINE_RETRY_DELAY", "0s")
	t.Cleanup(func() {
		f := runCmd.Flags().Lookup("pin")
		f.Value.Set("")
		f.Changed = false
	})

	ctx := context.Background()
	st, err := store.Open(ctx, dbURL)
	require.NoError(t, err)
	require.NoError(t, st.Set(ctx, pin.KeyPIN, "1000"))
	require.NoError(t, st.Set(ctx, pin.KeyProfile, "_id1"))
	require.NoError(t, st.Close())

	out, err := execute(t, "run", "--rules", rulesPath, "--hooks", "", "--log-level", "error", "--pin", "0000")
	require.NoError(t, err)
	assert.NotContains(t, out, "parental-menu", "wrong code runs no pass")

	out, err = execute(t, "run", "--rules", rulesPath, "--hooks", "", "--log-level", "error", "--pin", "1000")
	require.NoError(t, err)
	assert.Contains(t, out, "parental-menu")
	assert.Contains(t, out, "parental-script")
}

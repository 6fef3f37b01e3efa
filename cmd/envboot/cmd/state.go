package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/solatis/envboot/internal/core/config"
	"github.com/solatis/envboot/internal/store"
	"github.com/solatis/envboot/internal/types"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or reset persisted bootstrap state",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print every persisted key",
	RunE:  runStateShow,
}

var stateResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the first-run flag and installation-scoped applied marks",
	RunE:  runStateReset,
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateShowCmd, stateResetCmd)
	stateResetCmd.Flags().Bool("install-id", false, "also drop the installation id")
}

func openStateStore(cmd *cobra.Command) (store.Store, *config.Config, error) {
	if _, err := setupLogger(cmd); err != nil {
		return nil, nil, err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Host.Kind != "memory" {
		return nil, nil, fmt.Errorf("state is kept by the %s host; only the memory host store can be inspected", cfg.Host.Kind)
	}
	st, err := store.Open(context.Background(), cfg.Store.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	return st, cfg, nil
}

func runStateShow(cmd *cobra.Command, args []string) error {
	st, _, err := openStateStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.List(context.Background())
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := cmd.OutOrStdout()
	for _, k := range keys {
		fmt.Fprintf(out, "%s=%s\n", k, entries[k])
	}
	return nil
}

func runStateReset(cmd *cobra.Command, args []string) error {
	st, cfg, err := openStateStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	entries, err := st.List(ctx)
	if err != nil {
		return err
	}
	dropID, _ := cmd.Flags().GetBool("install-id")

	var removed int
	for k := range entries {
		if k != cfg.Engine.FirstRunKey && !strings.HasPrefix(k, types.KeyAppliedPrefix) &&
			!(dropID && k == types.KeyInstallID) {
			continue
		}
		if err := st.Delete(ctx, k); err != nil {
			return fmt.Errorf("delete %s: %w", k, err)
		}
		removed++
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d key(s)\n", removed)
	return nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/envboot/internal/hooks"
	"github.com/solatis/envboot/internal/host"
	"github.com/solatis/envboot/internal/rules"
	"github.com/solatis/envboot/internal/types"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Compile the rule file and hooks without touching a host",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	cc, err := rules.NewCELCompiler(cfg.Engine.CELCostLimit)
	if err != nil {
		return err
	}
	reg, err := rules.LoadFile(cfg.Rules, cc)
	if err != nil {
		return fmt.Errorf("invalid rules: %w", err)
	}
	if cfg.Hooks != "" {
		if _, err := hooks.Load(cfg.Hooks, host.Host{}, logger); err != nil {
			return fmt.Errorf("invalid hooks: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d rules\n", cfg.Rules, reg.Len())
	for _, phase := range types.Phases {
		fmt.Fprintf(out, "  %-17s %d\n", phase, len(reg.ForPhase(phase)))
	}
	return nil
}

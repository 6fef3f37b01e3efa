package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/solatis/envboot/internal/dispatch"
	"github.com/solatis/envboot/internal/pin"
	"github.com/solatis/envboot/internal/telemetry"
	"github.com/solatis/envboot/internal/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bootstrap lifecycle once against the configured host",
	Long: `run waits for the host, runs the load, ready and first-run passes, then
optionally fires settings/unlock events, key presses and a parental PIN
before exiting.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringSlice("trigger", nil, "events to fire after ready (settings, unlock)")
	runCmd.Flags().IntSlice("keys", nil, "key codes to feed to the unlock sequence after ready")
	runCmd.Flags().String("pin", "", "parental-control PIN to enter after ready")
	runCmd.Flags().Bool("print-session", false, "print the session log as JSON")
	runCmd.Flags().Bool("fail-on-error", false, "exit non-zero when any action failed")
}

func runRun(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("print-session") {
		cfg.Engine.PrintSession, _ = cmd.Flags().GetBool("print-session")
	}
	if cmd.Flags().Changed("fail-on-error") {
		cfg.Engine.ExitOnFailure, _ = cmd.Flags().GetBool("fail-on-error")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := setupTelemetry(ctx)
	if err != nil {
		return err
	}
	defer shutdown(context.Background())

	rt, err := bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	summaries, runErr := rt.gate.Run(ctx)

	if runErr == nil {
		events, _ := cmd.Flags().GetStringSlice("trigger")
		for _, ev := range events {
			sum, err := rt.gate.Trigger(ctx, types.Phase(strings.TrimSpace(ev)))
			if err != nil {
				runErr = fmt.Errorf("trigger %s: %w", ev, err)
				break
			}
			summaries = append(summaries, sum)
		}
	}
	if runErr == nil {
		keys, _ := cmd.Flags().GetIntSlice("keys")
		for _, code := range keys {
			sum, fired, err := rt.gate.Key(ctx, code)
			if err != nil {
				runErr = fmt.Errorf("key %d: %w", code, err)
				break
			}
			if fired {
				summaries = append(summaries, sum)
			}
		}
	}

	if runErr == nil && cmd.Flags().Changed("pin") {
		entered, _ := cmd.Flags().GetString("pin")
		sum, res, err := rt.gate.Pin(ctx, entered)
		switch {
		case err != nil:
			runErr = fmt.Errorf("pin: %w", err)
		case res != pin.Granted:
			logger.Warn("parental pin refused", "result", res.String())
		default:
			summaries = append(summaries, sum)
		}
	}

	out := cmd.OutOrStdout()
	printSummaries(out, summaries)
	if cfg.Engine.PrintSession {
		if err := printSession(out, rt.engine.Session()); err != nil {
			return err
		}
	}

	if runErr != nil {
		return runErr
	}
	if cfg.Engine.ExitOnFailure {
		for _, s := range summaries {
			if s.Failed > 0 {
				return fmt.Errorf("%d action(s) failed in %s pass", s.Failed, s.Phase)
			}
		}
	}
	logger.Info("bootstrap complete", "state", rt.gate.State().String())
	return nil
}

func setupTelemetry(ctx context.Context) (func(context.Context) error, error) {
	tcfg, err := telemetry.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load telemetry config: %w", err)
	}
	shutdown, err := telemetry.Setup(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}
	return shutdown, nil
}

func printSummaries(w io.Writer, summaries []dispatch.Summary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PHASE\tRULE\tOUTCOME\tDETAIL")
	for _, s := range summaries {
		for _, r := range s.Results {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Phase, r.RuleID, r.Outcome, detail(r))
		}
	}
	tw.Flush()
}

func detail(r dispatch.ActionResult) string {
	var parts []string
	if r.Reason != "" {
		parts = append(parts, r.Reason)
	}
	if r.Err != nil {
		parts = append(parts, r.Err.Error())
	}
	if r.Attempts > 1 {
		parts = append(parts, "attempts="+strconv.Itoa(r.Attempts))
	}
	return strings.Join(parts, "; ")
}

func printSession(w io.Writer, s *dispatch.Session) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(struct {
		SessionID types.SessionID        `json:"session_id"`
		Results   []dispatch.ActionResult `json:"results"`
	}{s.ID(), s.Log()}); err != nil {
		return fmt.Errorf("print session log: %w", err)
	}
	return nil
}

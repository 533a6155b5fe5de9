package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/medrag-cli/internal/monitoring"
)

var runsHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check recent runs against failure and cost thresholds",
	Long: "Summarizes ledger activity over a lookback window and reports alerts when the run " +
		"failure rate, model call failure rate or estimated spend crosses the monitoring thresholds.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		lookback := cfg.Monitoring.LookbackHours
		if cmd.Flags().Changed("lookback-hours") {
			lookback, _ = cmd.Flags().GetInt("lookback-hours")
		}
		send, _ := cmd.Flags().GetBool("send")
		failOnAlert, _ := cmd.Flags().GetBool("fail-on-alert")

		snap, err := monitoring.NewCollector(st).Collect(ctx, lookback)
		if err != nil {
			return err
		}

		alerter := monitoring.NewAlerter(cfg.Monitoring)
		alerts := alerter.Evaluate(snap)

		out := cmd.OutOrStdout()
		formatHealth(out, snap, alerts)

		if send && len(alerts) > 0 {
			sent := alerter.SendAlerts(ctx, alerts)
			fmt.Fprintf(out, "\nsent %d/%d alerts\n", sent, len(alerts)) //nolint:errcheck
		}
		if failOnAlert && len(alerts) > 0 {
			return &exitError{code: 1, msg: fmt.Sprintf("runs health: %d alerts", len(alerts))}
		}
		return nil
	},
}

func init() {
	runsHealthCmd.Flags().Int("lookback-hours", 24, "window of runs to inspect (0 for the whole ledger)")
	runsHealthCmd.Flags().Bool("send", false, "post alerts to monitoring.webhook_url")
	runsHealthCmd.Flags().Bool("fail-on-alert", false, "exit non-zero when any alert fires")
	runsCmd.AddCommand(runsHealthCmd)
}

func formatHealth(out io.Writer, s *monitoring.MetricsSnapshot, alerts []monitoring.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	window := fmt.Sprintf("last %dh", s.LookbackHours)
	if s.LookbackHours <= 0 {
		window = "all time"
	}
	_, _ = fmt.Fprintf(w, "Window:\t%s\n", window)
	_, _ = fmt.Fprintf(w, "Runs:\t%d (complete %d, failed %d, running %d)\n",
		s.RunsTotal, s.RunsComplete, s.RunsFailed, s.RunsRunning)
	_, _ = fmt.Fprintf(w, "Run failure rate:\t%.1f%%\n", s.RunFailRate*100)
	_, _ = fmt.Fprintf(w, "Calls:\t%d (failed %d, %.1f%%)\n", s.Calls, s.FailedCalls, s.CallFailRate*100)
	_, _ = fmt.Fprintf(w, "Calls per record:\t%.1f\n", s.AvgCallsPerRecord)
	_, _ = fmt.Fprintf(w, "Tokens:\t%d\n", s.TotalTokens)
	_, _ = fmt.Fprintf(w, "Est. cost:\t$%.4f\n", s.CostUSD)
	_ = w.Flush()

	if len(alerts) == 0 {
		_, _ = fmt.Fprintln(out, "\n[ok] no alerts")
		return
	}
	_, _ = fmt.Fprintln(out)
	for _, a := range alerts {
		_, _ = fmt.Fprintf(out, "[%s] %s: %s\n", a.Severity, a.Type, a.Message)
	}
}

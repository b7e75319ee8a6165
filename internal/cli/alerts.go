package cli

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kaviyashree6/empathyconnect/internal/model/alert"
	"github.com/kaviyashree6/empathyconnect/pkg/chatapi"
)

var (
	alertStatus string
	alertLimit  int
	reviewer    string
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Review crisis alerts",
	Long: `List and triage the crisis alerts raised by conversations.

Examples:
  empathy alerts list --status pending
  empathy alerts stats
  empathy alerts ack 2f0c... --by dr.rao
  empathy alerts resolve 2f0c... --by dr.rao`,
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent alerts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		alerts, err := api.listAlerts(cmd.Context(), alertStatus, alertLimit)
		if err != nil {
			return err
		}
		printAlerts(cmd.OutOrStdout(), alerts)
		return nil
	},
}

var alertsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show alert counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := api.alertStats(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		high := fmt.Sprint(stats.HighRiskPending)
		if stats.HighRiskPending > 0 {
			high = color.New(color.FgRed, color.Bold).Sprint(high)
		}
		fmt.Fprintf(out, "Pending:           %d\n", stats.Pending)
		fmt.Fprintf(out, "High risk pending: %s\n", high)
		fmt.Fprintf(out, "Acknowledged:      %d\n", stats.Acknowledged)
		fmt.Fprintf(out, "Resolved today:    %d\n", stats.ResolvedToday)
		return nil
	},
}

var alertsAckCmd = &cobra.Command{
	Use:   "ack ALERT_ID",
	Short: "Acknowledge an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transition(cmd, args[0], "acknowledge")
	},
}

var alertsResolveCmd = &cobra.Command{
	Use:   "resolve ALERT_ID",
	Short: "Resolve an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transition(cmd, args[0], "resolve")
	},
}

func init() {
	alertsListCmd.Flags().StringVar(&alertStatus, "status", "", "filter by status (pending, acknowledged, resolved)")
	alertsListCmd.Flags().IntVarP(&alertLimit, "limit", "n", 50, "maximum number of alerts")

	for _, c := range []*cobra.Command{alertsAckCmd, alertsResolveCmd} {
		c.Flags().StringVar(&reviewer, "by", "", "name of the reviewer")
		_ = c.MarkFlagRequired("by")
	}

	alertsCmd.AddCommand(alertsListCmd, alertsStatsCmd, alertsAckCmd, alertsResolveCmd)
}

func transition(cmd *cobra.Command, id, action string) error {
	by := strings.TrimSpace(reviewer)
	if by == "" {
		return fmt.Errorf("--by must not be empty")
	}
	updated, err := api.transitionAlert(cmd.Context(), id, action, by)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Alert %s is now %s\n", updated.ID, statusLabel(updated.Status))
	return nil
}

func printAlerts(out io.Writer, alerts []alert.CrisisAlert) {
	if len(alerts) == 0 {
		fmt.Fprintln(out, "No alerts.")
		return
	}

	// Rows are colored after alignment; escape codes inside cells would
	// throw off the tabwriter's column widths.
	var table bytes.Buffer
	tw := tabwriter.NewWriter(&table, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSER\tRISK\tSTATUS\tCREATED\tMESSAGE")
	for _, a := range alerts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID,
			a.PseudoUserID,
			a.RiskLevel,
			a.Status,
			a.CreatedAt.Local().Format(time.DateTime),
			preview(a.MessagePreview, 60),
		)
	}
	tw.Flush()

	lines := strings.Split(strings.TrimSuffix(table.String(), "\n"), "\n")
	fmt.Fprintln(out, color.New(color.Bold).Sprint(lines[0]))
	for i, line := range lines[1:] {
		fmt.Fprintln(out, riskColor(alerts[i].RiskLevel).Sprint(line))
	}
}

func riskColor(r chatapi.RiskLevel) *color.Color {
	switch r {
	case chatapi.RiskHigh:
		return color.New(color.FgRed, color.Bold)
	case chatapi.RiskMedium:
		return color.New(color.FgYellow)
	}
	return color.New(color.Reset)
}

func statusLabel(s alert.Status) string {
	switch s {
	case alert.StatusPending:
		return color.YellowString(string(s))
	case alert.StatusResolved:
		return color.GreenString(string(s))
	}
	return string(s)
}

func preview(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

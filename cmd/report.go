package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/report"
	"github.com/podium-performance/funnel-cli/internal/store"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show funnel metrics, targets, and stalled riders",
	Long:  "Builds the funnel report from the saved snapshot: stage counts, conversion rates, the activity plan implied by the revenue goal, revenue progress, and riders stuck past their stage threshold.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		riders, err := st.ListRiders(ctx, store.RiderFilter{Limit: 100000})
		if err != nil {
			return eris.Wrap(err, "report")
		}
		if len(riders) == 0 {
			fmt.Fprintln(os.Stderr, "No snapshot saved yet. Run `funnel-cli load` first.")
			return nil
		}

		funnel := report.New(reportConfig(cfg)).Build(riders, time.Now())

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(funnel)
		}

		formatFunnel(os.Stdout, funnel)
		return nil
	},
}

func init() {
	reportCmd.Flags().Bool("json", false, "emit the full report as JSON")
	rootCmd.AddCommand(reportCmd)
}

// formatFunnel writes the human-readable funnel report.
func formatFunnel(out io.Writer, f *report.Funnel) {
	_, _ = fmt.Fprintf(out, "Funnel report - %s\n", f.GeneratedAt.Format("2006-01-02 15:04"))
	_, _ = fmt.Fprintf(out, "%d riders (%d placeholders, %d disqualified)\n\n", f.Riders, f.Placeholders, f.Disqualified)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STAGE\tCURRENT\tREACHED")
	_, _ = fmt.Fprintln(w, "-----\t-------\t-------")
	for _, s := range model.Stages() {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\n", s.Display(), f.ByStage[s], f.Reached[s])
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\nRevenue: %s closed + %s pipeline of %s target (%s, forecast %s)\n",
		report.FormatGBP(f.Revenue.Closed),
		report.FormatGBP(f.Revenue.Pipeline),
		report.FormatGBP(f.Revenue.Target),
		report.FormatPct(f.Revenue.ProgressPct),
		report.FormatGBP(f.Revenue.Forecast),
	)

	t := f.Targets
	_, _ = fmt.Fprintf(out, "\nMonthly plan for %s:\n", report.FormatGBP(t.MonthlyRevenue))
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "Clients:\t%d\n", t.Clients)
	_, _ = fmt.Fprintf(tw, "Calls:\t%d\n", t.Calls)
	_, _ = fmt.Fprintf(tw, "Day 2 done:\t%d\n", t.Day2)
	_, _ = fmt.Fprintf(tw, "Registered:\t%d\n", t.Registered)
	_, _ = fmt.Fprintf(tw, "Replies:\t%d\n", t.Replies)
	_, _ = fmt.Fprintf(tw, "Contacts:\t%d\n", t.Contacts)
	_, _ = fmt.Fprintf(tw, "  per week:\t%d\n", t.WeeklyContacts)
	_, _ = fmt.Fprintf(tw, "  per day:\t%d\n", t.DailyContacts)
	_ = tw.Flush()

	if len(f.Stalled) > 0 {
		_, _ = fmt.Fprintf(out, "\nStalled riders (%d):\n", len(f.Stalled))
		sw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(sw, "KEY\tNAME\tSTAGE\tDAYS")
		_, _ = fmt.Fprintln(sw, "---\t----\t-----\t----")
		for _, s := range f.Stalled {
			_, _ = fmt.Fprintf(sw, "%s\t%s\t%s\t%d\n", truncateKey(s.Key), s.Name, s.Stage.Display(), s.Days)
		}
		_ = sw.Flush()
	}
}

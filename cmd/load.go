package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/podium-performance/funnel-cli/internal/feed"
	"github.com/podium-performance/funnel-cli/internal/health"
	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/report"
	"github.com/podium-performance/funnel-cli/internal/store"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Run a reconciliation across all feeds",
	Long:  "Rebuilds the rider registry from scratch: milestone feeds, the append-only edit logs, enrichment scans, then the remote master. Prints the load report and saves the snapshot.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		feeds, _ := cmd.Flags().GetStringSlice("feeds")
		phase, _ := cmd.Flags().GetString("phase")
		prefetch, _ := cmd.Flags().GetInt("prefetch")
		reportJSON, _ := cmd.Flags().GetString("report-json")
		save, _ := cmd.Flags().GetBool("save")
		noSave, _ := cmd.Flags().GetBool("no-save")
		if noSave {
			save = false
		}

		engine, err := buildEngine()
		if err != nil {
			return err
		}

		opts := feed.RunOpts{Feeds: feeds, PrefetchLimit: prefetch}
		if phase != "" {
			p, err := feed.ParsePhase(phase)
			if err != nil {
				return err
			}
			opts.Phase = &p
		}

		riders, rep, runErr := engine.Run(ctx, opts)
		if rep == nil {
			return runErr
		}

		// The report stays valid even when the run failed.
		if reportJSON != "" {
			if err := writeReportJSON(reportJSON, rep); err != nil {
				return err
			}
		}
		formatLoadReport(os.Stdout, rep)

		if save && runErr == nil {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return err
			}

			saved, hrep, err := saveRun(ctx, st, riders.Riders(), rep)
			if err != nil {
				return err
			}
			fmt.Printf("Saved %d riders (run %s)\n", saved, truncateID(rep.RunID))
			for _, check := range hrep.Checks {
				if check.Status == health.StatusOK {
					continue
				}
				fmt.Fprintf(os.Stderr, "health %s: %s: %s\n", check.Status, check.Name, check.Message)
			}
		}

		return runErr
	},
}

func init() {
	f := loadCmd.Flags()
	f.StringSlice("feeds", nil, "only ingest the named feeds")
	f.String("phase", "", "only ingest one phase (milestone, manual, enrichment, master)")
	f.Int("prefetch", 4, "max concurrent remote source fetches")
	f.String("report-json", "", "also write the load report to this file as JSON")
	f.Bool("save", true, "save the snapshot, run record and daily stats to the store")
	f.Bool("no-save", false, "do not touch the store (overrides --save)")
	rootCmd.AddCommand(loadCmd)
}

// saveRun persists the reconciled snapshot plus its run record and daily
// stats, then evaluates the health checks against the fresh state.
func saveRun(ctx context.Context, st store.Store, riders []*model.Rider, rep *model.LoadReport) (int, *health.Report, error) {
	saved, err := st.SaveSnapshot(ctx, rep.RunID, riders)
	if err != nil {
		return 0, nil, err
	}
	if err := st.SaveRun(ctx, rep); err != nil {
		return 0, nil, err
	}

	snapshot := make([]model.Rider, len(riders))
	for i, r := range riders {
		snapshot[i] = *r
	}
	funnel := report.New(reportConfig(cfg)).Build(snapshot, time.Now())
	if err := st.SaveDailyStats(ctx, funnel.DailyStats()); err != nil {
		return 0, nil, err
	}

	hrep := health.NewChecker(st, cfg.Health, cfg.Targets.MonthlyRevenue).Run(ctx, time.Now())
	health.NewNotifier(cfg.Health).Notify(ctx, hrep)

	return saved, hrep, nil
}

func writeReportJSON(path string, rep *model.LoadReport) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create report file %s", path)
	}
	defer f.Close() //nolint:errcheck

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return eris.Wrapf(enc.Encode(rep), "write report file %s", path)
}

// formatLoadReport writes the per-feed ingestion table and run totals.
func formatLoadReport(out io.Writer, rep *model.LoadReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FEED\tROWS\tLOADED\tSKIPPED\tSTATUS")
	_, _ = fmt.Fprintln(w, "----\t----\t------\t-------\t------")

	for _, fr := range rep.Feeds {
		status := "ok"
		switch {
		case fr.Err != "":
			status = "failed"
		case fr.Absent:
			status = "absent"
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", fr.Feed, fr.Rows, fr.Loaded, fr.Skipped, status)
	}
	_ = w.Flush()

	dur := rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond)
	_, _ = fmt.Fprintf(out, "\nRun %s: %d rows, %d loaded, %d skipped, %d riders in %s\n",
		truncateID(rep.RunID), rep.TotalRows, rep.Loaded, rep.Skipped, rep.Riders, dur)

	for reason, n := range rep.SkipReasons {
		_, _ = fmt.Fprintf(out, "  skipped %s: %d\n", reason, n)
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/store"
)

var ridersCmd = &cobra.Command{
	Use:   "riders",
	Short: "Inspect the reconciled rider snapshot",
	Long:  "Commands for listing, searching, and viewing riders from the last saved reconciliation run.",
}

// -- riders list --

var ridersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List riders in the snapshot",
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

		stage, _ := cmd.Flags().GetString("stage")
		search, _ := cmd.Flags().GetString("search")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		filter := store.RiderFilter{Search: search, Limit: limit, Offset: offset}
		if stage != "" {
			s, ok := model.ParseStage(stage)
			if !ok {
				return eris.Errorf("unknown stage %q", stage)
			}
			filter.Stage = s
		}
		if since > 0 {
			filter.UpdatedSince = time.Now().Add(-since)
		}

		riders, err := st.ListRiders(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "riders list")
		}

		if len(riders) == 0 {
			fmt.Fprintln(os.Stderr, "No riders found.")
			return nil
		}

		formatRidersList(os.Stdout, riders)
		return nil
	},
}

// -- riders show --

var ridersShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Show a rider's full record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		key := strings.ToLower(strings.TrimSpace(args[0]))
		rider, err := st.GetRider(ctx, key)
		if err != nil {
			return eris.Wrap(err, "riders show")
		}
		if rider == nil {
			return eris.Errorf("no rider with key %q", key)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rider)
	},
}

// -- riders overdue --

var ridersOverdueCmd = &cobra.Command{
	Use:   "overdue",
	Short: "List riders with an overdue follow-up date",
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

		riders, err := st.OverdueFollowUps(ctx, time.Now())
		if err != nil {
			return eris.Wrap(err, "riders overdue")
		}

		if len(riders) == 0 {
			fmt.Fprintln(os.Stderr, "No overdue follow-ups.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "KEY\tNAME\tSTAGE\tFOLLOW-UP")
		_, _ = fmt.Fprintln(w, "---\t----\t-----\t---------")
		for i := range riders {
			r := &riders[i]
			due := ""
			if r.FollowUpAt != nil {
				due = r.FollowUpAt.Format("2006-01-02")
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", truncateKey(r.Key), r.FullName(), r.Stage.Display(), due)
		}
		_ = w.Flush()
		return nil
	},
}

func init() {
	f := ridersListCmd.Flags()
	f.String("stage", "", "filter by stage (canonical name, display name, or alias)")
	f.String("search", "", "match name or email substring")
	f.Duration("since", 0, "only riders updated within this window (e.g. 24h)")
	f.Int("limit", 50, "max riders to display")
	f.Int("offset", 0, "skip this many riders")

	ridersCmd.AddCommand(ridersListCmd)
	ridersCmd.AddCommand(ridersShowCmd)
	ridersCmd.AddCommand(ridersOverdueCmd)
	rootCmd.AddCommand(ridersCmd)
}

// formatRidersList writes a tabular rider listing to w.
func formatRidersList(out io.Writer, riders []model.Rider) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tNAME\tSTAGE\tSOURCE")
	_, _ = fmt.Fprintln(w, "---\t----\t-----\t------")

	for i := range riders {
		r := &riders[i]
		name := r.FullName()
		if name == "" {
			name = "(unknown)"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", truncateKey(r.Key), name, r.Stage.Display(), r.Source)
	}
	_ = w.Flush()
}

// truncateKey shortens long identity keys for table display.
func truncateKey(key string) string {
	if len(key) > 34 {
		return key[:31] + "..."
	}
	return key
}

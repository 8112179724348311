package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/store"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push the snapshot to the remote master",
	Long:  "Drains the queue of previously failed pushes, then pushes riders from the saved snapshot to the Notion master. By default only riders updated in the last 24 hours go out; --all pushes the whole snapshot.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		m := notionMaster()
		if m == nil {
			return eris.New("notion is not configured (set notion.token and notion.riders_db)")
		}

		all, _ := cmd.Flags().GetBool("all")
		since, _ := cmd.Flags().GetDuration("since")
		drainLimit, _ := cmd.Flags().GetInt("queue-limit")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		// Parked failures go out before new state so the master never
		// sees an edit ordering the queue would have inverted.
		delivered, requeued, dropped, err := drainPushes(ctx, st, m, drainLimit)
		if err != nil {
			return err
		}
		if delivered+requeued+dropped > 0 {
			fmt.Printf("Queue: %d delivered, %d requeued, %d dropped\n", delivered, requeued, dropped)
		}

		filter := store.RiderFilter{Limit: 100000}
		if !all {
			filter.UpdatedSince = time.Now().Add(-since)
		}
		riders, err := st.ListRiders(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "sync")
		}

		ptrs := make([]*model.Rider, len(riders))
		for i := range riders {
			ptrs[i] = &riders[i]
		}

		pushed, queued := pushRiders(ctx, st, m, ptrs)
		fmt.Printf("Pushed %d riders, %d failed and queued for retry\n", pushed, queued)

		if pending, err := st.CountPushes(ctx); err == nil && pending > 0 {
			fmt.Printf("%d pushes pending on the queue\n", pending)
		}
		return nil
	},
}

func init() {
	f := syncCmd.Flags()
	f.Bool("all", false, "push every rider in the snapshot")
	f.Duration("since", 24*time.Hour, "push riders updated within this window")
	f.Int("queue-limit", 100, "max queued failures to retry first")
	rootCmd.AddCommand(syncCmd)
}

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/outreach"
	"github.com/podium-performance/funnel-cli/internal/store"
)

var rescueCmd = &cobra.Command{
	Use:   "rescue",
	Short: "Find and send due course-rescue messages",
	Long:  "Scans the snapshot for riders who registered or finished a day but then went quiet past the waiting window, and previews the rescue message for each step. With --send, riders with a real email get it over SMTP and the send is recorded so the step never fires twice.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		send, _ := cmd.Flags().GetBool("send")

		sender := outreach.NewSender(cfg.SMTP)
		if send && !sender.Enabled() {
			return eris.New("smtp is not configured (set smtp.host and smtp.from)")
		}

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
			return eris.Wrap(err, "rescue")
		}
		ptrs := make([]*model.Rider, len(riders))
		for i := range riders {
			ptrs[i] = &riders[i]
		}

		sched := outreach.NewScheduler(cfg.Outreach, st)
		now := time.Now().UTC()
		due, err := sched.DueRiders(ctx, ptrs, now)
		if err != nil {
			return err
		}

		total := 0
		for _, kind := range outreach.RescueKinds() {
			total += len(due[kind])
		}
		if total == 0 {
			fmt.Fprintln(os.Stderr, "No rescue messages due.")
			return nil
		}

		var sent, previewed int
		for _, kind := range outreach.RescueKinds() {
			for _, r := range due[kind] {
				if send && r.Email != "" {
					subject, body := outreach.RescueMessage(kind, r, "email", cfg.Outreach.SenderName)
					if err := sender.Send(r.Email, subject, body); err != nil {
						zap.L().Error("rescue send failed",
							zap.String("rider", r.Key),
							zap.String("kind", string(kind)),
							zap.Error(err),
						)
						continue
					}
					if err := sched.Record(ctx, r, kind, "email", subject, body, now); err != nil {
						return err
					}
					fmt.Printf("Sent %s to %s (%s)\n", kind, r.FullName(), r.Email)
					sent++
					continue
				}

				_, body := outreach.RescueMessage(kind, r, "dm", cfg.Outreach.SenderName)
				fmt.Printf("\n-- %s [%s] %s\n%s\n", r.FullName(), kind, r.Key, body)
				previewed++
			}
		}

		fmt.Printf("\n%d due", total)
		if send {
			fmt.Printf(", %d sent, %d without email (DM preview above)", sent, previewed)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rescueCmd.Flags().Bool("send", false, "send rescue emails over SMTP and record them")
	rootCmd.AddCommand(rescueCmd)
}

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/reconcile"
)

var updateCmd = &cobra.Command{
	Use:   "update <rider>",
	Short: "Record a manual edit for a rider",
	Long:  "Appends a stage change, profile field edit, or payment to the local edit logs. Edits replay on every reconciliation run, so they survive snapshot rebuilds. With --push the updated record also goes to the remote master immediately.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		key := strings.ToLower(strings.TrimSpace(args[0]))
		if key == "" {
			return eris.New("rider key is empty")
		}

		stageFlag, _ := cmd.Flags().GetString("stage")
		fieldFlag, _ := cmd.Flags().GetString("field")
		valueFlag, _ := cmd.Flags().GetString("value")
		revenueFlag, _ := cmd.Flags().GetFloat64("revenue")
		noteFlag, _ := cmd.Flags().GetString("note")
		push, _ := cmd.Flags().GetBool("push")

		modes := 0
		for _, set := range []bool{stageFlag != "", fieldFlag != "", cmd.Flags().Changed("revenue")} {
			if set {
				modes++
			}
		}
		if modes != 1 {
			return eris.New("exactly one of --stage, --field, or --revenue is required")
		}

		now := time.Now().UTC()
		var stage model.Stage

		switch {
		case stageFlag != "":
			s, ok := model.ParseStage(stageFlag)
			if !ok {
				return eris.Errorf("unknown stage %q", stageFlag)
			}
			stage = s
			if err := appendStageEdit(key, stage, now); err != nil {
				return err
			}
			fmt.Printf("Logged stage %s for %s\n", stage.Display(), key)

		case fieldFlag != "":
			if valueFlag == "" {
				return eris.New("--field requires --value")
			}
			if err := appendFieldEdit(key, fieldFlag, valueFlag, now); err != nil {
				return err
			}
			fmt.Printf("Logged %s = %q for %s\n", fieldFlag, valueFlag, key)

		default:
			if err := appendRevenueEdit(key, revenueFlag, noteFlag, now); err != nil {
				return err
			}
			fmt.Printf("Logged payment %.2f for %s\n", revenueFlag, key)
		}

		if !push {
			return nil
		}
		return pushEdit(ctx, key, stageFlag, fieldFlag, valueFlag, revenueFlag, stage, now)
	},
}

func init() {
	f := updateCmd.Flags()
	f.String("stage", "", "set the rider's funnel stage")
	f.String("field", "", "set a profile field (phone, bike, track, notes, ...)")
	f.String("value", "", "value for --field")
	f.Float64("revenue", 0, "record a payment amount")
	f.String("note", "", "note for --revenue")
	f.Bool("push", false, "also push the updated record to the remote master now")
	rootCmd.AddCommand(updateCmd)
}

// pushEdit applies the just-logged edit to the stored record in memory
// and sends it to the master. The log remains the durable copy; a failed
// push is queued for retry, not unwound.
func pushEdit(ctx context.Context, key, stageFlag, fieldFlag, valueFlag string, amount float64, stage model.Stage, now time.Time) error {
	m := notionMaster()
	if m == nil {
		return eris.New("notion is not configured (set notion.token and notion.riders_db)")
	}

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	r, err := st.GetRider(ctx, key)
	if err != nil {
		return err
	}
	if r == nil {
		r = model.NewRider(key, "", "")
	}

	switch {
	case stageFlag != "":
		r.ForceStage(stage)
		r.MarkMilestone(stage, now, true)
	case fieldFlag != "":
		if err := reconcile.ApplyField(r, fieldFlag, valueFlag, true); err != nil {
			return err
		}
	default:
		r.SaleValue += amount
		r.ForceStage(model.StageClient)
		r.MarkMilestone(model.StageClient, now, false)
	}

	if err := pushRider(ctx, st, m, r); err != nil {
		fmt.Printf("Push failed, queued for retry: %v\n", err)
		return nil
	}
	fmt.Printf("Pushed %s to master\n", key)
	return nil
}

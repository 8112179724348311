package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/podium-performance/funnel-cli/internal/fetcher"
	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/outreach"
	"github.com/podium-performance/funnel-cli/internal/reconcile"
	"github.com/podium-performance/funnel-cli/internal/store"
	"github.com/podium-performance/funnel-cli/internal/venue"
)

var eventCaser = cases.Title(language.English)

var outreachCmd = &cobra.Command{
	Use:   "outreach <results-file>",
	Short: "Turn a race results file into outreach messages",
	Long:  "Matches finisher names from a timing-sheet export against the rider snapshot and writes a personalized opener for each, with a prefilled DM deep link where a social profile is known. Riders already messaged for the event are skipped.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		event, _ := cmd.Flags().GetString("event")
		sendLog, _ := cmd.Flags().GetBool("send-log")

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
			return eris.Wrap(err, "outreach")
		}
		ptrs := make([]*model.Rider, len(riders))
		for i := range riders {
			ptrs[i] = &riders[i]
		}

		names, err := resultNames(ctx, args[0])
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Fprintln(os.Stderr, "No finisher names found in the results file.")
			return nil
		}

		if event == "" {
			event = eventNameFromPath(args[0])
		}
		event = canonicalEvent(event)
		kind := outreach.EventKind(event)

		results := outreach.NewMatcher(ptrs).Process(names)

		var matched, skipped, logged int
		now := time.Now().UTC()
		fmt.Printf("Event: %s (%d finishers)\n", event, len(results))

		for _, res := range results {
			if !res.Matched() {
				msg := res.Message(event)
				fmt.Printf("\n-- %s (unmatched)\n%s\n", res.RawName, msg)
				continue
			}
			matched++

			r := res.Rider
			prev, err := st.LastOutreach(ctx, r.Key, kind)
			if err != nil {
				return eris.Wrap(err, "outreach")
			}
			if prev != nil {
				fmt.Printf("\n-- %s: already messaged for this event (%s)\n",
					r.FullName(), prev.SentAt.Format("2006-01-02"))
				skipped++
				continue
			}

			msg := res.Message(event)
			fmt.Printf("\n-- %s (%s, %s)\n%s\n", r.FullName(), r.Key, r.Stage.Display(), msg)
			if link := dmLink(r, msg); link != "" {
				fmt.Printf("DM: %s\n", link)
			}

			if sendLog {
				err := st.LogOutreach(ctx, model.OutreachEntry{
					RiderKey: r.Key,
					Kind:     kind,
					Channel:  "manual",
					Body:     msg,
					SentAt:   now,
				})
				if err != nil {
					return eris.Wrap(err, "outreach")
				}
				logged++
			}
		}

		fmt.Printf("\n%d names, %d matched, %d already contacted", len(results), matched, skipped)
		if sendLog {
			fmt.Printf(", %d logged as sent", logged)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	f := outreachCmd.Flags()
	f.String("event", "", "event name for the messages (default derived from the file name)")
	f.Bool("send-log", false, "record each generated message in the outreach log as sent")
	rootCmd.AddCommand(outreachCmd)
}

// dmLink builds a prefilled DM link for the rider's best known social
// profile, Facebook first.
func dmLink(r *model.Rider, msg string) string {
	if r.FacebookURL != "" {
		if link := outreach.DeepDMLink("facebook", r.FacebookURL, msg); link != "" {
			return link
		}
	}
	if r.InstagramURL != "" {
		return outreach.DeepDMLink("instagram", r.InstagramURL, msg)
	}
	return ""
}

// canonicalEvent resolves the event name against the circuit registry
// when a shapefile is configured, so messages use the proper venue name.
func canonicalEvent(event string) string {
	if cfg == nil || cfg.Venues.ShapefilePath == "" {
		return event
	}
	reg, err := venue.LoadShapefile(cfg.Venues.ShapefilePath)
	if err != nil {
		zap.L().Warn("venue registry unavailable", zap.Error(err))
		return event
	}
	if c, ok := reg.Lookup(event); ok {
		return c.Name
	}
	return event
}

// resultNames extracts finisher names from a results export. A header
// row naming a rider column selects that column; files without one are
// read as a plain name-per-line list.
func resultNames(ctx context.Context, path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open results file %s", path)
	}
	defer f.Close() //nolint:errcheck

	records, err := fetcher.ReadCSV(ctx, f, fetcher.CSVOptions{TrimSpace: true})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	col, start := 0, 0
	for i, cell := range records[0] {
		switch reconcile.NormalizeKey(cell) {
		case "name", "rider", "rider name", "finisher", "competitor":
			col, start = i, 1
		}
	}

	var names []string
	for _, rec := range records[start:] {
		if col < len(rec) {
			names = append(names, rec[col])
		}
	}
	return names, nil
}

// eventNameFromPath derives a readable event name from a results file
// name. Date and "results" tokens are dropped so the remainder can match
// a circuit name.
func eventNameFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ReplaceAll(base, "_", " ")
	base = strings.ReplaceAll(base, "-", " ")

	var kept []string
	for _, tok := range strings.Fields(base) {
		if isDigits(tok) {
			continue
		}
		switch strings.ToLower(tok) {
		case "results", "result":
			continue
		}
		kept = append(kept, tok)
	}
	return eventCaser.String(strings.ToLower(strings.Join(kept, " ")))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

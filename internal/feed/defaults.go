package feed

import (
	"github.com/podium-performance/funnel-cli/internal/config"
)

// defaultLocations are the conventional export file names under the data
// directory. crm_contacts and master have no file default: they are
// provider-backed when their API credentials are configured.
var defaultLocations = map[string]string{
	"strategy_calls": "strategy_calls.csv",
	"blueprint":      "blueprint_registrations.csv",
	"day1":           "day1_assessments.csv",
	"day2":           "day2_assessments.csv",
	"xperiencify":    "xperiencify_students.xlsx",
	"flow_profile":   "flow_profile.csv",
	"sleep_test":     "sleep_test.csv",
	"mindset_quiz":   "mindset_quiz.csv",
	"race_reviews":   "race_reviews.csv",
	"rider_db":       "rider_db.csv",
	"fb_history":     "fb_history",
}

// DefaultSources builds the source set for a run: conventional file
// names under the data dir, the configured log files, then any explicit
// overrides from configuration.
func DefaultSources(cfg *config.Config, loader *RowLoader) *SourceSet {
	s := NewSourceSet(loader)

	for name, file := range defaultLocations {
		s.SetLocation(name, file)
	}
	s.SetLocation("manual_updates", cfg.Data.ManualLog)
	s.SetLocation("rider_details", cfg.Data.DetailsLog)
	s.SetLocation("revenue_log", cfg.Data.RevenueLog)

	for name, loc := range cfg.Feeds.Sources {
		s.SetLocation(name, loc)
	}

	return s
}

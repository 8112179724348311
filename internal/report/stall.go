package report

import (
	"sort"
	"time"

	"github.com/podium-performance/funnel-cli/internal/model"
)

// StalledRider is a record that has sat in one stage past its threshold.
type StalledRider struct {
	Key   string      `json:"key"`
	Name  string      `json:"name"`
	Email string      `json:"email,omitempty"`
	Stage model.Stage `json:"stage"`
	Days  int         `json:"days"`
}

// defaultStallDays gives each active stage a patience window. The
// assessment stages track the rescue cadence (a day to start, half a day
// after day 2); early outreach gets longer because replies trickle in.
var defaultStallDays = map[model.Stage]int{
	model.StageMessaged:    7,
	model.StageReplied:     5,
	model.StageRaceWeekend: 7,
	model.StageLinkSent:    3,
	model.StageRegistered:  2,
	model.StageDay1:        2,
	model.StageDay2:        1,
	model.StageCallBooked:  7,
}

func (rp *Reporter) stallThresholds() map[model.Stage]int {
	if len(rp.cfg.StallDays) == 0 {
		return defaultStallDays
	}
	merged := make(map[model.Stage]int, len(defaultStallDays))
	for s, d := range defaultStallDays {
		merged[s] = d
	}
	for raw, d := range rp.cfg.StallDays {
		if s, ok := model.ParseStage(raw); ok {
			merged[s] = d
		}
	}
	return merged
}

// Stalled returns riders stuck in a stage longer than its threshold,
// longest-stuck first. A rider without a milestone for its current stage
// cannot be aged and is skipped; so are disqualified records and
// terminal stages.
func Stalled(riders []model.Rider, thresholds map[model.Stage]int, now time.Time) []StalledRider {
	var out []StalledRider
	for i := range riders {
		r := &riders[i]
		if r.Disqualified || r.Stage.Terminal() {
			continue
		}
		limit, ok := thresholds[r.Stage]
		if !ok {
			continue
		}
		entered, ok := r.Milestone(r.Stage)
		if !ok || entered.IsZero() {
			continue
		}
		days := int(now.Sub(entered).Hours() / 24)
		if days < limit {
			continue
		}
		out = append(out, StalledRider{
			Key:   r.Key,
			Name:  r.FullName(),
			Email: r.Email,
			Stage: r.Stage,
			Days:  days,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Days != out[j].Days {
			return out[i].Days > out[j].Days
		}
		return out[i].Key < out[j].Key
	})
	return out
}

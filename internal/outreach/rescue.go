package outreach

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/podium-performance/funnel-cli/internal/config"
	"github.com/podium-performance/funnel-cli/internal/model"
)

// RescueKind names one step of the drop-off rescue sequence.
type RescueKind string

const (
	// RescueDay1 nudges riders who registered but never opened Day 1.
	RescueDay1 RescueKind = "day1_rescue"
	// RescueDay2 nudges riders who finished Day 1 but stopped there.
	RescueDay2 RescueKind = "day2_rescue"
	// RescueCall nudges riders who finished both days but booked nothing.
	RescueCall RescueKind = "strategy_call_rescue"
)

// RescueKinds returns the sequence in funnel order.
func RescueKinds() []RescueKind {
	return []RescueKind{RescueDay1, RescueDay2, RescueCall}
}

type rescueTemplate struct {
	subject string
	email   string
	dm      string
}

var rescueTemplates = map[RescueKind]rescueTemplate{
	RescueDay1: {
		subject: "You started something amazing - let's not leave it unfinished",
		email: `Hi {first_name},

I noticed you registered for the Podium Contenders Blueprint but haven't completed Day 1's training yet - "The 7 Biggest Mental Mistakes Costing You Lap Time".

Look, I get it. Life gets busy. Racing prep takes priority.

But here's the thing - this 20-minute assessment could be the most valuable thing you do for your racing this week.

Why? Because you can't fix what you can't see.

The riders who've gone through this tell me they finally understand WHY they've been leaving time on the table. And that clarity? It's the first step to unlocking your real potential.

Your spot is still waiting: [LINK]

See you on the other side,
{coach_name}

P.S. The assessment reveals your score across all 7 mental mistake categories. Most riders are shocked by what they discover about themselves.`,
		dm: `Hey {first_name}! 👋

Noticed you signed up for the Podium Contenders Blueprint but haven't done Day 1 yet.

The 7 Biggest Mistakes assessment only takes 20 mins and riders are telling me it's been a game-changer for understanding where they're leaving time on track.

Your link's still active - want me to resend it?

Let me know if you have any questions!`,
	},
	RescueDay2: {
		subject: "Day 2 unlocks your racing potential - don't stop now",
		email: `Hi {first_name},

You crushed Day 1 of the Podium Contenders Blueprint. Your 7 Biggest Mistakes assessment revealed some powerful insights about your mental game.

But here's the thing - Day 1 shows you the PROBLEM. Day 2 shows you the SOLUTION.

The 5-Pillar Self-Assessment takes what you learned yesterday and maps out exactly where to focus your energy for maximum improvement.

Without it, you've got half the picture.

Don't leave your breakthrough incomplete: [LINK]

This won't take long, and the clarity you'll get is worth every minute.

Talk soon,
{coach_name}

P.S. Riders who complete both assessments before their Strategy Call see 3x better results in their first month of training. Just saying... 🏁`,
		dm: `Hey {first_name}!

Loved seeing your Day 1 results - some really interesting patterns there.

Day 2's 5-Pillar Assessment is where it all comes together though. It shows you exactly which areas will give you the biggest gains.

Takes about 15 mins - you ready to dive in?

Here's your link: [LINK]`,
	},
	RescueCall: {
		subject: "Your Strategy Call spot is waiting (but not for long)",
		email: `Hi {first_name},

You've done the work. You completed both assessments. You KNOW where your mental game needs attention.

But knowledge without action? That's just entertainment.

The Strategy Call is where we turn your insights into a real plan. Where we look at your specific situation, your goals, and map out exactly how to get there.

I've got a few spots open this week: [BOOKING LINK]

This isn't a sales pitch. It's a genuine conversation about your racing and whether we're a good fit to work together.

If we are? Great. If not? You'll still walk away with actionable insights you can use immediately.

But you've got to book the call to find out.

Ready when you are,
{coach_name}

P.S. These spots fill up fast. If you're serious about transforming your racing this season, don't wait.`,
		dm: `Hey {first_name}!

You've done Day 1 AND Day 2 - that's awesome! You're clearly serious about this.

The next step is a Strategy Call where we look at your results together and figure out the best path forward for you.

No pressure, no hard sell - just a real conversation about your racing goals.

I've got some spots open - shall I send the booking link?`,
	},
}

// RescueMessage renders the personalized copy for one rescue step.
// channel "email" fills the subject; any other channel returns the DM
// variant with an empty subject.
func RescueMessage(kind RescueKind, r *model.Rider, channel, coachName string) (subject, body string) {
	tmpl, ok := rescueTemplates[kind]
	if !ok {
		return "", ""
	}

	first := r.FirstName
	if first == "" {
		first = "there"
	}

	fill := func(s string) string {
		s = strings.ReplaceAll(s, "{first_name}", first)
		return strings.ReplaceAll(s, "{coach_name}", coachName)
	}

	if channel == "email" {
		return fill(tmpl.subject), fill(tmpl.email)
	}
	return "", fill(tmpl.dm)
}

// Log is the slice of the store the scheduler needs: what was already
// sent, and where new sends are recorded.
type Log interface {
	LastOutreach(ctx context.Context, riderKey, kind string) (*model.OutreachEntry, error)
	LogOutreach(ctx context.Context, entry model.OutreachEntry) error
}

// Scheduler decides which riders are due a rescue message.
type Scheduler struct {
	cfg config.OutreachConfig
	log Log
}

// NewScheduler applies the default windows (24h, 24h, 12h) for any that
// are unset.
func NewScheduler(cfg config.OutreachConfig, log Log) *Scheduler {
	if cfg.RescueBlueprintHrs <= 0 {
		cfg.RescueBlueprintHrs = 24
	}
	if cfg.RescueDay1Hrs <= 0 {
		cfg.RescueDay1Hrs = 24
	}
	if cfg.RescueDay2Hrs <= 0 {
		cfg.RescueDay2Hrs = 12
	}
	return &Scheduler{cfg: cfg, log: log}
}

// Due returns the rescue step a rider qualifies for as of now. A rider
// qualifies when the stage's waiting window has elapsed since its
// milestone and the log shows no earlier send of the same step.
func (s *Scheduler) Due(ctx context.Context, r *model.Rider, now time.Time) (RescueKind, bool, error) {
	if r.Disqualified {
		return "", false, nil
	}

	var (
		kind  RescueKind
		stage model.Stage
		hours int
	)
	switch r.Stage {
	case model.StageRegistered:
		kind, stage, hours = RescueDay1, model.StageRegistered, s.cfg.RescueBlueprintHrs
	case model.StageDay1:
		kind, stage, hours = RescueDay2, model.StageDay1, s.cfg.RescueDay1Hrs
	case model.StageDay2:
		kind, stage, hours = RescueCall, model.StageDay2, s.cfg.RescueDay2Hrs
	default:
		return "", false, nil
	}

	entered, ok := r.Milestone(stage)
	if !ok {
		return "", false, nil
	}
	if now.Sub(entered) < time.Duration(hours)*time.Hour {
		return "", false, nil
	}

	prev, err := s.log.LastOutreach(ctx, r.Key, string(kind))
	if err != nil {
		return "", false, eris.Wrapf(err, "outreach: check rescue log for %s", r.Key)
	}
	if prev != nil {
		return "", false, nil
	}
	return kind, true, nil
}

// DueRiders scans the snapshot and groups due riders by rescue step.
func (s *Scheduler) DueRiders(ctx context.Context, riders []*model.Rider, now time.Time) (map[RescueKind][]*model.Rider, error) {
	due := make(map[RescueKind][]*model.Rider)
	for _, r := range riders {
		kind, ok, err := s.Due(ctx, r, now)
		if err != nil {
			return nil, err
		}
		if ok {
			due[kind] = append(due[kind], r)
		}
	}
	zap.L().Info("outreach: rescue scan",
		zap.Int("riders", len(riders)),
		zap.Int("day1", len(due[RescueDay1])),
		zap.Int("day2", len(due[RescueDay2])),
		zap.Int("call", len(due[RescueCall])),
	)
	return due, nil
}

// Record writes one send into the outreach log so the step never fires
// twice for the same rider.
func (s *Scheduler) Record(ctx context.Context, r *model.Rider, kind RescueKind, channel, subject, body string, sentAt time.Time) error {
	err := s.log.LogOutreach(ctx, model.OutreachEntry{
		RiderKey: r.Key,
		Kind:     string(kind),
		Channel:  channel,
		Subject:  subject,
		Body:     body,
		SentAt:   sentAt,
	})
	return eris.Wrapf(err, "outreach: record %s for %s", kind, r.Key)
}

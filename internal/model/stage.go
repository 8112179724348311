package model

import "strings"

// Stage identifies one step of the coaching sales funnel.
type Stage string

const (
	StageContact     Stage = "contact"
	StageNoSocials   Stage = "no_socials"
	StageMessaged    Stage = "messaged"
	StageFlowProfile Stage = "flow_profile_completed"
	StageMindsetQuiz Stage = "mindset_quiz_completed"
	StageSleepTest   Stage = "sleep_test_completed"
	StageFollowUp    Stage = "follow_up"
	StageReplied     Stage = "replied"
	StageRaceWeekend Stage = "race_weekend"
	StageLinkSent    Stage = "link_sent"
	StageRegistered  Stage = "registered"
	StageDay1        Stage = "day1_complete"
	StageDay2        Stage = "day2_complete"
	StageCallBooked  Stage = "strategy_call_booked"
	StageClient      Stage = "client"
	StageNotAFit     Stage = "not_a_fit"
)

// stageRanks defines the canonical funnel ordering. Lead-magnet completions
// and follow-up sit between messaged and replied so they can only claim
// records that have not progressed past early outreach.
var stageRanks = map[Stage]int{
	StageContact:     0,
	StageNoSocials:   5,
	StageMessaged:    10,
	StageFlowProfile: 12,
	StageMindsetQuiz: 13,
	StageSleepTest:   14,
	StageFollowUp:    15,
	StageReplied:     20,
	StageRaceWeekend: 30,
	StageLinkSent:    40,
	StageRegistered:  50,
	StageDay1:        60,
	StageDay2:        70,
	StageCallBooked:  80,
	StageClient:      90,
	StageNotAFit:     95,
}

var stageDisplay = map[Stage]string{
	StageContact:     "Contact",
	StageNoSocials:   "No Socials Found",
	StageMessaged:    "Messaged",
	StageFlowProfile: "Flow Profile Completed",
	StageMindsetQuiz: "Mindset Quiz Completed",
	StageSleepTest:   "Sleep Test Completed",
	StageFollowUp:    "Follow up",
	StageReplied:     "Replied",
	StageRaceWeekend: "Race Weekend",
	StageLinkSent:    "Link Sent",
	StageRegistered:  "Podium Contenders Blueprint Started",
	StageDay1:        "Day 1 Completed",
	StageDay2:        "Day 2 Completed",
	StageCallBooked:  "Strategy Call Booked",
	StageClient:      "Client",
	StageNotAFit:     "Not a good fit",
}

// stageAliases maps normalized raw labels to canonical stages. Sheet exports
// and the remote master have used several historical names for the same
// stage; new labels join this table rather than the enum.
var stageAliases = map[string]Stage{
	"contact":                             StageContact,
	"no socials":                          StageNoSocials,
	"no socials found":                    StageNoSocials,
	"messaged":                            StageMessaged,
	"outreach":                            StageMessaged,
	"flow profile completed":              StageFlowProfile,
	"mindset quiz completed":              StageMindsetQuiz,
	"sleep test completed":                StageSleepTest,
	"follow up":                           StageFollowUp,
	"replied":                             StageReplied,
	"race weekend":                        StageRaceWeekend,
	"link sent":                           StageLinkSent,
	"registered":                          StageRegistered,
	"blueprint started":                   StageRegistered,
	"podium contenders blueprint started": StageRegistered,
	"day 1 completed":                     StageDay1,
	"day 1 complete":                      StageDay1,
	"day1 complete":                       StageDay1,
	"day 2 completed":                     StageDay2,
	"day 2 complete":                      StageDay2,
	"day2 complete":                       StageDay2,
	"call booked":                         StageCallBooked,
	"strategy call booked":                StageCallBooked,
	"client":                              StageClient,
	"won":                                 StageClient,
	"sale closed":                         StageClient,
	"not a fit":                           StageNotAFit,
	"not a good fit":                      StageNotAFit,
	"lost":                                StageNotAFit,
}

// ParseStage resolves a raw stage label (canonical name, display name, or
// historical alias) to its canonical stage. Matching is case-insensitive
// and tolerant of underscores and hyphens.
func ParseStage(raw string) (Stage, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "_", " ")
	key = strings.ReplaceAll(key, "-", " ")
	key = strings.Join(strings.Fields(key), " ")
	if key == "" {
		return "", false
	}
	s, ok := stageAliases[key]
	return s, ok
}

// Rank returns the stage's position in the canonical ordering, or -1
// for unknown stages.
func (s Stage) Rank() int {
	r, ok := stageRanks[s]
	if !ok {
		return -1
	}
	return r
}

// Display returns the human-readable label used in exports and the
// remote master.
func (s Stage) Display() string {
	if d, ok := stageDisplay[s]; ok {
		return d
	}
	return string(s)
}

// Valid reports whether s is a member of the canonical enum.
func (s Stage) Valid() bool {
	_, ok := stageRanks[s]
	return ok
}

// Terminal reports whether s is an absorbing stage that automatic
// ingestion must never move a record out of.
func (s Stage) Terminal() bool {
	return s == StageClient || s == StageNotAFit
}

// Stages returns all stages in canonical rank order.
func Stages() []Stage {
	return []Stage{
		StageContact,
		StageNoSocials,
		StageMessaged,
		StageFlowProfile,
		StageMindsetQuiz,
		StageSleepTest,
		StageFollowUp,
		StageReplied,
		StageRaceWeekend,
		StageLinkSent,
		StageRegistered,
		StageDay1,
		StageDay2,
		StageCallBooked,
		StageClient,
		StageNotAFit,
	}
}

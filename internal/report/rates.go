// Package report computes funnel metrics from a reconciled rider
// snapshot: conversion rates, activity targets back-calculated from the
// revenue goal, revenue progress, and stalled-rider detection.
package report

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/podium-performance/funnel-cli/internal/model"
)

const (
	weeksPerMonth      = 4
	workingDaysPerWeek = 5
)

// Rates holds the step conversion rates used to plan activity from a
// revenue goal. The defaults are starting estimates; Calibrate replaces
// them with observed rates once enough riders have flowed through.
type Rates struct {
	ContactToReply    float64 `json:"contact_to_reply"`    // cold contacts that reply
	ReplyToRegistered float64 `json:"reply_to_registered"` // replies that start the Blueprint
	RegisteredToDay2  float64 `json:"registered_to_day2"`  // starters that finish both days
	Day2ToCall        float64 `json:"day2_to_call"`        // finishers that book a call
	CallToClient      float64 `json:"call_to_client"`      // calls that close
}

// DefaultRates returns the planning estimates used before any observed
// data is available.
func DefaultRates() Rates {
	return Rates{
		ContactToReply:    0.08,
		ReplyToRegistered: 0.70,
		RegisteredToDay2:  0.60,
		Day2ToCall:        0.40,
		CallToClient:      0.25,
	}
}

// calibrationFloor is the minimum number of Blueprint starters before
// observed rates replace the planning estimates.
const calibrationFloor = 10

// Calibrate overrides the middle funnel rates with observed ones when the
// sample is big enough to mean something. The outer rates (cold contact
// reply, call close) keep their estimates: their denominators are too
// noisy in a single snapshot.
func (r Rates) Calibrate(reached map[model.Stage]int) Rates {
	registered := reached[model.StageRegistered]
	if registered <= calibrationFloor {
		return r
	}

	if replied := reached[model.StageReplied]; replied > 0 {
		r.ReplyToRegistered = float64(registered) / float64(replied)
	}
	day2 := reached[model.StageDay2]
	r.RegisteredToDay2 = float64(day2) / float64(registered)
	if day2 > 0 {
		r.Day2ToCall = float64(reached[model.StageCallBooked]) / float64(day2)
	}
	return r
}

// Targets is the activity plan implied by a revenue goal, worked
// backwards through the funnel from sales needed to cold contacts.
type Targets struct {
	MonthlyRevenue float64 `json:"monthly_revenue"`
	Clients        int     `json:"clients"`
	Calls          int     `json:"calls"`
	Day2           int     `json:"day2"`
	Registered     int     `json:"registered"`
	Replies        int     `json:"replies"`
	Contacts       int     `json:"contacts"`

	WeeklyContacts int `json:"weekly_contacts"`
	DailyContacts  int `json:"daily_contacts"`
}

// Targets back-calculates required activity from the monthly revenue
// goal. Every step rounds up so the plan never undershoots.
func (r Rates) Targets(monthlyRevenue, dealValue float64) Targets {
	if dealValue <= 0 {
		dealValue = 1
	}
	clients := int(monthlyRevenue/dealValue) + 1
	calls := backStep(clients, r.CallToClient)
	day2 := backStep(calls, r.Day2ToCall)
	registered := backStep(day2, r.RegisteredToDay2)
	replies := backStep(registered, r.ReplyToRegistered)
	contacts := backStep(replies, r.ContactToReply)

	weekly := contacts / weeksPerMonth
	if weekly < 1 {
		weekly = 1
	}
	daily := weekly / workingDaysPerWeek
	if daily < 1 {
		daily = 1
	}

	return Targets{
		MonthlyRevenue: monthlyRevenue,
		Clients:        clients,
		Calls:          calls,
		Day2:           day2,
		Registered:     registered,
		Replies:        replies,
		Contacts:       contacts,
		WeeklyContacts: weekly,
		DailyContacts:  daily,
	}
}

func backStep(n int, rate float64) int {
	if rate <= 0 {
		return n
	}
	return int(float64(n)/rate) + 1
}

// Forecast projects expected revenue from the current funnel occupancy
// by pushing every cohort forward through its remaining conversion
// steps. Terminal stages are excluded: clients already closed and
// not-a-fits never will.
func (r Rates) Forecast(byStage map[model.Stage]int, dealValue float64) float64 {
	var preReply, preRegistered, preDay2, preCall, calls float64
	for s, n := range byStage {
		if s.Terminal() {
			continue
		}
		switch {
		case s.Rank() < model.StageReplied.Rank():
			preReply += float64(n)
		case s.Rank() < model.StageRegistered.Rank():
			preRegistered += float64(n)
		case s.Rank() < model.StageDay2.Rank():
			preDay2 += float64(n)
		case s.Rank() < model.StageCallBooked.Rank():
			preCall += float64(n)
		default:
			calls += float64(n)
		}
	}

	replies := preReply * r.ContactToReply
	registered := (preRegistered + replies) * r.ReplyToRegistered
	day2 := (preDay2 + registered) * r.RegisteredToDay2
	booked := (preCall + day2) * r.Day2ToCall
	clients := (calls + booked) * r.CallToClient
	return clients * dealValue
}

var gbp = message.NewPrinter(language.BritishEnglish)

// FormatGBP renders an amount as grouped pounds ("£15,000").
func FormatGBP(amount float64) string {
	return gbp.Sprintf("£%.0f", amount)
}

// FormatPct renders a ratio as a percentage ("8.0%").
func FormatPct(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

package outreach

import (
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/podium-performance/funnel-cli/internal/model"
)

var (
	greetings = []string{"Hey", "Hi", "Hello"}
	closings  = []string{"How did it go?", "How was it for you?", "How was your race weekend?"}

	titleCaser = cases.Title(language.English)
)

// Message writes the race-weekend opener for one result. Riders who
// already completed a race-weekend review get a warmer follow-up instead
// of the cold opener.
func (res Result) Message(eventName string) string {
	first := firstNameFor(res)

	if res.Matched() {
		if _, ok := res.Rider.Milestone(model.StageRaceWeekend); ok {
			return fmt.Sprintf(
				"Hey %s, great to see you out at %s! Saw you already did your review - how are you feeling about the progress since then?",
				first, eventName,
			)
		}
	}

	greeting := greetings[rand.IntN(len(greetings))]
	closing := closings[rand.IntN(len(closings))]
	return fmt.Sprintf("%s %s, I see you were out at %s at the weekend. %s", greeting, first, eventName, closing)
}

// firstNameFor prefers the registry record's first name over the first
// token of whatever the result sheet printed.
func firstNameFor(res Result) string {
	if res.Matched() && res.Rider.FirstName != "" {
		return res.Rider.FirstName
	}
	fields := strings.Fields(res.RawName)
	if len(fields) == 0 {
		return "there"
	}
	return titleCaser.String(strings.ToLower(fields[0]))
}

// EventKind builds the outreach-log kind for a race event, so the dedup
// check is scoped per event rather than per rider.
func EventKind(eventName string) string {
	slug := strings.Join(strings.Fields(strings.ToLower(eventName)), "-")
	return "race_result:" + slug
}

// DeepDMLink builds a mobile-first deep link that opens a DM thread with
// the message prefilled. Facebook profiles behind profile.php have no
// username to link to, so those return "".
func DeepDMLink(platform, profileURL, message string) string {
	username := profileUsername(profileURL)
	if username == "" {
		return ""
	}

	encoded := url.QueryEscape(message)
	switch strings.ToLower(platform) {
	case "facebook":
		return fmt.Sprintf("https://m.me/%s?text=%s", username, encoded)
	case "instagram":
		return fmt.Sprintf("https://ig.me/m/%s?text=%s", username, encoded)
	}
	return ""
}

// profileUsername extracts the handle from a profile URL: the last path
// segment with query parameters stripped.
func profileUsername(profileURL string) string {
	clean := strings.TrimSpace(profileURL)
	if clean == "" {
		return ""
	}
	if i := strings.Index(clean, "?"); i >= 0 {
		clean = clean[:i]
	}
	clean = strings.TrimSuffix(clean, "/")

	username := clean
	if i := strings.LastIndex(clean, "/"); i >= 0 {
		username = clean[i+1:]
	}
	if username == "" || strings.Contains(username, "profile.php") {
		return ""
	}
	return username
}

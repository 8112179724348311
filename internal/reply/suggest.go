package reply

import "sort"

// DefaultThreshold is the minimum similarity for a stored exchange to
// count as relevant.
const DefaultThreshold = 0.4

// Suggestion is one retrieved reply with the trigger it was mined from.
type Suggestion struct {
	Reply      string  `json:"reply"`
	Trigger    string  `json:"trigger"`
	Sender     string  `json:"sender"`
	Confidence float64 `json:"confidence"`
}

// Suggest scores the incoming text against every stored trigger and
// returns up to k suggestions at or above threshold, best first. A
// non-positive k means 3; a non-positive threshold means
// DefaultThreshold.
func (l *Library) Suggest(input string, k int, threshold float64) []Suggestion {
	if input == "" || l.Len() == 0 {
		return nil
	}
	if k <= 0 {
		k = 3
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	var out []Suggestion
	for _, p := range l.pairs {
		conf := Ratio(input, p.Trigger)
		if conf < threshold {
			continue
		}
		out = append(out, Suggestion{
			Reply:      p.Reply,
			Trigger:    p.Trigger,
			Sender:     p.Sender,
			Confidence: conf,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// Best returns the single closest suggestion, if any passes the
// threshold.
func (l *Library) Best(input string) (Suggestion, bool) {
	got := l.Suggest(input, 1, 0)
	if len(got) == 0 {
		return Suggestion{}, false
	}
	return got[0], true
}

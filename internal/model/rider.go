package model

import (
	"strings"
	"time"
)

// Rider is the canonical person record assembled during a reconciliation
// run. Records are created lazily by the first feed that sees a person and
// mutated additively by every later feed in pipeline order.
type Rider struct {
	// Key is the identity key: a lowercased email, or a name slug when no
	// email was ever seen. Immutable once assigned.
	Key string `json:"key"`

	Email        string `json:"email,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	Phone        string `json:"phone,omitempty"`
	FacebookURL  string `json:"facebook_url,omitempty"`
	InstagramURL string `json:"instagram_url,omitempty"`
	LinkedInURL  string `json:"linkedin_url,omitempty"`
	Championship string `json:"championship,omitempty"`
	Bike         string `json:"bike,omitempty"`
	Track        string `json:"track,omitempty"`
	Notes        string `json:"notes,omitempty"`
	Tags         string `json:"tags,omitempty"`

	Stage Stage `json:"stage"`

	// Milestones holds the timestamp a record entered each stage it has
	// evidence for. Entries are set once per run unless a manual log
	// overwrites them, independently of whether the stage transition
	// itself was accepted.
	Milestones map[Stage]time.Time `json:"milestones,omitempty"`

	// Scores holds assessment results keyed by metric name (day-1
	// biggest-mistakes score, day-2 pillar rates).
	Scores map[string]float64 `json:"scores,omitempty"`

	SaleValue    float64    `json:"sale_value,omitempty"`
	Disqualified bool       `json:"disqualified,omitempty"`
	FollowUpAt   *time.Time `json:"follow_up_at,omitempty"`

	// Source is the feed that first created this record.
	Source string `json:"source,omitempty"`
}

// NewRider creates a record at the start of the funnel.
func NewRider(key, first, last string) *Rider {
	r := &Rider{
		Key:       key,
		FirstName: strings.TrimSpace(first),
		LastName:  strings.TrimSpace(last),
		Stage:     StageContact,
	}
	if strings.Contains(key, "@") {
		r.Email = key
	}
	return r
}

// FullName joins the known name parts.
func (r *Rider) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(r.FirstName) + " " + strings.TrimSpace(r.LastName))
}

// Placeholder reports whether the identity key is a derived slug rather
// than a real email. Placeholder keys must never be written to remote
// email fields.
func (r *Rider) Placeholder() bool {
	return !strings.Contains(r.Key, "@")
}

// AdvanceTo applies the monotonic stage policy: the stage moves only
// forward in the canonical ordering, and never automatically out of a
// terminal stage. Returns whether the record now occupies s.
func (r *Rider) AdvanceTo(s Stage) bool {
	if !s.Valid() {
		return false
	}
	if r.Stage == s {
		return true
	}
	if r.Stage.Terminal() {
		return false
	}
	if s.Rank() < r.Stage.Rank() {
		return false
	}
	r.Stage = s
	return true
}

// ForceStage sets the stage unconditionally. Reserved for manual edits
// and the authoritative remote master.
func (r *Rider) ForceStage(s Stage) {
	if s.Valid() {
		r.Stage = s
	}
}

// MarkMilestone records when the rider entered a stage. Existing
// timestamps are kept unless overwrite is set (manual logs overwrite).
// Returns whether the timestamp was written.
func (r *Rider) MarkMilestone(s Stage, t time.Time, overwrite bool) bool {
	if t.IsZero() {
		return false
	}
	if r.Milestones == nil {
		r.Milestones = make(map[Stage]time.Time)
	}
	if _, ok := r.Milestones[s]; ok && !overwrite {
		return false
	}
	r.Milestones[s] = t
	return true
}

// Milestone returns the recorded entry time for a stage.
func (r *Rider) Milestone(s Stage) (time.Time, bool) {
	t, ok := r.Milestones[s]
	return t, ok
}

// SetScore records an assessment metric.
func (r *Rider) SetScore(name string, value float64) {
	if r.Scores == nil {
		r.Scores = make(map[string]float64)
	}
	r.Scores[name] = value
}

// FillName fills empty name slots without overwriting existing values.
func (r *Rider) FillName(first, last string) {
	if r.FirstName == "" && strings.TrimSpace(first) != "" {
		r.FirstName = strings.TrimSpace(first)
	}
	if r.LastName == "" && strings.TrimSpace(last) != "" {
		r.LastName = strings.TrimSpace(last)
	}
}

// Fill sets *dst to v only when *dst is empty and v is not. This is the
// generic non-destructive merge path: a blank incoming value never blanks
// an existing one.
func Fill(dst *string, v string) bool {
	v = strings.TrimSpace(v)
	if *dst != "" || v == "" {
		return false
	}
	*dst = v
	return true
}

// Overwrite sets *dst to v whenever v is non-blank. Used by the manual
// log replay and the remote master, where later values win.
func Overwrite(dst *string, v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	*dst = v
	return true
}

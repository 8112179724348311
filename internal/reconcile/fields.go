package reconcile

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/podium-performance/funnel-cli/internal/model"
)

// ApplyField applies one named field edit to a rider. With force unset,
// the non-destructive fill policy applies; with force set (manual-log
// replay), non-blank values overwrite. Unknown field names and unusable
// values return an error so callers can count the entry as bad.
func ApplyField(r *model.Rider, field, value string, force bool) error {
	set := model.Fill
	if force {
		set = model.Overwrite
	}

	switch normalizeFieldName(field) {
	case "first name", "first":
		set(&r.FirstName, value)
	case "last name", "surname", "last":
		set(&r.LastName, value)
	case "email":
		// The identity key never changes; only the contact address does.
		set(&r.Email, strings.ToLower(strings.TrimSpace(value)))
	case "phone", "phone number", "mobile":
		set(&r.Phone, value)
	case "facebook", "facebook url", "facebook link":
		set(&r.FacebookURL, value)
	case "instagram", "instagram url", "instagram handle":
		set(&r.InstagramURL, value)
	case "linkedin", "linkedin url":
		set(&r.LinkedInURL, value)
	case "championship", "series":
		set(&r.Championship, value)
	case "bike":
		set(&r.Bike, value)
	case "track", "circuit":
		set(&r.Track, value)
	case "notes", "note":
		set(&r.Notes, value)
	case "tags", "tag":
		appendTag(r, value)
	case "stage":
		s, ok := model.ParseStage(value)
		if !ok {
			return eris.Errorf("reconcile: unknown stage %q", value)
		}
		if force {
			r.ForceStage(s)
		} else {
			r.AdvanceTo(s)
		}
	case "sale value", "revenue", "amount":
		v, ok := ParseMoney(value)
		if !ok {
			return eris.Errorf("reconcile: unparseable amount %q", value)
		}
		r.SaleValue = v
	case "follow up", "follow up date":
		t, ok := ParseTimestamp(value)
		if !ok {
			return eris.Errorf("reconcile: unparseable follow-up date %q", value)
		}
		r.FollowUpAt = &t
	case "disqualified", "not a fit":
		if Truthy(value) {
			r.Disqualified = true
			r.ForceStage(model.StageNotAFit)
		}
	default:
		return eris.Errorf("reconcile: unknown field %q", field)
	}
	return nil
}

func normalizeFieldName(field string) string {
	f := strings.ToLower(strings.TrimSpace(field))
	f = strings.ReplaceAll(f, "_", " ")
	f = strings.ReplaceAll(f, "-", " ")
	return strings.Join(strings.Fields(f), " ")
}

func appendTag(r *model.Rider, tag string) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return
	}
	if r.Tags == "" {
		r.Tags = tag
		return
	}
	for _, existing := range strings.Split(r.Tags, ",") {
		if strings.EqualFold(strings.TrimSpace(existing), tag) {
			return
		}
	}
	r.Tags += ", " + tag
}

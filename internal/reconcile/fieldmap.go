package reconcile

import "time"

// FieldMap declares, per feed, the ordered column-name aliases for each
// logical field. Aliases are tried in order; first non-blank match wins.
// Centralizing the alias lists here keeps header guessing declarative and
// testable instead of scattering string comparisons through the feeds.
type FieldMap struct {
	Email     []string
	First     []string
	Last      []string
	Full      []string
	Timestamp []string

	// Extra holds feed-specific logical fields (completion flags, scores,
	// stage labels, amounts) keyed by logical name.
	Extra map[string][]string
}

// DefaultFieldMap returns the alias lists shared by most feeds. Feeds
// copy and extend it rather than mutating the shared value.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		Email:     []string{"email", "email address", "e-mail", "e-mail address", "your email", "email_address"},
		First:     []string{"first name", "first_name", "firstname", "first"},
		Last:      []string{"last name", "last_name", "lastname", "surname", "last"},
		Full:      []string{"full name", "full_name", "name", "rider name", "your name"},
		Timestamp: []string{"timestamp", "date", "submitted at", "submitted", "created at", "created", "date added"},
	}
}

// WithTimestamp returns a copy of m whose timestamp aliases are replaced.
func (m FieldMap) WithTimestamp(aliases ...string) FieldMap {
	m.Timestamp = aliases
	return m
}

// WithExtra returns a copy of m with one feed-specific logical field
// registered under name.
func (m FieldMap) WithExtra(name string, aliases ...string) FieldMap {
	extra := make(map[string][]string, len(m.Extra)+1)
	for k, v := range m.Extra {
		extra[k] = v
	}
	extra[name] = aliases
	m.Extra = extra
	return m
}

// Field resolves a feed-specific logical field against a row.
func (m FieldMap) Field(row Row, name string) string {
	return row.Value(m.Extra[name]...)
}

// Time resolves and parses the row's milestone timestamp.
func (m FieldMap) Time(row Row) (time.Time, bool) {
	return ParseTimestamp(row.Value(m.Timestamp...))
}

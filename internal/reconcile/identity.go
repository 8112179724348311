package reconcile

import (
	"strings"

	"github.com/rotisserie/eris"
)

// FallbackKey is the sentinel identity for rows whose name slugs to
// nothing usable.
const FallbackKey = "unknown_rider"

// ErrNoIdentity marks a row carrying neither an email nor a name. The
// row is skipped and counted; it never aborts a feed.
var ErrNoIdentity = eris.New("reconcile: row has no resolvable identity")

// Identity is the resolved identity of one feed row.
type Identity struct {
	// Key is the canonical identity key: the lowercased email, or a name
	// slug when no email is present.
	Key   string
	Email string
	First string
	Last  string
	// Placeholder is set when Key is a derived slug rather than a real
	// email address.
	Placeholder bool
}

// Slugify derives a deterministic identity slug from a person's name:
// lowercased, whitespace runs become single underscores, and every rune
// outside [a-z0-9_] is dropped. An empty result falls back to
// FallbackKey so a nameless slug never produces an empty identity.
func Slugify(name string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(name)))
	joined := strings.Join(fields, "_")
	var b strings.Builder
	b.Grow(len(joined))
	for _, r := range joined {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	slug := b.String()
	if slug == "" {
		return FallbackKey
	}
	return slug
}

// PlausibleEmail reports whether s is syntactically usable as an email
// identity key. The bar is deliberately low: feeds export real addresses
// or nothing, so anything with an @ and no spaces counts.
func PlausibleEmail(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 3 || strings.ContainsAny(s, " \t") {
		return false
	}
	at := strings.Index(s, "@")
	return at > 0 && at < len(s)-1
}

// SplitName splits a full name into first and last parts: the first token
// becomes the first name, everything after it the last name.
func SplitName(full string) (first, last string) {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return "", ""
	}
	if len(fields) == 1 {
		return fields[0], ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

// Resolve computes the identity for one row:
//  1. a plausible email (declared aliases first, then any column whose
//     key contains "email") wins, lowercased and trimmed;
//  2. otherwise a name (first+last, or a full-name column) produces a
//     slug identity;
//  3. otherwise the row is unresolvable and ErrNoIdentity is returned.
func Resolve(row Row, fm FieldMap) (Identity, error) {
	email := row.Value(fm.Email...)
	if email == "" {
		email = row.ValueContaining("email")
	}
	if PlausibleEmail(email) {
		email = strings.ToLower(strings.TrimSpace(email))
	} else {
		email = ""
	}

	first := row.Value(fm.First...)
	last := row.Value(fm.Last...)
	if first == "" && last == "" {
		first, last = SplitName(row.Value(fm.Full...))
	}

	if email != "" {
		return Identity{Key: email, Email: email, First: first, Last: last}, nil
	}

	full := strings.TrimSpace(first + " " + last)
	if full == "" {
		return Identity{}, ErrNoIdentity
	}
	return Identity{
		Key:         Slugify(full),
		First:       first,
		Last:        last,
		Placeholder: true,
	}, nil
}

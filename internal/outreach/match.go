// Package outreach turns race results into first-touch messages and
// keeps registered riders moving with timed rescue follow-ups. Every
// send is recorded in the outreach log so no rider hears about the same
// event or rescue step twice.
package outreach

import (
	"strings"

	"go.uber.org/zap"

	"github.com/podium-performance/funnel-cli/internal/model"
)

// maxMatchNameLen guards the token pass against corrupt records whose
// name field holds a concatenated blob.
const maxMatchNameLen = 60

// Matcher resolves raw finisher names from a result sheet against the
// reconciled registry.
type Matcher struct {
	riders []*model.Rider
	byName map[string]*model.Rider
}

// NewMatcher indexes the snapshot for name lookup. When two records
// normalize to the same full name the earlier one wins.
func NewMatcher(riders []*model.Rider) *Matcher {
	m := &Matcher{
		riders: riders,
		byName: make(map[string]*model.Rider, len(riders)),
	}
	for _, r := range riders {
		name := normalizeName(r.FullName())
		if name == "" {
			continue
		}
		if _, ok := m.byName[name]; !ok {
			m.byName[name] = r
		}
	}
	return m
}

// Match resolves a raw name with a three-pass cascade:
//  1. exact normalized full name
//  2. "Last, First" swapped to "First Last"
//  3. token overlap: at least two name tokens in common
//
// Returns nil when nothing matches; the caller treats that as a new
// prospect.
func (m *Matcher) Match(rawName string) *model.Rider {
	clean := normalizeName(rawName)
	if clean == "" {
		return nil
	}

	// Pass 1: exact match.
	if r, ok := m.byName[clean]; ok {
		return r
	}

	// Pass 2: result sheets often list "Hargreaves, Ben".
	if i := strings.Index(clean, ","); i >= 0 {
		swapped := normalizeName(clean[i+1:] + " " + clean[:i])
		if r, ok := m.byName[swapped]; ok {
			return r
		}
	}

	// Pass 3: token overlap. Requiring two common tokens stops a bare
	// "Joshua" from claiming every Joshua in the registry.
	rawTokens := tokens(clean)
	if len(rawTokens) < 2 {
		return nil
	}
	for _, r := range m.riders {
		full := r.FullName()
		if len(full) > maxMatchNameLen {
			continue
		}
		dbTokens := tokens(normalizeName(full))
		if len(dbTokens) < 2 {
			continue
		}
		common := 0
		for t := range dbTokens {
			if _, ok := rawTokens[t]; ok {
				common++
			}
		}
		if common >= 2 {
			return r
		}
	}
	return nil
}

// Result is one finisher name resolved against the registry.
type Result struct {
	RawName string
	Rider   *model.Rider // nil when nobody matched
}

// Matched reports whether the name resolved to a known record.
func (res Result) Matched() bool {
	return res.Rider != nil
}

// Process resolves a list of raw finisher names, dropping blank lines.
func (m *Matcher) Process(names []string) []Result {
	var out []Result
	matched := 0
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		res := Result{RawName: name, Rider: m.Match(name)}
		if res.Matched() {
			matched++
		}
		out = append(out, res)
	}
	zap.L().Info("outreach: race results matched",
		zap.Int("names", len(out)),
		zap.Int("matched", matched),
	)
	return out
}

// normalizeName lowercases and collapses runs of whitespace.
func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func tokens(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range strings.Fields(s) {
		t = strings.Trim(t, ",.")
		if t != "" {
			set[t] = struct{}{}
		}
	}
	return set
}

package reconcile

import (
	"sort"
	"strings"
)

// Row is one tabular feed row keyed by normalized (lowercased, trimmed)
// column names. Values are raw cell contents.
type Row map[string]string

// NormalizeKey lowercases and trims a column name. Purely syntactic; no
// validation.
func NormalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// NormalizeRow returns a copy of raw with every key normalized, so
// heterogeneously-exported headers ("Email Address", "email", "EMAIL")
// collapse to one lookup key.
func NormalizeRow(raw map[string]string) Row {
	row := make(Row, len(raw))
	for k, v := range raw {
		row[NormalizeKey(k)] = v
	}
	return row
}

// Value returns the first non-blank value among the given column aliases,
// tried in order.
func (r Row) Value(aliases ...string) string {
	for _, a := range aliases {
		if v := strings.TrimSpace(r[NormalizeKey(a)]); v != "" {
			return v
		}
	}
	return ""
}

// ValueContaining returns the first non-blank value in a column whose key
// contains every given substring. Keys are scanned in sorted order so
// lookups are deterministic across runs.
func (r Row) ValueContaining(subs ...string) string {
	for i, s := range subs {
		subs[i] = NormalizeKey(s)
	}
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !containsAll(k, subs) {
			continue
		}
		if v := strings.TrimSpace(r[k]); v != "" {
			return v
		}
	}
	return ""
}

func containsAll(k string, subs []string) bool {
	for _, s := range subs {
		if !strings.Contains(k, s) {
			return false
		}
	}
	return true
}

// Empty reports whether every cell in the row is blank.
func (r Row) Empty() bool {
	for _, v := range r {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

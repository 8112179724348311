package reconcile

import (
	"strconv"
	"strings"
	"time"
)

// timestampLayouts is the fixed trial order for raw feed timestamps.
// Day-first UK layouts come before US month-first ones because the
// business's own exports are day-first; ISO forms close the list. Go's
// parser accepts an optional fractional second after any seconds field,
// so the plain ISO layout also covers arbitrary-precision fractions.
var timestampLayouts = []string{
	"02/01/2006 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
}

// ParseTimestamp tries each known layout in order and returns the first
// successful parse. Empty or unparseable input (including impossible
// calendar dates like 31/02/2024) yields ok=false, never an error:
// callers treat a failed parse as absence of data.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var moneyCleaner = strings.NewReplacer("£", "", "$", "", ",", "", " ", "")

// ParseMoney parses a currency amount, tolerating pound/dollar signs and
// thousands separators. Returns ok=false on blank or non-numeric input.
func ParseMoney(raw string) (float64, bool) {
	cleaned := moneyCleaner.Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Truthy reports whether a cell holds an affirmative flag value.
func Truthy(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "true", "1", "y":
		return true
	}
	return false
}

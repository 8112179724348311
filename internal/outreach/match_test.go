package outreach

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podium-performance/funnel-cli/internal/model"
)

func matchRiders() []*model.Rider {
	return []*model.Rider{
		model.NewRider("ben@example.com", "Ben", "Hargreaves"),
		model.NewRider("joshua@example.com", "Joshua", "Ferrer"),
		model.NewRider("ana-silva", "Ana", "Silva"),
	}
}

func TestMatcher_ExactMatch(t *testing.T) {
	m := NewMatcher(matchRiders())

	r := m.Match("Ben Hargreaves")
	require.NotNil(t, r)
	assert.Equal(t, "ben@example.com", r.Key)

	// Case and spacing never matter.
	r = m.Match("  ben   HARGREAVES ")
	require.NotNil(t, r)
	assert.Equal(t, "ben@example.com", r.Key)
}

func TestMatcher_LastFirstSwap(t *testing.T) {
	m := NewMatcher(matchRiders())

	r := m.Match("Hargreaves, Ben")
	require.NotNil(t, r)
	assert.Equal(t, "ben@example.com", r.Key)
}

func TestMatcher_TokenOverlap(t *testing.T) {
	m := NewMatcher(matchRiders())

	// Middle initials on the result sheet still hit both name tokens.
	r := m.Match("Ben J Hargreaves")
	require.NotNil(t, r)
	assert.Equal(t, "ben@example.com", r.Key)

	// Reversed order without the comma.
	r = m.Match("Ferrer Joshua")
	require.NotNil(t, r)
	assert.Equal(t, "joshua@example.com", r.Key)
}

func TestMatcher_SingleTokenNeverMatchesLoosely(t *testing.T) {
	m := NewMatcher(matchRiders())

	// A bare first name must not claim every Joshua in the registry.
	assert.Nil(t, m.Match("Joshua"))
}

func TestMatcher_PartialOverlapRejected(t *testing.T) {
	m := NewMatcher(matchRiders())

	// One shared token out of two is not a match.
	assert.Nil(t, m.Match("Joshua Other"))
}

func TestMatcher_SkipsCorruptNames(t *testing.T) {
	corrupt := model.NewRider("blob@example.com",
		"Ben Hargreaves Joshua Ferrer Ana Silva Tom", "Harker Lena Ortiz Kai Brandt")
	m := NewMatcher([]*model.Rider{corrupt})

	require.Greater(t, len(corrupt.FullName()), maxMatchNameLen)
	assert.Nil(t, m.Match("Ben Hargreaves"))
}

func TestMatcher_NoMatch(t *testing.T) {
	m := NewMatcher(matchRiders())

	assert.Nil(t, m.Match("Valentina Rossi"))
	assert.Nil(t, m.Match(""))
}

func TestMatcher_Process(t *testing.T) {
	m := NewMatcher(matchRiders())

	results := m.Process([]string{"Ben Hargreaves", "", "  ", "Valentina Rossi"})

	require.Len(t, results, 2)
	assert.True(t, results[0].Matched())
	assert.Equal(t, "Ben Hargreaves", results[0].RawName)
	assert.False(t, results[1].Matched())
	assert.Equal(t, "Valentina Rossi", results[1].RawName)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "ben hargreaves", normalizeName("  Ben   HARGREAVES "))
	assert.Equal(t, "", normalizeName("   "))
	assert.False(t, strings.Contains(normalizeName("a\tb"), "\t"))
}

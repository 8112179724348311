package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podium-performance/funnel-cli/internal/model"
)

func TestGetOrCreate_CreatesAtInitialStage(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	r := reg.GetOrCreate("jane@example.com", "Jane", "Smith")

	require.NotNil(t, r)
	assert.Equal(t, model.StageContact, r.Stage)
	assert.Equal(t, "jane@example.com", r.Key)
	assert.Equal(t, 1, reg.Len())
}

func TestGetOrCreate_Idempotent(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	a := reg.GetOrCreate("jane@example.com", "Jane", "")
	b := reg.GetOrCreate("jane@example.com", "", "Smith")
	c := reg.GetOrCreate("  JANE@EXAMPLE.COM ", "Janet", "Smithe")

	assert.Same(t, a, b)
	assert.Same(t, a, c)
	assert.Equal(t, 1, reg.Len())

	// Names fill empty slots only; later spellings never overwrite.
	assert.Equal(t, "Jane", a.FirstName)
	assert.Equal(t, "Smith", a.LastName)
}

func TestGetOrCreate_KeyNormalized(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.GetOrCreate("Jane@Example.com", "Jane", "")

	r, ok := reg.Get("jane@example.com")
	assert.True(t, ok)
	assert.Equal(t, "jane@example.com", r.Key)
}

func TestGetOrCreate_EmptyKeyFallsBack(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	r := reg.GetOrCreate("", "Mystery", "")
	assert.Equal(t, FallbackKey, r.Key)
}

func TestRiders_InsertionOrder(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.GetOrCreate("c@example.com", "C", "")
	reg.GetOrCreate("a@example.com", "A", "")
	reg.GetOrCreate("b@example.com", "B", "")
	reg.GetOrCreate("a@example.com", "A", "") // re-encounter keeps position

	keys := reg.Keys()
	assert.Equal(t, []string{"c@example.com", "a@example.com", "b@example.com"}, keys)

	riders := reg.Riders()
	require.Len(t, riders, 3)
	assert.Equal(t, "c@example.com", riders[0].Key)
}

func TestGet_Missing(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	_, ok := reg.Get("nobody@example.com")
	assert.False(t, ok)
}

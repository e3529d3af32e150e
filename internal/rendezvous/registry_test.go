package rendezvous

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRegistry(t *testing.T) {
	r, err := ParseRegistry([]string{"ED:0A:39:F0:0E:1C", "D9:42:7E:11:5A:C3"})
	require.NoError(t, err)

	assert.Equal(t, "ED:0A:39:F0:0E:1C", r.Target(0).String())
	assert.Equal(t, "D9:42:7E:11:5A:C3", r.Target(1).String())

	_, err = ParseRegistry([]string{"ED:0A:39:F0:0E:1C"})
	assert.Error(t, err)

	_, err = ParseRegistry([]string{"ED:0A:39:F0:0E:1C", "ED:0A:39:F0:0E:1C"})
	assert.ErrorContains(t, err, "distinct")

	_, err = ParseRegistry([]string{"00:00:00:00:00:00", "ED:0A:39:F0:0E:1C"})
	assert.ErrorContains(t, err, "zero")

	_, err = ParseRegistry([]string{"nope", "ED:0A:39:F0:0E:1C"})
	assert.ErrorContains(t, err, "target 0")
}

func TestRegistryLookup(t *testing.T) {
	r, err := ParseRegistry([]string{"ED:0A:39:F0:0E:1C", "D9:42:7E:11:5A:C3"})
	require.NoError(t, err)

	slot, ok := r.Lookup(MustParseAddress("C3:5A:11:7E:42:D9"))
	assert.True(t, ok)
	assert.Equal(t, SlotIndex(1), slot)

	assert.True(t, r.Matches(0, MustParseAddress("1C:0E:F0:39:0A:ED")))
	assert.False(t, r.Matches(1, MustParseAddress("1C:0E:F0:39:0A:ED")))

	_, ok = r.Lookup(MustParseAddress("ED:0A:39:F0:0E:1C"))
	assert.False(t, ok)
}

func TestSlotIndexOther(t *testing.T) {
	assert.Equal(t, SlotIndex(1), SlotIndex(0).Other())
	assert.Equal(t, SlotIndex(0), SlotIndex(1).Other())
	assert.True(t, SlotIndex(1).Valid())
	assert.False(t, SlotIndex(2).Valid())
}

package rendezvous

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Address
		wantErr bool
	}{
		{name: "colon", input: "ED:0A:39:F0:0E:1C", want: Address{0xED, 0x0A, 0x39, 0xF0, 0x0E, 0x1C}},
		{name: "dash lower", input: "ed-0a-39-f0-0e-1c", want: Address{0xED, 0x0A, 0x39, 0xF0, 0x0E, 0x1C}},
		{name: "plain hex", input: " ed0a39f00e1c ", want: Address{0xED, 0x0A, 0x39, 0xF0, 0x0E, 0x1C}},
		{name: "short", input: "ED:0A:39", wantErr: true},
		{name: "not hex", input: "ZZ:0A:39:F0:0E:1C", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddressStringAndReverse(t *testing.T) {
	a := MustParseAddress("ED:0A:39:F0:0E:1C")

	assert.Equal(t, "ED:0A:39:F0:0E:1C", a.String())
	assert.Equal(t, "1C:0E:F0:39:0A:ED", a.Reverse().String())
	assert.Equal(t, a, a.Reverse().Reverse())
	assert.False(t, a.IsZero())
	assert.True(t, Address{}.IsZero())
}

func TestMatchReversed(t *testing.T) {
	target := MustParseAddress("ED:0A:39:F0:0E:1C")

	assert.True(t, MatchReversed(MustParseAddress("1C:0E:F0:39:0A:ED"), target))
	assert.False(t, MatchReversed(target, target), "written order must not match")

	// one byte off in every position
	for i := 0; i < AddressLen; i++ {
		d := target.Reverse()
		d[i] ^= 0x01
		assert.False(t, MatchReversed(d, target), "byte %d flipped", i)
	}
}

func TestMatchReversedSymmetry(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	random := func() Address {
		var a Address
		rng.Read(a[:])
		return a
	}

	for i := 0; i < 500; i++ {
		a, target := random(), random()
		if i%2 == 0 {
			a = target.Reverse()
		}
		assert.Equal(t,
			MatchReversed(a, target.Reverse()),
			MatchReversed(a.Reverse(), target),
			"a=%s target=%s", a, target)
	}
}

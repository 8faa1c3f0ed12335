package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormation_Tables(t *testing.T) {
	spec, err := Formation("4-3-3")
	require.NoError(t, err)
	assert.Equal(t, FormationSpec{Goalkeeper: 1, CenterBack: 2, Fullback: 2, Midfielder: 3, Forward: 3}, spec)
	assert.Equal(t, 11, spec.Total())

	spec, err = Formation("3-5-2")
	require.NoError(t, err)
	assert.Equal(t, 1, spec.Count(Goalkeeper))
	assert.Equal(t, 3, spec.Count(CenterBack))
	assert.Equal(t, 0, spec.Count(Fullback))
	assert.Equal(t, 5, spec.Count(Midfielder))
	assert.Equal(t, 2, spec.Count(Forward))
	assert.Equal(t, 11, spec.Total())
}

func TestFormation_AllSumToEleven(t *testing.T) {
	for _, key := range FormationKeys() {
		spec, err := Formation(key)
		require.NoError(t, err)
		assert.Equal(t, StartersPerSquad, spec.Total(), key)
	}
}

func TestFormation_ReturnsCopy(t *testing.T) {
	spec, err := Formation("4-4-2")
	require.NoError(t, err)
	spec[Midfielder] = 9

	again, err := Formation("4-4-2")
	require.NoError(t, err)
	assert.Equal(t, 4, again[Midfielder])
}

func TestFormation_Unknown(t *testing.T) {
	_, err := Formation("2-3-5")
	assert.ErrorContains(t, err, "unknown formation")
}

func TestParsePosition(t *testing.T) {
	cases := map[string]Position{
		"1":   Goalkeeper,
		"2":   Fullback,
		"3":   CenterBack,
		"4":   Midfielder,
		"5":   Forward,
		"G":   Goalkeeper,
		"l":   Fullback,
		"Z":   CenterBack,
		"M":   Midfielder,
		"A":   Forward,
		"fwd": Forward,
	}
	for in, want := range cases {
		got, err := ParsePosition(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParsePosition("6")
	assert.Error(t, err)
	_, err = ParsePosition("X")
	assert.Error(t, err)
}

func TestRoundKey_Less(t *testing.T) {
	assert.True(t, RoundKey{2022, 38}.Less(RoundKey{2023, 1}))
	assert.True(t, RoundKey{2023, 1}.Less(RoundKey{2023, 2}))
	assert.False(t, RoundKey{2023, 2}.Less(RoundKey{2023, 2}))
}

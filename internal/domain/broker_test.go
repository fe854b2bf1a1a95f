package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chainOf(strikes ...float64) OptionChain {
	c := OptionChain{Underlying: "NIFTY", Expiry: "2026-09-03"}
	for _, s := range strikes {
		c.Strikes = append(c.Strikes, OptionStrike{Strike: s})
	}
	return c
}

func TestAtStrikeCentersOnMiddle(t *testing.T) {
	c := chainOf(90, 95, 100, 105, 110)

	row, err := c.AtStrike(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 100.0, row.Strike)

	// Equidistant neighbors break ties toward the lower strike.
	row, err = c.AtStrike(0, 1)
	require.NoError(t, err)
	assert.Equal(t, 95.0, row.Strike)

	row, err = c.AtStrike(0, 2)
	require.NoError(t, err)
	assert.Equal(t, 105.0, row.Strike)
}

func TestAtStrikeAroundPrice(t *testing.T) {
	c := chainOf(90, 95, 100, 105, 110)

	row, err := c.AtStrike(106, 0)
	require.NoError(t, err)
	assert.Equal(t, 105.0, row.Strike)

	row, err = c.AtStrike(106, 1)
	require.NoError(t, err)
	assert.Equal(t, 110.0, row.Strike)
}

func TestAtStrikeClampsOffset(t *testing.T) {
	c := chainOf(90, 95, 100)

	row, err := c.AtStrike(0, 99)
	require.NoError(t, err)
	// The farthest strike from center 95.
	assert.Equal(t, 100.0, row.Strike)

	row, err = c.AtStrike(0, -5)
	require.NoError(t, err)
	assert.Equal(t, 95.0, row.Strike)
}

func TestAtStrikeEmptyChain(t *testing.T) {
	_, err := OptionChain{}.AtStrike(0, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLotSize(t *testing.T) {
	assert.Equal(t, int64(75), LotSize("NIFTY"))
	assert.Equal(t, int64(35), LotSize("BANKNIFTY"))
	assert.Equal(t, int64(20), LotSize("SENSEX"))
	assert.Equal(t, int64(40), LotSize("FINNIFTY"))
	assert.Equal(t, int64(1), LotSize("RELIANCE"))
}

package types

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmount(t *testing.T) {
	t.Run("zero value", func(t *testing.T) {
		var a Amount
		assert.True(t, a.IsZero())
		assert.Equal(t, "0", a.String())
	})

	t.Run("negative input is clamped", func(t *testing.T) {
		a := NewAmount(big.NewInt(-5), 10)
		assert.True(t, a.IsZero())
	})

	t.Run("sub floors at zero", func(t *testing.T) {
		a := NewAmount(big.NewInt(3), 0)
		b := NewAmount(big.NewInt(7), 0)
		assert.Equal(t, "0", a.Sub(b).String())
		assert.Equal(t, "4", b.Sub(a).String())
	})

	t.Run("values beyond 64 bits stay exact", func(t *testing.T) {
		a, err := ParseAmount("123456789012345678901234567890", 18)
		require.NoError(t, err)
		sum := SumAmounts(18, a, a, NewAmount(big.NewInt(1), 18))
		assert.Equal(t, "246913578024691357802469135781", sum.String())
	})

	t.Run("human rendering", func(t *testing.T) {
		a, err := ParseAmount("15000000000", 10)
		require.NoError(t, err)
		assert.Equal(t, "1.5", a.Human())
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := ParseAmount("12abc", 10)
		assert.Error(t, err)
		_, err = ParseAmount("-1", 10)
		assert.Error(t, err)
	})
}

func TestAmountJSON(t *testing.T) {
	a, err := ParseAmount("99999999999999999999", 12)
	require.NoError(t, err)

	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Equal(t, `"99999999999999999999"`, string(data))

	var back Amount
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, 0, a.Cmp(back))
}

func TestDurationJSON(t *testing.T) {
	d := Duration(216000000 * time.Millisecond)
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, "216000000", string(data))

	var back Duration
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, d, back)
}

func TestPerbillToPercent(t *testing.T) {
	assert.Equal(t, "5", PerbillToPercent(50_000_000).String())
	assert.Equal(t, "100", PerbillToPercent(2_000_000_000).String())
	assert.Equal(t, "0", PerbillToPercent(0).String())
}

func TestInflationCurveParams(t *testing.T) {
	p := InflationCurveParams{MaxInflation: 0.1, StakeTarget: 0.75, AuctionAdjust: 0.005, AuctionMax: 60}
	assert.InDelta(t, 0.75-10*0.005, p.IdealStake(10), 1e-12)
	assert.InDelta(t, 0.75-60*0.005, p.IdealStake(100), 1e-12)
	assert.InDelta(t, 0.1/0.7, p.IdealInterest(p.IdealStake(10)), 1e-12)
	assert.Zero(t, p.IdealInterest(0))
	assert.False(t, p.IsZero())
	assert.True(t, InflationCurveParams{}.IsZero())
}

package status

import (
	"math/big"
	"testing"

	"github.com/safwentrabelsi/staking-aggregator/types"
	"github.com/stretchr/testify/assert"
)

func amount(v int64) types.Amount {
	return types.NewAmount(big.NewInt(v), 0)
}

func nomination(active, min int64) types.NominationInfo {
	return types.NominationInfo{
		ActiveStake:       amount(active),
		ValidatorMinStake: amount(min),
		Status:            Nomination(amount(active), amount(min)),
	}
}

func TestNomination(t *testing.T) {
	assert.Equal(t, types.StatusEarningReward, Nomination(amount(10), amount(5)))
	assert.Equal(t, types.StatusEarningReward, Nomination(amount(5), amount(5)))
	assert.Equal(t, types.StatusNotEarning, Nomination(amount(4), amount(5)))
	assert.Equal(t, types.StatusNotEarning, Nomination(amount(0), amount(0)))
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name        string
		total       int64
		nominations []types.NominationInfo
		expected    types.StakingStatus
	}{
		{"nothing at all", 0, nil, types.StatusNotStaking},
		{"nominations without stake", 0, []types.NominationInfo{nomination(0, 5)}, types.StatusNotEarning},
		{"all earning", 20, []types.NominationInfo{nomination(10, 5), nomination(10, 5)}, types.StatusEarningReward},
		{"one of two earning", 10, []types.NominationInfo{nomination(10, 5), nomination(0, 5)}, types.StatusPartiallyEarning},
		{"none earning", 8, []types.NominationInfo{nomination(4, 5), nomination(4, 5)}, types.StatusNotEarning},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Resolve(amount(tc.total), tc.nominations))
		})
	}
}

func TestResolve_RoundTripScenario(t *testing.T) {
	noms := []types.NominationInfo{nomination(10, 5), nomination(0, 5)}
	assert.Equal(t, types.StatusEarningReward, noms[0].Status)
	assert.Equal(t, types.StatusNotEarning, noms[1].Status)

	total := types.SumAmounts(0, noms[0].ActiveStake, noms[1].ActiveStake)
	assert.Equal(t, types.StatusPartiallyEarning, Resolve(total, noms))
}

func TestResolve_Pure(t *testing.T) {
	noms := []types.NominationInfo{nomination(10, 5), nomination(3, 5)}
	first := Resolve(amount(13), noms)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Resolve(amount(13), noms))
	}
	assert.Equal(t, "10", noms[0].ActiveStake.String())
}

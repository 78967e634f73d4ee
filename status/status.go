package status

import (
	"github.com/safwentrabelsi/staking-aggregator/types"
)

// Nomination returns EARNING_REWARD when activeStake is positive and at least
// minStake, NOT_EARNING otherwise.
func Nomination(activeStake, minStake types.Amount) types.StakingStatus {
	if !activeStake.IsZero() && activeStake.Cmp(minStake) >= 0 {
		return types.StatusEarningReward
	}
	return types.StatusNotEarning
}

// Resolve aggregates nomination statuses into an account-level status.
func Resolve(totalActiveStake types.Amount, nominations []types.NominationInfo) types.StakingStatus {
	if totalActiveStake.IsZero() {
		if len(nominations) == 0 {
			return types.StatusNotStaking
		}
		return types.StatusNotEarning
	}

	invalid := 0
	for _, n := range nominations {
		if n.Status == types.StatusNotEarning {
			invalid++
		}
	}

	switch {
	case invalid == 0:
		return types.StatusEarningReward
	case invalid < len(nominations):
		return types.StatusPartiallyEarning
	default:
		return types.StatusNotEarning
	}
}

package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Family identifies the on-chain staking paradigm a chain follows.
type Family string

const (
	FamilyRelay     Family = "relay"
	FamilyParachain Family = "parachain"
	FamilyContract  Family = "contract"
)

type StakingType string

const (
	StakingTypeNominated StakingType = "nominated-validator"
	StakingTypeDelegator StakingType = "delegator"
	StakingTypeContract  StakingType = "contract"
)

type StakingStatus string

const (
	StatusNotStaking       StakingStatus = "NOT_STAKING"
	StatusNotEarning       StakingStatus = "NOT_EARNING"
	StatusPartiallyEarning StakingStatus = "PARTIALLY_EARNING"
	StatusEarningReward    StakingStatus = "EARNING_REWARD"
)

type UnstakingStatus string

const (
	UnstakingStatusUnlocking UnstakingStatus = "UNLOCKING"
	UnstakingStatusClaimable UnstakingStatus = "CLAIMABLE"
)

// ChainStakingMetadata is the per-chain snapshot of global staking parameters.
type ChainStakingMetadata struct {
	Chain                            string           `json:"chain"`
	Type                             StakingType      `json:"type"`
	Era                              uint32           `json:"era"`
	Decimals                         uint8            `json:"decimals"`
	MinStake                         Amount           `json:"minStake"`
	MaxValidatorPerNominator         uint32           `json:"maxValidatorPerNominator"`
	MaxWithdrawalRequestPerValidator uint32           `json:"maxWithdrawalRequestPerValidator"`
	AllowCancelUnstaking             bool             `json:"allowCancelUnstaking"`
	UnstakingDelayEras               uint32           `json:"unstakingDelayEras"`
	UnstakingPeriod                  Duration         `json:"unstakingPeriod"`
	Inflation                        *decimal.Decimal `json:"inflation,omitempty"`
	ExpectedReturn                   *decimal.Decimal `json:"expectedReturn,omitempty"`
}

// NominationInfo is one stake relationship from an account to one target.
type NominationInfo struct {
	Chain             string        `json:"chain"`
	ValidatorAddress  string        `json:"validatorAddress"`
	ValidatorIdentity string        `json:"validatorIdentity,omitempty"`
	ActiveStake       Amount        `json:"activeStake"`
	ValidatorMinStake Amount        `json:"validatorMinStake"`
	HasUnstaking      bool          `json:"hasUnstaking"`
	Status            StakingStatus `json:"status"`
}

// UnstakingInfo is one pending withdrawal. ValidatorAddress is empty for
// chains with a single wallet-level unbonding queue.
type UnstakingInfo struct {
	Chain            string          `json:"chain"`
	ValidatorAddress string          `json:"validatorAddress,omitempty"`
	Status           UnstakingStatus `json:"status"`
	Claimable        Amount          `json:"claimable"`
	WaitingTime      Duration        `json:"waitingTime"`
}

// NominatorMetadata aggregates every position one account holds on one chain.
type NominatorMetadata struct {
	Chain          string           `json:"chain"`
	Address        string           `json:"address"`
	Type           StakingType      `json:"type"`
	Status         StakingStatus    `json:"status"`
	ActiveStake    Amount           `json:"activeStake"`
	Nominations    []NominationInfo `json:"nominations"`
	Unstakings     []UnstakingInfo  `json:"unstakings"`
	Redeemable     Amount           `json:"redeemable"`
	NextWithdrawal *UnstakingInfo   `json:"nextWithdrawal,omitempty"`
}

// CandidateInfo describes a stake target: a validator, a collator or a dapp.
type CandidateInfo struct {
	Chain          string           `json:"chain"`
	Address        string           `json:"address"`
	TotalStake     Amount           `json:"totalStake"`
	OwnStake       Amount           `json:"ownStake"`
	OtherStake     Amount           `json:"otherStake"`
	NominatorCount uint32           `json:"nominatorCount"`
	Commission     decimal.Decimal  `json:"commission"`
	ExpectedReturn *decimal.Decimal `json:"expectedReturn,omitempty"`
	MinBond        Amount           `json:"minBond"`
	Blocked        bool             `json:"blocked"`
	IsVerified     bool             `json:"isVerified"`
	Identity       string           `json:"identity,omitempty"`
	IsCrowded      bool             `json:"isCrowded"`
}

// InflationCurveParams parameterise the inflation curve of a chain. The values
// are ratios in [0, 1], not balances.
type InflationCurveParams struct {
	MinInflation            float64
	MaxInflation            float64
	StakeTarget             float64
	Falloff                 float64
	AuctionAdjust           float64
	AuctionMax              uint32
	YearlyInflationInTokens uint64
}

// IsZero reports whether no curve is configured.
func (p InflationCurveParams) IsZero() bool {
	return p.MaxInflation == 0 && p.YearlyInflationInTokens == 0
}

// IdealStake returns the stake target lowered by the active auction adjustment.
func (p InflationCurveParams) IdealStake(numAuctions uint32) float64 {
	return p.StakeTarget - float64(min(p.AuctionMax, numAuctions))*p.AuctionAdjust
}

// IdealInterest is the staked return paid at idealStake, 0 when idealStake
// is not positive.
func (p InflationCurveParams) IdealInterest(idealStake float64) float64 {
	if idealStake <= 0 {
		return 0
	}
	return p.MaxInflation / idealStake
}

// AccountResult is the outcome of resolving one tracked account. A nil
// Metadata means the position is unknown for this cycle.
type AccountResult struct {
	Address  string
	Metadata *NominatorMetadata
	Err      error
}

// RefreshResult is everything one refresh cycle produced for a chain.
type RefreshResult struct {
	Chain       string
	Metadata    *ChainStakingMetadata
	Candidates  []CandidateInfo
	Accounts    []AccountResult
	RefreshedAt time.Time
}

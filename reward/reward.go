// Package reward models inflation and staking returns. Balances stay in
// big.Int; only dimensionless ratios are handled as float64.
package reward

import (
	"math"
	"math/big"

	"github.com/safwentrabelsi/staking-aggregator/types"
	"github.com/shopspring/decimal"
)

const stakedFractionScale = 1_000_000

var (
	hundred = decimal.NewFromInt(100)
	// treasuryShare is the part of rewards left to stakers when 10% is routed to treasury.
	treasuryShare = decimal.RequireFromString("0.9")
	// maxAdjustedReturn clamps the stake-ratio adjusted return before commission.
	maxAdjustedReturn = decimal.NewFromInt(9007199254740991)
)

// StakedFraction returns totalStake / totalIssuance with six digits of
// precision, computed on integers. It is 0 when totalIssuance is not positive.
func StakedFraction(totalStake, totalIssuance *big.Int) float64 {
	if totalStake == nil || totalIssuance == nil || totalIssuance.Sign() <= 0 || totalStake.Sign() <= 0 {
		return 0
	}
	scaled := new(big.Int).Mul(totalStake, big.NewInt(stakedFractionScale))
	scaled.Quo(scaled, totalIssuance)
	f, _ := new(big.Float).SetInt(scaled).Float64()
	return f / stakedFractionScale
}

// ComputeInflation returns the yearly inflation in percent.
func ComputeInflation(totalStake *big.Int, totalIssuance types.Amount, numAuctions uint32, params types.InflationCurveParams) decimal.Decimal {
	if totalIssuance.IsZero() {
		return decimal.Zero
	}
	if params.YearlyInflationInTokens > 0 {
		tokens := totalIssuance.Tokens()
		if tokens.IsZero() {
			return decimal.Zero
		}
		return decimal.NewFromInt(int64(params.YearlyInflationInTokens)).Mul(hundred).Div(tokens)
	}

	idealStake := params.IdealStake(numAuctions)
	if idealStake <= 0 || params.Falloff <= 0 {
		return decimal.NewFromFloat(100 * params.MinInflation)
	}
	stakedFraction := StakedFraction(totalStake, totalIssuance.Int())
	return decimal.NewFromFloat(100 * curve(stakedFraction, idealStake, params))
}

func curve(stakedFraction, idealStake float64, params types.InflationCurveParams) float64 {
	if stakedFraction <= idealStake {
		return belowIdeal(stakedFraction, idealStake, params)
	}
	return aboveIdeal(stakedFraction, idealStake, params)
}

func belowIdeal(stakedFraction, idealStake float64, params types.InflationCurveParams) float64 {
	idealInterest := params.IdealInterest(idealStake)
	return params.MinInflation + stakedFraction*(idealInterest-params.MinInflation/idealStake)
}

func aboveIdeal(stakedFraction, idealStake float64, params types.InflationCurveParams) float64 {
	idealInterest := params.IdealInterest(idealStake)
	return params.MinInflation + (idealInterest*idealStake-params.MinInflation)*math.Pow(2, (idealStake-stakedFraction)/params.Falloff)
}

// ComputeStakedReturn converts inflation into the yearly return of the staked
// part of the supply. It is 0 when nothing is staked.
func ComputeStakedReturn(inflation decimal.Decimal, totalStake, totalIssuance *big.Int, treasuryCut bool) decimal.Decimal {
	stakedFraction := StakedFraction(totalStake, totalIssuance)
	if stakedFraction == 0 {
		return decimal.Zero
	}
	stakedReturn := inflation.Div(decimal.NewFromFloat(stakedFraction))
	if treasuryCut {
		stakedReturn = stakedReturn.Mul(treasuryShare)
	}
	return stakedReturn
}

// ComputeValidatorReturn scales the chain return by avgStake / validatorStake
// and deducts commission (percent).
func ComputeValidatorReturn(chainStakedReturn decimal.Decimal, validatorStake, avgStake *big.Int, commission decimal.Decimal) decimal.Decimal {
	if validatorStake == nil || avgStake == nil || validatorStake.Sign() <= 0 || avgStake.Sign() <= 0 {
		return decimal.Zero
	}
	ratio := decimal.NewFromBigInt(avgStake, 0).Div(decimal.NewFromBigInt(validatorStake, 0))
	adjusted := decimal.Min(chainStakedReturn.Mul(ratio), maxAdjustedReturn)

	if commission.IsNegative() {
		commission = decimal.Zero
	}
	if commission.GreaterThan(hundred) {
		commission = hundred
	}
	return adjusted.Mul(hundred.Sub(commission)).Div(hundred)
}

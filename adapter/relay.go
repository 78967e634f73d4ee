package adapter

import (
	"math/big"

	"github.com/safwentrabelsi/staking-aggregator/directory"
	"github.com/safwentrabelsi/staking-aggregator/reward"
	"github.com/safwentrabelsi/staking-aggregator/snapshot"
	"github.com/safwentrabelsi/staking-aggregator/types"
	"github.com/safwentrabelsi/staking-aggregator/unbonding"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// RelayAdapter resolves nominated staking: one bonded ledger per account
// nominating many validators, with a single wallet-level unlocking queue.
type RelayAdapter struct {
	base
}

func (a *RelayAdapter) snapshot(snap snapshot.Snapshot) (*snapshot.RelaySnapshot, error) {
	s, ok := snap.(*snapshot.RelaySnapshot)
	if !ok || s == nil {
		return nil, a.mismatch(snap)
	}
	return s, nil
}

// chainMinStake is the stake a nominator needs to be elected: the larger of
// the minimum active stake and the minimum nominator bond.
func (a *RelayAdapter) chainMinStake(s *snapshot.RelaySnapshot) types.Amount {
	return a.minStake(maxBig(s.MinimumActiveStake, s.MinNominatorBond))
}

func (a *RelayAdapter) ResolveChainMetadata(snap snapshot.Snapshot) (*types.ChainStakingMetadata, error) {
	s, err := a.snapshot(snap)
	if err != nil {
		return nil, err
	}
	inflation, expected := a.curveReturns(s.TotalEraStake, s.TotalIssuance, s.AuctionCounter)
	return &types.ChainStakingMetadata{
		Chain:                            a.params.Chain,
		Type:                             types.StakingTypeNominated,
		Era:                              s.CurrentEra,
		Decimals:                         a.params.Decimals,
		MinStake:                         a.chainMinStake(s),
		MaxValidatorPerNominator:         s.MaxNominations,
		MaxWithdrawalRequestPerValidator: s.MaxUnlockingChunks,
		AllowCancelUnstaking:             true,
		UnstakingDelayEras:               a.params.UnbondingDelayEras,
		UnstakingPeriod:                  a.unstakingPeriod(),
		Inflation:                        inflation,
		ExpectedReturn:                   expected,
	}, nil
}

// ResolveNominatorPosition reports, per nominated validator, the part of the
// ledger the validator exposes in the current era.
func (a *RelayAdapter) ResolveNominatorPosition(snap snapshot.Snapshot, address string) (*types.NominatorMetadata, error) {
	s, err := a.snapshot(snap)
	if err != nil {
		return nil, err
	}
	if err := s.Malformed.Err(address); err != nil {
		return nil, err
	}
	acc := s.Accounts[address]
	if acc == nil {
		log.WithFields(logrus.Fields{"chain": a.params.Chain, "address": address}).Debug("No bonded ledger")
		return a.assemble(types.StakingTypeNominated, address, nil, nil), nil
	}

	minStake := a.chainMinStake(s)
	nominations := make([]types.NominationInfo, 0, len(acc.Targets))
	for _, target := range acc.Targets {
		var exposed *big.Int
		if v := s.Validator(target); v != nil {
			exposed = v.ExposureOf(address)
		}
		nominations = append(nominations, a.nomination(target, s.Identities[target], a.amount(exposed), minStake))
	}

	reqs := make([]unbonding.Request, 0, len(acc.Unlocking))
	for _, chunk := range acc.Unlocking {
		reqs = append(reqs, unbonding.Request{
			Chain:          a.params.Chain,
			Amount:         a.amount(chunk.Value),
			WhenExecutable: chunk.Era,
		})
	}
	unstakings := a.scheduler.ResolveAll(reqs, s.CurrentEra, a.params.EraLength)

	// The unlocking queue belongs to the whole ledger.
	for i := range nominations {
		nominations[i].HasUnstaking = len(unstakings) > 0
	}
	return a.assemble(types.StakingTypeNominated, address, nominations, unstakings), nil
}

func (a *RelayAdapter) DirectoryRequest(snap snapshot.Snapshot, meta *types.ChainStakingMetadata) (directory.Request, error) {
	s, err := a.snapshot(snap)
	if err != nil {
		return directory.Request{}, err
	}
	chainCap := s.MaxNominatorRewardedPerValidator
	if chainCap == 0 {
		chainCap = s.MaxExposurePageSize
	}
	slots := a.crowdCap(chainCap)
	minStake := a.chainMinStake(s)

	seeds := make([]directory.Seed, 0, len(s.Validators))
	for _, v := range s.Validators {
		seeds = append(seeds, directory.Seed{
			Address:        v.Address,
			TotalStake:     a.amount(v.Total),
			OwnStake:       a.amount(v.Own),
			NominatorCount: uint32(len(v.Others)),
			MinBond:        a.validatorMinBond(v, s.MaxNominatorRewardedPerValidator, minStake),
		})
	}

	avgStake := new(big.Int)
	if len(s.Validators) > 0 && s.TotalEraStake != nil {
		avgStake.Quo(s.TotalEraStake, big.NewInt(int64(len(s.Validators))))
	}
	var chainReturn *decimal.Decimal
	if meta != nil {
		chainReturn = meta.ExpectedReturn
	}

	return directory.Request{
		Chain:                  a.params.Chain,
		Decimals:               a.params.Decimals,
		MaxNominatorsPerTarget: slots,
		Seeds:                  seeds,
		Estimate: func(seed directory.Seed, commission decimal.Decimal) *decimal.Decimal {
			if chainReturn == nil {
				return nil
			}
			r := reward.ComputeValidatorReturn(*chainReturn, seed.TotalStake.Int(), avgStake, commission)
			return &r
		},
	}, nil
}

// validatorMinBond is the smallest exposure once every rewarded slot of the
// validator is taken, the chain minimum otherwise. Runtimes with paged
// exposures have no rewarded slot limit and pass 0.
func (a *RelayAdapter) validatorMinBond(v snapshot.RelayValidator, slots uint32, chainMin types.Amount) types.Amount {
	if slots == 0 || uint32(len(v.Others)) < slots {
		return chainMin
	}
	var lowest *big.Int
	for _, o := range v.Others {
		if o.Value == nil {
			continue
		}
		if lowest == nil || o.Value.Cmp(lowest) < 0 {
			lowest = o.Value
		}
	}
	if lowest == nil {
		return chainMin
	}
	return a.amount(lowest)
}

package adapter

import (
	"github.com/safwentrabelsi/staking-aggregator/directory"
	"github.com/safwentrabelsi/staking-aggregator/snapshot"
	"github.com/safwentrabelsi/staking-aggregator/types"
	"github.com/safwentrabelsi/staking-aggregator/unbonding"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ParachainAdapter resolves delegator staking: independent delegations to
// collators, each with at most one scheduled request.
type ParachainAdapter struct {
	base
}

func (a *ParachainAdapter) snapshot(snap snapshot.Snapshot) (*snapshot.ParachainSnapshot, error) {
	s, ok := snap.(*snapshot.ParachainSnapshot)
	if !ok || s == nil {
		return nil, a.mismatch(snap)
	}
	return s, nil
}

func (a *ParachainAdapter) ResolveChainMetadata(snap snapshot.Snapshot) (*types.ChainStakingMetadata, error) {
	s, err := a.snapshot(snap)
	if err != nil {
		return nil, err
	}
	inflation, expected := a.curveReturns(s.TotalStaked, s.TotalIssuance, 0)
	return &types.ChainStakingMetadata{
		Chain:                            a.params.Chain,
		Type:                             types.StakingTypeDelegator,
		Era:                              s.Round,
		Decimals:                         a.params.Decimals,
		MinStake:                         a.minStake(s.MinDelegation),
		MaxValidatorPerNominator:         s.MaxDelegationsPerDelegator,
		MaxWithdrawalRequestPerValidator: 1,
		AllowCancelUnstaking:             true,
		UnstakingDelayEras:               a.params.UnbondingDelayEras,
		UnstakingPeriod:                  a.unstakingPeriod(),
		Inflation:                        inflation,
		ExpectedReturn:                   expected,
	}, nil
}

// collatorMinStake is the amount a delegation must reach to be counted by
// the collator: its lowest top delegation once the top set is full.
func (a *ParachainAdapter) collatorMinStake(c *snapshot.Collator, chainMin types.Amount) types.Amount {
	if c == nil || !c.TopCapacityFull || c.LowestTopDelegation == nil {
		return chainMin
	}
	return a.amount(c.LowestTopDelegation)
}

func (a *ParachainAdapter) ResolveNominatorPosition(snap snapshot.Snapshot, address string) (*types.NominatorMetadata, error) {
	s, err := a.snapshot(snap)
	if err != nil {
		return nil, err
	}
	if err := s.Malformed.Err(address); err != nil {
		return nil, err
	}
	d := s.Delegators[address]
	if d == nil {
		return a.assemble(types.StakingTypeDelegator, address, nil, nil), nil
	}

	chainMin := a.minStake(s.MinDelegation)
	nominations := make([]types.NominationInfo, 0, len(d.Delegations))
	delegated := make(map[string]types.Amount, len(d.Delegations))
	for _, del := range d.Delegations {
		collator := s.Collator(del.Collator)
		delegated[del.Collator] = a.amount(del.Amount)
		n := a.nomination(del.Collator, s.Identities[del.Collator], delegated[del.Collator], a.collatorMinStake(collator, chainMin))
		if collator == nil {
			log.WithFields(logrus.Fields{"chain": a.params.Chain, "collator": del.Collator}).Debug("Collator record missing")
		}
		nominations = append(nominations, n)
	}

	reqs := make([]unbonding.Request, 0, len(d.Requests))
	for _, r := range d.Requests {
		amount := a.amount(r.Amount)
		// A revoke withdraws the whole delegation.
		if full, ok := delegated[r.Collator]; ok && r.Action == snapshot.ActionRevoke {
			amount = full
		}
		reqs = append(reqs, unbonding.Request{
			Chain:            a.params.Chain,
			ValidatorAddress: r.Collator,
			Amount:           amount,
			WhenExecutable:   r.WhenExecutable,
		})
	}
	unstakings := a.scheduler.ResolveAll(unbonding.Earliest(reqs), s.Round, a.params.EraLength)
	markUnstaking(nominations, unstakings)

	return a.assemble(types.StakingTypeDelegator, address, nominations, unstakings), nil
}

func (a *ParachainAdapter) DirectoryRequest(snap snapshot.Snapshot, meta *types.ChainStakingMetadata) (directory.Request, error) {
	s, err := a.snapshot(snap)
	if err != nil {
		return directory.Request{}, err
	}
	chainMin := a.minStake(s.MinDelegation)
	commission := types.PerbillToPercent(s.CollatorCommission)

	seeds := make([]directory.Seed, 0, len(s.Collators))
	for i := range s.Collators {
		c := &s.Collators[i]
		seeds = append(seeds, directory.Seed{
			Address:        c.Address,
			TotalStake:     a.amount(c.TotalCounted),
			OwnStake:       a.amount(c.Bond),
			NominatorCount: c.DelegationCount,
			MinBond:        a.collatorMinStake(c, chainMin),
			Commission:     &commission,
			Blocked:        c.Status != snapshot.CollatorActive,
		})
	}

	return directory.Request{
		Chain:                  a.params.Chain,
		Decimals:               a.params.Decimals,
		MaxNominatorsPerTarget: a.crowdCap(s.MaxTopDelegationsPerCandidate),
		Seeds:                  seeds,
		Estimate:               chainReturnEstimator(meta),
	}, nil
}

// chainReturnEstimator gives every candidate the chain expected return.
func chainReturnEstimator(meta *types.ChainStakingMetadata) directory.ReturnEstimator {
	return func(directory.Seed, decimal.Decimal) *decimal.Decimal {
		if meta == nil || meta.ExpectedReturn == nil {
			return nil
		}
		r := *meta.ExpectedReturn
		return &r
	}
}

package adapter

import (
	"github.com/safwentrabelsi/staking-aggregator/directory"
	"github.com/safwentrabelsi/staking-aggregator/snapshot"
	"github.com/safwentrabelsi/staking-aggregator/types"
	"github.com/safwentrabelsi/staking-aggregator/unbonding"
	"github.com/shopspring/decimal"
)

// DappAdapter resolves contract staking, where the stake target is a dapp
// contract and the stake in effect is the last entry of its era history.
type DappAdapter struct {
	base
}

func (a *DappAdapter) snapshot(snap snapshot.Snapshot) (*snapshot.DappSnapshot, error) {
	s, ok := snap.(*snapshot.DappSnapshot)
	if !ok || s == nil {
		return nil, a.mismatch(snap)
	}
	return s, nil
}

func (a *DappAdapter) ResolveChainMetadata(snap snapshot.Snapshot) (*types.ChainStakingMetadata, error) {
	s, err := a.snapshot(snap)
	if err != nil {
		return nil, err
	}
	inflation, expected := a.curveReturns(s.TotalStaked, s.TotalIssuance, 0)
	return &types.ChainStakingMetadata{
		Chain:                            a.params.Chain,
		Type:                             types.StakingTypeContract,
		Era:                              s.CurrentEra,
		Decimals:                         a.params.Decimals,
		MinStake:                         a.minStake(s.MinStakingAmount),
		MaxValidatorPerNominator:         s.MaxDappsPerStaker,
		MaxWithdrawalRequestPerValidator: s.MaxUnlockingChunks,
		AllowCancelUnstaking:             false,
		UnstakingDelayEras:               a.params.UnbondingDelayEras,
		UnstakingPeriod:                  a.unstakingPeriod(),
		Inflation:                        inflation,
		ExpectedReturn:                   expected,
	}, nil
}

func (a *DappAdapter) ResolveNominatorPosition(snap snapshot.Snapshot, address string) (*types.NominatorMetadata, error) {
	s, err := a.snapshot(snap)
	if err != nil {
		return nil, err
	}
	if err := s.Malformed.Err(address); err != nil {
		return nil, err
	}
	st := s.Stakers[address]
	if st == nil {
		return a.assemble(types.StakingTypeContract, address, nil, nil), nil
	}

	reqs := make([]unbonding.Request, 0, len(st.Unlocking))
	unlockingOn := make(map[string]bool, len(st.Unlocking))
	for _, c := range st.Unlocking {
		reqs = append(reqs, unbonding.Request{
			Chain:            a.params.Chain,
			ValidatorAddress: c.Contract,
			Amount:           a.amount(c.Amount),
			WhenExecutable:   c.UnlockEra,
		})
		unlockingOn[c.Contract] = true
	}
	unstakings := a.scheduler.ResolveAll(unbonding.Earliest(reqs), s.CurrentEra, a.params.EraLength)

	names := dappNames(s)
	minStake := a.minStake(s.MinStakingAmount)
	nominations := make([]types.NominationInfo, 0, len(st.Stakes))
	for _, cs := range st.Stakes {
		current := cs.Current()
		if current.Sign() == 0 && !unlockingOn[cs.Contract] {
			continue
		}
		nominations = append(nominations, a.nomination(cs.Contract, names[cs.Contract], a.amount(current), minStake))
	}
	markUnstaking(nominations, unstakings)

	return a.assemble(types.StakingTypeContract, address, nominations, unstakings), nil
}

func (a *DappAdapter) DirectoryRequest(snap snapshot.Snapshot, meta *types.ChainStakingMetadata) (directory.Request, error) {
	s, err := a.snapshot(snap)
	if err != nil {
		return directory.Request{}, err
	}
	minStake := a.minStake(s.MinStakingAmount)
	commission := decimal.Zero

	seeds := make([]directory.Seed, 0, len(s.Dapps))
	for _, d := range s.Dapps {
		seeds = append(seeds, directory.Seed{
			Address:        d.Address,
			TotalStake:     a.amount(d.TotalStake),
			OwnStake:       types.ZeroAmount(a.params.Decimals),
			NominatorCount: d.NumberOfStakers,
			MinBond:        minStake,
			Commission:     &commission,
		})
	}

	return directory.Request{
		Chain:                  a.params.Chain,
		Decimals:               a.params.Decimals,
		MaxNominatorsPerTarget: a.crowdCap(s.MaxNumberOfStakersPerContract),
		Seeds:                  seeds,
		Estimate:               chainReturnEstimator(meta),
	}, nil
}

// dappNames prefers the registered dapp name over the on-chain identity.
func dappNames(s *snapshot.DappSnapshot) map[string]string {
	names := make(map[string]string, len(s.Dapps)+len(s.Identities))
	for address, name := range s.Identities {
		names[address] = name
	}
	for _, d := range s.Dapps {
		if d.Name != "" {
			names[d.Address] = d.Name
		}
	}
	return names
}

// Package adapter turns per-family snapshots into the unified staking model.
// Each chain family gets one Adapter; the Registry maps chain names to them.
package adapter

import (
	"fmt"
	"math/big"
	"time"

	"github.com/safwentrabelsi/staking-aggregator/config"
	"github.com/safwentrabelsi/staking-aggregator/directory"
	"github.com/safwentrabelsi/staking-aggregator/reward"
	"github.com/safwentrabelsi/staking-aggregator/snapshot"
	"github.com/safwentrabelsi/staking-aggregator/status"
	"github.com/safwentrabelsi/staking-aggregator/types"
	"github.com/safwentrabelsi/staking-aggregator/unbonding"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "adapter")

type Adapter interface {
	Params() Params
	ResolveChainMetadata(snap snapshot.Snapshot) (*types.ChainStakingMetadata, error)
	ResolveNominatorPosition(snap snapshot.Snapshot, address string) (*types.NominatorMetadata, error)
	// DirectoryRequest lists the stake targets of the snapshot. meta must be
	// the result of ResolveChainMetadata on the same snapshot.
	DirectoryRequest(snap snapshot.Snapshot, meta *types.ChainStakingMetadata) (directory.Request, error)
}

// Params are the family constants of one chain, resolved once from configuration.
type Params struct {
	Chain                  string
	Family                 types.Family
	Decimals               uint8
	EraLength              time.Duration
	UnbondingDelayEras     uint32
	UnbondingOffset        uint32
	MinStakeOverride       *big.Int
	TreasuryCut            bool
	MaxNominatorsPerTarget uint32
	Inflation              types.InflationCurveParams
	AprURL                 string
	Accounts               []string
}

func ParamsFromConfig(c *config.ChainConfig) Params {
	return Params{
		Chain:                  c.GetName(),
		Family:                 c.GetFamily(),
		Decimals:               c.GetDecimals(),
		EraLength:              c.GetEraLength(),
		UnbondingDelayEras:     c.GetUnbondingDelayEras(),
		UnbondingOffset:        c.GetUnbondingOffset(),
		MinStakeOverride:       c.GetMinStakeOverride(),
		TreasuryCut:            c.GetTreasuryCut(),
		MaxNominatorsPerTarget: c.GetMaxNominatorsPerTarget(),
		Inflation:              c.GetInflation(),
		AprURL:                 c.GetAprURL(),
		Accounts:               c.GetAccounts(),
	}
}

// New returns the adapter of the family named in p.
func New(p Params) (Adapter, error) {
	switch p.Family {
	case types.FamilyRelay:
		return &RelayAdapter{base: newBase(p)}, nil
	case types.FamilyParachain:
		return &ParachainAdapter{base: newBase(p)}, nil
	case types.FamilyContract:
		return &DappAdapter{base: newBase(p)}, nil
	default:
		return nil, fmt.Errorf("chain %s: unsupported family %q", p.Chain, p.Family)
	}
}

// Registry is the immutable chain name to adapter lookup.
type Registry struct {
	adapters map[string]Adapter
	order    []string
}

func NewRegistry(params ...Params) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter, len(params))}
	for _, p := range params {
		if _, ok := r.adapters[p.Chain]; ok {
			return nil, fmt.Errorf("chain %s configured twice", p.Chain)
		}
		a, err := New(p)
		if err != nil {
			return nil, err
		}
		r.adapters[p.Chain] = a
		r.order = append(r.order, p.Chain)
	}
	return r, nil
}

// NewRegistryFromConfig builds the registry from the configured chain list.
func NewRegistryFromConfig(chains []*config.ChainConfig) (*Registry, error) {
	params := make([]Params, 0, len(chains))
	for _, c := range chains {
		params = append(params, ParamsFromConfig(c))
	}
	return NewRegistry(params...)
}

func (r *Registry) Get(chain string) (Adapter, error) {
	a, ok := r.adapters[chain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownChain, chain)
	}
	return a, nil
}

// Chains returns the chain names in configuration order.
func (r *Registry) Chains() []string {
	return append([]string(nil), r.order...)
}

// base holds what every family shares.
type base struct {
	params    Params
	scheduler unbonding.Scheduler
}

func newBase(p Params) base {
	return base{params: p, scheduler: unbonding.NewScheduler(p.UnbondingOffset)}
}

func (b *base) Params() Params {
	return b.params
}

func (b *base) amount(v *big.Int) types.Amount {
	return types.NewAmount(v, b.params.Decimals)
}

// minStake returns the configured override, or the chain value.
func (b *base) minStake(chainValue *big.Int) types.Amount {
	if b.params.MinStakeOverride != nil {
		return b.amount(b.params.MinStakeOverride)
	}
	return b.amount(chainValue)
}

func (b *base) unstakingPeriod() types.Duration {
	return types.Duration(time.Duration(b.params.UnbondingDelayEras) * b.params.EraLength)
}

// crowdCap returns the configured per-target cap, or the chain one.
func (b *base) crowdCap(chainValue uint32) uint32 {
	if b.params.MaxNominatorsPerTarget > 0 {
		return b.params.MaxNominatorsPerTarget
	}
	return chainValue
}

// curveReturns evaluates the configured inflation curve. Both results are nil
// when no curve is configured or the issuance is unknown, leaving the
// expected return to the external lookup.
func (b *base) curveReturns(totalStake, totalIssuance *big.Int, numAuctions uint32) (*decimal.Decimal, *decimal.Decimal) {
	if b.params.Inflation.IsZero() || totalIssuance == nil {
		return nil, nil
	}
	inflation := reward.ComputeInflation(totalStake, b.amount(totalIssuance), numAuctions, b.params.Inflation)
	stakedReturn := reward.ComputeStakedReturn(inflation, totalStake, totalIssuance, b.params.TreasuryCut)
	return &inflation, &stakedReturn
}

func (b *base) mismatch(snap snapshot.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: chain %s: nil snapshot", types.ErrSnapshotFamilyMismatch, b.params.Chain)
	}
	return fmt.Errorf("%w: chain %s is %s, got %s snapshot", types.ErrSnapshotFamilyMismatch, b.params.Chain, b.params.Family, snap.Family())
}

// assemble builds the account aggregate from already resolved nominations
// and unstakings.
func (b *base) assemble(typ types.StakingType, address string, nominations []types.NominationInfo, unstakings []types.UnstakingInfo) *types.NominatorMetadata {
	if nominations == nil {
		nominations = []types.NominationInfo{}
	}
	if unstakings == nil {
		unstakings = []types.UnstakingInfo{}
	}
	stakes := make([]types.Amount, 0, len(nominations))
	for _, n := range nominations {
		stakes = append(stakes, n.ActiveStake)
	}
	activeStake := types.SumAmounts(b.params.Decimals, stakes...)

	st := status.Resolve(activeStake, nominations)
	if st == types.StatusNotStaking && len(unstakings) > 0 {
		st = types.StatusNotEarning
	}
	redeemable, next := unbonding.Summarize(unstakings, b.params.Decimals)

	return &types.NominatorMetadata{
		Chain:          b.params.Chain,
		Address:        address,
		Type:           typ,
		Status:         st,
		ActiveStake:    activeStake,
		Nominations:    nominations,
		Unstakings:     unstakings,
		Redeemable:     redeemable,
		NextWithdrawal: next,
	}
}

func (b *base) nomination(target, identity string, activeStake, minStake types.Amount) types.NominationInfo {
	return types.NominationInfo{
		Chain:             b.params.Chain,
		ValidatorAddress:  target,
		ValidatorIdentity: identity,
		ActiveStake:       activeStake,
		ValidatorMinStake: minStake,
		Status:            status.Nomination(activeStake, minStake),
	}
}

// markUnstaking flags the nominations that have a pending withdrawal.
func markUnstaking(nominations []types.NominationInfo, unstakings []types.UnstakingInfo) {
	pending := make(map[string]bool, len(unstakings))
	for _, u := range unstakings {
		pending[u.ValidatorAddress] = true
	}
	for i := range nominations {
		nominations[i].HasUnstaking = pending[nominations[i].ValidatorAddress]
	}
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func maxBig(a, b *big.Int) *big.Int {
	a, b = bigOrZero(a), bigOrZero(b)
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

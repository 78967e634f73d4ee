package snapshot

import (
	"math/big"
	"strconv"

	"github.com/pkg/errors"
	"github.com/safwentrabelsi/staking-aggregator/types"
)

// RawEnvelope is the wire form of a snapshot as served by the indexer. All
// numeric fields are decimal strings and are validated by Parse.
type RawEnvelope struct {
	Family    types.Family          `json:"family"`
	Relay     *RawRelaySnapshot     `json:"relay,omitempty"`
	Parachain *RawParachainSnapshot `json:"parachain,omitempty"`
	Dapp      *RawDappSnapshot      `json:"dapp,omitempty"`
}

type RawRelaySnapshot struct {
	Chain                            string                      `json:"chain"`
	CurrentEra                       string                      `json:"currentEra"`
	TotalIssuance                    string                      `json:"totalIssuance"`
	TotalEraStake                    string                      `json:"totalEraStake"`
	AuctionCounter                   string                      `json:"auctionCounter"`
	MinimumActiveStake               string                      `json:"minimumActiveStake"`
	MinNominatorBond                 string                      `json:"minNominatorBond"`
	MaxNominations                   string                      `json:"maxNominations"`
	MaxUnlockingChunks               string                      `json:"maxUnlockingChunks"`
	MaxNominatorRewardedPerValidator string                      `json:"maxNominatorRewardedPerValidator"`
	MaxExposurePageSize              string                      `json:"maxExposurePageSize"`
	Validators                       []RawRelayValidator         `json:"validators"`
	Accounts                         map[string]*RawRelayAccount `json:"accounts"`
	Identities                       map[string]string           `json:"identities"`
}

type RawRelayValidator struct {
	Address string                  `json:"address"`
	Total   string                  `json:"total"`
	Own     string                  `json:"own"`
	Others  []RawIndividualExposure `json:"others"`
}

type RawIndividualExposure struct {
	Who   string `json:"who"`
	Value string `json:"value"`
}

type RawRelayAccount struct {
	Unlocking []RawUnlockChunk `json:"unlocking"`
	Targets   []string         `json:"targets"`
}

type RawUnlockChunk struct {
	Value string `json:"value"`
	Era   string `json:"era"`
}

type RawParachainSnapshot struct {
	Chain                         string                   `json:"chain"`
	Round                         string                   `json:"round"`
	TotalIssuance                 string                   `json:"totalIssuance"`
	TotalStaked                   string                   `json:"totalStaked"`
	MinDelegation                 string                   `json:"minDelegation"`
	MaxDelegationsPerDelegator    string                   `json:"maxDelegationsPerDelegator"`
	MaxTopDelegationsPerCandidate string                   `json:"maxTopDelegationsPerCandidate"`
	CollatorCommission            string                   `json:"collatorCommission"`
	Collators                     []RawCollator            `json:"collators"`
	Delegators                    map[string]*RawDelegator `json:"delegators"`
	Identities                    map[string]string        `json:"identities"`
}

type RawCollator struct {
	Address             string `json:"address"`
	Bond                string `json:"bond"`
	TotalCounted        string `json:"totalCounted"`
	DelegationCount     string `json:"delegationCount"`
	LowestTopDelegation string `json:"lowestTopDelegationAmount"`
	TopCapacity         string `json:"topCapacity"`
	Status              string `json:"status"`
}

type RawDelegator struct {
	Delegations []RawDelegation       `json:"delegations"`
	Requests    []RawScheduledRequest `json:"requests"`
}

type RawDelegation struct {
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
}

type RawScheduledRequest struct {
	Collator       string `json:"collator"`
	WhenExecutable string `json:"whenExecutable"`
	Amount         string `json:"amount"`
	Action         string `json:"action"`
}

type RawDappSnapshot struct {
	Chain                         string                    `json:"chain"`
	CurrentEra                    string                    `json:"currentEra"`
	TotalIssuance                 string                    `json:"totalIssuance"`
	TotalStaked                   string                    `json:"totalStaked"`
	MinStakingAmount              string                    `json:"minStakingAmount"`
	MaxNumberOfStakersPerContract string                    `json:"maxNumberOfStakersPerContract"`
	MaxUnlockingChunks            string                    `json:"maxUnlockingChunks"`
	MaxDappsPerStaker             string                    `json:"maxDappsPerStaker"`
	Dapps                         []RawDapp                 `json:"dapps"`
	Stakers                       map[string]*RawDappStaker `json:"stakers"`
	Identities                    map[string]string         `json:"identities"`
}

type RawDapp struct {
	Address         string `json:"address"`
	Name            string `json:"name"`
	TotalStake      string `json:"totalStake"`
	NumberOfStakers string `json:"numberOfStakers"`
}

type RawDappStaker struct {
	Stakes    []RawContractStake   `json:"stakes"`
	Unlocking []RawDappUnlockChunk `json:"unlocking"`
}

type RawContractStake struct {
	Contract string        `json:"contract"`
	History  []RawEraStake `json:"history"`
}

type RawEraStake struct {
	Era    string `json:"era"`
	Staked string `json:"staked"`
}

type RawDappUnlockChunk struct {
	Contract  string `json:"contract"`
	Amount    string `json:"amount"`
	UnlockEra string `json:"unlockEra"`
}

// Parse validates the envelope and returns the typed snapshot of its family.
func (e *RawEnvelope) Parse() (Snapshot, error) {
	switch e.Family {
	case types.FamilyRelay:
		if e.Relay == nil {
			return nil, errors.Wrap(types.ErrMalformedSnapshot, "relay body missing")
		}
		return e.Relay.Parse()
	case types.FamilyParachain:
		if e.Parachain == nil {
			return nil, errors.Wrap(types.ErrMalformedSnapshot, "parachain body missing")
		}
		return e.Parachain.Parse()
	case types.FamilyContract:
		if e.Dapp == nil {
			return nil, errors.Wrap(types.ErrMalformedSnapshot, "dapp body missing")
		}
		return e.Dapp.Parse()
	default:
		return nil, errors.Wrapf(types.ErrMalformedSnapshot, "unknown family %q", e.Family)
	}
}

// fieldParser accumulates the first parse error so that a block of fields
// can be converted without checking every call.
type fieldParser struct {
	err error
}

func (p *fieldParser) amount(field, s string) *big.Int {
	v, err := parseAmount(field, s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return v
}

// optionalAmount returns nil for an empty string.
func (p *fieldParser) optionalAmount(field, s string) *big.Int {
	if s == "" {
		return nil
	}
	return p.amount(field, s)
}

func (p *fieldParser) uint32(field, s string) uint32 {
	v, err := parseUint32(field, s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return v
}

// optionalUint32 returns 0 for an empty string.
func (p *fieldParser) optionalUint32(field, s string) uint32 {
	if s == "" {
		return 0
	}
	return p.uint32(field, s)
}

func parseAmount(field, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, errors.Wrapf(types.ErrMalformedSnapshot, "%s: invalid amount %q", field, s)
	}
	return v, nil
}

func parseUint32(field, s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(types.ErrMalformedSnapshot, "%s: invalid counter %q", field, s)
	}
	return uint32(v), nil
}

func (r *RawRelaySnapshot) Parse() (*RelaySnapshot, error) {
	var p fieldParser
	s := &RelaySnapshot{
		ChainName:                        r.Chain,
		CurrentEra:                       p.uint32("currentEra", r.CurrentEra),
		TotalIssuance:                    p.amount("totalIssuance", r.TotalIssuance),
		TotalEraStake:                    p.amount("totalEraStake", r.TotalEraStake),
		AuctionCounter:                   p.optionalUint32("auctionCounter", r.AuctionCounter),
		MinimumActiveStake:               p.optionalAmount("minimumActiveStake", r.MinimumActiveStake),
		MinNominatorBond:                 p.optionalAmount("minNominatorBond", r.MinNominatorBond),
		MaxNominations:                   p.optionalUint32("maxNominations", r.MaxNominations),
		MaxUnlockingChunks:               p.optionalUint32("maxUnlockingChunks", r.MaxUnlockingChunks),
		MaxNominatorRewardedPerValidator: p.optionalUint32("maxNominatorRewardedPerValidator", r.MaxNominatorRewardedPerValidator),
		MaxExposurePageSize:              p.optionalUint32("maxExposurePageSize", r.MaxExposurePageSize),
		Identities:                       r.Identities,
		Accounts:                         make(map[string]*RelayAccount, len(r.Accounts)),
		Malformed:                        AccountErrors{},
	}
	for _, rv := range r.Validators {
		v := RelayValidator{
			Address: rv.Address,
			Total:   p.amount("validators.total", rv.Total),
			Own:     p.amount("validators.own", rv.Own),
		}
		for _, o := range rv.Others {
			v.Others = append(v.Others, IndividualExposure{Who: o.Who, Value: p.amount("validators.others.value", o.Value)})
		}
		s.Validators = append(s.Validators, v)
	}
	if p.err != nil {
		return nil, errors.WithMessagef(p.err, "chain %s", r.Chain)
	}

	for address, ra := range r.Accounts {
		if ra == nil {
			continue
		}
		acc, err := ra.parse()
		if err != nil {
			s.Malformed[address] = err
			continue
		}
		s.Accounts[address] = acc
	}
	return s, nil
}

func (r *RawRelayAccount) parse() (*RelayAccount, error) {
	var p fieldParser
	acc := &RelayAccount{Targets: r.Targets}
	for _, c := range r.Unlocking {
		acc.Unlocking = append(acc.Unlocking, UnlockChunk{Value: p.amount("unlocking.value", c.Value), Era: p.uint32("unlocking.era", c.Era)})
	}
	return acc, p.err
}

func (r *RawParachainSnapshot) Parse() (*ParachainSnapshot, error) {
	var p fieldParser
	s := &ParachainSnapshot{
		ChainName:                     r.Chain,
		Round:                         p.uint32("round", r.Round),
		TotalIssuance:                 p.amount("totalIssuance", r.TotalIssuance),
		TotalStaked:                   p.amount("totalStaked", r.TotalStaked),
		MinDelegation:                 p.amount("minDelegation", r.MinDelegation),
		MaxDelegationsPerDelegator:    p.optionalUint32("maxDelegationsPerDelegator", r.MaxDelegationsPerDelegator),
		MaxTopDelegationsPerCandidate: p.optionalUint32("maxTopDelegationsPerCandidate", r.MaxTopDelegationsPerCandidate),
		CollatorCommission:            p.optionalUint32("collatorCommission", r.CollatorCommission),
		Identities:                    r.Identities,
		Delegators:                    make(map[string]*Delegator, len(r.Delegators)),
		Malformed:                     AccountErrors{},
	}
	for _, rc := range r.Collators {
		status := CollatorStatus(rc.Status)
		if status == "" {
			status = CollatorActive
		}
		s.Collators = append(s.Collators, Collator{
			Address:             rc.Address,
			Bond:                p.amount("collators.bond", rc.Bond),
			TotalCounted:        p.amount("collators.totalCounted", rc.TotalCounted),
			DelegationCount:     p.optionalUint32("collators.delegationCount", rc.DelegationCount),
			LowestTopDelegation: p.optionalAmount("collators.lowestTopDelegationAmount", rc.LowestTopDelegation),
			TopCapacityFull:     rc.TopCapacity == "Full",
			Status:              status,
		})
	}
	if p.err != nil {
		return nil, errors.WithMessagef(p.err, "chain %s", r.Chain)
	}

	for address, rd := range r.Delegators {
		if rd == nil {
			continue
		}
		d, err := rd.parse()
		if err != nil {
			s.Malformed[address] = err
			continue
		}
		s.Delegators[address] = d
	}
	return s, nil
}

func (r *RawDelegator) parse() (*Delegator, error) {
	var p fieldParser
	d := &Delegator{}
	for _, rd := range r.Delegations {
		d.Delegations = append(d.Delegations, Delegation{Collator: rd.Owner, Amount: p.amount("delegations.amount", rd.Amount)})
	}
	for _, rr := range r.Requests {
		req := ScheduledRequest{
			Collator:       rr.Collator,
			WhenExecutable: p.uint32("requests.whenExecutable", rr.WhenExecutable),
			Action:         RequestAction(rr.Action),
		}
		switch req.Action {
		case "", ActionDecrease:
			req.Action = ActionDecrease
			req.Amount = p.amount("requests.amount", rr.Amount)
		case ActionRevoke:
			// the amount of a revoke is the delegation itself
			req.Amount = p.optionalAmount("requests.amount", rr.Amount)
		default:
			if p.err == nil {
				p.err = errors.Wrapf(types.ErrMalformedSnapshot, "requests.action: unknown action %q", rr.Action)
			}
		}
		d.Requests = append(d.Requests, req)
	}
	return d, p.err
}

func (r *RawDappSnapshot) Parse() (*DappSnapshot, error) {
	var p fieldParser
	s := &DappSnapshot{
		ChainName:                     r.Chain,
		CurrentEra:                    p.uint32("currentEra", r.CurrentEra),
		TotalIssuance:                 p.amount("totalIssuance", r.TotalIssuance),
		TotalStaked:                   p.amount("totalStaked", r.TotalStaked),
		MinStakingAmount:              p.amount("minStakingAmount", r.MinStakingAmount),
		MaxNumberOfStakersPerContract: p.optionalUint32("maxNumberOfStakersPerContract", r.MaxNumberOfStakersPerContract),
		MaxUnlockingChunks:            p.optionalUint32("maxUnlockingChunks", r.MaxUnlockingChunks),
		MaxDappsPerStaker:             p.optionalUint32("maxDappsPerStaker", r.MaxDappsPerStaker),
		Identities:                    r.Identities,
		Stakers:                       make(map[string]*DappStaker, len(r.Stakers)),
		Malformed:                     AccountErrors{},
	}
	for _, rd := range r.Dapps {
		s.Dapps = append(s.Dapps, Dapp{
			Address:         rd.Address,
			Name:            rd.Name,
			TotalStake:      p.amount("dapps.totalStake", rd.TotalStake),
			NumberOfStakers: p.optionalUint32("dapps.numberOfStakers", rd.NumberOfStakers),
		})
	}
	if p.err != nil {
		return nil, errors.WithMessagef(p.err, "chain %s", r.Chain)
	}

	for address, rs := range r.Stakers {
		if rs == nil {
			continue
		}
		st, err := rs.parse()
		if err != nil {
			s.Malformed[address] = err
			continue
		}
		s.Stakers[address] = st
	}
	return s, nil
}

func (r *RawDappStaker) parse() (*DappStaker, error) {
	var p fieldParser
	st := &DappStaker{}
	for _, rc := range r.Stakes {
		cs := ContractStake{Contract: rc.Contract}
		for _, h := range rc.History {
			cs.History = append(cs.History, EraStake{Era: p.uint32("stakes.history.era", h.Era), Staked: p.amount("stakes.history.staked", h.Staked)})
		}
		st.Stakes = append(st.Stakes, cs)
	}
	for _, rc := range r.Unlocking {
		st.Unlocking = append(st.Unlocking, DappUnlockChunk{
			Contract:  rc.Contract,
			Amount:    p.amount("unlocking.amount", rc.Amount),
			UnlockEra: p.uint32("unlocking.unlockEra", rc.UnlockEra),
		})
	}
	return st, p.err
}

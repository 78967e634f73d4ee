// Package snapshot holds the strongly-typed, per-family views of on-chain
// staking state consumed by the adapters.
package snapshot

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/safwentrabelsi/staking-aggregator/types"
)

// Snapshot is a point-in-time view of one chain. Concrete values are
// *RelaySnapshot, *ParachainSnapshot and *DappSnapshot.
type Snapshot interface {
	Chain() string
	Family() types.Family
}

// Reader supplies snapshots for a chain, including the positions of the given accounts.
type Reader interface {
	ReadSnapshot(ctx context.Context, chain string, accounts []string) (Snapshot, error)
}

// DetailFetcher looks up per-candidate details that are not part of the snapshot.
type DetailFetcher interface {
	FetchCandidateDetail(ctx context.Context, chain, address string) (*CandidateDetail, error)
}

// Source is a Reader that can also fetch candidate details.
type Source interface {
	Reader
	DetailFetcher
}

type CandidateDetail struct {
	// Commission in Perbill, nil when unknown.
	Commission *uint32
	Blocked    bool
	Identity   *Identity
}

type Identity struct {
	Display    string
	Judgements int
}

// AccountErrors records accounts whose on-chain data could not be parsed.
type AccountErrors map[string]error

func (a AccountErrors) Err(address string) error {
	if err, ok := a[address]; ok {
		return fmt.Errorf("account %s: %w", address, err)
	}
	return nil
}

type RelaySnapshot struct {
	ChainName                        string
	CurrentEra                       uint32
	TotalIssuance                    *big.Int
	TotalEraStake                    *big.Int
	AuctionCounter                   uint32
	MinimumActiveStake               *big.Int
	MinNominatorBond                 *big.Int
	MaxNominations                   uint32
	MaxUnlockingChunks               uint32
	MaxNominatorRewardedPerValidator uint32
	MaxExposurePageSize              uint32
	Validators                       []RelayValidator
	Accounts                         map[string]*RelayAccount
	Identities                       map[string]string
	Malformed                        AccountErrors

	indexOnce sync.Once
	index     map[string]*RelayValidator
}

type RelayValidator struct {
	Address string
	Total   *big.Int
	Own     *big.Int
	Others  []IndividualExposure
}

type IndividualExposure struct {
	Who   string
	Value *big.Int
}

// RelayAccount is the single bonded ledger of a nominator.
type RelayAccount struct {
	Unlocking []UnlockChunk
	Targets   []string
}

type UnlockChunk struct {
	Value *big.Int
	Era   uint32
}

func (s *RelaySnapshot) Chain() string        { return s.ChainName }
func (s *RelaySnapshot) Family() types.Family { return types.FamilyRelay }

// Validator returns the exposure of an elected validator, or nil.
func (s *RelaySnapshot) Validator(address string) *RelayValidator {
	s.indexOnce.Do(func() {
		s.index = make(map[string]*RelayValidator, len(s.Validators))
		for i := range s.Validators {
			s.index[s.Validators[i].Address] = &s.Validators[i]
		}
	})
	return s.index[address]
}

// ExposureOf returns the stake address backs validator with in the current era.
func (v *RelayValidator) ExposureOf(address string) *big.Int {
	for _, o := range v.Others {
		if o.Who == address {
			return o.Value
		}
	}
	return nil
}

type CollatorStatus string

const (
	CollatorActive  CollatorStatus = "Active"
	CollatorIdle    CollatorStatus = "Idle"
	CollatorLeaving CollatorStatus = "Leaving"
)

type RequestAction string

const (
	ActionRevoke   RequestAction = "revoke"
	ActionDecrease RequestAction = "decrease"
)

type ParachainSnapshot struct {
	ChainName                     string
	Round                         uint32
	TotalIssuance                 *big.Int
	TotalStaked                   *big.Int
	MinDelegation                 *big.Int
	MaxDelegationsPerDelegator    uint32
	MaxTopDelegationsPerCandidate uint32
	CollatorCommission            uint32
	Collators                     []Collator
	Delegators                    map[string]*Delegator
	Identities                    map[string]string
	Malformed                     AccountErrors

	indexOnce sync.Once
	index     map[string]*Collator
}

type Collator struct {
	Address             string
	Bond                *big.Int
	TotalCounted        *big.Int
	DelegationCount     uint32
	LowestTopDelegation *big.Int
	TopCapacityFull     bool
	Status              CollatorStatus
}

type Delegator struct {
	Delegations []Delegation
	Requests    []ScheduledRequest
}

type Delegation struct {
	Collator string
	Amount   *big.Int
}

type ScheduledRequest struct {
	Collator       string
	WhenExecutable uint32
	Amount         *big.Int
	Action         RequestAction
}

func (s *ParachainSnapshot) Chain() string        { return s.ChainName }
func (s *ParachainSnapshot) Family() types.Family { return types.FamilyParachain }

func (s *ParachainSnapshot) Collator(address string) *Collator {
	s.indexOnce.Do(func() {
		s.index = make(map[string]*Collator, len(s.Collators))
		for i := range s.Collators {
			s.index[s.Collators[i].Address] = &s.Collators[i]
		}
	})
	return s.index[address]
}

type DappSnapshot struct {
	ChainName                     string
	CurrentEra                    uint32
	TotalIssuance                 *big.Int
	TotalStaked                   *big.Int
	MinStakingAmount              *big.Int
	MaxNumberOfStakersPerContract uint32
	MaxUnlockingChunks            uint32
	MaxDappsPerStaker             uint32
	Dapps                         []Dapp
	Stakers                       map[string]*DappStaker
	Identities                    map[string]string
	Malformed                     AccountErrors
}

type Dapp struct {
	Address         string
	Name            string
	TotalStake      *big.Int
	NumberOfStakers uint32
}

type DappStaker struct {
	Stakes    []ContractStake
	Unlocking []DappUnlockChunk
}

// ContractStake is the per-era stake history of one staker on one contract.
type ContractStake struct {
	Contract string
	History  []EraStake
}

type EraStake struct {
	Era    uint32
	Staked *big.Int
}

// DappUnlockChunk is keyed by contract; Contract is empty for wallet-level chunks.
type DappUnlockChunk struct {
	Contract  string
	Amount    *big.Int
	UnlockEra uint32
}

func (s *DappSnapshot) Chain() string        { return s.ChainName }
func (s *DappSnapshot) Family() types.Family { return types.FamilyContract }

// Current returns the last recorded stake, which is the stake in effect.
func (c ContractStake) Current() *big.Int {
	if len(c.History) == 0 || c.History[len(c.History)-1].Staked == nil {
		return new(big.Int)
	}
	return c.History[len(c.History)-1].Staked
}

package unbonding

import (
	"time"

	"github.com/safwentrabelsi/staking-aggregator/types"
)

// Request is a scheduled withdrawal that becomes executable at a given era or
// round. An empty ValidatorAddress means a wallet-level unbonding chunk.
type Request struct {
	Chain            string
	ValidatorAddress string
	Amount           types.Amount
	WhenExecutable   uint32
}

// Scheduler turns scheduled requests into UnstakingInfo. Offset is added to
// the current era before comparison; chain families disagree on whether an
// unlock era is reached at its start or at its end.
type Scheduler struct {
	offset uint32
}

func NewScheduler(offset uint32) Scheduler {
	return Scheduler{offset: offset}
}

func (s Scheduler) Offset() uint32 {
	return s.offset
}

// RemainingPeriods may be negative when the request is overdue.
func (s Scheduler) RemainingPeriods(whenExecutable, current uint32) int64 {
	return int64(whenExecutable) - (int64(current) + int64(s.offset))
}

func (s Scheduler) Resolve(req Request, current uint32, eraLength time.Duration) types.UnstakingInfo {
	remaining := s.RemainingPeriods(req.WhenExecutable, current)
	info := types.UnstakingInfo{
		Chain:            req.Chain,
		ValidatorAddress: req.ValidatorAddress,
		Claimable:        req.Amount,
		Status:           types.UnstakingStatusClaimable,
	}
	if remaining > 0 {
		info.Status = types.UnstakingStatusUnlocking
		info.WaitingTime = types.Duration(time.Duration(remaining) * eraLength)
	}
	return info
}

func (s Scheduler) ResolveAll(reqs []Request, current uint32, eraLength time.Duration) []types.UnstakingInfo {
	infos := make([]types.UnstakingInfo, 0, len(reqs))
	for _, req := range reqs {
		infos = append(infos, s.Resolve(req, current, eraLength))
	}
	return infos
}

// Earliest keeps only the earliest request per target, in first-seen order.
// Wallet-level requests are never merged.
func Earliest(reqs []Request) []Request {
	out := make([]Request, 0, len(reqs))
	index := make(map[string]int, len(reqs))
	for _, req := range reqs {
		if req.ValidatorAddress == "" {
			out = append(out, req)
			continue
		}
		i, seen := index[req.ValidatorAddress]
		if !seen {
			index[req.ValidatorAddress] = len(out)
			out = append(out, req)
			continue
		}
		if req.WhenExecutable < out[i].WhenExecutable {
			out[i] = req
		}
	}
	return out
}

// Summarize returns the total claimable now and the unlocking entry that
// completes first.
func Summarize(infos []types.UnstakingInfo, decimals uint8) (types.Amount, *types.UnstakingInfo) {
	redeemable := types.ZeroAmount(decimals)
	var next *types.UnstakingInfo
	for i := range infos {
		info := infos[i]
		if info.Status == types.UnstakingStatusClaimable {
			redeemable = redeemable.Add(info.Claimable)
			continue
		}
		if next == nil || info.WaitingTime < next.WaitingTime {
			next = &info
		}
	}
	return redeemable, next
}

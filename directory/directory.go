// Package directory assembles the list of stake targets of a chain.
package directory

import (
	"context"
	"errors"
	"sync"

	"github.com/safwentrabelsi/staking-aggregator/snapshot"
	"github.com/safwentrabelsi/staking-aggregator/types"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var log = logrus.WithField("module", "directory")

const defaultConcurrency = 16

// Seed is what the snapshot already knows about a candidate.
type Seed struct {
	Address        string
	TotalStake     types.Amount
	OwnStake       types.Amount
	NominatorCount uint32
	MinBond        types.Amount
	// Commission in percent, nil when it has to be fetched.
	Commission *decimal.Decimal
	Blocked    bool
}

// ReturnEstimator derives the expected return of a candidate once its
// commission is known.
type ReturnEstimator func(seed Seed, commission decimal.Decimal) *decimal.Decimal

type Request struct {
	Chain                  string
	Decimals               uint8
	MaxNominatorsPerTarget uint32
	Seeds                  []Seed
	Estimate               ReturnEstimator
}

type Builder struct {
	concurrency int
}

func NewBuilder(concurrency int) *Builder {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Builder{concurrency: concurrency}
}

// BuildDirectory fetches details for every seed concurrently and returns the
// candidates in seed order. A failed lookup leaves the candidate without
// identity and unverified; it never fails the directory.
func (b *Builder) BuildDirectory(ctx context.Context, fetcher snapshot.DetailFetcher, req Request) []types.CandidateInfo {
	var (
		mu      sync.Mutex
		details = make(map[string]*snapshot.CandidateDetail, len(req.Seeds))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for _, seed := range req.Seeds {
		address := seed.Address
		g.Go(func() error {
			detail, err := fetcher.FetchCandidateDetail(gctx, req.Chain, address)
			if err != nil {
				entry := log.WithFields(logrus.Fields{"chain": req.Chain, "address": address})
				if errors.Is(err, types.ErrChainDataMissing) {
					entry.Debug("Candidate detail missing")
				} else {
					entry.Warnf("Failed to fetch candidate detail: %v", err)
				}
				return nil
			}
			mu.Lock()
			details[address] = detail
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := make([]types.CandidateInfo, 0, len(req.Seeds))
	for _, seed := range req.Seeds {
		out = append(out, merge(req, seed, details[seed.Address]))
	}
	return out
}

func merge(req Request, seed Seed, detail *snapshot.CandidateDetail) types.CandidateInfo {
	info := types.CandidateInfo{
		Chain:          req.Chain,
		Address:        seed.Address,
		TotalStake:     types.NewAmount(seed.TotalStake.Int(), req.Decimals),
		OwnStake:       types.NewAmount(seed.OwnStake.Int(), req.Decimals),
		OtherStake:     seed.TotalStake.Sub(seed.OwnStake),
		NominatorCount: seed.NominatorCount,
		MinBond:        types.NewAmount(seed.MinBond.Int(), req.Decimals),
		Blocked:        seed.Blocked,
		IsCrowded:      req.MaxNominatorsPerTarget > 0,
	}

	commission := decimal.Zero
	if seed.Commission != nil {
		commission = *seed.Commission
	}
	if detail != nil {
		if detail.Commission != nil && seed.Commission == nil {
			commission = types.PerbillToPercent(*detail.Commission)
		}
		info.Blocked = info.Blocked || detail.Blocked
		if detail.Identity != nil {
			info.Identity = detail.Identity.Display
			info.IsVerified = detail.Identity.Judgements > 0
		}
	}
	info.Commission = commission

	if req.Estimate != nil {
		info.ExpectedReturn = req.Estimate(seed, commission)
	}
	return info
}

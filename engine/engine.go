// Package engine runs one refresh cycle per chain: it reads the snapshot,
// resolves chain metadata and tracked positions, then builds the candidate
// directory.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/safwentrabelsi/staking-aggregator/adapter"
	"github.com/safwentrabelsi/staking-aggregator/directory"
	"github.com/safwentrabelsi/staking-aggregator/metrics"
	"github.com/safwentrabelsi/staking-aggregator/snapshot"
	"github.com/safwentrabelsi/staking-aggregator/types"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var log = logrus.WithField("module", "engine")

const defaultConcurrency = 16

// AprLookup resolves the externally published return of a chain. A nil
// result means unknown.
type AprLookup interface {
	Lookup(ctx context.Context, chain, url string) *decimal.Decimal
}

type Engine struct {
	registry    *adapter.Registry
	sources     map[string]snapshot.Source
	builder     *directory.Builder
	apr         AprLookup
	concurrency int
}

// New checks that every registered chain has a source. apr may be nil.
func New(registry *adapter.Registry, sources map[string]snapshot.Source, apr AprLookup, concurrency int) (*Engine, error) {
	for _, chain := range registry.Chains() {
		if _, ok := sources[chain]; !ok {
			return nil, fmt.Errorf("chain %s has no snapshot source", chain)
		}
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Engine{
		registry:    registry,
		sources:     sources,
		builder:     directory.NewBuilder(concurrency),
		apr:         apr,
		concurrency: concurrency,
	}, nil
}

func (e *Engine) Chains() []string {
	return e.registry.Chains()
}

// Refresh produces the full result of one chain. Only chain-level failures
// are returned; a failed account is reported in its AccountResult.
func (e *Engine) Refresh(ctx context.Context, chain string) (*types.RefreshResult, error) {
	a, err := e.registry.Get(chain)
	if err != nil {
		return nil, err
	}
	source := e.sources[chain]
	params := a.Params()

	snap, err := source.ReadSnapshot(ctx, chain, params.Accounts)
	if err != nil {
		return nil, fmt.Errorf("reading %s snapshot: %w", chain, err)
	}
	meta, err := a.ResolveChainMetadata(snap)
	if err != nil {
		return nil, fmt.Errorf("resolving %s metadata: %w", chain, err)
	}

	result := &types.RefreshResult{
		Chain:    chain,
		Metadata: meta,
		Accounts: make([]types.AccountResult, len(params.Accounts)),
	}

	var published *decimal.Decimal
	var g errgroup.Group
	if meta.ExpectedReturn == nil && e.apr != nil {
		g.Go(func() error {
			published = e.apr.Lookup(ctx, chain, params.AprURL)
			return nil
		})
	}
	g.Go(func() error {
		e.resolveAccounts(ctx, a, snap, params.Accounts, result.Accounts)
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if meta.ExpectedReturn == nil {
		meta.ExpectedReturn = published
	}

	req, err := a.DirectoryRequest(snap, meta)
	if err != nil {
		return nil, fmt.Errorf("building %s directory request: %w", chain, err)
	}
	result.Candidates = e.builder.BuildDirectory(ctx, source, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result.RefreshedAt = time.Now().UTC()

	metrics.ObserveRefresh(result)
	log.WithFields(logrus.Fields{
		"chain":      chain,
		"era":        meta.Era,
		"candidates": len(result.Candidates),
		"accounts":   len(result.Accounts),
	}).Info("Chain refreshed")
	return result, nil
}

func (e *Engine) resolveAccounts(ctx context.Context, a adapter.Adapter, snap snapshot.Snapshot, accounts []string, out []types.AccountResult) {
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, address := range accounts {
		i, address := i, address
		g.Go(func() error {
			out[i] = types.AccountResult{Address: address}
			if err := ctx.Err(); err != nil {
				out[i].Err = err
				return nil
			}
			position, err := a.ResolveNominatorPosition(snap, address)
			if err != nil {
				log.WithFields(logrus.Fields{"chain": snap.Chain(), "address": address}).Warnf("Position unknown: %v", err)
				metrics.MalformedAccountInc(snap.Chain())
				out[i].Err = err
				return nil
			}
			out[i].Metadata = position
			return nil
		})
	}
	_ = g.Wait()
}

// Outcome is the refresh result or the error of one chain.
type Outcome struct {
	Chain  string
	Result *types.RefreshResult
	Err    error
}

// RefreshAll refreshes every chain concurrently. Outcomes are in
// configuration order.
func (e *Engine) RefreshAll(ctx context.Context) []Outcome {
	chains := e.registry.Chains()
	outcomes := make([]Outcome, len(chains))

	var g errgroup.Group
	for i, chain := range chains {
		i, chain := i, chain
		g.Go(func() error {
			result, err := e.Refresh(ctx, chain)
			outcomes[i] = Outcome{Chain: chain, Result: result, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

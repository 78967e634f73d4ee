// Package substrate reads relay-chain staking state over the node RPC.
package substrate

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/pkg/errors"
	"github.com/safwentrabelsi/staking-aggregator/snapshot"
	stypes "github.com/safwentrabelsi/staking-aggregator/types"
	"github.com/sirupsen/logrus"
	"github.com/vedhavyas/go-subkey"
	"golang.org/x/sync/errgroup"
)

var log = logrus.WithField("module", "substrate")

const defaultConcurrency = 16

// Reader builds RelaySnapshots of one chain from its node.
type Reader struct {
	api         *gsrpc.SubstrateAPI
	chain       string
	concurrency int

	mu         sync.Mutex
	meta       *types.Metadata
	ss58Prefix uint16
}

func NewReader(chain, rpcURL string, concurrency int) (*Reader, error) {
	api, err := gsrpc.NewSubstrateAPI(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", rpcURL, err)
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Reader{api: api, chain: chain, concurrency: concurrency}, nil
}

func (r *Reader) Close() {
	if r.api != nil && r.api.Client != nil {
		r.api.Client.Close()
	}
}

// metadata refreshes the runtime metadata, which changes on runtime upgrades.
func (r *Reader) metadata() (*types.Metadata, uint16, error) {
	meta, err := r.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return nil, 0, fmt.Errorf("fetching metadata: %w", err)
	}
	prefix, ok := constU16(meta, "System", "SS58Prefix")
	if !ok {
		log.WithField("chain", r.chain).Warn("SS58Prefix constant not found, defaulting to 42")
		prefix = 42
	}
	r.mu.Lock()
	r.meta, r.ss58Prefix = meta, prefix
	r.mu.Unlock()
	return meta, prefix, nil
}

func (r *Reader) cachedMetadata() (*types.Metadata, uint16, error) {
	r.mu.Lock()
	meta, prefix := r.meta, r.ss58Prefix
	r.mu.Unlock()
	if meta != nil {
		return meta, prefix, nil
	}
	return r.metadata()
}

// readRaw returns the raw storage value, or nil when the item is absent
// from the metadata or has no value.
func (r *Reader) readRaw(meta *types.Metadata, pallet, item string, args ...[]byte) ([]byte, error) {
	key, err := types.CreateStorageKey(meta, pallet, item, args...)
	if err != nil {
		return nil, nil
	}
	var raw types.StorageDataRaw
	ok, err := r.api.RPC.State.GetStorageLatest(key, &raw)
	if err != nil {
		return nil, fmt.Errorf("reading %s.%s: %w", pallet, item, err)
	}
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	return raw, nil
}

func (r *Reader) readU32(meta *types.Metadata, pallet, item string, args ...[]byte) (uint32, bool, error) {
	raw, err := r.readRaw(meta, pallet, item, args...)
	if err != nil || raw == nil {
		return 0, false, err
	}
	v, err := readU32(newDecoder(raw))
	if err != nil {
		return 0, false, errors.Wrapf(stypes.ErrMalformedSnapshot, "%s.%s: %v", pallet, item, err)
	}
	return v, true, nil
}

func (r *Reader) readU128(meta *types.Metadata, pallet, item string, args ...[]byte) (*big.Int, error) {
	raw, err := r.readRaw(meta, pallet, item, args...)
	if err != nil || raw == nil {
		return nil, err
	}
	v, err := readU128(newDecoder(raw))
	if err != nil {
		return nil, errors.Wrapf(stypes.ErrMalformedSnapshot, "%s.%s: %v", pallet, item, err)
	}
	return v, nil
}

func (r *Reader) ReadSnapshot(ctx context.Context, chain string, accounts []string) (snapshot.Snapshot, error) {
	if chain != r.chain {
		return nil, fmt.Errorf("%w: reader serves %s, asked for %s", stypes.ErrUnknownChain, r.chain, chain)
	}
	meta, prefix, err := r.metadata()
	if err != nil {
		return nil, err
	}

	era, ok, err := r.readU32(meta, "Staking", "CurrentEra")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrap(stypes.ErrMalformedSnapshot, "Staking.CurrentEra missing")
	}
	eraArg := encodeU32(era)

	s := &snapshot.RelaySnapshot{
		ChainName:  chain,
		CurrentEra: era,
		Accounts:   make(map[string]*snapshot.RelayAccount, len(accounts)),
		Identities: map[string]string{},
		Malformed:  snapshot.AccountErrors{},
	}
	if s.TotalIssuance, err = r.readU128(meta, "Balances", "TotalIssuance"); err != nil {
		return nil, err
	}
	if s.TotalEraStake, err = r.readU128(meta, "Staking", "ErasTotalStake", eraArg); err != nil {
		return nil, err
	}
	if s.TotalIssuance == nil || s.TotalEraStake == nil {
		return nil, errors.Wrapf(stypes.ErrMalformedSnapshot, "chain %s: total issuance or era stake missing", chain)
	}

	// Optional items stay zero when the runtime does not have them.
	if s.AuctionCounter, _, err = r.readU32(meta, "Auctions", "AuctionCounter"); err != nil {
		return nil, err
	}
	if s.MinimumActiveStake, err = r.readU128(meta, "Staking", "MinimumActiveStake"); err != nil {
		return nil, err
	}
	if s.MinNominatorBond, err = r.readU128(meta, "Staking", "MinNominatorBond"); err != nil {
		return nil, err
	}
	s.MaxNominations, _ = constU32(meta, "Staking", "MaxNominations")
	s.MaxUnlockingChunks, _ = constU32(meta, "Staking", "MaxUnlockingChunks")
	// Paged runtimes reward every exposed nominator and drop the legacy cap.
	if v, ok := constU32(meta, "Staking", "MaxExposurePageSize"); ok {
		s.MaxExposurePageSize = v
	} else {
		s.MaxNominatorRewardedPerValidator, _ = constU32(meta, "Staking", "MaxNominatorRewardedPerValidator")
	}

	tracked := make(map[accountID]string, len(accounts))
	for _, address := range accounts {
		_, pub, err := subkey.SS58Decode(address)
		if err != nil || len(pub) != 32 {
			s.Malformed[address] = errors.Wrapf(stypes.ErrMalformedSnapshot, "invalid address %q", address)
			continue
		}
		var id accountID
		copy(id[:], pub)
		tracked[id] = address
	}
	encode := func(id accountID) string {
		if address, ok := tracked[id]; ok {
			return address
		}
		return subkey.SS58Encode(id[:], prefix)
	}

	if err := r.readValidators(ctx, meta, s, eraArg, encode); err != nil {
		return nil, err
	}
	r.readAccounts(ctx, meta, s, tracked, encode)
	r.readIdentities(ctx, meta, s)
	return s, ctx.Err()
}

// readIdentities resolves display names of the validators nominated by
// tracked accounts. Unreadable identities are left out.
func (r *Reader) readIdentities(ctx context.Context, meta *types.Metadata, s *snapshot.RelaySnapshot) {
	targets := map[string]struct{}{}
	for _, acc := range s.Accounts {
		for _, t := range acc.Targets {
			targets[t] = struct{}{}
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for address := range targets {
		address := address
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			identity := r.readIdentity(meta, address)
			if identity == nil || identity.Display == "" {
				return nil
			}
			mu.Lock()
			s.Identities[address] = identity.Display
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Reader) readIdentity(meta *types.Metadata, address string) *snapshot.Identity {
	_, pub, err := subkey.SS58Decode(address)
	if err != nil {
		return nil
	}
	raw, err := r.readRaw(meta, "Identity", "IdentityOf", pub)
	if err != nil || raw == nil {
		return nil
	}
	identity, err := decodeRegistration(raw)
	if err != nil {
		log.WithField("address", address).Debugf("Unreadable identity: %v", err)
		return nil
	}
	return identity
}

func (r *Reader) readValidators(ctx context.Context, meta *types.Metadata, s *snapshot.RelaySnapshot, eraArg []byte, encode func(accountID) string) error {
	raw, err := r.readRaw(meta, "Session", "Validators")
	if err != nil {
		return err
	}
	ids, err := decodeNominations(raw)
	if err != nil {
		return errors.Wrapf(stypes.ErrMalformedSnapshot, "Session.Validators: %v", err)
	}

	s.Validators = make([]snapshot.RelayValidator, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			exp, err := r.readExposure(meta, eraArg, id)
			if err != nil {
				return fmt.Errorf("validator %s: %w", encode(id), err)
			}
			v := snapshot.RelayValidator{Address: encode(id), Total: exp.Total, Own: exp.Own}
			for _, o := range exp.Others {
				v.Others = append(v.Others, snapshot.IndividualExposure{Who: encode(o.Who), Value: o.Value})
			}
			s.Validators[i] = v
			return nil
		})
	}
	return g.Wait()
}

// readExposure reads the legacy exposure and falls back to the paged one.
func (r *Reader) readExposure(meta *types.Metadata, eraArg []byte, id accountID) (*exposure, error) {
	raw, err := r.readRaw(meta, "Staking", "ErasStakers", eraArg, id[:])
	if err != nil {
		return nil, err
	}
	if raw != nil {
		exp, err := decodeExposure(raw)
		if err != nil {
			return nil, errors.Wrapf(stypes.ErrMalformedSnapshot, "Staking.ErasStakers: %v", err)
		}
		if exp.Total.Sign() > 0 {
			return exp, nil
		}
	}

	raw, err = r.readRaw(meta, "Staking", "ErasStakersOverview", eraArg, id[:])
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return &exposure{Total: new(big.Int), Own: new(big.Int)}, nil
	}
	overview, err := decodeExposureOverview(raw)
	if err != nil {
		return nil, errors.Wrapf(stypes.ErrMalformedSnapshot, "Staking.ErasStakersOverview: %v", err)
	}
	exp := &exposure{Total: overview.Total, Own: overview.Own}
	for page := uint32(0); page < overview.PageCount; page++ {
		raw, err := r.readRaw(meta, "Staking", "ErasStakersPaged", eraArg, id[:], encodeU32(page))
		if err != nil {
			return nil, err
		}
		if raw == nil {
			continue
		}
		others, err := decodeExposurePage(raw)
		if err != nil {
			return nil, errors.Wrapf(stypes.ErrMalformedSnapshot, "Staking.ErasStakersPaged: %v", err)
		}
		exp.Others = append(exp.Others, others...)
	}
	return exp, nil
}

// readAccounts never fails the snapshot: a failed account is recorded as
// malformed and the others are still read.
func (r *Reader) readAccounts(ctx context.Context, meta *types.Metadata, s *snapshot.RelaySnapshot, tracked map[accountID]string, encode func(accountID) string) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for id, address := range tracked {
		id, address := id, address
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			acc, err := r.readAccount(meta, id, encode)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				log.WithFields(logrus.Fields{"chain": s.ChainName, "address": address}).Warnf("Failed to read account: %v", err)
				s.Malformed[address] = err
			case acc != nil:
				s.Accounts[address] = acc
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Reader) readAccount(meta *types.Metadata, stash accountID, encode func(accountID) string) (*snapshot.RelayAccount, error) {
	controller := stash
	raw, err := r.readRaw(meta, "Staking", "Bonded", stash[:])
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	if len(raw) < 32 {
		return nil, errors.Wrap(stypes.ErrMalformedSnapshot, "Staking.Bonded: short controller")
	}
	copy(controller[:], raw[:32])

	raw, err = r.readRaw(meta, "Staking", "Ledger", controller[:])
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	ledger, err := decodeLedger(raw)
	if err != nil {
		return nil, errors.Wrapf(stypes.ErrMalformedSnapshot, "Staking.Ledger: %v", err)
	}

	acc := &snapshot.RelayAccount{}
	for _, c := range ledger.Unlocking {
		acc.Unlocking = append(acc.Unlocking, snapshot.UnlockChunk{Value: c.Value, Era: c.Era})
	}

	raw, err = r.readRaw(meta, "Staking", "Nominators", stash[:])
	if err != nil {
		return nil, err
	}
	if raw != nil {
		targets, err := decodeNominations(raw)
		if err != nil {
			return nil, errors.Wrapf(stypes.ErrMalformedSnapshot, "Staking.Nominators: %v", err)
		}
		for _, t := range targets {
			acc.Targets = append(acc.Targets, encode(t))
		}
	}
	return acc, nil
}

// FetchCandidateDetail reads the validator preferences and its identity. A
// missing identity is not an error.
func (r *Reader) FetchCandidateDetail(ctx context.Context, chain, address string) (*snapshot.CandidateDetail, error) {
	if chain != r.chain {
		return nil, fmt.Errorf("%w: reader serves %s, asked for %s", stypes.ErrUnknownChain, r.chain, chain)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	meta, _, err := r.cachedMetadata()
	if err != nil {
		return nil, err
	}
	_, pub, err := subkey.SS58Decode(address)
	if err != nil || len(pub) != 32 {
		return nil, fmt.Errorf("invalid address %q: %v", address, err)
	}

	detail := &snapshot.CandidateDetail{}
	raw, err := r.readRaw(meta, "Staking", "Validators", pub)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: Staking.Validators(%s)", stypes.ErrChainDataMissing, address)
	}
	prefs, err := decodeValidatorPrefs(raw)
	if err != nil {
		return nil, errors.Wrapf(stypes.ErrMalformedSnapshot, "Staking.Validators: %v", err)
	}
	detail.Commission = &prefs.Commission
	detail.Blocked = prefs.Blocked

	detail.Identity = r.readIdentity(meta, address)
	return detail, nil
}

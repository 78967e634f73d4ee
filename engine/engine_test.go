package engine

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/safwentrabelsi/staking-aggregator/adapter"
	"github.com/safwentrabelsi/staking-aggregator/snapshot"
	"github.com/safwentrabelsi/staking-aggregator/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSource struct {
	mock.Mock
}

func (m *MockSource) ReadSnapshot(ctx context.Context, chain string, accounts []string) (snapshot.Snapshot, error) {
	args := m.Called(ctx, chain, accounts)
	snap, _ := args.Get(0).(snapshot.Snapshot)
	return snap, args.Error(1)
}

func (m *MockSource) FetchCandidateDetail(ctx context.Context, chain, address string) (*snapshot.CandidateDetail, error) {
	args := m.Called(ctx, chain, address)
	detail, _ := args.Get(0).(*snapshot.CandidateDetail)
	return detail, args.Error(1)
}

type MockApr struct {
	mock.Mock
}

func (m *MockApr) Lookup(ctx context.Context, chain, url string) *decimal.Decimal {
	args := m.Called(ctx, chain, url)
	v, _ := args.Get(0).(*decimal.Decimal)
	return v
}

func moonbeamSnapshot() *snapshot.ParachainSnapshot {
	return &snapshot.ParachainSnapshot{
		ChainName:                  "moonbeam",
		Round:                      90,
		TotalIssuance:              big.NewInt(1000),
		TotalStaked:                big.NewInt(400),
		MinDelegation:              big.NewInt(5),
		MaxDelegationsPerDelegator: 100,
		CollatorCommission:         200_000_000,
		Collators: []snapshot.Collator{
			{Address: "c1", Bond: big.NewInt(100), TotalCounted: big.NewInt(300), DelegationCount: 2, Status: snapshot.CollatorActive},
		},
		Delegators: map[string]*snapshot.Delegator{
			"alice": {Delegations: []snapshot.Delegation{{Collator: "c1", Amount: big.NewInt(60)}}},
		},
		Malformed: snapshot.AccountErrors{"bob": types.ErrMalformedSnapshot},
	}
}

func newEngine(t *testing.T, source snapshot.Source, apr AprLookup) *Engine {
	registry, err := adapter.NewRegistry(adapter.Params{
		Chain:    "moonbeam",
		Family:   types.FamilyParachain,
		Decimals: 18,
		AprURL:   "https://apr.example/moonbeam",
		Accounts: []string{"alice", "bob", "carol"},
	})
	require.NoError(t, err)
	e, err := New(registry, map[string]snapshot.Source{"moonbeam": source}, apr, 4)
	require.NoError(t, err)
	return e
}

func TestRefresh(t *testing.T) {
	source := new(MockSource)
	source.On("ReadSnapshot", mock.Anything, "moonbeam", []string{"alice", "bob", "carol"}).Return(moonbeamSnapshot(), nil).Once()
	source.On("FetchCandidateDetail", mock.Anything, "moonbeam", "c1").Return(&snapshot.CandidateDetail{
		Identity: &snapshot.Identity{Display: "Collator One", Judgements: 1},
	}, nil).Once()

	published := decimal.NewFromInt(12)
	apr := new(MockApr)
	apr.On("Lookup", mock.Anything, "moonbeam", "https://apr.example/moonbeam").Return(&published).Once()

	result, err := newEngine(t, source, apr).Refresh(context.Background(), "moonbeam")
	require.NoError(t, err)

	require.NotNil(t, result.Metadata)
	assert.Equal(t, uint32(90), result.Metadata.Era)
	require.NotNil(t, result.Metadata.ExpectedReturn)
	assert.Equal(t, "12", result.Metadata.ExpectedReturn.String())
	assert.False(t, result.RefreshedAt.IsZero())

	require.Len(t, result.Accounts, 3)
	assert.Equal(t, "alice", result.Accounts[0].Address)
	require.NotNil(t, result.Accounts[0].Metadata)
	assert.Equal(t, types.StatusEarningReward, result.Accounts[0].Metadata.Status)
	assert.Equal(t, "60", result.Accounts[0].Metadata.ActiveStake.String())

	assert.Nil(t, result.Accounts[1].Metadata)
	assert.True(t, errors.Is(result.Accounts[1].Err, types.ErrMalformedSnapshot))

	require.NotNil(t, result.Accounts[2].Metadata)
	assert.Equal(t, types.StatusNotStaking, result.Accounts[2].Metadata.Status)

	require.Len(t, result.Candidates, 1)
	c := result.Candidates[0]
	assert.Equal(t, "Collator One", c.Identity)
	assert.True(t, c.IsVerified)
	assert.Equal(t, "20", c.Commission.String())
	require.NotNil(t, c.ExpectedReturn)
	assert.Equal(t, "12", c.ExpectedReturn.String())

	source.AssertExpectations(t)
	apr.AssertExpectations(t)
}

func TestRefresh_Errors(t *testing.T) {
	t.Run("unknown chain", func(t *testing.T) {
		_, err := newEngine(t, new(MockSource), nil).Refresh(context.Background(), "kusama")
		assert.True(t, errors.Is(err, types.ErrUnknownChain))
	})

	t.Run("malformed snapshot", func(t *testing.T) {
		source := new(MockSource)
		source.On("ReadSnapshot", mock.Anything, "moonbeam", mock.Anything).Return(nil, types.ErrMalformedSnapshot)
		_, err := newEngine(t, source, nil).Refresh(context.Background(), "moonbeam")
		assert.True(t, errors.Is(err, types.ErrMalformedSnapshot))
	})

	t.Run("family mismatch", func(t *testing.T) {
		source := new(MockSource)
		source.On("ReadSnapshot", mock.Anything, "moonbeam", mock.Anything).Return(&snapshot.DappSnapshot{ChainName: "moonbeam"}, nil)
		_, err := newEngine(t, source, nil).Refresh(context.Background(), "moonbeam")
		assert.True(t, errors.Is(err, types.ErrSnapshotFamilyMismatch))
	})

	t.Run("missing source", func(t *testing.T) {
		registry, err := adapter.NewRegistry(adapter.Params{Chain: "moonbeam", Family: types.FamilyParachain})
		require.NoError(t, err)
		_, err = New(registry, map[string]snapshot.Source{}, nil, 0)
		assert.Error(t, err)
	})
}

func TestRefresh_UnknownApr(t *testing.T) {
	source := new(MockSource)
	source.On("ReadSnapshot", mock.Anything, "moonbeam", mock.Anything).Return(moonbeamSnapshot(), nil)
	source.On("FetchCandidateDetail", mock.Anything, "moonbeam", "c1").Return(nil, types.ErrChainDataMissing)
	apr := new(MockApr)
	apr.On("Lookup", mock.Anything, "moonbeam", mock.Anything).Return(nil)

	result, err := newEngine(t, source, apr).Refresh(context.Background(), "moonbeam")
	require.NoError(t, err)
	assert.Nil(t, result.Metadata.ExpectedReturn)
	require.Len(t, result.Candidates, 1)
	assert.Nil(t, result.Candidates[0].ExpectedReturn)
	assert.Empty(t, result.Candidates[0].Identity)
	assert.False(t, result.Candidates[0].IsVerified)
}

func TestRefreshAll(t *testing.T) {
	registry, err := adapter.NewRegistry(
		adapter.Params{Chain: "moonbeam", Family: types.FamilyParachain},
		adapter.Params{Chain: "astar", Family: types.FamilyContract},
	)
	require.NoError(t, err)

	moonbeam := new(MockSource)
	moonbeam.On("ReadSnapshot", mock.Anything, "moonbeam", mock.Anything).Return(moonbeamSnapshot(), nil)
	moonbeam.On("FetchCandidateDetail", mock.Anything, "moonbeam", mock.Anything).Return(&snapshot.CandidateDetail{}, nil)
	astar := new(MockSource)
	astar.On("ReadSnapshot", mock.Anything, "astar", mock.Anything).Return(nil, errors.New("indexer down"))

	e, err := New(registry, map[string]snapshot.Source{"moonbeam": moonbeam, "astar": astar}, nil, 0)
	require.NoError(t, err)

	outcomes := e.RefreshAll(context.Background())
	require.Len(t, outcomes, 2)
	assert.Equal(t, "moonbeam", outcomes[0].Chain)
	assert.NoError(t, outcomes[0].Err)
	require.NotNil(t, outcomes[0].Result)
	assert.Equal(t, "astar", outcomes[1].Chain)
	assert.Error(t, outcomes[1].Err)
	assert.Nil(t, outcomes[1].Result)
}

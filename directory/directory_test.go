package directory

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/safwentrabelsi/staking-aggregator/snapshot"
	"github.com/safwentrabelsi/staking-aggregator/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) FetchCandidateDetail(ctx context.Context, chain, address string) (*snapshot.CandidateDetail, error) {
	args := m.Called(ctx, chain, address)
	detail, _ := args.Get(0).(*snapshot.CandidateDetail)
	return detail, args.Error(1)
}

func amount(v int64) types.Amount {
	return types.NewAmount(big.NewInt(v), 10)
}

func perbill(v uint32) *uint32 {
	return &v
}

func TestBuildDirectory(t *testing.T) {
	fetcher := new(MockFetcher)
	fetcher.On("FetchCandidateDetail", mock.Anything, "polkadot", "v1").Return(&snapshot.CandidateDetail{
		Commission: perbill(100_000_000),
		Identity:   &snapshot.Identity{Display: "One", Judgements: 1},
	}, nil)
	fetcher.On("FetchCandidateDetail", mock.Anything, "polkadot", "v2").Return(nil, errors.New("rpc unavailable"))
	fetcher.On("FetchCandidateDetail", mock.Anything, "polkadot", "v3").Return(&snapshot.CandidateDetail{
		Blocked:  true,
		Identity: &snapshot.Identity{Display: "Three"},
	}, nil)

	req := Request{
		Chain:    "polkadot",
		Decimals: 10,
		Seeds: []Seed{
			{Address: "v1", TotalStake: amount(300), OwnStake: amount(100), NominatorCount: 1, MinBond: amount(5)},
			{Address: "v2", TotalStake: amount(200), OwnStake: amount(200), MinBond: amount(5)},
			{Address: "v3", TotalStake: amount(100), OwnStake: amount(40), NominatorCount: 3, MinBond: amount(5)},
		},
		Estimate: func(seed Seed, commission decimal.Decimal) *decimal.Decimal {
			r := decimal.NewFromInt(10).Sub(commission)
			return &r
		},
	}

	out := NewBuilder(2).BuildDirectory(context.Background(), fetcher, req)

	require.Len(t, out, 3)
	assert.Equal(t, []string{"v1", "v2", "v3"}, []string{out[0].Address, out[1].Address, out[2].Address})

	t.Run("fully populated candidate", func(t *testing.T) {
		c := out[0]
		assert.Equal(t, "One", c.Identity)
		assert.True(t, c.IsVerified)
		assert.Equal(t, "10", c.Commission.String())
		assert.Equal(t, "200", c.OtherStake.String())
		require.NotNil(t, c.ExpectedReturn)
		assert.Equal(t, "0", c.ExpectedReturn.String())
		assert.False(t, c.IsCrowded)
	})

	t.Run("failed lookup keeps the candidate", func(t *testing.T) {
		c := out[1]
		assert.Empty(t, c.Identity)
		assert.False(t, c.IsVerified)
		assert.Equal(t, "0", c.OtherStake.String())
		assert.Equal(t, "200", c.TotalStake.String())
		assert.True(t, c.Commission.IsZero())
	})

	t.Run("identity without judgements is unverified", func(t *testing.T) {
		c := out[2]
		assert.Equal(t, "Three", c.Identity)
		assert.False(t, c.IsVerified)
		assert.True(t, c.Blocked)
	})

	fetcher.AssertExpectations(t)
}

func TestBuildDirectory_SeedCommissionWins(t *testing.T) {
	fetcher := new(MockFetcher)
	fetcher.On("FetchCandidateDetail", mock.Anything, "moonbeam", "c1").Return(&snapshot.CandidateDetail{Commission: perbill(500_000_000)}, nil)

	commission := decimal.NewFromInt(20)
	out := NewBuilder(0).BuildDirectory(context.Background(), fetcher, Request{
		Chain:                  "moonbeam",
		MaxNominatorsPerTarget: 300,
		Seeds:                  []Seed{{Address: "c1", Commission: &commission}},
	})

	require.Len(t, out, 1)
	assert.Equal(t, "20", out[0].Commission.String())
	assert.True(t, out[0].IsCrowded)
	assert.Nil(t, out[0].ExpectedReturn)
}

func TestBuildDirectory_Empty(t *testing.T) {
	out := NewBuilder(4).BuildDirectory(context.Background(), new(MockFetcher), Request{Chain: "astar"})
	assert.Empty(t, out)
}

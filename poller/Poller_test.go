package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/safwentrabelsi/staking-aggregator/engine"
	"github.com/safwentrabelsi/staking-aggregator/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) RefreshAll(ctx context.Context) []engine.Outcome {
	args := m.Called(ctx)
	return args.Get(0).([]engine.Outcome)
}

type mockConfig struct {
	interval time.Duration
}

func (m *mockConfig) GetInterval() time.Duration {
	return m.interval
}

func TestPoller_Run(t *testing.T) {

	t.Run("Nominal case", func(t *testing.T) {
		mockEngineInstance := new(mockEngine)
		dataChan := make(chan *types.RefreshResult)

		mockEngineInstance.On("RefreshAll", mock.Anything).Return([]engine.Outcome{
			{Chain: "polkadot", Result: &types.RefreshResult{Chain: "polkadot"}},
			{Chain: "astar", Err: errors.New("indexer down")},
			{Chain: "moonbeam", Result: &types.RefreshResult{Chain: "moonbeam"}},
		})

		poller := NewPoller(mockEngineInstance, dataChan, &mockConfig{interval: time.Hour})

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		go poller.Run(ctx)

		var chains []string
		for len(chains) < 2 {
			select {
			case result := <-dataChan:
				chains = append(chains, result.Chain)
			case <-ctx.Done():
				t.Fatal("timed out waiting for refresh results")
			}
		}
		assert.Equal(t, []string{"polkadot", "moonbeam"}, chains)

		mockEngineInstance.AssertNumberOfCalls(t, "RefreshAll", 1)
	})

	t.Run("Refreshes on every tick", func(t *testing.T) {
		mockEngineInstance := new(mockEngine)
		dataChan := make(chan *types.RefreshResult, 10)

		mockEngineInstance.On("RefreshAll", mock.Anything).Return([]engine.Outcome{
			{Chain: "polkadot", Result: &types.RefreshResult{Chain: "polkadot"}},
		})

		poller := NewPoller(mockEngineInstance, dataChan, &mockConfig{interval: 10 * time.Millisecond})

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		go poller.Run(ctx)

		for i := 0; i < 3; i++ {
			select {
			case <-dataChan:
			case <-ctx.Done():
				t.Fatal("timed out waiting for refresh results")
			}
		}
		cancel()
	})

	t.Run("Stops when the context is cancelled", func(t *testing.T) {
		mockEngineInstance := new(mockEngine)
		// unbuffered and never drained
		dataChan := make(chan *types.RefreshResult)

		mockEngineInstance.On("RefreshAll", mock.Anything).Return([]engine.Outcome{
			{Chain: "polkadot", Result: &types.RefreshResult{Chain: "polkadot"}},
		})

		poller := NewPoller(mockEngineInstance, dataChan, &mockConfig{interval: time.Hour})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			poller.Run(ctx)
			close(done)
		}()
		cancel()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("poller did not stop")
		}
	})
}

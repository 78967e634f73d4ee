package poller

import (
	"context"
	"time"

	"github.com/safwentrabelsi/staking-aggregator/engine"
	"github.com/safwentrabelsi/staking-aggregator/metrics"
	"github.com/safwentrabelsi/staking-aggregator/types"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "poller")

type Refresher interface {
	RefreshAll(ctx context.Context) []engine.Outcome
}

type pollerConfig interface {
	GetInterval() time.Duration
}

type Poller struct {
	engine   Refresher
	dataChan chan<- *types.RefreshResult
	cfg      pollerConfig
}

func NewPoller(engine Refresher, dataChan chan<- *types.RefreshResult, cfg pollerConfig) Poller {
	return Poller{
		engine:   engine,
		dataChan: dataChan,
		cfg:      cfg,
	}
}

// Run refreshes every chain right away and then on each tick until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	interval := p.cfg.GetInterval()
	log.Infof("Starting Poller, refreshing every %s", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		p.poll(ctx)
		select {
		case <-ctx.Done():
			log.Info("Context cancelled, stopping Poller")
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	for _, outcome := range p.engine.RefreshAll(ctx) {
		if outcome.Err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithField("chain", outcome.Chain).Errorf("Error refreshing chain: %v", outcome.Err)
			metrics.RefreshFailureInc(outcome.Chain)
			continue
		}
		select {
		case p.dataChan <- outcome.Result:
		case <-ctx.Done():
			return
		}
	}
}

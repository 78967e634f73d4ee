package processor

import (
	"context"
	"fmt"

	"github.com/safwentrabelsi/staking-aggregator/store"
	"github.com/safwentrabelsi/staking-aggregator/types"
	"github.com/sirupsen/logrus"
)

type Processor interface {
	Run(ctx context.Context)
}

type processor struct {
	store       store.Storer
	dataChannel <-chan *types.RefreshResult
	errorChan   chan<- error
}

var log = logrus.WithField("module", "processor")

func NewProcessor(store store.Storer, dataChannel <-chan *types.RefreshResult, errorChan chan<- error) Processor {
	return &processor{
		store:       store,
		dataChannel: dataChannel,
		errorChan:   errorChan,
	}
}

func (p *processor) Run(ctx context.Context) {
	log.Info("Starting Processor")
	for {
		select {
		case <-ctx.Done():
			log.Info("Processor stopping due to context cancellation")
			return
		case result := <-p.dataChannel:
			if result == nil {
				continue
			}
			log.Infof("Received refresh of %s at era %d", result.Chain, era(result))
			if err := p.processRefresh(ctx, result); err != nil {
				log.WithError(err).Error("Failed to process refresh")
				select {
				case p.errorChan <- err:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (p *processor) processRefresh(ctx context.Context, result *types.RefreshResult) error {
	unknown := 0
	for _, acc := range result.Accounts {
		if acc.Err != nil {
			unknown++
		}
	}
	if unknown > 0 {
		log.Debugf("%d of %d accounts of %s are unknown this cycle", unknown, len(result.Accounts), result.Chain)
	}

	err := p.store.SaveRefresh(ctx, result)
	if err != nil {
		return fmt.Errorf("failed to save refresh of %s: %w", result.Chain, err)
	}
	log.Info("Refresh processed and saved successfully")
	return nil
}

func era(result *types.RefreshResult) uint32 {
	if result.Metadata == nil {
		return 0
	}
	return result.Metadata.Era
}

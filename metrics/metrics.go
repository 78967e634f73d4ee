package metrics

import (
	"errors"
	"fmt"

	"github.com/penglongli/gin-metrics/ginmetrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/safwentrabelsi/staking-aggregator/types"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "metrics")

const (
	refreshFailureCountMetricsName   = "staking_refresh_failures_count"
	aprTimeoutCountMetricsName       = "staking_apr_lookup_misses_count"
	malformedAccountCountMetricsName = "staking_malformed_accounts_count"

	chainLabel = "chain"
)

var (
	inflation = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "staking_chain_inflation_percent",
		Help: "Yearly inflation of the chain in percent",
	}, []string{chainLabel})
	expectedReturn = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "staking_chain_expected_return_percent",
		Help: "Yearly return of staked tokens in percent",
	}, []string{chainLabel})
	era = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "staking_chain_era",
		Help: "Current era or round of the chain",
	}, []string{chainLabel})
	candidates = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "staking_chain_candidates",
		Help: "Number of stake targets in the last directory",
	}, []string{chainLabel})
)

// Init metrics
func Init() error {
	for _, c := range []struct{ name, description string }{
		{refreshFailureCountMetricsName, "Failed chain refresh cycles"},
		{aprTimeoutCountMetricsName, "APR lookups that timed out or failed"},
		{malformedAccountCountMetricsName, "Accounts skipped because of malformed on-chain data"},
	} {
		if err := initCounter(c.name, c.description); err != nil {
			return err
		}
	}
	for _, g := range []prometheus.Collector{inflation, expectedReturn, era, candidates} {
		if err := prometheus.Register(g); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			log.Error(fmt.Sprintf("Error registering gauge: %s", err))
			return err
		}
	}
	return nil
}

func initCounter(name, description string) error {
	counter := &ginmetrics.Metric{
		Type:        ginmetrics.Counter,
		Name:        name,
		Description: description,
		Labels:      []string{chainLabel},
	}
	err := ginmetrics.GetMonitor().AddMetric(counter)
	if err != nil {
		log.Error(fmt.Sprintf("Error adding metric: %s", err))
		return err
	}
	return nil
}

func inc(name, chain string) {
	err := ginmetrics.GetMonitor().GetMetric(name).Inc([]string{chain})
	if err != nil {
		log.Debug(fmt.Sprintf("Error incrementing metric %s: %s", name, err))
	}
}

// RefreshFailureInc counts a refresh cycle that failed for chain.
func RefreshFailureInc(chain string) {
	inc(refreshFailureCountMetricsName, chain)
}

// AprTimeoutInc counts an APR lookup that resolved to unknown.
func AprTimeoutInc(chain string) {
	inc(aprTimeoutCountMetricsName, chain)
}

func MalformedAccountInc(chain string) {
	inc(malformedAccountCountMetricsName, chain)
}

// ObserveRefresh exports the chain level figures of a refresh result.
func ObserveRefresh(result *types.RefreshResult) {
	if result == nil || result.Metadata == nil {
		return
	}
	meta := result.Metadata
	era.WithLabelValues(meta.Chain).Set(float64(meta.Era))
	candidates.WithLabelValues(meta.Chain).Set(float64(len(result.Candidates)))
	if meta.Inflation != nil {
		inflation.WithLabelValues(meta.Chain).Set(meta.Inflation.InexactFloat64())
	}
	if meta.ExpectedReturn != nil {
		expectedReturn.WithLabelValues(meta.Chain).Set(meta.ExpectedReturn.InexactFloat64())
	}
}

package api

import (
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/penglongli/gin-metrics/ginmetrics"
	"github.com/safwentrabelsi/staking-aggregator/adapter"
	"github.com/safwentrabelsi/staking-aggregator/config"
	"github.com/safwentrabelsi/staking-aggregator/store"
	"github.com/safwentrabelsi/staking-aggregator/types"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "api")

type APIServer struct {
	cfg      *config.ServerConfig
	store    store.Storer
	registry chainRegistry
}

type chainResponse struct {
	Name     string       `json:"name"`
	Family   types.Family `json:"family"`
	Decimals uint8        `json:"decimals"`
	Accounts int          `json:"trackedAccounts"`
}

func NewAPIServer(cfg *config.ServerConfig, store store.Storer, registry chainRegistry) *APIServer {
	return &APIServer{
		cfg:      cfg,
		store:    store,
		registry: registry,
	}
}

func (s *APIServer) Run() {
	router := gin.Default()
	metricRouter := gin.New()
	m := ginmetrics.GetMonitor()
	m.UseWithoutExposingEndpoint(router)
	m.SetMetricPath("/metrics")
	m.Expose(metricRouter)

	go func() {
		log.Infof("Metrics server started at url http://%s/metrics", s.cfg.GetMetricsListenAddress())
		if err := metricRouter.Run(s.cfg.GetMetricsListenAddress()); err != nil {
			log.Errorf("Metrics server stopped: %v", err)
		}
	}()

	s.registerRoutes(router)
	if err := router.Run(s.cfg.GetListenAddress()); err != nil {
		log.Errorf("API server stopped: %v", err)
	}
}

func (s *APIServer) registerRoutes(router gin.IRouter) {
	staking := router.Group("/staking")
	staking.GET("/chains", s.handleGetChains)

	chain := staking.Group("/:chain", ValidateChainParam(s.registry))
	chain.GET("/metadata", s.handleGetMetadata)
	chain.GET("/candidates", s.handleGetCandidates)
	chain.GET("/nominators/:address", s.handleGetNominator)
}

func (s *APIServer) handleGetChains(c *gin.Context) {
	chains := []chainResponse{}
	for _, name := range s.registry.Chains() {
		a, err := s.registry.Get(name)
		if err != nil {
			continue
		}
		p := a.Params()
		chains = append(chains, chainResponse{Name: p.Chain, Family: p.Family, Decimals: p.Decimals, Accounts: len(p.Accounts)})
	}
	c.JSON(http.StatusOK, gin.H{"data": chains})
}

func (s *APIServer) handleGetMetadata(c *gin.Context) {
	meta, err := s.store.GetChainMetadata(c.Request.Context(), c.Param("chain"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": meta})
}

func (s *APIServer) handleGetCandidates(c *gin.Context) {
	candidates, err := s.store.GetCandidates(c.Request.Context(), c.Param("chain"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": candidates})
}

func (s *APIServer) handleGetNominator(c *gin.Context) {
	chain, address := c.Param("chain"), c.Param("address")
	a := c.MustGet(adapterKey).(adapter.Adapter)
	if !slices.Contains(a.Params().Accounts, address) {
		writeError(c, fmt.Errorf("%w: %s on %s", types.ErrAccountNotTracked, address, chain))
		return
	}

	meta, err := s.store.GetNominatorMetadata(c.Request.Context(), chain, address)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": meta})
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, types.ErrAccountNotTracked):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, types.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "no data refreshed yet"})
	case errors.Is(err, types.ErrMalformedSnapshot):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "position unknown", "details": err.Error()})
	default:
		log.WithError(err).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/safwentrabelsi/staking-aggregator/adapter"
	"github.com/safwentrabelsi/staking-aggregator/api"
	"github.com/safwentrabelsi/staking-aggregator/apr"
	"github.com/safwentrabelsi/staking-aggregator/config"
	"github.com/safwentrabelsi/staking-aggregator/engine"
	"github.com/safwentrabelsi/staking-aggregator/indexer"
	"github.com/safwentrabelsi/staking-aggregator/metrics"
	"github.com/safwentrabelsi/staking-aggregator/poller"
	"github.com/safwentrabelsi/staking-aggregator/processor"
	"github.com/safwentrabelsi/staking-aggregator/snapshot"
	"github.com/safwentrabelsi/staking-aggregator/store"
	"github.com/safwentrabelsi/staking-aggregator/substrate"
	"github.com/safwentrabelsi/staking-aggregator/types"
	"github.com/safwentrabelsi/staking-aggregator/utils"
	log "github.com/sirupsen/logrus"
)

func main() {
	defaultPath := os.Getenv("CONFIG_FILE")
	if defaultPath == "" {
		defaultPath = "config.yaml"
	}
	configPath := flag.String("config", defaultPath, "path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	logLevel, err := log.ParseLevel(cfg.Log.GetLevel())
	if err != nil {
		log.Fatal("Invalid log level in the config: ", err)
	}
	log.SetLevel(logLevel)
	if cfg.Log.GetFormat() == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}

	if err := metrics.Init(); err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}

	registry, err := adapter.NewRegistryFromConfig(cfg.Chains)
	if err != nil {
		log.Fatalf("Invalid chain configuration: %v", err)
	}
	sources, closeSources, err := newSources(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize snapshot sources: %v", err)
	}
	defer closeSources()

	refreshEngine, err := engine.New(registry, sources, apr.NewClient(cfg.Apr), cfg.Poller.GetConcurrency())
	if err != nil {
		log.Fatalf("Failed to initialize refresh engine: %v", err)
	}

	store, err := store.NewPostgresStore(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to initialize Postgres store: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dataChannel := make(chan *types.RefreshResult, len(cfg.Chains))
	errorChan := make(chan error, 1)

	stakingPoller := poller.NewPoller(refreshEngine, dataChannel, cfg.Poller)
	go stakingPoller.Run(ctx)
	stakingProcessor := processor.NewProcessor(store, dataChannel, errorChan)
	go stakingProcessor.Run(ctx)
	server := api.NewAPIServer(cfg.Server, store, registry)
	go server.Run()

	code := utils.HandleErrors(ctx, cancel, errorChan)
	if code != 0 {
		closeSources()
		store.Close()
		os.Exit(code)
	}
}

// newSources opens one snapshot source per chain. The indexer client is
// shared by every chain that reads from it.
func newSources(cfg *config.Config) (map[string]snapshot.Source, func(), error) {
	sources := make(map[string]snapshot.Source, len(cfg.Chains))
	var readers []*substrate.Reader
	closeAll := func() {
		for _, r := range readers {
			r.Close()
		}
		readers = nil
	}

	var indexerClient *indexer.Client
	for _, c := range cfg.Chains {
		switch c.GetSource() {
		case "substrate":
			r, err := substrate.NewReader(c.GetName(), c.GetRPCURL(), cfg.Poller.GetConcurrency())
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("chain %s: %w", c.GetName(), err)
			}
			readers = append(readers, r)
			sources[c.GetName()] = r
		case "indexer":
			if indexerClient == nil {
				indexerClient = indexer.NewClient(cfg.Indexer)
			}
			sources[c.GetName()] = indexerClient
		default:
			closeAll()
			return nil, nil, fmt.Errorf("chain %s: unknown source %q", c.GetName(), c.GetSource())
		}
	}
	return sources, closeAll, nil
}

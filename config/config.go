package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/safwentrabelsi/staking-aggregator/types"
	"gopkg.in/yaml.v3"
)

const (
	defaultPollerInterval = 60
	defaultConcurrency    = 16
	defaultAprTimeout     = 8
	defaultRetryAttempts  = 3
	defaultIndexerTimeout = 10
)

// Config contains all top-level configuration settings for the application, accessible for reading.
type Config struct {
	Server  *ServerConfig
	Log     *LogConfig
	DB      *DBConfig
	Poller  *PollerConfig
	Apr     *AprConfig
	Indexer *IndexerConfig
	Chains  []*ChainConfig
}

// ServerConfig contains configuration details for the server, with fields unexported for encapsulation.
type ServerConfig struct {
	host        string
	port        int
	metricsPort int
}

// LogConfig contains configuration settings for logging.
type LogConfig struct {
	level  string
	format string
}

// DBConfig contains database connection settings with sensitive details unexported.
type DBConfig struct {
	user     string
	dbname   string
	password string
	host     string
	port     int
}

// PollerConfig contains refresh loop settings.
type PollerConfig struct {
	interval    time.Duration
	concurrency int
}

// AprConfig contains settings of the external APR lookup.
type AprConfig struct {
	timeout       time.Duration
	retryAttempts int
}

// IndexerConfig contains configuration details for interacting with the snapshot indexer.
type IndexerConfig struct {
	url           string
	timeout       time.Duration
	retryAttempts int
}

// ChainConfig holds the family and constants of one tracked chain.
type ChainConfig struct {
	name                   string
	family                 types.Family
	source                 string
	rpcURL                 string
	decimals               uint8
	eraLength              time.Duration
	unbondingDelayEras     uint32
	unbondingOffset        uint32
	minStakeOverride       *big.Int
	treasuryCut            bool
	maxNominatorsPerTarget uint32
	aprURL                 string
	inflation              types.InflationCurveParams
	accounts               []string
}

// DefaultUnbondingOffset returns the number of periods added to the current
// era before comparing it with an unlock era. Contract staking unlocks at the
// end of the unlock era, the other families at its start.
func DefaultUnbondingOffset(family types.Family) uint32 {
	if family == types.FamilyContract {
		return 1
	}
	return 0
}

// LoadConfig reads configuration from the given file.
func LoadConfig(configFile string) (*Config, error) {
	absPath, err := filepath.Abs(configFile)
	if err != nil {
		return nil, fmt.Errorf("Error finding absolute path for the configuration file: %v", err)
	}

	yamlFile, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("Error reading YAML file: %v", err)
	}
	return parseConfig(yamlFile)
}

func parseConfig(data []byte) (*Config, error) {
	configYAML := configYAML{}
	if err := yaml.Unmarshal(data, &configYAML); err != nil {
		return nil, fmt.Errorf("Error parsing YAML file: %v", err)
	}

	// Perform validation
	if err := validate.Struct(configYAML); err != nil {
		return nil, fmt.Errorf("validation error: %v", err)
	}

	cfg := &Config{}
	cfg.Server = &ServerConfig{
		host:        configYAML.Server.Host,
		port:        configYAML.Server.Port,
		metricsPort: configYAML.Server.MetricsPort,
	}
	cfg.Log = &LogConfig{
		level:  withDefault(configYAML.Log.Level, "info"),
		format: withDefault(configYAML.Log.Format, "text"),
	}
	cfg.DB = &DBConfig{
		user:     configYAML.DB.User,
		dbname:   configYAML.DB.DBName,
		password: configYAML.DB.Password,
		host:     configYAML.DB.Host,
		port:     configYAML.DB.Port,
	}
	cfg.Poller = &PollerConfig{
		interval:    seconds(configYAML.Poller.Interval, defaultPollerInterval),
		concurrency: positive(configYAML.Poller.Concurrency, defaultConcurrency),
	}
	cfg.Apr = &AprConfig{
		timeout:       seconds(configYAML.Apr.Timeout, defaultAprTimeout),
		retryAttempts: positive(configYAML.Apr.RetryAttempts, defaultRetryAttempts),
	}
	cfg.Indexer = &IndexerConfig{
		url:           configYAML.Indexer.URL,
		timeout:       seconds(configYAML.Indexer.Timeout, defaultIndexerTimeout),
		retryAttempts: positive(configYAML.Indexer.RetryAttempts, defaultRetryAttempts),
	}

	for _, c := range configYAML.Chains {
		if c.Source == "indexer" && cfg.Indexer.url == "" {
			return nil, fmt.Errorf("validation error: chain %s reads from the indexer but indexer.url is not set", c.Name)
		}
		if c.Source == "substrate" && c.Family != string(types.FamilyRelay) {
			return nil, fmt.Errorf("validation error: chain %s: substrate source only supports the relay family", c.Name)
		}

		chain := &ChainConfig{
			name:                   c.Name,
			family:                 types.Family(c.Family),
			source:                 c.Source,
			rpcURL:                 c.RPCURL,
			decimals:               c.Decimals,
			eraLength:              time.Duration(c.EraLengthMs) * time.Millisecond,
			unbondingDelayEras:     c.UnbondingDelayEras,
			unbondingOffset:        DefaultUnbondingOffset(types.Family(c.Family)),
			treasuryCut:            c.TreasuryCut,
			maxNominatorsPerTarget: c.MaxNominatorsPerTarget,
			aprURL:                 c.AprURL,
			accounts:               c.Accounts,
			inflation: types.InflationCurveParams{
				MinInflation:            c.Inflation.MinInflation,
				MaxInflation:            c.Inflation.MaxInflation,
				StakeTarget:             c.Inflation.StakeTarget,
				Falloff:                 c.Inflation.Falloff,
				AuctionAdjust:           c.Inflation.AuctionAdjust,
				AuctionMax:              c.Inflation.AuctionMax,
				YearlyInflationInTokens: c.Inflation.YearlyInflationInTokens,
			},
		}
		if c.UnbondingOffset != nil {
			chain.unbondingOffset = *c.UnbondingOffset
		}
		if c.MinStakeOverride != "" {
			v, ok := new(big.Int).SetString(c.MinStakeOverride, 10)
			if !ok || v.Sign() < 0 {
				return nil, fmt.Errorf("validation error: chain %s: invalid minStakeOverride %q", c.Name, c.MinStakeOverride)
			}
			chain.minStakeOverride = v
		}
		cfg.Chains = append(cfg.Chains, chain)
	}

	return cfg, nil
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func positive(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func seconds(v, def int) time.Duration {
	return time.Duration(positive(v, def)) * time.Second
}

// GetHost returns the host configuration from the ServerConfig.
func (s *ServerConfig) GetHost() string {
	return s.host
}

// GetPort returns the port configuration from the ServerConfig.
func (s *ServerConfig) GetPort() int {
	return s.port
}

// GetMetricsPort returns the metrics port configuration from the ServerConfig.
func (s *ServerConfig) GetMetricsPort() int {
	return s.metricsPort
}

// GetListenAddress constructs the listenning address from the ServerConfig.
func (s *ServerConfig) GetListenAddress() string {
	return fmt.Sprintf("%s:%d", s.host, s.port)
}

// GetMetricsListenAddress constructs the metrics listenning address from the ServerConfig.
func (s *ServerConfig) GetMetricsListenAddress() string {
	return fmt.Sprintf("%s:%d", s.host, s.metricsPort)
}

// GetLevel returns the level configuration from LogConfig.
func (l *LogConfig) GetLevel() string {
	return l.level
}

// GetFormat returns the output format from LogConfig.
func (l *LogConfig) GetFormat() string {
	return l.format
}

// GetInterval returns the time between two refresh cycles.
func (p *PollerConfig) GetInterval() time.Duration {
	return p.interval
}

// GetConcurrency returns the maximum number of concurrent reads per fan-out.
func (p *PollerConfig) GetConcurrency() int {
	return p.concurrency
}

func (a *AprConfig) GetTimeout() time.Duration {
	return a.timeout
}

func (a *AprConfig) GetRetryAttempts() int {
	return a.retryAttempts
}

// GetURL returns the url configuration from the IndexerConfig.
func (i *IndexerConfig) GetURL() string {
	return i.url
}

// GetTimeout returns the timeout configuration from the IndexerConfig.
func (i *IndexerConfig) GetTimeout() time.Duration {
	return i.timeout
}

// GetRetryAttempts returns the maximum retry attempts from the IndexerConfig.
func (i *IndexerConfig) GetRetryAttempts() int {
	return i.retryAttempts
}

func (c *ChainConfig) GetName() string {
	return c.name
}

func (c *ChainConfig) GetFamily() types.Family {
	return c.family
}

// GetSource returns where snapshots of the chain are read from: substrate or indexer.
func (c *ChainConfig) GetSource() string {
	return c.source
}

func (c *ChainConfig) GetRPCURL() string {
	return c.rpcURL
}

func (c *ChainConfig) GetDecimals() uint8 {
	return c.decimals
}

func (c *ChainConfig) GetEraLength() time.Duration {
	return c.eraLength
}

func (c *ChainConfig) GetUnbondingDelayEras() uint32 {
	return c.unbondingDelayEras
}

func (c *ChainConfig) GetUnbondingOffset() uint32 {
	return c.unbondingOffset
}

// GetMinStakeOverride returns a copy of the configured minimum stake, or nil.
func (c *ChainConfig) GetMinStakeOverride() *big.Int {
	if c.minStakeOverride == nil {
		return nil
	}
	return new(big.Int).Set(c.minStakeOverride)
}

func (c *ChainConfig) GetTreasuryCut() bool {
	return c.treasuryCut
}

func (c *ChainConfig) GetMaxNominatorsPerTarget() uint32 {
	return c.maxNominatorsPerTarget
}

func (c *ChainConfig) GetAprURL() string {
	return c.aprURL
}

func (c *ChainConfig) GetInflation() types.InflationCurveParams {
	return c.inflation
}

// GetAccounts returns the tracked account addresses.
func (c *ChainConfig) GetAccounts() []string {
	return append([]string(nil), c.accounts...)
}

// GetUser returns the user configuration from the DBConfig.
func (d *DBConfig) GetUser() string {
	return d.user
}

// GetDbname returns the name configuration from the DBConfig.
func (d *DBConfig) GetDbname() string {
	return d.dbname
}

// GetPassword returns the password configuration from the DBConfig.
func (d *DBConfig) GetPassword() string {
	return d.password
}

// GetHost returns the host configuration from the DBConfig.
func (d *DBConfig) GetHost() string {
	return d.host
}

// GetPort returns the port configuration from the DBConfig.
func (d *DBConfig) GetPort() int {
	return d.port
}

// GetPostgresqlDSN constructs a PostgreSQL DSN from the DBConfig.
func (d *DBConfig) GetPostgresqlDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", d.user, d.password, d.host, d.port, d.dbname)
}

package config

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// ConfigYAML is a transitional struct that contains all the configuration settings, mirroring the structure of the Config struct.
type configYAML struct {
	Server  serverConfigYAML  `yaml:"server"`
	Log     logConfigYAML     `yaml:"log"`
	DB      dbConfigYAML      `yaml:"db"`
	Poller  pollerConfigYAML  `yaml:"poller"`
	Apr     aprConfigYAML     `yaml:"apr"`
	Indexer indexerConfigYAML `yaml:"indexer"`
	Chains  []chainConfigYAML `yaml:"chains" validate:"required,min=1,unique=Name,dive"`
}

// serverConfigYAML is a transitional struct used for unmarshaling the server configuration from YAML.
type serverConfigYAML struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port" validate:"required,min=1,max=65535"`
	MetricsPort int    `yaml:"metricsPort" validate:"required,min=1,max=65535,nefield=Port"`
}

// logConfigYAML is a transitional struct used for unmarshaling the log configuration from YAML.
type logConfigYAML struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// dbConfigYAML is a transitional struct used for unmarshaling the database configuration from YAML.
type dbConfigYAML struct {
	User     string `yaml:"user" validate:"required"`
	DBName   string `yaml:"dbname" validate:"required"`
	Password string `yaml:"password"`
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"required"`
}

// pollerConfigYAML is a transitional struct used for unmarshaling the poller configuration from YAML.
type pollerConfigYAML struct {
	Interval    int `yaml:"interval" validate:"gte=0"`
	Concurrency int `yaml:"concurrency" validate:"gte=0"`
}

// aprConfigYAML is a transitional struct used for unmarshaling the APR lookup configuration from YAML.
type aprConfigYAML struct {
	Timeout       int `yaml:"timeout" validate:"gte=0"`
	RetryAttempts int `yaml:"retryAttempts" validate:"gte=0"`
}

// indexerConfigYAML is a transitional struct used for unmarshaling the indexer configuration from YAML.
type indexerConfigYAML struct {
	URL           string `yaml:"url" validate:"omitempty,url"`
	Timeout       int    `yaml:"timeout" validate:"gte=0"`
	RetryAttempts int    `yaml:"retryAttempts" validate:"gte=0"`
}

type chainConfigYAML struct {
	Name                   string              `yaml:"name" validate:"required"`
	Family                 string              `yaml:"family" validate:"required,oneof=relay parachain contract"`
	Source                 string              `yaml:"source" validate:"required,oneof=substrate indexer"`
	RPCURL                 string              `yaml:"rpcURL" validate:"required_if=Source substrate"`
	Decimals               uint8               `yaml:"decimals" validate:"lte=30"`
	EraLengthMs            int64               `yaml:"eraLengthMs" validate:"required,gt=0"`
	UnbondingDelayEras     uint32              `yaml:"unbondingDelayEras"`
	UnbondingOffset        *uint32             `yaml:"unbondingOffset"`
	MinStakeOverride       string              `yaml:"minStakeOverride" validate:"omitempty,numeric"`
	TreasuryCut            bool                `yaml:"treasuryCut"`
	MaxNominatorsPerTarget uint32              `yaml:"maxNominatorsPerTarget"`
	AprURL                 string              `yaml:"aprURL" validate:"omitempty,url"`
	Inflation              inflationConfigYAML `yaml:"inflation"`
	Accounts               []string            `yaml:"accounts" validate:"dive,required"`
}

type inflationConfigYAML struct {
	MinInflation            float64 `yaml:"minInflation" validate:"gte=0,lte=1"`
	MaxInflation            float64 `yaml:"maxInflation" validate:"gte=0,lte=1"`
	StakeTarget             float64 `yaml:"stakeTarget" validate:"gte=0,lte=1"`
	Falloff                 float64 `yaml:"falloff" validate:"gte=0"`
	AuctionAdjust           float64 `yaml:"auctionAdjust" validate:"gte=0"`
	AuctionMax              uint32  `yaml:"auctionMax"`
	YearlyInflationInTokens uint64  `yaml:"yearlyInflationInTokens"`
}

// Package config loads registryd settings from MP4DAO_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"

	"mp4dao/account"
	"mp4dao/ledger"
	"mp4dao/registry"
)

// Journal drivers.
const (
	JournalMemory   = "memory"
	JournalSQLite   = "sqlite"
	JournalPostgres = "postgres"
)

// Relay sinks.
const (
	SinkLog   = "log"
	SinkKafka = "kafka"
	SinkRedis = "redis"
)

// Config is the full runtime configuration of registryd.
type Config struct {
	Owner account.Address `env:"MP4DAO_OWNER,required"`

	RegistrationFee decimal.Decimal `env:"MP4DAO_REGISTRATION_FEE_WEI" envDefault:"1000000000000000"`
	DisputeFee      decimal.Decimal `env:"MP4DAO_DISPUTE_FEE_WEI"      envDefault:"10000000000000000"`
	ResponseWindow  time.Duration   `env:"MP4DAO_DISPUTE_RESPONSE_WINDOW"`

	InitialSupplyTokens int64         `env:"MP4DAO_INITIAL_SUPPLY_TOKENS" envDefault:"20000000"`
	MaxSupplyTokens     int64         `env:"MP4DAO_MAX_SUPPLY_TOKENS"     envDefault:"100000000"`
	MinimumStakeTokens  int64         `env:"MP4DAO_MIN_MEDIATOR_STAKE"    envDefault:"10000"`
	PaymentDiscountBps  int64         `env:"MP4DAO_PAYMENT_DISCOUNT_BPS"  envDefault:"1000"`
	TokensPerETH        int64         `env:"MP4DAO_TOKENS_PER_ETH"        envDefault:"10000"`
	VotingPeriod        time.Duration `env:"MP4DAO_VOTING_PERIOD"         envDefault:"168h"`
	RewardSchedulePath  string        `env:"MP4DAO_REWARD_SCHEDULE"`

	JournalDriver string `env:"MP4DAO_JOURNAL_DRIVER" envDefault:"memory"`
	JournalDSN    string `env:"MP4DAO_JOURNAL_DSN"`

	RelaySink      string        `env:"MP4DAO_RELAY_SINK"       envDefault:"log"`
	KafkaBrokers   []string      `env:"MP4DAO_KAFKA_BROKERS"    envSeparator:","`
	KafkaTopic     string        `env:"MP4DAO_KAFKA_TOPIC_PREFIX" envDefault:"mp4dao"`
	RedisURL       string        `env:"MP4DAO_REDIS_URL"`
	RedisStream    string        `env:"MP4DAO_REDIS_STREAM"     envDefault:"mp4dao:facts"`
	RedisMaxLen    int64         `env:"MP4DAO_REDIS_STREAM_MAXLEN" envDefault:"100000"`
	RelayInterval  time.Duration `env:"MP4DAO_RELAY_INTERVAL"   envDefault:"2s"`
	RelayBatchSize int           `env:"MP4DAO_RELAY_BATCH_SIZE" envDefault:"100"`

	JWTSecret string        `env:"MP4DAO_JWT_SECRET"`
	TokenTTL  time.Duration `env:"MP4DAO_TOKEN_TTL" envDefault:"24h"`

	LogLevel  string `env:"MP4DAO_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"MP4DAO_LOG_FORMAT" envDefault:"json"`
}

// Load parses the process environment and validates the result.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	owner, err := account.ParseAddress(c.Owner.String())
	if err != nil {
		return fmt.Errorf("config: MP4DAO_OWNER: %w", err)
	}
	c.Owner = owner

	if c.RegistrationFee.IsNegative() || c.DisputeFee.IsNegative() {
		return errors.New("config: fees must be non-negative")
	}
	if c.PaymentDiscountBps < 0 || c.PaymentDiscountBps > 10_000 {
		return fmt.Errorf("config: payment discount %d bps out of range", c.PaymentDiscountBps)
	}

	switch c.JournalDriver {
	case JournalMemory:
	case JournalSQLite, JournalPostgres:
		if c.JournalDSN == "" {
			return fmt.Errorf("config: journal driver %q requires MP4DAO_JOURNAL_DSN", c.JournalDriver)
		}
	default:
		return fmt.Errorf("config: unknown journal driver %q", c.JournalDriver)
	}

	switch c.RelaySink {
	case SinkLog:
	case SinkKafka:
		if len(c.KafkaBrokers) == 0 {
			return errors.New("config: kafka sink requires MP4DAO_KAFKA_BROKERS")
		}
	case SinkRedis:
		if c.RedisURL == "" {
			return errors.New("config: redis sink requires MP4DAO_REDIS_URL")
		}
	default:
		return fmt.Errorf("config: unknown relay sink %q", c.RelaySink)
	}
	return nil
}

// LedgerConfig maps the token settings onto the ledger's parameters.
func (c Config) LedgerConfig() (ledger.Config, error) {
	lc := ledger.DefaultConfig(c.Owner)
	lc.InitialSupply = ledger.Tokens(c.InitialSupplyTokens)
	lc.MaxSupply = ledger.Tokens(c.MaxSupplyTokens)
	lc.MinimumMediatorStake = ledger.Tokens(c.MinimumStakeTokens)
	lc.PaymentDiscountBps = c.PaymentDiscountBps
	lc.TokensPerETH = c.TokensPerETH
	lc.VotingPeriod = c.VotingPeriod
	if c.RewardSchedulePath != "" {
		schedule, err := ledger.LoadRewardSchedule(c.RewardSchedulePath)
		if err != nil {
			return ledger.Config{}, fmt.Errorf("config: %w", err)
		}
		lc.Rewards = schedule
	}
	return lc, nil
}

// RegistryConfig maps the fee settings onto the registry's parameters.
func (c Config) RegistryConfig() registry.Config {
	rc := registry.DefaultConfig(c.Owner)
	rc.RegistrationFee = c.RegistrationFee
	rc.DisputeFee = c.DisputeFee
	rc.ResponseWindow = c.ResponseWindow
	return rc
}

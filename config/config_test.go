package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"mp4dao/account"
	"mp4dao/ledger"
)

const owner = "0x00000000000000000000000000000000000000AB"

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{"MP4DAO_OWNER": owner})
	require.NoError(t, err)

	require.Equal(t, account.MustParse(owner), cfg.Owner)
	require.True(t, cfg.RegistrationFee.Equal(decimal.New(1, 15)))
	require.True(t, cfg.DisputeFee.Equal(decimal.New(1, 16)))
	require.Equal(t, JournalMemory, cfg.JournalDriver)
	require.Equal(t, SinkLog, cfg.RelaySink)
	require.Equal(t, 7*24*time.Hour, cfg.VotingPeriod)

	lc, err := cfg.LedgerConfig()
	require.NoError(t, err)
	require.True(t, lc.MaxSupply.Equal(ledger.Tokens(100_000_000)))
	require.True(t, lc.MinimumMediatorStake.Equal(ledger.Tokens(10_000)))

	rc := cfg.RegistryConfig()
	require.Equal(t, cfg.Owner, rc.Owner)
	require.True(t, rc.DisputeFee.Equal(cfg.DisputeFee))
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"MP4DAO_OWNER":                   owner,
		"MP4DAO_REGISTRATION_FEE_WEI":    "5",
		"MP4DAO_DISPUTE_RESPONSE_WINDOW": "72h",
		"MP4DAO_JOURNAL_DRIVER":          "sqlite",
		"MP4DAO_JOURNAL_DSN":             "/tmp/journal.db",
		"MP4DAO_RELAY_SINK":              "kafka",
		"MP4DAO_KAFKA_BROKERS":           "k1:9092,k2:9092",
	})
	require.NoError(t, err)
	require.True(t, cfg.RegistrationFee.Equal(decimal.NewFromInt(5)))
	require.Equal(t, 72*time.Hour, cfg.RegistryConfig().ResponseWindow)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"missing owner":   {},
		"bad owner":       {"MP4DAO_OWNER": "0xabc"},
		"negative fee":    {"MP4DAO_OWNER": owner, "MP4DAO_DISPUTE_FEE_WEI": "-1"},
		"discount range":  {"MP4DAO_OWNER": owner, "MP4DAO_PAYMENT_DISCOUNT_BPS": "10001"},
		"sqlite no dsn":   {"MP4DAO_OWNER": owner, "MP4DAO_JOURNAL_DRIVER": "sqlite"},
		"unknown driver":  {"MP4DAO_OWNER": owner, "MP4DAO_JOURNAL_DRIVER": "mongo"},
		"kafka no broker": {"MP4DAO_OWNER": owner, "MP4DAO_RELAY_SINK": "kafka"},
		"redis no url":    {"MP4DAO_OWNER": owner, "MP4DAO_RELAY_SINK": "redis"},
		"unknown sink":    {"MP4DAO_OWNER": owner, "MP4DAO_RELAY_SINK": "nats"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFrom(vars)
			require.Error(t, err)
		})
	}
}

func TestLedgerConfigLoadsRewardSchedule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rewards.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rewards:\n  work_registered: 3\n"), 0o600))

	cfg, err := LoadFrom(map[string]string{"MP4DAO_OWNER": owner, "MP4DAO_REWARD_SCHEDULE": path})
	require.NoError(t, err)
	lc, err := cfg.LedgerConfig()
	require.NoError(t, err)
	require.Equal(t, int64(3), lc.Rewards.Multiplier(ledger.ActivityWorkRegistered))
}

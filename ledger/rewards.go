package ledger

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Activities with a scheduled reward.
const (
	ActivityWorkRegistered  = "work_registered"
	ActivityDisputeMediated = "dispute_mediated"
	ActivityProposalCreated = "proposal_created"
	ActivityVoteCast        = "vote_cast"
	ActivityReferral        = "referral"
)

//go:embed rewards.yaml
var defaultRewardsYAML []byte

// RewardSchedule maps an activity to its whole-token multiplier.
type RewardSchedule map[string]int64

type rewardFile struct {
	Rewards map[string]int64 `yaml:"rewards"`
}

// DefaultRewardSchedule returns the built-in activity table.
func DefaultRewardSchedule() RewardSchedule {
	schedule, err := ParseRewardSchedule(defaultRewardsYAML)
	if err != nil {
		panic(err)
	}
	return schedule
}

// LoadRewardSchedule reads a schedule from a YAML file shaped like rewards.yaml.
func LoadRewardSchedule(path string) (RewardSchedule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ledger: read reward schedule: %w", err)
	}
	return ParseRewardSchedule(raw)
}

func ParseRewardSchedule(raw []byte) (RewardSchedule, error) {
	var f rewardFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("ledger: parse reward schedule: %w", err)
	}
	schedule := make(RewardSchedule, len(f.Rewards))
	for activity, multiplier := range f.Rewards {
		if multiplier <= 0 {
			return nil, fmt.Errorf("ledger: reward for %q must be positive, got %d", activity, multiplier)
		}
		schedule[activity] = multiplier
	}
	return schedule, nil
}

// Multiplier returns the activity's multiplier, 1 when unscheduled.
func (r RewardSchedule) Multiplier(activity string) int64 {
	if m, ok := r[activity]; ok {
		return m
	}
	return 1
}

// RewardFor returns base × multiplier whole tokens, in base units, for the
// caller to pass to MintReward.
func (s *Service) RewardFor(activity string, base int64) decimal.Decimal {
	return Tokens(base).Mul(decimal.NewFromInt(s.cfg.Rewards.Multiplier(activity)))
}

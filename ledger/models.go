// Package ledger is the MP4 token economy: balances, allowances, mediator
// stakes, governance proposals, reward issuance and the fee-discount rail.
//
// Amounts are decimal.Decimal values holding whole base units (18 decimals),
// so 1 MP4 is decimal.New(1, 18).
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"mp4dao/account"
	"mp4dao/apperr"
)

const (
	Decimals = 18
	// BpsDenominator is 100% in basis points.
	BpsDenominator = 10000
)

var (
	ErrInvalidAmount         = apperr.New(apperr.Validation, "ledger: amount must be a positive whole number of base units")
	ErrZeroAddress           = apperr.New(apperr.Validation, "ledger: zero address")
	ErrEmptyDescription      = apperr.New(apperr.Validation, "ledger: proposal description required")
	ErrProposalNotFound      = apperr.New(apperr.Validation, "ledger: proposal not found")
	ErrNotOwner              = apperr.New(apperr.Authorization, "ledger: caller is not the owner")
	ErrNotProposer           = apperr.New(apperr.Authorization, "ledger: only the proposer or owner may cancel")
	ErrInsufficientBalance   = apperr.New(apperr.Economic, "ledger: insufficient balance")
	ErrInsufficientAllowance = apperr.New(apperr.Economic, "ledger: insufficient allowance")
	ErrInsufficientStake     = apperr.New(apperr.Economic, "ledger: insufficient stake")
	ErrSupplyCap             = apperr.New(apperr.Conflict, "ledger: max supply exceeded")
	ErrVotingClosed          = apperr.New(apperr.Conflict, "ledger: voting is not open")
	ErrVotingNotEnded        = apperr.New(apperr.Conflict, "ledger: voting period not ended")
	ErrAlreadyExecuted       = apperr.New(apperr.Conflict, "ledger: proposal already executed")
	ErrProposalCancelled     = apperr.New(apperr.Conflict, "ledger: proposal cancelled")
)

// Tokens converts a whole-token count into base units.
func Tokens(n int64) decimal.Decimal {
	return decimal.New(n, Decimals)
}

// Config holds the token parameters fixed at construction.
type Config struct {
	Owner    account.Address
	Name     string
	Symbol   string
	Decimals int32

	InitialSupply        decimal.Decimal
	MaxSupply            decimal.Decimal
	MinimumMediatorStake decimal.Decimal

	// PaymentDiscountBps is the saving granted when a fee is settled in MP4.
	PaymentDiscountBps int64
	// TokensPerETH is the fixed exchange rate used by CalculatePaymentDiscount:
	// one wei of discounted fee costs TokensPerETH MP4 base units.
	TokensPerETH int64
	VotingPeriod time.Duration

	Rewards RewardSchedule
}

// DefaultConfig returns the production token parameters with owner as the
// genesis holder and administrator.
func DefaultConfig(owner account.Address) Config {
	return Config{
		Owner:                owner,
		Name:                 "MP4 Token",
		Symbol:               "MP4",
		Decimals:             Decimals,
		InitialSupply:        Tokens(20_000_000),
		MaxSupply:            Tokens(100_000_000),
		MinimumMediatorStake: Tokens(10_000),
		PaymentDiscountBps:   1000,
		TokensPerETH:         10_000,
		VotingPeriod:         7 * 24 * time.Hour,
		Rewards:              DefaultRewardSchedule(),
	}
}

func (c Config) validate() error {
	if c.Owner.IsZero() {
		return errors.New("ledger: owner required")
	}
	if !wholePositive(c.MaxSupply) {
		return errors.New("ledger: max supply must be positive")
	}
	if c.InitialSupply.IsNegative() || !c.InitialSupply.IsInteger() {
		return errors.New("ledger: initial supply must be a whole non-negative amount")
	}
	if c.InitialSupply.GreaterThan(c.MaxSupply) {
		return fmt.Errorf("ledger: initial supply %s exceeds max supply %s", c.InitialSupply, c.MaxSupply)
	}
	if !wholePositive(c.MinimumMediatorStake) {
		return errors.New("ledger: minimum mediator stake must be positive")
	}
	if c.PaymentDiscountBps < 0 || c.PaymentDiscountBps > BpsDenominator {
		return fmt.Errorf("ledger: payment discount %d bps out of range", c.PaymentDiscountBps)
	}
	if c.TokensPerETH <= 0 {
		return errors.New("ledger: tokens per eth must be positive")
	}
	if c.VotingPeriod <= 0 {
		return errors.New("ledger: voting period must be positive")
	}
	return nil
}

// Stake is a mediator's locked bond.
type Stake struct {
	Amount        decimal.Decimal
	StakedAt      time.Time
	RewardsEarned decimal.Decimal
	Active        bool
}

// Proposal is a governance item voted on with live balances.
type Proposal struct {
	ID           uint64
	Proposer     account.Address
	Description  string
	ForVotes     decimal.Decimal
	AgainstVotes decimal.Decimal
	StartTime    time.Time
	EndTime      time.Time
	Executed     bool
	Cancelled    bool
}

// ProposalStatus is the derived lifecycle label of a proposal at a point in time.
type ProposalStatus string

const (
	ProposalPending   ProposalStatus = "pending"
	ProposalActive    ProposalStatus = "active"
	ProposalEnded     ProposalStatus = "ended"
	ProposalExecuted  ProposalStatus = "executed"
	ProposalCancelled ProposalStatus = "cancelled"
)

// StatusAt derives the proposal status at now.
func (p Proposal) StatusAt(now time.Time) ProposalStatus {
	switch {
	case p.Cancelled:
		return ProposalCancelled
	case p.Executed:
		return ProposalExecuted
	case now.Before(p.StartTime):
		return ProposalPending
	case !now.After(p.EndTime):
		return ProposalActive
	default:
		return ProposalEnded
	}
}

func wholePositive(d decimal.Decimal) bool {
	return d.IsPositive() && d.IsInteger()
}

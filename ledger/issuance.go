package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"mp4dao/account"
	"mp4dao/journal"
)

var bpsDenominator = decimal.NewFromInt(BpsDenominator)

// MintReward issues amount new tokens to to. Owner only; the total supply
// never exceeds MaxSupply.
func (s *Service) MintReward(ctx context.Context, caller, to account.Address, amount decimal.Decimal) error {
	return s.apply(ctx, "mint_reward", caller, func(t *tx, _ time.Time) (event, error) {
		if err := s.checkIssue(t, caller, to, amount); err != nil {
			return event{}, err
		}
		t.credit(to, amount)
		t.totalSupply = t.totalSupply.Add(amount)

		return event{
			typ: journal.TypeRewardMinted,
			key: to.String(),
			payload: map[string]any{
				"to":           to.String(),
				"amount":       amount.String(),
				"total_supply": t.totalSupply.String(),
			},
		}, nil
	})
}

// DistributeMediatorReward mints amount to mediator and adds it to the
// mediator's earned rewards. The stake itself is unchanged.
func (s *Service) DistributeMediatorReward(ctx context.Context, caller, mediator account.Address, amount decimal.Decimal) error {
	return s.apply(ctx, "distribute_mediator_reward", caller, func(t *tx, _ time.Time) (event, error) {
		if err := s.checkIssue(t, caller, mediator, amount); err != nil {
			return event{}, err
		}
		t.credit(mediator, amount)
		t.totalSupply = t.totalSupply.Add(amount)

		st := t.stake(mediator)
		st.RewardsEarned = st.RewardsEarned.Add(amount)
		t.putStake(mediator, st)

		return event{
			typ: journal.TypeMediatorRewarded,
			key: mediator.String(),
			payload: map[string]any{
				"mediator":       mediator.String(),
				"amount":         amount.String(),
				"rewards_earned": st.RewardsEarned.String(),
				"total_supply":   t.totalSupply.String(),
			},
		}, nil
	})
}

func (s *Service) checkIssue(t *tx, caller, to account.Address, amount decimal.Decimal) error {
	if caller != s.cfg.Owner {
		return ErrNotOwner
	}
	if to.IsZero() {
		return ErrZeroAddress
	}
	if !wholePositive(amount) {
		return ErrInvalidAmount
	}
	if t.totalSupply.Add(amount).GreaterThan(s.cfg.MaxSupply) {
		return ErrSupplyCap
	}
	return nil
}

// PayWithMP4 settles a fee of amount tokens from caller to the treasury
// (the owner) and returns the discount the payment earned.
func (s *Service) PayWithMP4(ctx context.Context, caller account.Address, amount decimal.Decimal) (decimal.Decimal, error) {
	var discount decimal.Decimal
	err := s.apply(ctx, "pay_with_mp4", caller, func(t *tx, _ time.Time) (event, error) {
		if caller.IsZero() {
			return event{}, ErrZeroAddress
		}
		if !wholePositive(amount) {
			return event{}, ErrInvalidAmount
		}
		if err := t.debit(caller, amount); err != nil {
			return event{}, err
		}
		t.credit(s.cfg.Owner, amount)
		discount = bpsOf(amount, s.cfg.PaymentDiscountBps)

		return event{
			typ: journal.TypePaymentMade,
			key: caller.String(),
			payload: map[string]any{
				"payer":            caller.String(),
				"token_amount":     amount.String(),
				"discount_applied": discount.String(),
				"discount_bps":     s.cfg.PaymentDiscountBps,
			},
		}, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return discount, nil
}

// CalculatePaymentDiscount quotes a fee of base wei settled in MP4: the
// discounted fee and the MP4 base units needed to pay it at TokensPerETH.
func (s *Service) CalculatePaymentDiscount(base decimal.Decimal) (discounted, tokenAmount decimal.Decimal, err error) {
	if base.IsNegative() || !base.IsInteger() {
		return decimal.Zero, decimal.Zero, ErrInvalidAmount
	}
	discounted = bpsOf(base, BpsDenominator-s.cfg.PaymentDiscountBps)
	tokenAmount = discounted.Mul(decimal.NewFromInt(s.cfg.TokensPerETH))
	return discounted, tokenAmount, nil
}

func (s *Service) PaymentDiscountBps() int64 { return s.cfg.PaymentDiscountBps }

// bpsOf returns floor(amount * bps / 10000).
func bpsOf(amount decimal.Decimal, bps int64) decimal.Decimal {
	q, _ := amount.Mul(decimal.NewFromInt(bps)).QuoRem(bpsDenominator, 0)
	return q
}

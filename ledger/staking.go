package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"mp4dao/account"
	"mp4dao/journal"
)

// StakeMediator locks amount of caller's balance as a mediator bond.
func (s *Service) StakeMediator(ctx context.Context, caller account.Address, amount decimal.Decimal) error {
	return s.apply(ctx, "stake_mediator", caller, func(t *tx, now time.Time) (event, error) {
		if caller.IsZero() {
			return event{}, ErrZeroAddress
		}
		if !wholePositive(amount) {
			return event{}, ErrInvalidAmount
		}
		if err := t.debit(caller, amount); err != nil {
			return event{}, err
		}

		st := t.stake(caller)
		if st.StakedAt.IsZero() {
			st.StakedAt = now
		}
		st.Amount = st.Amount.Add(amount)
		st.Active = st.Amount.GreaterThanOrEqual(s.cfg.MinimumMediatorStake)
		t.putStake(caller, st)
		t.totalStaked = t.totalStaked.Add(amount)

		return event{
			typ: journal.TypeMediatorStaked,
			key: caller.String(),
			payload: map[string]any{
				"mediator": caller.String(),
				"amount":   amount.String(),
				"total":    st.Amount.String(),
				"active":   st.Active,
			},
		}, nil
	})
}

// UnstakeMediator releases amount of caller's bond back to the spendable
// balance. Dropping below the minimum revokes mediation in the same step.
func (s *Service) UnstakeMediator(ctx context.Context, caller account.Address, amount decimal.Decimal) error {
	return s.apply(ctx, "unstake_mediator", caller, func(t *tx, _ time.Time) (event, error) {
		if caller.IsZero() {
			return event{}, ErrZeroAddress
		}
		if !wholePositive(amount) {
			return event{}, ErrInvalidAmount
		}
		st := t.stake(caller)
		if amount.GreaterThan(st.Amount) {
			return event{}, ErrInsufficientStake
		}

		st.Amount = st.Amount.Sub(amount)
		st.Active = st.Amount.GreaterThanOrEqual(s.cfg.MinimumMediatorStake)
		t.putStake(caller, st)
		t.totalStaked = t.totalStaked.Sub(amount)
		t.credit(caller, amount)

		return event{
			typ: journal.TypeMediatorUnstaked,
			key: caller.String(),
			payload: map[string]any{
				"mediator": caller.String(),
				"amount":   amount.String(),
				"total":    st.Amount.String(),
				"active":   st.Active,
			},
		}, nil
	})
}

// CanMediate reports whether addr holds an active stake. It satisfies
// mediation.Provider. A nil ledger grants nothing.
func (s *Service) CanMediate(addr account.Address) bool {
	if s == nil {
		return false
	}
	st, ok := s.snapshot().stake(addr)
	return ok && st.Active
}

// MediatorStake returns addr's bond; ok is false when addr never staked.
func (s *Service) MediatorStake(addr account.Address) (Stake, bool) {
	return s.snapshot().stake(addr)
}

func (s *Service) MinimumMediatorStake() decimal.Decimal { return s.cfg.MinimumMediatorStake }

func (s *Service) TotalStaked() decimal.Decimal { return s.snapshot().totalStaked }

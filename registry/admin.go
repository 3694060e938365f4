package registry

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"mp4dao/account"
	"mp4dao/journal"
)

// SetFees replaces both fees. Owner only.
func (s *Service) SetFees(ctx context.Context, caller account.Address, registrationFee, disputeFee decimal.Decimal) error {
	return s.apply(ctx, "set_fees", caller, func(t *tx, _ time.Time) (event, *payout, error) {
		if caller != s.owner {
			return event{}, nil, ErrNotOwner
		}
		if !validFee(registrationFee) || !validFee(disputeFee) {
			return event{}, nil, ErrInvalidFee
		}
		t.registrationFee = registrationFee
		t.disputeFee = disputeFee

		return event{
			typ: journal.TypeFeesUpdated,
			key: "fees",
			payload: map[string]any{
				"registration_fee": registrationFee.String(),
				"dispute_fee":      disputeFee.String(),
			},
		}, nil, nil
	})
}

// SetMediatorAuthorization adds addr to or removes it from the allowlist.
// Owner only.
func (s *Service) SetMediatorAuthorization(ctx context.Context, caller, addr account.Address, allowed bool) error {
	return s.apply(ctx, "set_mediator_authorization", caller, func(t *tx, _ time.Time) (event, *payout, error) {
		if caller != s.owner {
			return event{}, nil, ErrNotOwner
		}
		if addr.IsZero() {
			return event{}, nil, ErrZeroAddress
		}
		t.setMediator(addr, allowed)

		return event{
			typ: journal.TypeMediatorAuthorizationChanged,
			key: addr.String(),
			payload: map[string]any{
				"mediator":   addr.String(),
				"authorized": allowed,
			},
		}, nil, nil
	})
}

func (s *Service) Pause(ctx context.Context, caller account.Address) error {
	return s.setPaused(ctx, caller, true)
}

func (s *Service) Unpause(ctx context.Context, caller account.Address) error {
	return s.setPaused(ctx, caller, false)
}

func (s *Service) setPaused(ctx context.Context, caller account.Address, paused bool) error {
	operation, typ := "unpause", journal.TypeUnpaused
	if paused {
		operation, typ = "pause", journal.TypePaused
	}
	return s.apply(ctx, operation, caller, func(t *tx, _ time.Time) (event, *payout, error) {
		if caller != s.owner {
			return event{}, nil, ErrNotOwner
		}
		switch {
		case paused && t.paused:
			return event{}, nil, ErrAlreadyPaused
		case !paused && !t.paused:
			return event{}, nil, ErrNotPaused
		}
		t.paused = paused
		return event{
			typ:     typ,
			key:     "pause",
			payload: map[string]any{"by": caller.String()},
		}, nil, nil
	})
}

// Withdraw drains the collected fees to the owner and returns the amount.
func (s *Service) Withdraw(ctx context.Context, caller account.Address) (decimal.Decimal, error) {
	var amount decimal.Decimal
	err := s.apply(ctx, "withdraw", caller, func(t *tx, _ time.Time) (event, *payout, error) {
		if caller != s.owner {
			return event{}, nil, ErrNotOwner
		}
		if !t.collectedFees.IsPositive() {
			return event{}, nil, ErrNothingToWithdraw
		}
		amount = t.collectedFees
		t.collectedFees = decimal.Zero

		return event{
			typ: journal.TypeFeesWithdrawn,
			key: "fees",
			payload: map[string]any{
				"to":     s.owner.String(),
				"amount": amount.String(),
			},
		}, &payout{to: s.owner, amount: amount, memo: "fee withdrawal"}, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

func (s *Service) Owner() account.Address { return s.owner }

func (s *Service) Paused() bool { return s.snapshot().paused }

func (s *Service) RegistrationFee() decimal.Decimal { return s.snapshot().registrationFee }

func (s *Service) DisputeFee() decimal.Decimal { return s.snapshot().disputeFee }

// CollectedFees is the fee balance awaiting withdrawal.
func (s *Service) CollectedFees() decimal.Decimal { return s.snapshot().collectedFees }

// IsAuthorizedMediator reports allowlist membership only; CanMediate also
// counts stake.
func (s *Service) IsAuthorizedMediator(addr account.Address) bool {
	return s.snapshot().allowlisted(addr)
}

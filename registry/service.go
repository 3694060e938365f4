// Package registry anchors music works to unique content hashes and runs the
// dispute process against them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	iradix "github.com/hashicorp/go-immutable-radix/v2"
	"github.com/shopspring/decimal"

	"mp4dao/account"
	"mp4dao/dispute"
	"mp4dao/journal"
	"mp4dao/mediation"
)

// Payouts settles ETH the registry owes: overpayment refunds and fee
// withdrawals. Pay runs inside the operation once its fact is journaled; an
// error reverts the fact and aborts the operation.
type Payouts interface {
	Pay(ctx context.Context, to account.Address, amount decimal.Decimal, memo string) error
}

// Service is the registry engine. All writes go through one lock; queries
// read the last committed snapshot.
type Service struct {
	owner          account.Address
	responseWindow time.Duration
	policy         mediation.Provider

	mu      sync.Mutex
	current atomic.Pointer[state]
	genesis *state

	journal journal.Appender
	payouts Payouts
	now     func() time.Time
	logger  *slog.Logger
}

// NewService builds a registry whose mediators are the owner's allowlist
// plus whoever stakes provides (usually the token ledger). The owner starts
// allowlisted. stakes may be nil; a nil *ledger.Service also grants nothing.
func NewService(cfg Config, stakes mediation.Provider) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &Service{
		owner:          cfg.Owner,
		responseWindow: cfg.ResponseWindow,
		journal:        journal.NewMemoryStore(),
		now:            time.Now,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	s.policy = mediation.AnyOf(mediation.ProviderFunc(s.IsAuthorizedMediator), stakes)

	genesis := begin(&state{
		works:       iradix.New[Work](),
		hashes:      iradix.New[uint64](),
		authorIndex: iradix.New[uint64](),
		disputes:    iradix.New[dispute.Record](),
		mediators:   iradix.New[bool](),
	})
	genesis.registrationFee = cfg.RegistrationFee
	genesis.disputeFee = cfg.DisputeFee
	genesis.collectedFees = decimal.Zero
	genesis.setMediator(cfg.Owner, true)
	s.genesis = genesis.commit()
	s.current.Store(s.genesis)
	return s, nil
}

// WithClock overrides the time source (useful for tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) WithJournal(j journal.Appender) *Service {
	if j != nil {
		s.journal = j
	}
	return s
}

func (s *Service) WithPayouts(p Payouts) *Service {
	s.payouts = p
	return s
}

func (s *Service) WithLogger(l *slog.Logger) *Service {
	if l != nil {
		s.logger = l
	}
	return s
}

type event struct {
	typ     string
	key     string
	payload map[string]any
}

// payout is an amount owed to an account, settled after the fact is durable
// and before the snapshot swap.
type payout struct {
	to     account.Address
	amount decimal.Decimal
	memo   string
}

// apply runs op on a fresh tx under the writer lock, then journals the fact,
// settles the payout and swaps in the new snapshot, in that order. A payout
// is never made for a fact that is not durable, and a failed payout reverts
// its fact. Any failure leaves the registry unchanged.
func (s *Service) apply(ctx context.Context, operation string, caller account.Address, op func(t *tx, now time.Time) (event, *payout, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	t := begin(s.current.Load())

	ev, owed, err := op(t, now)
	if err != nil {
		s.logger.Info("registry operation rejected",
			slog.String("module", "registry"),
			slog.String("operation", operation),
			slog.String("caller", caller.String()),
			slog.String("outcome", "rejected"),
			slog.Any("error", err),
		)
		return err
	}

	fact, err := journal.NewFact(journal.SourceRegistry, ev.typ, caller, ev.key, ev.payload, now)
	if err != nil {
		return fmt.Errorf("registry: %s: %w", operation, err)
	}
	if _, err := s.journal.Append(ctx, fact); err != nil {
		return fmt.Errorf("registry: %s: append fact: %w", operation, err)
	}

	if owed != nil && owed.amount.IsPositive() && s.payouts != nil {
		if err := s.payouts.Pay(ctx, owed.to, owed.amount, owed.memo); err != nil {
			return s.revert(ctx, operation, fact, fmt.Errorf("registry: %s: pay %s: %w", operation, owed.memo, err))
		}
	}

	s.current.Store(t.commit())
	s.logger.Debug("registry operation committed",
		slog.String("module", "registry"),
		slog.String("operation", operation),
		slog.String("caller", caller.String()),
		slog.String("outcome", "committed"),
		slog.String("fact", ev.typ),
	)
	return nil
}

// revert journals the reversal of fact and returns cause. If the reversal
// cannot be written either, the journal keeps a fact that never took effect
// and replay will apply it; that is logged loudly.
func (s *Service) revert(ctx context.Context, operation string, fact journal.Fact, cause error) error {
	rev, err := journal.NewReversal(fact, cause.Error(), s.now().UTC())
	if err == nil {
		_, err = s.journal.Append(context.WithoutCancel(ctx), rev)
	}
	if err != nil {
		s.logger.Error("registry fact left unreverted",
			slog.String("module", "registry"),
			slog.String("operation", operation),
			slog.String("fact_id", fact.ID.String()),
			slog.Any("error", err),
		)
		return errors.Join(cause, fmt.Errorf("registry: %s: revert fact: %w", operation, err))
	}
	return cause
}

func (s *Service) snapshot() *state { return s.current.Load() }

// collectFee checks payment against fee and books the fee. The excess is the
// caller's refund.
func collectFee(t *tx, payment, fee decimal.Decimal) (decimal.Decimal, error) {
	if payment.IsNegative() || !payment.IsInteger() {
		return decimal.Zero, ErrInvalidPayment
	}
	if payment.LessThan(fee) {
		return decimal.Zero, ErrInsufficientFee
	}
	t.collectedFees = t.collectedFees.Add(fee)
	return payment.Sub(fee), nil
}

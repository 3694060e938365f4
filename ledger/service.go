package ledger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"mp4dao/account"
	"mp4dao/journal"
)

// Service is the single serialization point for every ledger mutation.
// Queries read the last committed snapshot and never wait on writers.
type Service struct {
	cfg Config

	mu      sync.Mutex
	current atomic.Pointer[state]
	genesis *state

	journal journal.Appender
	now     func() time.Time
	logger  *slog.Logger
}

// NewService validates cfg and mints the initial supply to the owner.
func NewService(cfg Config) (*Service, error) {
	if cfg.Rewards == nil {
		cfg.Rewards = DefaultRewardSchedule()
	}
	if cfg.Name == "" {
		cfg.Name = "MP4 Token"
	}
	if cfg.Symbol == "" {
		cfg.Symbol = "MP4"
	}
	if cfg.Decimals == 0 {
		cfg.Decimals = Decimals
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	genesis := begin(emptyState())
	if cfg.InitialSupply.IsPositive() {
		genesis.credit(cfg.Owner, cfg.InitialSupply)
		genesis.totalSupply = cfg.InitialSupply
	}

	s := &Service{
		cfg:     cfg,
		journal: journal.NewMemoryStore(),
		now:     time.Now,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
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

// WithJournal routes committed facts to j.
func (s *Service) WithJournal(j journal.Appender) *Service {
	if j != nil {
		s.journal = j
	}
	return s
}

func (s *Service) WithLogger(l *slog.Logger) *Service {
	if l != nil {
		s.logger = l
	}
	return s
}

// event is the fact an operation reports when its checks pass.
type event struct {
	typ     string
	key     string
	payload map[string]any
}

// apply runs op against a fresh tx under the writer lock. The journal append
// happens before the snapshot swap; if either op or the append fails the
// snapshot is left untouched.
func (s *Service) apply(ctx context.Context, operation string, caller account.Address, op func(t *tx, now time.Time) (event, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	t := begin(s.current.Load())

	ev, err := op(t, now)
	if err != nil {
		s.logger.Info("ledger operation rejected",
			slog.String("module", "ledger"),
			slog.String("operation", operation),
			slog.String("caller", caller.String()),
			slog.String("outcome", "rejected"),
			slog.Any("error", err),
		)
		return err
	}

	fact, err := journal.NewFact(journal.SourceLedger, ev.typ, caller, ev.key, ev.payload, now)
	if err != nil {
		return fmt.Errorf("ledger: %s: %w", operation, err)
	}
	if _, err := s.journal.Append(ctx, fact); err != nil {
		return fmt.Errorf("ledger: %s: append fact: %w", operation, err)
	}

	s.current.Store(t.commit())
	s.logger.Debug("ledger operation committed",
		slog.String("module", "ledger"),
		slog.String("operation", operation),
		slog.String("caller", caller.String()),
		slog.String("outcome", "committed"),
		slog.String("fact", ev.typ),
	)
	return nil
}

func (s *Service) snapshot() *state { return s.current.Load() }

func (s *Service) Name() string   { return s.cfg.Name }
func (s *Service) Symbol() string { return s.cfg.Symbol }
func (s *Service) Decimals() int32 {
	return s.cfg.Decimals
}

func (s *Service) Owner() account.Address { return s.cfg.Owner }

func (s *Service) TotalSupply() decimal.Decimal { return s.snapshot().totalSupply }

func (s *Service) MaxSupply() decimal.Decimal { return s.cfg.MaxSupply }

func (s *Service) BalanceOf(addr account.Address) decimal.Decimal {
	return s.snapshot().balanceOf(addr)
}

func (s *Service) Allowance(owner, spender account.Address) decimal.Decimal {
	return s.snapshot().allowance(owner, spender)
}

// Transfer moves amount from caller to to.
func (s *Service) Transfer(ctx context.Context, caller, to account.Address, amount decimal.Decimal) error {
	return s.apply(ctx, "transfer", caller, func(t *tx, _ time.Time) (event, error) {
		if err := checkTransfer(caller, to, amount); err != nil {
			return event{}, err
		}
		if err := t.debit(caller, amount); err != nil {
			return event{}, err
		}
		t.credit(to, amount)
		return transferEvent(caller, to, amount), nil
	})
}

// Approve sets spender's allowance over caller's balance, replacing any prior value.
func (s *Service) Approve(ctx context.Context, caller, spender account.Address, amount decimal.Decimal) error {
	return s.apply(ctx, "approve", caller, func(t *tx, _ time.Time) (event, error) {
		if caller.IsZero() || spender.IsZero() {
			return event{}, ErrZeroAddress
		}
		if amount.IsNegative() || !amount.IsInteger() {
			return event{}, ErrInvalidAmount
		}
		t.setAllowance(caller, spender, amount)
		return event{
			typ: journal.TypeApproval,
			key: caller.String(),
			payload: map[string]any{
				"owner":   caller.String(),
				"spender": spender.String(),
				"value":   amount.String(),
			},
		}, nil
	})
}

// TransferFrom moves amount from from to to on behalf of caller, consuming
// caller's allowance in the same step.
func (s *Service) TransferFrom(ctx context.Context, caller, from, to account.Address, amount decimal.Decimal) error {
	return s.apply(ctx, "transfer_from", caller, func(t *tx, _ time.Time) (event, error) {
		if caller.IsZero() {
			return event{}, ErrZeroAddress
		}
		if err := checkTransfer(from, to, amount); err != nil {
			return event{}, err
		}
		allowed := t.allowance(from, caller)
		if allowed.LessThan(amount) {
			return event{}, ErrInsufficientAllowance
		}
		if err := t.debit(from, amount); err != nil {
			return event{}, err
		}
		t.credit(to, amount)
		t.setAllowance(from, caller, allowed.Sub(amount))
		ev := transferEvent(from, to, amount)
		ev.payload["spender"] = caller.String()
		return ev, nil
	})
}

func checkTransfer(from, to account.Address, amount decimal.Decimal) error {
	if from.IsZero() || to.IsZero() {
		return ErrZeroAddress
	}
	if !wholePositive(amount) {
		return ErrInvalidAmount
	}
	return nil
}

func transferEvent(from, to account.Address, amount decimal.Decimal) event {
	return event{
		typ: journal.TypeTransfer,
		key: from.String(),
		payload: map[string]any{
			"from":  from.String(),
			"to":    to.String(),
			"value": amount.String(),
		},
	}
}

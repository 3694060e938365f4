package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"mp4dao/account"
	"mp4dao/journal"
)

var errRestoreAfterStart = errors.New("ledger: restore must run before the first operation")

// Restore replays committed ledger facts on top of genesis, in journal order.
// Genesis is derived from Config and never journaled, so the ledger must be
// restored with the same initial supply it ran with. Balance, stake and
// supply limits are re-checked; a journal that breaks them is rejected.
func (s *Service) Restore(facts []journal.Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Load() != s.genesis {
		return errRestoreAfterStart
	}
	t := begin(s.genesis)
	replayed := 0
	for _, f := range facts {
		if f.Source != journal.SourceLedger {
			continue
		}
		if err := s.replay(t, f); err != nil {
			return fmt.Errorf("ledger: restore seq %d %s: %w", f.Seq, f.Type, err)
		}
		replayed++
	}
	s.current.Store(t.commit())
	s.logger.Info("ledger restored",
		"module", "ledger",
		"operation", "restore",
		"facts", replayed,
		"total_supply", t.totalSupply.String(),
		"proposals", t.proposalSeq,
	)
	return nil
}

// ledgerFact is the union of every ledger payload; each type fills a subset.
type ledgerFact struct {
	From     string          `json:"from"`
	To       string          `json:"to"`
	Spender  string          `json:"spender"`
	Owner    string          `json:"owner"`
	Value    decimal.Decimal `json:"value"`
	Mediator string          `json:"mediator"`
	Amount   decimal.Decimal `json:"amount"`
	Payer    string          `json:"payer"`
	Tokens   decimal.Decimal `json:"token_amount"`

	ProposalID  uint64          `json:"proposal_id"`
	Proposer    string          `json:"proposer"`
	Description string          `json:"description"`
	StartTime   time.Time       `json:"start_time"`
	EndTime     time.Time       `json:"end_time"`
	Support     bool            `json:"support"`
	Weight      decimal.Decimal `json:"weight"`
}

func (s *Service) replay(t *tx, f journal.Fact) error {
	var p ledgerFact
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		return err
	}

	switch f.Type {
	case journal.TypeTransfer:
		from, to, err := parsePair(p.From, p.To)
		if err != nil {
			return err
		}
		if err := t.debit(from, p.Value); err != nil {
			return err
		}
		t.credit(to, p.Value)
		if p.Spender != "" {
			spender, err := account.ParseAddress(p.Spender)
			if err != nil {
				return err
			}
			allowed := t.allowance(from, spender)
			if allowed.LessThan(p.Value) {
				return ErrInsufficientAllowance
			}
			t.setAllowance(from, spender, allowed.Sub(p.Value))
		}

	case journal.TypeApproval:
		owner, spender, err := parsePair(p.Owner, p.Spender)
		if err != nil {
			return err
		}
		t.setAllowance(owner, spender, p.Value)

	case journal.TypeMediatorStaked, journal.TypeMediatorUnstaked:
		mediator, err := account.ParseAddress(p.Mediator)
		if err != nil {
			return err
		}
		st := t.stake(mediator)
		if f.Type == journal.TypeMediatorStaked {
			if err := t.debit(mediator, p.Amount); err != nil {
				return err
			}
			if st.StakedAt.IsZero() {
				st.StakedAt = f.OccurredAt
			}
			st.Amount = st.Amount.Add(p.Amount)
			t.totalStaked = t.totalStaked.Add(p.Amount)
		} else {
			if p.Amount.GreaterThan(st.Amount) {
				return ErrInsufficientStake
			}
			st.Amount = st.Amount.Sub(p.Amount)
			t.totalStaked = t.totalStaked.Sub(p.Amount)
			t.credit(mediator, p.Amount)
		}
		st.Active = st.Amount.GreaterThanOrEqual(s.cfg.MinimumMediatorStake)
		t.putStake(mediator, st)

	case journal.TypeRewardMinted, journal.TypeMediatorRewarded:
		to := p.To
		if f.Type == journal.TypeMediatorRewarded {
			to = p.Mediator
		}
		addr, err := account.ParseAddress(to)
		if err != nil {
			return err
		}
		if t.totalSupply.Add(p.Amount).GreaterThan(s.cfg.MaxSupply) {
			return ErrSupplyCap
		}
		t.credit(addr, p.Amount)
		t.totalSupply = t.totalSupply.Add(p.Amount)
		if f.Type == journal.TypeMediatorRewarded {
			st := t.stake(addr)
			st.RewardsEarned = st.RewardsEarned.Add(p.Amount)
			t.putStake(addr, st)
		}

	case journal.TypePaymentMade:
		payer, err := account.ParseAddress(p.Payer)
		if err != nil {
			return err
		}
		if err := t.debit(payer, p.Tokens); err != nil {
			return err
		}
		t.credit(s.cfg.Owner, p.Tokens)

	case journal.TypeProposalCreated:
		proposer, err := account.ParseAddress(p.Proposer)
		if err != nil {
			return err
		}
		t.putProposal(Proposal{
			ID:           p.ProposalID,
			Proposer:     proposer,
			Description:  p.Description,
			ForVotes:     decimal.Zero,
			AgainstVotes: decimal.Zero,
			StartTime:    p.StartTime,
			EndTime:      p.EndTime,
		})
		t.proposalSeq = max(t.proposalSeq, p.ProposalID)

	case journal.TypeVoteCast, journal.TypeProposalExecuted, journal.TypeProposalCancelled:
		prop, ok := t.proposal(p.ProposalID)
		if !ok {
			return ErrProposalNotFound
		}
		switch f.Type {
		case journal.TypeVoteCast:
			if p.Support {
				prop.ForVotes = prop.ForVotes.Add(p.Weight)
			} else {
				prop.AgainstVotes = prop.AgainstVotes.Add(p.Weight)
			}
		case journal.TypeProposalExecuted:
			prop.Executed = true
		default:
			prop.Cancelled = true
		}
		t.putProposal(prop)

	default:
		return fmt.Errorf("unknown fact type %q", f.Type)
	}
	return nil
}

func parsePair(a, b string) (account.Address, account.Address, error) {
	first, err := account.ParseAddress(a)
	if err != nil {
		return account.Zero, account.Zero, err
	}
	second, err := account.ParseAddress(b)
	if err != nil {
		return account.Zero, account.Zero, err
	}
	return first, second, nil
}

package ledger

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"mp4dao/account"
	"mp4dao/journal"
)

// CreateProposal opens a proposal whose voting window starts now and lasts
// the configured voting period. Any account may propose.
func (s *Service) CreateProposal(ctx context.Context, caller account.Address, description string) (uint64, error) {
	var id uint64
	err := s.apply(ctx, "create_proposal", caller, func(t *tx, now time.Time) (event, error) {
		if caller.IsZero() {
			return event{}, ErrZeroAddress
		}
		if strings.TrimSpace(description) == "" {
			return event{}, ErrEmptyDescription
		}
		t.proposalSeq++
		p := Proposal{
			ID:           t.proposalSeq,
			Proposer:     caller,
			Description:  description,
			ForVotes:     decimal.Zero,
			AgainstVotes: decimal.Zero,
			StartTime:    now,
			EndTime:      now.Add(s.cfg.VotingPeriod),
		}
		t.putProposal(p)
		id = p.ID

		return event{
			typ: journal.TypeProposalCreated,
			key: proposalKey(p.ID),
			payload: map[string]any{
				"proposal_id": p.ID,
				"proposer":    caller.String(),
				"description": description,
				"start_time":  p.StartTime,
				"end_time":    p.EndTime,
			},
		}, nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Vote adds caller's current balance to one side of the tally. The weight is
// read at vote time and no ballot is recorded, so an account can vote again
// or move tokens and vote from another account.
func (s *Service) Vote(ctx context.Context, caller account.Address, proposalID uint64, support bool) error {
	return s.apply(ctx, "vote", caller, func(t *tx, now time.Time) (event, error) {
		if caller.IsZero() {
			return event{}, ErrZeroAddress
		}
		p, ok := t.proposal(proposalID)
		if !ok {
			return event{}, ErrProposalNotFound
		}
		if p.Cancelled {
			return event{}, ErrProposalCancelled
		}
		if now.Before(p.StartTime) || now.After(p.EndTime) {
			return event{}, ErrVotingClosed
		}

		weight := t.balanceOf(caller)
		if support {
			p.ForVotes = p.ForVotes.Add(weight)
		} else {
			p.AgainstVotes = p.AgainstVotes.Add(weight)
		}
		t.putProposal(p)

		return event{
			typ: journal.TypeVoteCast,
			key: proposalKey(p.ID),
			payload: map[string]any{
				"proposal_id": p.ID,
				"voter":       caller.String(),
				"support":     support,
				"weight":      weight.String(),
			},
		}, nil
	})
}

// ExecuteProposal marks a proposal executed once its voting window closed.
// Carrying out the proposal's intent is left to the caller.
func (s *Service) ExecuteProposal(ctx context.Context, caller account.Address, proposalID uint64) error {
	return s.apply(ctx, "execute_proposal", caller, func(t *tx, now time.Time) (event, error) {
		p, ok := t.proposal(proposalID)
		if !ok {
			return event{}, ErrProposalNotFound
		}
		if p.Cancelled {
			return event{}, ErrProposalCancelled
		}
		if p.Executed {
			return event{}, ErrAlreadyExecuted
		}
		if !now.After(p.EndTime) {
			return event{}, ErrVotingNotEnded
		}
		p.Executed = true
		t.putProposal(p)

		return event{
			typ: journal.TypeProposalExecuted,
			key: proposalKey(p.ID),
			payload: map[string]any{
				"proposal_id":   p.ID,
				"executor":      caller.String(),
				"for_votes":     p.ForVotes.String(),
				"against_votes": p.AgainstVotes.String(),
			},
		}, nil
	})
}

// CancelProposal withdraws a proposal before its window closes. Only the
// proposer or the owner may cancel.
func (s *Service) CancelProposal(ctx context.Context, caller account.Address, proposalID uint64) error {
	return s.apply(ctx, "cancel_proposal", caller, func(t *tx, now time.Time) (event, error) {
		p, ok := t.proposal(proposalID)
		if !ok {
			return event{}, ErrProposalNotFound
		}
		if caller != p.Proposer && caller != s.cfg.Owner {
			return event{}, ErrNotProposer
		}
		if p.Cancelled {
			return event{}, ErrProposalCancelled
		}
		if p.Executed {
			return event{}, ErrAlreadyExecuted
		}
		if now.After(p.EndTime) {
			return event{}, ErrVotingClosed
		}
		p.Cancelled = true
		t.putProposal(p)

		return event{
			typ: journal.TypeProposalCancelled,
			key: proposalKey(p.ID),
			payload: map[string]any{
				"proposal_id":  p.ID,
				"cancelled_by": caller.String(),
			},
		}, nil
	})
}

func (s *Service) ProposalCount() uint64 { return s.snapshot().proposalSeq }

func (s *Service) GetProposal(id uint64) (Proposal, error) {
	p, ok := s.snapshot().proposal(id)
	if !ok {
		return Proposal{}, ErrProposalNotFound
	}
	return p, nil
}

// ProposalStatus derives the status of proposal id at now.
func (s *Service) ProposalStatus(id uint64, now time.Time) (ProposalStatus, error) {
	p, err := s.GetProposal(id)
	if err != nil {
		return "", err
	}
	return p.StatusAt(now), nil
}

// ListProposals returns up to limit proposals, newest first, skipping offset.
func (s *Service) ListProposals(limit, offset int) []Proposal {
	snap := s.snapshot()
	if limit <= 0 || offset < 0 || uint64(offset) >= snap.proposalSeq {
		return nil
	}
	out := make([]Proposal, 0, limit)
	for id := snap.proposalSeq - uint64(offset); id >= 1 && len(out) < limit; id-- {
		if p, ok := snap.proposal(id); ok {
			out = append(out, p)
		}
	}
	return out
}

func proposalKey(id uint64) string {
	return "proposal-" + strconv.FormatUint(id, 10)
}

package registry

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"mp4dao/account"
	"mp4dao/dispute"
	"mp4dao/journal"
)

// CreateDispute files a claim against workID and marks the work disputed.
// Authors cannot dispute their own work.
func (s *Service) CreateDispute(ctx context.Context, caller account.Address, workID uint64, reason, evidenceURI string, payment decimal.Decimal) (Receipt, error) {
	var receipt Receipt
	err := s.apply(ctx, "create_dispute", caller, func(t *tx, now time.Time) (event, *payout, error) {
		if t.paused {
			return event{}, nil, ErrPaused
		}
		if caller.IsZero() {
			return event{}, nil, ErrZeroAddress
		}
		w, ok := t.work(workID)
		if !ok {
			return event{}, nil, ErrWorkNotFound
		}
		if w.HasAuthor(caller) {
			return event{}, nil, ErrAuthorDispute
		}
		if strings.TrimSpace(reason) == "" {
			return event{}, nil, ErrEmptyReason
		}
		fee := t.disputeFee
		refund, err := collectFee(t, payment, fee)
		if err != nil {
			return event{}, nil, err
		}

		t.disputeSeq++
		d := dispute.Record{
			ID:          t.disputeSeq,
			WorkID:      workID,
			Claimant:    caller,
			Reason:      reason,
			EvidenceURI: evidenceURI,
			Status:      dispute.StatusPending,
			CreatedAt:   now,
		}
		if s.responseWindow > 0 {
			deadline := now.Add(s.responseWindow)
			d.ResponseDeadline = &deadline
		}
		t.putDispute(d)

		w = w.clone()
		w.Disputed = true
		t.putWork(w)
		receipt = Receipt{ID: d.ID, Fee: fee, Refund: refund}

		payload := map[string]any{
			"dispute_id":   d.ID,
			"work_id":      workID,
			"claimant":     caller.String(),
			"reason":       reason,
			"evidence_uri": evidenceURI,
			"fee":          fee.String(),
			"refund":       refund.String(),
		}
		if d.ResponseDeadline != nil {
			payload["response_deadline"] = *d.ResponseDeadline
		}
		return event{typ: journal.TypeDisputeCreated, key: workKey(workID), payload: payload},
			&payout{to: caller, amount: refund, memo: "dispute refund"}, nil
	})
	if err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

// ResolveDispute moves a dispute to next. The caller must satisfy the
// mediation policy; only RESOLVED lifts the work's disputed mark.
func (s *Service) ResolveDispute(ctx context.Context, caller account.Address, disputeID uint64, next dispute.Status) error {
	return s.apply(ctx, "resolve_dispute", caller, func(t *tx, now time.Time) (event, *payout, error) {
		d, ok := t.dispute(disputeID)
		if !ok {
			return event{}, nil, ErrDisputeNotFound
		}
		if d.Status.Terminal() {
			return event{}, nil, dispute.ErrTerminal
		}
		if !s.policy.CanMediate(caller) {
			return event{}, nil, ErrNotMediator
		}
		if err := dispute.ValidateTransition(d.Status, next); err != nil {
			return event{}, nil, err
		}
		w, ok := t.work(d.WorkID)
		if !ok {
			return event{}, nil, ErrWorkNotFound
		}

		previous := d.Status
		resolvedAt := now
		d.Status = next
		d.Mediator = caller
		d.ResolvedAt = &resolvedAt
		t.putDispute(d)

		if dispute.ClearsDisputedFlag(next) {
			w = w.clone()
			w.Disputed = false
			t.putWork(w)
		}

		return event{
			typ: journal.TypeDisputeResolved,
			key: workKey(d.WorkID),
			payload: map[string]any{
				"dispute_id":      d.ID,
				"work_id":         d.WorkID,
				"mediator":        caller.String(),
				"previous_status": previous.String(),
				"status":          next.String(),
				"work_disputed":   w.Disputed,
			},
		}, nil, nil
	})
}

// GetDispute returns the dispute with id.
func (s *Service) GetDispute(id uint64) (dispute.Record, error) {
	d, ok := s.snapshot().dispute(id)
	if !ok {
		return dispute.Record{}, ErrDisputeNotFound
	}
	return d.Clone(), nil
}

func (s *Service) DisputeCount() uint64 { return s.snapshot().disputeSeq }

// CanMediate evaluates the registry's mediation policy for addr.
func (s *Service) CanMediate(addr account.Address) bool {
	return s.policy.CanMediate(addr)
}

package dispute

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mp4dao/account"
	"mp4dao/journal"
)

// Store is the persistence the read model needs; Repository is the
// Postgres implementation.
type Store interface {
	ApplyCreated(ctx context.Context, seq uint64, rec Record) error
	ApplyTransition(ctx context.Context, seq uint64, id uint64, status Status, mediator account.Address, at time.Time) error
	ApplyReverted(ctx context.Context, seq uint64, id uint64) error
	Get(ctx context.Context, id uint64) (Record, error)
	ListByWork(ctx context.Context, workID uint64) ([]Record, error)
}

// Service keeps the dispute read model in step with the journal. It plugs
// into the fact relay as a publisher and ignores facts it does not project.
type Service struct {
	repo Store
}

func NewService(repo Store) *Service {
	return &Service{repo: repo}
}

type createdPayload struct {
	DisputeID        uint64     `json:"dispute_id"`
	WorkID           uint64     `json:"work_id"`
	Claimant         string     `json:"claimant"`
	Reason           string     `json:"reason"`
	EvidenceURI      string     `json:"evidence_uri"`
	ResponseDeadline *time.Time `json:"response_deadline"`
}

type resolvedPayload struct {
	DisputeID uint64 `json:"dispute_id"`
	Mediator  string `json:"mediator"`
	Status    string `json:"status"`
}

func (s *Service) Publish(ctx context.Context, fact journal.Fact) error {
	switch fact.Type {
	case journal.TypeDisputeCreated:
		var p createdPayload
		if err := json.Unmarshal(fact.Payload, &p); err != nil {
			return fmt.Errorf("dispute: decode %s: %w", fact.Type, err)
		}
		return s.repo.ApplyCreated(ctx, fact.Seq, Record{
			ID:               p.DisputeID,
			WorkID:           p.WorkID,
			Claimant:         account.Address(p.Claimant),
			Reason:           p.Reason,
			EvidenceURI:      p.EvidenceURI,
			Status:           StatusPending,
			CreatedAt:        fact.OccurredAt,
			ResponseDeadline: p.ResponseDeadline,
		})
	case journal.TypeDisputeResolved:
		var p resolvedPayload
		if err := json.Unmarshal(fact.Payload, &p); err != nil {
			return fmt.Errorf("dispute: decode %s: %w", fact.Type, err)
		}
		status, err := ParseStatus(p.Status)
		if err != nil {
			return fmt.Errorf("dispute: decode %s: %w", fact.Type, err)
		}
		return s.repo.ApplyTransition(ctx, fact.Seq, p.DisputeID, status, account.Address(p.Mediator), fact.OccurredAt)
	case journal.TypeOperationReverted:
		var r journal.Reversal
		if err := json.Unmarshal(fact.Payload, &r); err != nil {
			return fmt.Errorf("dispute: decode %s: %w", fact.Type, err)
		}
		if r.FactType != journal.TypeDisputeCreated {
			return nil
		}
		var p createdPayload
		if err := json.Unmarshal(r.Payload, &p); err != nil {
			return fmt.Errorf("dispute: decode reverted %s: %w", r.FactType, err)
		}
		return s.repo.ApplyReverted(ctx, fact.Seq, p.DisputeID)
	default:
		return nil
	}
}

func (s *Service) Get(ctx context.Context, id uint64) (Record, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByWork(ctx context.Context, workID uint64) ([]Record, error) {
	return s.repo.ListByWork(ctx, workID)
}

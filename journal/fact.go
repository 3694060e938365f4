// Package journal records one structured fact per committed core operation,
// in commit order, for external indexing and replay.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mp4dao/account"
)

// Fact types emitted by the registry.
const (
	TypeWorkRegistered               = "WorkRegistered"
	TypeMetadataUpdated              = "MetadataUpdated"
	TypeDisputeCreated               = "DisputeCreated"
	TypeDisputeResolved              = "DisputeResolved"
	TypeFeesUpdated                  = "FeesUpdated"
	TypeMediatorAuthorizationChanged = "MediatorAuthorizationChanged"
	TypePaused                       = "Paused"
	TypeUnpaused                     = "Unpaused"
	TypeFeesWithdrawn                = "FeesWithdrawn"
)

// Fact types emitted by the token ledger.
const (
	TypeTransfer          = "Transfer"
	TypeApproval          = "Approval"
	TypeProposalCreated   = "ProposalCreated"
	TypeVoteCast          = "VoteCast"
	TypeProposalExecuted  = "ProposalExecuted"
	TypeProposalCancelled = "ProposalCancelled"
	TypeMediatorStaked    = "MediatorStaked"
	TypeMediatorUnstaked  = "MediatorUnstaked"
	TypeMediatorRewarded  = "MediatorRewarded"
	TypeRewardMinted      = "RewardMinted"
	TypePaymentMade       = "PaymentMade"
)

// TypeOperationReverted cancels an earlier fact whose operation failed after
// the fact was appended. Either engine may emit it.
const TypeOperationReverted = "OperationReverted"

// Sources name the engine that produced a fact.
const (
	SourceRegistry = "registry"
	SourceLedger   = "ledger"
)

// ErrFactNotFound signals an unknown fact id.
var ErrFactNotFound = errors.New("journal: fact not found")

// Fact is one committed state change.
type Fact struct {
	ID           uuid.UUID
	Seq          uint64
	Type         string
	Source       string
	Actor        account.Address
	PartitionKey string
	Payload      json.RawMessage
	OccurredAt   time.Time
}

// NewFact builds an unsequenced fact; the store assigns Seq on append.
func NewFact(source, factType string, actor account.Address, partitionKey string, payload map[string]any, at time.Time) (Fact, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Fact{}, fmt.Errorf("journal: marshal %s payload: %w", factType, err)
	}
	return Fact{
		ID:           uuid.New(),
		Type:         factType,
		Source:       source,
		Actor:        actor,
		PartitionKey: partitionKey,
		Payload:      body,
		OccurredAt:   at.UTC(),
	}, nil
}

// Appender is the write side the engines depend on. Append must be durable
// before it returns; a failed append aborts the operation.
type Appender interface {
	Append(ctx context.Context, fact Fact) (Fact, error)
}

// Store is the full journal, including the outbox view the relay drains.
type Store interface {
	Appender
	List(ctx context.Context, afterSeq uint64, limit int) ([]Fact, error)
	FetchUnpublished(ctx context.Context, limit int) ([]Fact, error)
	MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
}

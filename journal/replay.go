package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Reversal is the payload of an OperationReverted fact.
type Reversal struct {
	FactID   uuid.UUID       `json:"fact_id"`
	FactType string          `json:"fact_type"`
	Reason   string          `json:"reason"`
	Payload  json.RawMessage `json:"payload"`
}

// NewReversal builds the fact that cancels f. It carries f's partition key so
// consumers see it after f, and f's payload so they can undo what f did.
func NewReversal(f Fact, reason string, at time.Time) (Fact, error) {
	return NewFact(f.Source, TypeOperationReverted, f.Actor, f.PartitionKey, map[string]any{
		"fact_id":   f.ID.String(),
		"fact_type": f.Type,
		"reason":    reason,
		"payload":   f.Payload,
	}, at)
}

// Lister is the read side of a store.
type Lister interface {
	List(ctx context.Context, afterSeq uint64, limit int) ([]Fact, error)
}

const replayPage = 1000

// Committed reads the whole journal in sequence order and drops every fact a
// later reversal cancelled, along with the reversals themselves. What is left
// is the history the engines replay on start.
func Committed(ctx context.Context, l Lister) ([]Fact, error) {
	var (
		facts    []Fact
		after    uint64
		reverted = make(map[uuid.UUID]bool)
	)
	for {
		page, err := l.List(ctx, after, replayPage)
		if err != nil {
			return nil, fmt.Errorf("journal: replay after seq %d: %w", after, err)
		}
		if len(page) == 0 {
			break
		}
		for _, f := range page {
			if f.Type != TypeOperationReverted {
				facts = append(facts, f)
				continue
			}
			var r Reversal
			if err := json.Unmarshal(f.Payload, &r); err != nil {
				return nil, fmt.Errorf("journal: decode reversal seq %d: %w", f.Seq, err)
			}
			reverted[r.FactID] = true
		}
		after = page[len(page)-1].Seq
	}

	kept := facts[:0]
	for _, f := range facts {
		if !reverted[f.ID] {
			kept = append(kept, f)
		}
	}
	return kept, nil
}

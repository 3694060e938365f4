package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"mp4dao/account"
	"mp4dao/dispute"
	"mp4dao/journal"
)

var errRestoreAfterStart = errors.New("registry: restore must run before the first operation")

// Restore rebuilds the registry from committed facts in journal order,
// skipping facts from other sources. Facts are trusted: only the structural
// rules a replay can break (hash uniqueness, known ids) are re-checked. It
// must run before the service handles any operation.
func (s *Service) Restore(facts []journal.Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Load() != s.genesis {
		return errRestoreAfterStart
	}
	t := begin(s.genesis)
	replayed := 0
	for _, f := range facts {
		if f.Source != journal.SourceRegistry {
			continue
		}
		if err := replay(t, f); err != nil {
			return fmt.Errorf("registry: restore seq %d %s: %w", f.Seq, f.Type, err)
		}
		replayed++
	}
	s.current.Store(t.commit())
	s.logger.Info("registry restored",
		"module", "registry",
		"operation", "restore",
		"facts", replayed,
		"works", t.workSeq,
		"disputes", t.disputeSeq,
	)
	return nil
}

type workRegisteredFact struct {
	WorkID        uint64          `json:"work_id"`
	ContentHash   string          `json:"content_hash"`
	MetadataURI   string          `json:"metadata_uri"`
	Authors       []string        `json:"authors"`
	SplitsBps     []uint32        `json:"splits_bps"`
	WorkType      string          `json:"work_type"`
	PublicListing bool            `json:"public_listing"`
	Fee           decimal.Decimal `json:"fee"`
}

type metadataUpdatedFact struct {
	WorkID      uint64 `json:"work_id"`
	MetadataURI string `json:"metadata_uri"`
}

type disputeCreatedFact struct {
	DisputeID        uint64          `json:"dispute_id"`
	WorkID           uint64          `json:"work_id"`
	Claimant         string          `json:"claimant"`
	Reason           string          `json:"reason"`
	EvidenceURI      string          `json:"evidence_uri"`
	Fee              decimal.Decimal `json:"fee"`
	ResponseDeadline *time.Time      `json:"response_deadline"`
}

type disputeResolvedFact struct {
	DisputeID    uint64 `json:"dispute_id"`
	Mediator     string `json:"mediator"`
	Status       string `json:"status"`
	WorkDisputed bool   `json:"work_disputed"`
}

type feesUpdatedFact struct {
	RegistrationFee decimal.Decimal `json:"registration_fee"`
	DisputeFee      decimal.Decimal `json:"dispute_fee"`
}

type mediatorFact struct {
	Mediator   string `json:"mediator"`
	Authorized bool   `json:"authorized"`
}

type withdrawnFact struct {
	Amount decimal.Decimal `json:"amount"`
}

func replay(t *tx, f journal.Fact) error {
	switch f.Type {
	case journal.TypeWorkRegistered:
		var p workRegisteredFact
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return err
		}
		return replayWork(t, p, f.OccurredAt)

	case journal.TypeMetadataUpdated:
		var p metadataUpdatedFact
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return err
		}
		w, ok := t.work(p.WorkID)
		if !ok {
			return ErrWorkNotFound
		}
		w = w.clone()
		w.MetadataURI = p.MetadataURI
		t.putWork(w)

	case journal.TypeDisputeCreated:
		var p disputeCreatedFact
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return err
		}
		w, ok := t.work(p.WorkID)
		if !ok {
			return ErrWorkNotFound
		}
		claimant, err := account.ParseAddress(p.Claimant)
		if err != nil {
			return err
		}
		t.putDispute(dispute.Record{
			ID:               p.DisputeID,
			WorkID:           p.WorkID,
			Claimant:         claimant,
			Reason:           p.Reason,
			EvidenceURI:      p.EvidenceURI,
			Status:           dispute.StatusPending,
			CreatedAt:        f.OccurredAt,
			ResponseDeadline: p.ResponseDeadline,
		})
		t.disputeSeq = max(t.disputeSeq, p.DisputeID)
		t.collectedFees = t.collectedFees.Add(p.Fee)
		w = w.clone()
		w.Disputed = true
		t.putWork(w)

	case journal.TypeDisputeResolved:
		var p disputeResolvedFact
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return err
		}
		d, ok := t.dispute(p.DisputeID)
		if !ok {
			return ErrDisputeNotFound
		}
		status, err := dispute.ParseStatus(p.Status)
		if err != nil {
			return err
		}
		mediator, err := account.ParseAddress(p.Mediator)
		if err != nil {
			return err
		}
		resolvedAt := f.OccurredAt
		d.Status = status
		d.Mediator = mediator
		d.ResolvedAt = &resolvedAt
		t.putDispute(d)
		if w, ok := t.work(d.WorkID); ok && w.Disputed != p.WorkDisputed {
			w = w.clone()
			w.Disputed = p.WorkDisputed
			t.putWork(w)
		}

	case journal.TypeFeesUpdated:
		var p feesUpdatedFact
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return err
		}
		t.registrationFee = p.RegistrationFee
		t.disputeFee = p.DisputeFee

	case journal.TypeMediatorAuthorizationChanged:
		var p mediatorFact
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return err
		}
		addr, err := account.ParseAddress(p.Mediator)
		if err != nil {
			return err
		}
		t.setMediator(addr, p.Authorized)

	case journal.TypePaused:
		t.paused = true
	case journal.TypeUnpaused:
		t.paused = false

	case journal.TypeFeesWithdrawn:
		var p withdrawnFact
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return err
		}
		t.collectedFees = t.collectedFees.Sub(p.Amount)

	default:
		return fmt.Errorf("unknown fact type %q", f.Type)
	}
	return nil
}

func replayWork(t *tx, p workRegisteredFact, at time.Time) error {
	hash, err := ParseContentHash(p.ContentHash)
	if err != nil {
		return err
	}
	if t.hashTaken(hash) {
		return ErrDuplicateHash
	}
	workType, err := ParseWorkType(p.WorkType)
	if err != nil {
		return err
	}
	authors := make([]account.Address, len(p.Authors))
	for i, a := range p.Authors {
		if authors[i], err = account.ParseAddress(a); err != nil {
			return err
		}
	}
	t.indexWork(Work{
		ID:            p.WorkID,
		ContentHash:   hash,
		MetadataURI:   p.MetadataURI,
		Authors:       authors,
		SplitsBps:     p.SplitsBps,
		WorkType:      workType,
		RegisteredAt:  at,
		PublicListing: p.PublicListing,
	})
	t.workSeq = max(t.workSeq, p.WorkID)
	t.collectedFees = t.collectedFees.Add(p.Fee)
	return nil
}

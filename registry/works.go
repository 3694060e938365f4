package registry

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"mp4dao/account"
	"mp4dao/journal"
)

// RegisterWork anchors a new work. Every check runs before anything is
// written; on success the fee is booked and the overpayment refunded.
func (s *Service) RegisterWork(ctx context.Context, caller account.Address, p RegisterParams, payment decimal.Decimal) (Receipt, error) {
	var receipt Receipt
	err := s.apply(ctx, "register_work", caller, func(t *tx, now time.Time) (event, *payout, error) {
		if t.paused {
			return event{}, nil, ErrPaused
		}
		if p.ContentHash.IsZero() {
			return event{}, nil, ErrInvalidHash
		}
		if t.hashTaken(p.ContentHash) {
			return event{}, nil, ErrDuplicateHash
		}
		if caller.IsZero() || !containsAddress(p.Authors, caller) {
			return event{}, nil, ErrCallerNotAuthor
		}
		if err := validateAuthors(p.Authors, p.SplitsBps); err != nil {
			return event{}, nil, err
		}
		if strings.TrimSpace(p.MetadataURI) == "" {
			return event{}, nil, ErrEmptyURI
		}
		if !p.WorkType.Valid() {
			return event{}, nil, ErrUnknownWorkType
		}
		fee := t.registrationFee
		refund, err := collectFee(t, payment, fee)
		if err != nil {
			return event{}, nil, err
		}

		t.workSeq++
		w := Work{
			ID:            t.workSeq,
			ContentHash:   p.ContentHash,
			MetadataURI:   p.MetadataURI,
			Authors:       append([]account.Address(nil), p.Authors...),
			SplitsBps:     append([]uint32(nil), p.SplitsBps...),
			WorkType:      p.WorkType,
			RegisteredAt:  now,
			PublicListing: p.PublicListing,
		}
		t.indexWork(w)
		receipt = Receipt{ID: w.ID, Fee: fee, Refund: refund}

		authors := make([]string, len(w.Authors))
		for i, a := range w.Authors {
			authors[i] = a.String()
		}
		return event{
			typ: journal.TypeWorkRegistered,
			key: workKey(w.ID),
			payload: map[string]any{
				"work_id":        w.ID,
				"content_hash":   w.ContentHash.String(),
				"metadata_uri":   w.MetadataURI,
				"authors":        authors,
				"splits_bps":     w.SplitsBps,
				"work_type":      w.WorkType.String(),
				"public_listing": w.PublicListing,
				"fee":            fee.String(),
				"refund":         refund.String(),
			},
		}, &payout{to: caller, amount: refund, memo: "registration refund"}, nil
	})
	if err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

// validateAuthors checks the author list and its parallel split array.
func validateAuthors(authors []account.Address, splits []uint32) error {
	if len(authors) != len(splits) {
		return ErrSplitLength
	}
	if len(authors) == 0 || len(authors) > MaxAuthors {
		return ErrAuthorCount
	}
	seen := make(map[account.Address]struct{}, len(authors))
	for _, a := range authors {
		if a.IsZero() {
			return ErrZeroAddress
		}
		if _, dup := seen[a]; dup {
			return ErrDuplicateAuthor
		}
		seen[a] = struct{}{}
	}
	var sum uint64
	for _, bps := range splits {
		sum += uint64(bps)
	}
	if sum != TotalSplitBps {
		return ErrSplitSum
	}
	return nil
}

// UpdateMetadata replaces a work's metadata URI. Authors only.
func (s *Service) UpdateMetadata(ctx context.Context, caller account.Address, workID uint64, uri string) error {
	return s.apply(ctx, "update_metadata", caller, func(t *tx, _ time.Time) (event, *payout, error) {
		w, ok := t.work(workID)
		if !ok {
			return event{}, nil, ErrWorkNotFound
		}
		if !w.HasAuthor(caller) {
			return event{}, nil, ErrNotAuthor
		}
		if strings.TrimSpace(uri) == "" {
			return event{}, nil, ErrEmptyURI
		}
		previous := w.MetadataURI
		w = w.clone()
		w.MetadataURI = uri
		t.putWork(w)

		return event{
			typ: journal.TypeMetadataUpdated,
			key: workKey(w.ID),
			payload: map[string]any{
				"work_id":      w.ID,
				"metadata_uri": uri,
				"previous_uri": previous,
			},
		}, nil, nil
	})
}

// GetWork returns a copy of the work with id.
func (s *Service) GetWork(id uint64) (Work, error) {
	w, ok := s.snapshot().work(id)
	if !ok {
		return Work{}, ErrWorkNotFound
	}
	return w.clone(), nil
}

// GetWorksByAuthor lists the ids of every work naming addr, ascending.
func (s *Service) GetWorksByAuthor(addr account.Address) []uint64 {
	return s.snapshot().worksByAuthor(addr)
}

func (s *Service) IsAuthor(workID uint64, addr account.Address) bool {
	w, ok := s.snapshot().work(workID)
	return ok && w.HasAuthor(addr)
}

func (s *Service) WorkCount() uint64 { return s.snapshot().workSeq }

// WorkIDByHash resolves a content hash to its work id.
func (s *Service) WorkIDByHash(h ContentHash) (uint64, bool) {
	return s.snapshot().workIDByHash(h)
}

func containsAddress(list []account.Address, addr account.Address) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}

func workKey(id uint64) string {
	return "work-" + strconv.FormatUint(id, 10)
}

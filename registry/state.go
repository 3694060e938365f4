package registry

import (
	"encoding/binary"

	iradix "github.com/hashicorp/go-immutable-radix/v2"
	"github.com/shopspring/decimal"

	"mp4dao/account"
	"mp4dao/dispute"
)

// state is one committed registry snapshot. works and hashes are the two
// halves of the content-addressed index and always change in the same tx.
type state struct {
	works       *iradix.Tree[Work]
	hashes      *iradix.Tree[uint64]
	authorIndex *iradix.Tree[uint64]
	disputes    *iradix.Tree[dispute.Record]
	mediators   *iradix.Tree[bool]

	registrationFee decimal.Decimal
	disputeFee      decimal.Decimal
	collectedFees   decimal.Decimal
	paused          bool
	workSeq         uint64
	disputeSeq      uint64
}

func (s *state) work(id uint64) (Work, bool) {
	return s.works.Get(idKey(id))
}

func (s *state) dispute(id uint64) (dispute.Record, bool) {
	return s.disputes.Get(idKey(id))
}

func (s *state) workIDByHash(h ContentHash) (uint64, bool) {
	return s.hashes.Get(h[:])
}

func (s *state) allowlisted(addr account.Address) bool {
	v, ok := s.mediators.Get([]byte(addr))
	return ok && v
}

// worksByAuthor walks the author's index prefix; ids come back ascending.
func (s *state) worksByAuthor(addr account.Address) []uint64 {
	var ids []uint64
	s.authorIndex.Root().WalkPrefix(authorPrefix(addr), func(_ []byte, id uint64) bool {
		ids = append(ids, id)
		return false
	})
	return ids
}

type tx struct {
	works       *iradix.Txn[Work]
	hashes      *iradix.Txn[uint64]
	authorIndex *iradix.Txn[uint64]
	disputes    *iradix.Txn[dispute.Record]
	mediators   *iradix.Txn[bool]

	registrationFee decimal.Decimal
	disputeFee      decimal.Decimal
	collectedFees   decimal.Decimal
	paused          bool
	workSeq         uint64
	disputeSeq      uint64
}

func begin(base *state) *tx {
	return &tx{
		works:           base.works.Txn(),
		hashes:          base.hashes.Txn(),
		authorIndex:     base.authorIndex.Txn(),
		disputes:        base.disputes.Txn(),
		mediators:       base.mediators.Txn(),
		registrationFee: base.registrationFee,
		disputeFee:      base.disputeFee,
		collectedFees:   base.collectedFees,
		paused:          base.paused,
		workSeq:         base.workSeq,
		disputeSeq:      base.disputeSeq,
	}
}

func (t *tx) commit() *state {
	return &state{
		works:           t.works.Commit(),
		hashes:          t.hashes.Commit(),
		authorIndex:     t.authorIndex.Commit(),
		disputes:        t.disputes.Commit(),
		mediators:       t.mediators.Commit(),
		registrationFee: t.registrationFee,
		disputeFee:      t.disputeFee,
		collectedFees:   t.collectedFees,
		paused:          t.paused,
		workSeq:         t.workSeq,
		disputeSeq:      t.disputeSeq,
	}
}

func (t *tx) work(id uint64) (Work, bool) {
	return t.works.Get(idKey(id))
}

func (t *tx) putWork(w Work) {
	t.works.Insert(idKey(w.ID), w)
}

// indexWork records a new work in all three indices.
func (t *tx) indexWork(w Work) {
	t.putWork(w)
	t.hashes.Insert(w.ContentHash[:], w.ID)
	for _, a := range w.Authors {
		t.authorIndex.Insert(authorKey(a, w.ID), w.ID)
	}
}

func (t *tx) hashTaken(h ContentHash) bool {
	_, ok := t.hashes.Get(h[:])
	return ok
}

func (t *tx) dispute(id uint64) (dispute.Record, bool) {
	return t.disputes.Get(idKey(id))
}

func (t *tx) putDispute(d dispute.Record) {
	t.disputes.Insert(idKey(d.ID), d)
}

func (t *tx) setMediator(addr account.Address, allowed bool) {
	if allowed {
		t.mediators.Insert([]byte(addr), true)
		return
	}
	t.mediators.Delete([]byte(addr))
}

func idKey(id uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], id)
	return k[:]
}

func authorPrefix(addr account.Address) []byte {
	return append([]byte(addr), '/')
}

func authorKey(addr account.Address, id uint64) []byte {
	return append(authorPrefix(addr), idKey(id)...)
}

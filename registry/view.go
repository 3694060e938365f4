package registry

import (
	"github.com/shopspring/decimal"

	"mp4dao/account"
	"mp4dao/dispute"
)

// View is one committed registry snapshot; all reads through it agree.
type View struct {
	st *state
}

// View captures the current snapshot.
func (s *Service) View() View { return View{st: s.snapshot()} }

// Work returns a copy of the work with id.
func (v View) Work(id uint64) (Work, bool) {
	w, ok := v.st.work(id)
	if !ok {
		return Work{}, false
	}
	return w.clone(), true
}

// Dispute returns a copy of the dispute with id.
func (v View) Dispute(id uint64) (dispute.Record, bool) {
	d, ok := v.st.dispute(id)
	if !ok {
		return dispute.Record{}, false
	}
	return d.Clone(), true
}

func (v View) WorkCount() uint64 { return v.st.workSeq }

func (v View) DisputeCount() uint64 { return v.st.disputeSeq }

func (v View) WorkIDByHash(h ContentHash) (uint64, bool) { return v.st.workIDByHash(h) }

func (v View) WorksByAuthor(addr account.Address) []uint64 { return v.st.worksByAuthor(addr) }

func (v View) CollectedFees() decimal.Decimal { return v.st.collectedFees }

func (v View) Paused() bool { return v.st.paused }

// EachWork calls fn for every work in id order until fn returns false.
func (v View) EachWork(fn func(w Work) bool) {
	v.st.works.Root().Walk(func(_ []byte, w Work) bool {
		return !fn(w.clone())
	})
}

// EachDispute calls fn for every dispute in id order until fn returns false.
func (v View) EachDispute(fn func(d dispute.Record) bool) {
	v.st.disputes.Root().Walk(func(_ []byte, d dispute.Record) bool {
		return !fn(d.Clone())
	})
}

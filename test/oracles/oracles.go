package oracles

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/shopspring/decimal"

	"mp4dao/account"
	"mp4dao/dispute"
	"mp4dao/journal"
	"mp4dao/ledger"
	"mp4dao/registry"
)

// World is everything the oracles inspect.
type World struct {
	Registry *registry.Service
	Ledger   *ledger.Service
	Journal  journal.Store
}

type Oracle struct {
	Name  string
	Check func(ctx context.Context, w World) (string, error)
}

// Suite holds oracles that need memory across runs.
type Suite struct {
	mu       sync.Mutex
	terminal map[uint64]dispute.Record
	lastSeq  uint64
}

func NewSuite() *Suite {
	return &Suite{terminal: make(map[uint64]dispute.Record)}
}

func (s *Suite) All() []Oracle {
	return []Oracle{
		{Name: "O1_unique_content_hash", Check: uniqueHashes},
		{Name: "O2_split_sum", Check: splitSums},
		{Name: "O3_supply_conservation", Check: supplyConservation},
		{Name: "O4_stake_active_flag", Check: stakeActive},
		{Name: "O5_terminal_dispute_immutable", Check: s.terminalImmutable},
		{Name: "O6_journal_seq_monotonic", Check: s.journalMonotonic},
	}
}

// Run executes all oracles and returns the first failure (name and sample
// row text) or an empty name if all pass.
func (s *Suite) Run(ctx context.Context, w World) (string, string, error) {
	for _, o := range s.All() {
		row, err := o.Check(ctx, w)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if row != "" {
			return o.Name, row, nil
		}
	}
	return "", "", nil
}

func uniqueHashes(_ context.Context, w World) (string, error) {
	view := w.Registry.View()
	seen := make(map[registry.ContentHash]uint64)
	var row string
	view.EachWork(func(work registry.Work) bool {
		if prev, dup := seen[work.ContentHash]; dup {
			row = fmt.Sprintf("hash=%s works=%d,%d", work.ContentHash, prev, work.ID)
			return false
		}
		seen[work.ContentHash] = work.ID
		if id, ok := view.WorkIDByHash(work.ContentHash); !ok || id != work.ID {
			row = fmt.Sprintf("hash=%s indexed=%d work=%d", work.ContentHash, id, work.ID)
			return false
		}
		return true
	})
	if row == "" && uint64(len(seen)) != view.WorkCount() {
		row = fmt.Sprintf("works=%d count=%d", len(seen), view.WorkCount())
	}
	return row, nil
}

func splitSums(_ context.Context, w World) (string, error) {
	var row string
	w.Registry.View().EachWork(func(work registry.Work) bool {
		if len(work.Authors) == 0 || len(work.Authors) > registry.MaxAuthors || len(work.Authors) != len(work.SplitsBps) {
			row = fmt.Sprintf("work=%d authors=%d splits=%d", work.ID, len(work.Authors), len(work.SplitsBps))
			return false
		}
		var sum uint32
		for _, bps := range work.SplitsBps {
			sum += bps
		}
		if sum != registry.TotalSplitBps {
			row = fmt.Sprintf("work=%d split_sum=%d", work.ID, sum)
			return false
		}
		return true
	})
	return row, nil
}

func supplyConservation(_ context.Context, w World) (string, error) {
	view := w.Ledger.View()
	held := decimal.Zero
	var row string
	view.EachBalance(func(addr account.Address, bal decimal.Decimal) bool {
		if bal.IsNegative() {
			row = fmt.Sprintf("account=%s balance=%s", addr, bal)
			return false
		}
		held = held.Add(bal)
		return true
	})
	if row != "" {
		return row, nil
	}
	staked := decimal.Zero
	view.EachStake(func(_ account.Address, st ledger.Stake) bool {
		staked = staked.Add(st.Amount)
		return true
	})
	switch {
	case !staked.Equal(view.TotalStaked()):
		return fmt.Sprintf("stakes=%s total_staked=%s", staked, view.TotalStaked()), nil
	case !held.Add(staked).Equal(view.TotalSupply()):
		return fmt.Sprintf("balances=%s staked=%s total_supply=%s", held, staked, view.TotalSupply()), nil
	case view.TotalSupply().GreaterThan(w.Ledger.MaxSupply()):
		return fmt.Sprintf("total_supply=%s max=%s", view.TotalSupply(), w.Ledger.MaxSupply()), nil
	}
	return "", nil
}

func stakeActive(_ context.Context, w World) (string, error) {
	bond := w.Ledger.MinimumMediatorStake()
	var row string
	w.Ledger.View().EachStake(func(addr account.Address, st ledger.Stake) bool {
		if st.Active != st.Amount.GreaterThanOrEqual(bond) {
			row = fmt.Sprintf("mediator=%s amount=%s active=%t", addr, st.Amount, st.Active)
			return false
		}
		return true
	})
	return row, nil
}

func (s *Suite) terminalImmutable(_ context.Context, w World) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var row string
	w.Registry.View().EachDispute(func(d dispute.Record) bool {
		if prev, ok := s.terminal[d.ID]; ok {
			if !reflect.DeepEqual(prev, d) {
				row = fmt.Sprintf("dispute=%d was=%s now=%s", d.ID, prev.Status, d.Status)
				return false
			}
			return true
		}
		if d.Status.Terminal() {
			if d.ResolvedAt == nil || d.Mediator.IsZero() {
				row = fmt.Sprintf("dispute=%d status=%s missing mediator or resolved_at", d.ID, d.Status)
				return false
			}
			s.terminal[d.ID] = d
		}
		return true
	})
	return row, nil
}

func (s *Suite) journalMonotonic(ctx context.Context, w World) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		facts, err := w.Journal.List(ctx, s.lastSeq, 500)
		if err != nil {
			return "", err
		}
		if len(facts) == 0 {
			return "", nil
		}
		for _, f := range facts {
			if f.Seq <= s.lastSeq {
				return fmt.Sprintf("seq=%d after=%d type=%s", f.Seq, s.lastSeq, f.Type), nil
			}
			s.lastSeq = f.Seq
		}
	}
}

// JournalMatches compares the journal length against the number of
// operations the actors saw commit. It only holds once writers have stopped.
func JournalMatches(ctx context.Context, w World, committed int64) (string, error) {
	var (
		total int64
		after uint64
	)
	for {
		facts, err := w.Journal.List(ctx, after, 1000)
		if err != nil {
			return "", err
		}
		if len(facts) == 0 {
			break
		}
		total += int64(len(facts))
		after = facts[len(facts)-1].Seq
	}
	if total != committed {
		return fmt.Sprintf("facts=%d committed_ops=%d", total, committed), nil
	}
	return "", nil
}

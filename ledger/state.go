package ledger

import (
	"encoding/binary"

	iradix "github.com/hashicorp/go-immutable-radix/v2"
	"github.com/shopspring/decimal"

	"mp4dao/account"
)

// state is an immutable snapshot of the ledger. Readers load it through an
// atomic pointer; writers derive the next snapshot inside a tx.
type state struct {
	balances    *iradix.Tree[decimal.Decimal]
	allowances  *iradix.Tree[decimal.Decimal]
	stakes      *iradix.Tree[Stake]
	proposals   *iradix.Tree[Proposal]
	totalSupply decimal.Decimal
	totalStaked decimal.Decimal
	proposalSeq uint64
}

func emptyState() *state {
	return &state{
		balances:    iradix.New[decimal.Decimal](),
		allowances:  iradix.New[decimal.Decimal](),
		stakes:      iradix.New[Stake](),
		proposals:   iradix.New[Proposal](),
		totalSupply: decimal.Zero,
		totalStaked: decimal.Zero,
	}
}

func (s *state) balanceOf(addr account.Address) decimal.Decimal {
	if v, ok := s.balances.Get(addrKey(addr)); ok {
		return v
	}
	return decimal.Zero
}

func (s *state) allowance(owner, spender account.Address) decimal.Decimal {
	if v, ok := s.allowances.Get(allowanceKey(owner, spender)); ok {
		return v
	}
	return decimal.Zero
}

func (s *state) stake(addr account.Address) (Stake, bool) {
	return s.stakes.Get(addrKey(addr))
}

func (s *state) proposal(id uint64) (Proposal, bool) {
	return s.proposals.Get(idKey(id))
}

// tx stages changes against a base snapshot. Nothing is visible until commit,
// so an abandoned tx is a rollback.
type tx struct {
	balances    *iradix.Txn[decimal.Decimal]
	allowances  *iradix.Txn[decimal.Decimal]
	stakes      *iradix.Txn[Stake]
	proposals   *iradix.Txn[Proposal]
	totalSupply decimal.Decimal
	totalStaked decimal.Decimal
	proposalSeq uint64
}

func begin(base *state) *tx {
	return &tx{
		balances:    base.balances.Txn(),
		allowances:  base.allowances.Txn(),
		stakes:      base.stakes.Txn(),
		proposals:   base.proposals.Txn(),
		totalSupply: base.totalSupply,
		totalStaked: base.totalStaked,
		proposalSeq: base.proposalSeq,
	}
}

func (t *tx) commit() *state {
	return &state{
		balances:    t.balances.Commit(),
		allowances:  t.allowances.Commit(),
		stakes:      t.stakes.Commit(),
		proposals:   t.proposals.Commit(),
		totalSupply: t.totalSupply,
		totalStaked: t.totalStaked,
		proposalSeq: t.proposalSeq,
	}
}

func (t *tx) balanceOf(addr account.Address) decimal.Decimal {
	if v, ok := t.balances.Get(addrKey(addr)); ok {
		return v
	}
	return decimal.Zero
}

func (t *tx) setBalance(addr account.Address, v decimal.Decimal) {
	t.balances.Insert(addrKey(addr), v)
}

func (t *tx) debit(addr account.Address, amount decimal.Decimal) error {
	bal := t.balanceOf(addr)
	if bal.LessThan(amount) {
		return ErrInsufficientBalance
	}
	t.setBalance(addr, bal.Sub(amount))
	return nil
}

func (t *tx) credit(addr account.Address, amount decimal.Decimal) {
	t.setBalance(addr, t.balanceOf(addr).Add(amount))
}

func (t *tx) allowance(owner, spender account.Address) decimal.Decimal {
	if v, ok := t.allowances.Get(allowanceKey(owner, spender)); ok {
		return v
	}
	return decimal.Zero
}

func (t *tx) setAllowance(owner, spender account.Address, v decimal.Decimal) {
	t.allowances.Insert(allowanceKey(owner, spender), v)
}

func (t *tx) stake(addr account.Address) Stake {
	if v, ok := t.stakes.Get(addrKey(addr)); ok {
		return v
	}
	return Stake{Amount: decimal.Zero, RewardsEarned: decimal.Zero}
}

func (t *tx) putStake(addr account.Address, st Stake) {
	t.stakes.Insert(addrKey(addr), st)
}

func (t *tx) proposal(id uint64) (Proposal, bool) {
	return t.proposals.Get(idKey(id))
}

func (t *tx) putProposal(p Proposal) {
	t.proposals.Insert(idKey(p.ID), p)
}

func addrKey(addr account.Address) []byte {
	return []byte(addr)
}

func allowanceKey(owner, spender account.Address) []byte {
	k := make([]byte, 0, len(owner)+1+len(spender))
	k = append(k, owner...)
	k = append(k, '/')
	return append(k, spender...)
}

// idKey encodes ids big-endian so tree order matches numeric order.
func idKey(id uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], id)
	return k[:]
}

package ledger

import (
	"github.com/shopspring/decimal"

	"mp4dao/account"
)

// View is one committed ledger snapshot. Every read through the same View
// sees the same state, so cross-account checks stay consistent while
// writers keep committing.
type View struct {
	st *state
}

// View captures the current snapshot.
func (s *Service) View() View { return View{st: s.snapshot()} }

func (v View) BalanceOf(addr account.Address) decimal.Decimal { return v.st.balanceOf(addr) }

func (v View) Allowance(owner, spender account.Address) decimal.Decimal {
	return v.st.allowance(owner, spender)
}

func (v View) TotalSupply() decimal.Decimal { return v.st.totalSupply }

func (v View) TotalStaked() decimal.Decimal { return v.st.totalStaked }

func (v View) MediatorStake(addr account.Address) (Stake, bool) { return v.st.stake(addr) }

func (v View) ProposalCount() uint64 { return v.st.proposalSeq }

func (v View) Proposal(id uint64) (Proposal, bool) { return v.st.proposal(id) }

// EachBalance calls fn for every account with a balance entry, in address
// order, until fn returns false.
func (v View) EachBalance(fn func(addr account.Address, balance decimal.Decimal) bool) {
	v.st.balances.Root().Walk(func(k []byte, bal decimal.Decimal) bool {
		return !fn(account.Address(k), bal)
	})
}

// EachStake calls fn for every staking record until fn returns false.
func (v View) EachStake(fn func(addr account.Address, st Stake) bool) {
	v.st.stakes.Root().Walk(func(k []byte, st Stake) bool {
		return !fn(account.Address(k), st)
	})
}

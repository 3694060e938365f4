// Package mediation defines who may move a dispute through its lifecycle.
//
// The registry consults exactly one Provider. In production that provider is
// AnyOf(allowlist, stake), so an account qualifies either because the
// registry owner allowlisted it or because it holds an active stake in the
// token ledger.
package mediation

import "mp4dao/account"

// Provider answers whether an account may mediate right now.
type Provider interface {
	CanMediate(addr account.Address) bool
}

// ProviderFunc adapts a plain function to Provider.
type ProviderFunc func(addr account.Address) bool

func (f ProviderFunc) CanMediate(addr account.Address) bool { return f(addr) }

// AnyOf combines providers with logical OR. Nil providers are skipped and
// the zero address never qualifies.
func AnyOf(providers ...Provider) Provider {
	return anyOf(providers)
}

type anyOf []Provider

func (ps anyOf) CanMediate(addr account.Address) bool {
	if addr.IsZero() {
		return false
	}
	for _, p := range ps {
		if p != nil && p.CanMediate(addr) {
			return true
		}
	}
	return false
}

// Deny is the provider nobody satisfies.
var Deny Provider = ProviderFunc(func(account.Address) bool { return false })

// Static is a fixed allowlist, useful when the list is owned elsewhere.
type Static map[account.Address]bool

func (s Static) CanMediate(addr account.Address) bool { return s[addr] }

// Package account holds the caller identity type shared by the registry and
// the token ledger.
package account

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// ErrInvalidAddress signals a malformed hex account address.
var ErrInvalidAddress = errors.New("account: invalid address")

// Address is a 20-byte account identifier in canonical lower-case 0x form.
// The zero value is the empty address and never authenticates.
type Address string

// Zero is the empty address.
const Zero Address = ""

// ParseAddress normalises a 0x-prefixed 40 hex digit string.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if len(s) != 42 || !(strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	if _, err := hex.DecodeString(s[2:]); err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return Address("0x" + strings.ToLower(s[2:])), nil
}

// MustParse is ParseAddress for constants and tests.
func MustParse(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) String() string { return string(a) }

// IsZero reports whether a is the empty address.
func (a Address) IsZero() bool { return a == Zero }

// Checksum renders the EIP-55 mixed-case form.
func (a Address) Checksum() string {
	if a.IsZero() {
		return ""
	}
	lower := strings.TrimPrefix(string(a), "0x")
	digest := hex.EncodeToString(Keccak256([]byte(lower)))

	var b strings.Builder
	b.Grow(42)
	b.WriteString("0x")
	for i, c := range lower {
		if c >= 'a' && c <= 'f' && digest[i] >= '8' {
			b.WriteRune(c - 'a' + 'A')
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// Keccak256 is the legacy Keccak digest used for content anchoring.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

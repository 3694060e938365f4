package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMatchesKindAndIdentity(t *testing.T) {
	errDup := New(Conflict, "registry: hash already registered")
	errOther := New(Conflict, "ledger: max supply exceeded")

	wrapped := fmt.Errorf("outer: %w", errDup)

	require.ErrorIs(t, wrapped, Conflict)
	require.ErrorIs(t, wrapped, errDup)
	require.NotErrorIs(t, wrapped, errOther)
	require.NotErrorIs(t, wrapped, Validation)
	require.Equal(t, "registry: hash already registered", errDup.Error())
}

func TestKindOf(t *testing.T) {
	require.Equal(t, Economic, KindOf(fmt.Errorf("x: %w", New(Economic, "ledger: insufficient balance"))))
	require.Equal(t, Unavailable, KindOf(Unavailable))
	require.Equal(t, Kind(""), KindOf(errors.New("boom")))
	require.Equal(t, Kind(""), KindOf(nil))
}

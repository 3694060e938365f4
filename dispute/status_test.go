package dispute

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mp4dao/apperr"
)

func TestValidateTransition(t *testing.T) {
	all := []Status{StatusPending, StatusUnderReview, StatusMediation, StatusResolved, StatusEscalated, StatusDismissed}

	allowed := map[Status]map[Status]bool{
		StatusPending:     {StatusUnderReview: true, StatusMediation: true, StatusResolved: true, StatusDismissed: true, StatusEscalated: true},
		StatusUnderReview: {StatusResolved: true, StatusDismissed: true, StatusEscalated: true},
		StatusMediation:   {StatusResolved: true, StatusDismissed: true, StatusEscalated: true},
	}

	for _, from := range all {
		for _, to := range all {
			err := ValidateTransition(from, to)
			switch {
			case from.Terminal():
				require.Truef(t, errors.Is(err, ErrTerminal), "%s -> %s", from, to)
				require.Truef(t, errors.Is(err, apperr.Conflict), "%s -> %s", from, to)
			case allowed[from][to]:
				require.NoErrorf(t, err, "%s -> %s", from, to)
			default:
				require.Truef(t, errors.Is(err, ErrBadStatus), "%s -> %s: %v", from, to, err)
			}
		}
	}
}

func TestValidateTransitionUnknown(t *testing.T) {
	require.ErrorIs(t, ValidateTransition(StatusPending, Status(42)), ErrUnknownStatus)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("under_review")
	require.NoError(t, err)
	require.Equal(t, StatusUnderReview, s)
	require.Equal(t, "dismissed", StatusDismissed.String())

	_, err = ParseStatus("archived")
	require.ErrorIs(t, err, ErrUnknownStatus)
}

func TestClearsDisputedFlag(t *testing.T) {
	require.True(t, ClearsDisputedFlag(StatusResolved))
	require.False(t, ClearsDisputedFlag(StatusEscalated))
	require.False(t, ClearsDisputedFlag(StatusDismissed))
	require.False(t, ClearsDisputedFlag(StatusMediation))
}

func TestRecordIsOverdue(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	deadline := now.Add(-time.Hour)

	rec := Record{Status: StatusPending, ResponseDeadline: &deadline}
	require.True(t, rec.IsOverdue(now))
	require.False(t, rec.IsOverdue(deadline.Add(-time.Minute)))

	rec.Status = StatusMediation
	require.False(t, rec.IsOverdue(now))

	require.False(t, Record{Status: StatusPending}.IsOverdue(now))
	require.True(t, Record{Status: StatusDismissed}.IsResolved())
}

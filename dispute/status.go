package dispute

import (
	"fmt"

	"mp4dao/apperr"
)

var (
	ErrUnknownStatus = apperr.New(apperr.Validation, "dispute: unknown status")
	ErrTerminal      = apperr.New(apperr.Conflict, "dispute: already finalized")
	ErrBadStatus     = apperr.New(apperr.Validation, "dispute: invalid status transition")
)

// transitions lists the allowed next statuses. Terminal statuses have no entry.
var transitions = map[Status][]Status{
	StatusPending:     {StatusUnderReview, StatusMediation, StatusResolved, StatusDismissed, StatusEscalated},
	StatusUnderReview: {StatusResolved, StatusDismissed, StatusEscalated},
	StatusMediation:   {StatusResolved, StatusDismissed, StatusEscalated},
}

// ValidateTransition checks current -> next against the transition table.
func ValidateTransition(current, next Status) error {
	if !next.Valid() {
		return ErrUnknownStatus
	}
	if current.Terminal() {
		return ErrTerminal
	}
	for _, allowed := range transitions[current] {
		if allowed == next {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrBadStatus, current, next)
}

// ClearsDisputedFlag reports whether entering next lifts the work's disputed mark.
// Only RESOLVED does; ESCALATED and DISMISSED leave the mark for the
// collaborator to act on.
func ClearsDisputedFlag(next Status) bool {
	return next == StatusResolved
}

package dispute

import (
	"time"

	"mp4dao/account"
)

// Status represents the lifecycle of a dispute record.
type Status uint8

const (
	StatusPending Status = iota
	StatusUnderReview
	StatusMediation
	StatusResolved
	StatusEscalated
	StatusDismissed
)

var statusNames = [...]string{
	StatusPending:     "pending",
	StatusUnderReview: "under_review",
	StatusMediation:   "mediation",
	StatusResolved:    "resolved",
	StatusEscalated:   "escalated",
	StatusDismissed:   "dismissed",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// Valid reports whether s is one of the declared statuses.
func (s Status) Valid() bool { return int(s) < len(statusNames) }

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	switch s {
	case StatusResolved, StatusEscalated, StatusDismissed:
		return true
	default:
		return false
	}
}

// ParseStatus maps the lower-case status name back to its value.
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return 0, ErrUnknownStatus
}

// Record is a claim filed against a registered work.
type Record struct {
	ID          uint64
	WorkID      uint64
	Claimant    account.Address
	Reason      string
	EvidenceURI string
	Status      Status
	Mediator    account.Address
	CreatedAt   time.Time
	ResolvedAt  *time.Time
	// ResponseDeadline is nil when the registry runs without a response window.
	ResponseDeadline *time.Time
}

// Clone returns a copy that shares no time pointers with r.
func (r Record) Clone() Record {
	if r.ResolvedAt != nil {
		at := *r.ResolvedAt
		r.ResolvedAt = &at
	}
	if r.ResponseDeadline != nil {
		at := *r.ResponseDeadline
		r.ResponseDeadline = &at
	}
	return r
}

// IsResolved reports whether the record reached a terminal status.
func (r Record) IsResolved() bool { return r.Status.Terminal() }

// IsOverdue reports whether a pending dispute is past its response deadline at now.
func (r Record) IsOverdue(now time.Time) bool {
	if r.ResponseDeadline == nil || r.Status != StatusPending {
		return false
	}
	return now.After(*r.ResponseDeadline)
}

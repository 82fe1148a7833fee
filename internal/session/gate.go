package session

import (
	"time"

	"github.com/victornm/quizgrade/internal/domain"
)

// Status is the position of "now" relative to a session window.
type Status int

const (
	StatusNotYetOpen Status = iota
	StatusOpen
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusNotYetOpen:
		return "not_yet_open"
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Classify places now relative to the session window. Both bounds are
// inclusive; a nil OpenUntil never closes.
func Classify(now time.Time, s domain.Session) Status {
	if s.OpenFrom != nil && now.Before(*s.OpenFrom) {
		return StatusNotYetOpen
	}
	if s.OpenUntil != nil && now.After(*s.OpenUntil) {
		return StatusClosed
	}
	return StatusOpen
}

// CheckSubmission returns nil when the session accepts answers at now, or
// the rejection naming the violated boundary.
func CheckSubmission(now time.Time, s domain.Session) error {
	switch Classify(now, s) {
	case StatusNotYetOpen:
		return domain.SessionNotYetOpen(s.SessionName, *s.OpenFrom)
	case StatusClosed:
		return domain.SessionClosed(s.SessionName, *s.OpenUntil)
	default:
		return nil
	}
}

// Disclosure reports whether results of the session may be revealed at now.
// Results are disclosed once the session is closed, or immediately when it
// has no close time. Otherwise the pending indicator carries the close time.
func Disclosure(now time.Time, s domain.Session) (*domain.PendingDisclosure, bool) {
	if s.OpenUntil == nil || Classify(now, s) == StatusClosed {
		return nil, true
	}
	return &domain.PendingDisclosure{OpenAfter: *s.OpenUntil}, false
}

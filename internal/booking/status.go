package booking

import "time"

type Status string

const (
	StatusHold           Status = "HOLD"
	StatusPendingPayment Status = "PENDING_PAYMENT"
	StatusPaid           Status = "PAID"
	StatusCancelled      Status = "CANCELLED"
	StatusManual         Status = "MANUAL"
)

func (s Status) Valid() bool {
	switch s {
	case StatusHold, StatusPendingPayment, StatusPaid, StatusCancelled, StatusManual:
		return true
	}
	return false
}

// Transitions the system makes on its own (payment flow, hold expiry).
// Admin edits bypass this table.
var validNext = map[Status]map[Status]bool{
	StatusHold:           {StatusPendingPayment: true, StatusPaid: true, StatusCancelled: true},
	StatusPendingPayment: {StatusPaid: true, StatusCancelled: true},
	StatusManual:         {StatusPaid: true, StatusCancelled: true},
	StatusCancelled:      {StatusPaid: true},
	StatusPaid:           {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Blocking statuses regardless of time. HOLD blocks only until its expiry.
var blockingStatuses = []Status{StatusPaid, StatusManual, StatusPendingPayment}

// Blocks reports whether the booking occupies its dates at now.
// Repo.blockingClause is the SQL form of the same rule.
func (b Booking) Blocks(now time.Time) bool {
	switch b.Status {
	case StatusPaid, StatusManual, StatusPendingPayment:
		return true
	case StatusHold:
		return b.HoldUntil != nil && b.HoldUntil.After(now)
	}
	return false
}

// HoldExpired is true for a HOLD whose expiry is missing or not in the future.
func (b Booking) HoldExpired(now time.Time) bool {
	return b.Status == StatusHold && (b.HoldUntil == nil || !b.HoldUntil.After(now))
}

// Overlaps uses half-open intervals: [a,b) and [c,d) overlap iff a<d and c<b.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Covers reports whether day falls inside [start, end).
func (b Booking) Covers(day time.Time) bool {
	return !day.Before(b.StartDate) && day.Before(b.EndDate)
}

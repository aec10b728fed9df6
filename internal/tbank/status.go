package tbank

import "strings"

// ProviderName tags payments created through this gateway.
const ProviderName = "TBANK"

// Status is the gateway's own payment status vocabulary; it grows independently of ours.
type Status string

const (
	StatusNew        Status = "NEW"
	StatusInit       Status = "INIT"
	StatusAuthorized Status = "AUTHORIZED"
	StatusConfirmed  Status = "CONFIRMED"
	StatusCancelled  Status = "CANCELLED"
	StatusRejected   Status = "REJECTED"
	StatusReversed   Status = "REVERSED"
	StatusRefunded   Status = "REFUNDED"
)

// Resolution is what a gateway status means for the booking.
type Resolution string

const (
	ResolvedPaid      Resolution = "PAID"
	ResolvedCancelled Resolution = "CANCELLED"
	ResolvedPending   Resolution = "PENDING"
)

func Resolve(s Status) Resolution {
	switch Status(strings.ToUpper(string(s))) {
	case StatusConfirmed, StatusAuthorized:
		return ResolvedPaid
	case StatusCancelled, StatusRejected, StatusReversed, StatusRefunded:
		return ResolvedCancelled
	default:
		return ResolvedPending
	}
}

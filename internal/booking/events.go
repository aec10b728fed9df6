package booking

import (
	"encoding/json"
	"time"
)

const TopicBookingEvents = "booking.events"

const (
	EventBookingHeld            = "BookingHeld"
	EventBookingPaymentPending  = "BookingPaymentPending"
	EventBookingPaid            = "BookingPaid"
	EventBookingCancelled       = "BookingCancelled"
	EventBookingStatusChanged   = "BookingStatusChanged"   // admin edits
	EventBookingPaymentConflict = "BookingPaymentConflict" // paid after the dates went to someone else
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // booking id
	Payload       json.RawMessage `json:"payload"`
}

type BookingEventPayload struct {
	BookingID  string     `json:"booking_id"`
	HouseID    string     `json:"house_id"`
	Status     Status     `json:"status"`
	StartDate  string     `json:"start_date"`
	EndDate    string     `json:"end_date"`
	TotalPrice int        `json:"total_price"`
	HoldUntil  *time.Time `json:"hold_until,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

// PartitionKey keeps every event of one booking on one partition.
func PartitionKey(bookingID string) []byte { return []byte(bookingID) }

func eventTypeFor(s Status) string {
	switch s {
	case StatusHold:
		return EventBookingHeld
	case StatusPendingPayment:
		return EventBookingPaymentPending
	case StatusPaid:
		return EventBookingPaid
	case StatusCancelled:
		return EventBookingCancelled
	}
	return EventBookingStatusChanged
}

package booking

import (
	"context"
	"time"

	"github.com/ariefcatur/go-house-booking/internal/pricing"
)

// Store is the persistence boundary. Reads run outside transactions; every
// check-then-write sequence goes through InTx.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	HouseByID(ctx context.Context, id string) (House, error)
	HouseBySlug(ctx context.Context, slug string) (House, error)
	ListHouses(ctx context.Context, activeOnly bool) ([]House, error)
	ListExtras(ctx context.Context, activeOnly bool) ([]Extra, error)
	// BlockingBookings returns bookings overlapping [from, to) that block at now.
	// An empty houseID means every house.
	BlockingBookings(ctx context.Context, houseID string, from, to, now time.Time) ([]Booking, error)
	BookingByID(ctx context.Context, id string) (Booking, error)
	PaymentByBooking(ctx context.Context, bookingID string) (Payment, error)
	ListBookings(ctx context.Context) ([]BookingDetails, error)

	CreateHouse(ctx context.Context, h *House) error
	UpdateHouse(ctx context.Context, h *House) error
	DeleteHouse(ctx context.Context, id string) error
	CreateExtra(ctx context.Context, e *Extra) error
	UpdateExtra(ctx context.Context, e *Extra) error
	DeleteExtra(ctx context.Context, id string) error
	PatchBooking(ctx context.Context, id string, p BookingPatch) (Booking, error)
	PatchPayment(ctx context.Context, id string, p PaymentPatch) (Payment, error)

	// ExpireHolds cancels HOLD bookings whose expiry is missing or <= now.
	ExpireHolds(ctx context.Context, now time.Time) ([]Booking, error)
}

// Tx is the transactional view used by hold creation and payment reconciliation.
type Tx interface {
	// LockHouse returns the house and serializes concurrent holds on it.
	LockHouse(ctx context.Context, id string) (House, error)
	HasConflict(ctx context.Context, houseID string, from, to, now time.Time) (bool, error)
	ActiveExtras(ctx context.Context, ids []string) ([]pricing.ExtraOption, error)
	InsertBooking(ctx context.Context, b *Booking) error

	// LockBooking returns the booking and holds it until the transaction ends.
	LockBooking(ctx context.Context, id string) (Booking, error)
	PaymentByBooking(ctx context.Context, bookingID string) (Payment, error)
	SavePayment(ctx context.Context, p *Payment) error
	SetBookingStatus(ctx context.Context, id string, s Status) error
}

type BookingPatch struct {
	Status       *Status
	HoldUntil    *time.Time
	SetHoldUntil bool // true with nil HoldUntil clears it
}

type PaymentPatch struct {
	Status         *string
	PaymentURL     *string
	SetPaymentURL  bool
	TBankPaymentID *string
	SetTBankID     bool
	Amount         *int64
}

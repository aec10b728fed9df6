package booking

import (
	"encoding/json"
	"time"

	"github.com/ariefcatur/go-house-booking/internal/pricing"
)

type House struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Slug              string    `json:"slug"`
	Description       string    `json:"description"`
	Images            []string  `json:"images"`
	BasePricePerNight int       `json:"basePricePerNight"`
	MaxGuests         int       `json:"maxGuests"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

type Extra struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Slug      string            `json:"slug"`
	Price     int               `json:"price"`
	PriceType pricing.PriceType `json:"priceType"`
	Active    bool              `json:"active"`
	CreatedAt time.Time         `json:"createdAt"`
}

func (e Extra) Option() pricing.ExtraOption {
	return pricing.ExtraOption{ID: e.ID, Price: e.Price, PriceType: e.PriceType}
}

// Booking covers [StartDate, EndDate); EndDate is the checkout day.
type Booking struct {
	ID         string                  `json:"id"`
	HouseID    string                  `json:"houseId"`
	StartDate  time.Time               `json:"startDate"`
	EndDate    time.Time               `json:"endDate"`
	Status     Status                  `json:"status"`
	HoldUntil  *time.Time              `json:"holdUntil"`
	GuestName  string                  `json:"guestName"`
	Phone      string                  `json:"phone"`
	Email      *string                 `json:"email"`
	Comment    *string                 `json:"comment"`
	Extras     []pricing.SelectedExtra `json:"extras"`
	Nights     int                     `json:"nights"`
	TotalPrice int                     `json:"totalPrice"`
	CreatedAt  time.Time               `json:"createdAt"`
	UpdatedAt  time.Time               `json:"updatedAt"`
}

// BookingDetails is the admin listing row.
type BookingDetails struct {
	Booking
	House   *House   `json:"house,omitempty"`
	Payment *Payment `json:"payment,omitempty"`
}

// Payment mirrors the gateway's view; Status is the gateway vocabulary, not ours.
type Payment struct {
	ID             string          `json:"id"`
	BookingID      string          `json:"bookingId"`
	Amount         int64           `json:"amount"` // minor units
	Status         string          `json:"status"`
	TBankPaymentID *string         `json:"tbankPaymentId"`
	PaymentURL     *string         `json:"paymentUrl"`
	RawInit        json.RawMessage `json:"rawInit,omitempty"`
	RawWebhook     json.RawMessage `json:"rawWebhook,omitempty"`
	Provider       string          `json:"provider"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Interval is a blocking booking as seen by availability queries.
type Interval struct {
	ID        string `json:"id"`
	HouseID   string `json:"-"`
	Status    Status `json:"status"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// StatusView is the cached answer to "where is my booking" polls from the checkout page.
type StatusView struct {
	ID        string     `json:"id"`
	Status    Status     `json:"status"`
	HoldUntil *time.Time `json:"holdUntil,omitempty"`
}

func (b Booking) StatusView() StatusView {
	return StatusView{ID: b.ID, Status: b.Status, HoldUntil: b.HoldUntil}
}

package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-house-booking/internal/pricing"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Catalog returns what the public booking form needs.
func (s *Service) Catalog(ctx context.Context) ([]House, []Extra, error) {
	houses, err := s.Store.ListHouses(ctx, true)
	if err != nil {
		return nil, nil, fmt.Errorf("list houses: %w", err)
	}
	extras, err := s.Store.ListExtras(ctx, true)
	if err != nil {
		return nil, nil, fmt.Errorf("list extras: %w", err)
	}
	return houses, extras, nil
}

func (s *Service) HouseBySlug(ctx context.Context, slug string) (House, error) {
	h, err := s.Store.HouseBySlug(ctx, slug)
	if errors.Is(err, ErrNotFound) || (err == nil && !h.Active) {
		return House{}, notFoundErr("House not found")
	}
	return h, err
}

func (s *Service) Booking(ctx context.Context, id string) (Booking, error) {
	b, err := s.Store.BookingByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Booking{}, notFoundErr("Booking not found")
	}
	return b, err
}

type HouseInput struct {
	Title             string
	Slug              string
	Description       string
	Images            []string
	BasePricePerNight int
	MaxGuests         int
	Active            bool
}

func (in HouseInput) validate() error {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Slug) == "" || strings.TrimSpace(in.Description) == "" {
		return validationErr("Missing required fields")
	}
	if in.BasePricePerNight < 0 {
		return validationErr("basePricePerNight must not be negative")
	}
	return nil
}

func (in HouseInput) apply(h *House) {
	h.Title = in.Title
	h.Slug = in.Slug
	h.Description = in.Description
	h.Images = in.Images
	if h.Images == nil {
		h.Images = []string{}
	}
	h.BasePricePerNight = in.BasePricePerNight
	h.MaxGuests = in.MaxGuests
	if h.MaxGuests < 1 {
		h.MaxGuests = 1
	}
	h.Active = in.Active
}

func (s *Service) ListHouses(ctx context.Context) ([]House, error) {
	return s.Store.ListHouses(ctx, false)
}

func (s *Service) CreateHouse(ctx context.Context, in HouseInput) (House, error) {
	if err := in.validate(); err != nil {
		return House{}, err
	}
	now := s.now()
	h := House{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	in.apply(&h)
	if err := s.Store.CreateHouse(ctx, &h); err != nil {
		return House{}, storeErr(err, "House not found")
	}
	return h, nil
}

func (s *Service) UpdateHouse(ctx context.Context, id string, in HouseInput) (House, error) {
	if err := in.validate(); err != nil {
		return House{}, err
	}
	h, err := s.Store.HouseByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return House{}, notFoundErr("House not found")
	}
	if err != nil {
		return House{}, err
	}
	in.apply(&h)
	h.UpdatedAt = s.now()
	if err := s.Store.UpdateHouse(ctx, &h); err != nil {
		return House{}, storeErr(err, "House not found")
	}
	return h, nil
}

func (s *Service) DeleteHouse(ctx context.Context, id string) error {
	return storeErr(s.Store.DeleteHouse(ctx, id), "House not found")
}

type ExtraInput struct {
	Title     string
	Slug      string
	Price     int
	PriceType pricing.PriceType
	Active    bool
}

func (in ExtraInput) validate() error {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Slug) == "" || in.PriceType == "" {
		return validationErr("Missing required fields")
	}
	if !in.PriceType.Valid() {
		return validationErr("Invalid priceType")
	}
	if in.Price < 0 {
		return validationErr("price must not be negative")
	}
	return nil
}

func (s *Service) ListExtras(ctx context.Context) ([]Extra, error) {
	return s.Store.ListExtras(ctx, false)
}

func (s *Service) CreateExtra(ctx context.Context, in ExtraInput) (Extra, error) {
	if err := in.validate(); err != nil {
		return Extra{}, err
	}
	e := Extra{
		ID:        uuid.NewString(),
		Title:     in.Title,
		Slug:      in.Slug,
		Price:     in.Price,
		PriceType: in.PriceType,
		Active:    in.Active,
		CreatedAt: s.now(),
	}
	if err := s.Store.CreateExtra(ctx, &e); err != nil {
		return Extra{}, storeErr(err, "Extra not found")
	}
	return e, nil
}

func (s *Service) UpdateExtra(ctx context.Context, id string, in ExtraInput) (Extra, error) {
	if err := in.validate(); err != nil {
		return Extra{}, err
	}
	e := Extra{ID: id, Title: in.Title, Slug: in.Slug, Price: in.Price, PriceType: in.PriceType, Active: in.Active}
	if err := s.Store.UpdateExtra(ctx, &e); err != nil {
		return Extra{}, storeErr(err, "Extra not found")
	}
	return e, nil
}

func (s *Service) DeleteExtra(ctx context.Context, id string) error {
	return storeErr(s.Store.DeleteExtra(ctx, id), "Extra not found")
}

func (s *Service) ListBookings(ctx context.Context) ([]BookingDetails, error) {
	return s.Store.ListBookings(ctx)
}

// PatchBooking is the administrator override: any status may be set, including MANUAL.
func (s *Service) PatchBooking(ctx context.Context, id string, p BookingPatch) (Booking, error) {
	if p.Status != nil && !p.Status.Valid() {
		return Booking{}, validationErr("Invalid status")
	}
	b, err := s.Store.PatchBooking(ctx, id, p)
	if err != nil {
		return Booking{}, storeErr(err, "Booking not found")
	}
	if p.Status != nil {
		s.logger().WithFields(logrus.Fields{"booking_id": b.ID, "status": b.Status}).Info("booking status set by admin")
		s.publish(ctx, b, eventTypeFor(b.Status), "admin")
	}
	return b, nil
}

func (s *Service) PatchPayment(ctx context.Context, id string, p PaymentPatch) (Payment, error) {
	pay, err := s.Store.PatchPayment(ctx, id, p)
	if err != nil {
		return Payment{}, storeErr(err, "Payment not found")
	}
	return pay, nil
}

// ParseHoldUntil accepts RFC 3339 timestamps for the admin hold-expiry field.
func ParseHoldUntil(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, validationErr("Invalid holdUntil")
	}
	return t.UTC(), nil
}

func storeErr(err error, notFoundMsg string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return notFoundErr(notFoundMsg)
	case errors.Is(err, ErrDuplicate):
		return conflictErr("Slug already exists")
	}
	return err
}

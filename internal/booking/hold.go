package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-house-booking/internal/dates"
	"github.com/ariefcatur/go-house-booking/internal/pricing"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type HoldInput struct {
	HouseID   string
	StartDate string
	EndDate   string
	Extras    []pricing.SelectedExtra
	GuestName string
	Phone     string
	Email     string
	Comment   string
}

// CreateHold reserves the dates for HoldTTL. Checks run in this order: required
// fields, date parsing, range, house, conflicts, nights. The conflict check and
// the insert share one transaction that holds the house lock.
func (s *Service) CreateHold(ctx context.Context, in HoldInput) (Booking, error) {
	if in.HouseID == "" || in.StartDate == "" || in.EndDate == "" || in.GuestName == "" || in.Phone == "" {
		return Booking{}, validationErr("Missing required fields")
	}
	start, end, err := parseRange(in.StartDate, in.EndDate)
	if err != nil {
		return Booking{}, err
	}

	var b Booking
	err = s.Store.InTx(ctx, func(tx Tx) error {
		house, err := tx.LockHouse(ctx, in.HouseID)
		if errors.Is(err, ErrNotFound) {
			return notFoundErr("House not found")
		}
		if err != nil {
			return fmt.Errorf("lock house: %w", err)
		}
		if !house.Active {
			return notFoundErr("House not found")
		}

		now := s.now()
		conflict, err := tx.HasConflict(ctx, house.ID, start, end, now)
		if err != nil {
			return fmt.Errorf("conflict check: %w", err)
		}
		if conflict {
			return conflictErr("Dates are not available")
		}

		nights := dates.Nights(start, end)
		if nights <= 0 {
			return validationErr("Invalid number of nights")
		}

		var options []pricing.ExtraOption
		if ids := extraIDs(in.Extras); len(ids) > 0 {
			if options, err = tx.ActiveExtras(ctx, ids); err != nil {
				return fmt.Errorf("load extras: %w", err)
			}
		}
		selected := pricing.Sanitize(in.Extras, options)
		total := nights*house.BasePricePerNight + pricing.ExtrasTotal(selected, options, nights)

		holdUntil := now.Add(s.holdTTL())
		b = Booking{
			ID:         uuid.NewString(),
			HouseID:    house.ID,
			StartDate:  start,
			EndDate:    end,
			Status:     StatusHold,
			HoldUntil:  &holdUntil,
			GuestName:  in.GuestName,
			Phone:      in.Phone,
			Email:      optional(in.Email),
			Comment:    optional(in.Comment),
			Extras:     selected,
			Nights:     nights,
			TotalPrice: total,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		return tx.InsertBooking(ctx, &b)
	})
	if err != nil {
		return Booking{}, err
	}

	s.logger().WithFields(logrus.Fields{
		"booking_id":  b.ID,
		"house_id":    b.HouseID,
		"start_date":  dates.Format(b.StartDate),
		"end_date":    dates.Format(b.EndDate),
		"total_price": b.TotalPrice,
		"hold_until":  b.HoldUntil,
	}).Info("hold created")
	s.publish(ctx, b, EventBookingHeld, "")
	return b, nil
}

func extraIDs(extras []pricing.SelectedExtra) []string {
	ids := make([]string, 0, len(extras))
	for _, e := range extras {
		if e.ExtraID != "" {
			ids = append(ids, e.ExtraID)
		}
	}
	return ids
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

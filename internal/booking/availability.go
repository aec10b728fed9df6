package booking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ariefcatur/go-house-booking/internal/dates"
)

func parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	from, err1 := dates.Parse(fromStr)
	to, err2 := dates.Parse(toStr)
	if err1 != nil || err2 != nil || !from.Before(to) {
		return time.Time{}, time.Time{}, validationErr("Invalid date range")
	}
	return from, to, nil
}

// Intervals lists the bookings that make houseID unavailable somewhere in [from, to).
func (s *Service) Intervals(ctx context.Context, houseID, fromStr, toStr string) ([]Interval, error) {
	if houseID == "" || fromStr == "" || toStr == "" {
		return nil, validationErr("houseId, from, to are required")
	}
	from, to, err := parseRange(fromStr, toStr)
	if err != nil {
		return nil, err
	}
	bookings, err := s.Store.BlockingBookings(ctx, houseID, from, to, s.now())
	if err != nil {
		return nil, fmt.Errorf("blocking bookings: %w", err)
	}
	sort.SliceStable(bookings, func(i, j int) bool { return bookings[i].StartDate.Before(bookings[j].StartDate) })

	out := make([]Interval, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, Interval{
			ID:        b.ID,
			HouseID:   b.HouseID,
			Status:    b.Status,
			StartDate: dates.Format(b.StartDate),
			EndDate:   dates.Format(b.EndDate),
		})
	}
	return out, nil
}

// AvailableHouses returns active houses free for the whole of [start, end).
func (s *Service) AvailableHouses(ctx context.Context, startStr, endStr string) ([]House, error) {
	if startStr == "" || endStr == "" {
		return nil, validationErr("start and end are required")
	}
	start, end, err := parseRange(startStr, endStr)
	if err != nil {
		return nil, err
	}
	houses, err := s.Store.ListHouses(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list houses: %w", err)
	}
	busy, err := s.Store.BlockingBookings(ctx, "", start, end, s.now())
	if err != nil {
		return nil, fmt.Errorf("blocking bookings: %w", err)
	}
	busyHouse := make(map[string]bool, len(busy))
	for _, b := range busy {
		busyHouse[b.HouseID] = true
	}
	out := make([]House, 0, len(houses))
	for _, h := range houses {
		if !busyHouse[h.ID] {
			out = append(out, h)
		}
	}
	return out, nil
}

// CalendarDates returns each day in [from, to) on which at least one active house is free.
func (s *Service) CalendarDates(ctx context.Context, fromStr, toStr string) ([]string, error) {
	if fromStr == "" || toStr == "" {
		return nil, validationErr("from and to are required")
	}
	from, to, err := parseRange(fromStr, toStr)
	if err != nil {
		return nil, err
	}
	houses, err := s.Store.ListHouses(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list houses: %w", err)
	}
	out := []string{}
	if len(houses) == 0 {
		return out, nil
	}
	busy, err := s.Store.BlockingBookings(ctx, "", from, to, s.now())
	if err != nil {
		return nil, fmt.Errorf("blocking bookings: %w", err)
	}
	byHouse := make(map[string][]Booking)
	for _, b := range busy {
		byHouse[b.HouseID] = append(byHouse[b.HouseID], b)
	}

	dates.Each(from, to, func(d time.Time) {
		for _, h := range houses {
			free := true
			for _, b := range byHouse[h.ID] {
				if b.Covers(d) {
					free = false
					break
				}
			}
			if free {
				out = append(out, dates.Format(d))
				return
			}
		}
	})
	return out, nil
}

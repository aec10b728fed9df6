// Package dates works with calendar days expressed as UTC midnights.
package dates

import (
	"errors"
	"math"
	"time"
)

const Layout = "2006-01-02"

const day = 24 * time.Hour

var ErrInvalidDate = errors.New("invalid date")

// Parse reads a YYYY-MM-DD value as midnight UTC.
func Parse(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, ErrInvalidDate
	}
	t, err := time.ParseInLocation(Layout, value, time.UTC)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Nights is the rounded number of days between start and end; it may be zero or negative.
func Nights(start, end time.Time) int {
	return int(math.Round(float64(end.Sub(start)) / float64(day)))
}

// Each calls fn for every day in [from, to).
func Each(from, to time.Time, fn func(d time.Time)) {
	for d := from.UTC(); d.Before(to); d = d.AddDate(0, 0, 1) {
		fn(d)
	}
}

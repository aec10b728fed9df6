// Package sweeper periodically cancels lapsed holds.
package sweeper

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-house-booking/internal/booking"
)

// Expirer is satisfied by *booking.Service.
type Expirer interface {
	ExpireHolds(ctx context.Context) ([]booking.Booking, error)
}

type Sweeper struct {
	Expirer  Expirer
	Interval time.Duration
	Log      *logrus.Logger
}

// Run sweeps once immediately and then every Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Log.WithField("interval", interval).Info("hold sweeper started")
	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			s.Log.Info("hold sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	expired, err := s.Expirer.ExpireHolds(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.Log.WithError(err).Error("sweep expired holds")
		}
		return
	}
	if len(expired) > 0 {
		s.Log.WithField("count", len(expired)).Info("expired holds cancelled")
	}
}

package booking

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ExpireHolds cancels lapsed holds. Availability never depends on this having run;
// it only makes the lapse visible as a status and an event.
func (s *Service) ExpireHolds(ctx context.Context) ([]Booking, error) {
	expired, err := s.Store.ExpireHolds(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("expire holds: %w", err)
	}
	for _, b := range expired {
		s.logger().WithFields(logrus.Fields{
			"booking_id": b.ID,
			"house_id":   b.HouseID,
			"hold_until": b.HoldUntil,
		}).Info("hold expired")
		s.publish(ctx, b, EventBookingCancelled, "hold expired")
	}
	return expired, nil
}

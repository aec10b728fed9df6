// Package projector keeps the Redis booking status cache in step with booking events.
package projector

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-house-booking/internal/booking"
	kafkax "github.com/ariefcatur/go-house-booking/internal/kafka"
	"github.com/ariefcatur/go-house-booking/internal/redisx"
)

type Cache interface {
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

type Service struct {
	Cache Cache
	Dedup booking.Deduper
	Log   *logrus.Logger
}

// HandleBookingEvent is installed as the consumer handler.
func (s *Service) HandleBookingEvent(ctx context.Context, m kafka.Message) error {
	var env booking.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// A poison message would block the partition forever; drop it.
		s.Log.WithError(err).WithField("offset", m.Offset).Warn("undecodable booking event")
		return nil
	}
	if env.EventID != "" && s.Dedup.Seen(ctx, env.EventID) {
		return nil
	}

	p, err := kafkax.UnwrapPayload[booking.BookingEventPayload](env.Payload)
	if err != nil {
		s.Log.WithError(err).WithField("event_id", env.EventID).Warn("bad booking event payload")
		return nil
	}
	if p.BookingID == "" {
		return nil
	}

	view := booking.StatusView{ID: p.BookingID, Status: p.Status, HoldUntil: p.HoldUntil}
	if err := s.Cache.SetJSON(ctx, redisx.BookingStatusKey(p.BookingID), view, redisx.TTLStatusCache); err != nil {
		return err
	}
	if env.EventID != "" {
		s.Dedup.Mark(ctx, env.EventID)
	}

	s.Log.WithFields(logrus.Fields{
		"event_type": env.EventType,
		"booking_id": p.BookingID,
		"status":     p.Status,
		"reason":     p.Reason,
	}).Info("booking event projected")
	return nil
}

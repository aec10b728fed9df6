package booking

import (
	"context"
	"time"

	"github.com/ariefcatur/go-house-booking/internal/config"
	"github.com/ariefcatur/go-house-booking/internal/dates"
	kafkax "github.com/ariefcatur/go-house-booking/internal/kafka"
	"github.com/ariefcatur/go-house-booking/internal/tbank"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const DefaultHoldTTL = 10 * time.Minute

// Publisher is satisfied by *kafkax.Producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Gateway is satisfied by *tbank.Client.
type Gateway interface {
	Init(ctx context.Context, req tbank.InitRequest) (tbank.InitResponse, error)
}

type Service struct {
	Store   Store
	Gateway Gateway
	Events  Publisher
	Dedup   Deduper
	Log     *logrus.Logger
	TBank   config.TBankConfig
	HoldTTL time.Duration
	// Producer names this process in event envelopes.
	Producer string
	// OnChange runs after every committed status change, before the event is published.
	OnChange func(ctx context.Context, b Booking)
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) holdTTL() time.Duration {
	if s.HoldTTL > 0 {
		return s.HoldTTL
	}
	return DefaultHoldTTL
}

func (s *Service) logger() *logrus.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logrus.StandardLogger()
}

func (s *Service) publish(ctx context.Context, b Booking, eventType, reason string) {
	if s.OnChange != nil {
		s.OnChange(ctx, b)
	}
	if s.Events == nil {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    s.now(),
		Producer:      s.Producer,
		TraceID:       traceID(ctx),
		CorrelationID: b.ID,
		Payload: kafkax.MustMarshal(BookingEventPayload{
			BookingID:  b.ID,
			HouseID:    b.HouseID,
			Status:     b.Status,
			StartDate:  dates.Format(b.StartDate),
			EndDate:    dates.Format(b.EndDate),
			TotalPrice: b.TotalPrice,
			HoldUntil:  b.HoldUntil,
			Reason:     reason,
		}),
	}
	s.Events.Publish(PartitionKey(b.ID), kafkax.MustMarshal(ev), kafkax.EventHeaders(eventType, 1)...)
}

type traceKey struct{}

// WithTraceID attaches a request id that ends up in published envelopes.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func traceID(ctx context.Context) string {
	s, _ := ctx.Value(traceKey{}).(string)
	return s
}

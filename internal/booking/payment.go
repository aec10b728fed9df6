package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-house-booking/internal/tbank"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Deduper remembers notifications that were already applied.
type Deduper interface {
	Seen(ctx context.Context, key string) bool
	Mark(ctx context.Context, key string)
}

type InitResult struct {
	PaymentURL     *string         `json:"paymentUrl"`
	TBankPaymentID *string         `json:"tbankPaymentId"`
	Raw            json.RawMessage `json:"raw"`
}

func (s *Service) NotificationURL() string { return s.TBank.PublicBaseURL + "/api/tbank/notify" }

// InitPayment registers the booking with the gateway and moves a HOLD to PENDING_PAYMENT.
func (s *Service) InitPayment(ctx context.Context, bookingID string) (InitResult, error) {
	if bookingID == "" {
		return InitResult{}, validationErr("bookingId is required")
	}
	b, err := s.Store.BookingByID(ctx, bookingID)
	if errors.Is(err, ErrNotFound) {
		return InitResult{}, notFoundErr("Booking not found")
	}
	if err != nil {
		return InitResult{}, fmt.Errorf("load booking: %w", err)
	}
	if err := s.checkPayable(b); err != nil {
		return InitResult{}, err
	}
	if !s.TBank.Complete() || s.Gateway == nil {
		return InitResult{}, configErr("Missing T-Bank configuration")
	}

	amount := int64(b.TotalPrice) * 100
	base := s.TBank.PublicBaseURL
	resp, err := s.Gateway.Init(ctx, tbank.InitRequest{
		Amount:          amount,
		OrderID:         b.ID,
		Description:     "Booking " + b.ID,
		NotificationURL: s.NotificationURL(),
		SuccessURL:      base + "/success?bookingId=" + b.ID,
		FailURL:         base + "/fail?bookingId=" + b.ID,
	})
	if err != nil {
		s.logger().WithField("booking_id", b.ID).WithError(err).Warn("gateway init failed")
		return InitResult{}, gatewayErr(err, resp.Raw)
	}

	var (
		payment Payment
		moved   bool
	)
	err = s.Store.InTx(ctx, func(tx Tx) error {
		if _, err := tx.LockHouse(ctx, b.HouseID); err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("lock house: %w", err)
		}
		cur, err := tx.LockBooking(ctx, b.ID)
		if errors.Is(err, ErrNotFound) {
			return notFoundErr("Booking not found")
		}
		if err != nil {
			return fmt.Errorf("lock booking: %w", err)
		}
		// The booking may have been paid, cancelled or swept while the gateway was answering.
		if err := s.checkPayable(cur); err != nil {
			return err
		}

		payment, err = tx.PaymentByBooking(ctx, b.ID)
		switch {
		case errors.Is(err, ErrNotFound):
			payment = Payment{
				ID:        uuid.NewString(),
				BookingID: b.ID,
				Provider:  tbank.ProviderName,
				CreatedAt: s.now(),
			}
		case err != nil:
			return fmt.Errorf("load payment: %w", err)
		}
		payment.Amount = amount
		payment.Status = string(resp.Status)
		if resp.PaymentID != "" {
			payment.TBankPaymentID = &resp.PaymentID
		}
		payment.PaymentURL = nil
		if resp.PaymentURL != "" {
			payment.PaymentURL = &resp.PaymentURL
		}
		payment.RawInit = resp.Raw
		payment.UpdatedAt = s.now()
		if err := tx.SavePayment(ctx, &payment); err != nil {
			return fmt.Errorf("save payment: %w", err)
		}

		if cur.Status == StatusHold && CanTransition(cur.Status, StatusPendingPayment) {
			if err := tx.SetBookingStatus(ctx, b.ID, StatusPendingPayment); err != nil {
				return fmt.Errorf("set status: %w", err)
			}
			b = cur
			b.Status = StatusPendingPayment
			moved = true
		}
		return nil
	})
	if err != nil {
		return InitResult{}, err
	}

	s.logger().WithFields(logrus.Fields{
		"booking_id":       b.ID,
		"amount":           amount,
		"tbank_payment_id": resp.PaymentID,
		"gateway_status":   resp.Status,
	}).Info("payment initialized")
	if moved {
		s.publish(ctx, b, EventBookingPaymentPending, "")
	}
	return InitResult{PaymentURL: payment.PaymentURL, TBankPaymentID: payment.TBankPaymentID, Raw: resp.Raw}, nil
}

func (s *Service) checkPayable(b Booking) error {
	if b.Status == StatusCancelled || b.Status == StatusPaid {
		return validationErr("Booking status not payable")
	}
	if b.HoldExpired(s.now()) {
		return validationErr("Hold expired")
	}
	return nil
}

// HandleNotification authenticates a gateway callback and reconciles payment and
// booking state. Notifications for unknown orders are accepted and ignored.
func (s *Service) HandleNotification(ctx context.Context, body []byte) error {
	if s.TBank.Password == "" {
		return configErr("Missing configuration")
	}
	n, err := tbank.ParseNotification(body)
	if err != nil {
		return validationErr("Invalid payload")
	}
	if err := n.Verify(s.TBank.Password); err != nil {
		if errors.Is(err, tbank.ErrTokenMissing) {
			return authErr("Token required", err)
		}
		return authErr("Invalid token", err)
	}
	if n.OrderID == "" {
		return nil
	}

	log := s.logger().WithFields(logrus.Fields{
		"booking_id":       n.OrderID,
		"gateway_status":   n.Status,
		"tbank_payment_id": n.PaymentID,
	})
	dedupKey := n.OrderID + ":" + string(n.Status) + ":" + n.PaymentID
	if s.Dedup != nil && s.Dedup.Seen(ctx, dedupKey) {
		log.Debug("duplicate notification")
		return nil
	}

	known, err := s.Store.BookingByID(ctx, n.OrderID)
	if errors.Is(err, ErrNotFound) {
		log.Info("notification for unknown booking ignored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load booking: %w", err)
	}

	resolved := tbank.Resolve(n.Status)
	var (
		b       Booking
		changed bool
		clash   bool
	)
	err = s.Store.InTx(ctx, func(tx Tx) error {
		if _, err := tx.LockHouse(ctx, known.HouseID); err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("lock house: %w", err)
		}
		b, err = tx.LockBooking(ctx, n.OrderID)
		if err != nil {
			return fmt.Errorf("lock booking: %w", err)
		}

		payment, err := tx.PaymentByBooking(ctx, b.ID)
		switch {
		case errors.Is(err, ErrNotFound):
			payment = Payment{
				ID:        uuid.NewString(),
				BookingID: b.ID,
				Amount:    int64(b.TotalPrice) * 100,
				Provider:  tbank.ProviderName,
				CreatedAt: s.now(),
			}
		case err != nil:
			return fmt.Errorf("load payment: %w", err)
		}
		payment.Status = string(n.Status)
		if n.PaymentID != "" {
			id := n.PaymentID
			payment.TBankPaymentID = &id
		}
		if n.HasAmount {
			payment.Amount = n.Amount
		}
		payment.RawWebhook = n.Raw
		payment.UpdatedAt = s.now()
		if err := tx.SavePayment(ctx, &payment); err != nil {
			return fmt.Errorf("save payment: %w", err)
		}

		next, ok := reconcile(b.Status, resolved)
		if !ok {
			return nil
		}
		// A booking that no longer holds its dates may only come back as PAID
		// if nobody else took them in the meantime.
		if next == StatusPaid && !b.Blocks(s.now()) {
			taken, err := tx.HasConflict(ctx, b.HouseID, b.StartDate, b.EndDate, s.now())
			if err != nil {
				return fmt.Errorf("conflict check: %w", err)
			}
			if taken {
				clash = true
				return nil
			}
			log.WithField("status", b.Status).Warn("paid notification for released booking, reinstating")
		}
		if err := tx.SetBookingStatus(ctx, b.ID, next); err != nil {
			return fmt.Errorf("set status: %w", err)
		}
		b.Status = next
		changed = true
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if s.Dedup != nil {
		s.Dedup.Mark(ctx, dedupKey)
	}
	if clash {
		log.WithField("status", b.Status).Error("paid notification for booking whose dates were taken, left for manual refund")
		s.publish(ctx, b, EventBookingPaymentConflict, "paid after dates were released")
		return nil
	}
	log.WithFields(logrus.Fields{"status": b.Status, "changed": changed}).Info("notification applied")
	if changed {
		s.publish(ctx, b, eventTypeFor(b.Status), "gateway "+string(n.Status))
	}
	return nil
}

// reconcile maps a gateway resolution onto the booking. PAID is never left;
// CANCELLED is not re-applied.
func reconcile(cur Status, r tbank.Resolution) (Status, bool) {
	var target Status
	switch r {
	case tbank.ResolvedPaid:
		target = StatusPaid
	case tbank.ResolvedCancelled:
		target = StatusCancelled
	default:
		return cur, false
	}
	if !CanTransition(cur, target) {
		return cur, false
	}
	return target, true
}

package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ariefcatur/go-house-booking/internal/booking"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

const maxNotificationBody = 1 << 20

type PaymentHandler struct {
	Svc *booking.Service
	Log *logrus.Logger
}

type initReq struct {
	BookingID string `json:"bookingId"`
}

func (h *PaymentHandler) Register(r chi.Router) {
	r.Post("/api/tbank/init", h.init)
	r.Post("/api/tbank/notify", h.notify)
}

func (h *PaymentHandler) init(w http.ResponseWriter, r *http.Request) {
	var req initReq
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON"})
		return
	}

	ctx, cancel := context.WithTimeout(ctxWithTrace(r), 12*time.Second)
	defer cancel()

	res, err := h.Svc.InitPayment(ctx, req.BookingID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// notify answers the gateway in plain text. Business outcomes are always "OK";
// only auth and configuration problems are reported, plus storage failures so
// that the gateway retries.
func (h *PaymentHandler) notify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBody))
	if err != nil {
		writeText(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	ctx, cancel := context.WithTimeout(ctxWithTrace(r), 5*time.Second)
	defer cancel()

	err = h.Svc.HandleNotification(ctx, body)
	switch booking.KindOf(err) {
	case booking.KindInternal:
		if err == nil {
			writeText(w, http.StatusOK, "OK")
			return
		}
		h.Log.WithError(err).Error("notification processing failed")
		writeText(w, http.StatusInternalServerError, "ERROR")
	case booking.KindConfiguration:
		writeText(w, http.StatusInternalServerError, errMsg(err))
	default:
		writeText(w, http.StatusBadRequest, errMsg(err))
	}
}

func errMsg(err error) string {
	var e *booking.Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return err.Error()
}

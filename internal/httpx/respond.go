package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ariefcatur/go-house-booking/internal/booking"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Cache is satisfied by *redisx.Cache.
type Cache interface {
	GetRaw(ctx context.Context, key string) (json.RawMessage, bool)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, code int, s string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(s))
}

func statusFor(k booking.Kind) int {
	switch k {
	case booking.KindValidation, booking.KindAuth:
		return http.StatusBadRequest
	case booking.KindNotFound:
		return http.StatusNotFound
	case booking.KindConflict:
		return http.StatusConflict
	case booking.KindGateway:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError renders service errors as {"error": msg}. Anything that is not a
// *booking.Error is logged and hidden behind a generic message.
func writeError(w http.ResponseWriter, r *http.Request, log *logrus.Logger, err error) {
	var e *booking.Error
	if !errors.As(err, &e) {
		log.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"path":       r.URL.Path,
		}).WithError(err).Error("request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal error"})
		return
	}
	body := map[string]any{"error": e.Msg}
	if e.Kind == booking.KindGateway {
		if len(e.Raw) > 0 && json.Valid(e.Raw) {
			body["raw"] = json.RawMessage(e.Raw)
		} else {
			body["raw"] = nil
		}
	}
	writeJSON(w, statusFor(e.Kind), body)
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func ctxWithTrace(r *http.Request) context.Context {
	return booking.WithTraceID(r.Context(), middleware.GetReqID(r.Context()))
}

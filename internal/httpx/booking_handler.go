package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-house-booking/internal/booking"
	"github.com/ariefcatur/go-house-booking/internal/pricing"
	"github.com/ariefcatur/go-house-booking/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// BookingHandler serves the public site: catalog, availability, holds and status.
type BookingHandler struct {
	Svc      *booking.Service
	Cache    Cache
	Log      *logrus.Logger
	Validate *validator.Validate
}

type createHoldReq struct {
	HouseID   string                  `json:"houseId" validate:"required"`
	StartDate string                  `json:"startDate" validate:"required"`
	EndDate   string                  `json:"endDate" validate:"required"`
	GuestName string                  `json:"guestName" validate:"required"`
	Phone     string                  `json:"phone" validate:"required"`
	Email     string                  `json:"email"`
	Comment   string                  `json:"comment"`
	Extras    []pricing.SelectedExtra `json:"extras"`
}

type catalogResp struct {
	Houses []booking.House `json:"houses"`
	Extras []booking.Extra `json:"extras"`
}

func (h *BookingHandler) Register(r chi.Router) {
	r.Get("/api/meta", h.meta)
	r.Get("/api/houses/{slug}", h.houseBySlug)
	r.Get("/api/availability", h.availability)
	r.Get("/api/available-houses", h.availableHouses)
	r.Get("/api/calendar-availability", h.calendar)
	r.Post("/api/booking/create-hold", h.createHold)
	r.Get("/api/bookings/{id}", h.getBooking)
}

func (h *BookingHandler) meta(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if raw, ok := h.Cache.GetRaw(ctx, redisx.KeyCatalog); ok {
		writeJSON(w, http.StatusOK, raw)
		return
	}
	houses, extras, err := h.Svc.Catalog(ctx)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	resp := catalogResp{Houses: houses, Extras: extras}
	_ = h.Cache.SetJSON(ctx, redisx.KeyCatalog, resp, redisx.TTLCatalog)
	writeJSON(w, http.StatusOK, resp)
}

func (h *BookingHandler) houseBySlug(w http.ResponseWriter, r *http.Request) {
	house, err := h.Svc.HouseBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"house": house})
}

func (h *BookingHandler) availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	intervals, err := h.Svc.Intervals(r.Context(), q.Get("houseId"), q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"intervals": intervals})
}

func (h *BookingHandler) availableHouses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	houses, err := h.Svc.AvailableHouses(r.Context(), q.Get("start"), q.Get("end"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"houses": houses})
}

func (h *BookingHandler) calendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days, err := h.Svc.CalendarDates(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dates": days})
}

func (h *BookingHandler) createHold(w http.ResponseWriter, r *http.Request) {
	var req createHoldReq
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON"})
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required fields"})
		return
	}

	ctx, cancel := context.WithTimeout(ctxWithTrace(r), 5*time.Second)
	defer cancel()

	b, err := h.Svc.CreateHold(ctx, booking.HoldInput{
		HouseID:   req.HouseID,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Extras:    req.Extras,
		GuestName: req.GuestName,
		Phone:     req.Phone,
		Email:     req.Email,
		Comment:   req.Comment,
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"booking": b})
}

func (h *BookingHandler) getBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := redisx.BookingStatusKey(id)
	if raw, ok := h.Cache.GetRaw(ctx, key); ok {
		writeJSON(w, http.StatusOK, raw)
		return
	}
	b, err := h.Svc.Booking(ctx, id)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	view := b.StatusView()
	_ = h.Cache.SetJSON(ctx, key, view, redisx.TTLStatusCache)
	writeJSON(w, http.StatusOK, view)
}

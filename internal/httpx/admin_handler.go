package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-house-booking/internal/booking"
	"github.com/ariefcatur/go-house-booking/internal/media"
	"github.com/ariefcatur/go-house-booking/internal/pricing"
	"github.com/ariefcatur/go-house-booking/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// AdminHandler is plain CRUD over the store behind basic auth.
type AdminHandler struct {
	Svc      *booking.Service
	Cache    Cache
	Media    media.Store
	Log      *logrus.Logger
	Validate *validator.Validate
	User     string
	Password string
}

type houseReq struct {
	Title             string   `json:"title" validate:"required"`
	Slug              string   `json:"slug" validate:"required"`
	Description       string   `json:"description" validate:"required"`
	Images            []string `json:"images"`
	BasePricePerNight int      `json:"basePricePerNight"`
	MaxGuests         int      `json:"maxGuests"`
	Active            bool     `json:"active"`
}

func (q houseReq) input() booking.HouseInput {
	return booking.HouseInput{
		Title:             q.Title,
		Slug:              q.Slug,
		Description:       q.Description,
		Images:            q.Images,
		BasePricePerNight: q.BasePricePerNight,
		MaxGuests:         q.MaxGuests,
		Active:            q.Active,
	}
}

type extraReq struct {
	Title     string            `json:"title" validate:"required"`
	Slug      string            `json:"slug" validate:"required"`
	Price     int               `json:"price"`
	PriceType pricing.PriceType `json:"priceType" validate:"required"`
	Active    bool              `json:"active"`
}

func (q extraReq) input() booking.ExtraInput {
	return booking.ExtraInput{Title: q.Title, Slug: q.Slug, Price: q.Price, PriceType: q.PriceType, Active: q.Active}
}

// holdUntil and the nullable payment fields distinguish "absent" from null.
type bookingPatchReq struct {
	Status    string          `json:"status"`
	HoldUntil json.RawMessage `json:"holdUntil"`
}

type paymentPatchReq struct {
	Status         string          `json:"status"`
	PaymentURL     json.RawMessage `json:"paymentUrl"`
	TBankPaymentID json.RawMessage `json:"tbankPaymentId"`
	Amount         *int64          `json:"amount"`
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(h.auth)
		r.Get("/houses", h.listHouses)
		r.Post("/houses", h.createHouse)
		r.Put("/houses/{id}", h.updateHouse)
		r.Delete("/houses/{id}", h.deleteHouse)

		r.Get("/extras", h.listExtras)
		r.Post("/extras", h.createExtra)
		r.Put("/extras/{id}", h.updateExtra)
		r.Delete("/extras/{id}", h.deleteExtra)

		r.Get("/bookings", h.listBookings)
		r.Patch("/bookings/{id}", h.patchBooking)
		r.Patch("/payments/{id}", h.patchPayment)

		r.Post("/upload", h.upload)
	})
}

// auth rejects everything while no admin password is configured.
func (h *AdminHandler) auth(next http.Handler) http.Handler {
	if h.Password == "" {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Admin access disabled"})
		})
	}
	return middleware.BasicAuth("admin", map[string]string{h.User: h.Password})(next)
}

func (h *AdminHandler) invalidateCatalog(ctx context.Context) {
	if err := h.Cache.Del(ctx, redisx.KeyCatalog); err != nil {
		h.Log.WithError(err).Warn("catalog cache invalidation failed")
	}
}

func (h *AdminHandler) listHouses(w http.ResponseWriter, r *http.Request) {
	houses, err := h.Svc.ListHouses(r.Context())
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"houses": houses})
}

func (h *AdminHandler) createHouse(w http.ResponseWriter, r *http.Request) {
	var req houseReq
	if !h.bind(w, r, &req) {
		return
	}
	house, err := h.Svc.CreateHouse(r.Context(), req.input())
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	h.invalidateCatalog(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"house": house})
}

func (h *AdminHandler) updateHouse(w http.ResponseWriter, r *http.Request) {
	var req houseReq
	if !h.bind(w, r, &req) {
		return
	}
	house, err := h.Svc.UpdateHouse(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	h.invalidateCatalog(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"house": house})
}

func (h *AdminHandler) deleteHouse(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.DeleteHouse(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	h.invalidateCatalog(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *AdminHandler) listExtras(w http.ResponseWriter, r *http.Request) {
	extras, err := h.Svc.ListExtras(r.Context())
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"extras": extras})
}

func (h *AdminHandler) createExtra(w http.ResponseWriter, r *http.Request) {
	var req extraReq
	if !h.bind(w, r, &req) {
		return
	}
	extra, err := h.Svc.CreateExtra(r.Context(), req.input())
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	h.invalidateCatalog(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"extra": extra})
}

func (h *AdminHandler) updateExtra(w http.ResponseWriter, r *http.Request) {
	var req extraReq
	if !h.bind(w, r, &req) {
		return
	}
	extra, err := h.Svc.UpdateExtra(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	h.invalidateCatalog(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"extra": extra})
}

func (h *AdminHandler) deleteExtra(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.DeleteExtra(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	h.invalidateCatalog(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *AdminHandler) listBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.Svc.ListBookings(r.Context())
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (h *AdminHandler) patchBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingPatchReq
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON"})
		return
	}
	var patch booking.BookingPatch
	if req.Status != "" {
		st := booking.Status(req.Status)
		patch.Status = &st
	}
	if req.HoldUntil != nil {
		raw, set, err := nullableString(req.HoldUntil)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid holdUntil"})
			return
		}
		patch.SetHoldUntil = set
		if raw != nil && *raw != "" {
			t, err := booking.ParseHoldUntil(*raw)
			if err != nil {
				writeError(w, r, h.Log, err)
				return
			}
			patch.HoldUntil = &t
		}
	}

	id := chi.URLParam(r, "id")
	b, err := h.Svc.PatchBooking(ctxWithTrace(r), id, patch)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	_ = h.Cache.Del(r.Context(), redisx.BookingStatusKey(id))
	writeJSON(w, http.StatusOK, map[string]any{"booking": b})
}

func (h *AdminHandler) patchPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentPatchReq
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON"})
		return
	}
	var (
		patch booking.PaymentPatch
		err   error
	)
	if req.Status != "" {
		patch.Status = &req.Status
	}
	if req.PaymentURL != nil {
		if patch.PaymentURL, patch.SetPaymentURL, err = nullableString(req.PaymentURL); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid paymentUrl"})
			return
		}
	}
	if req.TBankPaymentID != nil {
		if patch.TBankPaymentID, patch.SetTBankID, err = nullableString(req.TBankPaymentID); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid tbankPaymentId"})
			return
		}
	}
	patch.Amount = req.Amount

	p, err := h.Svc.PatchPayment(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payment": p})
}

func (h *AdminHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, media.MaxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "File is required"})
		return
	}
	defer file.Close()

	url, err := h.Media.Save(r.Context(), header.Filename, file)
	if errors.Is(err, media.ErrUnsupportedType) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Unsupported file type"})
		return
	}
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	h.Log.WithFields(logrus.Fields{"file": header.Filename, "url": url}).Info("image uploaded")
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *AdminHandler) bind(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decode(r, v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON"})
		return false
	}
	if err := h.Validate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required fields"})
		return false
	}
	return true
}

// nullableString decodes a present JSON value that is either null or a string.
func nullableString(raw json.RawMessage) (*string, bool, error) {
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false, err
	}
	return s, true, nil
}

package booking

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ariefcatur/go-house-booking/internal/pricing"
)

// MemStore is an in-process Store for local runs (POSTGRES_DSN=memory://) and tests.
// Transactions are serialized and work on a copy that is swapped in on commit.
type MemStore struct {
	txMu sync.Mutex // one writer of bookings/payments at a time

	mu       sync.RWMutex
	houses   map[string]House
	extras   map[string]Extra
	bookings map[string]Booking
	payments map[string]Payment // by booking id
}

func NewMemStore() *MemStore {
	return &MemStore{
		houses:   map[string]House{},
		extras:   map[string]Extra{},
		bookings: map[string]Booking{},
		payments: map[string]Payment{},
	}
}

func (m *MemStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	tx := &memTx{
		houses:   make(map[string]House, len(m.houses)),
		extras:   make(map[string]Extra, len(m.extras)),
		bookings: make(map[string]Booking, len(m.bookings)),
		payments: make(map[string]Payment, len(m.payments)),
	}
	for k, v := range m.houses {
		tx.houses[k] = v
	}
	for k, v := range m.extras {
		tx.extras[k] = v
	}
	for k, v := range m.bookings {
		tx.bookings[k] = v
	}
	for k, v := range m.payments {
		tx.payments[k] = v
	}
	m.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.bookings, m.payments = tx.bookings, tx.payments
	m.mu.Unlock()
	return nil
}

func (m *MemStore) HouseByID(ctx context.Context, id string) (House, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.houses[id]
	if !ok {
		return House{}, ErrNotFound
	}
	return h, nil
}

func (m *MemStore) HouseBySlug(ctx context.Context, slug string) (House, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, h := range m.houses {
		if h.Slug == slug {
			return h, nil
		}
	}
	return House{}, ErrNotFound
}

func (m *MemStore) ListHouses(ctx context.Context, activeOnly bool) ([]House, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []House{}
	for _, h := range m.houses {
		if activeOnly && !h.Active {
			continue
		}
		out = append(out, h)
	}
	if activeOnly {
		sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}
	return out, nil
}

func (m *MemStore) ListExtras(ctx context.Context, activeOnly bool) ([]Extra, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Extra{}
	for _, e := range m.extras {
		if activeOnly && !e.Active {
			continue
		}
		out = append(out, e)
	}
	if activeOnly {
		sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}
	return out, nil
}

func blocking(bookings map[string]Booking, houseID string, from, to, now time.Time) []Booking {
	out := []Booking{}
	for _, b := range bookings {
		if houseID != "" && b.HouseID != houseID {
			continue
		}
		if Overlaps(b.StartDate, b.EndDate, from, to) && b.Blocks(now) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out
}

func (m *MemStore) BlockingBookings(ctx context.Context, houseID string, from, to, now time.Time) ([]Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return blocking(m.bookings, houseID, from, to, now), nil
}

func (m *MemStore) BookingByID(ctx context.Context, id string) (Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return Booking{}, ErrNotFound
	}
	return b, nil
}

func (m *MemStore) PaymentByBooking(ctx context.Context, bookingID string) (Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[bookingID]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return p, nil
}

func (m *MemStore) ListBookings(ctx context.Context) ([]BookingDetails, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]BookingDetails, 0, len(m.bookings))
	for _, b := range m.bookings {
		d := BookingDetails{Booking: b}
		if h, ok := m.houses[b.HouseID]; ok {
			d.House = &h
		}
		if p, ok := m.payments[b.ID]; ok {
			d.Payment = &p
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemStore) slugTaken(slug, exceptID string, houses bool) bool {
	if houses {
		for id, h := range m.houses {
			if id != exceptID && strings.EqualFold(h.Slug, slug) {
				return true
			}
		}
		return false
	}
	for id, e := range m.extras {
		if id != exceptID && strings.EqualFold(e.Slug, slug) {
			return true
		}
	}
	return false
}

func (m *MemStore) CreateHouse(ctx context.Context, h *House) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slugTaken(h.Slug, "", true) {
		return ErrDuplicate
	}
	m.houses[h.ID] = *h
	return nil
}

func (m *MemStore) UpdateHouse(ctx context.Context, h *House) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.houses[h.ID]; !ok {
		return ErrNotFound
	}
	if m.slugTaken(h.Slug, h.ID, true) {
		return ErrDuplicate
	}
	m.houses[h.ID] = *h
	return nil
}

// DeleteHouse cascades to the house's bookings and payments, like the SQL schema.
func (m *MemStore) DeleteHouse(ctx context.Context, id string) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.houses[id]; !ok {
		return ErrNotFound
	}
	delete(m.houses, id)
	for bid, b := range m.bookings {
		if b.HouseID == id {
			delete(m.bookings, bid)
			delete(m.payments, bid)
		}
	}
	return nil
}

func (m *MemStore) CreateExtra(ctx context.Context, e *Extra) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slugTaken(e.Slug, "", false) {
		return ErrDuplicate
	}
	m.extras[e.ID] = *e
	return nil
}

func (m *MemStore) UpdateExtra(ctx context.Context, e *Extra) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.extras[e.ID]
	if !ok {
		return ErrNotFound
	}
	if m.slugTaken(e.Slug, e.ID, false) {
		return ErrDuplicate
	}
	e.CreatedAt = old.CreatedAt
	m.extras[e.ID] = *e
	return nil
}

func (m *MemStore) DeleteExtra(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.extras[id]; !ok {
		return ErrNotFound
	}
	delete(m.extras, id)
	return nil
}

func (m *MemStore) PatchBooking(ctx context.Context, id string, p BookingPatch) (Booking, error) {
	var out Booking
	err := m.InTx(ctx, func(t Tx) error {
		tx := t.(*memTx)
		b, ok := tx.bookings[id]
		if !ok {
			return ErrNotFound
		}
		if p.Status != nil {
			b.Status = *p.Status
		}
		if p.SetHoldUntil {
			b.HoldUntil = p.HoldUntil
		}
		b.UpdatedAt = time.Now().UTC()
		tx.bookings[id] = b
		out = b
		return nil
	})
	return out, err
}

func (m *MemStore) PatchPayment(ctx context.Context, id string, p PaymentPatch) (Payment, error) {
	var out Payment
	err := m.InTx(ctx, func(t Tx) error {
		tx := t.(*memTx)
		for bid, pay := range tx.payments {
			if pay.ID != id {
				continue
			}
			if p.Status != nil {
				pay.Status = *p.Status
			}
			if p.SetPaymentURL {
				pay.PaymentURL = p.PaymentURL
			}
			if p.SetTBankID {
				pay.TBankPaymentID = p.TBankPaymentID
			}
			if p.Amount != nil {
				pay.Amount = *p.Amount
			}
			pay.UpdatedAt = time.Now().UTC()
			tx.payments[bid] = pay
			out = pay
			return nil
		}
		return ErrNotFound
	})
	return out, err
}

func (m *MemStore) ExpireHolds(ctx context.Context, now time.Time) ([]Booking, error) {
	var out []Booking
	err := m.InTx(ctx, func(t Tx) error {
		tx := t.(*memTx)
		for id, b := range tx.bookings {
			if b.HoldExpired(now) {
				b.Status = StatusCancelled
				b.UpdatedAt = now
				tx.bookings[id] = b
				out = append(out, b)
			}
		}
		return nil
	})
	return out, err
}

type memTx struct {
	houses   map[string]House // snapshot, not written back
	extras   map[string]Extra
	bookings map[string]Booking
	payments map[string]Payment
}

func (t *memTx) LockHouse(ctx context.Context, id string) (House, error) {
	h, ok := t.houses[id]
	if !ok {
		return House{}, ErrNotFound
	}
	return h, nil
}

func (t *memTx) HasConflict(ctx context.Context, houseID string, from, to, now time.Time) (bool, error) {
	return len(blocking(t.bookings, houseID, from, to, now)) > 0, nil
}

func (t *memTx) ActiveExtras(ctx context.Context, ids []string) ([]pricing.ExtraOption, error) {
	out := []pricing.ExtraOption{}
	seen := map[string]bool{}
	for _, id := range ids {
		e, ok := t.extras[id]
		if !ok || !e.Active || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, e.Option())
	}
	return out, nil
}

func (t *memTx) InsertBooking(ctx context.Context, b *Booking) error {
	if _, ok := t.bookings[b.ID]; ok {
		return ErrDuplicate
	}
	t.bookings[b.ID] = *b
	return nil
}

func (t *memTx) LockBooking(ctx context.Context, id string) (Booking, error) {
	b, ok := t.bookings[id]
	if !ok {
		return Booking{}, ErrNotFound
	}
	return b, nil
}

func (t *memTx) PaymentByBooking(ctx context.Context, bookingID string) (Payment, error) {
	p, ok := t.payments[bookingID]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return p, nil
}

func (t *memTx) SavePayment(ctx context.Context, p *Payment) error {
	if old, ok := t.payments[p.BookingID]; ok {
		p.ID, p.CreatedAt, p.Provider = old.ID, old.CreatedAt, old.Provider
	}
	t.payments[p.BookingID] = *p
	return nil
}

func (t *memTx) SetBookingStatus(ctx context.Context, id string, s Status) error {
	b, ok := t.bookings[id]
	if !ok {
		return ErrNotFound
	}
	b.Status = s
	b.UpdatedAt = time.Now().UTC()
	t.bookings[id] = b
	return nil
}

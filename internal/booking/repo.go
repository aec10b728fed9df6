package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-house-booking/internal/pricing"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the Postgres Store.
type Repo struct{ DB *pgxpool.Pool }

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	houseCols   = `id, title, slug, description, images, base_price_per_night, max_guests, active, created_at, updated_at`
	extraCols   = `id, title, slug, price, price_type, active, created_at`
	bookingCols = `id, house_id, start_date, end_date, status, hold_until, guest_name, phone, email, comment, extras, nights, total_price, created_at, updated_at`
	paymentCols = `id, booking_id, amount, status, tbank_payment_id, payment_url, raw_init, raw_webhook, provider, created_at, updated_at`
)

// blockingClause is the SQL form of Booking.Blocks; $1 = blocking statuses, $2 = now.
const blockingClause = `(status = ANY($1) OR (status = 'HOLD' AND hold_until IS NOT NULL AND hold_until > $2))`

func blockingArgs(now time.Time) []any {
	st := make([]string, len(blockingStatuses))
	for i, s := range blockingStatuses {
		st[i] = string(s)
	}
	return []any{st, now}
}

func (r *Repo) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&txRepo{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type rowScanner interface{ Scan(dest ...any) error }

func scanHouse(row rowScanner) (House, error) {
	var h House
	var images []byte
	err := row.Scan(&h.ID, &h.Title, &h.Slug, &h.Description, &images, &h.BasePricePerNight, &h.MaxGuests, &h.Active, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return House{}, notFound(err)
	}
	if err := unmarshalList(images, &h.Images); err != nil {
		return House{}, fmt.Errorf("house %s images: %w", h.ID, err)
	}
	return h, nil
}

func scanExtra(row rowScanner) (Extra, error) {
	var e Extra
	var pt string
	if err := row.Scan(&e.ID, &e.Title, &e.Slug, &e.Price, &pt, &e.Active, &e.CreatedAt); err != nil {
		return Extra{}, notFound(err)
	}
	e.PriceType = pricing.PriceType(pt)
	return e, nil
}

func scanBooking(row rowScanner) (Booking, error) {
	var b Booking
	var status string
	var extras []byte
	err := row.Scan(&b.ID, &b.HouseID, &b.StartDate, &b.EndDate, &status, &b.HoldUntil, &b.GuestName, &b.Phone,
		&b.Email, &b.Comment, &extras, &b.Nights, &b.TotalPrice, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return Booking{}, notFound(err)
	}
	b.Status = Status(status)
	if err := unmarshalList(extras, &b.Extras); err != nil {
		return Booking{}, fmt.Errorf("booking %s extras: %w", b.ID, err)
	}
	return b, nil
}

func scanPayment(row rowScanner) (Payment, error) {
	var p Payment
	var rawInit, rawWebhook []byte
	err := row.Scan(&p.ID, &p.BookingID, &p.Amount, &p.Status, &p.TBankPaymentID, &p.PaymentURL,
		&rawInit, &rawWebhook, &p.Provider, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Payment{}, notFound(err)
	}
	p.RawInit, p.RawWebhook = rawInit, rawWebhook
	return p, nil
}

func collect[T any](rows pgx.Rows, scan func(rowScanner) (T, error)) ([]T, error) {
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func unmarshalList[T any](raw []byte, out *[]T) error {
	if len(raw) == 0 {
		*out = []T{}
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return err
	}
	if *out == nil {
		*out = []T{}
	}
	return nil
}

func jsonList[T any](v []T) []byte {
	if v == nil {
		v = []T{}
	}
	b, _ := json.Marshal(v)
	return b
}

// nullJSON turns an empty raw message into SQL NULL.
func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func writeErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

func affected(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return writeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- reads ----

func (r *Repo) HouseByID(ctx context.Context, id string) (House, error) {
	return scanHouse(r.DB.QueryRow(ctx, `SELECT `+houseCols+` FROM houses WHERE id=$1`, id))
}

func (r *Repo) HouseBySlug(ctx context.Context, slug string) (House, error) {
	return scanHouse(r.DB.QueryRow(ctx, `SELECT `+houseCols+` FROM houses WHERE slug=$1`, slug))
}

func (r *Repo) ListHouses(ctx context.Context, activeOnly bool) ([]House, error) {
	q := `SELECT ` + houseCols + ` FROM houses ORDER BY created_at DESC`
	if activeOnly {
		q = `SELECT ` + houseCols + ` FROM houses WHERE active ORDER BY title`
	}
	rows, err := r.DB.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanHouse)
}

func (r *Repo) ListExtras(ctx context.Context, activeOnly bool) ([]Extra, error) {
	q := `SELECT ` + extraCols + ` FROM extras ORDER BY created_at DESC`
	if activeOnly {
		q = `SELECT ` + extraCols + ` FROM extras WHERE active ORDER BY title`
	}
	rows, err := r.DB.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanExtra)
}

func (r *Repo) BlockingBookings(ctx context.Context, houseID string, from, to, now time.Time) ([]Booking, error) {
	args := append(blockingArgs(now), to, from)
	q := `SELECT ` + bookingCols + ` FROM bookings
		WHERE start_date < $3 AND end_date > $4 AND ` + blockingClause
	if houseID != "" {
		q += ` AND house_id = $5`
		args = append(args, houseID)
	}
	q += ` ORDER BY start_date`
	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanBooking)
}

func (r *Repo) BookingByID(ctx context.Context, id string) (Booking, error) {
	return scanBooking(r.DB.QueryRow(ctx, `SELECT `+bookingCols+` FROM bookings WHERE id=$1`, id))
}

func (r *Repo) PaymentByBooking(ctx context.Context, bookingID string) (Payment, error) {
	return paymentByBooking(ctx, r.DB, bookingID)
}

func paymentByBooking(ctx context.Context, q dbtx, bookingID string) (Payment, error) {
	return scanPayment(q.QueryRow(ctx, `SELECT `+paymentCols+` FROM payments WHERE booking_id=$1`, bookingID))
}

func (r *Repo) ListBookings(ctx context.Context) ([]BookingDetails, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+bookingCols+` FROM bookings ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	bookings, err := collect(rows, scanBooking)
	if err != nil {
		return nil, err
	}
	houses, err := r.ListHouses(ctx, false)
	if err != nil {
		return nil, err
	}
	rows, err = r.DB.Query(ctx, `SELECT `+paymentCols+` FROM payments`)
	if err != nil {
		return nil, err
	}
	payments, err := collect(rows, scanPayment)
	if err != nil {
		return nil, err
	}

	houseByID := make(map[string]*House, len(houses))
	for i := range houses {
		houseByID[houses[i].ID] = &houses[i]
	}
	payByBooking := make(map[string]*Payment, len(payments))
	for i := range payments {
		payByBooking[payments[i].BookingID] = &payments[i]
	}
	out := make([]BookingDetails, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, BookingDetails{Booking: b, House: houseByID[b.HouseID], Payment: payByBooking[b.ID]})
	}
	return out, nil
}

// ---- admin writes ----

func (r *Repo) CreateHouse(ctx context.Context, h *House) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO houses(`+houseCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		h.ID, h.Title, h.Slug, h.Description, jsonList(h.Images), h.BasePricePerNight, h.MaxGuests, h.Active, h.CreatedAt, h.UpdatedAt)
	return writeErr(err)
}

func (r *Repo) UpdateHouse(ctx context.Context, h *House) error {
	return affected(r.DB.Exec(ctx, `
		UPDATE houses SET title=$2, slug=$3, description=$4, images=$5, base_price_per_night=$6,
		       max_guests=$7, active=$8, updated_at=$9
		WHERE id=$1`,
		h.ID, h.Title, h.Slug, h.Description, jsonList(h.Images), h.BasePricePerNight, h.MaxGuests, h.Active, h.UpdatedAt))
}

func (r *Repo) DeleteHouse(ctx context.Context, id string) error {
	return affected(r.DB.Exec(ctx, `DELETE FROM houses WHERE id=$1`, id))
}

func (r *Repo) CreateExtra(ctx context.Context, e *Extra) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO extras(`+extraCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.Title, e.Slug, e.Price, string(e.PriceType), e.Active, e.CreatedAt)
	return writeErr(err)
}

func (r *Repo) UpdateExtra(ctx context.Context, e *Extra) error {
	err := r.DB.QueryRow(ctx, `
		UPDATE extras SET title=$2, slug=$3, price=$4, price_type=$5, active=$6
		WHERE id=$1 RETURNING created_at`,
		e.ID, e.Title, e.Slug, e.Price, string(e.PriceType), e.Active).Scan(&e.CreatedAt)
	return writeErr(notFound(err))
}

func (r *Repo) DeleteExtra(ctx context.Context, id string) error {
	return affected(r.DB.Exec(ctx, `DELETE FROM extras WHERE id=$1`, id))
}

func (r *Repo) PatchBooking(ctx context.Context, id string, p BookingPatch) (Booking, error) {
	var out Booking
	err := r.InTx(ctx, func(t Tx) error {
		tx := t.(*txRepo)
		b, err := tx.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		if p.Status != nil {
			b.Status = *p.Status
		}
		if p.SetHoldUntil {
			b.HoldUntil = p.HoldUntil
		}
		row := tx.q.QueryRow(ctx, `
			UPDATE bookings SET status=$2, hold_until=$3, updated_at=now()
			WHERE id=$1 RETURNING `+bookingCols, id, string(b.Status), b.HoldUntil)
		out, err = scanBooking(row)
		return err
	})
	return out, err
}

func (r *Repo) PatchPayment(ctx context.Context, id string, p PaymentPatch) (Payment, error) {
	var out Payment
	err := r.InTx(ctx, func(t Tx) error {
		tx := t.(*txRepo)
		pay, err := scanPayment(tx.q.QueryRow(ctx, `SELECT `+paymentCols+` FROM payments WHERE id=$1 FOR UPDATE`, id))
		if err != nil {
			return err
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
		row := tx.q.QueryRow(ctx, `
			UPDATE payments SET status=$2, payment_url=$3, tbank_payment_id=$4, amount=$5, updated_at=now()
			WHERE id=$1 RETURNING `+paymentCols, id, pay.Status, pay.PaymentURL, pay.TBankPaymentID, pay.Amount)
		out, err = scanPayment(row)
		return err
	})
	return out, err
}

func (r *Repo) ExpireHolds(ctx context.Context, now time.Time) ([]Booking, error) {
	rows, err := r.DB.Query(ctx, `
		UPDATE bookings SET status='CANCELLED', updated_at=$1
		WHERE status='HOLD' AND (hold_until IS NULL OR hold_until <= $1)
		RETURNING `+bookingCols, now)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanBooking)
}

// ---- transactional view ----

type txRepo struct{ q dbtx }

// LockHouse takes the house row lock; every hold for the house queues behind it,
// so the conflict check below cannot race with another insert.
func (t *txRepo) LockHouse(ctx context.Context, id string) (House, error) {
	return scanHouse(t.q.QueryRow(ctx, `SELECT `+houseCols+` FROM houses WHERE id=$1 FOR UPDATE`, id))
}

func (t *txRepo) HasConflict(ctx context.Context, houseID string, from, to, now time.Time) (bool, error) {
	var exists bool
	args := append(blockingArgs(now), houseID, to, from)
	err := t.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE house_id = $3 AND start_date < $4 AND end_date > $5 AND `+blockingClause+`
		)`, args...).Scan(&exists)
	return exists, err
}

func (t *txRepo) ActiveExtras(ctx context.Context, ids []string) ([]pricing.ExtraOption, error) {
	rows, err := t.q.Query(ctx, `SELECT `+extraCols+` FROM extras WHERE active AND id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	extras, err := collect(rows, scanExtra)
	if err != nil {
		return nil, err
	}
	out := make([]pricing.ExtraOption, 0, len(extras))
	for _, e := range extras {
		out = append(out, e.Option())
	}
	return out, nil
}

func (t *txRepo) InsertBooking(ctx context.Context, b *Booking) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO bookings(`+bookingCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		b.ID, b.HouseID, b.StartDate, b.EndDate, string(b.Status), b.HoldUntil, b.GuestName, b.Phone,
		b.Email, b.Comment, jsonList(b.Extras), b.Nights, b.TotalPrice, b.CreatedAt, b.UpdatedAt)
	return writeErr(err)
}

func (t *txRepo) LockBooking(ctx context.Context, id string) (Booking, error) {
	return scanBooking(t.q.QueryRow(ctx, `SELECT `+bookingCols+` FROM bookings WHERE id=$1 FOR UPDATE`, id))
}

func (t *txRepo) PaymentByBooking(ctx context.Context, bookingID string) (Payment, error) {
	return paymentByBooking(ctx, t.q, bookingID)
}

func (t *txRepo) SavePayment(ctx context.Context, p *Payment) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO payments(`+paymentCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (booking_id) DO UPDATE SET
			amount = EXCLUDED.amount,
			status = EXCLUDED.status,
			tbank_payment_id = EXCLUDED.tbank_payment_id,
			payment_url = EXCLUDED.payment_url,
			raw_init = EXCLUDED.raw_init,
			raw_webhook = EXCLUDED.raw_webhook,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.BookingID, p.Amount, p.Status, p.TBankPaymentID, p.PaymentURL,
		nullJSON(p.RawInit), nullJSON(p.RawWebhook), p.Provider, p.CreatedAt, p.UpdatedAt)
	return writeErr(err)
}

func (t *txRepo) SetBookingStatus(ctx context.Context, id string, s Status) error {
	return affected(t.q.Exec(ctx, `UPDATE bookings SET status=$2, updated_at=now() WHERE id=$1`, id, string(s)))
}

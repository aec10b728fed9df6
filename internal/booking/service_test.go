package booking

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-house-booking/internal/config"
	"github.com/ariefcatur/go-house-booking/internal/dates"
	"github.com/ariefcatur/go-house-booking/internal/pricing"
	"github.com/ariefcatur/go-house-booking/internal/tbank"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const testPassword = "tbank-secret"

type fakeGateway struct {
	mu    sync.Mutex
	calls []tbank.InitRequest
	resp  tbank.InitResponse
	err   error
	// during runs while the gateway is "answering", outside any store transaction.
	during func()
}

func (g *fakeGateway) Init(ctx context.Context, req tbank.InitRequest) (tbank.InitResponse, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	resp, err, during := g.resp, g.err, g.during
	g.mu.Unlock()
	if during != nil {
		during()
	}
	return resp, err
}

type recordedEvent struct {
	key  string
	env  Envelope
	kind string
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *fakePublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	var env Envelope
	_ = json.Unmarshal(value, &env)
	kind := ""
	for _, h := range headers {
		if h.Key == "x-event-type" {
			kind = string(h.Value)
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{key: string(key), env: env, kind: kind})
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.env.EventType)
	}
	return out
}

type fixture struct {
	svc     *Service
	store   *MemStore
	gateway *fakeGateway
	events  *fakePublisher
	clock   time.Time
	house   House
	extras  map[string]Extra
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  NewMemStore(),
		events: &fakePublisher{},
		clock:  time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC),
		gateway: &fakeGateway{resp: tbank.InitResponse{
			PaymentID:  "700001",
			PaymentURL: "https://securepay.tinkoff.ru/new/abc",
			Status:     tbank.StatusNew,
			Raw:        json.RawMessage(`{"Success":true,"PaymentId":"700001"}`),
		}},
		extras: map[string]Extra{},
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	f.svc = &Service{
		Store:   f.store,
		Gateway: f.gateway,
		Events:  f.events,
		Log:     log,
		TBank: config.TBankConfig{
			TerminalKey:   "TK",
			Password:      testPassword,
			InitURL:       "https://securepay.example/v2/Init",
			PublicBaseURL: "https://houses.example",
		},
		Producer: "booking-test",
		Now:      func() time.Time { return f.clock },
	}

	ctx := context.Background()
	f.house = f.addHouse(t, "sosnovyy-priyut", 8500, true)
	f.addHouse(t, "lesnaya-veranda", 9200, false)
	for _, e := range []Extra{
		{ID: "breakfast", Title: "Breakfast", Slug: "breakfast", Price: 2000, PriceType: pricing.PerNight, Active: true},
		{ID: "sauna", Title: "Sauna", Slug: "sauna", Price: 3000, PriceType: pricing.PerBooking, Active: true},
		{ID: "firewood", Title: "Firewood", Slug: "firewood", Price: 500, PriceType: pricing.PerUnit, Active: true},
		{ID: "boat", Title: "Boat", Slug: "boat", Price: 7000, PriceType: pricing.PerBooking, Active: false},
	} {
		e := e
		if err := f.store.CreateExtra(ctx, &e); err != nil {
			t.Fatal(err)
		}
		f.extras[e.ID] = e
	}
	return f
}

func (f *fixture) addHouse(t *testing.T, slug string, price int, active bool) House {
	t.Helper()
	h := House{ID: "house-" + slug, Title: slug, Slug: slug, Description: "d", Images: []string{}, BasePricePerNight: price, MaxGuests: 4, Active: active, CreatedAt: f.clock}
	if err := f.store.CreateHouse(context.Background(), &h); err != nil {
		t.Fatal(err)
	}
	return h
}

func (f *fixture) hold(t *testing.T, start, end string, extras ...pricing.SelectedExtra) Booking {
	t.Helper()
	b, err := f.svc.CreateHold(context.Background(), HoldInput{
		HouseID: f.house.ID, StartDate: start, EndDate: end,
		GuestName: "Anna", Phone: "+79990000000", Extras: extras,
	})
	if err != nil {
		t.Fatalf("create hold %s..%s: %v", start, end, err)
	}
	return b
}

func (f *fixture) notify(t *testing.T, fields map[string]any) error {
	t.Helper()
	fields["Token"] = tbank.Token(fields, testPassword)
	body, err := json.Marshal(fields)
	if err != nil {
		t.Fatal(err)
	}
	return f.svc.HandleNotification(context.Background(), body)
}

func (f *fixture) status(t *testing.T, id string) Status {
	t.Helper()
	b, err := f.store.BookingByID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return b.Status
}

func TestCreateHoldValidationOrder(t *testing.T) {
	f := newFixture(t)
	f.hold(t, "2024-06-10", "2024-06-12")

	cases := []struct {
		name string
		in   HoldInput
		kind Kind
		msg  string
	}{
		{"missing phone", HoldInput{HouseID: f.house.ID, StartDate: "2024-06-01", EndDate: "2024-06-02", GuestName: "A"}, KindValidation, "Missing required fields"},
		{"unparseable", HoldInput{HouseID: f.house.ID, StartDate: "june", EndDate: "2024-06-02", GuestName: "A", Phone: "1"}, KindValidation, "Invalid date range"},
		{"reversed", HoldInput{HouseID: f.house.ID, StartDate: "2024-06-03", EndDate: "2024-06-02", GuestName: "A", Phone: "1"}, KindValidation, "Invalid date range"},
		{"empty range", HoldInput{HouseID: f.house.ID, StartDate: "2024-06-03", EndDate: "2024-06-03", GuestName: "A", Phone: "1"}, KindValidation, "Invalid date range"},
		{"unknown house", HoldInput{HouseID: "nope", StartDate: "2024-06-01", EndDate: "2024-06-02", GuestName: "A", Phone: "1"}, KindNotFound, "House not found"},
		{"inactive house", HoldInput{HouseID: "house-lesnaya-veranda", StartDate: "2024-06-01", EndDate: "2024-06-02", GuestName: "A", Phone: "1"}, KindNotFound, "House not found"},
		{"conflict", HoldInput{HouseID: f.house.ID, StartDate: "2024-06-11", EndDate: "2024-06-15", GuestName: "A", Phone: "1"}, KindConflict, "Dates are not available"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateHold(context.Background(), tc.in)
			if KindOf(err) != tc.kind {
				t.Fatalf("kind = %v (%v), want %v", KindOf(err), err, tc.kind)
			}
			if err.Error() != tc.msg {
				t.Fatalf("msg = %q, want %q", err.Error(), tc.msg)
			}
		})
	}
}

func TestCreateHoldPricingAndExtras(t *testing.T) {
	f := newFixture(t)
	b := f.hold(t, "2024-06-01", "2024-06-04",
		pricing.SelectedExtra{ExtraID: "breakfast", Qty: 1},
		pricing.SelectedExtra{ExtraID: "firewood", Qty: 0},
		pricing.SelectedExtra{ExtraID: "boat", Qty: 1},
		pricing.SelectedExtra{ExtraID: "ghost", Qty: 5},
	)

	if b.Status != StatusHold || b.Nights != 3 {
		t.Fatalf("unexpected booking %+v", b)
	}
	want := 3*8500 + 3*2000 + 1*500
	if b.TotalPrice != want {
		t.Fatalf("total = %d, want %d", b.TotalPrice, want)
	}
	if len(b.Extras) != 2 || b.Extras[1] != (pricing.SelectedExtra{ExtraID: "firewood", Qty: 1}) {
		t.Fatalf("extras = %+v", b.Extras)
	}
	if b.HoldUntil == nil || !b.HoldUntil.Equal(f.clock.Add(10*time.Minute)) {
		t.Fatalf("hold until = %v", b.HoldUntil)
	}
	if got := f.events.types(); len(got) != 1 || got[0] != EventBookingHeld {
		t.Fatalf("events = %v", got)
	}
}

func TestHoldBlocksUntilExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.hold(t, "2024-06-01", "2024-06-04")

	iv, err := f.svc.Intervals(ctx, f.house.ID, "2024-06-03", "2024-06-10")
	if err != nil {
		t.Fatal(err)
	}
	if len(iv) != 1 || iv[0].ID != b.ID || iv[0].StartDate != "2024-06-01" || iv[0].EndDate != "2024-06-04" {
		t.Fatalf("intervals = %+v", iv)
	}

	f.clock = f.clock.Add(9*time.Minute + 59*time.Second)
	if iv, _ := f.svc.Intervals(ctx, f.house.ID, "2024-06-01", "2024-06-02"); len(iv) != 1 {
		t.Fatal("hold should still block before expiry")
	}

	f.clock = f.clock.Add(time.Second)
	if iv, _ := f.svc.Intervals(ctx, f.house.ID, "2024-06-01", "2024-06-02"); len(iv) != 0 {
		t.Fatalf("expired hold still blocks: %+v", iv)
	}
	if f.status(t, b.ID) != StatusHold {
		t.Fatal("expiry must not need a status change")
	}
	// Same dates can be held again.
	f.hold(t, "2024-06-02", "2024-06-03")
}

func TestIntervalsEdgeTouching(t *testing.T) {
	f := newFixture(t)
	f.hold(t, "2024-06-01", "2024-06-04")

	iv, err := f.svc.Intervals(context.Background(), f.house.ID, "2024-06-04", "2024-06-06")
	if err != nil {
		t.Fatal(err)
	}
	if len(iv) != 0 {
		t.Fatal("checkout day must not block the next check-in")
	}
	f.hold(t, "2024-06-04", "2024-06-06")
	f.hold(t, "2024-05-30", "2024-06-01")
}

func TestIntervalsValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Intervals(ctx, "", "2024-06-01", "2024-06-02"); KindOf(err) != KindValidation {
		t.Fatalf("got %v", err)
	}
	if _, err := f.svc.Intervals(ctx, f.house.ID, "2024-06-02", "2024-06-01"); KindOf(err) != KindValidation {
		t.Fatalf("got %v", err)
	}
}

func TestAvailableHousesAndCalendar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	second := f.addHouse(t, "ozernyy-gorizont", 12000, true)

	f.hold(t, "2024-06-01", "2024-06-04")
	_, err := f.svc.CreateHold(ctx, HoldInput{HouseID: second.ID, StartDate: "2024-06-02", EndDate: "2024-06-03", GuestName: "B", Phone: "2"})
	if err != nil {
		t.Fatal(err)
	}

	houses, err := f.svc.AvailableHouses(ctx, "2024-06-03", "2024-06-05")
	if err != nil {
		t.Fatal(err)
	}
	if len(houses) != 1 || houses[0].ID != second.ID {
		t.Fatalf("available = %+v", houses)
	}

	days, err := f.svc.CalendarDates(ctx, "2024-05-31", "2024-06-05")
	if err != nil {
		t.Fatal(err)
	}
	// 06-02 is taken in both houses; inactive houses never count.
	want := []string{"2024-05-31", "2024-06-01", "2024-06-03", "2024-06-04"}
	if len(days) != len(want) {
		t.Fatalf("days = %v", days)
	}
	for i := range want {
		if days[i] != want[i] {
			t.Fatalf("days = %v, want %v", days, want)
		}
	}
}

func TestCalendarNoActiveHouses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.store.DeleteHouse(ctx, f.house.ID); err != nil {
		t.Fatal(err)
	}
	days, err := f.svc.CalendarDates(ctx, "2024-06-01", "2024-06-05")
	if err != nil || days == nil || len(days) != 0 {
		t.Fatalf("days = %v, err = %v", days, err)
	}
}

func TestConcurrentHoldsNeverOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	windows := [][2]string{
		{"2024-07-01", "2024-07-05"}, {"2024-07-03", "2024-07-06"}, {"2024-07-04", "2024-07-08"},
		{"2024-07-05", "2024-07-07"}, {"2024-07-02", "2024-07-03"}, {"2024-07-06", "2024-07-10"},
		{"2024-07-08", "2024-07-09"}, {"2024-07-01", "2024-07-10"},
	}
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 64; i++ {
		w := windows[i%len(windows)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.CreateHold(ctx, HoldInput{HouseID: f.house.ID, StartDate: w[0], EndDate: w[1], GuestName: "G", Phone: "1"})
			if err != nil && KindOf(err) != KindConflict {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	from, _ := dates.Parse("2024-01-01")
	to, _ := dates.Parse("2025-01-01")
	held, err := f.store.BlockingBookings(ctx, f.house.ID, from, to, f.clock)
	if err != nil {
		t.Fatal(err)
	}
	if len(held) == 0 {
		t.Fatal("no hold succeeded")
	}
	for i := range held {
		for j := i + 1; j < len(held); j++ {
			a, b := held[i], held[j]
			if Overlaps(a.StartDate, a.EndDate, b.StartDate, b.EndDate) {
				t.Fatalf("double booking: %s [%s,%s) and %s [%s,%s)", a.ID, dates.Format(a.StartDate), dates.Format(a.EndDate),
					b.ID, dates.Format(b.StartDate), dates.Format(b.EndDate))
			}
		}
	}
}

func TestInitPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.hold(t, "2024-06-01", "2024-06-03")

	res, err := f.svc.InitPayment(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.PaymentURL == nil || *res.PaymentURL != "https://securepay.tinkoff.ru/new/abc" || *res.TBankPaymentID != "700001" {
		t.Fatalf("result = %+v", res)
	}
	req := f.gateway.calls[0]
	if req.Amount != int64(b.TotalPrice)*100 || req.OrderID != b.ID {
		t.Fatalf("request = %+v", req)
	}
	if req.NotificationURL != "https://houses.example/api/tbank/notify" ||
		req.SuccessURL != "https://houses.example/success?bookingId="+b.ID ||
		req.FailURL != "https://houses.example/fail?bookingId="+b.ID {
		t.Fatalf("callback urls = %+v", req)
	}
	if f.status(t, b.ID) != StatusPendingPayment {
		t.Fatal("booking should be pending payment")
	}
	pay, err := f.store.PaymentByBooking(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if pay.Amount != int64(b.TotalPrice)*100 || pay.Status != "NEW" || pay.Provider != tbank.ProviderName {
		t.Fatalf("payment = %+v", pay)
	}

	// A second init without a payment id keeps the first one.
	f.gateway.resp.PaymentID = ""
	f.gateway.resp.PaymentURL = "https://securepay.tinkoff.ru/new/def"
	if _, err := f.svc.InitPayment(ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	pay2, _ := f.store.PaymentByBooking(ctx, b.ID)
	if pay2.ID != pay.ID || pay2.TBankPaymentID == nil || *pay2.TBankPaymentID != "700001" || *pay2.PaymentURL != "https://securepay.tinkoff.ru/new/def" {
		t.Fatalf("payment after re-init = %+v", pay2)
	}
}

func TestInitPaymentRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.InitPayment(ctx, ""); KindOf(err) != KindValidation {
		t.Fatalf("empty id: %v", err)
	}
	if _, err := f.svc.InitPayment(ctx, "missing"); KindOf(err) != KindNotFound {
		t.Fatalf("missing: %v", err)
	}

	expired := f.hold(t, "2024-06-01", "2024-06-02")
	f.clock = f.clock.Add(11 * time.Minute)
	if _, err := f.svc.InitPayment(ctx, expired.ID); KindOf(err) != KindValidation || err.Error() != "Hold expired" {
		t.Fatalf("expired: %v", err)
	}

	cancelled := f.hold(t, "2024-06-05", "2024-06-06")
	st := StatusCancelled
	if _, err := f.svc.PatchBooking(ctx, cancelled.ID, BookingPatch{Status: &st}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.InitPayment(ctx, cancelled.ID); KindOf(err) != KindValidation || err.Error() != "Booking status not payable" {
		t.Fatalf("cancelled: %v", err)
	}

	open := f.hold(t, "2024-06-07", "2024-06-08")
	f.svc.TBank.TerminalKey = ""
	if _, err := f.svc.InitPayment(ctx, open.ID); KindOf(err) != KindConfiguration {
		t.Fatalf("config: %v", err)
	}
	f.svc.TBank.TerminalKey = "TK"

	f.gateway.err = tbank.ErrInitFailed
	if _, err := f.svc.InitPayment(ctx, open.ID); KindOf(err) != KindGateway {
		t.Fatalf("gateway: %v", err)
	}
	if f.status(t, open.ID) != StatusHold {
		t.Fatal("failed init must not move the booking")
	}
	if _, err := f.store.PaymentByBooking(ctx, open.ID); !errors.Is(err, ErrNotFound) {
		t.Fatal("failed init must not create a payment")
	}
}

func TestInitPaymentKeepsManual(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.hold(t, "2024-06-01", "2024-06-02")
	st := StatusManual
	if _, err := f.svc.PatchBooking(ctx, b.ID, BookingPatch{Status: &st}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.InitPayment(ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	if f.status(t, b.ID) != StatusManual {
		t.Fatal("only HOLD moves to PENDING_PAYMENT")
	}
}

func TestInitPaymentBookingChangedDuringInit(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(t *testing.T, f *fixture, b Booking)
		status  Status
		payment string // "" means no payment row
	}{
		{
			name: "swept",
			mutate: func(t *testing.T, f *fixture, b Booking) {
				f.clock = f.clock.Add(11 * time.Minute)
				if _, err := f.svc.ExpireHolds(context.Background()); err != nil {
					t.Fatal(err)
				}
			},
			status: StatusCancelled,
		},
		{
			name: "cancelled by admin",
			mutate: func(t *testing.T, f *fixture, b Booking) {
				st := StatusCancelled
				if _, err := f.svc.PatchBooking(context.Background(), b.ID, BookingPatch{Status: &st}); err != nil {
					t.Fatal(err)
				}
			},
			status: StatusCancelled,
		},
		{
			name: "paid by webhook",
			mutate: func(t *testing.T, f *fixture, b Booking) {
				if err := f.notify(t, map[string]any{"OrderId": b.ID, "Status": "CONFIRMED", "PaymentId": "700001"}); err != nil {
					t.Fatal(err)
				}
			},
			status:  StatusPaid,
			payment: "CONFIRMED",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			b := f.hold(t, "2024-06-01", "2024-06-03")
			f.gateway.during = func() { tc.mutate(t, f, b) }

			_, err := f.svc.InitPayment(ctx, b.ID)
			if KindOf(err) != KindValidation || err.Error() != "Booking status not payable" {
				t.Fatalf("init: %v", err)
			}
			if got := f.status(t, b.ID); got != tc.status {
				t.Fatalf("status = %s, want %s", got, tc.status)
			}
			pay, err := f.store.PaymentByBooking(ctx, b.ID)
			if tc.payment == "" {
				if !errors.Is(err, ErrNotFound) {
					t.Fatalf("payment = %+v, %v", pay, err)
				}
			} else if err != nil || pay.Status != tc.payment || len(pay.RawInit) != 0 {
				t.Fatalf("payment = %+v, %v", pay, err)
			}
			for _, typ := range f.events.types() {
				if typ == EventBookingPaymentPending {
					t.Fatal("rejected init must not publish")
				}
			}
			if tc.status == StatusCancelled {
				f.gateway.during = nil
				f.hold(t, "2024-06-01", "2024-06-03")
			}
		})
	}
}

func TestNotificationReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.hold(t, "2024-06-01", "2024-06-03")
	if _, err := f.svc.InitPayment(ctx, b.ID); err != nil {
		t.Fatal(err)
	}

	confirmed := func() map[string]any {
		return map[string]any{"TerminalKey": "TK", "OrderId": b.ID, "Success": true, "Status": "CONFIRMED", "PaymentId": 700001, "Amount": b.TotalPrice * 100}
	}
	if err := f.notify(t, confirmed()); err != nil {
		t.Fatal(err)
	}
	if f.status(t, b.ID) != StatusPaid {
		t.Fatal("expected PAID")
	}
	if err := f.notify(t, confirmed()); err != nil {
		t.Fatal(err)
	}
	if f.status(t, b.ID) != StatusPaid {
		t.Fatal("replay must keep PAID")
	}
	if err := f.notify(t, map[string]any{"OrderId": b.ID, "Status": "REFUNDED", "PaymentId": 700001}); err != nil {
		t.Fatal(err)
	}
	if f.status(t, b.ID) != StatusPaid {
		t.Fatal("cancellation after PAID must be ignored")
	}
	pay, _ := f.store.PaymentByBooking(ctx, b.ID)
	if pay.Status != "REFUNDED" || len(pay.RawWebhook) == 0 || len(pay.RawInit) == 0 {
		t.Fatalf("payment = %+v", pay)
	}

	paid := 0
	for _, typ := range f.events.types() {
		if typ == EventBookingPaid {
			paid++
		}
	}
	if paid != 1 {
		t.Fatalf("BookingPaid published %d times", paid)
	}
}

func TestNotificationCancels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.hold(t, "2024-06-01", "2024-06-03")
	if _, err := f.svc.InitPayment(ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.notify(t, map[string]any{"OrderId": b.ID, "Status": "AUTHORIZED_PENDING"}); err != nil {
		t.Fatal(err)
	}
	if f.status(t, b.ID) != StatusPendingPayment {
		t.Fatal("unknown statuses leave the booking alone")
	}
	if err := f.notify(t, map[string]any{"OrderId": b.ID, "Status": "REJECTED", "PaymentId": "700001"}); err != nil {
		t.Fatal(err)
	}
	if f.status(t, b.ID) != StatusCancelled {
		t.Fatal("expected CANCELLED")
	}
	iv, _ := f.svc.Intervals(ctx, f.house.ID, "2024-06-01", "2024-06-03")
	if len(iv) != 0 {
		t.Fatal("cancelled booking must not block")
	}
}

func TestNotificationWithoutPriorPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.hold(t, "2024-06-01", "2024-06-03")
	if err := f.notify(t, map[string]any{"OrderId": b.ID, "Status": "NEW"}); err != nil {
		t.Fatal(err)
	}
	pay, err := f.store.PaymentByBooking(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if pay.Amount != int64(b.TotalPrice)*100 || pay.TBankPaymentID != nil || pay.Provider != tbank.ProviderName {
		t.Fatalf("payment = %+v", pay)
	}
}

func TestNotificationAuthAndUnknown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.notify(t, map[string]any{"OrderId": "unknown", "Status": "CONFIRMED"}); err != nil {
		t.Fatalf("unknown order must be acked: %v", err)
	}
	if err := f.notify(t, map[string]any{"Status": "CONFIRMED"}); err != nil {
		t.Fatalf("missing order id must be acked: %v", err)
	}

	b := f.hold(t, "2024-06-01", "2024-06-03")
	fields := map[string]any{"OrderId": b.ID, "Status": "CONFIRMED"}
	fields["Token"] = tbank.Token(fields, testPassword)
	fields["Status"] = "AUTHORIZED"
	body, _ := json.Marshal(fields)
	if err := f.svc.HandleNotification(ctx, body); KindOf(err) != KindAuth {
		t.Fatalf("tampered: %v", err)
	}
	if err := f.svc.HandleNotification(ctx, []byte(`{"OrderId":"x"}`)); KindOf(err) != KindAuth {
		t.Fatalf("no token: %v", err)
	}
	if f.status(t, b.ID) != StatusHold {
		t.Fatal("rejected notification must not change the booking")
	}

	f.svc.TBank.Password = ""
	if err := f.svc.HandleNotification(ctx, body); KindOf(err) != KindConfiguration {
		t.Fatalf("no password: %v", err)
	}
}

func TestNotificationPaidAfterRelease(t *testing.T) {
	confirmed := func(id string) map[string]any {
		return map[string]any{"OrderId": id, "Status": "CONFIRMED", "PaymentId": "700009"}
	}

	t.Run("dates still free", func(t *testing.T) {
		f := newFixture(t)
		b := f.hold(t, "2024-06-01", "2024-06-03")
		st := StatusCancelled
		if _, err := f.svc.PatchBooking(context.Background(), b.ID, BookingPatch{Status: &st}); err != nil {
			t.Fatal(err)
		}
		if err := f.notify(t, confirmed(b.ID)); err != nil {
			t.Fatal(err)
		}
		if f.status(t, b.ID) != StatusPaid {
			t.Fatal("cancelled booking should be reinstated as PAID")
		}
		types := f.events.types()
		if types[len(types)-1] != EventBookingPaid {
			t.Fatalf("events = %v", types)
		}
	})

	releases := []struct {
		name    string
		release func(t *testing.T, f *fixture, b Booking)
		status  Status
	}{
		{
			name: "cancelled",
			release: func(t *testing.T, f *fixture, b Booking) {
				st := StatusCancelled
				if _, err := f.svc.PatchBooking(context.Background(), b.ID, BookingPatch{Status: &st}); err != nil {
					t.Fatal(err)
				}
			},
			status: StatusCancelled,
		},
		{
			name: "hold expired unswept",
			release: func(t *testing.T, f *fixture, b Booking) {
				f.clock = f.clock.Add(11 * time.Minute)
			},
			status: StatusHold,
		},
	}
	for _, tc := range releases {
		t.Run("dates taken after "+tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			a := f.hold(t, "2024-06-01", "2024-06-03")
			tc.release(t, f, a)
			other := f.hold(t, "2024-06-02", "2024-06-04")

			if err := f.notify(t, confirmed(a.ID)); err != nil {
				t.Fatalf("webhook must still be acked: %v", err)
			}
			if got := f.status(t, a.ID); got != tc.status {
				t.Fatalf("status = %s, want %s", got, tc.status)
			}
			if f.status(t, other.ID) != StatusHold {
				t.Fatal("the new hold must survive")
			}
			pay, err := f.store.PaymentByBooking(ctx, a.ID)
			if err != nil || pay.Status != "CONFIRMED" {
				t.Fatalf("payment = %+v, %v", pay, err)
			}
			last := f.events.events[len(f.events.events)-1]
			if last.env.EventType != EventBookingPaymentConflict || last.key != a.ID {
				t.Fatalf("last event = %+v", last)
			}
			iv, _ := f.svc.Intervals(ctx, f.house.ID, "2024-06-01", "2024-06-05")
			if len(iv) != 1 {
				t.Fatalf("intervals = %+v", iv)
			}
		})
	}
}

type memDedup struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (d *memDedup) Seen(ctx context.Context, k string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.keys[k]
}

func (d *memDedup) Mark(ctx context.Context, k string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[k] = true
}

func TestNotificationDedup(t *testing.T) {
	f := newFixture(t)
	d := &memDedup{keys: map[string]bool{}}
	f.svc.Dedup = d
	b := f.hold(t, "2024-06-01", "2024-06-03")

	msg := map[string]any{"OrderId": b.ID, "Status": "CONFIRMED", "PaymentId": "1"}
	if err := f.notify(t, msg); err != nil {
		t.Fatal(err)
	}
	if !d.keys[b.ID+":CONFIRMED:1"] {
		t.Fatalf("dedup keys = %v", d.keys)
	}
}

func TestExpireHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stale := f.hold(t, "2024-06-01", "2024-06-02")
	f.clock = f.clock.Add(5 * time.Minute)
	fresh := f.hold(t, "2024-06-03", "2024-06-04")
	paying := f.hold(t, "2024-06-05", "2024-06-06")
	if _, err := f.svc.InitPayment(ctx, paying.ID); err != nil {
		t.Fatal(err)
	}

	f.clock = f.clock.Add(6 * time.Minute)
	expired, err := f.svc.ExpireHolds(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(expired) != 1 || expired[0].ID != stale.ID {
		t.Fatalf("expired = %+v", expired)
	}
	if f.status(t, stale.ID) != StatusCancelled || f.status(t, fresh.ID) != StatusHold || f.status(t, paying.ID) != StatusPendingPayment {
		t.Fatal("unexpected statuses after sweep")
	}
	last := f.events.events[len(f.events.events)-1]
	if last.env.EventType != EventBookingCancelled || last.key != stale.ID || last.kind != EventBookingCancelled {
		t.Fatalf("last event = %+v", last)
	}
}

func TestEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.hold(t, "2024-06-01", "2024-06-04", pricing.SelectedExtra{ExtraID: "breakfast", Qty: 1})
	if b.Nights != 3 || b.TotalPrice != 3*f.house.BasePricePerNight+3*2000 {
		t.Fatalf("booking = %+v", b)
	}

	if _, err := f.svc.InitPayment(ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	if f.status(t, b.ID) != StatusPendingPayment {
		t.Fatal("expected PENDING_PAYMENT")
	}

	webhook := map[string]any{
		"TerminalKey": "TK", "OrderId": b.ID, "Success": true, "Status": "CONFIRMED",
		"PaymentId": 700001, "ErrorCode": "0", "Amount": b.TotalPrice * 100,
	}
	for i := 0; i < 2; i++ {
		if err := f.notify(t, webhook); err != nil {
			t.Fatal(err)
		}
		if f.status(t, b.ID) != StatusPaid {
			t.Fatalf("attempt %d: expected PAID", i)
		}
	}

	want := []string{EventBookingHeld, EventBookingPaymentPending, EventBookingPaid}
	got := f.events.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestReconcileTable(t *testing.T) {
	cases := []struct {
		cur  Status
		res  tbank.Resolution
		want Status
		ok   bool
	}{
		{StatusPendingPayment, tbank.ResolvedPaid, StatusPaid, true},
		{StatusHold, tbank.ResolvedPaid, StatusPaid, true},
		{StatusPaid, tbank.ResolvedPaid, StatusPaid, false},
		{StatusPaid, tbank.ResolvedCancelled, StatusPaid, false},
		{StatusCancelled, tbank.ResolvedCancelled, StatusCancelled, false},
		{StatusPendingPayment, tbank.ResolvedCancelled, StatusCancelled, true},
		{StatusManual, tbank.ResolvedPending, StatusManual, false},
	}
	for _, tc := range cases {
		got, ok := reconcile(tc.cur, tc.res)
		if got != tc.want || ok != tc.ok {
			t.Errorf("reconcile(%s, %s) = %s, %v; want %s, %v", tc.cur, tc.res, got, ok, tc.want, tc.ok)
		}
	}
}

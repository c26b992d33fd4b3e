package usecase

import (
	"context"
	"encoding/json"
	"path"
	"sync"
	"testing"
	"time"

	"parking-booking/internal/data/entity"
	"parking-booking/internal/data/memory"
	"parking-booking/internal/dto/request"
	"parking-booking/internal/events"
	"parking-booking/internal/gateway"
	"parking-booking/internal/lifecycle"
	"parking-booking/internal/pricing"
	"parking-booking/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateOrder(ctx context.Context, amount decimal.Decimal, currency string, notes map[string]string) (*gateway.Order, error) {
	args := m.Called(ctx, amount, currency, notes)
	order, _ := args.Get(0).(*gateway.Order)
	return order, args.Error(1)
}

func (m *mockGateway) VerifySignature(ctx context.Context, orderID, paymentID, signature string) (bool, error) {
	args := m.Called(ctx, orderID, paymentID, signature)
	return args.Bool(0), args.Error(1)
}

func (m *mockGateway) ProcessPayment(ctx context.Context, orderID, paymentID string) (*gateway.Capture, error) {
	args := m.Called(ctx, orderID, paymentID)
	capture, _ := args.Get(0).(*gateway.Capture)
	return capture, args.Error(1)
}

func (m *mockGateway) CancelOrder(ctx context.Context, orderID string) error {
	return m.Called(ctx, orderID).Error(0)
}

func (m *mockGateway) ProcessRefund(ctx context.Context, transactionID string, amount decimal.Decimal, reason string) (*gateway.Refund, error) {
	args := m.Called(ctx, transactionID, amount, reason)
	refund, _ := args.Get(0).(*gateway.Refund)
	return refund, args.Error(1)
}

func (m *mockGateway) ParseWebhook(payload []byte, signature string) (*gateway.Result, error) {
	args := m.Called(payload, signature)
	result, _ := args.Get(0).(*gateway.Result)
	return result, args.Error(1)
}

// mapCache is a JSON round-tripping cache with glob removal.
type mapCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMapCache() *mapCache {
	return &mapCache{items: make(map[string][]byte)}
}

func (c *mapCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.items[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = raw
	return nil
}

func (c *mapCache) Remove(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.items, k)
	}
	return nil
}

func (c *mapCache) RemoveByPattern(_ context.Context, pattern string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for k := range c.items {
		if ok, _ := path.Match(pattern, k); ok {
			delete(c.items, k)
			n++
		}
	}
	return n, nil
}

func (c *mapCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *memory.Store
	gw    *mockGateway
	cache *mapCache
	svc   *Service

	mu     sync.Mutex
	now    time.Time
	events []events.Event

	owner uuid.UUID
	user  uuid.UUID
	spot  *entity.Spot
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: memory.NewStore(),
		gw:    &mockGateway{},
		cache: newMapCache(),
		now:   t0,
		owner: uuid.New(),
		user:  uuid.New(),
	}

	cfg := &utils.Config{
		Redis:  utils.RedisConfig{DefaultTTL: time.Minute},
		Stripe: utils.StripeConfig{Currency: "inr"},
		Booking: utils.BookingConfig{
			CheckInWindow:    time.Hour,
			PaymentTimeout:   30 * time.Minute,
			OperationTimeout: 5 * time.Second,
			FullRefundBefore: 24 * time.Hour,
			HalfRefundBefore: 2 * time.Hour,
		},
	}

	catalog := pricing.Catalog{
		"SAVE10": {Code: "SAVE10", Kind: pricing.DiscountFixed, Value: dec("10")},
		"HUGE":   {Code: "HUGE", Kind: pricing.DiscountFixed, Value: dec("5000")},
	}

	log := zap.NewNop()
	dispatcher := events.NewDispatcher(log)
	dispatcher.Register("recorder", func(_ context.Context, ev events.Event) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.events = append(f.events, ev)
		return nil
	})

	f.svc = NewService(Deps{
		UOW:     f.store,
		Repo:    f.store.Repository(),
		Pricing: pricing.NewEngine(0.18, 0.05, catalog),
		Machine: lifecycle.NewMachine(cfg.Booking.CheckInWindow),
		Gateway: f.gw,
		Cache:   f.cache,
		Events:  dispatcher,
		Config:  cfg,
		Clock:   f.clock,
		Log:     log,
	})

	f.spot = f.addSpot(1, false)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) setNow(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

func (f *fixture) eventTypes() []events.Type {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]events.Type, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Type
	}
	return out
}

func (f *fixture) addSpot(total int, requiresApproval bool) *entity.Spot {
	f.t.Helper()
	spot := &entity.Spot{
		Base:             entity.NewBase(t0),
		OwnerID:          f.owner,
		Title:            "Basement bay",
		Address:          "12 Market Road",
		TotalSpots:       total,
		HourlyRate:       dec("100"),
		DailyRate:        dec("800"),
		RequiresApproval: requiresApproval,
		IsActive:         true,
	}
	require.NoError(f.t, f.store.Repository().Spot.Create(f.ctx, spot))
	return spot
}

func createReq(spotID uuid.UUID, start, end time.Time) *request.CreateBookingRequest {
	return &request.CreateBookingRequest{
		SpotID:        spotID.String(),
		StartTime:     start,
		EndTime:       end,
		PricingMode:   string(entity.PricingHourly),
		VehicleNumber: "ka01ab1234",
		VehicleType:   "car",
	}
}

func (f *fixture) create(start, end time.Time) uuid.UUID {
	f.t.Helper()
	resp, err := f.svc.Reservation.CreateBooking(f.ctx, f.user, createReq(f.spot.ID, start, end))
	require.NoError(f.t, err)
	return uuid.MustParse(resp.ID)
}

func (f *fixture) booking(id uuid.UUID) *entity.Booking {
	f.t.Helper()
	b, err := f.store.Repository().Booking.FindByID(f.ctx, id)
	require.NoError(f.t, err)
	require.NotNil(f.t, b)
	return b
}

func (f *fixture) payment(bookingID uuid.UUID) *entity.Payment {
	f.t.Helper()
	p, err := f.store.Repository().Payment.FindByBookingID(f.ctx, bookingID)
	require.NoError(f.t, err)
	return p
}

// pay runs a booking through checkout and a successful verification.
func (f *fixture) pay(bookingID uuid.UUID, orderID string) {
	f.t.Helper()
	total := f.booking(bookingID).TotalAmount

	f.gw.On("CreateOrder", mock.Anything, mock.Anything, "inr", mock.Anything).
		Return(&gateway.Order{ID: orderID, Amount: total, Currency: "inr", ClientSecret: orderID + "_secret"}, nil).Once()
	_, err := f.svc.Payment.InitiatePayment(f.ctx, f.user, bookingID)
	require.NoError(f.t, err)

	paymentID := "ch_" + orderID
	f.gw.On("VerifySignature", mock.Anything, orderID, paymentID, "sig").Return(true, nil)
	f.gw.On("ProcessPayment", mock.Anything, orderID, paymentID).
		Return(&gateway.Capture{TransactionID: paymentID, Amount: total}, nil).Once()

	resp, err := f.svc.Payment.Reconcile(f.ctx, bookingID, successResult(orderID, total))
	require.NoError(f.t, err)
	require.False(f.t, resp.AlreadyProcessed)
}

func successResult(orderID string, amount decimal.Decimal) gateway.Result {
	return gateway.Result{
		OrderID:   orderID,
		PaymentID: "ch_" + orderID,
		Signature: "sig",
		Amount:    amount,
		Success:   true,
	}
}

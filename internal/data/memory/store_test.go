package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"parking-booking/internal/data/entity"
	"parking-booking/internal/data/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newBooking(spotID uuid.UUID, status entity.BookingStatus, start, end time.Time) *entity.Booking {
	return &entity.Booking{
		Base:      entity.NewBase(t0),
		Reference: "PRK-" + uuid.NewString()[:8],
		UserID:    uuid.New(),
		SpotID:    spotID,
		StartTime: start,
		EndTime:   end,
		Status:    status,
	}
}

func TestStore_RunInTx_RollsBackOnError(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	spotID := uuid.New()
	boom := errors.New("boom")

	err := st.RunInTx(ctx, func(tx *repository.Repository) error {
		require.NoError(t, tx.Booking.Create(ctx, newBooking(spotID, entity.BookingStatusPending, t0, t0.Add(time.Hour))))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := st.Repository().Booking.CountActiveOverlapping(ctx, spotID, t0, t0.Add(time.Hour), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_RunInTx_InjectedCommitFailure(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	spotID := uuid.New()
	st.FailNextCommits(repository.ErrConflict)

	err := st.RunInTx(ctx, func(tx *repository.Repository) error {
		return tx.Booking.Create(ctx, newBooking(spotID, entity.BookingStatusPending, t0, t0.Add(time.Hour)))
	})
	assert.True(t, repository.IsConflict(err))

	// second attempt commits
	err = st.RunInTx(ctx, func(tx *repository.Repository) error {
		return tx.Booking.Create(ctx, newBooking(spotID, entity.BookingStatusPending, t0, t0.Add(time.Hour)))
	})
	require.NoError(t, err)

	n, _ := st.Repository().Booking.CountActiveOverlapping(ctx, spotID, t0, t0.Add(time.Hour), nil)
	assert.Equal(t, 1, n)
}

func TestStore_RunInTx_CancelledContext(t *testing.T) {
	st := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	spotID := uuid.New()

	err := st.RunInTx(ctx, func(tx *repository.Repository) error {
		require.NoError(t, tx.Booking.Create(ctx, newBooking(spotID, entity.BookingStatusPending, t0, t0.Add(time.Hour))))
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	n, _ := st.Repository().Booking.CountActiveOverlapping(context.Background(), spotID, t0, t0.Add(time.Hour), nil)
	assert.Zero(t, n)
}

func TestBookingRepo_CountActiveOverlapping(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	repo := st.Repository().Booking
	spotID := uuid.New()

	held := newBooking(spotID, entity.BookingStatusConfirmed, t0, t0.Add(2*time.Hour))
	require.NoError(t, repo.Create(ctx, held))
	require.NoError(t, repo.Create(ctx, newBooking(spotID, entity.BookingStatusCancelled, t0, t0.Add(2*time.Hour))))
	require.NoError(t, repo.Create(ctx, newBooking(uuid.New(), entity.BookingStatusConfirmed, t0, t0.Add(2*time.Hour))))

	tests := []struct {
		name       string
		start, end time.Time
		exclude    *uuid.UUID
		want       int
	}{
		{"inside", t0.Add(30 * time.Minute), t0.Add(time.Hour), nil, 1},
		{"touching end", t0.Add(2 * time.Hour), t0.Add(3 * time.Hour), nil, 0},
		{"touching start", t0.Add(-time.Hour), t0, nil, 0},
		{"excluded", t0, t0.Add(time.Hour), &held.ID, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := repo.CountActiveOverlapping(ctx, spotID, tt.start, tt.end, tt.exclude)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestBookingRepo_DuplicateReference(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	repo := st.Repository().Booking

	a := newBooking(uuid.New(), entity.BookingStatusPending, t0, t0.Add(time.Hour))
	b := newBooking(uuid.New(), entity.BookingStatusPending, t0, t0.Add(time.Hour))
	b.Reference = a.Reference

	require.NoError(t, repo.Create(ctx, a))
	assert.True(t, repository.IsConflict(repo.Create(ctx, b)))
}

func TestBookingRepo_ReturnsCopies(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	repo := st.Repository().Booking

	b := newBooking(uuid.New(), entity.BookingStatusPending, t0, t0.Add(time.Hour))
	require.NoError(t, repo.Create(ctx, b))

	got, err := repo.FindByID(ctx, b.ID)
	require.NoError(t, err)
	got.Status = entity.BookingStatusCancelled

	again, _ := repo.FindByID(ctx, b.ID)
	assert.Equal(t, entity.BookingStatusPending, again.Status)
}

func TestBookingRepo_FindStale(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	repo := st.Repository().Booking
	spotID := uuid.New()
	now := t0.Add(24 * time.Hour)

	started := newBooking(spotID, entity.BookingStatusPending, now.Add(-time.Hour), now.Add(time.Hour))
	lapsed := newBooking(spotID, entity.BookingStatusAwaitingPayment, now.Add(time.Hour), now.Add(2*time.Hour))
	lapsed.UpdatedAt = now.Add(-time.Hour)
	fresh := newBooking(spotID, entity.BookingStatusAwaitingPayment, now.Add(time.Hour), now.Add(2*time.Hour))
	fresh.UpdatedAt = now
	paid := newBooking(spotID, entity.BookingStatusConfirmed, now.Add(-time.Hour), now.Add(time.Hour))
	// made for right now: started a minute ago, still inside its payment window
	parkNow := newBooking(spotID, entity.BookingStatusAwaitingPayment, now.Add(-time.Minute), now.Add(3*time.Hour))
	parkNow.UpdatedAt = now.Add(-2 * time.Minute)
	ended := newBooking(spotID, entity.BookingStatusAwaitingPayment, now.Add(-2*time.Hour), now.Add(-time.Hour))
	ended.UpdatedAt = now.Add(-time.Minute)

	for _, b := range []*entity.Booking{started, lapsed, fresh, paid, parkNow, ended} {
		require.NoError(t, repo.Create(ctx, b))
	}

	stale, err := repo.FindStale(ctx, now, now.Add(-30*time.Minute), 10)
	require.NoError(t, err)

	ids := make([]uuid.UUID, 0, len(stale))
	for _, b := range stale {
		ids = append(ids, b.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{started.ID, lapsed.ID, ended.ID}, ids)
}

func TestPaymentRepo_FindByBookingIDReturnsLatest(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	repo := st.Repository().Payment
	bookingID := uuid.New()

	older := &entity.Payment{Base: entity.NewBase(t0), BookingID: bookingID, Status: entity.PaymentStatusFailed}
	newer := &entity.Payment{Base: entity.NewBase(t0.Add(time.Minute)), BookingID: bookingID, Status: entity.PaymentStatusPending}
	order := "pi_123"
	newer.GatewayOrderID = &order

	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))

	got, err := repo.FindByBookingID(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)

	byOrder, err := repo.FindByGatewayOrderID(ctx, "pi_123")
	require.NoError(t, err)
	require.NotNil(t, byOrder)
	assert.Equal(t, newer.ID, byOrder.ID)

	missing, err := repo.FindByGatewayOrderID(ctx, "pi_nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

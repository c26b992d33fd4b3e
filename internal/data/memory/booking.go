package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"parking-booking/internal/data/entity"
	"parking-booking/internal/data/repository"

	"github.com/google/uuid"
)

type bookingRepo struct {
	st      *Store
	locking bool
}

func (r *bookingRepo) Create(_ context.Context, b *entity.Booking) error {
	defer guard(r.st, r.locking)()

	if _, ok := r.st.bookings[b.ID]; ok {
		return fmt.Errorf("create booking %s: duplicate id: %w", b.Reference, repository.ErrConflict)
	}
	for _, existing := range r.st.bookings {
		if existing.Reference == b.Reference {
			return fmt.Errorf("create booking %s: duplicate reference: %w", b.Reference, repository.ErrConflict)
		}
	}
	r.st.bookings[b.ID] = cloneBooking(b)
	return nil
}

func (r *bookingRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Booking, error) {
	defer guard(r.st, r.locking)()

	b, ok := r.st.bookings[id]
	if !ok {
		return nil, nil
	}
	return cloneBooking(b), nil
}

// FindByIDForUpdate is FindByID; the transaction already holds the store lock.
func (r *bookingRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	return r.FindByID(ctx, id)
}

func (r *bookingRepo) FindByReference(_ context.Context, reference string) (*entity.Booking, error) {
	defer guard(r.st, r.locking)()

	for _, b := range r.st.bookings {
		if b.Reference == reference {
			return cloneBooking(b), nil
		}
	}
	return nil, nil
}

func (r *bookingRepo) FindByUserID(_ context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Booking, error) {
	defer guard(r.st, r.locking)()

	var out []*entity.Booking
	for _, b := range r.st.bookings {
		if b.UserID == userID {
			out = append(out, cloneBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *bookingRepo) CountByUserID(_ context.Context, userID uuid.UUID) (int64, error) {
	defer guard(r.st, r.locking)()

	var n int64
	for _, b := range r.st.bookings {
		if b.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r *bookingRepo) Update(_ context.Context, b *entity.Booking) error {
	defer guard(r.st, r.locking)()

	if _, ok := r.st.bookings[b.ID]; !ok {
		return fmt.Errorf("booking %s not found", b.ID.String())
	}
	r.st.bookings[b.ID] = cloneBooking(b)
	return nil
}

func (r *bookingRepo) HasOverlappingBooking(ctx context.Context, spotID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (bool, error) {
	n, err := r.CountActiveOverlapping(ctx, spotID, start, end, excludeID)
	return n > 0, err
}

func (r *bookingRepo) CountActiveOverlapping(_ context.Context, spotID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (int, error) {
	defer guard(r.st, r.locking)()

	n := 0
	for _, b := range r.st.bookings {
		if b.SpotID != spotID || !b.Status.ConsumesCapacity() {
			continue
		}
		if excludeID != nil && b.ID == *excludeID {
			continue
		}
		if b.Overlaps(start, end) {
			n++
		}
	}
	return n, nil
}

func (r *bookingRepo) FindActiveForSpots(_ context.Context, spotIDs []uuid.UUID) ([]*entity.Booking, error) {
	defer guard(r.st, r.locking)()

	wanted := make(map[uuid.UUID]struct{}, len(spotIDs))
	for _, id := range spotIDs {
		wanted[id] = struct{}{}
	}

	var out []*entity.Booking
	for _, b := range r.st.bookings {
		if _, ok := wanted[b.SpotID]; ok && b.Status.ConsumesCapacity() {
			out = append(out, cloneBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r *bookingRepo) FindStale(_ context.Context, now, awaitingBefore time.Time, limit int) ([]*entity.Booking, error) {
	defer guard(r.st, r.locking)()

	var out []*entity.Booking
	for _, b := range r.st.bookings {
		if !b.Status.IsUnpaid() {
			continue
		}
		idle := b.UpdatedAt.Before(awaitingBefore)
		started := !b.StartTime.After(now)
		ended := !b.EndTime.After(now)
		if (started && (idle || ended)) || (b.Status == entity.BookingStatusAwaitingPayment && idle) {
			out = append(out, cloneBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

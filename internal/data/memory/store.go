// Package memory is an in-process implementation of the repository layer.
// Transactions are serialized on a single mutex and roll back by restoring a
// snapshot, which gives the same isolation the row locks give in Postgres.
package memory

import (
	"context"
	"fmt"
	"sync"

	"parking-booking/internal/data/entity"
	"parking-booking/internal/data/repository"

	"github.com/google/uuid"
)

type Store struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*entity.Booking
	spots    map[uuid.UUID]*entity.Spot
	payments map[uuid.UUID]*entity.Payment

	commitErrs []error
}

var _ repository.UnitOfWork = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		bookings: make(map[uuid.UUID]*entity.Booking),
		spots:    make(map[uuid.UUID]*entity.Spot),
		payments: make(map[uuid.UUID]*entity.Payment),
	}
}

// Repository returns repositories that lock the store per call. Use it for
// reads and seeding outside a transaction.
func (s *Store) Repository() *repository.Repository {
	return s.repos(true)
}

func (s *Store) repos(locking bool) *repository.Repository {
	return &repository.Repository{
		Booking: &bookingRepo{st: s, locking: locking},
		Spot:    &spotRepo{st: s, locking: locking},
		Payment: &paymentRepo{st: s, locking: locking},
	}
}

// FailNextCommits makes the next len(errs) commits fail with the given
// errors, in order, after fn has run. The transaction is rolled back.
func (s *Store) FailNextCommits(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErrs = append(s.commitErrs, errs...)
}

func (s *Store) RunInTx(ctx context.Context, fn func(tx *repository.Repository) error) (err error) {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			panic(p)
		}
		if err != nil {
			s.restore(snap)
		}
	}()

	if err = fn(s.repos(false)); err != nil {
		return err
	}

	if err = ctx.Err(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	if len(s.commitErrs) > 0 {
		err = s.commitErrs[0]
		s.commitErrs = s.commitErrs[1:]
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type snapshot struct {
	bookings map[uuid.UUID]*entity.Booking
	spots    map[uuid.UUID]*entity.Spot
	payments map[uuid.UUID]*entity.Payment
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		bookings: make(map[uuid.UUID]*entity.Booking, len(s.bookings)),
		spots:    make(map[uuid.UUID]*entity.Spot, len(s.spots)),
		payments: make(map[uuid.UUID]*entity.Payment, len(s.payments)),
	}
	for id, b := range s.bookings {
		snap.bookings[id] = cloneBooking(b)
	}
	for id, sp := range s.spots {
		snap.spots[id] = cloneSpot(sp)
	}
	for id, p := range s.payments {
		snap.payments[id] = clonePayment(p)
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.bookings = snap.bookings
	s.spots = snap.spots
	s.payments = snap.payments
}

func guard(st *Store, locking bool) func() {
	if !locking {
		return func() {}
	}
	st.mu.Lock()
	return st.mu.Unlock
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneBooking(b *entity.Booking) *entity.Booking {
	c := *b
	c.DiscountCode = cloneString(b.DiscountCode)
	c.CancellationReason = cloneString(b.CancellationReason)
	if b.CheckInTime != nil {
		t := *b.CheckInTime
		c.CheckInTime = &t
	}
	if b.CheckOutTime != nil {
		t := *b.CheckOutTime
		c.CheckOutTime = &t
	}
	if b.CancelledAt != nil {
		t := *b.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}

func cloneSpot(s *entity.Spot) *entity.Spot {
	c := *s
	return &c
}

func clonePayment(p *entity.Payment) *entity.Payment {
	c := *p
	c.GatewayOrderID = cloneString(p.GatewayOrderID)
	c.TransactionID = cloneString(p.TransactionID)
	c.ReceiptURL = cloneString(p.ReceiptURL)
	c.FailureReason = cloneString(p.FailureReason)
	c.RefundReason = cloneString(p.RefundReason)
	if p.PaidAt != nil {
		t := *p.PaidAt
		c.PaidAt = &t
	}
	if p.RefundedAt != nil {
		t := *p.RefundedAt
		c.RefundedAt = &t
	}
	return &c
}

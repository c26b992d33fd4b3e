package memory

import (
	"context"
	"fmt"

	"parking-booking/internal/data/entity"
	"parking-booking/internal/data/repository"

	"github.com/google/uuid"
)

type paymentRepo struct {
	st      *Store
	locking bool
}

func (r *paymentRepo) Create(_ context.Context, p *entity.Payment) error {
	defer guard(r.st, r.locking)()

	if _, ok := r.st.payments[p.ID]; ok {
		return fmt.Errorf("create payment for booking %s: duplicate id: %w", p.BookingID.String(), repository.ErrConflict)
	}
	r.st.payments[p.ID] = clonePayment(p)
	return nil
}

func (r *paymentRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Payment, error) {
	defer guard(r.st, r.locking)()

	p, ok := r.st.payments[id]
	if !ok {
		return nil, nil
	}
	return clonePayment(p), nil
}

func (r *paymentRepo) FindByBookingID(_ context.Context, bookingID uuid.UUID) (*entity.Payment, error) {
	defer guard(r.st, r.locking)()

	var latest *entity.Payment
	for _, p := range r.st.payments {
		if p.BookingID != bookingID {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, nil
	}
	return clonePayment(latest), nil
}

func (r *paymentRepo) FindByBookingIDForUpdate(ctx context.Context, bookingID uuid.UUID) (*entity.Payment, error) {
	return r.FindByBookingID(ctx, bookingID)
}

func (r *paymentRepo) FindByGatewayOrderID(_ context.Context, orderID string) (*entity.Payment, error) {
	defer guard(r.st, r.locking)()

	for _, p := range r.st.payments {
		if p.GatewayOrderID != nil && *p.GatewayOrderID == orderID {
			return clonePayment(p), nil
		}
	}
	return nil, nil
}

func (r *paymentRepo) Update(_ context.Context, p *entity.Payment) error {
	defer guard(r.st, r.locking)()

	if _, ok := r.st.payments[p.ID]; !ok {
		return fmt.Errorf("payment %s not found", p.ID.String())
	}
	r.st.payments[p.ID] = clonePayment(p)
	return nil
}

// Package events carries post-commit domain events to their handlers.
package events

import (
	"time"

	"parking-booking/internal/data/entity"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Type string

const (
	BookingCreated    Type = "booking.created"
	BookingApproved   Type = "booking.approved"
	BookingRejected   Type = "booking.rejected"
	BookingCancelled  Type = "booking.cancelled"
	BookingUpdated    Type = "booking.updated"
	BookingCheckedIn  Type = "booking.checked_in"
	BookingCheckedOut Type = "booking.checked_out"
	PaymentCompleted  Type = "payment.completed"
	PaymentRefunded   Type = "payment.refunded"
)

type Event struct {
	ID         uuid.UUID        `json:"id"`
	Type       Type             `json:"type"`
	OccurredAt time.Time        `json:"occurred_at"`
	BookingID  uuid.UUID        `json:"booking_id"`
	Reference  string           `json:"reference"`
	UserID     uuid.UUID        `json:"user_id"`
	SpotID     uuid.UUID        `json:"spot_id"`
	OwnerID    uuid.UUID        `json:"owner_id"`
	Status     string           `json:"status"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

func ForBooking(t Type, b *entity.Booking, ownerID uuid.UUID, now time.Time) Event {
	ev := Event{
		ID:         uuid.New(),
		Type:       t,
		OccurredAt: now,
		BookingID:  b.ID,
		Reference:  b.Reference,
		UserID:     b.UserID,
		SpotID:     b.SpotID,
		OwnerID:    ownerID,
		Status:     b.Status.String(),
	}
	if b.CancellationReason != nil {
		ev.Reason = *b.CancellationReason
	}
	return ev
}

// WithAmount attaches a money amount, e.g. the captured or refunded sum.
func (e Event) WithAmount(amount decimal.Decimal) Event {
	e.Amount = &amount
	return e
}

func (e Event) WithReason(reason string) Event {
	e.Reason = reason
	return e
}

// Package lifecycle holds the booking state machine. It validates a
// transition against the booking's current status and applies it to the
// in-memory entity; persisting the result is the caller's job.
package lifecycle

import (
	"time"

	"parking-booking/internal/data/entity"
	"parking-booking/pkg/apperror"
)

type Event string

const (
	EventApprove  Event = "approve"
	EventReject   Event = "reject"
	EventCancel   Event = "cancel"
	EventConfirm  Event = "confirm"
	EventCheckIn  Event = "check in"
	EventCheckOut Event = "check out"
)

// transitions is the full table of legal moves; anything missing is illegal.
var transitions = map[Event]map[entity.BookingStatus]entity.BookingStatus{
	EventApprove: {
		entity.BookingStatusPending: entity.BookingStatusAwaitingPayment,
	},
	EventReject: {
		entity.BookingStatusPending: entity.BookingStatusRejected,
	},
	EventCancel: {
		entity.BookingStatusPending:         entity.BookingStatusCancelled,
		entity.BookingStatusAwaitingPayment: entity.BookingStatusCancelled,
		entity.BookingStatusConfirmed:       entity.BookingStatusCancelled,
		entity.BookingStatusInProgress:      entity.BookingStatusCancelled,
	},
	EventConfirm: {
		entity.BookingStatusPending:         entity.BookingStatusConfirmed,
		entity.BookingStatusAwaitingPayment: entity.BookingStatusConfirmed,
	},
	EventCheckIn: {
		entity.BookingStatusConfirmed: entity.BookingStatusInProgress,
	},
	EventCheckOut: {
		entity.BookingStatusInProgress: entity.BookingStatusCompleted,
	},
}

// Next returns the status an event leads to from the given status.
func Next(from entity.BookingStatus, ev Event) (entity.BookingStatus, error) {
	to, ok := transitions[ev][from]
	if !ok {
		return "", apperror.InvalidTransition("booking", string(ev), string(from))
	}
	return to, nil
}

// CanApply reports whether the event is legal from the status.
func CanApply(from entity.BookingStatus, ev Event) bool {
	_, ok := transitions[ev][from]
	return ok
}

type Machine struct {
	checkInWindow time.Duration
}

func NewMachine(checkInWindow time.Duration) *Machine {
	if checkInWindow <= 0 {
		checkInWindow = time.Hour
	}
	return &Machine{checkInWindow: checkInWindow}
}

func (m *Machine) Approve(b *entity.Booking, now time.Time) error {
	return m.move(b, EventApprove, now)
}

func (m *Machine) Reject(b *entity.Booking, reason string, now time.Time) error {
	if err := m.move(b, EventReject, now); err != nil {
		return err
	}
	if reason != "" {
		b.CancellationReason = &reason
	}
	return nil
}

func (m *Machine) Cancel(b *entity.Booking, reason string, now time.Time) error {
	if reason == "" {
		return apperror.Validation("cancellation reason is required")
	}
	if err := m.move(b, EventCancel, now); err != nil {
		return err
	}
	b.CancellationReason = &reason
	b.CancelledAt = &now
	return nil
}

// Confirm succeeds only while the spot is not yet occupied (pending or
// awaiting payment).
func (m *Machine) Confirm(b *entity.Booking, now time.Time) error {
	return m.move(b, EventConfirm, now)
}

// CheckIn is allowed from one window before start until the booking ends.
func (m *Machine) CheckIn(b *entity.Booking, now time.Time) error {
	if _, err := Next(b.Status, EventCheckIn); err != nil {
		return err
	}
	if b.CheckInTime != nil {
		return apperror.New(apperror.KindInvalidStateTransition, "booking %s is already checked in", b.Reference)
	}
	opens := b.StartTime.Add(-m.checkInWindow)
	if now.Before(opens) {
		return apperror.Validation("check-in opens at %s", opens.UTC().Format(time.RFC3339))
	}
	if !now.Before(b.EndTime) {
		return apperror.Validation("booking window ended at %s", b.EndTime.UTC().Format(time.RFC3339))
	}
	if err := m.move(b, EventCheckIn, now); err != nil {
		return err
	}
	b.CheckInTime = &now
	return nil
}

func (m *Machine) CheckOut(b *entity.Booking, now time.Time) error {
	if err := m.move(b, EventCheckOut, now); err != nil {
		return err
	}
	b.CheckOutTime = &now
	return nil
}

func (m *Machine) move(b *entity.Booking, ev Event, now time.Time) error {
	to, err := Next(b.Status, ev)
	if err != nil {
		return err
	}
	b.Status = to
	b.Touch(now)
	return nil
}

// Package availability answers whether a spot can take one more booking over
// a time range.
package availability

import (
	"context"
	"fmt"
	"time"

	"parking-booking/internal/data/entity"
	"parking-booking/pkg/apperror"

	"github.com/google/uuid"
)

// BookingCounter is the slice of the booking store the checker needs.
type BookingCounter interface {
	CountActiveOverlapping(ctx context.Context, spotID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (int, error)
}

type Result struct {
	Available   bool `json:"available"`
	ActiveCount int  `json:"active_count"`
	TotalSpots  int  `json:"total_spots"`
}

// Remaining is how many more bookings the range can take.
func (r Result) Remaining() int {
	if r.ActiveCount >= r.TotalSpots {
		return 0
	}
	return r.TotalSpots - r.ActiveCount
}

// Check counts capacity-consuming bookings on the spot overlapping
// [start, end), skipping excludeID, and compares against the spot's capacity.
// To make check and insert atomic, pass a counter bound to the transaction
// that holds the spot lock.
func Check(ctx context.Context, store BookingCounter, spot *entity.Spot, start, end time.Time, excludeID *uuid.UUID) (Result, error) {
	if spot == nil {
		return Result{}, apperror.NotFound("spot not found")
	}
	if !start.Before(end) {
		return Result{}, apperror.Validation("start time must be before end time")
	}

	n, err := store.CountActiveOverlapping(ctx, spot.ID, start, end, excludeID)
	if err != nil {
		return Result{}, fmt.Errorf("check availability for spot %s: %w", spot.ID.String(), err)
	}

	return Result{
		Available:   n < spot.TotalSpots,
		ActiveCount: n,
		TotalSpots:  spot.TotalSpots,
	}, nil
}

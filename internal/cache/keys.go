package cache

import (
	"fmt"
	"time"

	"parking-booking/internal/data/entity"

	"github.com/google/uuid"
)

type Keys struct {
	Exact    []string
	Patterns []string
}

func BookingKey(id uuid.UUID) string {
	return "booking:" + id.String()
}

func BookingRefKey(reference string) string {
	return "booking:ref:" + reference
}

func SpotKey(id uuid.UUID) string {
	return "spot:" + id.String()
}

func UserDashboardKey(userID uuid.UUID, limit, offset int) string {
	return fmt.Sprintf("dashboard:user:%s:%d:%d", userID, limit, offset)
}

func OwnerDashboardKey(ownerID uuid.UUID) string {
	return fmt.Sprintf("dashboard:owner:%s:active", ownerID)
}

func AvailabilityKey(spotID uuid.UUID, start, end time.Time) string {
	return fmt.Sprintf("availability:%s:%d:%d", spotID, start.Unix(), end.Unix())
}

// KeysForBooking lists every cached view a change to b can make stale.
func KeysForBooking(b *entity.Booking, ownerID uuid.UUID) Keys {
	keys := Keys{
		Exact: []string{
			BookingKey(b.ID),
			BookingRefKey(b.Reference),
			SpotKey(b.SpotID),
		},
		Patterns: []string{
			"dashboard:user:" + b.UserID.String() + "*",
			"search:*",
			"map:*",
			"availability:" + b.SpotID.String() + ":*",
		},
	}
	if ownerID != uuid.Nil {
		keys.Patterns = append(keys.Patterns, "dashboard:owner:"+ownerID.String()+"*")
	}
	return keys
}

package entity

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Spot struct {
	Base
	OwnerID          uuid.UUID       `db:"owner_id"`
	Title            string          `db:"title"`
	Address          string          `db:"address"`
	TotalSpots       int             `db:"total_spots"`
	HourlyRate       decimal.Decimal `db:"hourly_rate"`
	DailyRate        decimal.Decimal `db:"daily_rate"`
	WeeklyRate       decimal.Decimal `db:"weekly_rate"`
	MonthlyRate      decimal.Decimal `db:"monthly_rate"`
	RequiresApproval bool            `db:"requires_approval"`
	IsActive         bool            `db:"is_active"`
	AverageRating    decimal.Decimal `db:"average_rating"`
	TotalReviews     int             `db:"total_reviews"`
}

// Rate returns the configured rate for a mode; ok is false when the spot
// does not offer that mode.
func (s *Spot) Rate(mode PricingMode) (decimal.Decimal, bool) {
	var rate decimal.Decimal
	switch mode {
	case PricingHourly:
		rate = s.HourlyRate
	case PricingDaily:
		rate = s.DailyRate
	case PricingWeekly:
		rate = s.WeeklyRate
	case PricingMonthly:
		rate = s.MonthlyRate
	default:
		return decimal.Zero, false
	}
	return rate, rate.IsPositive()
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"parking-booking/internal/data/entity"
	"parking-booking/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type BookingRepository interface {
	Create(ctx context.Context, booking *entity.Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Booking, error)
	FindByReference(ctx context.Context, reference string) (*entity.Booking, error)
	FindByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Booking, error)
	CountByUserID(ctx context.Context, userID uuid.UUID) (int64, error)
	Update(ctx context.Context, booking *entity.Booking) error

	// Capacity queries
	HasOverlappingBooking(ctx context.Context, spotID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (bool, error)
	CountActiveOverlapping(ctx context.Context, spotID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (int, error)
	FindActiveForSpots(ctx context.Context, spotIDs []uuid.UUID) ([]*entity.Booking, error)

	// FindStale returns unpaid bookings that ended, started and sat untouched
	// since awaitingBefore, or have been awaiting payment since before it.
	FindStale(ctx context.Context, now, awaitingBefore time.Time, limit int) ([]*entity.Booking, error)
}

const bookingColumns = `id, reference, user_id, spot_id, start_time, end_time, pricing_mode,
		vehicle_number, vehicle_type, base_amount, tax_amount, service_fee, discount_amount,
		discount_code, total_amount, status, check_in_time, check_out_time,
		cancellation_reason, cancelled_at, created_at, updated_at`

type bookingRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewBookingRepository(db database.Querier, log *zap.Logger) BookingRepository {
	return &bookingRepository{
		db:  db,
		log: log.With(zap.String("repository", "booking")),
	}
}

func activeStatuses() []string {
	out := make([]string, len(entity.CapacityConsumingStatuses))
	for i, s := range entity.CapacityConsumingStatuses {
		out[i] = string(s)
	}
	return out
}

func scanBooking(row rowScanner) (*entity.Booking, error) {
	var b entity.Booking
	err := row.Scan(
		&b.ID,
		&b.Reference,
		&b.UserID,
		&b.SpotID,
		&b.StartTime,
		&b.EndTime,
		&b.PricingMode,
		&b.VehicleNumber,
		&b.VehicleType,
		&b.BaseAmount,
		&b.TaxAmount,
		&b.ServiceFee,
		&b.DiscountAmount,
		&b.DiscountCode,
		&b.TotalAmount,
		&b.Status,
		&b.CheckInTime,
		&b.CheckOutTime,
		&b.CancellationReason,
		&b.CancelledAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *bookingRepository) collect(rows pgx.Rows) ([]*entity.Booking, error) {
	defer rows.Close()

	var bookings []*entity.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			r.log.Error("Failed to scan booking row", zap.Error(err))
			return nil, fmt.Errorf("scan booking row: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate booking rows: %w", err)
	}
	return bookings, nil
}

func (r *bookingRepository) Create(ctx context.Context, b *entity.Booking) error {
	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`

	_, err := r.db.Exec(ctx, query,
		b.ID,
		b.Reference,
		b.UserID,
		b.SpotID,
		b.StartTime,
		b.EndTime,
		b.PricingMode,
		b.VehicleNumber,
		b.VehicleType,
		b.BaseAmount,
		b.TaxAmount,
		b.ServiceFee,
		b.DiscountAmount,
		b.DiscountCode,
		b.TotalAmount,
		b.Status,
		b.CheckInTime,
		b.CheckOutTime,
		b.CancellationReason,
		b.CancelledAt,
		b.CreatedAt,
		b.UpdatedAt,
	)

	if err != nil {
		r.log.Error("Failed to create booking",
			zap.Error(err),
			zap.String("reference", b.Reference),
			zap.String("spot_id", b.SpotID.String()),
		)
		return fmt.Errorf("create booking %s: %w", b.Reference, err)
	}

	return nil
}

func (r *bookingRepository) findOne(ctx context.Context, query string, arg any, label string) (*entity.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find booking",
			zap.Error(err),
			zap.String("by", label),
			zap.Any("value", arg),
		)
		return nil, fmt.Errorf("find booking by %s %v: %w", label, arg, err)
	}
	return b, nil
}

func (r *bookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	return r.findOne(ctx, query, id, "id")
}

func (r *bookingRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`
	return r.findOne(ctx, query, id, "id")
}

func (r *bookingRepository) FindByReference(ctx context.Context, reference string) (*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE reference = $1`
	return r.findOne(ctx, query, reference, "reference")
}

func (r *bookingRepository) FindByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		ORDER BY start_time DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		r.log.Error("Failed to find bookings by user ID",
			zap.Error(err),
			zap.String("user_id", userID.String()),
			zap.Int("limit", limit),
			zap.Int("offset", offset),
		)
		return nil, fmt.Errorf("find bookings by user ID %s: %w", userID.String(), err)
	}

	return r.collect(rows)
}

func (r *bookingRepository) CountByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM bookings WHERE user_id = $1`

	var count int64
	if err := r.db.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		r.log.Error("Failed to count bookings by user ID",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return 0, fmt.Errorf("count bookings by user ID %s: %w", userID.String(), err)
	}

	return count, nil
}

func (r *bookingRepository) Update(ctx context.Context, b *entity.Booking) error {
	query := `
		UPDATE bookings
		SET start_time = $2, end_time = $3, pricing_mode = $4, vehicle_number = $5, vehicle_type = $6,
		    base_amount = $7, tax_amount = $8, service_fee = $9, discount_amount = $10,
		    discount_code = $11, total_amount = $12, status = $13, check_in_time = $14,
		    check_out_time = $15, cancellation_reason = $16, cancelled_at = $17, updated_at = $18
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query,
		b.ID,
		b.StartTime,
		b.EndTime,
		b.PricingMode,
		b.VehicleNumber,
		b.VehicleType,
		b.BaseAmount,
		b.TaxAmount,
		b.ServiceFee,
		b.DiscountAmount,
		b.DiscountCode,
		b.TotalAmount,
		b.Status,
		b.CheckInTime,
		b.CheckOutTime,
		b.CancellationReason,
		b.CancelledAt,
		b.UpdatedAt,
	)

	if err != nil {
		r.log.Error("Failed to update booking",
			zap.Error(err),
			zap.String("booking_id", b.ID.String()),
		)
		return fmt.Errorf("update booking %s: %w", b.ID.String(), err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("booking %s not found", b.ID.String())
	}

	return nil
}

func (r *bookingRepository) HasOverlappingBooking(ctx context.Context, spotID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (bool, error) {
	n, err := r.CountActiveOverlapping(ctx, spotID, start, end, excludeID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *bookingRepository) CountActiveOverlapping(ctx context.Context, spotID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM bookings
		WHERE spot_id = $1
		  AND status = ANY($2)
		  AND start_time < $4
		  AND end_time > $3
		  AND ($5::uuid IS NULL OR id <> $5)
	`

	var count int
	err := r.db.QueryRow(ctx, query, spotID, activeStatuses(), start, end, excludeID).Scan(&count)
	if err != nil {
		r.log.Error("Failed to count overlapping bookings",
			zap.Error(err),
			zap.String("spot_id", spotID.String()),
			zap.Time("start", start),
			zap.Time("end", end),
		)
		return 0, fmt.Errorf("count overlapping bookings for spot %s: %w", spotID.String(), err)
	}

	return count, nil
}

func (r *bookingRepository) FindActiveForSpots(ctx context.Context, spotIDs []uuid.UUID) ([]*entity.Booking, error) {
	if len(spotIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE spot_id = ANY($1) AND status = ANY($2)
		ORDER BY start_time
	`

	rows, err := r.db.Query(ctx, query, spotIDs, activeStatuses())
	if err != nil {
		r.log.Error("Failed to find active bookings for spots",
			zap.Error(err),
			zap.Int("spot_count", len(spotIDs)),
		)
		return nil, fmt.Errorf("find active bookings for %d spots: %w", len(spotIDs), err)
	}

	return r.collect(rows)
}

func (r *bookingRepository) FindStale(ctx context.Context, now, awaitingBefore time.Time, limit int) ([]*entity.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status IN ('pending', 'awaiting_payment')
		  AND ((start_time <= $1 AND (end_time <= $1 OR updated_at < $2))
		    OR (status = 'awaiting_payment' AND updated_at < $2))
		ORDER BY start_time
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, now, awaitingBefore, limit)
	if err != nil {
		r.log.Error("Failed to find stale bookings", zap.Error(err))
		return nil, fmt.Errorf("find stale bookings: %w", err)
	}

	return r.collect(rows)
}

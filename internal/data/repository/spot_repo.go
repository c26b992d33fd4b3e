package repository

import (
	"context"
	"errors"
	"fmt"

	"parking-booking/internal/data/entity"
	"parking-booking/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type SpotRepository interface {
	Create(ctx context.Context, spot *entity.Spot) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Spot, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Spot, error)
	FindByOwnerID(ctx context.Context, ownerID uuid.UUID) ([]*entity.Spot, error)
	Update(ctx context.Context, spot *entity.Spot) error
}

const spotColumns = `id, owner_id, title, address, total_spots, hourly_rate, daily_rate,
		weekly_rate, monthly_rate, requires_approval, is_active, average_rating, total_reviews,
		created_at, updated_at`

type spotRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewSpotRepository(db database.Querier, log *zap.Logger) SpotRepository {
	return &spotRepository{
		db:  db,
		log: log.With(zap.String("repository", "spot")),
	}
}

func scanSpot(row rowScanner) (*entity.Spot, error) {
	var s entity.Spot
	err := row.Scan(
		&s.ID,
		&s.OwnerID,
		&s.Title,
		&s.Address,
		&s.TotalSpots,
		&s.HourlyRate,
		&s.DailyRate,
		&s.WeeklyRate,
		&s.MonthlyRate,
		&s.RequiresApproval,
		&s.IsActive,
		&s.AverageRating,
		&s.TotalReviews,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *spotRepository) Create(ctx context.Context, s *entity.Spot) error {
	query := `
		INSERT INTO spots (` + spotColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.db.Exec(ctx, query,
		s.ID,
		s.OwnerID,
		s.Title,
		s.Address,
		s.TotalSpots,
		s.HourlyRate,
		s.DailyRate,
		s.WeeklyRate,
		s.MonthlyRate,
		s.RequiresApproval,
		s.IsActive,
		s.AverageRating,
		s.TotalReviews,
		s.CreatedAt,
		s.UpdatedAt,
	)

	if err != nil {
		r.log.Error("Failed to create spot",
			zap.Error(err),
			zap.String("owner_id", s.OwnerID.String()),
			zap.String("title", s.Title),
		)
		return fmt.Errorf("create spot %q: %w", s.Title, err)
	}

	return nil
}

func (r *spotRepository) findByID(ctx context.Context, id uuid.UUID, lock bool) (*entity.Spot, error) {
	query := `SELECT ` + spotColumns + ` FROM spots WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	s, err := scanSpot(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find spot by ID",
			zap.Error(err),
			zap.String("spot_id", id.String()),
			zap.Bool("lock", lock),
		)
		return nil, fmt.Errorf("find spot by ID %s: %w", id.String(), err)
	}

	return s, nil
}

func (r *spotRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Spot, error) {
	return r.findByID(ctx, id, false)
}

// FindByIDForUpdate locks the spot row until the surrounding transaction ends.
// Booking creation takes this lock so that creates on one spot serialize.
func (r *spotRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Spot, error) {
	return r.findByID(ctx, id, true)
}

func (r *spotRepository) FindByOwnerID(ctx context.Context, ownerID uuid.UUID) ([]*entity.Spot, error) {
	query := `
		SELECT ` + spotColumns + `
		FROM spots
		WHERE owner_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		r.log.Error("Failed to find spots by owner ID",
			zap.Error(err),
			zap.String("owner_id", ownerID.String()),
		)
		return nil, fmt.Errorf("find spots by owner ID %s: %w", ownerID.String(), err)
	}
	defer rows.Close()

	var spots []*entity.Spot
	for rows.Next() {
		s, err := scanSpot(rows)
		if err != nil {
			r.log.Error("Failed to scan spot row", zap.Error(err))
			return nil, fmt.Errorf("scan spot row: %w", err)
		}
		spots = append(spots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spot rows: %w", err)
	}

	return spots, nil
}

func (r *spotRepository) Update(ctx context.Context, s *entity.Spot) error {
	query := `
		UPDATE spots
		SET title = $2, address = $3, total_spots = $4, hourly_rate = $5, daily_rate = $6,
		    weekly_rate = $7, monthly_rate = $8, requires_approval = $9, is_active = $10,
		    updated_at = $11
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query,
		s.ID,
		s.Title,
		s.Address,
		s.TotalSpots,
		s.HourlyRate,
		s.DailyRate,
		s.WeeklyRate,
		s.MonthlyRate,
		s.RequiresApproval,
		s.IsActive,
		s.UpdatedAt,
	)

	if err != nil {
		r.log.Error("Failed to update spot",
			zap.Error(err),
			zap.String("spot_id", s.ID.String()),
		)
		return fmt.Errorf("update spot %s: %w", s.ID.String(), err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("spot %s not found", s.ID.String())
	}

	return nil
}

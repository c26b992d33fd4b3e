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

type PaymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Payment, error)
	FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*entity.Payment, error)
	FindByBookingIDForUpdate(ctx context.Context, bookingID uuid.UUID) (*entity.Payment, error)
	FindByGatewayOrderID(ctx context.Context, orderID string) (*entity.Payment, error)
	Update(ctx context.Context, payment *entity.Payment) error
}

const paymentColumns = `id, booking_id, amount, currency, status, gateway_order_id, transaction_id,
		receipt_url, failure_reason, paid_at, refund_amount, refund_reason, refunded_at,
		created_at, updated_at`

type paymentRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewPaymentRepository(db database.Querier, log *zap.Logger) PaymentRepository {
	return &paymentRepository{
		db:  db,
		log: log.With(zap.String("repository", "payment")),
	}
}

func scanPayment(row rowScanner) (*entity.Payment, error) {
	var p entity.Payment
	err := row.Scan(
		&p.ID,
		&p.BookingID,
		&p.Amount,
		&p.Currency,
		&p.Status,
		&p.GatewayOrderID,
		&p.TransactionID,
		&p.ReceiptURL,
		&p.FailureReason,
		&p.PaidAt,
		&p.RefundAmount,
		&p.RefundReason,
		&p.RefundedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) Create(ctx context.Context, p *entity.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.db.Exec(ctx, query,
		p.ID,
		p.BookingID,
		p.Amount,
		p.Currency,
		p.Status,
		p.GatewayOrderID,
		p.TransactionID,
		p.ReceiptURL,
		p.FailureReason,
		p.PaidAt,
		p.RefundAmount,
		p.RefundReason,
		p.RefundedAt,
		p.CreatedAt,
		p.UpdatedAt,
	)

	if err != nil {
		r.log.Error("Failed to create payment",
			zap.Error(err),
			zap.String("booking_id", p.BookingID.String()),
		)
		return fmt.Errorf("create payment for booking %s: %w", p.BookingID.String(), err)
	}

	return nil
}

func (r *paymentRepository) findOne(ctx context.Context, query string, arg any, label string) (*entity.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find payment",
			zap.Error(err),
			zap.String("by", label),
			zap.Any("value", arg),
		)
		return nil, fmt.Errorf("find payment by %s %v: %w", label, arg, err)
	}
	return p, nil
}

func (r *paymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return r.findOne(ctx, query, id, "id")
}

// FindByBookingID returns the most recent payment row for a booking.
func (r *paymentRepository) FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*entity.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE booking_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.findOne(ctx, query, bookingID, "booking_id")
}

func (r *paymentRepository) FindByBookingIDForUpdate(ctx context.Context, bookingID uuid.UUID) (*entity.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE booking_id = $1
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`
	return r.findOne(ctx, query, bookingID, "booking_id")
}

func (r *paymentRepository) FindByGatewayOrderID(ctx context.Context, orderID string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE gateway_order_id = $1`
	return r.findOne(ctx, query, orderID, "gateway_order_id")
}

func (r *paymentRepository) Update(ctx context.Context, p *entity.Payment) error {
	query := `
		UPDATE payments
		SET amount = $2, currency = $3, status = $4, gateway_order_id = $5, transaction_id = $6,
		    receipt_url = $7, failure_reason = $8, paid_at = $9, refund_amount = $10,
		    refund_reason = $11, refunded_at = $12, updated_at = $13
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query,
		p.ID,
		p.Amount,
		p.Currency,
		p.Status,
		p.GatewayOrderID,
		p.TransactionID,
		p.ReceiptURL,
		p.FailureReason,
		p.PaidAt,
		p.RefundAmount,
		p.RefundReason,
		p.RefundedAt,
		p.UpdatedAt,
	)

	if err != nil {
		r.log.Error("Failed to update payment",
			zap.Error(err),
			zap.String("payment_id", p.ID.String()),
		)
		return fmt.Errorf("update payment %s: %w", p.ID.String(), err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("payment %s not found", p.ID.String())
	}

	return nil
}

package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending       PaymentStatus = "pending"
	PaymentStatusCompleted     PaymentStatus = "completed"
	PaymentStatusFailed        PaymentStatus = "failed"
	PaymentStatusRefunded      PaymentStatus = "refunded"
	PaymentStatusPartialRefund PaymentStatus = "partial_refund"
)

// WasCaptured reports whether money was taken for this payment at some point.
func (s PaymentStatus) WasCaptured() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusPartialRefund || s == PaymentStatusRefunded
}

type Payment struct {
	Base
	BookingID      uuid.UUID       `db:"booking_id"`
	Amount         decimal.Decimal `db:"amount"`
	Currency       string          `db:"currency"`
	Status         PaymentStatus   `db:"status"`
	GatewayOrderID *string         `db:"gateway_order_id"`
	TransactionID  *string         `db:"transaction_id"`
	ReceiptURL     *string         `db:"receipt_url"`
	FailureReason  *string         `db:"failure_reason"`
	PaidAt         *time.Time      `db:"paid_at"`
	RefundAmount   decimal.Decimal `db:"refund_amount"`
	RefundReason   *string         `db:"refund_reason"`
	RefundedAt     *time.Time      `db:"refunded_at"`
}

// Refundable is what is left to refund on a captured payment.
func (p *Payment) Refundable() decimal.Decimal {
	return p.Amount.Sub(p.RefundAmount)
}

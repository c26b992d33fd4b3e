package response

import (
	"time"

	"parking-booking/internal/data/entity"

	"github.com/shopspring/decimal"
)

type PaymentResponse struct {
	ID             string               `json:"id"`
	BookingID      string               `json:"booking_id"`
	Amount         decimal.Decimal      `json:"amount"`
	Currency       string               `json:"currency"`
	Status         entity.PaymentStatus `json:"status"`
	GatewayOrderID *string              `json:"gateway_order_id,omitempty"`
	TransactionID  *string              `json:"transaction_id,omitempty"`
	ReceiptURL     *string              `json:"receipt_url,omitempty"`
	FailureReason  *string              `json:"failure_reason,omitempty"`
	PaidAt         *time.Time           `json:"paid_at,omitempty"`
	RefundAmount   decimal.Decimal      `json:"refund_amount"`
	RefundedAt     *time.Time           `json:"refunded_at,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

type InitiatePaymentResponse struct {
	Payment      PaymentResponse `json:"payment"`
	ClientSecret string          `json:"client_secret,omitempty"`
	AlreadyPaid  bool            `json:"already_paid"`
}

type ReconcileResponse struct {
	Booking          BookingResponse `json:"booking"`
	Payment          PaymentResponse `json:"payment"`
	AlreadyProcessed bool            `json:"already_processed"`
}

func PaymentToResponse(p *entity.Payment) PaymentResponse {
	return PaymentResponse{
		ID:             p.ID.String(),
		BookingID:      p.BookingID.String(),
		Amount:         p.Amount,
		Currency:       p.Currency,
		Status:         p.Status,
		GatewayOrderID: p.GatewayOrderID,
		TransactionID:  p.TransactionID,
		ReceiptURL:     p.ReceiptURL,
		FailureReason:  p.FailureReason,
		PaidAt:         p.PaidAt,
		RefundAmount:   p.RefundAmount,
		RefundedAt:     p.RefundedAt,
		CreatedAt:      p.CreatedAt,
	}
}

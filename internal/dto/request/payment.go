package request

// VerifyPaymentRequest carries the client-side outcome of a checkout. With
// Stripe the signature is the client secret returned by checkout initiation.
type VerifyPaymentRequest struct {
	OrderID       string `json:"order_id" validate:"required,max=255"`
	PaymentID     string `json:"payment_id" validate:"required_if=Success true,max=255"`
	Signature     string `json:"signature" validate:"required_if=Success true,max=255"`
	Amount        string `json:"amount" validate:"required,numeric"`
	Success       bool   `json:"success"`
	FailureReason string `json:"failure_reason,omitempty" validate:"max=500"`
}

type RefundRequest struct {
	Amount string `json:"amount" validate:"required,numeric"`
	Reason string `json:"reason" validate:"required,max=500"`
}

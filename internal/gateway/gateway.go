// Package gateway talks to the payment provider.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID           string
	Amount       decimal.Decimal
	Currency     string
	ClientSecret string
}

type Capture struct {
	TransactionID string
	ReceiptURL    string
	Amount        decimal.Decimal
}

type Refund struct {
	ID     string
	Amount decimal.Decimal
	Status string
}

// ErrOrderPaid is returned by CancelOrder when the provider already took the
// money for the order.
var ErrOrderPaid = errors.New("gateway: order already paid")

// Result is the outcome of a payment attempt as reported by the client or
// the provider's webhook. Signature authenticates the order/payment pair.
type Result struct {
	OrderID       string
	PaymentID     string
	Signature     string
	Amount        decimal.Decimal
	Success       bool
	FailureReason string
}

type Gateway interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency string, notes map[string]string) (*Order, error)
	// VerifySignature reports whether signature proves the payer completed
	// orderID with paymentID. An error means the check could not be made.
	VerifySignature(ctx context.Context, orderID, paymentID, signature string) (bool, error)
	ProcessPayment(ctx context.Context, orderID, paymentID string) (*Capture, error)
	// CancelOrder voids an order so it can no longer be paid. Voiding an
	// order that is already void is not an error.
	CancelOrder(ctx context.Context, orderID string) error
	ProcessRefund(ctx context.Context, transactionID string, amount decimal.Decimal, reason string) (*Refund, error)
	// ParseWebhook authenticates a provider callback. It returns nil, nil for
	// event types that carry no payment outcome.
	ParseWebhook(payload []byte, signature string) (*Result, error)
}

// Signer computes and checks HMAC-SHA256 signatures over "orderID|paymentID".
type Signer struct {
	secret []byte
}

func NewSigner(secret string) Signer {
	return Signer{secret: []byte(secret)}
}

func (s Signer) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s Signer) Verify(orderID, paymentID, signature string) bool {
	if len(s.secret) == 0 || signature == "" {
		return false
	}
	expected := s.Sign(orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ToMinorUnits converts a 2dp amount to the provider's integer unit.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func FromMinorUnits(units int64) decimal.Decimal {
	return decimal.New(units, -2)
}

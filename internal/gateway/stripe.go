package gateway

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"parking-booking/pkg/apperror"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
)

// StripeGateway maps orders onto PaymentIntents. The order id is the
// PaymentIntent id and the payment id is the charge id.
type StripeGateway struct {
	webhookSecret string
	signer        Signer
	log           *zap.Logger
}

var _ Gateway = (*StripeGateway)(nil)

func NewStripeGateway(secretKey, webhookSecret, signingSecret string, log *zap.Logger) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{
		webhookSecret: webhookSecret,
		signer:        NewSigner(signingSecret),
		log:           log.With(zap.String("component", "stripe")),
	}
}

func (g *StripeGateway) CreateOrder(ctx context.Context, amount decimal.Decimal, currency string, notes map[string]string) (*Order, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(ToMinorUnits(amount)),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range notes {
		params.AddMetadata(k, v)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		g.log.Error("Failed to create payment intent",
			zap.Error(err),
			zap.String("amount", amount.StringFixed(2)),
			zap.String("currency", currency),
		)
		return nil, apperror.External(err, "payment provider rejected order")
	}

	return &Order{
		ID:           pi.ID,
		Amount:       FromMinorUnits(pi.Amount),
		Currency:     string(pi.Currency),
		ClientSecret: pi.ClientSecret,
	}, nil
}

// VerifySignature accepts two kinds of proof. Results built by ParseWebhook
// carry the signer's MAC because the event itself was authenticated. A result
// reported by the client carries the PaymentIntent's client secret, which is
// checked against the intent Stripe holds together with its latest charge.
func (g *StripeGateway) VerifySignature(ctx context.Context, orderID, paymentID, signature string) (bool, error) {
	if orderID == "" || signature == "" {
		return false, nil
	}
	if g.signer.Verify(orderID, paymentID, signature) {
		return true, nil
	}

	pi, err := g.fetchIntent(ctx, orderID)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.HTTPStatusCode == http.StatusNotFound {
			return false, nil
		}
		g.log.Error("Failed to fetch payment intent", zap.Error(err), zap.String("order_id", orderID))
		return false, apperror.External(err, "payment provider unavailable")
	}

	if pi.ClientSecret == "" || !hmac.Equal([]byte(pi.ClientSecret), []byte(signature)) {
		return false, nil
	}
	if paymentID != "" && (pi.LatestCharge == nil || pi.LatestCharge.ID != paymentID) {
		return false, nil
	}
	return true, nil
}

func (g *StripeGateway) fetchIntent(ctx context.Context, orderID string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")
	return paymentintent.Get(orderID, params)
}

// ProcessPayment confirms with Stripe that the intent succeeded and returns
// the capturing charge.
func (g *StripeGateway) ProcessPayment(ctx context.Context, orderID, paymentID string) (*Capture, error) {
	pi, err := g.fetchIntent(ctx, orderID)
	if err != nil {
		g.log.Error("Failed to fetch payment intent", zap.Error(err), zap.String("order_id", orderID))
		return nil, apperror.External(err, "payment provider unavailable")
	}

	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, apperror.New(apperror.KindPaymentVerificationFailed,
			"payment %s is %s at the provider", orderID, pi.Status)
	}

	capture := &Capture{
		TransactionID: paymentID,
		Amount:        FromMinorUnits(pi.AmountReceived),
	}
	if pi.LatestCharge != nil {
		if paymentID != "" && pi.LatestCharge.ID != paymentID {
			return nil, apperror.New(apperror.KindPaymentVerificationFailed,
				"charge %s does not belong to payment %s", paymentID, orderID)
		}
		capture.TransactionID = pi.LatestCharge.ID
		capture.ReceiptURL = pi.LatestCharge.ReceiptURL
	}
	return capture, nil
}

// CancelOrder cancels the PaymentIntent. Stripe refuses to cancel an intent
// that succeeded, which is reported as ErrOrderPaid.
func (g *StripeGateway) CancelOrder(ctx context.Context, orderID string) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx

	_, cancelErr := paymentintent.Cancel(orderID, params)
	if cancelErr == nil {
		return nil
	}

	pi, err := g.fetchIntent(ctx, orderID)
	if err != nil {
		g.log.Error("Failed to cancel payment intent", zap.Error(cancelErr), zap.String("order_id", orderID))
		return apperror.External(cancelErr, "payment provider unavailable")
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusCanceled:
		return nil
	case stripe.PaymentIntentStatusSucceeded:
		return ErrOrderPaid
	}
	g.log.Error("Failed to cancel payment intent",
		zap.Error(cancelErr),
		zap.String("order_id", orderID),
		zap.String("status", string(pi.Status)),
	)
	return apperror.External(cancelErr, "payment provider rejected cancellation")
}

func (g *StripeGateway) ProcessRefund(ctx context.Context, transactionID string, amount decimal.Decimal, reason string) (*Refund, error) {
	params := &stripe.RefundParams{
		Charge: stripe.String(transactionID),
		Amount: stripe.Int64(ToMinorUnits(amount)),
		Reason: stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	if reason != "" {
		params.AddMetadata("reason", reason)
	}

	r, err := refund.New(params)
	if err != nil {
		g.log.Error("Failed to create refund",
			zap.Error(err),
			zap.String("transaction_id", transactionID),
			zap.String("amount", amount.StringFixed(2)),
		)
		return nil, apperror.External(err, "payment provider rejected refund")
	}

	return &Refund{
		ID:     r.ID,
		Amount: FromMinorUnits(r.Amount),
		Status: string(r.Status),
	}, nil
}

func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*Result, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, apperror.Wrap(apperror.KindPaymentVerificationFailed, err, "webhook signature verification failed")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed:
	default:
		g.log.Debug("Ignoring webhook event", zap.String("type", string(event.Type)))
		return nil, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, apperror.Validation("malformed payment intent in webhook: %v", err)
	}
	if pi.ID == "" {
		return nil, apperror.Validation("webhook payment intent has no id")
	}

	res := &Result{
		OrderID: pi.ID,
		Amount:  FromMinorUnits(pi.Amount),
	}
	if pi.LatestCharge != nil {
		res.PaymentID = pi.LatestCharge.ID
	}

	if event.Type == stripe.EventTypePaymentIntentSucceeded {
		res.Success = true
		res.Amount = FromMinorUnits(pi.AmountReceived)
		// the event itself is authenticated, so vouch for the pair
		res.Signature = g.signer.Sign(res.OrderID, res.PaymentID)
		return res, nil
	}

	res.FailureReason = "payment failed"
	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		res.FailureReason = pi.LastPaymentError.Msg
	}
	return res, nil
}

package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"parking-booking/internal/data/entity"
	"parking-booking/internal/data/repository"
	"parking-booking/internal/dto/request"
	"parking-booking/internal/dto/response"
	"parking-booking/internal/events"
	"parking-booking/internal/gateway"
	"parking-booking/internal/lifecycle"
	"parking-booking/pkg/apperror"
	"parking-booking/pkg/metrics"
	"parking-booking/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const defaultCurrency = "inr"

type PaymentService interface {
	InitiatePayment(ctx context.Context, userID, bookingID uuid.UUID) (*response.InitiatePaymentResponse, error)
	VerifyPayment(ctx context.Context, userID, bookingID uuid.UUID, req *request.VerifyPaymentRequest) (*response.ReconcileResponse, error)
	// Reconcile applies a payment outcome to the booking. It is idempotent:
	// a second success for the same booking reports AlreadyProcessed.
	Reconcile(ctx context.Context, bookingID uuid.UUID, result gateway.Result) (*response.ReconcileResponse, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	Refund(ctx context.Context, ownerID, bookingID uuid.UUID, req *request.RefundRequest) (*response.PaymentResponse, error)
	GetPayment(ctx context.Context, callerID, bookingID uuid.UUID) (*response.PaymentResponse, error)
}

type paymentService struct {
	*core
	gateway gateway.Gateway
	log     *zap.Logger
}

func NewPaymentService(c *core, gw gateway.Gateway, log *zap.Logger) *paymentService {
	return &paymentService{
		core:    c,
		gateway: gw,
		log:     log.With(zap.String("service", "payment")),
	}
}

func (s *paymentService) currency() string {
	if s.cfg != nil && s.cfg.Stripe.Currency != "" {
		return s.cfg.Stripe.Currency
	}
	return defaultCurrency
}

func (s *paymentService) InitiatePayment(ctx context.Context, userID, bookingID uuid.UUID) (resp *response.InitiatePaymentResponse, err error) {
	ctx, span := startSpan(ctx, "payment.initiate", attribute.String("booking_id", bookingID.String()))
	defer func() { endSpan(span, err) }()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	booking, _, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != userID {
		return nil, apperror.Unauthorized("only the booking's user can pay for this booking")
	}

	existing, err := s.repo.Payment.FindByBookingID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status.WasCaptured() {
		return &response.InitiatePaymentResponse{Payment: response.PaymentToResponse(existing), AlreadyPaid: true}, nil
	}
	if booking.Status != entity.BookingStatusAwaitingPayment {
		return nil, apperror.InvalidTransition("booking", "pay for", booking.Status.String())
	}

	// The provider call happens outside the transaction; the row is only
	// written once we hold the locks again.
	order, err := s.gateway.CreateOrder(ctx, booking.TotalAmount, s.currency(), map[string]string{
		"booking_id": booking.ID.String(),
		"reference":  booking.Reference,
	})
	if err != nil {
		s.log.Error("Failed to create gateway order", zap.Error(err), zap.String("booking_id", bookingID.String()))
		return nil, apperror.External(err, "payment provider unavailable")
	}

	var (
		payment     *entity.Payment
		alreadyPaid bool
	)
	err = s.uow.RunInTx(ctx, func(tx *repository.Repository) error {
		b, err := tx.Booking.FindByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b == nil {
			return apperror.NotFound("booking %s not found", bookingID)
		}

		p, err := tx.Payment.FindByBookingIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if p != nil && p.Status.WasCaptured() {
			payment, alreadyPaid = p, true
			return nil
		}
		if b.Status != entity.BookingStatusAwaitingPayment {
			return apperror.InvalidTransition("booking", "pay for", b.Status.String())
		}

		now := s.now()
		orderID := order.ID
		if p == nil {
			p = &entity.Payment{
				Base:           entity.NewBase(now),
				BookingID:      bookingID,
				Amount:         b.TotalAmount,
				Currency:       s.currency(),
				Status:         entity.PaymentStatusPending,
				GatewayOrderID: &orderID,
				RefundAmount:   decimal.Zero,
			}
			if err := tx.Payment.Create(ctx, p); err != nil {
				return err
			}
			payment = p
			return nil
		}

		// A pending or failed attempt is reused with the fresh order.
		p.Amount = b.TotalAmount
		p.Currency = s.currency()
		p.Status = entity.PaymentStatusPending
		p.GatewayOrderID = &orderID
		p.FailureReason = nil
		p.Touch(now)
		if err := tx.Payment.Update(ctx, p); err != nil {
			return err
		}
		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := &response.InitiatePaymentResponse{
		Payment:     response.PaymentToResponse(payment),
		AlreadyPaid: alreadyPaid,
	}
	if !alreadyPaid {
		out.ClientSecret = order.ClientSecret
		s.log.Info("Payment initiated",
			zap.String("booking_id", bookingID.String()),
			zap.String("payment_id", payment.ID.String()),
			zap.String("order_id", order.ID),
			zap.String("amount", payment.Amount.StringFixed(2)),
		)
	}
	return out, nil
}

func (s *paymentService) VerifyPayment(ctx context.Context, userID, bookingID uuid.UUID, req *request.VerifyPaymentRequest) (*response.ReconcileResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.log.Warn("Verify payment validation failed", zap.Any("errors", errs))
		return nil, validationError(errs)
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return nil, apperror.Validation("invalid amount %s", req.Amount)
	}

	booking, _, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != userID {
		return nil, apperror.Unauthorized("only the booking's user can verify this payment")
	}

	return s.Reconcile(ctx, bookingID, gateway.Result{
		OrderID:       req.OrderID,
		PaymentID:     req.PaymentID,
		Signature:     req.Signature,
		Amount:        amount,
		Success:       req.Success,
		FailureReason: strings.TrimSpace(req.FailureReason),
	})
}

func (s *paymentService) Reconcile(ctx context.Context, bookingID uuid.UUID, result gateway.Result) (resp *response.ReconcileResponse, err error) {
	ctx, span := startSpan(ctx, "payment.reconcile",
		attribute.String("booking_id", bookingID.String()),
		attribute.String("order_id", result.OrderID),
		attribute.Bool("success", result.Success),
	)
	defer func() { endSpan(span, err) }()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	booking, spot, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	payment, err := s.repo.Payment.FindByBookingID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if payment != nil && payment.Status.WasCaptured() {
		metrics.PaymentReconciliations.WithLabelValues("already_processed").Inc()
		return &response.ReconcileResponse{
			Booking:          response.BookingToResponse(booking),
			Payment:          response.PaymentToResponse(payment),
			AlreadyProcessed: true,
		}, nil
	}
	if payment == nil || payment.GatewayOrderID == nil || *payment.GatewayOrderID != result.OrderID {
		metrics.PaymentReconciliations.WithLabelValues("rejected").Inc()
		return nil, apperror.New(apperror.KindPaymentVerificationFailed, "no pending payment for order %s", result.OrderID)
	}

	if !result.Success {
		return s.recordFailure(ctx, bookingID, result)
	}

	valid, err := s.gateway.VerifySignature(ctx, result.OrderID, result.PaymentID, result.Signature)
	if err != nil {
		metrics.PaymentReconciliations.WithLabelValues("gateway_error").Inc()
		return nil, apperror.External(err, "payment provider unavailable")
	}
	if !valid {
		metrics.PaymentReconciliations.WithLabelValues("rejected").Inc()
		s.log.Warn("Payment signature mismatch",
			zap.String("booking_id", bookingID.String()),
			zap.String("order_id", result.OrderID),
		)
		return nil, apperror.New(apperror.KindPaymentVerificationFailed, "payment signature is invalid")
	}
	if !result.Amount.Equal(booking.TotalAmount) {
		metrics.PaymentReconciliations.WithLabelValues("rejected").Inc()
		return nil, apperror.New(apperror.KindPaymentVerificationFailed,
			"paid amount %s does not match booking total %s", result.Amount.StringFixed(2), booking.TotalAmount.StringFixed(2))
	}

	// The booking and payment stay locked across the capture so a
	// concurrent cancel cannot slip between the check and the confirm.
	var (
		alreadyProcessed bool
		closed           bool
		rejected         error
		capture          *gateway.Capture
	)
	err = s.uow.RunInTx(ctx, func(tx *repository.Repository) error {
		b, err := tx.Booking.FindByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b == nil {
			return apperror.NotFound("booking %s not found", bookingID)
		}
		p, err := tx.Payment.FindByBookingIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if p == nil {
			return apperror.New(apperror.KindPaymentVerificationFailed, "payment for booking %s disappeared", bookingID)
		}
		if p.Status.WasCaptured() {
			booking, payment, alreadyProcessed = b, p, true
			return nil
		}
		if p.GatewayOrderID == nil || *p.GatewayOrderID != result.OrderID {
			return apperror.New(apperror.KindPaymentVerificationFailed, "no pending payment for order %s", result.OrderID)
		}

		now := s.now()
		closed = !lifecycle.CanApply(b.Status, lifecycle.EventConfirm)
		if closed {
			released, err := s.releaseOrder(ctx, p, "booking "+b.Status.String()+" before payment", now)
			switch {
			case released:
				booking, payment = b, p
				rejected = apperror.InvalidTransition("booking", "confirm", b.Status.String())
				return tx.Payment.Update(ctx, p)
			case err == nil:
				return apperror.InvalidTransition("booking", "confirm", b.Status.String())
			case !errors.Is(err, gateway.ErrOrderPaid):
				return apperror.External(err, "payment provider unavailable")
			}
			// The money is already taken: record the capture so it can be
			// refunded below.
		}

		c, err := s.gateway.ProcessPayment(ctx, result.OrderID, result.PaymentID)
		if err != nil {
			metrics.PaymentReconciliations.WithLabelValues("gateway_error").Inc()
			s.log.Error("Failed to capture payment", zap.Error(err), zap.String("order_id", result.OrderID))
			return apperror.External(err, "payment provider unavailable")
		}
		capture = c
		if !c.Amount.Equal(p.Amount) {
			return apperror.New(apperror.KindPaymentVerificationFailed,
				"captured amount %s does not match payment amount %s", c.Amount.StringFixed(2), p.Amount.StringFixed(2))
		}

		if !closed {
			if err := s.machine.Confirm(b, now); err != nil {
				return err
			}
			if err := tx.Booking.Update(ctx, b); err != nil {
				return err
			}
		}

		txnID, receipt := c.TransactionID, c.ReceiptURL
		p.Status = entity.PaymentStatusCompleted
		p.TransactionID = &txnID
		if receipt != "" {
			p.ReceiptURL = &receipt
		}
		p.FailureReason = nil
		p.PaidAt = &now
		p.Touch(now)
		if err := tx.Payment.Update(ctx, p); err != nil {
			return err
		}

		booking, payment = b, p
		return nil
	})
	if err != nil {
		metrics.PaymentReconciliations.WithLabelValues("error").Inc()
		if capture != nil {
			s.log.Error("Captured payment not recorded",
				zap.Error(err),
				zap.String("booking_id", bookingID.String()),
				zap.String("transaction_id", capture.TransactionID),
			)
		}
		return nil, err
	}

	if rejected != nil {
		metrics.PaymentReconciliations.WithLabelValues("rejected").Inc()
		s.log.Warn("Released order for closed booking",
			zap.String("booking_id", bookingID.String()),
			zap.String("order_id", result.OrderID),
			zap.String("status", booking.Status.String()),
		)
		return nil, rejected
	}

	out := &response.ReconcileResponse{
		Booking:          response.BookingToResponse(booking),
		Payment:          response.PaymentToResponse(payment),
		AlreadyProcessed: alreadyProcessed,
	}
	if alreadyProcessed {
		metrics.PaymentReconciliations.WithLabelValues("already_processed").Inc()
		return out, nil
	}

	if closed {
		metrics.PaymentReconciliations.WithLabelValues("refunded").Inc()
		s.log.Warn("Payment captured for closed booking, refunding",
			zap.String("booking_id", bookingID.String()),
			zap.String("transaction_id", capture.TransactionID),
			zap.String("status", booking.Status.String()),
		)
		reason := "booking " + booking.Status.String() + " before payment completed"
		if _, err := s.refund(ctx, booking, spot, payment.Amount, reason); err != nil {
			s.log.Error("Failed to refund payment for closed booking",
				zap.Error(err),
				zap.String("booking_id", bookingID.String()),
				zap.String("amount", payment.Amount.StringFixed(2)),
			)
		}
		return nil, apperror.InvalidTransition("booking", "confirm", booking.Status.String())
	}

	metrics.PaymentReconciliations.WithLabelValues("confirmed").Inc()
	s.log.Info("Payment confirmed",
		zap.String("booking_id", bookingID.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.String("transaction_id", capture.TransactionID),
		zap.String("amount", payment.Amount.StringFixed(2)),
	)

	s.afterCommit(ctx, booking, spot.OwnerID,
		events.ForBooking(events.PaymentCompleted, booking, spot.OwnerID, booking.UpdatedAt).WithAmount(payment.Amount))
	return out, nil
}

// releaseOrder voids the open gateway order of an unsettled payment so it can
// no longer be paid, and marks the attempt failed. The caller holds the
// payment row lock and persists p when it reports true. gateway.ErrOrderPaid
// means the provider already took the money.
func (s *paymentService) releaseOrder(ctx context.Context, p *entity.Payment, reason string, now time.Time) (bool, error) {
	if p == nil || p.Status.WasCaptured() || p.GatewayOrderID == nil {
		return false, nil
	}

	orderID := *p.GatewayOrderID
	if err := s.gateway.CancelOrder(ctx, orderID); err != nil {
		return false, err
	}

	p.Status = entity.PaymentStatusFailed
	p.GatewayOrderID = nil
	p.FailureReason = &reason
	p.Touch(now)

	s.log.Info("Gateway order released",
		zap.String("payment_id", p.ID.String()),
		zap.String("order_id", orderID),
		zap.String("reason", reason),
	)
	return true, nil
}

// recordFailure marks the attempt failed. The booking stays awaiting payment
// so the user can retry.
func (s *paymentService) recordFailure(ctx context.Context, bookingID uuid.UUID, result gateway.Result) (*response.ReconcileResponse, error) {
	var (
		booking *entity.Booking
		payment *entity.Payment
	)
	err := s.uow.RunInTx(ctx, func(tx *repository.Repository) error {
		b, err := tx.Booking.FindByID(ctx, bookingID)
		if err != nil {
			return err
		}
		p, err := tx.Payment.FindByBookingIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b == nil || p == nil {
			return apperror.NotFound("payment for booking %s not found", bookingID)
		}
		booking, payment = b, p
		if p.Status.WasCaptured() {
			return nil
		}

		reason := result.FailureReason
		if reason == "" {
			reason = "payment failed"
		}
		p.Status = entity.PaymentStatusFailed
		p.FailureReason = &reason
		p.Touch(s.now())
		return tx.Payment.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	metrics.PaymentReconciliations.WithLabelValues("failed").Inc()
	s.log.Warn("Payment failed",
		zap.String("booking_id", bookingID.String()),
		zap.String("order_id", result.OrderID),
		zap.String("reason", result.FailureReason),
	)

	return &response.ReconcileResponse{
		Booking: response.BookingToResponse(booking),
		Payment: response.PaymentToResponse(payment),
	}, nil
}

func (s *paymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	result, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		s.log.Warn("Rejected webhook", zap.Error(err))
		return apperror.Wrap(apperror.KindPaymentVerificationFailed, err, "invalid webhook")
	}
	if result == nil {
		return nil
	}

	payment, err := s.repo.Payment.FindByGatewayOrderID(ctx, result.OrderID)
	if err != nil {
		return err
	}
	if payment == nil {
		// Superseded orders land here after a retried checkout.
		s.log.Warn("Webhook for unknown order", zap.String("order_id", result.OrderID))
		return nil
	}

	_, err = s.Reconcile(ctx, payment.BookingID, *result)
	return err
}

func (s *paymentService) Refund(ctx context.Context, ownerID, bookingID uuid.UUID, req *request.RefundRequest) (*response.PaymentResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.log.Warn("Refund validation failed", zap.Any("errors", errs))
		return nil, validationError(errs)
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return nil, apperror.Validation("invalid amount %s", req.Amount)
	}

	booking, spot, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if spot.OwnerID != ownerID {
		return nil, apperror.Unauthorized("only the spot owner can refund this booking")
	}

	payment, err := s.refund(ctx, booking, spot, amount, strings.TrimSpace(req.Reason))
	if err != nil {
		return nil, err
	}

	out := response.PaymentToResponse(payment)
	return &out, nil
}

// refund sends money back through the provider. The payment row stays locked
// across the provider call so two refunds cannot both pass the balance check.
func (s *paymentService) refund(ctx context.Context, b *entity.Booking, spot *entity.Spot, amount decimal.Decimal, reason string) (payment *entity.Payment, err error) {
	ctx, span := startSpan(ctx, "payment.refund",
		attribute.String("booking_id", b.ID.String()),
		attribute.String("amount", amount.StringFixed(2)),
	)
	defer func() { endSpan(span, err) }()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if !amount.IsPositive() {
		return nil, apperror.New(apperror.KindInvalidRefund, "refund amount must be positive")
	}

	var sent bool
	err = s.uow.RunInTx(ctx, func(tx *repository.Repository) error {
		p, err := tx.Payment.FindByBookingIDForUpdate(ctx, b.ID)
		if err != nil {
			return err
		}
		if p == nil {
			return apperror.NotFound("payment for booking %s not found", b.ID)
		}
		if p.Status != entity.PaymentStatusCompleted && p.Status != entity.PaymentStatusPartialRefund {
			return apperror.InvalidTransition("payment", "refund", string(p.Status))
		}
		if amount.GreaterThan(p.Refundable()) {
			return apperror.New(apperror.KindInvalidRefund,
				"refund %s exceeds refundable balance %s", amount.StringFixed(2), p.Refundable().StringFixed(2))
		}
		if p.TransactionID == nil {
			return apperror.New(apperror.KindInvalidRefund, "payment %s has no captured transaction", p.ID)
		}

		if _, err := s.gateway.ProcessRefund(ctx, *p.TransactionID, amount, reason); err != nil {
			s.log.Error("Gateway refund failed",
				zap.Error(err),
				zap.String("payment_id", p.ID.String()),
				zap.String("amount", amount.StringFixed(2)),
			)
			return apperror.External(err, "refund could not be processed")
		}
		sent = true

		now := s.now()
		p.RefundAmount = p.RefundAmount.Add(amount)
		if p.RefundAmount.GreaterThanOrEqual(p.Amount) {
			p.Status = entity.PaymentStatusRefunded
		} else {
			p.Status = entity.PaymentStatusPartialRefund
		}
		if reason != "" {
			p.RefundReason = &reason
		}
		p.RefundedAt = &now
		p.Touch(now)
		if err := tx.Payment.Update(ctx, p); err != nil {
			return err
		}

		payment = p
		return nil
	})
	if err != nil {
		if sent {
			// The provider already moved the money; the row must catch up.
			s.log.Error("Refund not recorded after provider success",
				zap.Error(err),
				zap.String("booking_id", b.ID.String()),
				zap.String("amount", amount.StringFixed(2)),
			)
		}
		return nil, err
	}

	s.log.Info("Payment refunded",
		zap.String("booking_id", b.ID.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("status", string(payment.Status)),
	)

	s.afterCommit(ctx, b, spot.OwnerID,
		events.ForBooking(events.PaymentRefunded, b, spot.OwnerID, payment.UpdatedAt).WithAmount(amount).WithReason(reason))
	return payment, nil
}

func (s *paymentService) GetPayment(ctx context.Context, callerID, bookingID uuid.UUID) (*response.PaymentResponse, error) {
	booking, spot, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.IsParticipant(callerID, spot) {
		return nil, apperror.Unauthorized("you are not allowed to view this payment")
	}

	payment, err := s.repo.Payment.FindByBookingID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, apperror.NotFound("no payment for booking %s", bookingID)
	}

	out := response.PaymentToResponse(payment)
	return &out, nil
}


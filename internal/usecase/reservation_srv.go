package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"parking-booking/internal/availability"
	"parking-booking/internal/cache"
	"parking-booking/internal/data/entity"
	"parking-booking/internal/data/repository"
	"parking-booking/internal/dto/request"
	"parking-booking/internal/dto/response"
	"parking-booking/internal/events"
	"parking-booking/internal/gateway"
	"parking-booking/internal/pricing"
	"parking-booking/pkg/apperror"
	"parking-booking/pkg/metrics"
	"parking-booking/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	createAttempts = 2
	staleBatchSize = 100
)

type ReservationService interface {
	CreateBooking(ctx context.Context, userID uuid.UUID, req *request.CreateBookingRequest) (*response.BookingResponse, error)
	ApproveBooking(ctx context.Context, ownerID, bookingID uuid.UUID) (*response.BookingResponse, error)
	RejectBooking(ctx context.Context, ownerID, bookingID uuid.UUID, reason string) (*response.BookingResponse, error)
	CancelBooking(ctx context.Context, callerID, bookingID uuid.UUID, reason string) (*response.CancelBookingResponse, error)
	CheckIn(ctx context.Context, callerID, bookingID uuid.UUID) (*response.BookingResponse, error)
	CheckOut(ctx context.Context, callerID, bookingID uuid.UUID) (*response.BookingResponse, error)
	ApplyDiscount(ctx context.Context, userID, bookingID uuid.UUID, code string) (*response.BookingResponse, error)
	UpdateBooking(ctx context.Context, userID, bookingID uuid.UUID, req *request.UpdateBookingRequest) (*response.BookingResponse, error)

	// Reads
	GetBooking(ctx context.Context, callerID, bookingID uuid.UUID) (*response.BookingResponse, error)
	GetBookingByReference(ctx context.Context, callerID uuid.UUID, reference string) (*response.BookingResponse, error)
	ListUserBookings(ctx context.Context, userID uuid.UUID, req *request.PaginatedRequest) (*response.PaginatedResponse[response.BookingResponse], error)
	ListOwnerActiveBookings(ctx context.Context, ownerID uuid.UUID) ([]response.BookingResponse, error)
	CheckAvailability(ctx context.Context, spotID uuid.UUID, q *request.AvailabilityQuery) (*response.AvailabilityResponse, error)
	Quote(ctx context.Context, spotID uuid.UUID, q *request.AvailabilityQuery) (*response.QuoteResponse, error)

	// ExpireStale cancels unpaid bookings that sat idle past the payment
	// timeout or whose window already ended. It returns how many were
	// cancelled.
	ExpireStale(ctx context.Context) (int, error)
}

// settler is the slice of the payment service that booking changes need.
type settler interface {
	refund(ctx context.Context, b *entity.Booking, spot *entity.Spot, amount decimal.Decimal, reason string) (*entity.Payment, error)
	releaseOrder(ctx context.Context, p *entity.Payment, reason string, now time.Time) (bool, error)
}

type reservationService struct {
	*core
	pricing  *pricing.Engine
	payments settler
	log      *zap.Logger
}

func NewReservationService(c *core, engine *pricing.Engine, payments settler, log *zap.Logger) ReservationService {
	return &reservationService{
		core:     c,
		pricing:  engine,
		payments: payments,
		log:      log.With(zap.String("service", "reservation")),
	}
}

func validationError(errs map[string]string) error {
	return apperror.Validation("validation failed: %s", utils.FormatValidationErrors(errs))
}

func (s *reservationService) CreateBooking(ctx context.Context, userID uuid.UUID, req *request.CreateBookingRequest) (resp *response.BookingResponse, err error) {
	ctx, span := startSpan(ctx, "reservation.create", attribute.String("user_id", userID.String()))
	defer func() { endSpan(span, err) }()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.log.Warn("Create booking validation failed", zap.Any("errors", errs))
		return nil, validationError(errs)
	}

	spotID, err := uuid.Parse(req.SpotID)
	if err != nil {
		return nil, apperror.Validation("invalid spot ID %s", req.SpotID)
	}

	start, end := req.StartTime.UTC(), req.EndTime.UTC()
	if !start.Before(end) {
		return nil, apperror.Validation("start time must be before end time")
	}
	if !end.After(s.now()) {
		return nil, apperror.Validation("booking window must end in the future")
	}

	var (
		booking *entity.Booking
		spot    *entity.Spot
	)
	for attempt := 1; attempt <= createAttempts; attempt++ {
		booking, spot, err = s.createOnce(ctx, userID, spotID, start, end, req)
		if err == nil {
			metrics.BookingCreateAttempts.WithLabelValues("committed").Inc()
			break
		}
		if !repository.IsConflict(err) {
			if apperror.KindOf(err) == apperror.KindCapacityExceeded {
				metrics.BookingCreateAttempts.WithLabelValues("capacity_exceeded").Inc()
			}
			return nil, err
		}

		metrics.BookingCreateAttempts.WithLabelValues("conflict").Inc()
		s.log.Warn("Booking create lost a race",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.String("spot_id", spotID.String()),
		)
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.KindCapacityExceeded, err, "spot %s could not be reserved, please try again", spotID)
	}

	s.log.Info("Booking created",
		zap.String("booking_id", booking.ID.String()),
		zap.String("reference", booking.Reference),
		zap.String("user_id", userID.String()),
		zap.String("spot_id", spotID.String()),
		zap.String("status", booking.Status.String()),
		zap.String("total_amount", booking.TotalAmount.StringFixed(2)),
	)

	s.afterCommit(ctx, booking, spot.OwnerID, events.ForBooking(events.BookingCreated, booking, spot.OwnerID, booking.CreatedAt))

	out := response.BookingToResponse(booking)
	return &out, nil
}

// createOnce locks the spot row so that the capacity check and the insert
// are atomic with respect to other creates on the same spot.
func (s *reservationService) createOnce(ctx context.Context, userID, spotID uuid.UUID, start, end time.Time, req *request.CreateBookingRequest) (*entity.Booking, *entity.Spot, error) {
	var (
		booking *entity.Booking
		spot    *entity.Spot
	)

	err := s.uow.RunInTx(ctx, func(tx *repository.Repository) error {
		sp, err := tx.Spot.FindByIDForUpdate(ctx, spotID)
		if err != nil {
			return err
		}
		if sp == nil {
			return apperror.NotFound("spot %s not found", spotID)
		}
		if !sp.IsActive {
			return apperror.Validation("spot %s is not accepting bookings", spotID)
		}

		avail, err := availability.Check(ctx, tx.Booking, sp, start, end, nil)
		if err != nil {
			return err
		}
		if !avail.Available {
			return apperror.CapacityExceeded("spot %s is fully booked for the requested window", spotID)
		}

		mode := entity.PricingMode(req.PricingMode)
		br, err := s.pricing.CalculatePrice(sp, start, end, mode, strings.ToUpper(strings.TrimSpace(req.DiscountCode)))
		if err != nil {
			return err
		}

		now := s.now()
		b := &entity.Booking{
			Base:          entity.NewBase(now),
			Reference:     utils.GenerateBookingReference(now),
			UserID:        userID,
			SpotID:        spotID,
			StartTime:     start,
			EndTime:       end,
			PricingMode:   mode,
			VehicleNumber: strings.ToUpper(strings.TrimSpace(req.VehicleNumber)),
			VehicleType:   req.VehicleType,
			Status:        entity.BookingStatusPending,
		}
		if !sp.RequiresApproval {
			b.Status = entity.BookingStatusAwaitingPayment
		}
		pricing.Apply(b, br)

		if err := tx.Booking.Create(ctx, b); err != nil {
			return err
		}

		booking, spot = b, sp
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return booking, spot, nil
}

func (s *reservationService) ApproveBooking(ctx context.Context, ownerID, bookingID uuid.UUID) (resp *response.BookingResponse, err error) {
	ctx, span := startSpan(ctx, "reservation.approve", attribute.String("booking_id", bookingID.String()))
	defer func() { endSpan(span, err) }()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	booking, spot, err := s.mutateBooking(ctx, bookingID, ownerOf(ownerID, "approve"),
		func(_ *repository.Repository, b *entity.Booking, _ *entity.Spot, now time.Time) error {
			return s.machine.Approve(b, now)
		})
	if err != nil {
		return nil, err
	}

	s.log.Info("Booking approved",
		zap.String("booking_id", booking.ID.String()),
		zap.String("owner_id", ownerID.String()),
	)

	s.afterCommit(ctx, booking, spot.OwnerID, events.ForBooking(events.BookingApproved, booking, spot.OwnerID, booking.UpdatedAt))

	out := response.BookingToResponse(booking)
	return &out, nil
}

func (s *reservationService) RejectBooking(ctx context.Context, ownerID, bookingID uuid.UUID, reason string) (resp *response.BookingResponse, err error) {
	ctx, span := startSpan(ctx, "reservation.reject", attribute.String("booking_id", bookingID.String()))
	defer func() { endSpan(span, err) }()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	booking, spot, err := s.mutateBooking(ctx, bookingID, ownerOf(ownerID, "reject"),
		func(_ *repository.Repository, b *entity.Booking, _ *entity.Spot, now time.Time) error {
			return s.machine.Reject(b, strings.TrimSpace(reason), now)
		})
	if err != nil {
		return nil, err
	}

	s.log.Info("Booking rejected",
		zap.String("booking_id", booking.ID.String()),
		zap.String("owner_id", ownerID.String()),
	)

	s.afterCommit(ctx, booking, spot.OwnerID, events.ForBooking(events.BookingRejected, booking, spot.OwnerID, booking.UpdatedAt))

	out := response.BookingToResponse(booking)
	return &out, nil
}

// CancelBooking commits the cancellation first and refunds afterwards, so
// money never moves for a booking that did not end up cancelled. A failed
// refund leaves the booking cancelled and is reported on the response; the
// owner can retry it through the refund endpoint.
func (s *reservationService) CancelBooking(ctx context.Context, callerID, bookingID uuid.UUID, reason string) (resp *response.CancelBookingResponse, err error) {
	ctx, span := startSpan(ctx, "reservation.cancel", attribute.String("booking_id", bookingID.String()))
	defer func() { endSpan(span, err) }()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	reason = strings.TrimSpace(reason)

	var (
		prevStatus entity.BookingStatus
		owed       decimal.Decimal
	)
	booking, spot, err := s.mutateBooking(ctx, bookingID, participantOf(callerID, "cancel"),
		func(tx *repository.Repository, b *entity.Booking, _ *entity.Spot, now time.Time) error {
			prevStatus = b.Status
			if err := s.machine.Cancel(b, reason, now); err != nil {
				return err
			}

			payment, err := tx.Payment.FindByBookingIDForUpdate(ctx, b.ID)
			if err != nil {
				return err
			}
			owed = s.cancellationRefund(payment, b, prevStatus, now)
			if prevStatus == entity.BookingStatusAwaitingPayment {
				return s.releaseCheckout(ctx, tx, b, payment, now)
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	s.log.Info("Booking cancelled",
		zap.String("booking_id", booking.ID.String()),
		zap.String("caller_id", callerID.String()),
		zap.String("previous_status", prevStatus.String()),
		zap.String("refund_owed", owed.StringFixed(2)),
	)

	s.afterCommit(ctx, booking, spot.OwnerID, events.ForBooking(events.BookingCancelled, booking, spot.OwnerID, booking.UpdatedAt))

	out := &response.CancelBookingResponse{
		Booking:      response.BookingToResponse(booking),
		RefundAmount: decimal.Zero,
	}
	if !owed.IsPositive() {
		return out, nil
	}

	payment, err := s.payments.refund(ctx, booking, spot, owed, "cancellation: "+reason)
	if err != nil {
		s.log.Error("Cancellation refund failed",
			zap.Error(err),
			zap.String("booking_id", booking.ID.String()),
			zap.String("amount", owed.StringFixed(2)),
		)
		out.RefundError = apperror.Message(err)
		return out, nil
	}

	paymentResp := response.PaymentToResponse(payment)
	out.RefundAmount = owed
	out.Payment = &paymentResp
	return out, nil
}

// cancellationRefund applies the refund policy: full refund when cancelled at
// least FullRefundBefore ahead of start, half when at least HalfRefundBefore
// ahead, nothing after that or once the spot is occupied.
// releaseCheckout voids the open order of a booking that can no longer be
// paid. A provider failure is only logged: a payment that lands anyway is
// refunded when it is reconciled.
func (s *reservationService) releaseCheckout(ctx context.Context, tx *repository.Repository, b *entity.Booking, p *entity.Payment, now time.Time) error {
	released, err := s.payments.releaseOrder(ctx, p, "booking "+b.Status.String(), now)
	if err != nil {
		s.log.Warn("Failed to release gateway order",
			zap.Error(err),
			zap.String("booking_id", b.ID.String()),
		)
		return nil
	}
	if !released {
		return nil
	}
	return tx.Payment.Update(ctx, p)
}

// resetCheckout keeps an unsettled payment in step with a repriced booking.
// The open order is voided so checkout restarts at the new total.
func (s *reservationService) resetCheckout(ctx context.Context, tx *repository.Repository, b *entity.Booking, previousTotal decimal.Decimal, now time.Time) error {
	if b.TotalAmount.Equal(previousTotal) {
		return nil
	}
	p, err := tx.Payment.FindByBookingIDForUpdate(ctx, b.ID)
	if err != nil {
		return err
	}
	if p == nil || p.Status.WasCaptured() {
		return nil
	}

	if _, err := s.payments.releaseOrder(ctx, p, "booking repriced", now); err != nil {
		if errors.Is(err, gateway.ErrOrderPaid) {
			return apperror.New(apperror.KindInvalidStateTransition,
				"booking %s has a payment in progress and cannot be repriced", b.Reference)
		}
		return apperror.External(err, "could not close the open checkout")
	}
	p.Amount = b.TotalAmount
	p.Touch(now)
	return tx.Payment.Update(ctx, p)
}

func (s *reservationService) cancellationRefund(p *entity.Payment, b *entity.Booking, prev entity.BookingStatus, now time.Time) decimal.Decimal {
	if p == nil || p.Status != entity.PaymentStatusCompleted && p.Status != entity.PaymentStatusPartialRefund {
		return decimal.Zero
	}
	if prev == entity.BookingStatusInProgress {
		return decimal.Zero
	}

	full, half := 24*time.Hour, 2*time.Hour
	if s.cfg != nil {
		if s.cfg.Booking.FullRefundBefore > 0 {
			full = s.cfg.Booking.FullRefundBefore
		}
		if s.cfg.Booking.HalfRefundBefore > 0 {
			half = s.cfg.Booking.HalfRefundBefore
		}
	}

	lead := b.StartTime.Sub(now)
	refundable := p.Refundable()
	switch {
	case lead >= full:
		return refundable
	case lead >= half:
		return refundable.Div(decimal.NewFromInt(2)).Round(2)
	default:
		return decimal.Zero
	}
}

func (s *reservationService) CheckIn(ctx context.Context, callerID, bookingID uuid.UUID) (resp *response.BookingResponse, err error) {
	ctx, span := startSpan(ctx, "reservation.check_in", attribute.String("booking_id", bookingID.String()))
	defer func() { endSpan(span, err) }()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	booking, spot, err := s.mutateBooking(ctx, bookingID, participantOf(callerID, "check in"),
		func(_ *repository.Repository, b *entity.Booking, _ *entity.Spot, now time.Time) error {
			return s.machine.CheckIn(b, now)
		})
	if err != nil {
		return nil, err
	}

	s.log.Info("Booking checked in", zap.String("booking_id", booking.ID.String()))
	s.afterCommit(ctx, booking, spot.OwnerID, events.ForBooking(events.BookingCheckedIn, booking, spot.OwnerID, booking.UpdatedAt))

	out := response.BookingToResponse(booking)
	return &out, nil
}

func (s *reservationService) CheckOut(ctx context.Context, callerID, bookingID uuid.UUID) (resp *response.BookingResponse, err error) {
	ctx, span := startSpan(ctx, "reservation.check_out", attribute.String("booking_id", bookingID.String()))
	defer func() { endSpan(span, err) }()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	booking, spot, err := s.mutateBooking(ctx, bookingID, participantOf(callerID, "check out"),
		func(_ *repository.Repository, b *entity.Booking, _ *entity.Spot, now time.Time) error {
			return s.machine.CheckOut(b, now)
		})
	if err != nil {
		return nil, err
	}

	s.log.Info("Booking checked out", zap.String("booking_id", booking.ID.String()))
	s.afterCommit(ctx, booking, spot.OwnerID, events.ForBooking(events.BookingCheckedOut, booking, spot.OwnerID, booking.UpdatedAt))

	out := response.BookingToResponse(booking)
	return &out, nil
}

func (s *reservationService) ApplyDiscount(ctx context.Context, userID, bookingID uuid.UUID, code string) (resp *response.BookingResponse, err error) {
	ctx, span := startSpan(ctx, "reservation.apply_discount", attribute.String("booking_id", bookingID.String()))
	defer func() { endSpan(span, err) }()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, apperror.Validation("discount code is required")
	}

	booking, spot, err := s.mutateBooking(ctx, bookingID, userOf(userID, "discount"),
		func(tx *repository.Repository, b *entity.Booking, _ *entity.Spot, now time.Time) error {
			if !b.Status.IsUnpaid() {
				return apperror.InvalidTransition("booking", "apply discount to", b.Status.String())
			}
			amount, err := s.pricing.DiscountFor(code, pricing.FromBooking(b))
			if err != nil {
				return err
			}
			previousTotal := b.TotalAmount
			if err := b.ApplyDiscount(code, amount); err != nil {
				return err
			}
			b.Touch(now)
			return s.resetCheckout(ctx, tx, b, previousTotal, now)
		})
	if err != nil {
		return nil, err
	}

	s.log.Info("Discount applied",
		zap.String("booking_id", booking.ID.String()),
		zap.String("code", code),
		zap.String("discount_amount", booking.DiscountAmount.StringFixed(2)),
		zap.String("total_amount", booking.TotalAmount.StringFixed(2)),
	)

	s.afterCommit(ctx, booking, spot.OwnerID, events.ForBooking(events.BookingUpdated, booking, spot.OwnerID, booking.UpdatedAt))

	out := response.BookingToResponse(booking)
	return &out, nil
}

func (s *reservationService) UpdateBooking(ctx context.Context, userID, bookingID uuid.UUID, req *request.UpdateBookingRequest) (resp *response.BookingResponse, err error) {
	ctx, span := startSpan(ctx, "reservation.update", attribute.String("booking_id", bookingID.String()))
	defer func() { endSpan(span, err) }()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.log.Warn("Update booking validation failed", zap.Any("errors", errs))
		return nil, validationError(errs)
	}
	if req.IsEmpty() {
		return nil, apperror.Validation("nothing to update")
	}

	booking, spot, err := s.mutateBooking(ctx, bookingID, userOf(userID, "update"),
		func(tx *repository.Repository, b *entity.Booking, _ *entity.Spot, now time.Time) error {
			if !b.Status.IsUnpaid() {
				return apperror.InvalidTransition("booking", "update", b.Status.String())
			}
			if req.VehicleNumber != nil {
				b.VehicleNumber = strings.ToUpper(strings.TrimSpace(*req.VehicleNumber))
			}
			if req.VehicleType != nil {
				b.VehicleType = *req.VehicleType
			}
			previousTotal := b.TotalAmount
			if req.ChangesSchedule() {
				if err := s.reschedule(ctx, tx, b, req, now); err != nil {
					return err
				}
			}
			b.Touch(now)
			return s.resetCheckout(ctx, tx, b, previousTotal, now)
		})
	if err != nil {
		if repository.IsConflict(err) {
			return nil, apperror.Wrap(apperror.KindCapacityExceeded, err, "booking %s could not be rescheduled, please try again", bookingID)
		}
		return nil, err
	}

	s.log.Info("Booking updated",
		zap.String("booking_id", booking.ID.String()),
		zap.Bool("rescheduled", req.ChangesSchedule()),
	)

	s.afterCommit(ctx, booking, spot.OwnerID, events.ForBooking(events.BookingUpdated, booking, spot.OwnerID, booking.UpdatedAt))

	out := response.BookingToResponse(booking)
	return &out, nil
}

// reschedule re-checks capacity without counting the booking itself and
// re-prices it, keeping any discount code already applied.
func (s *reservationService) reschedule(ctx context.Context, tx *repository.Repository, b *entity.Booking, req *request.UpdateBookingRequest, now time.Time) error {
	start, end, mode := b.StartTime, b.EndTime, b.PricingMode
	if req.StartTime != nil {
		start = req.StartTime.UTC()
	}
	if req.EndTime != nil {
		end = req.EndTime.UTC()
	}
	if req.PricingMode != nil {
		mode = entity.PricingMode(*req.PricingMode)
	}

	if !start.Before(end) {
		return apperror.Validation("start time must be before end time")
	}
	if !end.After(now) {
		return apperror.Validation("booking window must end in the future")
	}

	spot, err := tx.Spot.FindByIDForUpdate(ctx, b.SpotID)
	if err != nil {
		return err
	}
	if spot == nil {
		return apperror.NotFound("spot %s not found", b.SpotID)
	}

	avail, err := availability.Check(ctx, tx.Booking, spot, start, end, &b.ID)
	if err != nil {
		return err
	}
	if !avail.Available {
		return apperror.CapacityExceeded("spot %s is fully booked for the requested window", b.SpotID)
	}

	code := ""
	if b.DiscountCode != nil {
		code = *b.DiscountCode
	}
	br, err := s.pricing.CalculatePrice(spot, start, end, mode, code)
	if err != nil {
		return err
	}

	b.StartTime, b.EndTime, b.PricingMode = start, end, mode
	pricing.Apply(b, br)
	return nil
}

type bookingView struct {
	Booking *entity.Booking `json:"booking"`
	OwnerID uuid.UUID       `json:"owner_id"`
}

func (s *reservationService) viewByID(ctx context.Context, bookingID uuid.UUID) (*bookingView, error) {
	return readThrough(ctx, s.core, s.log, cache.BookingKey(bookingID), func() (*bookingView, error) {
		b, spot, err := s.loadBooking(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		return &bookingView{Booking: b, OwnerID: spot.OwnerID}, nil
	})
}

func (s *reservationService) GetBooking(ctx context.Context, callerID, bookingID uuid.UUID) (*response.BookingResponse, error) {
	view, err := s.viewByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if view.Booking.UserID != callerID && view.OwnerID != callerID {
		return nil, apperror.Unauthorized("you are not allowed to view this booking")
	}

	out := response.BookingToResponse(view.Booking)
	return &out, nil
}

func (s *reservationService) GetBookingByReference(ctx context.Context, callerID uuid.UUID, reference string) (*response.BookingResponse, error) {
	reference = strings.ToUpper(strings.TrimSpace(reference))

	view, err := readThrough(ctx, s.core, s.log, cache.BookingRefKey(reference), func() (*bookingView, error) {
		b, err := s.repo.Booking.FindByReference(ctx, reference)
		if err != nil {
			return nil, err
		}
		if b == nil {
			return nil, apperror.NotFound("booking %s not found", reference)
		}
		spot, err := s.repo.Spot.FindByID(ctx, b.SpotID)
		if err != nil {
			return nil, err
		}
		view := &bookingView{Booking: b}
		if spot != nil {
			view.OwnerID = spot.OwnerID
		}
		return view, nil
	})
	if err != nil {
		return nil, err
	}
	if view.Booking.UserID != callerID && view.OwnerID != callerID {
		return nil, apperror.Unauthorized("you are not allowed to view this booking")
	}

	out := response.BookingToResponse(view.Booking)
	return &out, nil
}

func (s *reservationService) ListUserBookings(ctx context.Context, userID uuid.UUID, req *request.PaginatedRequest) (*response.PaginatedResponse[response.BookingResponse], error) {
	if req.Page < 1 {
		req.Page = 1
	}
	limit, offset := req.Limit(), req.Offset()

	return readThrough(ctx, s.core, s.log, cache.UserDashboardKey(userID, limit, offset), func() (*response.PaginatedResponse[response.BookingResponse], error) {
		bookings, err := s.repo.Booking.FindByUserID(ctx, userID, limit, offset)
		if err != nil {
			s.log.Error("Failed to get user bookings",
				zap.Error(err),
				zap.String("user_id", userID.String()),
				zap.Int("page", req.Page),
				zap.Int("per_page", limit),
			)
			return nil, err
		}

		total, err := s.repo.Booking.CountByUserID(ctx, userID)
		if err != nil {
			s.log.Error("Failed to count user bookings", zap.Error(err))
			return nil, err
		}

		return response.NewPaginatedResponse(response.BookingsToResponse(bookings), req.Page, limit, total), nil
	})
}

func (s *reservationService) ListOwnerActiveBookings(ctx context.Context, ownerID uuid.UUID) ([]response.BookingResponse, error) {
	return readThrough(ctx, s.core, s.log, cache.OwnerDashboardKey(ownerID), func() ([]response.BookingResponse, error) {
		spots, err := s.repo.Spot.FindByOwnerID(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		ids := make([]uuid.UUID, len(spots))
		for i, sp := range spots {
			ids[i] = sp.ID
		}

		bookings, err := s.repo.Booking.FindActiveForSpots(ctx, ids)
		if err != nil {
			return nil, err
		}
		return response.BookingsToResponse(bookings), nil
	})
}

func (s *reservationService) loadSpot(ctx context.Context, spotID uuid.UUID) (*entity.Spot, error) {
	return readThrough(ctx, s.core, s.log, cache.SpotKey(spotID), func() (*entity.Spot, error) {
		spot, err := s.repo.Spot.FindByID(ctx, spotID)
		if err != nil {
			return nil, err
		}
		if spot == nil {
			return nil, apperror.NotFound("spot %s not found", spotID)
		}
		return spot, nil
	})
}

// CheckAvailability is advisory: the answer can be stale by the time a
// create runs, which re-checks under the spot lock.
func (s *reservationService) CheckAvailability(ctx context.Context, spotID uuid.UUID, q *request.AvailabilityQuery) (*response.AvailabilityResponse, error) {
	if errs := utils.ValidateStruct(q); len(errs) > 0 {
		return nil, validationError(errs)
	}
	start, end := q.StartTime.UTC(), q.EndTime.UTC()

	return readThrough(ctx, s.core, s.log, cache.AvailabilityKey(spotID, start, end), func() (*response.AvailabilityResponse, error) {
		spot, err := s.loadSpot(ctx, spotID)
		if err != nil {
			return nil, err
		}
		res, err := availability.Check(ctx, s.repo.Booking, spot, start, end, nil)
		if err != nil {
			return nil, err
		}
		out := response.AvailabilityToResponse(spot, start, end, res)
		return &out, nil
	})
}

func (s *reservationService) Quote(ctx context.Context, spotID uuid.UUID, q *request.AvailabilityQuery) (*response.QuoteResponse, error) {
	if errs := utils.ValidateStruct(q); len(errs) > 0 {
		return nil, validationError(errs)
	}
	if q.PricingMode == "" {
		return nil, apperror.Validation("pricing mode is required")
	}

	spot, err := s.loadSpot(ctx, spotID)
	if err != nil {
		return nil, err
	}

	mode := entity.PricingMode(q.PricingMode)
	br, err := s.pricing.CalculatePrice(spot, q.StartTime.UTC(), q.EndTime.UTC(), mode, strings.ToUpper(strings.TrimSpace(q.DiscountCode)))
	if err != nil {
		return nil, err
	}

	out := response.QuoteToResponse(spot, mode, br)
	return &out, nil
}

var errNoLongerStale = errors.New("booking is no longer stale")

func (s *reservationService) ExpireStale(ctx context.Context) (expired int, err error) {
	ctx, span := startSpan(ctx, "reservation.expire_stale")
	defer func() {
		span.SetAttributes(attribute.Int("expired", expired))
		endSpan(span, err)
	}()

	now := s.now()
	paymentTimeout := 30 * time.Minute
	if s.cfg != nil && s.cfg.Booking.PaymentTimeout > 0 {
		paymentTimeout = s.cfg.Booking.PaymentTimeout
	}
	awaitingBefore := now.Add(-paymentTimeout)

	stale, err := s.repo.Booking.FindStale(ctx, now, awaitingBefore, staleBatchSize)
	if err != nil {
		return 0, err
	}

	for _, candidate := range stale {
		if err := ctx.Err(); err != nil {
			return expired, err
		}

		booking, spot, err := s.mutateBooking(ctx, candidate.ID, anyone,
			func(tx *repository.Repository, b *entity.Booking, _ *entity.Spot, now time.Time) error {
				reason := staleReason(b, now, awaitingBefore)
				if reason == "" {
					return errNoLongerStale
				}
				prev := b.Status
				if err := s.machine.Cancel(b, reason, now); err != nil {
					return err
				}
				if prev != entity.BookingStatusAwaitingPayment {
					return nil
				}
				p, err := tx.Payment.FindByBookingIDForUpdate(ctx, b.ID)
				if err != nil {
					return err
				}
				return s.releaseCheckout(ctx, tx, b, p, now)
			})
		if errors.Is(err, errNoLongerStale) {
			continue
		}
		if err != nil {
			s.log.Error("Failed to expire booking",
				zap.Error(err),
				zap.String("booking_id", candidate.ID.String()),
			)
			continue
		}

		expired++
		metrics.ExpiredBookings.Inc()
		s.afterCommit(ctx, booking, spot.OwnerID, events.ForBooking(events.BookingCancelled, booking, spot.OwnerID, booking.UpdatedAt))
	}

	if expired > 0 {
		s.log.Info("Expired stale bookings", zap.Int("count", expired))
	}
	return expired, nil
}

// staleReason explains why an unpaid booking should be expired, or returns
// "". A booking that has started is kept while its end is ahead and it was
// touched within the payment timeout, so a booking made for right now gets
// the same window to pay as any other.
func staleReason(b *entity.Booking, now, awaitingBefore time.Time) string {
	if !b.Status.IsUnpaid() {
		return ""
	}
	idle := b.UpdatedAt.Before(awaitingBefore)
	started := !b.StartTime.After(now)
	lapsed := started && (idle || !b.EndTime.After(now))

	switch {
	case lapsed && b.Status == entity.BookingStatusPending:
		return "not approved before the booking started"
	case lapsed:
		return "not paid before the booking started"
	case b.Status == entity.BookingStatusAwaitingPayment && idle:
		return "payment window expired"
	}
	return ""
}

package usecase

import (
	"errors"
	"testing"

	"parking-booking/internal/data/entity"
	"parking-booking/internal/dto/request"
	"parking-booking/internal/events"
	"parking-booking/internal/gateway"
	"parking-booking/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func (f *fixture) initiate(bookingID uuid.UUID, orderID string) {
	f.t.Helper()
	f.gw.On("CreateOrder", mock.Anything, mock.Anything, "inr", mock.Anything).
		Return(&gateway.Order{ID: orderID, ClientSecret: orderID + "_secret"}, nil).Once()
	resp, err := f.svc.Payment.InitiatePayment(f.ctx, f.user, bookingID)
	require.NoError(f.t, err)
	require.Equal(f.t, orderID+"_secret", resp.ClientSecret)
}

func TestReconcile_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	id := f.create(at(10, 0), at(11, 0))
	f.pay(id, "pi_d")

	b := f.booking(id)
	p := f.payment(id)
	assert.Equal(t, entity.BookingStatusConfirmed, b.Status)
	assert.Equal(t, entity.PaymentStatusCompleted, p.Status)
	require.NotNil(t, p.TransactionID)
	assert.Equal(t, "ch_pi_d", *p.TransactionID)
	assert.NotNil(t, p.PaidAt)

	again, err := f.svc.Payment.Reconcile(f.ctx, id, successResult("pi_d", b.TotalAmount))
	require.NoError(t, err)
	assert.True(t, again.AlreadyProcessed)
	assert.Equal(t, entity.BookingStatusConfirmed, again.Booking.Status)
	assert.Equal(t, p.ID.String(), again.Payment.ID)
	assert.Equal(t, p.ID, f.payment(id).ID)

	f.gw.AssertNumberOfCalls(t, "ProcessPayment", 1)

	completed := 0
	for _, typ := range f.eventTypes() {
		if typ == events.PaymentCompleted {
			completed++
		}
	}
	assert.Equal(t, 1, completed)
}

func TestReconcile_Rejections(t *testing.T) {
	f := newFixture(t)
	id := f.create(at(10, 0), at(11, 0))
	f.initiate(id, "pi_r")
	total := f.booking(id).TotalAmount

	f.gw.On("VerifySignature", mock.Anything, "pi_r", "ch_pi_r", "forged").Return(false, nil)
	f.gw.On("VerifySignature", mock.Anything, "pi_r", "ch_pi_r", "sig").Return(true, nil)

	forged := successResult("pi_r", total)
	forged.Signature = "forged"

	short := successResult("pi_r", total.Sub(dec("1")))

	tests := []struct {
		name   string
		result gateway.Result
	}{
		{"bad signature", forged},
		{"amount mismatch", short},
		{"unknown order", successResult("pi_other", total)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Payment.Reconcile(f.ctx, id, tt.result)
			require.Error(t, err)
			assert.Equal(t, apperror.KindPaymentVerificationFailed, apperror.KindOf(err))
		})
	}

	assert.Equal(t, entity.BookingStatusAwaitingPayment, f.booking(id).Status)
	assert.Equal(t, entity.PaymentStatusPending, f.payment(id).Status)
	f.gw.AssertNotCalled(t, "ProcessPayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcile_CaptureFailureLeavesBookingUnpaid(t *testing.T) {
	f := newFixture(t)
	id := f.create(at(10, 0), at(11, 0))
	f.initiate(id, "pi_cf")
	total := f.booking(id).TotalAmount

	f.gw.On("VerifySignature", mock.Anything, "pi_cf", "ch_pi_cf", "sig").Return(true, nil)
	f.gw.On("ProcessPayment", mock.Anything, "pi_cf", "ch_pi_cf").Return(nil, errors.New("timeout")).Once()

	_, err := f.svc.Payment.Reconcile(f.ctx, id, successResult("pi_cf", total))
	assert.Equal(t, apperror.KindExternalService, apperror.KindOf(err))
	assert.Equal(t, entity.BookingStatusAwaitingPayment, f.booking(id).Status)

	f.gw.On("ProcessPayment", mock.Anything, "pi_cf", "ch_pi_cf").
		Return(&gateway.Capture{TransactionID: "ch_pi_cf", Amount: total.Add(dec("5"))}, nil).Once()
	_, err = f.svc.Payment.Reconcile(f.ctx, id, successResult("pi_cf", total))
	assert.Equal(t, apperror.KindPaymentVerificationFailed, apperror.KindOf(err))
	assert.Equal(t, entity.PaymentStatusPending, f.payment(id).Status)
}

func amountOf(want string) any {
	return mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(dec(want)) })
}

func TestReconcile_AfterCancelRejectsReleasedOrder(t *testing.T) {
	f := newFixture(t)
	id := f.create(at(10, 0), at(11, 0))
	f.initiate(id, "pi_x")
	total := f.booking(id).TotalAmount

	f.gw.On("CancelOrder", mock.Anything, "pi_x").Return(nil).Once()
	_, err := f.svc.Reservation.CancelBooking(f.ctx, f.user, id, "changed plans")
	require.NoError(t, err)

	p := f.payment(id)
	assert.Equal(t, entity.PaymentStatusFailed, p.Status)
	assert.Nil(t, p.GatewayOrderID)

	_, err = f.svc.Payment.Reconcile(f.ctx, id, successResult("pi_x", total))
	assert.Equal(t, apperror.KindPaymentVerificationFailed, apperror.KindOf(err))
	assert.Equal(t, entity.BookingStatusCancelled, f.booking(id).Status)
	f.gw.AssertNotCalled(t, "ProcessPayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcile_CancelledBookingReleasesOrderBeforeCapture(t *testing.T) {
	f := newFixture(t)
	id := f.create(at(10, 0), at(11, 0))
	f.initiate(id, "pi_x")
	total := f.booking(id).TotalAmount

	// the provider is down while cancelling, so the order stays open
	f.gw.On("CancelOrder", mock.Anything, "pi_x").Return(errors.New("stripe down")).Once()
	_, err := f.svc.Reservation.CancelBooking(f.ctx, f.user, id, "changed plans")
	require.NoError(t, err)
	require.Equal(t, entity.PaymentStatusPending, f.payment(id).Status)

	f.gw.On("VerifySignature", mock.Anything, "pi_x", "ch_pi_x", "sig").Return(true, nil)
	f.gw.On("CancelOrder", mock.Anything, "pi_x").Return(nil).Once()

	_, err = f.svc.Payment.Reconcile(f.ctx, id, successResult("pi_x", total))
	assert.Equal(t, apperror.KindInvalidStateTransition, apperror.KindOf(err))

	p := f.payment(id)
	assert.Equal(t, entity.PaymentStatusFailed, p.Status)
	assert.Nil(t, p.GatewayOrderID)
	assert.Nil(t, p.TransactionID)
	assert.Equal(t, entity.BookingStatusCancelled, f.booking(id).Status)
	f.gw.AssertNotCalled(t, "ProcessPayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcile_PaymentTakenForCancelledBookingIsRefunded(t *testing.T) {
	f := newFixture(t)
	id := f.create(at(10, 0), at(11, 0))
	f.initiate(id, "pi_late")
	total := f.booking(id).TotalAmount

	f.gw.On("CancelOrder", mock.Anything, "pi_late").Return(gateway.ErrOrderPaid).Twice()
	_, err := f.svc.Reservation.CancelBooking(f.ctx, f.user, id, "changed plans")
	require.NoError(t, err)

	f.gw.On("VerifySignature", mock.Anything, "pi_late", "ch_pi_late", "sig").Return(true, nil)
	f.gw.On("ProcessPayment", mock.Anything, "pi_late", "ch_pi_late").
		Return(&gateway.Capture{TransactionID: "ch_pi_late", Amount: total}, nil).Once()
	f.gw.On("ProcessRefund", mock.Anything, "ch_pi_late", amountOf("123"), mock.Anything).
		Return(&gateway.Refund{ID: "re_late"}, nil).Once()

	_, err = f.svc.Payment.Reconcile(f.ctx, id, successResult("pi_late", total))
	assert.Equal(t, apperror.KindInvalidStateTransition, apperror.KindOf(err))

	b := f.booking(id)
	p := f.payment(id)
	assert.Equal(t, entity.BookingStatusCancelled, b.Status)
	assert.Equal(t, entity.PaymentStatusRefunded, p.Status)
	require.NotNil(t, p.TransactionID)
	assert.Equal(t, "ch_pi_late", *p.TransactionID)
	assert.NotNil(t, p.PaidAt)
	assertAmount(t, "123", p.RefundAmount)

	assert.Contains(t, f.eventTypes(), events.PaymentRefunded)
	assert.NotContains(t, f.eventTypes(), events.PaymentCompleted)

	// a retried webhook finds the payment settled
	again, err := f.svc.Payment.Reconcile(f.ctx, id, successResult("pi_late", total))
	require.NoError(t, err)
	assert.True(t, again.AlreadyProcessed)
	f.gw.AssertNumberOfCalls(t, "ProcessPayment", 1)
	f.gw.AssertNumberOfCalls(t, "ProcessRefund", 1)
}

func TestReconcile_SignatureCheckUnavailable(t *testing.T) {
	f := newFixture(t)
	id := f.create(at(10, 0), at(11, 0))
	f.initiate(id, "pi_sd")
	total := f.booking(id).TotalAmount

	f.gw.On("VerifySignature", mock.Anything, "pi_sd", "ch_pi_sd", "sig").Return(false, errors.New("timeout")).Once()

	_, err := f.svc.Payment.Reconcile(f.ctx, id, successResult("pi_sd", total))
	assert.Equal(t, apperror.KindExternalService, apperror.KindOf(err))
	assert.Equal(t, entity.PaymentStatusPending, f.payment(id).Status)
	f.gw.AssertNotCalled(t, "ProcessPayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcile_FailureThenRetry(t *testing.T) {
	f := newFixture(t)
	id := f.create(at(10, 0), at(11, 0))
	f.initiate(id, "pi_1")

	resp, err := f.svc.Payment.Reconcile(f.ctx, id, gateway.Result{OrderID: "pi_1", FailureReason: "card declined"})
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusFailed, resp.Payment.Status)
	require.NotNil(t, resp.Payment.FailureReason)
	assert.Equal(t, "card declined", *resp.Payment.FailureReason)
	assert.Equal(t, entity.BookingStatusAwaitingPayment, resp.Booking.Status)

	firstPayment := f.payment(id).ID

	// a retry reuses the payment row with a fresh order
	f.initiate(id, "pi_2")
	p := f.payment(id)
	assert.Equal(t, firstPayment, p.ID)
	assert.Equal(t, entity.PaymentStatusPending, p.Status)
	assert.Equal(t, "pi_2", *p.GatewayOrderID)
	assert.Nil(t, p.FailureReason)

	total := f.booking(id).TotalAmount
	f.gw.On("VerifySignature", mock.Anything, "pi_2", "ch_pi_2", "sig").Return(true, nil)
	f.gw.On("ProcessPayment", mock.Anything, "pi_2", "ch_pi_2").
		Return(&gateway.Capture{TransactionID: "ch_pi_2", Amount: total}, nil).Once()

	// the superseded order no longer matches
	_, err = f.svc.Payment.Reconcile(f.ctx, id, successResult("pi_1", total))
	assert.Equal(t, apperror.KindPaymentVerificationFailed, apperror.KindOf(err))

	out, err := f.svc.Payment.Reconcile(f.ctx, id, successResult("pi_2", total))
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusConfirmed, out.Booking.Status)
}

func TestInitiatePayment(t *testing.T) {
	f := newFixture(t)
	id := f.create(at(10, 0), at(11, 0))

	_, err := f.svc.Payment.InitiatePayment(f.ctx, f.owner, id)
	assert.Equal(t, apperror.KindUnauthorized, apperror.KindOf(err))

	f.gw.On("CreateOrder", mock.Anything, mock.Anything, "inr", mock.Anything).
		Return(nil, errors.New("stripe down")).Once()
	_, err = f.svc.Payment.InitiatePayment(f.ctx, f.user, id)
	assert.Equal(t, apperror.KindExternalService, apperror.KindOf(err))
	assert.Nil(t, f.payment(id))

	f.pay(id, "pi_ok")
	resp, err := f.svc.Payment.InitiatePayment(f.ctx, f.user, id)
	require.NoError(t, err)
	assert.True(t, resp.AlreadyPaid)
	assert.Empty(t, resp.ClientSecret)

	approval := f.addSpot(1, true)
	f.spot = approval
	pending := f.create(at(10, 0), at(11, 0))
	_, err = f.svc.Payment.InitiatePayment(f.ctx, f.user, pending)
	assert.Equal(t, apperror.KindInvalidStateTransition, apperror.KindOf(err))
}

func TestVerifyPayment(t *testing.T) {
	f := newFixture(t)
	id := f.create(at(10, 0), at(11, 0))
	f.initiate(id, "pi_v")
	total := f.booking(id).TotalAmount

	_, err := f.svc.Payment.VerifyPayment(f.ctx, f.user, id, &request.VerifyPaymentRequest{
		OrderID: "pi_v",
		Amount:  total.String(),
		Success: true,
	})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	req := &request.VerifyPaymentRequest{
		OrderID:   "pi_v",
		PaymentID: "ch_pi_v",
		Signature: "sig",
		Amount:    total.String(),
		Success:   true,
	}
	_, err = f.svc.Payment.VerifyPayment(f.ctx, f.owner, id, req)
	assert.Equal(t, apperror.KindUnauthorized, apperror.KindOf(err))

	f.gw.On("VerifySignature", mock.Anything, "pi_v", "ch_pi_v", "sig").Return(true, nil)
	f.gw.On("ProcessPayment", mock.Anything, "pi_v", "ch_pi_v").
		Return(&gateway.Capture{TransactionID: "ch_pi_v", Amount: total}, nil).Once()

	resp, err := f.svc.Payment.VerifyPayment(f.ctx, f.user, id, req)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusConfirmed, resp.Booking.Status)
	assert.Equal(t, entity.PaymentStatusCompleted, resp.Payment.Status)
}

func TestHandleWebhook(t *testing.T) {
	f := newFixture(t)
	id := f.create(at(10, 0), at(11, 0))
	f.initiate(id, "pi_w")
	total := f.booking(id).TotalAmount

	f.gw.On("ParseWebhook", []byte("bad"), "t=1").Return(nil, errors.New("signature mismatch")).Once()
	err := f.svc.Payment.HandleWebhook(f.ctx, []byte("bad"), "t=1")
	assert.Equal(t, apperror.KindPaymentVerificationFailed, apperror.KindOf(err))

	f.gw.On("ParseWebhook", []byte("ignored"), "t=2").Return(nil, nil).Once()
	assert.NoError(t, f.svc.Payment.HandleWebhook(f.ctx, []byte("ignored"), "t=2"))

	unknown := successResult("pi_unknown", total)
	f.gw.On("ParseWebhook", []byte("unknown"), "t=3").Return(&unknown, nil).Once()
	assert.NoError(t, f.svc.Payment.HandleWebhook(f.ctx, []byte("unknown"), "t=3"))

	ok := successResult("pi_w", total)
	f.gw.On("ParseWebhook", []byte("ok"), "t=4").Return(&ok, nil).Twice()
	f.gw.On("VerifySignature", mock.Anything, "pi_w", "ch_pi_w", "sig").Return(true, nil)
	f.gw.On("ProcessPayment", mock.Anything, "pi_w", "ch_pi_w").
		Return(&gateway.Capture{TransactionID: "ch_pi_w", Amount: total}, nil).Once()

	require.NoError(t, f.svc.Payment.HandleWebhook(f.ctx, []byte("ok"), "t=4"))
	assert.Equal(t, entity.BookingStatusConfirmed, f.booking(id).Status)

	// provider retries are absorbed
	require.NoError(t, f.svc.Payment.HandleWebhook(f.ctx, []byte("ok"), "t=4"))
	f.gw.AssertNumberOfCalls(t, "ProcessPayment", 1)
}

func TestRefund(t *testing.T) {
	f := newFixture(t)
	id := f.create(at(10, 0), at(11, 0))
	f.pay(id, "pi_ref")

	_, err := f.svc.Payment.Refund(f.ctx, f.user, id, &request.RefundRequest{Amount: "10", Reason: "x"})
	assert.Equal(t, apperror.KindUnauthorized, apperror.KindOf(err))

	_, err = f.svc.Payment.Refund(f.ctx, f.owner, id, &request.RefundRequest{Amount: "0", Reason: "x"})
	assert.Equal(t, apperror.KindInvalidRefund, apperror.KindOf(err))

	_, err = f.svc.Payment.Refund(f.ctx, f.owner, id, &request.RefundRequest{Amount: "abc", Reason: "x"})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	f.gw.On("ProcessRefund", mock.Anything, "ch_pi_ref", mock.Anything, mock.Anything).
		Return(&gateway.Refund{ID: "re"}, nil).Twice()

	p, err := f.svc.Payment.Refund(f.ctx, f.owner, id, &request.RefundRequest{Amount: "50", Reason: "noisy neighbour"})
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusPartialRefund, p.Status)
	assertAmount(t, "50", p.RefundAmount)

	_, err = f.svc.Payment.Refund(f.ctx, f.owner, id, &request.RefundRequest{Amount: "100", Reason: "too much"})
	assert.Equal(t, apperror.KindInvalidRefund, apperror.KindOf(err))

	p, err = f.svc.Payment.Refund(f.ctx, f.owner, id, &request.RefundRequest{Amount: "73", Reason: "rest"})
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusRefunded, p.Status)
	assertAmount(t, "123", p.RefundAmount)

	f.gw.AssertNumberOfCalls(t, "ProcessRefund", 2)
}

func TestRefund_UnpaidBooking(t *testing.T) {
	f := newFixture(t)
	id := f.create(at(10, 0), at(11, 0))

	_, err := f.svc.Payment.Refund(f.ctx, f.owner, id, &request.RefundRequest{Amount: "10", Reason: "x"})
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))

	f.initiate(id, "pi_u")
	_, err = f.svc.Payment.Refund(f.ctx, f.owner, id, &request.RefundRequest{Amount: "10", Reason: "x"})
	assert.Equal(t, apperror.KindInvalidStateTransition, apperror.KindOf(err))
}

func TestGetPayment(t *testing.T) {
	f := newFixture(t)
	id := f.create(at(10, 0), at(11, 0))

	_, err := f.svc.Payment.GetPayment(f.ctx, f.user, id)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))

	f.pay(id, "pi_g")
	p, err := f.svc.Payment.GetPayment(f.ctx, f.owner, id)
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusCompleted, p.Status)

	_, err = f.svc.Payment.GetPayment(f.ctx, uuid.New(), id)
	assert.Equal(t, apperror.KindUnauthorized, apperror.KindOf(err))
}

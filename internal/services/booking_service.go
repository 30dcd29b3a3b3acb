package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/google/uuid"
	"github.com/serenitycare/server/internal/gateway"
	"github.com/serenitycare/server/internal/helpers"
	"github.com/serenitycare/server/internal/models"
	"github.com/serenitycare/server/internal/notify"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrSlotUnavailable: the requested slot is already held by a pending or
	// paid booking. The client should pick another slot.
	ErrSlotUnavailable = errors.New("slot no longer available")
	// ErrInvalidSignature: the completion payload failed signature
	// verification. No state was changed.
	ErrInvalidSignature = errors.New("invalid payment signature")
	// ErrInvalidPayload: the webhook body could not be parsed.
	ErrInvalidPayload = errors.New("invalid webhook payload")
	// ErrRecoveryImpossible: a captured payment references no local booking
	// and the order notes are insufficient to reconstruct one. Needs manual
	// intervention.
	ErrRecoveryImpossible = errors.New("cannot recover booking from order metadata")
	// ErrBookingNotFound: the caller supplied a reservation id that does not
	// exist.
	ErrBookingNotFound = errors.New("booking not found")
	ErrTherapistNotFound = errors.New("therapist not found")
	ErrTherapistNotBookable = errors.New("therapist is not accepting bookings")
	// ErrGateway: a payment-gateway call failed. Retryable; the underlying
	// payment state is unknown, so the trigger must be retried rather than
	// dropped.
	ErrGateway = errors.New("payment gateway error")
)

// BookingService owns the reservation gatekeeper and the payment
// reconciliation state machine. It holds no in-process coordination state:
// correctness under concurrent triggers rests entirely on the store's unique
// slot index and status-preconditioned updates.
type BookingService struct {
	bookings   models.BookingRepo
	therapists models.TherapistRepo
	gw         gateway.Gateway
	notifier   notify.Notifier
	logger     *slog.Logger
}

func NewBookingService(bookings models.BookingRepo, therapists models.TherapistRepo, gw gateway.Gateway, notifier notify.Notifier, logger *slog.Logger) *BookingService {
	return &BookingService{
		bookings:   bookings,
		therapists: therapists,
		gw:         gw,
		notifier:   notifier,
		logger:     logger,
	}
}

type ReserveRequest struct {
	ClientName     string `json:"client_name" validate:"required"`
	ClientEmail    string `json:"client_email" validate:"required,email"`
	ClientPhone    string `json:"client_phone" validate:"required"`
	TherapistID    string `json:"therapist_id" validate:"required"`
	Date           string `json:"date" validate:"required"`
	TimeSlot       string `json:"time_slot" validate:"required"`
	ScreeningScore int    `json:"screening_score,omitempty"`
}

type ReserveResult struct {
	ReservationID string  `json:"reservation_id"`
	OrderID       string  `json:"order_id"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	KeyID         string  `json:"key_id"`
}

type VerifyRequest struct {
	OrderID       string `json:"razorpay_order_id" validate:"required"`
	PaymentID     string `json:"razorpay_payment_id" validate:"required"`
	Signature     string `json:"razorpay_signature" validate:"required"`
	ReservationID string `json:"reservation_id" validate:"required"`
}

// CompletionResult is the converged outcome of a completion trigger.
type CompletionResult struct {
	BookingID string               `json:"booking_id,omitempty"`
	Status    models.PaymentStatus `json:"status,omitempty"`
	Refunded  bool                 `json:"refunded,omitempty"`
	// Duplicate marks a trigger that arrived after the booking already
	// reached a terminal status; nothing was changed.
	Duplicate bool `json:"duplicate,omitempty"`
	// Ignored marks a webhook event type the reconciler does not act on.
	Ignored bool `json:"ignored,omitempty"`
}

// Reserve validates slot availability and stands up a PENDING booking plus a
// gateway order. The order notes carry the full reservation detail so the
// webhook path can recreate the booking if the insert below never happens.
func (bs *BookingService) Reserve(ctx context.Context, req ReserveRequest) (*ReserveResult, error) {
	if err := models.Validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid reservation request: %w", err)
	}

	therapistID, err := primitive.ObjectIDFromHex(req.TherapistID)
	if err != nil {
		return nil, ErrTherapistNotFound
	}
	day, err := helpers.ParseDay(req.Date)
	if err != nil {
		return nil, err
	}

	therapist, err := bs.therapists.GetTherapistByID(ctx, therapistID)
	if err != nil {
		if errors.Is(err, models.ErrNoTherapist) {
			return nil, ErrTherapistNotFound
		}
		return nil, err
	}
	if !therapist.Verified {
		return nil, ErrTherapistNotBookable
	}

	// Availability check. The unique slot index backstops the window between
	// this read and the insert below.
	existing, err := bs.bookings.FindBookingBySlot(ctx, therapistID, day, req.TimeSlot,
		[]models.PaymentStatus{models.StatusPending, models.StatusPaid}, nil)
	if err != nil && !errors.Is(err, models.ErrNoBooking) {
		return nil, err
	}
	if existing != nil {
		return nil, ErrSlotUnavailable
	}

	notes := gateway.OrderNotes{
		ClientName:  req.ClientName,
		ClientEmail: req.ClientEmail,
		ClientPhone: req.ClientPhone,
		TherapistID: req.TherapistID,
		Date:        day.Format(helpers.DateLayout),
		TimeSlot:    req.TimeSlot,
	}
	if req.ScreeningScore > 0 {
		notes.ScreeningScore = strconv.Itoa(req.ScreeningScore)
	}

	amountPaise := int64(math.Round(therapist.PricePerSession * 100))
	receipt := "rcpt_" + uuid.New().String()[:8]
	orderID, err := bs.gw.CreateOrder(ctx, amountPaise, receipt, notes.Map())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	booking := &models.Booking{
		TherapistID:    therapistID,
		Date:           day,
		TimeSlot:       req.TimeSlot,
		ClientName:     req.ClientName,
		ClientEmail:    req.ClientEmail,
		ClientPhone:    req.ClientPhone,
		PaymentStatus:  models.StatusPending,
		OrderID:        orderID,
		Amount:         therapist.PricePerSession,
		ScreeningScore: req.ScreeningScore,
		Source:         models.SourceDirect,
	}

	created, err := bs.bookings.CreateBooking(ctx, booking)
	if err != nil {
		if errors.Is(err, models.ErrSlotTaken) {
			bs.logger.Warn("reservation lost insert race",
				"therapist_id", req.TherapistID, "date", req.Date, "time_slot", req.TimeSlot, "order_id", orderID)
			return nil, ErrSlotUnavailable
		}
		// Order exists at the gateway with no local booking. If the client
		// pays anyway, the webhook path recovers it from the order notes.
		bs.logger.Error("booking insert failed after order creation, relying on webhook recovery",
			"order_id", orderID, "error", err)
		return nil, err
	}

	bs.logger.Info("reservation created",
		"booking_id", created.ID.Hex(), "order_id", orderID, "amount", created.Amount)

	return &ReserveResult{
		ReservationID: created.ID.Hex(),
		OrderID:       orderID,
		Amount:        created.Amount,
		Currency:      "INR",
		KeyID:         bs.gw.KeyID(),
	}, nil
}

// VerifyPayment is the client-initiated completion trigger. It is safe to
// call repeatedly and concurrently with webhook processing for the same
// payment: the first successful transition out of PENDING wins and every
// later call converges on that outcome.
func (bs *BookingService) VerifyPayment(ctx context.Context, req VerifyRequest) (*CompletionResult, error) {
	if err := models.Validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid verification request: %w", err)
	}

	if !bs.gw.VerifySignature(req.OrderID, req.PaymentID, req.Signature) {
		return nil, ErrInvalidSignature
	}

	if existing, err := bs.bookings.FindBookingByPaymentID(ctx, req.PaymentID); err == nil {
		return duplicateResult(existing), nil
	} else if !errors.Is(err, models.ErrNoBooking) {
		return nil, err
	}

	id, err := primitive.ObjectIDFromHex(req.ReservationID)
	if err != nil {
		return nil, ErrBookingNotFound
	}
	booking, err := bs.bookings.FindBookingByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNoBooking) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	if booking.PaymentStatus.Terminal() {
		return duplicateResult(booking), nil
	}

	return bs.finalize(ctx, booking, req.PaymentID, req.Signature)
}

// ProcessWebhook is the gateway-initiated completion trigger. Events other
// than payment.captured are acknowledged and ignored.
func (bs *BookingService) ProcessWebhook(ctx context.Context, body []byte, signature string) (*CompletionResult, error) {
	if signature == "" || !bs.gw.VerifyWebhookSignature(body, signature) {
		return nil, ErrInvalidSignature
	}

	event, err := gateway.ParseWebhookEvent(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if event.Event != gateway.EventPaymentCaptured {
		bs.logger.Debug("ignoring webhook event", "event", event.Event)
		return &CompletionResult{Ignored: true}, nil
	}

	payment := event.Payload.Payment.Entity
	if payment.ID == "" || payment.OrderID == "" {
		return nil, fmt.Errorf("%w: payment entity missing ids", ErrInvalidPayload)
	}

	if existing, err := bs.bookings.FindBookingByPaymentID(ctx, payment.ID); err == nil {
		bs.logger.Info("webhook already processed", "payment_id", payment.ID, "booking_id", existing.ID.Hex())
		return duplicateResult(existing), nil
	} else if !errors.Is(err, models.ErrNoBooking) {
		return nil, err
	}

	booking, err := bs.bookings.FindBookingByOrderID(ctx, payment.OrderID)
	if err != nil {
		if errors.Is(err, models.ErrNoBooking) {
			return bs.recoverFromNotes(ctx, payment)
		}
		return nil, err
	}
	if booking.PaymentStatus.Terminal() {
		return duplicateResult(booking), nil
	}

	return bs.finalize(ctx, booking, payment.ID, "")
}

// finalize drives a PENDING booking to its terminal status. The status write
// is the last state change on every path, so a crash before it leaves the
// booking retryable from either trigger.
func (bs *BookingService) finalize(ctx context.Context, booking *models.Booking, paymentID, signature string) (*CompletionResult, error) {
	conflict, err := bs.bookings.FindBookingBySlot(ctx, booking.TherapistID, booking.Date, booking.TimeSlot,
		[]models.PaymentStatus{models.StatusPaid}, &booking.ID)
	if err != nil && !errors.Is(err, models.ErrNoBooking) {
		return nil, err
	}
	if conflict != nil {
		return bs.refundLostRace(ctx, booking, paymentID, signature, conflict)
	}

	if err := bs.bookings.UpdateBookingStatus(ctx, booking.ID, models.StatusPending, models.StatusPaid, paymentID, signature); err != nil {
		if errors.Is(err, models.ErrStatusConflict) {
			// The other trigger finished first.
			return bs.currentResult(ctx, booking.ID)
		}
		return nil, err
	}

	bs.logger.Info("booking confirmed", "booking_id", booking.ID.Hex(), "order_id", booking.OrderID, "payment_id", paymentID)
	bs.sendConfirmation(ctx, booking)

	return &CompletionResult{BookingID: booking.ID.Hex(), Status: models.StatusPaid}, nil
}

// refundLostRace compensates the booking that lost the slot to an already
// paid one: refund the captured payment, mark the booking REFUNDED.
func (bs *BookingService) refundLostRace(ctx context.Context, booking *models.Booking, paymentID, signature string, winner *models.Booking) (*CompletionResult, error) {
	bs.logger.Warn("slot race lost, issuing refund",
		"booking_id", booking.ID.Hex(), "winner_id", winner.ID.Hex(), "payment_id", paymentID)

	refundID, err := bs.gw.IssueRefund(ctx, paymentID, 0)
	if err != nil {
		// A captured payment with no recorded outcome is a financial
		// integrity problem; the trigger must be retried.
		return nil, fmt.Errorf("%w: refund of payment %s: %v", ErrGateway, paymentID, err)
	}

	if err := bs.bookings.UpdateBookingStatus(ctx, booking.ID, models.StatusPending, models.StatusRefunded, paymentID, signature); err != nil {
		if errors.Is(err, models.ErrStatusConflict) {
			bs.logger.Error("refund issued but booking was finalized concurrently",
				"booking_id", booking.ID.Hex(), "refund_id", refundID)
			return bs.currentResult(ctx, booking.ID)
		}
		return nil, err
	}

	bs.logger.Info("booking refunded", "booking_id", booking.ID.Hex(), "refund_id", refundID)

	if err := bs.notifier.SendRefundNotice(notify.RefundDetails{
		ClientName:  booking.ClientName,
		ClientEmail: booking.ClientEmail,
		Amount:      booking.Amount,
		Reason:      "Slot was already booked by another client",
		PaymentID:   paymentID,
	}); err != nil {
		bs.logger.Error("refund email failed", "booking_id", booking.ID.Hex(), "error", err)
	}

	return &CompletionResult{BookingID: booking.ID.Hex(), Status: models.StatusRefunded, Refunded: true}, nil
}

// recoverFromNotes handles a captured payment whose order has no local
// booking: the reservation insert never happened, so the booking is
// synthesized from the order notes.
func (bs *BookingService) recoverFromNotes(ctx context.Context, payment gateway.PaymentEntity) (*CompletionResult, error) {
	notes := payment.Notes
	if err := notes.Validate(); err != nil {
		return nil, fmt.Errorf("%w: order %s: %v", ErrRecoveryImpossible, payment.OrderID, err)
	}
	therapistID, err := primitive.ObjectIDFromHex(notes.TherapistID)
	if err != nil {
		return nil, fmt.Errorf("%w: order %s carries invalid therapist id %q", ErrRecoveryImpossible, payment.OrderID, notes.TherapistID)
	}
	day, err := helpers.ParseDay(notes.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: order %s: %v", ErrRecoveryImpossible, payment.OrderID, err)
	}
	if _, err := bs.therapists.GetTherapistByID(ctx, therapistID); err != nil {
		if errors.Is(err, models.ErrNoTherapist) {
			return nil, fmt.Errorf("%w: order %s references unknown therapist %s", ErrRecoveryImpossible, payment.OrderID, notes.TherapistID)
		}
		return nil, err
	}

	score, _ := strconv.Atoi(notes.ScreeningScore)
	booking := &models.Booking{
		TherapistID:    therapistID,
		Date:           day,
		TimeSlot:       notes.TimeSlot,
		ClientName:     notes.ClientName,
		ClientEmail:    notes.ClientEmail,
		ClientPhone:    notes.ClientPhone,
		OrderID:        payment.OrderID,
		PaymentID:      payment.ID,
		Amount:         float64(payment.AmountPaise) / 100,
		ScreeningScore: score,
		Source:         models.SourceRecovered,
	}

	conflict, err := bs.bookings.FindBookingBySlot(ctx, therapistID, day, notes.TimeSlot,
		[]models.PaymentStatus{models.StatusPaid}, nil)
	if err != nil && !errors.Is(err, models.ErrNoBooking) {
		return nil, err
	}

	if conflict != nil {
		bs.logger.Warn("recovered payment lost slot race, issuing refund",
			"order_id", payment.OrderID, "winner_id", conflict.ID.Hex(), "payment_id", payment.ID)

		refundID, err := bs.gw.IssueRefund(ctx, payment.ID, 0)
		if err != nil {
			return nil, fmt.Errorf("%w: refund of payment %s: %v", ErrGateway, payment.ID, err)
		}

		// Persist the loser as REFUNDED so the audit trail covers recovered
		// payments too. REFUNDED sits outside the unique slot index.
		booking.PaymentStatus = models.StatusRefunded
		if _, err := bs.bookings.CreateBooking(ctx, booking); err != nil {
			if dup, derr := bs.bookings.FindBookingByOrderID(ctx, payment.OrderID); derr == nil {
				return duplicateResult(dup), nil
			}
			bs.logger.Error("failed to persist refunded recovered booking",
				"order_id", payment.OrderID, "refund_id", refundID, "error", err)
		}

		if err := bs.notifier.SendRefundNotice(notify.RefundDetails{
			ClientName:  notes.ClientName,
			ClientEmail: notes.ClientEmail,
			Amount:      booking.Amount,
			Reason:      "Slot was already booked by another client",
			PaymentID:   payment.ID,
		}); err != nil {
			bs.logger.Error("refund email failed", "order_id", payment.OrderID, "error", err)
		}

		return &CompletionResult{BookingID: booking.ID.Hex(), Status: models.StatusRefunded, Refunded: true}, nil
	}

	booking.PaymentStatus = models.StatusPaid
	created, err := bs.bookings.CreateBooking(ctx, booking)
	if err != nil {
		if errors.Is(err, models.ErrSlotTaken) {
			// Either a concurrent processor recovered this order first, or a
			// PENDING booking still holds the slot with no paid winner yet.
			// The former is a duplicate; the latter must be retried once the
			// pending booking resolves.
			if dup, derr := bs.bookings.FindBookingByOrderID(ctx, payment.OrderID); derr == nil {
				return duplicateResult(dup), nil
			}
			return nil, fmt.Errorf("slot for order %s still held by a pending booking, recovery deferred", payment.OrderID)
		}
		return nil, err
	}

	bs.logger.Info("booking recovered from webhook",
		"booking_id", created.ID.Hex(), "order_id", payment.OrderID, "payment_id", payment.ID)
	bs.sendConfirmation(ctx, created)

	return &CompletionResult{BookingID: created.ID.Hex(), Status: models.StatusPaid}, nil
}

func (bs *BookingService) currentResult(ctx context.Context, id primitive.ObjectID) (*CompletionResult, error) {
	current, err := bs.bookings.FindBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return duplicateResult(current), nil
}

func duplicateResult(b *models.Booking) *CompletionResult {
	return &CompletionResult{
		BookingID: b.ID.Hex(),
		Status:    b.PaymentStatus,
		Refunded:  b.PaymentStatus == models.StatusRefunded,
		Duplicate: true,
	}
}

func (bs *BookingService) sendConfirmation(ctx context.Context, booking *models.Booking) {
	therapistName := ""
	if t, err := bs.therapists.GetTherapistByID(ctx, booking.TherapistID); err == nil {
		therapistName = t.Name
	}
	if err := bs.notifier.SendBookingConfirmation(notify.ConfirmationDetails{
		ClientName:    booking.ClientName,
		ClientEmail:   booking.ClientEmail,
		TherapistName: therapistName,
		Date:          booking.Date.Format(helpers.DateLayout),
		TimeSlot:      booking.TimeSlot,
		Amount:        booking.Amount,
		BookingID:     booking.ID.Hex(),
	}); err != nil {
		bs.logger.Error("confirmation email failed", "booking_id", booking.ID.Hex(), "error", err)
	}
}

// ListBookings exposes the audit trail for the back office.
func (bs *BookingService) ListBookings(ctx context.Context, page, limit int) ([]*models.Booking, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return bs.bookings.ListBookings(ctx, (page-1)*limit, limit)
}

package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/serenitycare/server/internal/gateway"
	"github.com/serenitycare/server/internal/models"
	"github.com/serenitycare/server/internal/notify"
	"github.com/serenitycare/server/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeBookingRepo struct {
	mu                  sync.Mutex
	bookings            map[string]*models.Booking
	failCreateSlotTaken bool
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{bookings: map[string]*models.Booking{}}
}

func (f *fakeBookingRepo) seed(b *models.Booking) *models.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b.ID.IsZero() {
		b.ID = primitive.NewObjectID()
	}
	cp := *b
	f.bookings[b.ID.Hex()] = &cp
	return b
}

func (f *fakeBookingRepo) get(id primitive.ObjectID) *models.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.bookings[id.Hex()]; ok {
		cp := *b
		return &cp
	}
	return nil
}

func slotHeld(s models.PaymentStatus) bool {
	return s == models.StatusPending || s == models.StatusPaid
}

func (f *fakeBookingRepo) CreateBooking(ctx context.Context, b *models.Booking) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateSlotTaken {
		f.failCreateSlotTaken = false
		return nil, models.ErrSlotTaken
	}
	if err := b.BeforeCreate(); err != nil {
		return nil, err
	}
	for _, other := range f.bookings {
		if other.OrderID == b.OrderID {
			return nil, models.ErrSlotTaken
		}
		if slotHeld(other.PaymentStatus) && slotHeld(b.PaymentStatus) &&
			other.TherapistID == b.TherapistID && other.Date.Equal(b.Date) && other.TimeSlot == b.TimeSlot {
			return nil, models.ErrSlotTaken
		}
	}
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now
	cp := *b
	f.bookings[b.ID.Hex()] = &cp
	return b, nil
}

func (f *fakeBookingRepo) FindBookingByID(ctx context.Context, id primitive.ObjectID) (*models.Booking, error) {
	if b := f.get(id); b != nil {
		return b, nil
	}
	return nil, models.ErrNoBooking
}

func (f *fakeBookingRepo) FindBookingByOrderID(ctx context.Context, orderID string) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bookings {
		if b.OrderID == orderID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, models.ErrNoBooking
}

func (f *fakeBookingRepo) FindBookingByPaymentID(ctx context.Context, paymentID string) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bookings {
		if b.PaymentID == paymentID && b.PaymentID != "" {
			cp := *b
			return &cp, nil
		}
	}
	return nil, models.ErrNoBooking
}

func (f *fakeBookingRepo) FindBookingBySlot(ctx context.Context, therapistID primitive.ObjectID, day time.Time, timeSlot string, statuses []models.PaymentStatus, exclude *primitive.ObjectID) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bookings {
		if exclude != nil && b.ID == *exclude {
			continue
		}
		if b.TherapistID != therapistID || !b.Date.Equal(day) || b.TimeSlot != timeSlot {
			continue
		}
		for _, s := range statuses {
			if b.PaymentStatus == s {
				cp := *b
				return &cp, nil
			}
		}
	}
	return nil, models.ErrNoBooking
}

func (f *fakeBookingRepo) UpdateBookingStatus(ctx context.Context, id primitive.ObjectID, from, to models.PaymentStatus, paymentID, signature string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id.Hex()]
	if !ok || b.PaymentStatus != from {
		return models.ErrStatusConflict
	}
	b.PaymentStatus = to
	if paymentID != "" {
		b.PaymentID = paymentID
	}
	if signature != "" {
		b.Signature = signature
	}
	b.UpdatedAt = time.Now()
	return nil
}

func (f *fakeBookingRepo) BookedSlots(ctx context.Context, therapistID primitive.ObjectID, day time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var slots []string
	for _, b := range f.bookings {
		if b.TherapistID == therapistID && b.Date.Equal(day) && slotHeld(b.PaymentStatus) {
			slots = append(slots, b.TimeSlot)
		}
	}
	return slots, nil
}

func (f *fakeBookingRepo) ListBookings(ctx context.Context, offset, limit int) ([]*models.Booking, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []*models.Booking
	for _, b := range f.bookings {
		cp := *b
		all = append(all, &cp)
	}
	return all, int64(len(all)), nil
}

type fakeTherapistRepo struct {
	therapists map[primitive.ObjectID]*models.Therapist
}

func (f *fakeTherapistRepo) GetTherapistByID(ctx context.Context, id primitive.ObjectID) (*models.Therapist, error) {
	if t, ok := f.therapists[id]; ok {
		return t, nil
	}
	return nil, models.ErrNoTherapist
}

func (f *fakeTherapistRepo) ListTherapists(ctx context.Context, offset, limit int) ([]*models.Therapist, int64, error) {
	var all []*models.Therapist
	for _, t := range f.therapists {
		all = append(all, t)
	}
	return all, int64(len(all)), nil
}

type fakeGateway struct {
	mu         sync.Mutex
	orderSeq   int
	refunds    []string
	failRefund bool
}

func (g *fakeGateway) CreateOrder(ctx context.Context, amountPaise int64, receipt string, notes map[string]string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orderSeq++
	return fmt.Sprintf("order_fake_%d", g.orderSeq), nil
}

func (g *fakeGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return signature == "sig-valid"
}

func (g *fakeGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return signature == "whsig-valid"
}

func (g *fakeGateway) IssueRefund(ctx context.Context, paymentID string, amountPaise int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failRefund {
		return "", errors.New("gateway unreachable")
	}
	g.refunds = append(g.refunds, paymentID)
	return "rfnd_" + paymentID, nil
}

func (g *fakeGateway) KeyID() string { return "rzp_test_key" }

func (g *fakeGateway) refundCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.refunds)
}

type fakeNotifier struct {
	mu            sync.Mutex
	confirmations []notify.ConfirmationDetails
	refundNotices []notify.RefundDetails
}

func (n *fakeNotifier) SendBookingConfirmation(d notify.ConfirmationDetails) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmations = append(n.confirmations, d)
	return nil
}

func (n *fakeNotifier) SendRefundNotice(d notify.RefundDetails) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refundNotices = append(n.refundNotices, d)
	return nil
}

type fixture struct {
	svc        *services.BookingService
	bookings   *fakeBookingRepo
	therapists *fakeTherapistRepo
	gw         *fakeGateway
	notifier   *fakeNotifier
	therapist  *models.Therapist
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	therapist := &models.Therapist{
		ID:              primitive.NewObjectID(),
		Name:            "Dr. Meera Nair",
		Email:           "meera@example.com",
		Phone:           "9876543210",
		Specialty:       "CBT",
		PricePerSession: 1500,
		Verified:        true,
		Availability: []models.DayAvailability{
			{Day: "Friday", Slots: []string{"10:00 AM", "11:00 AM"}},
		},
	}
	bookings := newFakeBookingRepo()
	therapists := &fakeTherapistRepo{therapists: map[primitive.ObjectID]*models.Therapist{therapist.ID: therapist}}
	gw := &fakeGateway{}
	notifier := &fakeNotifier{}
	logger := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := services.NewBookingService(bookings, therapists, gw, notifier, logger)
	return &fixture{svc: svc, bookings: bookings, therapists: therapists, gw: gw, notifier: notifier, therapist: therapist}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func day(s string) time.Time {
	d, _ := time.ParseInLocation("2006-01-02", s, time.UTC)
	return d
}

func pendingBooking(f *fixture, orderID, timeSlot string) *models.Booking {
	return f.bookings.seed(&models.Booking{
		TherapistID:   f.therapist.ID,
		Date:          day("2025-01-10"),
		TimeSlot:      timeSlot,
		ClientName:    "Asha Rao",
		ClientEmail:   "asha@example.com",
		ClientPhone:   "9000000001",
		PaymentStatus: models.StatusPending,
		OrderID:       orderID,
		Amount:        1500,
		Source:        models.SourceDirect,
	})
}

func webhookBody(t *testing.T, orderID, paymentID string, amountPaise int64, notes *gateway.OrderNotes) []byte {
	t.Helper()
	entity := map[string]interface{}{
		"id":       paymentID,
		"order_id": orderID,
		"amount":   amountPaise,
	}
	if notes != nil {
		entity["notes"] = notes
	}
	body, err := json.Marshal(map[string]interface{}{
		"event": "payment.captured",
		"payload": map[string]interface{}{
			"payment": map[string]interface{}{"entity": entity},
		},
	})
	require.NoError(t, err)
	return body
}

func TestReserve_CreatesPendingBookingAndOrder(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Reserve(context.Background(), services.ReserveRequest{
		ClientName:  "Asha Rao",
		ClientEmail: "asha@example.com",
		ClientPhone: "9000000001",
		TherapistID: f.therapist.ID.Hex(),
		Date:        "2025-01-10",
		TimeSlot:    "10:00 AM",
	})

	require.NoError(t, err)
	assert.Equal(t, "order_fake_1", res.OrderID)
	assert.Equal(t, 1500.0, res.Amount)
	assert.Equal(t, "rzp_test_key", res.KeyID)

	id, err := primitive.ObjectIDFromHex(res.ReservationID)
	require.NoError(t, err)
	stored := f.bookings.get(id)
	require.NotNil(t, stored)
	assert.Equal(t, models.StatusPending, stored.PaymentStatus)
	assert.Equal(t, models.SourceDirect, stored.Source)
}

func TestReserve_SlotUnavailable(t *testing.T) {
	f := newFixture(t)
	pendingBooking(f, "order_existing", "10:00 AM")

	_, err := f.svc.Reserve(context.Background(), services.ReserveRequest{
		ClientName:  "Ravi Iyer",
		ClientEmail: "ravi@example.com",
		ClientPhone: "9000000002",
		TherapistID: f.therapist.ID.Hex(),
		Date:        "2025-01-10",
		TimeSlot:    "10:00 AM",
	})

	assert.ErrorIs(t, err, services.ErrSlotUnavailable)
}

func TestReserve_InsertRaceReportsSlotUnavailable(t *testing.T) {
	f := newFixture(t)
	// Availability check passes, but the unique index rejects the insert.
	f.bookings.failCreateSlotTaken = true

	_, err := f.svc.Reserve(context.Background(), services.ReserveRequest{
		ClientName:  "Ravi Iyer",
		ClientEmail: "ravi@example.com",
		ClientPhone: "9000000002",
		TherapistID: f.therapist.ID.Hex(),
		Date:        "2025-01-10",
		TimeSlot:    "10:00 AM",
	})

	assert.ErrorIs(t, err, services.ErrSlotUnavailable)
}

func TestReserve_UnknownTherapist(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Reserve(context.Background(), services.ReserveRequest{
		ClientName:  "Asha Rao",
		ClientEmail: "asha@example.com",
		ClientPhone: "9000000001",
		TherapistID: primitive.NewObjectID().Hex(),
		Date:        "2025-01-10",
		TimeSlot:    "10:00 AM",
	})

	assert.ErrorIs(t, err, services.ErrTherapistNotFound)
}

func TestVerifyPayment_HappyPath(t *testing.T) {
	f := newFixture(t)
	b := pendingBooking(f, "ord_1", "10:00 AM")

	res, err := f.svc.VerifyPayment(context.Background(), services.VerifyRequest{
		OrderID:       "ord_1",
		PaymentID:     "pay_1",
		Signature:     "sig-valid",
		ReservationID: b.ID.Hex(),
	})

	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, res.Status)
	assert.False(t, res.Refunded)

	stored := f.bookings.get(b.ID)
	assert.Equal(t, models.StatusPaid, stored.PaymentStatus)
	assert.Equal(t, "pay_1", stored.PaymentID)
	assert.Equal(t, "sig-valid", stored.Signature)
	assert.Len(t, f.notifier.confirmations, 1)
	assert.Equal(t, 0, f.gw.refundCount())
}

func TestVerifyPayment_InvalidSignature(t *testing.T) {
	f := newFixture(t)
	b := pendingBooking(f, "ord_1", "10:00 AM")

	_, err := f.svc.VerifyPayment(context.Background(), services.VerifyRequest{
		OrderID:       "ord_1",
		PaymentID:     "pay_1",
		Signature:     "sig-forged",
		ReservationID: b.ID.Hex(),
	})

	assert.ErrorIs(t, err, services.ErrInvalidSignature)
	assert.Equal(t, models.StatusPending, f.bookings.get(b.ID).PaymentStatus)
}

func TestVerifyPayment_Idempotent(t *testing.T) {
	f := newFixture(t)
	b := pendingBooking(f, "ord_1", "10:00 AM")

	req := services.VerifyRequest{
		OrderID:       "ord_1",
		PaymentID:     "pay_1",
		Signature:     "sig-valid",
		ReservationID: b.ID.Hex(),
	}

	first, err := f.svc.VerifyPayment(context.Background(), req)
	require.NoError(t, err)
	second, err := f.svc.VerifyPayment(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, models.StatusPaid, first.Status)
	assert.Equal(t, models.StatusPaid, second.Status)
	assert.True(t, second.Duplicate)
	assert.Len(t, f.notifier.confirmations, 1)
	assert.Equal(t, 0, f.gw.refundCount())
}

func TestVerifyPayment_BookingNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.VerifyPayment(context.Background(), services.VerifyRequest{
		OrderID:       "ord_x",
		PaymentID:     "pay_x",
		Signature:     "sig-valid",
		ReservationID: primitive.NewObjectID().Hex(),
	})

	assert.ErrorIs(t, err, services.ErrBookingNotFound)
}

func TestVerifyPayment_LostRaceIsRefunded(t *testing.T) {
	f := newFixture(t)
	winner := pendingBooking(f, "ord_1", "10:00 AM")
	loser := pendingBooking(f, "ord_2", "10:00 AM")

	// Winner confirms first.
	_, err := f.svc.VerifyPayment(context.Background(), services.VerifyRequest{
		OrderID: "ord_1", PaymentID: "pay_1", Signature: "sig-valid", ReservationID: winner.ID.Hex(),
	})
	require.NoError(t, err)

	res, err := f.svc.VerifyPayment(context.Background(), services.VerifyRequest{
		OrderID: "ord_2", PaymentID: "pay_2", Signature: "sig-valid", ReservationID: loser.ID.Hex(),
	})

	require.NoError(t, err)
	assert.Equal(t, models.StatusRefunded, res.Status)
	assert.True(t, res.Refunded)
	// The refund targets the loser's own captured payment.
	assert.Equal(t, []string{"pay_2"}, f.gw.refunds)
	assert.Equal(t, models.StatusPaid, f.bookings.get(winner.ID).PaymentStatus)
	assert.Equal(t, models.StatusRefunded, f.bookings.get(loser.ID).PaymentStatus)
	assert.Len(t, f.notifier.refundNotices, 1)
}

func TestVerifyPayment_RefundFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	winner := pendingBooking(f, "ord_1", "10:00 AM")
	loser := pendingBooking(f, "ord_2", "10:00 AM")

	_, err := f.svc.VerifyPayment(context.Background(), services.VerifyRequest{
		OrderID: "ord_1", PaymentID: "pay_1", Signature: "sig-valid", ReservationID: winner.ID.Hex(),
	})
	require.NoError(t, err)

	f.gw.failRefund = true
	_, err = f.svc.VerifyPayment(context.Background(), services.VerifyRequest{
		OrderID: "ord_2", PaymentID: "pay_2", Signature: "sig-valid", ReservationID: loser.ID.Hex(),
	})

	assert.ErrorIs(t, err, services.ErrGateway)
	// Still PENDING: the trigger can be retried once the gateway recovers.
	assert.Equal(t, models.StatusPending, f.bookings.get(loser.ID).PaymentStatus)

	f.gw.failRefund = false
	res, err := f.svc.VerifyPayment(context.Background(), services.VerifyRequest{
		OrderID: "ord_2", PaymentID: "pay_2", Signature: "sig-valid", ReservationID: loser.ID.Hex(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRefunded, res.Status)
}

func TestProcessWebhook_ConfirmsPendingBooking(t *testing.T) {
	f := newFixture(t)
	b := pendingBooking(f, "ord_1", "10:00 AM")

	res, err := f.svc.ProcessWebhook(context.Background(), webhookBody(t, "ord_1", "pay_1", 150000, nil), "whsig-valid")

	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, res.Status)
	assert.Equal(t, models.StatusPaid, f.bookings.get(b.ID).PaymentStatus)
	assert.Equal(t, "pay_1", f.bookings.get(b.ID).PaymentID)
}

func TestProcessWebhook_InvalidSignature(t *testing.T) {
	f := newFixture(t)
	pendingBooking(f, "ord_1", "10:00 AM")

	_, err := f.svc.ProcessWebhook(context.Background(), webhookBody(t, "ord_1", "pay_1", 150000, nil), "whsig-forged")

	assert.ErrorIs(t, err, services.ErrInvalidSignature)
}

func TestProcessWebhook_IgnoresOtherEvents(t *testing.T) {
	f := newFixture(t)

	body := []byte(`{"event":"payment.failed","payload":{}}`)
	res, err := f.svc.ProcessWebhook(context.Background(), body, "whsig-valid")

	require.NoError(t, err)
	assert.True(t, res.Ignored)
}

func TestProcessWebhook_DuplicateDelivery(t *testing.T) {
	f := newFixture(t)
	pendingBooking(f, "ord_1", "10:00 AM")
	body := webhookBody(t, "ord_1", "pay_1", 150000, nil)

	first, err := f.svc.ProcessWebhook(context.Background(), body, "whsig-valid")
	require.NoError(t, err)
	second, err := f.svc.ProcessWebhook(context.Background(), body, "whsig-valid")
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.True(t, second.Duplicate)
	assert.Len(t, f.notifier.confirmations, 1)
	assert.Equal(t, 0, f.gw.refundCount())
}

func TestProcessWebhook_RaceResolution(t *testing.T) {
	f := newFixture(t)
	r1 := pendingBooking(f, "ord_1", "10:00 AM")
	r2 := pendingBooking(f, "ord_2", "10:00 AM")

	first, err := f.svc.ProcessWebhook(context.Background(), webhookBody(t, "ord_1", "pay_1", 150000, nil), "whsig-valid")
	require.NoError(t, err)
	second, err := f.svc.ProcessWebhook(context.Background(), webhookBody(t, "ord_2", "pay_2", 150000, nil), "whsig-valid")
	require.NoError(t, err)

	assert.Equal(t, models.StatusPaid, first.Status)
	assert.Equal(t, models.StatusRefunded, second.Status)
	assert.Equal(t, models.StatusPaid, f.bookings.get(r1.ID).PaymentStatus)
	assert.Equal(t, models.StatusRefunded, f.bookings.get(r2.ID).PaymentStatus)
	assert.Equal(t, []string{"pay_2"}, f.gw.refunds)
}

func TestProcessWebhook_RecoversMissingBooking(t *testing.T) {
	f := newFixture(t)
	notes := &gateway.OrderNotes{
		ClientName:  "Asha Rao",
		ClientEmail: "asha@example.com",
		ClientPhone: "9000000001",
		TherapistID: f.therapist.ID.Hex(),
		Date:        "2025-01-10",
		TimeSlot:    "10:00 AM",
	}

	res, err := f.svc.ProcessWebhook(context.Background(), webhookBody(t, "ord_ghost", "pay_ghost", 150000, notes), "whsig-valid")

	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, res.Status)

	recovered, err := f.bookings.FindBookingByOrderID(context.Background(), "ord_ghost")
	require.NoError(t, err)
	assert.Equal(t, models.SourceRecovered, recovered.Source)
	assert.Equal(t, models.StatusPaid, recovered.PaymentStatus)
	assert.Equal(t, "pay_ghost", recovered.PaymentID)
	assert.Equal(t, 1500.0, recovered.Amount)
	assert.Len(t, f.notifier.confirmations, 1)
}

func TestProcessWebhook_RecoveryLostRace(t *testing.T) {
	f := newFixture(t)
	winner := pendingBooking(f, "ord_1", "10:00 AM")
	_, err := f.svc.ProcessWebhook(context.Background(), webhookBody(t, "ord_1", "pay_1", 150000, nil), "whsig-valid")
	require.NoError(t, err)

	notes := &gateway.OrderNotes{
		ClientName:  "Ravi Iyer",
		ClientEmail: "ravi@example.com",
		ClientPhone: "9000000002",
		TherapistID: f.therapist.ID.Hex(),
		Date:        "2025-01-10",
		TimeSlot:    "10:00 AM",
	}
	res, err := f.svc.ProcessWebhook(context.Background(), webhookBody(t, "ord_ghost", "pay_ghost", 150000, notes), "whsig-valid")

	require.NoError(t, err)
	assert.Equal(t, models.StatusRefunded, res.Status)
	assert.Equal(t, []string{"pay_ghost"}, f.gw.refunds)
	assert.Equal(t, models.StatusPaid, f.bookings.get(winner.ID).PaymentStatus)

	recovered, err := f.bookings.FindBookingByOrderID(context.Background(), "ord_ghost")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRefunded, recovered.PaymentStatus)
	assert.Equal(t, models.SourceRecovered, recovered.Source)
	assert.Len(t, f.notifier.refundNotices, 1)
}

func TestProcessWebhook_RecoveryImpossible(t *testing.T) {
	f := newFixture(t)
	notes := &gateway.OrderNotes{
		ClientName: "Asha Rao",
		// Email, phone, therapist, date, slot all missing.
	}

	_, err := f.svc.ProcessWebhook(context.Background(), webhookBody(t, "ord_ghost", "pay_ghost", 150000, notes), "whsig-valid")

	assert.ErrorIs(t, err, services.ErrRecoveryImpossible)
}

func TestMonotonicity_TerminalStatusNeverChanges(t *testing.T) {
	f := newFixture(t)
	b := pendingBooking(f, "ord_1", "10:00 AM")

	_, err := f.svc.ProcessWebhook(context.Background(), webhookBody(t, "ord_1", "pay_1", 150000, nil), "whsig-valid")
	require.NoError(t, err)

	// A later trigger with a different payment id for the same order must
	// not move the booking out of PAID.
	res, err := f.svc.ProcessWebhook(context.Background(), webhookBody(t, "ord_1", "pay_other", 150000, nil), "whsig-valid")
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, models.StatusPaid, res.Status)
	assert.Equal(t, models.StatusPaid, f.bookings.get(b.ID).PaymentStatus)
	assert.Equal(t, "pay_1", f.bookings.get(b.ID).PaymentID)
}

func TestConcurrentVerifyAndWebhook_OnlyOneTransition(t *testing.T) {
	f := newFixture(t)
	b := pendingBooking(f, "ord_1", "10:00 AM")

	var wg sync.WaitGroup
	results := make([]*services.CompletionResult, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0], _ = f.svc.VerifyPayment(context.Background(), services.VerifyRequest{
			OrderID: "ord_1", PaymentID: "pay_1", Signature: "sig-valid", ReservationID: b.ID.Hex(),
		})
	}()
	go func() {
		defer wg.Done()
		results[1], _ = f.svc.ProcessWebhook(context.Background(), webhookBody(t, "ord_1", "pay_1", 150000, nil), "whsig-valid")
	}()
	wg.Wait()

	assert.Equal(t, models.StatusPaid, f.bookings.get(b.ID).PaymentStatus)
	for _, res := range results {
		if res != nil {
			assert.Equal(t, models.StatusPaid, res.Status)
		}
	}
	assert.Equal(t, 0, f.gw.refundCount())
}

package models

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	BookingDbName  = "serenity"
	BookingColName = "bookings"
)

type PaymentStatus string

const (
	StatusPending  PaymentStatus = "PENDING"
	StatusPaid     PaymentStatus = "PAID"
	StatusRefunded PaymentStatus = "REFUNDED"
	StatusFailed   PaymentStatus = "FAILED"
)

// Terminal reports whether a booking in this status can never change again.
func (s PaymentStatus) Terminal() bool {
	return s == StatusPaid || s == StatusRefunded || s == StatusFailed
}

type BookingSource string

const (
	SourceDirect    BookingSource = "DIRECT"
	SourceRecovered BookingSource = "RECOVERED"
)

var (
	// ErrNoBooking is returned by lookups that matched no document.
	ErrNoBooking = errors.New("booking not found")
	// ErrSlotTaken is returned when an insert hits the unique slot index.
	ErrSlotTaken = errors.New("slot already held by another booking")
	// ErrStatusConflict is returned when a status update's precondition on
	// the previous status did not match the stored document.
	ErrStatusConflict = errors.New("booking status changed concurrently")
)

// Booking is a client's claim on a therapist time slot. It is created PENDING
// by the reservation flow and moved to exactly one terminal status by the
// payment reconciliation flow. Bookings are never deleted.
type Booking struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TherapistID primitive.ObjectID `bson:"therapist_id" json:"therapist_id" validate:"required"`
	Date        time.Time          `bson:"date" json:"date" validate:"required"`
	TimeSlot    string             `bson:"time_slot" json:"time_slot" validate:"required"`

	ClientName  string `bson:"client_name" json:"client_name" validate:"required"`
	ClientEmail string `bson:"client_email" json:"client_email" validate:"required,email"`
	ClientPhone string `bson:"client_phone" json:"client_phone" validate:"required"`

	PaymentStatus PaymentStatus `bson:"payment_status" json:"payment_status"`
	// OrderID is the payment-gateway order backing this booking. Set at
	// creation, immutable, unique across all bookings.
	OrderID   string  `bson:"order_id" json:"order_id" validate:"required"`
	PaymentID string  `bson:"payment_id,omitempty" json:"payment_id,omitempty"`
	Signature string  `bson:"signature,omitempty" json:"signature,omitempty"`
	Amount    float64 `bson:"amount" json:"amount"`

	// ScreeningScore is the optional intake-questionnaire score captured at
	// reservation time and carried through the gateway order notes.
	ScreeningScore int `bson:"screening_score,omitempty" json:"screening_score,omitempty"`

	Source    BookingSource `bson:"source" json:"source"`
	CreatedAt time.Time     `bson:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt time.Time     `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

func (b *Booking) BeforeCreate() error {
	if b.ID.IsZero() {
		b.ID = primitive.NewObjectID()
	}
	if b.PaymentStatus == "" {
		b.PaymentStatus = StatusPending
	}
	if b.Source == "" {
		b.Source = SourceDirect
	}
	return Validate.Struct(b)
}

type BookingRepo interface {
	CreateBooking(ctx context.Context, booking *Booking) (*Booking, error)
	FindBookingByID(ctx context.Context, id primitive.ObjectID) (*Booking, error)
	FindBookingByOrderID(ctx context.Context, orderID string) (*Booking, error)
	FindBookingByPaymentID(ctx context.Context, paymentID string) (*Booking, error)
	// FindBookingBySlot returns a booking holding the slot in one of the given
	// statuses, excluding the booking with the given id when non-nil.
	FindBookingBySlot(ctx context.Context, therapistID primitive.ObjectID, day time.Time, timeSlot string, statuses []PaymentStatus, exclude *primitive.ObjectID) (*Booking, error)
	// UpdateBookingStatus transitions a booking from one status to another,
	// recording the gateway payment id and signature. The previous status is a
	// precondition; a mismatch returns ErrStatusConflict.
	UpdateBookingStatus(ctx context.Context, id primitive.ObjectID, from, to PaymentStatus, paymentID, signature string) error
	BookedSlots(ctx context.Context, therapistID primitive.ObjectID, day time.Time) ([]string, error)
	ListBookings(ctx context.Context, offset, limit int) ([]*Booking, int64, error)
}

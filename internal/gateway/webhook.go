package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// EventPaymentCaptured is the only webhook event the reconciler acts on.
// Everything else is acknowledged and ignored.
const EventPaymentCaptured = "payment.captured"

var validate = validator.New()

// WebhookEvent is the gateway's webhook envelope. The Event field tags the
// payload variant; only payment events populate Payload.Payment.
type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// PaymentEntity is the captured-payment variant of the webhook payload.
type PaymentEntity struct {
	ID          string     `json:"id"`
	OrderID     string     `json:"order_id"`
	AmountPaise int64      `json:"amount"`
	Notes       OrderNotes `json:"notes"`
}

// OrderNotes is the metadata embedded into a gateway order at reservation
// time and read back during recovery. Field names are a wire contract: the
// webhook path reconstructs lost reservations from them.
type OrderNotes struct {
	ClientName     string `json:"clientName" validate:"required"`
	ClientEmail    string `json:"clientEmail" validate:"required,email"`
	ClientPhone    string `json:"clientPhone" validate:"required"`
	TherapistID    string `json:"therapistId" validate:"required"`
	Date           string `json:"date" validate:"required"`
	TimeSlot       string `json:"timeSlot" validate:"required"`
	ScreeningScore string `json:"screeningScore,omitempty"`
}

// Validate reports whether the notes carry every field needed to reconstruct
// a reservation.
func (n OrderNotes) Validate() error {
	if err := validate.Struct(n); err != nil {
		return fmt.Errorf("incomplete order notes: %v", err)
	}
	return nil
}

// Map renders the notes in the form the order-creation API expects.
func (n OrderNotes) Map() map[string]string {
	m := map[string]string{
		"clientName":  n.ClientName,
		"clientEmail": n.ClientEmail,
		"clientPhone": n.ClientPhone,
		"therapistId": n.TherapistID,
		"date":        n.Date,
		"timeSlot":    n.TimeSlot,
	}
	if n.ScreeningScore != "" {
		m["screeningScore"] = n.ScreeningScore
	}
	return m
}

// ParseWebhookEvent decodes a raw webhook body. Callers must verify the
// body's signature before trusting anything in the result.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("unparseable webhook payload: %v", err)
	}
	if event.Event == "" {
		return nil, fmt.Errorf("webhook payload missing event type")
	}
	return &event, nil
}

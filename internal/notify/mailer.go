package notify

import (
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"
)

// ConfirmationDetails carries everything the booking-confirmed mail needs.
type ConfirmationDetails struct {
	ClientName    string
	ClientEmail   string
	TherapistName string
	Date          string
	TimeSlot      string
	Amount        float64
	BookingID     string
}

// RefundDetails carries everything the refund-notice mail needs.
type RefundDetails struct {
	ClientName  string
	ClientEmail string
	Amount      float64
	Reason      string
	PaymentID   string
}

// Notifier is the outbound side channel for booking outcomes. Failures are
// the caller's to log; they must never affect a booking's status.
type Notifier interface {
	SendBookingConfirmation(details ConfirmationDetails) error
	SendRefundNotice(details RefundDetails) error
}

// Mailer sends booking mail over SMTP. With no host configured it degrades to
// logging, so local environments work without a mail account.
type Mailer struct {
	host   string
	port   int
	user   string
	pass   string
	from   string
	logger *slog.Logger
}

func NewMailer(host string, port int, user, pass, from string, logger *slog.Logger) *Mailer {
	return &Mailer{
		host:   host,
		port:   port,
		user:   user,
		pass:   pass,
		from:   from,
		logger: logger,
	}
}

func (m *Mailer) SendBookingConfirmation(details ConfirmationDetails) error {
	subject := "Booking Confirmed - Therapy Session"
	body := fmt.Sprintf(
		"Dear %s,\n\nYour session has been confirmed.\n\nTherapist: %s\nDate: %s\nTime: %s\nAmount Paid: INR %.2f\nBooking ID: %s\n\nYou will receive a meeting link 24 hours before your appointment.\n",
		details.ClientName, details.TherapistName, details.Date, details.TimeSlot, details.Amount, details.BookingID,
	)
	return m.send(details.ClientEmail, subject, body)
}

func (m *Mailer) SendRefundNotice(details RefundDetails) error {
	subject := "Refund Initiated - Therapy Session"
	body := fmt.Sprintf(
		"Dear %s,\n\nYour payment of INR %.2f is being refunded.\nReason: %s\nReference: %s\n\nThe amount should reach your account within 5-7 business days.\n",
		details.ClientName, details.Amount, details.Reason, details.PaymentID,
	)
	return m.send(details.ClientEmail, subject, body)
}

func (m *Mailer) send(to, subject, body string) error {
	if m.host == "" {
		m.logger.Info("SMTP not configured, skipping email", "to", to, "subject", subject)
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	d := gomail.NewDialer(m.host, m.port, m.user, m.pass)
	if err := d.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email to %s: %v", to, err)
	}
	return nil
}

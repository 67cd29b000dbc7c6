package services

import (
	"context"

	"asso-manager/internal/adapters/persistence/models"
)

// Message is one outbound email
type Message struct {
	To      string
	ToName  string
	Subject string
	HTML    string
}

// Mailer delivers a message through a concrete transport (Brevo, SMTP, log)
type Mailer interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Notifier sends the association's emails.
// Implementations bound every call with a timeout; callers treat errors as non-fatal.
type Notifier interface {
	SendWelcome(ctx context.Context, member *models.Member) error
	SendPasswordReset(ctx context.Context, member *models.Member, token string) error
	SendPasswordChanged(ctx context.Context, member *models.Member) error
	SendRegistrationConfirmation(ctx context.Context, member *models.Member, event *models.Event) error
	SendDuesReminder(ctx context.Context, member *models.Member, dues *models.Dues, daysRemaining int) error
	SendEventReminder(ctx context.Context, member *models.Member, event *models.Event) error
	SendMonthlyReport(ctx context.Context, admin *models.Member, report *MonthlyReport) error
}

package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"asso-manager/internal/adapters/persistence/models"
	"asso-manager/internal/core/domain"

	"github.com/sony/gobreaker"
)

// NotificationConfig configures NotificationService
type NotificationConfig struct {
	AssociationName string
	FrontendURL     string
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
	Location        *time.Location
}

// NotificationService builds the association emails and sends them through a Mailer.
// Every send is bounded by a timeout and guarded by a circuit breaker.
type NotificationService struct {
	mailer      Mailer
	breaker     *gobreaker.CircuitBreaker
	timeout     time.Duration
	assoName    string
	frontendURL string
	loc         *time.Location
	logger      *slog.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(mailer Mailer, cfg NotificationConfig, logger *slog.Logger) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mailer-" + mailer.Name(),
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("mail circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &NotificationService{
		mailer:      mailer,
		breaker:     breaker,
		timeout:     cfg.Timeout,
		assoName:    cfg.AssociationName,
		frontendURL: strings.TrimRight(cfg.FrontendURL, "/"),
		loc:         cfg.Location,
		logger:      logger,
	}
}

// IsEnabled reports whether mails leave the process
func (s *NotificationService) IsEnabled() bool {
	return s.mailer.Name() != "log"
}

// Send delivers msg, waiting at most the configured timeout.
// A timeout or an open breaker yields domain.ErrServiceUnavailable.
func (s *NotificationService) Send(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := s.breaker.Execute(func() (interface{}, error) {
			return nil, s.mailer.Send(ctx, msg)
		})
		done <- err
	}()

	select {
	case err := <-done:
		switch {
		case err == nil:
			return nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return fmt.Errorf("%w: mail transport circuit open", domain.ErrServiceUnavailable)
		case errors.Is(err, context.DeadlineExceeded):
			return fmt.Errorf("%w: mail send timed out after %s", domain.ErrServiceUnavailable, s.timeout)
		}
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: mail send timed out after %s", domain.ErrServiceUnavailable, s.timeout)
		}
		return ctx.Err()
	}
}

func (s *NotificationService) formatDate(t time.Time) string {
	return t.In(s.loc).Format("02/01/2006")
}

func (s *NotificationService) formatDateTime(t time.Time) string {
	return t.In(s.loc).Format("02/01/2006 à 15h04")
}

func (s *NotificationService) wrap(greeting string, paragraphs ...string) string {
	var b strings.Builder
	b.WriteString("<p>Bonjour " + html.EscapeString(greeting) + ",</p>")
	for _, p := range paragraphs {
		b.WriteString("<p>" + p + "</p>")
	}
	b.WriteString("<p>" + html.EscapeString(s.assoName) + "</p>")
	return b.String()
}

// SendWelcome sends the welcome email to a new member
func (s *NotificationService) SendWelcome(ctx context.Context, member *models.Member) error {
	return s.Send(ctx, Message{
		To:      member.Email,
		ToName:  member.FullName(),
		Subject: "Bienvenue dans notre association !",
		HTML: s.wrap(member.FirstName,
			fmt.Sprintf("Votre compte membre a été créé le %s.", s.formatDate(member.CreatedAt)),
			fmt.Sprintf(`Connectez-vous sur <a href="%s/login">votre espace</a>.`, html.EscapeString(s.frontendURL)),
		),
	})
}

// SendPasswordReset mails the reset link carrying the clear token
func (s *NotificationService) SendPasswordReset(ctx context.Context, member *models.Member, token string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", s.frontendURL, token)
	return s.Send(ctx, Message{
		To:      member.Email,
		ToName:  member.FullName(),
		Subject: "Réinitialisation de votre mot de passe",
		HTML: s.wrap(member.FirstName,
			fmt.Sprintf(`Pour choisir un nouveau mot de passe, suivez <a href="%s">ce lien</a>.`, html.EscapeString(link)),
			"Ce lien expire dans 1 heure. Ignorez ce message si vous n'êtes pas à l'origine de la demande.",
		),
	})
}

// SendPasswordChanged confirms a password change
func (s *NotificationService) SendPasswordChanged(ctx context.Context, member *models.Member) error {
	return s.Send(ctx, Message{
		To:      member.Email,
		ToName:  member.FullName(),
		Subject: "Votre mot de passe a été modifié",
		HTML: s.wrap(member.FirstName,
			fmt.Sprintf("Votre mot de passe a été modifié le %s.", s.formatDate(member.UpdatedAt)),
			"Si vous n'êtes pas à l'origine de ce changement, contactez un administrateur.",
		),
	})
}

// SendRegistrationConfirmation confirms a seat on an event
func (s *NotificationService) SendRegistrationConfirmation(ctx context.Context, member *models.Member, event *models.Event) error {
	return s.Send(ctx, Message{
		To:      member.Email,
		ToName:  member.FullName(),
		Subject: "Confirmation d'inscription - " + event.Title,
		HTML: s.wrap(member.FirstName,
			fmt.Sprintf("Votre inscription à <strong>%s</strong> est confirmée.", html.EscapeString(event.Title)),
			fmt.Sprintf("Rendez-vous le %s, %s.", s.formatDateTime(event.StartsAt), html.EscapeString(event.Location)),
		),
	})
}

// SendDuesReminder warns a member that their dues expire soon
func (s *NotificationService) SendDuesReminder(ctx context.Context, member *models.Member, dues *models.Dues, daysRemaining int) error {
	subject := "Rappel : Votre cotisation expire bientôt"
	if daysRemaining > 0 {
		subject = fmt.Sprintf("Rappel : Votre cotisation expire dans %d jours", daysRemaining)
	}
	return s.Send(ctx, Message{
		To:      member.Email,
		ToName:  member.FullName(),
		Subject: subject,
		HTML: s.wrap(member.FirstName,
			fmt.Sprintf("Votre cotisation de %s € expire le %s.", dues.Amount.StringFixed(2), s.formatDate(dues.ExpiresAt)),
			"Pensez à la renouveler pour continuer à participer à la vie de l'association.",
		),
	})
}

// SendEventReminder reminds a participant of tomorrow's event
func (s *NotificationService) SendEventReminder(ctx context.Context, member *models.Member, event *models.Event) error {
	return s.Send(ctx, Message{
		To:      member.Email,
		ToName:  member.FullName(),
		Subject: fmt.Sprintf("Rappel - %s demain", event.Title),
		HTML: s.wrap(member.FirstName,
			fmt.Sprintf("Nous vous attendons pour <strong>%s</strong> le %s.", html.EscapeString(event.Title), s.formatDateTime(event.StartsAt)),
			"Lieu : "+html.EscapeString(event.Location),
		),
	})
}

// SendMonthlyReport sends the monthly statistics to an administrator
func (s *NotificationService) SendMonthlyReport(ctx context.Context, admin *models.Member, report *MonthlyReport) error {
	return s.Send(ctx, Message{
		To:      admin.Email,
		ToName:  admin.FullName(),
		Subject: "Rapport mensuel - " + report.Month,
		HTML: s.wrap(admin.FirstName,
			fmt.Sprintf("Membres : %d (dont %d nouveaux le mois dernier).", report.Members.Total, report.NewMembers),
			fmt.Sprintf("Cotisations à jour : %d, expirées : %d, en attente : %d.",
				report.Dues.UpToDate, report.Dues.Expired, report.Dues.Pending),
			fmt.Sprintf("Encaissé le mois dernier : %d cotisations pour %s €.",
				report.PaidLastMonth.Count, report.PaidLastMonth.Amount.StringFixed(2)),
			fmt.Sprintf("Événements à venir : %d, inscriptions confirmées : %d.",
				report.Events.Upcoming, report.Events.ConfirmedRegistrations),
		),
	})
}

// notifyBestEffort runs send detached from ctx cancellation and only logs a failure.
// The triggering write has already committed when this runs.
func notifyBestEffort(ctx context.Context, log *slog.Logger, what string, send func(ctx context.Context) error) {
	if err := send(context.WithoutCancel(ctx)); err != nil {
		log.Warn(what+" not sent",
			slog.String("error_kind", domain.ErrorKind(err)),
			slog.Any("error", err),
		)
	}
}

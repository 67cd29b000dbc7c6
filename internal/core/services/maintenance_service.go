package services

import (
	"context"
	"log/slog"
	"time"

	"asso-manager/internal/core/domain"
	"asso-manager/internal/pkg/clock"
	"asso-manager/internal/pkg/pagination"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

// MaintenanceService holds the periodic jobs. It owns no state: every job
// calls the same public service operations a request handler would, so each
// one can also be run on demand.
type MaintenanceService struct {
	dues         *DuesService
	events       *EventService
	members      *MemberService
	notifier     Notifier
	clock        clock.Clock
	loc          *time.Location
	limiter      *rate.Limiter
	reminderDays int
	logger       *slog.Logger
}

// NewMaintenanceService creates a new maintenance service
func NewMaintenanceService(
	dues *DuesService,
	events *EventService,
	members *MemberService,
	notifier Notifier,
	clk clock.Clock,
	loc *time.Location,
	limiter *rate.Limiter,
	reminderDays int,
	logger *slog.Logger,
) *MaintenanceService {
	if loc == nil {
		loc = time.UTC
	}
	if reminderDays <= 0 {
		reminderDays = 30
	}
	return &MaintenanceService{
		dues:         dues,
		events:       events,
		members:      members,
		notifier:     notifier,
		clock:        clk,
		loc:          loc,
		limiter:      limiter,
		reminderDays: reminderDays,
		logger:       logger,
	}
}

// MonthlyReport is the statistics snapshot mailed to administrators
type MonthlyReport struct {
	Month         string            `json:"month"`
	GeneratedAt   time.Time         `json:"generated_at"`
	Members       *MemberStatistics `json:"members"`
	NewMembers    int64             `json:"new_members"`
	Dues          *DuesStatistics   `json:"dues"`
	PaidLastMonth MonthTotal        `json:"paid_last_month"`
	Events        *EventStatistics  `json:"events"`
}

// ReminderDays is the default look-ahead of the dues reminder pass
func (s *MaintenanceService) ReminderDays() int {
	return s.reminderDays
}

// RunSweep expires overdue dues. A failure aborts and is returned.
func (s *MaintenanceService) RunSweep(ctx context.Context) (int64, error) {
	return s.dues.Sweep(ctx)
}

// RunDuesReminders mails every member whose dues expire within days.
// Delivery failures are counted, not returned.
func (s *MaintenanceService) RunDuesReminders(ctx context.Context, days int) (report ReminderReport, err error) {
	ctx, span := startSpan(ctx, "MaintenanceService.RunDuesReminders", attribute.Int("reminders.days", days))
	defer func() {
		span.SetAttributes(attribute.Int("reminders.sent", report.Sent), attribute.Int("reminders.failed", report.Failed))
		endSpan(span, err)
	}()
	log := serviceLogger(ctx, s.logger, "maintenance", "dues_reminders")

	items, err := s.dues.ExpiringWithin(ctx, days)
	if err != nil {
		return report, err
	}

	now := s.clock.Now()
	report, err = dispatchReminders(ctx, s.limiter, log, len(items), func(ctx context.Context, i int) (string, error) {
		d := items[i]
		if d.Member == nil {
			return d.MemberID, domain.ErrMemberNotFound
		}
		return d.Member.Email, s.notifier.SendDuesReminder(ctx, d.Member, d, domain.DaysRemaining(d.ExpiresAt, now))
	})
	if err != nil {
		return report, err
	}

	log.Info("dues reminders done",
		slog.Int("days", days),
		slog.Int("candidates", report.Candidates),
		slog.Int("sent", report.Sent),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}

// RunEventReminders mails the participants of tomorrow's events
func (s *MaintenanceService) RunEventReminders(ctx context.Context) (ReminderReport, error) {
	return s.events.SendEventReminders(ctx)
}

// BuildMonthlyReport gathers the statistics of the three domains.
// "Last month" is the calendar month before the current one.
func (s *MaintenanceService) BuildMonthlyReport(ctx context.Context) (*MonthlyReport, error) {
	members, err := s.members.Statistics(ctx)
	if err != nil {
		return nil, err
	}
	dues, err := s.dues.Statistics(ctx)
	if err != nil {
		return nil, err
	}
	events, err := s.events.Statistics(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	report := &MonthlyReport{
		Month:       lastMonths(now, s.loc, 2)[0].Label,
		GeneratedAt: now,
		Members:     members,
		Dues:        dues,
		Events:      events,
	}
	if n := len(members.Evolution); n >= 2 {
		report.NewMembers = members.Evolution[n-2].Count
	}
	if n := len(dues.Evolution); n >= 2 {
		report.PaidLastMonth = dues.Evolution[n-2]
	}
	return report, nil
}

// RunMonthlyReport builds the report and mails it to every administrator
func (s *MaintenanceService) RunMonthlyReport(ctx context.Context) (report *MonthlyReport, delivery ReminderReport, err error) {
	ctx, span := startSpan(ctx, "MaintenanceService.RunMonthlyReport")
	defer func() { endSpan(span, err) }()
	log := serviceLogger(ctx, s.logger, "maintenance", "monthly_report")

	report, err = s.BuildMonthlyReport(ctx)
	if err != nil {
		return nil, delivery, err
	}

	admin := domain.RoleAdmin
	admins, err := s.members.List(ctx, ListMembersInput{Role: &admin, Limit: pagination.MaxLimit})
	if err != nil {
		return report, delivery, err
	}

	delivery, err = dispatchReminders(ctx, s.limiter, log, len(admins.Data), func(ctx context.Context, i int) (string, error) {
		a := admins.Data[i]
		return a.Email, s.notifier.SendMonthlyReport(ctx, a, report)
	})
	if err != nil {
		return report, delivery, err
	}

	log.Info("monthly report sent",
		slog.String("month", report.Month),
		slog.Int("admins", delivery.Candidates),
		slog.Int("failed", delivery.Failed),
	)
	return report, delivery, nil
}

package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"asso-manager/internal/adapters/persistence/models"
	"asso-manager/internal/adapters/persistence/repositories"
	"asso-manager/internal/core/domain"
	"asso-manager/internal/pkg/clock"
	"asso-manager/internal/pkg/pagination"

	"github.com/oapi-codegen/nullable"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

// EventService handles events, registrations and seat accounting
type EventService struct {
	store    *repositories.Store
	notifier Notifier
	clock    clock.Clock
	loc      *time.Location
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewEventService creates a new event service.
// limiter throttles reminder dispatch and may be nil.
func NewEventService(
	store *repositories.Store,
	notifier Notifier,
	clk clock.Clock,
	loc *time.Location,
	limiter *rate.Limiter,
	logger *slog.Logger,
) *EventService {
	if loc == nil {
		loc = time.UTC
	}
	return &EventService{
		store:    store,
		notifier: notifier,
		clock:    clk,
		loc:      loc,
		limiter:  limiter,
		logger:   logger,
	}
}

// CreateEventInput represents create event input
type CreateEventInput struct {
	Title       string
	Description *string
	StartsAt    time.Time
	EndsAt      *time.Time
	Location    string
	TotalSeats  int
	IsPublished *bool // defaults to true
	CreatorID   string
}

// UpdateEventInput represents a partial event update.
// Description and EndsAt are tri-state: unset keeps the value, null clears it.
type UpdateEventInput struct {
	Title       *string
	Description nullable.Nullable[string]
	StartsAt    *time.Time
	EndsAt      nullable.Nullable[time.Time]
	Location    *string
	TotalSeats  *int
	IsPublished *bool
}

// ListEventsInput represents list events input
type ListEventsInput struct {
	Page         int
	Limit        int
	Published    *bool
	UpcomingOnly bool
	Search       string
}

// Participant is a confirmed attendee of an event
type Participant struct {
	Member       *models.MemberSummary     `json:"member"`
	Status       domain.RegistrationStatus `json:"status"`
	RegisteredAt time.Time                 `json:"registered_at"`
}

// ParticipantList is the attendee list of one event
type ParticipantList struct {
	Event        *models.Event  `json:"event"`
	Participants []*Participant `json:"participants"`
	Total        int            `json:"total"`
}

// EventStatistics aggregates event and registration counts
type EventStatistics struct {
	Total                  int64 `json:"total"`
	Published              int64 `json:"published"`
	Upcoming               int64 `json:"upcoming"`
	FullUpcoming           int64 `json:"full_upcoming"`
	ConfirmedRegistrations int64 `json:"confirmed_registrations"`
	CancelledRegistrations int64 `json:"cancelled_registrations"`
}

func validateEventWindow(v *domain.ValidationError, startsAt time.Time, endsAt *time.Time) {
	if startsAt.IsZero() {
		v.Add("starts_at", "required")
	}
	if endsAt != nil && endsAt.Before(startsAt) {
		v.Add("ends_at", "must not be before starts_at")
	}
}

// Create creates an event with all seats free
func (s *EventService) Create(ctx context.Context, input CreateEventInput) (event *models.Event, err error) {
	ctx, span := startSpan(ctx, "EventService.Create")
	defer func() { endSpan(span, err) }()
	log := serviceLogger(ctx, s.logger, "event", "create")

	v := &domain.ValidationError{}
	if strings.TrimSpace(input.Title) == "" {
		v.Add("title", "required")
	}
	if strings.TrimSpace(input.Location) == "" {
		v.Add("location", "required")
	}
	if input.TotalSeats < 1 {
		v.Add("total_seats", "must be at least 1")
	}
	validateEventWindow(v, input.StartsAt, input.EndsAt)
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	if _, err := s.store.Members.GetByID(ctx, input.CreatorID); err != nil {
		if repositories.IsNotFound(err) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, err
	}

	published := true
	if input.IsPublished != nil {
		published = *input.IsPublished
	}

	event = &models.Event{
		Title:          strings.TrimSpace(input.Title),
		Description:    input.Description,
		StartsAt:       input.StartsAt.UTC(),
		Location:       strings.TrimSpace(input.Location),
		TotalSeats:     input.TotalSeats,
		RemainingSeats: input.TotalSeats,
		IsPublished:    published,
		CreatorID:      input.CreatorID,
	}
	if input.EndsAt != nil {
		endsAt := input.EndsAt.UTC()
		event.EndsAt = &endsAt
	}

	if err := s.store.Events.Create(ctx, event); err != nil {
		return nil, err
	}

	log.Info("event created", slog.String("event_id", event.ID), slog.Int("seats", event.TotalSeats))
	return event, nil
}

// Get gets an event with its creator
func (s *EventService) Get(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.store.Events.GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, domain.ErrEventNotFound
		}
		return nil, err
	}
	return event, nil
}

// Update applies a partial update. A new TotalSeats keeps the used seats
// and goes through the same locked path as SetCapacity.
func (s *EventService) Update(ctx context.Context, id string, input UpdateEventInput) (event *models.Event, err error) {
	ctx, span := startSpan(ctx, "EventService.Update", attribute.String("event.id", id))
	defer func() { endSpan(span, err) }()

	if input.TotalSeats != nil && *input.TotalSeats < 1 {
		v := &domain.ValidationError{}
		v.Add("total_seats", "must be at least 1")
		return nil, v
	}

	err = s.store.Transaction(ctx, func(tx *repositories.Store) error {
		var err error
		event, err = tx.Events.GetForUpdate(ctx, id)
		if err != nil {
			if repositories.IsNotFound(err) {
				return domain.ErrEventNotFound
			}
			return err
		}

		v := &domain.ValidationError{}
		if input.Title != nil {
			if strings.TrimSpace(*input.Title) == "" {
				v.Add("title", "required")
			}
			event.Title = strings.TrimSpace(*input.Title)
		}
		if input.Location != nil {
			if strings.TrimSpace(*input.Location) == "" {
				v.Add("location", "required")
			}
			event.Location = strings.TrimSpace(*input.Location)
		}
		if input.Description.IsSpecified() {
			if input.Description.IsNull() {
				event.Description = nil
			} else {
				description := input.Description.MustGet()
				event.Description = &description
			}
		}
		if input.StartsAt != nil {
			event.StartsAt = input.StartsAt.UTC()
		}
		if input.EndsAt.IsSpecified() {
			if input.EndsAt.IsNull() {
				event.EndsAt = nil
			} else {
				endsAt := input.EndsAt.MustGet().UTC()
				event.EndsAt = &endsAt
			}
		}
		if input.IsPublished != nil {
			event.IsPublished = *input.IsPublished
		}
		validateEventWindow(v, event.StartsAt, event.EndsAt)
		if err := v.OrNil(); err != nil {
			return err
		}

		if input.TotalSeats != nil {
			event.RemainingSeats = domain.ResizeCapacity(event.TotalSeats, event.RemainingSeats, *input.TotalSeats)
			event.TotalSeats = *input.TotalSeats
		}

		return tx.Events.Update(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// Delete deletes an event and its registrations
func (s *EventService) Delete(ctx context.Context, id string) (err error) {
	ctx, span := startSpan(ctx, "EventService.Delete", attribute.String("event.id", id))
	defer func() { endSpan(span, err) }()

	return s.store.Transaction(ctx, func(tx *repositories.Store) error {
		if err := tx.Registrations.DeleteByEvent(ctx, id); err != nil {
			return err
		}
		n, err := tx.Events.Delete(ctx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrEventNotFound
		}
		return nil
	})
}

// List lists events with filters and pagination, soonest first
func (s *EventService) List(ctx context.Context, input ListEventsInput) (*pagination.Page[*models.Event], error) {
	params := pagination.NewParams(input.Page, input.Limit)

	filter := repositories.EventFilter{
		Published: input.Published,
		Search:    input.Search,
	}
	if input.UpcomingOnly {
		now := s.clock.Now()
		filter.UpcomingFrom = &now
	}

	events, total, err := s.store.Events.List(ctx, filter, params.Offset, params.Limit)
	if err != nil {
		return nil, err
	}

	return pagination.NewPage(events, params, total), nil
}

// Calendar returns the published events starting in the given month
func (s *EventService) Calendar(ctx context.Context, month, year int) ([]*models.Event, error) {
	if month < 1 || month > 12 || year < 1 {
		v := &domain.ValidationError{}
		v.Add("month", "month must be 1-12 and year positive")
		return nil, v
	}

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, s.loc)
	to := from.AddDate(0, 1, 0)
	return s.store.Events.ListBetween(ctx, from.UTC(), to.UTC(), true)
}

// Participants lists the confirmed attendees of an event, earliest first
func (s *EventService) Participants(ctx context.Context, eventID string) (*ParticipantList, error) {
	event, err := s.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}

	confirmed := domain.RegistrationConfirmee
	registrations, err := s.store.Registrations.ListByEvent(ctx, eventID, &confirmed)
	if err != nil {
		return nil, err
	}

	list := &ParticipantList{
		Event:        event,
		Participants: make([]*Participant, 0, len(registrations)),
	}
	for _, r := range registrations {
		list.Participants = append(list.Participants, &Participant{
			Member:       r.Member.ToSummary(),
			Status:       r.Status,
			RegisteredAt: r.RegisteredAt,
		})
	}
	list.Total = len(list.Participants)
	return list, nil
}

// MemberRegistrations lists a member's registrations with their events
func (s *EventService) MemberRegistrations(ctx context.Context, memberID string, upcomingOnly bool) ([]*models.Registration, error) {
	var from *time.Time
	if upcomingOnly {
		now := s.clock.Now()
		from = &now
	}
	return s.store.Registrations.ListByMember(ctx, memberID, from)
}

// Register books one seat for memberID on eventID.
// A cancelled registration for the pair is reactivated rather than recreated.
// The confirmation email is sent after commit and never fails the call.
func (s *EventService) Register(ctx context.Context, eventID, memberID string) (registration *models.Registration, err error) {
	ctx, span := startSpan(ctx, "EventService.Register",
		attribute.String("event.id", eventID),
		attribute.String("member.id", memberID),
	)
	defer func() { endSpan(span, err) }()
	log := serviceLogger(ctx, s.logger, "event", "register").With(
		slog.String("event_id", eventID),
		slog.String("member_id", memberID),
	)

	now := s.clock.Now()
	var event *models.Event
	var member *models.Member

	err = s.store.Transaction(ctx, func(tx *repositories.Store) error {
		var err error
		event, err = tx.Events.GetByID(ctx, eventID)
		if err != nil {
			if repositories.IsNotFound(err) {
				return domain.ErrEventNotFound
			}
			return err
		}
		if !event.IsPublished {
			return domain.ErrEventNotPublished
		}

		member, err = tx.Members.GetByID(ctx, memberID)
		if err != nil {
			if repositories.IsNotFound(err) {
				return domain.ErrMemberNotFound
			}
			return err
		}

		// Conditional decrement: check and take the seat in one statement.
		reserved, err := tx.Events.ReserveSeat(ctx, eventID)
		if err != nil {
			return err
		}
		if reserved == 0 {
			current, err := tx.Events.GetByID(ctx, eventID)
			if err != nil {
				return err
			}
			if !current.IsPublished {
				return domain.ErrEventNotPublished
			}
			return domain.ErrEventFull
		}

		existing, err := tx.Registrations.GetByPair(ctx, memberID, eventID)
		switch {
		case err == nil && existing.Status == domain.RegistrationAnnulee:
			n, err := tx.Registrations.Reactivate(ctx, existing.ID, now)
			if err != nil {
				return err
			}
			if n == 0 {
				return domain.ErrAlreadyRegistered
			}
			existing.Status = domain.RegistrationConfirmee
			existing.RegisteredAt = now
			registration = existing
		case err == nil:
			return domain.ErrAlreadyRegistered
		case repositories.IsNotFound(err):
			registration = &models.Registration{
				MemberID:     memberID,
				EventID:      eventID,
				Status:       domain.RegistrationConfirmee,
				RegisteredAt: now,
			}
			if err := tx.Registrations.Create(ctx, registration); err != nil {
				if repositories.IsDuplicateKey(err) {
					return domain.ErrAlreadyRegistered
				}
				return err
			}
		default:
			return err
		}

		// Re-read under the seat update's row lock; the first read may be stale.
		event, err = tx.Events.GetByID(ctx, eventID)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info("registration confirmed", slog.String("registration_id", registration.ID))
	notifyBestEffort(ctx, log, "registration confirmation", func(ctx context.Context) error {
		return s.notifier.SendRegistrationConfirmation(ctx, member, event)
	})

	registration.Event = event
	return registration, nil
}

// Cancel cancels a member's registration and gives the seat back
func (s *EventService) Cancel(ctx context.Context, eventID, memberID string) (err error) {
	ctx, span := startSpan(ctx, "EventService.Cancel",
		attribute.String("event.id", eventID),
		attribute.String("member.id", memberID),
	)
	defer func() { endSpan(span, err) }()
	log := serviceLogger(ctx, s.logger, "event", "cancel")

	err = s.store.Transaction(ctx, func(tx *repositories.Store) error {
		registration, err := tx.Registrations.GetByPair(ctx, memberID, eventID)
		if err != nil {
			if repositories.IsNotFound(err) {
				return domain.ErrRegistrationNotFound
			}
			return err
		}

		n, err := tx.Registrations.Cancel(ctx, registration.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrRegistrationCancelled
		}

		if registration.Status == domain.RegistrationConfirmee {
			if _, err := tx.Events.ReleaseSeat(ctx, eventID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info("registration cancelled", slog.String("event_id", eventID), slog.String("member_id", memberID))
	return nil
}

// SetCapacity changes the total seats of an event, keeping the seats in use.
// remaining = max(0, newTotal - (oldTotal - oldRemaining)), computed under a row lock.
func (s *EventService) SetCapacity(ctx context.Context, eventID string, newTotal int) (event *models.Event, err error) {
	ctx, span := startSpan(ctx, "EventService.SetCapacity",
		attribute.String("event.id", eventID),
		attribute.Int("event.total_seats", newTotal),
	)
	defer func() { endSpan(span, err) }()

	if newTotal < 1 {
		v := &domain.ValidationError{}
		v.Add("total_seats", "must be at least 1")
		return nil, v
	}

	err = s.store.Transaction(ctx, func(tx *repositories.Store) error {
		var err error
		event, err = tx.Events.GetForUpdate(ctx, eventID)
		if err != nil {
			if repositories.IsNotFound(err) {
				return domain.ErrEventNotFound
			}
			return err
		}

		remaining := domain.ResizeCapacity(event.TotalSeats, event.RemainingSeats, newTotal)
		if err := tx.Events.UpdateCapacity(ctx, eventID, newTotal, remaining); err != nil {
			return err
		}
		event.TotalSeats = newTotal
		event.RemainingSeats = remaining
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// Statistics returns event and registration counts
func (s *EventService) Statistics(ctx context.Context) (*EventStatistics, error) {
	now := s.clock.Now()
	published := true

	total, err := s.store.Events.Count(ctx, repositories.EventFilter{})
	if err != nil {
		return nil, err
	}
	publishedCount, err := s.store.Events.Count(ctx, repositories.EventFilter{Published: &published})
	if err != nil {
		return nil, err
	}
	upcoming, err := s.store.Events.Count(ctx, repositories.EventFilter{Published: &published, UpcomingFrom: &now})
	if err != nil {
		return nil, err
	}
	full, err := s.store.Events.Count(ctx, repositories.EventFilter{UpcomingFrom: &now, FullOnly: true})
	if err != nil {
		return nil, err
	}
	byStatus, err := s.store.Registrations.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	return &EventStatistics{
		Total:                  total,
		Published:              publishedCount,
		Upcoming:               upcoming,
		FullUpcoming:           full,
		ConfirmedRegistrations: byStatus[domain.RegistrationConfirmee],
		CancelledRegistrations: byStatus[domain.RegistrationAnnulee],
	}, nil
}

// SendEventReminders emails every confirmed participant of the published
// events starting tomorrow (association time zone).
func (s *EventService) SendEventReminders(ctx context.Context) (report ReminderReport, err error) {
	ctx, span := startSpan(ctx, "EventService.SendEventReminders")
	defer func() {
		span.SetAttributes(attribute.Int("reminders.sent", report.Sent), attribute.Int("reminders.failed", report.Failed))
		endSpan(span, err)
	}()
	log := serviceLogger(ctx, s.logger, "event", "event_reminders")

	today := s.clock.Now().In(s.loc)
	tomorrow := time.Date(today.Year(), today.Month(), today.Day()+1, 0, 0, 0, 0, s.loc)
	dayAfter := tomorrow.AddDate(0, 0, 1)

	events, err := s.store.Events.ListBetween(ctx, tomorrow.UTC(), dayAfter.UTC(), true)
	if err != nil {
		return report, err
	}

	type target struct {
		member *models.Member
		event  *models.Event
	}
	var targets []target
	confirmed := domain.RegistrationConfirmee
	for _, event := range events {
		registrations, err := s.store.Registrations.ListByEvent(ctx, event.ID, &confirmed)
		if err != nil {
			return report, err
		}
		for _, r := range registrations {
			if r.Member != nil {
				targets = append(targets, target{member: r.Member, event: event})
			}
		}
	}

	report, err = dispatchReminders(ctx, s.limiter, log, len(targets), func(ctx context.Context, i int) (string, error) {
		t := targets[i]
		return t.member.Email, s.notifier.SendEventReminder(ctx, t.member, t.event)
	})
	if err != nil {
		return report, err
	}

	log.Info("event reminders done",
		slog.Int("events", len(events)),
		slog.Int("sent", report.Sent),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}

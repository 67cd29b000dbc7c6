package services

import (
	"context"
	"log/slog"
	"time"

	"asso-manager/internal/adapters/persistence/models"
	"asso-manager/internal/adapters/persistence/repositories"
	"asso-manager/internal/core/domain"
	"asso-manager/internal/pkg/clock"
	"asso-manager/internal/pkg/pagination"

	"github.com/oapi-codegen/nullable"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// DuesService handles the dues (cotisation) lifecycle
type DuesService struct {
	store  *repositories.Store
	clock  clock.Clock
	loc    *time.Location
	logger *slog.Logger
}

// NewDuesService creates a new dues service.
// loc is the association's time zone, used for period month boundaries.
func NewDuesService(store *repositories.Store, clk clock.Clock, loc *time.Location, logger *slog.Logger) *DuesService {
	if loc == nil {
		loc = time.UTC
	}
	return &DuesService{
		store:  store,
		clock:  clk,
		loc:    loc,
		logger: logger,
	}
}

// CreateDuesInput represents create dues input
type CreateDuesInput struct {
	MemberID    string
	PaymentDate time.Time
	Amount      decimal.Decimal
	PaymentMode domain.PaymentMode
	Period      *string
	ExpiresAt   *time.Time
	Status      *domain.DuesStatus // admin override, e.g. EN_ATTENTE
	Notes       *string
}

// UpdateDuesInput represents a partial dues update.
// Period and Notes are tri-state: unset keeps the value, null clears it.
type UpdateDuesInput struct {
	PaymentDate *time.Time
	Amount      *decimal.Decimal
	PaymentMode *domain.PaymentMode
	Period      nullable.Nullable[string]
	ExpiresAt   *time.Time
	Status      *domain.DuesStatus
	Notes       nullable.Nullable[string]
}

// ListDuesInput represents list dues input
type ListDuesInput struct {
	Page     int
	Limit    int
	Status   *domain.DuesStatus
	MemberID string
	Mode     *domain.PaymentMode
	PaidFrom *time.Time
	PaidTo   *time.Time
}

// MemberDuesStatus is the standing of a member derived from their latest dues
type MemberDuesStatus struct {
	MemberID      string                 `json:"member_id"`
	State         domain.MemberDuesState `json:"state"`
	Latest        *models.Dues           `json:"latest,omitempty"`
	ExpiresAt     *time.Time             `json:"expires_at,omitempty"`
	DaysRemaining int                    `json:"days_remaining"`
}

// MonthTotal is the count and amount of payments for one month
type MonthTotal struct {
	Month  string          `json:"month"`
	Count  int64           `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// DuesStatistics aggregates dues counts and amounts
type DuesStatistics struct {
	Total        int64                    `json:"total"`
	UpToDate     int64                    `json:"up_to_date"`
	Expired      int64                    `json:"expired"`
	Pending      int64                    `json:"pending"`
	CurrentMonth MonthTotal               `json:"current_month"`
	ByMode       []repositories.ModeTotal `json:"by_mode"`
	Evolution    []MonthTotal             `json:"evolution"`
}

func validateDuesFields(v *domain.ValidationError, amount *decimal.Decimal, mode *domain.PaymentMode, status *domain.DuesStatus) {
	if amount != nil && !amount.IsPositive() {
		v.Add("amount", "must be positive")
	}
	if mode != nil && !mode.Valid() {
		v.Add("payment_mode", "unknown payment mode")
	}
	if status != nil && !status.Valid() {
		v.Add("status", "unknown status")
	}
}

// Create records a dues payment for a member.
// Expiration: explicit date, else end of the period month, else payment date + 1 year.
func (s *DuesService) Create(ctx context.Context, input CreateDuesInput) (dues *models.Dues, err error) {
	ctx, span := startSpan(ctx, "DuesService.Create", attribute.String("member.id", input.MemberID))
	defer func() { endSpan(span, err) }()
	log := serviceLogger(ctx, s.logger, "dues", "create")

	v := &domain.ValidationError{}
	if input.PaymentDate.IsZero() {
		v.Add("payment_date", "required")
	}
	validateDuesFields(v, &input.Amount, &input.PaymentMode, input.Status)
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	var period *string
	if input.Period != nil && *input.Period != "" {
		if _, _, err := domain.ParsePeriod(*input.Period); err != nil {
			return nil, err
		}
		period = input.Period
	}

	expiresAt, err := domain.ResolveExpiration(input.PaymentDate, period, input.ExpiresAt, s.loc)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	status := domain.DeriveDuesStatus(expiresAt, now)
	if input.Status != nil {
		status = *input.Status
	}

	dues = &models.Dues{
		MemberID:    input.MemberID,
		PaymentDate: input.PaymentDate.UTC(),
		Amount:      input.Amount,
		PaymentMode: input.PaymentMode,
		ExpiresAt:   expiresAt.UTC(),
		Status:      status,
		Notes:       input.Notes,
		Period:      period,
	}

	err = s.store.Transaction(ctx, func(tx *repositories.Store) error {
		if _, err := tx.Members.GetByID(ctx, input.MemberID); err != nil {
			if repositories.IsNotFound(err) {
				return domain.ErrMemberNotFound
			}
			return err
		}

		if period != nil {
			taken, err := tx.Dues.ExistsPeriod(ctx, input.MemberID, *period, "")
			if err != nil {
				return err
			}
			if taken {
				return domain.ErrDuplicatePeriod
			}
		}

		if err := tx.Dues.Create(ctx, dues); err != nil {
			if repositories.IsDuplicateKey(err) {
				return domain.ErrDuplicatePeriod
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("dues created",
		slog.String("dues_id", dues.ID),
		slog.String("status", string(dues.Status)),
		slog.Time("expires_at", dues.ExpiresAt),
	)
	return dues, nil
}

// Update applies a partial update. When a date field changes the expiration is
// resolved again, and the status is derived from it unless one was supplied.
func (s *DuesService) Update(ctx context.Context, id string, input UpdateDuesInput) (dues *models.Dues, err error) {
	ctx, span := startSpan(ctx, "DuesService.Update", attribute.String("dues.id", id))
	defer func() { endSpan(span, err) }()

	v := &domain.ValidationError{}
	if input.PaymentDate != nil && input.PaymentDate.IsZero() {
		v.Add("payment_date", "required")
	}
	validateDuesFields(v, input.Amount, input.PaymentMode, input.Status)
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	err = s.store.Transaction(ctx, func(tx *repositories.Store) error {
		var err error
		dues, err = tx.Dues.GetByID(ctx, id)
		if err != nil {
			if repositories.IsNotFound(err) {
				return domain.ErrDuesNotFound
			}
			return err
		}

		dateChanged := false
		if input.PaymentDate != nil {
			dues.PaymentDate = input.PaymentDate.UTC()
			dateChanged = true
		}
		if input.Period.IsSpecified() {
			dateChanged = true
			if input.Period.IsNull() || input.Period.MustGet() == "" {
				dues.Period = nil
			} else {
				period := input.Period.MustGet()
				if _, _, err := domain.ParsePeriod(period); err != nil {
					return err
				}
				taken, err := tx.Dues.ExistsPeriod(ctx, dues.MemberID, period, dues.ID)
				if err != nil {
					return err
				}
				if taken {
					return domain.ErrDuplicatePeriod
				}
				dues.Period = &period
			}
		}
		if input.ExpiresAt != nil {
			dateChanged = true
		}

		if input.Amount != nil {
			dues.Amount = *input.Amount
		}
		if input.PaymentMode != nil {
			dues.PaymentMode = *input.PaymentMode
		}
		if input.Notes.IsSpecified() {
			if input.Notes.IsNull() {
				dues.Notes = nil
			} else {
				notes := input.Notes.MustGet()
				dues.Notes = &notes
			}
		}

		if dateChanged {
			expiresAt, err := domain.ResolveExpiration(dues.PaymentDate, dues.Period, input.ExpiresAt, s.loc)
			if err != nil {
				return err
			}
			dues.ExpiresAt = expiresAt.UTC()
		}

		switch {
		case input.Status != nil:
			dues.Status = *input.Status
		case dateChanged:
			dues.Status = domain.DeriveDuesStatus(dues.ExpiresAt, s.clock.Now())
		}

		if err := tx.Dues.Update(ctx, dues); err != nil {
			if repositories.IsDuplicateKey(err) {
				return domain.ErrDuplicatePeriod
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dues, nil
}

// Delete deletes a dues record
func (s *DuesService) Delete(ctx context.Context, id string) error {
	n, err := s.store.Dues.Delete(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrDuesNotFound
	}
	return nil
}

// Get gets a dues record with its member
func (s *DuesService) Get(ctx context.Context, id string) (*models.Dues, error) {
	dues, err := s.store.Dues.GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, domain.ErrDuesNotFound
		}
		return nil, err
	}
	return dues, nil
}

// List lists dues with filters and pagination
func (s *DuesService) List(ctx context.Context, input ListDuesInput) (*pagination.Page[*models.Dues], error) {
	params := pagination.NewParams(input.Page, input.Limit)

	items, total, err := s.store.Dues.List(ctx, repositories.DuesFilter{
		Status:   input.Status,
		MemberID: input.MemberID,
		Mode:     input.Mode,
		PaidFrom: input.PaidFrom,
		PaidTo:   input.PaidTo,
	}, params.Offset, params.Limit)
	if err != nil {
		return nil, err
	}

	return pagination.NewPage(items, params, total), nil
}

// ListByMember lists a member's dues, newest payment first
func (s *DuesService) ListByMember(ctx context.Context, memberID string) ([]*models.Dues, error) {
	if _, err := s.store.Members.GetByID(ctx, memberID); err != nil {
		if repositories.IsNotFound(err) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, err
	}
	return s.store.Dues.ListByMember(ctx, memberID)
}

// Sweep moves every overdue record to EXPIRE and returns how many changed.
// Safe to run repeatedly or concurrently.
func (s *DuesService) Sweep(ctx context.Context) (changed int64, err error) {
	ctx, span := startSpan(ctx, "DuesService.Sweep")
	defer func() {
		span.SetAttributes(attribute.Int64("dues.expired", changed))
		endSpan(span, err)
	}()
	log := serviceLogger(ctx, s.logger, "dues", "sweep")

	changed, err = s.store.Dues.ExpireBefore(ctx, s.clock.Now())
	if err != nil {
		log.Error("dues sweep failed", slog.Any("error", err))
		return 0, err
	}

	log.Info("dues sweep done", slog.Int64("expired", changed))
	return changed, nil
}

// ExpiringWithin returns A_JOUR records expiring in [now, now + days], soonest first
func (s *DuesService) ExpiringWithin(ctx context.Context, days int) ([]*models.Dues, error) {
	if days < 0 {
		v := &domain.ValidationError{}
		v.Add("days", "must not be negative")
		return nil, v
	}
	from, to := domain.ExpiryWindow(s.clock.Now(), days)
	return s.store.Dues.ExpiringBetween(ctx, from, to)
}

// ExpiredOrExpiringBy lists A_JOUR and EXPIRE records whose expiration is at
// or before now + days, oldest first. It backs the admin alert list.
func (s *DuesService) ExpiredOrExpiringBy(ctx context.Context, days int) ([]*models.Dues, error) {
	if days < 0 {
		v := &domain.ValidationError{}
		v.Add("days", "must not be negative")
		return nil, v
	}
	_, to := domain.ExpiryWindow(s.clock.Now(), days)
	return s.store.Dues.ExpiredOrExpiringBy(ctx, to)
}

// MemberStatus reports a member's standing from their latest payment
func (s *DuesService) MemberStatus(ctx context.Context, memberID string) (*MemberDuesStatus, error) {
	if _, err := s.store.Members.GetByID(ctx, memberID); err != nil {
		if repositories.IsNotFound(err) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, err
	}

	latest, err := s.store.Dues.LatestByMember(ctx, memberID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return &MemberDuesStatus{MemberID: memberID, State: domain.MemberDuesNone}, nil
		}
		return nil, err
	}

	now := s.clock.Now()
	state := domain.MemberDuesExpire
	if latest.Status == domain.DuesAJour && !domain.IsDuesExpired(latest.ExpiresAt, now) {
		state = domain.MemberDuesAJour
	}
	expiresAt := latest.ExpiresAt

	return &MemberDuesStatus{
		MemberID:      memberID,
		State:         state,
		Latest:        latest,
		ExpiresAt:     &expiresAt,
		DaysRemaining: domain.DaysRemaining(latest.ExpiresAt, now),
	}, nil
}

// Statistics returns dues counts, the current month takings, the per mode
// breakdown and the six month evolution.
func (s *DuesService) Statistics(ctx context.Context) (*DuesStatistics, error) {
	byStatus, err := s.store.Dues.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	byMode, err := s.store.Dues.TotalsByMode(ctx)
	if err != nil {
		return nil, err
	}
	// A_JOUR rows the sweep has not reached yet are not up to date.
	upToDate, err := s.store.Dues.CountValidAt(ctx, s.clock.Now())
	if err != nil {
		return nil, err
	}

	stats := &DuesStatistics{
		UpToDate: upToDate,
		Expired:  byStatus[domain.DuesExpire],
		Pending:  byStatus[domain.DuesEnAttente],
		ByMode:   byMode,
	}
	for _, n := range byStatus {
		stats.Total += n
	}

	months := lastMonths(s.clock.Now(), s.loc, 6)
	for _, m := range months {
		count, amount, err := s.store.Dues.TotalPaidBetween(ctx, m.From, m.To)
		if err != nil {
			return nil, err
		}
		stats.Evolution = append(stats.Evolution, MonthTotal{Month: m.Label, Count: count, Amount: amount})
	}
	stats.CurrentMonth = stats.Evolution[len(stats.Evolution)-1]

	return stats, nil
}

package repositories

import (
	"context"
	"time"

	"asso-manager/internal/adapters/persistence/models"
	"asso-manager/internal/core/domain"

	"github.com/shopspring/decimal"
)

// MemberFilter narrows member listings
type MemberFilter struct {
	Search string
	Status *domain.MemberStatus
	Role   *domain.Role
}

// DuesFilter narrows dues listings
type DuesFilter struct {
	Status   *domain.DuesStatus
	MemberID string
	Mode     *domain.PaymentMode
	PaidFrom *time.Time
	PaidTo   *time.Time
}

// EventFilter narrows event listings
type EventFilter struct {
	Published    *bool
	UpcomingFrom *time.Time
	Search       string
	FullOnly     bool
}

// ModeTotal is one row of the per payment mode breakdown
type ModeTotal struct {
	PaymentMode domain.PaymentMode `json:"payment_mode"`
	Count       int64              `json:"count"`
	Amount      decimal.Decimal    `json:"amount"`
}

// MemberRepository defines member repository interface
type MemberRepository interface {
	Create(ctx context.Context, member *models.Member) error
	GetByID(ctx context.Context, id string) (*models.Member, error)
	GetByEmail(ctx context.Context, email string) (*models.Member, error)
	GetByResetToken(ctx context.Context, digest string) (*models.Member, error)
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	Update(ctx context.Context, member *models.Member) error
	Delete(ctx context.Context, id string) (int64, error)
	List(ctx context.Context, filter MemberFilter, offset, limit int) ([]*models.Member, int64, error)
	CountByStatus(ctx context.Context) (map[domain.MemberStatus]int64, error)
	CountByRole(ctx context.Context) (map[domain.Role]int64, error)
	CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error)
}

// DuesRepository defines dues (cotisation) repository interface
type DuesRepository interface {
	Create(ctx context.Context, dues *models.Dues) error
	GetByID(ctx context.Context, id string) (*models.Dues, error)
	Update(ctx context.Context, dues *models.Dues) error
	Delete(ctx context.Context, id string) (int64, error)
	DeleteByMember(ctx context.Context, memberID string) error
	ExistsPeriod(ctx context.Context, memberID, period, excludeID string) (bool, error)
	List(ctx context.Context, filter DuesFilter, offset, limit int) ([]*models.Dues, int64, error)
	ListByMember(ctx context.Context, memberID string) ([]*models.Dues, error)
	LatestByMember(ctx context.Context, memberID string) (*models.Dues, error)
	ExpireBefore(ctx context.Context, now time.Time) (int64, error)
	ExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.Dues, error)
	ExpiredOrExpiringBy(ctx context.Context, to time.Time) ([]*models.Dues, error)
	CountByStatus(ctx context.Context) (map[domain.DuesStatus]int64, error)
	CountValidAt(ctx context.Context, now time.Time) (int64, error)
	TotalPaidBetween(ctx context.Context, from, to time.Time) (int64, decimal.Decimal, error)
	TotalsByMode(ctx context.Context) ([]ModeTotal, error)
}

// EventRepository defines event (evenement) repository interface
type EventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	GetByID(ctx context.Context, id string) (*models.Event, error)
	GetForUpdate(ctx context.Context, id string) (*models.Event, error)
	Update(ctx context.Context, event *models.Event) error
	Delete(ctx context.Context, id string) (int64, error)
	ReserveSeat(ctx context.Context, id string) (int64, error)
	ReleaseSeat(ctx context.Context, id string) (int64, error)
	UpdateCapacity(ctx context.Context, id string, total, remaining int) error
	List(ctx context.Context, filter EventFilter, offset, limit int) ([]*models.Event, int64, error)
	ListBetween(ctx context.Context, from, to time.Time, publishedOnly bool) ([]*models.Event, error)
	CountByCreator(ctx context.Context, memberID string) (int64, error)
	Count(ctx context.Context, filter EventFilter) (int64, error)
}

// RegistrationRepository defines registration (inscription) repository interface
type RegistrationRepository interface {
	Create(ctx context.Context, registration *models.Registration) error
	GetByPair(ctx context.Context, memberID, eventID string) (*models.Registration, error)
	Reactivate(ctx context.Context, id string, at time.Time) (int64, error)
	Cancel(ctx context.Context, id string) (int64, error)
	ListByEvent(ctx context.Context, eventID string, status *domain.RegistrationStatus) ([]*models.Registration, error)
	ListByMember(ctx context.Context, memberID string, startingFrom *time.Time) ([]*models.Registration, error)
	ListConfirmedByMember(ctx context.Context, memberID string) ([]*models.Registration, error)
	DeleteByEvent(ctx context.Context, eventID string) error
	DeleteByMember(ctx context.Context, memberID string) error
	CountByStatus(ctx context.Context) (map[domain.RegistrationStatus]int64, error)
}

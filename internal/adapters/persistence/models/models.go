package models

import (
	"time"

	"asso-manager/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ============================================================
// Members
// ============================================================

// Member represents members table
type Member struct {
	ID                  string              `gorm:"primaryKey;size:36" json:"id"`
	LastName            string              `gorm:"size:100;not null" json:"last_name"`
	FirstName           string              `gorm:"size:100;not null" json:"first_name"`
	Email               string              `gorm:"uniqueIndex;size:191;not null" json:"email"`
	Phone               *string             `gorm:"size:30" json:"phone"`
	Password            string              `gorm:"size:255;not null" json:"-"`
	Role                domain.Role         `gorm:"size:10;not null;index" json:"role"`
	Status              domain.MemberStatus `gorm:"size:10;not null;index" json:"status"`
	ResetToken          *string             `gorm:"size:128;index" json:"-"`
	ResetTokenExpiresAt *time.Time          `json:"-"`
	CreatedAt           time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Member) TableName() string {
	return "members"
}

func (m *Member) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// FullName returns "FirstName LastName"
func (m *Member) FullName() string {
	return m.FirstName + " " + m.LastName
}

// MemberSummary is the public subset of a member embedded in other records
type MemberSummary struct {
	ID        string              `json:"id"`
	LastName  string              `json:"last_name"`
	FirstName string              `json:"first_name"`
	Email     string              `json:"email"`
	Phone     *string             `json:"phone,omitempty"`
	Status    domain.MemberStatus `json:"status"`
}

func (m *Member) ToSummary() *MemberSummary {
	if m == nil {
		return nil
	}
	return &MemberSummary{
		ID:        m.ID,
		LastName:  m.LastName,
		FirstName: m.FirstName,
		Email:     m.Email,
		Phone:     m.Phone,
		Status:    m.Status,
	}
}

// ============================================================
// Dues (cotisations)
// ============================================================

// Dues represents dues table
type Dues struct {
	ID          string             `gorm:"primaryKey;size:36" json:"id"`
	MemberID    string             `gorm:"size:36;not null;uniqueIndex:idx_dues_member_period,priority:1" json:"member_id"`
	PaymentDate time.Time          `gorm:"not null;index" json:"payment_date"`
	Amount      decimal.Decimal    `gorm:"type:decimal(10,2);not null" json:"amount"`
	PaymentMode domain.PaymentMode `gorm:"size:20;not null;index" json:"payment_mode"`
	ExpiresAt   time.Time          `gorm:"not null;index" json:"expires_at"`
	Status      domain.DuesStatus  `gorm:"size:12;not null;index" json:"status"`
	Notes       *string            `gorm:"type:text" json:"notes"`
	Period      *string            `gorm:"size:7;uniqueIndex:idx_dues_member_period,priority:2" json:"period"`
	CreatedAt   time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time          `gorm:"autoUpdateTime" json:"updated_at"`

	Member *Member `gorm:"foreignKey:MemberID;constraint:OnDelete:CASCADE" json:"member,omitempty"`
}

func (Dues) TableName() string {
	return "dues"
}

func (d *Dues) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// ============================================================
// Events (evenements) & registrations (inscriptions)
// ============================================================

// Event represents events table
type Event struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	Title          string     `gorm:"size:200;not null" json:"title"`
	Description    *string    `gorm:"type:text" json:"description"`
	StartsAt       time.Time  `gorm:"not null;index" json:"starts_at"`
	EndsAt         *time.Time `json:"ends_at"`
	Location       string     `gorm:"size:255;not null" json:"location"`
	TotalSeats     int        `gorm:"not null" json:"total_seats"`
	RemainingSeats int        `gorm:"not null" json:"remaining_seats"`
	IsPublished    bool       `gorm:"not null;index" json:"is_published"`
	CreatorID      string     `gorm:"size:36;not null;index" json:"creator_id"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Creator *Member `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
}

func (Event) TableName() string {
	return "events"
}

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// Registration represents registrations table
type Registration struct {
	ID           string                    `gorm:"primaryKey;size:36" json:"id"`
	MemberID     string                    `gorm:"size:36;not null;uniqueIndex:idx_registration_member_event,priority:1" json:"member_id"`
	EventID      string                    `gorm:"size:36;not null;uniqueIndex:idx_registration_member_event,priority:2;index" json:"event_id"`
	Status       domain.RegistrationStatus `gorm:"size:12;not null;index" json:"status"`
	RegisteredAt time.Time                 `gorm:"not null" json:"registered_at"`
	CreatedAt    time.Time                 `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time                 `gorm:"autoUpdateTime" json:"updated_at"`

	Member *Member `gorm:"foreignKey:MemberID;constraint:OnDelete:CASCADE" json:"member,omitempty"`
	Event  *Event  `gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE" json:"event,omitempty"`
}

func (Registration) TableName() string {
	return "registrations"
}

func (r *Registration) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// ============================================================
// Migration
// ============================================================

// AutoMigrate creates or updates the association tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Member{},
		&Dues{},
		&Event{},
		&Registration{},
	)
}

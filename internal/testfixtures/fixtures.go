package testfixtures

import (
	"testing"
	"time"

	"asso-manager/internal/adapters/persistence/models"
	"asso-manager/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Member inserts an ACTIF MEMBRE with a unique email
func Member(t testing.TB, db *gorm.DB, mutate ...func(*models.Member)) *models.Member {
	t.Helper()

	m := &models.Member{
		LastName:  "Durand",
		FirstName: "Alice",
		Email:     "alice-" + uuid.NewString()[:8] + "@example.org",
		Password:  "$2a$04$placeholderplaceholderplaceholderplaceholderplace",
		Role:      domain.RoleMembre,
		Status:    domain.MemberActif,
	}
	for _, fn := range mutate {
		fn(m)
	}
	require.NoError(t, db.Create(m).Error)
	return m
}

// Event inserts a published event with seats free seats created by creatorID
func Event(t testing.TB, db *gorm.DB, creatorID string, seats int, mutate ...func(*models.Event)) *models.Event {
	t.Helper()

	e := &models.Event{
		Title:          "Assemblée générale",
		StartsAt:       time.Now().UTC().Add(7 * 24 * time.Hour).Truncate(time.Second),
		Location:       "Salle des fêtes",
		TotalSeats:     seats,
		RemainingSeats: seats,
		IsPublished:    true,
		CreatorID:      creatorID,
	}
	for _, fn := range mutate {
		fn(e)
	}
	require.NoError(t, db.Create(e).Error)
	return e
}

// Dues inserts an A_JOUR dues record for memberID expiring at expiresAt
func Dues(t testing.TB, db *gorm.DB, memberID string, expiresAt time.Time, mutate ...func(*models.Dues)) *models.Dues {
	t.Helper()

	d := &models.Dues{
		MemberID:    memberID,
		PaymentDate: expiresAt.AddDate(-1, 0, 0).UTC(),
		Amount:      decimal.RequireFromString("30.00"),
		PaymentMode: domain.PaymentEspeces,
		ExpiresAt:   expiresAt.UTC(),
		Status:      domain.DuesAJour,
	}
	for _, fn := range mutate {
		fn(d)
	}
	require.NoError(t, db.Create(d).Error)
	return d
}

// Registration inserts a registration with the given status
func Registration(t testing.TB, db *gorm.DB, memberID, eventID string, status domain.RegistrationStatus) *models.Registration {
	t.Helper()

	r := &models.Registration{
		MemberID:     memberID,
		EventID:      eventID,
		Status:       status,
		RegisteredAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, db.Create(r).Error)
	return r
}

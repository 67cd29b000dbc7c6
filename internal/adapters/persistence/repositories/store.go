package repositories

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the repositories sharing one database handle.
// Inside Transaction every repository of the callback's Store runs on the same tx.
type Store struct {
	db *gorm.DB

	Members       MemberRepository
	Dues          DuesRepository
	Events        EventRepository
	Registrations RegistrationRepository
}

// NewStore creates the repositories over db
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:            db,
		Members:       NewMemberRepository(db),
		Dues:          NewDuesRepository(db),
		Events:        NewEventRepository(db),
		Registrations: NewRegistrationRepository(db),
	}
}

// Transaction runs fn in a database transaction.
// Returning an error from fn rolls the whole unit back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

// DB exposes the underlying handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

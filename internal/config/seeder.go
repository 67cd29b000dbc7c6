package config

import (
	"context"
	"fmt"
	"log"
	"strings"

	"asso-manager/internal/adapters/persistence/models"
	"asso-manager/internal/core/domain"
	"asso-manager/internal/pkg/password"

	"gorm.io/gorm"
)

// Seeder handles database seeding
type Seeder struct {
	db   *gorm.DB
	seed SeedConfig
	cost int
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB, cfg *Config) *Seeder {
	return &Seeder{db: db, seed: cfg.Seed, cost: cfg.BcryptCost}
}

// Run executes all seeders
func (s *Seeder) Run(ctx context.Context) error {
	log.Println("🌱 Running database seeders...")

	if err := s.seedAdmin(ctx); err != nil {
		log.Printf("⚠️ Admin seeder skipped: %v", err)
	}

	log.Println("✅ Database seeding completed")
	return nil
}

// seedAdmin creates the bootstrap administrator when no ADMIN exists yet.
// Nothing is created unless ADMIN_EMAIL and ADMIN_PASSWORD are set.
func (s *Seeder) seedAdmin(ctx context.Context) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Member{}).
		Where("role = ?", domain.RoleAdmin).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil // Admin already exists
	}

	if s.seed.AdminEmail == "" || s.seed.AdminPassword == "" {
		log.Println("⚠️ Skipping admin seed: ADMIN_EMAIL / ADMIN_PASSWORD not set")
		return nil
	}

	if !password.ValidatePassword(s.seed.AdminPassword) {
		return fmt.Errorf("ADMIN_PASSWORD must be at least %d characters", password.MinLength)
	}
	hashed, err := password.HashWithCost(s.seed.AdminPassword, s.cost)
	if err != nil {
		return err
	}

	admin := &models.Member{
		LastName:  s.seed.AdminLastName,
		FirstName: s.seed.AdminFirstName,
		Email:     strings.ToLower(s.seed.AdminEmail),
		Password:  hashed,
		Role:      domain.RoleAdmin,
		Status:    domain.MemberBureau,
	}
	if err := s.db.WithContext(ctx).Create(admin).Error; err != nil {
		return err
	}

	log.Printf("✅ Admin member created: %s", admin.Email)
	return nil
}

package repositories

import (
	"context"
	"time"

	"asso-manager/internal/adapters/persistence/models"
	"asso-manager/internal/core/domain"

	"gorm.io/gorm"
)

// registrationRepository implements RegistrationRepository interface
type registrationRepository struct {
	db *gorm.DB
}

// NewRegistrationRepository creates a new registration repository
func NewRegistrationRepository(db *gorm.DB) RegistrationRepository {
	return &registrationRepository{db: db}
}

func (r *registrationRepository) Create(ctx context.Context, registration *models.Registration) error {
	return r.db.WithContext(ctx).Omit("Member", "Event").Create(registration).Error
}

// GetByPair gets the registration of a member for an event, whatever its status
func (r *registrationRepository) GetByPair(ctx context.Context, memberID, eventID string) (*models.Registration, error) {
	var registration models.Registration
	err := r.db.WithContext(ctx).
		Where("member_id = ? AND event_id = ?", memberID, eventID).
		First(&registration).Error
	if err != nil {
		return nil, err
	}
	return &registration, nil
}

// Reactivate flips a cancelled registration back to CONFIRMEE.
// 0 rows means it was not cancelled anymore.
func (r *registrationRepository) Reactivate(ctx context.Context, id string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Registration{}).
		Where("id = ? AND status = ?", id, domain.RegistrationAnnulee).
		Updates(map[string]interface{}{
			"status":        domain.RegistrationConfirmee,
			"registered_at": at,
		})
	return result.RowsAffected, result.Error
}

// Cancel sets the registration to ANNULEE. 0 rows means it already was.
func (r *registrationRepository) Cancel(ctx context.Context, id string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Registration{}).
		Where("id = ? AND status <> ?", id, domain.RegistrationAnnulee).
		Update("status", domain.RegistrationAnnulee)
	return result.RowsAffected, result.Error
}

// ListByEvent lists registrations of an event with their members, oldest first
func (r *registrationRepository) ListByEvent(ctx context.Context, eventID string, status *domain.RegistrationStatus) ([]*models.Registration, error) {
	var items []*models.Registration
	q := r.db.WithContext(ctx).
		Preload("Member").
		Where("event_id = ?", eventID)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	err := q.Order("registered_at ASC").Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ListByMember lists a member's registrations with their events.
// With startingFrom set only events starting at or after it are returned.
func (r *registrationRepository) ListByMember(ctx context.Context, memberID string, startingFrom *time.Time) ([]*models.Registration, error) {
	var items []*models.Registration
	q := r.db.WithContext(ctx).
		Select("registrations.*").
		Joins("JOIN events ON events.id = registrations.event_id").
		Preload("Event").
		Where("registrations.member_id = ?", memberID)
	if startingFrom != nil {
		q = q.Where("events.starts_at >= ?", *startingFrom)
	}
	err := q.Order("events.starts_at ASC").Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *registrationRepository) ListConfirmedByMember(ctx context.Context, memberID string) ([]*models.Registration, error) {
	var items []*models.Registration
	err := r.db.WithContext(ctx).
		Where("member_id = ? AND status = ?", memberID, domain.RegistrationConfirmee).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *registrationRepository) DeleteByEvent(ctx context.Context, eventID string) error {
	return r.db.WithContext(ctx).Where("event_id = ?", eventID).Delete(&models.Registration{}).Error
}

func (r *registrationRepository) DeleteByMember(ctx context.Context, memberID string) error {
	return r.db.WithContext(ctx).Where("member_id = ?", memberID).Delete(&models.Registration{}).Error
}

func (r *registrationRepository) CountByStatus(ctx context.Context) (map[domain.RegistrationStatus]int64, error) {
	var rows []struct {
		Status domain.RegistrationStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&models.Registration{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[domain.RegistrationStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

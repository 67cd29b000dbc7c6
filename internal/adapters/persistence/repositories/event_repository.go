package repositories

import (
	"context"
	"strings"
	"time"

	"asso-manager/internal/adapters/persistence/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// eventRepository implements EventRepository interface
type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Create(ctx context.Context, event *models.Event) error {
	return r.db.WithContext(ctx).Omit("Creator").Create(event).Error
}

// GetByID gets an event with its creator
func (r *eventRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := r.db.WithContext(ctx).
		Preload("Creator").
		First(&event, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// GetForUpdate loads an event holding a row lock until the transaction ends.
// SQLite has no row locks; its writers are serialized by the immediate tx lock.
func (r *eventRepository) GetForUpdate(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&event, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepository) Update(ctx context.Context, event *models.Event) error {
	return r.db.WithContext(ctx).Omit("Creator").Save(event).Error
}

func (r *eventRepository) Delete(ctx context.Context, id string) (int64, error) {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Event{})
	return result.RowsAffected, result.Error
}

// ReserveSeat takes one seat if the event is published and not full.
// It returns 0 rows when any of those conditions fails.
func (r *eventRepository) ReserveSeat(ctx context.Context, id string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Event{}).
		Where("id = ? AND is_published = ? AND remaining_seats > 0", id, true).
		Update("remaining_seats", gorm.Expr("remaining_seats - 1"))
	return result.RowsAffected, result.Error
}

// ReleaseSeat gives one seat back, never above total_seats
func (r *eventRepository) ReleaseSeat(ctx context.Context, id string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Event{}).
		Where("id = ?", id).
		Update("remaining_seats", gorm.Expr(
			"CASE WHEN remaining_seats < total_seats THEN remaining_seats + 1 ELSE remaining_seats END",
		))
	return result.RowsAffected, result.Error
}

func (r *eventRepository) UpdateCapacity(ctx context.Context, id string, total, remaining int) error {
	return r.db.WithContext(ctx).Model(&models.Event{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_seats":     total,
			"remaining_seats": remaining,
		}).Error
}

func applyEventFilter(q *gorm.DB, filter EventFilter) *gorm.DB {
	if filter.Published != nil {
		q = q.Where("is_published = ?", *filter.Published)
	}
	if filter.UpcomingFrom != nil {
		q = q.Where("starts_at >= ?", *filter.UpcomingFrom)
	}
	if filter.FullOnly {
		q = q.Where("remaining_seats = 0")
	}
	if s := strings.ToLower(strings.TrimSpace(filter.Search)); s != "" {
		like := "%" + s + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(location) LIKE ? OR LOWER(description) LIKE ?", like, like, like)
	}
	return q
}

// List lists events with filters and pagination, soonest first
func (r *eventRepository) List(ctx context.Context, filter EventFilter, offset, limit int) ([]*models.Event, int64, error) {
	var events []*models.Event
	var total int64

	q := applyEventFilter(r.db.WithContext(ctx).Model(&models.Event{}), filter)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := q.Preload("Creator").
		Order("starts_at ASC").
		Offset(offset).
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

// ListBetween returns events starting in [from, to)
func (r *eventRepository) ListBetween(ctx context.Context, from, to time.Time, publishedOnly bool) ([]*models.Event, error) {
	var events []*models.Event
	q := r.db.WithContext(ctx).
		Where("starts_at >= ? AND starts_at < ?", from, to)
	if publishedOnly {
		q = q.Where("is_published = ?", true)
	}
	err := q.Order("starts_at ASC").Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) CountByCreator(ctx context.Context, memberID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Event{}).
		Where("creator_id = ?", memberID).
		Count(&count).Error
	return count, err
}

func (r *eventRepository) Count(ctx context.Context, filter EventFilter) (int64, error) {
	var count int64
	err := applyEventFilter(r.db.WithContext(ctx).Model(&models.Event{}), filter).
		Count(&count).Error
	return count, err
}

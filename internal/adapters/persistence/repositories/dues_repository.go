package repositories

import (
	"context"
	"time"

	"asso-manager/internal/adapters/persistence/models"
	"asso-manager/internal/core/domain"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// duesRepository implements DuesRepository interface
type duesRepository struct {
	db *gorm.DB
}

// NewDuesRepository creates a new dues repository
func NewDuesRepository(db *gorm.DB) DuesRepository {
	return &duesRepository{db: db}
}

func (r *duesRepository) Create(ctx context.Context, dues *models.Dues) error {
	return r.db.WithContext(ctx).Create(dues).Error
}

// GetByID gets a dues record with its member
func (r *duesRepository) GetByID(ctx context.Context, id string) (*models.Dues, error) {
	var dues models.Dues
	err := r.db.WithContext(ctx).
		Preload("Member").
		First(&dues, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &dues, nil
}

func (r *duesRepository) Update(ctx context.Context, dues *models.Dues) error {
	return r.db.WithContext(ctx).Omit("Member").Save(dues).Error
}

func (r *duesRepository) Delete(ctx context.Context, id string) (int64, error) {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Dues{})
	return result.RowsAffected, result.Error
}

func (r *duesRepository) DeleteByMember(ctx context.Context, memberID string) error {
	return r.db.WithContext(ctx).Where("member_id = ?", memberID).Delete(&models.Dues{}).Error
}

// ExistsPeriod checks if the member already has dues for period, ignoring excludeID
func (r *duesRepository) ExistsPeriod(ctx context.Context, memberID, period, excludeID string) (bool, error) {
	var count int64
	q := r.db.WithContext(ctx).Model(&models.Dues{}).
		Where("member_id = ? AND period = ?", memberID, period)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	err := q.Count(&count).Error
	return count > 0, err
}

// List lists dues with filters and pagination, newest payment first
func (r *duesRepository) List(ctx context.Context, filter DuesFilter, offset, limit int) ([]*models.Dues, int64, error) {
	var items []*models.Dues
	var total int64

	q := r.db.WithContext(ctx).Model(&models.Dues{})
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.MemberID != "" {
		q = q.Where("member_id = ?", filter.MemberID)
	}
	if filter.Mode != nil {
		q = q.Where("payment_mode = ?", *filter.Mode)
	}
	if filter.PaidFrom != nil {
		q = q.Where("payment_date >= ?", filter.PaidFrom.UTC())
	}
	if filter.PaidTo != nil {
		q = q.Where("payment_date <= ?", filter.PaidTo.UTC())
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := q.Preload("Member").
		Order("payment_date DESC").
		Offset(offset).
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}

	return items, total, nil
}

func (r *duesRepository) ListByMember(ctx context.Context, memberID string) ([]*models.Dues, error) {
	var items []*models.Dues
	err := r.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("payment_date DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// LatestByMember returns the dues record with the most recent payment date
func (r *duesRepository) LatestByMember(ctx context.Context, memberID string) (*models.Dues, error) {
	var dues models.Dues
	err := r.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("payment_date DESC").
		First(&dues).Error
	if err != nil {
		return nil, err
	}
	return &dues, nil
}

// ExpireBefore flips every non-expired record with expires_at < now to EXPIRE
// in one statement and returns the number of rows changed.
func (r *duesRepository) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Dues{}).
		Where("expires_at < ? AND status <> ?", now, domain.DuesExpire).
		Update("status", domain.DuesExpire)
	return result.RowsAffected, result.Error
}

// ExpiringBetween returns A_JOUR records expiring in [from, to], soonest first
func (r *duesRepository) ExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.Dues, error) {
	var items []*models.Dues
	err := r.db.WithContext(ctx).
		Preload("Member").
		Where("status = ? AND expires_at >= ? AND expires_at <= ?", domain.DuesAJour, from, to).
		Order("expires_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ExpiredOrExpiringBy returns A_JOUR and EXPIRE records with expires_at <= to,
// oldest first. EN_ATTENTE records are left out.
func (r *duesRepository) ExpiredOrExpiringBy(ctx context.Context, to time.Time) ([]*models.Dues, error) {
	var items []*models.Dues
	err := r.db.WithContext(ctx).
		Preload("Member").
		Where("status IN ? AND expires_at <= ?", []domain.DuesStatus{domain.DuesAJour, domain.DuesExpire}, to).
		Order("expires_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// CountValidAt counts A_JOUR records not yet past expiration at now
func (r *duesRepository) CountValidAt(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Dues{}).
		Where("status = ? AND expires_at >= ?", domain.DuesAJour, now).
		Count(&count).Error
	return count, err
}

func (r *duesRepository) CountByStatus(ctx context.Context) (map[domain.DuesStatus]int64, error) {
	var rows []struct {
		Status domain.DuesStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&models.Dues{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[domain.DuesStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// TotalPaidBetween returns the count and amount of payments in [from, to)
func (r *duesRepository) TotalPaidBetween(ctx context.Context, from, to time.Time) (int64, decimal.Decimal, error) {
	var row struct {
		Count  int64
		Amount decimal.Decimal
	}
	err := r.db.WithContext(ctx).Model(&models.Dues{}).
		Select("COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount").
		Where("payment_date >= ? AND payment_date < ?", from, to).
		Scan(&row).Error
	if err != nil {
		return 0, decimal.Zero, err
	}
	return row.Count, row.Amount, nil
}

func (r *duesRepository) TotalsByMode(ctx context.Context) ([]ModeTotal, error) {
	var rows []ModeTotal
	err := r.db.WithContext(ctx).Model(&models.Dues{}).
		Select("payment_mode, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount").
		Group("payment_mode").
		Order("payment_mode ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"clinic-frontdesk-server/internal/models"
)

var priorityOrder = models.PriorityRankSQL("priority") + " DESC"

type queueRepository struct {
	db *gorm.DB
}

// NewQueueRepository returns the gorm backed QueueRepository.
func NewQueueRepository(db *gorm.DB) QueueRepository {
	return &queueRepository{db: db}
}

func (r *queueRepository) Atomically(ctx context.Context, scope string, fn func(repo QueueRepository) error) error {
	return atomically(ctx, r.db, scope, func(tx *gorm.DB) error {
		return fn(&queueRepository{db: tx})
	})
}

func (r *queueRepository) LockScope(ctx context.Context, scope string) error {
	return lockScope(r.db.WithContext(ctx), scope)
}

func (r *queueRepository) Create(ctx context.Context, item *models.QueueItem) error {
	return translate(r.db.WithContext(ctx).Omit(clause.Associations).Create(item).Error)
}

func (r *queueRepository) Save(ctx context.Context, item *models.QueueItem) error {
	return translate(r.db.WithContext(ctx).Omit(clause.Associations).Save(item).Error)
}

func (r *queueRepository) SaveIfStatus(ctx context.Context, item *models.QueueItem, expected models.QueueStatus) error {
	res := r.db.WithContext(ctx).
		Model(&models.QueueItem{}).
		Where("id = ? AND status = ?", item.ID, expected).
		Select("status", "priority", "reason", "notes", "called_at", "completed_at", "updated_at").
		Updates(map[string]interface{}{
			"status":       item.Status,
			"priority":     item.Priority,
			"reason":       item.Reason,
			"notes":        item.Notes,
			"called_at":    item.CalledAt,
			"completed_at": item.CompletedAt,
			"updated_at":   r.db.NowFunc(),
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrRaceLost
	}
	return nil
}

func (r *queueRepository) FindByID(ctx context.Context, id uint) (*models.QueueItem, error) {
	var item models.QueueItem
	if err := r.db.WithContext(ctx).Preload("Patient").First(&item, id).Error; err != nil {
		return nil, notFound(err, "queue item", id)
	}
	return &item, nil
}

func (r *queueRepository) filter(ctx context.Context, f QueueFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.QueueItem{})
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.Priority != "" {
		q = q.Where("priority = ?", f.Priority)
	}
	if f.PatientID != 0 {
		q = q.Where("patient_id = ?", f.PatientID)
	}
	if f.Day != "" {
		q = q.Where("queue_day = ?", f.Day)
	}
	if f.CalledOnly {
		q = q.Where("called_at IS NOT NULL")
	}
	if f.ExcludeID != 0 {
		q = q.Where("id <> ?", f.ExcludeID)
	}
	return q
}

func (r *queueRepository) Find(ctx context.Context, f QueueFilter) ([]models.QueueItem, error) {
	q := r.filter(ctx, f)
	if f.Order == OrderByPriority {
		q = q.Order(priorityOrder)
	}
	q = q.Order("queue_day ASC").Order("queue_number ASC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Preload {
		q = q.Preload("Patient")
	}

	var out []models.QueueItem
	err := q.Find(&out).Error
	return out, translate(err)
}

func (r *queueRepository) Count(ctx context.Context, f QueueFilter) (int64, error) {
	var n int64
	err := r.filter(ctx, f).Count(&n).Error
	return n, translate(err)
}

func (r *queueRepository) MaxQueueNumber(ctx context.Context, day string) (int, error) {
	var highest int
	err := r.db.WithContext(ctx).
		Model(&models.QueueItem{}).
		Where("queue_day = ?", day).
		Select("COALESCE(MAX(queue_number), 0)").
		Scan(&highest).Error
	return highest, translate(err)
}

func (r *queueRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.QueueItem{}, id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFound("queue item", id)
	}
	return nil
}

func (r *queueRepository) PatientExists(ctx context.Context, id uint) (bool, error) {
	return patientExists(ctx, r.db, id)
}

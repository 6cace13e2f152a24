// Package repository is the record store behind the scheduler and the walk-in
// queue. Interfaces are consumed by internal/services; the gorm
// implementations work on MySQL, PostgreSQL and SQLite.
package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"clinic-frontdesk-server/internal/models"
)

// AppointmentFilter selects appointments. Zero fields do not filter.
type AppointmentFilter struct {
	PatientID uint
	DoctorID  uint
	Date      string
	From      string // inclusive
	To        string // inclusive
	Statuses  []models.AppointmentStatus
	// ExcludeCancelled drops cancelled appointments.
	ExcludeCancelled bool
	ExcludeID        uint
	Preload          bool
}

// AppointmentRepository stores appointments.
type AppointmentRepository interface {
	// Atomically runs fn inside a transaction holding the lock of scope.
	Atomically(ctx context.Context, scope string, fn func(repo AppointmentRepository) error) error
	Create(ctx context.Context, a *models.Appointment) error
	// SaveIfUnchanged writes a only while the stored status, doctor, date,
	// time and duration still match prev. It returns models.ErrRaceLost when
	// another writer moved or re-statused the appointment first.
	SaveIfUnchanged(ctx context.Context, a, prev *models.Appointment) error
	FindByID(ctx context.Context, id uint) (*models.Appointment, error)
	Find(ctx context.Context, f AppointmentFilter) ([]models.Appointment, error)
	Delete(ctx context.Context, id uint) error
	PatientExists(ctx context.Context, id uint) (bool, error)
	FindDoctor(ctx context.Context, id uint) (*models.Doctor, error)
}

// QueueOrder selects how queue listings are sorted.
type QueueOrder int

const (
	// OrderByPriority serves higher priority first, then earlier day, then lower number.
	OrderByPriority QueueOrder = iota
	// OrderByNumber ignores priority.
	OrderByNumber
)

// QueueFilter selects queue items. Zero fields do not filter.
type QueueFilter struct {
	Statuses   []models.QueueStatus
	Priority   models.Priority
	PatientID  uint
	Day        string
	CalledOnly bool
	ExcludeID  uint
	Order      QueueOrder
	Limit      int
	Preload    bool
}

// QueueRepository stores walk-in queue items.
type QueueRepository interface {
	// Atomically runs fn inside a transaction holding the lock of scope.
	Atomically(ctx context.Context, scope string, fn func(repo QueueRepository) error) error
	// LockScope takes one more scope lock inside Atomically. Callers lock
	// a queue day before a patient, never the reverse.
	LockScope(ctx context.Context, scope string) error
	Create(ctx context.Context, item *models.QueueItem) error
	Save(ctx context.Context, item *models.QueueItem) error
	// SaveIfStatus writes item only while its stored status is still expected.
	// It returns models.ErrRaceLost when another writer changed it first.
	SaveIfStatus(ctx context.Context, item *models.QueueItem, expected models.QueueStatus) error
	FindByID(ctx context.Context, id uint) (*models.QueueItem, error)
	Find(ctx context.Context, f QueueFilter) ([]models.QueueItem, error)
	Count(ctx context.Context, f QueueFilter) (int64, error)
	// MaxQueueNumber returns the highest number issued on day, 0 when none.
	MaxQueueNumber(ctx context.Context, day string) (int, error)
	Delete(ctx context.Context, id uint) error
	PatientExists(ctx context.Context, id uint) (bool, error)
}

// lockScope takes the row lock of scope for the rest of tx. The row is
// created on first use; SQLite ignores FOR UPDATE and serializes the whole
// transaction instead.
func lockScope(tx *gorm.DB, scope string) error {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.ScopeLock{Scope: scope}).Error; err != nil {
		return translate(err)
	}
	var lock models.ScopeLock
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("scope = ?", scope).
		First(&lock).Error
	return translate(err)
}

// atomically wraps fn in a transaction that first locks scope.
func atomically(ctx context.Context, db *gorm.DB, scope string, fn func(tx *gorm.DB) error) error {
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockScope(tx, scope); err != nil {
			return err
		}
		return fn(tx)
	})
	return translate(err)
}

func patientExists(ctx context.Context, db *gorm.DB, id uint) (bool, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&models.Patient{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"clinic-frontdesk-server/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := models.InitDB(models.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          ":memory:",
		MaxOpenConns: 1,
		LogLevel:     logger.Silent,
	})
	require.NoError(t, err)
	return db
}

func seedPatient(t *testing.T, db *gorm.DB, first string) *models.Patient {
	t.Helper()
	p := &models.Patient{
		FirstName: first, LastName: "Doe", Email: first + "@example.test", Phone: "555",
		DateOfBirth: "1990-01-01", Gender: models.GenderOther, Address: "1 Main St",
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func seedDoctor(t *testing.T, db *gorm.DB) *models.Doctor {
	t.Helper()
	d := &models.Doctor{
		FirstName: "Greg", LastName: "House", Email: "house@example.test", Phone: "1",
		Specialization: models.SpecGeneralPractitioner, Gender: models.GenderMale, Location: "Main",
		IsAvailable: true, StartTime: "09:00", EndTime: "17:00",
	}
	require.NoError(t, db.Create(d).Error)
	return d
}

func TestAtomicallyRollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueueRepository(db)
	p := seedPatient(t, db, "ann")
	ctx := context.Background()

	boom := errors.New("boom")
	err := repo.Atomically(ctx, "queue:day:2024-01-10", func(tx QueueRepository) error {
		require.NoError(t, tx.Create(ctx, &models.QueueItem{
			QueueNumber: 1, QueueDay: "2024-01-10", PatientID: p.ID,
			Status: models.QueueWaiting, Priority: models.PriorityNormal,
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := repo.Count(ctx, QueueFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)

	var locks int64
	require.NoError(t, db.Model(&models.ScopeLock{}).Count(&locks).Error)
	assert.Zero(t, locks, "lock row is part of the rolled back transaction")
}

func TestAtomicallyReusesScopeRow(t *testing.T) {
	db := newTestDB(t)
	repo := NewAppointmentRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Atomically(ctx, "appointments:doctor:1:2024-01-10", func(AppointmentRepository) error {
			return nil
		}))
	}

	var locks int64
	require.NoError(t, db.Model(&models.ScopeLock{}).Count(&locks).Error)
	assert.Equal(t, int64(1), locks)
}

func TestLockScopeInsideAtomically(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Atomically(ctx, "queue:day:2024-01-10", func(tx QueueRepository) error {
		return tx.LockScope(ctx, "queue:patient:7")
	}))

	var scopes []string
	require.NoError(t, db.Model(&models.ScopeLock{}).Order("scope").Pluck("scope", &scopes).Error)
	assert.Equal(t, []string{"queue:day:2024-01-10", "queue:patient:7"}, scopes)
}

func TestQueueOrdering(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	priorities := []models.Priority{models.PriorityNormal, models.PriorityUrgent, models.PriorityNormal, models.PriorityLow, models.PriorityHigh}
	for i, pr := range priorities {
		p := seedPatient(t, db, string(rune('a'+i)))
		require.NoError(t, repo.Create(ctx, &models.QueueItem{
			QueueNumber: i + 1, QueueDay: "2024-01-10", PatientID: p.ID,
			Status: models.QueueWaiting, Priority: pr,
		}))
	}

	byPriority, err := repo.Find(ctx, QueueFilter{Order: OrderByPriority, Preload: true})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5, 1, 3, 4}, numbers(byPriority))
	require.NotNil(t, byPriority[0].Patient)

	byNumber, err := repo.Find(ctx, QueueFilter{Order: OrderByNumber})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, numbers(byNumber))

	top, err := repo.Find(ctx, QueueFilter{Statuses: []models.QueueStatus{models.QueueWaiting}, Limit: 1})
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, 2, top[0].QueueNumber)

	normals, err := repo.Count(ctx, QueueFilter{Priority: models.PriorityNormal})
	require.NoError(t, err)
	assert.Equal(t, int64(2), normals)
}

func TestMaxQueueNumberPerDay(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()
	p := seedPatient(t, db, "bob")

	n, err := repo.MaxQueueNumber(ctx, "2024-01-10")
	require.NoError(t, err)
	assert.Zero(t, n)

	for i := 1; i <= 3; i++ {
		require.NoError(t, repo.Create(ctx, &models.QueueItem{
			QueueNumber: i, QueueDay: "2024-01-10", PatientID: p.ID,
			Status: models.QueueCompleted, Priority: models.PriorityNormal,
		}))
	}

	n, err = repo.MaxQueueNumber(ctx, "2024-01-10")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = repo.MaxQueueNumber(ctx, "2024-01-11")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDuplicateQueueNumberIsRaceLost(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()
	p := seedPatient(t, db, "cy")

	item := func() *models.QueueItem {
		return &models.QueueItem{
			QueueNumber: 1, QueueDay: "2024-01-10", PatientID: p.ID,
			Status: models.QueueWaiting, Priority: models.PriorityNormal,
		}
	}
	require.NoError(t, repo.Create(ctx, item()))
	err := repo.Create(ctx, item())
	assert.ErrorIs(t, err, models.ErrRaceLost)

	require.NoError(t, repo.Create(ctx, &models.QueueItem{
		QueueNumber: 1, QueueDay: "2024-01-11", PatientID: p.ID,
		Status: models.QueueWaiting, Priority: models.PriorityNormal,
	}), "numbers restart on a new day")
}

func TestSaveIfStatus(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()
	p := seedPatient(t, db, "dee")

	item := &models.QueueItem{
		QueueNumber: 1, QueueDay: "2024-01-10", PatientID: p.ID,
		Status: models.QueueWaiting, Priority: models.PriorityNormal,
	}
	require.NoError(t, repo.Create(ctx, item))

	now := time.Date(2024, 1, 10, 9, 30, 0, 0, time.UTC)
	item.ApplyStatus(models.QueueWithDoctor, now)
	require.NoError(t, repo.SaveIfStatus(ctx, item, models.QueueWaiting))

	stored, err := repo.FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueWithDoctor, stored.Status)
	require.NotNil(t, stored.CalledAt)
	assert.True(t, now.Equal(*stored.CalledAt))

	err = repo.SaveIfStatus(ctx, item, models.QueueWaiting)
	assert.ErrorIs(t, err, models.ErrRaceLost)
}

func TestQueueFindByIDAndDeleteMissing(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	_, err := repo.FindByID(ctx, 42)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, 42), models.ErrNotFound)

	ok, err := repo.PatientExists(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAppointmentFind(t *testing.T) {
	db := newTestDB(t)
	repo := NewAppointmentRepository(db)
	ctx := context.Background()
	p := seedPatient(t, db, "eve")
	d := seedDoctor(t, db)

	mk := func(date, at string, status models.AppointmentStatus) *models.Appointment {
		a := &models.Appointment{
			PatientID: p.ID, DoctorID: d.ID, AppointmentDate: date, AppointmentTime: at,
			Duration: 30, Status: status, Type: models.TypeConsultation,
		}
		require.NoError(t, repo.Create(ctx, a))
		return a
	}
	a1 := mk("2024-01-10", "10:00", models.AppointmentBooked)
	a2 := mk("2024-01-10", "09:00", models.AppointmentCancelled)
	mk("2024-01-11", "09:00", models.AppointmentConfirmed)
	mk("2024-01-15", "09:00", models.AppointmentBooked)

	sameDay, err := repo.Find(ctx, AppointmentFilter{DoctorID: d.ID, Date: "2024-01-10"})
	require.NoError(t, err)
	require.Len(t, sameDay, 2)
	assert.Equal(t, a2.ID, sameDay[0].ID, "ordered by time")

	blocking, err := repo.Find(ctx, AppointmentFilter{DoctorID: d.ID, Date: "2024-01-10", ExcludeCancelled: true})
	require.NoError(t, err)
	require.Len(t, blocking, 1)
	assert.Equal(t, a1.ID, blocking[0].ID)

	excluded, err := repo.Find(ctx, AppointmentFilter{DoctorID: d.ID, Date: "2024-01-10", ExcludeCancelled: true, ExcludeID: a1.ID})
	require.NoError(t, err)
	assert.Empty(t, excluded)

	ranged, err := repo.Find(ctx, AppointmentFilter{From: "2024-01-10", To: "2024-01-11"})
	require.NoError(t, err)
	assert.Len(t, ranged, 3)

	byStatus, err := repo.Find(ctx, AppointmentFilter{Statuses: []models.AppointmentStatus{models.AppointmentConfirmed}})
	require.NoError(t, err)
	assert.Len(t, byStatus, 1)

	loaded, err := repo.FindByID(ctx, a1.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.Patient)
	require.NotNil(t, loaded.Doctor)
	assert.Equal(t, "eve", loaded.Patient.FirstName)

	require.NoError(t, repo.Delete(ctx, a1.ID))
	_, err = repo.FindByID(ctx, a1.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = repo.FindDoctor(ctx, 999)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAppointmentSaveIfUnchanged(t *testing.T) {
	db := newTestDB(t)
	repo := NewAppointmentRepository(db)
	ctx := context.Background()
	p := seedPatient(t, db, "fay")
	d := seedDoctor(t, db)

	a := &models.Appointment{
		PatientID: p.ID, DoctorID: d.ID, AppointmentDate: "2024-01-10", AppointmentTime: "09:00",
		Duration: 30, Status: models.AppointmentBooked, Type: models.TypeFollowUp,
	}
	require.NoError(t, repo.Create(ctx, a))

	loaded, err := repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	edited := *loaded
	edited.Notes = "bring scans"
	edited.Patient = &models.Patient{FirstName: "changed"}
	require.NoError(t, repo.SaveIfUnchanged(ctx, &edited, loaded))

	again, err := repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "bring scans", again.Notes)
	assert.Equal(t, "fay", again.Patient.FirstName, "relations are not written")

	moved := *again
	moved.AppointmentTime = "11:00"
	require.NoError(t, repo.SaveIfUnchanged(ctx, &moved, again))

	// A writer still holding the 09:00 copy must not put it back.
	stale := *again
	stale.Status = models.AppointmentConfirmed
	assert.ErrorIs(t, repo.SaveIfUnchanged(ctx, &stale, again), models.ErrRaceLost)

	final, err := repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "11:00", final.AppointmentTime)
	assert.Equal(t, models.AppointmentBooked, final.Status)
}

func numbers(items []models.QueueItem) []int {
	out := make([]int, len(items))
	for i, it := range items {
		out[i] = it.QueueNumber
	}
	return out
}

package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"clinic-frontdesk-server/internal/models"
	"clinic-frontdesk-server/internal/repository"
)

// mapCache is an in-process cache.Cache.
type mapCache struct {
	mu        sync.Mutex
	entries   map[string][]byte
	beforeSet func()
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string][]byte{}}
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) {
	if hook := c.beforeSet; hook != nil {
		c.beforeSet = nil
		hook()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

func (c *mapCache) Delete(_ context.Context, keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
}

func (c *mapCache) Incr(_ context.Context, key string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, _ := strconv.ParseInt(string(c.entries[key]), 10, 64)
	n++
	c.entries[key] = []byte(strconv.FormatInt(n, 10))
	return n, true
}

type queueFixture struct {
	db    *gorm.DB
	svc   *QueueService
	clock *clock
	cache *mapCache
}

func newQueueFixture(t *testing.T, strict bool) *queueFixture {
	t.Helper()
	db := newTestDB(t)
	c := newClock("2024-01-10 08:00")
	opts := testOptions(c)
	opts.StrictTransitions = strict
	mc := newMapCache()
	return &queueFixture{
		db:    db,
		svc:   NewQueueService(repository.NewQueueRepository(db), mc, time.Minute, opts, nil, nil),
		clock: c,
		cache: mc,
	}
}

func (f *queueFixture) enqueue(t *testing.T, name string, p models.Priority) *models.QueueItem {
	t.Helper()
	patient := seedPatient(t, f.db, name)
	item, err := f.svc.Enqueue(context.Background(), EnqueueInput{PatientID: patient.ID, Priority: p})
	require.NoError(t, err)
	return item
}

func queueNumbers(items []models.QueueItem) []int {
	out := make([]int, len(items))
	for i := range items {
		out[i] = items[i].QueueNumber
	}
	return out
}

func TestEnqueueNumbersPerDay(t *testing.T) {
	f := newQueueFixture(t, true)

	a := f.enqueue(t, "ann", "")
	b := f.enqueue(t, "bob", models.PriorityHigh)
	assert.Equal(t, 1, a.QueueNumber)
	assert.Equal(t, 2, b.QueueNumber)
	assert.Equal(t, "2024-01-10", a.QueueDay)
	assert.Equal(t, models.PriorityNormal, a.Priority)
	assert.Equal(t, models.QueueWaiting, a.Status)
	require.NotNil(t, a.Patient)
	assert.Equal(t, "ann", a.Patient.FirstName)

	f.clock.Advance(24 * time.Hour)
	c := f.enqueue(t, "cid", models.PriorityLow)
	assert.Equal(t, 1, c.QueueNumber, "numbering restarts each day")
	assert.Equal(t, "2024-01-11", c.QueueDay)
}

func TestEnqueueValidation(t *testing.T) {
	f := newQueueFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.Enqueue(ctx, EnqueueInput{})
	assert.True(t, IsValidation(err))

	_, err = f.svc.Enqueue(ctx, EnqueueInput{PatientID: 1, Priority: "asap"})
	assert.True(t, IsValidation(err))

	_, err = f.svc.Enqueue(ctx, EnqueueInput{PatientID: 42})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestOnlyOneWaitingItemPerPatient(t *testing.T) {
	f := newQueueFixture(t, true)
	ctx := context.Background()

	first := f.enqueue(t, "ann", models.PriorityNormal)
	_, err := f.svc.Enqueue(ctx, EnqueueInput{PatientID: first.PatientID})
	assert.ErrorIs(t, err, models.ErrAlreadyQueued)

	called, err := f.svc.CallNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, called)
	assert.Equal(t, first.ID, called.ID)

	again, err := f.svc.Enqueue(ctx, EnqueueInput{PatientID: first.PatientID})
	require.NoError(t, err, "a patient with the doctor may queue again")
	assert.Equal(t, 2, again.QueueNumber)
}

func TestPriorityOrderingAndEstimates(t *testing.T) {
	f := newQueueFixture(t, true)
	ctx := context.Background()

	a := f.enqueue(t, "ann", models.PriorityNormal)
	b := f.enqueue(t, "bob", models.PriorityNormal)
	c := f.enqueue(t, "cid", models.PriorityUrgent)
	d := f.enqueue(t, "dee", models.PriorityLow)

	assert.Equal(t, 0, a.EstimatedWaitTime)
	assert.Equal(t, 15, b.EstimatedWaitTime)
	assert.Equal(t, 0, c.EstimatedWaitTime, "urgent jumps the line")
	assert.Equal(t, 45, d.EstimatedWaitTime)

	active, err := f.svc.FindActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1, 2, 4}, queueNumbers(active))

	normal, err := f.svc.FindByPriority(ctx, models.PriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, queueNumbers(normal))

	_, err = f.svc.FindByPriority(ctx, "asap")
	assert.True(t, IsValidation(err))

	for _, want := range []uint{c.ID, a.ID, b.ID, d.ID} {
		called, err := f.svc.CallNext(ctx)
		require.NoError(t, err)
		require.NotNil(t, called)
		assert.Equal(t, want, called.ID)
		assert.Equal(t, models.QueueWithDoctor, called.Status)
		assert.NotNil(t, called.CalledAt)
	}

	none, err := f.svc.CallNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	withDoctor, err := f.svc.FindByStatus(ctx, models.QueueWithDoctor)
	require.NoError(t, err)
	assert.Len(t, withDoctor, 4)
}

func TestQueueStatusTransitions(t *testing.T) {
	f := newQueueFixture(t, true)
	ctx := context.Background()

	item := f.enqueue(t, "ann", models.PriorityNormal)

	_, err := f.svc.UpdateStatus(ctx, item.ID, models.QueueCompleted)
	assert.ErrorIs(t, err, models.ErrInvalidStatusTransition)

	f.clock.Advance(5 * time.Minute)
	item, err = f.svc.UpdateStatus(ctx, item.ID, models.QueueWithDoctor)
	require.NoError(t, err)
	require.NotNil(t, item.CalledAt)
	calledAt := *item.CalledAt

	same, err := f.svc.UpdateStatus(ctx, item.ID, models.QueueWithDoctor)
	require.NoError(t, err, "same status is a no-op")
	assert.True(t, calledAt.Equal(*same.CalledAt))

	f.clock.Advance(10 * time.Minute)
	item, err = f.svc.UpdateStatus(ctx, item.ID, models.QueueCompleted)
	require.NoError(t, err)
	require.NotNil(t, item.CompletedAt)
	assert.True(t, calledAt.Equal(*item.CalledAt), "called stamp is kept")

	_, err = f.svc.UpdateStatus(ctx, item.ID, models.QueueWaiting)
	assert.ErrorIs(t, err, models.ErrInvalidStatusTransition)

	_, err = f.svc.UpdateStatus(ctx, item.ID, "gone")
	assert.True(t, IsValidation(err))

	_, err = f.svc.UpdateStatus(ctx, 999, models.QueueCancelled)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// scopeRecorder notes every scope lock taken through it.
type scopeRecorder struct {
	repository.QueueRepository
	scopes *[]string
}

func (r scopeRecorder) Atomically(ctx context.Context, scope string, fn func(tx repository.QueueRepository) error) error {
	*r.scopes = append(*r.scopes, scope)
	return r.QueueRepository.Atomically(ctx, scope, func(tx repository.QueueRepository) error {
		return fn(scopeRecorder{QueueRepository: tx, scopes: r.scopes})
	})
}

func (r scopeRecorder) LockScope(ctx context.Context, scope string) error {
	*r.scopes = append(*r.scopes, scope)
	return r.QueueRepository.LockScope(ctx, scope)
}

func TestEnqueueAcrossMidnightLocksPatient(t *testing.T) {
	f := newQueueFixture(t, false)
	ctx := context.Background()
	var scopes []string
	opts := testOptions(f.clock)
	opts.StrictTransitions = false
	svc := NewQueueService(scopeRecorder{QueueRepository: repository.NewQueueRepository(f.db), scopes: &scopes},
		f.cache, time.Minute, opts, nil, nil)

	patient := seedPatient(t, f.db, "ann")
	f.clock.Advance(15*time.Hour + 59*time.Minute)
	first, err := svc.Enqueue(ctx, EnqueueInput{PatientID: patient.ID})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-10", first.QueueDay)

	f.clock.Advance(2 * time.Minute)
	_, err = svc.Enqueue(ctx, EnqueueInput{PatientID: patient.ID})
	assert.ErrorIs(t, err, models.ErrAlreadyQueued, "different day, same patient lock")

	patientScope := fmt.Sprintf("queue:patient:%d", patient.ID)
	assert.Equal(t, []string{
		"queue:day:2024-01-10", patientScope,
		"queue:day:2024-01-11", patientScope,
	}, scopes)

	scopes = nil
	_, err = svc.UpdateStatus(ctx, first.ID, models.QueueCancelled)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, first.ID, models.QueueWaiting)
	require.NoError(t, err)
	assert.Equal(t, []string{"queue:dispatch", "queue:day:2024-01-11", patientScope}, scopes,
		"returning to waiting takes the same locks as joining")
}

func TestPermissiveTransitionsKeepOneWaitingItem(t *testing.T) {
	f := newQueueFixture(t, false)
	ctx := context.Background()

	item := f.enqueue(t, "ann", models.PriorityNormal)
	_, err := f.svc.UpdateStatus(ctx, item.ID, models.QueueCompleted)
	require.NoError(t, err, "permissive mode skips the table")

	second, err := f.svc.Enqueue(ctx, EnqueueInput{PatientID: item.PatientID})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, item.ID, models.QueueWaiting)
	assert.ErrorIs(t, err, models.ErrAlreadyQueued)

	_, err = f.svc.UpdateStatus(ctx, second.ID, models.QueueCancelled)
	require.NoError(t, err)
	back, err := f.svc.UpdateStatus(ctx, item.ID, models.QueueWaiting)
	require.NoError(t, err)
	assert.Equal(t, models.QueueWaiting, back.Status)
}

func TestUpdateQueueItemFields(t *testing.T) {
	f := newQueueFixture(t, true)
	ctx := context.Background()

	item := f.enqueue(t, "ann", models.PriorityLow)
	urgent := models.PriorityUrgent
	notes := "chest pain"
	updated, err := f.svc.Update(ctx, item.ID, UpdateQueueInput{Priority: &urgent, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, models.PriorityUrgent, updated.Priority)
	assert.Equal(t, notes, updated.Notes)
	assert.Equal(t, models.QueueWaiting, updated.Status)

	bad := models.Priority("asap")
	_, err = f.svc.Update(ctx, item.ID, UpdateQueueInput{Priority: &bad})
	assert.True(t, IsValidation(err))
}

func TestConcurrentEnqueueIssuesDistinctNumbers(t *testing.T) {
	f := newQueueFixture(t, true)
	ctx := context.Background()

	const n = 10
	patients := make([]*models.Patient, n)
	for i := range patients {
		patients[i] = seedPatient(t, f.db, fmt.Sprintf("p%02d", i))
	}

	var wg sync.WaitGroup
	numbers := make([]int, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			item, err := f.svc.Enqueue(ctx, EnqueueInput{PatientID: patients[i].ID})
			errs[i] = err
			if err == nil {
				numbers[i] = item.QueueNumber
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	sort.Ints(numbers)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, numbers)
}

func TestConcurrentCallNextNeverSharesAnItem(t *testing.T) {
	f := newQueueFixture(t, true)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.enqueue(t, fmt.Sprintf("p%d", i), models.PriorityNormal)
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*models.QueueItem, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.CallNext(ctx)
		}(i)
	}
	wg.Wait()

	seen := map[uint]bool{}
	empty := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i] == nil {
			empty++
			continue
		}
		assert.False(t, seen[results[i].ID], "item %d called twice", results[i].ID)
		seen[results[i].ID] = true
	}
	assert.Len(t, seen, 5)
	assert.Equal(t, 3, empty)
}

func TestQueueStats(t *testing.T) {
	f := newQueueFixture(t, true)
	ctx := context.Background()

	empty, err := f.svc.Stats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, QueueStats{}, *empty)

	a := f.enqueue(t, "ann", models.PriorityNormal)
	f.clock.Advance(10 * time.Minute)
	_, err = f.svc.CallNext(ctx)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, a.ID, models.QueueCompleted)
	require.NoError(t, err)

	b := f.enqueue(t, "bob", models.PriorityNormal)
	f.clock.Advance(21 * time.Minute)
	_, err = f.svc.CallNext(ctx)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, b.ID, models.QueueCompleted)
	require.NoError(t, err)

	c := f.enqueue(t, "cid", models.PriorityNormal)
	f.clock.Advance(60 * time.Minute)
	_, err = f.svc.CallNext(ctx)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, c.ID, models.QueueCancelled)
	require.NoError(t, err)

	f.enqueue(t, "dee", models.PriorityLow)

	stats, err := f.svc.Stats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, QueueStats{
		Total:              4,
		Waiting:            1,
		Completed:          2,
		Cancelled:          1,
		AverageWaitMinutes: 16,
	}, *stats, "mean of 10 and 21 rounds to 16, cancelled visits are ignored")

	day, err := f.svc.Stats(ctx, "2024-01-09")
	require.NoError(t, err)
	assert.Zero(t, day.Total)

	_, err = f.svc.Stats(ctx, "today")
	assert.True(t, IsValidation(err))
}

func TestQueueStatsCacheInvalidation(t *testing.T) {
	f := newQueueFixture(t, true)
	ctx := context.Background()

	f.enqueue(t, "ann", models.PriorityNormal)
	first, err := f.svc.Stats(ctx, "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, first.Waiting)
	_, ok := f.cache.Get(ctx, "queue:stats:all:g1")
	assert.True(t, ok)

	_, err = f.svc.CallNext(ctx)
	require.NoError(t, err)
	gen, _ := f.cache.Get(ctx, statsGenerationKey)
	assert.Equal(t, "2", string(gen), "queue writes retire cached stats")

	second, err := f.svc.Stats(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, second.Waiting)
	assert.EqualValues(t, 1, second.WithDoctor)
	_, ok = f.cache.Get(ctx, "queue:stats:all:g2")
	assert.True(t, ok)
}

func TestQueueStatsWriteDuringComputeIsNotCached(t *testing.T) {
	f := newQueueFixture(t, true)
	ctx := context.Background()
	f.enqueue(t, "ann", models.PriorityNormal)

	// The call lands after the counts were taken but before they are cached.
	f.cache.beforeSet = func() {
		_, err := f.svc.CallNext(ctx)
		require.NoError(t, err)
	}
	stale, err := f.svc.Stats(ctx, "2024-01-10")
	require.NoError(t, err)
	assert.EqualValues(t, 1, stale.Waiting)

	fresh, err := f.svc.Stats(ctx, "2024-01-10")
	require.NoError(t, err)
	assert.Zero(t, fresh.Waiting)
	assert.EqualValues(t, 1, fresh.WithDoctor)
}

func TestRemoveQueueItem(t *testing.T) {
	f := newQueueFixture(t, true)
	ctx := context.Background()

	item := f.enqueue(t, "ann", models.PriorityNormal)
	require.NoError(t, f.svc.Remove(ctx, item.ID))
	assert.ErrorIs(t, f.svc.Remove(ctx, item.ID), models.ErrNotFound)

	all, err := f.svc.FindAll(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = f.svc.FindAll(ctx, "2024/01/10")
	assert.True(t, IsValidation(err))
}

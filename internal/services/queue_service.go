package services

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"clinic-frontdesk-server/internal/cache"
	"clinic-frontdesk-server/internal/metrics"
	"clinic-frontdesk-server/internal/models"
	"clinic-frontdesk-server/internal/repository"
	"clinic-frontdesk-server/internal/scheduling"
)

const dispatchScope = "queue:dispatch"

func queueDayScope(day string) string {
	return "queue:day:" + day
}

// queuePatientScope is always taken after a queue day scope.
func queuePatientScope(patientID uint) string {
	return fmt.Sprintf("queue:patient:%d", patientID)
}

// statsGenerationKey is bumped on every queue write. Cached stats are keyed
// by the generation they were computed under, so a write that lands while
// stats are being computed orphans the late Set instead of being undone by it.
const statsGenerationKey = "queue:stats:generation"

func statsKey(day string, generation int64) string {
	if day == "" {
		day = "all"
	}
	return fmt.Sprintf("queue:stats:%s:g%d", day, generation)
}

// QueueService runs the walk-in queue: numbering, priority ordering and the
// visit lifecycle.
type QueueService struct {
	repo     repository.QueueRepository
	cache    cache.Cache
	statsTTL time.Duration
	opts     Options
	log      *zap.Logger
	metrics  *metrics.Collector
}

// NewQueueService builds the queue manager. A nil cache disables stats caching.
func NewQueueService(repo repository.QueueRepository, c cache.Cache, statsTTL time.Duration, opts Options, log *zap.Logger, m *metrics.Collector) *QueueService {
	if c == nil {
		c = cache.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &QueueService{
		repo:     repo,
		cache:    c,
		statsTTL: statsTTL,
		opts:     opts.withDefaults(),
		log:      log,
		metrics:  m,
	}
}

type EnqueueInput struct {
	PatientID uint
	Priority  models.Priority
	Reason    string
	Notes     string
}

// UpdateQueueInput is a partial update; nil fields are left unchanged.
type UpdateQueueInput struct {
	Status   *models.QueueStatus
	Priority *models.Priority
	Reason   *string
	Notes    *string
}

// QueueStats summarizes the queue. AverageWaitMinutes is the rounded mean
// time from joining to being called over completed visits.
type QueueStats struct {
	Total              int64 `json:"total"`
	Waiting            int64 `json:"waiting"`
	WithDoctor         int64 `json:"withDoctor"`
	Completed          int64 `json:"completed"`
	Cancelled          int64 `json:"cancelled"`
	AverageWaitMinutes int   `json:"averageWaitMinutes"`
}

func (s *QueueService) today() (time.Time, string) {
	now := s.opts.Now()
	return now, scheduling.Day(now, s.opts.Location)
}

// Enqueue adds a walk-in patient with the next number of the day. A patient
// already waiting gets models.ErrAlreadyQueued.
func (s *QueueService) Enqueue(ctx context.Context, in EnqueueInput) (item *models.QueueItem, err error) {
	ctx, span := tracer.Start(ctx, "QueueService.Enqueue", trace.WithAttributes(
		attribute.Int64("patient.id", int64(in.PatientID)),
		attribute.String("queue.priority", string(in.Priority)),
	))
	defer func() { endSpan(span, err) }()

	var problems fieldErrors
	if in.PatientID == 0 {
		problems.add("patientId: required")
	}
	if in.Priority == "" {
		in.Priority = models.PriorityNormal
	}
	if !in.Priority.IsValid() {
		problems.add("priority: must be one of low, normal, high, urgent")
	}
	if err := problems.err(); err != nil {
		return nil, err
	}

	now, day := s.today()
	item = &models.QueueItem{
		QueueDay:  day,
		PatientID: in.PatientID,
		Status:    models.QueueWaiting,
		Priority:  in.Priority,
		Reason:    in.Reason,
		Notes:     in.Notes,
	}

	err = retryOnRace(ctx, "queue.enqueue", s.log, s.metrics, func() error {
		item.ID = 0
		return s.repo.Atomically(ctx, queueDayScope(day), func(tx repository.QueueRepository) error {
			// The waiting check spans every day, so it needs the patient
			// scope too.
			if err := tx.LockScope(ctx, queuePatientScope(in.PatientID)); err != nil {
				return err
			}
			ok, err := tx.PatientExists(ctx, in.PatientID)
			if err != nil {
				return err
			}
			if !ok {
				return models.NewNotFound("patient", in.PatientID)
			}

			waiting, err := tx.Count(ctx, repository.QueueFilter{
				PatientID: in.PatientID,
				Statuses:  []models.QueueStatus{models.QueueWaiting},
			})
			if err != nil {
				return err
			}
			if waiting > 0 {
				return models.ErrAlreadyQueued
			}

			highest, err := tx.MaxQueueNumber(ctx, day)
			if err != nil {
				return err
			}
			item.QueueNumber = highest + 1

			ahead, err := s.waitingAhead(ctx, tx, item)
			if err != nil {
				return err
			}
			item.EstimatedWaitTime = ahead * s.opts.AvgConsultMinutes
			item.CreatedAt = now
			item.UpdatedAt = now
			return tx.Create(ctx, item)
		})
	})
	if err != nil {
		return nil, err
	}

	s.ForgetStats(ctx)
	s.metrics.ObserveEnqueue(string(item.Priority))
	s.log.Info("patient queued",
		zap.Uint("queue_item_id", item.ID),
		zap.Uint("patient_id", item.PatientID),
		zap.String("queue_day", item.QueueDay),
		zap.Int("queue_number", item.QueueNumber),
		zap.String("priority", string(item.Priority)),
		zap.Int("estimated_wait_minutes", item.EstimatedWaitTime),
	)
	return s.repo.FindByID(ctx, item.ID)
}

// waitingAhead counts the waiting items served before item.
func (s *QueueService) waitingAhead(ctx context.Context, tx repository.QueueRepository, item *models.QueueItem) (int, error) {
	waiting, err := tx.Find(ctx, repository.QueueFilter{Statuses: []models.QueueStatus{models.QueueWaiting}})
	if err != nil {
		return 0, err
	}
	ahead := 0
	for i := range waiting {
		if waiting[i].ServedBefore(item) {
			ahead++
		}
	}
	return ahead, nil
}

// FindAll lists every item in serving order, optionally limited to one day.
func (s *QueueService) FindAll(ctx context.Context, day string) ([]models.QueueItem, error) {
	if day != "" {
		if _, err := scheduling.ParseDate(day); err != nil {
			return nil, &ValidationError{Fields: []string{"date: must be YYYY-MM-DD"}}
		}
	}
	return s.repo.Find(ctx, repository.QueueFilter{Day: day, Order: repository.OrderByPriority, Preload: true})
}

// FindActive lists waiting and with_doctor items in serving order.
func (s *QueueService) FindActive(ctx context.Context) ([]models.QueueItem, error) {
	return s.repo.Find(ctx, repository.QueueFilter{
		Statuses: models.ActiveQueueStatuses,
		Order:    repository.OrderByPriority,
		Preload:  true,
	})
}

func (s *QueueService) FindByStatus(ctx context.Context, status models.QueueStatus) ([]models.QueueItem, error) {
	if !status.IsValid() {
		return nil, &ValidationError{Fields: []string{"status: unknown queue status"}}
	}
	return s.repo.Find(ctx, repository.QueueFilter{
		Statuses: []models.QueueStatus{status},
		Order:    repository.OrderByPriority,
		Preload:  true,
	})
}

// FindByPriority lists the items of one priority by queue number.
func (s *QueueService) FindByPriority(ctx context.Context, priority models.Priority) ([]models.QueueItem, error) {
	if !priority.IsValid() {
		return nil, &ValidationError{Fields: []string{"priority: must be one of low, normal, high, urgent"}}
	}
	return s.repo.Find(ctx, repository.QueueFilter{
		Priority: priority,
		Order:    repository.OrderByNumber,
		Preload:  true,
	})
}

func (s *QueueService) FindOne(ctx context.Context, id uint) (*models.QueueItem, error) {
	return s.repo.FindByID(ctx, id)
}

// CallNext moves the first waiting item to with_doctor. It returns nil
// without error when nobody is waiting. Concurrent callers never receive the
// same item.
func (s *QueueService) CallNext(ctx context.Context) (called *models.QueueItem, err error) {
	ctx, span := tracer.Start(ctx, "QueueService.CallNext")
	defer func() { endSpan(span, err) }()

	err = retryOnRace(ctx, "queue.call_next", s.log, s.metrics, func() error {
		called = nil
		return s.repo.Atomically(ctx, dispatchScope, func(tx repository.QueueRepository) error {
			next, err := tx.Find(ctx, repository.QueueFilter{
				Statuses: []models.QueueStatus{models.QueueWaiting},
				Order:    repository.OrderByPriority,
				Limit:    1,
			})
			if err != nil || len(next) == 0 {
				return err
			}
			item := next[0]
			item.ApplyStatus(models.QueueWithDoctor, s.opts.Now())
			if err := tx.SaveIfStatus(ctx, &item, models.QueueWaiting); err != nil {
				return err
			}
			called = &item
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if called == nil {
		s.log.Debug("call next found nobody waiting")
		return nil, nil
	}

	span.SetAttributes(attribute.Int64("queue.item_id", int64(called.ID)))
	s.ForgetStats(ctx)
	s.metrics.ObserveCall()
	s.log.Info("patient called",
		zap.Uint("queue_item_id", called.ID),
		zap.Uint("patient_id", called.PatientID),
		zap.String("queue_day", called.QueueDay),
		zap.Int("queue_number", called.QueueNumber),
		zap.String("priority", string(called.Priority)),
	)
	return s.repo.FindByID(ctx, called.ID)
}

// UpdateStatus moves an item to status, stamping CalledAt and CompletedAt.
func (s *QueueService) UpdateStatus(ctx context.Context, id uint, status models.QueueStatus) (*models.QueueItem, error) {
	return s.Update(ctx, id, UpdateQueueInput{Status: &status})
}

// Update applies a partial update. Status changes follow the transition
// table unless transitions are permissive; returning an item to waiting
// still honors the one-waiting-item-per-patient rule.
func (s *QueueService) Update(ctx context.Context, id uint, in UpdateQueueInput) (item *models.QueueItem, err error) {
	ctx, span := tracer.Start(ctx, "QueueService.Update", trace.WithAttributes(attribute.Int64("queue.item_id", int64(id))))
	defer func() { endSpan(span, err) }()

	var problems fieldErrors
	if in.Status != nil && !in.Status.IsValid() {
		problems.add("status: unknown queue status")
	}
	if in.Priority != nil && !in.Priority.IsValid() {
		problems.add("priority: must be one of low, normal, high, urgent")
	}
	if err := problems.err(); err != nil {
		return nil, err
	}

	now, day := s.today()
	scope := dispatchScope
	if in.Status != nil && *in.Status == models.QueueWaiting {
		// Same lock as Enqueue so a patient cannot end up waiting twice.
		scope = queueDayScope(day)
	}

	err = retryOnRace(ctx, "queue.update", s.log, s.metrics, func() error {
		item = nil
		return s.repo.Atomically(ctx, scope, func(tx repository.QueueRepository) error {
			current, err := tx.FindByID(ctx, id)
			if err != nil {
				return err
			}
			previous := current.Status

			if in.Status != nil && *in.Status != previous {
				next := *in.Status
				if s.opts.StrictTransitions && !previous.CanTransitionTo(next) {
					return &models.TransitionError{From: string(previous), To: string(next)}
				}
				if next == models.QueueWaiting {
					if err := tx.LockScope(ctx, queuePatientScope(current.PatientID)); err != nil {
						return err
					}
					waiting, err := tx.Count(ctx, repository.QueueFilter{
						PatientID: current.PatientID,
						Statuses:  []models.QueueStatus{models.QueueWaiting},
						ExcludeID: current.ID,
					})
					if err != nil {
						return err
					}
					if waiting > 0 {
						return models.ErrAlreadyQueued
					}
				}
				current.ApplyStatus(next, now)
			}
			if in.Priority != nil {
				current.Priority = *in.Priority
			}
			if in.Reason != nil {
				current.Reason = *in.Reason
			}
			if in.Notes != nil {
				current.Notes = *in.Notes
			}
			current.Patient = nil

			if err := tx.SaveIfStatus(ctx, current, previous); err != nil {
				return err
			}
			item = current
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.ForgetStats(ctx)
	s.log.Info("queue item updated",
		zap.Uint("queue_item_id", item.ID),
		zap.String("status", string(item.Status)),
		zap.String("priority", string(item.Priority)),
	)
	return s.repo.FindByID(ctx, item.ID)
}

func (s *QueueService) Remove(ctx context.Context, id uint) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.ForgetStats(ctx)
	s.log.Info("queue item removed", zap.Uint("queue_item_id", id))
	return nil
}

// Stats counts items per status, over every day or only day.
func (s *QueueService) Stats(ctx context.Context, day string) (stats *QueueStats, err error) {
	if day != "" {
		if _, err := scheduling.ParseDate(day); err != nil {
			return nil, &ValidationError{Fields: []string{"date: must be YYYY-MM-DD"}}
		}
	}

	key := statsKey(day, s.statsGeneration(ctx))
	var cached QueueStats
	if cache.GetJSON(ctx, s.cache, key, &cached) {
		return &cached, nil
	}

	ctx, span := tracer.Start(ctx, "QueueService.Stats", trace.WithAttributes(attribute.String("queue.day", day)))
	defer func() { endSpan(span, err) }()

	stats = &QueueStats{}
	counts := []struct {
		status models.QueueStatus
		dest   *int64
	}{
		{models.QueueWaiting, &stats.Waiting},
		{models.QueueWithDoctor, &stats.WithDoctor},
		{models.QueueCompleted, &stats.Completed},
		{models.QueueCancelled, &stats.Cancelled},
	}
	for _, c := range counts {
		n, err := s.repo.Count(ctx, repository.QueueFilter{Day: day, Statuses: []models.QueueStatus{c.status}})
		if err != nil {
			return nil, err
		}
		*c.dest = n
	}
	if stats.Total, err = s.repo.Count(ctx, repository.QueueFilter{Day: day}); err != nil {
		return nil, err
	}

	completed, err := s.repo.Find(ctx, repository.QueueFilter{
		Day:        day,
		Statuses:   []models.QueueStatus{models.QueueCompleted},
		CalledOnly: true,
		Order:      repository.OrderByNumber,
	})
	if err != nil {
		return nil, err
	}
	stats.AverageWaitMinutes = averageWait(completed)

	cache.SetJSON(ctx, s.cache, key, stats, s.statsTTL)
	return stats, nil
}

// averageWait is the rounded mean wait of the called items, 0 when none.
func averageWait(items []models.QueueItem) int {
	var total float64
	var n int
	for i := range items {
		if m, ok := items[i].WaitMinutes(); ok {
			total += m
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return int(math.Round(total / float64(n)))
}

// statsGeneration reads the current stats generation; 0 when unset or the
// cache is unreachable.
func (s *QueueService) statsGeneration(ctx context.Context) int64 {
	raw, ok := s.cache.Get(ctx, statsGenerationKey)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// ForgetStats retires every cached stats entry. Callers that delete queue
// items outside the service use it.
func (s *QueueService) ForgetStats(ctx context.Context) {
	s.cache.Incr(ctx, statsGenerationKey)
}

package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// QueueStatus represents where a walk-in patient is in the visit.
type QueueStatus string

const (
	QueueWaiting    QueueStatus = "waiting"
	QueueWithDoctor QueueStatus = "with_doctor"
	QueueCompleted  QueueStatus = "completed"
	QueueCancelled  QueueStatus = "cancelled"
)

// ActiveQueueStatuses are the statuses of patients still in the clinic.
var ActiveQueueStatuses = []QueueStatus{QueueWaiting, QueueWithDoctor}

var queueTransitions = map[QueueStatus][]QueueStatus{
	QueueWaiting:    {QueueWithDoctor, QueueCancelled},
	QueueWithDoctor: {QueueCompleted, QueueCancelled},
	QueueCompleted:  {},
	QueueCancelled:  {},
}

// IsValid reports whether s is a known queue status.
func (s QueueStatus) IsValid() bool {
	_, ok := queueTransitions[s]
	return ok
}

// CanTransitionTo reports whether the table allows moving from s to next.
// Staying in the same status is always allowed.
func (s QueueStatus) CanTransitionTo(next QueueStatus) bool {
	if s == next {
		return next.IsValid()
	}
	for _, allowed := range queueTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Priority is the queue ordering tier, independent of arrival order.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var priorityRanks = map[Priority]int{
	PriorityLow:    1,
	PriorityNormal: 2,
	PriorityHigh:   3,
	PriorityUrgent: 4,
}

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	_, ok := priorityRanks[p]
	return ok
}

// Rank orders priorities; a higher rank is served first. Unknown values rank 0.
func (p Priority) Rank() int {
	return priorityRanks[p]
}

// PriorityRankSQL is a portable ORDER BY expression ranking the priority
// column like Priority.Rank.
func PriorityRankSQL(column string) string {
	ps := make([]Priority, 0, len(priorityRanks))
	for p := range priorityRanks {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].Rank() > ps[j].Rank() })

	var b strings.Builder
	b.WriteString("CASE ")
	b.WriteString(column)
	for _, p := range ps {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", p, p.Rank())
	}
	b.WriteString(" ELSE 0 END")
	return b.String()
}

// QueueItem is one walk-in visit. QueueNumber is unique per QueueDay.
type QueueItem struct {
	BaseModel
	QueueNumber       int         `gorm:"not null;uniqueIndex:idx_queue_day_number,priority:2" json:"queueNumber"`
	QueueDay          string      `gorm:"size:10;not null;uniqueIndex:idx_queue_day_number,priority:1" json:"queueDay"`
	PatientID         uint        `gorm:"not null;index" json:"patientId"`
	Status            QueueStatus `gorm:"size:20;not null;index" json:"status"`
	Priority          Priority    `gorm:"size:10;not null" json:"priority"`
	Reason            string      `gorm:"type:text" json:"reason,omitempty"`
	Notes             string      `gorm:"type:text" json:"notes,omitempty"`
	CalledAt          *time.Time  `json:"calledAt"`
	CompletedAt       *time.Time  `json:"completedAt"`
	EstimatedWaitTime int         `gorm:"not null" json:"estimatedWaitTime"`

	Patient *Patient `gorm:"foreignKey:PatientID" json:"patient,omitempty"`
}

// ServedBefore reports whether q comes before other in the queue ordering:
// higher priority first, then lower queue number.
func (q *QueueItem) ServedBefore(other *QueueItem) bool {
	if q.Priority.Rank() != other.Priority.Rank() {
		return q.Priority.Rank() > other.Priority.Rank()
	}
	if q.QueueDay != other.QueueDay {
		return q.QueueDay < other.QueueDay
	}
	return q.QueueNumber < other.QueueNumber
}

// ApplyStatus moves the item to next, stamping CalledAt on entering
// with_doctor and CompletedAt on entering completed when still unset.
func (q *QueueItem) ApplyStatus(next QueueStatus, now time.Time) {
	q.Status = next
	switch next {
	case QueueWithDoctor:
		if q.CalledAt == nil {
			t := now
			q.CalledAt = &t
		}
	case QueueCompleted:
		if q.CompletedAt == nil {
			t := now
			q.CompletedAt = &t
		}
	}
}

// WaitMinutes is the time between joining the queue and being called.
// ok is false when the item has not been called.
func (q *QueueItem) WaitMinutes() (minutes float64, ok bool) {
	if q.CalledAt == nil {
		return 0, false
	}
	return q.CalledAt.Sub(q.CreatedAt).Minutes(), true
}

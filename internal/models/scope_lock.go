package models

import "time"

// ScopeLock rows exist only to be locked with SELECT ... FOR UPDATE; holding
// the row lock serializes writers of one scope (a doctor's day, a queue day).
type ScopeLock struct {
	Scope     string    `gorm:"primaryKey;size:120"`
	CreatedAt time.Time
}

package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                = errors.New("record not found")
	ErrSchedulingConflict      = errors.New("appointment overlaps an existing booking")
	ErrAlreadyQueued           = errors.New("patient already has a waiting queue entry")
	ErrRaceLost                = errors.New("a concurrent update won the race")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// NotFoundError names the missing record. It matches ErrNotFound with errors.Is.
type NotFoundError struct {
	Resource string
	ID       uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFound returns a NotFoundError for resource id.
func NewNotFound(resource string, id uint) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// TransitionError reports a rejected status change. It matches
// ErrInvalidStatusTransition with errors.Is.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidStatusTransition, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidStatusTransition
}

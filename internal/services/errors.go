package services

import (
	"errors"
	"strings"
)

// ValidationError lists the request fields that failed domain validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, ", ")
}

// fieldErrors accumulates validation problems of one request.
type fieldErrors []string

func (f *fieldErrors) add(msg string) {
	*f = append(*f, msg)
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: f}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

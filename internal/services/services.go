// Package services holds the front-desk business rules: the appointment
// scheduler and the walk-in queue manager.
package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"clinic-frontdesk-server/internal/metrics"
	"clinic-frontdesk-server/internal/models"
)

var tracer = otel.Tracer("clinic-frontdesk/services")

// Options carries the clinic settings shared by the services.
type Options struct {
	// Location defines the clinic's calendar day.
	Location *time.Location
	// Now returns the current time; time.Now when nil.
	Now func() time.Time
	// StrictTransitions rejects status changes the transition tables forbid.
	StrictTransitions bool

	DefaultDurationMinutes int
	AvgConsultMinutes      int
	SlotMinutes            int
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.DefaultDurationMinutes <= 0 {
		o.DefaultDurationMinutes = 30
	}
	if o.SlotMinutes <= 0 {
		o.SlotMinutes = 30
	}
	return o
}

// retryOnRace runs fn and, when it loses a serialization race, runs it once
// more. A second loss is returned to the caller.
func retryOnRace(ctx context.Context, op string, log *zap.Logger, m *metrics.Collector, fn func() error) error {
	err := fn()
	if !errors.Is(err, models.ErrRaceLost) || ctx.Err() != nil {
		return err
	}
	m.ObserveRaceRetry(op)
	log.Info("retrying after lost race", zap.String("operation", op), zap.Error(err))
	return fn()
}

// endSpan records err on span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

package services

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"clinic-frontdesk-server/internal/metrics"
	"clinic-frontdesk-server/internal/models"
	"clinic-frontdesk-server/internal/repository"
	"clinic-frontdesk-server/internal/scheduling"
)

// AppointmentService books appointments and keeps each doctor's day free of
// overlapping bookings.
type AppointmentService struct {
	repo    repository.AppointmentRepository
	opts    Options
	log     *zap.Logger
	metrics *metrics.Collector
}

func NewAppointmentService(repo repository.AppointmentRepository, opts Options, log *zap.Logger, m *metrics.Collector) *AppointmentService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AppointmentService{repo: repo, opts: opts.withDefaults(), log: log, metrics: m}
}

// CreateAppointmentInput describes a new booking. Nil Duration means the
// clinic default; empty Status and Type mean booked and consultation.
type CreateAppointmentInput struct {
	PatientID    uint
	DoctorID     uint
	Date         string
	Time         string
	Duration     *int
	Status       models.AppointmentStatus
	Type         models.AppointmentType
	Reason       string
	Notes        string
	Diagnosis    string
	Prescription string
	IsPriority   bool
}

// UpdateAppointmentInput is a partial update; nil fields are left unchanged.
type UpdateAppointmentInput struct {
	PatientID    *uint
	DoctorID     *uint
	Date         *string
	Time         *string
	Duration     *int
	Status       *models.AppointmentStatus
	Type         *models.AppointmentType
	Reason       *string
	Notes        *string
	Diagnosis    *string
	Prescription *string
	IsPriority   *bool
}

// Slot is a free interval of a doctor's day.
type Slot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func scheduleScope(doctorID uint, date string) string {
	return fmt.Sprintf("appointments:doctor:%d:%s", doctorID, date)
}

// Create validates the booking, checks it against the doctor's other
// bookings of the day and stores it. Overlaps fail with
// models.ErrSchedulingConflict and nothing is written.
func (s *AppointmentService) Create(ctx context.Context, in CreateAppointmentInput) (a *models.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "AppointmentService.Create", trace.WithAttributes(
		attribute.Int64("doctor.id", int64(in.DoctorID)),
		attribute.String("appointment.date", in.Date),
	))
	defer func() { endSpan(span, err) }()

	a, err = s.newAppointment(in)
	if err != nil {
		return nil, err
	}

	err = retryOnRace(ctx, "appointment.create", s.log, s.metrics, func() error {
		a.ID = 0
		return s.repo.Atomically(ctx, scheduleScope(a.DoctorID, a.AppointmentDate), func(tx repository.AppointmentRepository) error {
			if err := s.checkReferences(ctx, tx, a.PatientID, a.DoctorID); err != nil {
				return err
			}
			if err := s.checkConflicts(ctx, tx, a); err != nil {
				return err
			}
			return tx.Create(ctx, a)
		})
	})
	s.observe(err)
	if err != nil {
		return nil, err
	}

	s.log.Info("appointment booked",
		zap.Uint("appointment_id", a.ID),
		zap.Uint("doctor_id", a.DoctorID),
		zap.String("date", a.AppointmentDate),
		zap.String("time", a.AppointmentTime),
		zap.Int("duration", a.Duration),
	)
	return s.repo.FindByID(ctx, a.ID)
}

// Update applies a partial update. The conflict check runs only when the
// doctor, date, time or duration changes. Every write is conditional on the
// row still holding the values it was read with, so a concurrent reschedule
// is never undone.
func (s *AppointmentService) Update(ctx context.Context, id uint, in UpdateAppointmentInput) (a *models.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "AppointmentService.Update", trace.WithAttributes(attribute.Int64("appointment.id", int64(id))))
	defer func() { endSpan(span, err) }()

	var next models.Appointment
	rescheduled := false
	err = retryOnRace(ctx, "appointment.update", s.log, s.metrics, func() error {
		current, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return err
		}

		next = *current
		next.Patient, next.Doctor = nil, nil
		if err := s.applyUpdate(&next, in); err != nil {
			return err
		}
		if err := s.checkTransition(current.Status, next.Status); err != nil {
			return err
		}

		rescheduled = next.DoctorID != current.DoctorID ||
			next.AppointmentDate != current.AppointmentDate ||
			next.AppointmentTime != current.AppointmentTime ||
			next.Duration != current.Duration
		referencesChanged := next.DoctorID != current.DoctorID || next.PatientID != current.PatientID

		if !rescheduled {
			if referencesChanged {
				if err := s.checkReferences(ctx, s.repo, next.PatientID, next.DoctorID); err != nil {
					return err
				}
			}
			return s.repo.SaveIfUnchanged(ctx, &next, current)
		}

		return s.repo.Atomically(ctx, scheduleScope(next.DoctorID, next.AppointmentDate), func(tx repository.AppointmentRepository) error {
			if referencesChanged {
				if err := s.checkReferences(ctx, tx, next.PatientID, next.DoctorID); err != nil {
					return err
				}
			}
			if err := s.checkConflicts(ctx, tx, &next); err != nil {
				return err
			}
			return tx.SaveIfUnchanged(ctx, &next, current)
		})
	})
	if rescheduled {
		s.observe(err)
	}
	if err != nil {
		return nil, err
	}

	if rescheduled {
		s.log.Info("appointment rescheduled",
			zap.Uint("appointment_id", id),
			zap.Uint("doctor_id", next.DoctorID),
			zap.String("date", next.AppointmentDate),
			zap.String("time", next.AppointmentTime),
		)
	}
	return s.repo.FindByID(ctx, id)
}

// UpdateStatus changes only the status. It never runs a conflict check.
func (s *AppointmentService) UpdateStatus(ctx context.Context, id uint, status models.AppointmentStatus) (a *models.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "AppointmentService.UpdateStatus", trace.WithAttributes(
		attribute.Int64("appointment.id", int64(id)),
		attribute.String("appointment.status", string(status)),
	))
	defer func() { endSpan(span, err) }()

	if !status.IsValid() {
		return nil, &ValidationError{Fields: []string{"status: unknown appointment status"}}
	}

	err = retryOnRace(ctx, "appointment.status", s.log, s.metrics, func() error {
		current, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.checkTransition(current.Status, status); err != nil {
			return err
		}

		next := *current
		next.Patient, next.Doctor = nil, nil
		next.Status = status
		return s.repo.SaveIfUnchanged(ctx, &next, current)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, id)
}

func (s *AppointmentService) FindAll(ctx context.Context) ([]models.Appointment, error) {
	return s.repo.Find(ctx, repository.AppointmentFilter{Preload: true})
}

func (s *AppointmentService) FindOne(ctx context.Context, id uint) (*models.Appointment, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *AppointmentService) FindByPatient(ctx context.Context, patientID uint) ([]models.Appointment, error) {
	return s.repo.Find(ctx, repository.AppointmentFilter{PatientID: patientID, Preload: true})
}

func (s *AppointmentService) FindByDoctor(ctx context.Context, doctorID uint) ([]models.Appointment, error) {
	return s.repo.Find(ctx, repository.AppointmentFilter{DoctorID: doctorID, Preload: true})
}

func (s *AppointmentService) FindByStatus(ctx context.Context, status models.AppointmentStatus) ([]models.Appointment, error) {
	if !status.IsValid() {
		return nil, &ValidationError{Fields: []string{"status: unknown appointment status"}}
	}
	return s.repo.Find(ctx, repository.AppointmentFilter{
		Statuses: []models.AppointmentStatus{status},
		Preload:  true,
	})
}

// FindByDateRange lists appointments between two calendar days, both inclusive.
func (s *AppointmentService) FindByDateRange(ctx context.Context, startDate, endDate string) ([]models.Appointment, error) {
	var problems fieldErrors
	start, errStart := scheduling.ParseDate(startDate)
	if errStart != nil {
		problems.add("startDate: must be YYYY-MM-DD")
	}
	end, errEnd := scheduling.ParseDate(endDate)
	if errEnd != nil {
		problems.add("endDate: must be YYYY-MM-DD")
	}
	if errStart == nil && errEnd == nil && end.Before(start) {
		problems.add("endDate: must not be before startDate")
	}
	if err := problems.err(); err != nil {
		return nil, err
	}
	return s.repo.Find(ctx, repository.AppointmentFilter{
		From:    start.Format(scheduling.DateLayout),
		To:      end.Format(scheduling.DateLayout),
		Preload: true,
	})
}

func (s *AppointmentService) Remove(ctx context.Context, id uint) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("appointment removed", zap.Uint("appointment_id", id))
	return nil
}

// AvailableSlots lists the free slots of a doctor's working hours on date.
// Days the doctor does not work, or an unavailable doctor, yield no slots.
func (s *AppointmentService) AvailableSlots(ctx context.Context, doctorID uint, date string) ([]Slot, error) {
	day, err := scheduling.ParseDate(date)
	if err != nil {
		return nil, &ValidationError{Fields: []string{"date: must be YYYY-MM-DD"}}
	}

	doctor, err := s.repo.FindDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	slots := []Slot{}
	if !doctor.IsAvailable || !doctor.WorksOn(day.Weekday()) {
		return slots, nil
	}

	window, err := doctor.WorkingHours()
	if err != nil {
		return nil, fmt.Errorf("doctor %d working hours: %w", doctorID, err)
	}

	booked, err := s.bookedIntervals(ctx, s.repo, doctorID, day.Format(scheduling.DateLayout), 0)
	if err != nil {
		return nil, err
	}
	for _, iv := range scheduling.FreeSlots(window, s.opts.SlotMinutes, booked) {
		slots = append(slots, Slot{Start: scheduling.FormatClock(iv.Start), End: scheduling.FormatClock(iv.End)})
	}
	return slots, nil
}

func (s *AppointmentService) newAppointment(in CreateAppointmentInput) (*models.Appointment, error) {
	var problems fieldErrors
	if in.PatientID == 0 {
		problems.add("patientId: required")
	}
	if in.DoctorID == 0 {
		problems.add("doctorId: required")
	}

	date, clock := s.validateWhen(in.Date, in.Time, &problems)

	duration := s.opts.DefaultDurationMinutes
	if in.Duration != nil {
		duration = *in.Duration
	}
	if duration <= 0 {
		problems.add("duration: must be a positive number of minutes")
	}

	status := in.Status
	if status == "" {
		status = models.AppointmentBooked
	}
	if !status.IsValid() {
		problems.add("status: unknown appointment status")
	}

	kind := in.Type
	if kind == "" {
		kind = models.TypeConsultation
	}
	if !kind.IsValid() {
		problems.add("type: unknown appointment type")
	}

	if err := problems.err(); err != nil {
		return nil, err
	}

	return &models.Appointment{
		PatientID:       in.PatientID,
		DoctorID:        in.DoctorID,
		AppointmentDate: date,
		AppointmentTime: clock,
		Duration:        duration,
		Status:          status,
		Type:            kind,
		Reason:          in.Reason,
		Notes:           in.Notes,
		Diagnosis:       in.Diagnosis,
		Prescription:    in.Prescription,
		IsPriority:      in.IsPriority,
	}, nil
}

func (s *AppointmentService) applyUpdate(a *models.Appointment, in UpdateAppointmentInput) error {
	var problems fieldErrors

	if in.PatientID != nil {
		if *in.PatientID == 0 {
			problems.add("patientId: required")
		}
		a.PatientID = *in.PatientID
	}
	if in.DoctorID != nil {
		if *in.DoctorID == 0 {
			problems.add("doctorId: required")
		}
		a.DoctorID = *in.DoctorID
	}
	if in.Date != nil || in.Time != nil {
		date, clock := a.AppointmentDate, a.AppointmentTime
		if in.Date != nil {
			date = *in.Date
		}
		if in.Time != nil {
			clock = *in.Time
		}
		a.AppointmentDate, a.AppointmentTime = s.validateWhen(date, clock, &problems)
	}
	if in.Duration != nil {
		if *in.Duration <= 0 {
			problems.add("duration: must be a positive number of minutes")
		}
		a.Duration = *in.Duration
	}
	if in.Status != nil {
		if !in.Status.IsValid() {
			problems.add("status: unknown appointment status")
		}
		a.Status = *in.Status
	}
	if in.Type != nil {
		if !in.Type.IsValid() {
			problems.add("type: unknown appointment type")
		}
		a.Type = *in.Type
	}
	if in.Reason != nil {
		a.Reason = *in.Reason
	}
	if in.Notes != nil {
		a.Notes = *in.Notes
	}
	if in.Diagnosis != nil {
		a.Diagnosis = *in.Diagnosis
	}
	if in.Prescription != nil {
		a.Prescription = *in.Prescription
	}
	if in.IsPriority != nil {
		a.IsPriority = *in.IsPriority
	}
	return problems.err()
}

// validateWhen normalizes the date to YYYY-MM-DD and the time to HH:MM.
func (s *AppointmentService) validateWhen(date, clock string, problems *fieldErrors) (string, string) {
	d, err := scheduling.ParseDate(date)
	if err != nil {
		problems.add("appointmentDate: must be YYYY-MM-DD")
	}
	normalized, err := scheduling.NormalizeClock(clock)
	if err != nil {
		problems.add("appointmentTime: must be HH:MM")
	}
	return d.Format(scheduling.DateLayout), normalized
}

func (s *AppointmentService) checkTransition(from, to models.AppointmentStatus) error {
	if !s.opts.StrictTransitions || from.CanTransitionTo(to) {
		return nil
	}
	return &models.TransitionError{From: string(from), To: string(to)}
}

func (s *AppointmentService) checkReferences(ctx context.Context, repo repository.AppointmentRepository, patientID, doctorID uint) error {
	ok, err := repo.PatientExists(ctx, patientID)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewNotFound("patient", patientID)
	}
	_, err = repo.FindDoctor(ctx, doctorID)
	return err
}

// checkConflicts fails with models.ErrSchedulingConflict when a overlaps a
// non-cancelled appointment of the same doctor and day.
func (s *AppointmentService) checkConflicts(ctx context.Context, repo repository.AppointmentRepository, a *models.Appointment) error {
	if !a.BlocksSchedule() {
		return nil
	}
	proposed, err := a.Interval()
	if err != nil {
		return &ValidationError{Fields: []string{"appointmentTime: must be HH:MM"}}
	}

	existing, err := repo.Find(ctx, repository.AppointmentFilter{
		DoctorID:         a.DoctorID,
		Date:             a.AppointmentDate,
		ExcludeCancelled: true,
		ExcludeID:        a.ID,
	})
	if err != nil {
		return err
	}
	for i := range existing {
		other, err := existing[i].Interval()
		if err != nil {
			return fmt.Errorf("appointment %d has an invalid time: %w", existing[i].ID, err)
		}
		if proposed.Overlaps(other) {
			return fmt.Errorf("%w: doctor %d is booked %s on %s (appointment %d)",
				models.ErrSchedulingConflict, a.DoctorID, other, a.AppointmentDate, existing[i].ID)
		}
	}
	return nil
}

func (s *AppointmentService) bookedIntervals(ctx context.Context, repo repository.AppointmentRepository, doctorID uint, date string, excludeID uint) ([]scheduling.Interval, error) {
	existing, err := repo.Find(ctx, repository.AppointmentFilter{
		DoctorID:         doctorID,
		Date:             date,
		ExcludeCancelled: true,
		ExcludeID:        excludeID,
	})
	if err != nil {
		return nil, err
	}
	out := make([]scheduling.Interval, 0, len(existing))
	for i := range existing {
		iv, err := existing[i].Interval()
		if err != nil {
			return nil, fmt.Errorf("appointment %d has an invalid time: %w", existing[i].ID, err)
		}
		out = append(out, iv)
	}
	return out, nil
}

func (s *AppointmentService) observe(err error) {
	switch {
	case err == nil:
		s.metrics.ObserveAppointment("booked")
	case errors.Is(err, models.ErrSchedulingConflict), errors.Is(err, models.ErrRaceLost):
		s.metrics.ObserveAppointment("conflict")
	}
}

package models

import (
	"clinic-frontdesk-server/internal/scheduling"
)

// AppointmentStatus represents the status of an appointment
type AppointmentStatus string

const (
	AppointmentBooked     AppointmentStatus = "booked"
	AppointmentConfirmed  AppointmentStatus = "confirmed"
	AppointmentInProgress AppointmentStatus = "in_progress"
	AppointmentCompleted  AppointmentStatus = "completed"
	AppointmentCancelled  AppointmentStatus = "cancelled"
	AppointmentNoShow     AppointmentStatus = "no_show"
)

var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentBooked:     {AppointmentConfirmed, AppointmentInProgress, AppointmentCancelled, AppointmentNoShow},
	AppointmentConfirmed:  {AppointmentInProgress, AppointmentCancelled, AppointmentNoShow},
	AppointmentInProgress: {AppointmentCompleted, AppointmentCancelled},
	AppointmentCompleted:  {},
	AppointmentCancelled:  {},
	AppointmentNoShow:     {},
}

// IsValid reports whether s is a known appointment status.
func (s AppointmentStatus) IsValid() bool {
	_, ok := appointmentTransitions[s]
	return ok
}

// CanTransitionTo reports whether the table allows moving from s to next.
// Staying in the same status is always allowed.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	if s == next {
		return next.IsValid()
	}
	for _, allowed := range appointmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AppointmentType represents the kind of visit
type AppointmentType string

const (
	TypeConsultation   AppointmentType = "consultation"
	TypeFollowUp       AppointmentType = "follow_up"
	TypeEmergency      AppointmentType = "emergency"
	TypeRoutineCheckup AppointmentType = "routine_checkup"
)

// IsValid reports whether t is a known appointment type.
func (t AppointmentType) IsValid() bool {
	switch t {
	case TypeConsultation, TypeFollowUp, TypeEmergency, TypeRoutineCheckup:
		return true
	}
	return false
}

// Appointment is a booked slot of a doctor's day.
type Appointment struct {
	BaseModel
	PatientID       uint              `gorm:"not null;index" json:"patientId"`
	DoctorID        uint              `gorm:"not null;index:idx_appointments_doctor_day,priority:1" json:"doctorId"`
	AppointmentDate string            `gorm:"size:10;not null;index:idx_appointments_doctor_day,priority:2;index" json:"appointmentDate"`
	AppointmentTime string            `gorm:"size:5;not null" json:"appointmentTime"`
	Duration        int               `gorm:"not null" json:"duration"`
	Status          AppointmentStatus `gorm:"size:20;not null;index" json:"status"`
	Type            AppointmentType   `gorm:"size:20;not null" json:"type"`
	Reason          string            `gorm:"type:text" json:"reason,omitempty"`
	Notes           string            `gorm:"type:text" json:"notes,omitempty"`
	Diagnosis       string            `gorm:"type:text" json:"diagnosis,omitempty"`
	Prescription    string            `gorm:"type:text" json:"prescription,omitempty"`
	IsPriority      bool              `gorm:"not null" json:"isPriority"`

	// Relations
	Patient *Patient `gorm:"foreignKey:PatientID" json:"patient,omitempty"`
	Doctor  *Doctor  `gorm:"foreignKey:DoctorID" json:"doctor,omitempty"`
}

// Interval returns the booked minutes of the appointment's day.
func (a *Appointment) Interval() (scheduling.Interval, error) {
	start, err := scheduling.ParseClock(a.AppointmentTime)
	if err != nil {
		return scheduling.Interval{}, err
	}
	return scheduling.NewInterval(start, a.Duration), nil
}

// BlocksSchedule reports whether the appointment takes part in conflict checks.
func (a *Appointment) BlocksSchedule() bool {
	return a.Status != AppointmentCancelled
}

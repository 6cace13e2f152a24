package models

import (
	"time"

	"clinic-frontdesk-server/internal/scheduling"
)

// Specialization enum
type Specialization string

const (
	SpecGeneralPractitioner Specialization = "general_practitioner"
	SpecCardiologist        Specialization = "cardiologist"
	SpecDermatologist       Specialization = "dermatologist"
	SpecPediatrician        Specialization = "pediatrician"
	SpecNeurologist         Specialization = "neurologist"
	SpecOrthopedic          Specialization = "orthopedic"
	SpecPsychiatrist        Specialization = "psychiatrist"
	SpecGynecologist        Specialization = "gynecologist"
	SpecUrologist           Specialization = "urologist"
	SpecOphthalmologist     Specialization = "ophthalmologist"
)

// Doctor is a practitioner appointments can be booked with.
type Doctor struct {
	BaseModel
	FirstName      string         `gorm:"size:100;not null" json:"firstName"`
	LastName       string         `gorm:"size:100;not null" json:"lastName"`
	Email          string         `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Phone          string         `gorm:"size:40;not null" json:"phone"`
	Specialization Specialization `gorm:"size:40;not null;index" json:"specialization"`
	Gender         Gender         `gorm:"size:10;not null" json:"gender"`
	Location       string         `gorm:"size:255;not null;index" json:"location"`
	Bio            string         `gorm:"type:text" json:"bio,omitempty"`
	IsAvailable    bool           `gorm:"not null;index" json:"isAvailable"`
	StartTime      string         `gorm:"size:5;not null" json:"startTime"`
	EndTime        string         `gorm:"size:5;not null" json:"endTime"`
	// Lower-case English weekday names; empty means every day.
	AvailableDays []string `gorm:"serializer:json;type:text" json:"availableDays"`
}

// WorkingHours returns the doctor's daily working window.
func (d *Doctor) WorkingHours() (scheduling.Interval, error) {
	start, err := scheduling.ParseClock(d.StartTime)
	if err != nil {
		return scheduling.Interval{}, err
	}
	end, err := scheduling.ParseClock(d.EndTime)
	if err != nil {
		return scheduling.Interval{}, err
	}
	return scheduling.Interval{Start: start, End: end}, nil
}

// WorksOn reports whether the doctor receives patients on the given weekday.
func (d *Doctor) WorksOn(day time.Weekday) bool {
	if len(d.AvailableDays) == 0 {
		return true
	}
	name := weekdayNames[day]
	for _, s := range d.AvailableDays {
		if s == name {
			return true
		}
	}
	return false
}

var weekdayNames = map[time.Weekday]string{
	time.Sunday:    "sunday",
	time.Monday:    "monday",
	time.Tuesday:   "tuesday",
	time.Wednesday: "wednesday",
	time.Thursday:  "thursday",
	time.Friday:    "friday",
	time.Saturday:  "saturday",
}

// IsWeekdayName reports whether s is a lower-case English weekday name.
func IsWeekdayName(s string) bool {
	for _, name := range weekdayNames {
		if name == s {
			return true
		}
	}
	return false
}

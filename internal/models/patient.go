package models

// Gender enum shared by patients and doctors.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// Patient is a person registered at the front desk.
type Patient struct {
	BaseModel
	FirstName          string `gorm:"size:100;not null;index" json:"firstName"`
	LastName           string `gorm:"size:100;not null;index" json:"lastName"`
	Email              string `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Phone              string `gorm:"size:40;not null;index" json:"phone"`
	DateOfBirth        string `gorm:"size:10;not null" json:"dateOfBirth"`
	Gender             Gender `gorm:"size:10;not null" json:"gender"`
	Address            string `gorm:"size:255;not null" json:"address"`
	EmergencyContact   string `gorm:"size:255" json:"emergencyContact,omitempty"`
	MedicalHistory     string `gorm:"type:text" json:"medicalHistory,omitempty"`
	Allergies          string `gorm:"type:text" json:"allergies,omitempty"`
	CurrentMedications string `gorm:"type:text" json:"currentMedications,omitempty"`
}

// FullName joins first and last name.
func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

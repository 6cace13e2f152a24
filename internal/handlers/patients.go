package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"clinic-frontdesk-server/internal/models"
	"clinic-frontdesk-server/internal/services"
	"clinic-frontdesk-server/internal/utils"
)

// PatientHandler handles patient registration and lookup at the front desk.
type PatientHandler struct {
	DB    *gorm.DB
	Queue *services.QueueService
}

// NewPatientHandler creates a new PatientHandler. queue is used to drop
// cached queue stats when a deleted patient takes queue items with them.
func NewPatientHandler(db *gorm.DB, queue *services.QueueService) *PatientHandler {
	return &PatientHandler{DB: db, Queue: queue}
}

// CreatePatientRequest represents the request body for registering a patient.
type CreatePatientRequest struct {
	FirstName          string `json:"firstName" binding:"required,max=100"`
	LastName           string `json:"lastName" binding:"required,max=100"`
	Email              string `json:"email" binding:"required,email,max=255"`
	Phone              string `json:"phone" binding:"required,max=40"`
	DateOfBirth        string `json:"dateOfBirth" binding:"required,clinicdate"`
	Gender             string `json:"gender" binding:"required,oneof=male female other"`
	Address            string `json:"address" binding:"required,max=255"`
	EmergencyContact   string `json:"emergencyContact" binding:"max=255"`
	MedicalHistory     string `json:"medicalHistory"`
	Allergies          string `json:"allergies"`
	CurrentMedications string `json:"currentMedications"`
}

// CreatePatient registers a new patient.
func (h *PatientHandler) CreatePatient(c *gin.Context) {
	var req CreatePatientRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	patient := models.Patient{
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		Email:              req.Email,
		Phone:              req.Phone,
		DateOfBirth:        req.DateOfBirth,
		Gender:             models.Gender(req.Gender),
		Address:            req.Address,
		EmergencyContact:   req.EmergencyContact,
		MedicalHistory:     req.MedicalHistory,
		Allergies:          req.Allergies,
		CurrentMedications: req.CurrentMedications,
	}
	if err := h.DB.Create(&patient).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			utils.Conflict(c, "Patient with this email already exists")
			return
		}
		utils.InternalServerError(c, "Failed to create patient: "+err.Error())
		return
	}

	utils.Created(c, "Patient created successfully", patient)
}

// GetPatients lists patients. The optional name, email and phone query
// parameters narrow the list with case-insensitive substring matches.
func (h *PatientHandler) GetPatients(c *gin.Context) {
	q := h.DB.Model(&models.Patient{})
	if name := c.Query("name"); name != "" {
		pattern := likePattern(name)
		q = q.Where("LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?", pattern, pattern)
	}
	if email := c.Query("email"); email != "" {
		q = q.Where("LOWER(email) LIKE ?", likePattern(email))
	}
	if phone := c.Query("phone"); phone != "" {
		q = q.Where("phone LIKE ?", likePattern(phone))
	}

	var patients []models.Patient
	if err := q.Order("last_name ASC").Order("first_name ASC").Order("id ASC").Find(&patients).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch patients: "+err.Error())
		return
	}

	utils.Success(c, "Patients fetched successfully", patients)
}

// GetPatientByID fetches a single patient.
func (h *PatientHandler) GetPatientByID(c *gin.Context) {
	patient, ok := h.findPatient(c)
	if !ok {
		return
	}
	utils.Success(c, "Patient fetched successfully", patient)
}

// UpdatePatientRequest is a partial update; omitted fields are unchanged.
type UpdatePatientRequest struct {
	FirstName          *string `json:"firstName" binding:"omitempty,min=1,max=100"`
	LastName           *string `json:"lastName" binding:"omitempty,min=1,max=100"`
	Email              *string `json:"email" binding:"omitempty,email,max=255"`
	Phone              *string `json:"phone" binding:"omitempty,min=1,max=40"`
	DateOfBirth        *string `json:"dateOfBirth" binding:"omitempty,clinicdate"`
	Gender             *string `json:"gender" binding:"omitempty,oneof=male female other"`
	Address            *string `json:"address" binding:"omitempty,min=1,max=255"`
	EmergencyContact   *string `json:"emergencyContact" binding:"omitempty,max=255"`
	MedicalHistory     *string `json:"medicalHistory"`
	Allergies          *string `json:"allergies"`
	CurrentMedications *string `json:"currentMedications"`
}

// UpdatePatient applies a partial update to a patient.
func (h *PatientHandler) UpdatePatient(c *gin.Context) {
	var req UpdatePatientRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	patient, ok := h.findPatient(c)
	if !ok {
		return
	}

	setString(&patient.FirstName, req.FirstName)
	setString(&patient.LastName, req.LastName)
	setString(&patient.Email, req.Email)
	setString(&patient.Phone, req.Phone)
	setString(&patient.DateOfBirth, req.DateOfBirth)
	setString(&patient.Address, req.Address)
	setString(&patient.EmergencyContact, req.EmergencyContact)
	setString(&patient.MedicalHistory, req.MedicalHistory)
	setString(&patient.Allergies, req.Allergies)
	setString(&patient.CurrentMedications, req.CurrentMedications)
	if req.Gender != nil {
		patient.Gender = models.Gender(*req.Gender)
	}

	if err := h.DB.Save(patient).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			utils.Conflict(c, "Patient with this email already exists")
			return
		}
		utils.InternalServerError(c, "Failed to update patient: "+err.Error())
		return
	}

	utils.Success(c, "Patient updated successfully", patient)
}

// DeletePatient removes a patient together with their appointments and
// queue items.
func (h *PatientHandler) DeletePatient(c *gin.Context) {
	patient, ok := h.findPatient(c)
	if !ok {
		return
	}

	var dequeued int64
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("patient_id = ?", patient.ID).Delete(&models.Appointment{}).Error; err != nil {
			return err
		}
		res := tx.Where("patient_id = ?", patient.ID).Delete(&models.QueueItem{})
		if res.Error != nil {
			return res.Error
		}
		dequeued = res.RowsAffected
		return tx.Delete(&models.Patient{}, patient.ID).Error
	})
	if err != nil {
		utils.InternalServerError(c, "Failed to delete patient: "+err.Error())
		return
	}
	if h.Queue != nil && dequeued > 0 {
		h.Queue.ForgetStats(c.Request.Context())
	}

	utils.Success(c, "Patient deleted successfully", nil)
}

func (h *PatientHandler) findPatient(c *gin.Context) (*models.Patient, bool) {
	id, ok := parseID(c, "id")
	if !ok {
		return nil, false
	}

	var patient models.Patient
	if err := h.DB.First(&patient, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Patient not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return nil, false
	}
	return &patient, true
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

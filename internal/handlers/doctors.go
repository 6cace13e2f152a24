package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"clinic-frontdesk-server/internal/models"
	"clinic-frontdesk-server/internal/scheduling"
	"clinic-frontdesk-server/internal/utils"
)

const (
	defaultStartTime = "09:00"
	defaultEndTime   = "17:00"
)

// DoctorHandler handles the doctor directory.
type DoctorHandler struct {
	DB *gorm.DB
}

// NewDoctorHandler creates a new DoctorHandler.
func NewDoctorHandler(db *gorm.DB) *DoctorHandler {
	return &DoctorHandler{DB: db}
}

// CreateDoctorRequest represents the request body for adding a doctor.
// IsAvailable defaults to true, working hours to 09:00-17:00 and an empty
// AvailableDays means every day.
type CreateDoctorRequest struct {
	FirstName      string   `json:"firstName" binding:"required,max=100"`
	LastName       string   `json:"lastName" binding:"required,max=100"`
	Email          string   `json:"email" binding:"required,email,max=255"`
	Phone          string   `json:"phone" binding:"required,max=40"`
	Specialization string   `json:"specialization" binding:"required,oneof=general_practitioner cardiologist dermatologist pediatrician neurologist orthopedic psychiatrist gynecologist urologist ophthalmologist"`
	Gender         string   `json:"gender" binding:"required,oneof=male female other"`
	Location       string   `json:"location" binding:"required,max=255"`
	Bio            string   `json:"bio"`
	IsAvailable    *bool    `json:"isAvailable"`
	StartTime      string   `json:"startTime" binding:"omitempty,clinictime"`
	EndTime        string   `json:"endTime" binding:"omitempty,clinictime"`
	AvailableDays  []string `json:"availableDays" binding:"omitempty,dive,weekday"`
}

// CreateDoctor adds a doctor to the directory.
func (h *DoctorHandler) CreateDoctor(c *gin.Context) {
	var req CreateDoctorRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	if req.StartTime == "" {
		req.StartTime = defaultStartTime
	}
	if req.EndTime == "" {
		req.EndTime = defaultEndTime
	}
	start, end, ok := workingHours(c, req.StartTime, req.EndTime)
	if !ok {
		return
	}

	doctor := models.Doctor{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		Phone:          req.Phone,
		Specialization: models.Specialization(req.Specialization),
		Gender:         models.Gender(req.Gender),
		Location:       req.Location,
		Bio:            req.Bio,
		IsAvailable:    req.IsAvailable == nil || *req.IsAvailable,
		StartTime:      start,
		EndTime:        end,
		AvailableDays:  req.AvailableDays,
	}
	if err := h.DB.Create(&doctor).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			utils.Conflict(c, "Doctor with this email already exists")
			return
		}
		utils.InternalServerError(c, "Failed to create doctor: "+err.Error())
		return
	}

	utils.Created(c, "Doctor created successfully", doctor)
}

// GetDoctors lists every doctor.
func (h *DoctorHandler) GetDoctors(c *gin.Context) {
	h.list(c, h.DB)
}

// SearchDoctors filters by the optional specialization, location and
// isAvailable query parameters.
func (h *DoctorHandler) SearchDoctors(c *gin.Context) {
	q := h.DB.Model(&models.Doctor{})
	if spec := c.Query("specialization"); spec != "" {
		q = q.Where("specialization = ?", spec)
	}
	if location := c.Query("location"); location != "" {
		q = q.Where("LOWER(location) LIKE ?", likePattern(location))
	}
	available, present, ok := queryBool(c, "isAvailable")
	if !ok {
		return
	}
	if present {
		q = q.Where("is_available = ?", available)
	}
	h.list(c, q)
}

// GetAvailableDoctors lists doctors currently accepting patients.
func (h *DoctorHandler) GetAvailableDoctors(c *gin.Context) {
	h.list(c, h.DB.Where("is_available = ?", true))
}

// GetDoctorsBySpecialization lists the doctors of one specialization.
func (h *DoctorHandler) GetDoctorsBySpecialization(c *gin.Context) {
	h.list(c, h.DB.Where("specialization = ?", c.Param("specialization")))
}

// GetDoctorsByLocation lists doctors whose location contains the path value.
func (h *DoctorHandler) GetDoctorsByLocation(c *gin.Context) {
	h.list(c, h.DB.Where("LOWER(location) LIKE ?", likePattern(c.Param("location"))))
}

// GetDoctorByID fetches a single doctor.
func (h *DoctorHandler) GetDoctorByID(c *gin.Context) {
	doctor, ok := h.findDoctor(c)
	if !ok {
		return
	}
	utils.Success(c, "Doctor fetched successfully", doctor)
}

// UpdateDoctorRequest is a partial update; omitted fields are unchanged.
// An empty availableDays array resets the doctor to every day.
type UpdateDoctorRequest struct {
	FirstName      *string  `json:"firstName" binding:"omitempty,min=1,max=100"`
	LastName       *string  `json:"lastName" binding:"omitempty,min=1,max=100"`
	Email          *string  `json:"email" binding:"omitempty,email,max=255"`
	Phone          *string  `json:"phone" binding:"omitempty,min=1,max=40"`
	Specialization *string  `json:"specialization" binding:"omitempty,oneof=general_practitioner cardiologist dermatologist pediatrician neurologist orthopedic psychiatrist gynecologist urologist ophthalmologist"`
	Gender         *string  `json:"gender" binding:"omitempty,oneof=male female other"`
	Location       *string  `json:"location" binding:"omitempty,min=1,max=255"`
	Bio            *string  `json:"bio"`
	IsAvailable    *bool    `json:"isAvailable"`
	StartTime      *string  `json:"startTime" binding:"omitempty,clinictime"`
	EndTime        *string  `json:"endTime" binding:"omitempty,clinictime"`
	AvailableDays  []string `json:"availableDays" binding:"omitempty,dive,weekday"`
}

// UpdateDoctor applies a partial update to a doctor. Existing appointments
// are kept even when they fall outside new working hours.
func (h *DoctorHandler) UpdateDoctor(c *gin.Context) {
	var req UpdateDoctorRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	doctor, ok := h.findDoctor(c)
	if !ok {
		return
	}

	setString(&doctor.FirstName, req.FirstName)
	setString(&doctor.LastName, req.LastName)
	setString(&doctor.Email, req.Email)
	setString(&doctor.Phone, req.Phone)
	setString(&doctor.Location, req.Location)
	setString(&doctor.Bio, req.Bio)
	if req.Specialization != nil {
		doctor.Specialization = models.Specialization(*req.Specialization)
	}
	if req.Gender != nil {
		doctor.Gender = models.Gender(*req.Gender)
	}
	if req.IsAvailable != nil {
		doctor.IsAvailable = *req.IsAvailable
	}
	if req.AvailableDays != nil {
		doctor.AvailableDays = req.AvailableDays
	}

	startRaw, endRaw := doctor.StartTime, doctor.EndTime
	setString(&startRaw, req.StartTime)
	setString(&endRaw, req.EndTime)
	if doctor.StartTime, doctor.EndTime, ok = workingHours(c, startRaw, endRaw); !ok {
		return
	}

	if err := h.DB.Save(doctor).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			utils.Conflict(c, "Doctor with this email already exists")
			return
		}
		utils.InternalServerError(c, "Failed to update doctor: "+err.Error())
		return
	}

	utils.Success(c, "Doctor updated successfully", doctor)
}

// DeleteDoctor removes a doctor together with their appointments.
func (h *DoctorHandler) DeleteDoctor(c *gin.Context) {
	doctor, ok := h.findDoctor(c)
	if !ok {
		return
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("doctor_id = ?", doctor.ID).Delete(&models.Appointment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Doctor{}, doctor.ID).Error
	})
	if err != nil {
		utils.InternalServerError(c, "Failed to delete doctor: "+err.Error())
		return
	}

	utils.Success(c, "Doctor deleted successfully", nil)
}

func (h *DoctorHandler) list(c *gin.Context, q *gorm.DB) {
	var doctors []models.Doctor
	if err := q.Order("last_name ASC").Order("first_name ASC").Order("id ASC").Find(&doctors).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch doctors: "+err.Error())
		return
	}
	utils.Success(c, "Doctors fetched successfully", doctors)
}

func (h *DoctorHandler) findDoctor(c *gin.Context) (*models.Doctor, bool) {
	id, ok := parseID(c, "id")
	if !ok {
		return nil, false
	}

	var doctor models.Doctor
	if err := h.DB.First(&doctor, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Doctor not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return nil, false
	}
	return &doctor, true
}

// workingHours normalizes start and end to HH:MM and requires start < end.
func workingHours(c *gin.Context, start, end string) (string, string, bool) {
	s, errStart := scheduling.ParseClock(start)
	e, errEnd := scheduling.ParseClock(end)
	if errStart != nil || errEnd != nil {
		utils.BadRequest(c, "Validation failed: startTime and endTime must be HH:MM")
		return "", "", false
	}
	if s >= e {
		utils.BadRequest(c, "Validation failed: endTime must be after startTime")
		return "", "", false
	}
	return scheduling.FormatClock(s), scheduling.FormatClock(e), true
}

package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clinic-frontdesk-server/internal/models"
	"clinic-frontdesk-server/internal/services"
	"clinic-frontdesk-server/internal/utils"
)

// AppointmentHandler handles appointment related requests.
type AppointmentHandler struct {
	Service *services.AppointmentService
	Log     *zap.Logger
}

// NewAppointmentHandler creates a new AppointmentHandler.
func NewAppointmentHandler(svc *services.AppointmentService, log *zap.Logger) *AppointmentHandler {
	return &AppointmentHandler{Service: svc, Log: log}
}

// CreateAppointmentRequest represents the request body for booking an appointment.
// Duration defaults to the clinic's default length when omitted.
type CreateAppointmentRequest struct {
	PatientID       uint   `json:"patientId" binding:"required"`
	DoctorID        uint   `json:"doctorId" binding:"required"`
	AppointmentDate string `json:"appointmentDate" binding:"required,clinicdate"`
	AppointmentTime string `json:"appointmentTime" binding:"required,clinictime"`
	Duration        *int   `json:"duration"`
	Status          string `json:"status"`
	Type            string `json:"type"`
	Reason          string `json:"reason"`
	Notes           string `json:"notes"`
	Diagnosis       string `json:"diagnosis"`
	Prescription    string `json:"prescription"`
	IsPriority      bool   `json:"isPriority"`
}

// CreateAppointment books an appointment. Overlapping a non-cancelled
// appointment of the same doctor answers 409.
func (h *AppointmentHandler) CreateAppointment(c *gin.Context) {
	var req CreateAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	appointment, err := h.Service.Create(c.Request.Context(), services.CreateAppointmentInput{
		PatientID:    req.PatientID,
		DoctorID:     req.DoctorID,
		Date:         req.AppointmentDate,
		Time:         req.AppointmentTime,
		Duration:     req.Duration,
		Status:       models.AppointmentStatus(req.Status),
		Type:         models.AppointmentType(req.Type),
		Reason:       req.Reason,
		Notes:        req.Notes,
		Diagnosis:    req.Diagnosis,
		Prescription: req.Prescription,
		IsPriority:   req.IsPriority,
	})
	if err != nil {
		respondServiceError(c, h.Log, err)
		return
	}

	utils.Created(c, "Appointment created successfully", appointment)
}

// GetAppointments lists every appointment by date and time.
func (h *AppointmentHandler) GetAppointments(c *gin.Context) {
	appointments, err := h.Service.FindAll(c.Request.Context())
	if err != nil {
		respondServiceError(c, h.Log, err)
		return
	}
	utils.Success(c, "Appointments fetched successfully", appointments)
}

// GetAppointmentByID fetches a single appointment with its patient and doctor.
func (h *AppointmentHandler) GetAppointmentByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	appointment, err := h.Service.FindOne(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.Log, err)
		return
	}
	utils.Success(c, "Appointment fetched successfully", appointment)
}

// GetAppointmentsByPatient lists one patient's appointments.
func (h *AppointmentHandler) GetAppointmentsByPatient(c *gin.Context) {
	id, ok := parseID(c, "patientId")
	if !ok {
		return
	}
	appointments, err := h.Service.FindByPatient(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.Log, err)
		return
	}
	utils.Success(c, "Appointments fetched successfully", appointments)
}

// GetAppointmentsByDoctor lists one doctor's appointments.
func (h *AppointmentHandler) GetAppointmentsByDoctor(c *gin.Context) {
	id, ok := parseID(c, "doctorId")
	if !ok {
		return
	}
	appointments, err := h.Service.FindByDoctor(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.Log, err)
		return
	}
	utils.Success(c, "Appointments fetched successfully", appointments)
}

// GetAppointmentsByStatus lists appointments in one status.
func (h *AppointmentHandler) GetAppointmentsByStatus(c *gin.Context) {
	appointments, err := h.Service.FindByStatus(c.Request.Context(), models.AppointmentStatus(c.Param("status")))
	if err != nil {
		respondServiceError(c, h.Log, err)
		return
	}
	utils.Success(c, "Appointments fetched successfully", appointments)
}

// DateRangeQuery bounds a date range listing. Both days are inclusive.
type DateRangeQuery struct {
	StartDate string `form:"startDate" binding:"required,clinicdate"`
	EndDate   string `form:"endDate" binding:"required,clinicdate"`
}

// GetAppointmentsByDateRange lists appointments between startDate and endDate.
func (h *AppointmentHandler) GetAppointmentsByDateRange(c *gin.Context) {
	var q DateRangeQuery
	if !utils.BindQuery(c, &q) {
		return
	}
	appointments, err := h.Service.FindByDateRange(c.Request.Context(), q.StartDate, q.EndDate)
	if err != nil {
		respondServiceError(c, h.Log, err)
		return
	}
	utils.Success(c, "Appointments fetched successfully", appointments)
}

// UpdateAppointmentRequest is a partial update; omitted fields are unchanged.
type UpdateAppointmentRequest struct {
	PatientID       *uint   `json:"patientId"`
	DoctorID        *uint   `json:"doctorId"`
	AppointmentDate *string `json:"appointmentDate" binding:"omitempty,clinicdate"`
	AppointmentTime *string `json:"appointmentTime" binding:"omitempty,clinictime"`
	Duration        *int    `json:"duration"`
	Status          *string `json:"status"`
	Type            *string `json:"type"`
	Reason          *string `json:"reason"`
	Notes           *string `json:"notes"`
	Diagnosis       *string `json:"diagnosis"`
	Prescription    *string `json:"prescription"`
	IsPriority      *bool   `json:"isPriority"`
}

// UpdateAppointment applies a partial update. Moving the appointment re-runs
// the conflict check, excluding the appointment itself.
func (h *AppointmentHandler) UpdateAppointment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req UpdateAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	in := services.UpdateAppointmentInput{
		PatientID:    req.PatientID,
		DoctorID:     req.DoctorID,
		Date:         req.AppointmentDate,
		Time:         req.AppointmentTime,
		Duration:     req.Duration,
		Reason:       req.Reason,
		Notes:        req.Notes,
		Diagnosis:    req.Diagnosis,
		Prescription: req.Prescription,
		IsPriority:   req.IsPriority,
	}
	if req.Status != nil {
		status := models.AppointmentStatus(*req.Status)
		in.Status = &status
	}
	if req.Type != nil {
		kind := models.AppointmentType(*req.Type)
		in.Type = &kind
	}

	appointment, err := h.Service.Update(c.Request.Context(), id, in)
	if err != nil {
		respondServiceError(c, h.Log, err)
		return
	}
	utils.Success(c, "Appointment updated successfully", appointment)
}

// UpdateStatusRequest carries a new status for an appointment or queue item.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateAppointmentStatus changes only the status; it never checks conflicts.
func (h *AppointmentHandler) UpdateAppointmentStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	appointment, err := h.Service.UpdateStatus(c.Request.Context(), id, models.AppointmentStatus(req.Status))
	if err != nil {
		respondServiceError(c, h.Log, err)
		return
	}
	utils.Success(c, "Appointment status updated successfully", appointment)
}

// DeleteAppointment removes an appointment.
func (h *AppointmentHandler) DeleteAppointment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.Service.Remove(c.Request.Context(), id); err != nil {
		respondServiceError(c, h.Log, err)
		return
	}
	utils.Success(c, "Appointment deleted successfully", nil)
}

// SlotsQuery selects the day to list free slots for.
type SlotsQuery struct {
	Date string `form:"date" binding:"required,clinicdate"`
}

// GetDoctorSlots lists a doctor's free slots on a day.
func (h *AppointmentHandler) GetDoctorSlots(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var q SlotsQuery
	if !utils.BindQuery(c, &q) {
		return
	}

	slots, err := h.Service.AvailableSlots(c.Request.Context(), id, q.Date)
	if err != nil {
		respondServiceError(c, h.Log, err)
		return
	}
	utils.Success(c, "Available slots fetched successfully", gin.H{
		"doctorId": id,
		"date":     q.Date,
		"slots":    slots,
	})
}

package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clinic-frontdesk-server/internal/models"
	"clinic-frontdesk-server/internal/services"
	"clinic-frontdesk-server/internal/tickets"
	"clinic-frontdesk-server/internal/utils"
)

// QueueHandler handles the walk-in queue.
type QueueHandler struct {
	Service    *services.QueueService
	ClinicName string
	Location   *time.Location
	Log        *zap.Logger
}

// NewQueueHandler creates a new QueueHandler. clinicName and loc are printed
// on queue tickets.
func NewQueueHandler(svc *services.QueueService, clinicName string, loc *time.Location, log *zap.Logger) *QueueHandler {
	return &QueueHandler{Service: svc, ClinicName: clinicName, Location: loc, Log: log}
}

// EnqueueRequest represents the request body for adding a walk-in patient.
// Priority defaults to normal.
type EnqueueRequest struct {
	PatientID uint   `json:"patientId" binding:"required"`
	Priority  string `json:"priority" binding:"omitempty,oneof=low normal high urgent"`
	Reason    string `json:"reason"`
	Notes     string `json:"notes"`
}

// Enqueue adds a patient to today's queue. A patient already waiting answers 409.
func (h *QueueHandler) Enqueue(c *gin.Context) {
	var req EnqueueRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	item, err := h.Service.Enqueue(c.Request.Context(), services.EnqueueInput{
		PatientID: req.PatientID,
		Priority:  models.Priority(req.Priority),
		Reason:    req.Reason,
		Notes:     req.Notes,
	})
	if err != nil {
		respondServiceError(c, h.Log, err)
		return
	}

	utils.Created(c, "Patient added to queue successfully", item)
}

// QueueDayQuery optionally restricts a listing to one queue day.
type QueueDayQuery struct {
	Date string `form:"date" binding:"omitempty,clinicdate"`
}

// GetQueue lists queue items in serving order, optionally for one ?date.
func (h *QueueHandler) GetQueue(c *gin.Context) {
	var q QueueDayQuery
	if !utils.BindQuery(c, &q) {
		return
	}
	items, err := h.Service.FindAll(c.Request.Context(), q.Date)
	if err != nil {
		respondServiceError(c, h.Log, err)
		return
	}
	utils.Success(c, "Queue fetched successfully", items)
}

// GetActiveQueue lists patients still waiting or with a doctor.
func (h *QueueHandler) GetActiveQueue(c *gin.Context) {
	items, err := h.Service.FindActive(c.Request.Context())
	if err != nil {
		respondServiceError(c, h.Log, err)
		return
	}
	utils.Success(c, "Active queue fetched successfully", items)
}

// GetQueueStats summarizes the queue, optionally for one ?date.
func (h *QueueHandler) GetQueueStats(c *gin.Context) {
	var q QueueDayQuery
	if !utils.BindQuery(c, &q) {
		return
	}
	stats, err := h.Service.Stats(c.Request.Context(), q.Date)
	if err != nil {
		respondServiceError(c, h.Log, err)
		return
	}
	utils.Success(c, "Queue stats fetched successfully", stats)
}

func (h *QueueHandler) GetQueueByStatus(c *gin.Context) {
	items, err := h.Service.FindByStatus(c.Request.Context(), models.QueueStatus(c.Param("status")))
	if err != nil {
		respondServiceError(c, h.Log, err)
		return
	}
	utils.Success(c, "Queue fetched successfully", items)
}

func (h *QueueHandler) GetQueueByPriority(c *gin.Context) {
	items, err := h.Service.FindByPriority(c.Request.Context(), models.Priority(c.Param("priority")))
	if err != nil {
		respondServiceError(c, h.Log, err)
		return
	}
	utils.Success(c, "Queue fetched successfully", items)
}

// CallNext sends the next waiting patient in. An empty queue is not an
// error: the response carries null data.
func (h *QueueHandler) CallNext(c *gin.Context) {
	item, err := h.Service.CallNext(c.Request.Context())
	if err != nil {
		respondServiceError(c, h.Log, err)
		return
	}
	if item == nil {
		utils.Success(c, "No patients waiting", nil)
		return
	}
	utils.Success(c, "Next patient called successfully", item)
}

// GetQueueItemByID fetches a single queue item.
func (h *QueueHandler) GetQueueItemByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	item, err := h.Service.FindOne(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.Log, err)
		return
	}
	utils.Success(c, "Queue item fetched successfully", item)
}

// UpdateQueueItemRequest is a partial update; omitted fields are unchanged.
type UpdateQueueItemRequest struct {
	Status   *string `json:"status"`
	Priority *string `json:"priority" binding:"omitempty,oneof=low normal high urgent"`
	Reason   *string `json:"reason"`
	Notes    *string `json:"notes"`
}

// UpdateQueueItem changes status, priority or notes of a queue item.
func (h *QueueHandler) UpdateQueueItem(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req UpdateQueueItemRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	in := services.UpdateQueueInput{Reason: req.Reason, Notes: req.Notes}
	if req.Status != nil {
		status := models.QueueStatus(*req.Status)
		in.Status = &status
	}
	if req.Priority != nil {
		priority := models.Priority(*req.Priority)
		in.Priority = &priority
	}

	item, err := h.Service.Update(c.Request.Context(), id, in)
	if err != nil {
		respondServiceError(c, h.Log, err)
		return
	}
	utils.Success(c, "Queue item updated successfully", item)
}

// UpdateQueueItemStatus moves a queue item to a new status, stamping
// calledAt and completedAt on the way.
func (h *QueueHandler) UpdateQueueItemStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	item, err := h.Service.UpdateStatus(c.Request.Context(), id, models.QueueStatus(req.Status))
	if err != nil {
		respondServiceError(c, h.Log, err)
		return
	}
	utils.Success(c, "Queue item status updated successfully", item)
}

// DeleteQueueItem removes a queue item. Its number is not reissued.
func (h *QueueHandler) DeleteQueueItem(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.Service.Remove(c.Request.Context(), id); err != nil {
		respondServiceError(c, h.Log, err)
		return
	}
	utils.Success(c, "Queue item deleted successfully", nil)
}

// GetQueueTicket renders the printable PDF ticket of a queue item.
func (h *QueueHandler) GetQueueTicket(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	item, err := h.Service.FindOne(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.Log, err)
		return
	}

	pdf, err := tickets.Render(item, h.ClinicName, h.Location)
	if err != nil {
		respondServiceError(c, h.Log, err)
		return
	}

	filename := fmt.Sprintf("ticket-%s-%03d.pdf", item.QueueDay, item.QueueNumber)
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

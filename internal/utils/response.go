package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ResponseData is the envelope every front-desk endpoint answers with.
// Data is set on success, Error on failure; Status repeats the HTTP code.
type ResponseData struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respond(c *gin.Context, code int, message string, data any) {
	c.JSON(code, ResponseData{Status: code, Message: message, Data: data})
}

// Success answers 200 with data, which may be nil (an empty queue on call-next).
func Success(c *gin.Context, message string, data any) {
	respond(c, http.StatusOK, message, data)
}

// Created answers 201 with the booked appointment, queue item or record.
func Created(c *gin.Context, message string, data any) {
	respond(c, http.StatusCreated, message, data)
}

// Error aborts the handler chain. The message is the standard status text
// and detail explains what went wrong.
func Error(c *gin.Context, code int, detail string) {
	c.AbortWithStatusJSON(code, ResponseData{
		Status:  code,
		Message: http.StatusText(code),
		Error:   detail,
	})
}

func BadRequest(c *gin.Context, detail string)   { Error(c, http.StatusBadRequest, detail) }
func Unauthorized(c *gin.Context, detail string) { Error(c, http.StatusUnauthorized, detail) }
func Forbidden(c *gin.Context, detail string)    { Error(c, http.StatusForbidden, detail) }
func NotFound(c *gin.Context, detail string)     { Error(c, http.StatusNotFound, detail) }

// Conflict covers double bookings, a patient already waiting and lost races.
func Conflict(c *gin.Context, detail string) { Error(c, http.StatusConflict, detail) }

// UnprocessableEntity reports a status change the lifecycle does not allow.
func UnprocessableEntity(c *gin.Context, detail string) {
	Error(c, http.StatusUnprocessableEntity, detail)
}

func TooManyRequests(c *gin.Context, detail string) { Error(c, http.StatusTooManyRequests, detail) }

func InternalServerError(c *gin.Context, detail string) {
	Error(c, http.StatusInternalServerError, detail)
}

package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clinic-frontdesk-server/internal/models"
	"clinic-frontdesk-server/internal/services"
	"clinic-frontdesk-server/internal/utils"
)

// respondServiceError maps domain errors onto HTTP statuses.
func respondServiceError(c *gin.Context, log *zap.Logger, err error) {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		utils.BadRequest(c, "Validation failed: "+strings.Join(validErr.Fields, ", "))
		return
	}

	switch {
	case errors.Is(err, models.ErrNotFound):
		utils.NotFound(c, err.Error())

	case errors.Is(err, models.ErrSchedulingConflict),
		errors.Is(err, models.ErrAlreadyQueued):
		utils.Conflict(c, err.Error())

	case errors.Is(err, models.ErrRaceLost):
		utils.Conflict(c, "The record was changed by another request, please retry")

	case errors.Is(err, models.ErrInvalidStatusTransition):
		utils.UnprocessableEntity(c, err.Error())

	default:
		if log != nil {
			log.Error("request failed", zap.String("route", c.FullPath()), zap.Error(err))
		}
		_ = c.Error(err)
		utils.InternalServerError(c, "Internal server error")
	}
}

// parseID reads a positive numeric path parameter, answering 400 otherwise.
func parseID(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 64)
	if err != nil || id == 0 {
		utils.BadRequest(c, "Invalid "+param+": must be a positive integer")
		return 0, false
	}
	return uint(id), true
}

// queryBool parses an optional boolean query parameter.
func queryBool(c *gin.Context, key string) (value bool, present bool, ok bool) {
	raw, exists := c.GetQuery(key)
	if !exists || raw == "" {
		return false, false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		utils.BadRequest(c, "Invalid "+key+": must be true or false")
		return false, true, false
	}
	return v, true, true
}

// likePattern builds a case-insensitive LIKE argument for a search term.
func likePattern(term string) string {
	return "%" + strings.ToLower(strings.TrimSpace(term)) + "%"
}

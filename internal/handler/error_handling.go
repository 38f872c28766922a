package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"novel-client/internal/models"
)

// APIError is the standardized error response body.
type APIError struct {
	Message string `json:"message"`
}

func handleServiceError(c *gin.Context, err error) {
	var statusCode int
	var message string

	switch {
	case errors.Is(err, models.ErrWorkNotFound):
		statusCode = http.StatusNotFound
		message = "Work not found"
	case errors.Is(err, models.ErrSaveNotFound):
		statusCode = http.StatusNotFound
		message = "Save slot is empty"
	case errors.Is(err, models.ErrSceneNotFound):
		statusCode = http.StatusNotFound
		message = "Scene not found"
	case errors.Is(err, models.ErrEndingNotFound), errors.Is(err, models.ErrNoEndingsAvailable):
		statusCode = http.StatusNotFound
		message = "Ending not found"
	case errors.Is(err, models.ErrNotFound):
		statusCode = http.StatusNotFound
		message = "Not found"
	case errors.Is(err, models.ErrChoiceNotFound):
		statusCode = http.StatusBadRequest
		message = "Unknown choice"
	case errors.Is(err, models.ErrNoActiveChoice):
		statusCode = http.StatusConflict
		message = "No choice is awaiting selection"
	case errors.Is(err, models.ErrSaveSlotInvalid):
		statusCode = http.StatusBadRequest
		message = "Invalid save slot"
	case errors.Is(err, models.ErrChapterOutOfRange):
		statusCode = http.StatusBadRequest
		message = "Chapter index out of range"
	case errors.Is(err, models.ErrTriggerProtected):
		statusCode = http.StatusConflict
		message = "The choice trigger line cannot be deleted"
	case errors.Is(err, models.ErrNotInCreatorMode):
		statusCode = http.StatusForbidden
		message = "Session is not in creator mode"
	case errors.Is(err, models.ErrGenerationInProgress):
		statusCode = http.StatusConflict
		message = "Generation is already in progress"
	case errors.Is(err, models.ErrPrerequisiteNotSaved):
		statusCode = http.StatusConflict
		message = "Previous chapter has not been saved yet"
	case errors.Is(err, models.ErrContentNotReadyYet):
		statusCode = http.StatusAccepted
		message = "Content is still generating"
	case errors.Is(err, models.ErrRestoreMismatch):
		statusCode = http.StatusConflict
		message = "Save does not match this session"
	case errors.Is(err, models.ErrSessionFinished):
		statusCode = http.StatusConflict
		message = "Session has finished"
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrBadRequest):
		statusCode = http.StatusBadRequest
		message = "Invalid input"
	case errors.Is(err, models.ErrNetwork):
		statusCode = http.StatusBadGateway
		message = "Content backend is unreachable"
	case errors.Is(err, models.ErrGeneration):
		statusCode = http.StatusBadGateway
		message = "Content generation failed"
	default:
		zap.L().Error("Unhandled internal error in handleServiceError", zap.Error(err))
		statusCode = http.StatusInternalServerError
		message = "An unexpected internal error occurred"
	}

	c.AbortWithStatusJSON(statusCode, APIError{Message: message})
}

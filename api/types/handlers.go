package types

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/killallgit/echonote-api/internal/services/jobs"
	apperrors "github.com/killallgit/echonote-api/pkg/errors"
)

// UserIDKey is the gin context key holding the caller's user ID
const UserIDKey = "user_id"

// Handler utility functions to reduce duplication across handlers

// UserID returns the authenticated caller set by the RequireUser middleware
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// QueryInt parses an optional integer query parameter
// Returns the default when absent and sends an error response if parsing fails
func QueryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		SendBadRequest(c, "Invalid "+name)
		return 0, false
	}
	return value, true
}

// SendError maps err onto a status code and a standardized error body
func SendError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		err = apperrors.NotFound("transcript", c.Param("id"))
	case errors.Is(err, jobs.ErrInvalidTransition):
		err = apperrors.New(apperrors.ErrCodeConflict, "transcript already finished").
			WithDetail("id", c.Param("id"))
	}

	if appErr, ok := apperrors.As(err); ok {
		c.JSON(appErr.GetHTTPCode(), ErrorResponse{
			Status:  StatusError,
			Message: appErr.Message,
			Error:   string(appErr.Code),
			Details: appErr.Details,
		})
		return
	}

	SendInternalError(c, "Internal server error")
}

// SendBadRequest sends a standardized bad request response
func SendBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Status: StatusError, Message: message})
}

// SendUnauthorized sends a standardized unauthorized response
func SendUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Status: StatusError, Message: message})
}

// SendNotFound sends a standardized not found response
func SendNotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Status: StatusError, Message: message})
}

// SendInternalError sends a standardized internal server error response
func SendInternalError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, ErrorResponse{Status: StatusError, Message: message})
}

// SendSuccess sends a standardized success response with data
func SendSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// SendAccepted sends a standardized accepted response with data
func SendAccepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, data)
}

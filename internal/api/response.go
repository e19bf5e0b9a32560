// Package api holds the response envelope shared by gin handlers.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Error codes
const (
	ErrCodeBadRequest     = "BAD_REQUEST"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeInternalServer = "INTERNAL_SERVER_ERROR"
	ErrCodeUnavailable    = "SERVICE_UNAVAILABLE"
)

// Error is an API error with its HTTP status
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// NewError creates an API error
func NewError(code, message string, statusCode int) *Error {
	return &Error{Code: code, Message: message, StatusCode: statusCode}
}

// Response is the standard envelope
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *Error      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// RespondWith writes data in the standard envelope
func RespondWith(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{
		Success:   status < http.StatusBadRequest,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// RespondWithError writes err in the standard envelope
func RespondWithError(c *gin.Context, err *Error) {
	status := err.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.AbortWithStatusJSON(status, Response{
		Success:   false,
		Error:     err,
		Timestamp: time.Now().UTC(),
	})
}

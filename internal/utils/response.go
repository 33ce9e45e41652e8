// internal/utils/response.go
package utils

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// requestIDKey is the gin context key the request-id middleware fills
const requestIDKey = "request_id"

// errorCodes maps the statuses the API emits to stable client-facing codes
var errorCodes = map[int]string{
	http.StatusBadRequest:          "BAD_REQUEST",
	http.StatusNotFound:            "NOT_FOUND",
	http.StatusInternalServerError: "INTERNAL_SERVER_ERROR",
	http.StatusBadGateway:          "SCREEN_UNREACHABLE",
	http.StatusServiceUnavailable:  "SERVICE_UNAVAILABLE",
}

// APIResponse is the envelope every REST endpoint answers with
type APIResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// APIError carries the failure code and the underlying error text
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse sends a successful response
func SuccessResponse(c *gin.Context, statusCode int, message string, data any) {
	respond(c, statusCode, APIResponse{Success: true, Message: message, Data: data})
}

// ErrorResponse sends an error response; err, when set, becomes the details
func ErrorResponse(c *gin.Context, statusCode int, message string, err error) {
	apiError := &APIError{Code: ErrorCode(statusCode), Message: message}
	if err != nil {
		apiError.Details = err.Error()
	}
	respond(c, statusCode, APIResponse{Message: message, Error: apiError})
}

// ValidationErrorResponse sends a 400 listing the offending fields
func ValidationErrorResponse(c *gin.Context, fields map[string]string) {
	respond(c, http.StatusBadRequest, APIResponse{
		Message: "Validation failed",
		Error:   &APIError{Code: "VALIDATION_ERROR", Message: "Request validation failed"},
		Data:    gin.H{"validation_errors": fields},
	})
}

// ErrorCode returns the code reported for an HTTP status
func ErrorCode(statusCode int) string {
	if code, ok := errorCodes[statusCode]; ok {
		return code
	}
	return "UNKNOWN_ERROR"
}

func respond(c *gin.Context, statusCode int, response APIResponse) {
	response.Timestamp = time.Now()
	response.RequestID = c.GetString(requestIDKey)
	c.JSON(statusCode, response)
}

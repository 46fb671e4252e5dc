package response

import (
	"net/http"

	"marketplace-api/internal/apperror"
	"marketplace-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// Response represents a standard API response
type Response struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Code    apperror.Code `json:"code,omitempty"`
	Data    interface{}   `json:"data,omitempty"`
}

// Success returns a success response
func Success(data interface{}) Response {
	return Response{
		Success: true,
		Message: "success",
		Data:    data,
	}
}

// Error returns an error response
func Error(code apperror.Code, message string) Response {
	return Response{
		Success: false,
		Message: message,
		Code:    code,
	}
}

// JSON sends a JSON response
func JSON(c *gin.Context, statusCode int, response Response) {
	c.JSON(statusCode, response)
}

// SuccessJSON sends a success JSON response
func SuccessJSON(c *gin.Context, data interface{}) {
	JSON(c, http.StatusOK, Success(data))
}

// CreatedJSON sends a 201 response
func CreatedJSON(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, Success(data))
}

// ErrorJSON sends an error JSON response
func ErrorJSON(c *gin.Context, statusCode int, code apperror.Code, message string) {
	JSON(c, statusCode, Error(code, message))
}

// FromError maps a service error onto its status code and client-safe message.
func FromError(c *gin.Context, err error) {
	code := apperror.CodeOf(err)
	if code == apperror.CodeInternal || code == apperror.CodeGatewayError {
		logging.Errorf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	ErrorJSON(c, apperror.HTTPStatus(code), code, apperror.MessageOf(err))
}

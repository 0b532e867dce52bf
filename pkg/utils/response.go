package utils

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Response standard response structure
type Response struct {
	Code      ResponseCode `json:"code"`
	Message   string       `json:"message"`
	Data      interface{}  `json:"data,omitempty"`
	Timestamp int64        `json:"timestamp"`
}

// SuccessResponse returns success response
func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:      CodeSuccess,
		Message:   "success",
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}

// ErrorResponse answers with the status and business code derived from err.
// data is optional and lets callers attach context such as a transaction id.
func ErrorResponse(c *gin.Context, err error, data interface{}) {
	code := GetErrorCode(err)
	message := GetErrorMessage(err)
	if code == CodeInternalError {
		message = ErrInternalError.Message
	}
	c.JSON(code.HTTPStatus(), Response{
		Code:      code,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}

// AbortWithError writes the error response and stops the handler chain
func AbortWithError(c *gin.Context, err error) {
	ErrorResponse(c, err, nil)
	c.Abort()
}

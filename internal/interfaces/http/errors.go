package http

import (
	"errors"

	"github.com/garyjia/medical-claims/internal/domain/apperr"
	"github.com/gin-gonic/gin"
)

// Response is the standard JSON envelope
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody describes a failed request
type ErrorBody struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
	TraceID string              `json:"traceId"`
}

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

// respondError writes err as an error payload. Unclassified errors never leak their text.
func respondError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.Wrap(err, apperr.CodeInternal, "An unexpected error occurred.")
	}

	c.JSON(appErr.Code.HTTPStatus(), Response{
		Success: false,
		Error: &ErrorBody{
			Code:    string(appErr.Code),
			Message: appErr.Message,
			Errors:  appErr.Fields,
			TraceID: c.GetString(ctxRequestID),
		},
	})
}

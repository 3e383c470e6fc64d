// Package apierr gives the admin API a standardized error shape and
// Gin middleware, trimmed from the teacher's internal/errors to the
// codes an operational inspection surface actually needs: bad request,
// not found, internal error, and service unavailable. Session/user/
// quota/Kubernetes-specific codes have no analogue here and are
// dropped rather than carried along unused.
package apierr

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Error is a standardized error with an HTTP status and a
// machine-readable code, mirroring the teacher's AppError.
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return e.Code + ": " + e.Message + " - " + e.Details
	}
	return e.Code + ": " + e.Message
}

// Response is the JSON body written for an Error.
type Response struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (e *Error) ToResponse() Response {
	return Response{Error: e.Code, Message: e.Message, Code: e.Code, Details: e.Details}
}

const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeInternalServer     = "INTERNAL_SERVER_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

func BadRequest(message string) *Error {
	return &Error{Code: CodeBadRequest, Message: message, StatusCode: http.StatusBadRequest}
}

func NotFound(resource string) *Error {
	return &Error{Code: CodeNotFound, Message: resource + " not found", StatusCode: http.StatusNotFound}
}

func InternalServer(message string) *Error {
	return &Error{Code: CodeInternalServer, Message: message, StatusCode: http.StatusInternalServerError}
}

func ServiceUnavailable(service string) *Error {
	return &Error{Code: CodeServiceUnavailable, Message: service + " is currently unavailable", StatusCode: http.StatusServiceUnavailable}
}

func Wrap(code, message string, err error) *Error {
	details := ""
	if err != nil {
		details = err.Error()
	}
	status := http.StatusInternalServerError
	switch code {
	case CodeBadRequest:
		status = http.StatusBadRequest
	case CodeNotFound:
		status = http.StatusNotFound
	case CodeServiceUnavailable:
		status = http.StatusServiceUnavailable
	}
	return &Error{Code: code, Message: message, Details: details, StatusCode: status}
}

// HandleError writes err as a JSON response, coercing a plain error
// into an InternalServer Error.
func HandleError(c *gin.Context, err error) {
	if appErr, ok := err.(*Error); ok {
		c.Error(appErr)
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}
	internalErr := InternalServer(err.Error())
	c.Error(internalErr)
	c.JSON(internalErr.StatusCode, internalErr.ToResponse())
}

// Recovery recovers from a handler panic and responds with a generic
// internal error rather than letting the connection die silently.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("recovered from panic")
				c.JSON(http.StatusInternalServerError, Response{
					Error:   CodeInternalServer,
					Message: "an unexpected error occurred",
					Code:    CodeInternalServer,
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// ErrorHandler logs and renders any error gin.Context accumulated
// during the handler chain, mirroring the teacher's ErrorHandler.
func ErrorHandler(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last()
		if appErr, ok := err.Err.(*Error); ok {
			if appErr.StatusCode >= 500 {
				log.Error().Str("code", appErr.Code).Str("details", appErr.Details).Msg(appErr.Message)
			} else {
				log.Warn().Str("code", appErr.Code).Msg(appErr.Message)
			}
			c.JSON(appErr.StatusCode, appErr.ToResponse())
			return
		}
		log.Error().Err(err.Err).Msg("unhandled error")
		c.JSON(http.StatusInternalServerError, Response{
			Error:   CodeInternalServer,
			Message: "an unexpected error occurred",
			Code:    CodeInternalServer,
		})
	}
}

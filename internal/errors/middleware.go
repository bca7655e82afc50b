package errors

import (
	"fmt"
	"log/slog"

	"github.com/ZanzyTHEbar/epa-scoring/internal/monitoring"
	"github.com/gin-gonic/gin"
)

// ErrorHandler is a Gin middleware that renders the last error attached to
// the context with c.Error.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			Respond(c, c.Errors.Last().Err)
		}
	}
}

// RecoveryHandler provides panic recovery with structured error responses
func RecoveryHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		appErr := NewInternalError(
			fmt.Sprintf("Panic recovered: %v", recovered),
			fmt.Errorf("%v", recovered),
		)
		appErr.StackTrace = captureStackTrace()

		LogError(c, appErr)
		c.AbortWithStatusJSON(appErr.HTTPStatus, Body(appErr))
	})
}

// Respond logs err and writes it as the structured error body.
func Respond(c *gin.Context, err error) {
	appErr := ToAppError(err)
	appErr.RequestID = c.GetString("request_id")
	logLocated(c, appErr, 1)
	c.AbortWithStatusJSON(appErr.HTTPStatus, Body(appErr))
}

// Body is the wire shape of an error. Error and data responses never share
// a shape.
func Body(err *AppError) gin.H {
	body := gin.H{
		"error": gin.H{
			"category": err.Category,
			"code":     fmt.Sprint(err.ErrBuilder.ErrCode()),
			"message":  err.ErrBuilder.Msg,
		},
		"timestamp": err.Timestamp,
	}
	if err.RequestID != "" {
		body["request_id"] = err.RequestID
	}
	if len(err.Fields) > 0 {
		body["details"] = err.Fields
	}
	return body
}

// LogError logs an error with appropriate level and context. Server-side
// failures go through the API error logger so the reporting caller is kept.
func LogError(c *gin.Context, err *AppError) {
	logLocated(c, err, 1)
}

// logLocated does the work of LogError. skip counts the frames between the
// code reporting the error and logLocated.
func logLocated(c *gin.Context, err *AppError, skip int) {
	requestID := c.GetString("request_id")
	msg := err.ErrBuilder.Msg

	switch err.Category {
	case CategoryValidation, CategoryRateLimit, CategoryNotFound, CategoryNoData:
		requestLog(c, err, requestID).Warn(msg)
	case CategoryTimeout:
		requestLog(c, err, requestID).Info(msg, "cause", err.ErrBuilder.Unwrap())
	default:
		attrs := []any{"error_category", err.Category, "request_id", requestID}
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			attrs = append(attrs, "cause", cause.Error())
		}
		logger := &monitoring.Logger{Logger: slog.Default()}
		logger.APIErrorLogger(skip+1, err, c.Request.Method, c.Request.URL.Path, c.ClientIP(), err.HTTPStatus, attrs...)
	}

	if err.StackTrace != "" && gin.Mode() == gin.DebugMode {
		slog.Debug("stack_trace", "request_id", requestID, "trace", err.StackTrace)
	}
}

func requestLog(c *gin.Context, err *AppError, requestID string) *slog.Logger {
	return slog.With(
		"error_category", err.Category,
		"error_code", err.ErrBuilder.ErrCode(),
		"http_status", err.HTTPStatus,
		"ip", c.ClientIP(),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", requestID,
	)
}

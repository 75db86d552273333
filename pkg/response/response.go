package response

import (
	"errors"
	"net/http"
	"time"

	"reseller-ledger/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// requestIDKey matches middleware.CtxRequestID; importing middleware here would cycle.
const requestIDKey = "request_id"

// Meta is stamped on every envelope.
type Meta struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// SuccessResponse is the standard success envelope.
type SuccessResponse struct {
	Data any `json:"data"`
	Meta
}

// FieldError names one rejected request field.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ErrorResponse is the standard error envelope. Reason lets sellers tell
// insufficient funds apart from below-minimum or already-delivered.
type ErrorResponse struct {
	ErrorCode string       `json:"error_code"`
	Reason    string       `json:"reason"`
	Message   string       `json:"message"`
	Fields    []FieldError `json:"fields,omitempty"`
	Meta
}

// OK sends a 200 response with data.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, SuccessResponse{Data: data, Meta: meta(c)})
}

// Created sends a 201 response with data.
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, SuccessResponse{Data: data, Meta: meta(c)})
}

// Acknowledged answers a gateway callback. The gateway only cares about the 200.
func Acknowledged(c *gin.Context, outcome string) {
	OK(c, gin.H{"outcome": outcome})
}

// Error writes err as an error envelope. Errors that are not an *apperror.AppError
// become an opaque 500.
func Error(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			ErrorCode: "SYS_000",
			Reason:    string(apperror.KindInternal),
			Message:   "Internal server error",
			Meta:      meta(c),
		})
		return
	}

	c.JSON(appErr.HTTPStatus, ErrorResponse{
		ErrorCode: appErr.Code,
		Reason:    string(appErr.Kind),
		Message:   appErr.Message,
		Fields:    fieldErrors(appErr.Err),
		Meta:      meta(c),
	})
}

// fieldErrors lists the failed binding rules wrapped inside a validation error.
func fieldErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Namespace(), Rule: fe.Tag()})
	}
	return out
}

func meta(c *gin.Context) Meta {
	id := c.GetString(requestIDKey)
	if id == "" {
		id = uuid.NewString()
	}
	return Meta{RequestID: id, Timestamp: time.Now().UTC().Format(time.RFC3339)}
}

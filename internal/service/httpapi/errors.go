package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
	"github.com/vladislavdragonenkov/crowngate/internal/service/idempotency"
	"github.com/vladislavdragonenkov/crowngate/internal/store"
)

// ErrorResponse — тело ответа с ошибкой.
type ErrorResponse struct {
	Error   string       `json:"error"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
}

// FieldError описывает нарушенное правило валидации.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// errorStatus сопоставляет доменную ошибку с HTTP-кодом и машинным кодом ошибки.
func errorStatus(err error) (int, string) {
	var verrs validator.ValidationErrors
	switch {
	case domain.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &verrs), domain.IsInvalidInput(err):
		return http.StatusUnprocessableEntity, "validation_failed"
	case errors.Is(err, domain.ErrUserManagementRestricted):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, idempotency.ErrRequestInProgress):
		return http.StatusConflict, "request_in_progress"
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return http.StatusUnprocessableEntity, "idempotency_key_reused"
	case errors.Is(err, store.ErrClosed):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func newErrorResponse(err error) (int, ErrorResponse) {
	status, code := errorStatus(err)
	resp := ErrorResponse{Error: code, Message: err.Error()}
	if status == http.StatusInternalServerError {
		resp.Message = "internal server error"
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		resp.Message = "request validation failed"
		for _, fe := range verrs {
			resp.Fields = append(resp.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
		}
	}
	return status, resp
}

func (h *handler) fail(c *gin.Context, err error) {
	status, resp := newErrorResponse(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: message})
}

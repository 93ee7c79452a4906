package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	billdomain "github.com/campuskit/billing/internal/bill/domain"
	gatewaydomain "github.com/campuskit/billing/internal/gateway/domain"
	installmentdomain "github.com/campuskit/billing/internal/installment/domain"
	"github.com/campuskit/billing/internal/money"
	paymentdomain "github.com/campuskit/billing/internal/payment/domain"
	refunddomain "github.com/campuskit/billing/internal/refund/domain"
	sequencedomain "github.com/campuskit/billing/internal/sequence/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, gatewaydomain.ErrInvalidSignature):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "signature verification failed",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, gatewaydomain.ErrGatewayUnavailable):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_error",
			Message: "payment gateway unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, money.ErrInvalidSplit),
		errors.Is(err, paymentdomain.ErrInvalidStatus),
		errors.Is(err, paymentdomain.ErrInvalidMethod),
		errors.Is(err, paymentdomain.ErrMissingGateway),
		errors.Is(err, paymentdomain.ErrMissingTenant),
		errors.Is(err, refunddomain.ErrInvalidRefundAmount),
		errors.Is(err, installmentdomain.ErrInvalidCount),
		errors.Is(err, gatewaydomain.ErrInvalidProvider),
		errors.Is(err, gatewaydomain.ErrInvalidPayload),
		errors.Is(err, gatewaydomain.ErrInvalidEvent),
		errors.Is(err, sequencedomain.ErrInvalidPrefix),
		errors.Is(err, sequencedomain.ErrInvalidTenant):
		return true
	}
	return false
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, refunddomain.ErrRefundNotFound),
		errors.Is(err, installmentdomain.ErrInstallmentNotFound),
		errors.Is(err, billdomain.ErrBillNotFound),
		errors.Is(err, gatewaydomain.ErrProviderNotFound),
		errors.Is(err, gatewaydomain.ErrUnknownTransaction):
		return true
	}
	return false
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, paymentdomain.ErrInvalidTransition),
		errors.Is(err, paymentdomain.ErrImmutableState),
		errors.Is(err, paymentdomain.ErrAlreadyDeleted),
		errors.Is(err, refunddomain.ErrExceedsRefundable),
		errors.Is(err, refunddomain.ErrInvalidRefundState),
		errors.Is(err, refunddomain.ErrPaymentNotRefundable),
		errors.Is(err, installmentdomain.ErrInstallmentsExist),
		errors.Is(err, installmentdomain.ErrAlreadyPaid),
		errors.Is(err, sequencedomain.ErrConflict):
		return true
	}
	return false
}

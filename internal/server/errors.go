package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	balancedomain "github.com/chapterhq/examslots/internal/balance/domain"
	catalogdomain "github.com/chapterhq/examslots/internal/catalog/domain"
	coordinatordomain "github.com/chapterhq/examslots/internal/coordinator/domain"
	gatewaydomain "github.com/chapterhq/examslots/internal/gateway/domain"
	purchasedomain "github.com/chapterhq/examslots/internal/purchase/domain"
	reconciledomain "github.com/chapterhq/examslots/internal/reconcile/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrInternal       = errors.New("internal_error")
)

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

func mapError(err error) (int, errorPayload) {
	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, reconciledomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "invalid_signature",
			Message: "webhook signature verification failed",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: err.Error(),
		}
	case errors.Is(err, balancedomain.ErrInsufficientSlots):
		return http.StatusConflict, errorPayload{
			Type:    "insufficient_slots",
			Message: "available slots are below the requested amount",
		}
	case isUnprocessableError(err):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unprocessable",
			Message: err.Error(),
		}
	case errors.Is(err, gatewaydomain.ErrInitializeFailed),
		errors.Is(err, gatewaydomain.ErrVerifyUnavailable):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_unavailable",
			Message: "payment gateway is unavailable, try again shortly",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, reconciledomain.ErrInvalidPayload),
		errors.Is(err, reconciledomain.ErrEventIgnored),
		errors.Is(err, balancedomain.ErrInvalidSlotAmount),
		errors.Is(err, balancedomain.ErrInvalidUsageType),
		errors.Is(err, balancedomain.ErrInvalidReference),
		errors.Is(err, balancedomain.ErrInvalidRegistration),
		errors.Is(err, balancedomain.ErrInvalidCoordinator):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, catalogdomain.ErrChapterNotFound),
		errors.Is(err, catalogdomain.ErrPackageNotFound),
		errors.Is(err, coordinatordomain.ErrCoordinatorNotFound),
		errors.Is(err, balancedomain.ErrBalanceNotFound),
		errors.Is(err, purchasedomain.ErrUnknownReference),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isUnprocessableError(err error) bool {
	switch {
	case errors.Is(err, catalogdomain.ErrChapterInactive),
		errors.Is(err, catalogdomain.ErrPackageInactive),
		errors.Is(err, catalogdomain.ErrRoutingTokenMissing),
		errors.Is(err, catalogdomain.ErrRoutingTokenInactive),
		errors.Is(err, coordinatordomain.ErrCoordinatorInactive),
		errors.Is(err, coordinatordomain.ErrChapterMismatch):
		return true
	default:
		return false
	}
}

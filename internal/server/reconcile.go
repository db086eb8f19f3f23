package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	reconciledomain "github.com/chapterhq/examslots/internal/reconcile/domain"
)

// ReconcilePurchase is the operator "query payment" action: re-verify a
// purchase against the gateway and settle it if the gateway says paid.
func (s *Server) ReconcilePurchase(c *gin.Context) {
	reference := strings.TrimSpace(c.Param("reference"))
	if reference == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.reconcileSvc.Reconcile(c.Request.Context(), reference)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(reconcileStatus(result), result)
}

// reconcileStatus maps a non-credit outcome onto a status the operator UI
// can branch on. Credits and repeats are plain 200s.
func reconcileStatus(result *reconciledomain.Result) int {
	if result.Credited {
		return http.StatusOK
	}
	switch result.Reason {
	case reconciledomain.ReasonGatewayRejected:
		return http.StatusConflict
	case reconciledomain.ReasonVerificationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusOK
	}
}

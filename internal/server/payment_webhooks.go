package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	purchasedomain "github.com/chapterhq/examslots/internal/purchase/domain"
	reconciledomain "github.com/chapterhq/examslots/internal/reconcile/domain"
)

const webhookSignatureHeader = "X-Paystack-Signature"

// HandlePaymentWebhook acknowledges any authenticated, well-formed event
// with 200 so the gateway stops retrying. Outcomes that are not credits
// (rejected, still pending, unknown reference) are still acks; only auth
// and parse failures surface as errors.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.reconcileSvc.HandleWebhook(c.Request.Context(), payload, c.GetHeader(webhookSignatureHeader))
	if err != nil {
		if errors.Is(err, purchasedomain.ErrUnknownReference) {
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		if errors.Is(err, reconciledomain.ErrEventIgnored) {
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "result": result})
}

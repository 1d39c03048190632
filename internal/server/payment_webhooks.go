package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/schoolbilling/internal/processor"
	"go.uber.org/zap"
)

const (
	headerStripeSignature = "Stripe-Signature"
	maxWebhookBodyBytes   = 1 << 16
)

// HandleStripeWebhook verifies and ingests a processor event. Handling
// failures are absorbed into a 200. Storage errors and payments that were
// stored but not applied return 500 so the processor redelivers.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	outcome, err := s.webhookSvc.Ingest(c.Request.Context(), payload, c.GetHeader(headerStripeSignature))
	if err != nil {
		if !errors.Is(err, processor.ErrInvalidSignature) {
			s.log.Warn("webhook rejected", zap.Error(err))
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"received": true, "outcome": outcome}})
}

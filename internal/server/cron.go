package server

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BillingSummary is the read-only view of the overdue check.
func (s *Server) BillingSummary(c *gin.Context) {
	summary, err := s.billingCycleSvc.Summary(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, summary)
}

func (s *Server) BillingSweep(c *gin.Context) {
	result, err := s.billingCycleSvc.Sweep(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.log.Info("billing sweep finished",
		zap.Int("due_soon", result.DueSoonCount),
		zap.Int("overdue", result.OverdueCount),
		zap.Int("notifications", result.Notifications),
		zap.Bool("locked", result.Locked),
	)
	respond(c, result)
}

func (s *Server) ExpireFeatureTrials(c *gin.Context) {
	expired, err := s.entitlementSvc.ExpireTrials(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, gin.H{"expired": expired})
}

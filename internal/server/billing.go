package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/smallbiznis/schoolbilling/internal/subscription/domain"
)

type setBillingDayRequest struct {
	BillingDay int `json:"billing_day"`
}

func (s *Server) CreateSubscriptionCheckout(c *gin.Context) {
	var req subscriptiondomain.CheckoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	req.SchoolID = schoolID(c)

	session, err := s.subscriptionSvc.Checkout(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, session)
}

func (s *Server) CreateBillingPortal(c *gin.Context) {
	var req subscriptiondomain.PortalRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	req.SchoolID = schoolID(c)

	session, err := s.subscriptionSvc.Portal(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, session)
}

func (s *Server) CreateFeatureCheckout(c *gin.Context) {
	var req subscriptiondomain.FeatureCheckoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	req.SchoolID = schoolID(c)
	req.FeatureCode = strings.TrimSpace(c.Param("code"))

	session, err := s.subscriptionSvc.FeatureCheckout(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, session)
}

func (s *Server) SavePaymentMethod(c *gin.Context) {
	var req subscriptiondomain.SavePaymentMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.SchoolID = schoolID(c)

	method, err := s.subscriptionSvc.SavePaymentMethod(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, method)
}

// ChargeFeature pays for a feature with the school's saved default card.
func (s *Server) ChargeFeature(c *gin.Context) {
	payment, err := s.subscriptionSvc.ChargeFeature(c.Request.Context(), subscriptiondomain.ChargeFeatureRequest{
		SchoolID:    schoolID(c),
		FeatureCode: strings.TrimSpace(c.Param("code")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, payment)
}

func (s *Server) SetBillingDay(c *gin.Context) {
	var req setBillingDayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	school, err := s.schoolSvc.SetBillingDay(c.Request.Context(), schoolID(c), req.BillingDay)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, gin.H{
		"school_id":   school.ID.String(),
		"billing_day": school.BillingDay,
	})
}

func (s *Server) OnboardConnectedAccount(c *gin.Context) {
	result, err := s.paymentProviderSvc.Onboard(c.Request.Context(), schoolID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, result)
}

func (s *Server) ConnectedAccountDashboard(c *gin.Context) {
	url, err := s.paymentProviderSvc.DashboardLink(c.Request.Context(), schoolID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, gin.H{"url": url})
}

func (s *Server) ConnectedAccountStatus(c *gin.Context) {
	status, err := s.paymentProviderSvc.Status(c.Request.Context(), schoolID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, status)
}

// PreviewPlatformFee shows how a family payment of ?amount= would be split.
func (s *Server) PreviewPlatformFee(c *gin.Context) {
	amount, err := parseRequiredInt64(c.Query("amount"), "amount")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if amount < 0 {
		AbortWithError(c, newValidationError("amount", "invalid_amount", "amount cannot be negative"))
		return
	}

	school, err := s.schoolSvc.Get(c.Request.Context(), schoolID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, s.fees.ComputeFee(amount, school.SubscriptionPlan))
}

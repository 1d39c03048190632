package server

import (
	"github.com/gin-gonic/gin"
	customchargedomain "github.com/smallbiznis/schoolbilling/internal/customcharge/domain"
)

type customChargeCheckoutRequest struct {
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

func (s *Server) CreateCustomCharge(c *gin.Context) {
	var req customchargedomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.SchoolID = schoolID(c)

	charge, err := s.customChargeSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, charge)
}

func (s *Server) ListFamilyCharges(c *gin.Context) {
	familyID, err := parseSnowflakeParam(c, "familyId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	charges, err := s.customChargeSvc.ListByFamily(c.Request.Context(), schoolID(c), familyID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, charges)
}

func (s *Server) CheckoutCustomCharge(c *gin.Context) {
	familyID, err := parseSnowflakeParam(c, "familyId")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	chargeID, err := parseSnowflakeParam(c, "chargeId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req customChargeCheckoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	result, err := s.customChargeSvc.Checkout(c.Request.Context(), customchargedomain.CheckoutRequest{
		SchoolID:   schoolID(c),
		FamilyID:   familyID,
		ChargeID:   chargeID,
		SuccessURL: firstNonEmpty(req.SuccessURL, s.cfg.Stripe.SuccessURL),
		CancelURL:  firstNonEmpty(req.CancelURL, s.cfg.Stripe.CancelURL),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, result)
}

package server

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/schoolbilling/internal/payment/domain"
	"github.com/smallbiznis/schoolbilling/pkg/db/pagination"
)

type recordPaymentRequest struct {
	SchoolID          string     `json:"school_id"`
	TargetType        string     `json:"target_type"`
	FeatureCode       string     `json:"feature_code"`
	Plan              string     `json:"plan"`
	ChargeID          string     `json:"charge_id"`
	Amount            int64      `json:"amount"`
	Currency          string     `json:"currency"`
	PaymentType       string     `json:"payment_type"`
	Status            string     `json:"status"`
	ProviderPaymentID *string    `json:"provider_payment_id"`
	PeriodStart       *time.Time `json:"period_start"`
	PeriodEnd         *time.Time `json:"period_end"`
	Note              *string    `json:"note"`
}

func (s *Server) MarkFeaturePaid(c *gin.Context) {
	var req paymentdomain.MarkPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if actor, ok := actorID(c); ok {
		req.RecordedBy = &actor
	}
	req.FeatureCode = trimOptional(req.FeatureCode)

	payment, err := s.paymentSvc.MarkFeaturePaid(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, payment)
}

// RecordPayment records a payment made outside the processor, or replays one
// that the processor reported but the webhook missed.
func (s *Server) RecordPayment(c *gin.Context) {
	var req recordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	target, err := req.target()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	paymentType := paymentdomain.PaymentType(strings.TrimSpace(req.PaymentType))
	if paymentType == "" {
		paymentType = paymentdomain.PaymentTypeManual
	}
	status := paymentdomain.Status(strings.TrimSpace(req.Status))
	if status == "" {
		status = paymentdomain.StatusSucceeded
	}

	record := paymentdomain.RecordPaymentRequest{
		Target:            target,
		Amount:            req.Amount,
		Currency:          strings.TrimSpace(req.Currency),
		PaymentType:       paymentType,
		Status:            status,
		ProviderPaymentID: trimOptional(req.ProviderPaymentID),
		PeriodStart:       req.PeriodStart,
		PeriodEnd:         req.PeriodEnd,
		Note:              trimOptional(req.Note),
	}
	if actor, ok := actorID(c); ok {
		record.RecordedBy = &actor
	}

	payment, err := s.paymentSvc.RecordPayment(c.Request.Context(), record)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, payment)
}

func (r recordPaymentRequest) target() (paymentdomain.Target, error) {
	schoolID, err := parseSnowflakeString(r.SchoolID, "school_id")
	if err != nil {
		return nil, err
	}

	switch paymentdomain.TargetType(strings.TrimSpace(r.TargetType)) {
	case paymentdomain.TargetTypeFeature:
		return paymentdomain.FeatureTarget{SchoolID: schoolID, FeatureCode: strings.TrimSpace(r.FeatureCode)}, nil
	case paymentdomain.TargetTypeSubscription:
		return paymentdomain.SubscriptionTarget{SchoolID: schoolID, Plan: strings.TrimSpace(r.Plan)}, nil
	case paymentdomain.TargetTypeCustomCharge:
		chargeID, err := parseSnowflakeString(r.ChargeID, "charge_id")
		if err != nil {
			return nil, err
		}
		return paymentdomain.CustomChargeTarget{SchoolID: schoolID, ChargeID: chargeID}, nil
	default:
		return nil, paymentdomain.ErrInvalidTarget
	}
}

func (s *Server) ListSchoolPayments(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.paymentSvc.ListPayments(c.Request.Context(), schoolID(c), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, result)
}

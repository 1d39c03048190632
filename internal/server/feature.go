package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	entitlementdomain "github.com/smallbiznis/schoolbilling/internal/entitlement/domain"
	featuredomain "github.com/smallbiznis/schoolbilling/internal/feature/domain"
)

type disableFeatureRequest struct {
	SchoolID    string `json:"school_id"`
	FeatureCode string `json:"feature_code"`
}

func (s *Server) ListFeatureCatalog(c *gin.Context) {
	var query struct {
		ActiveOnly bool `form:"active_only"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	features, err := s.featureSvc.List(c.Request.Context(), query.ActiveOnly)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, features)
}

func (s *Server) UpsertFeatureCatalog(c *gin.Context) {
	var req featuredomain.UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.featureSvc.Upsert(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, resp)
}

func (s *Server) EnableFeature(c *gin.Context) {
	var req entitlementdomain.EnableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if actor, ok := actorID(c); ok {
		req.EnabledBy = &actor
	}
	req.FeatureCode = strings.TrimSpace(req.FeatureCode)

	ent, err := s.entitlementSvc.Enable(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, entitlementdomain.NewResponse(*ent))
}

func (s *Server) DisableFeature(c *gin.Context) {
	var req disableFeatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	schoolID, err := parseSnowflakeString(req.SchoolID, "school_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ent, err := s.entitlementSvc.Disable(c.Request.Context(), schoolID, strings.TrimSpace(req.FeatureCode))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, entitlementdomain.NewResponse(*ent))
}

func (s *Server) ToggleFeature(c *gin.Context) {
	var req entitlementdomain.ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if actor, ok := actorID(c); ok {
		req.Actor = &actor
	}
	req.FeatureCode = strings.TrimSpace(req.FeatureCode)

	ent, err := s.entitlementSvc.Toggle(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, entitlementdomain.NewResponse(*ent))
}

func (s *Server) UpdateFeaturePricing(c *gin.Context) {
	var req entitlementdomain.UpdatePricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.FeatureCode = strings.TrimSpace(req.FeatureCode)

	ent, err := s.entitlementSvc.UpdatePricing(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, entitlementdomain.NewResponse(*ent))
}

func (s *Server) ListSchoolFeatures(c *gin.Context) {
	items, err := s.entitlementSvc.ListBySchool(c.Request.Context(), schoolID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := make([]entitlementdomain.Response, 0, len(items))
	for _, item := range items {
		resp = append(resp, entitlementdomain.NewResponse(item))
	}
	respond(c, resp)
}

// CheckFeature lets any member ask whether a feature is usable right now.
func (s *Server) CheckFeature(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	active, err := s.entitlementSvc.IsActive(c.Request.Context(), schoolID(c), code)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, gin.H{"feature_code": code, "active": active})
}

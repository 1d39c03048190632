package domain

import "github.com/bwmarrin/snowflake"

// Target is what a payment pays for. The set of implementations is closed.
type Target interface {
	School() snowflake.ID
	Type() TargetType
	target()
}

type FeatureTarget struct {
	SchoolID    snowflake.ID
	FeatureCode string
}

// SubscriptionTarget pays for the school's own platform plan. An empty Plan
// means the configured standard plan.
type SubscriptionTarget struct {
	SchoolID snowflake.ID
	Plan     string
}

type CustomChargeTarget struct {
	SchoolID snowflake.ID
	ChargeID snowflake.ID
}

func (t FeatureTarget) School() snowflake.ID      { return t.SchoolID }
func (t SubscriptionTarget) School() snowflake.ID { return t.SchoolID }
func (t CustomChargeTarget) School() snowflake.ID { return t.SchoolID }

func (FeatureTarget) Type() TargetType      { return TargetTypeFeature }
func (SubscriptionTarget) Type() TargetType { return TargetTypeSubscription }
func (CustomChargeTarget) Type() TargetType { return TargetTypeCustomCharge }

func (FeatureTarget) target()      {}
func (SubscriptionTarget) target() {}
func (CustomChargeTarget) target() {}

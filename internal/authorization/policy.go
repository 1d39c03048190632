package authorization

import "github.com/casbin/casbin/v2"

const (
	RolePlatformAdmin = "role:platform_admin"
	RoleSchoolOwner   = "role:school_owner"
	RoleSchoolAdmin   = "role:school_admin"
	RoleSchoolMember  = "role:school_member"
)

const (
	ObjectFeature      = "feature"
	ObjectPayment      = "payment"
	ObjectCustomCharge = "custom_charge"
	ObjectBilling      = "billing"
	ObjectConnect      = "connect"
	ObjectPlatformFee  = "platform_fee"
	ObjectCron         = "cron"
)

const (
	ActionFeatureView   = "feature.view"
	ActionFeatureManage = "feature.manage"
	ActionFeatureCheck  = "feature.check"

	ActionPaymentView   = "payment.view"
	ActionPaymentRecord = "payment.record"

	ActionCustomChargeCreate = "custom_charge.create"
	ActionCustomChargePay    = "custom_charge.pay"

	ActionBillingManage = "billing.manage"
	ActionConnectManage = "connect.manage"
	ActionConnectView   = "connect.view"

	ActionPlatformFeeView = "platform_fee.view"

	ActionCronRun = "cron.run"
)

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Members of a school
		{RoleSchoolMember, ObjectPlatformFee, ActionPlatformFeeView},
		{RoleSchoolMember, ObjectFeature, ActionFeatureCheck},
		{RoleSchoolMember, ObjectCustomCharge, ActionCustomChargePay},

		{RoleSchoolAdmin, ObjectPlatformFee, ActionPlatformFeeView},
		{RoleSchoolAdmin, ObjectFeature, ActionFeatureCheck},
		{RoleSchoolAdmin, ObjectCustomCharge, ActionCustomChargePay},
		{RoleSchoolAdmin, ObjectConnect, ActionConnectView},

		// Owners run the school's own billing
		{RoleSchoolOwner, ObjectPlatformFee, ActionPlatformFeeView},
		{RoleSchoolOwner, ObjectFeature, ActionFeatureCheck},
		{RoleSchoolOwner, ObjectCustomCharge, ActionCustomChargePay},
		{RoleSchoolOwner, ObjectBilling, ActionBillingManage},
		{RoleSchoolOwner, ObjectConnect, ActionConnectManage},
		{RoleSchoolOwner, ObjectConnect, ActionConnectView},

		// Platform administrators
		{RolePlatformAdmin, ObjectFeature, ActionFeatureView},
		{RolePlatformAdmin, ObjectFeature, ActionFeatureManage},
		{RolePlatformAdmin, ObjectFeature, ActionFeatureCheck},
		{RolePlatformAdmin, ObjectPayment, ActionPaymentView},
		{RolePlatformAdmin, ObjectPayment, ActionPaymentRecord},
		{RolePlatformAdmin, ObjectCustomCharge, ActionCustomChargeCreate},
		{RolePlatformAdmin, ObjectCustomCharge, ActionCustomChargePay},
		{RolePlatformAdmin, ObjectPlatformFee, ActionPlatformFeeView},
		{RolePlatformAdmin, ObjectConnect, ActionConnectView},
		{RolePlatformAdmin, ObjectCron, ActionCronRun},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}

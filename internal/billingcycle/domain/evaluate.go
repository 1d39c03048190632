package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	schooldomain "github.com/smallbiznis/schoolbilling/internal/school/domain"
)

// DefaultDueSoonDays is the lookahead before the billing day.
const DefaultDueSoonDays = 2

// Evaluation is one tenant's position in its monthly billing cycle.
type Evaluation struct {
	SchoolID            snowflake.ID                    `json:"school_id"`
	SchoolName          string                          `json:"school_name"`
	Status              schooldomain.SubscriptionStatus `json:"subscription_status"`
	BillingDay          int                             `json:"billing_day"`
	EffectiveBillingDay int                             `json:"effective_billing_day"`
	IsDueSoon           bool                            `json:"is_due_soon"`
	IsOverdue           bool                            `json:"is_overdue"`
	DaysOverdue         int                             `json:"days_overdue,omitempty"`
}

// Evaluate places the school in the month containing now (UTC).
//
// A billing day past the end of the month is clamped to the month's last day.
// The due-soon window never reaches back into the previous month, so a
// billing day of 1 or 2 only gets the days that exist before it. A school
// whose subscription is active is never overdue.
func Evaluate(school schooldomain.School, now time.Time, dueSoonDays int) Evaluation {
	eval := Evaluation{
		SchoolID:   school.ID,
		SchoolName: school.Name,
		Status:     school.SubscriptionStatus,
	}
	if school.BillingDay == nil {
		return eval
	}

	now = now.UTC()
	day := now.Day()
	eff := min(*school.BillingDay, LastDayOfMonth(now))
	eval.BillingDay = *school.BillingDay
	eval.EffectiveBillingDay = eff

	if day > eff && school.SubscriptionStatus != schooldomain.SubscriptionStatusActive {
		eval.IsOverdue = true
		eval.DaysOverdue = day - eff
	}
	if gap := eff - day; gap >= 1 && gap <= dueSoonDays {
		eval.IsDueSoon = true
	}
	return eval
}

func LastDayOfMonth(t time.Time) int {
	firstOfNext := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	return firstOfNext.AddDate(0, 0, -1).Day()
}

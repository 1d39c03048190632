package domain

import (
	"testing"
	"time"

	schooldomain "github.com/smallbiznis/schoolbilling/internal/school/domain"
	"github.com/stretchr/testify/assert"
)

func school(status schooldomain.SubscriptionStatus, billingDay int) schooldomain.School {
	return schooldomain.School{ID: 1, Name: "Birch", SubscriptionStatus: status, BillingDay: &billingDay}
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 12, 0, 0, 0, time.UTC)
}

func TestActiveSchoolIsNeverOverdue(t *testing.T) {
	eval := Evaluate(school(schooldomain.SubscriptionStatusActive, 15), day(2026, 3, 20), 2)
	assert.False(t, eval.IsOverdue)
	assert.Zero(t, eval.DaysOverdue)
}

func TestPastDueSchoolIsOverdue(t *testing.T) {
	eval := Evaluate(school(schooldomain.SubscriptionStatusPastDue, 15), day(2026, 3, 20), 2)
	assert.True(t, eval.IsOverdue)
	assert.Equal(t, 5, eval.DaysOverdue)
	assert.False(t, eval.IsDueSoon)
}

func TestEveryInactiveStatusCountsAsOverdue(t *testing.T) {
	for _, status := range []schooldomain.SubscriptionStatus{
		schooldomain.SubscriptionStatusPastDue,
		schooldomain.SubscriptionStatusTrial,
		schooldomain.SubscriptionStatusCanceled,
	} {
		eval := Evaluate(school(status, 10), day(2026, 3, 12), 2)
		assert.True(t, eval.IsOverdue, status)
		assert.Equal(t, 2, eval.DaysOverdue, status)
	}
}

func TestDueSoonWindow(t *testing.T) {
	cases := []struct {
		today int
		want  bool
	}{
		{today: 12, want: false},
		{today: 13, want: true},
		{today: 14, want: true},
		{today: 15, want: false},
		{today: 16, want: false},
	}
	for _, tc := range cases {
		eval := Evaluate(school(schooldomain.SubscriptionStatusActive, 15), day(2026, 3, tc.today), 2)
		assert.Equal(t, tc.want, eval.IsDueSoon, "day %d", tc.today)
	}
}

func TestBillingDayClampsToShortMonth(t *testing.T) {
	// February 2026 has 28 days.
	eval := Evaluate(school(schooldomain.SubscriptionStatusPastDue, 30), day(2026, 2, 26), 2)
	assert.Equal(t, 28, eval.EffectiveBillingDay)
	assert.Equal(t, 30, eval.BillingDay)
	assert.True(t, eval.IsDueSoon)

	eval = Evaluate(school(schooldomain.SubscriptionStatusPastDue, 31), day(2026, 4, 30), 2)
	assert.Equal(t, 30, eval.EffectiveBillingDay)
	assert.False(t, eval.IsOverdue, "the clamped day itself is not overdue")

	eval = Evaluate(school(schooldomain.SubscriptionStatusPastDue, 31), day(2026, 5, 1), 2)
	assert.False(t, eval.IsOverdue, "overdue resets with the new month")
}

func TestDueSoonDoesNotWrapIntoPreviousMonth(t *testing.T) {
	eval := Evaluate(school(schooldomain.SubscriptionStatusActive, 1), day(2026, 3, 31), 2)
	assert.False(t, eval.IsDueSoon)

	eval = Evaluate(school(schooldomain.SubscriptionStatusActive, 2), day(2026, 3, 1), 2)
	assert.True(t, eval.IsDueSoon)
}

func TestNoBillingDay(t *testing.T) {
	s := schooldomain.School{ID: 2, SubscriptionStatus: schooldomain.SubscriptionStatusPastDue}
	eval := Evaluate(s, day(2026, 3, 28), 2)
	assert.False(t, eval.IsOverdue)
	assert.False(t, eval.IsDueSoon)
}

func TestLastDayOfMonth(t *testing.T) {
	assert.Equal(t, 29, LastDayOfMonth(day(2028, 2, 10)))
	assert.Equal(t, 31, LastDayOfMonth(day(2026, 12, 31)))
}

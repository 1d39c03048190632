package domain

import "context"

// Service is the BillingCycleMonitor.
type Service interface {
	// Summary evaluates every scanned tenant without writing anything.
	Summary(ctx context.Context) (Summary, error)
	// Sweep expires lapsed school trials and notifies owners of due-soon and
	// overdue tenants at most once per day.
	Sweep(ctx context.Context) (SweepResult, error)
}

type Summary struct {
	Date         string       `json:"date"`
	Evaluated    int          `json:"evaluated"`
	DueSoonCount int          `json:"dueSoonCount"`
	OverdueCount int          `json:"overdueCount"`
	Tenants      []Evaluation `json:"tenants"`
}

type SweepResult struct {
	DueSoonCount    int  `json:"dueSoonCount"`
	OverdueCount    int  `json:"overdueCount"`
	AlreadyNotified int  `json:"alreadyNotified"`
	SkippedCount    int  `json:"skippedCount"`
	ExpiredTrials   int  `json:"expiredTrials"`
	Notifications   int  `json:"notifications"`
	Locked          bool `json:"locked,omitempty"`
}

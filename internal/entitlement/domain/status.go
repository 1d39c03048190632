package domain

import (
	"fmt"
	"time"
)

// EntitlementStatus is one of Active, Trial, PendingPayment or Canceled.
// A trial cannot exist without its end date.
type EntitlementStatus interface {
	Code() StatusCode
	entitlementStatus()
}

type Active struct{}

type Trial struct {
	EndsAt time.Time
}

type PendingPayment struct{}

type Canceled struct{}

func (Active) Code() StatusCode         { return StatusActive }
func (Trial) Code() StatusCode          { return StatusTrial }
func (PendingPayment) Code() StatusCode { return StatusPendingPayment }
func (Canceled) Code() StatusCode       { return StatusCanceled }

func (Active) entitlementStatus()         {}
func (Trial) entitlementStatus()          {}
func (PendingPayment) entitlementStatus() {}
func (Canceled) entitlementStatus()       {}

func ParseStatus(code StatusCode, trialEnd *time.Time) (EntitlementStatus, error) {
	switch code {
	case StatusActive:
		return Active{}, nil
	case StatusTrial:
		if trialEnd == nil {
			return nil, fmt.Errorf("%w: trial without end date", ErrInvalidStatus)
		}
		return Trial{EndsAt: *trialEnd}, nil
	case StatusPendingPayment:
		return PendingPayment{}, nil
	case StatusCanceled:
		return Canceled{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, code)
}

// StatusColumns returns the status and trial_end_date column values.
func StatusColumns(status EntitlementStatus) (StatusCode, *time.Time) {
	if trial, ok := status.(Trial); ok {
		endsAt := trial.EndsAt
		return StatusTrial, &endsAt
	}
	if status == nil {
		return StatusCanceled, nil
	}
	return status.Code(), nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/schoolbilling/internal/billingcycle/domain"
	"github.com/smallbiznis/schoolbilling/internal/clock"
	"github.com/smallbiznis/schoolbilling/internal/config"
	"github.com/smallbiznis/schoolbilling/internal/lock"
	notificationdomain "github.com/smallbiznis/schoolbilling/internal/notification/domain"
	"github.com/smallbiznis/schoolbilling/internal/observability/metrics"
	schooldomain "github.com/smallbiznis/schoolbilling/internal/school/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const sweepLockName = "billing-sweep"

// errAlreadyNotified marks a tenant whose owner was signaled earlier today.
var errAlreadyNotified = errors.New("already_notified")

type Params struct {
	fx.In

	Log          *zap.Logger
	Clock        clock.Clock
	BillingCfg   *config.BillingConfigHolder
	Schools      schooldomain.Service
	Notifier     notificationdomain.Dispatcher
	Guard        *lock.SweepGuard      `optional:"true"`
	SweepMetrics *metrics.SweepMetrics `optional:"true"`
}

type Service struct {
	log          *zap.Logger
	clock        clock.Clock
	billingCfg   *config.BillingConfigHolder
	schools      schooldomain.Service
	notifier     notificationdomain.Dispatcher
	guard        *lock.SweepGuard
	sweepMetrics *metrics.SweepMetrics
}

func New(p Params) domain.Service {
	return &Service{
		log:          p.Log.Named("billingcycle.service"),
		clock:        p.Clock,
		billingCfg:   p.BillingCfg,
		schools:      p.Schools,
		notifier:     p.Notifier,
		guard:        p.Guard,
		sweepMetrics: p.SweepMetrics,
	}
}

func (s *Service) Summary(ctx context.Context) (domain.Summary, error) {
	now := s.clock.Now()
	schools, err := s.schools.ListForBillingScan(ctx)
	if err != nil {
		return domain.Summary{}, err
	}

	summary := domain.Summary{
		Date:    notificationdomain.Day(now),
		Tenants: make([]domain.Evaluation, 0, len(schools)),
	}
	dueSoonDays := s.dueSoonDays()
	for _, school := range schools {
		eval := domain.Evaluate(school, now, dueSoonDays)
		summary.Evaluated++
		if eval.IsDueSoon {
			summary.DueSoonCount++
		}
		if eval.IsOverdue {
			summary.OverdueCount++
		}
		summary.Tenants = append(summary.Tenants, eval)
	}
	return summary, nil
}

func (s *Service) Sweep(ctx context.Context) (domain.SweepResult, error) {
	start := time.Now()
	release, acquired := s.guard.Acquire(ctx, sweepLockName)
	if !acquired {
		s.log.Info("billing sweep already running elsewhere, skipping")
		s.sweepMetrics.ObserveRun(metrics.SweepResultLocked, time.Since(start))
		return domain.SweepResult{Locked: true}, nil
	}
	defer release()

	var result domain.SweepResult

	expired, err := s.schools.ExpireTrials(ctx)
	result.ExpiredTrials = len(expired)
	for _, school := range expired {
		s.sweepMetrics.IncSignal(metrics.SignalTrialExpired)
		s.log.Info("school trial expired",
			zap.String("school_id", school.ID.String()),
		)
	}
	if err != nil {
		s.log.Warn("trial expiry incomplete", zap.Error(err))
	}

	schools, err := s.schools.ListForBillingScan(ctx)
	if err != nil {
		s.sweepMetrics.ObserveRun(metrics.SweepResultFailed, time.Since(start))
		return result, fmt.Errorf("list schools for billing scan: %w", err)
	}
	s.sweepMetrics.IncTenants(len(schools))

	now := s.clock.Now()
	dueSoonDays := s.dueSoonDays()
	for _, school := range schools {
		if err := ctx.Err(); err != nil {
			result.SkippedCount++
			s.sweepMetrics.IncSkip(metrics.SkipReasonDeadline)
			continue
		}

		eval := domain.Evaluate(school, now, dueSoonDays)
		if !eval.IsDueSoon && !eval.IsOverdue {
			continue
		}

		sent, err := s.signal(ctx, eval)
		switch {
		case errors.Is(err, errAlreadyNotified):
			result.AlreadyNotified++
			s.sweepMetrics.IncSkip(metrics.SkipReasonAlreadyNotified)
			continue
		case err != nil:
			result.SkippedCount++
			s.sweepMetrics.IncSkip(metrics.ClassifySkipReason(err, schooldomain.ErrNoOwnerContact))
			s.log.Warn("skipping tenant in billing sweep",
				zap.String("school_id", school.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if sent == 0 {
			result.AlreadyNotified++
			continue
		}

		result.Notifications += sent
		if eval.IsOverdue {
			result.OverdueCount++
			s.sweepMetrics.IncSignal(metrics.SignalOverdue)
		} else {
			result.DueSoonCount++
			s.sweepMetrics.IncSignal(metrics.SignalDueSoon)
		}
	}

	outcome := metrics.SweepResultCompleted
	if result.SkippedCount > 0 {
		outcome = metrics.SweepResultPartial
	}
	s.sweepMetrics.ObserveRun(outcome, time.Since(start))
	s.log.Info("billing sweep finished",
		zap.Int("tenants", len(schools)),
		zap.Int("due_soon", result.DueSoonCount),
		zap.Int("overdue", result.OverdueCount),
		zap.Int("already_notified", result.AlreadyNotified),
		zap.Int("skipped", result.SkippedCount),
		zap.Int("expired_trials", result.ExpiredTrials),
	)
	return result, nil
}

// signal notifies every owner of the school and returns how many new
// notifications were stored.
func (s *Service) signal(ctx context.Context, eval domain.Evaluation) (int, error) {
	owners, err := s.schools.Owners(ctx, eval.SchoolID)
	if err != nil {
		return 0, err
	}

	primary := owners[0]
	already, err := s.notifier.SentToday(ctx, primary.UserID, notificationdomain.BillingSignalTypes)
	if err != nil {
		return 0, err
	}
	if already {
		return 0, errAlreadyNotified
	}

	msg := billingMessage(eval)
	sent := 0
	var errs []error
	for _, owner := range owners {
		msg.Recipient = notificationdomain.Recipient{
			ContactID: owner.UserID,
			Email:     owner.Email,
			Name:      owner.Name,
		}
		res, err := s.notifier.Dispatch(ctx, msg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !res.Duplicate {
			sent++
		}
	}
	if sent == 0 {
		return 0, errors.Join(errs...)
	}
	for _, err := range errs {
		s.log.Warn("owner notification failed",
			zap.String("school_id", eval.SchoolID.String()),
			zap.Error(err),
		)
	}
	return sent, nil
}

func billingMessage(eval domain.Evaluation) notificationdomain.Message {
	data := map[string]any{
		"schoolName":          eval.SchoolName,
		"billingDay":          eval.BillingDay,
		"effectiveBillingDay": eval.EffectiveBillingDay,
	}
	msg := notificationdomain.Message{SchoolID: eval.SchoolID, Data: data}

	if eval.IsOverdue {
		data["daysOverdue"] = eval.DaysOverdue
		msg.Type = notificationdomain.TypeBillingOverdue
		msg.Title = fmt.Sprintf("%s: platform payment overdue", eval.SchoolName)
		msg.Body = fmt.Sprintf(
			"The platform subscription payment for %s was due on day %d and is %d %s overdue. Please update your payment to keep the school active.",
			eval.SchoolName, eval.EffectiveBillingDay, eval.DaysOverdue, plural(eval.DaysOverdue, "day", "days"),
		)
		return msg
	}

	msg.Type = notificationdomain.TypeBillingDue
	msg.Title = fmt.Sprintf("%s: platform payment due soon", eval.SchoolName)
	msg.Body = fmt.Sprintf(
		"The platform subscription payment for %s is due on day %d of this month.",
		eval.SchoolName, eval.EffectiveBillingDay,
	)
	return msg
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func (s *Service) dueSoonDays() int {
	days := s.billingCfg.Get().DueSoonDays
	if days <= 0 {
		return domain.DefaultDueSoonDays
	}
	return days
}

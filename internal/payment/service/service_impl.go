package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolbilling/internal/clock"
	"github.com/smallbiznis/schoolbilling/internal/config"
	customchargedomain "github.com/smallbiznis/schoolbilling/internal/customcharge/domain"
	entitlementdomain "github.com/smallbiznis/schoolbilling/internal/entitlement/domain"
	notificationdomain "github.com/smallbiznis/schoolbilling/internal/notification/domain"
	"github.com/smallbiznis/schoolbilling/internal/observability/metrics"
	"github.com/smallbiznis/schoolbilling/internal/payment/domain"
	schooldomain "github.com/smallbiznis/schoolbilling/internal/school/domain"
	"github.com/smallbiznis/schoolbilling/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	BillingCfg      *config.BillingConfigHolder
	Metrics         *metrics.Metrics `optional:"true"`
	Repo            domain.Repository
	SchoolRepo      schooldomain.Repository
	Schools         schooldomain.Service
	EntitlementRepo entitlementdomain.Repository
	Entitlements    entitlementdomain.Service
	ChargeRepo      customchargedomain.Repository
	Notifier        notificationdomain.Dispatcher
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	billingCfg      *config.BillingConfigHolder
	metrics         *metrics.Metrics
	repo            domain.Repository
	schoolRepo      schooldomain.Repository
	schools         schooldomain.Service
	entitlementRepo entitlementdomain.Repository
	entitlements    entitlementdomain.Service
	chargeRepo      customchargedomain.Repository
	notifier        notificationdomain.Dispatcher
}

func New(p Params) domain.Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("payment.service"),
		genID:           p.GenID,
		clock:           p.Clock,
		billingCfg:      p.BillingCfg,
		metrics:         p.Metrics,
		repo:            p.Repo,
		schoolRepo:      p.SchoolRepo,
		schools:         p.Schools,
		entitlementRepo: p.EntitlementRepo,
		entitlements:    p.Entitlements,
		chargeRepo:      p.ChargeRepo,
		notifier:        p.Notifier,
	}
}

// recordOutcome describes what a RecordPayment call changed.
type recordOutcome struct {
	payment  *domain.PlatformPayment
	inserted bool
	// settled is set when this call wrote the terminal status.
	settled  bool
	applied  bool
	applyErr error
}

// RecordPayment inserts the payment and, on success, advances its target in
// the same transaction. A repeated provider payment id never advances twice.
//
// When the target cannot be advanced, a payment without a provider id rolls
// back entirely. A processor payment is kept unapplied and ErrNotApplied is
// returned, so the next delivery of the same id retries the apply step.
func (s *Service) RecordPayment(ctx context.Context, req domain.RecordPaymentRequest) (*domain.PlatformPayment, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	school, err := s.schoolRepo.FindByID(ctx, s.db, req.Target.School())
	if err != nil {
		return nil, err
	}
	if school == nil {
		return nil, schooldomain.ErrNotFound
	}

	var outcome recordOutcome
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		outcome, txErr = s.record(ctx, tx, req)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	payment := outcome.payment
	if outcome.settled {
		s.metrics.RecordPayment(ctx, string(payment.PaymentType), string(payment.Status))
	}
	s.log.Info("payment recorded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("school_id", payment.SchoolID.String()),
		zap.String("target_type", string(payment.TargetType)),
		zap.String("status", string(payment.Status)),
		zap.Bool("settled", outcome.settled),
		zap.Bool("applied", outcome.applied),
	)

	if outcome.applyErr != nil {
		s.log.Error("payment not applied",
			zap.String("payment_id", payment.ID.String()),
			zap.String("school_id", payment.SchoolID.String()),
			zap.Error(outcome.applyErr),
		)
		return nil, fmt.Errorf("%w: %w", domain.ErrNotApplied, outcome.applyErr)
	}

	switch {
	case outcome.applied:
		s.notifyOwners(ctx, school, payment, notificationdomain.TypePaymentSucceeded)
	case outcome.settled && payment.Status == domain.StatusFailed:
		s.notifyOwners(ctx, school, payment, notificationdomain.TypePaymentFailed)
	case outcome.inserted && payment.Status == domain.StatusPending:
		s.notifyOwners(ctx, school, payment, notificationdomain.TypePaymentFailed)
	}
	return payment, nil
}

func (s *Service) validate(req *domain.RecordPaymentRequest) error {
	if req.Target == nil || req.Target.School() == 0 {
		return domain.ErrInvalidTarget
	}
	switch t := req.Target.(type) {
	case domain.FeatureTarget:
		if strings.TrimSpace(t.FeatureCode) == "" {
			return domain.ErrInvalidTarget
		}
		req.Target = domain.FeatureTarget{SchoolID: t.SchoolID, FeatureCode: strings.ToLower(strings.TrimSpace(t.FeatureCode))}
	case domain.SubscriptionTarget:
		plan := strings.ToLower(strings.TrimSpace(t.Plan))
		if plan == "" {
			plan = s.billingCfg.Get().StandardPlanCode
		}
		req.Target = domain.SubscriptionTarget{SchoolID: t.SchoolID, Plan: plan}
	case domain.CustomChargeTarget:
		if t.ChargeID == 0 {
			return domain.ErrInvalidTarget
		}
	}
	if req.Amount < 0 {
		return domain.ErrInvalidAmount
	}
	if !req.Status.Valid() {
		return domain.ErrInvalidStatus
	}
	if !req.PaymentType.Valid() {
		return domain.ErrInvalidPaymentType
	}
	if req.ProviderPaymentID != nil {
		ref := strings.TrimSpace(*req.ProviderPaymentID)
		if ref == "" {
			req.ProviderPaymentID = nil
		} else {
			req.ProviderPaymentID = &ref
		}
	}
	req.Currency = strings.ToLower(strings.TrimSpace(req.Currency))
	if req.Currency == "" {
		req.Currency = s.billingCfg.Get().Currency
	}
	return nil
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, req domain.RecordPaymentRequest) (recordOutcome, error) {
	now := s.clock.Now()
	payment := s.newPayment(req, now)

	inserted, err := s.repo.Insert(ctx, tx, payment)
	if err != nil {
		return recordOutcome{}, err
	}

	outcome := recordOutcome{payment: payment, inserted: inserted, settled: inserted && payment.Status.Terminal()}
	if !inserted {
		if req.ProviderPaymentID == nil {
			return recordOutcome{}, fmt.Errorf("insert payment %s: no row written", payment.ID)
		}
		existing, err := s.repo.FindByProviderPaymentID(ctx, tx, *req.ProviderPaymentID)
		if err != nil {
			return recordOutcome{}, err
		}
		if existing == nil {
			return recordOutcome{}, domain.ErrNotFound
		}
		if existing.AppliedAt != nil {
			return recordOutcome{payment: existing}, nil
		}
		if existing.Status == domain.StatusPending && req.Status.Terminal() {
			moved, err := s.repo.Transition(ctx, tx, existing.ID, req.Status, payment.PaidAt, now)
			if err != nil {
				return recordOutcome{}, err
			}
			if moved {
				existing.Status = req.Status
				if payment.PaidAt != nil {
					existing.PaidAt = payment.PaidAt
				}
				existing.UpdatedAt = now
			}
			outcome.settled = moved
		}
		outcome.payment = existing
	}

	if outcome.payment.Status != domain.StatusSucceeded || outcome.payment.AppliedAt != nil {
		return outcome, nil
	}
	if req.ProviderPaymentID == nil {
		applied, err := s.applyAndMark(ctx, tx, outcome.payment, now)
		if err != nil {
			return recordOutcome{}, err
		}
		outcome.applied = applied
		return outcome, nil
	}

	// Savepoint: a failed apply keeps the payment row.
	err = tx.Transaction(func(sp *gorm.DB) error {
		applied, err := s.applyAndMark(ctx, sp, outcome.payment, now)
		outcome.applied = applied
		return err
	})
	if err != nil {
		outcome.payment.AppliedAt = nil
		outcome.applied = false
		outcome.applyErr = err
	}
	return outcome, nil
}

func (s *Service) applyAndMark(ctx context.Context, tx *gorm.DB, payment *domain.PlatformPayment, now time.Time) (bool, error) {
	if err := s.apply(ctx, tx, payment, now); err != nil {
		return false, err
	}
	applied, err := s.repo.MarkApplied(ctx, tx, payment.ID, now)
	if err != nil {
		return false, err
	}
	if applied {
		payment.AppliedAt = &now
	}
	return applied, nil
}

func (s *Service) newPayment(req domain.RecordPaymentRequest, now time.Time) *domain.PlatformPayment {
	payment := &domain.PlatformPayment{
		ID:                s.genID.Generate(),
		SchoolID:          req.Target.School(),
		TargetType:        req.Target.Type(),
		Amount:            req.Amount,
		Currency:          req.Currency,
		Status:            req.Status,
		PaymentType:       req.PaymentType,
		PeriodStart:       req.PeriodStart,
		PeriodEnd:         req.PeriodEnd,
		ProviderPaymentID: req.ProviderPaymentID,
		RecordedBy:        req.RecordedBy,
		Note:              req.Note,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if req.Status == domain.StatusSucceeded {
		payment.PaidAt = &now
	}

	switch t := req.Target.(type) {
	case domain.FeatureTarget:
		code := t.FeatureCode
		payment.FeatureCode = &code
	case domain.SubscriptionTarget:
		plan := t.Plan
		payment.PlanCode = &plan
	case domain.CustomChargeTarget:
		chargeID := t.ChargeID
		payment.CustomChargeID = &chargeID
	}
	return payment
}

// apply advances the paid target. It runs inside the recording transaction.
func (s *Service) apply(ctx context.Context, tx *gorm.DB, payment *domain.PlatformPayment, now time.Time) error {
	target, err := payment.Target()
	if err != nil {
		return err
	}

	switch t := target.(type) {
	case domain.FeatureTarget:
		row, err := s.entitlementRepo.Find(ctx, tx, t.SchoolID, t.FeatureCode)
		if err != nil {
			return err
		}
		if row == nil {
			return entitlementdomain.ErrNotFound
		}
		var next *time.Time
		if row.PricingModel == entitlementdomain.PricingModelStandard &&
			row.MonthlyFee != nil && *row.MonthlyFee > 0 {
			due := now.AddDate(0, 1, 0)
			next = &due
		}
		_, err = s.entitlementRepo.Activate(ctx, tx, t.SchoolID, t.FeatureCode, next, now)
		return err

	case domain.SubscriptionTarget:
		status := schooldomain.SubscriptionStatusActive
		plan := t.Plan
		rows, err := s.schoolRepo.UpdateSubscription(ctx, tx, t.SchoolID, schooldomain.SubscriptionUpdate{
			Status:           &status,
			Plan:             &plan,
			CurrentPeriodEnd: payment.PeriodEnd,
		}, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return schooldomain.ErrNotFound
		}
		return nil

	case domain.CustomChargeTarget:
		paid, err := s.chargeRepo.MarkPaid(ctx, tx, t.SchoolID, t.ChargeID, now)
		if err != nil || paid {
			return err
		}
		charge, err := s.chargeRepo.FindByID(ctx, tx, t.SchoolID, t.ChargeID)
		if err != nil {
			return err
		}
		if charge == nil {
			return customchargedomain.ErrNotFound
		}
		return nil
	}
	return domain.ErrInvalidTarget
}

func (s *Service) notifyOwners(ctx context.Context, school *schooldomain.School, payment *domain.PlatformPayment, kind notificationdomain.Type) {
	owners, err := s.schools.Owners(ctx, school.ID)
	if err != nil {
		s.log.Warn("payment notification skipped",
			zap.String("school_id", school.ID.String()),
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err),
		)
		return
	}

	title, body := paymentMessage(school, payment, kind)
	data := map[string]any{
		"paymentId":  payment.ID.String(),
		"targetType": string(payment.TargetType),
		"amount":     payment.Amount,
		"currency":   payment.Currency,
		"status":     string(payment.Status),
	}
	if payment.FeatureCode != nil {
		data["featureCode"] = *payment.FeatureCode
	}
	if payment.PlanCode != nil {
		data["plan"] = *payment.PlanCode
	}

	for _, owner := range owners {
		_, err := s.notifier.Dispatch(ctx, notificationdomain.Message{
			SchoolID: school.ID,
			Recipient: notificationdomain.Recipient{
				ContactID: owner.UserID,
				Email:     owner.Email,
				Name:      owner.Name,
			},
			Type:  kind,
			Title: title,
			Body:  body,
			Data:  data,
		})
		if err != nil {
			s.log.Warn("payment notification failed",
				zap.String("school_id", school.ID.String()),
				zap.String("contact_id", owner.UserID.String()),
				zap.Error(err),
			)
		}
	}
}

func paymentMessage(school *schooldomain.School, payment *domain.PlatformPayment, kind notificationdomain.Type) (string, string) {
	what := "your platform subscription"
	switch {
	case payment.FeatureCode != nil:
		what = "the " + *payment.FeatureCode + " feature"
	case payment.CustomChargeID != nil:
		what = "a family charge"
	}
	amount := formatAmount(payment.Amount, payment.Currency)
	if kind == notificationdomain.TypePaymentFailed && payment.Status == domain.StatusPending {
		return "Payment needs attention",
			fmt.Sprintf("A payment of %s for %s at %s has not completed yet. Please finish checkout or confirm the payment.", amount, what, school.Name)
	}
	if kind == notificationdomain.TypePaymentFailed {
		return "Payment failed",
			fmt.Sprintf("A payment of %s for %s at %s could not be completed. Please update your payment method.", amount, what, school.Name)
	}
	return "Payment received",
		fmt.Sprintf("We received a payment of %s for %s at %s.", amount, what, school.Name)
}

func formatAmount(minor int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", minor/100, minor%100, strings.ToUpper(currency))
}

// MarkFeaturePaid records an out-of-band payment taken by a platform admin.
// Without a feature code it pays for the school's platform subscription.
func (s *Service) MarkFeaturePaid(ctx context.Context, req domain.MarkPaidRequest) (*domain.PlatformPayment, error) {
	if req.SchoolID == 0 {
		return nil, domain.ErrInvalidTarget
	}

	var (
		target domain.Target
		amount int64
	)
	if req.Amount != nil {
		amount = *req.Amount
	}

	now := s.clock.Now()
	var periodStart, periodEnd *time.Time
	if req.FeatureCode != nil && strings.TrimSpace(*req.FeatureCode) != "" {
		ent, err := s.entitlements.Get(ctx, req.SchoolID, *req.FeatureCode)
		if err != nil {
			return nil, err
		}
		if req.Amount == nil {
			amount = ent.AmountDue()
		}
		target = domain.FeatureTarget{SchoolID: req.SchoolID, FeatureCode: ent.FeatureCode}
	} else {
		target = domain.SubscriptionTarget{SchoolID: req.SchoolID}
		end := now.AddDate(0, 1, 0)
		periodStart, periodEnd = &now, &end
	}
	if amount <= 0 {
		return nil, domain.ErrAmountRequired
	}

	return s.RecordPayment(ctx, domain.RecordPaymentRequest{
		Target:      target,
		Amount:      amount,
		PaymentType: domain.PaymentTypeManual,
		Status:      domain.StatusSucceeded,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		RecordedBy:  req.RecordedBy,
		Note:        req.Note,
	})
}

func (s *Service) ListPayments(ctx context.Context, schoolID snowflake.ID, page pagination.Pagination) (*domain.ListResult, error) {
	if _, err := s.schools.Get(ctx, schoolID); err != nil {
		return nil, err
	}
	cursor, err := pagination.DecodeCursor(page.PageToken)
	if err != nil {
		return nil, err
	}
	var beforeID *snowflake.ID
	if cursor != nil {
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		beforeID = &id
	}

	limit := page.Limit()
	items, err := s.repo.ListBySchool(ctx, s.db, schoolID, beforeID, limit+1)
	if err != nil {
		return nil, err
	}
	items, info := pagination.BuildCursorPageInfo(items, limit, func(p domain.PlatformPayment) string {
		return strconv.FormatInt(p.ID.Int64(), 10)
	})
	if items == nil {
		items = []domain.PlatformPayment{}
	}
	return &domain.ListResult{Payments: items, PageInfo: info}, nil
}

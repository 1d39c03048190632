package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolbilling/internal/payment/domain"
	"gorm.io/gorm"
)

const paymentColumns = `id, school_id, target_type, feature_code, custom_charge_id, plan_code, amount, currency,
	status, payment_type, paid_at, period_start, period_end, provider_payment_id, recorded_by, note,
	applied_at, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *domain.PlatformPayment) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO platform_payments (`+paymentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		p.ID,
		p.SchoolID,
		p.TargetType,
		p.FeatureCode,
		p.CustomChargeID,
		p.PlanCode,
		p.Amount,
		p.Currency,
		p.Status,
		p.PaymentType,
		p.PaidAt,
		p.PeriodStart,
		p.PeriodEnd,
		p.ProviderPaymentID,
		p.RecordedBy,
		p.Note,
		p.AppliedAt,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PlatformPayment, error) {
	return r.findOne(ctx, db, `SELECT `+paymentColumns+` FROM platform_payments WHERE id = ?`, id)
}

func (r *repo) FindByProviderPaymentID(ctx context.Context, db *gorm.DB, providerPaymentID string) (*domain.PlatformPayment, error) {
	return r.findOne(ctx, db, `SELECT `+paymentColumns+` FROM platform_payments WHERE provider_payment_id = ?`, providerPaymentID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.PlatformPayment, error) {
	var item domain.PlatformPayment
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListBySchool(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, beforeID *snowflake.ID, limit int) ([]domain.PlatformPayment, error) {
	query := `SELECT ` + paymentColumns + ` FROM platform_payments WHERE school_id = ?`
	args := []any{schoolID}
	if beforeID != nil {
		query += ` AND id < ?`
		args = append(args, *beforeID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	var items []domain.PlatformPayment
	err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error
	return items, err
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, paidAt *time.Time, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE platform_payments
		 SET status = ?, paid_at = COALESCE(?, paid_at), updated_at = ?
		 WHERE id = ? AND status = ?`,
		status,
		paidAt,
		now,
		id,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkApplied(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE platform_payments
		 SET applied_at = ?, updated_at = ?
		 WHERE id = ? AND applied_at IS NULL`,
		now,
		now,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.WebhookEvent) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_webhook_events (
			id, provider, provider_event_id, event_type, payload, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.Payload,
		event.ReceivedAt,
		event.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*domain.WebhookEvent, error) {
	var item domain.WebhookEvent
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, payload, received_at, processed_at
		 FROM payment_webhook_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_webhook_events
		 SET processed_at = ?
		 WHERE id = ?`,
		processedAt,
		id,
	).Error
}

package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolbilling/internal/customcharge/domain"
	"gorm.io/gorm"
)

const chargeColumns = `id, school_id, family_id, description, amount, currency, status, paid_at, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, c *domain.CustomCharge) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO custom_charges (`+chargeColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.SchoolID,
		c.FamilyID,
		c.Description,
		c.Amount,
		c.Currency,
		c.Status,
		c.PaidAt,
		c.CreatedAt,
		c.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*domain.CustomCharge, error) {
	var item domain.CustomCharge
	err := db.WithContext(ctx).Raw(
		`SELECT `+chargeColumns+`
		 FROM custom_charges
		 WHERE school_id = ? AND id = ?`,
		schoolID,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListByFamily(ctx context.Context, db *gorm.DB, schoolID, familyID snowflake.ID) ([]domain.CustomCharge, error) {
	var items []domain.CustomCharge
	err := db.WithContext(ctx).Raw(
		`SELECT `+chargeColumns+`
		 FROM custom_charges
		 WHERE school_id = ? AND family_id = ?
		 ORDER BY created_at DESC, id DESC`,
		schoolID,
		familyID,
	).Scan(&items).Error
	return items, err
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID, paidAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE custom_charges
		 SET status = ?, paid_at = ?, updated_at = ?
		 WHERE school_id = ? AND id = ? AND status = ?`,
		domain.StatusPaid,
		paidAt,
		paidAt,
		schoolID,
		id,
		domain.StatusUnpaid,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

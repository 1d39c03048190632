package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolbilling/internal/notification/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Insert relies on the partial unique index over dedup_key.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, n *domain.Notification) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO notifications (id, school_id, contact_id, notification_type, title, body, data, notified_on, dedup_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		n.ID,
		n.SchoolID,
		n.ContactID,
		n.NotificationType,
		n.Title,
		n.Body,
		n.Data,
		n.NotifiedOn,
		n.DedupKey,
		n.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ExistsOn(ctx context.Context, db *gorm.DB, contactID snowflake.ID, types []domain.Type, day string) (bool, error) {
	if len(types) == 0 {
		return false, nil
	}
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM notifications
		 WHERE contact_id = ? AND notification_type IN ? AND notified_on = ?`,
		contactID,
		types,
		day,
	).Scan(&count).Error
	return count > 0, err
}

func (r *repo) ListByContact(ctx context.Context, db *gorm.DB, contactID snowflake.ID, limit int) ([]domain.Notification, error) {
	var items []domain.Notification
	err := db.WithContext(ctx).Raw(
		`SELECT id, school_id, contact_id, notification_type, title, body, data, notified_on, dedup_key, read_at, created_at
		 FROM notifications
		 WHERE contact_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		contactID,
		limit,
	).Scan(&items).Error
	return items, err
}

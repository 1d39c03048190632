// Package seed bootstraps rows the API cannot create for itself.
package seed

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// EnsurePlatformAdmins grants the platform admin role to every id in
// userIDs. Existing grants are left untouched, so it is safe to run on every
// startup.
func EnsurePlatformAdmins(ctx context.Context, db *gorm.DB, userIDs []int64) (int, error) {
	if db == nil {
		return 0, errors.New("seed database handle is required")
	}
	if len(userIDs) == 0 {
		return 0, nil
	}

	created := 0
	now := time.Now().UTC()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, userID := range userIDs {
			if userID <= 0 {
				continue
			}
			result := tx.Exec(
				`INSERT INTO platform_admins (user_id, created_at)
				 VALUES (?, ?)
				 ON CONFLICT (user_id) DO NOTHING`,
				userID, now,
			)
			if result.Error != nil {
				return result.Error
			}
			created += int(result.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

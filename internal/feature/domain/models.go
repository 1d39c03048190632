package domain

import "time"

// Feature is a catalog entry: an optional paid capability a school can enable.
type Feature struct {
	Code                string    `gorm:"primaryKey;type:text"`
	Name                string    `gorm:"type:text;not null"`
	Description         string    `gorm:"type:text;not null;default:''"`
	DefaultMonthlyPrice int64     `gorm:"not null;default:0"`
	DefaultOneTimePrice int64     `gorm:"not null;default:0"`
	IsActive            bool      `gorm:"not null;default:true"`
	CreatedAt           time.Time `gorm:"not null"`
	UpdatedAt           time.Time `gorm:"not null"`
}

func (Feature) TableName() string { return "features" }

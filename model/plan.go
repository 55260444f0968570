package model

import "time"

// StudyPlan is a user-authored study plan that can be shared publicly.
type StudyPlan struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID     int64     `gorm:"index:idx_plan_owner;not null" json:"owner_id"`
	Title       string    `gorm:"size:128;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Public      bool      `gorm:"default:false" json:"public"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

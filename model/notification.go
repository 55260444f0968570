package model

import (
	"time"

	"gorm.io/datatypes"
)

// Notification type tags.
const (
	NotifyChallengeCompleted = "challenge_completed"
	NotifyRewardObtained     = "reward_obtained"
	NotifyTaskAssigned       = "task_assigned"
)

// Notification is a user-facing message. The dispatcher's responsibility
// ends at durably writing the row; delivery is a downstream concern.
type Notification struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64          `gorm:"index:idx_notification_user;not null" json:"user_id"`
	Title     string         `gorm:"size:128" json:"title"`
	Message   string         `gorm:"type:text" json:"message"`
	Type      string         `gorm:"size:32" json:"type"`
	Entity    datatypes.JSON `json:"entity"` // {"kind":"challenge","id":7}
	Read      bool           `gorm:"default:false" json:"read"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	ReadAt    *time.Time     `json:"read_at"`
}

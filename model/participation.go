package model

import "time"

// Participation states.
const (
	ParticipationActive    = "active"
	ParticipationCompleted = "completed"
	ParticipationCancelled = "cancelled"
)

// Participation is a user's enrollment and progress record in a challenge.
// Invariant: State == completed ⟺ Progress == 100 ⟺ CompletedAt is set.
type Participation struct {
	UserID      int64      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	ChallengeID int64      `gorm:"primaryKey;autoIncrement:false" json:"challenge_id"`
	Progress    int        `gorm:"default:0" json:"progress"`
	State       string     `gorm:"size:16;default:'active'" json:"state"`
	JoinedAt    time.Time  `gorm:"autoCreateTime" json:"joined_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

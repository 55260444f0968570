package model

import "time"

// Challenge lifecycle states.
const (
	ChallengeStateDraft    = "draft"
	ChallengeStateActive   = "active"
	ChallengeStateFinished = "finished"
)

// Challenge difficulty levels.
const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

// Challenge is a time-boxed goal composed of tasks that users can join.
// TotalPoints and ParticipantCount are denormalized; they are recomputed
// from source rows by the aggregate package, never adjusted by deltas.
type Challenge struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatorID        int64     `gorm:"index:idx_challenge_creator;not null" json:"creator_id"`
	Title            string    `gorm:"size:128;not null" json:"title"`
	Description      string    `gorm:"type:text" json:"description"`
	Public           bool      `gorm:"default:true" json:"public"`
	State            string    `gorm:"size:16;default:'draft'" json:"state"`
	StartDate        time.Time `gorm:"not null" json:"start_date"`
	EndDate          time.Time `gorm:"not null" json:"end_date"`
	Difficulty       string    `gorm:"size:16;default:'beginner'" json:"difficulty"`
	TotalPoints      int       `gorm:"default:0" json:"total_points"`
	ParticipantCount int       `gorm:"default:0" json:"participant_count"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

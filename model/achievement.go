package model

import "time"

// Achievement type tags.
const (
	AchievementCompletarReto = "completar_reto"
	AchievementUnirseReto    = "unirse_reto"
	AchievementSubirApunte   = "subir_apunte"
	AchievementCrearPlan     = "crear_plan"
)

// Achievement is an audit-log entry describing a notable user action.
// ChallengeID links completion achievements to the challenge that produced
// them; reverting that completion deletes exactly the linked rows.
type Achievement struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64     `gorm:"index:idx_achievement_user;not null" json:"user_id"`
	Type        string    `gorm:"size:32;not null" json:"type"`
	ChallengeID *int64    `gorm:"index:idx_achievement_challenge" json:"challenge_id"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// ProgressHistory event tags.
const (
	ProgressEventCompleted = "challenge_completed"
	ProgressEventReverted  = "progress_reverted"
	ProgressEventUpdate    = "progress_update"
)

// ProgressHistory records one progress value change. It is append-only:
// a revert appends a new row rather than deleting the forward one.
type ProgressHistory struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID           int64     `gorm:"index:idx_history_user_challenge;not null" json:"user_id"`
	ChallengeID      int64     `gorm:"index:idx_history_user_challenge;not null" json:"challenge_id"`
	PreviousProgress int       `json:"previous_progress"`
	NewProgress      int       `json:"new_progress"`
	Event            string    `gorm:"size:32;not null" json:"event"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

package model

import "time"

// Task is a unit of work within a challenge, worth points.
// Completed is the template-level flag; per-user completion lives in
// TaskCompletion rows.
type Task struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ChallengeID int64      `gorm:"index:idx_task_challenge;not null" json:"challenge_id"`
	AssigneeID  *int64     `gorm:"index:idx_task_assignee" json:"assignee_id"`
	Title       string     `gorm:"size:128;not null" json:"title"`
	Points      int        `gorm:"not null" json:"points"`
	DueDate     *time.Time `json:"due_date"`
	Type        string     `gorm:"size:32;default:'study'" json:"type"`
	Completed   bool       `gorm:"default:false" json:"completed"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TaskCompletion marks a task as done by one user.
// Row existence is the single source of truth for per-user completion.
type TaskCompletion struct {
	UserID      int64     `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	TaskID      int64     `gorm:"primaryKey;autoIncrement:false" json:"task_id"`
	CompletedAt time.Time `gorm:"autoCreateTime" json:"completed_at"`
}

package model

import "time"

// User roles.
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// User is a registered account.
// Score is denormalized and mutated only by the reward and progress engines.
type User struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string    `gorm:"uniqueIndex;size:128;not null" json:"email"`
	DisplayName  string    `gorm:"size:64;not null" json:"display_name"`
	PasswordHash string    `gorm:"size:128;not null" json:"-"`
	Role         string    `gorm:"size:16;default:'student'" json:"role"`
	Score        int       `gorm:"default:0" json:"score"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

package model

import (
	"time"

	"gorm.io/datatypes"
)

// Reward kinds.
const (
	RewardKindBadge  = "badge"
	RewardKindPoints = "points"
	RewardKindLevel  = "level"
)

// Reward rule trigger events.
const (
	EventCompleteReto = "complete_reto"
	EventSubirApunte  = "subir_apunte"
	EventCrearPlan    = "crear_plan"
)

// Reward is a grantable badge, point bundle, or level definition.
type Reward struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:64;not null" json:"name"`
	Kind      string    `gorm:"size:16;not null" json:"kind"`
	Value     int       `gorm:"not null" json:"value"`
	Criterion string    `gorm:"type:text" json:"criterion"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// RewardRule maps a triggering event to a Reward grant.
// One rule per (event, reward) pair.
type RewardRule struct {
	ID            int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Name          string         `gorm:"size:64" json:"name"`
	Event         string         `gorm:"size:32;not null;uniqueIndex:idx_rule_event_reward;index:idx_rule_event" json:"event"`
	RewardID      int64          `gorm:"not null;uniqueIndex:idx_rule_event_reward" json:"reward_id"`
	Condition     datatypes.JSON `json:"condition"`
	PointOverride *int           `json:"point_override"`
	Active        bool           `gorm:"default:true" json:"active"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// UserReward is a grant record; its presence is the source of truth for
// "this user holds this reward". SourceEvent and ChallengeID identify the
// forward transition that granted it, and Points records what was added to
// the user's score, so a revert can undo the grant exactly.
type UserReward struct {
	UserID      int64     `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	RewardID    int64     `gorm:"primaryKey;autoIncrement:false" json:"reward_id"`
	SourceEvent string    `gorm:"size:32" json:"source_event"`
	ChallengeID *int64    `gorm:"index:idx_user_reward_challenge" json:"challenge_id"`
	Points      int       `gorm:"default:0" json:"points"`
	GrantedAt   time.Time `gorm:"autoCreateTime" json:"granted_at"`
}

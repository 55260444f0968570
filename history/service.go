package history

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/challengeplans/server/model"
)

// Service appends achievement and progress-history audit records.
// Every method takes the caller's transaction handle so the records commit
// or roll back together with the state change that produced them.
type Service struct {
	logger *zap.Logger
}

// NewService creates a history Service.
func NewService(logger *zap.Logger) *Service {
	return &Service{logger: logger}
}

// RecordProgress appends one ProgressHistory row.
func (svc *Service) RecordProgress(tx *gorm.DB, userID, challengeID int64, previous, next int, event string) error {
	return tx.Create(&model.ProgressHistory{
		UserID:           userID,
		ChallengeID:      challengeID,
		PreviousProgress: previous,
		NewProgress:      next,
		Event:            event,
	}).Error
}

// RecordAchievement appends one Achievement row. challengeID may be nil for
// achievements not tied to a challenge.
func (svc *Service) RecordAchievement(tx *gorm.DB, userID int64, typ string, challengeID *int64, description string) error {
	return tx.Create(&model.Achievement{
		UserID:      userID,
		Type:        typ,
		ChallengeID: challengeID,
		Description: description,
	}).Error
}

// RemoveAchievements deletes the achievement rows of the given type that
// the given challenge produced for the user. The structured challenge link
// makes the reversal exact; no description matching is involved.
func (svc *Service) RemoveAchievements(tx *gorm.DB, userID, challengeID int64, typ string) error {
	res := tx.Where("user_id = ? AND challenge_id = ? AND type = ?", userID, challengeID, typ).
		Delete(&model.Achievement{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		svc.logger.Debug("achievements removed",
			zap.Int64("user_id", userID),
			zap.Int64("challenge_id", challengeID),
			zap.String("type", typ),
			zap.Int64("rows", res.RowsAffected))
	}
	return nil
}

package reward

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/challengeplans/server/model"
)

// Grant describes the outcome of a grant attempt.
// Granted is false when the user already held the reward; the grant is
// idempotent and callers must not apply side effects twice.
type Grant struct {
	Reward  model.Reward
	Points  int
	Granted bool
}

// Engine looks up reward rules by triggering event and applies their
// rewards. Granting and revoking are symmetric and idempotent per
// (user, reward) pair.
type Engine struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewEngine creates a reward Engine.
func NewEngine(db *gorm.DB, logger *zap.Logger) *Engine {
	return &Engine{db: db, logger: logger}
}

// GrantForEvent runs Grant in its own transaction.
func (e *Engine) GrantForEvent(ctx context.Context, event string, userID int64, challengeID *int64) (*Grant, error) {
	var g *Grant
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		g, err = e.Grant(ctx, tx, event, userID, challengeID)
		return err
	})
	return g, err
}

// Grant looks up the single active rule for event (first by insertion
// order) and grants its reward to the user within the caller's
// transaction. A nil result means no rule is configured for the event.
//
// The UserReward primary key is the concurrency safety net: a conflicting
// concurrent grant inserts nothing, and the score is only touched when the
// insert actually happened.
func (e *Engine) Grant(ctx context.Context, tx *gorm.DB, event string, userID int64, challengeID *int64) (*Grant, error) {
	var rule model.RewardRule
	err := tx.WithContext(ctx).
		Where("event = ? AND active = ?", event, true).
		Order("id ASC").
		First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rw model.Reward
	if err := tx.WithContext(ctx).First(&rw, rule.RewardID).Error; err != nil {
		return nil, err
	}

	points := 0
	if rw.Kind == model.RewardKindPoints {
		points = rw.Value
		if rule.PointOverride != nil {
			points = *rule.PointOverride
		}
	}

	ur := model.UserReward{
		UserID:      userID,
		RewardID:    rw.ID,
		SourceEvent: event,
		ChallengeID: challengeID,
		Points:      points,
	}
	res := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&ur)
	if res.Error != nil {
		return nil, res.Error
	}

	g := &Grant{Reward: rw, Points: points, Granted: res.RowsAffected > 0}
	if !g.Granted {
		return g, nil
	}

	if points > 0 {
		if err := AddScore(tx, userID, points); err != nil {
			return nil, err
		}
	}

	e.logger.Info("reward granted",
		zap.String("event", event),
		zap.Int64("user_id", userID),
		zap.String("reward", rw.Name),
		zap.String("kind", rw.Kind))
	return g, nil
}

// Revoke deletes the grants the given event produced for the user,
// scoped to a challenge when one is given, and subtracts their point
// value (floored at zero). Revoking an absent grant is a no-op.
func (e *Engine) Revoke(ctx context.Context, tx *gorm.DB, event string, userID int64, challengeID *int64) error {
	q := tx.WithContext(ctx).Where("user_id = ? AND source_event = ?", userID, event)
	if challengeID != nil {
		q = q.Where("challenge_id = ?", *challengeID)
	}
	var grants []model.UserReward
	if err := q.Find(&grants).Error; err != nil {
		return err
	}

	for _, ur := range grants {
		res := tx.WithContext(ctx).
			Where("user_id = ? AND reward_id = ?", ur.UserID, ur.RewardID).
			Delete(&model.UserReward{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}
		if ur.Points > 0 {
			if err := SubScore(tx, userID, ur.Points); err != nil {
				return err
			}
		}
		e.logger.Info("reward revoked",
			zap.String("event", event),
			zap.Int64("user_id", userID),
			zap.Int64("reward_id", ur.RewardID))
	}
	return nil
}

// AddScore adds delta to the user's score.
func AddScore(tx *gorm.DB, userID int64, delta int) error {
	return tx.Model(&model.User{}).
		Where("id = ?", userID).
		Update("score", gorm.Expr("score + ?", delta)).
		Error
}

// SubScore subtracts delta from the user's score, flooring at zero.
// The floor lives in the UPDATE statement itself so concurrent writers
// cannot drive the score negative.
func SubScore(tx *gorm.DB, userID int64, delta int) error {
	return tx.Model(&model.User{}).
		Where("id = ?", userID).
		Update("score", gorm.Expr("CASE WHEN score < ? THEN 0 ELSE score - ? END", delta, delta)).
		Error
}

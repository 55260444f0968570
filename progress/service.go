package progress

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/challengeplans/server/aggregate"
	"github.com/challengeplans/server/apperr"
	"github.com/challengeplans/server/events"
	"github.com/challengeplans/server/history"
	"github.com/challengeplans/server/model"
	"github.com/challengeplans/server/notify"
	"github.com/challengeplans/server/reward"
)

// Notifier enqueues user-facing notifications. Enqueueing happens after
// the surrounding transaction commits and is best-effort.
type Notifier interface {
	Notify(ev notify.Event)
}

// Service owns the per-user progress state of challenges: task completion
// toggles, progress aggregation, the completion boundary transition with
// its ordered side effects, and the participation lifecycle.
type Service struct {
	db       *gorm.DB
	rewards  *reward.Engine
	history  *history.Service
	notifier Notifier
	bus      *events.Bus
	logger   *zap.Logger
}

// NewService creates a progress Service. notifier and bus may be nil.
func NewService(db *gorm.DB, rewards *reward.Engine, hist *history.Service, notifier Notifier, bus *events.Bus, logger *zap.Logger) *Service {
	return &Service{
		db:       db,
		rewards:  rewards,
		history:  hist,
		notifier: notifier,
		bus:      bus,
		logger:   logger,
	}
}

// effects collects side effects that must only happen after the
// transaction commits.
type effects struct {
	userID        int64
	notifications []notify.Event
	scoreChanged  bool
}

func (fx *effects) add(ev notify.Event) {
	fx.notifications = append(fx.notifications, ev)
}

// SetTaskCompletion records or removes one user's completion of one task
// and recomputes the challenge progress. Repeating the current state is a
// no-op and triggers no downstream effects.
func (svc *Service) SetTaskCompletion(ctx context.Context, userID, taskID int64, completed bool) error {
	var task model.Task
	if err := svc.db.WithContext(ctx).First(&task, taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("task %d not found", taskID)
		}
		return err
	}

	fx := effects{userID: userID}
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := svc.requireParticipation(ctx, tx, userID, task.ChallengeID); err != nil {
			return err
		}
		if completed {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&model.TaskCompletion{UserID: userID, TaskID: taskID})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil // already completed
			}
		} else {
			res := tx.Where("user_id = ? AND task_id = ?", userID, taskID).
				Delete(&model.TaskCompletion{})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil // was not completed
			}
		}
		_, err := svc.recompute(ctx, tx, userID, task.ChallengeID, &fx)
		return err
	})
	if err != nil {
		return err
	}
	svc.finish(ctx, &fx)
	return nil
}

// RecomputeProgress re-derives the user's progress in the challenge from
// completed-task counts and applies any boundary transition. It returns
// the resulting progress value.
func (svc *Service) RecomputeProgress(ctx context.Context, userID, challengeID int64) (int, error) {
	fx := effects{userID: userID}
	var result int
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = svc.recompute(ctx, tx, userID, challengeID, &fx)
		return err
	})
	if err != nil {
		return 0, err
	}
	svc.finish(ctx, &fx)
	return result, nil
}

// OverrideProgress sets the participation progress directly (administrative
// path). It goes through the same boundary-transition evaluation as the
// aggregated path.
func (svc *Service) OverrideProgress(ctx context.Context, userID, challengeID int64, value int) error {
	if value < 0 || value > 100 {
		return apperr.Validation("progress %d out of range [0,100]", value)
	}
	fx := effects{userID: userID}
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := svc.loadParticipation(ctx, tx, userID, challengeID)
		if err != nil {
			return err
		}
		if p.Progress == value {
			return nil
		}
		return svc.applyProgressChange(ctx, tx, p, value, &fx)
	})
	if err != nil {
		return err
	}
	svc.finish(ctx, &fx)
	return nil
}

// Join enrolls the user in a challenge at progress 0.
// Joining twice is a conflict the caller is told about.
func (svc *Service) Join(ctx context.Context, userID, challengeID int64) error {
	var ch model.Challenge
	if err := svc.db.WithContext(ctx).First(&ch, challengeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("challenge %d not found", challengeID)
		}
		return err
	}

	return svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.Participation{UserID: userID, ChallengeID: challengeID, State: model.ParticipationActive})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("user %d already joined challenge %d", userID, challengeID)
		}
		if err := aggregate.RefreshParticipantCount(tx, challengeID); err != nil {
			return err
		}
		return svc.history.RecordAchievement(tx, userID, model.AchievementUnirseReto, &ch.ID,
			fmt.Sprintf("Se unió al reto %q", ch.Title))
	})
}

// Leave removes the user's participation and reverses every side effect it
// granted: a completed challenge is reverted in full, the user's task
// completions for the challenge are dropped, and the join achievement is
// removed.
func (svc *Service) Leave(ctx context.Context, userID, challengeID int64) error {
	fx := effects{userID: userID}
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := svc.loadParticipation(ctx, tx, userID, challengeID)
		if err != nil {
			return err
		}
		if p.State == model.ParticipationCompleted {
			if err := svc.revertCompletion(ctx, tx, p, p.Progress, 0, &fx); err != nil {
				return err
			}
		}
		if err := tx.Where("user_id = ? AND task_id IN (SELECT id FROM tasks WHERE challenge_id = ?)",
			userID, challengeID).Delete(&model.TaskCompletion{}).Error; err != nil {
			return err
		}
		if err := svc.history.RemoveAchievements(tx, userID, challengeID, model.AchievementUnirseReto); err != nil {
			return err
		}
		if err := tx.Where("user_id = ? AND challenge_id = ?", userID, challengeID).
			Delete(&model.Participation{}).Error; err != nil {
			return err
		}
		return aggregate.RefreshParticipantCount(tx, challengeID)
	})
	if err != nil {
		return err
	}
	svc.finish(ctx, &fx)
	return nil
}

// recompute re-derives progress from completion counts inside tx and
// applies the boundary transition when the value changed.
func (svc *Service) recompute(ctx context.Context, tx *gorm.DB, userID, challengeID int64, fx *effects) (int, error) {
	p, err := svc.loadParticipation(ctx, tx, userID, challengeID)
	if err != nil {
		return 0, err
	}

	var total int64
	if err := tx.Model(&model.Task{}).Where("challenge_id = ?", challengeID).Count(&total).Error; err != nil {
		return 0, err
	}
	next := 0
	if total > 0 {
		var done int64
		err := tx.Model(&model.TaskCompletion{}).
			Joins("JOIN tasks ON tasks.id = task_completions.task_id").
			Where("task_completions.user_id = ? AND tasks.challenge_id = ?", userID, challengeID).
			Count(&done).Error
		if err != nil {
			return 0, err
		}
		next = int(math.Round(100 * float64(done) / float64(total)))
	}

	if p.Progress == next {
		return next, nil
	}
	return next, svc.applyProgressChange(ctx, tx, p, next, fx)
}

func (svc *Service) loadParticipation(ctx context.Context, tx *gorm.DB, userID, challengeID int64) (*model.Participation, error) {
	var p model.Participation
	err := tx.WithContext(ctx).
		Where("user_id = ? AND challenge_id = ?", userID, challengeID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user %d is not participating in challenge %d", userID, challengeID)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (svc *Service) requireParticipation(ctx context.Context, tx *gorm.DB, userID, challengeID int64) error {
	_, err := svc.loadParticipation(ctx, tx, userID, challengeID)
	return err
}

// finish delivers the post-commit effects: notifications and bus events.
func (svc *Service) finish(ctx context.Context, fx *effects) {
	if svc.notifier != nil {
		for _, ev := range fx.notifications {
			svc.notifier.Notify(ev)
		}
	}
	if fx.scoreChanged && svc.bus != nil {
		if err := svc.bus.Emit(ctx, events.ScoreChanged, events.ScorePayload{UserID: fx.userID}); err != nil {
			svc.logger.Warn("score change listeners failed", zap.Error(err))
		}
	}
}

package progress

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/challengeplans/server/model"
	"github.com/challengeplans/server/notify"
	"github.com/challengeplans/server/reward"
)

// applyProgressChange writes the new progress value and evaluates the
// 100% completion boundary. Crossing it upward runs the full completion
// chain; crossing it downward reverses that chain; staying on the same
// side only records a history row.
func (svc *Service) applyProgressChange(ctx context.Context, tx *gorm.DB, p *model.Participation, next int, fx *effects) error {
	prev := p.Progress
	crossedUp := prev < 100 && next == 100
	crossedDown := prev == 100 && next < 100

	updates := map[string]interface{}{"progress": next}
	switch {
	case crossedUp:
		updates["state"] = model.ParticipationCompleted
		updates["completed_at"] = time.Now()
	case crossedDown:
		updates["state"] = model.ParticipationActive
		updates["completed_at"] = nil
	}
	if err := tx.Model(&model.Participation{}).
		Where("user_id = ? AND challenge_id = ?", p.UserID, p.ChallengeID).
		Updates(updates).Error; err != nil {
		return err
	}
	p.Progress = next

	switch {
	case crossedUp:
		return svc.completeChallenge(ctx, tx, p, prev, fx)
	case crossedDown:
		return svc.revertCompletion(ctx, tx, p, prev, next, fx)
	default:
		return svc.history.RecordProgress(tx, p.UserID, p.ChallengeID, prev, next, model.ProgressEventUpdate)
	}
}

// completeChallenge runs the ordered side effects of reaching 100%:
// history, achievement, reward rule, challenge points, notification.
func (svc *Service) completeChallenge(ctx context.Context, tx *gorm.DB, p *model.Participation, prev int, fx *effects) error {
	var ch model.Challenge
	if err := tx.WithContext(ctx).First(&ch, p.ChallengeID).Error; err != nil {
		return err
	}

	if err := svc.history.RecordProgress(tx, p.UserID, ch.ID, prev, 100, model.ProgressEventCompleted); err != nil {
		return err
	}
	if err := svc.history.RecordAchievement(tx, p.UserID, model.AchievementCompletarReto, &ch.ID,
		fmt.Sprintf("Completó el reto %q", ch.Title)); err != nil {
		return err
	}

	g, err := svc.rewards.Grant(ctx, tx, model.EventCompleteReto, p.UserID, &ch.ID)
	if err != nil {
		return err
	}

	if ch.TotalPoints > 0 {
		if err := reward.AddScore(tx, p.UserID, ch.TotalPoints); err != nil {
			return err
		}
	}

	fx.add(notify.Event{
		UserID:     p.UserID,
		Title:      "Reto completado",
		Message:    fmt.Sprintf("Has completado el reto %q (+%d puntos)", ch.Title, ch.TotalPoints),
		Type:       model.NotifyChallengeCompleted,
		EntityKind: "challenge",
		EntityID:   ch.ID,
	})
	if g != nil && g.Granted {
		fx.add(notify.Event{
			UserID:     p.UserID,
			Title:      "Recompensa obtenida",
			Message:    fmt.Sprintf("Has obtenido la recompensa %q", g.Reward.Name),
			Type:       model.NotifyRewardObtained,
			EntityKind: "reward",
			EntityID:   g.Reward.ID,
		})
	}
	fx.scoreChanged = true

	svc.logger.Info("challenge completed",
		zap.Int64("user_id", p.UserID),
		zap.Int64("challenge_id", ch.ID),
		zap.Int("points", ch.TotalPoints))
	return nil
}

// revertCompletion undoes the completion chain when progress drops back
// below 100%: history, reward revocation, achievement removal, challenge
// points subtraction. The floor at zero is applied on every subtraction.
func (svc *Service) revertCompletion(ctx context.Context, tx *gorm.DB, p *model.Participation, prev, next int, fx *effects) error {
	var ch model.Challenge
	if err := tx.WithContext(ctx).First(&ch, p.ChallengeID).Error; err != nil {
		return err
	}

	if err := svc.history.RecordProgress(tx, p.UserID, ch.ID, prev, next, model.ProgressEventReverted); err != nil {
		return err
	}
	if err := svc.rewards.Revoke(ctx, tx, model.EventCompleteReto, p.UserID, &ch.ID); err != nil {
		return err
	}
	if err := svc.history.RemoveAchievements(tx, p.UserID, ch.ID, model.AchievementCompletarReto); err != nil {
		return err
	}
	if ch.TotalPoints > 0 {
		if err := reward.SubScore(tx, p.UserID, ch.TotalPoints); err != nil {
			return err
		}
	}
	fx.scoreChanged = true

	svc.logger.Info("challenge completion reverted",
		zap.Int64("user_id", p.UserID),
		zap.Int64("challenge_id", ch.ID),
		zap.Int("progress", next))
	return nil
}

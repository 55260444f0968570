package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/challengeplans/server/aggregate"
	"github.com/challengeplans/server/apperr"
	"github.com/challengeplans/server/events"
	"github.com/challengeplans/server/model"
	"github.com/challengeplans/server/notify"
)

// Notifier enqueues user-facing notifications.
type Notifier interface {
	Notify(ev notify.Event)
}

// Service owns the challenge and task lifecycle: creation, task
// management with point totals, assignment, and end-of-life sweeping.
type Service struct {
	db       *gorm.DB
	notifier Notifier
	bus      *events.Bus
	logger   *zap.Logger
}

// NewService creates a challenge Service. notifier and bus may be nil.
func NewService(db *gorm.DB, notifier Notifier, bus *events.Bus, logger *zap.Logger) *Service {
	return &Service{db: db, notifier: notifier, bus: bus, logger: logger}
}

// CreateInput carries the fields a creator supplies for a new challenge.
type CreateInput struct {
	Title       string
	Description string
	Public      bool
	StartDate   time.Time
	EndDate     time.Time
	Difficulty  string
}

// Create validates dates and stores a new challenge in draft state.
func (svc *Service) Create(ctx context.Context, creatorID int64, in CreateInput) (*model.Challenge, error) {
	if in.Title == "" {
		return nil, apperr.Validation("title is required")
	}
	if !in.EndDate.After(in.StartDate) {
		return nil, apperr.Validation("end date must be after start date")
	}
	difficulty := in.Difficulty
	if difficulty == "" {
		difficulty = model.DifficultyBeginner
	}
	switch difficulty {
	case model.DifficultyBeginner, model.DifficultyIntermediate, model.DifficultyAdvanced:
	default:
		return nil, apperr.Validation("unknown difficulty %q", difficulty)
	}

	ch := &model.Challenge{
		CreatorID:   creatorID,
		Title:       in.Title,
		Description: in.Description,
		Public:      in.Public,
		State:       model.ChallengeStateDraft,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		Difficulty:  difficulty,
	}
	if err := svc.db.WithContext(ctx).Create(ch).Error; err != nil {
		return nil, err
	}
	return ch, nil
}

// Activate moves a draft challenge into the active state.
func (svc *Service) Activate(ctx context.Context, challengeID int64) error {
	ch, err := svc.Get(ctx, challengeID)
	if err != nil {
		return err
	}
	if ch.State != model.ChallengeStateDraft {
		return apperr.Conflict("challenge %d is %s, not draft", challengeID, ch.State)
	}
	return svc.db.WithContext(ctx).Model(&model.Challenge{}).
		Where("id = ?", challengeID).
		Update("state", model.ChallengeStateActive).Error
}

// Get loads one challenge.
func (svc *Service) Get(ctx context.Context, challengeID int64) (*model.Challenge, error) {
	var ch model.Challenge
	err := svc.db.WithContext(ctx).First(&ch, challengeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("challenge %d not found", challengeID)
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// ListPublic returns public challenges, newest first.
func (svc *Service) ListPublic(ctx context.Context, limit, offset int) ([]model.Challenge, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var out []model.Challenge
	err := svc.db.WithContext(ctx).
		Where("public = ?", true).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&out).Error
	return out, err
}

// ListByCreator returns a user's own challenges, public or not.
func (svc *Service) ListByCreator(ctx context.Context, creatorID int64) ([]model.Challenge, error) {
	var out []model.Challenge
	err := svc.db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// TaskInput carries the fields for creating or updating a task.
type TaskInput struct {
	Title   string
	Points  int
	DueDate *time.Time
	Type    string
}

// AddTask appends a task to the challenge and refreshes its point total.
func (svc *Service) AddTask(ctx context.Context, challengeID int64, in TaskInput) (*model.Task, error) {
	if in.Title == "" {
		return nil, apperr.Validation("task title is required")
	}
	if in.Points < 0 {
		return nil, apperr.Validation("task points must not be negative")
	}
	if _, err := svc.Get(ctx, challengeID); err != nil {
		return nil, err
	}

	task := &model.Task{
		ChallengeID: challengeID,
		Title:       in.Title,
		Points:      in.Points,
		DueDate:     in.DueDate,
		Type:        in.Type,
	}
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(task).Error; err != nil {
			return err
		}
		return aggregate.RefreshChallengeTotalPoints(tx, challengeID)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTask rewrites a task's fields and refreshes the point total.
func (svc *Service) UpdateTask(ctx context.Context, taskID int64, in TaskInput) error {
	if in.Points < 0 {
		return apperr.Validation("task points must not be negative")
	}
	task, err := svc.getTask(ctx, taskID)
	if err != nil {
		return err
	}
	return svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"points":   in.Points,
			"due_date": in.DueDate,
			"type":     in.Type,
		}
		if in.Title != "" {
			updates["title"] = in.Title
		}
		if err := tx.Model(&model.Task{}).Where("id = ?", taskID).Updates(updates).Error; err != nil {
			return err
		}
		return aggregate.RefreshChallengeTotalPoints(tx, task.ChallengeID)
	})
}

// DeleteTask removes a task, its completion records, and refreshes the
// point total. Participant progress is not recomputed here; the next
// progress recomputation picks up the new denominator.
func (svc *Service) DeleteTask(ctx context.Context, taskID int64) error {
	task, err := svc.getTask(ctx, taskID)
	if err != nil {
		return err
	}
	return svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", taskID).Delete(&model.TaskCompletion{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&model.Task{}, taskID).Error; err != nil {
			return err
		}
		return aggregate.RefreshChallengeTotalPoints(tx, task.ChallengeID)
	})
}

// AssignTask sets the task's assignee and notifies them.
func (svc *Service) AssignTask(ctx context.Context, taskID, assigneeID int64) error {
	task, err := svc.getTask(ctx, taskID)
	if err != nil {
		return err
	}
	var user model.User
	if err := svc.db.WithContext(ctx).First(&user, assigneeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("user %d not found", assigneeID)
		}
		return err
	}

	err = svc.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ?", taskID).
		Update("assignee_id", assigneeID).Error
	if err != nil {
		return err
	}

	if svc.notifier != nil {
		svc.notifier.Notify(notify.Event{
			UserID:     assigneeID,
			Title:      "Tarea asignada",
			Message:    fmt.Sprintf("Se te ha asignado la tarea %q", task.Title),
			Type:       model.NotifyTaskAssigned,
			EntityKind: "task",
			EntityID:   taskID,
		})
	}
	return nil
}

// ListTasks returns the tasks of a challenge in creation order.
func (svc *Service) ListTasks(ctx context.Context, challengeID int64) ([]model.Task, error) {
	var out []model.Task
	err := svc.db.WithContext(ctx).
		Where("challenge_id = ?", challengeID).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// SweepExpired finishes every active challenge whose end date has passed.
// It is idempotent: already-finished challenges match nothing. Returns the
// number of challenges swept.
func (svc *Service) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res := svc.db.WithContext(ctx).Model(&model.Challenge{}).
		Where("state = ? AND end_date < ?", model.ChallengeStateActive, now).
		Update("state", model.ChallengeStateFinished)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		svc.logger.Info("expired challenges swept", zap.Int64("count", res.RowsAffected))
		if svc.bus != nil {
			if err := svc.bus.Emit(ctx, events.ChallengeSwept, events.SweepPayload{Count: res.RowsAffected}); err != nil {
				svc.logger.Warn("sweep listeners failed", zap.Error(err))
			}
		}
	}
	return res.RowsAffected, nil
}

func (svc *Service) getTask(ctx context.Context, taskID int64) (*model.Task, error) {
	var task model.Task
	err := svc.db.WithContext(ctx).First(&task, taskID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("task %d not found", taskID)
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

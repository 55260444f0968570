package content

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/challengeplans/server/aggregate"
	"github.com/challengeplans/server/apperr"
	"github.com/challengeplans/server/model"
	"github.com/challengeplans/server/notify"
	"github.com/challengeplans/server/reward"
)

// Notifier enqueues user-facing notifications.
type Notifier interface {
	Notify(ev notify.Event)
}

// Service owns shared study content: notes, plans, and note ratings.
// Publishing content for the first time triggers the matching reward rule.
type Service struct {
	db       *gorm.DB
	rewards  *reward.Engine
	notifier Notifier
	logger   *zap.Logger
}

// NewService creates a content Service. notifier may be nil.
func NewService(db *gorm.DB, rewards *reward.Engine, notifier Notifier, logger *zap.Logger) *Service {
	return &Service{db: db, rewards: rewards, notifier: notifier, logger: logger}
}

// CreateNote stores a private note.
func (svc *Service) CreateNote(ctx context.Context, authorID int64, title, content string) (*model.Note, error) {
	if title == "" {
		return nil, apperr.Validation("note title is required")
	}
	note := &model.Note{AuthorID: authorID, Title: title, Content: content}
	if err := svc.db.WithContext(ctx).Create(note).Error; err != nil {
		return nil, err
	}
	return note, nil
}

// PublishNote makes a note public and grants the publishing reward. The
// reward is keyed per user and reward, so republishing grants nothing.
func (svc *Service) PublishNote(ctx context.Context, userID, noteID int64) error {
	var note model.Note
	if err := svc.db.WithContext(ctx).First(&note, noteID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("note %d not found", noteID)
		}
		return err
	}
	if note.AuthorID != userID {
		return apperr.Validation("note %d does not belong to user %d", noteID, userID)
	}

	var grant *reward.Grant
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Note{}).Where("id = ?", noteID).
			Update("public", true).Error; err != nil {
			return err
		}
		var err error
		grant, err = svc.rewards.Grant(ctx, tx, model.EventSubirApunte, userID, nil)
		return err
	})
	if err != nil {
		return err
	}
	svc.notifyGrant(userID, grant)
	return nil
}

// CreatePlan stores a private study plan.
func (svc *Service) CreatePlan(ctx context.Context, ownerID int64, title, description string) (*model.StudyPlan, error) {
	if title == "" {
		return nil, apperr.Validation("plan title is required")
	}
	plan := &model.StudyPlan{OwnerID: ownerID, Title: title, Description: description}
	if err := svc.db.WithContext(ctx).Create(plan).Error; err != nil {
		return nil, err
	}
	return plan, nil
}

// PublishPlan makes a study plan public and grants the plan reward.
func (svc *Service) PublishPlan(ctx context.Context, userID, planID int64) error {
	var plan model.StudyPlan
	if err := svc.db.WithContext(ctx).First(&plan, planID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("plan %d not found", planID)
		}
		return err
	}
	if plan.OwnerID != userID {
		return apperr.Validation("plan %d does not belong to user %d", planID, userID)
	}

	var grant *reward.Grant
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.StudyPlan{}).Where("id = ?", planID).
			Update("public", true).Error; err != nil {
			return err
		}
		var err error
		grant, err = svc.rewards.Grant(ctx, tx, model.EventCrearPlan, userID, nil)
		return err
	})
	if err != nil {
		return err
	}
	svc.notifyGrant(userID, grant)
	return nil
}

// RateNote upserts one user's 1-5 rating of a public note and refreshes
// the note's denormalized average.
func (svc *Service) RateNote(ctx context.Context, userID, noteID int64, score int) error {
	if score < 1 || score > 5 {
		return apperr.Validation("rating %d out of range [1,5]", score)
	}
	var note model.Note
	if err := svc.db.WithContext(ctx).First(&note, noteID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("note %d not found", noteID)
		}
		return err
	}
	if !note.Public {
		return apperr.Validation("note %d is not public", noteID)
	}
	if note.AuthorID == userID {
		return apperr.Validation("cannot rate your own note")
	}

	return svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rating := model.NoteRating{UserID: userID, NoteID: noteID, Score: score}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "note_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"score", "updated_at"}),
		}).Create(&rating).Error
		if err != nil {
			return err
		}
		return aggregate.RefreshNoteRating(tx, noteID)
	})
}

// ListPublicNotes returns public notes, best rated first.
func (svc *Service) ListPublicNotes(ctx context.Context, limit, offset int) ([]model.Note, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var out []model.Note
	err := svc.db.WithContext(ctx).
		Where("public = ?", true).
		Order("average_rating DESC, id ASC").
		Limit(limit).Offset(offset).
		Find(&out).Error
	return out, err
}

// ListPublicPlans returns public study plans, newest first.
func (svc *Service) ListPublicPlans(ctx context.Context, limit, offset int) ([]model.StudyPlan, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var out []model.StudyPlan
	err := svc.db.WithContext(ctx).
		Where("public = ?", true).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&out).Error
	return out, err
}

func (svc *Service) notifyGrant(userID int64, g *reward.Grant) {
	if svc.notifier == nil || g == nil || !g.Granted {
		return
	}
	svc.notifier.Notify(notify.Event{
		UserID:     userID,
		Title:      "Recompensa obtenida",
		Message:    fmt.Sprintf("Has obtenido la recompensa %q", g.Reward.Name),
		Type:       model.NotifyRewardObtained,
		EntityKind: "reward",
		EntityID:   g.Reward.ID,
	})
}

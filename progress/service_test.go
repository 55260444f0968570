package progress

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/challengeplans/server/apperr"
	"github.com/challengeplans/server/events"
	"github.com/challengeplans/server/history"
	"github.com/challengeplans/server/model"
	"github.com/challengeplans/server/notify"
	"github.com/challengeplans/server/reward"
	"github.com/challengeplans/server/testutil"
)

type captureNotifier struct {
	events []notify.Event
}

func (c *captureNotifier) Notify(ev notify.Event) {
	c.events = append(c.events, ev)
}

func TestSetTaskCompletion_ProgressAggregation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	notifier := &captureNotifier{}
	svc := NewService(db, reward.NewEngine(db, logger), history.NewService(logger), notifier, events.NewBus(), logger)
	ctx := context.Background()

	user := model.User{Email: "ana@example.com", DisplayName: "Ana"}
	require.NoError(t, db.Create(&user).Error)
	ch := model.Challenge{CreatorID: user.ID, Title: "Matemáticas", State: model.ChallengeStateActive, TotalPoints: 50}
	require.NoError(t, db.Create(&ch).Error)
	tasks := make([]model.Task, 3)
	for i := range tasks {
		tasks[i] = model.Task{ChallengeID: ch.ID, Title: "Tarea", Points: 10}
		require.NoError(t, db.Create(&tasks[i]).Error)
	}

	require.NoError(t, svc.Join(ctx, user.ID, ch.ID))

	require.NoError(t, svc.SetTaskCompletion(ctx, user.ID, tasks[0].ID, true))
	var p model.Participation
	require.NoError(t, db.Where("user_id = ? AND challenge_id = ?", user.ID, ch.ID).First(&p).Error)
	assert.Equal(t, 33, p.Progress)
	assert.Equal(t, model.ParticipationActive, p.State)

	require.NoError(t, svc.SetTaskCompletion(ctx, user.ID, tasks[1].ID, true))
	require.NoError(t, db.Where("user_id = ? AND challenge_id = ?", user.ID, ch.ID).First(&p).Error)
	assert.Equal(t, 67, p.Progress)

	require.NoError(t, svc.SetTaskCompletion(ctx, user.ID, tasks[1].ID, false))
	require.NoError(t, db.Where("user_id = ? AND challenge_id = ?", user.ID, ch.ID).First(&p).Error)
	assert.Equal(t, 33, p.Progress)
}

func TestSetTaskCompletion_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	notifier := &captureNotifier{}
	svc := NewService(db, reward.NewEngine(db, logger), history.NewService(logger), notifier, events.NewBus(), logger)
	ctx := context.Background()

	user := model.User{Email: "ana@example.com", DisplayName: "Ana"}
	require.NoError(t, db.Create(&user).Error)
	ch := model.Challenge{CreatorID: user.ID, Title: "Historia", State: model.ChallengeStateActive}
	require.NoError(t, db.Create(&ch).Error)
	task := model.Task{ChallengeID: ch.ID, Title: "Leer capítulo", Points: 5}
	require.NoError(t, db.Create(&task).Error)
	require.NoError(t, svc.Join(ctx, user.ID, ch.ID))

	require.NoError(t, svc.SetTaskCompletion(ctx, user.ID, task.ID, true))
	require.NoError(t, svc.SetTaskCompletion(ctx, user.ID, task.ID, true))

	var completions int64
	require.NoError(t, db.Model(&model.TaskCompletion{}).Count(&completions).Error)
	assert.Equal(t, int64(1), completions)

	// with one task, the single completion already crossed the boundary;
	// the repeated completion must not have produced a second history row
	var histories int64
	require.NoError(t, db.Model(&model.ProgressHistory{}).
		Where("event = ?", model.ProgressEventCompleted).Count(&histories).Error)
	assert.Equal(t, int64(1), histories)

	// un-completing an already missing completion is a no-op too
	require.NoError(t, svc.SetTaskCompletion(ctx, user.ID, task.ID, false))
	require.NoError(t, svc.SetTaskCompletion(ctx, user.ID, task.ID, false))
	require.NoError(t, db.Model(&model.ProgressHistory{}).
		Where("event = ?", model.ProgressEventReverted).Count(&histories).Error)
	assert.Equal(t, int64(1), histories)
}

func TestCompletionBoundary_SideEffects(t *testing.T) {
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	notifier := &captureNotifier{}
	bus := events.NewBus()
	var scoreEvents []events.ScorePayload
	bus.Register(events.ScoreChanged, 0, "capture", func(ctx context.Context, event string, data interface{}) error {
		scoreEvents = append(scoreEvents, data.(events.ScorePayload))
		return nil
	})
	svc := NewService(db, reward.NewEngine(db, logger), history.NewService(logger), notifier, bus, logger)
	ctx := context.Background()

	user := model.User{Email: "ana@example.com", DisplayName: "Ana"}
	require.NoError(t, db.Create(&user).Error)
	ch := model.Challenge{CreatorID: user.ID, Title: "Física", State: model.ChallengeStateActive, TotalPoints: 40}
	require.NoError(t, db.Create(&ch).Error)
	tasks := make([]model.Task, 2)
	for i := range tasks {
		tasks[i] = model.Task{ChallengeID: ch.ID, Title: "Tarea", Points: 20}
		require.NoError(t, db.Create(&tasks[i]).Error)
	}
	badge := model.Reward{Name: "Medalla de reto", Kind: model.RewardKindBadge, Value: 0}
	require.NoError(t, db.Create(&badge).Error)
	rule := model.RewardRule{Event: model.EventCompleteReto, RewardID: badge.ID, Active: true}
	require.NoError(t, db.Create(&rule).Error)

	require.NoError(t, svc.Join(ctx, user.ID, ch.ID))
	require.NoError(t, svc.SetTaskCompletion(ctx, user.ID, tasks[0].ID, true))
	require.Empty(t, notifier.events, "no completion yet")

	require.NoError(t, svc.SetTaskCompletion(ctx, user.ID, tasks[1].ID, true))

	var p model.Participation
	require.NoError(t, db.Where("user_id = ? AND challenge_id = ?", user.ID, ch.ID).First(&p).Error)
	assert.Equal(t, 100, p.Progress)
	assert.Equal(t, model.ParticipationCompleted, p.State)
	require.NotNil(t, p.CompletedAt)

	var hist model.ProgressHistory
	require.NoError(t, db.Where("event = ?", model.ProgressEventCompleted).First(&hist).Error)
	assert.Equal(t, 50, hist.PreviousProgress)
	assert.Equal(t, 100, hist.NewProgress)

	var ach model.Achievement
	require.NoError(t, db.Where("user_id = ? AND type = ?", user.ID, model.AchievementCompletarReto).First(&ach).Error)
	require.NotNil(t, ach.ChallengeID)
	assert.Equal(t, ch.ID, *ach.ChallengeID)

	var ur model.UserReward
	require.NoError(t, db.Where("user_id = ? AND reward_id = ?", user.ID, badge.ID).First(&ur).Error)
	assert.Equal(t, model.EventCompleteReto, ur.SourceEvent)

	require.NoError(t, db.First(&user, user.ID).Error)
	assert.Equal(t, 40, user.Score, "challenge points credited")

	require.Len(t, notifier.events, 2)
	assert.Equal(t, model.NotifyChallengeCompleted, notifier.events[0].Type)
	assert.Equal(t, model.NotifyRewardObtained, notifier.events[1].Type)

	require.Len(t, scoreEvents, 1)
	assert.Equal(t, user.ID, scoreEvents[0].UserID)
}

func TestCompletionRevert_RestoresEverything(t *testing.T) {
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	notifier := &captureNotifier{}
	svc := NewService(db, reward.NewEngine(db, logger), history.NewService(logger), notifier, events.NewBus(), logger)
	ctx := context.Background()

	user := model.User{Email: "ana@example.com", DisplayName: "Ana"}
	require.NoError(t, db.Create(&user).Error)
	ch := model.Challenge{CreatorID: user.ID, Title: "Química", State: model.ChallengeStateActive, TotalPoints: 30}
	require.NoError(t, db.Create(&ch).Error)
	task := model.Task{ChallengeID: ch.ID, Title: "Informe", Points: 30}
	require.NoError(t, db.Create(&task).Error)
	badge := model.Reward{Name: "Insignia", Kind: model.RewardKindPoints, Value: 15}
	require.NoError(t, db.Create(&badge).Error)
	require.NoError(t, db.Create(&model.RewardRule{Event: model.EventCompleteReto, RewardID: badge.ID, Active: true}).Error)

	require.NoError(t, svc.Join(ctx, user.ID, ch.ID))
	require.NoError(t, svc.SetTaskCompletion(ctx, user.ID, task.ID, true))

	require.NoError(t, db.First(&user, user.ID).Error)
	assert.Equal(t, 45, user.Score, "30 challenge points + 15 reward points")

	require.NoError(t, svc.SetTaskCompletion(ctx, user.ID, task.ID, false))

	var p model.Participation
	require.NoError(t, db.Where("user_id = ? AND challenge_id = ?", user.ID, ch.ID).First(&p).Error)
	assert.Equal(t, 0, p.Progress)
	assert.Equal(t, model.ParticipationActive, p.State)
	assert.Nil(t, p.CompletedAt)

	var rewards int64
	require.NoError(t, db.Model(&model.UserReward{}).Where("user_id = ?", user.ID).Count(&rewards).Error)
	assert.Equal(t, int64(0), rewards)

	var achievements int64
	require.NoError(t, db.Model(&model.Achievement{}).
		Where("user_id = ? AND type = ?", user.ID, model.AchievementCompletarReto).Count(&achievements).Error)
	assert.Equal(t, int64(0), achievements)

	require.NoError(t, db.First(&user, user.ID).Error)
	assert.Equal(t, 0, user.Score)

	// history is append-only: both the completion and the revert are kept
	var histories int64
	require.NoError(t, db.Model(&model.ProgressHistory{}).Count(&histories).Error)
	assert.Equal(t, int64(2), histories)
}

func TestRevert_ScoreFloorAtZero(t *testing.T) {
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	svc := NewService(db, reward.NewEngine(db, logger), history.NewService(logger), nil, nil, logger)
	ctx := context.Background()

	user := model.User{Email: "ana@example.com", DisplayName: "Ana"}
	require.NoError(t, db.Create(&user).Error)
	ch := model.Challenge{CreatorID: user.ID, Title: "Biología", State: model.ChallengeStateActive, TotalPoints: 30}
	require.NoError(t, db.Create(&ch).Error)
	task := model.Task{ChallengeID: ch.ID, Title: "Esquema", Points: 30}
	require.NoError(t, db.Create(&task).Error)

	require.NoError(t, svc.Join(ctx, user.ID, ch.ID))
	require.NoError(t, svc.SetTaskCompletion(ctx, user.ID, task.ID, true))

	// drain the score out of band, then revert: the subtraction must clamp
	require.NoError(t, db.Model(&model.User{}).Where("id = ?", user.ID).Update("score", 10).Error)
	require.NoError(t, svc.SetTaskCompletion(ctx, user.ID, task.ID, false))

	require.NoError(t, db.First(&user, user.ID).Error)
	assert.Equal(t, 0, user.Score)
}

func TestOverrideProgress(t *testing.T) {
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	notifier := &captureNotifier{}
	svc := NewService(db, reward.NewEngine(db, logger), history.NewService(logger), notifier, events.NewBus(), logger)
	ctx := context.Background()

	user := model.User{Email: "ana@example.com", DisplayName: "Ana"}
	require.NoError(t, db.Create(&user).Error)
	ch := model.Challenge{CreatorID: user.ID, Title: "Inglés", State: model.ChallengeStateActive, TotalPoints: 20}
	require.NoError(t, db.Create(&ch).Error)
	require.NoError(t, svc.Join(ctx, user.ID, ch.ID))

	err := svc.OverrideProgress(ctx, user.ID, ch.ID, 150)
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))

	require.NoError(t, svc.OverrideProgress(ctx, user.ID, ch.ID, 60))
	var p model.Participation
	require.NoError(t, db.Where("user_id = ? AND challenge_id = ?", user.ID, ch.ID).First(&p).Error)
	assert.Equal(t, 60, p.Progress)

	require.NoError(t, svc.OverrideProgress(ctx, user.ID, ch.ID, 100))
	require.NoError(t, db.Where("user_id = ? AND challenge_id = ?", user.ID, ch.ID).First(&p).Error)
	assert.Equal(t, model.ParticipationCompleted, p.State)
	require.NoError(t, db.First(&user, user.ID).Error)
	assert.Equal(t, 20, user.Score)

	// identical value is a no-op: no extra history row
	var before int64
	require.NoError(t, db.Model(&model.ProgressHistory{}).Count(&before).Error)
	require.NoError(t, svc.OverrideProgress(ctx, user.ID, ch.ID, 100))
	var after int64
	require.NoError(t, db.Model(&model.ProgressHistory{}).Count(&after).Error)
	assert.Equal(t, before, after)
}

func TestJoinAndLeave(t *testing.T) {
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	svc := NewService(db, reward.NewEngine(db, logger), history.NewService(logger), nil, nil, logger)
	ctx := context.Background()

	user := model.User{Email: "ana@example.com", DisplayName: "Ana"}
	require.NoError(t, db.Create(&user).Error)
	ch := model.Challenge{CreatorID: user.ID, Title: "Arte", State: model.ChallengeStateActive, TotalPoints: 10}
	require.NoError(t, db.Create(&ch).Error)
	task := model.Task{ChallengeID: ch.ID, Title: "Dibujo", Points: 10}
	require.NoError(t, db.Create(&task).Error)

	err := svc.Join(ctx, user.ID, 9999)
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))

	require.NoError(t, svc.Join(ctx, user.ID, ch.ID))
	err = svc.Join(ctx, user.ID, ch.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err))

	require.NoError(t, db.First(&ch, ch.ID).Error)
	assert.Equal(t, 1, ch.ParticipantCount)

	var joinAch int64
	require.NoError(t, db.Model(&model.Achievement{}).
		Where("user_id = ? AND type = ?", user.ID, model.AchievementUnirseReto).Count(&joinAch).Error)
	assert.Equal(t, int64(1), joinAch)

	// complete, then leave: everything is reversed and cleaned up
	require.NoError(t, svc.SetTaskCompletion(ctx, user.ID, task.ID, true))
	require.NoError(t, db.First(&user, user.ID).Error)
	require.Equal(t, 10, user.Score)

	require.NoError(t, svc.Leave(ctx, user.ID, ch.ID))

	var participations int64
	require.NoError(t, db.Model(&model.Participation{}).Count(&participations).Error)
	assert.Equal(t, int64(0), participations)
	var completions int64
	require.NoError(t, db.Model(&model.TaskCompletion{}).Count(&completions).Error)
	assert.Equal(t, int64(0), completions)
	var achievements int64
	require.NoError(t, db.Model(&model.Achievement{}).Where("user_id = ?", user.ID).Count(&achievements).Error)
	assert.Equal(t, int64(0), achievements)
	require.NoError(t, db.First(&user, user.ID).Error)
	assert.Equal(t, 0, user.Score)
	require.NoError(t, db.First(&ch, ch.ID).Error)
	assert.Equal(t, 0, ch.ParticipantCount)

	err = svc.Leave(ctx, user.ID, ch.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
}

func TestRecomputeProgress_NoTasks(t *testing.T) {
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	svc := NewService(db, reward.NewEngine(db, logger), history.NewService(logger), nil, nil, logger)
	ctx := context.Background()

	user := model.User{Email: "ana@example.com", DisplayName: "Ana"}
	require.NoError(t, db.Create(&user).Error)
	ch := model.Challenge{CreatorID: user.ID, Title: "Vacío", State: model.ChallengeStateActive}
	require.NoError(t, db.Create(&ch).Error)
	require.NoError(t, svc.Join(ctx, user.ID, ch.ID))

	v, err := svc.RecomputeProgress(ctx, user.ID, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}
